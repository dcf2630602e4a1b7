package ai

import "errors"

var (
	// ErrEmptyText is returned when asked to embed an empty string.
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrDimensionMismatch is a configuration error: a vector does not have the
	// dimension its backend committed to.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrBackendUnconfigured marks a backend without the credentials it needs.
	ErrBackendUnconfigured = errors.New("backend is not configured")
	// ErrUnsupportedProvider is returned for unknown provider names.
	ErrUnsupportedProvider = errors.New("unsupported provider")
)
