package v1

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/decade/plugin/ai/rag"
	aierrors "github.com/hrygo/decade/server/internal/errors"
	"github.com/hrygo/decade/server/internal/observability"
	"github.com/hrygo/decade/server/retrieval"
	"github.com/hrygo/decade/server/runner/embedding"
	"github.com/hrygo/decade/store"
)

// maxK bounds the hits a single search may ask for.
const maxK = 50

// SearchResponse is the body of a search.
type SearchResponse struct {
	Query string     `json:"query"`
	Mode  string     `json:"mode"`
	Count int        `json:"count"`
	Hits  []*rag.Hit `json:"hits"`
}

// MemoryRequest is the body of a memory upsert.
type MemoryRequest struct {
	Date      string       `json:"date"`
	Location  string       `json:"location"`
	Weather   string       `json:"weather"`
	Title     string       `json:"title"`
	Caption   string       `json:"caption"`
	Note      string       `json:"note"`
	Faces     []store.Face `json:"faces"`
	Mood      string       `json:"mood"`
	MediaType string       `json:"media_type"`
	ImageURL  string       `json:"image_url"`
}

// MemoryResponse is the body returned after an upsert.
type MemoryResponse struct {
	ID        string                 `json:"id"`
	UpdatedTs int64                  `json:"updated_ts"`
	Index     *embedding.IndexReport `json:"index"`
}

// SearchMemories runs a retrieval query.
// GET /api/v1/search?q=&k=&mode=
func (s *APIV1Service) SearchMemories(c echo.Context) error {
	query := c.QueryParam("q")
	k := 0
	if raw := c.QueryParam("k"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return writeError(c, aierrors.InvalidArgument("k must be an integer"))
		}
		k = v
	}
	if k > maxK {
		k = maxK
	}
	mode, err := retrieval.ParseMode(c.QueryParam("mode"))
	if err != nil {
		return writeError(c, err)
	}

	hits, err := s.Searcher.Search(c.Request().Context(), query, k, mode)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, &SearchResponse{
		Query: query,
		Mode:  string(mode),
		Count: len(hits),
		Hits:  hits,
	})
}

// UpsertMemory stores a memory record and indexes it into every backend.
// PUT /api/v1/memories/:id
func (s *APIV1Service) UpsertMemory(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return writeError(c, aierrors.InvalidArgument("id is required"))
	}
	var req MemoryRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, aierrors.InvalidArgument("invalid memory body"))
	}
	if strings.TrimSpace(req.MediaType) == "" {
		return writeError(c, aierrors.InvalidArgument("media_type is required"))
	}

	ctx := c.Request().Context()
	record, err := s.Store.UpsertMemoryRecord(ctx, &store.MemoryRecord{
		ID:        id,
		Date:      req.Date,
		Location:  req.Location,
		Weather:   req.Weather,
		Title:     req.Title,
		Caption:   req.Caption,
		Note:      req.Note,
		Faces:     req.Faces,
		Mood:      req.Mood,
		MediaType: req.MediaType,
		ImageURL:  req.ImageURL,
	})
	if err != nil {
		return writeError(c, err)
	}

	report, err := s.Indexer.IndexOne(ctx, record.ID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, &MemoryResponse{ID: record.ID, UpdatedTs: record.UpdatedTs, Index: report})
}

// IndexMemory reindexes one memory record.
// POST /api/v1/memories/:id/index
func (s *APIV1Service) IndexMemory(c echo.Context) error {
	report, err := s.Indexer.IndexOne(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// ReindexMemories reindexes every memory record.
// POST /api/v1/index
func (s *APIV1Service) ReindexMemories(c echo.Context) error {
	report, err := s.Indexer.IndexAll(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// writeError maps err to its coded HTTP response.
func writeError(c echo.Context, err error) error {
	var aiErr *aierrors.AIError
	if !errors.As(err, &aiErr) {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			aiErr = aierrors.Wrap(err, aierrors.ErrCodeTimeout, "request timed out")
		case errors.Is(err, context.Canceled):
			aiErr = aierrors.ContextCanceled(err)
		default:
			aiErr = aierrors.Wrap(err, aierrors.ErrCodeInternal, "internal error")
		}
	}

	logger, _ := observability.LoggerFromContext(c.Request().Context(), c.Path())
	level := slog.LevelWarn
	if aiErr.HTTPStatus() >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(c.Request().Context(), level, "request failed",
		observability.LogFieldErrorCode, aiErr.Code,
		"error", err,
	)

	return c.JSON(aiErr.HTTPStatus(), map[string]string{
		"code":  string(aiErr.Code),
		"error": aiErr.Message,
	})
}
