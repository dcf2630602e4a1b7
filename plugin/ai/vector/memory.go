package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hrygo/decade/plugin/ai"
	"github.com/hrygo/decade/store"
)

// MemoryIndex is a non-persistent Index, used in tests and for dry runs.
type MemoryIndex struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	dimension int
	entries   map[string]*Entry
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{collections: make(map[string]*memoryCollection)}
}

func (m *MemoryIndex) Open(_ context.Context, collection, _ string, dimension int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.collections[collection]; ok {
		if c.dimension != dimension {
			return fmt.Errorf("%w: collection %s has dimension %d, not %d",
				ai.ErrDimensionMismatch, collection, c.dimension, dimension)
		}
		return nil
	}
	m.collections[collection] = &memoryCollection{dimension: dimension, entries: make(map[string]*Entry)}
	return nil
}

func (m *MemoryIndex) Upsert(_ context.Context, collection string, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.collection(collection)
	if err != nil {
		return err
	}
	if len(entry.Vector) != c.dimension {
		return fmt.Errorf("%w: collection %s has dimension %d, not %d",
			ai.ErrDimensionMismatch, collection, c.dimension, len(entry.Vector))
	}
	stored := *entry
	stored.Vector = append([]float32(nil), entry.Vector...)
	c.entries[entry.ID] = &stored
	return nil
}

func (m *MemoryIndex) SearchNearest(_ context.Context, collection string, vector []float32, limit int) ([]*Neighbor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.collection(collection)
	if err != nil {
		return nil, err
	}

	results := make([]*Neighbor, 0, len(c.entries))
	for _, e := range c.entries {
		results = append(results, &Neighbor{Entry: *e, Distance: store.CosineDistance(vector, e.Vector)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

// Len returns the number of entries in collection.
func (m *MemoryIndex) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.collections[collection]; ok {
		return len(c.entries)
	}
	return 0
}

func (m *MemoryIndex) collection(name string) (*memoryCollection, error) {
	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s is not open", name)
	}
	return c, nil
}
