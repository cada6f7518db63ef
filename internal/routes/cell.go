package routes

import (
	"context"
	"sync"

	"github.com/Zachdehooge/structure-map/internal/fetcher"
)

// Cell holds the station-routes collection. It starts out as an empty
// placeholder and is resolved exactly once when the document arrives; every
// reader sees the same collection pointer afterwards.
type Cell struct {
	mu    sync.RWMutex
	fc    *fetcher.FeatureCollection
	ready chan struct{}
	once  sync.Once
}

// NewCell returns an unresolved cell holding an empty placeholder.
func NewCell() *Cell {
	return &Cell{
		fc:    fetcher.NewFeatureCollection(),
		ready: make(chan struct{}),
	}
}

// Resolve stores fc. Only the first call has an effect; it reports whether
// this call was the one that resolved the cell.
func (c *Cell) Resolve(fc *fetcher.FeatureCollection) bool {
	resolved := false
	c.once.Do(func() {
		if fc == nil {
			fc = fetcher.NewFeatureCollection()
		}
		c.mu.Lock()
		c.fc = fc
		c.mu.Unlock()
		close(c.ready)
		resolved = true
	})
	return resolved
}

// Get returns the current collection: the placeholder until resolved.
func (c *Cell) Get() *fetcher.FeatureCollection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fc
}

// Ready is closed once the cell is resolved.
func (c *Cell) Ready() <-chan struct{} {
	return c.ready
}

// Resolved reports whether the document has arrived.
func (c *Cell) Resolved() bool {
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

// Wait blocks until the cell resolves or ctx ends.
func (c *Cell) Wait(ctx context.Context) (*fetcher.FeatureCollection, error) {
	select {
	case <-c.ready:
		return c.Get(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
