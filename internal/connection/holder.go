// Package connection keeps the process-wide search engine handle.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/eventsearch/mcp-server/internal/engine"
	"github.com/eventsearch/mcp-server/internal/engine/elastic"
)

// ErrNotOpen is returned by Close when no handle has been created
var ErrNotOpen = errors.New("connection not open")

// Factory creates a new engine handle
type Factory func(ctx context.Context) (engine.Engine, error)

// DefaultFactory connects to Elasticsearch on localhost:9200 over http
func DefaultFactory(ctx context.Context) (engine.Engine, error) {
	return elastic.New(elastic.DefaultConfig())
}

// Holder lazily creates one engine handle and hands it out until closed
type Holder struct {
	mu      sync.Mutex
	factory Factory
	current engine.Engine
}

// NewHolder returns a closed holder using factory, or DefaultFactory when nil
func NewHolder(factory Factory) *Holder {
	if factory == nil {
		factory = DefaultFactory
	}
	return &Holder{factory: factory}
}

// Get returns the shared handle, creating it on first use
func (h *Holder) Get(ctx context.Context) (engine.Engine, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current != nil {
		return h.current, nil
	}
	e, err := h.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("open connection: %w", err)
	}
	h.current = e
	return e, nil
}

// Close releases the handle; a later Get creates a new one.
// Closing a holder with no open handle returns ErrNotOpen.
func (h *Holder) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current == nil {
		return ErrNotOpen
	}
	err := h.current.Close()
	h.current = nil
	return err
}

// IsOpen reports whether a handle currently exists
func (h *Holder) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current != nil
}

// SetFactory replaces the factory. It fails while a handle is open.
func (h *Holder) SetFactory(factory Factory) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current != nil {
		return errors.New("cannot replace factory while connection is open")
	}
	if factory == nil {
		factory = DefaultFactory
	}
	h.factory = factory
	return nil
}

var defaultHolder = NewHolder(nil)

// Default is the process-wide holder behind GetConnection
func Default() *Holder { return defaultHolder }

// Init sets the factory used by GetConnection
func Init(factory Factory) error {
	return defaultHolder.SetFactory(factory)
}

// GetConnection returns the process-wide handle
func GetConnection(ctx context.Context) (engine.Engine, error) {
	return defaultHolder.Get(ctx)
}

// CloseConnection tears down the process-wide handle
func CloseConnection() error {
	return defaultHolder.Close()
}
