package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/eventsearch/mcp-server/internal/engine"
)

// mockEngine fails every call with err, or answers from canned values
type mockEngine struct {
	err     error
	source  json.RawMessage
	results []engine.BulkItemResult
	updates atomic.Int32
	gets    atomic.Int32
	closed  atomic.Bool
}

func newFailingEngine(err error) *mockEngine {
	return &mockEngine{err: err}
}

func (m *mockEngine) check() error {
	if m.closed.Load() {
		return fmt.Errorf("engine closed")
	}
	return m.err
}

func (m *mockEngine) CreateIndex(ctx context.Context, name string, body []byte) (bool, error) {
	return m.check() == nil, m.check()
}

func (m *mockEngine) IndexExists(ctx context.Context, name string) (bool, error) {
	return m.check() == nil, m.check()
}

func (m *mockEngine) PutMapping(ctx context.Context, name string, mapping []byte) (bool, error) {
	return m.check() == nil, m.check()
}

func (m *mockEngine) Get(ctx context.Context, index, id string) (json.RawMessage, error) {
	m.gets.Add(1)
	if err := m.check(); err != nil {
		return nil, err
	}
	if m.source == nil {
		return nil, engine.ErrNotFound
	}
	return m.source, nil
}

func (m *mockEngine) Search(ctx context.Context, index string, q engine.Query) ([]engine.Hit, error) {
	return nil, m.check()
}

func (m *mockEngine) Index(ctx context.Context, index, id string, doc []byte) (engine.Result, error) {
	return engine.ResultCreated, m.check()
}

func (m *mockEngine) Bulk(ctx context.Context, index string, items []engine.BulkItem) ([]engine.BulkItemResult, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	return m.results, nil
}

func (m *mockEngine) Update(ctx context.Context, index, id string, partial []byte) (engine.Result, error) {
	m.updates.Add(1)
	return engine.ResultUpdated, m.check()
}

func (m *mockEngine) Delete(ctx context.Context, index, id string) (engine.Result, error) {
	return engine.ResultDeleted, m.check()
}

func (m *mockEngine) DeleteByQuery(ctx context.Context, index string, t engine.Term) (int64, error) {
	return 0, m.check()
}

func (m *mockEngine) Count(ctx context.Context, index string, t engine.Term) (int64, error) {
	return 0, m.check()
}

func (m *mockEngine) Refresh(ctx context.Context, index string) error {
	return m.check()
}

func (m *mockEngine) Close() error {
	if m.closed.Load() {
		return fmt.Errorf("already closed")
	}
	m.closed.Store(true)
	return nil
}
