// Package service implements the event operations on top of a search engine.
//
// Repository is the strict form: every call returns its error and point
// lookups report a tagged status. EventSearchService wraps it with the
// best-effort policy, logging failures and returning neutral values.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/eventsearch/mcp-server/internal/assets"
	"github.com/eventsearch/mcp-server/internal/engine"
	"github.com/eventsearch/mcp-server/internal/event"
	"go.uber.org/zap"
)

// maxResults bounds list and term searches
const maxResults = 10000

// Status tags the outcome of a point lookup
type Status int

const (
	StatusFound Status = iota
	StatusNotFound
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not_found"
	default:
		return "failed"
	}
}

// Lookup is the result of fetching one event by id
type Lookup struct {
	Event  event.Event
	Status Status
	Err    error // set when Status is StatusFailed
}

// Found reports whether the event exists
func (l Lookup) Found() bool { return l.Status == StatusFound }

// Option configures a Repository or EventSearchService
type Option func(*options)

type options struct {
	index  string
	logger *zap.Logger
}

// WithIndex sets the events index (default "events")
func WithIndex(name string) Option {
	return func(o *options) {
		if name != "" {
			o.index = name
		}
	}
}

// WithLogger sets the logger (default no-op)
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{index: event.DefaultIndex, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Repository performs event operations and returns every error to the caller
type Repository struct {
	engine engine.Engine
	index  string
	logger *zap.Logger
}

// NewRepository creates a repository over an open engine handle
func NewRepository(e engine.Engine, opts ...Option) *Repository {
	o := buildOptions(opts)
	return &Repository{engine: e, index: o.index, logger: o.logger}
}

// Index is the name of the events index
func (r *Repository) Index() string { return r.index }

func (r *Repository) CreateIndex(ctx context.Context, name string) (bool, error) {
	return r.engine.CreateIndex(ctx, name, nil)
}

func (r *Repository) IndexExists(ctx context.Context, name string) (bool, error) {
	return r.engine.IndexExists(ctx, name)
}

func (r *Repository) PutMapping(ctx context.Context, name string, mapping []byte) (bool, error) {
	return r.engine.PutMapping(ctx, name, mapping)
}

// CreateEventIndex creates name with the event field mapping
func (r *Repository) CreateEventIndex(ctx context.Context, name string) (bool, error) {
	body, err := assets.EventsMapping()
	if err != nil {
		return false, fmt.Errorf("load events mapping: %w", err)
	}
	return r.engine.CreateIndex(ctx, name, body)
}

// EnsureEventsIndex creates the events index with the event mapping unless it exists
func (r *Repository) EnsureEventsIndex(ctx context.Context) (bool, error) {
	exists, err := r.engine.IndexExists(ctx, r.index)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	return r.CreateEventIndex(ctx, r.index)
}

// FindEventByID looks up one event, telling absence apart from failure
func (r *Repository) FindEventByID(ctx context.Context, id string) Lookup {
	src, err := r.engine.Get(ctx, r.index, id)
	if errors.Is(err, engine.ErrNotFound) {
		return Lookup{Status: StatusNotFound}
	}
	if err != nil {
		return Lookup{Status: StatusFailed, Err: err}
	}
	e, err := event.Decode(src)
	if err != nil {
		return Lookup{Status: StatusFailed, Err: fmt.Errorf("decode event %s: %w", id, err)}
	}
	return Lookup{Event: e, Status: StatusFound}
}

// GetEventByID returns the event or an error; absence is engine.ErrNotFound
func (r *Repository) GetEventByID(ctx context.Context, id string) (event.Event, error) {
	l := r.FindEventByID(ctx, id)
	switch l.Status {
	case StatusFound:
		return l.Event, nil
	case StatusNotFound:
		return event.Event{}, fmt.Errorf("event %s: %w", id, engine.ErrNotFound)
	default:
		return event.Event{}, l.Err
	}
}

func (r *Repository) search(ctx context.Context, q engine.Query) ([]event.Event, error) {
	if q.Size == 0 {
		q.Size = maxResults
	}
	hits, err := r.engine.Search(ctx, r.index, q)
	if err != nil {
		return nil, err
	}
	events := make([]event.Event, 0, len(hits))
	for _, h := range hits {
		e, err := event.Decode(h.Source)
		if err != nil {
			return nil, fmt.Errorf("decode event %s: %w", h.ID, err)
		}
		events = append(events, e)
	}
	return events, nil
}

// ListEvents returns every event sorted by id, descending
func (r *Repository) ListEvents(ctx context.Context) ([]event.Event, error) {
	return r.search(ctx, engine.Query{
		Sort: []engine.SortField{{Field: event.FieldID, Desc: true}},
	})
}

// FindEventsByTerm returns the events whose field holds exactly value
func (r *Repository) FindEventsByTerm(ctx context.Context, field, value string) ([]event.Event, error) {
	return r.search(ctx, engine.Query{Term: &engine.Term{Field: field, Value: value}})
}

func (r *Repository) CountEventsByTerm(ctx context.Context, field, value string) (int64, error) {
	return r.engine.Count(ctx, r.index, engine.Term{Field: field, Value: value})
}

// SaveEvent upserts e under its id and returns the stored document
func (r *Repository) SaveEvent(ctx context.Context, e event.Event) (event.Event, error) {
	if e.ID == "" {
		return event.Event{}, errors.New("event id is required")
	}
	doc, err := json.Marshal(e)
	if err != nil {
		return event.Event{}, fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	res, err := r.engine.Index(ctx, r.index, e.ID, doc)
	if err != nil {
		return event.Event{}, err
	}
	r.logger.Info("event written", zap.String("id", e.ID), zap.String("result", string(res)))
	return r.GetEventByID(ctx, e.ID)
}

// SaveEvents writes all events with one bulk request and returns the stored
// documents of the successful items, in bulk response order. Events that
// cannot be encoded are logged and left out of the request.
func (r *Repository) SaveEvents(ctx context.Context, events []event.Event) ([]event.Event, error) {
	items := make([]engine.BulkItem, 0, len(events))
	for _, e := range events {
		if e.ID == "" {
			r.logger.Info("skipping event without id", zap.String("title", e.Title))
			continue
		}
		doc, err := json.Marshal(e)
		if err != nil {
			r.logger.Info("skipping event that cannot be encoded", zap.String("id", e.ID), zap.Error(err))
			continue
		}
		items = append(items, engine.BulkItem{Op: engine.OpIndex, ID: e.ID, Doc: doc})
	}
	if len(items) == 0 {
		return []event.Event{}, nil
	}

	results, err := r.engine.Bulk(ctx, r.index, items)
	if err != nil {
		return nil, err
	}

	stored := make([]event.Event, 0, len(results))
	for _, item := range results {
		if !item.Succeeded() {
			r.logger.Info("bulk item failed",
				zap.String("id", item.ID), zap.Int("status", item.Status), zap.Error(item.Err))
			continue
		}
		switch item.Result {
		case engine.ResultCreated, engine.ResultUpdated, engine.ResultNoop:
		default:
			continue
		}
		r.logger.Info("bulk item written", zap.String("id", item.ID), zap.String("result", string(item.Result)))

		e, err := r.GetEventByID(ctx, item.ID)
		if err != nil {
			r.logger.Info("re-reading bulk item failed", zap.String("id", item.ID), zap.Error(err))
			continue
		}
		stored = append(stored, e)
	}
	return stored, nil
}

// UpdateEvent merges the non-empty fields of e into the event stored at id
// and returns the stored result. The id of a stored event never changes.
func (r *Repository) UpdateEvent(ctx context.Context, id string, e event.Event) (event.Event, error) {
	if e.ID != "" && e.ID != id {
		return event.Event{}, fmt.Errorf("id %q does not match event %s", e.ID, id)
	}
	e.ID = ""
	partial, err := json.Marshal(e)
	if err != nil {
		return event.Event{}, fmt.Errorf("encode event %s: %w", id, err)
	}
	res, err := r.engine.Update(ctx, r.index, id, partial)
	if err != nil {
		return event.Event{}, err
	}
	r.logger.Info("event updated", zap.String("id", id), zap.String("result", string(res)))
	return r.GetEventByID(ctx, id)
}

func (r *Repository) DeleteEvent(ctx context.Context, id string) (engine.Result, error) {
	return r.engine.Delete(ctx, r.index, id)
}

// DeleteEventsByTerm removes every event whose field holds exactly value
func (r *Repository) DeleteEventsByTerm(ctx context.Context, field, value string) (int64, error) {
	return r.engine.DeleteByQuery(ctx, r.index, engine.Term{Field: field, Value: value})
}
