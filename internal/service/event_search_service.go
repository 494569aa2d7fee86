package service

import (
	"context"

	"github.com/eventsearch/mcp-server/internal/engine"
	"github.com/eventsearch/mcp-server/internal/event"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventSearchService is the best-effort facade over Repository. No method
// returns an error: failures are logged and replaced by a neutral value
// (false, nil, an empty slice, zero, or the caller's input).
type EventSearchService struct {
	repo   *Repository
	logger *zap.Logger
}

// NewEventSearchService creates the service over an open engine handle
func NewEventSearchService(e engine.Engine, opts ...Option) *EventSearchService {
	o := buildOptions(opts)
	return &EventSearchService{
		repo:   &Repository{engine: e, index: o.index, logger: o.logger},
		logger: o.logger,
	}
}

// Repository exposes the strict operations behind the service
func (s *EventSearchService) Repository() *Repository { return s.repo }

func (s *EventSearchService) CreateIndex(ctx context.Context, name string) {
	bestEffort(ctx, s.logger, "creating index", false, func(ctx context.Context) (bool, error) {
		ack, err := s.repo.CreateIndex(ctx, name)
		if err != nil {
			return false, err
		}
		s.logger.Info("create index acknowledged", zap.String("index", name), zap.Bool("acknowledged", ack))
		return ack, nil
	}, zap.String("index", name))
}

// CheckIfIndexExist reports false both when the index is missing and when the check fails
func (s *EventSearchService) CheckIfIndexExist(ctx context.Context, name string) bool {
	return bestEffort(ctx, s.logger, "checking index", false, func(ctx context.Context) (bool, error) {
		return s.repo.IndexExists(ctx, name)
	}, zap.String("index", name))
}

func (s *EventSearchService) UpdateIndexMapping(ctx context.Context, name string, mapping []byte) {
	bestEffort(ctx, s.logger, "updating index mapping", false, func(ctx context.Context) (bool, error) {
		ack, err := s.repo.PutMapping(ctx, name, mapping)
		if err != nil {
			return false, err
		}
		s.logger.Info("put mapping acknowledged", zap.String("index", name), zap.Bool("acknowledged", ack))
		return ack, nil
	}, zap.String("index", name))
}

// EnsureEventsIndex creates the events index with the event mapping if it is missing
func (s *EventSearchService) EnsureEventsIndex(ctx context.Context) {
	bestEffort(ctx, s.logger, "ensuring events index", false, s.repo.EnsureEventsIndex,
		zap.String("index", s.repo.index))
}

// GetEventByID returns nil when the event is missing or the lookup fails.
// Use Repository().FindEventByID to tell the two apart.
func (s *EventSearchService) GetEventByID(ctx context.Context, id string) *event.Event {
	return bestEffort(ctx, s.logger, "getting event", (*event.Event)(nil), func(ctx context.Context) (*event.Event, error) {
		l := s.repo.FindEventByID(ctx, id)
		switch l.Status {
		case StatusFound:
			return &l.Event, nil
		case StatusNotFound:
			s.logger.Info("event not found", zap.String("id", id))
			return nil, nil
		default:
			return nil, l.Err
		}
	}, zap.String("id", id))
}

// GetAllEvents returns every event sorted by id, descending
func (s *EventSearchService) GetAllEvents(ctx context.Context) []event.Event {
	return bestEffort(ctx, s.logger, "listing events", []event.Event{}, s.repo.ListEvents)
}

// InsertEvent upserts e and returns the stored document, or e itself when the write fails
func (s *EventSearchService) InsertEvent(ctx context.Context, e event.Event) event.Event {
	return bestEffort(ctx, s.logger, "inserting event", e, func(ctx context.Context) (event.Event, error) {
		return s.repo.SaveEvent(ctx, e)
	}, zap.String("id", e.ID))
}

// InsertEvents bulk-writes events and returns the stored documents of the
// successful items in bulk response order
func (s *EventSearchService) InsertEvents(ctx context.Context, events []event.Event) []event.Event {
	return bestEffort(ctx, s.logger, "inserting events", []event.Event{}, func(ctx context.Context) ([]event.Event, error) {
		return s.repo.SaveEvents(ctx, events)
	}, zap.Int("count", len(events)))
}

func (s *EventSearchService) DeleteEvent(ctx context.Context, id string) {
	res := bestEffort(ctx, s.logger, "deleting event", engine.Result(""), func(ctx context.Context) (engine.Result, error) {
		return s.repo.DeleteEvent(ctx, id)
	}, zap.String("id", id))
	if res != "" {
		s.logger.Info("event deleted", zap.String("id", id), zap.String("result", string(res)))
	}
}

// DeleteEventByTerm removes every event whose field holds exactly value
func (s *EventSearchService) DeleteEventByTerm(ctx context.Context, field, value string) {
	deleted := bestEffort(ctx, s.logger, "deleting events by term", int64(-1), func(ctx context.Context) (int64, error) {
		return s.repo.DeleteEventsByTerm(ctx, field, value)
	}, zap.String("field", field), zap.String("value", value))
	if deleted >= 0 {
		s.logger.Info("events deleted", zap.String("field", field), zap.String("value", value), zap.Int64("deleted", deleted))
	}
}

// UpdateEvent merges e into the event stored at id and returns the stored
// result. When the update fails the event currently stored at id is returned,
// or nil if that lookup fails too.
func (s *EventSearchService) UpdateEvent(ctx context.Context, id string, e event.Event) *event.Event {
	updated := bestEffort(ctx, s.logger, "updating event", (*event.Event)(nil), func(ctx context.Context) (*event.Event, error) {
		stored, err := s.repo.UpdateEvent(ctx, id, e)
		if err != nil {
			return nil, err
		}
		return &stored, nil
	}, zap.String("id", id))
	if updated != nil {
		return updated
	}
	return s.GetEventByID(ctx, id)
}

// GetEventByTerm returns the events whose field holds exactly value
func (s *EventSearchService) GetEventByTerm(ctx context.Context, field, value string) []event.Event {
	return bestEffort(ctx, s.logger, "searching events by term", []event.Event{}, func(ctx context.Context) ([]event.Event, error) {
		return s.repo.FindEventsByTerm(ctx, field, value)
	}, zap.String("field", field), zap.String("value", value))
}

func (s *EventSearchService) CountEventsByTerm(ctx context.Context, field, value string) int64 {
	return bestEffortAt(ctx, s.logger, zapcore.ErrorLevel, "counting events by term", int64(0), func(ctx context.Context) (int64, error) {
		return s.repo.CountEventsByTerm(ctx, field, value)
	}, zap.String("field", field), zap.String("value", value))
}
