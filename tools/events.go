package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/eventsearch/mcp-server/internal/engine"
	"github.com/eventsearch/mcp-server/internal/event"
	"github.com/eventsearch/mcp-server/internal/service"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// Connector hands out the shared engine handle
type Connector interface {
	Get(ctx context.Context) (engine.Engine, error)
}

// EventTools serves the event operations as MCP tools. Handlers use the
// strict repository so failures reach the client as tool errors.
type EventTools struct {
	conn   Connector
	index  string
	logger *zap.Logger
}

// NewEventTools creates the tool handlers for the events index
func NewEventTools(conn Connector, index string, logger *zap.Logger) *EventTools {
	if index == "" {
		index = event.DefaultIndex
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventTools{conn: conn, index: index, logger: logger}
}

func (t *EventTools) repository(ctx context.Context) (*service.Repository, error) {
	e, err := t.conn.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("search engine unavailable: %w", err)
	}
	return service.NewRepository(e, service.WithIndex(t.index), service.WithLogger(t.logger)), nil
}

// decodeDocument validates a JSON object against the event schema and decodes it
func decodeDocument(doc map[string]any) (event.Event, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return event.Event{}, fmt.Errorf("encode document: %w", err)
	}
	if err := event.Validate(raw); err != nil {
		return event.Event{}, err
	}
	return event.Decode(raw)
}

// IndexInput names an index; empty means the events index
type IndexInput struct {
	Name string `json:"name,omitempty" jsonschema:"Index name (optional, defaults to the events index)"`
}

// CreateIndexInput defines input for create_index tool
type CreateIndexInput struct {
	Name         string `json:"name,omitempty" jsonschema:"Index name (optional, defaults to the events index)"`
	EventMapping bool   `json:"event_mapping,omitempty" jsonschema:"Create the index with the event field mapping (optional, defaults to false)"`
}

// CreateIndexOutput defines output for create_index tool
type CreateIndexOutput struct {
	Index        string `json:"index"`
	Acknowledged bool   `json:"acknowledged"`
}

// IndexExistsOutput defines output for index_exists tool
type IndexExistsOutput struct {
	Index  string `json:"index"`
	Exists bool   `json:"exists"`
}

// EventIDInput identifies one event
type EventIDInput struct {
	ID string `json:"id" jsonschema:"Event id"`
}

// GetEventOutput defines output for get_event tool
type GetEventOutput struct {
	Found bool         `json:"found"`
	Event *event.Event `json:"event,omitempty"`
}

// ListEventsInput defines input for list_events tool
type ListEventsInput struct{}

// EventsOutput is a list of events
type EventsOutput struct {
	Events []event.Event `json:"events"`
	Count  int           `json:"count"`
}

// InsertEventInput defines input for insert_event tool
type InsertEventInput struct {
	Event map[string]any `json:"event" jsonschema:"Event document with id, title, place, eventType (WORKSHOP or TECH_TALK), description and subTopics"`
}

// EventOutput is one stored event
type EventOutput struct {
	Event event.Event `json:"event"`
}

// InsertEventsInput defines input for insert_events tool
type InsertEventsInput struct {
	Events []map[string]any `json:"events" jsonschema:"Event documents to write in one bulk request"`
}

// InsertEventsOutput defines output for insert_events tool
type InsertEventsOutput struct {
	Stored   []event.Event           `json:"stored"`
	Rejected []event.ValidationError `json:"rejected,omitempty"`
}

// UpdateEventInput defines input for update_event tool
type UpdateEventInput struct {
	ID     string         `json:"id" jsonschema:"Event id"`
	Fields map[string]any `json:"fields" jsonschema:"Fields to merge into the stored event"`
}

// DeleteEventOutput defines output for delete_event tool
type DeleteEventOutput struct {
	ID     string `json:"id"`
	Result string `json:"result"`
}

// TermInput selects events by an exact field value
type TermInput struct {
	Field string `json:"field" jsonschema:"Field name: id, title, place, eventType, description or subTopics"`
	Value string `json:"value" jsonschema:"Exact value to match (not free text)"`
}

// DeleteByTermOutput defines output for delete_events_by_term tool
type DeleteByTermOutput struct {
	Deleted int64 `json:"deleted"`
}

// CountOutput defines output for count_events_by_term tool
type CountOutput struct {
	Count int64 `json:"count"`
}

func (t *EventTools) indexName(name string) string {
	if name == "" {
		return t.index
	}
	return name
}

// CreateIndex creates an index, optionally with the event mapping
func (t *EventTools) CreateIndex(ctx context.Context, req *mcp.CallToolRequest, input CreateIndexInput) (*mcp.CallToolResult, CreateIndexOutput, error) {
	repo, err := t.repository(ctx)
	if err != nil {
		return nil, CreateIndexOutput{}, err
	}
	name := t.indexName(input.Name)

	var ack bool
	if input.EventMapping {
		ack, err = repo.CreateEventIndex(ctx, name)
	} else {
		ack, err = repo.CreateIndex(ctx, name)
	}
	if err != nil {
		return nil, CreateIndexOutput{}, fmt.Errorf("create index %s: %w", name, err)
	}
	return nil, CreateIndexOutput{Index: name, Acknowledged: ack}, nil
}

func (t *EventTools) IndexExists(ctx context.Context, req *mcp.CallToolRequest, input IndexInput) (*mcp.CallToolResult, IndexExistsOutput, error) {
	repo, err := t.repository(ctx)
	if err != nil {
		return nil, IndexExistsOutput{}, err
	}
	name := t.indexName(input.Name)
	exists, err := repo.IndexExists(ctx, name)
	if err != nil {
		return nil, IndexExistsOutput{}, fmt.Errorf("check index %s: %w", name, err)
	}
	return nil, IndexExistsOutput{Index: name, Exists: exists}, nil
}

// GetEvent reports a missing event as found=false, not as an error
func (t *EventTools) GetEvent(ctx context.Context, req *mcp.CallToolRequest, input EventIDInput) (*mcp.CallToolResult, GetEventOutput, error) {
	if input.ID == "" {
		return nil, GetEventOutput{}, errors.New("id is required")
	}
	repo, err := t.repository(ctx)
	if err != nil {
		return nil, GetEventOutput{}, err
	}

	l := repo.FindEventByID(ctx, input.ID)
	switch l.Status {
	case service.StatusFound:
		return nil, GetEventOutput{Found: true, Event: &l.Event}, nil
	case service.StatusNotFound:
		return nil, GetEventOutput{}, nil
	default:
		return nil, GetEventOutput{}, fmt.Errorf("get event %s: %w", input.ID, l.Err)
	}
}

func (t *EventTools) ListEvents(ctx context.Context, req *mcp.CallToolRequest, input ListEventsInput) (*mcp.CallToolResult, EventsOutput, error) {
	repo, err := t.repository(ctx)
	if err != nil {
		return nil, EventsOutput{}, err
	}
	events, err := repo.ListEvents(ctx)
	if err != nil {
		return nil, EventsOutput{}, fmt.Errorf("list events: %w", err)
	}
	return nil, EventsOutput{Events: events, Count: len(events)}, nil
}

func (t *EventTools) InsertEvent(ctx context.Context, req *mcp.CallToolRequest, input InsertEventInput) (*mcp.CallToolResult, EventOutput, error) {
	e, err := decodeDocument(input.Event)
	if err != nil {
		return nil, EventOutput{}, err
	}
	repo, err := t.repository(ctx)
	if err != nil {
		return nil, EventOutput{}, err
	}
	stored, err := repo.SaveEvent(ctx, e)
	if err != nil {
		return nil, EventOutput{}, fmt.Errorf("insert event %s: %w", e.ID, err)
	}
	return nil, EventOutput{Event: stored}, nil
}

// InsertEvents writes the valid documents in one bulk request and reports the rest
func (t *EventTools) InsertEvents(ctx context.Context, req *mcp.CallToolRequest, input InsertEventsInput) (*mcp.CallToolResult, InsertEventsOutput, error) {
	out := InsertEventsOutput{Stored: []event.Event{}}

	valid := make([]event.Event, 0, len(input.Events))
	for _, doc := range input.Events {
		e, err := decodeDocument(doc)
		if err != nil {
			var verr *event.ValidationError
			if errors.As(err, &verr) {
				out.Rejected = append(out.Rejected, *verr)
				continue
			}
			return nil, InsertEventsOutput{}, err
		}
		valid = append(valid, e)
	}
	if len(valid) == 0 {
		return nil, out, nil
	}

	repo, err := t.repository(ctx)
	if err != nil {
		return nil, InsertEventsOutput{}, err
	}
	out.Stored, err = repo.SaveEvents(ctx, valid)
	if err != nil {
		return nil, InsertEventsOutput{}, fmt.Errorf("insert events: %w", err)
	}
	return nil, out, nil
}

func (t *EventTools) UpdateEvent(ctx context.Context, req *mcp.CallToolRequest, input UpdateEventInput) (*mcp.CallToolResult, EventOutput, error) {
	if input.ID == "" {
		return nil, EventOutput{}, errors.New("id is required")
	}
	raw, err := json.Marshal(input.Fields)
	if err != nil {
		return nil, EventOutput{}, fmt.Errorf("encode fields: %w", err)
	}
	partial, err := event.Decode(raw)
	if err != nil {
		return nil, EventOutput{}, err
	}
	if partial.Category != "" && !partial.Category.Valid() {
		return nil, EventOutput{}, fmt.Errorf("unknown eventType %q", partial.Category)
	}

	repo, err := t.repository(ctx)
	if err != nil {
		return nil, EventOutput{}, err
	}
	stored, err := repo.UpdateEvent(ctx, input.ID, partial)
	if err != nil {
		return nil, EventOutput{}, fmt.Errorf("update event %s: %w", input.ID, err)
	}
	return nil, EventOutput{Event: stored}, nil
}

func (t *EventTools) DeleteEvent(ctx context.Context, req *mcp.CallToolRequest, input EventIDInput) (*mcp.CallToolResult, DeleteEventOutput, error) {
	if input.ID == "" {
		return nil, DeleteEventOutput{}, errors.New("id is required")
	}
	repo, err := t.repository(ctx)
	if err != nil {
		return nil, DeleteEventOutput{}, err
	}
	res, err := repo.DeleteEvent(ctx, input.ID)
	if err != nil {
		return nil, DeleteEventOutput{}, fmt.Errorf("delete event %s: %w", input.ID, err)
	}
	return nil, DeleteEventOutput{ID: input.ID, Result: string(res)}, nil
}

func checkTerm(input TermInput) error {
	if input.Field == "" {
		return errors.New("field is required")
	}
	return nil
}

func (t *EventTools) DeleteEventsByTerm(ctx context.Context, req *mcp.CallToolRequest, input TermInput) (*mcp.CallToolResult, DeleteByTermOutput, error) {
	if err := checkTerm(input); err != nil {
		return nil, DeleteByTermOutput{}, err
	}
	repo, err := t.repository(ctx)
	if err != nil {
		return nil, DeleteByTermOutput{}, err
	}
	n, err := repo.DeleteEventsByTerm(ctx, input.Field, input.Value)
	if err != nil {
		return nil, DeleteByTermOutput{}, fmt.Errorf("delete events by term: %w", err)
	}
	return nil, DeleteByTermOutput{Deleted: n}, nil
}

func (t *EventTools) FindEventsByTerm(ctx context.Context, req *mcp.CallToolRequest, input TermInput) (*mcp.CallToolResult, EventsOutput, error) {
	if err := checkTerm(input); err != nil {
		return nil, EventsOutput{}, err
	}
	repo, err := t.repository(ctx)
	if err != nil {
		return nil, EventsOutput{}, err
	}
	events, err := repo.FindEventsByTerm(ctx, input.Field, input.Value)
	if err != nil {
		return nil, EventsOutput{}, fmt.Errorf("find events by term: %w", err)
	}
	return nil, EventsOutput{Events: events, Count: len(events)}, nil
}

func (t *EventTools) CountEventsByTerm(ctx context.Context, req *mcp.CallToolRequest, input TermInput) (*mcp.CallToolResult, CountOutput, error) {
	if err := checkTerm(input); err != nil {
		return nil, CountOutput{}, err
	}
	repo, err := t.repository(ctx)
	if err != nil {
		return nil, CountOutput{}, err
	}
	n, err := repo.CountEventsByTerm(ctx, input.Field, input.Value)
	if err != nil {
		return nil, CountOutput{}, fmt.Errorf("count events by term: %w", err)
	}
	return nil, CountOutput{Count: n}, nil
}

// RegisterEventTools registers the event tools on server and returns how many it added
func RegisterEventTools(server *mcp.Server, t *EventTools) int {
	var n int
	addTool(server, &n, &mcp.Tool{
		Name:        "create_index",
		Description: "Create a search index. With event_mapping, fields get exact-match keyword mappings.",
	}, t.CreateIndex)

	addTool(server, &n, &mcp.Tool{
		Name:        "index_exists",
		Description: "Check whether a search index exists",
	}, t.IndexExists)

	addTool(server, &n, &mcp.Tool{
		Name:        "get_event",
		Description: "Get one event by id. Reports found=false when it does not exist.",
	}, t.GetEvent)

	addTool(server, &n, &mcp.Tool{
		Name:        "list_events",
		Description: "List all events sorted by id, descending",
	}, t.ListEvents)

	addTool(server, &n, &mcp.Tool{
		Name:        "insert_event",
		Description: "Insert or overwrite one event and return the stored document",
	}, t.InsertEvent)

	addTool(server, &n, &mcp.Tool{
		Name:        "insert_events",
		Description: "Insert many events in one bulk request. Invalid documents are rejected individually.",
	}, t.InsertEvents)

	addTool(server, &n, &mcp.Tool{
		Name:        "update_event",
		Description: "Merge fields into an existing event and return the result",
	}, t.UpdateEvent)

	addTool(server, &n, &mcp.Tool{
		Name:        "delete_event",
		Description: "Delete one event by id",
	}, t.DeleteEvent)

	addTool(server, &n, &mcp.Tool{
		Name:        "delete_events_by_term",
		Description: "Delete every event whose field equals the given value exactly",
	}, t.DeleteEventsByTerm)

	addTool(server, &n, &mcp.Tool{
		Name:        "find_events_by_term",
		Description: "Find events whose field equals the given value exactly",
	}, t.FindEventsByTerm)

	addTool(server, &n, &mcp.Tool{
		Name:        "count_events_by_term",
		Description: "Count events whose field equals the given value exactly",
	}, t.CountEventsByTerm)

	return n
}

func addTool[In, Out any](server *mcp.Server, n *int, tool *mcp.Tool, h mcp.ToolHandlerFor[In, Out]) {
	mcp.AddTool(server, tool, h)
	*n++
}
