package event

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Category is the kind of event
type Category string

const (
	Workshop Category = "WORKSHOP"
	TechTalk Category = "TECH_TALK"
)

var categoryLabels = map[Category]string{
	Workshop: "workshop",
	TechTalk: "tech-talk",
}

// Label returns the human readable name of the category ("workshop", "tech-talk")
func (c Category) Label() string {
	return categoryLabels[c]
}

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// ParseCategory accepts either the enum name or the label, case-insensitively
func ParseCategory(s string) (Category, error) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	c := Category(norm)
	if !c.Valid() {
		return "", fmt.Errorf("unknown event category %q", s)
	}
	return c, nil
}

// Event is an event document stored in the search engine.
// Every field is optional on the wire so a partially filled Event
// serializes to a partial document usable for merge updates.
type Event struct {
	ID          string     `json:"id,omitempty"` // Engine document ID, stable across writes
	Title       string     `json:"title,omitempty"`
	Place       string     `json:"place,omitempty"`
	Category    Category   `json:"eventType,omitempty"` // WORKSHOP or TECH_TALK
	Description string     `json:"description,omitempty"`
	SubTopics   StringList `json:"subTopics,omitempty"` // Ordered list of sub-topics
}

// Option sets a field on a new Event
type Option func(*Event)

func WithTitle(title string) Option      { return func(e *Event) { e.Title = title } }
func WithPlace(place string) Option      { return func(e *Event) { e.Place = place } }
func WithCategory(c Category) Option     { return func(e *Event) { e.Category = c } }
func WithDescription(desc string) Option { return func(e *Event) { e.Description = desc } }

func WithSubTopics(topics ...string) Option {
	return func(e *Event) { e.SubTopics = append(StringList(nil), topics...) }
}

// New returns an Event with the given id and options applied
func New(id string, opts ...Option) Event {
	e := Event{ID: id}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

func (e Event) String() string {
	return fmt.Sprintf("Event{id=%q, title=%q, place=%q, eventType=%s, description=%q, subTopics=%v}",
		e.ID, e.Title, e.Place, e.Category, e.Description, []string(e.SubTopics))
}

// Decode parses a stored document. Unknown fields are ignored.
func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}

// StringList is a list of strings that also accepts a single string on decode
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*l = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*l = StringList{single}
	return nil
}
