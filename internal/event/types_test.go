package event_test

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/eventsearch/mcp-server/internal/event"
)

func TestNewAppliesOptions(t *testing.T) {
	e := event.New("1",
		event.WithTitle("Spring tutorial"),
		event.WithCategory(event.Workshop),
		event.WithPlace("Zoom"),
		event.WithDescription("Spring boot tutorial"),
		event.WithSubTopics("Java", "Spring"),
	)

	want := event.Event{
		ID:          "1",
		Title:       "Spring tutorial",
		Place:       "Zoom",
		Category:    event.Workshop,
		Description: "Spring boot tutorial",
		SubTopics:   event.StringList{"Java", "Spring"},
	}
	if !reflect.DeepEqual(e, want) {
		t.Errorf("New() = %+v, want %+v", e, want)
	}
}

func TestEventJSONFieldNames(t *testing.T) {
	e := event.New("2", event.WithTitle("Ruby tutorial"), event.WithCategory(event.TechTalk), event.WithSubTopics("Ruby"))

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	got := string(data)
	want := `{"id":"2","title":"Ruby tutorial","eventType":"TECH_TALK","subTopics":["Ruby"]}`
	if got != want {
		t.Errorf("Marshal() = %s, want %s", got, want)
	}
}

func TestPartialEventOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(event.Event{Title: "Only title"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"title":"Only title"}` {
		t.Errorf("Partial event = %s, want only the title", string(data))
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    event.Event
		wantErr bool
	}{
		{
			name:  "full document",
			input: `{"id":"3","title":"React tutorial","place":"Teams","eventType":"WORKSHOP","description":"React tutorial","subTopics":["React","Web"]}`,
			want: event.Event{
				ID: "3", Title: "React tutorial", Place: "Teams", Category: event.Workshop,
				Description: "React tutorial", SubTopics: event.StringList{"React", "Web"},
			},
		},
		{
			name:  "unknown fields are ignored",
			input: `{"id":"4","speaker":"someone","capacity":30}`,
			want:  event.Event{ID: "4"},
		},
		{
			name:  "single sub-topic accepted as array",
			input: `{"id":"5","subTopics":"Go"}`,
			want:  event.Event{ID: "5", SubTopics: event.StringList{"Go"}},
		},
		{
			name:  "null sub-topics",
			input: `{"id":"6","subTopics":null}`,
			want:  event.Event{ID: "6"},
		},
		{
			name:    "malformed",
			input:   `{"id":`,
			wantErr: true,
		},
		{
			name:    "wrong sub-topic type",
			input:   `{"id":"7","subTopics":42}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := event.Decode([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decode() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    event.Category
		wantErr bool
	}{
		{in: "WORKSHOP", want: event.Workshop},
		{in: "workshop", want: event.Workshop},
		{in: "tech-talk", want: event.TechTalk},
		{in: "TECH_TALK", want: event.TechTalk},
		{in: "meetup", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := event.ParseCategory(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCategory(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseCategory(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCategoryLabel(t *testing.T) {
	if event.Workshop.Label() != "workshop" {
		t.Errorf("Workshop label = %q", event.Workshop.Label())
	}
	if event.TechTalk.Label() != "tech-talk" {
		t.Errorf("TechTalk label = %q", event.TechTalk.Label())
	}
}

func TestEventString(t *testing.T) {
	s := event.New("1", event.WithTitle("Spring tutorial"), event.WithSubTopics("Java", "Spring")).String()
	for _, part := range []string{`id="1"`, `title="Spring tutorial"`, "[Java Spring]"} {
		if !strings.Contains(s, part) {
			t.Errorf("String() = %s, missing %s", s, part)
		}
	}
}
