package assets

// DataProvider reads the data files shipped with the server. Any fs.ReadFileFS,
// such as fstest.MapFS, satisfies it.
type DataProvider interface {
	// ReadFile reads the named file and returns its contents.
	// The name is relative to the data root (e.g., "data/event.schema.json").
	ReadFile(name string) ([]byte, error)
}

const (
	EventSchemaFile   = "data/event.schema.json"
	EventsMappingFile = "data/events.mapping.json"

	// EventSchemaURL is the $id of the embedded event schema
	EventSchemaURL = "https://eventsearch.dev/schema/event.json"
)

// EventSchema returns the JSON schema for event documents
func EventSchema() ([]byte, error) {
	return defaultDataProvider.ReadFile(EventSchemaFile)
}

// EventsMapping returns the create-index body (settings and mappings) for the events index
func EventsMapping() ([]byte, error) {
	return defaultDataProvider.ReadFile(EventsMappingFile)
}

// Use makes p the source of EventSchema and EventsMapping until the returned
// restore func is called
func Use(p DataProvider) (restore func()) {
	prev := defaultDataProvider
	defaultDataProvider = p
	return func() { defaultDataProvider = prev }
}
