package event

const (
	// DefaultIndex is the index every event operation targets unless configured otherwise
	DefaultIndex = "events"

	// FieldID is the document field mirroring the engine document ID; sort key for listings
	FieldID = "id"

	FieldTitle       = "title"
	FieldPlace       = "place"
	FieldCategory    = "eventType"
	FieldDescription = "description"
	FieldSubTopics   = "subTopics"
)
