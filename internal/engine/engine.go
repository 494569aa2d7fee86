// Package engine defines the operations the event service needs from a
// search engine. Implementations live in the elastic (HTTP) and embedded
// (bleve) sub-packages.
package engine

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the document does not exist
	ErrNotFound = errors.New("document not found")

	// ErrIndexNotFound is returned when an operation targets a missing index
	ErrIndexNotFound = errors.New("index not found")

	// ErrUnsupported is returned for operations an engine cannot perform
	ErrUnsupported = errors.New("operation not supported by engine")
)

// Result is the outcome of a single document write as reported by the engine
type Result string

const (
	ResultCreated  Result = "created"
	ResultUpdated  Result = "updated"
	ResultDeleted  Result = "deleted"
	ResultNoop     Result = "noop"
	ResultNotFound Result = "not_found"
)

// Op is a bulk action
type Op string

const (
	OpIndex  Op = "index"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Term is an exact-term match on one field. String fields mapped as text
// are matched through their "<field>.keyword" sub-field.
type Term struct {
	Field string
	Value string
}

// KeywordField is the name of the exact-match sub-field of a text field
func (t Term) KeywordField() string {
	return t.Field + ".keyword"
}

// SortField orders search hits by a field value
type SortField struct {
	Field string
	Desc  bool
}

// Query selects documents from one index. A nil Term matches everything.
type Query struct {
	Term *Term
	Sort []SortField
	Size int // 0 means the engine default
}

// Hit is a document returned by Search
type Hit struct {
	ID     string
	Source json.RawMessage
}

// BulkItem is one action of a bulk request
type BulkItem struct {
	Op  Op
	ID  string
	Doc []byte // nil for deletes
}

// BulkItemResult is the per-item outcome of a bulk request, in response order
type BulkItemResult struct {
	Op     Op
	ID     string
	Result Result
	Status int
	Err    error
}

// Succeeded reports whether the item was written
func (r BulkItemResult) Succeeded() bool {
	return r.Err == nil && r.Status < 300
}

// Engine is the search engine client used by the event service.
// All calls block until the engine answers.
type Engine interface {
	// CreateIndex creates an index; body holds optional settings and mappings
	CreateIndex(ctx context.Context, name string, body []byte) (bool, error)

	IndexExists(ctx context.Context, name string) (bool, error)

	// PutMapping adds field mappings ({"properties": ...}) to an index
	PutMapping(ctx context.Context, name string, mapping []byte) (bool, error)

	// Get returns the source of a document or ErrNotFound
	Get(ctx context.Context, index, id string) (json.RawMessage, error)

	Search(ctx context.Context, index string, q Query) ([]Hit, error)

	// Index writes a full document, replacing any existing one with the same id
	Index(ctx context.Context, index, id string, doc []byte) (Result, error)

	Bulk(ctx context.Context, index string, items []BulkItem) ([]BulkItemResult, error)

	// Update merges a partial document into an existing one
	Update(ctx context.Context, index, id string, partial []byte) (Result, error)

	Delete(ctx context.Context, index, id string) (Result, error)

	DeleteByQuery(ctx context.Context, index string, t Term) (int64, error)

	Count(ctx context.Context, index string, t Term) (int64, error)

	// Refresh makes recent writes visible to search
	Refresh(ctx context.Context, index string) error

	Close() error
}
