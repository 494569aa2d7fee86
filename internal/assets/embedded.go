package assets

import (
	"embed"
)

// Embedded files:
// - Event JSON schema (document validation before writes)
// - Events index mapping (keyword fields for exact-term operations and id sorting)

//go:embed data/event.schema.json
//go:embed data/events.mapping.json
var embeddedFS embed.FS

// embeddedDataProvider implements DataProvider using embed.FS.
type embeddedDataProvider struct {
	fs embed.FS
}

// NewEmbeddedDataProvider creates a production DataProvider that uses embedded files.
func NewEmbeddedDataProvider() DataProvider {
	return &embeddedDataProvider{fs: embeddedFS}
}

// ReadFile reads the named file from the embedded filesystem.
func (p *embeddedDataProvider) ReadFile(name string) ([]byte, error) {
	return p.fs.ReadFile(name)
}

var defaultDataProvider DataProvider = NewEmbeddedDataProvider()
