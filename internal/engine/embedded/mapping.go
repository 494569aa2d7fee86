package embedded

import (
	"encoding/json"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// sourceField stores the original JSON document; it is never indexed
const sourceField = "rawSource"

// fieldSpec is the subset of an Elasticsearch field mapping we understand
type fieldSpec struct {
	Type   string               `json:"type"`
	Fields map[string]fieldSpec `json:"fields"`
}

type mappingBody struct {
	Mappings *struct {
		Properties map[string]fieldSpec `json:"properties"`
	} `json:"mappings"`
	Properties map[string]fieldSpec `json:"properties"`
}

// parseProperties accepts a create-index body ({"mappings": {"properties": ...}})
// or a put-mapping body ({"properties": ...})
func parseProperties(body []byte) (map[string]fieldSpec, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var mb mappingBody
	if err := json.Unmarshal(body, &mb); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}
	if mb.Mappings != nil && mb.Mappings.Properties != nil {
		return mb.Mappings.Properties, nil
	}
	return mb.Properties, nil
}

// buildMapping turns field specs into a bleve mapping. Unmapped strings are
// keyword-analyzed so term operations match exact values.
func buildMapping(props map[string]fieldSpec) (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = keyword.Name
	im.StoreDynamic = false

	doc := bleve.NewDocumentMapping()

	for name, spec := range props {
		fm, err := fieldMapping(spec.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		fms := []*mapping.FieldMapping{fm}

		for subName, sub := range spec.Fields {
			subFM, err := fieldMapping(sub.Type)
			if err != nil {
				return nil, fmt.Errorf("field %s.%s: %w", name, subName, err)
			}
			subFM.Name = name + "." + subName
			fms = append(fms, subFM)
		}
		doc.AddFieldMappingsAt(name, fms...)
	}

	src := bleve.NewTextFieldMapping()
	src.Index = false
	src.Store = true
	src.IncludeInAll = false
	src.IncludeTermVectors = false
	src.DocValues = false
	doc.AddFieldMappingsAt(sourceField, src)

	im.DefaultMapping = doc
	return im, nil
}

func fieldMapping(esType string) (*mapping.FieldMapping, error) {
	switch esType {
	case "keyword":
		fm := bleve.NewKeywordFieldMapping()
		fm.Store = false
		return fm, nil
	case "text", "":
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = standard.Name
		fm.Store = false
		return fm, nil
	case "long", "integer", "short", "byte", "double", "float":
		fm := bleve.NewNumericFieldMapping()
		fm.Store = false
		return fm, nil
	case "boolean":
		fm := bleve.NewBooleanFieldMapping()
		fm.Store = false
		return fm, nil
	case "date":
		fm := bleve.NewDateTimeFieldMapping()
		fm.Store = false
		return fm, nil
	default:
		return nil, fmt.Errorf("unsupported field type %q", esType)
	}
}
