package writer

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// datasetSchemas holds one JSON Schema document per dataset; CompileSchema
// compiles it afresh for each part writer built for that dataset.
var datasetSchemas = map[string]string{
	"pages": `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["page_id", "url", "normalized_url", "status", "captured_at"],
		"properties": {
			"page_id": {"type": "string", "minLength": 1},
			"url": {"type": "string", "minLength": 1},
			"normalized_url": {"type": "string", "minLength": 1},
			"status": {"type": "integer"}
		}
	}`,
	"edges": `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["source_page_id", "target_url"],
		"properties": {
			"source_page_id": {"type": "string", "minLength": 1},
			"target_url": {"type": "string", "minLength": 1}
		}
	}`,
	"assets": `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["page_id", "asset_url", "asset_type"],
		"properties": {
			"page_id": {"type": "string", "minLength": 1},
			"asset_url": {"type": "string", "minLength": 1}
		}
	}`,
	"errors": `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["url", "timestamp", "error_kind"],
		"properties": {
			"url": {"type": "string"},
			"error_kind": {"type": "string", "minLength": 1}
		}
	}`,
	"events": `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["timestamp", "event_code", "sequence"],
		"properties": {
			"event_code": {"type": "string", "minLength": 1},
			"sequence": {"type": "integer"}
		}
	}`,
}

// CompileSchema compiles the built-in schema for a dataset name.
func CompileSchema(datasetName string) (*jsonschema.Schema, error) {
	raw, ok := datasetSchemas[datasetName]
	if !ok {
		return nil, fmt.Errorf("writer: no schema registered for dataset %q", datasetName)
	}
	c := jsonschema.NewCompiler()
	resourceURL := "mem://schemas/" + datasetName + ".json"
	if err := c.AddResource(resourceURL, strings.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("writer: add schema resource %q: %w", datasetName, err)
	}
	schema, err := c.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("writer: compile schema %q: %w", datasetName, err)
	}
	return schema, nil
}

// SchemaPath returns the path a dataset's schema would be written to inside
// the archive, for the manifest's dataset metadata.
func SchemaPath(datasetName string) string {
	return fmt.Sprintf("schemas/%s.schema.json", datasetName)
}

// SchemaDocument returns the raw schema text for a dataset, for writing into
// the archive alongside the compressed parts.
func SchemaDocument(datasetName string) (string, bool) {
	doc, ok := datasetSchemas[datasetName]
	return doc, ok
}
