package writer

import (
	"fmt"

	"github.com/atlascrawl/atlas/internal/model"
)

// formatVersion is the version tag in every dataset's directory and part
// file names (<dataset>.v1/<dataset>.v1_part_NNN.jsonl.zst) and in its
// metadata.
const formatVersion = "v1"

func pageSortKey(p model.PageRecord) string { return p.SortKey() }

func edgeSortKey(e model.EdgeRecord) string {
	k := e.SortKey()
	return fmt.Sprintf("%s\x00%020d", k.SourcePageID, k.DiscoveryOrder)
}

func assetSortKey(a model.AssetRecord) string {
	k := a.SortKey()
	return fmt.Sprintf("%s\x00%s", k.PageID, k.AssetURL)
}

func errorSortKey(e model.ErrorRecord) string {
	k := e.SortKey()
	return fmt.Sprintf("%s\x00%s", k.Timestamp.UTC().Format("20060102150405.000000000"), k.URL)
}

func eventSortKey(e model.EventRecord) string {
	k := e.SortKey()
	return fmt.Sprintf("%s\x00%020d", k.Timestamp.UTC().Format("20060102150405.000000000"), k.Sequence)
}

// NewPageWriter builds the part writer for the pages dataset. outDir is the
// archive root the dataset's own versioned subdirectory is created under;
// if it already holds parts or pending runs from a prior session, the
// writer resumes from them (§4.8).
func NewPageWriter(outDir string) (*PartWriter[model.PageRecord], error) {
	schema, err := CompileSchema("pages")
	if err != nil {
		return nil, err
	}
	return NewPartWriter("pages", formatVersion, outDir, schema, pageSortKey)
}

// NewEdgeWriter builds the part writer for the edges dataset.
func NewEdgeWriter(outDir string) (*PartWriter[model.EdgeRecord], error) {
	schema, err := CompileSchema("edges")
	if err != nil {
		return nil, err
	}
	return NewPartWriter("edges", formatVersion, outDir, schema, edgeSortKey)
}

// NewAssetWriter builds the part writer for the assets dataset.
func NewAssetWriter(outDir string) (*PartWriter[model.AssetRecord], error) {
	schema, err := CompileSchema("assets")
	if err != nil {
		return nil, err
	}
	return NewPartWriter("assets", formatVersion, outDir, schema, assetSortKey)
}

// NewErrorWriter builds the part writer for the errors dataset.
func NewErrorWriter(outDir string) (*PartWriter[model.ErrorRecord], error) {
	schema, err := CompileSchema("errors")
	if err != nil {
		return nil, err
	}
	return NewPartWriter("errors", formatVersion, outDir, schema, errorSortKey)
}

// NewEventWriter builds the part writer for the events dataset.
func NewEventWriter(outDir string) (*PartWriter[model.EventRecord], error) {
	schema, err := CompileSchema("events")
	if err != nil {
		return nil, err
	}
	return NewPartWriter("events", formatVersion, outDir, schema, eventSortKey)
}
