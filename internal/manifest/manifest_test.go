package manifest

import (
	"testing"

	"github.com/atlascrawl/atlas/internal/model"
)

func TestBuilderFinalizeProducesVerifiableAudit(t *testing.T) {
	b := NewBuilder("crawl-1", "atlascrawl/test", []string{"https://example.com/"})
	b.SetCrawlProfile("prerender", "html")
	b.SetDataset(model.DatasetMetadata{
		Name:        "pages",
		RecordCount: 3,
		Parts:       []model.PartInfo{{Sequence: 0, SHA256: "aaa"}},
	})
	b.UpdateStats(model.SchedulerStats{PagesCrawled: 3})

	m := b.Finalize(0)

	if m.AuditSHA256 == "" {
		t.Fatal("expected a non-empty audit hash")
	}
	if !Verify(m) {
		t.Error("expected a freshly built manifest to verify")
	}
	if !m.Capabilities.Has(model.CapSEOCore) {
		t.Error("expected seo.core capability to be derived from the non-empty pages dataset")
	}
	if !m.Capabilities.Has(model.CapRenderDOM) {
		t.Error("expected render.dom capability to be derived from the prerender render mode")
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	b := NewBuilder("crawl-1", "atlascrawl/test", []string{"https://example.com/"})
	b.SetDataset(model.DatasetMetadata{
		Name:        "pages",
		RecordCount: 1,
		Parts:       []model.PartInfo{{Sequence: 0, SHA256: "aaa"}},
	})
	m := b.Finalize(0)

	m.Datasets[0].Parts[0].SHA256 = "tampered" // a part's hash no longer matches what was audited
	if Verify(m) {
		t.Error("expected tampered manifest to fail verification")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder("crawl-1", "atlascrawl/test", []string{"https://example.com/"})
	b.SetDataset(model.DatasetMetadata{Name: "pages", RecordCount: 1})
	m := b.Finalize(0)

	if err := Save(dir, m); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.AuditSHA256 != m.AuditSHA256 {
		t.Error("loaded manifest audit hash does not match saved one")
	}
	if !Verify(loaded) {
		t.Error("expected loaded manifest to verify")
	}
}
