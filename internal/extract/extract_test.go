package extract

import (
	"testing"

	"github.com/atlascrawl/atlas/internal/privacy"
)

const samplePage = `
<html>
<head><title>Example Page</title></head>
<body>
<nav><a href="/home">Home</a></nav>
<main>
<a href="https://example.com/about" rel="nofollow">About</a>
<a href="https://external.com/page">External</a>
<img src="/logo.png" alt="logo">
<script src="/app.js"></script>
<link rel="stylesheet" href="/style.css">
</main>
</body>
</html>`

func TestExtractEdgesAndAssets(t *testing.T) {
	pe, err := Extract(samplePage, "https://example.com/", "page-1", "raw", nil)
	if err != nil {
		t.Fatal(err)
	}
	if pe.Title != "Example Page" {
		t.Errorf("title = %q", pe.Title)
	}
	if len(pe.Edges) != 3 {
		t.Fatalf("edges = %d, want 3", len(pe.Edges))
	}

	var navEdge, internalEdge, externalEdge bool
	for _, e := range pe.Edges {
		switch e.TargetURL {
		case "https://example.com/home":
			navEdge = e.Location == "nav"
		case "https://example.com/about":
			internalEdge = e.Internal
		case "https://external.com/page":
			externalEdge = !e.Internal
		}
	}
	if !navEdge {
		t.Error("expected /home edge to be classified as nav location")
	}
	if !internalEdge {
		t.Error("expected /about edge to be marked internal")
	}
	if !externalEdge {
		t.Error("expected external.com edge to be marked external")
	}

	if len(pe.Assets) != 3 {
		t.Fatalf("assets = %d, want 3 (image, script, stylesheet)", len(pe.Assets))
	}
}

func TestExtractNoindexMeta(t *testing.T) {
	page := `<html><head><meta name="robots" content="noindex,nofollow"></head><body></body></html>`
	pe, err := Extract(page, "https://example.com/", "page-1", "raw", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !pe.Noindex {
		t.Error("expected noindex to be detected")
	}
}

func TestExtractRedactsFormValues(t *testing.T) {
	page := `<html><body>
<form>
<input type="email" name="email" value="person@example.com">
<input type="hidden" name="csrf" value="abc123">
<input type="submit" value="Go">
</form>
</body></html>`

	redactor := privacy.New(privacy.Policy{RedactInputValues: true})
	pe, err := Extract(page, "https://example.com/", "page-1", "raw", redactor)
	if err != nil {
		t.Fatal(err)
	}
	if pe.FormsRedacted != 1 {
		t.Errorf("forms redacted = %d, want 1 (email field only; hidden and submit are exempt)", pe.FormsRedacted)
	}
}

func TestExtractSkipsFormScanWithoutRedactor(t *testing.T) {
	page := `<html><body><form><input type="text" name="q" value="hello"></form></body></html>`
	pe, err := Extract(page, "https://example.com/", "page-1", "raw", nil)
	if err != nil {
		t.Fatal(err)
	}
	if pe.FormsRedacted != 0 {
		t.Errorf("expected no form scanning without a redactor, got %d", pe.FormsRedacted)
	}
}
