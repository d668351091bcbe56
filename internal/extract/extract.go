// Package extract implements the extractor set (§4.5): pure functions that
// turn a captured page's HTML into edge and asset records. It generalizes
// the teacher's URLExtractor, which mutated a shared URLQueue as a side
// effect, into functions that return records for the caller (the
// scheduler) to push onto the frontier and dataset writer itself.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kennygrant/sanitize"

	"github.com/atlascrawl/atlas/internal/model"
	"github.com/atlascrawl/atlas/internal/privacy"
	"github.com/atlascrawl/atlas/internal/urlnorm"
)

// PageExtract is everything the extractor set pulls out of one page.
type PageExtract struct {
	Title         string
	Edges         []model.EdgeRecord
	Assets        []model.AssetRecord
	Noindex       bool
	FormsRedacted int
}

var assetTagTypes = map[string]model.AssetType{
	"img":    model.AssetImage,
	"video":  model.AssetVideo,
	"audio":  model.AssetAudio,
	"source": model.AssetOther,
}

// Extract parses htmlContent and returns every outbound link and media
// asset it finds, resolved against baseURL and classified by DOM location.
// redactor applies the privacy policy to any form input values encountered;
// pass nil to skip form scanning entirely.
func Extract(htmlContent, baseURL, pageID, renderMode string, redactor *privacy.Redactor) (*PageExtract, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, err
	}

	out := &PageExtract{Title: cleanText(doc.Find("title").First().Text())}
	out.Noindex = hasNoindexMeta(doc)

	order := 0
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		absolute, err := urlnorm.Resolve(baseURL, href)
		if err != nil || absolute == "" {
			return
		}
		rel, _ := sel.Attr("rel")
		internal := sameHost(baseURL, absolute)

		out.Edges = append(out.Edges, model.EdgeRecord{
			SourcePageID:   pageID,
			TargetURL:      absolute,
			AnchorText:     cleanText(sel.Text()),
			Rel:            rel,
			Internal:       internal,
			Location:       domLocation(sel),
			DiscoveryOrder: order,
			RenderMode:     renderMode,
		})
		order++
	})

	for tag, assetType := range assetTagTypes {
		attr := "src"
		doc.Find(tag + "[" + attr + "]").Each(func(_ int, sel *goquery.Selection) {
			src, _ := sel.Attr(attr)
			absolute, err := urlnorm.Resolve(baseURL, src)
			if err != nil || absolute == "" {
				return
			}
			alt, _ := sel.Attr("alt")
			out.Assets = append(out.Assets, model.AssetRecord{
				PageID:   pageID,
				AssetURL: absolute,
				Type:     assetType,
				AltText:  cleanText(alt),
				TagName:  tag,
			})
		})
	}

	doc.Find("link[rel='stylesheet']").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		absolute, err := urlnorm.Resolve(baseURL, href)
		if err != nil || absolute == "" {
			return
		}
		out.Assets = append(out.Assets, model.AssetRecord{
			PageID:   pageID,
			AssetURL: absolute,
			Type:     model.AssetCSS,
			TagName:  "link",
		})
	})

	doc.Find("script[src]").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		absolute, err := urlnorm.Resolve(baseURL, src)
		if err != nil || absolute == "" {
			return
		}
		out.Assets = append(out.Assets, model.AssetRecord{
			PageID:   pageID,
			AssetURL: absolute,
			Type:     model.AssetJS,
			TagName:  "script",
		})
	})

	if redactor != nil {
		out.FormsRedacted = scanForms(doc, redactor)
	}

	return out, nil
}

// scanForms counts form input values the privacy policy would redact,
// without retaining the values themselves anywhere in the extract.
func scanForms(doc *goquery.Document, redactor *privacy.Redactor) int {
	redactedCount := 0
	doc.Find("form").Each(func(_ int, form *goquery.Selection) {
		form.Find("input, textarea").Each(func(_ int, field *goquery.Selection) {
			value, ok := field.Attr("value")
			if !ok || value == "" {
				return
			}
			fieldType, _ := field.Attr("type")
			if _, wasRedacted := redactor.RedactValue(fieldType, value); wasRedacted {
				redactedCount++
			}
		})
	})
	return redactedCount
}

// cleanText strips any stray markup that survived goquery's own text
// extraction (alt attributes in particular are raw attribute values, not
// parsed text nodes, so a page author can smuggle tags into them) and
// collapses accented characters some feeds mis-encode.
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return strings.TrimSpace(sanitize.Accents(sanitize.HTML(s)))
}

func hasNoindexMeta(doc *goquery.Document) bool {
	found := false
	doc.Find("meta[name='robots']").Each(func(_ int, sel *goquery.Selection) {
		content, _ := sel.Attr("content")
		if strings.Contains(strings.ToLower(content), "noindex") {
			found = true
		}
	})
	return found
}

// domLocation walks a selection's ancestors to classify where in the page
// layout it was found.
func domLocation(sel *goquery.Selection) model.DOMLocation {
	for _, ancestor := range []struct {
		tag      string
		location model.DOMLocation
	}{
		{"nav", model.LocationNav},
		{"header", model.LocationHeader},
		{"footer", model.LocationFooter},
		{"main", model.LocationMain},
	} {
		if sel.ParentsFiltered(ancestor.tag).Length() > 0 {
			return ancestor.location
		}
	}
	return model.LocationOther
}

func sameHost(baseURL, target string) bool {
	baseHost, err1 := urlnorm.Host(baseURL)
	targetHost, err2 := urlnorm.Host(target)
	if err1 != nil || err2 != nil {
		return false
	}
	return baseHost == targetHost
}
