package model

// DOMLocation is the coarse area of the page an edge/asset was discovered in.
type DOMLocation string

const (
	LocationNav    DOMLocation = "nav"
	LocationHeader DOMLocation = "header"
	LocationFooter DOMLocation = "footer"
	LocationMain   DOMLocation = "main"
	LocationOther  DOMLocation = "other"
)

// EdgeRecord is a directed link from a source page to a target URL.
type EdgeRecord struct {
	SourcePageID   string      `json:"source_page_id"`
	TargetURL      string      `json:"target_url"`
	TargetPageID   string      `json:"target_page_id,omitempty"`
	AnchorText     string      `json:"anchor_text,omitempty"`
	Rel            string      `json:"rel,omitempty"`
	Internal       bool        `json:"internal"`
	Location       DOMLocation `json:"dom_location"`
	DiscoveryOrder int         `json:"discovery_order"`
	RenderMode     string      `json:"discovery_render_mode"`
}

func (EdgeRecord) DatasetName() string { return "edges" }

// SortKey combines source page and discovery order per §4.6.3's
// (source page_id, DOM order of discovery) ordering.
type EdgeSortKey struct {
	SourcePageID   string
	DiscoveryOrder int
}

func (e EdgeRecord) SortKey() EdgeSortKey {
	return EdgeSortKey{SourcePageID: e.SourcePageID, DiscoveryOrder: e.DiscoveryOrder}
}

// AssetType enumerates the media/resource kinds an asset record may carry.
type AssetType string

const (
	AssetImage AssetType = "image"
	AssetVideo AssetType = "video"
	AssetAudio AssetType = "audio"
	AssetCSS   AssetType = "css"
	AssetJS    AssetType = "js"
	AssetFont  AssetType = "font"
	AssetOther AssetType = "other"
)

// AssetRecord is a media/resource reference discovered on a page.
type AssetRecord struct {
	PageID      string    `json:"page_id"`
	AssetURL    string    `json:"asset_url"`
	Type        AssetType `json:"asset_type"`
	AltText     string    `json:"alt_text,omitempty"`
	TagName     string    `json:"tag_name"`
	Size        int64     `json:"size,omitempty"`
	BodyBlobRef string    `json:"body_blob_ref,omitempty"`
}

func (AssetRecord) DatasetName() string { return "assets" }

// AssetSortKey is (page_id, asset URL) per §4.6.3.
type AssetSortKey struct {
	PageID   string
	AssetURL string
}

func (a AssetRecord) SortKey() AssetSortKey {
	return AssetSortKey{PageID: a.PageID, AssetURL: a.AssetURL}
}
