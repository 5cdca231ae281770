// Package assets defines the catalog's asset record model and the canonical
// text representation used as embedding input.
package assets

import "time"

// SourceKind identifies where a product was purchased or installed from.
type SourceKind int

const (
	SourceUnknown    SourceKind = iota
	SourceOfficial              // DAZ store products
	SourceThirdParty            // Renderosity, Renderhub, manual installs, etc.
)

func (sk SourceKind) String() string {
	switch sk {
	case SourceOfficial:
		return "official"
	case SourceThirdParty:
		return "third-party"
	default:
		return "unknown"
	}
}

// Asset represents one installed or purchased content product.
//
// SKU is the stable identity: unique across the catalog and preserved across
// index rebuilds. Optional fields are left zero-valued when absent; the
// normalizer omits them entirely rather than rendering empty placeholders.
type Asset struct {
	SKU               string     `json:"sku"`
	Name              string     `json:"name"`
	Artists           []string   `json:"artists,omitempty"` // order-preserving
	Category          string     `json:"category,omitempty"`
	Tags              []string   `json:"tags,omitempty"`
	CompatibleFigures []string   `json:"compatible_figures,omitempty"`
	Description       string     `json:"description,omitempty"`
	URL               string     `json:"url,omitempty"`
	ImageURL          string     `json:"image_url,omitempty"`
	Mature            bool       `json:"mature,omitempty"`
	Source            SourceKind `json:"source"`
	ContentHash       string     `json:"content_hash"`
	LastUpdated       time.Time  `json:"last_updated"`
	EnrichedAt        *time.Time `json:"enriched_at,omitempty"`
}
