// Package daz integrates with a local DAZ Studio installation: parsing the
// product metadata export, enriching records from the store's slab API, and
// launching Studio to open a product in the content library.
package daz

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ramonehamilton/VAB-Companion/internal/assets"
)

// Store IDs as they appear in the Studio metadata export.
const (
	storeDAZ = 1
)

// ExportProduct is one entry of the products.json export written by the
// Studio metadata script.
type ExportProduct struct {
	SKU             string   `json:"sku"`
	Title           string   `json:"title"`
	Artists         []string `json:"artists"`
	StoreID         int      `json:"store_id"`
	URL             string   `json:"url"`
	ImageURL        string   `json:"image_url"`
	Mature          bool     `json:"mature"`
	Description     string   `json:"description"`
	Tags            []string `json:"tags"`
	Compatibilities []string `json:"compatabilities"`
	ContentTypes    []string `json:"content_types"`
}

// ReadExport parses a products.json metadata export.
func ReadExport(path string) ([]ExportProduct, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read export file: %w", err)
	}

	var products []ExportProduct
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("failed to parse export file: %w", err)
	}

	return products, nil
}

// ToAsset converts an export entry to a catalog record. Entries without a
// SKU are not addressable and convert to nil.
func (p ExportProduct) ToAsset() *assets.Asset {
	sku := strings.TrimSpace(p.SKU)
	if sku == "" {
		return nil
	}

	source := assets.SourceThirdParty
	if p.StoreID == storeDAZ {
		source = assets.SourceOfficial
	}

	// The export keeps the content type separate from the curated tags.
	// Both describe the product, so both feed the tag list.
	tags := append([]string{}, p.Tags...)
	for _, ct := range p.ContentTypes {
		if ct != "" && !containsFold(tags, ct) {
			tags = append(tags, ct)
		}
	}

	category := ""
	if len(p.ContentTypes) > 0 {
		category = p.ContentTypes[0]
	}

	return &assets.Asset{
		SKU:               sku,
		Name:              strings.TrimSpace(p.Title),
		Artists:           p.Artists,
		Category:          category,
		Tags:              tags,
		CompatibleFigures: p.Compatibilities,
		Description:       p.Description,
		URL:               p.URL,
		ImageURL:          p.ImageURL,
		Mature:            p.Mature,
		Source:            source,
	}
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}
