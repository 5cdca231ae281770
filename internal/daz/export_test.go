package daz

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/VAB-Companion/internal/assets"
)

func writeExport(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadExport(t *testing.T) {
	path := writeExport(t, `[
		{
			"sku": "90233",
			"title": "dForce Fantasy Holo Outfit",
			"artists": ["ArtistOne", "ArtistTwo"],
			"store_id": 1,
			"tags": ["fantasy"],
			"compatabilities": ["Genesis 9"],
			"content_types": ["Clothing"]
		},
		{
			"sku": "R-100",
			"title": "Renderosity Prop",
			"store_id": 3
		}
	]`)

	products, err := ReadExport(path)
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, "90233", products[0].SKU)
	assert.Equal(t, []string{"ArtistOne", "ArtistTwo"}, products[0].Artists)
	assert.Equal(t, 3, products[1].StoreID)
}

func TestReadExportRejectsMalformedJSON(t *testing.T) {
	path := writeExport(t, `{"not": "an array"`)

	_, err := ReadExport(path)
	assert.Error(t, err)
}

func TestReadExportMissingFile(t *testing.T) {
	_, err := ReadExport(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestToAsset(t *testing.T) {
	p := ExportProduct{
		SKU:             " 90233 ",
		Title:           "dForce Fantasy Holo Outfit",
		Artists:         []string{"ArtistOne"},
		StoreID:         1,
		Tags:            []string{"fantasy"},
		Compatibilities: []string{"Genesis 9"},
		ContentTypes:    []string{"Clothing"},
		Description:     "A holographic fantasy outfit.",
	}

	a := p.ToAsset()
	require.NotNil(t, a)
	assert.Equal(t, "90233", a.SKU)
	assert.Equal(t, assets.SourceOfficial, a.Source)
	assert.Equal(t, "Clothing", a.Category)
	assert.ElementsMatch(t, []string{"fantasy", "Clothing"}, a.Tags)
	assert.Equal(t, []string{"Genesis 9"}, a.CompatibleFigures)
}

func TestToAssetThirdPartyStore(t *testing.T) {
	p := ExportProduct{SKU: "R-100", Title: "Renderosity Prop", StoreID: 3}

	a := p.ToAsset()
	require.NotNil(t, a)
	assert.Equal(t, assets.SourceThirdParty, a.Source)
}

func TestToAssetWithoutSKU(t *testing.T) {
	p := ExportProduct{Title: "Orphan Entry"}
	assert.Nil(t, p.ToAsset())
}

func TestToAssetDeduplicatesContentTypeTags(t *testing.T) {
	p := ExportProduct{
		SKU:          "1",
		Title:        "Prop",
		Tags:         []string{"clothing"},
		ContentTypes: []string{"Clothing"},
	}

	a := p.ToAsset()
	require.NotNil(t, a)
	assert.Equal(t, []string{"clothing"}, a.Tags)
}
