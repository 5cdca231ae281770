package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ramonehamilton/VAB-Companion/internal/api/response"
	"github.com/ramonehamilton/VAB-Companion/internal/assets"
)

// ProductStore looks up asset records by SKU.
type ProductStore interface {
	GetAsset(ctx context.Context, sku string) (*assets.Asset, error)
}

// ProductOpener opens a product in DAZ Studio's content library.
type ProductOpener interface {
	OpenProduct(ctx context.Context, sku string) error
}

// ProductHandler handles single-product requests.
type ProductHandler struct {
	store  ProductStore
	opener ProductOpener
}

// NewProductHandler creates a new product handler. The opener may be nil
// when no Studio installation is configured.
func NewProductHandler(store ProductStore, opener ProductOpener) *ProductHandler {
	return &ProductHandler{store: store, opener: opener}
}

// GetProduct handles GET /api/v1/products/{sku}.
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")

	asset, err := h.store.GetAsset(r.Context(), sku)
	if err != nil {
		response.InternalError(w, err)
		return
	}
	if asset == nil {
		response.NotFound(w, fmt.Errorf("no product with SKU %s", sku))
		return
	}

	response.Success(w, asset)
}

// OpenProduct handles POST /api/v1/products/{sku}/open.
func (h *ProductHandler) OpenProduct(w http.ResponseWriter, r *http.Request) {
	if h.opener == nil {
		response.ServiceUnavailable(w, fmt.Errorf("DAZ Studio is not configured"))
		return
	}

	sku := chi.URLParam(r, "sku")

	asset, err := h.store.GetAsset(r.Context(), sku)
	if err != nil {
		response.InternalError(w, err)
		return
	}
	if asset == nil {
		response.NotFound(w, fmt.Errorf("no product with SKU %s", sku))
		return
	}

	if err := h.opener.OpenProduct(r.Context(), sku); err != nil {
		response.InternalError(w, err)
		return
	}

	response.Success(w, map[string]string{"sku": sku, "status": "opened"})
}
