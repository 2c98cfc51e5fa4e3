package catalog

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront-cart/internal/cart"
	"github.com/noah-isme/storefront-cart/internal/common"
	"github.com/noah-isme/storefront-cart/internal/pricing"
)

// ProductListItem is a product as shown on a product card.
type ProductListItem struct {
	cart.Product
	PriceRange pricing.PriceRange `json:"priceRange"`
	InStock    bool               `json:"inStock"`
}

func toListItem(p cart.Product) ProductListItem {
	return ProductListItem{Product: p, PriceRange: p.PriceRange(), InStock: p.MaxStock > 0}
}

// Handler exposes read-only product browsing endpoints.
type Handler struct {
	products    *Static
	lookup      cart.ProductLookup
	defaultPage int
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Products *Static
	// Lookup resolves single products; defaults to Products.
	Lookup         cart.ProductLookup
	DefaultPerPage int
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{products: cfg.Products, lookup: cfg.Lookup, defaultPage: cfg.DefaultPerPage}
	if h.lookup == nil && cfg.Products != nil {
		h.lookup = cfg.Products
	}
	if h.defaultPage <= 0 {
		h.defaultPage = 20
	}
	return h
}

// Products handles GET /api/v1/products with an optional q filter.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if h.products == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	query := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	var matched []ProductListItem
	for _, p := range h.products.List() {
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) && !strings.Contains(p.ID, query) {
			continue
		}
		matched = append(matched, toListItem(p))
	}
	page, perPage := common.ParsePagination(r, h.defaultPage)
	start, end := common.PageBounds(page, perPage, len(matched))
	items := matched[start:end]
	if items == nil {
		items = []ProductListItem{}
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: len(matched)},
	})
}

// Product handles GET /api/v1/products/{id}.
func (h *Handler) Product(w http.ResponseWriter, r *http.Request) {
	if h.lookup == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	p, err := h.lookup.Product(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toListItem(p)})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, cart.ErrUnknownProduct) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
		return
	}
	common.WriteError(w, err)
}
