package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"storefront-api/internal/domain/catalog"
)

type productResponse struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Status   string          `json:"status"`
	Stock    int             `json:"stock"`
	Category string          `json:"category"`
	Image    string          `json:"image,omitempty"`
}

func (h *Handler) toProductResponse(p *catalog.Product) productResponse {
	image := p.ImageURL
	if image != "" && h.imageBaseURL != "" && !strings.HasPrefix(image, "http") {
		image = strings.TrimSuffix(h.imageBaseURL, "/") + "/" + strings.TrimPrefix(image, "/")
	}
	return productResponse{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price,
		Status:   string(p.Status),
		Stock:    p.Stock,
		Category: p.Category,
		Image:    image,
	}
}

// ListProducts handles GET /api/products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	resp := make([]productResponse, len(products))
	for i := range products {
		resp[i] = h.toProductResponse(&products[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetProduct handles GET /api/products/{id}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Product not found: "+id)
			return
		}
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toProductResponse(p))
}
