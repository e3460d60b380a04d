package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atendai/conversation-pipeline/internal/middleware"
	"github.com/atendai/conversation-pipeline/internal/model"
	"github.com/atendai/conversation-pipeline/internal/store"
	"github.com/atendai/conversation-pipeline/pkg/logger"
)

// ProductHandler manages the catalog the product-search tool queries.
type ProductHandler struct {
	store  *store.Store
	logger *logger.Logger
}

// NewProductHandler creates a new product handler.
func NewProductHandler(st *store.Store, log *logger.Logger) *ProductHandler {
	return &ProductHandler{
		store:  st,
		logger: log,
	}
}

type createProductRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Color       string  `json:"color"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	ImageURL    string  `json:"image_url,omitempty"`
}

// Create handles POST /api/v1/products
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())

	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	p := &model.Product{
		ID:          uuid.Must(uuid.NewV7()).String(),
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
		Price:       req.Price,
		Stock:       req.Stock,
		ImageURL:    req.ImageURL,
	}
	if err := h.store.CreateProduct(r.Context(), p); err != nil {
		h.logger.Error("product create failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create product")
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// List handles GET /api/v1/products
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())

	products, err := h.store.ListProducts(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("product list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"products": products,
	})
}
