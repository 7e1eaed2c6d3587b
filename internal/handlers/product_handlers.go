package handlers

import (
	"net/http"

	"github.com/farmlink/farmlink/internal/apperr"
	"github.com/farmlink/farmlink/internal/middleware"
	"github.com/farmlink/farmlink/internal/models"
	"github.com/farmlink/farmlink/internal/service"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type ProductHandlers struct {
	products     *service.ProductService
	media        *service.MediaResolver
	maxBodyBytes int64
	logger       *logrus.Logger
}

func NewProductHandlers(
	products *service.ProductService,
	media *service.MediaResolver,
	maxBodyBytes int64,
	logger *logrus.Logger,
) *ProductHandlers {
	return &ProductHandlers{
		products:     products,
		media:        media,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

type ProductRequest struct {
	Name        string   `json:"name" validate:"required,max=120"`
	Description string   `json:"description" validate:"max=2000"`
	Category    string   `json:"category" validate:"required,max=50"`
	Price       float64  `json:"price" validate:"gte=0"`
	Unit        string   `json:"unit" validate:"required,max=20"`
	Quantity    int      `json:"quantity" validate:"gte=0"`
	Images      []string `json:"images" validate:"max=5,dive,max=2048"`
	IsAvailable *bool    `json:"is_available"`
}

func (req ProductRequest) input() service.ProductInput {
	return service.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Unit:        req.Unit,
		Quantity:    req.Quantity,
		Images:      req.Images,
		IsAvailable: req.IsAvailable,
	}
}

type ProductResponse struct {
	Success bool           `json:"success"`
	Data    models.Product `json:"data"`
}

type ProductListResponse struct {
	Success bool             `json:"success"`
	Count   int              `json:"count"`
	Data    []models.Product `json:"data"`
}

func (h *ProductHandlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products, err := h.products.List(r.Context(), models.ProductFilter{
		Category: q.Get("category"),
		FarmerID: q.Get("farmer"),
	})
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	media := h.media.ForRequest(r)
	for i := range products {
		products[i] = media.Product(products[i])
	}

	respondWithJSON(w, http.StatusOK, ProductListResponse{
		Success: true,
		Count:   len(products),
		Data:    products,
	})
}

func (h *ProductHandlers) Get(w http.ResponseWriter, r *http.Request) {
	product, err := h.products.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	h.respondProduct(w, r, http.StatusOK, product)
}

func (h *ProductHandlers) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		respondWithError(w, h.logger, apperr.Unauthorized("Invalid token"))
		return
	}

	var req ProductRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	product, err := h.products.Create(r.Context(), actor, req.input())
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	h.respondProduct(w, r, http.StatusCreated, product)
}

func (h *ProductHandlers) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		respondWithError(w, h.logger, apperr.Unauthorized("Invalid token"))
		return
	}

	var req ProductRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	product, err := h.products.Update(r.Context(), actor, mux.Vars(r)["id"], req.input())
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	h.respondProduct(w, r, http.StatusOK, product)
}

func (h *ProductHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		respondWithError(w, h.logger, apperr.Unauthorized("Invalid token"))
		return
	}

	if err := h.products.Delete(r.Context(), actor, mux.Vars(r)["id"]); err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Product deleted"})
}

func (h *ProductHandlers) respondProduct(w http.ResponseWriter, r *http.Request, status int, product *models.Product) {
	respondWithJSON(w, status, ProductResponse{
		Success: true,
		Data:    h.media.ForRequest(r).Product(*product),
	})
}

func actorFromRequest(r *http.Request) (service.Actor, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return service.Actor{}, false
	}
	return service.Actor{UserID: claims.Subject, Role: claims.Role}, true
}
