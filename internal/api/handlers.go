package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/example/storefront-cart/internal/api/middleware"
	"github.com/example/storefront-cart/internal/cartstore"
	"github.com/example/storefront-cart/internal/checkout"
	"github.com/example/storefront-cart/internal/domain/cart"
	"github.com/example/storefront-cart/internal/domain/catalog"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type CartService interface {
	Current(ctx context.Context, profile string) (cartstore.Result, error)
	AddItem(ctx context.Context, profile string, variant catalog.Variant, product catalog.Product) (cartstore.Result, error)
	UpdateItem(ctx context.Context, profile, merchandiseID string, op cart.Operation) (cartstore.Result, error)
	Subscribe(profile string) *cartstore.Subscription
}

type CheckoutService interface {
	Checkout(ctx context.Context, profile string, req checkout.Request) (*checkout.Receipt, error)
}

type Handlers struct {
	carts    CartService
	catalog  catalog.Provider
	checkout CheckoutService
	logger   *zap.Logger
	stream   StreamConfig
}

func NewHandlers(carts CartService, products catalog.Provider, checkoutService CheckoutService, logger *zap.Logger, stream StreamConfig) *Handlers {
	return &Handlers{
		carts:    carts,
		catalog:  products,
		checkout: checkoutService,
		logger:   logger.Named("api"),
		stream:   stream.withDefaults(),
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// Cart Handlers

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	res, err := h.carts.Current(r.Context(), middleware.SessionID(r.Context()))
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(res))
}

func (h *Handlers) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ProductID == "" || req.VariantID == "" {
		respondJSONError(w, "product_id and variant_id are required", http.StatusBadRequest)
		return
	}

	product, variant, err := h.catalog.Variant(r.Context(), req.ProductID, req.VariantID)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	res, err := h.carts.AddItem(r.Context(), middleware.SessionID(r.Context()), variant, product)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(res))
}

func (h *Handlers) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	op, err := cart.ParseOperation(req.Op)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	h.applyUpdate(w, r, op)
}

func (h *Handlers) RemoveItem(w http.ResponseWriter, r *http.Request) {
	h.applyUpdate(w, r, cart.OpDelete)
}

func (h *Handlers) applyUpdate(w http.ResponseWriter, r *http.Request, op cart.Operation) {
	merchandiseID := chi.URLParam(r, "merchandiseID")
	res, err := h.carts.UpdateItem(r.Context(), middleware.SessionID(r.Context()), merchandiseID, op)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(res))
}

// Checkout Handlers

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	email := req.Email
	if claims, ok := middleware.SessionFromContext(r.Context()); ok && email == "" {
		email = claims.Email
	}

	receipt, err := h.checkout.Checkout(r.Context(), middleware.SessionID(r.Context()), checkout.Request{
		PaymentMethodID: req.PaymentMethodID,
		Email:           email,
		Metadata:        req.Metadata,
	})
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, newReceiptResponse(receipt))
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
