package api

import (
	"time"

	"github.com/example/storefront-cart/internal/cartstore"
	"github.com/example/storefront-cart/internal/checkout"
	"github.com/example/storefront-cart/internal/domain/cart"
)

type CartResponse struct {
	Cart    cart.Cart `json:"cart"`
	Version int64     `json:"version"`
	Outcome string    `json:"outcome"`
	Warning string    `json:"warning,omitempty"`
}

func newCartResponse(res cartstore.Result) CartResponse {
	return CartResponse{
		Cart:    res.Cart,
		Version: res.Version,
		Outcome: res.Outcome.String(),
		Warning: res.Warning,
	}
}

type AddItemRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
}

type UpdateItemRequest struct {
	Op string `json:"op"`
}

type CheckoutRequest struct {
	PaymentMethodID string            `json:"payment_method_id"`
	Email           string            `json:"email"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type ReceiptResponse struct {
	CartID         string      `json:"cart_id"`
	TransactionRef string      `json:"transaction_ref"`
	Total          cart.Money  `json:"total"`
	Lines          []cart.Line `json:"lines"`
	Cart           cart.Cart   `json:"cart"`
	Version        int64       `json:"version"`
	Warnings       []string    `json:"warnings,omitempty"`
}

func newReceiptResponse(r *checkout.Receipt) ReceiptResponse {
	return ReceiptResponse{
		CartID:         r.CartID,
		TransactionRef: r.TransactionRef,
		Total:          r.Total,
		Lines:          r.Lines,
		Cart:           r.Cart,
		Version:        r.Version,
		Warnings:       r.Warnings,
	}
}

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SessionResponse struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
