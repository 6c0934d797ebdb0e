package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/storefront-cart/internal/auth"
	"github.com/example/storefront-cart/internal/cartstore"
	"github.com/example/storefront-cart/internal/checkout"
	"github.com/example/storefront-cart/internal/domain/cart"
	"github.com/example/storefront-cart/internal/domain/catalog"
	"go.uber.org/zap"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondJSONError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var declined *checkout.DeclinedError
	switch {
	case errors.As(err, &declined):
		return http.StatusPaymentRequired
	case errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, catalog.ErrVariantNotFound):
		return http.StatusNotFound
	case errors.Is(err, cart.ErrInvalidMerchandise),
		errors.Is(err, cart.ErrMissingPrice),
		errors.Is(err, cart.ErrUnknownOperation),
		errors.Is(err, catalog.ErrNotForSale),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, auth.ErrInvalidEmail):
		return http.StatusBadRequest
	case errors.Is(err, cart.ErrCurrencyMismatch),
		errors.Is(err, cartstore.ErrConflict),
		errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized
	case errors.Is(err, cartstore.ErrPersistence):
		return http.StatusServiceUnavailable
	case errors.Is(err, checkout.ErrPaymentUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondErr(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	respondJSONError(w, message, status)
}
