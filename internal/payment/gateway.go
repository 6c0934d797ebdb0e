// Package payment charges a cart total through a payment provider.
package payment

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("charge amount must be positive")

type ChargeRequest struct {
	Amount          decimal.Decimal
	Currency        string
	PaymentMethodID string
	Metadata        map[string]string
	// IdempotencyKey makes retried charges for the same cart version safe.
	IdempotencyKey string
}

// ChargeResult is either a success with a transaction reference or a decline
// with a reason. Transport failures are returned as errors instead.
type ChargeResult struct {
	Succeeded      bool
	TransactionRef string
	FailureReason  string
}

type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true,
	"KMF": true, "KRW": true, "MGA": true, "PYG": true, "RWF": true,
	"UGX": true, "VND": true, "VUV": true, "XAF": true, "XOF": true,
	"XPF": true,
}

// MinorUnits converts amount to the smallest currency unit, e.g. pence.
func MinorUnits(amount decimal.Decimal, currency string) int64 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return amount.Round(0).IntPart()
	}
	return amount.Shift(2).Round(0).IntPart()
}
