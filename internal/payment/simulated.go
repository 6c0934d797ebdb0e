package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SimulatedGateway approves every charge up to Limit. Charges are recorded by
// idempotency key so a repeated request returns the first result.
type SimulatedGateway struct {
	Limit decimal.Decimal

	mu     sync.Mutex
	ledger map[string]ChargeResult
}

func NewSimulatedGateway(limit decimal.Decimal) *SimulatedGateway {
	return &SimulatedGateway{Limit: limit, ledger: make(map[string]ChargeResult)}
}

func (g *SimulatedGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return ChargeResult{}, err
	}
	if !req.Amount.IsPositive() {
		return ChargeResult{}, ErrInvalidAmount
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if req.IdempotencyKey != "" {
		if prev, ok := g.ledger[req.IdempotencyKey]; ok {
			return prev, nil
		}
	}

	var result ChargeResult
	if !g.Limit.IsZero() && req.Amount.GreaterThan(g.Limit) {
		result = ChargeResult{FailureReason: fmt.Sprintf("amount exceeds limit of %s %s", g.Limit.StringFixed(2), req.Currency)}
	} else {
		result = ChargeResult{Succeeded: true, TransactionRef: "sim_" + uuid.NewString()}
	}
	if req.IdempotencyKey != "" {
		g.ledger[req.IdempotencyKey] = result
	}
	return result, nil
}

// Charges returns the number of distinct charges recorded.
func (g *SimulatedGateway) Charges() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.ledger)
}
