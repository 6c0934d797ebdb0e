package cartstore

import (
	"errors"

	"github.com/example/storefront-cart/internal/domain/cart"
)

var (
	// ErrPersistence wraps any failure reading or writing the snapshot store.
	ErrPersistence = errors.New("cart persistence failed")
	// ErrConflict is returned when concurrent writers kept winning until the
	// retry budget ran out.
	ErrConflict = errors.New("cart changed concurrently, retries exhausted")
)

// Result is returned by every cart operation.
type Result struct {
	Cart    cart.Cart
	Version int64
	Outcome cart.Outcome
	// Warning is set when the cart was saved but other sessions could not be
	// told about it.
	Warning string
}

func (r Result) Applied() bool {
	return r.Outcome == cart.OutcomeApplied
}
