package cart

import (
	"fmt"
	"strings"

	"github.com/example/storefront-cart/internal/domain/catalog"
)

type Operation string

const (
	OpIncrement Operation = "increment"
	OpDecrement Operation = "decrement"
	OpDelete    Operation = "delete"
)

func ParseOperation(s string) (Operation, error) {
	switch op := Operation(strings.ToLower(strings.TrimSpace(s))); op {
	case OpIncrement, OpDecrement, OpDelete:
		return op, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, s)
	}
}

// Outcome tells a caller whether an operation changed the cart.
type Outcome int

const (
	OutcomeNoOp Outcome = iota
	OutcomeApplied
)

func (o Outcome) String() string {
	if o == OutcomeApplied {
		return "applied"
	}
	return "noop"
}

// AddItem adds one unit of variant. An existing line keeps its original unit
// price and only its quantity grows.
func AddItem(c Cart, variant catalog.Variant, product catalog.Product, lineID string) (Cart, error) {
	if strings.TrimSpace(variant.ID) == "" {
		return c, ErrInvalidMerchandise
	}
	if strings.TrimSpace(variant.Price.CurrencyCode) == "" || variant.Price.Effective().IsNegative() {
		return c, ErrMissingPrice
	}
	unit := NewMoney(variant.Price.Effective(), variant.Price.CurrencyCode)
	if !c.IsEmpty() && c.Currency() != unit.CurrencyCode {
		return c, fmt.Errorf("%w: cart is %s, merchandise is %s", ErrCurrencyMismatch, c.Currency(), unit.CurrencyCode)
	}

	next := c.clone()
	if i := next.lineIndex(variant.ID); i >= 0 {
		next.Lines[i].Quantity++
	} else {
		next.Lines = append(next.Lines, Line{
			ID:        lineID,
			Quantity:  1,
			UnitPrice: unit,
			Merchandise: Merchandise{
				ID:              variant.ID,
				Title:           variant.Title,
				SelectedOptions: variant.SelectedOptions,
				Product: ProductSnapshot{
					ID:            product.ID,
					Handle:        product.Slug(),
					Title:         product.Title,
					FeaturedImage: product.FeaturedImage,
				},
			},
		})
	}
	next.recalculate(unit.CurrencyCode)
	return next, nil
}

// UpdateItem applies op to the line of merchandiseID. A missing line is a
// no-op. Removing the last line yields a fresh empty cart from newCart.
func UpdateItem(c Cart, merchandiseID string, op Operation, newCart NewCartFunc) (Cart, Outcome, error) {
	switch op {
	case OpIncrement, OpDecrement, OpDelete:
	default:
		return c, OutcomeNoOp, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}
	i := c.lineIndex(merchandiseID)
	if i < 0 {
		return c, OutcomeNoOp, nil
	}

	next := c.clone()
	switch op {
	case OpIncrement:
		next.Lines[i].Quantity++
	case OpDecrement:
		next.Lines[i].Quantity--
	case OpDelete:
		next.Lines[i].Quantity = 0
	}
	if next.Lines[i].Quantity <= 0 {
		next.Lines = append(next.Lines[:i], next.Lines[i+1:]...)
	}
	if next.IsEmpty() {
		return newCart(), OutcomeApplied, nil
	}
	next.recalculate(c.Currency())
	return next, OutcomeApplied, nil
}

// Settle subtracts the quantities of a purchased cart. Lines added after the
// purchase stay in the cart.
func Settle(c Cart, purchased Cart, newCart NewCartFunc) (Cart, Outcome) {
	next := c.clone()
	changed := false
	for _, paid := range purchased.Lines {
		i := next.lineIndex(paid.Merchandise.ID)
		if i < 0 {
			continue
		}
		changed = true
		next.Lines[i].Quantity -= paid.Quantity
		if next.Lines[i].Quantity <= 0 {
			next.Lines = append(next.Lines[:i], next.Lines[i+1:]...)
		}
	}
	if !changed {
		return c, OutcomeNoOp
	}
	if next.IsEmpty() {
		return newCart(), OutcomeApplied
	}
	next.recalculate(c.Currency())
	return next, OutcomeApplied
}
