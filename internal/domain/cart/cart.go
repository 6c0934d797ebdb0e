package cart

import (
	"errors"

	"github.com/example/storefront-cart/internal/domain/catalog"
)

const AggregateType = "Cart"

var (
	ErrInvalidMerchandise = errors.New("merchandise id is required")
	ErrMissingPrice       = errors.New("merchandise has no usable price")
	ErrCurrencyMismatch   = errors.New("merchandise currency differs from cart currency")
	ErrUnknownOperation   = errors.New("unknown cart operation")
)

// ProductSnapshot is the parent product as it looked when the line was created.
// It is never re-fetched.
type ProductSnapshot struct {
	ID            string        `json:"id"`
	Handle        string        `json:"handle"`
	Title         string        `json:"title"`
	FeaturedImage catalog.Image `json:"featured_image"`
}

type Merchandise struct {
	ID              string                   `json:"id"`
	Title           string                   `json:"title"`
	SelectedOptions []catalog.SelectedOption `json:"selected_options"`
	Product         ProductSnapshot          `json:"product"`
}

type LineCost struct {
	TotalAmount Money `json:"total_amount"`
}

type Line struct {
	ID          string      `json:"id"`
	Quantity    int         `json:"quantity"`
	UnitPrice   Money       `json:"unit_price"`
	Cost        LineCost    `json:"cost"`
	Merchandise Merchandise `json:"merchandise"`
}

type Cost struct {
	SubtotalAmount Money `json:"subtotal_amount"`
	TotalAmount    Money `json:"total_amount"`
}

// Cart is an immutable value: every operation returns a new Cart.
type Cart struct {
	ID            string `json:"id"`
	CheckoutURL   string `json:"checkout_url,omitempty"`
	Lines         []Line `json:"lines"`
	TotalQuantity int    `json:"total_quantity"`
	Cost          Cost   `json:"cost"`
}

// NewCartFunc mints a fresh empty cart with a new id.
type NewCartFunc func() Cart

// NewEmpty returns an empty cart priced in currency.
func NewEmpty(id, currency string) Cart {
	c := Cart{ID: id, Lines: []Line{}}
	c.recalculate(currency)
	return c
}

func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Currency is the currency of the cart totals.
func (c Cart) Currency() string {
	return c.Cost.TotalAmount.CurrencyCode
}

// Line returns the line for a merchandise id.
func (c Cart) Line(merchandiseID string) (Line, bool) {
	if i := c.lineIndex(merchandiseID); i >= 0 {
		return c.Lines[i], true
	}
	return Line{}, false
}

func (c Cart) lineIndex(merchandiseID string) int {
	for i, l := range c.Lines {
		if l.Merchandise.ID == merchandiseID {
			return i
		}
	}
	return -1
}

func (c Cart) clone() Cart {
	next := c
	next.Lines = make([]Line, len(c.Lines))
	copy(next.Lines, c.Lines)
	return next
}

// recalculate derives totalQuantity and costs from the lines.
func (c *Cart) recalculate(currency string) {
	if len(c.Lines) > 0 {
		currency = c.Lines[0].UnitPrice.CurrencyCode
	}
	total := ZeroMoney(currency)
	qty := 0
	for i := range c.Lines {
		l := &c.Lines[i]
		l.Cost.TotalAmount = l.UnitPrice.Mul(l.Quantity)
		total = total.Add(l.Cost.TotalAmount)
		qty += l.Quantity
	}
	c.TotalQuantity = qty
	c.Cost = Cost{SubtotalAmount: total, TotalAmount: total}
}
