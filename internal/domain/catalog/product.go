package catalog

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrVariantNotFound = errors.New("variant not found")
	ErrNotForSale      = errors.New("variant is not available for sale")
	ErrInvalidProduct  = errors.New("product id is required")
)

// Image is a product image as supplied by the catalog.
type Image struct {
	URL     string `json:"url"`
	AltText string `json:"alt_text,omitempty"`
}

// SelectedOption is a variant option such as size or colour.
type SelectedOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Price is the base amount of a variant plus an optional sale price.
type Price struct {
	Amount       decimal.Decimal  `json:"amount"`
	SalePrice    *decimal.Decimal `json:"sale_price,omitempty"`
	CurrencyCode string           `json:"currency_code"`
}

// Effective returns the sale price when one is set and positive, else the base amount.
func (p Price) Effective() decimal.Decimal {
	if p.SalePrice != nil && p.SalePrice.IsPositive() {
		return *p.SalePrice
	}
	return p.Amount
}

// OnSale reports whether a positive sale price is set.
func (p Price) OnSale() bool {
	return p.SalePrice != nil && p.SalePrice.IsPositive()
}

// Variant is a purchasable merchandise entry of a product.
type Variant struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	AvailableForSale bool             `json:"available_for_sale"`
	SelectedOptions  []SelectedOption `json:"selected_options,omitempty"`
	Price            Price            `json:"price"`
}

type Product struct {
	ID            string    `json:"id"`
	Handle        string    `json:"handle"`
	Title         string    `json:"title"`
	FeaturedImage Image     `json:"featured_image"`
	Variants      []Variant `json:"variants"`
}

// Slug returns the product handle, deriving one from the title when empty.
func (p Product) Slug() string {
	if h := strings.TrimSpace(p.Handle); h != "" {
		return h
	}
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(p.Title)), " ", "-")
}

// Variant looks up a variant of the product by id.
func (p Product) Variant(id string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}
