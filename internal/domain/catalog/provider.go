package catalog

import "context"

// Provider supplies read-only product data to the cart.
type Provider interface {
	Product(ctx context.Context, id string) (Product, error)
	Variant(ctx context.Context, productID, variantID string) (Product, Variant, error)
}
