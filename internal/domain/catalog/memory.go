package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// MemoryCatalog is an in-memory Provider, typically loaded from a JSON file.
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[string]Product
}

func NewMemoryCatalog(products ...Product) *MemoryCatalog {
	c := &MemoryCatalog{products: make(map[string]Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

// LoadFile reads a JSON array of products.
func LoadFile(path string) (*MemoryCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var products []Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("decode catalog file: %w", err)
	}
	for _, p := range products {
		if p.ID == "" {
			return nil, ErrInvalidProduct
		}
	}
	return NewMemoryCatalog(products...), nil
}

// Put adds or replaces a product.
func (c *MemoryCatalog) Put(p Product) error {
	if p.ID == "" {
		return ErrInvalidProduct
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
	return nil
}

func (c *MemoryCatalog) Product(_ context.Context, id string) (Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

// Variant returns the product and its variant; variants not available for sale are rejected.
func (c *MemoryCatalog) Variant(ctx context.Context, productID, variantID string) (Product, Variant, error) {
	p, err := c.Product(ctx, productID)
	if err != nil {
		return Product{}, Variant{}, err
	}
	v, ok := p.Variant(variantID)
	if !ok {
		return Product{}, Variant{}, ErrVariantNotFound
	}
	if !v.AvailableForSale {
		return Product{}, Variant{}, ErrNotForSale
	}
	return p, v, nil
}

// List returns all products ordered by id.
func (c *MemoryCatalog) List(_ context.Context) []Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
