package cart

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"

	"github.com/example/storefront-cart/internal/domain/catalog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testProduct(productID, variantID, amount, currency string) (catalog.Product, catalog.Variant) {
	v := catalog.Variant{
		ID:               variantID,
		Title:            "Medium / Blue",
		AvailableForSale: true,
		SelectedOptions:  []catalog.SelectedOption{{Name: "Size", Value: "M"}},
		Price:            catalog.Price{Amount: dec(amount), CurrencyCode: currency},
	}
	p := catalog.Product{
		ID:            productID,
		Handle:        "t-shirt",
		Title:         "T-Shirt",
		FeaturedImage: catalog.Image{URL: "https://cdn.example.com/t.png", AltText: "T-Shirt"},
		Variants:      []catalog.Variant{v},
	}
	return p, v
}

func idSequence(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func newCartFunc() NewCartFunc {
	next := idSequence("cart")
	return func() Cart { return NewEmpty(next(), "GBP") }
}

func assertMoney(t *testing.T, expected string, actual Money) {
	t.Helper()
	assert.True(t, dec(expected).Equal(actual.Amount), "expected %s, got %s", expected, actual.String())
}

// assertInvariants checks the derived totals against the lines.
func assertInvariants(t *testing.T, c Cart) {
	t.Helper()
	qty := 0
	sum := decimal.Zero
	seen := map[string]bool{}
	for _, l := range c.Lines {
		assert.GreaterOrEqual(t, l.Quantity, 1)
		assert.False(t, seen[l.Merchandise.ID], "duplicate merchandise %s", l.Merchandise.ID)
		seen[l.Merchandise.ID] = true
		assert.True(t, l.UnitPrice.Mul(l.Quantity).Amount.Equal(l.Cost.TotalAmount.Amount))
		qty += l.Quantity
		sum = sum.Add(l.Cost.TotalAmount.Amount)
	}
	assert.Equal(t, qty, c.TotalQuantity)
	assert.True(t, sum.Equal(c.Cost.TotalAmount.Amount), "total %s != sum %s", c.Cost.TotalAmount, sum)
	assert.True(t, c.Cost.SubtotalAmount.Equal(c.Cost.TotalAmount))
}

// ============================================
// Money Tests
// ============================================

func TestMoney_RoundsToTwoPlaces(t *testing.T) {
	m := NewMoney(dec("10.005"), "gbp")

	assert.Equal(t, "10.01", m.String())
	assert.Equal(t, "GBP", m.CurrencyCode)
}

func TestMoney_JSON(t *testing.T) {
	m := NewMoney(dec("10"), "GBP")

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"10.00","currency_code":"GBP"}`, string(data))

	var decoded Money
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Equal(m))
}

func TestParseMoney_Invalid(t *testing.T) {
	_, err := ParseMoney("ten", "GBP")
	assert.Error(t, err)
}

// ============================================
// AddItem Tests
// ============================================

func TestNewEmpty(t *testing.T) {
	c := NewEmpty("cart-1", "GBP")

	assert.True(t, c.IsEmpty())
	assert.Equal(t, 0, c.TotalQuantity)
	assert.Equal(t, "0.00", c.Cost.TotalAmount.String())
	assert.Equal(t, "GBP", c.Currency())
}

func TestAddItem_NewLine(t *testing.T) {
	p, v := testProduct("prod-1", "var-1", "10.00", "GBP")

	c, err := AddItem(NewEmpty("cart-1", "GBP"), v, p, "line-1")

	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	l := c.Lines[0]
	assert.Equal(t, "line-1", l.ID)
	assert.Equal(t, 1, l.Quantity)
	assert.Equal(t, "var-1", l.Merchandise.ID)
	assert.Equal(t, "Medium / Blue", l.Merchandise.Title)
	assert.Equal(t, "prod-1", l.Merchandise.Product.ID)
	assert.Equal(t, "t-shirt", l.Merchandise.Product.Handle)
	assert.Equal(t, "https://cdn.example.com/t.png", l.Merchandise.Product.FeaturedImage.URL)
	assertMoney(t, "10.00", c.Cost.TotalAmount)
	assertInvariants(t, c)
}

func TestAddItem_ExistingLineIncrementsQuantity(t *testing.T) {
	p, v := testProduct("prod-1", "var-1", "10.00", "GBP")

	c, err := AddItem(NewEmpty("cart-1", "GBP"), v, p, "line-1")
	require.NoError(t, err)
	c, err = AddItem(c, v, p, "line-2")
	require.NoError(t, err)

	require.Len(t, c.Lines, 1)
	assert.Equal(t, "line-1", c.Lines[0].ID)
	assert.Equal(t, 2, c.Lines[0].Quantity)
	assertMoney(t, "20.00", c.Cost.TotalAmount)
	assertInvariants(t, c)
}

func TestAddItem_KeepsOriginalUnitPrice(t *testing.T) {
	p, v := testProduct("prod-1", "var-1", "10.00", "GBP")
	c, err := AddItem(NewEmpty("cart-1", "GBP"), v, p, "line-1")
	require.NoError(t, err)

	v.Price.Amount = dec("12.00")
	c, err = AddItem(c, v, p, "line-2")
	require.NoError(t, err)

	assertMoney(t, "10.00", c.Lines[0].UnitPrice)
	assertMoney(t, "20.00", c.Cost.TotalAmount)
}

func TestAddItem_UsesSalePrice(t *testing.T) {
	p, v := testProduct("prod-1", "var-1", "50.00", "GBP")
	sale := dec("35.00")
	v.Price.SalePrice = &sale

	c, err := AddItem(NewEmpty("cart-1", "GBP"), v, p, "line-1")

	require.NoError(t, err)
	assertMoney(t, "35.00", c.Lines[0].UnitPrice)
	assertMoney(t, "35.00", c.Cost.TotalAmount)
}

func TestAddItem_DoesNotMutateInput(t *testing.T) {
	p, v := testProduct("prod-1", "var-1", "10.00", "GBP")
	first, err := AddItem(NewEmpty("cart-1", "GBP"), v, p, "line-1")
	require.NoError(t, err)

	_, err = AddItem(first, v, p, "line-2")
	require.NoError(t, err)

	assert.Equal(t, 1, first.Lines[0].Quantity)
	assert.Equal(t, 1, first.TotalQuantity)
}

func TestAddItem_Errors(t *testing.T) {
	p, v := testProduct("prod-1", "var-1", "10.00", "GBP")
	base, err := AddItem(NewEmpty("cart-1", "GBP"), v, p, "line-1")
	require.NoError(t, err)

	_, usd := testProduct("prod-2", "var-2", "10.00", "USD")
	_, noCurrency := testProduct("prod-3", "var-3", "10.00", "")
	_, blank := testProduct("prod-4", "", "10.00", "GBP")

	tests := []struct {
		name    string
		variant catalog.Variant
		wantErr error
	}{
		{"currency mismatch", usd, ErrCurrencyMismatch},
		{"missing currency", noCurrency, ErrMissingPrice},
		{"missing variant id", blank, ErrInvalidMerchandise},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := AddItem(base, tt.variant, p, "line-x")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, base.TotalQuantity, c.TotalQuantity)
		})
	}
}

func TestAddItem_ZeroPriceAllowed(t *testing.T) {
	p, v := testProduct("prod-1", "var-1", "0", "GBP")

	c, err := AddItem(NewEmpty("cart-1", "GBP"), v, p, "line-1")

	require.NoError(t, err)
	assert.Equal(t, "0.00", c.Cost.TotalAmount.String())
	assert.Equal(t, 1, c.TotalQuantity)
}

// ============================================
// UpdateItem Tests
// ============================================

func TestUpdateItem_Sequence(t *testing.T) {
	p, v := testProduct("prod-1", "var-1", "10.00", "GBP")
	newCart := newCartFunc()

	c, err := AddItem(NewEmpty("cart-0", "GBP"), v, p, "line-1")
	require.NoError(t, err)
	assertMoney(t, "10.00", c.Cost.TotalAmount)

	c, outcome, err := UpdateItem(c, "var-1", OpIncrement, newCart)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, 2, c.TotalQuantity)
	assertMoney(t, "20.00", c.Cost.TotalAmount)

	c, _, err = UpdateItem(c, "var-1", OpDecrement, newCart)
	require.NoError(t, err)
	assert.Equal(t, 1, c.TotalQuantity)
	assertMoney(t, "10.00", c.Cost.TotalAmount)
	assert.Equal(t, "cart-0", c.ID)

	c, outcome, err = UpdateItem(c, "var-1", OpDecrement, newCart)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.True(t, c.IsEmpty())
	assert.Equal(t, "cart-1", c.ID)
	assert.Equal(t, "0.00", c.Cost.TotalAmount.String())
}

func TestUpdateItem_Delete(t *testing.T) {
	p1, v1 := testProduct("prod-1", "var-1", "10.00", "GBP")
	p2, v2 := testProduct("prod-2", "var-2", "2.50", "GBP")
	c, err := AddItem(NewEmpty("cart-0", "GBP"), v1, p1, "line-1")
	require.NoError(t, err)
	c, err = AddItem(c, v2, p2, "line-2")
	require.NoError(t, err)
	c, _, err = UpdateItem(c, "var-1", OpIncrement, newCartFunc())
	require.NoError(t, err)

	c, outcome, err := UpdateItem(c, "var-1", OpDelete, newCartFunc())

	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, "var-2", c.Lines[0].Merchandise.ID)
	assert.Equal(t, "cart-0", c.ID)
	assertMoney(t, "2.50", c.Cost.TotalAmount)
	assertInvariants(t, c)
}

func TestUpdateItem_MissingLineIsNoOp(t *testing.T) {
	p, v := testProduct("prod-1", "var-1", "10.00", "GBP")
	c, err := AddItem(NewEmpty("cart-0", "GBP"), v, p, "line-1")
	require.NoError(t, err)
	before, err := json.Marshal(c)
	require.NoError(t, err)

	for _, op := range []Operation{OpIncrement, OpDecrement, OpDelete} {
		next, outcome, err := UpdateItem(c, "var-missing", op, newCartFunc())
		require.NoError(t, err)
		assert.Equal(t, OutcomeNoOp, outcome)

		after, err := json.Marshal(next)
		require.NoError(t, err)
		assert.JSONEq(t, string(before), string(after))
	}
}

func TestUpdateItem_UnknownOperation(t *testing.T) {
	c := NewEmpty("cart-0", "GBP")

	_, _, err := UpdateItem(c, "var-1", Operation("double"), newCartFunc())

	assert.ErrorIs(t, err, ErrUnknownOperation)
}

func TestParseOperation(t *testing.T) {
	tests := []struct {
		input   string
		want    Operation
		wantErr bool
	}{
		{"increment", OpIncrement, false},
		{"DECREMENT", OpDecrement, false},
		{" delete ", OpDelete, false},
		{"plus", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			op, err := ParseOperation(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownOperation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, op)
		})
	}
}

// ============================================
// Settle Tests
// ============================================

func TestSettle_RemovesPurchasedQuantities(t *testing.T) {
	p1, v1 := testProduct("prod-1", "var-1", "10.00", "GBP")
	p2, v2 := testProduct("prod-2", "var-2", "5.00", "GBP")

	purchased, err := AddItem(NewEmpty("cart-0", "GBP"), v1, p1, "line-1")
	require.NoError(t, err)

	// another tab added more while payment was in flight
	current, err := AddItem(purchased, v1, p1, "line-x")
	require.NoError(t, err)
	current, err = AddItem(current, v2, p2, "line-2")
	require.NoError(t, err)

	settled, outcome := Settle(current, purchased, newCartFunc())

	assert.Equal(t, OutcomeApplied, outcome)
	require.Len(t, settled.Lines, 2)
	l, ok := settled.Line("var-1")
	require.True(t, ok)
	assert.Equal(t, 1, l.Quantity)
	assertMoney(t, "15.00", settled.Cost.TotalAmount)
	assertInvariants(t, settled)
}

func TestSettle_EverythingPurchasedYieldsNewCart(t *testing.T) {
	p, v := testProduct("prod-1", "var-1", "10.00", "GBP")
	c, err := AddItem(NewEmpty("cart-0", "GBP"), v, p, "line-1")
	require.NoError(t, err)

	settled, outcome := Settle(c, c, newCartFunc())

	assert.Equal(t, OutcomeApplied, outcome)
	assert.True(t, settled.IsEmpty())
	assert.Equal(t, "cart-1", settled.ID)
}

func TestSettle_NothingMatchingIsNoOp(t *testing.T) {
	p, v := testProduct("prod-1", "var-1", "10.00", "GBP")
	c, err := AddItem(NewEmpty("cart-0", "GBP"), v, p, "line-1")
	require.NoError(t, err)

	settled, outcome := Settle(c, NewEmpty("cart-9", "GBP"), newCartFunc())

	assert.Equal(t, OutcomeNoOp, outcome)
	assert.Equal(t, c.ID, settled.ID)
}

// ============================================
// Serialization Tests
// ============================================

func TestCart_JSONRoundTrip(t *testing.T) {
	p, v := testProduct("prod-1", "var-1", "19.99", "GBP")
	c, err := AddItem(NewEmpty("cart-0", "GBP"), v, p, "line-1")
	require.NoError(t, err)
	c, err = AddItem(c, v, p, "line-2")
	require.NoError(t, err)

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var decoded Cart
	require.NoError(t, json.Unmarshal(data, &decoded))
	again, err := json.Marshal(decoded)
	require.NoError(t, err)

	assert.JSONEq(t, string(data), string(again))
	assert.Equal(t, "39.98", decoded.Cost.TotalAmount.String())
}

func TestOperationSequences_KeepInvariants(t *testing.T) {
	type item struct {
		product catalog.Product
		variant catalog.Variant
	}
	var items []item
	for i, amount := range []string{"10.00", "0.99", "35.50", "0.00"} {
		p, v := testProduct(fmt.Sprintf("prod-%d", i), fmt.Sprintf("var-%d", i), amount, "GBP")
		items = append(items, item{product: p, variant: v})
	}
	ops := []Operation{OpIncrement, OpDecrement, OpDelete}

	for seed := int64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			newCart := newCartFunc()
			nextLine := idSequence("line")
			c := newCart()
			want := map[string]int{}

			for step := 0; step < 200; step++ {
				it := items[rng.Intn(len(items))]
				id := it.variant.ID
				if rng.Intn(2) == 0 {
					next, err := AddItem(c, it.variant, it.product, nextLine())
					require.NoError(t, err)
					c = next
					want[id]++
				} else {
					op := ops[rng.Intn(len(ops))]
					next, outcome, err := UpdateItem(c, id, op, newCart)
					require.NoError(t, err)
					if want[id] == 0 {
						assert.Equal(t, OutcomeNoOp, outcome)
					} else {
						assert.Equal(t, OutcomeApplied, outcome)
						switch op {
						case OpIncrement:
							want[id]++
						case OpDecrement:
							want[id]--
						case OpDelete:
							want[id] = 0
						}
					}
					c = next
				}

				assertInvariants(t, c)
				total := 0
				for merchandiseID, qty := range want {
					total += qty
					line, ok := c.Line(merchandiseID)
					if qty == 0 {
						assert.False(t, ok, "step %d: %s should be gone", step, merchandiseID)
						continue
					}
					require.True(t, ok, "step %d: %s missing", step, merchandiseID)
					assert.Equal(t, qty, line.Quantity)
				}
				assert.Equal(t, total, c.TotalQuantity)
				assert.Equal(t, total == 0, c.IsEmpty())
			}
		})
	}
}
