package cartstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/storefront-cart/internal/domain/cart"
	"github.com/example/storefront-cart/internal/domain/catalog"
	"github.com/example/storefront-cart/internal/infrastructure/store"
	"github.com/example/storefront-cart/internal/infrastructure/store/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testItem(productID, variantID, amount string) (catalog.Variant, catalog.Product) {
	v := catalog.Variant{
		ID:               variantID,
		Title:            "Default",
		AvailableForSale: true,
		Price:            catalog.Price{Amount: decimal.RequireFromString(amount), CurrencyCode: "GBP"},
	}
	p := catalog.Product{ID: productID, Handle: productID, Title: "Product " + productID, Variants: []catalog.Variant{v}}
	return v, p
}

func sequentialIDs() func() string {
	var n int64
	return func() string {
		return fmt.Sprintf("id-%d", atomic.AddInt64(&n, 1))
	}
}

func testOptions() Options {
	return Options{
		Currency:       "GBP",
		CheckoutURL:    "https://shop.example.com/checkout/{cart_id}",
		InstanceID:     "instance-a",
		MaxAttempts:    4,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		NewID:          sequentialIDs(),
	}
}

func newTestManager() (*Manager, *mocks.MockSnapshotStore, *mocks.MockPublisher) {
	st := mocks.NewMockSnapshotStore()
	pub := mocks.NewMockPublisher()
	return NewManager(st, pub, zap.NewNop(), testOptions()), st, pub
}

func receive(t *testing.T, sub *Subscription) Update {
	t.Helper()
	select {
	case u := <-sub.C:
		return u
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
		return Update{}
	}
}

// ============================================
// Operation Tests
// ============================================

func TestManager_AddItem_PersistsAndPublishes(t *testing.T) {
	m, st, pub := newTestManager()
	ctx := context.Background()
	v, p := testItem("prod-1", "var-1", "10.00")

	res, err := m.AddItem(ctx, "profile-1", v, p)

	require.NoError(t, err)
	assert.True(t, res.Applied())
	assert.Equal(t, int64(1), res.Version)
	assert.Empty(t, res.Warning)
	assert.Equal(t, "10.00", res.Cart.Cost.TotalAmount.String())
	assert.Contains(t, res.Cart.CheckoutURL, res.Cart.ID)

	require.Len(t, st.CASCalls, 1)
	assert.Equal(t, int64(0), st.CASCalls[0].ExpectedVersion)

	snap, err := st.Load(ctx, "profile-1")
	require.NoError(t, err)
	var persisted cart.Cart
	require.NoError(t, json.Unmarshal(snap.State, &persisted))
	assert.Equal(t, res.Cart.ID, persisted.ID)
	assert.Equal(t, 1, persisted.TotalQuantity)

	calls := pub.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "profile-1", calls[0].Key)
	evt, ok := calls[0].Event.(*store.Event)
	require.True(t, ok)
	assert.Equal(t, cart.EventCartUpdated, evt.EventType)
	var payload cart.CartUpdated
	require.NoError(t, evt.Decode(&payload))
	assert.Equal(t, "instance-a", payload.Origin)
	assert.Equal(t, int64(1), payload.Version)
	assert.Equal(t, res.Cart.ID, payload.CartID)
}

func TestManager_Scenario(t *testing.T) {
	m, _, _ := newTestManager()
	ctx := context.Background()
	v, p := testItem("prod-1", "var-1", "10.00")

	res, err := m.AddItem(ctx, "profile-1", v, p)
	require.NoError(t, err)
	firstID := res.Cart.ID
	assert.Equal(t, 1, res.Cart.TotalQuantity)

	res, err = m.AddItem(ctx, "profile-1", v, p)
	require.NoError(t, err)
	require.Len(t, res.Cart.Lines, 1)
	assert.Equal(t, 2, res.Cart.Lines[0].Quantity)
	assert.Equal(t, "20.00", res.Cart.Cost.TotalAmount.String())

	res, err = m.UpdateItem(ctx, "profile-1", "var-1", cart.OpDecrement)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Cart.TotalQuantity)
	assert.Equal(t, "10.00", res.Cart.Cost.TotalAmount.String())

	res, err = m.UpdateItem(ctx, "profile-1", "var-1", cart.OpDelete)
	require.NoError(t, err)
	assert.True(t, res.Cart.IsEmpty())
	assert.Equal(t, 0, res.Cart.TotalQuantity)
	assert.Equal(t, "0.00", res.Cart.Cost.TotalAmount.String())
	assert.NotEqual(t, firstID, res.Cart.ID)
	assert.Equal(t, int64(4), res.Version)
}

func TestManager_UpdateMissingLineIsNoOp(t *testing.T) {
	m, st, pub := newTestManager()
	ctx := context.Background()
	v, p := testItem("prod-1", "var-1", "10.00")
	before, err := m.AddItem(ctx, "profile-1", v, p)
	require.NoError(t, err)

	res, err := m.UpdateItem(ctx, "profile-1", "var-unknown", cart.OpDelete)

	require.NoError(t, err)
	assert.Equal(t, cart.OutcomeNoOp, res.Outcome)
	assert.Equal(t, before.Version, res.Version)
	assert.Equal(t, 1, st.CASCallCount())
	assert.Len(t, pub.Calls(), 1)

	want, _ := json.Marshal(before.Cart)
	got, _ := json.Marshal(res.Cart)
	assert.JSONEq(t, string(want), string(got))
}

func TestManager_DomainErrorIsNotRetried(t *testing.T) {
	m, st, _ := newTestManager()
	v, p := testItem("prod-1", "var-1", "10.00")
	v.Price.CurrencyCode = ""

	_, err := m.AddItem(context.Background(), "profile-1", v, p)

	assert.ErrorIs(t, err, cart.ErrMissingPrice)
	assert.Equal(t, 0, st.CASCallCount())
}

func TestManager_Current_CreatesEmptyCartOnce(t *testing.T) {
	m, st, _ := newTestManager()
	ctx := context.Background()

	first, err := m.Current(ctx, "profile-1")
	require.NoError(t, err)
	assert.True(t, first.Cart.IsEmpty())
	assert.Equal(t, int64(1), first.Version)

	second, err := m.Current(ctx, "profile-1")
	require.NoError(t, err)
	assert.Equal(t, first.Cart.ID, second.Cart.ID)
	assert.Equal(t, int64(1), second.Version)
	assert.Equal(t, 1, st.CASCallCount())
}

func TestManager_Settle(t *testing.T) {
	m, _, _ := newTestManager()
	ctx := context.Background()
	vA, pA := testItem("prod-a", "var-a", "10.00")
	vB, pB := testItem("prod-b", "var-b", "4.00")

	paid, err := m.AddItem(ctx, "profile-1", vA, pA)
	require.NoError(t, err)
	_, err = m.AddItem(ctx, "profile-1", vB, pB)
	require.NoError(t, err)

	res, err := m.Settle(ctx, "profile-1", paid.Cart)

	require.NoError(t, err)
	require.Len(t, res.Cart.Lines, 1)
	assert.Equal(t, "var-b", res.Cart.Lines[0].Merchandise.ID)
	assert.Equal(t, "4.00", res.Cart.Cost.TotalAmount.String())
}

func TestManager_Clear(t *testing.T) {
	m, _, _ := newTestManager()
	ctx := context.Background()
	v, p := testItem("prod-1", "var-1", "10.00")
	added, err := m.AddItem(ctx, "profile-1", v, p)
	require.NoError(t, err)

	res, err := m.Clear(ctx, "profile-1")

	require.NoError(t, err)
	assert.True(t, res.Applied())
	assert.True(t, res.Cart.IsEmpty())
	assert.NotEqual(t, added.Cart.ID, res.Cart.ID)
	assert.Equal(t, int64(2), res.Version)

	again, err := m.Clear(ctx, "profile-1")
	require.NoError(t, err)
	assert.Equal(t, cart.OutcomeNoOp, again.Outcome)
}

// ============================================
// Failure Tests
// ============================================

func TestManager_RetriesOnConflict(t *testing.T) {
	m, st, _ := newTestManager()
	ctx := context.Background()
	vA, pA := testItem("prod-a", "var-a", "10.00")
	vB, pB := testItem("prod-b", "var-b", "5.00")

	var once sync.Once
	st.CASCallback = func(ctx context.Context, key string, expected int64, snap *store.Snapshot) error {
		once.Do(func() {
			// another instance writes first
			other, err := cart.AddItem(cart.NewEmpty("cart-other", "GBP"), vB, pB, "line-other")
			require.NoError(t, err)
			state, err := json.Marshal(other)
			require.NoError(t, err)
			require.NoError(t, st.Seed(ctx, key, expected, &store.Snapshot{Version: expected + 1, State: state}))
		})
		return nil
	}

	res, err := m.AddItem(ctx, "profile-1", vA, pA)

	require.NoError(t, err)
	assert.Equal(t, 2, st.CASCallCount())
	assert.Equal(t, int64(2), res.Version)
	assert.Equal(t, "cart-other", res.Cart.ID)
	assert.Equal(t, 2, res.Cart.TotalQuantity)
	assert.Equal(t, "15.00", res.Cart.Cost.TotalAmount.String())
}

func TestManager_ConflictBudgetExhausted(t *testing.T) {
	m, st, pub := newTestManager()
	st.CASErr = store.ErrVersionConflict
	v, p := testItem("prod-1", "var-1", "10.00")

	_, err := m.AddItem(context.Background(), "profile-1", v, p)

	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 4, st.CASCallCount())
	assert.Empty(t, pub.Calls())
}

func TestManager_PersistenceFailure(t *testing.T) {
	m, st, pub := newTestManager()
	st.CASErr = errors.New("disk full")
	v, p := testItem("prod-1", "var-1", "10.00")
	sub := m.Subscribe("profile-1")
	defer sub.Close()

	_, err := m.AddItem(context.Background(), "profile-1", v, p)

	assert.ErrorIs(t, err, ErrPersistence)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, st.CASCallCount())
	assert.Empty(t, pub.Calls())
	assert.Len(t, sub.C, 0)
}

func TestManager_LoadFailure(t *testing.T) {
	m, st, _ := newTestManager()
	st.LoadErr = errors.New("connection refused")

	_, err := m.Current(context.Background(), "profile-1")

	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, 0, st.CASCallCount())
}

func TestManager_CorruptSnapshot(t *testing.T) {
	m, st, _ := newTestManager()
	ctx := context.Background()
	require.NoError(t, st.Seed(ctx, "profile-1", 0, &store.Snapshot{Version: 1, State: json.RawMessage(`{"lines":"nope"}`)}))

	_, err := m.Current(ctx, "profile-1")

	assert.ErrorIs(t, err, ErrPersistence)
}

func TestManager_PublishFailureIsWarning(t *testing.T) {
	m, st, pub := newTestManager()
	pub.PublishErr = errors.New("broker down")
	v, p := testItem("prod-1", "var-1", "10.00")

	res, err := m.AddItem(context.Background(), "profile-1", v, p)

	require.NoError(t, err)
	assert.NotEmpty(t, res.Warning)
	assert.Equal(t, int64(1), res.Version)
	assert.Equal(t, 1, st.CASCallCount())
}

func TestManager_NoPublisher(t *testing.T) {
	m := NewManager(store.NewMemoryStore(), nil, zap.NewNop(), testOptions())
	v, p := testItem("prod-1", "var-1", "10.00")

	res, err := m.AddItem(context.Background(), "profile-1", v, p)

	require.NoError(t, err)
	assert.Empty(t, res.Warning)
}

// ============================================
// Propagation Tests
// ============================================

func TestManager_SubscribersSeeEveryWrite(t *testing.T) {
	m, _, _ := newTestManager()
	ctx := context.Background()
	v, p := testItem("prod-1", "var-1", "10.00")
	badge := m.Subscribe("profile-1")
	defer badge.Close()
	page := m.Subscribe("profile-1")
	defer page.Close()
	other := m.Subscribe("profile-2")
	defer other.Close()

	res, err := m.AddItem(ctx, "profile-1", v, p)
	require.NoError(t, err)

	for _, sub := range []*Subscription{badge, page} {
		u := receive(t, sub)
		assert.Equal(t, res.Version, u.Version)
		assert.Equal(t, 1, u.Cart.TotalQuantity)
	}
	assert.Len(t, other.C, 0)
}

func TestManager_NoOpDoesNotNotify(t *testing.T) {
	m, _, _ := newTestManager()
	ctx := context.Background()
	v, p := testItem("prod-1", "var-1", "10.00")
	_, err := m.AddItem(ctx, "profile-1", v, p)
	require.NoError(t, err)

	sub := m.Subscribe("profile-1")
	defer sub.Close()
	_, err = m.UpdateItem(ctx, "profile-1", "var-unknown", cart.OpIncrement)
	require.NoError(t, err)

	assert.Len(t, sub.C, 0)
}

func TestManager_RefreshPicksUpExternalWrite(t *testing.T) {
	st := store.NewMemoryStore()
	a := NewManager(st, nil, zap.NewNop(), testOptions())
	opts := testOptions()
	opts.InstanceID = "instance-b"
	b := NewManager(st, nil, zap.NewNop(), opts)
	ctx := context.Background()
	v, p := testItem("prod-1", "var-1", "10.00")

	_, err := a.Current(ctx, "profile-1")
	require.NoError(t, err)
	sub := a.Subscribe("profile-1")
	defer sub.Close()

	written, err := b.AddItem(ctx, "profile-1", v, p)
	require.NoError(t, err)
	assert.Len(t, sub.C, 0)

	res, err := a.Refresh(ctx, "profile-1")
	require.NoError(t, err)
	assert.Equal(t, written.Version, res.Version)

	u := receive(t, sub)
	assert.Equal(t, written.Version, u.Version)
	assert.Equal(t, 1, u.Cart.TotalQuantity)
}

func TestManager_RefreshAfterExternalDelete(t *testing.T) {
	m, st, _ := newTestManager()
	ctx := context.Background()
	v, p := testItem("prod-1", "var-1", "10.00")
	_, err := m.AddItem(ctx, "profile-1", v, p)
	require.NoError(t, err)
	_, err = m.AddItem(ctx, "profile-1", v, p)
	require.NoError(t, err)

	sub := m.Subscribe("profile-1")
	defer sub.Close()
	require.NoError(t, st.Delete(ctx, "profile-1"))

	res, err := m.Refresh(ctx, "profile-1")

	require.NoError(t, err)
	assert.True(t, res.Cart.IsEmpty())
	assert.Equal(t, int64(1), res.Version)
	u := receive(t, sub)
	assert.True(t, u.Cart.IsEmpty())
}

func TestManager_ConcurrentWritersLoseNothing(t *testing.T) {
	st := store.NewMemoryStore()
	optsA := testOptions()
	optsA.MaxAttempts = 100
	optsB := optsA
	optsB.InstanceID = "instance-b"
	managers := []*Manager{
		NewManager(st, nil, zap.NewNop(), optsA),
		NewManager(st, nil, zap.NewNop(), optsB),
	}
	v, p := testItem("prod-1", "var-1", "2.50")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(m *Manager) {
			defer wg.Done()
			_, err := m.AddItem(ctx, "profile-1", v, p)
			assert.NoError(t, err)
		}(managers[i%2])
	}
	wg.Wait()

	res, err := managers[0].Current(ctx, "profile-1")
	require.NoError(t, err)
	assert.Equal(t, 20, res.Cart.TotalQuantity)
	assert.Equal(t, "50.00", res.Cart.Cost.TotalAmount.String())
	assert.Equal(t, int64(20), res.Version)
}

func TestManager_Tracks(t *testing.T) {
	m, _, _ := newTestManager()
	assert.False(t, m.Tracks("profile-1"))

	sub := m.Subscribe("profile-1")
	assert.True(t, m.Tracks("profile-1"))
	sub.Close()
	assert.False(t, m.Tracks("profile-1"))

	_, err := m.Current(context.Background(), "profile-1")
	require.NoError(t, err)
	assert.True(t, m.Tracks("profile-1"))
}
