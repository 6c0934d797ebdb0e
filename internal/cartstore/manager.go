package cartstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/example/storefront-cart/internal/domain/cart"
	"github.com/example/storefront-cart/internal/domain/catalog"
	"github.com/example/storefront-cart/internal/infrastructure/store"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Publisher puts change events on the external change channel.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Options struct {
	// Currency of a freshly created empty cart.
	Currency string
	// CheckoutURL is a template; "{cart_id}" is replaced by the cart id.
	CheckoutURL string
	// InstanceID tags published events so an instance can ignore its own.
	InstanceID     string
	MaxAttempts    uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	NewID func() string
	Now   func() time.Time
}

func (o *Options) setDefaults() {
	if o.Currency == "" {
		o.Currency = "GBP"
	}
	if o.InstanceID == "" {
		o.InstanceID = uuid.NewString()
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 5
	}
	if o.InitialBackoff == 0 {
		o.InitialBackoff = 10 * time.Millisecond
	}
	if o.MaxBackoff == 0 {
		o.MaxBackoff = 200 * time.Millisecond
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Manager owns the read-modify-write cycle for carts. The snapshot store is
// the source of truth; the cache only remembers the last version each
// profile was seen at so that subscribers are notified once per version.
type Manager struct {
	store     store.SnapshotStore
	publisher Publisher
	hub       *Hub
	logger    *zap.Logger
	tracer    trace.Tracer
	opts      Options

	mu    sync.Mutex
	cache map[string]Update
}

// NewManager builds a Manager. publisher may be nil when no other instance
// shares the store.
func NewManager(st store.SnapshotStore, publisher Publisher, logger *zap.Logger, opts Options) *Manager {
	opts.setDefaults()
	return &Manager{
		store:     st,
		publisher: publisher,
		hub:       NewHub(),
		logger:    logger.Named("cartstore"),
		tracer:    otel.Tracer("github.com/example/storefront-cart/internal/cartstore"),
		opts:      opts,
		cache:     make(map[string]Update),
	}
}

func (m *Manager) InstanceID() string {
	return m.opts.InstanceID
}

func (m *Manager) newCart() cart.Cart {
	id := m.opts.NewID()
	c := cart.NewEmpty(id, m.opts.Currency)
	if m.opts.CheckoutURL != "" {
		c.CheckoutURL = strings.ReplaceAll(m.opts.CheckoutURL, "{cart_id}", id)
	}
	return c
}

// transition computes the next cart from the current one.
type transition func(current cart.Cart) (cart.Cart, cart.Outcome, error)

func (m *Manager) AddItem(ctx context.Context, profile string, variant catalog.Variant, product catalog.Product) (Result, error) {
	return m.mutate(ctx, "AddItem", profile, func(c cart.Cart) (cart.Cart, cart.Outcome, error) {
		next, err := cart.AddItem(c, variant, product, m.opts.NewID())
		if err != nil {
			return c, cart.OutcomeNoOp, err
		}
		return next, cart.OutcomeApplied, nil
	})
}

func (m *Manager) UpdateItem(ctx context.Context, profile, merchandiseID string, op cart.Operation) (Result, error) {
	return m.mutate(ctx, "UpdateItem", profile, func(c cart.Cart) (cart.Cart, cart.Outcome, error) {
		return cart.UpdateItem(c, merchandiseID, op, m.newCart)
	})
}

// Settle removes what was paid for, leaving anything added since.
func (m *Manager) Settle(ctx context.Context, profile string, purchased cart.Cart) (Result, error) {
	return m.mutate(ctx, "Settle", profile, func(c cart.Cart) (cart.Cart, cart.Outcome, error) {
		next, outcome := cart.Settle(c, purchased, m.newCart)
		return next, outcome, nil
	})
}

// Clear replaces the cart with a fresh empty one.
func (m *Manager) Clear(ctx context.Context, profile string) (Result, error) {
	return m.mutate(ctx, "Clear", profile, func(c cart.Cart) (cart.Cart, cart.Outcome, error) {
		if c.IsEmpty() {
			return c, cart.OutcomeNoOp, nil
		}
		return m.newCart(), cart.OutcomeApplied, nil
	})
}

// Current returns the persisted cart, creating an empty one when the profile
// has none.
func (m *Manager) Current(ctx context.Context, profile string) (Result, error) {
	return m.mutate(ctx, "Current", profile, func(c cart.Cart) (cart.Cart, cart.Outcome, error) {
		return c, cart.OutcomeNoOp, nil
	})
}

// Refresh re-reads the snapshot after an external change and notifies
// subscribers if it moved.
func (m *Manager) Refresh(ctx context.Context, profile string) (Result, error) {
	return m.Current(ctx, profile)
}

// Subscribe delivers every cart version this instance observes for profile.
func (m *Manager) Subscribe(profile string) *Subscription {
	return m.hub.Subscribe(profile)
}

// Tracks reports whether this instance has seen or is watching profile.
func (m *Manager) Tracks(profile string) bool {
	m.mu.Lock()
	_, ok := m.cache[profile]
	m.mu.Unlock()
	return ok || m.hub.Subscribers(profile) > 0
}

func (m *Manager) mutate(ctx context.Context, name, profile string, fn transition) (Result, error) {
	ctx, span := m.tracer.Start(ctx, "cartstore."+name, trace.WithAttributes(attribute.String("cart.profile", profile)))
	defer span.End()

	attempts := 0
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.opts.InitialBackoff
	bo.MaxInterval = m.opts.MaxBackoff

	result, err := backoff.Retry(ctx, func() (Result, error) {
		attempts++
		return m.attempt(ctx, profile, fn)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(m.opts.MaxAttempts))

	span.SetAttributes(attribute.Int("cart.attempts", attempts))
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			err = fmt.Errorf("%w: %d attempts", ErrConflict, attempts)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrPersistence) || errors.Is(err, ErrConflict) {
			m.logger.Error("cart write failed",
				zap.String("operation", name),
				zap.String("profile", profile),
				zap.Int("attempts", attempts),
				zap.Error(err),
			)
		}
		return Result{}, err
	}

	span.SetAttributes(
		attribute.String("cart.outcome", result.Outcome.String()),
		attribute.Int64("cart.version", result.Version),
	)
	return result, nil
}

// attempt runs one load-compute-write cycle. Only version conflicts are
// retried; every other error is permanent.
func (m *Manager) attempt(ctx context.Context, profile string, fn transition) (Result, error) {
	current, version, err := m.load(ctx, profile)
	if err != nil {
		return Result{}, backoff.Permanent(err)
	}

	next, outcome, err := fn(current)
	if err != nil {
		return Result{}, backoff.Permanent(err)
	}

	if outcome == cart.OutcomeNoOp && version > 0 {
		m.observe(Update{Profile: profile, Cart: current, Version: version})
		return Result{Cart: current, Version: version, Outcome: outcome}, nil
	}

	state, err := json.Marshal(next)
	if err != nil {
		return Result{}, backoff.Permanent(fmt.Errorf("%w: encode cart: %w", ErrPersistence, err))
	}
	snap := &store.Snapshot{
		Key:           profile,
		AggregateType: cart.AggregateType,
		Version:       version + 1,
		State:         state,
		UpdatedAt:     m.opts.Now().UTC(),
	}
	if err := m.store.CompareAndSwap(ctx, profile, version, snap); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			m.logger.Debug("version conflict, retrying",
				zap.String("profile", profile),
				zap.Int64("version", version),
			)
			return Result{}, err
		}
		return Result{}, backoff.Permanent(fmt.Errorf("%w: %w", ErrPersistence, err))
	}

	result := Result{Cart: next, Version: snap.Version, Outcome: outcome}
	m.observe(Update{Profile: profile, Cart: next, Version: snap.Version})
	if err := m.announce(ctx, profile, next, snap); err != nil {
		m.logger.Warn("change not published",
			zap.String("profile", profile),
			zap.Int64("version", snap.Version),
			zap.Error(err),
		)
		result.Warning = "cart saved, but other open sessions may not update until they reload"
	}
	return result, nil
}

func (m *Manager) load(ctx context.Context, profile string) (cart.Cart, int64, error) {
	snap, err := m.store.Load(ctx, profile)
	if errors.Is(err, store.ErrSnapshotNotFound) {
		// the profile starts over; forget versions from an earlier snapshot
		m.mu.Lock()
		delete(m.cache, profile)
		m.mu.Unlock()
		return m.newCart(), 0, nil
	}
	if err != nil {
		return cart.Cart{}, 0, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	var c cart.Cart
	if err := json.Unmarshal(snap.State, &c); err != nil {
		return cart.Cart{}, 0, fmt.Errorf("%w: decode snapshot v%d: %w", ErrPersistence, snap.Version, err)
	}
	return c, snap.Version, nil
}

// observe records u and notifies subscribers when it is newer than the last
// version seen. Holding mu across the hub publish keeps deliveries ordered.
func (m *Manager) observe(u Update) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.cache[u.Profile]; ok && prev.Version >= u.Version {
		return
	}
	m.cache[u.Profile] = u
	m.hub.Publish(u)
}

func (m *Manager) announce(ctx context.Context, profile string, c cart.Cart, snap *store.Snapshot) error {
	if m.publisher == nil {
		return nil
	}
	evt, err := store.NewEvent(profile, cart.AggregateType, cart.EventCartUpdated, snap.Version, cart.CartUpdated{
		Profile:   profile,
		CartID:    c.ID,
		Version:   snap.Version,
		Origin:    m.opts.InstanceID,
		UpdatedAt: snap.UpdatedAt,
	})
	if err != nil {
		return err
	}
	return m.publisher.Publish(ctx, profile, evt)
}
