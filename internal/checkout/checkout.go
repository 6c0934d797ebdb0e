package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/storefront-cart/internal/cartstore"
	"github.com/example/storefront-cart/internal/domain/cart"
	"github.com/example/storefront-cart/internal/infrastructure/store"
	"github.com/example/storefront-cart/internal/payment"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrEmptyCart = errors.New("cart is empty")
	// ErrPaymentUnavailable wraps gateway transport failures.
	ErrPaymentUnavailable = errors.New("payment provider unavailable")
)

// DeclinedError carries the provider's reason for refusing a charge.
type DeclinedError struct {
	Reason string
}

func (e *DeclinedError) Error() string {
	return "payment declined: " + e.Reason
}

type Carts interface {
	Current(ctx context.Context, profile string) (cartstore.Result, error)
	Settle(ctx context.Context, profile string, purchased cart.Cart) (cartstore.Result, error)
}

type Request struct {
	PaymentMethodID string
	Email           string
	Metadata        map[string]string
}

type Receipt struct {
	CartID         string
	TransactionRef string
	Total          cart.Money
	Lines          []cart.Line
	// Cart is what remains after the purchased lines were removed.
	Cart     cart.Cart
	Version  int64
	Warnings []string
}

type Service struct {
	carts     Carts
	gateway   payment.Gateway
	publisher cartstore.Publisher
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

func NewService(carts Carts, gateway payment.Gateway, publisher cartstore.Publisher, logger *zap.Logger) *Service {
	return &Service{
		carts:     carts,
		gateway:   gateway,
		publisher: publisher,
		logger:    logger.Named("checkout"),
		tracer:    otel.Tracer("github.com/example/storefront-cart/internal/checkout"),
		now:       time.Now,
	}
}

// Checkout charges the current cart. A failed or declined charge leaves the
// cart untouched; a confirmed one removes the purchased lines.
func (s *Service) Checkout(ctx context.Context, profile string, req Request) (*Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Checkout", trace.WithAttributes(attribute.String("cart.profile", profile)))
	defer span.End()

	current, err := s.carts.Current(ctx, profile)
	if err != nil {
		return nil, err
	}
	purchased := current.Cart
	if purchased.IsEmpty() {
		return nil, ErrEmptyCart
	}

	total := purchased.Cost.TotalAmount
	metadata := map[string]string{
		"cart_id":      purchased.ID,
		"cart_version": fmt.Sprint(current.Version),
	}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	idempotencyKey := fmt.Sprintf("%s:%d", purchased.ID, current.Version)
	var transactionRef string
	if total.Amount.IsZero() {
		// Nothing to charge; the order is confirmed without the gateway.
		transactionRef = "free:" + idempotencyKey
		s.logger.Info("zero total checkout", zap.String("profile", profile), zap.String("cart_id", purchased.ID))
	} else {
		result, err := s.gateway.Charge(ctx, payment.ChargeRequest{
			Amount:          total.Amount,
			Currency:        total.CurrencyCode,
			PaymentMethodID: req.PaymentMethodID,
			Metadata:        metadata,
			IdempotencyKey:  idempotencyKey,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "charge failed")
			s.logger.Error("charge failed", zap.String("profile", profile), zap.String("cart_id", purchased.ID), zap.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrPaymentUnavailable, err)
		}
		if !result.Succeeded {
			s.logger.Info("payment declined", zap.String("profile", profile), zap.String("reason", result.FailureReason))
			return nil, &DeclinedError{Reason: result.FailureReason}
		}
		transactionRef = result.TransactionRef
	}

	span.SetAttributes(attribute.String("payment.ref", transactionRef))
	receipt := &Receipt{
		CartID:         purchased.ID,
		TransactionRef: transactionRef,
		Total:          total,
		Lines:          purchased.Lines,
	}

	settled, err := s.carts.Settle(ctx, profile, purchased)
	if err != nil {
		s.logger.Error("paid cart not cleared",
			zap.String("profile", profile),
			zap.String("transaction_ref", transactionRef),
			zap.Error(err),
		)
		receipt.Warnings = append(receipt.Warnings, "payment succeeded but the cart could not be cleared")
	} else {
		receipt.Cart = settled.Cart
		receipt.Version = settled.Version
		if settled.Warning != "" {
			receipt.Warnings = append(receipt.Warnings, settled.Warning)
		}
	}

	if err := s.announce(ctx, profile, req.Email, receipt); err != nil {
		s.logger.Warn("checkout event not published", zap.String("profile", profile), zap.Error(err))
		receipt.Warnings = append(receipt.Warnings, "payment succeeded but the receipt email may not be sent")
	}
	return receipt, nil
}

func (s *Service) announce(ctx context.Context, profile, email string, r *Receipt) error {
	if s.publisher == nil {
		return nil
	}
	evt, err := store.NewEvent(profile, cart.AggregateType, cart.EventCheckoutCompleted, r.Version, cart.CheckoutCompleted{
		Profile:        profile,
		CartID:         r.CartID,
		TransactionRef: r.TransactionRef,
		Email:          email,
		Total:          r.Total,
		Lines:          r.Lines,
		CompletedAt:    s.now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, profile, evt)
}
