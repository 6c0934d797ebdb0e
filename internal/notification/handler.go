package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/storefront-cart/internal/domain/cart"
	"github.com/example/storefront-cart/internal/email"
	"github.com/example/storefront-cart/internal/infrastructure/store"
	"go.uber.org/zap"
)

// ReceiptSender delivers a rendered receipt.
type ReceiptSender interface {
	SendReceipt(to string, r email.Receipt) error
}

// Handler processes change events and emails receipts for completed checkouts.
type Handler struct {
	sender ReceiptSender
	logger *zap.Logger
}

func NewHandler(sender ReceiptSender, logger *zap.Logger) *Handler {
	return &Handler{sender: sender, logger: logger.Named("notifier")}
}

// HandleEvent processes an event from the change channel.
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}

	// Only CheckoutCompleted produces mail
	if event.EventType != cart.EventCheckoutCompleted {
		return nil
	}
	return h.handleCheckoutCompleted(event)
}

func (h *Handler) handleCheckoutCompleted(event store.Event) error {
	var e cart.CheckoutCompleted
	if err := event.Decode(&e); err != nil {
		return fmt.Errorf("decode %s: %w", event.EventType, err)
	}

	if e.Email == "" {
		h.logger.Info("no email on checkout, skipping receipt",
			zap.String("profile", e.Profile),
			zap.String("transaction_ref", e.TransactionRef),
		)
		return nil
	}

	if err := h.sender.SendReceipt(e.Email, ToReceipt(e)); err != nil {
		h.logger.Error("send receipt",
			zap.String("profile", e.Profile),
			zap.String("transaction_ref", e.TransactionRef),
			zap.Error(err),
		)
		return err
	}

	h.logger.Info("receipt sent",
		zap.String("profile", e.Profile),
		zap.String("transaction_ref", e.TransactionRef),
	)
	return nil
}

// ToReceipt converts a completed checkout into email data.
func ToReceipt(e cart.CheckoutCompleted) email.Receipt {
	items := make([]email.ReceiptItem, len(e.Lines))
	for i, l := range e.Lines {
		title := l.Merchandise.Product.Title
		if title == "" {
			title = l.Merchandise.ID
		}
		items[i] = email.ReceiptItem{
			Title:     title,
			Variant:   l.Merchandise.Title,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.String(),
			Subtotal:  l.Cost.TotalAmount.String(),
		}
	}
	return email.Receipt{
		CartID:         e.CartID,
		TransactionRef: e.TransactionRef,
		Currency:       e.Total.CurrencyCode,
		Total:          e.Total.String(),
		Items:          items,
		CompletedAt:    e.CompletedAt,
	}
}
