package cartstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/storefront-cart/internal/domain/cart"
	"github.com/example/storefront-cart/internal/infrastructure/store"
	"go.uber.org/zap"
)

// Syncer applies change events from other instances to a Manager. It is the
// only path by which external writes reach local subscribers.
type Syncer struct {
	manager *Manager
	logger  *zap.Logger
}

func NewSyncer(manager *Manager, logger *zap.Logger) *Syncer {
	return &Syncer{manager: manager, logger: logger.Named("syncer")}
}

// HandleEvent matches the change channel consumer handler signature.
func (s *Syncer) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	if event.AggregateType != "" && event.AggregateType != cart.AggregateType {
		return nil
	}

	var origin string
	switch event.EventType {
	case cart.EventCartUpdated:
		var payload cart.CartUpdated
		if err := event.Decode(&payload); err != nil {
			return fmt.Errorf("decode %s: %w", event.EventType, err)
		}
		origin = payload.Origin
	case cart.EventCartCleared:
		var payload cart.CartCleared
		if err := event.Decode(&payload); err != nil {
			return fmt.Errorf("decode %s: %w", event.EventType, err)
		}
		origin = payload.Origin
	default:
		return nil
	}

	profile := event.AggregateID
	if profile == "" {
		profile = string(key)
	}
	if origin == s.manager.InstanceID() || !s.manager.Tracks(profile) {
		return nil
	}

	s.logger.Debug("refreshing cart",
		zap.String("profile", profile),
		zap.String("event_type", event.EventType),
		zap.Int64("version", event.Version),
	)
	if _, err := s.manager.Refresh(ctx, profile); err != nil {
		return fmt.Errorf("refresh %s: %w", profile, err)
	}
	return nil
}
