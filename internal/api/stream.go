package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/storefront-cart/internal/api/middleware"
	"go.uber.org/zap"
)

type StreamConfig struct {
	// Heartbeat keeps idle connections open through proxies.
	Heartbeat time.Duration
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.Heartbeat <= 0 {
		c.Heartbeat = 15 * time.Second
	}
	return c
}

// StreamCart sends the current cart, then every later version, as
// server-sent events.
func (h *Handlers) StreamCart(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondJSONError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	profile := middleware.SessionID(ctx)

	// subscribe first so nothing written after the initial read is missed
	sub := h.carts.Subscribe(profile)
	defer sub.Close()

	res, err := h.carts.Current(ctx, profile)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	last := res.Version
	if err := writeEvent(w, res.Version, newCartResponse(res)); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(h.stream.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case u, ok := <-sub.C:
			if !ok {
				return
			}
			if u.Version == last && u.Cart.ID == res.Cart.ID {
				continue
			}
			last = u.Version
			res.Cart = u.Cart
			payload := CartResponse{Cart: u.Cart, Version: u.Version, Outcome: "applied"}
			if err := writeEvent(w, u.Version, payload); err != nil {
				h.logger.Debug("stream closed", zap.String("profile", profile), zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, version int64, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: cart\ndata: %s\n\n", version, data)
	return err
}
