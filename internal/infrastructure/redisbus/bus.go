// Package redisbus carries cart change events over Redis pub/sub.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type MessageHandler func(ctx context.Context, key, value []byte) error

// message is the wire form; pub/sub has no message key so it travels inline.
type message struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

type Bus struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func New(client *redis.Client, channel string, logger *zap.Logger) *Bus {
	return &Bus{client: client, channel: channel, logger: logger.Named("redisbus")}
}

func (b *Bus) Publish(ctx context.Context, key string, event any) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data, err := json.Marshal(message{Key: key, Value: value})
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Consume blocks until ctx is done, passing every message to handler.
func (b *Bus) Consume(ctx context.Context, handler MessageHandler) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				b.logger.Warn("discarding malformed message", zap.Error(err))
				continue
			}
			if err := handler(ctx, []byte(m.Key), m.Value); err != nil {
				b.logger.Error("handle message", zap.String("key", m.Key), zap.Error(err))
			}
		}
	}
}

func (b *Bus) Close() error {
	return nil
}
