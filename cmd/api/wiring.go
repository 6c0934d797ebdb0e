package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/example/storefront-cart/internal/cartstore"
	"github.com/example/storefront-cart/internal/config"
	"github.com/example/storefront-cart/internal/infrastructure/kafka"
	"github.com/example/storefront-cart/internal/infrastructure/redisbus"
	"github.com/example/storefront-cart/internal/infrastructure/store"
	"github.com/example/storefront-cart/internal/payment"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type handlerFunc = func(ctx context.Context, key, value []byte) error

// changeChannel is the external publish side plus the consume loop.
type changeChannel struct {
	publisher cartstore.Publisher
	consume   func(ctx context.Context, handler handlerFunc) error
	close     func() error
}

func newRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.SnapshotStore, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreRedis:
		client := newRedisClient(cfg)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		logger.Info("snapshot store: redis", zap.String("addr", cfg.RedisAddr))
		return store.NewRedisStore(client, cfg.RedisKeyPrefix, cfg.SnapshotTTL), func() { client.Close() }, nil

	case config.StorePostgres:
		db, err := store.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		logger.Info("snapshot store: postgres")
		return store.NewPostgresStore(db), func() { db.Close() }, nil

	case config.StoreDynamo:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.DynamoEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.DynamoEndpoint)
			}
		})
		logger.Info("snapshot store: dynamodb", zap.String("table", cfg.DynamoTable))
		return store.NewDynamoStore(client, cfg.DynamoTable), func() {}, nil

	default:
		logger.Warn("snapshot store: memory, carts are lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	}
}

// buildChannel connects the change channel. Every API instance consumes
// under its own group so each one sees every change.
func buildChannel(cfg config.Config, logger *zap.Logger) (*changeChannel, error) {
	switch cfg.ChangeChannel {
	case config.ChannelKafka:
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, "cart-api-"+cfg.InstanceID, logger)
		logger.Info("change channel: kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
		return &changeChannel{
			publisher: producer,
			consume: func(ctx context.Context, h handlerFunc) error {
				return consumer.Consume(ctx, h)
			},
			close: func() error {
				consumer.Close()
				return producer.Close()
			},
		}, nil

	case config.ChannelRedis:
		client := newRedisClient(cfg)
		bus := redisbus.New(client, cfg.RedisChannel, logger)
		logger.Info("change channel: redis", zap.String("channel", cfg.RedisChannel))
		return &changeChannel{
			publisher: bus,
			consume: func(ctx context.Context, h handlerFunc) error {
				return bus.Consume(ctx, h)
			},
			close: func() error {
				bus.Close()
				return client.Close()
			},
		}, nil

	default:
		logger.Info("change channel: none, carts are only synchronised within this instance")
		return nil, nil
	}
}

func buildGateway(cfg config.Config, logger *zap.Logger) payment.Gateway {
	if cfg.PaymentGateway == config.GatewayStripe {
		logger.Info("payment gateway: stripe")
		return payment.NewStripeGateway(cfg.StripeSecretKey)
	}
	logger.Info("payment gateway: simulated", zap.String("limit", cfg.SimulatedLimit.String()))
	return payment.NewSimulatedGateway(cfg.SimulatedLimit)
}
