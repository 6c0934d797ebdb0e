package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/storefront-cart/internal/config"
	"github.com/example/storefront-cart/internal/email"
	"github.com/example/storefront-cart/internal/infrastructure/kafka"
	"github.com/example/storefront-cart/internal/infrastructure/redisbus"
	"github.com/example/storefront-cart/internal/logger"
	"github.com/example/storefront-cart/internal/notification"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()
	log := logger.Must(cfg.LogLevel, cfg.Development())
	defer log.Sync()

	log.Info("starting receipt notifier",
		zap.String("channel", cfg.ChangeChannel),
		zap.String("smtp", cfg.SMTPHost+":"+cfg.SMTPPort),
		zap.String("from", cfg.SMTPFrom),
	)

	emailSvc := email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPUsername, cfg.SMTPPassword)
	handler := notification.NewHandler(emailSvc, log)

	var consume func(ctx context.Context) error
	switch cfg.ChangeChannel {
	case config.ChannelKafka:
		// a shared group so each receipt is sent once across replicas
		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.NotifierGroup, log)
		defer consumer.Close()
		consume = func(ctx context.Context) error { return consumer.Consume(ctx, handler.HandleEvent) }
	case config.ChannelRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer client.Close()
		bus := redisbus.New(client, cfg.RedisChannel, log)
		consume = func(ctx context.Context) error { return bus.Consume(ctx, handler.HandleEvent) }
	default:
		log.Fatal("notifier needs CHANGE_CHANNEL=kafka or redis", zap.String("channel", cfg.ChangeChannel))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consume(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("consumer stopped", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-done:
	}

	log.Info("shutting down")
	cancel()
	<-done
}
