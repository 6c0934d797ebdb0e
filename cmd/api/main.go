package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/example/storefront-cart/internal/api"
	"github.com/example/storefront-cart/internal/auth"
	"github.com/example/storefront-cart/internal/cartstore"
	"github.com/example/storefront-cart/internal/checkout"
	"github.com/example/storefront-cart/internal/config"
	"github.com/example/storefront-cart/internal/domain/catalog"
	"github.com/example/storefront-cart/internal/logger"
	"github.com/example/storefront-cart/internal/telemetry"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	log := logger.Must(cfg.LogLevel, cfg.Development())
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	if err := cfg.ValidateAPI(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer := telemetry.Noop
	if cfg.OTelEnabled {
		var err error
		shutdownTracer, err = telemetry.SetupTracer(ctx, cfg.ServiceName, cfg.AppEnv)
		if err != nil {
			return err
		}
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	log.Info("starting storefront cart api",
		zap.String("instance_id", cfg.InstanceID),
		zap.String("store", cfg.StoreBackend),
		zap.String("channel", cfg.ChangeChannel),
		zap.String("currency", cfg.Currency),
	)

	products, err := catalog.LoadFile(cfg.CatalogFile)
	if err != nil {
		return err
	}

	snapshots, closeStore, err := buildStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	channel, err := buildChannel(cfg, log)
	if err != nil {
		return err
	}
	var publisher cartstore.Publisher
	if channel != nil {
		publisher = channel.publisher
		defer channel.close()
	}

	checkoutURL := cfg.CheckoutURL
	if checkoutURL != "" && !strings.Contains(checkoutURL, "{cart_id}") {
		checkoutURL = strings.TrimRight(checkoutURL, "/") + "/{cart_id}"
	}
	carts := cartstore.NewManager(snapshots, publisher, log, cartstore.Options{
		Currency:       cfg.Currency,
		CheckoutURL:    checkoutURL,
		InstanceID:     cfg.InstanceID,
		MaxAttempts:    uint(max(cfg.MaxAttempts, 1)),
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
	})

	var wg sync.WaitGroup
	if channel != nil {
		syncer := cartstore.NewSyncer(carts, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := channel.consume(ctx, syncer.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("change channel consumer stopped", zap.Error(err))
			}
		}()
	}

	checkoutService := checkout.NewService(carts, buildGateway(cfg, log), publisher, log)
	authenticator := auth.NewAuthenticator(
		auth.NewMemoryUserStore(),
		auth.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer, cfg.SessionTTL),
		cfg.BcryptCost,
	)

	handlers := api.NewHandlers(carts, products, checkoutService, log, api.StreamConfig{Heartbeat: cfg.StreamHeartbeat})
	sessions := api.NewSessionHandlers(authenticator, cfg.SecureCookie, log)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewRouter(handlers, sessions, log),
		// cart streams are long-lived
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server started", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	// cancelling first ends open streams and the consumer
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown", zap.Error(err))
	}

	wg.Wait()
	return nil
}
