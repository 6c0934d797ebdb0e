package main

import (
	"context"
	"flag"

	"github.com/example/storefront-cart/internal/config"
	"github.com/example/storefront-cart/internal/logger"
	"github.com/example/storefront-cart/internal/migrate"
	"go.uber.org/zap"
)

func main() {
	down := flag.Bool("down", false, "roll back every migration")
	flag.Parse()

	cfg := config.Load()
	log := logger.Must(cfg.LogLevel, cfg.Development()).Named("migrate")
	defer log.Sync()

	ctx := context.Background()
	if *down {
		if err := migrate.Down(ctx, cfg.DatabaseURL); err != nil {
			log.Fatal("roll back migrations", zap.Error(err))
		}
		log.Info("migrations rolled back")
		return
	}

	if err := migrate.Apply(ctx, cfg.DatabaseURL, log); err != nil {
		log.Fatal("apply migrations", zap.Error(err))
	}
}
