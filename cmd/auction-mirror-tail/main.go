package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"auction-sync/internal/config"
	"auction-sync/internal/domain"
	"auction-sync/internal/infrastructure/redis"
	"auction-sync/pkg/logger"

	redisClient "github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
)

// auction-mirror-tail follows the state a watcher mirrors into Redis, for
// local tools that should not open their own push connection.
func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal("Failed to load config", "error", err)
	}
	log := logger.NewWithLevel(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", "error", err)
	}
	defer rdb.Close()

	mirror := redis.NewRedisStateMirror(rdb, cfg.Redis.Channel)
	subscriber := redis.NewRedisMirrorSubscriber(rdb, cfg.Redis.Channel, log)

	report := func(auctionID string) {
		fields, err := mirror.MirroredState(ctx, auctionID)
		if errors.Is(err, redisClient.Nil) {
			log.Info("No mirrored state yet", "auction_id", auctionID)
			return
		}
		if err != nil {
			log.Error("Failed to read mirrored state", "auction_id", auctionID, "error", err)
			return
		}
		log.Info("Mirrored state",
			"auction_id", auctionID,
			"status", fields["status"],
			"current_price", fields["current_price"],
			"version", fields["version"],
			"ends_at", fields["ends_at"])
	}

	if cfg.Session.AuctionID != "" {
		report(cfg.Session.AuctionID)
	}

	err = subscriber.Subscribe(ctx, func(auctionID string, event domain.Event) error {
		if cfg.Session.AuctionID != "" && auctionID != cfg.Session.AuctionID {
			return nil
		}
		log.Info("Mirrored event", "auction_id", auctionID, "kind", event.Kind())
		report(auctionID)
		return nil
	}, nil)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("Mirror subscription failed", "error", err)
	}
	log.Info("Mirror tail stopped")
}
