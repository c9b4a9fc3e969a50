package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-sync/internal/config"
	"auction-sync/internal/devserver"
	"auction-sync/internal/domain"
	"auction-sync/pkg/logger"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal("Failed to load config", "error", err)
	}
	log := logger.NewWithLevel(cfg.Log.Level)
	log.Info("Starting auction dev server")

	clock := clockwork.NewRealClock()
	srv := devserver.NewServer(cfg.DevServer, cfg.Socket.Path, clock, log)

	// demo data so a watcher has something to follow right away
	seller, err := srv.Manager.Register("seller@example.com", "password")
	if err != nil {
		log.Fatal("Failed to seed seller", "error", err)
	}
	auction, err := srv.Manager.CreateAuction(seller.ID, domain.CreateAuctionParams{
		Title:         "Vintage film camera",
		Description:   "Fully working, with original case",
		StartingPrice: decimal.NewFromInt(100),
		EndsAt:        clock.Now().Add(10 * time.Minute),
	})
	if err != nil {
		log.Fatal("Failed to seed auction", "error", err)
	}
	log.Info("Seeded demo auction", "auction_id", auction.ID, "seller", seller.Email)

	bidder, err := srv.Manager.Register("bidder@example.com", "password")
	if err != nil {
		log.Fatal("Failed to seed bidder", "error", err)
	}
	now := clock.Now()
	closingID := uuid.NewString()
	closing := &domain.Auction{
		ID:            closingID,
		Title:         "Mechanical keyboard",
		StartingPrice: decimal.NewFromInt(50),
		CurrentPrice:  decimal.NewFromInt(80),
		Status:        domain.AuctionActive,
		EndsAt:        now.Add(45 * time.Second),
		CreatedAt:     now.Add(-time.Hour),
		CreatorID:     seller.ID,
		Version:       2,
		Bids: []domain.Bid{{
			ID:        uuid.NewString(),
			AuctionID: closingID,
			BidderID:  bidder.ID,
			Amount:    decimal.NewFromInt(80),
			CreatedAt: now.Add(-time.Minute),
		}},
	}
	srv.Manager.Seed(closing)
	log.Info("Seeded closing auction", "auction_id", closing.ID, "ends_at", closing.EndsAt.Format(time.RFC3339))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(ctx); err != nil {
			log.Error("Dev server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down dev server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Dev server forced to shutdown", "error", err)
	}
	log.Info("Dev server stopped")
}
