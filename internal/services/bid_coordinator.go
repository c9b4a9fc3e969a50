package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"auction-sync/internal/domain"
	"auction-sync/internal/metrics"
	"auction-sync/pkg/logger"

	"github.com/shopspring/decimal"
)

type BidPlacer interface {
	PlaceBid(ctx context.Context, auctionID string, amount decimal.Decimal) (*domain.Auction, error)
}

// BidCoordinator runs user-initiated bids against the REST collaborator and
// reads results back through the store via a refetch.
type BidCoordinator struct {
	api     BidPlacer
	store   *AuctionStateStore
	refetch func()
	metrics *metrics.SyncMetrics
	log     logger.Logger

	mu       sync.RWMutex
	inFlight int
	bidErr   string
}

func NewBidCoordinator(api BidPlacer, store *AuctionStateStore, refetch func(), m *metrics.SyncMetrics, log logger.Logger) *BidCoordinator {
	if refetch == nil {
		refetch = func() {}
	}
	return &BidCoordinator{
		api:     api,
		store:   store,
		refetch: refetch,
		metrics: m,
		log:     log,
	}
}

// ParseBidAmount parses user input into a bid amount.
func ParseBidAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, domain.NewValidationError("parse bid", "Please enter a valid amount")
	}
	return amount, nil
}

// Submit places one bid. Validation failures never reach the network.
func (c *BidCoordinator) Submit(ctx context.Context, auctionID string, amount decimal.Decimal) error {
	if err := c.validate(auctionID, amount); err != nil {
		c.setError(err)
		c.metrics.BidSubmitted("invalid", -1)
		c.log.Info("Bid rejected locally", "auction_id", auctionID, "amount", amount.String(), "reason", domain.UserMessage(err))
		return err
	}

	c.begin()
	start := time.Now()
	_, err := c.api.PlaceBid(ctx, auctionID, amount)
	elapsed := time.Since(start).Seconds()
	c.end()

	if err != nil {
		err = classifyBidError(err)
		c.setError(err)
		c.metrics.BidSubmitted(string(errorKind(err)), elapsed)
		c.log.Warn("Bid failed", "auction_id", auctionID, "amount", amount.String(), "error", err)
		return err
	}

	c.setError(nil)
	c.metrics.BidSubmitted("accepted", elapsed)
	c.log.Info("Bid accepted", "auction_id", auctionID, "amount", amount.String())
	c.refetch()
	return nil
}

func (c *BidCoordinator) validate(auctionID string, amount decimal.Decimal) error {
	if auctionID != c.store.AuctionID() {
		return domain.NewValidationError("submit bid", "Bid targets an auction that is not open")
	}
	if !amount.IsPositive() {
		return domain.NewValidationError("submit bid", "Bid amount must be positive")
	}

	price, status, ok := c.store.CurrentPrice()
	if !ok {
		return domain.NewValidationError("submit bid", "Auction is not loaded yet")
	}
	if status != domain.AuctionActive {
		return domain.NewValidationError("submit bid", "Auction is not accepting bids")
	}
	if !amount.GreaterThan(price) {
		return domain.NewValidationError("submit bid",
			fmt.Sprintf("Bid must be greater than the current price of %s", price.StringFixed(2)))
	}
	return nil
}

func (c *BidCoordinator) begin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight++
}

func (c *BidCoordinator) end() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight > 0 {
		c.inFlight--
	}
}

func (c *BidCoordinator) setError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bidErr = domain.UserMessage(err)
}

func (c *BidCoordinator) InFlight() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inFlight > 0
}

// BidError is the last bid-specific error message, empty after a successful bid.
func (c *BidCoordinator) BidError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bidErr
}

func (c *BidCoordinator) ClearError() {
	c.setError(nil)
}

func classifyBidError(err error) error {
	var se *domain.SyncError
	if errors.As(err, &se) {
		return err
	}
	return domain.NewConnectionError("submit bid", err)
}

func errorKind(err error) domain.ErrorKind {
	var se *domain.SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	return domain.KindConnection
}
