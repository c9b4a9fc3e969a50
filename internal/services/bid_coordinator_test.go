package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"auction-sync/internal/domain"
	"auction-sync/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlacer struct {
	mu     sync.Mutex
	calls  []decimal.Decimal
	err    error
	during func()
}

func (f *fakePlacer) PlaceBid(_ context.Context, _ string, amount decimal.Decimal) (*domain.Auction, error) {
	f.mu.Lock()
	f.calls = append(f.calls, amount)
	during := f.during
	f.mu.Unlock()

	if during != nil {
		during()
	}
	return nil, f.err
}

func (f *fakePlacer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestSubmitBelowPriceNeverCallsNetwork(t *testing.T) {
	store := newStore(t, activeAuction(3))
	api := &fakePlacer{}
	refetches := 0
	c := NewBidCoordinator(api, store, func() { refetches++ }, nil, logger.NewNop())

	err := c.Submit(context.Background(), "a1", decimal.NewFromInt(50))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Equal(t, "Bid must be greater than the current price of 100.00", c.BidError())
	assert.Zero(t, api.callCount())
	assert.Zero(t, refetches)

	err = c.Submit(context.Background(), "a1", decimal.NewFromInt(100))
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Zero(t, api.callCount())
}

func TestSubmitValidationCases(t *testing.T) {
	closed := activeAuction(3)
	closed.Status = domain.AuctionSold

	tests := []struct {
		name      string
		initial   *domain.Auction
		auctionID string
		amount    int64
	}{
		{"not loaded", nil, "a1", 500},
		{"not active", closed, "a1", 500},
		{"other auction", activeAuction(3), "b2", 500},
		{"non positive", activeAuction(3), "a1", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakePlacer{}
			c := NewBidCoordinator(api, newStore(t, tt.initial), nil, nil, logger.NewNop())

			err := c.Submit(context.Background(), tt.auctionID, decimal.NewFromInt(tt.amount))
			assert.True(t, errors.Is(err, domain.ErrValidation))
			assert.NotEmpty(t, c.BidError())
			assert.Zero(t, api.callCount())
		})
	}
}

func TestSubmitSuccessRefetchesAndLeavesStore(t *testing.T) {
	store := newStore(t, activeAuction(3))
	refetches := 0

	var c *BidCoordinator
	api := &fakePlacer{}
	api.during = func() { assert.True(t, c.InFlight()) }
	c = NewBidCoordinator(api, store, func() { refetches++ }, nil, logger.NewNop())

	c.ClearError()
	require.NoError(t, c.Submit(context.Background(), "a1", decimal.NewFromInt(120)))
	assert.Equal(t, 1, api.callCount())
	assert.Equal(t, 1, refetches)
	assert.False(t, c.InFlight())
	assert.Empty(t, c.BidError())

	price, _, _ := store.CurrentPrice()
	assert.True(t, price.Equal(decimal.NewFromInt(100)))
}

func TestSubmitFailureKeepsStateAndSurfacesError(t *testing.T) {
	store := newStore(t, activeAuction(3))
	refetches := 0
	api := &fakePlacer{err: domain.NewServerRejection("place bid", "Bid amount must be higher than current price", http.StatusBadRequest)}
	c := NewBidCoordinator(api, store, func() { refetches++ }, nil, logger.NewNop())

	err := c.Submit(context.Background(), "a1", decimal.NewFromInt(120))
	assert.True(t, errors.Is(err, domain.ErrServerRejection))
	assert.Equal(t, "Bid amount must be higher than current price", c.BidError())
	assert.Zero(t, refetches)
	assert.False(t, c.InFlight())

	held, _ := store.Snapshot()
	assert.Equal(t, int64(3), held.Version)
}

func TestSubmitTransportFailureIsConnectionError(t *testing.T) {
	api := &fakePlacer{err: errors.New("dial tcp: refused")}
	c := NewBidCoordinator(api, newStore(t, activeAuction(3)), nil, nil, logger.NewNop())

	err := c.Submit(context.Background(), "a1", decimal.NewFromInt(120))
	assert.True(t, errors.Is(err, domain.ErrConnection))
}

func TestParseBidAmount(t *testing.T) {
	amount, err := ParseBidAmount(" 125.50 ")
	require.NoError(t, err)
	assert.Equal(t, "125.5", amount.String())

	_, err = ParseBidAmount("12abc")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}
