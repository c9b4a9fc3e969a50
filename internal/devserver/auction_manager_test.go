package devserver

import (
	"context"
	"sync"
	"testing"
	"time"

	"auction-sync/internal/domain"
	"auction-sync/pkg/logger"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) BroadcastToAuction(_ context.Context, _ string, event domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) kinds() []domain.EventKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	kinds := make([]domain.EventKind, 0, len(b.events))
	for _, e := range b.events {
		kinds = append(kinds, e.Kind())
	}
	return kinds
}

func newTestManager(t *testing.T) (*AuctionManager, *clockwork.FakeClock, *recordingBus) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	bus := &recordingBus{}
	return NewAuctionManager(Rules{}, clock, bus, logger.NewNop()), clock, bus
}

func createAuction(t *testing.T, am *AuctionManager, clock clockwork.Clock, endsIn time.Duration) *domain.Auction {
	t.Helper()
	auction, err := am.CreateAuction("creator", domain.CreateAuctionParams{
		Title:         "Lamp",
		StartingPrice: decimal.NewFromInt(100),
		EndsAt:        clock.Now().Add(endsIn),
	})
	require.NoError(t, err)
	return auction
}

func TestPlaceBidRules(t *testing.T) {
	am, clock, bus := newTestManager(t)
	auction := createAuction(t, am, clock, time.Hour)
	ctx := context.Background()

	_, err := am.PlaceBid(ctx, auction.ID, "u1", decimal.NewFromInt(100))
	assert.ErrorIs(t, err, ErrBidTooLow)

	_, err = am.PlaceBid(ctx, auction.ID, "creator", decimal.NewFromInt(150))
	assert.ErrorIs(t, err, ErrOwnAuction)

	_, err = am.PlaceBid(ctx, "missing", "u1", decimal.NewFromInt(150))
	assert.ErrorIs(t, err, ErrAuctionNotFound)

	updated, err := am.PlaceBid(ctx, auction.ID, "u1", decimal.NewFromInt(150))
	require.NoError(t, err)
	assert.True(t, updated.CurrentPrice.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, auction.Version+1, updated.Version)
	assert.True(t, updated.EndsAt.Equal(auction.EndsAt))

	updated, err = am.PlaceBid(ctx, auction.ID, "u2", decimal.NewFromInt(175))
	require.NoError(t, err)
	require.Len(t, updated.Bids, 2)
	assert.Equal(t, "u2", updated.Bids[0].BidderID)

	assert.Equal(t, []domain.EventKind{domain.EventNewBid, domain.EventNewBid}, bus.kinds())
}

func TestPlaceBidInsideWindowExtends(t *testing.T) {
	am, clock, bus := newTestManager(t)
	auction := createAuction(t, am, clock, 20*time.Second)

	updated, err := am.PlaceBid(context.Background(), auction.ID, "u1", decimal.NewFromInt(120))
	require.NoError(t, err)
	assert.True(t, updated.EndsAt.Equal(auction.EndsAt.Add(30*time.Second)))

	require.Equal(t, []domain.EventKind{domain.EventNewBid, domain.EventAuctionExtended}, bus.kinds())
	ext := bus.events[1].(domain.AuctionExtendedEvent)
	assert.True(t, ext.EndsAt.Equal(updated.EndsAt))
}

func TestSweepEndingSoonOnce(t *testing.T) {
	am, clock, bus := newTestManager(t)
	createAuction(t, am, clock, 50*time.Second)
	ctx := context.Background()

	am.Sweep(ctx)
	am.Sweep(ctx)
	assert.Equal(t, []domain.EventKind{domain.EventAuctionEndingSoon}, bus.kinds())
}

func TestSweepClosesAuctions(t *testing.T) {
	am, clock, bus := newTestManager(t)
	sold := createAuction(t, am, clock, 5*time.Minute)
	expired := createAuction(t, am, clock, 5*time.Minute)
	ctx := context.Background()

	_, err := am.PlaceBid(ctx, sold.ID, "u1", decimal.NewFromInt(130))
	require.NoError(t, err)

	clock.Advance(6 * time.Minute)
	am.Sweep(ctx)

	got, err := am.GetAuction(sold.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionSold, got.Status)
	require.NotNil(t, got.WinnerID)
	assert.Equal(t, "u1", *got.WinnerID)

	got, err = am.GetAuction(expired.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionExpired, got.Status)
	assert.Nil(t, got.WinnerID)

	assert.ElementsMatch(t,
		[]domain.EventKind{domain.EventNewBid, domain.EventAuctionSold, domain.EventAuctionExpired},
		bus.kinds())

	_, err = am.PlaceBid(ctx, sold.ID, "u2", decimal.NewFromInt(500))
	assert.ErrorIs(t, err, ErrAuctionNotActive)

	am.Sweep(ctx)
	assert.Len(t, bus.kinds(), 3)
}

func TestListAuctionsPaging(t *testing.T) {
	am, clock, _ := newTestManager(t)
	for i := 0; i < 3; i++ {
		createAuction(t, am, clock, time.Hour)
		clock.Advance(time.Second)
	}

	page := am.ListAuctions(domain.ListParams{Page: 1, Limit: 2})
	assert.Len(t, page.Data, 2)
	assert.Equal(t, 3, page.Meta.Total)
	assert.Equal(t, 2, page.Meta.TotalPages)
	assert.True(t, page.HasMore())

	page = am.ListAuctions(domain.ListParams{Page: 2, Limit: 2})
	assert.Len(t, page.Data, 1)
	assert.False(t, page.HasMore())

	page = am.ListAuctions(domain.ListParams{Status: "sold"})
	assert.Empty(t, page.Data)
}

func TestAccounts(t *testing.T) {
	am, clock, _ := newTestManager(t)

	user, err := am.Register("A@B.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", user.Email)

	_, err = am.Register("a@b.com", "other12")
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = am.Login("a@b.com", "wrong12")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	logged, err := am.Login("a@b.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, logged.ID)

	auction := createAuction(t, am, clock, time.Minute)
	_, err = am.PlaceBid(context.Background(), auction.ID, user.ID, decimal.NewFromInt(101))
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)
	am.Sweep(context.Background())

	profile, err := am.Profile(user.ID)
	require.NoError(t, err)
	require.Len(t, profile.WonAuctions, 1)
	assert.True(t, profile.WonAuctions[0].FinalPrice.Equal(decimal.NewFromInt(101)))
}

func TestSeededAuctionIsSwept(t *testing.T) {
	am, clock, bus := newTestManager(t)
	now := clock.Now()
	am.Seed(&domain.Auction{
		ID:            "seeded",
		StartingPrice: decimal.NewFromInt(50),
		CurrentPrice:  decimal.NewFromInt(80),
		Status:        domain.AuctionActive,
		EndsAt:        now.Add(-time.Second),
		Version:       4,
		Bids:          []domain.Bid{{ID: "b1", BidderID: "u3", Amount: decimal.NewFromInt(80), CreatedAt: now.Add(-time.Minute)}},
	})

	am.Sweep(context.Background())

	got, err := am.GetAuction("seeded")
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionSold, got.Status)
	assert.Equal(t, int64(5), got.Version)
	assert.Equal(t, []domain.EventKind{domain.EventAuctionSold}, bus.kinds())
}
