package services

import (
	"testing"
	"time"

	"auction-sync/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNotificationForNewBid(t *testing.T) {
	held := activeAuction(3, bid("b1", "me", 120, baseTime))
	rival := domain.NewBidEvent{AuctionID: "a1", Amount: decimal.NewFromInt(150), BidderID: "rival"}

	n, ok := NotificationFor(rival, held, "me")
	assert.True(t, ok)
	assert.Equal(t, NotifyOutbid, n.Kind)
	assert.Equal(t, "You have been outbid: 150.00", n.Message)

	n, ok = NotificationFor(rival, held, "someone")
	assert.True(t, ok)
	assert.Equal(t, NotifyNewBid, n.Kind)

	n, ok = NotificationFor(rival, held, "")
	assert.True(t, ok)
	assert.Equal(t, NotifyNewBid, n.Kind)

	_, ok = NotificationFor(domain.NewBidEvent{AuctionID: "a1", BidderID: "me"}, held, "me")
	assert.False(t, ok)
}

func TestNotificationForClosingEvents(t *testing.T) {
	sold := domain.AuctionSoldEvent{AuctionID: "a1", WinnerID: "me", FinalPrice: decimal.NewFromInt(300)}

	n, _ := NotificationFor(sold, nil, "me")
	assert.Equal(t, NotifyAuctionWon, n.Kind)
	assert.Equal(t, "You won the auction for 300.00", n.Message)

	n, _ = NotificationFor(sold, nil, "other")
	assert.Equal(t, NotifyAuctionSold, n.Kind)

	n, _ = NotificationFor(domain.AuctionExpiredEvent{AuctionID: "a1"}, nil, "me")
	assert.Equal(t, NotifyAuctionExpired, n.Kind)

	endsAt := baseTime.Add(time.Minute)
	n, _ = NotificationFor(domain.AuctionExtendedEvent{AuctionID: "a1", EndsAt: endsAt}, nil, "")
	assert.Equal(t, NotifyDeadlineExtended, n.Kind)
	assert.True(t, n.EndsAt.Equal(endsAt))

	n, _ = NotificationFor(domain.ViewerCountEvent{Room: "auction:a1", Count: 3}, nil, "")
	assert.Equal(t, "a1", n.AuctionID)
	assert.Equal(t, 3, n.Viewers)
}
