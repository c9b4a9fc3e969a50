package services

import (
	"fmt"
	"time"

	"auction-sync/internal/domain"

	"github.com/shopspring/decimal"
)

type NotificationKind string

const (
	NotifyOutbid           NotificationKind = "outbid"
	NotifyNewBid           NotificationKind = "new_bid"
	NotifyAuctionWon       NotificationKind = "auction_won"
	NotifyAuctionSold      NotificationKind = "auction_sold"
	NotifyAuctionExpired   NotificationKind = "auction_expired"
	NotifyEndingSoon       NotificationKind = "ending_soon"
	NotifyDeadlineExtended NotificationKind = "deadline_extended"
	NotifyViewerCount      NotificationKind = "viewer_count"
)

type Notification struct {
	Kind      NotificationKind `json:"kind"`
	AuctionID string           `json:"auctionId"`
	Message   string           `json:"message"`
	Amount    decimal.Decimal  `json:"amount"`
	EndsAt    time.Time        `json:"endsAt"`
	Viewers   int              `json:"viewers,omitempty"`
}

// Observer is the presentation collaborator of a session.
type Observer interface {
	AuctionUpdated(auction *domain.Auction)
	CountdownTick(remaining string)
	Notify(n Notification)
	ConnectionChanged(state string, err error)
}

type NopObserver struct{}

func (NopObserver) AuctionUpdated(*domain.Auction)  {}
func (NopObserver) CountdownTick(string)            {}
func (NopObserver) Notify(Notification)             {}
func (NopObserver) ConnectionChanged(string, error) {}

// NotificationFor derives the user-facing notice for an event. held is the
// state before the event was reconciled; userID may be empty for anonymous viewers.
func NotificationFor(event domain.Event, held *domain.Auction, userID string) (Notification, bool) {
	switch e := event.(type) {
	case domain.NewBidEvent:
		if userID != "" && e.BidderID == userID {
			return Notification{}, false
		}
		n := Notification{Kind: NotifyNewBid, AuctionID: e.AuctionID, Amount: e.Amount,
			Message: fmt.Sprintf("New bid of %s", e.Amount.StringFixed(2))}
		if held != nil && userID != "" {
			if top, ok := held.TopBid(); ok && top.BidderID == userID {
				n.Kind = NotifyOutbid
				n.Message = fmt.Sprintf("You have been outbid: %s", e.Amount.StringFixed(2))
			}
		}
		return n, true
	case domain.AuctionSoldEvent:
		if userID != "" && e.WinnerID == userID {
			return Notification{Kind: NotifyAuctionWon, AuctionID: e.AuctionID, Amount: e.FinalPrice,
				Message: fmt.Sprintf("You won the auction for %s", e.FinalPrice.StringFixed(2))}, true
		}
		return Notification{Kind: NotifyAuctionSold, AuctionID: e.AuctionID, Amount: e.FinalPrice,
			Message: fmt.Sprintf("Auction sold for %s", e.FinalPrice.StringFixed(2))}, true
	case domain.AuctionExpiredEvent:
		return Notification{Kind: NotifyAuctionExpired, AuctionID: e.AuctionID,
			Message: "Auction ended without a winner"}, true
	case domain.AuctionEndingSoonEvent:
		return Notification{Kind: NotifyEndingSoon, AuctionID: e.AuctionID, EndsAt: e.EndsAt,
			Message: "Auction ending soon"}, true
	case domain.AuctionExtendedEvent:
		return Notification{Kind: NotifyDeadlineExtended, AuctionID: e.AuctionID, EndsAt: e.EndsAt,
			Message: "Auction deadline extended"}, true
	case domain.ViewerCountEvent:
		return Notification{Kind: NotifyViewerCount, AuctionID: e.AuctionRef(), Viewers: e.Count,
			Message: fmt.Sprintf("%d watching", e.Count)}, true
	default:
		return Notification{}, false
	}
}
