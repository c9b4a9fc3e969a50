package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AuctionStatus string

const (
	AuctionDraft   AuctionStatus = "draft"
	AuctionActive  AuctionStatus = "active"
	AuctionSold    AuctionStatus = "sold"
	AuctionExpired AuctionStatus = "expired"
)

func (s AuctionStatus) String() string {
	return string(s)
}

// rank orders statuses along draft -> active -> {sold|expired}.
func (s AuctionStatus) rank() int {
	switch s {
	case AuctionDraft:
		return 0
	case AuctionActive:
		return 1
	case AuctionSold, AuctionExpired:
		return 2
	default:
		return -1
	}
}

func (s AuctionStatus) IsTerminal() bool {
	return s == AuctionSold || s == AuctionExpired
}

// CanTransitionTo reports whether moving from s to next respects the one-way lifecycle.
// Staying in the same status is allowed.
func (s AuctionStatus) CanTransitionTo(next AuctionStatus) bool {
	if s == next {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	return next.rank() > s.rank()
}

type User struct {
	ID        string          `json:"id"`
	Email     string          `json:"email"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
}

type Bid struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	BidderID  string          `json:"bidderId"`
	AuctionID string          `json:"auctionItemId"`
	CreatedAt time.Time       `json:"createdAt"`
	Bidder    User            `json:"bidder"`
}

type Auction struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	StartingPrice decimal.Decimal `json:"startingPrice"`
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	Status        AuctionStatus   `json:"status"`
	CreatorID     string          `json:"creatorId"`
	WinnerID      *string         `json:"winnerId"`
	EndsAt        time.Time       `json:"endsAt"`
	CreatedAt     time.Time       `json:"createdAt"`
	Version       int64           `json:"version"`
	Creator       *User           `json:"creator,omitempty"`
	Winner        *User           `json:"winner,omitempty"`
	Bids          []Bid           `json:"bids,omitempty"`
}

// TopBid returns the current winning bid, if any.
func (a *Auction) TopBid() (Bid, bool) {
	if len(a.Bids) == 0 {
		return Bid{}, false
	}
	return a.Bids[0], true
}

// Clone returns a copy that shares no mutable slices or pointers with a.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	c := *a
	if a.WinnerID != nil {
		w := *a.WinnerID
		c.WinnerID = &w
	}
	if a.Creator != nil {
		u := *a.Creator
		c.Creator = &u
	}
	if a.Winner != nil {
		u := *a.Winner
		c.Winner = &u
	}
	if a.Bids != nil {
		c.Bids = make([]Bid, len(a.Bids))
		copy(c.Bids, a.Bids)
	}
	return &c
}

// Equal compares the reconciled fields of two auctions.
func (a *Auction) Equal(b *Auction) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ID != b.ID || a.Title != b.Title || a.Description != b.Description ||
		a.Status != b.Status || a.CreatorID != b.CreatorID || a.Version != b.Version ||
		!a.EndsAt.Equal(b.EndsAt) ||
		!a.StartingPrice.Equal(b.StartingPrice) || !a.CurrentPrice.Equal(b.CurrentPrice) {
		return false
	}
	if (a.WinnerID == nil) != (b.WinnerID == nil) || (a.WinnerID != nil && *a.WinnerID != *b.WinnerID) {
		return false
	}
	if len(a.Bids) != len(b.Bids) {
		return false
	}
	for i := range a.Bids {
		x, y := a.Bids[i], b.Bids[i]
		if x.ID != y.ID || x.BidderID != y.BidderID || !x.Amount.Equal(y.Amount) || !x.CreatedAt.Equal(y.CreatedAt) {
			return false
		}
	}
	return true
}

type PageMeta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

type AuctionPage struct {
	Data []Auction `json:"data"`
	Meta PageMeta  `json:"meta"`
}

func (p *AuctionPage) HasMore() bool {
	return p.Meta.Page < p.Meta.TotalPages
}

type ListParams struct {
	Page   int
	Limit  int
	Status string // "", "all" or an AuctionStatus
}

type CreateAuctionParams struct {
	Title         string          `json:"title" validate:"required,max=200"`
	Description   string          `json:"description" validate:"max=5000"`
	StartingPrice decimal.Decimal `json:"startingPrice"`
	EndsAt        time.Time       `json:"endsAt" validate:"required"`
}

type WonAuction struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	FinalPrice  decimal.Decimal `json:"finalPrice"`
	SoldAt      time.Time       `json:"soldAt"`
	EndsAt      time.Time       `json:"endsAt"`
}

type UserProfile struct {
	User
	WonAuctions []WonAuction `json:"wonAuctions"`
}

type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
