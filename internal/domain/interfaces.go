package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const AuthTokenKey = "auth_token"

// Secure storage collaborator
type TokenStore interface {
	// GetItem returns "" with a nil error when the key is absent.
	GetItem(ctx context.Context, key string) (string, error)
	SetItem(ctx context.Context, key, value string) error
}

// REST collaborator
type AuctionAPI interface {
	ListAuctions(ctx context.Context, params ListParams) (*AuctionPage, error)
	GetAuction(ctx context.Context, auctionID string) (*Auction, error)
	PlaceBid(ctx context.Context, auctionID string, amount decimal.Decimal) (*Auction, error)
	CreateAuction(ctx context.Context, params CreateAuctionParams) (*Auction, error)
}

type AccountAPI interface {
	GetProfile(ctx context.Context) (*UserProfile, error)
	Login(ctx context.Context, creds Credentials) (*AuthResponse, error)
	Register(ctx context.Context, creds Credentials) (*AuthResponse, error)
}

// PushChannel is what a view needs from the connection manager.
type PushChannel interface {
	Connect(ctx context.Context) error
	Join(auctionID string)
	Leave(auctionID string)
}

// Sinks for reconciled state and diagnostics
type StateMirror interface {
	MirrorAuction(ctx context.Context, auction *Auction) error
	PublishEvent(ctx context.Context, auctionID string, event Event) error
}

type JournalOutcome string

const (
	OutcomeApplied   JournalOutcome = "applied"
	OutcomeUnchanged JournalOutcome = "unchanged"
	OutcomeStale     JournalOutcome = "stale"
	OutcomeIgnored   JournalOutcome = "ignored"
)

type JournalEntry struct {
	AuctionID  string         `json:"auctionId"`
	Source     string         `json:"source"` // "snapshot", "refetch" or an event kind
	Outcome    JournalOutcome `json:"outcome"`
	Version    int64          `json:"version"`
	Detail     string         `json:"detail,omitempty"`
	RecordedAt time.Time      `json:"recordedAt"`
}

type SyncJournal interface {
	Record(ctx context.Context, entry JournalEntry) error
	History(ctx context.Context, auctionID string, limit int) ([]JournalEntry, error)
}
