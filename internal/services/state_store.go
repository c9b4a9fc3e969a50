package services

import (
	"sort"
	"sync"
	"time"

	"auction-sync/internal/domain"
	"auction-sync/internal/metrics"
	"auction-sync/pkg/logger"

	"github.com/shopspring/decimal"
)

type MergeResult int

const (
	MergeApplied MergeResult = iota
	MergeUnchanged
	MergeStale
	MergeRejected
	MergeClosed
)

func (r MergeResult) String() string {
	switch r {
	case MergeApplied:
		return "applied"
	case MergeUnchanged:
		return "unchanged"
	case MergeStale:
		return "stale"
	case MergeRejected:
		return "rejected"
	case MergeClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func (r MergeResult) JournalOutcome() domain.JournalOutcome {
	switch r {
	case MergeApplied:
		return domain.OutcomeApplied
	case MergeUnchanged:
		return domain.OutcomeUnchanged
	case MergeStale:
		return domain.OutcomeStale
	default:
		return domain.OutcomeIgnored
	}
}

// AuctionStateStore holds the reconciled view of a single auction.
type AuctionStateStore struct {
	auctionID string
	mu        sync.RWMutex
	auction   *domain.Auction
	closed    bool
	metrics   *metrics.SyncMetrics
	log       logger.Logger
}

func NewAuctionStateStore(auctionID string, m *metrics.SyncMetrics, log logger.Logger) *AuctionStateStore {
	return &AuctionStateStore{
		auctionID: auctionID,
		metrics:   m,
		log:       log,
	}
}

func (s *AuctionStateStore) AuctionID() string {
	return s.auctionID
}

// Snapshot returns a copy of the held auction.
func (s *AuctionStateStore) Snapshot() (*domain.Auction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.auction == nil {
		return nil, false
	}
	return s.auction.Clone(), true
}

func (s *AuctionStateStore) CurrentPrice() (decimal.Decimal, domain.AuctionStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.auction == nil {
		return decimal.Zero, "", false
	}
	return s.auction.CurrentPrice, s.auction.Status, true
}

func (s *AuctionStateStore) Deadline() (time.Time, domain.AuctionStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.auction == nil || s.closed {
		return time.Time{}, "", false
	}
	return s.auction.EndsAt, s.auction.Status, true
}

// MergeSnapshot reconciles a full REST snapshot into the store.
func (s *AuctionStateStore) MergeSnapshot(snapshot *domain.Auction) MergeResult {
	result := s.mergeSnapshot(snapshot)
	s.metrics.Merge("snapshot", result.String())

	switch result {
	case MergeStale:
		s.log.Debug("Discarded stale snapshot", "auction_id", s.auctionID, "version", snapshot.Version)
	case MergeRejected:
		s.log.Warn("Rejected snapshot for another auction", "auction_id", s.auctionID)
	}
	return result
}

func (s *AuctionStateStore) mergeSnapshot(snapshot *domain.Auction) MergeResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return MergeClosed
	}
	if snapshot == nil || snapshot.ID != s.auctionID {
		return MergeRejected
	}

	next := normalize(snapshot)
	held := s.auction
	if held == nil {
		s.auction = next
		return MergeApplied
	}

	if next.Version < held.Version {
		return MergeStale
	}
	if next.Version == held.Version {
		// An equal version may refresh status and deadline but not the bid list.
		next.Bids = held.Bids
		next.CurrentPrice = held.CurrentPrice
	}
	if !held.Status.CanTransitionTo(next.Status) {
		next.Status = held.Status
		next.WinnerID = held.WinnerID
		next.Winner = held.Winner
	}

	if next.Equal(held) {
		return MergeUnchanged
	}
	s.auction = next
	return MergeApplied
}

// ApplyStatus patches the lifecycle status from a push event.
func (s *AuctionStateStore) ApplyStatus(status domain.AuctionStatus, winnerID string) MergeResult {
	s.mu.Lock()
	result := s.applyStatus(status, winnerID)
	s.mu.Unlock()

	s.metrics.Merge("status", result.String())
	if result == MergeStale {
		s.log.Debug("Discarded backward status change", "auction_id", s.auctionID, "status", status)
	}
	return result
}

func (s *AuctionStateStore) applyStatus(status domain.AuctionStatus, winnerID string) MergeResult {
	if s.closed {
		return MergeClosed
	}
	if s.auction == nil {
		return MergeRejected
	}

	held := s.auction
	if !held.Status.CanTransitionTo(status) {
		return MergeStale
	}
	sameWinner := winnerID == "" || (held.WinnerID != nil && *held.WinnerID == winnerID)
	if held.Status == status && sameWinner {
		return MergeUnchanged
	}

	next := held.Clone()
	next.Status = status
	if status == domain.AuctionSold && winnerID != "" {
		w := winnerID
		next.WinnerID = &w
	}
	s.auction = next
	return MergeApplied
}

// ExtendDeadline moves endsAt forward; anything not later than the held deadline is stale.
func (s *AuctionStateStore) ExtendDeadline(endsAt time.Time) MergeResult {
	s.mu.Lock()
	result := s.extendDeadline(endsAt)
	s.mu.Unlock()

	s.metrics.Merge("deadline", result.String())
	if result == MergeStale {
		s.log.Debug("Discarded non-forward deadline", "auction_id", s.auctionID, "ends_at", endsAt)
	}
	return result
}

func (s *AuctionStateStore) extendDeadline(endsAt time.Time) MergeResult {
	if s.closed {
		return MergeClosed
	}
	if s.auction == nil {
		return MergeRejected
	}
	if !endsAt.After(s.auction.EndsAt) {
		return MergeStale
	}

	next := s.auction.Clone()
	next.EndsAt = endsAt
	s.auction = next
	return MergeApplied
}

// Close drops the held auction. Every later merge is a no-op.
func (s *AuctionStateStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.auction = nil
}

func (s *AuctionStateStore) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// normalize copies a snapshot, orders its bids and derives the current price from them.
func normalize(snapshot *domain.Auction) *domain.Auction {
	next := snapshot.Clone()
	SortBids(next.Bids)
	if top, ok := next.TopBid(); ok {
		next.CurrentPrice = top.Amount
	} else {
		next.CurrentPrice = next.StartingPrice
	}
	return next
}

// SortBids orders bids by amount descending, earliest first among equal amounts.
func SortBids(bids []domain.Bid) {
	sort.SliceStable(bids, func(i, j int) bool {
		if c := bids[i].Amount.Cmp(bids[j].Amount); c != 0 {
			return c > 0
		}
		return bids[i].CreatedAt.Before(bids[j].CreatedAt)
	})
}
