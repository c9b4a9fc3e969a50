package services

import (
	"auction-sync/internal/domain"
)

type Strategy int

const (
	// StrategyIgnore drops events addressed to another auction.
	StrategyIgnore Strategy = iota
	StrategyDiscard
	StrategyPatch
	StrategyPatchAndRefetch
	StrategyRefetch
	StrategyAdvisory
)

func (s Strategy) String() string {
	switch s {
	case StrategyIgnore:
		return "ignore"
	case StrategyDiscard:
		return "discard"
	case StrategyPatch:
		return "patch"
	case StrategyPatchAndRefetch:
		return "patch_and_refetch"
	case StrategyRefetch:
		return "refetch"
	case StrategyAdvisory:
		return "advisory"
	default:
		return "unknown"
	}
}

func (s Strategy) Refetches() bool {
	return s == StrategyRefetch || s == StrategyPatchAndRefetch
}

type Decision struct {
	Strategy Strategy
	Reason   string
}

// Outcome is what happened when a decision was carried out against a store.
type Outcome struct {
	Decision Decision
	Result   MergeResult
}

func (o Outcome) NeedsRefetch() bool {
	return o.Decision.Strategy.Refetches() && o.Result != MergeClosed
}

// ReconciliationPolicy is the per-event decision table.
type ReconciliationPolicy struct{}

// Decide picks a strategy for event given the auction the view holds (held may be nil).
func (ReconciliationPolicy) Decide(auctionID string, held *domain.Auction, event domain.Event) Decision {
	if event.AuctionRef() != auctionID {
		return Decision{Strategy: StrategyIgnore, Reason: "event for another auction"}
	}

	switch e := event.(type) {
	case domain.NewBidEvent:
		return Decision{Strategy: StrategyRefetch, Reason: "bid list needs enriched bidder data"}
	case domain.AuctionSoldEvent:
		return Decision{Strategy: StrategyPatchAndRefetch, Reason: "final price and winner"}
	case domain.AuctionExpiredEvent:
		return Decision{Strategy: StrategyPatchAndRefetch, Reason: "auction closed without sale"}
	case domain.AuctionEndingSoonEvent:
		return Decision{Strategy: StrategyAdvisory, Reason: "deadline approaching"}
	case domain.AuctionExtendedEvent:
		if held != nil && !e.EndsAt.After(held.EndsAt) {
			return Decision{Strategy: StrategyDiscard, Reason: "deadline not later than held"}
		}
		return Decision{Strategy: StrategyPatch, Reason: "forward deadline"}
	case domain.ViewerCountEvent:
		return Decision{Strategy: StrategyAdvisory, Reason: "informational"}
	default:
		return Decision{Strategy: StrategyIgnore, Reason: "unhandled event type"}
	}
}

// Reconcile decides and applies the direct patch part of the decision to store.
// The caller is responsible for the refetch when the outcome asks for one.
func (p ReconciliationPolicy) Reconcile(store *AuctionStateStore, event domain.Event) Outcome {
	held, _ := store.Snapshot()
	decision := p.Decide(store.AuctionID(), held, event)

	outcome := Outcome{Decision: decision, Result: MergeUnchanged}
	if store.Closed() {
		outcome.Result = MergeClosed
		return outcome
	}

	switch decision.Strategy {
	case StrategyIgnore:
		outcome.Result = MergeRejected
	case StrategyDiscard:
		outcome.Result = MergeStale
	case StrategyPatch, StrategyPatchAndRefetch:
		switch e := event.(type) {
		case domain.AuctionSoldEvent:
			outcome.Result = store.ApplyStatus(domain.AuctionSold, e.WinnerID)
		case domain.AuctionExpiredEvent:
			outcome.Result = store.ApplyStatus(domain.AuctionExpired, "")
		case domain.AuctionExtendedEvent:
			outcome.Result = store.ExtendDeadline(e.EndsAt)
		}
	}
	return outcome
}
