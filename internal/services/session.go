package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auction-sync/internal/domain"
	"auction-sync/internal/metrics"
	"auction-sync/pkg/logger"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

const journalBuffer = 256

type SessionOptions struct {
	AuctionID       string
	UserID          string
	Tick            time.Duration
	RefreshInterval time.Duration
}

// SessionState is a read model of everything a view renders.
type SessionState struct {
	Auction     *domain.Auction `json:"auction"`
	Countdown   string          `json:"countdown"`
	BidError    string          `json:"bidError,omitempty"`
	BidInFlight bool            `json:"bidInFlight"`
	Viewers     int             `json:"viewers"`
}

// Session keeps one auction view in sync: snapshot fetch, room membership,
// event handling, refetches, countdown and bid submission.
type Session struct {
	opts       SessionOptions
	channel    domain.PushChannel
	dispatcher *EventDispatcher
	api        domain.AuctionAPI
	policy     ReconciliationPolicy
	store      *AuctionStateStore
	bids       *BidCoordinator
	countdown  *Countdown
	refresher  *Refresher
	clock      clockwork.Clock
	observer   Observer
	mirror     domain.StateMirror
	journal    domain.SyncJournal
	metrics    *metrics.SyncMetrics
	log        logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	opened        bool
	closed        bool
	subs          []*Subscription
	remaining     string
	viewers       int
	entries       chan domain.JournalEntry
	journalDone   chan struct{}
	journalClosed bool
}

func NewSession(
	opts SessionOptions,
	channel domain.PushChannel,
	dispatcher *EventDispatcher,
	api domain.AuctionAPI,
	clock clockwork.Clock,
	observer Observer,
	m *metrics.SyncMetrics,
	log logger.Logger,
) *Session {
	if observer == nil {
		observer = NopObserver{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	log = log.With("auction_id", opts.AuctionID)

	s := &Session{
		opts:       opts,
		channel:    channel,
		dispatcher: dispatcher,
		api:        api,
		clock:      clock,
		observer:   observer,
		metrics:    m,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
	}
	s.store = NewAuctionStateStore(opts.AuctionID, m, log)
	s.bids = NewBidCoordinator(api, s.store, s.Refetch, m, log)
	s.countdown = NewCountdown(clock, opts.Tick, s.store.Deadline, s.onTick)
	if opts.RefreshInterval > 0 {
		s.refresher = NewRefresher(opts.RefreshInterval, s.Refetch, log)
	}
	return s
}

func (s *Session) SetMirror(mirror domain.StateMirror) {
	s.mirror = mirror
}

func (s *Session) SetJournal(journal domain.SyncJournal) {
	s.journal = journal
}

func (s *Session) Store() *AuctionStateStore {
	return s.store
}

func (s *Session) Bids() *BidCoordinator {
	return s.bids
}

// Open fetches the first snapshot, joins the room and starts listening.
// A push channel failure is reported to the observer but does not fail Open;
// the view keeps working from REST snapshots.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.opened || s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session: open %s: already used", s.opts.AuctionID)
	}
	s.opened = true
	if s.journal != nil {
		s.entries = make(chan domain.JournalEntry, journalBuffer)
		s.journalDone = make(chan struct{})
		go s.journalLoop(s.entries, s.journalDone)
	}
	s.mu.Unlock()

	snapshot, err := s.api.GetAuction(ctx, s.opts.AuctionID)
	if err != nil {
		return fmt.Errorf("session: fetch auction %s: %w", s.opts.AuctionID, err)
	}
	s.applySnapshot(snapshot, "snapshot")

	subs, err := s.dispatcher.SubscribeAll(s.onEvent)
	if err != nil {
		return fmt.Errorf("session: subscribe: %w", err)
	}
	s.mu.Lock()
	s.subs = subs
	s.mu.Unlock()

	if err := s.channel.Connect(ctx); err != nil {
		s.log.Warn("Push channel unavailable", "error", err)
		s.observer.ConnectionChanged("disconnected", err)
	}
	s.channel.Join(s.opts.AuctionID)

	if s.refresher != nil {
		if err := s.refresher.Start(); err != nil {
			s.log.Error("Failed to start snapshot refresher", "error", err)
		}
	}

	s.log.Info("Auction session opened")
	return nil
}

// Close leaves the room, detaches handlers, stops timers and abandons refetches.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	s.channel.Leave(s.opts.AuctionID)
	for _, sub := range subs {
		sub.Close()
	}
	s.countdown.Stop()
	if s.refresher != nil {
		s.refresher.Stop()
	}
	s.cancel()
	s.store.Close()
	s.wg.Wait()
	// a refetch that raced the close may have restarted the tick
	s.countdown.Stop()

	s.mu.Lock()
	entries, done := s.entries, s.journalDone
	s.journalClosed = true
	s.mu.Unlock()
	if entries != nil {
		close(entries)
		<-done
	}

	s.log.Info("Auction session closed")
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Refetch requests an authoritative snapshot without waiting for it.
func (s *Session) Refetch() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()

		snapshot, err := s.api.GetAuction(s.ctx, s.opts.AuctionID)
		if s.ctx.Err() != nil {
			s.metrics.Refetch("abandoned")
			return
		}
		if err != nil {
			s.metrics.Refetch("error")
			s.log.Warn("Snapshot refetch failed", "error", err)
			return
		}
		s.metrics.Refetch("ok")
		s.applySnapshot(snapshot, "refetch")
	}()
}

func (s *Session) SubmitBid(ctx context.Context, amount decimal.Decimal) error {
	if s.isClosed() {
		return domain.ErrSessionClosed
	}
	return s.bids.Submit(ctx, s.opts.AuctionID, amount)
}

// DismissBidError clears the last bid error shown to the user.
func (s *Session) DismissBidError() {
	s.bids.ClearError()
}

func (s *Session) State() SessionState {
	auction, _ := s.store.Snapshot()

	s.mu.Lock()
	remaining, viewers := s.remaining, s.viewers
	s.mu.Unlock()

	return SessionState{
		Auction:     auction,
		Countdown:   remaining,
		BidError:    s.bids.BidError(),
		BidInFlight: s.bids.InFlight(),
		Viewers:     viewers,
	}
}

func (s *Session) applySnapshot(snapshot *domain.Auction, source string) {
	if snapshot == nil {
		return
	}
	result := s.store.MergeSnapshot(snapshot)
	s.record(source, result, snapshot.Version, "")
	if result != MergeApplied {
		return
	}

	s.publishState()
	s.syncCountdown()
}

func (s *Session) onEvent(event domain.Event) {
	if s.isClosed() {
		return
	}

	held, _ := s.store.Snapshot()
	outcome := s.policy.Reconcile(s.store, event)
	version := int64(0)
	if held != nil {
		version = held.Version
	}
	s.record(string(event.Kind()), outcome.Result, version, outcome.Decision.Reason)

	switch outcome.Decision.Strategy {
	case StrategyIgnore:
		s.metrics.EventDiscarded("foreign_auction")
		s.log.Debug("Ignoring event for another auction", "kind", event.Kind(), "event_auction_id", event.AuctionRef())
		return
	case StrategyDiscard:
		s.metrics.EventDiscarded("stale")
		s.log.Debug("Discarded stale event", "kind", event.Kind(), "reason", outcome.Decision.Reason)
		return
	}
	if outcome.Result == MergeClosed {
		return
	}
	if outcome.Decision.Strategy == StrategyPatch && outcome.Result == MergeStale {
		s.metrics.EventDiscarded("stale")
		return
	}

	if vc, ok := event.(domain.ViewerCountEvent); ok {
		s.mu.Lock()
		s.viewers = vc.Count
		s.mu.Unlock()
	}
	if outcome.Result == MergeApplied {
		s.publishState()
		s.syncCountdown()
	}
	if n, ok := NotificationFor(event, held, s.opts.UserID); ok {
		s.observer.Notify(n)
	}
	if s.mirror != nil {
		if err := s.mirror.PublishEvent(s.ctx, s.opts.AuctionID, event); err != nil {
			s.log.Warn("Failed to mirror event", "kind", event.Kind(), "error", err)
		}
	}
	if outcome.NeedsRefetch() {
		s.Refetch()
	}
}

func (s *Session) onTick(remaining string) {
	s.mu.Lock()
	s.remaining = remaining
	s.mu.Unlock()
	s.observer.CountdownTick(remaining)
}

// syncCountdown runs the tick only while the held auction is active.
func (s *Session) syncCountdown() {
	if s.isClosed() {
		return
	}
	_, status, ok := s.store.Deadline()
	if ok && status == domain.AuctionActive {
		s.countdown.Start()
		return
	}
	s.countdown.Stop()
	if endsAt, _, ok := s.store.Deadline(); ok {
		s.onTick(FormatRemaining(endsAt, s.clock.Now()))
	}
}

func (s *Session) publishState() {
	auction, ok := s.store.Snapshot()
	if !ok {
		return
	}
	s.observer.AuctionUpdated(auction)
	if s.mirror != nil {
		if err := s.mirror.MirrorAuction(s.ctx, auction); err != nil {
			s.log.Warn("Failed to mirror auction state", "error", err)
		}
	}
}

func (s *Session) record(source string, result MergeResult, version int64, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries == nil || s.journalClosed {
		return
	}
	entry := domain.JournalEntry{
		AuctionID:  s.opts.AuctionID,
		Source:     source,
		Outcome:    result.JournalOutcome(),
		Version:    version,
		Detail:     detail,
		RecordedAt: s.clock.Now().UTC(),
	}
	select {
	case s.entries <- entry:
	default:
		s.log.Warn("Sync journal backlog full, dropping entry", "source", source)
	}
}

func (s *Session) journalLoop(entries <-chan domain.JournalEntry, done chan<- struct{}) {
	defer close(done)
	for entry := range entries {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.journal.Record(ctx, entry); err != nil {
			s.log.Error("Failed to write sync journal", "source", entry.Source, "error", err)
		}
		cancel()
	}
}
