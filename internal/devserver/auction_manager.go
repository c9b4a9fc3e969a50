package devserver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"auction-sync/internal/domain"
	"auction-sync/internal/services"
	"auction-sync/pkg/logger"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

var (
	ErrAuctionNotFound    = errors.New("auction not found")
	ErrAuctionNotActive   = errors.New("auction is not active")
	ErrBidTooLow          = errors.New("bid must be higher than current price")
	ErrOwnAuction         = errors.New("cannot bid on own auction")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
)

// Broadcaster fans an event out to the members of an auction room.
type Broadcaster interface {
	BroadcastToAuction(ctx context.Context, auctionID string, event domain.Event) error
}

type Rules struct {
	ExtensionWindow  time.Duration
	EndingSoonWindow time.Duration
}

type account struct {
	user         domain.User
	passwordHash string
}

type auctionRecord struct {
	auction          *domain.Auction
	endingSoonNotice bool
	soldAt           time.Time
}

// AuctionManager is the in-memory auction backend: it accepts bids, extends
// deadlines inside the anti-sniping window and closes auctions at their deadline.
type AuctionManager struct {
	rules Rules
	clock clockwork.Clock
	bus   Broadcaster
	log   logger.Logger

	mu       sync.RWMutex
	auctions map[string]*auctionRecord
	accounts map[string]*account // by email
	users    map[string]*account // by id
}

func NewAuctionManager(rules Rules, clock clockwork.Clock, bus Broadcaster, log logger.Logger) *AuctionManager {
	if rules.ExtensionWindow <= 0 {
		rules.ExtensionWindow = 30 * time.Second
	}
	if rules.EndingSoonWindow <= 0 {
		rules.EndingSoonWindow = time.Minute
	}
	return &AuctionManager{
		rules:    rules,
		clock:    clock,
		bus:      bus,
		log:      log,
		auctions: make(map[string]*auctionRecord),
		accounts: make(map[string]*account),
		users:    make(map[string]*account),
	}
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func (am *AuctionManager) Register(email, password string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	am.mu.Lock()
	defer am.mu.Unlock()

	if _, exists := am.accounts[email]; exists {
		return domain.User{}, ErrEmailTaken
	}
	acc := &account{
		user: domain.User{
			ID:        uuid.NewString(),
			Email:     email,
			Balance:   decimal.NewFromInt(1000),
			CreatedAt: am.clock.Now().UTC(),
		},
		passwordHash: hashPassword(password),
	}
	am.accounts[email] = acc
	am.users[acc.user.ID] = acc

	am.log.Info("User registered", "user_id", acc.user.ID)
	return acc.user, nil
}

func (am *AuctionManager) Login(email, password string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	am.mu.RLock()
	defer am.mu.RUnlock()

	acc, exists := am.accounts[email]
	if !exists || acc.passwordHash != hashPassword(password) {
		return domain.User{}, ErrInvalidCredentials
	}
	return acc.user, nil
}

func (am *AuctionManager) Profile(userID string) (*domain.UserProfile, error) {
	am.mu.RLock()
	defer am.mu.RUnlock()

	acc, exists := am.users[userID]
	if !exists {
		return nil, ErrUserNotFound
	}

	profile := &domain.UserProfile{User: acc.user, WonAuctions: []domain.WonAuction{}}
	for _, rec := range am.auctions {
		a := rec.auction
		if a.Status != domain.AuctionSold || a.WinnerID == nil || *a.WinnerID != userID {
			continue
		}
		profile.WonAuctions = append(profile.WonAuctions, domain.WonAuction{
			ID:          a.ID,
			Title:       a.Title,
			Description: a.Description,
			FinalPrice:  a.CurrentPrice,
			SoldAt:      rec.soldAt,
			EndsAt:      a.EndsAt,
		})
	}
	sort.Slice(profile.WonAuctions, func(i, j int) bool {
		return profile.WonAuctions[i].SoldAt.After(profile.WonAuctions[j].SoldAt)
	})
	return profile, nil
}

// CreateAuction opens an auction immediately; the dev backend has no draft phase.
func (am *AuctionManager) CreateAuction(creatorID string, params domain.CreateAuctionParams) (*domain.Auction, error) {
	now := am.clock.Now().UTC()

	am.mu.Lock()
	defer am.mu.Unlock()

	auction := &domain.Auction{
		ID:            uuid.NewString(),
		Title:         params.Title,
		Description:   params.Description,
		StartingPrice: params.StartingPrice,
		CurrentPrice:  params.StartingPrice,
		Status:        domain.AuctionActive,
		CreatorID:     creatorID,
		EndsAt:        params.EndsAt.UTC(),
		CreatedAt:     now,
		Version:       1,
		Bids:          []domain.Bid{},
	}
	if acc, ok := am.users[creatorID]; ok {
		creator := acc.user
		auction.Creator = &creator
	}
	am.auctions[auction.ID] = &auctionRecord{auction: auction}

	am.log.Info("Auction created", "auction_id", auction.ID, "ends_at", auction.EndsAt)
	return auction.Clone(), nil
}

// Seed inserts a prepared auction as-is.
func (am *AuctionManager) Seed(auction *domain.Auction) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.auctions[auction.ID] = &auctionRecord{auction: auction.Clone()}
}

func (am *AuctionManager) GetAuction(auctionID string) (*domain.Auction, error) {
	am.mu.RLock()
	defer am.mu.RUnlock()

	rec, exists := am.auctions[auctionID]
	if !exists {
		return nil, ErrAuctionNotFound
	}
	return rec.auction.Clone(), nil
}

// ListAuctions pages through auctions, newest first.
func (am *AuctionManager) ListAuctions(params domain.ListParams) *domain.AuctionPage {
	page, limit := params.Page, params.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	am.mu.RLock()
	matched := make([]*domain.Auction, 0, len(am.auctions))
	for _, rec := range am.auctions {
		if params.Status != "" && params.Status != "all" && string(rec.auction.Status) != params.Status {
			continue
		}
		matched = append(matched, rec.auction.Clone())
	}
	am.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	result := &domain.AuctionPage{
		Data: make([]domain.Auction, 0, end-start),
		Meta: domain.PageMeta{
			Total:      total,
			Page:       page,
			Limit:      limit,
			TotalPages: (total + limit - 1) / limit,
		},
	}
	for _, a := range matched[start:end] {
		result.Data = append(result.Data, *a)
	}
	return result
}

// PlaceBid accepts a bid strictly above the current price. A bid that lands
// inside the extension window pushes the deadline out by that window.
func (am *AuctionManager) PlaceBid(ctx context.Context, auctionID, userID string, amount decimal.Decimal) (*domain.Auction, error) {
	now := am.clock.Now().UTC()

	am.mu.Lock()
	rec, exists := am.auctions[auctionID]
	if !exists {
		am.mu.Unlock()
		return nil, ErrAuctionNotFound
	}
	auction := rec.auction
	if auction.Status != domain.AuctionActive || !now.Before(auction.EndsAt) {
		am.mu.Unlock()
		return nil, ErrAuctionNotActive
	}
	if auction.CreatorID == userID {
		am.mu.Unlock()
		return nil, ErrOwnAuction
	}
	if !amount.GreaterThan(auction.CurrentPrice) {
		am.mu.Unlock()
		return nil, ErrBidTooLow
	}

	bid := domain.Bid{
		ID:        uuid.NewString(),
		Amount:    amount,
		BidderID:  userID,
		AuctionID: auctionID,
		CreatedAt: now,
	}
	if acc, ok := am.users[userID]; ok {
		bid.Bidder = acc.user
	}
	auction.Bids = append(auction.Bids, bid)
	services.SortBids(auction.Bids)
	auction.CurrentPrice = amount
	auction.Version++

	events := []domain.Event{domain.NewBidEvent{
		AuctionID: auctionID,
		Amount:    amount,
		BidderID:  userID,
		BidID:     bid.ID,
	}}

	if auction.EndsAt.Sub(now) <= am.rules.ExtensionWindow {
		auction.EndsAt = auction.EndsAt.Add(am.rules.ExtensionWindow)
		rec.endingSoonNotice = false
		events = append(events, domain.AuctionExtendedEvent{AuctionID: auctionID, EndsAt: auction.EndsAt})
		am.log.Info("Auction extended", "auction_id", auctionID, "new_end_time", auction.EndsAt)
	}
	snapshot := auction.Clone()
	am.mu.Unlock()

	am.log.Info("Bid accepted", "auction_id", auctionID, "user_id", userID, "amount", amount.String())
	am.publish(ctx, auctionID, events)
	return snapshot, nil
}

// Sweep announces auctions entering the ending-soon window and closes the
// ones past their deadline.
func (am *AuctionManager) Sweep(ctx context.Context) {
	now := am.clock.Now().UTC()
	pending := make(map[string][]domain.Event)

	am.mu.Lock()
	for id, rec := range am.auctions {
		a := rec.auction
		if a.Status != domain.AuctionActive {
			continue
		}

		if !now.Before(a.EndsAt) {
			a.Version++
			if top, ok := a.TopBid(); ok {
				winner := top.BidderID
				a.Status = domain.AuctionSold
				a.WinnerID = &winner
				if acc, ok := am.users[winner]; ok {
					u := acc.user
					a.Winner = &u
				}
				rec.soldAt = now
				pending[id] = append(pending[id], domain.AuctionSoldEvent{
					AuctionID:  id,
					WinnerID:   winner,
					FinalPrice: a.CurrentPrice,
				})
			} else {
				a.Status = domain.AuctionExpired
				pending[id] = append(pending[id], domain.AuctionExpiredEvent{AuctionID: id})
			}
			am.log.Info("Ending auction", "auction_id", id, "status", a.Status)
			continue
		}

		if !rec.endingSoonNotice && a.EndsAt.Sub(now) <= am.rules.EndingSoonWindow {
			rec.endingSoonNotice = true
			pending[id] = append(pending[id], domain.AuctionEndingSoonEvent{AuctionID: id, EndsAt: a.EndsAt})
		}
	}
	am.mu.Unlock()

	for id, events := range pending {
		am.publish(ctx, id, events)
	}
}

func (am *AuctionManager) publish(ctx context.Context, auctionID string, events []domain.Event) {
	if am.bus == nil {
		return
	}
	for _, event := range events {
		if err := am.bus.BroadcastToAuction(ctx, auctionID, event); err != nil {
			am.log.Error("Failed to broadcast event", "auction_id", auctionID, "kind", event.Kind(), "error", err)
		}
	}
}
