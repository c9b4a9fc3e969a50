package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"auction-sync/internal/domain"

	"github.com/go-redis/redis/v8"
)

// MirroredEvent is the pub/sub payload for one accepted push event.
type MirroredEvent struct {
	AuctionID   string          `json:"auctionId"`
	Event       string          `json:"event"`
	Data        json.RawMessage `json:"data"`
	PublishedAt time.Time       `json:"publishedAt"`
}

// RedisStateMirror writes the reconciled auction to a hash and fans accepted
// events out on a channel so other local processes can follow the session.
type RedisStateMirror struct {
	client  *redis.Client
	channel string
	ttl     time.Duration
	now     func() time.Time
}

var _ domain.StateMirror = (*RedisStateMirror)(nil)

func NewRedisStateMirror(client *redis.Client, channel string) *RedisStateMirror {
	if channel == "" {
		channel = "auction_sync"
	}
	return &RedisStateMirror{client: client, channel: channel, ttl: 24 * time.Hour, now: time.Now}
}

func auctionKey(auctionID string) string {
	return fmt.Sprintf("auction:%s", auctionID)
}

func (r *RedisStateMirror) MirrorAuction(ctx context.Context, auction *domain.Auction) error {
	if auction == nil {
		return nil
	}
	key := auctionKey(auction.ID)

	winner := ""
	if auction.WinnerID != nil {
		winner = *auction.WinnerID
	}
	topBidder := ""
	if top, ok := auction.TopBid(); ok {
		topBidder = top.BidderID
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key,
		"status", auction.Status.String(),
		"current_price", auction.CurrentPrice.StringFixed(2),
		"version", auction.Version,
		"ends_at", auction.EndsAt.UTC().Format(time.RFC3339),
		"winner_id", winner,
		"top_bidder_id", topBidder,
		"bid_count", len(auction.Bids),
		"last_updated", r.now().Unix(),
	)
	pipe.Expire(ctx, key, r.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStateMirror) PublishEvent(ctx context.Context, auctionID string, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(MirroredEvent{
		AuctionID:   auctionID,
		Event:       string(event.Kind()),
		Data:        data,
		PublishedAt: r.now().UTC(),
	})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// MirroredState reads back the hash written by MirrorAuction.
func (r *RedisStateMirror) MirroredState(ctx context.Context, auctionID string) (map[string]string, error) {
	fields, err := r.client.HGetAll(ctx, auctionKey(auctionID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, redis.Nil
	}
	return fields, nil
}
