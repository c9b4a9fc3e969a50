package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"auction-sync/internal/domain"
	"auction-sync/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// MirrorHandler receives each decoded mirrored event.
type MirrorHandler func(auctionID string, event domain.Event) error

type RedisMirrorSubscriber struct {
	client  *redis.Client
	channel string
	log     logger.Logger
}

func NewRedisMirrorSubscriber(client *redis.Client, channel string, log logger.Logger) *RedisMirrorSubscriber {
	if channel == "" {
		channel = "auction_sync"
	}
	return &RedisMirrorSubscriber{
		client:  client,
		channel: channel,
		log:     log,
	}
}

// Subscribe blocks, handing mirrored events to handler until ctx is done.
// ready, if non-nil, is closed once the subscription is confirmed.
func (r *RedisMirrorSubscriber) Subscribe(ctx context.Context, handler MirrorHandler, ready chan<- struct{}) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()

	r.log.Info("Subscribed to mirrored auction events", "channel", r.channel)

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			auctionID, event, err := r.parseEventData(msg.Payload)
			if err != nil {
				r.log.Error("Failed to parse mirrored event", "payload", msg.Payload, "error", err)
				continue
			}

			if err := handler(auctionID, event); err != nil {
				r.log.Error("Failed to handle mirrored event", "kind", event.Kind(), "error", err)
			}

		case <-ctx.Done():
			r.log.Info("Mirror subscriber stopped")
			return ctx.Err()
		}
	}
}

func (r *RedisMirrorSubscriber) parseEventData(payload string) (string, domain.Event, error) {
	var mirrored MirroredEvent
	if err := json.Unmarshal([]byte(payload), &mirrored); err != nil {
		return "", nil, err
	}
	event, err := domain.DecodeEvent(&domain.Envelope{Event: mirrored.Event, Data: mirrored.Data})
	if err != nil {
		return "", nil, err
	}
	return mirrored.AuctionID, event, nil
}
