package leader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"auction-sync/internal/domain"
	"auction-sync/pkg/logger"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "auction_sync:mirror_writer:"

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end`)

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
    return 0
end`)
)

// RedisLease elects one writer per auction among watchers sharing a Redis.
// The holder renews the key at a third of its TTL until Release or loss.
type RedisLease struct {
	client     *redis.Client
	ttl        time.Duration
	instanceID string
	log        logger.Logger

	mu   sync.Mutex
	held map[string]chan struct{}
	wg   sync.WaitGroup
}

func NewRedisLease(client *redis.Client, instanceID string, ttl time.Duration, log logger.Logger) *RedisLease {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &RedisLease{
		client:     client,
		ttl:        ttl,
		instanceID: instanceID,
		log:        log,
		held:       make(map[string]chan struct{}),
	}
}

func (l *RedisLease) InstanceID() string {
	return l.instanceID
}

// Acquire tries to take the writer lease for auctionID. It reports true when
// this instance holds it afterwards, including when it already did.
func (l *RedisLease) Acquire(ctx context.Context, auctionID string) (bool, error) {
	l.mu.Lock()
	_, already := l.held[auctionID]
	l.mu.Unlock()
	if already {
		return l.IsHolder(ctx, auctionID)
	}

	ok, err := l.client.SetNX(ctx, keyPrefix+auctionID, l.instanceID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lease: acquire %s: %w", auctionID, err)
	}
	if !ok {
		return false, nil
	}

	stop := make(chan struct{})
	l.mu.Lock()
	l.held[auctionID] = stop
	l.mu.Unlock()

	l.wg.Add(1)
	go l.maintain(auctionID, stop)
	l.log.Info("Acquired mirror writer lease", "auction_id", auctionID, "instance_id", l.instanceID)
	return true, nil
}

func (l *RedisLease) IsHolder(ctx context.Context, auctionID string) (bool, error) {
	current, err := l.client.Get(ctx, keyPrefix+auctionID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return current == l.instanceID, nil
}

// Release gives the lease up if this instance still holds it.
func (l *RedisLease) Release(ctx context.Context, auctionID string) error {
	l.mu.Lock()
	stop, ok := l.held[auctionID]
	delete(l.held, auctionID)
	l.mu.Unlock()
	if ok {
		close(stop)
	}

	return releaseScript.Run(ctx, l.client, []string{keyPrefix + auctionID}, l.instanceID).Err()
}

// Close releases every held lease and waits for the renew loops.
func (l *RedisLease) Close(ctx context.Context) {
	l.mu.Lock()
	ids := make([]string, 0, len(l.held))
	for id := range l.held {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	for _, id := range ids {
		if err := l.Release(ctx, id); err != nil {
			l.log.Warn("Failed to release mirror writer lease", "auction_id", id, "error", err)
		}
	}
	l.wg.Wait()
}

func (l *RedisLease) maintain(auctionID string, stop chan struct{}) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		renewed, err := renewScript.Run(ctx, l.client, []string{keyPrefix + auctionID},
			l.instanceID, l.ttl.Milliseconds()).Int64()
		cancel()

		if err != nil || renewed == 0 {
			l.log.Warn("Lost mirror writer lease", "auction_id", auctionID, "error", err)
			l.mu.Lock()
			if l.held[auctionID] == stop {
				delete(l.held, auctionID)
			}
			l.mu.Unlock()
			return
		}
	}
}

// LeasedMirror forwards to the wrapped mirror only while this instance holds
// the writer lease for the auction. A lost lease is retried on the next write.
type LeasedMirror struct {
	mirror domain.StateMirror
	lease  *RedisLease
	log    logger.Logger
}

func NewLeasedMirror(mirror domain.StateMirror, lease *RedisLease, log logger.Logger) *LeasedMirror {
	return &LeasedMirror{mirror: mirror, lease: lease, log: log}
}

func (m *LeasedMirror) MirrorAuction(ctx context.Context, auction *domain.Auction) error {
	ok, err := m.lease.Acquire(ctx, auction.ID)
	if err != nil || !ok {
		return err
	}
	return m.mirror.MirrorAuction(ctx, auction)
}

func (m *LeasedMirror) PublishEvent(ctx context.Context, auctionID string, event domain.Event) error {
	ok, err := m.lease.Acquire(ctx, auctionID)
	if err != nil || !ok {
		return err
	}
	return m.mirror.PublishEvent(ctx, auctionID, event)
}
