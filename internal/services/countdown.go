package services

import (
	"fmt"
	"sync"
	"time"

	"auction-sync/internal/domain"

	"github.com/jonboulle/clockwork"
)

const CountdownEnded = "Ended"

// FormatRemaining renders the time left until endsAt as seen at now.
func FormatRemaining(endsAt, now time.Time) string {
	diff := endsAt.Sub(now)
	if diff <= 0 {
		return CountdownEnded
	}

	total := int64(diff / time.Second)
	days := total / 86400
	hours := total % 86400 / 3600
	minutes := total % 3600 / 60
	seconds := total % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// DeadlineSource reads the deadline and status the countdown projects.
// ok is false once there is nothing left to project.
type DeadlineSource func() (endsAt time.Time, status domain.AuctionStatus, ok bool)

// Countdown recomputes the remaining time on a fixed tick while the auction is active.
type Countdown struct {
	clock    clockwork.Clock
	interval time.Duration
	source   DeadlineSource
	sink     func(remaining string)

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewCountdown(clock clockwork.Clock, interval time.Duration, source DeadlineSource, sink func(string)) *Countdown {
	if interval <= 0 {
		interval = time.Second
	}
	return &Countdown{
		clock:    clock,
		interval: interval,
		source:   source,
		sink:     sink,
	}
}

// Start emits the current value and begins ticking. Calling Start while running is a no-op.
func (c *Countdown) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop != nil {
		return
	}
	if !c.emit() {
		return
	}

	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(c.clock.NewTicker(c.interval), c.stop, c.done)
}

// Stop tears the tick down and waits for the loop to exit. It must not be
// called from the sink.
func (c *Countdown) Stop() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop != nil
}

func (c *Countdown) run(ticker clockwork.Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			select {
			case <-stop:
				return
			default:
			}
			if !c.emit() {
				c.mu.Lock()
				if c.stop == stop {
					c.stop, c.done = nil, nil
				}
				c.mu.Unlock()
				return
			}
		}
	}
}

// emit pushes one value to the sink and reports whether ticking should continue.
func (c *Countdown) emit() bool {
	endsAt, status, ok := c.source()
	if !ok {
		return false
	}
	c.sink(FormatRemaining(endsAt, c.clock.Now()))
	return status == domain.AuctionActive
}
