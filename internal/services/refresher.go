package services

import (
	"fmt"
	"sync"
	"time"

	"auction-sync/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Refresher requests a snapshot refetch on a fixed schedule, covering gaps
// the push channel may leave while disconnected.
type Refresher struct {
	cron     *cron.Cron
	interval time.Duration
	refetch  func()
	log      logger.Logger

	mu      sync.Mutex
	entry   cron.EntryID
	running bool
}

func NewRefresher(interval time.Duration, refetch func(), log logger.Logger) *Refresher {
	return &Refresher{
		cron:     cron.New(cron.WithSeconds()),
		interval: interval,
		refetch:  refetch,
		log:      log,
	}
}

func (r *Refresher) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	if r.interval < time.Second {
		return fmt.Errorf("refresher: interval %s below cron resolution", r.interval)
	}

	id, err := r.cron.AddFunc(fmt.Sprintf("@every %s", r.interval), func() {
		r.log.Debug("Periodic snapshot refresh")
		r.refetch()
	})
	if err != nil {
		return err
	}

	r.entry = id
	r.running = true
	r.cron.Start()
	r.log.Info("Snapshot refresher started", "interval", r.interval.String())
	return nil
}

// Stop halts the schedule and waits for a running refresh callback to return.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	r.cron.Remove(r.entry)
	<-r.cron.Stop().Done()
	r.running = false
}
