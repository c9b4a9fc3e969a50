package devserver

import (
	"context"

	"auction-sync/pkg/logger"

	"github.com/robfig/cron/v3"
)

// CronSweepScheduler runs the auction deadline sweep on a cron spec.
type CronSweepScheduler struct {
	cron       *cron.Cron
	spec       string
	auctionMgr *AuctionManager
	log        logger.Logger
}

func NewCronSweepScheduler(spec string, auctionMgr *AuctionManager, log logger.Logger) *CronSweepScheduler {
	if spec == "" {
		spec = "@every 1s"
	}
	return &CronSweepScheduler{
		cron:       cron.New(cron.WithSeconds()),
		spec:       spec,
		auctionMgr: auctionMgr,
		log:        log,
	}
}

func (s *CronSweepScheduler) Start(ctx context.Context) error {
	s.log.Info("Starting auction sweep", "spec", s.spec)

	_, err := s.cron.AddFunc(s.spec, func() {
		s.auctionMgr.Sweep(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

func (s *CronSweepScheduler) Stop() {
	s.log.Info("Stopping auction sweep")
	<-s.cron.Stop().Done()
}
