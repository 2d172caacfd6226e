package queue

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs a dispatch pass on a fixed tick and whenever Kick is
// called. Run blocks until its context is cancelled, so shutdown is just
// cancelling the context the loop was started with.
type Scheduler struct {
	Dispatcher *Dispatcher
	Interval   time.Duration
	BatchLimit int
	Log        *zap.Logger

	kick chan struct{}
}

func NewScheduler(d *Dispatcher, interval time.Duration, batchLimit int, log *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchLimit <= 0 {
		batchLimit = 10
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		Dispatcher: d,
		Interval:   interval,
		BatchLimit: batchLimit,
		Log:        log,
		kick:       make(chan struct{}, 1),
	}
}

// Kick requests an out-of-band dispatch pass. It never blocks; if a kick is
// already pending the two collapse into one pass.
func (s *Scheduler) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run executes dispatch passes until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.Log.Info("dispatch scheduler started",
		zap.Duration("interval", s.Interval),
		zap.Int("batch_limit", s.BatchLimit),
	)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Log.Info("dispatch scheduler stopped")
			return
		case <-ticker.C:
		case <-s.kick:
		}

		stats := s.Dispatcher.RunPass(ctx, s.BatchLimit)
		if stats.Attempted > 0 {
			s.Log.Info("dispatch pass completed",
				zap.Int("attempted", stats.Attempted),
				zap.Int("sent", stats.Sent),
				zap.Int("failed", stats.Failed),
			)
		}
	}
}
