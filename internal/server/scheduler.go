package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/mohammad-safakhou/landlord/internal/worker"
	"go.uber.org/zap"
)

// Scheduler triggers a refresh on a cron schedule. Standard 5-field cron
// expressions and the @hourly/@daily shorthands are accepted.
type Scheduler struct {
	refresher Refresher
	expr      *cronexpr.Expression
	logger    *zap.Logger
	now       func() time.Time

	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	started bool
}

func NewScheduler(spec string, refresher Refresher, logger *zap.Logger) (*Scheduler, error) {
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh cron %q: %w", spec, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		refresher: refresher,
		expr:      expr,
		logger:    logger.Named("scheduler"),
		now:       time.Now,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Next returns the first fire time strictly after from.
func (s *Scheduler) Next(from time.Time) time.Time { return s.expr.Next(from) }

// Start runs the schedule until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.started = true
	go func() {
		defer close(s.done)
		for {
			next := s.Next(s.now())
			if next.IsZero() {
				s.logger.Warn("cron expression never fires again")
				return
			}
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-s.stop:
				timer.Stop()
				return
			case <-timer.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop halts the schedule and waits for an in-flight refresh to finish.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	if s.started {
		<-s.done
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	results, err := s.refresher.Refresh(ctx)
	switch {
	case errors.Is(err, worker.ErrRefreshInProgress):
		s.logger.Debug("scheduled refresh skipped, another refresh holds the lock")
	case err != nil:
		s.logger.Warn("scheduled refresh failed", zap.Error(err))
	default:
		s.logger.Info("scheduled refresh done", zap.Int("messages", len(results)))
	}
}
