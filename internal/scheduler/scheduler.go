// Package scheduler drives the periodic loops: the monitoring tick, the
// backtest metadata refresh, and state snapshots.
package scheduler

import (
	"context"
	"time"

	"sniperd/internal/logger"
)

// IntervalScheduler runs a task on a fixed interval until its context
// ends. The task runs synchronously; a slow pass delays the next one
// instead of overlapping it.
type IntervalScheduler struct {
	Name           string
	Interval       time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewIntervalScheduler(ctx context.Context, name string, interval time.Duration) *IntervalScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &IntervalScheduler{
		Name:     name,
		Interval: interval,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

// Start blocks until the context is done. Task panics are recovered so one
// bad pass never kills the loop.
func (s *IntervalScheduler) Start(task func(ctx context.Context)) {
	if s == nil {
		return
	}
	if task == nil {
		logger.Warnf("IntervalScheduler[%s]: task is nil, exit", s.Name)
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("IntervalScheduler[%s]: invalid interval=%s, exit", s.Name, s.Interval)
		return
	}

	logger.Infof("IntervalScheduler[%s]: started interval=%s run_immediately=%v",
		s.Name, s.Interval, s.RunImmediately)

	if s.RunImmediately {
		s.runOnce(task)
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			logger.Infof("IntervalScheduler[%s]: stopped", s.Name)
			return
		case <-ticker.C:
			s.runOnce(task)
		}
	}
}

func (s *IntervalScheduler) runOnce(task func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("IntervalScheduler[%s]: task panicked: %v", s.Name, r)
		}
	}()
	task(s.ctx)
}
