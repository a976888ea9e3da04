// Package purge runs the periodic sweep that empties the staging directory.
// The sweep is level-triggered: every entry present when it starts is removed,
// regardless of age. Entries still held by an upload are skipped until the next run.
package purge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/anoupload/relay/internal/logging"
	"github.com/anoupload/relay/internal/metrics"
	"github.com/anoupload/relay/internal/staging"
)

// Store is the part of the staging store the sweep needs.
type Store interface {
	List() ([]string, error)
	Delete(name string) error
}

// Report summarizes one sweep.
type Report struct {
	Deleted int
	Skipped int
	Failed  int
}

// Loop owns the background sweep schedule.
type Loop struct {
	store    Store
	interval time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics

	cron     *cron.Cron
	stopOnce sync.Once
}

// NewLoop returns a Loop that sweeps store every interval once started.
func NewLoop(store Store, interval time.Duration, logger *zap.Logger, m *metrics.Metrics) *Loop {
	cl := logging.CronLogger(logger)
	return &Loop{
		store:    store,
		interval: interval,
		logger:   logger,
		metrics:  m,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
}

// Start schedules the sweep and returns immediately. The loop stops when ctx is
// cancelled or Stop is called, whichever comes first.
func (l *Loop) Start(ctx context.Context) {
	l.cron.Schedule(cron.Every(l.interval), cron.FuncJob(func() {
		l.RunOnce(ctx)
	}))
	l.cron.Start()
	l.logger.Info("purge loop started", zap.Duration("interval", l.interval))

	go func() {
		<-ctx.Done()
		l.Stop()
	}()
}

// Stop halts the schedule and waits for a running sweep to finish. Safe to call
// more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		<-l.cron.Stop().Done()
		l.logger.Info("purge loop stopped")
	})
}

// RunOnce performs a single sweep. A failed delete is logged and counted; the
// sweep always continues with the next entry.
func (l *Loop) RunOnce(ctx context.Context) Report {
	var rep Report

	names, err := l.store.List()
	if err != nil {
		l.logger.Error("purge: list staging dir", zap.Error(err))
		return rep
	}

	for _, name := range names {
		if ctx.Err() != nil {
			l.logger.Warn("purge: sweep interrupted", zap.Int("remaining", len(names)-rep.Deleted-rep.Skipped-rep.Failed))
			break
		}

		err := l.store.Delete(name)
		switch {
		case err == nil:
			rep.Deleted++
			l.metrics.PurgeDeleted.Inc()
			l.logger.Info("purge: deleted", zap.String("file", name))
		case errors.Is(err, staging.ErrNotFound):
			// Already gone, e.g. removed by a DELETE request mid-sweep.
			l.logger.Debug("purge: already removed", zap.String("file", name))
		case errors.Is(err, staging.ErrInUse):
			rep.Skipped++
			l.metrics.PurgeSkipped.Inc()
			l.logger.Info("purge: skipped file in use", zap.String("file", name))
		default:
			rep.Failed++
			l.metrics.PurgeFailed.Inc()
			l.logger.Error("purge: delete failed", zap.String("file", name), zap.Error(err))
		}
	}

	l.logger.Info("purge: sweep done",
		zap.Int("deleted", rep.Deleted),
		zap.Int("skipped", rep.Skipped),
		zap.Int("failed", rep.Failed),
	)
	return rep
}
