package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anoupload/relay/internal/metrics"
)

// Dispatcher sends announcements in the background so the upload response never
// waits on the notification channel. Wait drains in-flight sends on shutdown.
type Dispatcher struct {
	sink    Sink
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	wg sync.WaitGroup
}

// NewDispatcher returns a Dispatcher delivering to sink, each send bounded by timeout.
func NewDispatcher(sink Sink, timeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if sink == nil {
		sink = Nop{}
	}
	return &Dispatcher{
		sink:    sink,
		timeout: timeout,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Announce schedules an announcement for a completed upload and returns at once.
func (d *Dispatcher) Announce(fileName, fileURL string) {
	p := NewPayload(fileName, fileURL, d.now())

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.metrics.NotificationsFailed.Inc()
				d.logger.Error("notify: sink panicked", zap.Any("panic", r), zap.String("file", fileName))
			}
		}()

		ctx := context.Background()
		if d.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.timeout)
			defer cancel()
		}

		if err := d.sink.Send(ctx, p); err != nil {
			d.metrics.NotificationsFailed.Inc()
			d.logger.Warn("notify: announcement failed", zap.String("file", fileName), zap.Error(err))
			return
		}
		d.logger.Debug("notify: announcement sent", zap.String("file", fileName))
	}()
}

// Wait blocks until every scheduled announcement finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
