package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/anoupload/relay/internal/metrics"
)

// PersisterOptions configures a Persister.
type PersisterOptions struct {
	Prefix     string        // fixed remote path segment, e.g. "cn"
	PublicBase string        // base URL under which the remote store is served
	Timeout    time.Duration // bound on one Persist call, retries included
	MaxRetries uint64        // 0 means a single attempt
	BackOff    func() backoff.BackOff
}

// Persister maps a staged file to a remote object at <prefix>/<stagingName> and
// predicts the public URL at which it resolves.
type Persister struct {
	backend    Backend
	prefix     string
	publicBase string
	timeout    time.Duration
	maxRetries uint64
	newBackOff func() backoff.BackOff
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewPersister wraps backend with the relay's path, retry and timeout policy.
func NewPersister(backend Backend, opts PersisterOptions, logger *zap.Logger, m *metrics.Metrics) *Persister {
	newBackOff := opts.BackOff
	if newBackOff == nil {
		newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		}
	}

	return &Persister{
		backend:    backend,
		prefix:     strings.Trim(opts.Prefix, "/"),
		publicBase: strings.TrimRight(opts.PublicBase, "/"),
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		newBackOff: newBackOff,
		logger:     logger,
		metrics:    m,
	}
}

// RemotePath returns the object path for a staging name.
func (p *Persister) RemotePath(name string) string {
	return p.prefix + "/" + name
}

// PublicURL returns the browser-accessible URL for a staging name. It is only
// meaningful after Persist succeeded for that name.
func (p *Persister) PublicURL(name string) string {
	return p.publicBase + "/" + p.prefix + "/" + url.PathEscape(name)
}

// Persist pushes content to the remote store and returns the remote path.
// Any failure is reported as ErrRemotePersist; rejected requests are not retried.
func (p *Persister) Persist(ctx context.Context, name string, content []byte) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	key := p.RemotePath(name)
	message := "Added " + name

	op := func() error {
		err := p.backend.Put(ctx, key, content, message)
		if errors.Is(err, ErrRejected) {
			return backoff.Permanent(err)
		}
		return err
	}

	onRetry := func(err error, wait time.Duration) {
		p.logger.Warn("storage: persist attempt failed, retrying",
			zap.String("key", key), zap.Duration("wait", wait), zap.Error(err))
	}

	start := time.Now()
	b := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), p.maxRetries), ctx)
	err := backoff.RetryNotify(op, b, onRetry)
	p.metrics.RemoteDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRemotePersist, err)
	}

	p.logger.Info("storage: persisted", zap.String("key", key), zap.Int("bytes", len(content)))
	return key, nil
}
