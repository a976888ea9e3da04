package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/anoupload/relay/internal/metrics"
)

type putCall struct {
	key     string
	content []byte
	message string
}

type flakyBackend struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    []putCall
}

func (b *flakyBackend) Put(ctx context.Context, key string, content []byte, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, putCall{key: key, content: content, message: message})
	if b.failures > 0 {
		b.failures--
		return b.err
	}
	return nil
}

func fastBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(time.Millisecond)
}

func newTestPersister(t *testing.T, b Backend, retries uint64) *Persister {
	return NewPersister(b, PersisterOptions{
		Prefix:     "cn",
		PublicBase: "https://files.example.com/",
		Timeout:    time.Second,
		MaxRetries: retries,
		BackOff:    fastBackOff,
	}, zaptest.NewLogger(t), metrics.New())
}

func TestPersisterPushesToPrefixedPath(t *testing.T) {
	b := &flakyBackend{}
	p := newTestPersister(t, b, 0)

	remote, err := p.Persist(context.Background(), "ABC123-a.txt", []byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, "cn/ABC123-a.txt", remote)

	require.Len(t, b.calls, 1)
	assert.Equal(t, "cn/ABC123-a.txt", b.calls[0].key)
	assert.Equal(t, "Added ABC123-a.txt", b.calls[0].message)
	assert.Equal(t, []byte("0123456789"), b.calls[0].content)
}

func TestPersisterSingleAttemptByDefault(t *testing.T) {
	b := &flakyBackend{failures: 5, err: errors.New("timeout")}
	p := newTestPersister(t, b, 0)

	_, err := p.Persist(context.Background(), "ABC123-a.txt", []byte("x"))
	require.ErrorIs(t, err, ErrRemotePersist)
	assert.Len(t, b.calls, 1)
}

func TestPersisterRetriesWhenConfigured(t *testing.T) {
	b := &flakyBackend{failures: 2, err: errors.New("bad gateway")}
	p := newTestPersister(t, b, 3)

	_, err := p.Persist(context.Background(), "ABC123-a.txt", []byte("x"))
	require.NoError(t, err)
	assert.Len(t, b.calls, 3)
}

func TestPersisterDoesNotRetryRejections(t *testing.T) {
	b := &flakyBackend{failures: 5, err: fmt.Errorf("%w: bad credentials", ErrRejected)}
	p := newTestPersister(t, b, 3)

	_, err := p.Persist(context.Background(), "ABC123-a.txt", []byte("x"))
	require.ErrorIs(t, err, ErrRemotePersist)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Len(t, b.calls, 1)
}

type slowBackend struct{}

func (slowBackend) Put(ctx context.Context, _ string, _ []byte, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestPersisterTimesOut(t *testing.T) {
	p := NewPersister(slowBackend{}, PersisterOptions{
		Prefix:     "cn",
		PublicBase: "https://files.example.com",
		Timeout:    20 * time.Millisecond,
	}, zaptest.NewLogger(t), metrics.New())

	_, err := p.Persist(context.Background(), "ABC123-a.txt", []byte("x"))
	require.ErrorIs(t, err, ErrRemotePersist)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPersisterPublicURL(t *testing.T) {
	p := newTestPersister(t, &flakyBackend{}, 0)

	assert.Equal(t, "https://files.example.com/cn/ABC123-a.txt", p.PublicURL("ABC123-a.txt"))
	assert.Equal(t, "https://files.example.com/cn/ABC123-a%20b.txt", p.PublicURL("ABC123-a b.txt"))
}
