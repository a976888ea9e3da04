package staging

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestStore(t *testing.T, maxSize int64) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "uploads"), maxSize, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func TestNewStoreCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "uploads")
	s, err := NewStore(dir, 10, zaptest.NewLogger(t))
	require.NoError(t, err)

	info, err := os.Stat(s.Dir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewStoreFailsWhenDirCannotBeCreated(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := NewStore(filepath.Join(blocker, "uploads"), 10, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestWriteAndRead(t *testing.T) {
	s := newTestStore(t, 10)

	staged, err := s.Write(context.Background(), "ABC123-a.txt", strings.NewReader("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), staged.Size)
	assert.Equal(t, filepath.Join(s.Dir(), "ABC123-a.txt"), staged.Path)

	data, err := s.Read("ABC123-a.txt")
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))
}

func TestWriteRejectsOversizedBody(t *testing.T) {
	s := newTestStore(t, 10)

	_, err := s.Write(context.Background(), "ABC123-big.bin", bytes.NewReader(make([]byte, 11)))
	require.ErrorIs(t, err, ErrCapacityExceeded)

	names, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, names, "partial file must be removed")
}

func TestWriteStopsOnCancelledContext(t *testing.T) {
	s := newTestStore(t, 1024)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Write(ctx, "ABC123-a.txt", strings.NewReader("hello"))
	require.ErrorIs(t, err, ErrIncomplete)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.Read("ABC123-a.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestWriteReportsSourceFailure(t *testing.T) {
	s := newTestStore(t, 1024)

	_, err := s.Write(context.Background(), "ABC123-a.txt", io.MultiReader(strings.NewReader("he"), failingReader{}))
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestWriteRejectsUnsafeNames(t *testing.T) {
	s := newTestStore(t, 10)

	for _, name := range []string{"", "../escape", "a/b", ".."} {
		_, err := s.Write(context.Background(), name, strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestReadMissing(t *testing.T) {
	s := newTestStore(t, 10)
	_, err := s.Read("does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen(t *testing.T) {
	s := newTestStore(t, 10)
	_, err := s.Write(context.Background(), "ABC123-a.txt", strings.NewReader("abc"))
	require.NoError(t, err)

	f, info, err := s.Open("ABC123-a.txt")
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, int64(3), info.Size())
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	_, _, err = s.Open("does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t, 10)
	_, err := s.Write(context.Background(), "ABC123-a.txt", strings.NewReader("abc"))
	require.NoError(t, err)

	require.NoError(t, s.Delete("ABC123-a.txt"))
	assert.ErrorIs(t, s.Delete("ABC123-a.txt"), ErrNotFound)
}

func TestDeleteRefusesPinnedFile(t *testing.T) {
	s := newTestStore(t, 10)
	release := s.Pin("ABC123-a.txt")
	_, err := s.Write(context.Background(), "ABC123-a.txt", strings.NewReader("abc"))
	require.NoError(t, err)

	assert.ErrorIs(t, s.Delete("ABC123-a.txt"), ErrInUse)

	release()
	release() // idempotent
	assert.False(t, s.Pinned("ABC123-a.txt"))
	assert.NoError(t, s.Delete("ABC123-a.txt"))
}

func TestDeleteNeverRemovesPinnedFile(t *testing.T) {
	s := newTestStore(t, 10)
	const name = "ABC123-a.txt"

	for i := 0; i < 200; i++ {
		_, err := s.Write(context.Background(), name, strings.NewReader("abc"))
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			deleteErr error
			statErr   error
			release   func()
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			deleteErr = s.Delete(name)
		}()
		go func() {
			defer wg.Done()
			release = s.Pin(name)
			_, statErr = os.Stat(filepath.Join(s.Dir(), name))
		}()
		wg.Wait()

		// A successful delete must have finished before the pin was taken.
		if deleteErr == nil {
			require.ErrorIs(t, statErr, fs.ErrNotExist, "iteration %d", i)
		} else {
			require.ErrorIs(t, deleteErr, ErrInUse, "iteration %d", i)
			_, err := os.Stat(filepath.Join(s.Dir(), name))
			require.NoError(t, err, "iteration %d", i)
		}
		release()
	}
}

func TestPinIsCounted(t *testing.T) {
	s := newTestStore(t, 10)
	r1 := s.Pin("x")
	r2 := s.Pin("x")

	r1()
	assert.True(t, s.Pinned("x"))
	r2()
	assert.False(t, s.Pinned("x"))
}

func TestListSkipsDirectories(t *testing.T) {
	s := newTestStore(t, 10)
	require.NoError(t, os.Mkdir(filepath.Join(s.Dir(), "sub"), 0o755))
	for _, name := range []string{"B-2.txt", "A-1.txt"} {
		_, err := s.Write(context.Background(), name, strings.NewReader("x"))
		require.NoError(t, err)
	}

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"A-1.txt", "B-2.txt"}, names)
}
