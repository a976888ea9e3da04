// Package staging implements the local write-through buffer that holds uploads
// between receipt and remote persistence.
//
// The staging directory is the only shared mutable resource in the relay. Writes
// to distinct names are independent. A name that is pinned by an in-flight upload
// cannot be deleted, which keeps the purge sweep from removing a file between the
// staging write and the remote push.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	gerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"

	"github.com/anoupload/relay/internal/naming"
)

var (
	// ErrCapacityExceeded is returned when an upload body exceeds the configured maximum.
	ErrCapacityExceeded = gerrors.New("File too large.", gerrors.CategoryBadInput).
				WithCode(413).
				WithTextCode("CAPACITY_EXCEEDED")

	// ErrIOFailure is returned for local disk errors (permissions, out of space).
	ErrIOFailure = gerrors.New("Error storing file.", gerrors.CategoryInternal).
			WithCode(500).
			WithTextCode("IO_FAILURE")

	// ErrNotFound is returned when a staged file does not exist.
	ErrNotFound = gerrors.New("File not found.", gerrors.CategoryNotFound).
			WithCode(404).
			WithTextCode("NOT_FOUND")

	// ErrInUse is returned when deleting a file that an upload still holds.
	ErrInUse = gerrors.New("File is still being processed.", gerrors.CategoryConflict).
			WithCode(409).
			WithTextCode("IN_USE")

	// ErrInvalidName is returned for names that are not a single safe path segment.
	ErrInvalidName = gerrors.New("Invalid file name.", gerrors.CategoryBadInput).
			WithCode(400).
			WithTextCode("INVALID_NAME")

	// ErrIncomplete is returned when the upload stream fails or is cancelled mid-write.
	ErrIncomplete = gerrors.New("Upload incomplete.", gerrors.CategoryBadInput).
			WithCode(400).
			WithTextCode("UPLOAD_INCOMPLETE")
)

// StagedFile describes a file that landed in the staging directory.
type StagedFile struct {
	Name string
	Path string
	Size int64
}

// Store is a directory of staged uploads.
type Store struct {
	dir     string
	maxSize int64
	logger  *zap.Logger

	mu   sync.Mutex
	pins map[string]int
}

// NewStore creates dir if needed and returns a Store that rejects bodies larger
// than maxSize bytes.
func NewStore(dir string, maxSize int64, logger *zap.Logger) (*Store, error) {
	if dir == "" {
		return nil, errors.New("staging dir is required")
	}
	if maxSize <= 0 {
		return nil, errors.New("staging max size must be positive")
	}

	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir %q: %w", dir, err)
	}

	return &Store{
		dir:     dir,
		maxSize: maxSize,
		logger:  logger,
		pins:    make(map[string]int),
	}, nil
}

// Dir returns the staging directory.
func (s *Store) Dir() string {
	return s.dir
}

// MaxSize returns the largest accepted body in bytes.
func (s *Store) MaxSize() int64 {
	return s.maxSize
}

// Pin marks name as in use until the returned release func is called.
// Pins are counted, so the same name may be pinned more than once.
func (s *Store) Pin(name string) (release func()) {
	s.mu.Lock()
	s.pins[name]++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.pins[name]--; s.pins[name] <= 0 {
				delete(s.pins, name)
			}
		})
	}
}

// Pinned reports whether name is currently held by an upload.
func (s *Store) Pinned(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pins[name] > 0
}

// Write streams r into <dir>/<name>. The copy aborts as soon as more than
// MaxSize bytes have been read or ctx is cancelled; a partial file is removed.
func (s *Store) Write(ctx context.Context, name string, r io.Reader) (*StagedFile, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	src := &sourceReader{ctx: ctx, r: io.LimitReader(r, s.maxSize+1)}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}

	switch {
	case err != nil && src.err != nil:
		s.discard(path)
		return nil, fmt.Errorf("%w: %w", ErrIncomplete, src.err)
	case err != nil:
		s.discard(path)
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	case n > s.maxSize:
		s.discard(path)
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrCapacityExceeded, s.maxSize)
	}

	return &StagedFile{Name: name, Path: path, Size: n}, nil
}

// Read returns the full content of a staged file.
func (s *Store) Read(name string) ([]byte, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, classify(err)
	}
	return data, nil
}

// Open returns a staged file for streaming back to a client. The caller closes it.
func (s *Store) Open(name string) (*os.File, fs.FileInfo, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, classify(err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, classify(err)
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, nil, ErrNotFound
	}
	return f, info, nil
}

// Delete removes one staged file. Pinned files are refused with ErrInUse and
// missing files return ErrNotFound.
func (s *Store) Delete(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}

	// Held across the remove so a name cannot be pinned between check and delete.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pins[name] > 0 {
		return ErrInUse
	}

	if err := os.Remove(path); err != nil {
		return classify(err)
	}
	return nil
}

// List returns the names of all regular files currently staged, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func (s *Store) path(name string) (string, error) {
	if !naming.Valid(name) {
		return "", ErrInvalidName
	}
	return filepath.Join(s.dir, name), nil
}

func (s *Store) discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("staging: remove partial file", zap.String("path", path), zap.Error(err))
	}
}

func classify(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	default:
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
}

// sourceReader remembers errors that come from the upload stream itself, as
// opposed to the disk, and stops reading once ctx is done.
type sourceReader struct {
	ctx context.Context
	r   io.Reader
	err error
}

func (r *sourceReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		r.err = err
		return 0, err
	}
	n, err := r.r.Read(p)
	if err != nil && err != io.EOF {
		r.err = err
	}
	return n, err
}
