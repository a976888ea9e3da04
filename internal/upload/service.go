// Package upload implements the relay pipeline: stage an incoming file, push it
// to remote storage, announce it, and hand the public URL back to the client.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	gerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"

	"github.com/anoupload/relay/internal/metrics"
	"github.com/anoupload/relay/internal/naming"
	"github.com/anoupload/relay/internal/staging"
	"github.com/anoupload/relay/internal/storage"
)

// ErrNoFileProvided is returned when a request carries no file part.
var ErrNoFileProvided = gerrors.New("No file uploaded.", gerrors.CategoryBadInput).
	WithCode(400).
	WithTextCode("NO_FILE_PROVIDED")

// Persister pushes staged bytes to durable storage.
type Persister interface {
	Persist(ctx context.Context, name string, content []byte) (string, error)
	PublicURL(name string) string
}

// Announcer receives a (name, URL) pair for every completed upload.
type Announcer interface {
	Announce(fileName, fileURL string)
}

// Result is a completed upload.
type Result struct {
	FileName   string
	RemotePath string
	FileURL    string
	Size       int64
}

// Service runs the upload pipeline.
type Service struct {
	store     *staging.Store
	persister Persister
	announcer Announcer
	logger    *zap.Logger
	metrics   *metrics.Metrics
	newName   func(original string) string
}

// NewService creates a new upload Service.
func NewService(store *staging.Store, persister Persister, announcer Announcer, logger *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:     store,
		persister: persister,
		announcer: announcer,
		logger:    logger,
		metrics:   m,
		newName:   naming.Generate,
	}
}

// MaxSize returns the largest accepted file in bytes.
func (s *Service) MaxSize() int64 {
	return s.store.MaxSize()
}

// NoFile records a request without a file part and returns ErrNoFileProvided.
func (s *Service) NoFile() error {
	s.metrics.Uploads.WithLabelValues(metrics.ResultNoFile).Inc()
	return ErrNoFileProvided
}

// HandleUpload stages body under a fresh name, persists it remotely and
// announces it. A URL is returned only when the remote write succeeded. On a
// remote failure the staged copy stays behind for the purge sweep.
func (s *Service) HandleUpload(ctx context.Context, originalName string, body io.Reader) (*Result, error) {
	name := s.newName(originalName)
	log := s.logger.With(zap.String("file", name))

	// Held until the remote push returns so the purge sweep cannot remove the
	// file between the write and the read below.
	release := s.store.Pin(name)
	defer release()

	staged, err := s.store.Write(ctx, name, body)
	if err != nil {
		err = capacityFromBody(err)
		s.metrics.Uploads.WithLabelValues(stagingResult(err)).Inc()
		log.Warn("upload: staging failed", zap.Error(err))
		return nil, err
	}
	s.metrics.StagedBytes.Add(float64(staged.Size))

	content, err := s.store.Read(name)
	if err != nil {
		s.metrics.Uploads.WithLabelValues(metrics.ResultStagingFailed).Inc()
		log.Error("upload: read staged file", zap.Error(err))
		return nil, err
	}

	remotePath, err := s.persister.Persist(ctx, name, content)
	if err != nil {
		s.metrics.Uploads.WithLabelValues(metrics.ResultRemoteFailed).Inc()
		log.Error("upload: remote persist failed", zap.Error(err))
		return nil, err
	}

	fileURL := s.persister.PublicURL(name)
	s.announcer.Announce(name, fileURL)
	s.metrics.Uploads.WithLabelValues(metrics.ResultSuccess).Inc()

	log.Info("upload: stored",
		zap.String("original", originalName),
		zap.Int64("size", staged.Size),
		zap.String("remote_path", remotePath),
	)

	return &Result{
		FileName:   name,
		RemotePath: remotePath,
		FileURL:    fileURL,
		Size:       staged.Size,
	}, nil
}

// capacityFromBody turns a request body cut off by http.MaxBytesReader into a
// capacity error instead of an incomplete upload.
func capacityFromBody(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: request body over %d bytes", staging.ErrCapacityExceeded, tooLarge.Limit)
	}
	return err
}

func stagingResult(err error) string {
	if errors.Is(err, staging.ErrCapacityExceeded) {
		return metrics.ResultTooLarge
	}
	return metrics.ResultStagingFailed
}

var _ Persister = (*storage.Persister)(nil)
