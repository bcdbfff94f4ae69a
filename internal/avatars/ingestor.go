// Package avatars persists uploaded profile pictures in the background.
package avatars

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"
	"time"
)

// Storage saves raw bytes under a key and returns a public location.
type Storage interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// ProfileUpdater persists upload status updates on the user record.
type ProfileUpdater interface {
	MarkAvatarReady(ctx context.Context, userID, location string) error
	MarkAvatarFailed(ctx context.Context, userID string) error
}

// IngestorConfig controls the concurrency characteristics of the ingestor.
type IngestorConfig struct {
	QueueSize int
	Workers   int
}

// Job is one pending profile-picture upload.
type Job struct {
	UserID      string
	ContentType string
	Data        []byte
}

// Ingestor asynchronously uploads profile pictures to object storage and
// records the outcome on the user record.
type Ingestor struct {
	storage Storage
	updater ProfileUpdater
	logger  *slog.Logger

	jobs   chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

var errIngestorClosed = errors.New("avatar ingestor closed")

// NewIngestor constructs a background worker pool that persists avatars.
func NewIngestor(storage Storage, updater ProfileUpdater, cfg IngestorConfig, logger *slog.Logger) *Ingestor {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	ing := &Ingestor{
		storage: storage,
		updater: updater,
		logger:  logger,
		jobs:    make(chan Job, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	ing.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go ing.worker()
	}

	return ing
}

// Enqueue schedules persistence of the supplied upload.
func (i *Ingestor) Enqueue(ctx context.Context, job Job) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-i.ctx.Done():
		return errIngestorClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-i.ctx.Done():
		return errIngestorClosed
	case i.jobs <- job:
		return nil
	}
}

// Shutdown waits for the worker pool to drain outstanding jobs.
func (i *Ingestor) Shutdown(ctx context.Context) error {
	i.once.Do(func() {
		i.cancel()
		close(i.jobs)
	})

	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (i *Ingestor) worker() {
	defer i.wg.Done()

	for job := range i.jobs {
		i.handleJob(job)
	}
}

func (i *Ingestor) handleJob(job Job) {
	if i.storage == nil || i.updater == nil {
		i.logger.Error("avatar ingestor missing dependencies", "hasStorage", i.storage != nil, "hasUpdater", i.updater != nil)
		return
	}

	uploadCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	key := path.Join("avatars", fmt.Sprintf("%s%s", job.UserID, extensionFor(job.ContentType)))
	location, err := i.storage.Save(uploadCtx, key, bytes.NewReader(job.Data))
	if err != nil {
		i.logger.Error("avatar upload failed", "userId", job.UserID, "error", err)
		i.recordFailure(job.UserID)
		return
	}

	if err := i.recordSuccess(job.UserID, location); err != nil {
		i.logger.Error("mark avatar ready", "userId", job.UserID, "error", err)
		i.recordFailure(job.UserID)
	}
}

func (i *Ingestor) recordFailure(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := i.updater.MarkAvatarFailed(ctx, userID); err != nil {
		i.logger.Error("record avatar failure", "userId", userID, "error", err)
	}
}

func (i *Ingestor) recordSuccess(userID, location string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return i.updater.MarkAvatarReady(ctx, userID, location)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
