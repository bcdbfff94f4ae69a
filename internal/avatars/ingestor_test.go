package avatars

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeStorage struct {
	mu    sync.Mutex
	saved map[string]string
	err   error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{saved: make(map[string]string)}
}

func (s *fakeStorage) Save(_ context.Context, name string, r io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.saved[name] = string(data)
	s.mu.Unlock()
	return "https://cdn.example.com/" + name, nil
}

type recordingUpdater struct {
	mu       sync.Mutex
	ready    map[string]string
	failed   map[string]int
	readyErr error
}

func newRecordingUpdater() *recordingUpdater {
	return &recordingUpdater{ready: make(map[string]string), failed: make(map[string]int)}
}

func (u *recordingUpdater) MarkAvatarReady(_ context.Context, userID, location string) error {
	if u.readyErr != nil {
		return u.readyErr
	}
	u.mu.Lock()
	u.ready[userID] = location
	u.mu.Unlock()
	return nil
}

func (u *recordingUpdater) MarkAvatarFailed(_ context.Context, userID string) error {
	u.mu.Lock()
	u.failed[userID]++
	u.mu.Unlock()
	return nil
}

func shutdown(t *testing.T, ing *Ingestor) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ing.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestIngestorUploadsAndMarksReady(t *testing.T) {
	storage := newFakeStorage()
	updater := newRecordingUpdater()
	ing := NewIngestor(storage, updater, IngestorConfig{QueueSize: 4, Workers: 2}, nil)

	job := Job{UserID: "user-1", ContentType: "image/png", Data: []byte("pixels")}
	if err := ing.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	shutdown(t, ing)

	if got := storage.saved["avatars/user-1.png"]; got != "pixels" {
		t.Fatalf("expected upload under avatars/user-1.png, got %+v", storage.saved)
	}
	if !strings.HasSuffix(updater.ready["user-1"], "avatars/user-1.png") {
		t.Fatalf("expected ready location recorded, got %+v", updater.ready)
	}
	if updater.failed["user-1"] != 0 {
		t.Fatalf("expected no failures, got %+v", updater.failed)
	}
}

func TestIngestorRecordsUploadFailure(t *testing.T) {
	storage := newFakeStorage()
	storage.err = errors.New("bucket unavailable")
	updater := newRecordingUpdater()
	ing := NewIngestor(storage, updater, IngestorConfig{}, nil)

	if err := ing.Enqueue(context.Background(), Job{UserID: "user-1", ContentType: "image/jpeg"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	shutdown(t, ing)

	if updater.failed["user-1"] != 1 {
		t.Fatalf("expected one recorded failure, got %+v", updater.failed)
	}
	if len(updater.ready) != 0 {
		t.Fatalf("expected no ready marks, got %+v", updater.ready)
	}
}

func TestIngestorRecordsStatusUpdateFailure(t *testing.T) {
	storage := newFakeStorage()
	updater := newRecordingUpdater()
	updater.readyErr = errors.New("database down")
	ing := NewIngestor(storage, updater, IngestorConfig{}, nil)

	if err := ing.Enqueue(context.Background(), Job{UserID: "user-1", ContentType: "image/png", Data: []byte("pixels")}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	shutdown(t, ing)

	if updater.failed["user-1"] != 1 {
		t.Fatalf("expected failure recorded when ready mark fails, got %+v", updater.failed)
	}
}

func TestIngestorRejectsEnqueueAfterShutdown(t *testing.T) {
	ing := NewIngestor(newFakeStorage(), newRecordingUpdater(), IngestorConfig{}, nil)
	shutdown(t, ing)

	if err := ing.Enqueue(context.Background(), Job{UserID: "user-1"}); err == nil {
		t.Fatal("expected error after shutdown")
	}
}

func TestIngestorDrainsQueueOnShutdown(t *testing.T) {
	storage := newFakeStorage()
	updater := newRecordingUpdater()
	ing := NewIngestor(storage, updater, IngestorConfig{QueueSize: 8, Workers: 1}, nil)

	for i := 0; i < 5; i++ {
		job := Job{UserID: "user-" + string(rune('a'+i)), ContentType: "image/png", Data: []byte("pixels")}
		if err := ing.Enqueue(context.Background(), job); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	shutdown(t, ing)

	if len(updater.ready) != 5 {
		t.Fatalf("expected all queued jobs processed, got %d", len(updater.ready))
	}
}
