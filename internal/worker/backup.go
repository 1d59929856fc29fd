package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gamedex/internal/config"
	"github.com/gamedex/internal/storage"
)

// Location is a backend together with the key the collection blob lives under
type Location struct {
	Backend storage.Backend
	Key     string
}

// BackupWorker periodically copies the collection blob from the primary
// backend to a backup backend
type BackupWorker struct {
	primary Location
	backup  Location
	config  *config.BackupConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
	last    []byte
}

// NewBackupWorker creates a new backup worker
func NewBackupWorker(primary, backup Location, cfg *config.BackupConfig, logger *slog.Logger) *BackupWorker {
	return &BackupWorker{
		primary: primary,
		backup:  backup,
		config:  cfg,
		logger:  logger.With("component", "backup_worker"),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins the background backup process
func (w *BackupWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("backup worker started", "interval", w.config.Interval, "backup_key", w.backup.Key)

	go w.run(ctx)
	return nil
}

// Stop stops the background process after a final backup
func (w *BackupWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("backup worker stopped")
	return nil
}

// run is the main worker loop
func (w *BackupWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			w.backupLogged(finalCtx)
			cancel()
			return
		case <-ticker.C:
			w.backupLogged(ctx)
		}
	}
}

func (w *BackupWorker) backupLogged(ctx context.Context) {
	startTime := time.Now()
	copied, err := w.RunOnce(ctx)
	if err != nil {
		w.logger.Error("backup cycle failed", "error", err)
		return
	}
	if copied {
		w.logger.Info("backup cycle completed", "duration", time.Since(startTime))
	}
}

// RunOnce copies the primary blob to the backup when it changed since the
// last copy. It reports whether anything was written.
func (w *BackupWorker) RunOnce(ctx context.Context) (bool, error) {
	value, err := w.primary.Backend.Get(ctx, w.primary.Key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("reading primary blob: %w", err)
	}

	w.mu.Lock()
	unchanged := w.last != nil && bytes.Equal(w.last, value)
	w.mu.Unlock()
	if unchanged {
		return false, nil
	}

	if err := w.backup.Backend.Set(ctx, w.backup.Key, value); err != nil {
		return false, fmt.Errorf("writing backup blob: %w", err)
	}

	w.mu.Lock()
	w.last = value
	w.mu.Unlock()

	w.logger.Debug("collection blob backed up", "bytes", len(value))
	return true, nil
}

// RestoreIfEmpty copies the backup blob to the primary backend when the
// primary key holds nothing. It reports whether a restore happened.
func (w *BackupWorker) RestoreIfEmpty(ctx context.Context) (bool, error) {
	_, err := w.primary.Backend.Get(ctx, w.primary.Key)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("reading primary blob: %w", err)
	}

	value, err := w.backup.Backend.Get(ctx, w.backup.Key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("reading backup blob: %w", err)
	}

	if err := w.primary.Backend.Set(ctx, w.primary.Key, value); err != nil {
		return false, fmt.Errorf("restoring primary blob: %w", err)
	}

	w.mu.Lock()
	w.last = value
	w.mu.Unlock()

	w.logger.Info("collection restored from backup", "backup_key", w.backup.Key, "bytes", len(value))
	return true, nil
}

// IsRunning returns whether the worker is currently running
func (w *BackupWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
