// Package sync reconciles the index against the backing store at startup,
// grounded on original_source/sync.rs's sync_from_db/sync_from_files.
package sync

import (
	"context"
	"log/slog"

	"github.com/zynqcloud/filedrop/internal/apperror"
	"github.com/zynqcloud/filedrop/internal/index"
	"github.com/zynqcloud/filedrop/internal/store"
)

// Reconciler runs the two-pass startup sync described in §4.F.
type Reconciler struct {
	idx     *index.Store
	backend store.Backend
	logger  *slog.Logger

	lastAdded   int64
	lastRemoved int64
}

func NewReconciler(idx *index.Store, backend store.Backend, logger *slog.Logger) *Reconciler {
	return &Reconciler{idx: idx, backend: backend, logger: logger}
}

// LastAdded returns the number of index rows inserted by the most recent
// Run call, for the /metrics snapshot (§4.G observability).
func (r *Reconciler) LastAdded() int64 { return r.lastAdded }

// LastRemoved returns the number of orphaned index rows removed by the
// most recent Run call, for the /metrics snapshot (§4.G observability).
func (r *Reconciler) LastRemoved() int64 { return r.lastRemoved }

// Run executes pass 1 (index → storage: drop orphaned rows) then pass 2
// (storage → index: insert rows for bytes the index doesn't know about).
// Per-entry failures are logged and skipped; they never abort the run.
func (r *Reconciler) Run(ctx context.Context) error {
	if err := r.syncFromIndex(ctx); err != nil {
		return apperror.Wrap(apperror.IndexIO, "reconciliation: index pass failed", err)
	}
	if err := r.syncFromStorage(ctx); err != nil {
		return apperror.Wrap(apperror.IndexIO, "reconciliation: storage pass failed", err)
	}
	return nil
}

// syncFromIndex deletes any File record whose bytes are no longer present
// on the backing store.
func (r *Reconciler) syncFromIndex(ctx context.Context) error {
	files, err := r.idx.AllFiles(ctx)
	if err != nil {
		return err
	}

	deleted := 0
	for _, f := range files {
		exists, err := r.backend.Exists(ctx, f.Path)
		if err != nil {
			r.logger.Warn("reconciliation: failed to check existence, skipping", "path", f.Path, "err", err)
			continue
		}
		if exists {
			continue
		}
		if err := r.idx.DeleteFile(ctx, f.ID); err != nil {
			r.logger.Warn("reconciliation: failed to delete orphaned record, skipping", "path", f.Path, "err", err)
			continue
		}
		deleted++
	}
	r.lastRemoved = int64(deleted)
	if deleted > 0 {
		r.logger.Info("reconciliation: removed index rows with no backing bytes", "count", deleted)
	}
	return nil
}

// syncFromStorage walks the backing store depth-first, inserting a File
// record for every regular file the index doesn't already know about.
func (r *Reconciler) syncFromStorage(ctx context.Context) error {
	before, err := r.idx.CountFiles(ctx)
	if err != nil {
		return err
	}

	if err := r.visitDir(ctx, ""); err != nil {
		return err
	}

	after, err := r.idx.CountFiles(ctx)
	if err != nil {
		return err
	}
	r.lastAdded = after - before
	if after > before {
		r.logger.Info("reconciliation: inserted new index rows from storage", "count", after-before)
	}
	return nil
}

func (r *Reconciler) visitDir(ctx context.Context, dir string) error {
	entries, err := r.backend.ListDir(ctx, dir)
	if err != nil {
		r.logger.Warn("reconciliation: failed to list directory, skipping", "dir", dir, "err", err)
		return nil
	}

	for _, e := range entries {
		if e.IsDir {
			if err := r.visitDir(ctx, e.Path); err != nil {
				return err
			}
			continue
		}
		if err := r.handleEntry(ctx, e); err != nil {
			r.logger.Warn("reconciliation: failed to index entry, skipping", "path", e.Path, "err", err)
		}
	}
	return nil
}

func (r *Reconciler) handleEntry(ctx context.Context, e store.FileMetadata) error {
	if _, err := r.idx.GetFileByPath(ctx, e.Path); err == nil {
		return nil // already indexed
	} else if aerr, ok := apperror.As(err); !ok || aerr.Kind != apperror.NotFound {
		return err
	}

	id, err := index.GenerateID()
	if err != nil {
		return err
	}
	if _, err := r.idx.InsertReconciled(ctx, id, e.Path, e.Size); err != nil {
		return err
	}
	r.logger.Info("reconciliation: indexed orphaned file", "path", e.Path)
	return nil
}
