// Package cleanup reclaims disk space from abandoned upload sessions.
//
// When a client calls InitializeUpload but then disconnects (network drop,
// crash, browser close) before the last chunk lands, the File record is
// left behind with 0 < chunk_index < total_chunks and its partial bytes
// sit on the backing store indefinitely. At scale this accumulates
// unreclaimable storage. RunPeriodic sweeps any such record whose
// updated_at predates the configured timeout (§4.G supplemented feature).
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/zynqcloud/filedrop/internal/index"
	"github.com/zynqcloud/filedrop/internal/store"
)

// StalePartialUploads removes every File record whose upload started but
// never reached total_chunks and whose updated_at predates ttl, deleting
// both the index row and whatever partial bytes made it to the backing
// store. It is safe to call concurrently with active uploads: a session
// still receiving chunks keeps bumping updated_at (§4.D FINALLY), so it
// never crosses the cutoff while live.
func StalePartialUploads(ctx context.Context, idx *index.Store, backend store.Backend, ttl time.Duration, logger *slog.Logger) {
	cutoff := time.Now().Add(-ttl)
	stale, err := idx.StalePartialUploads(ctx, cutoff)
	if err != nil {
		logger.Warn("cleanup: failed to list stale partial uploads", "err", err)
		return
	}

	var removed int
	for _, f := range stale {
		age := time.Since(f.UpdatedAt).Round(time.Minute)
		if err := backend.Delete(ctx, f.Path); err != nil {
			logger.Warn("cleanup: failed to remove partial bytes", "path", f.Path, "err", err)
			continue
		}
		if err := idx.DeleteFile(ctx, f.ID); err != nil {
			logger.Warn("cleanup: failed to remove stale index row", "file_id", f.ID, "err", err)
			continue
		}
		removed++
		logger.Info("cleanup: removed stale partial upload", "file_id", f.ID, "path", f.Path, "age", age)
	}
	if removed > 0 {
		logger.Info("cleanup: cycle complete", "removed", removed)
	}
}

// RunPeriodic starts a background goroutine that sweeps stale partial
// uploads on every interval until ctx is cancelled, and returns a channel
// that closes once that goroutine has exited — callers awaiting a clean
// shutdown block on it after cancelling ctx. A first pass runs
// immediately at startup to flush sessions left over from a previous
// crash or restart.
//
// Recommended values: ttl=1h (config.UploadTimeoutSecs), interval=10m.
func RunPeriodic(ctx context.Context, idx *index.Store, backend store.Backend, ttl, interval time.Duration, logger *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		StalePartialUploads(ctx, idx, backend, ttl, logger)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				StalePartialUploads(ctx, idx, backend, ttl, logger)
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}
