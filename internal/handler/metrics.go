package handler

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Metrics holds process-lifetime atomic counters exposed at GET /metrics.
// All writes use atomic operations so there is no lock contention on hot
// paths, same shape as the teacher's Metrics struct, field set redrawn for
// filedrop's upload/download/reconciliation domain (§4.G).
type Metrics struct {
	UploadsInitiated   atomic.Int64 // InitializeUpload envelopes received
	UploadsCompleted   atomic.Int64 // sessions that reached UploadComplete
	UploadsFailed      atomic.Int64 // sessions that ended in any other error
	BytesWritten       atomic.Int64 // file sizes of completed upload sessions
	DownloadsCompleted atomic.Int64 // streams drained to true EOF
	DownloadsCancelled atomic.Int64 // streams closed before EOF
	LinksCreated       atomic.Int64 // one-time upload links minted
	LinksUsed          atomic.Int64 // links consumed by a completed upload
}

// metricsHandler returns the http.HandlerFunc that serialises the current
// counter snapshot as a flat JSON object. activeFunc is called at render
// time for the real-time active-session count from the upload session
// limiter; reconciled is called for the most recent startup sync pass's
// added/removed counts — both read live rather than being copied into
// Metrics, since neither is owned by this struct.
func (m *Metrics) metricsHandler(activeFunc func() int, reconciled func() (added, removed int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		added, removed := reconciled()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{ //nolint:errcheck
			"uploads_initiated":   m.UploadsInitiated.Load(),
			"uploads_completed":   m.UploadsCompleted.Load(),
			"uploads_failed":      m.UploadsFailed.Load(),
			"bytes_written":       m.BytesWritten.Load(),
			"downloads_completed": m.DownloadsCompleted.Load(),
			"downloads_cancelled": m.DownloadsCancelled.Load(),
			"reconciled_added":    added,
			"reconciled_removed":  removed,
			"links_created":       m.LinksCreated.Load(),
			"links_used":          m.LinksUsed.Load(),
			"active_uploads":      int64(activeFunc()),
		})
	}
}
