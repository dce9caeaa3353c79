package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/zynqcloud/filedrop/internal/apperror"
	"github.com/zynqcloud/filedrop/internal/config"
	"github.com/zynqcloud/filedrop/internal/download"
	"github.com/zynqcloud/filedrop/internal/index"
	"github.com/zynqcloud/filedrop/internal/middleware"
	"github.com/zynqcloud/filedrop/internal/store"
	"github.com/zynqcloud/filedrop/internal/sync"
	"github.com/zynqcloud/filedrop/internal/upload"
)

// Handler holds shared dependencies for all HTTP handlers.
type Handler struct {
	cfg     *config.Config
	idx     *index.Store
	store   store.Backend
	engine  *upload.Engine
	limiter *upload.SessionLimiter
	dl      *download.Handler
	sync    *sync.Reconciler
	logger  *slog.Logger
	metrics *Metrics
}

// New registers all routes and returns the root http.Handler. Uses Go
// 1.22 method+path pattern syntax — no external router needed.
//
// Middleware stack (outer → inner):
//
//	RequestLog → ServeMux → ServiceToken auth → handler
//
// (the teacher's generic per-request UploadLimiter is not reinstated
// here — see DESIGN.md §G; the upload engine's own SessionLimiter gates
// the WebSocket upgrade directly, in PrivateUpload/PublicUpload).
func New(cfg *config.Config, idx *index.Store, backend store.Backend, reconciler *sync.Reconciler, logger *slog.Logger) http.Handler {
	h := &Handler{
		cfg:     cfg,
		idx:     idx,
		store:   backend,
		engine:  upload.NewEngine(idx, backend, cfg.StorageLimitBytes, logger),
		limiter: upload.NewSessionLimiter(cfg.MaxConcurrentUploads),
		dl:      download.NewHandler(idx, backend, cfg.ServiceToken, logger),
		sync:    reconciler,
		logger:  logger,
		metrics: &Metrics{},
	}

	auth := middleware.ServiceToken(cfg.ServiceToken)
	logMW := middleware.RequestLog(logger)

	mux := http.NewServeMux()

	// ── Download / preview ──────────────────────────────────────────────
	mux.HandleFunc("GET /d/{id}", h.download)
	mux.HandleFunc("GET /preview_data/{id}", h.dl.ServePreviewData)

	// ── Upload channels ──────────────────────────────────────────────────
	mux.HandleFunc("GET /o/upload/{name}", h.PublicUpload)
	mux.Handle("GET /m/upload/{path...}", auth(http.HandlerFunc(h.PrivateUpload)))

	// ── Directory listing / management ───────────────────────────────────
	mux.Handle("GET /m/directory", auth(http.HandlerFunc(h.ListDirectory)))
	mux.Handle("GET /m/directory/{path...}", auth(http.HandlerFunc(h.ListDirectory)))
	mux.Handle("POST /m/directory/{path...}", auth(http.HandlerFunc(h.CreateDirectory)))
	mux.Handle("DELETE /m/directory/{path...}", auth(http.HandlerFunc(h.DeleteDirectory)))

	// ── File mutation ─────────────────────────────────────────────────────
	mux.Handle("DELETE /m/delete_file/{path...}", auth(http.HandlerFunc(h.DeleteFile)))
	mux.Handle("POST /m/rename_file/{path...}", auth(http.HandlerFunc(h.RenameFile)))
	mux.Handle("POST /m/access/{path...}", auth(http.HandlerFunc(h.ChangeAccess)))

	// ── Link management ───────────────────────────────────────────────────
	mux.Handle("POST /m/new_link", auth(http.HandlerFunc(h.NewLink)))
	mux.Handle("GET /m/links", auth(http.HandlerFunc(h.ListLinks)))
	mux.Handle("DELETE /m/link/{id}", auth(http.HandlerFunc(h.DeleteLink)))
	mux.HandleFunc("POST /verify_link/{id}", h.VerifyLink) // unauthenticated, see link.go

	// ── Storage stats / backend info ─────────────────────────────────────
	mux.Handle("GET /m/storage_limit", auth(http.HandlerFunc(h.StorageLimit)))
	mux.Handle("GET /m/file_system", auth(http.HandlerFunc(h.FileSystem)))

	// ── Observability ──────────────────────────────────────────────────────
	//
	// GET /health        — liveness probe: fast 200 while the process is alive.
	// GET /healthz/ready — readiness probe: storage root reachable + free
	//                      disk space, behind the service token so internal
	//                      state isn't leaked publicly.
	// GET /metrics       — atomic process counters as flat JSON, behind auth.
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /healthz/ready", auth(http.HandlerFunc(h.Readiness)))
	mux.Handle("GET /metrics", auth(h.metrics.metricsHandler(h.limiter.Active, func() (int64, int64) {
		return h.sync.LastAdded(), h.sync.LastRemoved()
	})))

	// Wrap the entire mux with request logging so every route — including
	// auth failures and upgrade rejections — gets an access log entry.
	return logMW(mux)
}

// download wraps download.Handler.ServeHTTP to bump the completed/
// cancelled counters: the request context is cancelled by net/http the
// moment the client goes away, so a non-nil Err() once the handler
// returns means the stream didn't reach a clean EOF.
func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	h.dl.ServeHTTP(w, r)
	if r.Context().Err() != nil {
		h.metrics.DownloadsCancelled.Add(1)
	} else {
		h.metrics.DownloadsCompleted.Add(1)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError translates an apperror.Error (or any other error) into a
// JSON response, mirroring the teacher's writeError helper extended to
// understand the apperror taxonomy. A Kind of ClientDisconnected writes
// nothing — there is no peer left to receive a response.
func writeAppError(w http.ResponseWriter, err error) {
	aerr, ok := apperror.As(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if aerr.Status() == 0 {
		return
	}
	writeError(w, aerr.Status(), aerr.Reason)
}
