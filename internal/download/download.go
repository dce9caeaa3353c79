package download

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/zynqcloud/filedrop/internal/apperror"
	"github.com/zynqcloud/filedrop/internal/index"
	"github.com/zynqcloud/filedrop/internal/store"
)

// previewByteLimit is the per-file ceiling enforced for preview requests
// (preview=true or p=true); requests without the preview flag are
// unbounded (§4.E).
const previewByteLimit = 512_000_000

// staticMIMETypes is a deliberately small extension→MIME table. No
// MIME-sniffing library is used (out of scope, §1): an unrecognised
// extension falls back to application/octet-stream.
var staticMIMETypes = map[string]string{
	".txt":  "text/plain; charset=utf-8",
	".html": "text/html; charset=utf-8",
	".htm":  "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "text/javascript; charset=utf-8",
	".json": "application/json",
	".xml":  "application/xml",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".tar":  "application/x-tar",
	".gz":   "application/gzip",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".csv":  "text/csv",
	".md":   "text/markdown; charset=utf-8",
}

const defaultMIMEType = "application/octet-stream"

func mimeType(logicalPath string) string {
	ext := strings.ToLower(path.Ext(logicalPath))
	if mt, ok := staticMIMETypes[ext]; ok {
		return mt
	}
	return defaultMIMEType
}

// Handler serves GET /d/{id} and GET /preview_data/{id}.
type Handler struct {
	idx          *index.Store
	backend      store.Backend
	serviceToken string
	logger       *slog.Logger
}

func NewHandler(idx *index.Store, backend store.Backend, serviceToken string, logger *slog.Logger) *Handler {
	return &Handler{idx: idx, backend: backend, serviceToken: serviceToken, logger: logger}
}

// authorized implements the §4.E/§4.G token gate: a cookie token=<v> or an
// Authorization: Bearer <v> header, compared byte-equal after trimming.
func (h *Handler) authorized(r *http.Request) bool {
	token := ""
	if c, err := r.Cookie("token"); err == nil {
		token = c.Value
	} else if auth := r.Header.Get("Authorization"); auth != "" {
		token = strings.TrimPrefix(auth, "Bearer ")
	}
	token = strings.TrimSpace(token)
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.serviceToken)) == 1
}

// ServeHTTP handles GET /d/{id}, with raw=true and preview=true query
// parameters controlling Content-Disposition and the preview size cap.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	file, err := h.idx.GetFileByID(r.Context(), id)
	if err != nil {
		writeAppError(w, err, h.logger)
		return
	}

	exists, err := h.backend.Exists(r.Context(), file.Path)
	if err != nil {
		writeAppError(w, apperror.Wrap(apperror.StorageIO, "failed to check file existence", err), h.logger)
		return
	}
	if !exists {
		writeAppError(w, apperror.NotFoundf("no bytes found for file %q", id), h.logger)
		return
	}

	if file.Access == index.AccessPrivate && !h.authorized(r) {
		writeAppError(w, apperror.Unauthorizedf("you can't access this file"), h.logger)
		return
	}

	preview := r.URL.Query().Get("preview") == "true" || r.URL.Query().Get("p") == "true"
	if preview && file.Size > previewByteLimit {
		writeAppError(w, apperror.InvalidArgumentf("file too large to preview"), h.logger)
		return
	}

	ch, err := h.backend.ReadStream(r.Context(), file.Path)
	if err != nil {
		writeAppError(w, apperror.Wrap(apperror.StorageIO, "failed to open read stream", err), h.logger)
		return
	}
	stream := NewStream(ch, h.idx, file.ID, h.logger)
	defer stream.Close()

	w.Header().Set("Transfer-Encoding", "chunked")
	w.Header().Set("Content-Type", mimeType(file.Path))
	raw := r.URL.Query().Get("raw") == "true" || r.URL.Query().Get("r") == "true"
	if !raw {
		w.Header().Set("Content-Disposition", contentDisposition(file.Path))
	}
	w.WriteHeader(http.StatusOK)

	buf := make([]byte, 32*1024)
	for {
		n, rerr := stream.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				h.logger.Warn("client disconnected mid-download", "file_id", file.ID, "err", werr)
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
		if rerr != nil {
			return
		}
	}
}

// previewData mirrors the original's PreviewData payload shape.
type previewData struct {
	ID           string  `json:"id"`
	FileName     string  `json:"file_name"`
	Size         int64   `json:"size"`
	CreatedAt    string  `json:"created_at"`
	MimeType     string  `json:"mime_type"`
	Access       int64   `json:"access"`
	Path         *string `json:"path,omitempty"`
	CantPreview  bool    `json:"cant_preview"`
}

// ServePreviewData handles GET /preview_data/{id}: metadata only, no bytes.
// path is included only for authorized callers (§4.E, original_source/preview.rs).
func (h *Handler) ServePreviewData(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	file, err := h.idx.GetFileByID(r.Context(), id)
	if err != nil {
		writeAppError(w, err, h.logger)
		return
	}

	exists, err := h.backend.Exists(r.Context(), file.Path)
	if err != nil {
		writeAppError(w, apperror.Wrap(apperror.StorageIO, "failed to check file existence", err), h.logger)
		return
	}
	if !exists {
		writeAppError(w, apperror.NotFoundf("no bytes found for file %q", id), h.logger)
		return
	}

	authed := h.authorized(r)
	if file.Access == index.AccessPrivate && !authed {
		writeAppError(w, apperror.Unauthorizedf("you can't access this file"), h.logger)
		return
	}

	data := previewData{
		ID:          id,
		FileName:    path.Base(file.Path),
		Size:        file.Size,
		CreatedAt:   file.CreatedAt.Format("2006-01-02T15:04:05.999999999Z07:00"),
		MimeType:    mimeType(file.Path),
		Access:      int64(file.Access),
		CantPreview: file.Size > previewByteLimit,
	}
	if authed {
		p := file.Path
		data.Path = &p
	}

	writeJSON(w, http.StatusOK, data)
}

func contentDisposition(logicalPath string) string {
	name := path.Base(logicalPath)
	if name == "." || name == "/" || name == "" {
		name = "unknown"
	}
	return fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(name))
}

func writeAppError(w http.ResponseWriter, err error, logger *slog.Logger) {
	aerr, ok := apperror.As(err)
	if !ok {
		aerr = apperror.Wrap(apperror.Internal, "unexpected error", err)
	}
	status := aerr.Status()
	if status == 0 {
		return // ClientDisconnected: no response to write
	}
	if status >= 500 {
		logger.Error("download request failed", "err", aerr)
	}
	writeJSON(w, status, map[string]string{"error": aerr.Reason})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body) //nolint:errcheck
}
