package handler

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/zynqcloud/filedrop/internal/apperror"
	"github.com/zynqcloud/filedrop/internal/index"
	"github.com/zynqcloud/filedrop/internal/upload"
)

// upgrader negotiates the upload channel's WebSocket handshake, grounded
// on zulfikawr-warp's wsUpgrader (buffer sizing, permissive same-origin
// CheckOrigin since filedrop has no browser-facing origin allowlist of
// its own — auth is enforced by token, not Origin).
var upgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// PrivateUpload handles the authenticated upload channel at
// GET /m/upload/{*path} (§4.D, §6).
func (h *Handler) PrivateUpload(w http.ResponseWriter, r *http.Request) {
	dest := strings.Trim(r.PathValue("path"), "/")
	h.runUpload(w, r, upload.PrivateDestination(dest), nil)
}

// PublicUpload handles the anonymous link-gated upload channel at
// GET /o/upload/{name}?id=<link> (§4.D, §6).
func (h *Handler) PublicUpload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	linkID := r.URL.Query().Get("id")
	if linkID == "" {
		writeError(w, http.StatusBadRequest, "query parameter \"id\" is required")
		return
	}

	link, err := h.idx.GetLinkByID(r.Context(), linkID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !link.IsUsable() {
		writeError(w, http.StatusBadRequest, "link is no longer valid")
		return
	}

	h.runUpload(w, r, upload.PublicDestination(name), &link)
}

func (h *Handler) runUpload(w http.ResponseWriter, r *http.Request, dest upload.DestinationFunc, link *index.Link) {
	release, ok := h.limiter.Acquire(w)
	if !ok {
		return
	}
	defer release()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upload: websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close() //nolint:errcheck

	h.metrics.UploadsInitiated.Add(1)
	rec, err := h.engine.Run(r.Context(), conn, dest, link)
	if err != nil {
		h.metrics.UploadsFailed.Add(1)
		if aerr, ok := apperror.As(err); !ok || aerr.Kind != apperror.ClientDisconnected {
			h.logger.Warn("upload session ended in error", "err", err)
		}
		return
	}

	h.metrics.UploadsCompleted.Add(1)
	h.metrics.BytesWritten.Add(rec.Size)
	if link != nil {
		h.metrics.LinksUsed.Add(1)
	}
}
