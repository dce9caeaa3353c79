package handler

import (
	"net/http"

	"github.com/zynqcloud/filedrop/internal/apperror"
)

// NewLink handles POST /m/new_link, grounded on
// original_source/protected/link.rs::new_link. QR-code rendering is out
// of scope (SPEC_FULL.md §2.1); the response carries the bare link record.
func (h *Handler) NewLink(w http.ResponseWriter, r *http.Request) {
	link, err := h.idx.NewLink(r.Context())
	if err != nil {
		writeAppError(w, apperror.Wrap(apperror.IndexIO, "failed to create link", err))
		return
	}
	h.metrics.LinksCreated.Add(1)
	writeJSON(w, http.StatusOK, link)
}

// ListLinks handles GET /m/links, grounded on
// original_source/protected/link.rs::get_unused_links.
func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	links, err := h.idx.UnusedLinks(r.Context())
	if err != nil {
		writeAppError(w, apperror.Wrap(apperror.IndexIO, "failed to list links", err))
		return
	}
	writeJSON(w, http.StatusOK, links)
}

// DeleteLink handles DELETE /m/link/{id}, grounded on
// original_source/protected/link.rs::delete_link.
func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.idx.DeleteLink(r.Context(), id); err != nil {
		writeAppError(w, apperror.Wrap(apperror.IndexIO, "failed to delete link", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// VerifyLink handles POST /verify_link/{id} — unauthenticated, since a
// client must be able to check link validity before it has a token
// (§6; original_source/protected/link.rs::verify_link's own TODO notes
// this route doesn't belong behind auth either).
func (h *Handler) VerifyLink(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	link, err := h.idx.GetLinkByID(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !link.IsUsable() {
		writeError(w, http.StatusBadRequest, "link is no longer valid")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
