package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/zynqcloud/filedrop/internal/apperror"
	"github.com/zynqcloud/filedrop/internal/index"
)

// DeleteFile handles DELETE /m/delete_file/{*path}, grounded on
// original_source/protected/file.rs::remove_file.
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	p := strings.Trim(r.PathValue("path"), "/")
	f, err := h.idx.GetFileByPath(r.Context(), p)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if err := h.idx.DeleteFile(r.Context(), f.ID); err != nil {
		writeAppError(w, apperror.Wrap(apperror.IndexIO, "failed to delete index record", err))
		return
	}
	if err := h.store.Delete(r.Context(), p); err != nil {
		writeAppError(w, apperror.Wrap(apperror.StorageIO, "failed to delete file bytes", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RenameFile handles POST /m/rename_file/{*path}?to=<new>, grounded on
// original_source/protected/file.rs::rename_file.
func (h *Handler) RenameFile(w http.ResponseWriter, r *http.Request) {
	p := strings.Trim(r.PathValue("path"), "/")
	to := strings.Trim(r.URL.Query().Get("to"), "/")
	if to == "" {
		writeError(w, http.StatusBadRequest, "query parameter \"to\" is required")
		return
	}

	f, err := h.idx.GetFileByPath(r.Context(), p)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if err := h.idx.RenameFile(r.Context(), f.ID, to); err != nil {
		writeAppError(w, err)
		return
	}
	if err := h.store.Rename(r.Context(), p, to); err != nil {
		writeAppError(w, apperror.Wrap(apperror.StorageIO, "failed to rename file bytes", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ChangeAccess handles POST /m/access/{*path}?access=<0|1>&id=<bool>,
// grounded on original_source/protected/file.rs::change_access. When the
// id query parameter is true, {*path} is interpreted as a file id rather
// than a logical path.
func (h *Handler) ChangeAccess(w http.ResponseWriter, r *http.Request) {
	p := strings.Trim(r.PathValue("path"), "/")

	access, err := strconv.ParseInt(r.URL.Query().Get("access"), 10, 64)
	if err != nil || (access != int64(index.AccessPrivate) && access != int64(index.AccessPublic)) {
		writeError(w, http.StatusBadRequest, "query parameter \"access\" must be 0 or 1")
		return
	}

	byID, _ := strconv.ParseBool(r.URL.Query().Get("id"))

	var f index.File
	if byID {
		f, err = h.idx.GetFileByID(r.Context(), p)
	} else {
		f, err = h.idx.GetFileByPath(r.Context(), p)
	}
	if err != nil {
		writeAppError(w, err)
		return
	}

	if err := h.idx.ChangeAccess(r.Context(), f.ID, index.Access(access)); err != nil {
		writeAppError(w, apperror.Wrap(apperror.IndexIO, "failed to change access", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
