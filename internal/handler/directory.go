package handler

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/zynqcloud/filedrop/internal/apperror"
	"github.com/zynqcloud/filedrop/internal/index"
)

// entry is one row of a directory listing: the union of what the backing
// store sees and what the index knows, grounded on
// original_source/protected/directory.rs's ClientFile::from.
type entry struct {
	Name   string       `json:"name"`
	Path   string       `json:"path"`
	IsDir  bool         `json:"is_dir"`
	Size   int64        `json:"size"`
	ID     string       `json:"id,omitempty"`
	Access index.Access `json:"access,omitempty"`
}

// ListDirectory handles GET /m/directory[/{*path}]: the union of
// storage.ListDir and index.ChildrenOf, hiding .public_uploads (it is
// indexed but never listed, §4.F) and in-progress uploads still at size
// zero (§4.G directory-listing suppression).
func (h *Handler) ListDirectory(w http.ResponseWriter, r *http.Request) {
	dir := strings.Trim(r.PathValue("path"), "/")
	if strings.HasPrefix(dir, ".public_uploads") {
		writeError(w, http.StatusBadRequest, "directory not found")
		return
	}

	entries, err := h.listDirectory(r.Context(), dir)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) listDirectory(ctx context.Context, dir string) ([]entry, error) {
	metas, err := h.store.ListDir(ctx, dir)
	if err != nil {
		return nil, apperror.Wrap(apperror.StorageIO, "failed to list directory", err)
	}

	files, err := h.idx.ChildrenOf(ctx, dir)
	if err != nil {
		return nil, apperror.Wrap(apperror.IndexIO, "failed to list index children", err)
	}
	byPath := make(map[string]index.File, len(files))
	for _, f := range files {
		byPath[strings.ReplaceAll(f.Path, `\`, "/")] = f
	}

	out := make([]entry, 0, len(metas))
	for _, m := range metas {
		if strings.HasPrefix(m.Path, ".public_uploads") {
			continue
		}
		e := entry{Name: baseName(m.Path), Path: m.Path, IsDir: m.IsDir, Size: m.Size}
		if f, ok := byPath[strings.ReplaceAll(m.Path, `\`, "/")]; ok {
			// In-progress uploads (not yet durable) are suppressed from
			// listings rather than shown at a misleading size of zero.
			if !m.IsDir && f.Size == 0 {
				continue
			}
			e.ID = f.ID
			e.Access = f.Access
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func baseName(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

// CreateDirectory handles POST /m/directory/{*path}.
func (h *Handler) CreateDirectory(w http.ResponseWriter, r *http.Request) {
	dir := strings.Trim(r.PathValue("path"), "/")
	if dir == "" {
		writeError(w, http.StatusBadRequest, "a directory path is required")
		return
	}
	if err := h.store.CreateDirs(r.Context(), dir); err != nil {
		writeAppError(w, apperror.Wrap(apperror.StorageIO, "failed to create directory", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// DeleteDirectory handles DELETE /m/directory/{*path}. Refuses to remove
// a non-empty directory, per the backing store's DeleteEmptyDir contract.
func (h *Handler) DeleteDirectory(w http.ResponseWriter, r *http.Request) {
	dir := strings.Trim(r.PathValue("path"), "/")
	if dir == "" {
		writeError(w, http.StatusBadRequest, "a directory path is required")
		return
	}
	if err := h.store.DeleteEmptyDir(r.Context(), dir); err != nil {
		writeAppError(w, apperror.Wrap(apperror.StorageIO, "failed to delete directory", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
