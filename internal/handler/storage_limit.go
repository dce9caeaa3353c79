package handler

import (
	"net/http"

	"github.com/zynqcloud/filedrop/internal/apperror"
)

// storageLimit is the {used, max} bytes response of GET /m/storage_limit,
// grounded on original_source/protected/storage_limit.rs::StorageLimit.
type storageLimit struct {
	Used int64 `json:"used"`
	Max  int64 `json:"max"`
}

// StorageLimit handles GET /m/storage_limit.
func (h *Handler) StorageLimit(w http.ResponseWriter, r *http.Request) {
	used, err := h.idx.BytesStored(r.Context())
	if err != nil {
		writeAppError(w, apperror.Wrap(apperror.IndexIO, "failed to compute bytes stored", err))
		return
	}
	writeJSON(w, http.StatusOK, storageLimit{Used: used, Max: h.cfg.StorageLimitBytes})
}
