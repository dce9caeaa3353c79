package handler

import (
	"fmt"
	"net/http"

	"github.com/zynqcloud/filedrop/internal/config"
	"github.com/zynqcloud/filedrop/internal/store"
)

// Readiness is the readiness probe handler, kept from the teacher's
// storage-directory + free-disk-space checks
// (internal/store/diskstats_{linux,other}.go), generalized from
// per-owner storage semantics to the single-root file store.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	type check struct {
		Name string `json:"name"`
		OK   bool   `json:"ok"`
		Msg  string `json:"msg,omitempty"`
	}
	var checks []check
	allOK := true

	if _, err := h.store.Metadata(r.Context(), ""); err != nil {
		checks = append(checks, check{"storage_accessible", false, "root directory unreachable"})
		allOK = false
	} else {
		checks = append(checks, check{"storage_accessible", true, ""})
	}

	if ls, ok := h.store.(*store.Local); ok {
		avail, total := ls.DiskStats()
		if total > 0 {
			if avail < uint64(h.cfg.MinFreeBytes) {
				checks = append(checks, check{
					"disk_space", false,
					fmt.Sprintf("%d MB free — need %d MB", avail>>20, h.cfg.MinFreeBytes>>20),
				})
				allOK = false
			} else {
				checks = append(checks, check{
					"disk_space", true,
					fmt.Sprintf("%d MB free of %d MB", avail>>20, total>>20),
				})
			}
		}
	}

	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"ready": allOK, "checks": checks})
}

// fileSystemInfo is the GET /m/file_system response, grounded on
// original_source/protected/file_system.rs::FileSystemInfo.
type fileSystemInfo struct {
	Which string `json:"which"`
	About string `json:"about"`
}

// FileSystem handles GET /m/file_system: reports which backend is active
// and where it points, without leaking credentials.
func (h *Handler) FileSystem(w http.ResponseWriter, _ *http.Request) {
	info := fileSystemInfo{Which: string(h.cfg.FileSystem)}
	switch h.cfg.FileSystem {
	case config.FileSystemLocal:
		if h.cfg.Local != nil {
			info.About = h.cfg.Local.Path
		}
	case config.FileSystemSSH:
		if h.cfg.SSH != nil {
			info.About = fmt.Sprintf("%s@%s:%d | %s", h.cfg.SSH.User, h.cfg.SSH.Host, h.cfg.SSH.Port, h.cfg.SSH.RemoteRoot)
		}
	}
	writeJSON(w, http.StatusOK, info)
}
