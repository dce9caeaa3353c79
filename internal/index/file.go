package index

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/zynqcloud/filedrop/internal/apperror"
)

// Access is the File visibility enumeration of §3.
type Access int64

const (
	AccessPrivate Access = 0
	AccessPublic  Access = 1
)

const timeLayout = time.RFC3339Nano

// File is one logical file record (§3).
type File struct {
	ID               string     `json:"id"`
	Path             string     `json:"path"`
	Size             int64      `json:"size"`
	DownloadCount    int64      `json:"download_count"`
	LastDownloadedAt *time.Time `json:"last_downloaded_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Access           Access     `json:"access"`
	ChunkIndex       int64      `json:"chunk_index"`
	TotalChunks      int64      `json:"total_chunks"`
}

func scanFile(row interface{ Scan(...any) error }) (File, error) {
	var f File
	var lastDownloaded sql.NullString
	var created, updated string
	if err := row.Scan(
		&f.ID, &f.Path, &f.Size, &f.DownloadCount, &lastDownloaded,
		&created, &updated, &f.Access, &f.ChunkIndex, &f.TotalChunks,
	); err != nil {
		return File{}, err
	}
	var err error
	if f.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return File{}, err
	}
	if f.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return File{}, err
	}
	if lastDownloaded.Valid {
		t, err := time.Parse(timeLayout, lastDownloaded.String)
		if err != nil {
			return File{}, err
		}
		f.LastDownloadedAt = &t
	}
	return f, nil
}

const fileColumns = "id, path, size, download_count, last_downloaded_at, created_at, updated_at, access, chunk_index, total_chunks"

// GetFileByID looks up a File by its id.
func (s *Store) GetFileByID(ctx context.Context, id string) (File, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM files WHERE id = ?", id)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return File{}, apperror.NotFoundf("file %q not found", id)
	}
	return f, err
}

// GetFileByPath looks up a File by its logical path.
func (s *Store) GetFileByPath(ctx context.Context, path string) (File, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM files WHERE path = ?", path)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return File{}, apperror.NotFoundf("file at %q not found", path)
	}
	return f, err
}

// NewFile creates a fresh File record with chunk_index=0, size=0,
// access=Private (resumable upload starting point, §4.D).
func (s *Store) NewFile(ctx context.Context, id, path string, totalChunks int64) (File, error) {
	now := time.Now().UTC().Format(timeLayout)
	err := s.exec(ctx,
		"INSERT INTO files (id, path, size, download_count, created_at, updated_at, access, chunk_index, total_chunks) VALUES (?, ?, 0, 0, ?, ?, ?, 0, ?)",
		id, path, now, now, AccessPrivate, totalChunks,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return File{}, apperror.Conflictf("path %q or id %q already exists", path, id)
		}
		return File{}, err
	}
	return s.GetFileByID(ctx, id)
}

// InsertReconciled inserts a File record discovered on storage but absent
// from the index: access=Private, total_chunks=-1, marked uploaded at the
// observed size (§4.F pass 2).
func (s *Store) InsertReconciled(ctx context.Context, id, path string, size int64) (File, error) {
	now := time.Now().UTC().Format(timeLayout)
	err := s.exec(ctx,
		"INSERT INTO files (id, path, size, download_count, created_at, updated_at, access, chunk_index, total_chunks) VALUES (?, ?, ?, 0, ?, ?, ?, ?, -1)",
		id, path, size, now, now, AccessPrivate, -1,
	)
	if err != nil {
		return File{}, err
	}
	return s.GetFileByID(ctx, id)
}

// DeleteFile removes a File record.
func (s *Store) DeleteFile(ctx context.Context, id string) error {
	return s.exec(ctx, "DELETE FROM files WHERE id = ?", id)
}

// SuccessfulUpload marks a File as having completed at least one full
// upload round: size is set, updated_at bumped.
func (s *Store) SuccessfulUpload(ctx context.Context, id string, size int64) error {
	return s.exec(ctx,
		"UPDATE files SET size = ?, updated_at = ? WHERE id = ?",
		size, time.Now().UTC().Format(timeLayout), id,
	)
}

// ChangeAccess flips a File's visibility.
func (s *Store) ChangeAccess(ctx context.Context, id string, access Access) error {
	return s.exec(ctx,
		"UPDATE files SET access = ?, updated_at = ? WHERE id = ?",
		access, time.Now().UTC().Format(timeLayout), id,
	)
}

// RenameFile updates a File's logical path.
func (s *Store) RenameFile(ctx context.Context, id, newPath string) error {
	err := s.exec(ctx,
		"UPDATE files SET path = ?, updated_at = ? WHERE id = ?",
		newPath, time.Now().UTC().Format(timeLayout), id,
	)
	if err != nil && isUniqueViolation(err) {
		return apperror.Conflictf("path %q already exists", newPath)
	}
	return err
}

// IncrementDownloadCount bumps download_count by one and stamps
// last_downloaded_at (§4.E bookkeeping).
func (s *Store) IncrementDownloadCount(ctx context.Context, id string) error {
	return s.exec(ctx,
		"UPDATE files SET download_count = download_count + 1, last_downloaded_at = ? WHERE id = ?",
		time.Now().UTC().Format(timeLayout), id,
	)
}

// UpdateChunkIndex persists the resume pointer. Called on every upload
// session termination, success or failure (§4.D FINALLY).
func (s *Store) UpdateChunkIndex(ctx context.Context, id string, chunkIndex int64) error {
	return s.exec(ctx,
		"UPDATE files SET chunk_index = ?, updated_at = ? WHERE id = ?",
		chunkIndex, time.Now().UTC().Format(timeLayout), id,
	)
}

// BytesStored sums size over every File record, coalescing NULL (empty
// table) to zero rather than erroring (§3.1).
func (s *Store) BytesStored(ctx context.Context) (int64, error) {
	var total sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT SUM(size) FROM files").Scan(&total); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return total.Int64, nil
}

// ChildrenOf returns every File whose path is an immediate child of dir —
// the exact instr/LIKE mechanism of §3.1, carried over from the original's
// get_files_in_directory.
func (s *Store) ChildrenOf(ctx context.Context, dir string) ([]File, error) {
	dir = strings.TrimSuffix(dir, "/")

	var rows *sql.Rows
	var err error
	if dir == "" {
		rows, err = s.db.QueryContext(ctx, "SELECT "+fileColumns+" FROM files WHERE instr(path, '/') = 0")
	} else {
		rows, err = s.db.QueryContext(ctx,
			"SELECT "+fileColumns+" FROM files WHERE path LIKE ? AND instr(substr(path, ? + 2), '/') = 0",
			dir+"/%", len(dir),
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// AllFiles returns every File record, used by the reconciler's first pass.
func (s *Store) AllFiles(ctx context.Context) ([]File, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+fileColumns+" FROM files")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// CountFiles returns the total number of File records.
func (s *Store) CountFiles(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM files").Scan(&n)
	return n, err
}

// StalePartialUploads returns every File whose upload started but never
// reached total_chunks, and whose updated_at is at or before cutoff — the
// abandoned-upload GC's sweep set (§4.G supplemented feature).
func (s *Store) StalePartialUploads(ctx context.Context, cutoff time.Time) ([]File, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE total_chunks > 0 AND chunk_index > 0 AND chunk_index < total_chunks AND updated_at <= ?",
		cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
