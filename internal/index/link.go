package index

import (
	"context"
	"database/sql"
	"time"

	"github.com/zynqcloud/filedrop/internal/apperror"
)

// Link is a one-time public upload grant (§3).
type Link struct {
	ID           string     `json:"id"`
	UploadedFile *string    `json:"uploaded_file,omitempty"`
	UploadedAt   *time.Time `json:"uploaded_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// IsUsable reports whether the link has not yet been consumed (§3
// invariant: usable iff both uploaded_file and uploaded_at are absent).
func (l Link) IsUsable() bool {
	return l.UploadedFile == nil && l.UploadedAt == nil
}

func scanLink(row interface{ Scan(...any) error }) (Link, error) {
	var l Link
	var uploadedFile sql.NullString
	var uploadedAt sql.NullString
	var created string
	if err := row.Scan(&l.ID, &uploadedFile, &uploadedAt, &created); err != nil {
		return Link{}, err
	}
	var err error
	if l.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return Link{}, err
	}
	if uploadedFile.Valid {
		v := uploadedFile.String
		l.UploadedFile = &v
	}
	if uploadedAt.Valid {
		t, err := time.Parse(timeLayout, uploadedAt.String)
		if err != nil {
			return Link{}, err
		}
		l.UploadedAt = &t
	}
	return l, nil
}

// NewLink creates a fresh, usable Link record.
func (s *Store) NewLink(ctx context.Context) (Link, error) {
	id, err := generateID()
	if err != nil {
		return Link{}, err
	}
	now := time.Now().UTC().Format(timeLayout)
	if err := s.exec(ctx, "INSERT INTO links (id, created_at) VALUES (?, ?)", id, now); err != nil {
		if isUniqueViolation(err) {
			return Link{}, apperror.Conflictf("link id %q already exists", id)
		}
		return Link{}, err
	}
	return s.GetLinkByID(ctx, id)
}

// GetLinkByID looks up a Link by its id.
func (s *Store) GetLinkByID(ctx context.Context, id string) (Link, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, uploaded_file, uploaded_at, created_at FROM links WHERE id = ?", id)
	l, err := scanLink(row)
	if err == sql.ErrNoRows {
		return Link{}, apperror.NotFoundf("link %q not found", id)
	}
	return l, err
}

// BindLink transitions a Link to used, binding it to fileID. This must
// only be called after the corresponding upload's bytes are durable
// (§4.D/§9 open question — post-durability binding).
func (s *Store) BindLink(ctx context.Context, id, fileID string) error {
	return s.exec(ctx,
		"UPDATE links SET uploaded_file = ?, uploaded_at = ? WHERE id = ?",
		fileID, time.Now().UTC().Format(timeLayout), id,
	)
}

// UnusedLinks returns every Link not yet bound to a file.
func (s *Store) UnusedLinks(ctx context.Context) ([]Link, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, uploaded_file, uploaded_at, created_at FROM links WHERE uploaded_file IS NULL")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteLink removes a Link record.
func (s *Store) DeleteLink(ctx context.Context, id string) error {
	return s.exec(ctx, "DELETE FROM links WHERE id = ?", id)
}
