package sync_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/zynqcloud/filedrop/internal/index"
	"github.com/zynqcloud/filedrop/internal/store"
	"github.com/zynqcloud/filedrop/internal/sync"
)

func newTestReconciler(t *testing.T) (*sync.Reconciler, *index.Store, store.Backend) {
	t.Helper()
	idx, err := index.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	backend, err := store.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return sync.NewReconciler(idx, backend, logger), idx, backend
}

func TestReconcileDeletesOrphanedRecord(t *testing.T) {
	ctx := context.Background()
	r, idx, _ := newTestReconciler(t)

	f, err := idx.NewFile(ctx, "id0000001", "gone.txt", 1)
	if err != nil {
		t.Fatal(err)
	}
	// No bytes ever written for this record.

	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := idx.GetFileByID(ctx, f.ID); err == nil {
		t.Error("expected orphaned record to be deleted")
	}
}

func TestReconcileInsertsUntrackedFile(t *testing.T) {
	ctx := context.Background()
	r, idx, backend := newTestReconciler(t)

	if err := backend.WriteBytes(ctx, "docs/found.txt", []byte("hi there")); err != nil {
		t.Fatal(err)
	}

	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	f, err := idx.GetFileByPath(ctx, "docs/found.txt")
	if err != nil {
		t.Fatalf("expected a reconciled record, got: %v", err)
	}
	if f.TotalChunks != -1 {
		t.Errorf("TotalChunks = %d, want -1 for a reconciled record", f.TotalChunks)
	}
	if f.Size != 8 {
		t.Errorf("Size = %d, want 8", f.Size)
	}
	if f.Access != index.AccessPrivate {
		t.Errorf("Access = %v, want Private", f.Access)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r, idx, backend := newTestReconciler(t)

	if err := backend.WriteBytes(ctx, "stable.txt", []byte("abc")); err != nil {
		t.Fatal(err)
	}
	if err := r.Run(ctx); err != nil {
		t.Fatal(err)
	}
	first, err := idx.GetFileByPath(ctx, "stable.txt")
	if err != nil {
		t.Fatal(err)
	}

	if err := r.Run(ctx); err != nil {
		t.Fatal(err)
	}
	second, err := idx.GetFileByPath(ctx, "stable.txt")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Errorf("a second reconciliation run should not re-insert the record: %q != %q", first.ID, second.ID)
	}
}

func TestReconcileIndexesPublicUploadsToo(t *testing.T) {
	ctx := context.Background()
	r, idx, backend := newTestReconciler(t)

	if err := backend.WriteBytes(ctx, ".public_uploads/shared.bin", []byte("xy")); err != nil {
		t.Fatal(err)
	}
	if err := r.Run(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := idx.GetFileByPath(ctx, ".public_uploads/shared.bin"); err != nil {
		t.Errorf("expected .public_uploads bytes to be indexed too: %v", err)
	}
}
