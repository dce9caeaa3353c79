package index_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/zynqcloud/filedrop/internal/index"
)

func newTestStore(t *testing.T) *index.Store {
	t.Helper()
	s, err := index.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewFileAndLookup(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	f, err := s.NewFile(ctx, "abc1234567", "docs/a.txt", 1)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if f.ChunkIndex != 0 || f.Size != 0 || f.Access != index.AccessPrivate {
		t.Errorf("unexpected defaults: %+v", f)
	}

	byPath, err := s.GetFileByPath(ctx, "docs/a.txt")
	if err != nil {
		t.Fatalf("GetFileByPath: %v", err)
	}
	if byPath.ID != f.ID {
		t.Errorf("GetFileByPath id = %q, want %q", byPath.ID, f.ID)
	}

	byID, err := s.GetFileByID(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetFileByID: %v", err)
	}
	if byID.Path != "docs/a.txt" {
		t.Errorf("GetFileByID path = %q", byID.Path)
	}
}

func TestDuplicatePathConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.NewFile(ctx, "id0000001", "a.txt", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.NewFile(ctx, "id0000002", "a.txt", 1); err == nil {
		t.Error("expected conflict on duplicate path, got nil")
	}
}

func TestUpdateChunkIndexAndResume(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	f, err := s.NewFile(ctx, "id0000003", "big.bin", 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateChunkIndex(ctx, f.ID, 2); err != nil {
		t.Fatalf("UpdateChunkIndex: %v", err)
	}
	got, err := s.GetFileByID(ctx, f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ChunkIndex != 2 {
		t.Errorf("ChunkIndex = %d, want 2", got.ChunkIndex)
	}
}

func TestSuccessfulUploadAndDownloadCounter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	f, err := s.NewFile(ctx, "id0000004", "x.bin", 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SuccessfulUpload(ctx, f.ID, 1234); err != nil {
		t.Fatal(err)
	}
	if err := s.IncrementDownloadCount(ctx, f.ID); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetFileByID(ctx, f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Size != 1234 {
		t.Errorf("Size = %d, want 1234", got.Size)
	}
	if got.DownloadCount != 1 {
		t.Errorf("DownloadCount = %d, want 1", got.DownloadCount)
	}
	if got.LastDownloadedAt == nil {
		t.Error("LastDownloadedAt not set")
	}
}

func TestBytesStoredEmptyTable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	n, err := s.BytesStored(ctx)
	if err != nil {
		t.Fatalf("BytesStored: %v", err)
	}
	if n != 0 {
		t.Errorf("BytesStored on empty table = %d, want 0", n)
	}
}

func TestChildrenOfRootAndSubdir(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mustNewFile(t, s, ctx, "id1", "root.txt", 1)
	mustNewFile(t, s, ctx, "id2", "docs/a.txt", 1)
	mustNewFile(t, s, ctx, "id3", "docs/b.txt", 1)
	mustNewFile(t, s, ctx, "id4", "docs/sub/c.txt", 1)

	root, err := s.ChildrenOf(ctx, "")
	if err != nil {
		t.Fatalf("ChildrenOf(\"\"): %v", err)
	}
	if len(root) != 1 || root[0].Path != "root.txt" {
		t.Errorf("ChildrenOf(\"\") = %+v, want [root.txt]", root)
	}

	docs, err := s.ChildrenOf(ctx, "docs")
	if err != nil {
		t.Fatalf("ChildrenOf(docs): %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("ChildrenOf(docs) returned %d entries, want 2", len(docs))
	}
}

func mustNewFile(t *testing.T, s *index.Store, ctx context.Context, id, path string, totalChunks int64) {
	t.Helper()
	if _, err := s.NewFile(ctx, id, path, totalChunks); err != nil {
		t.Fatalf("NewFile(%q): %v", path, err)
	}
}

func TestStalePartialUploads(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	f, err := s.NewFile(ctx, "id0000005", "partial.bin", 10)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateChunkIndex(ctx, f.ID, 3); err != nil {
		t.Fatal(err)
	}

	// Not stale yet: cutoff in the past.
	stale, err := s.StalePartialUploads(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 0 {
		t.Errorf("expected no stale uploads yet, got %d", len(stale))
	}

	// Stale: cutoff in the future.
	stale, err = s.StalePartialUploads(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 1 || stale[0].ID != f.ID {
		t.Errorf("expected exactly %q stale, got %+v", f.ID, stale)
	}
}

func TestLinkMonotonicity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	link, err := s.NewLink(ctx)
	if err != nil {
		t.Fatalf("NewLink: %v", err)
	}
	if !link.IsUsable() {
		t.Fatal("fresh link should be usable")
	}

	if err := s.BindLink(ctx, link.ID, "fileid0001"); err != nil {
		t.Fatalf("BindLink: %v", err)
	}

	got, err := s.GetLinkByID(ctx, link.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsUsable() {
		t.Error("link should be unusable after binding")
	}
	if got.UploadedFile == nil || *got.UploadedFile != "fileid0001" {
		t.Errorf("UploadedFile = %v, want fileid0001", got.UploadedFile)
	}
}

func TestUnusedLinks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	l1, _ := s.NewLink(ctx)
	l2, _ := s.NewLink(ctx)
	if err := s.BindLink(ctx, l2.ID, "fileid0002"); err != nil {
		t.Fatal(err)
	}

	unused, err := s.UnusedLinks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(unused) != 1 || unused[0].ID != l1.ID {
		t.Errorf("UnusedLinks = %+v, want just %q", unused, l1.ID)
	}
}
