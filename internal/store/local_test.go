package store_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/zynqcloud/filedrop/internal/store"
)

func newTestLocal(t *testing.T) *store.Local {
	t.Helper()
	root := t.TempDir() // cleaned up automatically after each test
	l, err := store.NewLocal(root)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return l
}

func drainReadStream(t *testing.T, ch <-chan store.StreamChunk) []byte {
	t.Helper()
	var buf bytes.Buffer
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatalf("ReadStream: %v", chunk.Err)
		}
		buf.Write(chunk.Data)
	}
	return buf.Bytes()
}

func TestWriteBytesAndReadStream(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)
	want := []byte("hello, storage")

	if err := l.WriteBytes(ctx, "owner/file.enc", want); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}

	ch, err := l.ReadStream(ctx, "owner/file.enc")
	if err != nil {
		t.Fatalf("ReadStream: %v", err)
	}
	got := drainReadStream(t, ch)
	if !bytes.Equal(got, want) {
		t.Errorf("ReadStream content mismatch: got %q, want %q", got, want)
	}
}

func TestWriteBytesIsAtomic(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)

	if err := l.WriteBytes(ctx, "f.enc", []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := l.WriteBytes(ctx, "f.enc", []byte("second")); err != nil {
		t.Fatal(err)
	}

	ch, _ := l.ReadStream(ctx, "f.enc")
	got := drainReadStream(t, ch)
	if string(got) != "second" {
		t.Errorf("expected 'second', got %q", got)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)
	l.WriteBytes(ctx, "to-delete.enc", []byte("data")) //nolint:errcheck

	if err := l.Delete(ctx, "to-delete.enc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ok, err := l.Exists(ctx, "to-delete.enc")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("file still exists after Delete")
	}
}

func TestDeleteNonExistent(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)
	if err := l.Delete(ctx, "ghost.enc"); err != nil {
		t.Fatalf("Delete of non-existent file returned error: %v", err)
	}
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)

	ok, err := l.Exists(ctx, "missing.enc")
	if err != nil || ok {
		t.Errorf("Exists(missing) = (%v, %v), want (false, nil)", ok, err)
	}

	l.WriteBytes(ctx, "present.enc", []byte("x")) //nolint:errcheck
	ok, err = l.Exists(ctx, "present.enc")
	if err != nil || !ok {
		t.Errorf("Exists(present) = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)
	l.WriteBytes(ctx, "src.enc", []byte("payload")) //nolint:errcheck

	if err := l.Rename(ctx, "src.enc", "dst/dst.enc"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	ok, _ := l.Exists(ctx, "src.enc")
	if ok {
		t.Error("source still exists after Rename")
	}
	ok, _ = l.Exists(ctx, "dst/dst.enc")
	if !ok {
		t.Error("destination does not exist after Rename")
	}
}

func TestCreateDirs(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)
	if err := l.CreateDirs(ctx, "a/b/c"); err != nil {
		t.Fatalf("CreateDirs: %v", err)
	}
	ok, _ := l.Exists(ctx, "a/b/c")
	if !ok {
		t.Error("directory not created")
	}
}

// TestPathTraversal verifies that attempts to escape the storage root are
// rejected.
func TestPathTraversal(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)

	traversals := []string{
		"../escape.enc",
		"../../etc/passwd",
		"owner/../../escape.enc",
	}
	for _, p := range traversals {
		err := l.WriteBytes(ctx, p, []byte("x"))
		if err == nil {
			t.Errorf("WriteBytes(%q): expected traversal error, got nil", p)
		}
	}
}

// TestGetWritableHandleRandomAccess verifies chunked out-of-order-safe
// writes through GetWritableHandle, the primitive the upload engine places
// chunks with.
func TestGetWritableHandleRandomAccess(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)

	h, err := l.GetWritableHandle(ctx, "chunked.bin")
	if err != nil {
		t.Fatalf("GetWritableHandle: %v", err)
	}

	const chunkSize = 4
	chunks := [][]byte{[]byte("aaaa"), []byte("bbbb"), []byte("cccc"), []byte("dddd")}
	order := []int{2, 1, 3, 0} // write out of logical order, seeking each time
	for _, idx := range order {
		if err := h.Seek(int64(idx) * chunkSize); err != nil {
			t.Fatalf("Seek: %v", err)
		}
		if _, err := h.Write(chunks[idx]); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ch, err := l.ReadStream(ctx, "chunked.bin")
	if err != nil {
		t.Fatalf("ReadStream: %v", err)
	}
	got := drainReadStream(t, ch)
	want := []byte("aaaabbbbccccdddd")
	if !bytes.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

// TestListDir verifies directory enumeration reports the expected entries.
func TestListDir(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)
	l.WriteBytes(ctx, "dir/a.txt", []byte("a"))   //nolint:errcheck
	l.WriteBytes(ctx, "dir/b.txt", []byte("bb"))  //nolint:errcheck
	l.CreateDirs(ctx, "dir/sub")                  //nolint:errcheck

	entries, err := l.ListDir(ctx, "dir")
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("ListDir returned %d entries, want 3", len(entries))
	}
	var sawDir bool
	for _, e := range entries {
		if e.Path == "dir/sub" {
			sawDir = true
			if !e.IsDir {
				t.Error("dir/sub reported as non-directory")
			}
		}
	}
	if !sawDir {
		t.Error("dir/sub missing from listing")
	}
}

// TestDeleteEmptyDir verifies non-empty directories are rejected.
func TestDeleteEmptyDir(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)
	l.CreateDirs(ctx, "empty") //nolint:errcheck

	if err := l.DeleteEmptyDir(ctx, "empty"); err != nil {
		t.Fatalf("DeleteEmptyDir(empty): %v", err)
	}

	l.CreateDirs(ctx, "full")                     //nolint:errcheck
	l.WriteBytes(ctx, "full/f.txt", []byte("x")) //nolint:errcheck
	if err := l.DeleteEmptyDir(ctx, "full"); err == nil {
		t.Error("DeleteEmptyDir(non-empty): expected error, got nil")
	}
}

// TestNestedOwnerDir verifies the nested path pattern used by downloads.
func TestNestedOwnerDir(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)
	path := filepath.Join("owner-uuid", "file-uuid.enc")
	path = filepath.ToSlash(path)

	if err := l.WriteBytes(ctx, path, []byte("encrypted")); err != nil {
		t.Fatalf("WriteBytes nested: %v", err)
	}

	ch, err := l.ReadStream(ctx, path)
	if err != nil {
		t.Fatalf("ReadStream nested: %v", err)
	}
	got := drainReadStream(t, ch)
	if string(got) != "encrypted" {
		t.Errorf("got %q", got)
	}
}

// TestLargeStream verifies streaming without buffering a full file (1 MB),
// exercising the 8 KiB chunking boundary.
func TestLargeStream(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)
	const size = 1 << 20 // 1 MB

	data := bytes.Repeat([]byte("A"), size)
	if err := l.WriteBytes(ctx, "big.enc", data); err != nil {
		t.Fatalf("WriteBytes large: %v", err)
	}

	ch, err := l.ReadStream(ctx, "big.enc")
	if err != nil {
		t.Fatalf("ReadStream large: %v", err)
	}
	var n int
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatalf("ReadStream chunk error: %v", chunk.Err)
		}
		n += len(chunk.Data)
	}
	if n != size {
		t.Errorf("read back %d bytes, want %d", n, size)
	}
}

// TestNewLocalCreatesRoot verifies that a non-existent root is created.
func TestNewLocalCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "new", "nested", "root")
	_, err := store.NewLocal(root)
	if err != nil {
		t.Fatalf("NewLocal with missing root: %v", err)
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		t.Error("root directory was not created")
	}
}
