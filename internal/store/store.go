// Package store abstracts the file storage medium. Local and SFTP both
// implement Backend; swap one for the other without touching handler or
// upload-engine code.
package store

import "context"

// FileMetadata is the storage-side, transient description of a path. It is
// never persisted — obtained from the backend on demand.
type FileMetadata struct {
	Path            string
	IsDir           bool
	Size            int64
	ModifiedUnixSec int64
}

// StreamChunk is one element of a ReadStream sequence. A mid-stream read
// failure is delivered as one final StreamChunk with Err set, after which
// the channel is closed — there is no separate error return path because
// the sequence is consumed as a channel, not a single call.
type StreamChunk struct {
	Data []byte
	Err  error
}

// RandomWriteHandle supports placing chunks at arbitrary offsets. Seeking
// past the current end of file creates a sparse region of undefined bytes;
// callers (the upload engine) always seek then write a full chunk payload
// before seeking again, so the sparse region is never read before it is
// written.
type RandomWriteHandle interface {
	Seek(offset int64) error
	Write(p []byte) (int, error)
	Close() error
}

// Backend abstracts the file storage medium.
type Backend interface {
	Exists(ctx context.Context, path string) (bool, error)
	Metadata(ctx context.Context, path string) (FileMetadata, error)

	// ReadStream produces a finite, non-restartable sequence of byte
	// chunks delivered over the returned channel. The channel is closed
	// when the stream terminates (EOF or error); callers must drain it.
	ReadStream(ctx context.Context, path string) (<-chan StreamChunk, error)

	// WriteBytes is a whole-file, atomic write. Parent directories are
	// created as needed.
	WriteBytes(ctx context.Context, path string, data []byte) error

	// GetWritableHandle returns a handle supporting Seek+Write, used by
	// the upload engine to place chunks at chunk_ordinal × chunk_size.
	// The caller must Close the handle to release it.
	GetWritableHandle(ctx context.Context, path string) (RandomWriteHandle, error)

	Delete(ctx context.Context, path string) error
	Rename(ctx context.Context, from, to string) error
	CreateDirs(ctx context.Context, path string) error

	// ListDir lists the immediate children of path.
	ListDir(ctx context.Context, path string) ([]FileMetadata, error)

	// DeleteEmptyDir removes path, failing if it is non-empty.
	DeleteEmptyDir(ctx context.Context, path string) error

	RootDirectory() string
}
