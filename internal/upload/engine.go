// Package upload drives the resumable chunked upload protocol: one Engine
// instance per connection, carrying the exact state machine of the
// original's websocket upload handler over a gorilla/websocket connection.
package upload

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"path"

	"github.com/gorilla/websocket"

	"github.com/zynqcloud/filedrop/internal/apperror"
	"github.com/zynqcloud/filedrop/internal/index"
	"github.com/zynqcloud/filedrop/internal/packet"
	"github.com/zynqcloud/filedrop/internal/store"
)

// Conn is the subset of *websocket.Conn the engine needs. Tests substitute
// an in-memory fake; production callers pass a real *websocket.Conn, which
// satisfies this interface without any adapter.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
}

// DestinationFunc computes the on-storage path for an upload once its
// InitializeUpload envelope has arrived.
type DestinationFunc func(init packet.InitializeUpload) (string, error)

// PrivateDestination returns a DestinationFunc for the authenticated path:
// the destination is fixed from the request URL and does not depend on
// the client-supplied name (§4.D).
func PrivateDestination(path string) DestinationFunc {
	return func(packet.InitializeUpload) (string, error) { return path, nil }
}

// PublicDestination returns a DestinationFunc for the anonymous link path:
// the destination is .public_uploads/<basename(name)>, where name is the
// {name} URL path segment of the /o/upload/{name} route — not the
// client-supplied InitializeUpload.Name — grounded on
// original_source/upload/public.rs, which derives the stored filename
// from the request path, not the packet body (§4.D).
func PublicDestination(urlName string) DestinationFunc {
	return func(packet.InitializeUpload) (string, error) {
		base := path.Base(urlName)
		if base == "." || base == "/" || base == "" {
			return "", apperror.InvalidArgumentf("invalid upload name %q", urlName)
		}
		return ".public_uploads/" + base, nil
	}
}

// maxRetriesOnIDCollision bounds the astronomically rare retry loop when a
// freshly generated id collides with an existing row (§9).
const maxRetriesOnIDCollision = 3

// Engine drives the upload state machine for a single connection.
type Engine struct {
	idx               *index.Store
	backend           store.Backend
	storageLimitBytes int64
	logger            *slog.Logger
}

// NewEngine constructs an Engine sharing the given index and backing
// store across every session it drives.
func NewEngine(idx *index.Store, backend store.Backend, storageLimitBytes int64, logger *slog.Logger) *Engine {
	return &Engine{idx: idx, backend: backend, storageLimitBytes: storageLimitBytes, logger: logger}
}

// Run drives one upload session to completion over conn. link is non-nil
// only for the anonymous public path; on success the link is bound and the
// resulting file is flipped to Public access — after the bytes are durable
// (§4.D, §9 open question).
//
// Run always returns a usable error: even on protocol violation or client
// disconnect the FINALLY-equivalent defer below has already persisted
// chunk_index, so the caller only needs to log and close the connection.
func (e *Engine) Run(ctx context.Context, conn Conn, dest DestinationFunc, link *index.Link) (index.File, error) {
	var chunkIndex int64
	var fileID string

	// Runs exactly once on every exit path — success, protocol error, or
	// client disconnect — mirroring the original's FINALLY block. This is
	// the mechanism behind testable property 2 (chunk_index always
	// reflects the chunks actually durable).
	defer func() {
		if fileID == "" {
			return
		}
		if err := e.idx.UpdateChunkIndex(context.Background(), fileID, chunkIndex); err != nil {
			e.logger.Error("failed to persist chunk_index on session exit", "file_id", fileID, "err", err)
		}
	}()

	if err := e.send(conn, packet.NewConnectionAccepted()); err != nil {
		return index.File{}, apperror.Wrap(apperror.ClientDisconnected, "failed to send ConnectionAccepted", err)
	}

	init, err := e.recvInitializeUpload(conn)
	if err != nil {
		return index.File{}, err
	}

	if init.ChunkSize == 0 {
		return index.File{}, apperror.New(apperror.InvalidArgument, "chunk_size must be non-zero")
	}
	totalChunks := int64(math.Ceil(float64(init.Size) / float64(init.ChunkSize)))

	// Frame-size ceiling (§4.D/§6): once chunk_size is known, no single
	// frame may exceed 2x it — room for packet framing overhead without
	// letting a client force an unbounded read into memory.
	conn.SetReadLimit(2 * int64(init.ChunkSize))

	destPath, err := dest(init)
	if err != nil {
		return index.File{}, err
	}
	if !PathIsValid(destPath) {
		return index.File{}, apperror.InvalidArgumentf("invalid path %q", destPath)
	}

	bytesStored, err := e.idx.BytesStored(ctx)
	if err != nil {
		return index.File{}, apperror.Wrap(apperror.IndexIO, "storage-limit check failed", err)
	}
	if bytesStored > e.storageLimitBytes {
		return index.File{}, apperror.InsufficientStorage("storage limit exceeded")
	}

	rec, err := e.resolveRecord(ctx, destPath, totalChunks)
	if err != nil {
		return index.File{}, err
	}
	fileID = rec.ID
	chunkIndex = rec.ChunkIndex

	handle, err := e.backend.GetWritableHandle(ctx, destPath)
	if err != nil {
		return index.File{}, apperror.Wrap(apperror.StorageIO, "failed to open destination handle", err)
	}
	defer handle.Close() //nolint:errcheck

	if err := e.send(conn, packet.NewReadyForUpload(uint64(chunkIndex))); err != nil {
		return index.File{}, apperror.Wrap(apperror.ClientDisconnected, "failed to send ReadyForUpload", err)
	}

	if err := e.readLoop(conn, handle, init.ChunkSize, totalChunks, &chunkIndex); err != nil {
		return index.File{}, err
	}

	// Persist the final chunk_index before completion so the record sent in
	// UploadComplete carries it; the deferred write above repeats it.
	if err := e.idx.UpdateChunkIndex(ctx, fileID, chunkIndex); err != nil {
		return index.File{}, apperror.Wrap(apperror.IndexIO, "failed to persist chunk_index", err)
	}

	return e.complete(ctx, conn, fileID, int64(init.Size), link)
}

// resolveRecord looks up the index by destination path:
//   - present, total_chunks matches  → resume (reuse record)
//   - present, total_chunks differs  → delete record + bytes, start fresh
//   - absent                         → create a new record
func (e *Engine) resolveRecord(ctx context.Context, destPath string, totalChunks int64) (index.File, error) {
	existing, err := e.idx.GetFileByPath(ctx, destPath)
	switch {
	case err == nil:
		if existing.TotalChunks == totalChunks {
			return existing, nil
		}
		e.logger.Warn("mismatched total_chunks, restarting upload",
			"file_id", existing.ID, "path", destPath,
			"prior_total_chunks", existing.TotalChunks, "new_total_chunks", totalChunks)
		if derr := e.idx.DeleteFile(ctx, existing.ID); derr != nil {
			return index.File{}, apperror.Wrap(apperror.IndexIO, "failed to delete stale record", derr)
		}
		if exists, eerr := e.backend.Exists(ctx, destPath); eerr == nil && exists {
			if derr := e.backend.Delete(ctx, destPath); derr != nil {
				return index.File{}, apperror.Wrap(apperror.StorageIO, "failed to delete stale bytes", derr)
			}
		}
		return e.createRecord(ctx, destPath, totalChunks)

	case isNotFoundErr(err):
		return e.createRecord(ctx, destPath, totalChunks)

	default:
		return index.File{}, apperror.Wrap(apperror.IndexIO, "index lookup failed", err)
	}
}

func (e *Engine) createRecord(ctx context.Context, destPath string, totalChunks int64) (index.File, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetriesOnIDCollision; attempt++ {
		id, err := index.GenerateID()
		if err != nil {
			return index.File{}, apperror.Wrap(apperror.Internal, "id generation failed", err)
		}
		rec, err := e.idx.NewFile(ctx, id, destPath, totalChunks)
		if err == nil {
			return rec, nil
		}
		if aerr, ok := apperror.As(err); ok && aerr.Kind == apperror.Conflict {
			lastErr = err
			continue
		}
		return index.File{}, apperror.Wrap(apperror.IndexIO, "failed to create file record", err)
	}
	return index.File{}, apperror.Wrap(apperror.Internal, "exhausted id generation retries", lastErr)
}

// readLoop consumes binary chunk frames until totalChunks are durable.
func (e *Engine) readLoop(conn Conn, handle store.RandomWriteHandle, chunkSize uint64, totalChunks int64, chunkIndex *int64) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return apperror.Wrap(apperror.ClientDisconnected, "client disconnected mid-upload", err)
		}

		p, err := packet.Decode(raw)
		if err != nil {
			return apperror.Wrap(apperror.ProtocolError, "malformed frame", err)
		}
		if p.Kind != packet.KindBinary {
			return apperror.New(apperror.ProtocolError, "expected binary chunk")
		}
		chunk := p.Binary

		// Belt-and-suspenders on top of conn.SetReadLimit: that cap bounds
		// the raw frame gorilla reads off the wire, this bounds the decoded
		// chunk payload itself, so the ceiling holds regardless of what the
		// transport actually enforces (e.g. the in-memory Conn in tests).
		if uint64(len(chunk.Data)) > 2*chunkSize {
			return apperror.New(apperror.ProtocolError, "chunk exceeds frame-size ceiling")
		}

		// The server is authoritative about chunk_index; a mismatch
		// triggers a resync and the frame is discarded without advancing.
		if chunk.Idx != uint64(*chunkIndex) {
			e.logger.Warn("out of order chunk, backtracking",
				"server_chunk_index", *chunkIndex, "client_chunk_index", chunk.Idx)
			if err := e.send(conn, packet.NewSetChunkIndex(uint64(*chunkIndex))); err != nil {
				return apperror.Wrap(apperror.ClientDisconnected, "failed to send SetChunkIndex", err)
			}
			continue
		}

		if err := handle.Seek(*chunkIndex * int64(chunkSize)); err != nil {
			return apperror.Wrap(apperror.StorageIO, "seek failed", err)
		}
		if _, err := handle.Write(chunk.Data); err != nil {
			return apperror.Wrap(apperror.StorageIO, "write failed", err)
		}
		*chunkIndex++

		if *chunkIndex >= totalChunks {
			return nil
		}

		if err := e.send(conn, packet.Next); err != nil {
			return apperror.Wrap(apperror.ClientDisconnected, "failed to send Next", err)
		}
	}
}

// complete marks the record uploaded, optionally binds a one-time link
// (post-durability, §9), and sends UploadComplete.
func (e *Engine) complete(ctx context.Context, conn Conn, fileID string, size int64, link *index.Link) (index.File, error) {
	if err := e.idx.SuccessfulUpload(ctx, fileID, size); err != nil {
		return index.File{}, apperror.Wrap(apperror.IndexIO, "failed to mark upload successful", err)
	}

	if link != nil {
		if err := e.idx.BindLink(ctx, link.ID, fileID); err != nil {
			return index.File{}, apperror.Wrap(apperror.IndexIO, "failed to bind link", err)
		}
		if err := e.idx.ChangeAccess(ctx, fileID, index.AccessPublic); err != nil {
			return index.File{}, apperror.Wrap(apperror.IndexIO, "failed to change access", err)
		}
	}

	rec, err := e.idx.GetFileByID(ctx, fileID)
	if err != nil {
		return index.File{}, apperror.Wrap(apperror.IndexIO, "failed to reload file record", err)
	}

	fileJSON, err := json.Marshal(rec)
	if err != nil {
		return index.File{}, apperror.Wrap(apperror.Internal, "failed to marshal file record", err)
	}
	if err := e.send(conn, packet.NewUploadComplete(fileJSON)); err != nil {
		return index.File{}, apperror.Wrap(apperror.ClientDisconnected, "failed to send UploadComplete", err)
	}

	return rec, nil
}

func (e *Engine) recvInitializeUpload(conn Conn) (packet.InitializeUpload, error) {
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return packet.InitializeUpload{}, apperror.Wrap(apperror.ClientDisconnected, "client disconnected before InitializeUpload", err)
	}
	p, err := packet.Decode(raw)
	if err != nil {
		return packet.InitializeUpload{}, apperror.Wrap(apperror.ProtocolError, "malformed InitializeUpload frame", err)
	}
	if p.Kind != packet.KindJSON || p.Tag != packet.TagInitializeUpload {
		return packet.InitializeUpload{}, apperror.New(apperror.ProtocolError, "expected InitializeUpload")
	}
	return p.InitUpload, nil
}

func (e *Engine) send(conn Conn, p packet.Packet) error {
	buf, err := packet.Encode(p)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, buf)
}

func isNotFoundErr(err error) bool {
	aerr, ok := apperror.As(err)
	return ok && aerr.Kind == apperror.NotFound
}
