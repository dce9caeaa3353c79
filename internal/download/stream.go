// Package download implements the streaming download pipeline: access
// gating, response headers, and completion-gated download-counter
// bookkeeping.
package download

import (
	"context"
	"io"
	"log/slog"

	"github.com/zynqcloud/filedrop/internal/index"
	"github.com/zynqcloud/filedrop/internal/store"
)

// Stream adapts a store.StreamChunk channel to io.ReadCloser, tracking
// whether the source terminated at true EOF. Go has no destructors, so the
// counter bump that the original fires from PinnedDrop runs instead from
// Close — callers MUST always Close, success or not, for the bookkeeping
// to have a chance to fire (§4.E).
type Stream struct {
	ch        <-chan store.StreamChunk
	buf       []byte
	completed bool
	streamErr error

	idx    *index.Store
	fileID string
	logger *slog.Logger
}

// NewStream wraps ch, firing a fire-and-forget download_count increment
// against fileID when the stream is closed after having reached true EOF.
func NewStream(ch <-chan store.StreamChunk, idx *index.Store, fileID string, logger *slog.Logger) *Stream {
	return &Stream{ch: ch, idx: idx, fileID: fileID, logger: logger}
}

func (s *Stream) Read(p []byte) (int, error) {
	for len(s.buf) == 0 {
		chunk, ok := <-s.ch
		if !ok {
			if s.streamErr != nil {
				return 0, s.streamErr
			}
			s.completed = true
			return 0, io.EOF
		}
		if chunk.Err != nil {
			s.streamErr = chunk.Err
			continue
		}
		s.buf = chunk.Data
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Close drains any unread chunks (so the producer goroutine is never
// leaked on early client disconnect) and, iff the stream reached true EOF,
// schedules the download-counter bump in the background. Cancelled or
// failed streams never bump the counter (§4.E).
func (s *Stream) Close() error {
	for range s.ch {
		// Drain: an early Close (client disconnect, write error)
		// must not leave the producer goroutine blocked on a full channel.
	}
	if s.streamErr != nil {
		s.logger.Error("download stream failed", "file_id", s.fileID, "err", s.streamErr)
		return s.streamErr
	}
	if !s.completed {
		s.logger.Warn("download cancelled before completion", "file_id", s.fileID)
		return nil
	}

	go func() {
		if err := s.idx.IncrementDownloadCount(context.Background(), s.fileID); err != nil {
			s.logger.Error("failed to bump download counter", "file_id", s.fileID, "err", err)
		}
	}()
	return nil
}
