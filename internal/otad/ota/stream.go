package ota

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/multierr"
)

// DefaultChunkSize is the read buffer used when streaming an image.
const DefaultChunkSize = 1000

// Uploader is the session API a transport drives. *Engine implements it.
type Uploader interface {
	BeginUpload(ctx context.Context, opts ...UploadOption) (SessionHandle, error)
	FeedChunk(ctx context.Context, h SessionHandle, p []byte) error
	EndUpload(ctx context.Context, h SessionHandle) (Outcome, error)
	Abort(ctx context.Context, h SessionHandle, reason string) error
}

var _ Uploader = (*Engine)(nil)

// ReadError reports that the image source failed mid-stream. The session
// was aborted.
type ReadError struct {
	Written int64
	Err     error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read image after %d bytes: %v", e.Written, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Stream runs one whole session: it reads r in chunks of at most chunkSize
// bytes, feeds each chunk and ends the upload at io.EOF. Any read error is
// treated as a dropped connection and aborts the session.
func Stream(ctx context.Context, u Uploader, r io.Reader, chunkSize int, opts ...UploadOption) (Outcome, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	h, err := u.BeginUpload(ctx, opts...)
	if err != nil {
		return Outcome{}, err
	}

	buf := make([]byte, chunkSize)
	var written int64
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if err := u.FeedChunk(ctx, h, buf[:n]); err != nil {
				return Outcome{Result: ResultAborted, Session: h.ID(), Written: written, Reason: err.Error()}, err
			}
			written += int64(n)
		}

		switch {
		case rerr == nil:
			continue
		case errors.Is(rerr, io.EOF):
			return u.EndUpload(ctx, h)
		default:
			readErr := &ReadError{Written: written, Err: rerr}
			if err := u.Abort(ctx, h, readErr.Error()); err != nil && !errors.Is(err, ErrSessionClosed) {
				return Outcome{}, multierr.Append(readErr, err)
			}
			return Outcome{Result: ResultAborted, Session: h.ID(), Written: written, Reason: readErr.Error()}, readErr
		}
	}
}
