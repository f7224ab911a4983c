// Package capture defines the frame-producing input boundary of the
// verification engine. The service never talks to camera hardware; clients
// stream captured frames to it, and each stream is wrapped as a FrameSource.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"sync"
)

// ErrBusy is returned when a capture device already has an attempt in progress.
var ErrBusy = errors.New("capture source busy")

// maxFrameBytes bounds a single frame read from an untrusted stream.
const maxFrameBytes = 8 << 20

// FrameSource produces captured frames one at a time. Next blocks until a
// frame is available, the source is exhausted (io.EOF), or ctx is done.
type FrameSource interface {
	Next(ctx context.Context) ([]byte, error)
}

// Func adapts a plain function to a FrameSource. Used by tests and by
// programmatic sources.
type Func func(ctx context.Context) ([]byte, error)

// Next calls f.
func (f Func) Next(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// MultipartSource reads frames from a multipart stream, one part per frame.
// Parts whose form name is not "frame" are skipped, so a stream may carry
// other fields without confusing the engine.
type MultipartSource struct {
	reader *multipart.Reader
}

// NewMultipartSource wraps a multipart reader as a frame source.
func NewMultipartSource(r *multipart.Reader) *MultipartSource {
	return &MultipartSource{reader: r}
}

// Next returns the next frame part, or io.EOF when the stream ends.
func (s *MultipartSource) Next(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		part, err := s.reader.NextPart()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("reading frame part: %w", err)
		}

		if part.FormName() != "frame" {
			part.Close()
			continue
		}

		data, err := io.ReadAll(io.LimitReader(part, maxFrameBytes))
		part.Close()
		if err != nil {
			return nil, fmt.Errorf("reading frame data: %w", err)
		}
		return data, nil
	}
}

// Guard enforces exclusive ownership of capture devices. One in-progress
// verification attempt owns a device; a concurrent attempt for the same
// device gets ErrBusy instead of interleaved frame reads.
type Guard struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{busy: make(map[string]struct{})}
}

// Acquire claims the device and returns a release function. The release
// function is idempotent and must be called on every path out of an attempt.
func (g *Guard) Acquire(device string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, taken := g.busy[device]; taken {
		return nil, ErrBusy
	}
	g.busy[device] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.busy, device)
			g.mu.Unlock()
		})
	}
	return release, nil
}
