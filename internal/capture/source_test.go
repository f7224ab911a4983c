package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"testing"
)

func buildFrameStream(t *testing.T, frames ...[]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, frame := range frames {
		part, err := w.CreateFormFile("frame", "frame.jpg")
		if err != nil {
			t.Fatalf("failed to create frame part: %v", err)
		}
		if _, err := part.Write(frame); err != nil {
			t.Fatalf("failed to write frame: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	return &buf, w.Boundary()
}

func TestMultipartSourceReadsFramesInOrder(t *testing.T) {
	buf, boundary := buildFrameStream(t, []byte("one"), []byte("two"))
	src := NewMultipartSource(multipart.NewReader(buf, boundary))
	ctx := context.Background()

	first, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(first) != "one" {
		t.Errorf("expected frame 'one', got %q", first)
	}

	second, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(second) != "two" {
		t.Errorf("expected frame 'two', got %q", second)
	}

	if _, err := src.Next(ctx); err != io.EOF {
		t.Errorf("expected io.EOF after last frame, got %v", err)
	}
}

func TestMultipartSourceSkipsNonFrameParts(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("device_id", "kiosk-1"); err != nil {
		t.Fatalf("failed to write field: %v", err)
	}
	part, err := w.CreateFormFile("frame", "frame.jpg")
	if err != nil {
		t.Fatalf("failed to create frame part: %v", err)
	}
	part.Write([]byte("payload"))
	w.Close()

	src := NewMultipartSource(multipart.NewReader(&buf, w.Boundary()))
	frame, err := src.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(frame) != "payload" {
		t.Errorf("expected frame 'payload', got %q", frame)
	}
}

func TestMultipartSourceRespectsContext(t *testing.T) {
	buf, boundary := buildFrameStream(t, []byte("one"))
	src := NewMultipartSource(multipart.NewReader(buf, boundary))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := src.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestGuardExclusivity(t *testing.T) {
	guard := NewGuard()

	release, err := guard.Acquire("kiosk-1")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	if _, err := guard.Acquire("kiosk-1"); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy for concurrent acquire, got %v", err)
	}

	// A different device is unaffected.
	release2, err := guard.Acquire("kiosk-2")
	if err != nil {
		t.Errorf("acquire of free device failed: %v", err)
	}
	release2()

	release()
	release() // idempotent

	release3, err := guard.Acquire("kiosk-1")
	if err != nil {
		t.Errorf("acquire after release failed: %v", err)
	}
	release3()
}
