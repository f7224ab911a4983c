// Package embedding wraps the external face-embedding model server. The
// model is a black box reached over HTTP: one image in, one fixed-length
// vector out. Vectors are not guaranteed bit-identical across calls for the
// same image; callers must compare by similarity, never by equality.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	defaultServerURL = "http://localhost:8000"
	defaultModel     = "mobilefacenet"
)

// Frame-level failures. These are transient from the verification engine's
// point of view: the frame is discarded and capture continues.
var (
	ErrNoFace        = errors.New("no face detected in frame")
	ErrMultipleFaces = errors.New("multiple faces detected in frame")
)

// Client computes face embeddings using the embedding model server.
type Client struct {
	baseURL      string
	model        string
	maxFrameSize int // longest image edge sent to the server, 0 disables resizing
	client       *http.Client
}

// NewClient creates a new embedding client.
func NewClient(baseURL, model string, maxFrameSize int) *Client {
	if baseURL == "" {
		baseURL = defaultServerURL
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		model:        model,
		maxFrameSize: maxFrameSize,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

// embedResponse represents the response from the embedding server.
type embedResponse struct {
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
	Faces     int       `json:"faces"`
}

// Embed computes the face embedding for a single image. Returns ErrNoFace or
// ErrMultipleFaces when the frame is unusable, a wrapped transport error when
// the model server is unreachable.
func (c *Client) Embed(ctx context.Context, image []byte) ([]float32, error) {
	if c.maxFrameSize > 0 {
		resized, err := ResizeFrame(image, c.maxFrameSize)
		if err != nil {
			return nil, fmt.Errorf("resizing frame: %w", err)
		}
		image = resized
	}

	body, contentType, err := buildMultipart(image, c.model)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", body)
	if err != nil {
		return nil, fmt.Errorf("creating embed request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling embedding server: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var result embedResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unmarshaling embedding response: %w", err)
	}

	switch {
	case result.Faces == 0:
		return nil, ErrNoFace
	case result.Faces > 1:
		return nil, ErrMultipleFaces
	}

	if len(result.Embedding) == 0 || (result.Dim > 0 && len(result.Embedding) != result.Dim) {
		return nil, fmt.Errorf("embedding server returned inconsistent vector (dim=%d, len=%d)", result.Dim, len(result.Embedding))
	}
	return result.Embedding, nil
}

// buildMultipart constructs the multipart form body with the image and model name.
func buildMultipart(image []byte, model string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", fmt.Errorf("writing image data: %w", err)
	}
	if err := w.WriteField("model", model); err != nil {
		return nil, "", fmt.Errorf("writing model field: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
