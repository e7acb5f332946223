// Package tika is a thin client for the Apache Tika server. The pipeline
// uses it two ways: as the text extractor for HTML bodies and whole
// messages, and as the OCR recognizer for raster image attachments. Tika
// routes images through its tesseract integration on the same endpoint.
package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/brelow/eml-archiver/internal/archive"
)

const routeExtract = "/tika"

// rasterTypes lists the image types handed to recognition. Vector and
// container formats are excluded; they carry no scannable pixels.
var rasterTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/tiff": {},
	"image/bmp":  {},
	"image/gif":  {},
	"image/webp": {},
}

// Client speaks the Tika server resource API.
type Client struct {
	baseURL string
	httpc   *http.Client
}

var (
	_ archive.TextExtractor = (*Client)(nil)
	_ archive.Recognizer    = (*Client)(nil)
)

// NewClient creates a client for the Tika server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
	}
}

// ExtractText extracts plain text from the given payload. The declared
// content type selects the Tika parser; message/rfc822 yields the flattened
// message, text/html the markup's text.
func (c *Client) ExtractText(ctx context.Context, data []byte, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+routeExtract, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/plain")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("PUT %s failed: %w", routeExtract, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read extraction response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return "", fmt.Errorf("unexpected status %d on PUT %s: %s", resp.StatusCode, routeExtract, snippet)
	}

	return string(body), nil
}

// Accepts reports whether recognition makes sense for the sniffed type.
func (c *Client) Accepts(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	_, ok := rasterTypes[strings.ToLower(mediaType)]
	return ok
}

// Recognize runs text recognition over the image at path.
func (c *Client) Recognize(ctx context.Context, path, contentType string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return c.ExtractText(ctx, data, contentType)
}

// Health probes the Tika server resource endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+routeExtract, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("tika unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tika unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
