// Package gotenberg is a thin client for the Gotenberg HTTP API. It covers
// the three routes the conversion pipeline needs: chromium HTML rendering,
// LibreOffice office-document conversion and PDF merging, plus the optional
// PDF/A conversion and the health probe.
package gotenberg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/brelow/eml-archiver/internal/archive"
)

const (
	routeRenderHTML  = "/forms/chromium/convert/html"
	routeOfficeToPDF = "/forms/libreoffice/convert"
	routeMerge       = "/forms/pdfengines/merge"
	routeConvertPDFA = "/forms/pdfengines/convert"
	routeHealth      = "/health"
)

// Client speaks the Gotenberg multipart API. A zero timeout disables the
// client-side ceiling; callers should still bound requests via the context.
type Client struct {
	baseURL string
	httpc   *http.Client
}

var (
	_ archive.Renderer           = (*Client)(nil)
	_ archive.OfficeConverter    = (*Client)(nil)
	_ archive.Merger             = (*Client)(nil)
	_ archive.StandardsConverter = (*Client)(nil)
)

// NewClient creates a client for the Gotenberg instance at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
	}
}

// RenderHTML renders the index page through the chromium route. Gotenberg
// addresses the entry point by name, so the index is uploaded as index.html
// regardless of its on-disk name; resources keep their base names so
// relative references in the markup resolve.
func (c *Client) RenderHTML(ctx context.Context, indexPath string, geometry archive.PageGeometry, resources []string, outPath string) error {
	return c.postPDF(ctx, routeRenderHTML, outPath, func(form *multipart.Writer) error {
		if err := addFile(form, "index.html", indexPath); err != nil {
			return err
		}
		for _, res := range resources {
			if err := addFile(form, filepath.Base(res), res); err != nil {
				return err
			}
		}
		fields := map[string]string{
			"paperWidth":   formatInches(geometry.PaperWidth),
			"paperHeight":  formatInches(geometry.PaperHeight),
			"marginTop":    formatInches(geometry.Margin),
			"marginBottom": formatInches(geometry.Margin),
			"marginLeft":   formatInches(geometry.Margin),
			"marginRight":  formatInches(geometry.Margin),
			"scale":        formatInches(geometry.Scale),
		}
		for name, value := range fields {
			if err := form.WriteField(name, value); err != nil {
				return fmt.Errorf("failed to write form field %s: %w", name, err)
			}
		}
		return nil
	})
}

// ConvertToPDF converts an office document through the LibreOffice route.
func (c *Client) ConvertToPDF(ctx context.Context, path, outPath string) error {
	return c.postPDF(ctx, routeOfficeToPDF, outPath, func(form *multipart.Writer) error {
		return addFile(form, filepath.Base(path), path)
	})
}

// Merge concatenates the given PDFs in order. Gotenberg merges its inputs
// alphabetically, so the files are uploaded under zero-padded positional
// names.
func (c *Client) Merge(ctx context.Context, paths []string, outPath string) error {
	return c.postPDF(ctx, routeMerge, outPath, func(form *multipart.Writer) error {
		for i, path := range paths {
			if err := addFile(form, fmt.Sprintf("%03d.pdf", i), path); err != nil {
				return err
			}
		}
		return nil
	})
}

// ConvertPDFA converts the document to the given PDF/A conformance level
// through the pdfengines route, replacing it in place.
func (c *Client) ConvertPDFA(ctx context.Context, path string, level archive.ConformanceLevel) error {
	format, err := pdfaFormat(level)
	if err != nil {
		return err
	}

	sibling := path + ".pdfa"
	err = c.postPDF(ctx, routeConvertPDFA, sibling, func(form *multipart.Writer) error {
		if err := addFile(form, filepath.Base(path), path); err != nil {
			return err
		}
		return form.WriteField("pdfa", format)
	})
	if err != nil {
		return err
	}
	return os.Rename(sibling, path)
}

// Health probes the Gotenberg health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+routeHealth, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("gotenberg unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gotenberg unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// postPDF sends a multipart form to the given route and streams the PDF
// response into outPath.
func (c *Client) postPDF(ctx context.Context, route, outPath string, build func(*multipart.Writer) error) error {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := build(form); err != nil {
		return err
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("failed to finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s failed: %w", route, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d on POST %s: %s",
			resp.StatusCode, route, strings.TrimSpace(string(snippet)))
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return fmt.Errorf("failed to write response to %s: %w", outPath, err)
	}
	return out.Close()
}

// addFile uploads the file at path under the given form filename.
func addFile(form *multipart.Writer, filename, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	part, err := form.CreateFormFile("files", filename)
	if err != nil {
		return fmt.Errorf("failed to create form file %s: %w", filename, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to copy %s into form: %w", path, err)
	}
	return nil
}

// formatInches renders a geometry value the way the Gotenberg API expects,
// without a fixed precision.
func formatInches(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// pdfaFormat maps a conformance level to the Gotenberg format name.
func pdfaFormat(level archive.ConformanceLevel) (string, error) {
	switch level {
	case archive.ConformanceB2:
		return "PDF/A-2b", nil
	case archive.ConformanceB3:
		return "PDF/A-3b", nil
	}
	return "", fmt.Errorf("no gotenberg format for PDF/A conformance level %q", level)
}
