// Package consumer turns incoming files into archived documents: it
// deduplicates by checksum, dispatches to the parser claiming the file's
// type, persists the result and moves the produced artifacts into the data
// directory.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/brelow/eml-archiver/internal/metrics"
	"github.com/brelow/eml-archiver/internal/registry"
	"github.com/brelow/eml-archiver/internal/scanner"
	"github.com/brelow/eml-archiver/internal/store"
)

// ErrDuplicate reports that a document with the same checksum is already
// archived.
var ErrDuplicate = errors.New("document already archived")

// ErrUnsupportedType reports that no registered parser claims the
// document's type.
var ErrUnsupportedType = errors.New("unsupported document type")

// Consumer converts documents and records them in the store. Safe for
// concurrent use.
type Consumer struct {
	store    *store.Store
	registry *registry.Registry
	dataDir  string
	workers  int
	log      *zap.Logger
	metrics  *metrics.Metrics
}

// Stats summarizes one consume directory pass.
type Stats struct {
	Found       int      `json:"found"`
	Consumed    int      `json:"consumed"`
	Skipped     int      `json:"skipped"`
	Failed      int      `json:"failed"`
	FailedFiles []string `json:"failed_files,omitempty"`
}

// New returns a consumer writing archives and thumbnails below dataDir.
func New(st *store.Store, reg *registry.Registry, dataDir string, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		store:    st,
		registry: reg,
		dataDir:  dataDir,
		workers:  2,
		log:      log,
	}
}

// WithWorkers bounds how many documents ConsumeDir converts concurrently.
func (c *Consumer) WithWorkers(n int) *Consumer {
	if n > 0 {
		c.workers = n
	}
	return c
}

// WithMetrics enables consume metrics.
func (c *Consumer) WithMetrics(m *metrics.Metrics) *Consumer {
	c.metrics = m
	return c
}

// ConsumeDir converts every .eml file below root. Per-file failures are
// counted and logged but never abort the pass; the returned error is only
// non-nil when the scan itself or the context fails.
func (c *Consumer) ConsumeDir(ctx context.Context, root string, ruleID int64) (*Stats, error) {
	files, err := scanner.FindEmailFiles(root)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Found: len(files)}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for _, path := range files {
		// Copy for the pre-Go 1.22 loop variable semantics.
		path := path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			_, err := c.ConsumeFile(ctx, path, ruleID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				stats.Consumed++
			case errors.Is(err, ErrDuplicate):
				stats.Skipped++
			default:
				stats.Failed++
				stats.FailedFiles = append(stats.FailedFiles, path)
				c.log.Warn("failed to consume file",
					zap.String("path", path), zap.Error(err))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

// ConsumeFile converts the file at path into an archived document.
func (c *Consumer) ConsumeFile(ctx context.Context, path string, ruleID int64) (*store.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return c.consume(ctx, path, data, filepath.Base(path), ruleID)
}

// ConsumeBytes converts an in-memory document, typically an upload. The
// filename is recorded and used as type fallback when sniffing fails.
func (c *Consumer) ConsumeBytes(ctx context.Context, data []byte, filename string, ruleID int64) (*store.Document, error) {
	tmp, err := os.CreateTemp("", "consume-*"+filepath.Ext(filename))
	if err != nil {
		return nil, fmt.Errorf("failed to stage upload: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to stage upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to stage upload: %w", err)
	}

	return c.consume(ctx, tmp.Name(), data, filename, ruleID)
}

// consume wraps process with metrics. Duplicates and unclaimed types are
// rejections, not conversion failures, and stay out of the consume counters.
func (c *Consumer) consume(ctx context.Context, path string, data []byte, filename string, ruleID int64) (*store.Document, error) {
	start := time.Now()
	doc, err := c.process(ctx, path, data, filename, ruleID)
	switch {
	case errors.Is(err, ErrDuplicate):
		c.metrics.RecordDuplicate()
	case errors.Is(err, ErrUnsupportedType):
	default:
		c.metrics.RecordConsume(time.Since(start), err)
	}
	return doc, err
}

func (c *Consumer) process(ctx context.Context, path string, data []byte, filename string, ruleID int64) (*store.Document, error) {
	checksum := store.Checksum(data)

	exists, err := c.store.DocumentExists(checksum)
	if err != nil {
		return nil, fmt.Errorf("failed to check for duplicate: %w", err)
	}
	if exists {
		c.log.Debug("skipping duplicate document", zap.String("filename", filename))
		return nil, fmt.Errorf("%s: %w", filename, ErrDuplicate)
	}

	mimeType, ok := c.detectType(data, filename)
	if !ok {
		return nil, fmt.Errorf("%s: %w", filename, ErrUnsupportedType)
	}
	parser := c.registry.ParserFor(mimeType)
	if parser == nil {
		return nil, fmt.Errorf("%s (%s): %w", filename, mimeType, ErrUnsupportedType)
	}

	res, err := parser.Parse(ctx, path, mimeType, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s: %w", filename, err)
	}
	defer res.Close()

	doc := &store.Document{
		Filename:   filename,
		Checksum:   checksum,
		Title:      res.Title,
		Sender:     res.Sender,
		Recipients: res.Recipients,
		Created:    store.NullTime{Time: res.Created, Valid: !res.Created.IsZero()},
		Text:       res.ExtractedText,
		Size:       int64(len(data)),
		RuleID:     ruleID,
	}
	id, err := c.store.InsertDocument(doc)
	if err != nil {
		// Concurrent passes can race the existence check; the checksum
		// constraint settles it.
		if strings.Contains(err.Error(), "UNIQUE constraint failed: documents.checksum") {
			return nil, fmt.Errorf("%s: %w", filename, ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	doc.ID = id

	archivePath, err := c.placeArchive(res.ArchivePath, id)
	if err != nil {
		// Remove the half-consumed row so a retry starts clean.
		if derr := c.store.DeleteDocument(id); derr != nil {
			c.log.Warn("failed to remove document after archive move failure",
				zap.Int64("id", id), zap.Error(derr))
		}
		return nil, err
	}
	doc.ArchivePath = archivePath

	thumbDir := filepath.Join(c.dataDir, "thumbnails")
	if err := os.MkdirAll(thumbDir, 0755); err != nil {
		c.log.Warn("failed to create thumbnail directory",
			zap.String("dir", thumbDir), zap.Error(err))
	} else if thumbPath, err := parser.Thumbnail(ctx, archivePath, thumbDir); err != nil {
		// A document without a thumbnail is still archived.
		c.log.Warn("failed to render thumbnail",
			zap.Int64("id", id), zap.Error(err))
	} else {
		doc.ThumbnailPath = thumbPath
	}

	if err := c.store.UpdateDocumentArtifacts(id, doc.ArchivePath, doc.ThumbnailPath); err != nil {
		return nil, fmt.Errorf("failed to record artifacts: %w", err)
	}

	c.log.Info("archived document",
		zap.Int64("id", id),
		zap.String("filename", filename),
		zap.String("title", doc.Title))
	return doc, nil
}

// detectType sniffs the payload and walks up the detected type's ancestry
// until a registered parser claims it, falling back to the filename
// extension for formats the sniffer does not know.
func (c *Consumer) detectType(data []byte, filename string) (string, bool) {
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		mt := m.String()
		if base, _, err := mime.ParseMediaType(mt); err == nil {
			mt = base
		}
		if c.registry.Claims(mt) {
			return mt, true
		}
	}

	if mt, ok := c.registry.TypeForExtension(filepath.Ext(filename)); ok {
		return mt, true
	}
	return "", false
}

// placeArchive moves the pipeline's archive PDF to its permanent location.
func (c *Consumer) placeArchive(src string, id int64) (string, error) {
	archiveDir := filepath.Join(c.dataDir, "archive")
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	dst := filepath.Join(archiveDir, fmt.Sprintf("%d.pdf", id))
	if err := moveFile(src, dst); err != nil {
		return "", fmt.Errorf("failed to move archive into place: %w", err)
	}
	return dst, nil
}

// moveFile renames src to dst, copying when the rename crosses filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
