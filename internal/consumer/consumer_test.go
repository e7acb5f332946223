package consumer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brelow/eml-archiver/internal/archive"
	"github.com/brelow/eml-archiver/internal/registry"
	"github.com/brelow/eml-archiver/internal/store"
)

const sampleMessage = "Received: from relay.example.com\r\n" +
	"From: Alice <alice@example.com>\r\n" +
	"To: bob@example.com\r\n" +
	"Subject: Test subject\r\n" +
	"Date: Thu, 07 Mar 2024 15:04:00 +0000\r\n" +
	"\r\n" +
	"Body text\r\n"

var sentTime = time.Date(2024, time.March, 7, 15, 4, 0, 0, time.UTC)

// stubParser fabricates conversion results so consumer tests run without
// the real pipeline. Parse records the paths it was handed.
type stubParser struct {
	t *testing.T

	mu      sync.Mutex
	parsed  []string
	ruleIDs []int64

	failFor  map[string]error
	thumbErr error
}

func newStubParser(t *testing.T) *stubParser {
	return &stubParser{t: t, failFor: map[string]error{}}
}

func (p *stubParser) Parse(ctx context.Context, documentPath, mimeType string, ruleID int64) (*archive.Result, error) {
	p.mu.Lock()
	p.parsed = append(p.parsed, documentPath)
	p.ruleIDs = append(p.ruleIDs, ruleID)
	err := p.failFor[filepath.Base(documentPath)]
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	archivePath := filepath.Join(p.t.TempDir(), "archive.pdf")
	if err := os.WriteFile(archivePath, []byte("%PDF-1.7 stub archive"), 0o644); err != nil {
		return nil, err
	}

	return &archive.Result{
		ExtractedText: "Subject: Test subject\n\nBody text",
		Created:       sentTime,
		ArchivePath:   archivePath,
		Title:         "Test subject",
		Sender:        "alice@example.com",
		Recipients:    "bob@example.com",
	}, nil
}

func (p *stubParser) Thumbnail(ctx context.Context, archivePath, outDir string) (string, error) {
	if p.thumbErr != nil {
		return "", p.thumbErr
	}
	base := strings.TrimSuffix(filepath.Base(archivePath), filepath.Ext(archivePath))
	outPath := filepath.Join(outDir, base+".png")
	if err := os.WriteFile(outPath, []byte("PNG-THUMB"), 0o644); err != nil {
		return "", err
	}
	return outPath, nil
}

func newTestConsumer(t *testing.T, p registry.DocumentParser) (*Consumer, *store.Store, string) {
	t.Helper()

	st := store.SetupTestStore(t)
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(registry.Declaration{
		Name:      "mail",
		Weight:    30,
		MimeTypes: map[string]string{"message/rfc822": ".eml"},
		New:       func() registry.DocumentParser { return p },
	}))

	dataDir := t.TempDir()
	return New(st, reg, dataDir, zap.NewNop()), st, dataDir
}

func writeMessageFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestConsumeFile(t *testing.T) {
	parser := newStubParser(t)
	c, st, dataDir := newTestConsumer(t, parser)

	path := writeMessageFile(t, t.TempDir(), "message.eml", sampleMessage)
	doc, err := c.ConsumeFile(context.Background(), path, 0)
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Greater(t, doc.ID, int64(0))
	assert.Equal(t, "message.eml", doc.Filename)
	assert.Equal(t, store.Checksum([]byte(sampleMessage)), doc.Checksum)
	assert.Equal(t, "Test subject", doc.Title)
	assert.Equal(t, "alice@example.com", doc.Sender)
	assert.Equal(t, "bob@example.com", doc.Recipients)
	assert.Equal(t, int64(len(sampleMessage)), doc.Size)

	wantArchive := filepath.Join(dataDir, "archive", fmt.Sprintf("%d.pdf", doc.ID))
	assert.Equal(t, wantArchive, doc.ArchivePath)
	data, err := os.ReadFile(wantArchive)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 stub archive", string(data))

	wantThumb := filepath.Join(dataDir, "thumbnails", fmt.Sprintf("%d.png", doc.ID))
	assert.Equal(t, wantThumb, doc.ThumbnailPath)
	assert.FileExists(t, wantThumb)

	stored, err := st.GetDocumentByID(doc.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, wantArchive, stored.ArchivePath)
	assert.Equal(t, wantThumb, stored.ThumbnailPath)
	assert.Equal(t, "Subject: Test subject\n\nBody text", stored.Text)
	require.True(t, stored.Created.Valid)
	assert.WithinDuration(t, sentTime, stored.Created.Time, time.Second)
}

func TestConsumeFile_Duplicate(t *testing.T) {
	c, st, _ := newTestConsumer(t, newStubParser(t))

	path := writeMessageFile(t, t.TempDir(), "message.eml", sampleMessage)
	_, err := c.ConsumeFile(context.Background(), path, 0)
	require.NoError(t, err)

	// Same content under a different name is still a duplicate.
	other := writeMessageFile(t, t.TempDir(), "copy.eml", sampleMessage)
	_, err = c.ConsumeFile(context.Background(), other, 0)
	assert.ErrorIs(t, err, ErrDuplicate)

	count, err := st.CountDocuments()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestConsumeFile_UnsupportedType(t *testing.T) {
	c, st, _ := newTestConsumer(t, newStubParser(t))

	path := writeMessageFile(t, t.TempDir(), "report.pdf", "%PDF-1.4 not a message")
	_, err := c.ConsumeFile(context.Background(), path, 0)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	count, err := st.CountDocuments()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestConsumeFile_ExtensionFallback(t *testing.T) {
	parser := newStubParser(t)
	c, _, _ := newTestConsumer(t, parser)

	// Content the sniffer sees as plain text; only the extension says mail.
	path := writeMessageFile(t, t.TempDir(), "exported.eml", "just some text\n")
	_, err := c.ConsumeFile(context.Background(), path, 0)
	require.NoError(t, err)
	assert.Len(t, parser.parsed, 1)
}

func TestConsumeFile_ParserFailure(t *testing.T) {
	parser := newStubParser(t)
	parser.failFor["message.eml"] = errors.New("pipeline exploded")
	c, st, _ := newTestConsumer(t, parser)

	path := writeMessageFile(t, t.TempDir(), "message.eml", sampleMessage)
	_, err := c.ConsumeFile(context.Background(), path, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline exploded")

	count, err := st.CountDocuments()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestConsumeFile_ThumbnailFailureIsNotFatal(t *testing.T) {
	parser := newStubParser(t)
	parser.thumbErr = errors.New("ghostscript missing")
	c, st, dataDir := newTestConsumer(t, parser)

	path := writeMessageFile(t, t.TempDir(), "message.eml", sampleMessage)
	doc, err := c.ConsumeFile(context.Background(), path, 0)
	require.NoError(t, err)
	assert.Empty(t, doc.ThumbnailPath)
	assert.FileExists(t, filepath.Join(dataDir, "archive", fmt.Sprintf("%d.pdf", doc.ID)))

	stored, err := st.GetDocumentByID(doc.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.ThumbnailPath)
}

func TestConsumeFile_PassesRuleID(t *testing.T) {
	parser := newStubParser(t)
	c, st, _ := newTestConsumer(t, parser)

	path := writeMessageFile(t, t.TempDir(), "message.eml", sampleMessage)
	doc, err := c.ConsumeFile(context.Background(), path, 7)
	require.NoError(t, err)

	assert.Equal(t, []int64{7}, parser.ruleIDs)
	assert.Equal(t, int64(7), doc.RuleID)

	stored, err := st.GetDocumentByID(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), stored.RuleID)
}

func TestConsumeBytes(t *testing.T) {
	parser := newStubParser(t)
	c, _, _ := newTestConsumer(t, parser)

	doc, err := c.ConsumeBytes(context.Background(), []byte(sampleMessage), "upload.eml", 0)
	require.NoError(t, err)
	assert.Equal(t, "upload.eml", doc.Filename)
	assert.Equal(t, store.Checksum([]byte(sampleMessage)), doc.Checksum)

	// The staging file is cleaned up after conversion.
	require.Len(t, parser.parsed, 1)
	assert.NoFileExists(t, parser.parsed[0])
}

func TestConsumeDir(t *testing.T) {
	parser := newStubParser(t)
	c, _, _ := newTestConsumer(t, parser)
	c.WithWorkers(2)

	root := t.TempDir()
	first := writeMessageFile(t, root, "first.eml", sampleMessage)
	writeMessageFile(t, root, "nested/second.eml", sampleMessage+"X-Tag: two\r\n")
	writeMessageFile(t, root, "third.eml", sampleMessage+"X-Tag: three\r\n")
	writeMessageFile(t, root, "ignored.txt", "not mail")

	// Pre-consume one file so the pass sees it as a duplicate.
	_, err := c.ConsumeFile(context.Background(), first, 0)
	require.NoError(t, err)

	stats, err := c.ConsumeDir(context.Background(), root, 0)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Found)
	assert.Equal(t, 2, stats.Consumed)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Failed)
	assert.Empty(t, stats.FailedFiles)
}

func TestConsumeDir_FailuresDoNotAbortThePass(t *testing.T) {
	parser := newStubParser(t)
	parser.failFor["bad.eml"] = errors.New("conversion failed")
	c, _, _ := newTestConsumer(t, parser)

	root := t.TempDir()
	writeMessageFile(t, root, "good.eml", sampleMessage)
	bad := writeMessageFile(t, root, "bad.eml", sampleMessage+"X-Tag: bad\r\n")

	stats, err := c.ConsumeDir(context.Background(), root, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Found)
	assert.Equal(t, 1, stats.Consumed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, []string{bad}, stats.FailedFiles)
}

func TestConsumeFile_MissingFile(t *testing.T) {
	c, _, _ := newTestConsumer(t, newStubParser(t))

	_, err := c.ConsumeFile(context.Background(), filepath.Join(t.TempDir(), "gone.eml"), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}
