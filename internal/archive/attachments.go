package archive

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/brelow/eml-archiver/internal/parser"
)

// attachmentResult is the outcome of converting one real attachment: the PDF
// that will take the attachment's slot in the archive and, when recognition
// ran, the text section to append to the extraction.
type attachmentResult struct {
	doc     PageDocument
	ocrText string
}

// processAttachments converts every real attachment into a PDF, bounded to a
// few conversions at a time. Slot order follows message order regardless of
// which conversion finishes first. The returned string concatenates the
// recognized-content sections in the same order.
//
// A failed conversion is recoverable and fills its slot with a rendered
// placeholder page; only a failure to render the placeholder itself, or a
// failure to materialize the payload, aborts the whole message.
func (p *Pipeline) processAttachments(ctx context.Context, dir string, env *parser.Envelope) ([]PageDocument, string, error) {
	real := env.RealAttachments()
	if len(real) == 0 {
		return nil, "", nil
	}

	results := make([]attachmentResult, len(real))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.attachmentWorkers)
	for i, att := range real {
		// Copies for the pre-Go 1.22 loop variable semantics.
		i, att := i, att
		g.Go(func() error {
			res, err := p.processAttachment(gctx, dir, i, att)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, "", err
	}

	docs := make([]PageDocument, len(results))
	var notes strings.Builder
	for i, res := range results {
		docs[i] = res.doc
		notes.WriteString(res.ocrText)
	}
	return docs, notes.String(), nil
}

// processAttachment materializes one attachment into its own scratch
// directory and turns it into a PDF: PDF payloads pass through untouched,
// everything else goes to the conversion collaborator. Image payloads are
// additionally run through recognition before any conversion, on the
// original bytes.
func (p *Pipeline) processAttachment(ctx context.Context, dir string, index int, att parser.Attachment) (attachmentResult, error) {
	name := sanitizeFilename(att.Filename, uuid.NewString())

	// Each attachment gets a private directory so concurrent conversions
	// and identically named attachments never collide.
	sub := filepath.Join(dir, fmt.Sprintf("attachment-%03d", index))
	if err := os.MkdirAll(sub, 0755); err != nil {
		return attachmentResult{}, fmt.Errorf("failed to create attachment directory: %w", err)
	}

	src := filepath.Join(sub, name)
	if err := os.WriteFile(src, att.Data, 0644); err != nil {
		return attachmentResult{}, fmt.Errorf("failed to materialize attachment %s: %w", name, err)
	}

	// Trust the payload over the declared content type.
	sniffed := mimetype.Detect(att.Data)

	var res attachmentResult
	if p.ocrEnabled && p.recognizer != nil && p.recognizer.Accepts(sniffed.String()) {
		start := time.Now()
		text, err := p.recognizer.Recognize(ctx, src, sniffed.String())
		p.observe(stageRecognize, time.Since(start), err)
		if err != nil {
			p.log.Warn("content recognition failed, continuing without it",
				zap.String("attachment", name), zap.Error(err))
		} else if text != "" {
			res.ocrText = fmt.Sprintf("\n\n= Content attachment: %s =\n%s", name, text)
		}
	}

	if sniffed.Is("application/pdf") {
		res.doc = PageDocument{Path: src, Exists: true}
		return res, nil
	}

	outPath := src + ".pdf"
	start := time.Now()
	err := p.converter.ConvertToPDF(ctx, src, outPath)
	p.observe(stageConvert, time.Since(start), err)
	if err != nil {
		p.log.Warn("attachment conversion failed, substituting a placeholder page",
			zap.String("attachment", name), zap.String("content_type", att.ContentType), zap.Error(err))
		message := fmt.Sprintf("The attachment <b>%s</b> (%s) could not be converted to PDF.",
			html.EscapeString(name), html.EscapeString(att.ContentType))
		doc, perr := p.renderPlaceholder(ctx, sub, message)
		if perr != nil {
			return attachmentResult{}, perr
		}
		res.doc = doc
		return res, nil
	}

	res.doc = PageDocument{Path: outPath, Exists: true}
	return res, nil
}

// renderPlaceholder renders a single page carrying the given HTML fragment.
// It stands in for content that could not be converted.
func (p *Pipeline) renderPlaceholder(ctx context.Context, dir, message string) (PageDocument, error) {
	name := uuid.NewString()
	indexPath := filepath.Join(dir, name+".html")
	if err := os.WriteFile(indexPath, []byte(message), 0644); err != nil {
		return PageDocument{}, fmt.Errorf("failed to write placeholder index: %w", err)
	}

	outPath := filepath.Join(dir, name+".pdf")
	start := time.Now()
	err := p.renderer.RenderHTML(ctx, indexPath, a4MailGeometry, nil, outPath)
	p.observe(stageRender, time.Since(start), err)
	if err != nil {
		return PageDocument{}, fmt.Errorf("failed to render placeholder page: %w", err)
	}
	return PageDocument{Path: outPath, Exists: true}, nil
}

// sanitizeFilename removes path components and dangerous characters from a
// filename destined for the scratch directory, substituting fallback when
// nothing usable remains.
func sanitizeFilename(filename, fallback string) string {
	// Remove path separators
	filename = filepath.Base(filename)

	// Remove any control characters and quotes
	cleaned := strings.Map(func(r rune) rune {
		if r < 32 || r == 127 || r == '"' || r == '\'' || r == '/' || r == '\\' {
			return -1 // Remove character
		}
		return r
	}, filename)

	// Limit length
	if len(cleaned) > 255 {
		cleaned = cleaned[:255]
	}

	// Fallback if empty or degenerate
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		cleaned = fallback
	}

	return cleaned
}
