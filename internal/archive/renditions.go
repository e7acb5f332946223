package archive

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brelow/eml-archiver/internal/parser"
)

// pageStyleRules matches embedded page-sizing style rules that would fight
// the fixed page geometry of the renderer.
var pageStyleRules = regexp.MustCompile(`\{page:.*?\}`)

// buildTextRendition renders the plain-text body as a PDF: the body is
// escaped, wrapped in a teletype block with explicit line breaks, and
// prefixed with the message summary. A message without a plain-text body
// yields a zero PageDocument without calling the renderer.
func (p *Pipeline) buildTextRendition(ctx context.Context, dir string, env *parser.Envelope, hdr Header) (PageDocument, error) {
	if env.TextBody == "" {
		return PageDocument{}, nil
	}

	body := "<tt>" + strings.ReplaceAll(html.EscapeString(env.TextBody), "\n", "<br>") + "</tt>"

	indexPath := filepath.Join(dir, "text-mail.html")
	if err := os.WriteFile(indexPath, []byte(hdr.HTML()+body), 0644); err != nil {
		return PageDocument{}, fmt.Errorf("failed to write text index: %w", err)
	}

	outPath := filepath.Join(dir, "text-mail.pdf")
	start := time.Now()
	err := p.renderer.RenderHTML(ctx, indexPath, a4MailGeometry, nil, outPath)
	p.observe(stageRender, time.Since(start), err)
	if err != nil {
		return PageDocument{}, err
	}
	return PageDocument{Path: outPath, Exists: true}, nil
}

// buildHTMLRendition renders the HTML body as a PDF. Inline images are
// materialized next to the index file and every cid: reference is rewritten
// to the materialized name so the renderer can resolve it. Page-sizing style
// rules embedded in the body are stripped first.
func (p *Pipeline) buildHTMLRendition(ctx context.Context, dir string, env *parser.Envelope, hdr Header) (PageDocument, error) {
	if env.HTMLBody == "" {
		return PageDocument{}, nil
	}

	content := env.HTMLBody

	var resources []string
	for _, att := range env.InlineAttachments() {
		name := inlineResourceName(att)
		resPath := filepath.Join(dir, name)
		if err := os.WriteFile(resPath, att.Data, 0644); err != nil {
			return PageDocument{}, fmt.Errorf("failed to materialize inline part %s: %w", att.ContentID, err)
		}
		resources = append(resources, resPath)
		content = strings.ReplaceAll(content, "cid:"+att.ContentID, name)
	}

	content = pageStyleRules.ReplaceAllString(content, "")

	indexPath := filepath.Join(dir, "html-mail.html")
	if err := os.WriteFile(indexPath, []byte(hdr.HTML()+content), 0644); err != nil {
		return PageDocument{}, fmt.Errorf("failed to write html index: %w", err)
	}

	outPath := filepath.Join(dir, "html-mail.pdf")
	start := time.Now()
	err := p.renderer.RenderHTML(ctx, indexPath, a4MailGeometry, resources, outPath)
	p.observe(stageRender, time.Since(start), err)
	if err != nil {
		return PageDocument{}, err
	}
	return PageDocument{Path: outPath, Exists: true}, nil
}

// inlineResourceName derives the materialized filename for an inline part
// from its Content-ID, keeping the original extension so the renderer can
// infer the content type.
func inlineResourceName(att parser.Attachment) string {
	name := sanitizeFilename(att.ContentID, uuid.NewString())
	if ext := filepath.Ext(att.Filename); ext != "" && !strings.HasSuffix(name, ext) {
		name += ext
	}
	return name
}
