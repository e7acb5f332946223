package archive

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/brelow/eml-archiver/internal/parser"
)

var newlineRuns = regexp.MustCompile(`\n+`)

// CollapseNewlines replaces every run of consecutive newlines with a single
// newline. Applying it twice yields the same result.
func CollapseNewlines(s string) string {
	return newlineRuns.ReplaceAllString(s, "\n")
}

// messageOnlyContent extracts the message body alone: the plain-text body
// verbatim, or a text extraction of the HTML body when no plain text exists.
func (p *Pipeline) messageOnlyContent(ctx context.Context, env *parser.Envelope) (string, error) {
	content := env.TextBody
	if content == "" && env.HTMLBody != "" {
		start := time.Now()
		extracted, err := p.extractor.ExtractText(ctx, []byte(env.HTMLBody), "text/html")
		p.observe(stageExtract, time.Since(start), err)
		if err != nil {
			return "", err
		}
		content = extracted
	}
	return CollapseNewlines(content), nil
}

// wholeMessageContent hands the raw message to the text extractor so the
// attachments are flattened into the extraction as well.
func (p *Pipeline) wholeMessageContent(ctx context.Context, raw []byte) (string, error) {
	start := time.Now()
	extracted, err := p.extractor.ExtractText(ctx, raw, "message/rfc822")
	p.observe(stageExtract, time.Since(start), err)
	if err != nil {
		return "", err
	}
	return CollapseNewlines(stripSubjectEcho(extracted)), nil
}

// stripSubjectEcho drops the first line of a whole-message extraction, which
// echoes the subject. A single-line extraction holds nothing beyond the echo
// and yields the empty string.
func stripSubjectEcho(s string) string {
	s = strings.TrimSpace(s)
	if _, rest, found := strings.Cut(s, "\n"); found {
		return rest
	}
	return ""
}
