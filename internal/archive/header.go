package archive

import (
	"fmt"
	"html"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/brelow/eml-archiver/internal/parser"
)

// noSenderPlaceholder stands in for the From value when the message carries
// no sender address.
const noSenderPlaceholder = "(NO SENDER PROVIDED)"

// headerDateFormat renders message dates as day.month.year hour:minute.
const headerDateFormat = "02.01.2006 15:04"

// HeaderEntry is one labeled line of the message summary.
type HeaderEntry struct {
	Label string
	Value string
}

// Header is the ordered message summary that precedes the extracted text and
// every rendered body page.
type Header []HeaderEntry

// BuildHeader assembles the summary from the parsed message: sender, subject,
// recipients, an optional CC line, the localized date and, when the message
// carries real attachments, their names and sizes.
func BuildHeader(env *parser.Envelope) Header {
	sender := noSenderPlaceholder
	if env.From != nil {
		sender = env.From.String()
	}

	h := Header{
		{Label: "From", Value: sender},
		{Label: "Subject", Value: env.Subject},
		{Label: "To", Value: joinAddresses(env.To)},
	}

	if len(env.CC) > 0 {
		h = append(h, HeaderEntry{Label: "CC", Value: joinAddresses(env.CC)})
	}

	h = append(h, HeaderEntry{Label: "Date", Value: env.Date.Local().Format(headerDateFormat)})

	if real := env.RealAttachments(); len(real) > 0 {
		summaries := make([]string, len(real))
		for i, att := range real {
			summaries[i] = fmt.Sprintf("%s (%s)", att.Filename, humanize.IBytes(uint64(att.Size)))
		}
		h = append(h, HeaderEntry{Label: "Attachments", Value: strings.Join(summaries, ", ")})
	}

	return h
}

// Text renders the summary as plain "Label: value" lines.
func (h Header) Text() string {
	var b strings.Builder
	for _, e := range h {
		b.WriteString(e.Label)
		b.WriteString(": ")
		b.WriteString(e.Value)
		b.WriteString("\n")
	}
	return b.String()
}

// HTML renders the summary as a two-column table for the rendered pages.
// Values are escaped; message content never becomes markup here.
func (h Header) HTML() string {
	var b strings.Builder
	b.WriteString("<table>\n")
	for _, e := range h {
		fmt.Fprintf(&b, "<tr><td><strong>%s</strong></td><td>%s</td></tr>\n",
			html.EscapeString(e.Label), html.EscapeString(e.Value))
	}
	b.WriteString("</table>\n<hr>\n")
	return b.String()
}

func joinAddresses(addrs []parser.Address) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}
	return strings.Join(parts, ",")
}
