package parser

import (
	"fmt"
	"io"
	"mime"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/charmap"
)

func init() {
	// Register additional charsets that are commonly used in emails
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// ParseFile parses an .eml file and returns an Envelope
func ParseFile(filePath string) (*Envelope, error) {
	// Open the file
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	// Parse the message
	return Parse(f)
}

// Parse parses a mail message from a reader
func Parse(r io.Reader) (*Envelope, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail reader: %w", err)
	}

	env := &Envelope{}

	// Parse headers
	header := mr.Header

	// Subject - decode MIME words
	env.Subject = decodeMIMEWord(header.Get("Subject"))

	// From
	if fromAddrs, err := header.AddressList("From"); err == nil && len(fromAddrs) > 0 {
		env.From = &Address{Name: fromAddrs[0].Name, Address: fromAddrs[0].Address}
	}

	// To
	if toAddrs, err := header.AddressList("To"); err == nil {
		for _, addr := range toAddrs {
			env.To = append(env.To, Address{Name: addr.Name, Address: addr.Address})
		}
	}

	// CC
	if ccAddrs, err := header.AddressList("Cc"); err == nil {
		for _, addr := range ccAddrs {
			env.CC = append(env.CC, Address{Name: addr.Name, Address: addr.Address})
		}
	}

	// Date
	if date, err := header.Date(); err == nil {
		env.Date = date
	} else {
		// Use current time as fallback
		env.Date = time.Now()
	}

	// Parse body and attachments
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read part: %w", err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()

			body, err := io.ReadAll(part.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to read body: %w", err)
			}

			if strings.HasPrefix(contentType, "text/plain") {
				// Keep the first text part (multipart emails have both)
				if env.TextBody == "" {
					env.TextBody = string(body)
				}
			} else if strings.HasPrefix(contentType, "text/html") {
				// Always prefer the last HTML part if available
				env.HTMLBody = string(body)
			} else {
				// Non-text inline part, typically an embedded image
				env.Attachments = append(env.Attachments, Attachment{
					Filename:    decodeMIMEWord(inlineFilename(h)),
					ContentType: contentType,
					ContentID:   contentID(h.Get("Content-Id")),
					Disposition: inlineDisposition(h),
					Size:        int64(len(body)),
					Data:        body,
				})
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()

			data, err := io.ReadAll(part.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to read attachment: %w", err)
			}

			env.Attachments = append(env.Attachments, Attachment{
				Filename:    decodeMIMEWord(filename),
				ContentType: contentType,
				ContentID:   contentID(h.Get("Content-Id")),
				Disposition: DispositionAttachment,
				Size:        int64(len(data)),
				Data:        data,
			})
		}
	}

	return env, nil
}

// contentID strips the angle brackets around a Content-Id header value.
// Example: "<image001@example>" -> "image001@example"
func contentID(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "<")
	raw = strings.TrimSuffix(raw, ">")
	return raw
}

// inlineDisposition distinguishes genuinely inline parts from parts that
// carry an unusual Content-Disposition and only fall through to the inline
// branch of the reader.
func inlineDisposition(h *mail.InlineHeader) Disposition {
	disp, _, err := h.ContentDisposition()
	if err != nil || disp == "" || disp == "inline" {
		return DispositionInline
	}
	return DispositionOther
}

// inlineFilename pulls a filename out of an inline part's disposition or
// content-type parameters. Inline parts usually have none.
func inlineFilename(h *mail.InlineHeader) string {
	if _, params, err := h.ContentDisposition(); err == nil {
		if name, ok := params["filename"]; ok {
			return name
		}
	}
	if _, params, err := h.ContentType(); err == nil {
		if name, ok := params["name"]; ok {
			return name
		}
	}
	return ""
}

// decodeMIMEWord decodes MIME-encoded words (RFC 2047)
// Example: =?UTF-8?Q?Invitaci=C3=B3n?= -> Invitación
func decodeMIMEWord(s string) string {
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		// If decoding fails, return original string
		return s
	}
	return decoded
}
