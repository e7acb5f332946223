package parser

import "time"

// SignatureContentType marks cryptographic signature parts that are carried
// as attachments but hold no archivable content.
const SignatureContentType = "application/x-pkcs7-signature"

// Disposition classifies how a MIME part asked to be presented.
type Disposition string

const (
	// DispositionInline marks parts meant to be shown inside the message,
	// typically embedded images referenced from the HTML body.
	DispositionInline Disposition = "inline"
	// DispositionAttachment marks parts explicitly attached to the message.
	DispositionAttachment Disposition = "attachment"
	// DispositionOther covers unusual disposition values.
	DispositionOther Disposition = "other"
)

// Envelope is a parsed mail message with all the components the conversion
// pipeline works on.
type Envelope struct {
	Subject     string
	From        *Address
	To          []Address
	CC          []Address
	Date        time.Time
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// Address is a mail address with an optional display name.
type Address struct {
	Name    string
	Address string
}

// String renders the address the way it is shown to people: "Name <addr>"
// when a display name exists, the bare address otherwise.
func (a Address) String() string {
	if a.Name != "" {
		return a.Name + " <" + a.Address + ">"
	}
	return a.Address
}

// Attachment is a non-body MIME part of the message.
type Attachment struct {
	Filename    string
	ContentType string
	// ContentID is the Content-Id header value with the surrounding angle
	// brackets stripped, empty when the part has none.
	ContentID   string
	Disposition Disposition
	Size        int64
	Data        []byte
}

// IsReal reports whether the attachment is a document in its own right:
// explicitly attached and not a signature blob.
func (a Attachment) IsReal() bool {
	return a.Disposition == DispositionAttachment && a.ContentType != SignatureContentType
}

// RealAttachments returns the attachments that should be archived as
// documents, in message order.
func (e *Envelope) RealAttachments() []Attachment {
	var real []Attachment
	for _, a := range e.Attachments {
		if a.IsReal() {
			real = append(real, a)
		}
	}
	return real
}

// InlineAttachments returns the inline parts that carry a Content-ID and can
// be referenced from the HTML body via cid: URLs.
func (e *Envelope) InlineAttachments() []Attachment {
	var inline []Attachment
	for _, a := range e.Attachments {
		if a.Disposition == DispositionInline && a.ContentID != "" {
			inline = append(inline, a)
		}
	}
	return inline
}
