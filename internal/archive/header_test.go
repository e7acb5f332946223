package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brelow/eml-archiver/internal/parser"
)

func TestBuildHeader_Order(t *testing.T) {
	sent := time.Date(2024, time.March, 7, 15, 4, 0, 0, time.UTC)
	env := &parser.Envelope{
		Subject: "Quarterly report",
		From:    &parser.Address{Name: "Alice", Address: "alice@example.com"},
		To: []parser.Address{
			{Name: "Bob", Address: "bob@example.com"},
			{Address: "archive@example.com"},
		},
		Date: sent,
		Attachments: []parser.Attachment{
			{Filename: "report.pdf", Disposition: parser.DispositionAttachment, Size: 2048},
			{Filename: "logo.png", Disposition: parser.DispositionInline, ContentID: "logo", Size: 512},
			{Filename: "smime.p7s", ContentType: parser.SignatureContentType, Disposition: parser.DispositionAttachment, Size: 128},
		},
	}

	h := BuildHeader(env)
	require.Len(t, h, 5)
	assert.Equal(t, HeaderEntry{Label: "From", Value: "Alice <alice@example.com>"}, h[0])
	assert.Equal(t, HeaderEntry{Label: "Subject", Value: "Quarterly report"}, h[1])
	assert.Equal(t, HeaderEntry{Label: "To", Value: "Bob <bob@example.com>,archive@example.com"}, h[2])
	assert.Equal(t, HeaderEntry{Label: "Date", Value: sent.Local().Format("02.01.2006 15:04")}, h[3])
	assert.Equal(t, HeaderEntry{Label: "Attachments", Value: "report.pdf (2.0 KiB)"}, h[4],
		"Inline assets and signatures should stay out of the attachment summary")
}

func TestBuildHeader_NoSender(t *testing.T) {
	h := BuildHeader(&parser.Envelope{Subject: "Orphan", Date: time.Now()})
	assert.Equal(t, HeaderEntry{Label: "From", Value: "(NO SENDER PROVIDED)"}, h[0])
}

func TestBuildHeader_CCLine(t *testing.T) {
	env := &parser.Envelope{
		From: &parser.Address{Address: "a@example.com"},
		To:   []parser.Address{{Address: "b@example.com"}},
		CC: []parser.Address{
			{Address: "c@example.com"},
			{Name: "Dee", Address: "d@example.com"},
		},
		Date: time.Now(),
	}

	h := BuildHeader(env)
	require.Len(t, h, 5)
	assert.Equal(t, HeaderEntry{Label: "CC", Value: "c@example.com,Dee <d@example.com>"}, h[3],
		"CC should sit between To and Date")
	assert.Equal(t, "Date", h[4].Label)
}

func TestBuildHeader_NoCCLineWhenEmpty(t *testing.T) {
	h := BuildHeader(&parser.Envelope{Date: time.Now()})
	for _, e := range h {
		assert.NotEqual(t, "CC", e.Label)
	}
}

func TestHeaderText(t *testing.T) {
	h := Header{
		{Label: "From", Value: "alice@example.com"},
		{Label: "Subject", Value: "Hello"},
	}
	assert.Equal(t, "From: alice@example.com\nSubject: Hello\n", h.Text())
}

func TestHeaderHTML_EscapesValues(t *testing.T) {
	h := Header{{Label: "Subject", Value: `<script>alert("x")</script>`}}

	out := h.HTML()
	assert.Contains(t, out, "&lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt;")
	assert.NotContains(t, out, "<script>", "Message content must never become markup")
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "<hr>")
}
