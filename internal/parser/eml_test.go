package parser

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParse_SimpleEmail tests parsing a basic plain text email
func TestParse_SimpleEmail(t *testing.T) {
	emlContent := `From: Alice Sender <alice@example.com>
To: Bob <bob@example.com>, carol@example.com
Cc: dave@example.com
Subject: Simple Test Email
Date: Mon, 1 Jan 2024 10:00:00 +0000
Content-Type: text/plain; charset=utf-8

This is a simple test email.
`

	env, err := Parse(strings.NewReader(emlContent))

	require.NoError(t, err, "Should parse simple email without error")
	assert.Equal(t, "Simple Test Email", env.Subject)
	require.NotNil(t, env.From, "Should have a sender")
	assert.Equal(t, "Alice Sender", env.From.Name)
	assert.Equal(t, "alice@example.com", env.From.Address)
	require.Len(t, env.To, 2, "Should have 2 To recipients")
	assert.Equal(t, "Bob <bob@example.com>", env.To[0].String())
	assert.Equal(t, "carol@example.com", env.To[1].String())
	require.Len(t, env.CC, 1, "Should have 1 CC recipient")
	assert.Contains(t, env.TextBody, "This is a simple test email")
	assert.Empty(t, env.HTMLBody)
	assert.Empty(t, env.Attachments)
	assert.Equal(t, 2024, env.Date.Year())
	assert.Equal(t, time.January, env.Date.Month())
}

// TestParse_MIMEEncodedSubject tests parsing emails with MIME-encoded headers
func TestParse_MIMEEncodedSubject(t *testing.T) {
	emlContent := `From: sender@example.com
To: recipient@example.com
Subject: =?UTF-8?Q?Invitaci=C3=B3n:_Reuni=C3=B3n_de_proyecto?=
Date: Mon, 1 Jan 2024 10:00:00 +0000
Content-Type: text/plain; charset=utf-8

Body with a MIME-encoded subject line.
`

	env, err := Parse(strings.NewReader(emlContent))

	require.NoError(t, err, "Should parse MIME-encoded email without error")
	assert.Equal(t, "Invitación: Reunión de proyecto", env.Subject,
		"MIME-encoded subject should be decoded properly")
}

// TestParse_HTMLEmail tests parsing emails with both HTML and plain text parts
func TestParse_HTMLEmail(t *testing.T) {
	emlContent := `From: sender@example.com
To: recipient@example.com
Subject: HTML Email Test
Date: Mon, 1 Jan 2024 10:00:00 +0000
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="alt"

--alt
Content-Type: text/plain; charset=utf-8

This is the plain text version.
--alt
Content-Type: text/html; charset=utf-8

<html><body><h1>This is an HTML email</h1></body></html>
--alt--
`

	env, err := Parse(strings.NewReader(emlContent))

	require.NoError(t, err, "Should parse HTML email without error")
	assert.Contains(t, env.TextBody, "plain text version")
	assert.Contains(t, env.HTMLBody, "<h1>This is an HTML email</h1>")
}

// TestParse_WithAttachment tests disposition and content capture for an
// explicitly attached document
func TestParse_WithAttachment(t *testing.T) {
	payload := []byte("%PDF-1.4 fake report")
	emlContent := fmt.Sprintf(`From: sender@example.com
To: recipient@example.com
Subject: Email with Attachment
Date: Mon, 1 Jan 2024 10:00:00 +0000
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: text/plain; charset=utf-8

This email has an attachment.
--outer
Content-Type: application/pdf
Content-Disposition: attachment; filename="report.pdf"
Content-Transfer-Encoding: base64

%s
--outer--
`, base64.StdEncoding.EncodeToString(payload))

	env, err := Parse(strings.NewReader(emlContent))

	require.NoError(t, err, "Should parse email with attachment without error")
	assert.Contains(t, env.TextBody, "This email has an attachment")

	require.Len(t, env.Attachments, 1, "Should have exactly 1 attachment")
	att := env.Attachments[0]
	assert.Equal(t, "report.pdf", att.Filename)
	assert.Equal(t, "application/pdf", att.ContentType)
	assert.Equal(t, DispositionAttachment, att.Disposition)
	assert.Equal(t, payload, att.Data)
	assert.Equal(t, int64(len(payload)), att.Size)
	assert.True(t, att.IsReal(), "Explicitly attached documents are real attachments")
}

// TestParse_InlineImage tests Content-ID capture for embedded images
func TestParse_InlineImage(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x01}
	emlContent := fmt.Sprintf(`From: sender@example.com
To: recipient@example.com
Subject: Inline Image Test
Date: Mon, 1 Jan 2024 10:00:00 +0000
MIME-Version: 1.0
Content-Type: multipart/related; boundary="rel"

--rel
Content-Type: text/html; charset=utf-8

<html><body><img src="cid:logo@mail"></body></html>
--rel
Content-Type: image/png
Content-Disposition: inline; filename="logo.png"
Content-Id: <logo@mail>
Content-Transfer-Encoding: base64

%s
--rel--
`, base64.StdEncoding.EncodeToString(png))

	env, err := Parse(strings.NewReader(emlContent))

	require.NoError(t, err, "Should parse email with inline image without error")
	assert.Contains(t, env.HTMLBody, "cid:logo@mail")

	require.Len(t, env.Attachments, 1, "Inline image should be captured")
	att := env.Attachments[0]
	assert.Equal(t, DispositionInline, att.Disposition)
	assert.Equal(t, "logo@mail", att.ContentID, "Angle brackets should be stripped")
	assert.Equal(t, "logo.png", att.Filename)
	assert.False(t, att.IsReal(), "Inline assets are not real attachments")

	inline := env.InlineAttachments()
	require.Len(t, inline, 1)
	assert.Equal(t, "logo@mail", inline[0].ContentID)
	assert.Empty(t, env.RealAttachments())
}

// TestParse_SignatureExcluded tests that signature blobs never count as real
// attachments even though they are attached
func TestParse_SignatureExcluded(t *testing.T) {
	emlContent := fmt.Sprintf(`From: sender@example.com
To: recipient@example.com
Subject: Signed Message
Date: Mon, 1 Jan 2024 10:00:00 +0000
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: text/plain; charset=utf-8

Signed body.
--outer
Content-Type: application/pdf
Content-Disposition: attachment; filename="contract.pdf"
Content-Transfer-Encoding: base64

%s
--outer
Content-Type: application/x-pkcs7-signature; name="smime.p7s"
Content-Disposition: attachment; filename="smime.p7s"
Content-Transfer-Encoding: base64

%s
--outer--
`,
		base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 contract")),
		base64.StdEncoding.EncodeToString([]byte("signature-bytes")))

	env, err := Parse(strings.NewReader(emlContent))

	require.NoError(t, err, "Should parse signed email without error")
	require.Len(t, env.Attachments, 2, "Both attached parts should be captured")

	real := env.RealAttachments()
	require.Len(t, real, 1, "Signature blob should be excluded from real attachments")
	assert.Equal(t, "contract.pdf", real[0].Filename)
}

// TestParse_MissingSender tests that a message without a From header parses
// with a nil sender
func TestParse_MissingSender(t *testing.T) {
	emlContent := `To: recipient@example.com
Subject: No Sender
Content-Type: text/plain; charset=utf-8

Body without a sender or date.
`

	env, err := Parse(strings.NewReader(emlContent))

	require.NoError(t, err, "Should parse email with missing headers without error")
	assert.Nil(t, env.From, "Missing From header should leave the sender unset")
	assert.False(t, env.Date.IsZero(), "Missing date should fall back to the current time")
	assert.WithinDuration(t, time.Now(), env.Date, time.Minute)
}

// TestParseFile tests reading a message from disk
func TestParseFile(t *testing.T) {
	emlContent := `From: sender@example.com
To: recipient@example.com
Subject: File Test
Date: Mon, 1 Jan 2024 10:00:00 +0000
Content-Type: text/plain; charset=utf-8

Read from disk.
`
	path := filepath.Join(t.TempDir(), "message.eml")
	require.NoError(t, os.WriteFile(path, []byte(emlContent), 0644))

	env, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "File Test", env.Subject)

	_, err = ParseFile(filepath.Join(t.TempDir(), "does-not-exist.eml"))
	assert.Error(t, err, "Should return error for non-existent file")
	assert.Contains(t, err.Error(), "failed to open file")
}

// TestAddressString tests the display form of addresses
func TestAddressString(t *testing.T) {
	assert.Equal(t, "Alice <alice@example.com>", Address{Name: "Alice", Address: "alice@example.com"}.String())
	assert.Equal(t, "bob@example.com", Address{Address: "bob@example.com"}.String())
}

// TestContentID tests angle bracket stripping
func TestContentID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Bracketed",
			input:    "<image001@example>",
			expected: "image001@example",
		},
		{
			name:     "Bare",
			input:    "image001@example",
			expected: "image001@example",
		},
		{
			name:     "Whitespace",
			input:    "  <id@host>  ",
			expected: "id@host",
		},
		{
			name:     "Empty",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, contentID(tt.input))
		})
	}
}

// TestDecodeMIMEWord tests the MIME word decoder function
func TestDecodeMIMEWord(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "UTF-8 Quoted-Printable",
			input:    "=?UTF-8?Q?Invitaci=C3=B3n?=",
			expected: "Invitación",
		},
		{
			name:     "UTF-8 Base64",
			input:    "=?UTF-8?B?SW52aXRhY2nDs24=?=",
			expected: "Invitación",
		},
		{
			name:     "Multiple encoded words",
			input:    "=?UTF-8?Q?Invitaci=C3=B3n:?= =?UTF-8?Q?_Reuni=C3=B3n?=",
			expected: "Invitación: Reunión",
		},
		{
			name:     "Plain text (no encoding)",
			input:    "Simple Subject",
			expected: "Simple Subject",
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := decodeMIMEWord(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}
