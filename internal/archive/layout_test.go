package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectBodyDocuments(t *testing.T) {
	text := PageDocument{Path: "/tmp/text.pdf", Exists: true}
	html := PageDocument{Path: "/tmp/html.pdf", Exists: true}
	none := PageDocument{}

	tests := []struct {
		name     string
		layout   LayoutPolicy
		text     PageDocument
		html     PageDocument
		expected []PageDocument
	}{
		{"text preferred picks text", LayoutPreferTextThenHTML, text, html, []PageDocument{text}},
		{"text preferred falls back to html", LayoutPreferTextThenHTML, none, html, []PageDocument{html}},
		{"html preferred picks html", LayoutPreferHTMLThenText, text, html, []PageDocument{html}},
		{"html preferred falls back to text", LayoutPreferHTMLThenText, text, none, []PageDocument{text}},
		{"text only never falls back", LayoutTextOnly, none, html, nil},
		{"text only picks text", LayoutTextOnly, text, html, []PageDocument{text}},
		{"html only never falls back", LayoutHTMLOnly, text, none, nil},
		{"html only picks html", LayoutHTMLOnly, text, html, []PageDocument{html}},
		{"nothing available", LayoutPreferTextThenHTML, none, none, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SelectBodyDocuments(tt.layout, tt.text, tt.html))
		})
	}
}
