package archive

import (
	"fmt"
	"strings"
)

// LayoutPolicy selects which body renditions end up in the archived PDF.
type LayoutPolicy int

const (
	// LayoutPreferTextThenHTML archives the text rendition and falls back
	// to the HTML rendition when the message has no plain-text body.
	LayoutPreferTextThenHTML LayoutPolicy = iota
	// LayoutPreferHTMLThenText archives the HTML rendition and falls back
	// to the text rendition.
	LayoutPreferHTMLThenText
	// LayoutTextOnly archives the text rendition or nothing.
	LayoutTextOnly
	// LayoutHTMLOnly archives the HTML rendition or nothing.
	LayoutHTMLOnly
)

func (l LayoutPolicy) String() string {
	switch l {
	case LayoutPreferTextThenHTML:
		return "prefer_text_then_html"
	case LayoutPreferHTMLThenText:
		return "prefer_html_then_text"
	case LayoutTextOnly:
		return "text_only"
	case LayoutHTMLOnly:
		return "html_only"
	}
	return fmt.Sprintf("LayoutPolicy(%d)", int(l))
}

// ParseLayoutPolicy maps a configuration or rule name to a LayoutPolicy.
func ParseLayoutPolicy(s string) (LayoutPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prefer_text_then_html":
		return LayoutPreferTextThenHTML, nil
	case "prefer_html_then_text":
		return LayoutPreferHTMLThenText, nil
	case "text_only":
		return LayoutTextOnly, nil
	case "html_only":
		return LayoutHTMLOnly, nil
	}
	return 0, fmt.Errorf("unknown layout policy %q", s)
}

// ScopePolicy selects how much of the message is archived.
type ScopePolicy int

const (
	// ScopeSeparate converts each real attachment into its own section of
	// the archive and extracts text from the whole raw message.
	ScopeSeparate ScopePolicy = iota
	// ScopeEverything archives the body renditions alone and extracts text
	// from the message body; attachments stay out of the archive because
	// the host consumes them as documents of their own.
	ScopeEverything
)

func (s ScopePolicy) String() string {
	switch s {
	case ScopeSeparate:
		return "separate"
	case ScopeEverything:
		return "everything"
	}
	return fmt.Sprintf("ScopePolicy(%d)", int(s))
}

// ParseScopePolicy maps a configuration or rule name to a ScopePolicy.
func ParseScopePolicy(s string) (ScopePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "separate":
		return ScopeSeparate, nil
	case "everything":
		return ScopeEverything, nil
	}
	return 0, fmt.Errorf("unknown scope policy %q", s)
}

// ConformanceLevel names the long-term archival PDF/A flavor the final
// document is converted to. The empty level disables the conversion.
type ConformanceLevel string

const (
	ConformanceOff ConformanceLevel = ""
	ConformanceB2  ConformanceLevel = "B2"
	ConformanceB3  ConformanceLevel = "B3"
)

// ParseConformanceLevel maps a configuration value to a ConformanceLevel.
// The empty string and "off" disable the standards conversion.
func ParseConformanceLevel(s string) (ConformanceLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "OFF":
		return ConformanceOff, nil
	case "B2":
		return ConformanceB2, nil
	case "B3":
		return ConformanceB3, nil
	}
	return ConformanceOff, fmt.Errorf("unknown PDF/A conformance level %q", s)
}

// Rule bundles the per-message conversion choices. Stored rules resolve to a
// Rule; messages without a rule use the configured defaults.
type Rule struct {
	Layout LayoutPolicy
	Scope  ScopePolicy
}
