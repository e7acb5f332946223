// Package registry matches incoming documents to the parser that can
// convert them. Parsers declare the MIME types they claim and a weight;
// when several parsers claim a type, the heaviest wins.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/brelow/eml-archiver/internal/archive"
)

// DocumentParser converts one document into extracted text plus an archive
// PDF and can render a thumbnail for an archived document.
type DocumentParser interface {
	Parse(ctx context.Context, documentPath, mimeType string, ruleID int64) (*archive.Result, error)
	Thumbnail(ctx context.Context, archivePath, outDir string) (string, error)
}

// Declaration announces a parser to the registry.
type Declaration struct {
	// Name identifies the parser in logs and errors.
	Name string
	// Weight breaks ties when several parsers claim the same type.
	Weight int
	// MimeTypes maps every claimed MIME type to its default file extension.
	MimeTypes map[string]string
	// New constructs a parser instance for one document.
	New func() DocumentParser
}

// Registry holds the declared parsers. Safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	declarations []Declaration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a parser declaration.
func (r *Registry) Register(d Declaration) error {
	if d.Name == "" {
		return errors.New("parser declaration needs a name")
	}
	if d.New == nil {
		return fmt.Errorf("parser %s declares no constructor", d.Name)
	}
	if len(d.MimeTypes) == 0 {
		return fmt.Errorf("parser %s claims no MIME types", d.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.declarations {
		if existing.Name == d.Name {
			return fmt.Errorf("parser %s is already registered", d.Name)
		}
	}
	r.declarations = append(r.declarations, d)
	return nil
}

// ParserFor returns a parser instance for the given MIME type, or nil when
// no parser claims it.
func (r *Registry) ParserFor(mimeType string) DocumentParser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Declaration
	for i := range r.declarations {
		d := &r.declarations[i]
		if _, ok := d.MimeTypes[mimeType]; !ok {
			continue
		}
		if best == nil || d.Weight > best.Weight {
			best = d
		}
	}
	if best == nil {
		return nil
	}
	return best.New()
}

// Claims reports whether any parser claims the given MIME type.
func (r *Registry) Claims(mimeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.declarations {
		if _, ok := d.MimeTypes[mimeType]; ok {
			return true
		}
	}
	return false
}

// SupportedTypes lists every claimed MIME type, sorted.
func (r *Registry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]struct{}{}
	var types []string
	for _, d := range r.declarations {
		for mt := range d.MimeTypes {
			if _, ok := seen[mt]; ok {
				continue
			}
			seen[mt] = struct{}{}
			types = append(types, mt)
		}
	}
	sort.Strings(types)
	return types
}

// TypeForExtension maps a file extension (with or without the leading dot)
// to the claimed MIME type carrying it as default extension.
func (r *Registry) TypeForExtension(ext string) (string, bool) {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.declarations {
		for mt, declared := range d.MimeTypes {
			if strings.ToLower(declared) == ext {
				return mt, true
			}
		}
	}
	return "", false
}
