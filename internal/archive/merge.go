package archive

import (
	"context"
	"errors"
	"fmt"
	"html"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNothingToArchive is returned when a message yields neither a body
// rendition nor attachment documents, so there is nothing to merge into an
// archive.
var ErrNothingToArchive = errors.New("message has no renderable body and no attachments")

// composeArchive merges the selected body renditions and converted
// attachments into the final archive document:
//
//  1. the body group is merged into one document (a singleton still passes
//     through the merger so every archive is normalized the same way),
//  2. the attachment documents are merged into one document,
//  3. both intermediates are merged into the final archive.
//
// A failed body merge is fatal. A failed attachment merge degrades to a
// placeholder page carrying the merge error. Nothing to merge at all is
// ErrNothingToArchive.
func (p *Pipeline) composeArchive(ctx context.Context, dir string, body, attachments []PageDocument) (PageDocument, error) {
	var bodyDoc, attDoc PageDocument

	if len(body) > 0 {
		var err error
		bodyDoc, err = p.mergeDocuments(ctx, dir, body)
		if err != nil {
			return PageDocument{}, fmt.Errorf("failed to merge body renditions: %w", err)
		}
	}

	if len(attachments) > 0 {
		var err error
		attDoc, err = p.mergeDocuments(ctx, dir, attachments)
		if err != nil {
			p.log.Warn("attachment documents could not be merged, substituting a placeholder page", zap.Error(err))
			message := fmt.Sprintf("The attachments could not be merged into the archived document: %s",
				html.EscapeString(err.Error()))
			attDoc, err = p.renderPlaceholder(ctx, dir, message)
			if err != nil {
				return PageDocument{}, err
			}
		}
	}

	switch {
	case bodyDoc.Exists && attDoc.Exists:
		final, err := p.mergeDocuments(ctx, dir, []PageDocument{bodyDoc, attDoc})
		if err != nil {
			return PageDocument{}, fmt.Errorf("failed to merge final archive: %w", err)
		}
		return final, nil
	case bodyDoc.Exists:
		return bodyDoc, nil
	case attDoc.Exists:
		return attDoc, nil
	}
	return PageDocument{}, ErrNothingToArchive
}

// mergeDocuments merges the given documents, in order, into a freshly named
// PDF inside dir.
func (p *Pipeline) mergeDocuments(ctx context.Context, dir string, docs []PageDocument) (PageDocument, error) {
	paths := make([]string, len(docs))
	for i, d := range docs {
		paths[i] = d.Path
	}

	outPath := filepath.Join(dir, uuid.NewString()+".pdf")
	start := time.Now()
	err := p.merger.Merge(ctx, paths, outPath)
	p.observe(stageMerge, time.Since(start), err)
	if err != nil {
		return PageDocument{}, err
	}
	return PageDocument{Path: outPath, Exists: true}, nil
}
