// Package archive converts parsed mail messages into searchable text and a
// single merged PDF suitable for long-term archival.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brelow/eml-archiver/internal/parser"
)

// Stage names reported to the observer hook for each collaborator call.
const (
	stageExtract   = "extract"
	stageRender    = "render"
	stageConvert   = "convert"
	stageRecognize = "recognize"
	stageMerge     = "merge"
	stageStandards = "standards"
)

// Observer receives the outcome of every conversion collaborator call, for
// metrics.
type Observer func(stage string, elapsed time.Duration, err error)

// Collaborators are the external services the pipeline drives. Renderer,
// OfficeConverter, Merger and TextExtractor are required. Recognizer is
// needed only when recognition is enabled, Standards only when a conformance
// level is configured.
type Collaborators struct {
	Renderer   Renderer
	Converter  OfficeConverter
	Merger     Merger
	Extractor  TextExtractor
	Recognizer Recognizer
	Standards  StandardsConverter
}

// Options tune the pipeline independently of the per-message rule.
type Options struct {
	// Conformance converts the final archive to the given PDF/A level.
	Conformance ConformanceLevel
	// OCR enables content recognition on image attachments.
	OCR bool
	// AttachmentWorkers bounds concurrent attachment conversions per
	// message. Zero means a conservative default.
	AttachmentWorkers int
	// ScratchDir hosts the per-message working directories. Empty means
	// the system temporary directory.
	ScratchDir string
	// Observe, when set, is called after every collaborator call.
	Observe Observer
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Pipeline turns one mail message into extracted text plus a merged archive
// PDF. It is safe for concurrent use; every invocation works in its own
// scratch directory.
type Pipeline struct {
	renderer   Renderer
	converter  OfficeConverter
	merger     Merger
	extractor  TextExtractor
	recognizer Recognizer
	standards  StandardsConverter

	conformance       ConformanceLevel
	ocrEnabled        bool
	attachmentWorkers int
	scratchDir        string
	observeFn         Observer
	log               *zap.Logger
}

// NewPipeline validates the collaborator set against the options and returns
// a ready pipeline.
func NewPipeline(c Collaborators, opts Options) (*Pipeline, error) {
	if c.Renderer == nil {
		return nil, errors.New("pipeline requires a renderer")
	}
	if c.Converter == nil {
		return nil, errors.New("pipeline requires an office converter")
	}
	if c.Merger == nil {
		return nil, errors.New("pipeline requires a merger")
	}
	if c.Extractor == nil {
		return nil, errors.New("pipeline requires a text extractor")
	}
	if opts.OCR && c.Recognizer == nil {
		return nil, errors.New("recognition is enabled but no recognizer is configured")
	}
	if opts.Conformance != ConformanceOff && c.Standards == nil {
		return nil, fmt.Errorf("conformance level %s is configured but no standards converter is available", opts.Conformance)
	}

	workers := opts.AttachmentWorkers
	if workers <= 0 {
		workers = 2
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Pipeline{
		renderer:          c.Renderer,
		converter:         c.Converter,
		merger:            c.Merger,
		extractor:         c.Extractor,
		recognizer:        c.Recognizer,
		standards:         c.Standards,
		conformance:       opts.Conformance,
		ocrEnabled:        opts.OCR,
		attachmentWorkers: workers,
		scratchDir:        opts.ScratchDir,
		observeFn:         opts.Observe,
		log:               log,
	}, nil
}

// Result is the outcome of one conversion. The archive lives inside the
// invocation's working directory; callers move it out and then Close the
// result to release every intermediate.
type Result struct {
	// ExtractedText is the message summary followed by the normalized body
	// text and any recognized attachment content.
	ExtractedText string
	// Created is the message date, falling back to the parse time.
	Created time.Time
	// ArchivePath points at the merged archive PDF.
	ArchivePath string

	// Message metadata for the host's document record.
	Title      string
	Sender     string
	Recipients string

	workDir string
}

// Close releases the working directory including the archive artifact.
func (r *Result) Close() error {
	if r.workDir == "" {
		return nil
	}
	err := os.RemoveAll(r.workDir)
	r.workDir = ""
	return err
}

// Parse converts the message at documentPath under the given rule. On any
// fatal failure the working directory is removed before returning; on
// success the caller owns it until Close.
func (p *Pipeline) Parse(ctx context.Context, documentPath string, rule Rule) (result *Result, err error) {
	raw, err := os.ReadFile(documentPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}

	env, err := parser.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	workDir, err := os.MkdirTemp(p.scratchDir, "eml-archive-")
	if err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}
	defer func() {
		if err != nil {
			os.RemoveAll(workDir)
		}
	}()

	p.log.Debug("converting message",
		zap.String("path", documentPath),
		zap.String("layout", rule.Layout.String()),
		zap.String("scope", rule.Scope.String()),
		zap.Int("attachments", len(env.RealAttachments())))

	hdr := BuildHeader(env)

	var text strings.Builder
	text.WriteString(hdr.Text())

	var content string
	switch rule.Scope {
	case ScopeEverything:
		content, err = p.messageOnlyContent(ctx, env)
	default:
		content, err = p.wholeMessageContent(ctx, raw)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to extract message text: %w", err)
	}
	text.WriteString(content)

	var textDoc, htmlDoc PageDocument
	if rule.Layout != LayoutHTMLOnly {
		textDoc, err = p.buildTextRendition(ctx, workDir, env, hdr)
		if err != nil {
			return nil, fmt.Errorf("failed to render text body: %w", err)
		}
	}
	if rule.Layout != LayoutTextOnly {
		htmlDoc, err = p.buildHTMLRendition(ctx, workDir, env, hdr)
		if err != nil {
			return nil, fmt.Errorf("failed to render html body: %w", err)
		}
	}
	bodyDocs := SelectBodyDocuments(rule.Layout, textDoc, htmlDoc)

	var attachmentDocs []PageDocument
	if rule.Scope != ScopeEverything {
		var notes string
		attachmentDocs, notes, err = p.processAttachments(ctx, workDir, env)
		if err != nil {
			return nil, fmt.Errorf("failed to process attachments: %w", err)
		}
		text.WriteString(notes)
	}

	final, err := p.composeArchive(ctx, workDir, bodyDocs, attachmentDocs)
	if err != nil {
		return nil, err
	}

	if p.conformance != ConformanceOff {
		start := time.Now()
		err = p.standards.ConvertPDFA(ctx, final.Path, p.conformance)
		p.observe(stageStandards, time.Since(start), err)
		if err != nil {
			return nil, fmt.Errorf("failed to convert archive to PDF/A %s: %w", p.conformance, err)
		}
	}

	sender := ""
	if env.From != nil {
		sender = env.From.String()
	}

	return &Result{
		ExtractedText: text.String(),
		Created:       env.Date,
		ArchivePath:   final.Path,
		Title:         env.Subject,
		Sender:        sender,
		Recipients:    joinAddresses(env.To),
		workDir:       workDir,
	}, nil
}

func (p *Pipeline) observe(stage string, elapsed time.Duration, err error) {
	if p.observeFn != nil {
		p.observeFn(stage, elapsed, err)
	}
}
