package archive

import "context"

// PageDocument is a handle to one PDF produced during conversion. The zero
// value marks a rendition that was skipped or had no content.
type PageDocument struct {
	Path   string
	Exists bool
}

// PageGeometry describes the paper setup for rendered pages. Sizes and
// margins are in inches.
type PageGeometry struct {
	PaperWidth  float64
	PaperHeight float64
	Margin      float64
	Scale       float64
}

// a4MailGeometry is the fixed page setup for every rendered mail page: A4
// paper, 0.1 inch margins, no scaling.
var a4MailGeometry = PageGeometry{
	PaperWidth:  8.27,
	PaperHeight: 11.7,
	Margin:      0.1,
	Scale:       1.0,
}

// Renderer turns an HTML index file into a single paginated PDF written to
// outPath. Resources are auxiliary files the index references, typically
// materialized inline images.
type Renderer interface {
	RenderHTML(ctx context.Context, indexPath string, geometry PageGeometry, resources []string, outPath string) error
}

// OfficeConverter converts an arbitrary document into a PDF written to
// outPath.
type OfficeConverter interface {
	ConvertToPDF(ctx context.Context, path, outPath string) error
}

// Merger combines the given PDFs, in order, into a single PDF written to
// outPath.
type Merger interface {
	Merge(ctx context.Context, paths []string, outPath string) error
}

// TextExtractor pulls plain text out of a document buffer of the declared
// content type.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, contentType string) (string, error)
}

// Recognizer runs character recognition over image payloads.
type Recognizer interface {
	// Accepts reports whether the recognizer can handle the content type.
	Accepts(contentType string) bool
	// Recognize returns the text recognized in the file at path.
	Recognize(ctx context.Context, path, contentType string) (string, error)
}

// StandardsConverter rewrites a PDF in place to a long-term archival
// conformance level. The file at path stays valid on failure.
type StandardsConverter interface {
	ConvertPDFA(ctx context.Context, path string, level ConformanceLevel) error
}

// Thumbnailer renders the first page of a PDF as a PNG written to outPath.
type Thumbnailer interface {
	Thumbnail(ctx context.Context, pdfPath, outPath string) error
}
