// Package ghostscript wraps the local ghostscript binary for PDF/A
// conversion and first-page thumbnails.
package ghostscript

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/brelow/eml-archiver/internal/archive"
)

// Converter shells out to ghostscript. The zero value is not usable; use New.
type Converter struct {
	binary        string
	colorStrategy string
}

var (
	_ archive.StandardsConverter = (*Converter)(nil)
	_ archive.Thumbnailer        = (*Converter)(nil)
)

// New returns a converter using the given ghostscript binary and color
// conversion strategy (RGB, Gray or CMYK).
func New(binary, colorStrategy string) *Converter {
	return &Converter{binary: binary, colorStrategy: colorStrategy}
}

// pdfaProfiles maps conformance levels to ghostscript -dPDFA profile values.
var pdfaProfiles = map[archive.ConformanceLevel]int{
	archive.ConformanceB2: 2,
	archive.ConformanceB3: 3,
}

// ConvertPDFA rewrites the PDF at path as PDF/A in place: ghostscript writes
// a sibling file which then replaces the original.
func (c *Converter) ConvertPDFA(ctx context.Context, path string, level archive.ConformanceLevel) error {
	profile, ok := pdfaProfiles[level]
	if !ok {
		return fmt.Errorf("no ghostscript profile for PDF/A conformance level %q", level)
	}

	sibling := path + ".pdfa"
	if err := c.run(ctx, pdfaArgs(profile, c.colorStrategy, sibling, path)); err != nil {
		return err
	}
	return os.Rename(sibling, path)
}

// Thumbnail renders the first page of the PDF as a 150 dpi PNG.
func (c *Converter) Thumbnail(ctx context.Context, pdfPath, outPath string) error {
	return c.run(ctx, thumbnailArgs(outPath, pdfPath))
}

func pdfaArgs(profile int, colorStrategy, outPath, inPath string) []string {
	return []string{
		"-q",
		"-dBATCH",
		"-dNOPAUSE",
		"-dSAFER",
		fmt.Sprintf("-dPDFA=%d", profile),
		"-dPDFACompatibilityPolicy=1",
		"-sColorConversionStrategy=" + colorStrategy,
		"-sDEVICE=pdfwrite",
		"-sOutputFile=" + outPath,
		inPath,
	}
}

func thumbnailArgs(outPath, inPath string) []string {
	return []string{
		"-q",
		"-dBATCH",
		"-dNOPAUSE",
		"-dSAFER",
		"-sDEVICE=png16m",
		"-dFirstPage=1",
		"-dLastPage=1",
		"-r150",
		"-sOutputFile=" + outPath,
		inPath,
	}
}

// run executes ghostscript; failures carry the full command line and the
// combined output so conversion problems are diagnosable from the log.
func (c *Converter) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, c.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s",
			c.binary, strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return nil
}
