// Package export renders a page's changelog as PDF.
package export

import "errors"

// Request contains parameters for an export operation.
type Request struct {
	PageID string
	// PostID limits the export to a single post; empty exports the
	// whole changelog.
	PostID string
}

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrContentUnavailable indicates content could not be loaded for export.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
