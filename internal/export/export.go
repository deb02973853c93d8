// Package export renders drafts to standalone HTML or PDF.
package export

import (
	"errors"
	"fmt"
	"time"
)

// Format is the export output format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
)

// Request carries the draft content to export. The markup is the editor's
// own rich text; any overlay spans must be stripped by the caller first.
type Request struct {
	Title     string
	Markup    string
	UpdatedAt time.Time
	Format    Format
}

// Result is the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates the headless browser needed for PDF
// rendering is not installed.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")

// Export renders the draft in the requested format.
func Export(req Request) (*Result, error) {
	page, err := renderDraftHTML(templateData{
		Title:       req.Title,
		ContentHTML: req.Markup,
		UpdatedAt:   req.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(page),
			Filename: sanitizeFilename(req.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(page, req.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

// sanitizeFilename creates a safe filename from a draft title.
func sanitizeFilename(title string) string {
	result := ""
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			result += string(r)
		case r == ' ':
			result += "-"
		case r == '-', r == '_':
			result += string(r)
		}
	}
	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "draft"
	}
	return result
}
