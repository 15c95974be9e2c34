package extract

import (
	"context"
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor implements the Extractor interface for PDF files.
type PDFExtractor struct{}

// NewPDFExtractor creates a new PDFExtractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract reads a PDF file and returns the plain text of every page in
// order. Pages whose text cannot be decoded are still emitted, with empty
// text, so page numbering stays complete.
func (e *PDFExtractor) Extract(ctx context.Context, path string) ([]PageContent, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf %s: %w", path, err)
	}
	defer f.Close()

	numPages := reader.NumPage()
	pages := make([]PageContent, 0, numPages)

	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		text := ""
		if !page.V.IsNull() {
			if content, err := page.GetPlainText(nil); err == nil {
				text = content
			}
		}

		pages = append(pages, PageContent{
			PageNumber: i,
			Text:       text,
		})
	}

	return pages, nil
}

// compile-time check to ensure PDFExtractor implements the Extractor interface
var _ Extractor = (*PDFExtractor)(nil)
