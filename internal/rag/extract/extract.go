package extract

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the source file does not exist.
var ErrNotFound = errors.New("source file not found")

// PageContent is one page of extracted document content. Table strings are
// already laid out by the extraction side; OCR fallback for image-only pages
// is assumed to have been applied upstream.
type PageContent struct {
	PageNumber int      // 1-based
	Text       string
	Tables     []string
}

// Extractor converts a document on disk into an ordered sequence of page
// contents. Implementations must never omit a page.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]PageContent, error)
}
