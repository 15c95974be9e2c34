package textproc

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"budgetrag/internal/rag/schema"
)

// Page is one page of extracted document content: its 1-based number, raw
// text, and any preformatted table strings found on it.
type Page struct {
	Number int
	Text   string
	Tables []string
}

// Processor turns raw extracted pages into chunks with per-chunk metadata.
// It never fails on malformed input; empty or whitespace-only pages simply
// produce no chunks.
type Processor struct {
	splitter *TokenSplitter
}

// NewProcessor creates a Processor with the given chunking parameters.
func NewProcessor(chunkSize, chunkOverlap int) (*Processor, error) {
	splitter, err := NewTokenSplitter(chunkSize, chunkOverlap)
	if err != nil {
		return nil, err
	}
	return &Processor{splitter: splitter}, nil
}

// Process cleans every page, folds its tables in after a blank-line
// separator, splits the combined text, and stamps each chunk with metadata.
func (p *Processor) Process(pages []Page, docMeta schema.DocumentMetadata) []schema.Chunk {
	var all []schema.Chunk

	for _, page := range pages {
		cleaned := CleanText(page.Text)

		var tables []string
		for _, table := range page.Tables {
			tables = append(tables, FormatTable(table))
		}

		combined := cleaned
		if len(tables) > 0 {
			combined += "\n\n" + strings.Join(tables, "\n\n")
		}

		for i, chunkText := range p.splitter.SplitText(combined) {
			all = append(all, p.buildChunk(chunkText, docMeta, page.Number, i))
		}
	}

	return all
}

// buildChunk assembles a chunk and its metadata. Token and character counts
// are computed on the final chunk text.
func (p *Processor) buildChunk(text string, docMeta schema.DocumentMetadata, pageNum, chunkNum int) schema.Chunk {
	return schema.Chunk{
		ID:   ChunkID(docMeta.FileName, pageNum, chunkNum),
		Text: text,
		Metadata: schema.ChunkMetadata{
			CityName:     docMeta.CityName,
			FiscalYear:   docMeta.FiscalYear,
			DocumentType: "budget",
			PageNumber:   pageNum,
			ChunkNumber:  chunkNum,
			FileName:     docMeta.FileName,
			Section:      ExtractSection(text),
			CreatedAt:    time.Now().UTC().Format(time.RFC3339),
			CharCount:    len(text),
			TokenCount:   p.splitter.TokenLen(text),
		},
	}
}

// ChunkID derives a stable chunk identifier from the file name, page number,
// and chunk index within the page, so re-ingestion is idempotent at the
// identifier level.
func ChunkID(fileName string, pageNum, chunkNum int) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%d_%d", fileName, pageNum, chunkNum)))
	return hex.EncodeToString(sum[:])[:12]
}
