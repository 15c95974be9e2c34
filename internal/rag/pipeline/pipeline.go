package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"budgetrag/internal/rag/engine"
	"budgetrag/internal/rag/extract"
	"budgetrag/internal/rag/identity"
	"budgetrag/internal/rag/schema"
	"budgetrag/internal/rag/textproc"
	"budgetrag/pkg/logger"
)

// ChunkEmbedder attaches embedding vectors to chunks in place.
type ChunkEmbedder interface {
	EmbedChunks(ctx context.Context, chunks []schema.Chunk) error
}

// DocumentStore is the slice of the vector store the coordinator needs.
type DocumentStore interface {
	StoreDocument(ctx context.Context, documentID string, chunks []schema.Chunk) error
	GetActiveDocument() (string, error)
	ResetActiveDocument()
}

// QueryAnswerer answers a question against one document.
type QueryAnswerer interface {
	Answer(ctx context.Context, question, documentID string, useCache bool) *engine.Response
}

// MetadataExtractor identifies city and fiscal year from document text when
// the uploader did not supply them. Optional.
type MetadataExtractor interface {
	ExtractDocumentMetadata(ctx context.Context, text string) (cityName, fiscalYear string)
}

// IngestResult is the structured outcome of an ingestion run.
type IngestResult struct {
	Status          string `json:"status"`
	File            string `json:"file,omitempty"`
	ChunksProcessed int    `json:"chunks_processed,omitempty"`
	PagesProcessed  int    `json:"pages_processed,omitempty"`
	CityName        string `json:"city_name,omitempty"`
	FiscalYear      string `json:"fiscal_year,omitempty"`
	DocumentID      string `json:"document_id,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Coordinator wires extraction, chunking, embedding, and storage into the
// ingestion flow, and delegates questions to the query engine. It also
// remembers the last successful ingest so the API can report the document
// currently being served.
type Coordinator struct {
	extractor extract.Extractor
	processor *textproc.Processor
	embedder  ChunkEmbedder
	store     DocumentStore
	engine    QueryAnswerer
	metaExt   MetadataExtractor // may be nil
	log       *logger.Logger

	mu      sync.Mutex
	current *IngestResult
}

// NewCoordinator creates a Coordinator. metaExt may be nil to disable
// LLM-assisted metadata detection.
func NewCoordinator(
	extractor extract.Extractor,
	processor *textproc.Processor,
	embedder ChunkEmbedder,
	store DocumentStore,
	queryEngine QueryAnswerer,
	metaExt MetadataExtractor,
	log *logger.Logger,
) *Coordinator {
	return &Coordinator{
		extractor: extractor,
		processor: processor,
		embedder:  embedder,
		store:     store,
		engine:    queryEngine,
		metaExt:   metaExt,
		log:       log,
	}
}

// Ingest runs the full ingestion chain for the document at path. Any failure
// anywhere in the chain becomes a structured error result; the pipeline
// leaves no partial chunk set behind for the caller to reason about, so a
// failed ingest is simply retried from scratch.
func (c *Coordinator) Ingest(ctx context.Context, path string, meta schema.DocumentMetadata) *IngestResult {
	result, err := c.ingest(ctx, path, meta)
	if err != nil {
		c.log.WithError(err).Error(fmt.Sprintf("Error during ingestion of %s", path))
		return &IngestResult{Status: "error", Error: err.Error()}
	}

	c.mu.Lock()
	c.current = result
	c.mu.Unlock()
	return result
}

func (c *Coordinator) ingest(ctx context.Context, path string, meta schema.DocumentMetadata) (*IngestResult, error) {
	c.log.Info(fmt.Sprintf("Ingesting document: %s", path))

	pages, err := c.extractor.Extract(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to extract document: %w", err)
	}
	c.log.Info(fmt.Sprintf("Extracted %d pages from %s", len(pages), meta.FileName))

	meta = c.resolveMetadata(ctx, meta, pages)

	documentID := meta.DocumentID
	if documentID == "" {
		documentID = identity.DocumentID(meta.CityName, meta.FiscalYear)
	}
	c.log.Info(fmt.Sprintf("Using document id for ingestion: %s", documentID))

	procPages := make([]textproc.Page, len(pages))
	for i, page := range pages {
		procPages[i] = textproc.Page{Number: page.PageNumber, Text: page.Text, Tables: page.Tables}
	}

	chunks := c.processor.Process(procPages, meta)
	c.log.Info(fmt.Sprintf("Generated %d chunks", len(chunks)))

	if err := c.embedder.EmbedChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}

	// StoreDocument stamps every chunk with the resolved document id,
	// overriding anything set earlier in the chain.
	if err := c.store.StoreDocument(ctx, documentID, chunks); err != nil {
		return nil, err
	}
	c.log.Info(fmt.Sprintf("Stored embeddings in vector store with document id: %s", documentID))

	return &IngestResult{
		Status:          "success",
		File:            meta.FileName,
		ChunksProcessed: len(chunks),
		PagesProcessed:  len(pages),
		CityName:        meta.CityName,
		FiscalYear:      meta.FiscalYear,
		DocumentID:      documentID,
	}, nil
}

// resolveMetadata fills missing city/fiscal-year fields from the document
// itself: regex sniffing of the opening pages first, then the LLM extractor
// when the regexes come up empty.
func (c *Coordinator) resolveMetadata(ctx context.Context, meta schema.DocumentMetadata, pages []extract.PageContent) schema.DocumentMetadata {
	if !unknown(meta.CityName) && !unknown(meta.FiscalYear) {
		return meta
	}

	var sb strings.Builder
	for _, page := range pages {
		sb.WriteString(page.Text)
		sb.WriteString("\n")
		if sb.Len() > 5000 {
			break
		}
	}
	opening := sb.String()

	city, year := identity.DetectMetadata(opening)
	if (unknown(city) || unknown(year)) && c.metaExt != nil {
		aiCity, aiYear := c.metaExt.ExtractDocumentMetadata(ctx, opening)
		if unknown(city) {
			city = aiCity
		}
		if unknown(year) {
			year = aiYear
		}
	}

	if unknown(meta.CityName) {
		meta.CityName = city
	}
	if unknown(meta.FiscalYear) {
		meta.FiscalYear = year
	}
	c.log.Info(fmt.Sprintf("Resolved document metadata: city=%s fiscal_year=%s", meta.CityName, meta.FiscalYear))
	return meta
}

// Query delegates to the query engine. The engine guarantees a well-formed
// response whatever happens, including for a missing document id.
func (c *Coordinator) Query(ctx context.Context, question, documentID string, useCache bool) *engine.Response {
	c.log.Info(fmt.Sprintf("Processing query with document id: %s", documentID))
	return c.engine.Answer(ctx, question, documentID, useCache)
}

// CurrentDocument returns the result of the last successful ingest, or nil
// when nothing has been ingested yet.
func (c *Coordinator) CurrentDocument() *IngestResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// ActiveDocumentID exposes the store's active document pointer.
func (c *Coordinator) ActiveDocumentID() (string, error) {
	return c.store.GetActiveDocument()
}

// ResetActiveDocument clears the store's active document pointer.
func (c *Coordinator) ResetActiveDocument() {
	c.store.ResetActiveDocument()
}

func unknown(value string) bool {
	return value == "" || strings.EqualFold(value, "unknown")
}
