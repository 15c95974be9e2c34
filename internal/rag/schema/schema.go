package schema

// Metadata field names shared by the vector backends and the query engine.
const (
	// FieldDocumentID is the sole partition key for vectors and cache entries.
	FieldDocumentID = "document_id"
	// FieldCityName carries the same value as FieldDocumentID. It exists only
	// so indexes written by earlier deployments, which filtered on the city
	// name alone, remain queryable. New code never reads it.
	FieldCityName = "city_name"
)

// ChunkMetadata describes the provenance and shape of a single chunk.
type ChunkMetadata struct {
	DocumentID   string `json:"document_id"`
	CityName     string `json:"city_name"`
	FiscalYear   string `json:"fiscal_year"`
	DocumentType string `json:"document_type"`
	PageNumber   int    `json:"page_number"`
	ChunkNumber  int    `json:"chunk_number"` // Sequence within the page
	FileName     string `json:"file_name"`
	Section      string `json:"section"` // Best-effort classification, "General" when unknown
	CreatedAt    string `json:"created_at"`
	CharCount    int    `json:"char_count"`
	TokenCount   int    `json:"token_count"`
}

// Chunk is the central data structure representing a bounded text segment
// and its retrieval metadata. It is the primary data carrier through the
// ingestion pipeline.
type Chunk struct {
	// ID is a stable content-derived identifier: the md5 of
	// (file name, page number, chunk number) truncated to 12 hex chars,
	// so re-ingesting the same file yields the same ids.
	ID string

	// Text is the chunk's content after cleaning and table formatting.
	Text string

	// Embedding is the vector representation of the text. Populated during
	// ingestion, immutable afterward.
	Embedding []float32

	Metadata ChunkMetadata
}

// SearchResult is a single retrieval hit returned by a vector backend.
// Score is a similarity (higher is better) regardless of the backend's
// native metric.
type SearchResult struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
	Score    float64       `json:"score"`
}

// DocumentMetadata is the caller-supplied description of a document being
// ingested.
type DocumentMetadata struct {
	DocumentID string `json:"document_id,omitempty"` // Explicit id; derived from city+year when empty
	CityName   string `json:"city_name"`
	FiscalYear string `json:"fiscal_year"`
	FileName   string `json:"file_name"`
}
