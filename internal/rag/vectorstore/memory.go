package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"budgetrag/internal/rag/schema"
)

// MemoryBackend is a thread-safe, in-process vector backend. It scans all
// vectors of a document with exact cosine similarity, which is accurate and
// fast enough at single-document scale, and serves as the fallback when the
// managed backend is unreachable.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string]map[string]memoryRecord // document id -> chunk id -> record
}

type memoryRecord struct {
	content   string
	embedding []float32
	metadata  schema.ChunkMetadata
}

// NewMemoryBackend creates an empty in-process backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string]map[string]memoryRecord)}
}

// Name identifies the backend in logs.
func (b *MemoryBackend) Name() string { return "memory" }

// Close releases nothing; the index lives and dies with the process.
func (b *MemoryBackend) Close() error { return nil }

// Upsert writes the chunks under the given document id, replacing any
// existing chunk with the same id.
func (b *MemoryBackend) Upsert(ctx context.Context, documentID string, chunks []schema.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	partition, ok := b.docs[documentID]
	if !ok {
		partition = make(map[string]memoryRecord, len(chunks))
		b.docs[documentID] = partition
	}
	for _, chunk := range chunks {
		partition[chunk.ID] = memoryRecord{
			content:   chunk.Text,
			embedding: chunk.Embedding,
			metadata:  chunk.Metadata,
		}
	}
	return nil
}

// Search returns the topK most similar chunks of the document, ordered by
// descending cosine similarity.
func (b *MemoryBackend) Search(ctx context.Context, documentID string, vector []float32, topK int) ([]schema.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	var results []schema.SearchResult
	for docID, partition := range b.docs {
		if docID != documentID {
			continue
		}
		for _, rec := range partition {
			results = append(results, schema.SearchResult{
				Content:  rec.content,
				Metadata: rec.metadata,
				Score:    cosineSimilarity(vector, rec.embedding),
			})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// cosineSimilarity returns the cosine of the angle between two vectors, or 0
// when either has zero magnitude or the dimensions disagree.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// compile-time check to ensure MemoryBackend implements the Backend interface
var _ Backend = (*MemoryBackend)(nil)
