package embeddings

import (
	"context"
	"fmt"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"budgetrag/internal/rag/schema"
	"budgetrag/pkg/logger"
)

// OpenAIEmbedder generates embedding vectors through the OpenAI API.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	batchSize int
	log       *logger.Logger
}

// NewOpenAIEmbedder creates an embedder for the given model. batchSize bounds
// the number of texts per request; values below 1 fall back to 100.
func NewOpenAIEmbedder(apiKey, model string, batchSize int, log *logger.Logger) *OpenAIEmbedder {
	if batchSize < 1 {
		batchSize = 100
	}
	config := openai.DefaultConfig(apiKey)
	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(config),
		model:     model,
		batchSize: batchSize,
		log:       log,
	}
}

// EmbedChunks attaches an embedding vector to every chunk, calling the API
// in fixed-size batches. Any batch failure aborts the whole operation;
// callers re-ingest from scratch rather than track partial success.
func (e *OpenAIEmbedder) EmbedChunks(ctx context.Context, chunks []schema.Chunk) error {
	e.log.Info(fmt.Sprintf("Generating embeddings for %d chunks", len(chunks)))

	for start := 0; start < len(chunks); start += e.batchSize {
		end := start + e.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, end-start)
		for i := start; i < end; i++ {
			texts[i-start] = chunks[i].Text
		}

		vectors, err := e.embed(ctx, texts)
		if err != nil {
			e.log.WithError(err).Error(fmt.Sprintf("Failed to embed batch starting at chunk %d", start))
			return fmt.Errorf("failed to embed batch starting at chunk %d: %w", start, err)
		}

		for i, vector := range vectors {
			chunks[start+i].Embedding = vector
		}
	}

	return nil
}

// EmbedQuery generates the embedding for a single query string.
func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
