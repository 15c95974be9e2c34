package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"budgetrag/internal/database/milvus"
	"budgetrag/internal/rag/schema"
	"budgetrag/pkg/logger"
)

// MilvusBackend stores vectors in a Milvus collection. All documents share
// one collection; partitioning is purely the document_id filter expression.
type MilvusBackend struct {
	client     *milvus.MilvusClient
	collection string
	log        *logger.Logger
}

// NewMilvusBackend creates a backend over an initialized Milvus client.
func NewMilvusBackend(client *milvus.MilvusClient, log *logger.Logger) (*MilvusBackend, error) {
	if client == nil || client.Client == nil {
		return nil, fmt.Errorf("milvus client is not initialized")
	}
	return &MilvusBackend{
		client:     client,
		collection: client.Config.CollectionName,
		log:        log,
	}, nil
}

// Name identifies the backend in logs.
func (b *MilvusBackend) Name() string { return "milvus" }

// Close closes the underlying Milvus connection.
func (b *MilvusBackend) Close() error {
	b.client.Close()
	return nil
}

// Upsert writes one batch of embedded chunks into the collection.
func (b *MilvusBackend) Upsert(ctx context.Context, documentID string, chunks []schema.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	ids := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	contents := make([]string, len(chunks))
	documentIDs := make([]string, len(chunks))
	cityNames := make([]string, len(chunks))
	metadatas := make([]string, len(chunks))

	dim := 0
	for i, chunk := range chunks {
		ids[i] = chunk.ID
		embeddings[i] = chunk.Embedding
		if len(chunk.Embedding) > dim {
			dim = len(chunk.Embedding)
		}
		contents[i] = chunk.Text
		documentIDs[i] = documentID
		cityNames[i] = chunk.Metadata.CityName

		encoded, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for chunk %s: %w", chunk.ID, err)
		}
		metadatas[i] = string(encoded)
	}

	b.log.Info(fmt.Sprintf("Upserting %d vectors into Milvus collection %s", len(chunks), b.collection))

	_, err := b.client.Client.Upsert(ctx, b.collection, "", /* default partition */
		entity.NewColumnVarChar(milvus.FieldID, ids),
		entity.NewColumnFloatVector(milvus.FieldEmbedding, dim, embeddings),
		entity.NewColumnVarChar(milvus.FieldContent, contents),
		entity.NewColumnVarChar(milvus.FieldDocumentID, documentIDs),
		entity.NewColumnVarChar(milvus.FieldCityName, cityNames),
		entity.NewColumnVarChar(milvus.FieldMetadata, metadatas),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vectors into Milvus: %w", err)
	}
	return nil
}

// Search performs a similarity search restricted to one document. The filter
// accepts the legacy city_name alias alongside document_id so indexes
// written by older deployments still match. Milvus returns L2 distances, so
// scores are inverted to similarity before leaving the backend.
func (b *MilvusBackend) Search(ctx context.Context, documentID string, vector []float32, topK int) ([]schema.SearchResult, error) {
	filterExpr := buildDocumentFilter(documentID)

	searchParams, err := entity.NewIndexIvfFlatSearchParam(10)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	b.log.Info(fmt.Sprintf("Searching Milvus collection %s with filter: %s", b.collection, filterExpr))

	searchResults, err := b.client.Client.Search(
		ctx, b.collection, []string{}, filterExpr,
		[]string{milvus.FieldContent, milvus.FieldMetadata},
		[]entity.Vector{entity.FloatVector(vector)},
		milvus.FieldEmbedding, entity.L2, topK, searchParams,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search Milvus: %w", err)
	}

	var results []schema.SearchResult
	for _, res := range searchResults {
		contentCol, _ := findColumn(res.Fields, milvus.FieldContent).(*entity.ColumnVarChar)
		metadataCol, _ := findColumn(res.Fields, milvus.FieldMetadata).(*entity.ColumnVarChar)
		if contentCol == nil {
			b.log.Warn("Search result is missing content field, skipping")
			continue
		}

		for i := 0; i < res.ResultCount; i++ {
			var meta schema.ChunkMetadata
			if metadataCol != nil {
				if err := json.Unmarshal([]byte(metadataCol.Data()[i]), &meta); err != nil {
					b.log.WithError(err).Warn("Failed to decode chunk metadata from Milvus")
				}
			}
			results = append(results, schema.SearchResult{
				Content:  contentCol.Data()[i],
				Metadata: meta,
				Score:    1 - float64(res.Scores[i]),
			})
		}
	}

	return results, nil
}

// buildDocumentFilter builds the boolean expression restricting a search to
// one document. Explicitly supplied ids are arbitrary strings, so quotes and
// backslashes are escaped to keep the expression intact.
func buildDocumentFilter(documentID string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(documentID)
	return fmt.Sprintf(`%s == "%s" or %s == "%s"`,
		milvus.FieldDocumentID, escaped, milvus.FieldCityName, escaped)
}

func findColumn(fields []entity.Column, name string) entity.Column {
	for _, field := range fields {
		if field.Name() == name {
			return field
		}
	}
	return nil
}

// compile-time check to ensure MilvusBackend implements the Backend interface
var _ Backend = (*MilvusBackend)(nil)
