package milvus

import (
	"context"
	"fmt"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"budgetrag/internal/config"
)

// Collection field names for budget document chunks.
const (
	FieldID         = "id"
	FieldEmbedding  = "embedding"
	FieldContent    = "content"
	FieldDocumentID = "document_id"
	FieldCityName   = "city_name"
	FieldMetadata   = "metadata" // JSON-encoded chunk metadata
)

// MilvusClient wraps the Milvus client instance with its configuration.
type MilvusClient struct {
	Client client.Client
	Config *config.MilvusConfig
}

var (
	instance *MilvusClient
	once     sync.Once
	initErr  error
)

// GetClient initializes and returns a singleton Milvus client.
func GetClient(ctx context.Context, cfg *config.MilvusConfig) (*MilvusClient, error) {
	once.Do(func() {
		c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
		if err != nil {
			initErr = fmt.Errorf("failed to connect to Milvus: %w", err)
			return
		}
		instance = &MilvusClient{Client: c, Config: cfg}
	})
	return instance, initErr
}

// Close safely closes the Milvus connection.
func (c *MilvusClient) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

// HealthCheck verifies the Milvus connection is usable.
func (c *MilvusClient) HealthCheck(ctx context.Context) error {
	if c.Client == nil {
		return fmt.Errorf("milvus client is nil")
	}
	if _, err := c.Client.ListCollections(ctx); err != nil {
		return fmt.Errorf("milvus health check failed: %w", err)
	}
	return nil
}

// EnsureCollection creates the chunk collection and its vector index when
// they do not exist, then loads the collection for querying.
func (c *MilvusClient) EnsureCollection(ctx context.Context, dim int) error {
	collName := c.Config.CollectionName

	exists, err := c.Client.HasCollection(ctx, collName)
	if err != nil {
		return fmt.Errorf("failed to check collection '%s': %w", collName, err)
	}

	if !exists {
		schema := &entity.Schema{
			CollectionName: collName,
			Description:    "City budget document chunks",
			Fields: []*entity.Field{
				entity.NewField().WithName(FieldID).WithDataType(entity.FieldTypeVarChar).
					WithMaxLength(64).WithIsPrimaryKey(true),
				entity.NewField().WithName(FieldEmbedding).WithDataType(entity.FieldTypeFloatVector).
					WithDim(int64(dim)),
				entity.NewField().WithName(FieldContent).WithDataType(entity.FieldTypeVarChar).
					WithMaxLength(65535),
				entity.NewField().WithName(FieldDocumentID).WithDataType(entity.FieldTypeVarChar).
					WithMaxLength(256),
				entity.NewField().WithName(FieldCityName).WithDataType(entity.FieldTypeVarChar).
					WithMaxLength(256),
				entity.NewField().WithName(FieldMetadata).WithDataType(entity.FieldTypeVarChar).
					WithMaxLength(65535),
			},
		}
		if err := c.Client.CreateCollection(ctx, schema, 1); err != nil {
			return fmt.Errorf("failed to create collection '%s': %w", collName, err)
		}

		index, err := entity.NewIndexIvfFlat(entity.L2, 128)
		if err != nil {
			return fmt.Errorf("failed to build index definition: %w", err)
		}
		if err := c.Client.CreateIndex(ctx, collName, FieldEmbedding, index, false); err != nil {
			return fmt.Errorf("failed to create index on '%s': %w", collName, err)
		}
	}

	if err := c.Client.LoadCollection(ctx, collName, false); err != nil {
		return fmt.Errorf("failed to load collection '%s': %w", collName, err)
	}
	return nil
}
