package queue

import (
	"time"

	"github.com/google/uuid"

	"budgetrag/internal/rag/schema"
)

// IngestTask is the message published for each queued ingestion request.
type IngestTask struct {
	TaskID    string                  `json:"task_id"`
	FilePath  string                  `json:"file_path"`
	Metadata  schema.DocumentMetadata `json:"metadata"`
	CreatedAt string                  `json:"created_at"`
}

// NewIngestTask builds a task for the given file with a fresh id.
func NewIngestTask(filePath string, meta schema.DocumentMetadata) IngestTask {
	return IngestTask{
		TaskID:    uuid.New().String(),
		FilePath:  filePath,
		Metadata:  meta,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}
