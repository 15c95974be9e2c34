package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"budgetrag/pkg/logger"
)

// TaskHandler processes one ingestion task. A non-nil error is logged; the
// message is committed either way so a poison task cannot wedge the group.
type TaskHandler func(ctx context.Context, task IngestTask) error

// TaskConsumer consumes ingestion tasks from Kafka and dispatches them to a
// handler.
type TaskConsumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

// NewTaskConsumer creates a new TaskConsumer.
func NewTaskConsumer(brokers []string, topic, groupID string, log *logger.Logger) *TaskConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &TaskConsumer{
		reader: reader,
		logger: log,
	}
}

// Start begins consuming messages until the context is cancelled.
func (c *TaskConsumer) Start(ctx context.Context, handler TaskHandler) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("Stopping ingestion task consumer...")
				return
			default:
				msg, err := c.reader.FetchMessage(ctx)
				if err != nil {
					if ctx.Err() == nil {
						c.logger.WithError(err).Error("Error fetching message from Kafka")
					}
					continue
				}

				var task IngestTask
				if err := json.Unmarshal(msg.Value, &task); err != nil {
					c.logger.WithError(err).WithPayload(map[string]interface{}{
						"topic":     msg.Topic,
						"partition": msg.Partition,
						"offset":    msg.Offset,
					}).Error("Failed to decode ingestion task, skipping")
				} else {
					c.logger.Info(fmt.Sprintf("Processing ingestion task %s for %s", task.TaskID, task.FilePath))
					if err := handler(ctx, task); err != nil {
						c.logger.WithError(err).WithPayload(map[string]interface{}{
							"task_id": task.TaskID,
							"file":    task.FilePath,
						}).Error("Error handling ingestion task")
					}
				}

				if err := c.reader.CommitMessages(ctx, msg); err != nil {
					c.logger.WithError(err).Error("Failed to commit Kafka message")
				}
			}
		}
	}()
}

// Close closes the underlying Kafka reader.
func (c *TaskConsumer) Close() error {
	return c.reader.Close()
}
