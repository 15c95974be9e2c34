package queue

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"budgetrag/pkg/logger"
)

// TaskPublisher publishes ingestion tasks to Kafka.
type TaskPublisher struct {
	writer *kafka.Writer
	logger *logger.Logger
}

// NewTaskPublisher creates a new TaskPublisher.
func NewTaskPublisher(brokers []string, topic string, log *logger.Logger) *TaskPublisher {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return &TaskPublisher{
		writer: writer,
		logger: log,
	}
}

// Publish sends an ingestion task to the topic, keyed by task id so retries
// of the same task land on the same partition.
func (p *TaskPublisher) Publish(ctx context.Context, task IngestTask) error {
	msgBytes, err := json.Marshal(task)
	if err != nil {
		p.logger.WithError(err).Error("Failed to marshal ingestion task for Kafka")
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.TaskID),
		Value: msgBytes,
	})
	if err != nil {
		p.logger.WithError(err).WithPayload(map[string]interface{}{"topic": p.writer.Topic}).Error("Failed to write message to Kafka")
		return err
	}
	return nil
}

// Close closes the underlying Kafka writer.
func (p *TaskPublisher) Close() error {
	return p.writer.Close()
}
