package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/docpipe/extractd/internal/job"
	"github.com/docpipe/extractd/internal/objectstore"
	"github.com/docpipe/extractd/internal/orchestrator"
)

// Message is a queued extraction request referencing a stored document.
type Message struct {
	JobID     string `json:"job_id"`
	ObjectKey string `json:"object_key"`
}

// Submitter accepts documents for extraction.
type Submitter interface {
	Submit(ctx context.Context, sub orchestrator.Submission) (*orchestrator.SubmitResult, error)
}

// Consumer pulls extraction requests off the message queue, loads the
// referenced document from object storage, and submits it for processing.
type Consumer struct {
	logger    *slog.Logger
	objects   objectstore.Store
	submitter Submitter
}

// NewConsumer creates a queue consumer.
func NewConsumer(logger *slog.Logger, objects objectstore.Store, submitter Submitter) *Consumer {
	return &Consumer{
		logger:    logger,
		objects:   objects,
		submitter: submitter,
	}
}

// Run processes deliveries until the channel closes or ctx is canceled.
// Transient failures are requeued; malformed or permanently unprocessable
// messages are dropped so they cannot poison the queue.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, delivery)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, delivery amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		c.logger.Error("Dropping malformed message", slog.String("error", err.Error()))
		c.nack(delivery, false)
		return
	}
	if msg.JobID == "" || msg.ObjectKey == "" {
		c.logger.Error("Dropping message with missing fields",
			slog.String("job_id", msg.JobID),
			slog.String("object_key", msg.ObjectKey),
		)
		c.nack(delivery, false)
		return
	}

	data, err := c.objects.Read(ctx, msg.ObjectKey)
	if err != nil {
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			// The referenced document is gone; requeueing cannot help.
			c.logger.Error("Dropping message for missing object",
				slog.String("job_id", msg.JobID),
				slog.String("object_key", msg.ObjectKey),
			)
			c.nack(delivery, false)
			return
		}
		c.logger.Warn("Object store read failed, requeueing",
			slog.String("job_id", msg.JobID),
			slog.String("error", err.Error()),
		)
		c.nack(delivery, true)
		return
	}

	_, err = c.submitter.Submit(ctx, orchestrator.Submission{
		JobID:    msg.JobID,
		Filename: path.Base(msg.ObjectKey),
		Data:     data,
	})
	if err != nil {
		if errors.Is(err, job.ErrEmptyDocument) {
			c.logger.Error("Dropping message for empty document",
				slog.String("job_id", msg.JobID),
			)
			c.nack(delivery, false)
			return
		}
		c.logger.Warn("Submission failed, requeueing",
			slog.String("job_id", msg.JobID),
			slog.String("error", err.Error()),
		)
		c.nack(delivery, true)
		return
	}

	if err := delivery.Ack(false); err != nil {
		c.logger.Error("Failed to ack delivery",
			slog.String("job_id", msg.JobID),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Consumer) nack(delivery amqp.Delivery, requeue bool) {
	if err := delivery.Nack(false, requeue); err != nil {
		c.logger.Error("Failed to nack delivery", slog.String("error", err.Error()))
	}
}
