package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/theblitlabs/zemog-worker/internal/core/config"
	"github.com/theblitlabs/zemog-worker/internal/core/models"
	"github.com/theblitlabs/zemog-worker/internal/utils/errorutil"
	"github.com/theblitlabs/zemog-worker/pkg/logger"
)

// MockedMessageBody stands in for a real fetch when
// debug.use_mocked_queue_message is set.
const MockedMessageBody = `{"test": "connectionTest", "app": "budget-direct", "location": "s3://ag-online-zemog/tests/budget-direct-local-test.zip", "notifications": ["frontend", "infrastructure"]}`

// Message is one raw message taken off a queue.
type Message struct {
	ID      string
	Body    string
	Receipt string

	deliveryTag uint64
}

// Source is a queue transport. Receive returns a nil message when the queue
// is empty.
type Source interface {
	Receive(ctx context.Context) (*Message, error)
	Delete(ctx context.Context, msg *Message) error
	Close() error
}

type Consumer struct {
	source Source
	debug  config.DebugConfig
}

func NewConsumer(source Source, debug config.DebugConfig) *Consumer {
	return &Consumer{source: source, debug: debug}
}

// RetrieveTask takes at most one message off the queue, deletes it straight
// away and parses it. Delivery is at-most-once: a crash after the delete loses
// the task.
func (c *Consumer) RetrieveTask(ctx context.Context) (*models.Task, error) {
	log := logger.WithComponent("queue")

	var body string
	if c.debug.UseMockedQueueMessage {
		log.Warn().Msg("Using mocked queue message")
		body = MockedMessageBody
	} else {
		msg, err := c.source.Receive(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to receive queue message: %w", err)
		}
		if msg == nil {
			return nil, errorutil.New(errorutil.KindEmptyQueue, "No messages to retrieve")
		}
		log.Info().Str("body", msg.Body).Msg("Queue message received")
		body = msg.Body

		if !c.debug.DoNotDeleteMessagesInQueue {
			log.Debug().Str("receipt", msg.Receipt).Msg("Removing queue message")
			if err := c.source.Delete(ctx, msg); err != nil {
				return nil, fmt.Errorf("failed to delete queue message: %w", err)
			}
		}
	}

	var task models.Task
	if err := json.Unmarshal([]byte(body), &task); err != nil {
		return nil, errorutil.Wrap(errorutil.KindJSONParse, err,
			fmt.Sprintf("Failed to parse queue message: %q", body)).WithDetail(body)
	}
	return &task, nil
}
