package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/theblitlabs/zemog-worker/pkg/logger"
)

// AMQPSource pulls single messages with basic.get, which keeps the one-task
// contract without holding a consumer open.
type AMQPSource struct {
	url   string
	queue string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQPSource(url, queue string) *AMQPSource {
	return &AMQPSource{url: url, queue: queue}
}

func (s *AMQPSource) connect() (*amqp.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.channel != nil {
		return s.channel, nil
	}

	conn, err := amqp.Dial(s.url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := ch.QueueDeclarePassive(s.queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue %q not available: %w", s.queue, err)
	}

	s.conn = conn
	s.channel = ch

	log := logger.WithComponent("queue")
	log.Debug().Str("queue", s.queue).Msg("Connected to AMQP broker")
	return ch, nil
}

func (s *AMQPSource) Receive(ctx context.Context) (*Message, error) {
	ch, err := s.connect()
	if err != nil {
		return nil, err
	}

	d, ok, err := ch.Get(s.queue, false)
	if err != nil {
		return nil, fmt.Errorf("basic.get %s: %w", s.queue, err)
	}
	if !ok {
		return nil, nil
	}

	return &Message{
		ID:          d.MessageId,
		Body:        string(d.Body),
		Receipt:     strconv.FormatUint(d.DeliveryTag, 10),
		deliveryTag: d.DeliveryTag,
	}, nil
}

func (s *AMQPSource) Delete(ctx context.Context, msg *Message) error {
	ch, err := s.connect()
	if err != nil {
		return err
	}
	if err := ch.Ack(msg.deliveryTag, false); err != nil {
		return fmt.Errorf("ack delivery %d: %w", msg.deliveryTag, err)
	}
	return nil
}

func (s *AMQPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	var errs []error
	if err := s.channel.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close channel: %w", err))
	}
	if err := s.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close connection: %w", err))
	}
	s.conn, s.channel = nil, nil

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
