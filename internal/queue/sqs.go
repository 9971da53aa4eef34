package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/theblitlabs/zemog-worker/internal/core/config"
	"github.com/theblitlabs/zemog-worker/pkg/logger"
)

type SQSAPI interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type SQSSource struct {
	client    SQSAPI
	queueName string

	mu       sync.Mutex
	queueURL string
}

func NewSQSSource(client SQSAPI, queueName string) *SQSSource {
	return &SQSSource{client: client, queueName: queueName}
}

func NewSQSSourceFromConfig(awsCfg aws.Config, cfg config.Config) *SQSSource {
	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
		}
	})
	return NewSQSSource(client, cfg.Queue.Name)
}

// url resolves the queue URL on first use and caches it. A failed lookup is
// not cached.
func (s *SQSSource) url(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queueURL != "" {
		return s.queueURL, nil
	}

	out, err := s.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(s.queueName)})
	if err != nil {
		return "", fmt.Errorf("failed to resolve queue %q: %w", s.queueName, err)
	}
	s.queueURL = aws.ToString(out.QueueUrl)

	log := logger.WithComponent("queue")
	log.Debug().Str("queue_url", s.queueURL).Msg("Found suitable SQS queue")
	return s.queueURL, nil
}

func (s *SQSSource) Receive(ctx context.Context) (*Message, error) {
	queueURL, err := s.url(ctx)
	if err != nil {
		return nil, err
	}

	out, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(queueURL),
		MaxNumberOfMessages: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}

	m := out.Messages[0]
	return &Message{
		ID:      aws.ToString(m.MessageId),
		Body:    aws.ToString(m.Body),
		Receipt: aws.ToString(m.ReceiptHandle),
	}, nil
}

func (s *SQSSource) Delete(ctx context.Context, msg *Message) error {
	queueURL, err := s.url(ctx)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(msg.Receipt),
	})
	return err
}

func (s *SQSSource) Close() error {
	return nil
}
