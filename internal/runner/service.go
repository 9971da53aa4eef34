package runner

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/theblitlabs/zemog-worker/internal/core/config"
	"github.com/theblitlabs/zemog-worker/internal/core/models"
	"github.com/theblitlabs/zemog-worker/internal/execution"
	"github.com/theblitlabs/zemog-worker/internal/execution/sandbox"
	"github.com/theblitlabs/zemog-worker/internal/monitoring/metrics"
	"github.com/theblitlabs/zemog-worker/internal/notification"
	"github.com/theblitlabs/zemog-worker/internal/queue"
	"github.com/theblitlabs/zemog-worker/internal/results"
	"github.com/theblitlabs/zemog-worker/internal/staging"
	"github.com/theblitlabs/zemog-worker/internal/storage"
	"github.com/theblitlabs/zemog-worker/internal/telemetry"
	"github.com/theblitlabs/zemog-worker/internal/utils/awsutil"
	"github.com/theblitlabs/zemog-worker/pkg/logger"
)

// Service wires the queue-driven pipeline from configuration.
type Service struct {
	cfg      *config.Config
	source   queue.Source
	pipeline *Pipeline
}

func NewService(ctx context.Context, cfg *config.Config) (*Service, error) {
	log := logger.WithComponent("runner")

	awsCfg, err := awsutil.LoadConfig(ctx, cfg.AWS)
	if err != nil {
		log.Error().Err(err).Str("region", cfg.AWS.Region).Msg("Failed to load AWS configuration")
		return nil, err
	}

	source, err := newSource(awsCfg, cfg)
	if err != nil {
		return nil, err
	}

	executor, err := NewExecutor(cfg)
	if err != nil {
		source.Close()
		return nil, err
	}

	var secrets notification.SecretsAPI
	if needsSecrets(cfg) {
		secrets = secretsmanager.NewFromConfig(awsCfg)
	}
	dispatcher, err := notification.NewDispatcher(ctx, cfg, secrets)
	if err != nil {
		log.Error().Err(err).Msg("Invalid notification configuration")
		source.Close()
		return nil, err
	}

	sink, err := newSink(cfg)
	if err != nil {
		source.Close()
		return nil, err
	}

	instanceID := cfg.Metrics.InstanceID
	if instanceID == "" {
		instanceID = metrics.ResolveInstanceID(ctx, imds.NewFromConfig(awsCfg))
	}

	store := storage.NewS3StoreFromConfig(awsCfg, cfg.AWS)
	pipeline := NewPipeline(Dependencies{
		Queue:    queue.NewConsumer(source, cfg.Debug),
		Stager:   staging.NewStager(store, staging.DefaultRoot()),
		Executor: executor,
		Archiver: results.NewArchiver(""),
		Uploader: results.NewUploader(store, cfg),
		Notifier: dispatcher,
		Metrics:  metrics.New(sink, cfg.Metrics.Namespace),
	}, instanceID)

	log.Info().
		Str("queue_backend", cfg.Queue.Backend).
		Str("queue", cfg.Queue.Name).
		Str("runner_mode", cfg.Runner.Mode).
		Str("metrics_backend", cfg.Metrics.Backend).
		Str("instance_id", instanceID).
		Msg("Worker service initialized")

	return &Service{
		cfg:      cfg,
		source:   source,
		pipeline: pipeline,
	}, nil
}

// Run processes a single task from the queue.
func (s *Service) Run(ctx context.Context) (*models.Outcome, error) {
	return s.pipeline.Run(ctx)
}

func (s *Service) Stop() error {
	log := logger.WithComponent("runner")
	if err := s.source.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing queue connection")
		return fmt.Errorf("failed to close queue: %w", err)
	}
	log.Info().Msg("Worker service stopped")
	return nil
}

// NewExecutor builds the test executor for the configured runner mode. It is
// used by both the queue-driven and standalone modes.
func NewExecutor(cfg *config.Config) (*execution.Executor, error) {
	var launcher sandbox.Launcher
	switch cfg.Runner.Mode {
	case "docker":
		dl, err := sandbox.NewDockerLauncher(sandbox.DockerConfig{
			Image:       cfg.Runner.Docker.Image,
			MemoryLimit: cfg.Runner.Docker.MemoryLimit,
		})
		if err != nil {
			return nil, err
		}
		launcher = dl
	default:
		launcher = sandbox.NewProcessLauncher()
	}
	return execution.NewExecutor(cfg.Runner, launcher)
}

func newSource(awsCfg aws.Config, cfg *config.Config) (queue.Source, error) {
	switch cfg.Queue.Backend {
	case "sqs":
		return queue.NewSQSSourceFromConfig(awsCfg, *cfg), nil
	case "amqp":
		return queue.NewAMQPSource(cfg.Queue.URL, cfg.Queue.Name), nil
	default:
		return nil, fmt.Errorf("unsupported queue backend %q", cfg.Queue.Backend)
	}
}

func newSink(cfg *config.Config) (metrics.Sink, error) {
	switch cfg.Metrics.Backend {
	case "prometheus":
		return metrics.NewPrometheusSink(cfg.Metrics.PushGatewayURL), nil
	case "otel":
		return metrics.NewOTelSink(telemetry.Meter()), nil
	case "none", "":
		return metrics.NoopSink{}, nil
	default:
		return nil, fmt.Errorf("unsupported metrics backend %q", cfg.Metrics.Backend)
	}
}

func needsSecrets(cfg *config.Config) bool {
	for _, n := range cfg.Notifications {
		if n.Clickatell != nil && n.Clickatell.IsEnabled &&
			n.Clickatell.AuthorizationToken == "" && n.Clickatell.AuthorizationTokenSecret != "" {
			return true
		}
	}
	return false
}
