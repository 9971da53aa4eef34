package runner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/theblitlabs/zemog-worker/internal/core/models"
	"github.com/theblitlabs/zemog-worker/internal/core/ports"
	"github.com/theblitlabs/zemog-worker/internal/telemetry"
	"github.com/theblitlabs/zemog-worker/internal/utils/errorutil"
	"github.com/theblitlabs/zemog-worker/pkg/logger"
)

// Dependencies are the stages a Pipeline drives.
type Dependencies struct {
	Queue    ports.TaskQueue
	Stager   ports.PackageStager
	Executor ports.TestExecutor
	Archiver ports.ResultArchiver
	Uploader ports.ResultUploader
	Notifier ports.Notifier
	Metrics  ports.MetricsRecorder
}

// Pipeline takes a single task off the queue and carries it through staging,
// execution, result handling and notification.
type Pipeline struct {
	deps         Dependencies
	instanceID   string
	isProcessing atomic.Bool
}

func NewPipeline(deps Dependencies, instanceID string) *Pipeline {
	return &Pipeline{
		deps:       deps,
		instanceID: instanceID,
	}
}

func (p *Pipeline) IsProcessing() bool {
	return p.isProcessing.Load()
}

// run holds the per-run resources that must be released on every path.
type run struct {
	outcome    *models.Outcome
	log        zerolog.Logger
	metrics    models.MetricContext
	stagingDir string
	resultsDir string
	archive    string
}

// Run processes at most one task. An empty queue is not an error. Any other
// failure is logged, counted as an exception and returned.
func (p *Pipeline) Run(ctx context.Context) (*models.Outcome, error) {
	if !p.isProcessing.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("task already in progress")
	}
	defer p.isProcessing.Store(false)

	runID := uuid.New().String()
	r := &run{
		outcome: &models.Outcome{RunID: runID, State: models.StateIdle},
		log:     logger.WithComponent("pipeline").With().Str("run_id", runID).Logger(),
		metrics: models.MetricContext{InstanceID: p.instanceID, AppName: models.UnknownApp},
	}

	ctx, span := telemetry.StartSpan(ctx, "pipeline.run", attribute.String("run_id", runID))

	err := p.process(ctx, r)
	p.cleanup(r)

	if err != nil && errors.Is(err, errorutil.ErrEmptyQueue) {
		r.log.Info().Msg(err.Error())
		r.outcome.State = models.StateIdle
		telemetry.EndSpan(span, nil)
		return r.outcome, nil
	}
	telemetry.EndSpan(span, err)

	if err != nil {
		p.fail(ctx, r, err)
		return r.outcome, err
	}

	r.outcome.State = models.StateDone
	return r.outcome, nil
}

func (p *Pipeline) process(ctx context.Context, r *run) error {
	task, err := p.retrieve(ctx)
	if err != nil {
		return err
	}
	r.outcome.Task = task
	r.outcome.State = models.StateTaskReceived
	r.metrics.AppName = task.AppName()
	r.log = r.log.With().Str("app_name", task.AppName()).Str("test_name", task.Test).Logger()
	r.log.Info().Str("location", task.Location).Msg("STARTED")

	if err := p.stage(ctx, r, task); err != nil {
		return err
	}
	p.deps.Metrics.PutExecuted(ctx, r.metrics)

	result, err := p.execute(ctx, r, task)
	p.removeStaging(r)
	if err != nil {
		return err
	}
	r.outcome.State = models.StateExecuted
	r.outcome.ExitCode = result.ExitCode
	r.resultsDir = result.ResultsDirectory
	r.log.Info().Int("exit_code", result.ExitCode).Msg("FINISHED")

	if result.Succeeded() {
		r.log.Info().Msg("SUCCESSFUL")
		p.deps.Metrics.PutSuccessful(ctx, r.metrics)
		p.removeResults(r)
		r.outcome.State = models.StateResultDiscarded
		return nil
	}

	r.log.Info().Msg("FAILED")
	p.deps.Metrics.PutFailed(ctx, r.metrics)
	return p.handleFailure(ctx, r, task)
}

func (p *Pipeline) retrieve(ctx context.Context) (task *models.Task, err error) {
	ctx, span := telemetry.StartSpan(ctx, "queue.retrieve")
	defer func() {
		if errors.Is(err, errorutil.ErrEmptyQueue) {
			telemetry.EndSpan(span, nil)
			return
		}
		telemetry.EndSpan(span, err)
	}()

	return p.deps.Queue.RetrieveTask(ctx)
}

func (p *Pipeline) stage(ctx context.Context, r *run, task *models.Task) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "package.stage", attribute.String("location", task.Location))
	defer func() { telemetry.EndSpan(span, err) }()

	dir, err := p.deps.Stager.RetrieveTestFiles(ctx, task.Location)
	if err != nil {
		return err
	}
	r.stagingDir = dir
	r.outcome.State = models.StateStaged
	r.log.Debug().Str("staging_dir", dir).Msg("Test package staged")
	return nil
}

func (p *Pipeline) execute(ctx context.Context, r *run, task *models.Task) (result *models.ExecutionResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "test.execute", attribute.String("test_name", task.Test))
	defer func() {
		if result != nil {
			span.SetAttributes(attribute.Int("exit_code", result.ExitCode))
		}
		telemetry.EndSpan(span, err)
	}()

	if err := p.deps.Executor.Open(r.stagingDir); err != nil {
		return nil, err
	}
	return p.deps.Executor.Execute(ctx, task.Test)
}

func (p *Pipeline) handleFailure(ctx context.Context, r *run, task *models.Task) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "result.publish")
	defer func() { telemetry.EndSpan(span, err) }()

	archive, err := p.deps.Archiver.ArchiveTestResult(task.SourceSafeName(), r.resultsDir)
	if err != nil {
		return err
	}
	r.archive = archive.ArchivePath
	r.outcome.State = models.StateResultArchived
	r.log.Debug().Str("archive", archive.ArchivePath).Msg("Test result archived")

	locator, err := p.deps.Uploader.UploadTestResult(ctx, archive)
	p.removeArchive(r)
	if err != nil {
		return err
	}
	r.outcome.State = models.StateResultUploaded
	r.outcome.Locator = locator

	if locator != "" && task.WantsNotifications() {
		p.deps.Notifier.Notify(ctx, task, locator)
		r.outcome.State = models.StateNotified
	}

	p.removeResults(r)
	return nil
}

func (p *Pipeline) fail(ctx context.Context, r *run, err error) {
	r.outcome.State = models.StateErrored
	r.log.Info().Msg("EXCEPTION")
	p.deps.Metrics.PutException(ctx, r.metrics)

	errorutil.HandleError(r.log, err, "Test run failed")
}

// cleanup releases whatever the run still holds. Removal errors are logged
// and never replace the run's own error.
func (p *Pipeline) cleanup(r *run) {
	p.removeStaging(r)
	p.removeArchive(r)
	p.removeResults(r)
}

func (p *Pipeline) removeStaging(r *run) {
	if r.stagingDir == "" {
		return
	}
	if err := p.deps.Stager.RemoveTestFiles(r.stagingDir); err != nil {
		r.log.Debug().Err(err).Str("dir", r.stagingDir).Msg("Failed to remove staging directory")
	}
	r.stagingDir = ""
}

func (p *Pipeline) removeResults(r *run) {
	if r.resultsDir == "" {
		return
	}
	if err := p.deps.Archiver.RemoveTestResult(r.resultsDir); err != nil {
		r.log.Debug().Err(err).Str("dir", r.resultsDir).Msg("Failed to remove results directory")
	}
	r.resultsDir = ""
}

func (p *Pipeline) removeArchive(r *run) {
	if r.archive == "" {
		return
	}
	if err := p.deps.Archiver.RemoveTestResult(r.archive); err != nil {
		r.log.Debug().Err(err).Str("path", r.archive).Msg("Failed to remove result archive")
	}
	r.archive = ""
}
