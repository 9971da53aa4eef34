package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/theblitlabs/zemog-worker/internal/core/models"
	"github.com/theblitlabs/zemog-worker/internal/mocks"
	"github.com/theblitlabs/zemog-worker/internal/utils/errorutil"
	"github.com/theblitlabs/zemog-worker/pkg/logger"
)

func init() {
	logger.InitWithMode(logger.LogModeTest)
}

const (
	stagingDir = "/tmp/connectionTest-zip-1700000000000"
	resultsDir = "/tmp/connectionTest-123"
	archiveZip = "/tmp/connectionTest-zip.zip"
	locator    = "tests/result/connectionTest-zip-2024-01-02T03-04-05.000Z"
)

type fixture struct {
	queue    *mocks.MockTaskQueue
	stager   *mocks.MockPackageStager
	executor *mocks.MockTestExecutor
	archiver *mocks.MockResultArchiver
	uploader *mocks.MockResultUploader
	notifier *mocks.MockNotifier
	metrics  *mocks.MockMetricsRecorder
	pipeline *Pipeline
}

func newFixture() *fixture {
	f := &fixture{
		queue:    new(mocks.MockTaskQueue),
		stager:   new(mocks.MockPackageStager),
		executor: new(mocks.MockTestExecutor),
		archiver: new(mocks.MockResultArchiver),
		uploader: new(mocks.MockResultUploader),
		notifier: new(mocks.MockNotifier),
		metrics:  new(mocks.MockMetricsRecorder),
	}
	f.pipeline = NewPipeline(Dependencies{
		Queue:    f.queue,
		Stager:   f.stager,
		Executor: f.executor,
		Archiver: f.archiver,
		Uploader: f.uploader,
		Notifier: f.notifier,
		Metrics:  f.metrics,
	}, "i-0abc")
	return f
}

func (f *fixture) assertExpectations(t *testing.T) {
	t.Helper()
	f.queue.AssertExpectations(t)
	f.stager.AssertExpectations(t)
	f.executor.AssertExpectations(t)
	f.archiver.AssertExpectations(t)
	f.uploader.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
	f.metrics.AssertExpectations(t)
}

func testTask(notifications ...string) *models.Task {
	return &models.Task{
		Test:          "connectionTest",
		App:           "budget-direct",
		Location:      "s3://zemog/tests/connectionTest.zip",
		Notifications: notifications,
	}
}

var metricContext = models.MetricContext{InstanceID: "i-0abc", AppName: "budget-direct"}

func (f *fixture) expectStagedRun(task *models.Task, result *models.ExecutionResult) {
	f.queue.On("RetrieveTask", mock.Anything).Return(task, nil).Once()
	f.stager.On("RetrieveTestFiles", mock.Anything, task.Location).Return(stagingDir, nil).Once()
	f.metrics.On("PutExecuted", mock.Anything, metricContext).Once()
	f.executor.On("Open", stagingDir).Return(nil).Once()
	f.executor.On("Execute", mock.Anything, task.Test).Return(result, nil).Once()
	f.stager.On("RemoveTestFiles", stagingDir).Return(nil).Once()
}

func TestPipelineSuccessfulRun(t *testing.T) {
	f := newFixture()
	task := testTask("infra")
	f.expectStagedRun(task, &models.ExecutionResult{ExitCode: 0, ResultsDirectory: resultsDir})
	f.metrics.On("PutSuccessful", mock.Anything, metricContext).Once()
	f.archiver.On("RemoveTestResult", resultsDir).Return(nil).Once()

	outcome, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StateDone, outcome.State)
	assert.Equal(t, 0, outcome.ExitCode)
	assert.Empty(t, outcome.Locator)
	assert.NotEmpty(t, outcome.RunID)
	assert.Same(t, task, outcome.Task)

	f.assertExpectations(t)
	f.archiver.AssertNotCalled(t, "ArchiveTestResult", mock.Anything, mock.Anything)
	f.uploader.AssertNotCalled(t, "UploadTestResult", mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
	f.metrics.AssertNotCalled(t, "PutFailed", mock.Anything, mock.Anything)
	f.metrics.AssertNotCalled(t, "PutException", mock.Anything, mock.Anything)
	assert.False(t, f.pipeline.IsProcessing())
}

func TestPipelineFailedRunIsPublished(t *testing.T) {
	f := newFixture()
	task := testTask("infra")
	archive := &models.ResultArchive{Name: "connectionTest-zip", SourceDirectory: resultsDir, ArchivePath: archiveZip}

	f.expectStagedRun(task, &models.ExecutionResult{ExitCode: 1, ResultsDirectory: resultsDir})
	f.metrics.On("PutFailed", mock.Anything, metricContext).Once()
	f.archiver.On("ArchiveTestResult", "connectionTest-zip", resultsDir).Return(archive, nil).Once()
	f.uploader.On("UploadTestResult", mock.Anything, archive).Return(locator, nil).Once()
	f.archiver.On("RemoveTestResult", archiveZip).Return(nil).Once()
	f.notifier.On("Notify", mock.Anything, task, locator).Once()
	f.archiver.On("RemoveTestResult", resultsDir).Return(nil).Once()

	outcome, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StateDone, outcome.State)
	assert.Equal(t, 1, outcome.ExitCode)
	assert.Equal(t, locator, outcome.Locator)

	f.assertExpectations(t)
	f.metrics.AssertNotCalled(t, "PutSuccessful", mock.Anything, mock.Anything)
	f.metrics.AssertNotCalled(t, "PutException", mock.Anything, mock.Anything)
}

func TestPipelineSkipsNotificationWithoutCodes(t *testing.T) {
	f := newFixture()
	task := testTask()
	archive := &models.ResultArchive{Name: "connectionTest-zip", SourceDirectory: resultsDir, ArchivePath: archiveZip}

	f.expectStagedRun(task, &models.ExecutionResult{ExitCode: 2, ResultsDirectory: resultsDir})
	f.metrics.On("PutFailed", mock.Anything, metricContext).Once()
	f.archiver.On("ArchiveTestResult", "connectionTest-zip", resultsDir).Return(archive, nil).Once()
	f.uploader.On("UploadTestResult", mock.Anything, archive).Return(locator, nil).Once()
	f.archiver.On("RemoveTestResult", mock.Anything).Return(nil)

	_, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)

	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
}

func TestPipelineSkipsNotificationWithoutLocator(t *testing.T) {
	f := newFixture()
	task := testTask("infra")
	archive := &models.ResultArchive{Name: "connectionTest-zip", SourceDirectory: resultsDir, ArchivePath: archiveZip}

	f.expectStagedRun(task, &models.ExecutionResult{ExitCode: 1, ResultsDirectory: resultsDir})
	f.metrics.On("PutFailed", mock.Anything, metricContext).Once()
	f.archiver.On("ArchiveTestResult", "connectionTest-zip", resultsDir).Return(archive, nil).Once()
	f.uploader.On("UploadTestResult", mock.Anything, archive).Return("", nil).Once()
	f.archiver.On("RemoveTestResult", mock.Anything).Return(nil)

	outcome, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, outcome.Locator)

	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
}

func TestPipelineEmptyQueue(t *testing.T) {
	f := newFixture()
	f.queue.On("RetrieveTask", mock.Anything).
		Return(nil, errorutil.New(errorutil.KindEmptyQueue, "No messages to retrieve")).Once()

	outcome, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, outcome.State)
	assert.Nil(t, outcome.Task)

	f.assertExpectations(t)
	f.metrics.AssertNotCalled(t, "PutException", mock.Anything, mock.Anything)
	f.stager.AssertNotCalled(t, "RetrieveTestFiles", mock.Anything, mock.Anything)
}

func TestPipelineMalformedMessage(t *testing.T) {
	f := newFixture()
	parseErr := errorutil.New(errorutil.KindJSONParse, "failed to parse queue message").WithDetail("{oops")
	f.queue.On("RetrieveTask", mock.Anything).Return(nil, parseErr).Once()
	f.metrics.On("PutException", mock.Anything,
		models.MetricContext{InstanceID: "i-0abc", AppName: models.UnknownApp}).Once()

	outcome, err := f.pipeline.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errorutil.ErrJSONParse)
	assert.Equal(t, models.StateErrored, outcome.State)

	f.assertExpectations(t)
}

func TestPipelineStagingFailure(t *testing.T) {
	f := newFixture()
	task := testTask("infra")
	notFound := errorutil.New(errorutil.KindTestNotFound, "Test package not found in S3 bucket "+task.Location)

	f.queue.On("RetrieveTask", mock.Anything).Return(task, nil).Once()
	f.stager.On("RetrieveTestFiles", mock.Anything, task.Location).Return("", notFound).Once()
	f.metrics.On("PutException", mock.Anything, metricContext).Once()

	outcome, err := f.pipeline.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errorutil.ErrTestNotFound)
	assert.Equal(t, models.StateErrored, outcome.State)

	f.assertExpectations(t)
	f.metrics.AssertNotCalled(t, "PutExecuted", mock.Anything, mock.Anything)
	f.stager.AssertNotCalled(t, "RemoveTestFiles", mock.Anything)
	f.executor.AssertNotCalled(t, "Open", mock.Anything)
}

func TestPipelineExecutionErrorRemovesStaging(t *testing.T) {
	f := newFixture()
	task := testTask("infra")
	fault := errorutil.New(errorutil.KindInternalTestExecution, "runner crashed").WithDetail("RejectedExecutionException")

	f.queue.On("RetrieveTask", mock.Anything).Return(task, nil).Once()
	f.stager.On("RetrieveTestFiles", mock.Anything, task.Location).Return(stagingDir, nil).Once()
	f.metrics.On("PutExecuted", mock.Anything, metricContext).Once()
	f.executor.On("Open", stagingDir).Return(nil).Once()
	f.executor.On("Execute", mock.Anything, task.Test).Return(nil, fault).Once()
	f.stager.On("RemoveTestFiles", stagingDir).Return(nil).Once()
	f.metrics.On("PutException", mock.Anything, metricContext).Once()

	outcome, err := f.pipeline.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errorutil.ErrInternalTestExecution)
	assert.Equal(t, models.StateErrored, outcome.State)

	f.assertExpectations(t)
	f.archiver.AssertNotCalled(t, "ArchiveTestResult", mock.Anything, mock.Anything)
}

func TestPipelineUnknownTestRemovesStaging(t *testing.T) {
	f := newFixture()
	task := testTask()
	missing := errorutil.Newf(errorutil.KindTestNotFound, "There is no info about %q in zemog.json", task.Test)

	f.queue.On("RetrieveTask", mock.Anything).Return(task, nil).Once()
	f.stager.On("RetrieveTestFiles", mock.Anything, task.Location).Return(stagingDir, nil).Once()
	f.metrics.On("PutExecuted", mock.Anything, metricContext).Once()
	f.executor.On("Open", stagingDir).Return(nil).Once()
	f.executor.On("Execute", mock.Anything, task.Test).Return(nil, missing).Once()
	f.stager.On("RemoveTestFiles", stagingDir).Return(nil).Once()
	f.metrics.On("PutException", mock.Anything, metricContext).Once()

	_, err := f.pipeline.Run(context.Background())
	assert.ErrorIs(t, err, errorutil.ErrTestNotFound)
	f.assertExpectations(t)
}

func TestPipelineUploadFailureStillCleansUp(t *testing.T) {
	f := newFixture()
	task := testTask("infra")
	archive := &models.ResultArchive{Name: "connectionTest-zip", SourceDirectory: resultsDir, ArchivePath: archiveZip}
	uploadErr := errorutil.New(errorutil.KindTestResultNotUploaded, "Test result was not uploaded")

	f.expectStagedRun(task, &models.ExecutionResult{ExitCode: 1, ResultsDirectory: resultsDir})
	f.metrics.On("PutFailed", mock.Anything, metricContext).Once()
	f.archiver.On("ArchiveTestResult", "connectionTest-zip", resultsDir).Return(archive, nil).Once()
	f.uploader.On("UploadTestResult", mock.Anything, archive).Return("", uploadErr).Once()
	f.archiver.On("RemoveTestResult", archiveZip).Return(nil).Once()
	f.archiver.On("RemoveTestResult", resultsDir).Return(nil).Once()
	f.metrics.On("PutException", mock.Anything, metricContext).Once()

	outcome, err := f.pipeline.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errorutil.ErrTestResultNotUploaded)
	assert.Equal(t, models.StateErrored, outcome.State)

	f.assertExpectations(t)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
}

func TestPipelineCleanupErrorDoesNotMaskResult(t *testing.T) {
	f := newFixture()
	task := testTask()
	f.queue.On("RetrieveTask", mock.Anything).Return(task, nil).Once()
	f.stager.On("RetrieveTestFiles", mock.Anything, task.Location).Return(stagingDir, nil).Once()
	f.metrics.On("PutExecuted", mock.Anything, metricContext).Once()
	f.executor.On("Open", stagingDir).Return(nil).Once()
	f.executor.On("Execute", mock.Anything, task.Test).
		Return(&models.ExecutionResult{ExitCode: 0, ResultsDirectory: resultsDir}, nil).Once()
	f.stager.On("RemoveTestFiles", stagingDir).
		Return(errorutil.New(errorutil.KindFileOperation, "can't remove")).Once()
	f.metrics.On("PutSuccessful", mock.Anything, metricContext).Once()
	f.archiver.On("RemoveTestResult", resultsDir).
		Return(errorutil.New(errorutil.KindFileOperation, "can't remove")).Once()

	outcome, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StateDone, outcome.State)
	f.assertExpectations(t)
}

func TestRunStandalone(t *testing.T) {
	executor := new(mocks.MockTestExecutor)
	executor.On("Open", "/work/pkg").Return(nil).Once()
	executor.On("Execute", mock.Anything, "connectionTest").
		Return(&models.ExecutionResult{ExitCode: 3, ResultsDirectory: resultsDir}, nil).Once()

	result, err := RunStandalone(context.Background(), executor, "/work/pkg", "connectionTest")
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
	assert.False(t, result.Succeeded())
	executor.AssertExpectations(t)
}

func TestRunStandaloneOpenFailure(t *testing.T) {
	executor := new(mocks.MockTestExecutor)
	executor.On("Open", "/work/pkg").
		Return(errorutil.New(errorutil.KindFileOperation, "can't read zemog.json")).Once()

	_, err := RunStandalone(context.Background(), executor, "/work/pkg", "connectionTest")
	assert.ErrorIs(t, err, errorutil.ErrFileOperation)
	executor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}
