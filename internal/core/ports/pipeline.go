package ports

import (
	"context"

	"github.com/theblitlabs/zemog-worker/internal/core/models"
)

type TaskQueue interface {
	RetrieveTask(ctx context.Context) (*models.Task, error)
}

type PackageStager interface {
	RetrieveTestFiles(ctx context.Context, location string) (string, error)
	RemoveTestFiles(dir string) error
}

// TestExecutor runs one named test from a staged package. A non-zero exit code
// is reported through the result, not as an error.
type TestExecutor interface {
	Open(path string) error
	Execute(ctx context.Context, testName string) (*models.ExecutionResult, error)
}

type ResultArchiver interface {
	ArchiveTestResult(name, resultsDir string) (*models.ResultArchive, error)
	RemoveTestResult(dir string) error
}

// ResultUploader returns the namespace locator of the uploaded results, or an
// empty locator when there was nothing to upload.
type ResultUploader interface {
	UploadTestResult(ctx context.Context, archive *models.ResultArchive) (string, error)
}

type Notifier interface {
	Notify(ctx context.Context, task *models.Task, locator string)
}

type MetricsRecorder interface {
	PutExecuted(ctx context.Context, mc models.MetricContext)
	PutSuccessful(ctx context.Context, mc models.MetricContext)
	PutFailed(ctx context.Context, mc models.MetricContext)
	PutException(ctx context.Context, mc models.MetricContext)
}
