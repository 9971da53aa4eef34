package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/theblitlabs/zemog-worker/internal/core/models"
)

type MockTaskQueue struct {
	mock.Mock
}

func (m *MockTaskQueue) RetrieveTask(ctx context.Context) (*models.Task, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

type MockPackageStager struct {
	mock.Mock
}

func (m *MockPackageStager) RetrieveTestFiles(ctx context.Context, location string) (string, error) {
	args := m.Called(ctx, location)
	return args.String(0), args.Error(1)
}

func (m *MockPackageStager) RemoveTestFiles(dir string) error {
	args := m.Called(dir)
	return args.Error(0)
}

type MockTestExecutor struct {
	mock.Mock
}

func (m *MockTestExecutor) Open(path string) error {
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockTestExecutor) Execute(ctx context.Context, testName string) (*models.ExecutionResult, error) {
	args := m.Called(ctx, testName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ExecutionResult), args.Error(1)
}

type MockResultArchiver struct {
	mock.Mock
}

func (m *MockResultArchiver) ArchiveTestResult(name, resultsDir string) (*models.ResultArchive, error) {
	args := m.Called(name, resultsDir)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ResultArchive), args.Error(1)
}

func (m *MockResultArchiver) RemoveTestResult(dir string) error {
	args := m.Called(dir)
	return args.Error(0)
}

type MockResultUploader struct {
	mock.Mock
}

func (m *MockResultUploader) UploadTestResult(ctx context.Context, archive *models.ResultArchive) (string, error) {
	args := m.Called(ctx, archive)
	return args.String(0), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, task *models.Task, locator string) {
	m.Called(ctx, task, locator)
}

type MockMetricsRecorder struct {
	mock.Mock
}

func (m *MockMetricsRecorder) PutExecuted(ctx context.Context, mc models.MetricContext) {
	m.Called(ctx, mc)
}

func (m *MockMetricsRecorder) PutSuccessful(ctx context.Context, mc models.MetricContext) {
	m.Called(ctx, mc)
}

func (m *MockMetricsRecorder) PutFailed(ctx context.Context, mc models.MetricContext) {
	m.Called(ctx, mc)
}

func (m *MockMetricsRecorder) PutException(ctx context.Context, mc models.MetricContext) {
	m.Called(ctx, mc)
}
