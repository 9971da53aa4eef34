package metrics

import (
	"context"

	"github.com/theblitlabs/zemog-worker/internal/core/models"
	"github.com/theblitlabs/zemog-worker/pkg/logger"
)

const (
	TestExecuted   = "ExecutedTests"
	TestFailed     = "FailedTests"
	TestSuccessful = "SuccessfulTests"
	TestException  = "TestExceptions"

	DimensionInstanceID = "InstanceId"
	DimensionAppName    = "ApplicationName"

	DefaultNamespace  = "Zemog"
	DefaultInstanceID = "Local"
)

// Context identifies the emitter of a metric.
type Context = models.MetricContext

// Datum is one data point. Dimensions is empty for the unscoped total.
type Datum struct {
	Name       string
	Value      float64
	Dimensions map[string]string
}

type Sink interface {
	Put(ctx context.Context, namespace string, data []Datum) error
}

// Metrics emits the worker's task counters. Every counter is written three
// times so it can be sliced as a total, per instance and per application.
// Sink failures are logged and otherwise ignored.
type Metrics struct {
	sink      Sink
	namespace string
}

func New(sink Sink, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Metrics{sink: sink, namespace: namespace}
}

func (m *Metrics) PutExecuted(ctx context.Context, mc Context) {
	m.Put(ctx, mc, TestExecuted, 1)
}

func (m *Metrics) PutFailed(ctx context.Context, mc Context) {
	m.Put(ctx, mc, TestFailed, 1)
}

func (m *Metrics) PutSuccessful(ctx context.Context, mc Context) {
	m.Put(ctx, mc, TestSuccessful, 1)
}

func (m *Metrics) PutException(ctx context.Context, mc Context) {
	m.Put(ctx, mc, TestException, 1)
}

func (m *Metrics) Put(ctx context.Context, mc Context, name string, value float64) {
	log := logger.WithComponent("metrics")

	if err := m.sink.Put(ctx, m.namespace, Data(mc, name, value)); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Can't send metric")
		return
	}
	log.Debug().Str("metric", name).Float64("value", value).Msg("Metric sent")
}

// Data expands one observation into its unscoped, per-instance and
// per-application data points.
func Data(mc Context, name string, value float64) []Datum {
	instanceID := mc.InstanceID
	if instanceID == "" {
		instanceID = DefaultInstanceID
	}
	appName := mc.AppName
	if appName == "" {
		appName = models.UnknownApp
	}

	return []Datum{
		{Name: name, Value: value},
		{Name: name, Value: value, Dimensions: map[string]string{DimensionInstanceID: instanceID}},
		{Name: name, Value: value, Dimensions: map[string]string{DimensionAppName: appName}},
	}
}

// NoopSink drops every data point.
type NoopSink struct{}

func (NoopSink) Put(context.Context, string, []Datum) error {
	return nil
}
