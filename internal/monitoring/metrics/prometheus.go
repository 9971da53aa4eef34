package metrics

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const pushJob = "zemog_worker"

// PrometheusSink keeps one counter per metric, labelled by both dimensions,
// and pushes the registry to a Pushgateway after every write. A data point
// without a dimension leaves that label empty.
type PrometheusSink struct {
	registry *prometheus.Registry
	pusher   *push.Pusher

	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
}

func NewPrometheusSink(gatewayURL string) *PrometheusSink {
	registry := prometheus.NewRegistry()
	return &PrometheusSink{
		registry: registry,
		pusher:   push.New(gatewayURL, pushJob).Gatherer(registry),
		counters: make(map[string]*prometheus.CounterVec),
	}
}

func (s *PrometheusSink) Put(ctx context.Context, namespace string, data []Datum) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range data {
		counter, err := s.counter(namespace, d.Name)
		if err != nil {
			return err
		}
		counter.WithLabelValues(d.Dimensions[DimensionInstanceID], d.Dimensions[DimensionAppName]).Add(d.Value)
	}

	if err := s.pusher.AddContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}

func (s *PrometheusSink) counter(namespace, name string) (*prometheus.CounterVec, error) {
	if c, ok := s.counters[name]; ok {
		return c, nil
	}

	c := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: snakeCase(namespace),
			Name:      snakeCase(name) + "_total",
			Help:      "Zemog worker counter " + name,
		},
		[]string{"instance_id", "application_name"},
	)
	if err := s.registry.Register(c); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", name, err)
	}
	s.counters[name] = c
	return c, nil
}

// snakeCase turns "ExecutedTests" into "executed_tests".
func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
