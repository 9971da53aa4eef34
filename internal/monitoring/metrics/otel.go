package metrics

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelSink records data points on OpenTelemetry counters. Export happens on
// the meter provider's schedule and on telemetry shutdown.
type OTelSink struct {
	meter metric.Meter

	mu       sync.Mutex
	counters map[string]metric.Float64Counter
}

func NewOTelSink(meter metric.Meter) *OTelSink {
	return &OTelSink{meter: meter, counters: make(map[string]metric.Float64Counter)}
}

func (s *OTelSink) Put(ctx context.Context, namespace string, data []Datum) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range data {
		key := namespace + "." + d.Name
		counter, ok := s.counters[key]
		if !ok {
			var err error
			counter, err = s.meter.Float64Counter(key, metric.WithUnit("{test}"))
			if err != nil {
				return fmt.Errorf("failed to create counter %s: %w", key, err)
			}
			s.counters[key] = counter
		}

		attrs := make([]attribute.KeyValue, 0, len(d.Dimensions))
		for k, v := range d.Dimensions {
			attrs = append(attrs, attribute.String(k, v))
		}
		counter.Add(ctx, d.Value, metric.WithAttributes(attrs...))
	}
	return nil
}
