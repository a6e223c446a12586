package metrics

import (
	"fmt"

	"github.com/kilianp07/homeplan/core/factory"
)

// sinkTypes holds the backends selectable from the metrics.sinks setting.
// Backends outside this package register themselves from init.
var sinkTypes = factory.NewRegistry[MetricsSink]()

func init() {
	_ = RegisterMetricsSink("nop", func(map[string]any) (MetricsSink, error) {
		return NopSink{}, nil
	})
}

// RegisterMetricsSink makes a sink backend selectable under name.
func RegisterMetricsSink(name string, f factory.Factory[MetricsSink]) error {
	return sinkTypes.Register(name, f)
}

// SinkTypes lists the registered backend names.
func SinkTypes() []string { return sinkTypes.Names() }

// NewMetricsSink builds the sink receiving solve and plan events. No entry
// yields a NopSink, one entry its own sink and several a MultiSink.
func NewMetricsSink(cfgs []factory.ModuleConfig) (MetricsSink, error) {
	built := make([]MetricsSink, 0, len(cfgs))
	for i, c := range cfgs {
		s, err := sinkTypes.Create(c)
		if err != nil {
			return nil, fmt.Errorf("sink %d: %w", i, err)
		}
		built = append(built, s)
	}
	switch len(built) {
	case 0:
		return NopSink{}, nil
	case 1:
		return built[0], nil
	}
	return NewMultiSink(built...), nil
}
