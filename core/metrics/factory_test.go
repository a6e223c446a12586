package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/homeplan/core/factory"
)

func TestNewMetricsSinkWithoutConfig(t *testing.T) {
	s, err := NewMetricsSink(nil)
	require.NoError(t, err)
	assert.IsType(t, NopSink{}, s)
}

func TestNewMetricsSinkNop(t *testing.T) {
	assert.Contains(t, SinkTypes(), "nop")

	s, err := NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}})
	require.NoError(t, err)
	assert.IsType(t, NopSink{}, s)

	s, err = NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "nop", Conf: map[string]any{"ignored": true}}})
	require.NoError(t, err)
	multi, ok := s.(*MultiSink)
	require.True(t, ok, "got %T", s)
	assert.Len(t, multi.Sinks, 2)
	assert.NoError(t, multi.RecordSolve(SolveEvent{Status: "Optimal"}))
}

func TestNewMetricsSinkUnknownType(t *testing.T) {
	_, err := NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "statsd"}})
	require.Error(t, err)
	assert.ErrorContains(t, err, "sink 1")
	assert.ErrorContains(t, err, `"statsd"`)
	assert.ErrorContains(t, err, "nop")
}

func TestRegisterMetricsSinkRejectsDuplicates(t *testing.T) {
	assert.Error(t, RegisterMetricsSink("nop", func(map[string]any) (MetricsSink, error) {
		return NopSink{}, nil
	}))
}
