// Package metrics defines the events emitted around schedule optimisation and
// the sink interfaces that record them. Sinks like PromSink and InfluxSink
// live in infra/metrics and can be combined with NewMultiSink. NewMetricsSink
// returns a MultiSink automatically when several sinks are configured.
package metrics
