package metrics

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/homeplan/core/metrics"
)

// PromSink records solve summaries in Prometheus metrics.
type PromSink struct {
	solves   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	cost     *prometheus.GaugeVec
	nodes    *prometheus.GaugeVec
}

// NewPromSink registers solve metrics on the default Prometheus registerer.
func NewPromSink() (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	solves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_solves_total",
		Help: "Total number of schedule solves by outcome",
	}, []string{"problem", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "schedule_solve_duration_seconds",
		Help:    "Wall time spent in the solver",
		Buckets: prometheus.DefBuckets,
	}, []string{"problem"})
	cost := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "schedule_final_cost",
		Help: "Objective value of the last optimal solve",
	}, []string{"problem"})
	nodes := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "schedule_solver_nodes",
		Help: "Relaxations solved by the last solve",
	}, []string{"problem"})

	var err error
	if solves, err = register(reg, solves); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	if cost, err = register(reg, cost); err != nil {
		return nil, err
	}
	if nodes, err = register(reg, nodes); err != nil {
		return nil, err
	}
	return &PromSink{solves: solves, duration: duration, cost: cost, nodes: nodes}, nil
}

// register returns the already registered collector when c was registered
// before, so several sinks can share a registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordSolve updates the counters and gauges for one solve.
func (s *PromSink) RecordSolve(ev coremetrics.SolveEvent) error {
	s.solves.WithLabelValues(ev.Problem, ev.Status).Inc()
	s.duration.WithLabelValues(ev.Problem).Observe(ev.Duration.Seconds())
	s.nodes.WithLabelValues(ev.Problem).Set(float64(ev.Nodes))
	if !math.IsNaN(ev.FinalCost) {
		s.cost.WithLabelValues(ev.Problem).Set(ev.FinalCost)
	}
	return nil
}
