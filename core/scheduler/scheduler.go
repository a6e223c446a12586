package scheduler

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/homeplan/core/logger"
	coremetrics "github.com/kilianp07/homeplan/core/metrics"
	"github.com/kilianp07/homeplan/core/milp"
	"github.com/kilianp07/homeplan/core/storage"
)

// ErrHorizonMismatch is returned when tariff and load sequences differ in length.
var ErrHorizonMismatch = errors.New("scheduler: tariff and load lengths differ")

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l logger.Logger) Option { return func(s *Scheduler) { s.log = l } }

// WithMetrics records a SolveEvent to sink after every solve.
func WithMetrics(sink coremetrics.MetricsSink) Option { return func(s *Scheduler) { s.sink = sink } }

// WithName names the underlying problem.
func WithName(name string) Option { return func(s *Scheduler) { s.name = name } }

// WithSimultaneousModes lets a device charge and discharge in the same
// timestep. Without it every device gets C_t + D_t <= 1.
func WithSimultaneousModes() Option { return func(s *Scheduler) { s.exclusive = false } }

// Scheduler builds a single cost-minimisation problem over a set of storage
// devices and extracts their schedules once solved.
type Scheduler struct {
	name            string
	devices         []*storage.Device
	tariffRates     []float64
	elecUsage       []float64
	netMeteringRate float64
	exclusive       bool

	problem  *milp.Problem
	solution map[string]float64
	runID    string
	nodes    int

	log  logger.Logger
	sink coremetrics.MetricsSink
}

// New registers every device, in order, and assembles the objective and
// constraint pool. netMeteringDepreciation is the fraction of the tariff that
// is not credited for exported energy.
func New(devices []*storage.Device, tariffRates, elecUsage []float64, netMeteringDepreciation float64, opts ...Option) (*Scheduler, error) {
	if len(tariffRates) != len(elecUsage) {
		return nil, fmt.Errorf("%w: %d tariff rates, %d load values", ErrHorizonMismatch, len(tariffRates), len(elecUsage))
	}
	s := &Scheduler{
		name:            "DER_Solver",
		devices:         devices,
		tariffRates:     tariffRates,
		elecUsage:       elecUsage,
		netMeteringRate: 1 - netMeteringDepreciation,
		exclusive:       true,
		solution:        map[string]float64{},
		log:             logger.NopLogger{},
		sink:            coremetrics.NopSink{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.problem = milp.NewProblem(s.name)

	for i, d := range devices {
		if err := d.Register(s, i); err != nil {
			return nil, fmt.Errorf("register device %d: %w", i, err)
		}
	}

	objective := milp.NewExpr(s.BaselineCost())
	for _, d := range devices {
		objective = objective.Plus(d.Cost())
	}
	s.problem.SetObjective(objective)

	for _, d := range devices {
		for _, c := range d.Constraints() {
			s.problem.AddConstraint(c)
		}
	}
	s.log.Debugw("scheduler built", map[string]any{
		"devices":     len(devices),
		"horizon":     s.Horizon(),
		"variables":   len(s.problem.Variables()),
		"constraints": len(s.problem.Constraints()),
		"exclusive":   s.exclusive,
	})
	return s, nil
}

// Horizon implements storage.Context.
func (s *Scheduler) Horizon() int { return len(s.tariffRates) }

// TariffRates implements storage.Context.
func (s *Scheduler) TariffRates() []float64 { return s.tariffRates }

// ElecUsage returns the baseline load.
func (s *Scheduler) ElecUsage() []float64 { return s.elecUsage }

// NetMeteringRate implements storage.Context.
func (s *Scheduler) NetMeteringRate() float64 { return s.netMeteringRate }

// Problem implements storage.Context.
func (s *Scheduler) Problem() *milp.Problem { return s.problem }

// ExclusiveModes implements storage.Context.
func (s *Scheduler) ExclusiveModes() bool { return s.exclusive }

// Solution implements storage.Context. It returns a copy of the variable
// values of the last solve, empty until the first solve.
func (s *Scheduler) Solution() map[string]float64 { return maps.Clone(s.solution) }

// Devices returns the registered devices in registration order.
func (s *Scheduler) Devices() []*storage.Device { return s.devices }

// BaselineCost is the cost of the uncontrollable load.
func (s *Scheduler) BaselineCost() float64 {
	var total float64
	for t, r := range s.tariffRates {
		total += r * s.elecUsage[t]
	}
	return total
}

// Solve runs the default branch-and-bound solver configured with opts.
func (s *Scheduler) Solve(ctx context.Context, opts ...milp.Option) *Scheduler {
	all := append([]milp.Option{milp.WithLogger(s.log)}, opts...)
	return s.SolveWith(ctx, milp.NewBranchAndBound(all...))
}

// SolveWith runs solver on the problem and replaces the whole solution map:
// every variable gets its value when optimal and NaN otherwise.
func (s *Scheduler) SolveWith(ctx context.Context, solver milp.Solver) *Scheduler {
	start := time.Now()
	res := s.problem.Solve(ctx, solver)
	elapsed := time.Since(start)

	solution := make(map[string]float64, len(s.problem.Variables()))
	for _, v := range s.problem.Variables() {
		solution[v.Name()] = s.problem.Value(v)
	}
	s.solution = solution
	s.runID = uuid.NewString()
	s.nodes = res.Nodes

	if res.Status == milp.Optimal {
		s.log.Infof("solved %s in %s: cost %.4f", s.name, elapsed, s.FinalCost())
	} else {
		s.log.Warnf("solve of %s ended with status %s", s.name, res.Status)
	}
	ev := coremetrics.SolveEvent{
		RunID:        s.runID,
		Problem:      s.name,
		Status:       res.Status.String(),
		FinalCost:    s.FinalCost(),
		BaselineCost: s.BaselineCost(),
		Duration:     elapsed,
		Nodes:        res.Nodes,
		Devices:      len(s.devices),
		Horizon:      s.Horizon(),
		Time:         start,
	}
	if err := s.sink.RecordSolve(ev); err != nil {
		s.log.Errorf("record solve: %v", err)
	}
	return s
}

// Status returns the status of the last solve.
func (s *Scheduler) Status() milp.Status { return s.problem.Status() }

// FinalCost is the objective at the current solution. It is NaN unless the
// last solve was optimal.
func (s *Scheduler) FinalCost() float64 {
	if s.problem.Status() != milp.Optimal {
		return math.NaN()
	}
	return s.problem.ObjectiveValue()
}

// RunID identifies the last solve. It is empty before the first solve.
func (s *Scheduler) RunID() string { return s.runID }

// Nodes is the number of relaxations solved by the last solve.
func (s *Scheduler) Nodes() int { return s.nodes }

// Schedules returns the charge/discharge schedule of every device.
func (s *Scheduler) Schedules() ([][]float64, error) {
	out := make([][]float64, len(s.devices))
	for i, d := range s.devices {
		sched, err := d.ChargeDischargeSchedule()
		if err != nil {
			return nil, err
		}
		out[i] = sched
	}
	return out, nil
}

// Plan returns the solved plan aligned on start with timesteps of length step.
func (s *Scheduler) Plan(start time.Time, step time.Duration) (coremetrics.PlanEvent, error) {
	plan := coremetrics.PlanEvent{
		RunID:       s.runID,
		Start:       start,
		Step:        step,
		Status:      s.Status().String(),
		FinalCost:   s.FinalCost(),
		TariffRates: s.tariffRates,
		Schedules:   make([]coremetrics.DeviceSchedule, len(s.devices)),
	}
	for i, d := range s.devices {
		values, err := d.ChargeDischargeSchedule()
		if err != nil {
			return plan, err
		}
		levels, err := d.ChargeLevels()
		if err != nil {
			return plan, err
		}
		plan.Schedules[i] = coremetrics.DeviceSchedule{Label: d.Label, Kind: d.Kind.String(), Values: values, Levels: levels}
	}
	return plan, nil
}
