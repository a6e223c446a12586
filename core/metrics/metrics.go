package metrics

import "time"

// SolveEvent summarises one solve of a scheduler.
type SolveEvent struct {
	RunID        string
	Problem      string
	Status       string
	FinalCost    float64
	BaselineCost float64
	Duration     time.Duration
	Nodes        int
	Devices      int
	Horizon      int
	Time         time.Time
}

// MetricsSink records solve summaries for observability purposes.
type MetricsSink interface {
	RecordSolve(ev SolveEvent) error
}

// DeviceSchedule is the solved plan of one device.
type DeviceSchedule struct {
	Label string
	Kind  string
	// Values holds charging(+1), discharging(-1) or idle(0) per timestep.
	Values []float64
	// Levels holds the state of charge for prefix lengths 0..T.
	Levels []float64
}

// PlanEvent is a complete solved plan aligned on wall-clock time.
type PlanEvent struct {
	RunID       string
	Start       time.Time
	Step        time.Duration
	Status      string
	FinalCost   float64
	TariffRates []float64
	Schedules   []DeviceSchedule
}

// SlotTime returns the start of timestep t.
func (p PlanEvent) SlotTime(t int) time.Time {
	return p.Start.Add(time.Duration(t) * p.Step)
}

// PlanRecorder records solved plans.
type PlanRecorder interface {
	RecordPlan(ev PlanEvent) error
}

// NopSink implements MetricsSink and PlanRecorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordSolve(SolveEvent) error { return nil }

func (NopSink) RecordPlan(PlanEvent) error { return nil }
