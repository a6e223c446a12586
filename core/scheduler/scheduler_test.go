package scheduler

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/homeplan/core/metrics"
	"github.com/kilianp07/homeplan/core/milp"
	"github.com/kilianp07/homeplan/core/storage"
)

func scenarioOne(deg float64) (*Scheduler, *storage.Device, error) {
	bat := storage.NewBattery(storage.Params{Capacity: 2, ChargeRate: 1, InitialCharge: 0, DegradationCost: deg})
	s, err := New([]*storage.Device{bat}, []float64{0.1, 0.5, 0.5, 0.1}, []float64{10, 10, 10, 10}, 0)
	return s, bat, err
}

func TestScenarioChargeCheapDischargeExpensive(t *testing.T) {
	s, bat, err := scenarioOne(0)
	require.NoError(t, err)
	assert.Equal(t, milp.NotSolved, s.Status())

	s.Solve(context.Background())
	require.Equal(t, milp.Optimal, s.Status())
	assert.Equal(t, "Optimal", s.Status().String())

	sched, err := bat.ChargeDischargeSchedule()
	require.NoError(t, err)
	require.Len(t, sched, 4)
	assert.InDelta(t, 1, sched[0], 1e-6, "charge while cheap")
	assert.InDelta(t, -1, sched[1]+sched[2], 1e-6, "discharge once while expensive")
	assert.InDelta(t, 0, sched[3], 1e-6)
	for _, v := range sched {
		assert.Contains(t, []float64{-1, 0, 1}, v)
	}
	assert.InDelta(t, 12, s.BaselineCost(), 1e-9)
	assert.InDelta(t, 12-0.4, s.FinalCost(), 1e-6)
}

func TestHorizonMismatch(t *testing.T) {
	bat := storage.NewBattery(storage.DefaultParams())
	s, err := New([]*storage.Device{bat}, []float64{0.1, 0.2, 0.3}, []float64{1, 1, 1, 1}, 0)
	assert.Nil(t, s)
	assert.True(t, errors.Is(err, ErrHorizonMismatch))
	assert.False(t, bat.Registered(), "no problem is built")
}

func TestInfeasibleVehicleYieldsNaNSchedule(t *testing.T) {
	ev := storage.NewVehicle(storage.Params{Capacity: 4, ChargeRate: 10, InitialCharge: 0})
	s, err := New([]*storage.Device{ev}, []float64{0.1, 0.2}, []float64{1, 1}, 0)
	require.NoError(t, err)

	s.Solve(context.Background())
	assert.Equal(t, milp.Infeasible, s.Status())
	assert.Equal(t, "Infeasible", s.Status().String())
	sched, err := ev.ChargeDischargeSchedule()
	require.NoError(t, err)
	require.Len(t, sched, 2)
	for _, v := range sched {
		assert.True(t, math.IsNaN(v))
	}
	assert.True(t, math.IsNaN(s.FinalCost()))
	for name, v := range s.Solution() {
		assert.True(t, math.IsNaN(v), name)
	}
}

func TestScheduleBeforeSolve(t *testing.T) {
	s, bat, err := scenarioOne(0)
	require.NoError(t, err)
	_, err = bat.ChargeDischargeSchedule()
	assert.ErrorIs(t, err, storage.ErrNotSolved)
	_, err = s.Schedules()
	assert.ErrorIs(t, err, storage.ErrNotSolved)
	assert.True(t, math.IsNaN(s.FinalCost()))
}

func TestResolveIsIdempotent(t *testing.T) {
	s, _, err := scenarioOne(0.01)
	require.NoError(t, err)
	first := s.Solve(context.Background())
	status, cost, run := first.Status(), first.FinalCost(), first.RunID()

	second := s.Solve(context.Background())
	assert.Same(t, first, second)
	assert.Equal(t, status, second.Status())
	assert.InDelta(t, cost, second.FinalCost(), 1e-9)
	assert.NotEqual(t, run, second.RunID())
}

func TestFeasibilityInvariants(t *testing.T) {
	bat := storage.NewBattery(storage.Params{Capacity: 3, ChargeRate: 2, InitialCharge: 1, DegradationCost: 0.01})
	ev := storage.NewVehicle(storage.Params{Capacity: 3, ChargeRate: 1, InitialCharge: 1, DegradationCost: 0.02})
	rates := []float64{0.2, 0.1, 0.4, 0.6, 0.3, 0.5}
	usage := []float64{1, 1, 1, 1, 1, 1}
	s, err := New([]*storage.Device{bat, ev}, rates, usage, 0.2)
	require.NoError(t, err)
	require.Equal(t, milp.Optimal, s.Solve(context.Background()).Status())

	for _, d := range s.Devices() {
		levels, err := d.ChargeLevels()
		require.NoError(t, err)
		require.Len(t, levels, len(rates)+1)
		for ti, soc := range levels {
			assert.GreaterOrEqual(t, soc, -1e-6, "%s at %d", d.Label, ti)
			assert.LessOrEqual(t, soc, d.Params.Capacity+1e-6, "%s at %d", d.Label, ti)
		}
		sched, err := d.ChargeDischargeSchedule()
		require.NoError(t, err)
		for _, v := range sched {
			assert.Contains(t, []float64{-1, 0, 1}, v)
		}
	}
	levels, err := ev.ChargeLevels()
	require.NoError(t, err)
	assert.InDelta(t, ev.Params.Capacity, levels[len(levels)-1], 1e-6)
	assert.InDelta(t, ev.Params.Capacity, ev.FinalCharge().Eval(s.Problem().Values()), 1e-6)

	for _, c := range s.Problem().Constraints() {
		assert.True(t, c.Satisfied(s.Problem().Values(), 1e-6), c.String())
	}
}

func TestFractionalCapacitySolvesQuickly(t *testing.T) {
	bat := storage.NewBattery(storage.Params{Capacity: 3.5, InitialCharge: 0.5, ChargeRate: 1, DegradationCost: 0.01})
	rates := make([]float64, 24)
	usage := make([]float64, 24)
	for i := range rates {
		rates[i] = 0.1
		if i%2 == 1 {
			rates[i] = 0.4
		}
		usage[i] = 1
	}
	s, err := New([]*storage.Device{bat}, rates, usage, 0)
	require.NoError(t, err)
	require.Equal(t, milp.Optimal, s.Solve(context.Background()).Status())
	assert.Less(t, s.Nodes(), 1000)

	levels, err := bat.ChargeLevels()
	require.NoError(t, err)
	for ti, soc := range levels {
		assert.GreaterOrEqual(t, soc, -1e-6, "step %d", ti)
		assert.LessOrEqual(t, soc, 3.5+1e-6, "step %d", ti)
	}
	sched, err := bat.ChargeDischargeSchedule()
	require.NoError(t, err)
	for _, v := range sched {
		assert.Contains(t, []float64{-1, 0, 1}, v)
	}
	assert.Less(t, s.FinalCost(), s.BaselineCost())
}

func TestDegradationReducesCycling(t *testing.T) {
	cheap, cheapBat, err := scenarioOne(0)
	require.NoError(t, err)
	costly, costlyBat, err := scenarioOne(0.3)
	require.NoError(t, err)
	require.Equal(t, milp.Optimal, cheap.Solve(context.Background()).Status())
	require.Equal(t, milp.Optimal, costly.Solve(context.Background()).Status())

	cheapCycles, err := cheapBat.CycleCount()
	require.NoError(t, err)
	costlyCycles, err := costlyBat.CycleCount()
	require.NoError(t, err)
	assert.LessOrEqual(t, costlyCycles, cheapCycles)
	assert.InDelta(t, 2, cheapCycles, 1e-6)

	cheapPenalty := cheapBat.UsageCost().Eval(cheap.Problem().Values())
	costlyPenalty := costlyBat.UsageCost().Eval(costly.Problem().Values())
	assert.GreaterOrEqual(t, costlyPenalty, cheapPenalty)
	assert.InDelta(t, cheap.BaselineCost(), costly.FinalCost(), 1e-6, "cycling is not worth it")
}

// With an export credit above the purchase price, charging and discharging in
// the same timestep pays off. The default model forbids it.
func TestSimultaneousModes(t *testing.T) {
	build := func(opts ...Option) (*Scheduler, *storage.Device) {
		bat := storage.NewBattery(storage.Params{Capacity: 1, ChargeRate: 1})
		s, err := New([]*storage.Device{bat}, []float64{1, 1}, []float64{0, 0}, -0.5, opts...)
		require.NoError(t, err)
		return s, bat
	}

	exclusive, exBat := build()
	permissive, perBat := build(WithSimultaneousModes())
	assert.True(t, exclusive.ExclusiveModes())
	assert.False(t, permissive.ExclusiveModes())
	assert.Len(t, exclusive.Problem().Constraints(), len(permissive.Problem().Constraints())+2)

	require.Equal(t, milp.Optimal, exclusive.Solve(context.Background()).Status())
	require.Equal(t, milp.Optimal, permissive.Solve(context.Background()).Status())
	assert.InDelta(t, -0.5, exclusive.FinalCost(), 1e-6)
	assert.InDelta(t, -1.0, permissive.FinalCost(), 1e-6)

	exCycles, err := exBat.CycleCount()
	require.NoError(t, err)
	perCycles, err := perBat.CycleCount()
	require.NoError(t, err)
	assert.InDelta(t, 2, exCycles, 1e-6)
	assert.InDelta(t, 4, perCycles, 1e-6)
}

func TestDeviceCannotJoinTwoSchedulers(t *testing.T) {
	bat := storage.NewBattery(storage.DefaultParams())
	_, err := New([]*storage.Device{bat}, []float64{1}, []float64{1}, 0)
	require.NoError(t, err)
	_, err = New([]*storage.Device{bat}, []float64{1}, []float64{1}, 0)
	assert.ErrorIs(t, err, storage.ErrAlreadyRegistered)
}

type scriptedSolver struct {
	results []milp.Result
	calls   int
}

func (s *scriptedSolver) Solve(_ context.Context, p *milp.Problem) milp.Result {
	res := s.results[s.calls]
	s.calls++
	if res.Status == milp.Optimal {
		res.Values = make([]float64, len(p.Variables()))
		res.Values[0] = 1
	}
	return res
}

func TestFailedResolveDoesNotKeepStaleValues(t *testing.T) {
	s, bat, err := scenarioOne(0)
	require.NoError(t, err)
	solver := &scriptedSolver{results: []milp.Result{{Status: milp.Optimal}, {Status: milp.Undefined}}}

	s.SolveWith(context.Background(), solver)
	sched, err := bat.ChargeDischargeSchedule()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0, 0}, sched)

	s.SolveWith(context.Background(), solver)
	assert.Equal(t, milp.Undefined, s.Status())
	sched, err = bat.ChargeDischargeSchedule()
	require.NoError(t, err)
	for _, v := range sched {
		assert.True(t, math.IsNaN(v))
	}
}

type recordingSink struct {
	events []coremetrics.SolveEvent
}

func (r *recordingSink) RecordSolve(ev coremetrics.SolveEvent) error {
	r.events = append(r.events, ev)
	return nil
}

func TestSolveRecordsMetrics(t *testing.T) {
	sink := &recordingSink{}
	bat := storage.NewBattery(storage.Params{Capacity: 2, ChargeRate: 1})
	s, err := New([]*storage.Device{bat}, []float64{0.1, 0.5}, []float64{1, 1}, 0, WithMetrics(sink), WithName("home"))
	require.NoError(t, err)
	s.Solve(context.Background())

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.Equal(t, "home", ev.Problem)
	assert.Equal(t, "Optimal", ev.Status)
	assert.Equal(t, s.RunID(), ev.RunID)
	assert.Equal(t, 2, ev.Horizon)
	assert.Equal(t, 1, ev.Devices)
	assert.InDelta(t, s.FinalCost(), ev.FinalCost, 1e-12)
	assert.Positive(t, ev.Nodes)
}

func TestPlan(t *testing.T) {
	s, _, err := scenarioOne(0)
	require.NoError(t, err)
	s.Solve(context.Background())
	plan, err := s.Plan(testStart, testStep)
	require.NoError(t, err)
	require.Len(t, plan.Schedules, 1)
	assert.Equal(t, "DER #1 (BatteryStorage)", plan.Schedules[0].Label)
	assert.Len(t, plan.Schedules[0].Levels, 5)
	assert.Equal(t, testStart.Add(2*testStep), plan.SlotTime(2))
}
