package storage

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/homeplan/core/milp"
)

type stubContext struct {
	rates     []float64
	nm        float64
	problem   *milp.Problem
	solution  map[string]float64
	exclusive bool
}

func newStub(rates []float64, exclusive bool) *stubContext {
	return &stubContext{rates: rates, nm: 1, problem: milp.NewProblem("stub"), solution: map[string]float64{}, exclusive: exclusive}
}

func (s *stubContext) Horizon() int                 { return len(s.rates) }
func (s *stubContext) TariffRates() []float64       { return s.rates }
func (s *stubContext) NetMeteringRate() float64     { return s.nm }
func (s *stubContext) Problem() *milp.Problem       { return s.problem }
func (s *stubContext) Solution() map[string]float64 { return s.solution }
func (s *stubContext) ExclusiveModes() bool         { return s.exclusive }

func TestRegisterAllocatesNamedBinaries(t *testing.T) {
	ctx := newStub([]float64{0.1, 0.2, 0.3}, false)
	d := NewBattery(DefaultParams())
	require.NoError(t, d.Register(ctx, 2))

	vars := ctx.problem.Variables()
	require.Len(t, vars, 6)
	assert.Equal(t, "C_2_0", vars[0].Name())
	assert.Equal(t, "C_2_2", vars[2].Name())
	assert.Equal(t, "D_2_0", vars[3].Name())
	assert.Equal(t, "DER #3 (BatteryStorage)", d.Label)

	err := d.Register(ctx, 3)
	assert.True(t, errors.Is(err, ErrAlreadyRegistered))
}

func TestConstraintCounts(t *testing.T) {
	rates := []float64{1, 1, 1, 1}
	T := len(rates)

	bat := NewBattery(DefaultParams())
	require.NoError(t, bat.Register(newStub(rates, false), 0))
	assert.Len(t, bat.Constraints(), 4*T+2*(T+1))

	ev := NewVehicle(DefaultParams())
	require.NoError(t, ev.Register(newStub(rates, false), 0))
	assert.Len(t, ev.Constraints(), 4*T+2*(T+1)+1)

	excl := NewVehicle(DefaultParams())
	require.NoError(t, excl.Register(newStub(rates, true), 0))
	assert.Len(t, excl.Constraints(), 4*T+2*(T+1)+1+T)
}

func TestStateOfChargeConstraints(t *testing.T) {
	ctx := newStub([]float64{1, 1}, false)
	d := NewBattery(Params{Capacity: 1, ChargeRate: 1, InitialCharge: 1})
	require.NoError(t, d.Register(ctx, 0))

	// C_0, C_1, D_0, D_1
	check := func(values []float64) bool {
		for _, c := range d.Constraints() {
			if !c.Satisfied(values, 1e-9) {
				return false
			}
		}
		return true
	}
	assert.True(t, check([]float64{0, 0, 0, 0}))
	assert.True(t, check([]float64{0, 1, 1, 0}))
	assert.False(t, check([]float64{1, 0, 0, 0}), "overflow")
	assert.False(t, check([]float64{0, 0, 1, 1}), "negative charge")
	assert.InDelta(t, 1, d.FinalCharge().Eval([]float64{1, 0, 1, 0}), 1e-12)
}

func TestVehicleMustEndFull(t *testing.T) {
	ctx := newStub([]float64{1, 1}, false)
	d := NewVehicle(Params{Capacity: 2, ChargeRate: 1})
	require.NoError(t, d.Register(ctx, 0))
	cons := d.Constraints()
	last := cons[len(cons)-1]
	assert.Equal(t, milp.EQ, last.Sense)
	assert.Equal(t, 2.0, last.RHS)
	assert.True(t, last.Satisfied([]float64{1, 1, 0, 0}, 1e-9))
	assert.False(t, last.Satisfied([]float64{1, 0, 0, 0}, 1e-9))
}

func TestCost(t *testing.T) {
	ctx := newStub([]float64{0.1, 0.5}, false)
	ctx.nm = 0.8
	d := NewBattery(Params{Capacity: 2, ChargeRate: 10, DegradationCost: 0.25})
	require.NoError(t, d.Register(ctx, 0))

	// charge at t=0, discharge at t=1
	values := []float64{1, 0, 0, 1}
	want := 0.1*10 - 0.8*0.5*10 + 0.25*2
	assert.InDelta(t, want, d.Cost().Eval(values), 1e-12)
	assert.InDelta(t, 0.5, d.UsageCost().Eval(values), 1e-12)

	ctx.nm = 0
	assert.InDelta(t, 0.1*10+0.5, d.Cost().Eval(values), 1e-12, "full depreciation removes export credit")
}

func TestScheduleBeforeSolve(t *testing.T) {
	d := NewBattery(DefaultParams())
	_, err := d.ChargeDischargeSchedule()
	assert.ErrorIs(t, err, ErrNotSolved)

	ctx := newStub([]float64{1}, false)
	require.NoError(t, d.Register(ctx, 0))
	_, err = d.ChargeDischargeSchedule()
	assert.ErrorIs(t, err, ErrNotSolved)
}

func TestScheduleFromSolution(t *testing.T) {
	ctx := newStub([]float64{1, 1, 1}, false)
	d := NewBattery(Params{Capacity: 2, InitialCharge: 1})
	require.NoError(t, d.Register(ctx, 0))
	ctx.solution = map[string]float64{
		"C_0_0": 1, "C_0_1": 0, "C_0_2": 0,
		"D_0_0": 0, "D_0_1": 0, "D_0_2": 1,
	}
	sched, err := d.ChargeDischargeSchedule()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, -1}, sched)

	levels, err := d.ChargeLevels()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 2, 1}, levels)

	n, err := d.CycleCount()
	require.NoError(t, err)
	assert.Equal(t, 2.0, n)

	ctx.solution["C_0_1"] = math.NaN()
	sched, err = d.ChargeDischargeSchedule()
	require.NoError(t, err)
	assert.True(t, math.IsNaN(sched[1]))
}

func TestUnregisteredAccessPanics(t *testing.T) {
	d := NewVehicle(DefaultParams())
	assert.Panics(t, func() { d.Constraints() })
	assert.Panics(t, func() { d.Cost() })
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("vehicle")
	require.NoError(t, err)
	assert.Equal(t, KindVehicle, k)
	k, err = ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindBattery, k)
	_, err = ParseKind("flywheel")
	assert.Error(t, err)
}
