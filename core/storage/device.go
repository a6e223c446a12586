package storage

import (
	"errors"
	"fmt"

	"github.com/kilianp07/homeplan/core/milp"
)

var (
	// ErrNotSolved is returned when a schedule is read before any solve.
	ErrNotSolved = errors.New("storage: no solution available")
	// ErrAlreadyRegistered is returned when a device is registered twice.
	ErrAlreadyRegistered = errors.New("storage: device already registered")
)

// Kind selects the device variant.
type Kind int

const (
	KindBattery Kind = iota
	KindVehicle
)

func (k Kind) String() string {
	if k == KindVehicle {
		return "ElectricVehicle"
	}
	return "BatteryStorage"
}

// ParseKind maps a configuration tag to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "battery":
		return KindBattery, nil
	case "vehicle", "ev":
		return KindVehicle, nil
	default:
		return KindBattery, fmt.Errorf("unknown device type %q", s)
	}
}

// Params are the static characteristics of a storage device.
type Params struct {
	// Capacity is the maximum state of charge, in charge steps.
	Capacity float64 `json:"capacity"`
	// ChargeRate is the energy moved per timestep while charging or discharging.
	ChargeRate float64 `json:"charge_rate"`
	// InitialCharge is the state of charge at t=0.
	InitialCharge float64 `json:"initial_charge"`
	// DegradationCost is charged per charge or discharge step.
	DegradationCost float64 `json:"degradation_cost"`
}

// DefaultParams returns the parameters used when a device leaves them unset.
func DefaultParams() Params {
	return Params{Capacity: 4, ChargeRate: 50, InitialCharge: 0, DegradationCost: 0.1}
}

// Context is the solve context a device is registered with.
type Context interface {
	Horizon() int
	TariffRates() []float64
	NetMeteringRate() float64
	Problem() *milp.Problem
	Solution() map[string]float64
	// ExclusiveModes reports whether charging and discharging in the same
	// timestep is forbidden.
	ExclusiveModes() bool
}

// Device is a controllable storage asset. Its model expressions are only
// available after Register.
type Device struct {
	Kind   Kind
	Params Params
	// Label is a display name used by exports. Register fills it when empty.
	Label string

	ctx         Context
	index       int
	charging    []milp.Var
	discharging []milp.Var
}

// New returns an unregistered device of the given kind.
func New(kind Kind, p Params) *Device { return &Device{Kind: kind, Params: p} }

// NewBattery returns a plain storage device.
func NewBattery(p Params) *Device { return New(KindBattery, p) }

// NewVehicle returns a device that must end the horizon fully charged.
func NewVehicle(p Params) *Device { return New(KindVehicle, p) }

// Register binds the device to ctx and allocates its charging and discharging
// binaries, named C_<index>_<t> and D_<index>_<t>.
func (d *Device) Register(ctx Context, index int) error {
	if d.ctx != nil {
		return ErrAlreadyRegistered
	}
	d.ctx = ctx
	d.index = index
	if d.Label == "" {
		d.Label = fmt.Sprintf("DER #%d (%s)", index+1, d.Kind)
	}
	T := ctx.Horizon()
	p := ctx.Problem()
	d.charging = make([]milp.Var, T)
	d.discharging = make([]milp.Var, T)
	for t := 0; t < T; t++ {
		d.charging[t] = p.NewBinary(d.chargingName(t))
	}
	for t := 0; t < T; t++ {
		d.discharging[t] = p.NewBinary(d.dischargingName(t))
	}
	return nil
}

// Registered reports whether Register has been called.
func (d *Device) Registered() bool { return d.ctx != nil }

// Index returns the position assigned at registration.
func (d *Device) Index() int { return d.index }

func (d *Device) chargingName(t int) string    { return fmt.Sprintf("C_%d_%d", d.index, t) }
func (d *Device) dischargingName(t int) string { return fmt.Sprintf("D_%d_%d", d.index, t) }

func (d *Device) mustBeRegistered() {
	if d.ctx == nil {
		panic("storage: device used before Register")
	}
}

// Charging returns the charging variables.
func (d *Device) Charging() []milp.Var {
	d.mustBeRegistered()
	return d.charging
}

// Discharging returns the discharging variables.
func (d *Device) Discharging() []milp.Var {
	d.mustBeRegistered()
	return d.discharging
}

// chargeAfter is the state of charge after the first ti timesteps.
func (d *Device) chargeAfter(ti int) milp.Expr {
	e := milp.NewExpr(d.Params.InitialCharge)
	for t := 0; t < ti; t++ {
		e = e.AddTerm(d.charging[t], 1).AddTerm(d.discharging[t], -1)
	}
	return e
}

// FinalCharge is the state of charge at the end of the horizon.
func (d *Device) FinalCharge() milp.Expr {
	d.mustBeRegistered()
	return d.chargeAfter(len(d.charging))
}

// Constraints returns every feasibility constraint of the device.
func (d *Device) Constraints() []milp.Constraint {
	d.mustBeRegistered()
	T := len(d.charging)
	out := make([]milp.Constraint, 0, 4*T+2*(T+1)+2*T)
	for t, c := range d.charging {
		out = append(out,
			milp.GreaterEq(milp.Sum(c), 0).Named(fmt.Sprintf("%s_lb", d.chargingName(t))),
			milp.LessEq(milp.Sum(c), 1).Named(fmt.Sprintf("%s_ub", d.chargingName(t))))
	}
	for t, c := range d.discharging {
		out = append(out,
			milp.GreaterEq(milp.Sum(c), 0).Named(fmt.Sprintf("%s_lb", d.dischargingName(t))),
			milp.LessEq(milp.Sum(c), 1).Named(fmt.Sprintf("%s_ub", d.dischargingName(t))))
	}
	for ti := 0; ti <= T; ti++ {
		soc := d.chargeAfter(ti)
		out = append(out,
			milp.GreaterEq(soc, 0).Named(fmt.Sprintf("soc_%d_%d_min", d.index, ti)),
			milp.LessEq(soc, d.Params.Capacity).Named(fmt.Sprintf("soc_%d_%d_max", d.index, ti)))
	}
	if d.Kind == KindVehicle {
		out = append(out, milp.Equal(d.FinalCharge(), d.Params.Capacity).Named(fmt.Sprintf("soc_%d_full", d.index)))
	}
	if d.ctx.ExclusiveModes() {
		for t := 0; t < T; t++ {
			out = append(out, milp.LessEq(milp.Sum(d.charging[t], d.discharging[t]), 1).
				Named(fmt.Sprintf("mode_%d_%d", d.index, t)))
		}
	}
	return out
}

// UsageCost is the degradation penalty of all charge and discharge steps.
func (d *Device) UsageCost() milp.Expr {
	d.mustBeRegistered()
	return milp.Sum(d.charging...).Plus(milp.Sum(d.discharging...)).Scale(d.Params.DegradationCost)
}

// Cost is the energy cost of charging minus the net-metering credit of
// discharging, plus UsageCost.
func (d *Device) Cost() milp.Expr {
	d.mustBeRegistered()
	rates := d.ctx.TariffRates()
	nm := d.ctx.NetMeteringRate()
	e := milp.NewExpr(0)
	for t := range d.charging {
		k := rates[t] * d.Params.ChargeRate
		e = e.AddTerm(d.charging[t], k).AddTerm(d.discharging[t], -k*nm)
	}
	return e.Plus(d.UsageCost())
}

func (d *Device) solution() (map[string]float64, error) {
	if d.ctx == nil {
		return nil, ErrNotSolved
	}
	sol := d.ctx.Solution()
	if len(sol) == 0 {
		return nil, ErrNotSolved
	}
	return sol, nil
}

// ChargeDischargeSchedule returns C_t - D_t per timestep from the last solve:
// 1 charging, -1 discharging, 0 idle. Values are NaN after a failed solve.
func (d *Device) ChargeDischargeSchedule() ([]float64, error) {
	sol, err := d.solution()
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(d.charging))
	for t := range out {
		out[t] = sol[d.chargingName(t)] - sol[d.dischargingName(t)]
	}
	return out, nil
}

// ChargeLevels returns the state of charge for every prefix length 0..T.
func (d *Device) ChargeLevels() ([]float64, error) {
	sched, err := d.ChargeDischargeSchedule()
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(sched)+1)
	out[0] = d.Params.InitialCharge
	for t, v := range sched {
		out[t+1] = out[t] + v
	}
	return out, nil
}

// CycleCount is the number of charge and discharge steps in the last solve.
func (d *Device) CycleCount() (float64, error) {
	sol, err := d.solution()
	if err != nil {
		return 0, err
	}
	var n float64
	for t := range d.charging {
		n += sol[d.chargingName(t)] + sol[d.dischargingName(t)]
	}
	return n, nil
}
