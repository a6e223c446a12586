package milp

import (
	"context"
	"fmt"
	"math"
)

type variable struct {
	name    string
	lower   float64
	upper   float64
	integer bool
}

// Result is what a Solver returns for a problem.
type Result struct {
	Status Status
	// Values holds one entry per variable, indexed by Var.Index.
	Values []float64
	// Objective is the objective value at Values.
	Objective float64
	// Nodes is the number of relaxations solved.
	Nodes int
}

// Solver solves a Problem. Implementations must not retain p.
type Solver interface {
	Solve(ctx context.Context, p *Problem) Result
}

// Problem is a mixed-integer linear minimisation problem.
type Problem struct {
	name        string
	vars        []variable
	names       map[string]int
	constraints []Constraint
	objective   Expr

	status Status
	values []float64
}

// NewProblem returns an empty minimisation problem.
func NewProblem(name string) *Problem {
	return &Problem{name: name, names: make(map[string]int)}
}

// Name returns the problem name.
func (p *Problem) Name() string { return p.name }

// NewVar declares a variable with bounds [lower, upper]. The lower bound must be
// finite and names must be unique within the problem.
func (p *Problem) NewVar(name string, lower, upper float64, integer bool) Var {
	if math.IsInf(lower, 0) || math.IsNaN(lower) {
		panic(fmt.Sprintf("milp: variable %s needs a finite lower bound", name))
	}
	if _, ok := p.names[name]; ok {
		panic(fmt.Sprintf("milp: duplicate variable %s", name))
	}
	idx := len(p.vars)
	p.vars = append(p.vars, variable{name: name, lower: lower, upper: upper, integer: integer})
	p.names[name] = idx
	return Var{idx: idx, name: name}
}

// NewBinary declares an integer variable in {0, 1}.
func (p *Problem) NewBinary(name string) Var {
	return p.NewVar(name, 0, 1, true)
}

// AddConstraint appends c to the problem.
func (p *Problem) AddConstraint(c Constraint) {
	p.constraints = append(p.constraints, c)
}

// SetObjective sets the expression to minimise.
func (p *Problem) SetObjective(e Expr) { p.objective = e }

// Objective returns the objective expression.
func (p *Problem) Objective() Expr { return p.objective }

// Constraints returns the constraints in insertion order.
func (p *Problem) Constraints() []Constraint {
	out := make([]Constraint, len(p.constraints))
	copy(out, p.constraints)
	return out
}

// Variables returns the declared variables in declaration order.
func (p *Problem) Variables() []Var {
	out := make([]Var, len(p.vars))
	for i, v := range p.vars {
		out[i] = Var{idx: i, name: v.name}
	}
	return out
}

// Lookup returns the variable with the given name.
func (p *Problem) Lookup(name string) (Var, bool) {
	idx, ok := p.names[name]
	if !ok {
		return Var{}, false
	}
	return Var{idx: idx, name: name}, true
}

// Status returns the status of the last solve.
func (p *Problem) Status() Status { return p.status }

// Value returns the value of v from the last solve. It is NaN before any solve
// and after a non-optimal one.
func (p *Problem) Value(v Var) float64 {
	if v.idx >= len(p.values) {
		return math.NaN()
	}
	return p.values[v.idx]
}

// Values returns a copy of the variable values of the last solve.
func (p *Problem) Values() []float64 {
	out := make([]float64, len(p.values))
	copy(out, p.values)
	return out
}

// ObjectiveValue evaluates the objective at the current values.
func (p *Problem) ObjectiveValue() float64 {
	if len(p.values) != len(p.vars) {
		return math.NaN()
	}
	return p.objective.Eval(p.values)
}

// Solve runs s on the problem and stores the resulting status and values.
// Non-optimal outcomes store NaN for every variable.
func (p *Problem) Solve(ctx context.Context, s Solver) Result {
	res := s.Solve(ctx, p)
	p.status = res.Status
	p.values = make([]float64, len(p.vars))
	if res.Status == Optimal && len(res.Values) == len(p.vars) {
		copy(p.values, res.Values)
		return res
	}
	for i := range p.values {
		p.values[i] = math.NaN()
	}
	if res.Status == Optimal {
		// A solver that claims optimality without a full assignment is broken.
		p.status = Undefined
		res.Status = Undefined
	}
	res.Values = p.Values()
	res.Objective = math.NaN()
	return res
}
