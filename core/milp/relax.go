package milp

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// simplex points to the LP routine used for relaxations. It can be overridden
// in tests to simulate solver failures.
var simplex = lp.Simplex

var (
	// errNodeInfeasible marks a relaxation rejected before reaching the simplex.
	errNodeInfeasible = errors.New("milp: relaxation infeasible")
	// errOverdetermined is returned when equality rows outnumber columns.
	errOverdetermined = errors.New("milp: more rows than columns")
)

type row struct {
	coef  []float64
	sense Sense
	rhs   float64
}

// compiled is the presolved, dense form of a Problem.
type compiled struct {
	n        int
	cost     []float64
	constant float64
	rows     []row
	lower    []float64
	upper    []float64
	integer  []bool
}

func holds(lhs float64, s Sense, rhs, tol float64) bool {
	switch s {
	case LE:
		return lhs <= rhs+tol
	case GE:
		return lhs >= rhs-tol
	default:
		return math.Abs(lhs-rhs) <= tol
	}
}

// compile folds constant rows and single-variable rows into bounds. ok is false
// when presolve alone proves the problem infeasible.
func compile(p *Problem, tol float64) (cp compiled, ok bool) {
	n := len(p.vars)
	cp = compiled{
		n:        n,
		cost:     p.objective.coefficients(n),
		constant: p.objective.Constant,
		lower:    make([]float64, n),
		upper:    make([]float64, n),
		integer:  make([]bool, n),
	}
	for j, v := range p.vars {
		cp.lower[j], cp.upper[j], cp.integer[j] = v.lower, v.upper, v.integer
	}

	for _, c := range p.constraints {
		coef := c.Expr.coefficients(n)
		rhs := c.RHS - c.Expr.Constant
		nz, last := 0, -1
		for j, a := range coef {
			if a != 0 {
				nz++
				last = j
			}
		}
		switch nz {
		case 0:
			if !holds(0, c.Sense, rhs, tol) {
				return cp, false
			}
		case 1:
			a := coef[last]
			val := rhs / a
			sense := c.Sense
			if a < 0 && sense != EQ {
				if sense == LE {
					sense = GE
				} else {
					sense = LE
				}
			}
			if sense == LE || sense == EQ {
				cp.upper[last] = math.Min(cp.upper[last], val)
			}
			if sense == GE || sense == EQ {
				cp.lower[last] = math.Max(cp.lower[last], val)
			}
		default:
			if cp.integralRow(coef) {
				var feasible bool
				if rhs, feasible = roundIntegralRHS(c.Sense, rhs, tol); !feasible {
					return cp, false
				}
			}
			cp.rows = append(cp.rows, row{coef: coef, sense: c.Sense, rhs: rhs})
		}
	}

	for j := range cp.lower {
		if cp.integer[j] {
			cp.lower[j] = math.Ceil(cp.lower[j] - tol)
			if !math.IsInf(cp.upper[j], 1) {
				cp.upper[j] = math.Floor(cp.upper[j] + tol)
			}
		}
		if cp.lower[j] > cp.upper[j]+tol {
			return cp, false
		}
	}
	return cp, true
}

// integralRow reports whether every variable of the row is integer with an
// integral coefficient, so that its activity only takes integer values.
func (cp compiled) integralRow(coef []float64) bool {
	for j, a := range coef {
		if a != 0 && (!cp.integer[j] || a != math.Trunc(a)) {
			return false
		}
	}
	return true
}

// roundIntegralRHS tightens the right-hand side of an integral row to the
// nearest integer it admits. An equality with a fractional right-hand side
// cannot be met.
func roundIntegralRHS(s Sense, rhs, tol float64) (float64, bool) {
	switch s {
	case LE:
		return math.Floor(rhs + tol), true
	case GE:
		return math.Ceil(rhs - tol), true
	default:
		r := math.Round(rhs)
		return r, math.Abs(rhs-r) <= tol
	}
}

// relax solves the LP relaxation of cp restricted to [lower, upper]. Variables
// are shifted by their lower bound so that the standard form x >= 0 applies,
// and fixed variables are substituted out.
func (cp compiled) relax(lower, upper []float64, tol float64) ([]float64, float64, error) {
	x := make([]float64, cp.n)
	copy(x, lower)

	pos := make([]int, cp.n)
	nFree := 0
	for j := range pos {
		if upper[j]-lower[j] <= tol {
			pos[j] = -1
			continue
		}
		pos[j] = nFree
		nFree++
	}

	// Shift every row by the lower bounds and drop rows with no free column.
	var rows []row
	for _, r := range cp.rows {
		rhs := r.rhs
		coef := make([]float64, nFree)
		nz := 0
		for j, a := range r.coef {
			if a == 0 {
				continue
			}
			rhs -= a * lower[j]
			if pos[j] >= 0 {
				coef[pos[j]] = a
				nz++
			}
		}
		if nz == 0 {
			if !holds(0, r.sense, rhs, tol) {
				return nil, math.NaN(), errNodeInfeasible
			}
			continue
		}
		sense := r.sense
		if sense == GE {
			for i := range coef {
				coef[i] = -coef[i]
			}
			rhs = -rhs
			sense = LE
		}
		minAct, maxAct := activity(coef, pos, lower, upper)
		if minAct > rhs+tol || (sense == EQ && maxAct < rhs-tol) {
			return nil, math.NaN(), errNodeInfeasible
		}
		rows = append(rows, row{coef: coef, sense: sense, rhs: rhs})
	}

	// A free column that appears nowhere would make the simplex reject the
	// problem: pin it to its lower bound or report unboundedness.
	active := make([]bool, nFree)
	for j := range pos {
		if pos[j] < 0 {
			continue
		}
		if !math.IsInf(upper[j], 1) {
			active[pos[j]] = true
			continue
		}
		for _, r := range rows {
			if r.coef[pos[j]] != 0 {
				active[pos[j]] = true
				break
			}
		}
		if !active[pos[j]] && cp.cost[j] < 0 {
			return nil, math.Inf(-1), lp.ErrUnbounded
		}
	}
	cols := make([]int, nFree)
	nCols := 0
	for k, a := range active {
		if a {
			cols[k] = nCols
			nCols++
		} else {
			cols[k] = -1
		}
	}
	colOf := func(j int) int {
		if pos[j] < 0 {
			return -1
		}
		return cols[pos[j]]
	}
	for j := range pos {
		if colOf(j) >= 0 && !math.IsInf(upper[j], 1) {
			coef := make([]float64, nFree)
			coef[pos[j]] = 1
			rows = append(rows, row{coef: coef, sense: LE, rhs: upper[j] - lower[j]})
		}
	}

	m := len(rows)
	if m == 0 {
		return x, cp.objective(x), nil
	}
	nSlack := 0
	for _, r := range rows {
		if r.sense == LE {
			nSlack++
		}
	}
	width := nCols + nSlack
	if m > width {
		return nil, math.NaN(), errOverdetermined
	}

	a := mat.NewDense(m, width, nil)
	b := make([]float64, m)
	c := make([]float64, width)
	for j := range pos {
		if k := colOf(j); k >= 0 {
			c[k] = cp.cost[j]
		}
	}
	slack := nCols
	for i, r := range rows {
		for k, v := range r.coef {
			if v != 0 && cols[k] >= 0 {
				a.Set(i, cols[k], v)
			}
		}
		if r.sense == LE {
			a.Set(i, slack, 1)
			slack++
		}
		b[i] = r.rhs
	}

	_, y, err := simplex(c, a, b, tol, nil)
	if err != nil {
		return nil, math.NaN(), err
	}
	for j := range pos {
		if k := colOf(j); k >= 0 {
			x[j] = lower[j] + math.Max(y[k], 0)
		}
	}
	return x, cp.objective(x), nil
}

// activity returns the range of a shifted row over the box [0, upper-lower].
func activity(coef []float64, pos []int, lower, upper []float64) (lo, hi float64) {
	for j, k := range pos {
		if k < 0 || coef[k] == 0 {
			continue
		}
		span := upper[j] - lower[j]
		if coef[k] > 0 {
			hi += coef[k] * span
		} else {
			lo += coef[k] * span
		}
	}
	return lo, hi
}

func (cp compiled) objective(x []float64) float64 {
	total := cp.constant
	for j, c := range cp.cost {
		total += c * x[j]
	}
	return total
}
