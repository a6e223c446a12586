package milp

import "math"

// Var is a handle on a decision variable owned by a Problem.
type Var struct {
	idx  int
	name string
}

// Name returns the variable name.
func (v Var) Name() string { return v.name }

// Index returns the position of the variable in its problem.
func (v Var) Index() int { return v.idx }

// Term is a coefficient applied to a variable.
type Term struct {
	Var  Var
	Coef float64
}

// Expr is an affine expression over decision variables. Expr values are
// immutable: every method returns a new expression.
type Expr struct {
	Terms    []Term
	Constant float64
}

// NewExpr returns the constant expression c.
func NewExpr(c float64) Expr { return Expr{Constant: c} }

// Sum returns the sum of vars with unit coefficients.
func Sum(vars ...Var) Expr {
	terms := make([]Term, len(vars))
	for i, v := range vars {
		terms[i] = Term{Var: v, Coef: 1}
	}
	return Expr{Terms: terms}
}

// AddTerm returns e + coef*v.
func (e Expr) AddTerm(v Var, coef float64) Expr {
	terms := make([]Term, len(e.Terms), len(e.Terms)+1)
	copy(terms, e.Terms)
	return Expr{Terms: append(terms, Term{Var: v, Coef: coef}), Constant: e.Constant}
}

// AddConstant returns e + c.
func (e Expr) AddConstant(c float64) Expr {
	return Expr{Terms: e.Terms, Constant: e.Constant + c}
}

// Plus returns e + o.
func (e Expr) Plus(o Expr) Expr {
	terms := make([]Term, 0, len(e.Terms)+len(o.Terms))
	terms = append(terms, e.Terms...)
	terms = append(terms, o.Terms...)
	return Expr{Terms: terms, Constant: e.Constant + o.Constant}
}

// Scale returns k*e.
func (e Expr) Scale(k float64) Expr {
	terms := make([]Term, len(e.Terms))
	for i, t := range e.Terms {
		terms[i] = Term{Var: t.Var, Coef: k * t.Coef}
	}
	return Expr{Terms: terms, Constant: k * e.Constant}
}

// Eval evaluates the expression against values indexed by variable index.
// A missing or NaN value yields NaN.
func (e Expr) Eval(values []float64) float64 {
	total := e.Constant
	for _, t := range e.Terms {
		if t.Var.idx >= len(values) {
			return math.NaN()
		}
		total += t.Coef * values[t.Var.idx]
	}
	return total
}

// coefficients folds duplicate terms into a dense row of length n.
func (e Expr) coefficients(n int) []float64 {
	row := make([]float64, n)
	for _, t := range e.Terms {
		row[t.Var.idx] += t.Coef
	}
	return row
}
