package milp

import "fmt"

// Sense is the relation of a constraint.
type Sense int

const (
	LE Sense = iota
	GE
	EQ
)

func (s Sense) String() string {
	switch s {
	case LE:
		return "<="
	case GE:
		return ">="
	case EQ:
		return "=="
	default:
		return "?"
	}
}

// Constraint is a linear relation Expr <sense> RHS.
type Constraint struct {
	Name  string
	Expr  Expr
	Sense Sense
	RHS   float64
}

// LessEq builds e <= rhs.
func LessEq(e Expr, rhs float64) Constraint { return Constraint{Expr: e, Sense: LE, RHS: rhs} }

// GreaterEq builds e >= rhs.
func GreaterEq(e Expr, rhs float64) Constraint { return Constraint{Expr: e, Sense: GE, RHS: rhs} }

// Equal builds e == rhs.
func Equal(e Expr, rhs float64) Constraint { return Constraint{Expr: e, Sense: EQ, RHS: rhs} }

// Named returns a copy of c with the given name.
func (c Constraint) Named(name string) Constraint {
	c.Name = name
	return c
}

// Satisfied reports whether values satisfy c within tol.
func (c Constraint) Satisfied(values []float64, tol float64) bool {
	lhs := c.Expr.Eval(values)
	switch c.Sense {
	case LE:
		return lhs <= c.RHS+tol
	case GE:
		return lhs >= c.RHS-tol
	default:
		return lhs >= c.RHS-tol && lhs <= c.RHS+tol
	}
}

func (c Constraint) String() string {
	return fmt.Sprintf("%s: %d terms %s %g", c.Name, len(c.Expr.Terms), c.Sense, c.RHS-c.Expr.Constant)
}
