package milp

import (
	"context"
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/kilianp07/homeplan/core/logger"
)

const (
	// DefaultTolerance is the reduced-cost tolerance handed to the simplex.
	DefaultTolerance = 1e-7
	// DefaultMaxNodes bounds the size of the branch-and-bound tree.
	DefaultMaxNodes = 100000
	// integralityTol is how far from an integer a value may be and still count as integral.
	integralityTol = 1e-6
)

// Options configures BranchAndBound.
type Options struct {
	Tolerance float64
	MaxNodes  int
	TimeLimit time.Duration
	Logger    logger.Logger
}

// Option mutates Options.
type Option func(*Options)

// WithTolerance sets the simplex tolerance.
func WithTolerance(tol float64) Option { return func(o *Options) { o.Tolerance = tol } }

// WithMaxNodes caps the number of relaxations solved.
func WithMaxNodes(n int) Option { return func(o *Options) { o.MaxNodes = n } }

// WithTimeLimit stops the search after d. Zero disables the limit.
func WithTimeLimit(d time.Duration) Option { return func(o *Options) { o.TimeLimit = d } }

// WithLogger sets the logger used for search progress.
func WithLogger(l logger.Logger) Option { return func(o *Options) { o.Logger = l } }

// BranchAndBound solves mixed-integer problems by depth-first branch and bound
// over LP relaxations.
type BranchAndBound struct {
	opts Options
}

// NewBranchAndBound returns a solver with the given options applied over the
// defaults.
func NewBranchAndBound(opts ...Option) *BranchAndBound {
	o := Options{Tolerance: DefaultTolerance, MaxNodes: DefaultMaxNodes}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.MaxNodes <= 0 {
		o.MaxNodes = DefaultMaxNodes
	}
	if o.Logger == nil {
		o.Logger = logger.NopLogger{}
	}
	return &BranchAndBound{opts: o}
}

type node struct {
	lower, upper []float64
}

// Solve implements Solver.
func (b *BranchAndBound) Solve(ctx context.Context, p *Problem) Result {
	log := b.opts.Logger
	tol := b.opts.Tolerance

	cp, ok := compile(p, tol)
	if !ok {
		log.Debugf("presolve proved %s infeasible", p.name)
		return Result{Status: Infeasible}
	}

	if b.opts.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.TimeLimit)
		defer cancel()
	}

	stack := []node{{lower: cp.lower, upper: cp.upper}}
	best := math.Inf(1)
	var incumbent []float64
	nodes, failures := 0, 0
	stopped := false

	for len(stack) > 0 {
		if ctx.Err() != nil || nodes >= b.opts.MaxNodes {
			stopped = true
			break
		}
		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		x, obj, err := cp.relaxContext(ctx, nd, tol)
		nodes++
		if ctx.Err() != nil {
			stopped = true
			break
		}
		if err != nil {
			switch {
			case errors.Is(err, lp.ErrInfeasible), errors.Is(err, errNodeInfeasible):
			case errors.Is(err, lp.ErrUnbounded):
				if nodes == 1 {
					return Result{Status: Unbounded, Nodes: nodes}
				}
			default:
				if nodes == 1 {
					log.Warnf("relaxation of %s failed: %v", p.name, err)
					return Result{Status: Undefined, Nodes: nodes}
				}
				failures++
				log.Warnf("node %d relaxation failed: %v", nodes, err)
			}
			continue
		}
		if obj >= best-1e-9*math.Max(1, math.Abs(best)) {
			continue
		}

		j := mostFractional(cp.integer, x)
		if j < 0 {
			for k, isInt := range cp.integer {
				if isInt {
					x[k] = math.Round(x[k])
				}
			}
			best = cp.objective(x)
			incumbent = x
			log.Debugf("node %d: incumbent %.6f", nodes, best)
			continue
		}

		down := node{lower: nd.lower, upper: clone(nd.upper)}
		down.upper[j] = math.Floor(x[j])
		up := node{lower: clone(nd.lower), upper: nd.upper}
		up.lower[j] = math.Ceil(x[j])
		// The branch nearest to the relaxed value is explored first.
		if x[j]-math.Floor(x[j]) >= 0.5 {
			stack = append(stack, down, up)
		} else {
			stack = append(stack, up, down)
		}
	}

	log.Debugw("branch and bound finished", map[string]any{
		"problem":  p.name,
		"nodes":    nodes,
		"failures": failures,
		"stopped":  stopped,
	})
	switch {
	case stopped:
		return Result{Status: NotSolved, Nodes: nodes}
	case incumbent == nil && failures > 0:
		return Result{Status: Undefined, Nodes: nodes}
	case incumbent == nil:
		return Result{Status: Infeasible, Nodes: nodes}
	}
	return Result{Status: Optimal, Values: incumbent, Objective: p.objective.Eval(incumbent), Nodes: nodes}
}

type relaxation struct {
	x   []float64
	obj float64
	err error
}

// relaxContext solves the relaxation of nd and returns early once ctx is done.
// An abandoned relaxation runs to completion in the background and its result
// is dropped.
func (cp compiled) relaxContext(ctx context.Context, nd node, tol float64) ([]float64, float64, error) {
	if ctx.Done() == nil {
		return cp.relax(nd.lower, nd.upper, tol)
	}
	done := make(chan relaxation, 1)
	go func() {
		x, obj, err := cp.relax(nd.lower, nd.upper, tol)
		done <- relaxation{x: x, obj: obj, err: err}
	}()
	select {
	case r := <-done:
		return r.x, r.obj, r.err
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}
}

// mostFractional returns the integer variable farthest from an integer, or -1
// when x is integral. Ties go to the lowest index.
func mostFractional(integer []bool, x []float64) int {
	idx, worst := -1, integralityTol
	for j, isInt := range integer {
		if !isInt {
			continue
		}
		frac := math.Abs(x[j] - math.Round(x[j]))
		if frac > worst {
			idx, worst = j, frac
		}
	}
	return idx
}

func clone(s []float64) []float64 {
	out := make([]float64, len(s))
	copy(out, s)
	return out
}
