// Package milp models mixed-integer linear minimisation problems and solves
// them by branch and bound over gonum's simplex.
//
// Problems are built from named variables, affine expressions and
// constraints. Solve writes the status and variable values back into the
// problem; any outcome other than Optimal leaves NaN for every variable.
package milp
