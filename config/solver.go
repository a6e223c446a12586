package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/homeplan/core/milp"
)

// SolverConfig tunes the branch-and-bound solver.
type SolverConfig struct {
	Tolerance        float64 `json:"tolerance"`
	MaxNodes         int     `json:"max_nodes"`
	TimeLimitSeconds int     `json:"time_limit_seconds"`
	// AllowSimultaneous lets a device charge and discharge in the same timestep.
	AllowSimultaneous bool `json:"allow_simultaneous"`
}

// SetDefaults applies sane defaults.
func (c *SolverConfig) SetDefaults() {
	if c.Tolerance == 0 {
		c.Tolerance = milp.DefaultTolerance
	}
	if c.MaxNodes == 0 {
		c.MaxNodes = milp.DefaultMaxNodes
	}
}

// Validate checks the solver settings.
func (c SolverConfig) Validate() error {
	if c.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive")
	}
	if c.MaxNodes < 0 || c.TimeLimitSeconds < 0 {
		return fmt.Errorf("max_nodes and time_limit_seconds must be non-negative")
	}
	return nil
}

// Options converts the settings into solver options.
func (c SolverConfig) Options() []milp.Option {
	opts := []milp.Option{milp.WithTolerance(c.Tolerance), milp.WithMaxNodes(c.MaxNodes)}
	if c.TimeLimitSeconds > 0 {
		opts = append(opts, milp.WithTimeLimit(time.Duration(c.TimeLimitSeconds)*time.Second))
	}
	return opts
}
