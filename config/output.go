package config

import "fmt"

// OutputConfig selects where and how the plan is written.
type OutputConfig struct {
	// Format is "json" or "csv".
	Format string `json:"format"`
	// Path is the destination file, "-" for stdout.
	Path string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *OutputConfig) SetDefaults() {
	if c.Format == "" {
		c.Format = "json"
	}
	if c.Path == "" {
		c.Path = "-"
	}
}

// Validate checks the output settings.
func (c OutputConfig) Validate() error {
	if c.Format != "json" && c.Format != "csv" {
		return fmt.Errorf("unknown output format %s", c.Format)
	}
	return nil
}
