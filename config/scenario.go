package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/homeplan/core/storage"
)

// DefaultTariffRates is the ten-step time-of-use tariff used when a scenario
// leaves it empty.
var DefaultTariffRates = []float64{0.1, 0.1, 0.2, 0.3, 0.5, 0.7, 0.6, 0.4, 0.05, 0.05}

// DefaultElecUsage is the baseline load matching DefaultTariffRates.
var DefaultElecUsage = []float64{50, 50, 75, 75, 75, 100, 100, 100, 100, 75}

// DeviceConfig describes one storage device. Unset numeric fields take the
// values of storage.DefaultParams.
type DeviceConfig struct {
	// Type is "battery" or "vehicle".
	Type            string   `json:"type"`
	Name            string   `json:"name"`
	Capacity        *float64 `json:"capacity"`
	ChargeRate      *float64 `json:"charge_rate"`
	InitialCharge   *float64 `json:"initial_charge"`
	DegradationCost *float64 `json:"degradation_cost"`
}

// Params merges the configured values over the device defaults.
func (d DeviceConfig) Params() storage.Params {
	p := storage.DefaultParams()
	if d.Capacity != nil {
		p.Capacity = *d.Capacity
	}
	if d.ChargeRate != nil {
		p.ChargeRate = *d.ChargeRate
	}
	if d.InitialCharge != nil {
		p.InitialCharge = *d.InitialCharge
	}
	if d.DegradationCost != nil {
		p.DegradationCost = *d.DegradationCost
	}
	return p
}

// Device builds the unregistered storage device.
func (d DeviceConfig) Device() (*storage.Device, error) {
	kind, err := storage.ParseKind(d.Type)
	if err != nil {
		return nil, err
	}
	dev := storage.New(kind, d.Params())
	dev.Label = d.Name
	return dev, nil
}

// ScenarioConfig is the planning problem: tariff, load and devices.
type ScenarioConfig struct {
	TariffRates             []float64 `json:"tariff_rates"`
	ElecUsage               []float64 `json:"elec_usage"`
	NetMeteringDepreciation float64   `json:"net_metering_depreciation"`
	// Start is the RFC3339 timestamp of timestep 0. Empty means the next
	// full hour.
	Start       string         `json:"start"`
	StepMinutes int            `json:"step_minutes"`
	Devices     []DeviceConfig `json:"devices"`
}

// SetDefaults applies sane defaults.
func (c *ScenarioConfig) SetDefaults() {
	if len(c.TariffRates) == 0 && len(c.ElecUsage) == 0 {
		c.TariffRates = append([]float64(nil), DefaultTariffRates...)
		c.ElecUsage = append([]float64(nil), DefaultElecUsage...)
	}
	if c.StepMinutes <= 0 {
		c.StepMinutes = 60
	}
}

// Validate checks the scenario.
func (c ScenarioConfig) Validate() error {
	if len(c.TariffRates) != len(c.ElecUsage) {
		return fmt.Errorf("tariff_rates has %d values, elec_usage has %d", len(c.TariffRates), len(c.ElecUsage))
	}
	if c.NetMeteringDepreciation < 0 || c.NetMeteringDepreciation > 1 {
		return fmt.Errorf("net_metering_depreciation must be within [0,1], got %g", c.NetMeteringDepreciation)
	}
	if c.Start != "" {
		if _, err := time.Parse(time.RFC3339, c.Start); err != nil {
			return fmt.Errorf("invalid start: %w", err)
		}
	}
	for i, d := range c.Devices {
		if _, err := storage.ParseKind(d.Type); err != nil {
			return fmt.Errorf("device %d: %w", i, err)
		}
		p := d.Params()
		if p.Capacity < 0 || p.ChargeRate < 0 {
			return fmt.Errorf("device %d: capacity and charge_rate must be non-negative", i)
		}
	}
	return nil
}

// StartTime resolves Start relative to now.
func (c ScenarioConfig) StartTime(now time.Time) time.Time {
	if c.Start == "" {
		return now.Truncate(time.Hour).Add(time.Hour)
	}
	t, err := time.Parse(time.RFC3339, c.Start)
	if err != nil {
		return now.Truncate(time.Hour).Add(time.Hour)
	}
	return t
}

// Step is the timestep length.
func (c ScenarioConfig) Step() time.Duration {
	return time.Duration(c.StepMinutes) * time.Minute
}
