package scenarios

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/homeplan/core/storage"
)

type DeviceDef struct {
	Type            string  `yaml:"type"`
	Capacity        float64 `yaml:"capacity"`
	ChargeRate      float64 `yaml:"charge_rate"`
	InitialCharge   float64 `yaml:"initial_charge"`
	DegradationCost float64 `yaml:"degradation_cost"`
	// Defaults selects storage.DefaultParams and ignores the fields above.
	Defaults bool `yaml:"defaults"`
}

func (d DeviceDef) ToDevice() (*storage.Device, error) {
	kind, err := storage.ParseKind(d.Type)
	if err != nil {
		return nil, err
	}
	p := storage.Params{
		Capacity:        d.Capacity,
		ChargeRate:      d.ChargeRate,
		InitialCharge:   d.InitialCharge,
		DegradationCost: d.DegradationCost,
	}
	if d.Defaults {
		p = storage.DefaultParams()
	}
	return storage.New(kind, p), nil
}

type Expected struct {
	// BuildError, when set, must be contained in the construction error.
	BuildError string  `yaml:"build_error,omitempty"`
	Status     string  `yaml:"status"`
	FinalCost  float64 `yaml:"final_cost"`
	// Schedules are compared per device when present; .nan matches NaN.
	Schedules [][]float64 `yaml:"schedules,omitempty"`
}

type Scenario struct {
	Name                    string      `yaml:"name"`
	Description             string      `yaml:"description,omitempty"`
	TariffRates             []float64   `yaml:"tariff_rates"`
	ElecUsage               []float64   `yaml:"elec_usage"`
	NetMeteringDepreciation float64     `yaml:"net_metering_depreciation"`
	AllowSimultaneous       bool        `yaml:"allow_simultaneous"`
	Devices                 []DeviceDef `yaml:"devices"`
	Expected                Expected    `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}
