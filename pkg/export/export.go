package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"time"

	coremetrics "github.com/kilianp07/homeplan/core/metrics"
)

// Device is the exported schedule of one device. Nil entries mark values
// that are undefined because the solve failed.
type Device struct {
	Label    string     `json:"label"`
	Kind     string     `json:"kind"`
	Schedule []*float64 `json:"schedule"`
	Levels   []*float64 `json:"levels"`
}

// Document is the JSON form of a plan: the tariff curve and every device
// schedule on the same time axis.
type Document struct {
	RunID       string      `json:"run_id"`
	Status      string      `json:"status"`
	FinalCost   *float64    `json:"final_cost"`
	Start       time.Time   `json:"start"`
	StepMinutes float64     `json:"step_minutes"`
	Slots       []time.Time `json:"slots"`
	TariffRates []float64   `json:"tariff_rates"`
	Devices     []Device    `json:"devices"`
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func nullables(vs []float64) []*float64 {
	out := make([]*float64, len(vs))
	for i, v := range vs {
		out[i] = nullable(v)
	}
	return out
}

// NewDocument converts a plan for encoding. NaN values become nil.
func NewDocument(ev coremetrics.PlanEvent) Document {
	doc := Document{
		RunID:       ev.RunID,
		Status:      ev.Status,
		FinalCost:   nullable(ev.FinalCost),
		Start:       ev.Start,
		StepMinutes: ev.Step.Minutes(),
		Slots:       make([]time.Time, len(ev.TariffRates)),
		TariffRates: ev.TariffRates,
		Devices:     make([]Device, len(ev.Schedules)),
	}
	for t := range doc.Slots {
		doc.Slots[t] = ev.SlotTime(t)
	}
	for i, d := range ev.Schedules {
		doc.Devices[i] = Device{Label: d.Label, Kind: d.Kind, Schedule: nullables(d.Values), Levels: nullables(d.Levels)}
	}
	return doc
}

// WriteJSON writes the plan to w in JSON format.
func WriteJSON(w io.Writer, ev coremetrics.PlanEvent) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewDocument(ev))
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteCSV writes the plan to w in CSV format, one row per timestep with a
// column per device. Status and final cost are repeated on every row.
func WriteCSV(w io.Writer, ev coremetrics.PlanEvent) error {
	cw := csv.NewWriter(w)
	header := []string{"timeslot", "tariff_rate"}
	for _, d := range ev.Schedules {
		header = append(header, d.Label)
	}
	header = append(header, "status", "final_cost")
	if err := cw.Write(header); err != nil {
		return err
	}
	for t, rate := range ev.TariffRates {
		rec := []string{ev.SlotTime(t).Format(time.RFC3339), formatFloat(rate)}
		for _, d := range ev.Schedules {
			v := math.NaN()
			if t < len(d.Values) {
				v = d.Values[t]
			}
			rec = append(rec, formatFloat(v))
		}
		rec = append(rec, ev.Status, formatFloat(ev.FinalCost))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
