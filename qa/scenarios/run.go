package scenarios

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kilianp07/homeplan/core/scheduler"
	"github.com/kilianp07/homeplan/core/storage"
	"github.com/kilianp07/homeplan/infra/logger"
	"github.com/kilianp07/homeplan/infra/metrics"
)

const costTolerance = 1e-6

func RunScenario(t *testing.T, sc *Scenario) {
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("prom sink: %v", err)
	}

	devices := make([]*storage.Device, len(sc.Devices))
	for i, d := range sc.Devices {
		if devices[i], err = d.ToDevice(); err != nil {
			t.Fatalf("device %d: %v", i, err)
		}
	}
	opts := []scheduler.Option{
		scheduler.WithLogger(logger.NopLogger{}),
		scheduler.WithMetrics(sink),
		scheduler.WithName(sc.Name),
	}
	if sc.AllowSimultaneous {
		opts = append(opts, scheduler.WithSimultaneousModes())
	}

	s, err := scheduler.New(devices, sc.TariffRates, sc.ElecUsage, sc.NetMeteringDepreciation, opts...)
	if want := sc.Expected.BuildError; want != "" {
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("scenario %s expected build error %q, got %v", sc.Name, want, err)
		}
		return
	}
	if err != nil {
		t.Fatalf("scenario %s: %v", sc.Name, err)
	}

	s.Solve(context.Background())
	if got := s.Status().String(); got != sc.Expected.Status {
		t.Fatalf("scenario %s expected status %s, got %s", sc.Name, sc.Expected.Status, got)
	}
	if n, err := testutil.GatherAndCount(reg, "schedule_solves_total"); err != nil || n != 1 {
		t.Errorf("scenario %s expected one recorded solve series, got %d (%v)", sc.Name, n, err)
	}

	cost := s.FinalCost()
	if sc.Expected.Status == "Optimal" {
		if math.Abs(cost-sc.Expected.FinalCost) > costTolerance {
			t.Errorf("scenario %s expected cost %v, got %v", sc.Name, sc.Expected.FinalCost, cost)
		}
	} else if !math.IsNaN(cost) {
		t.Errorf("scenario %s expected NaN cost, got %v", sc.Name, cost)
	}

	for i, want := range sc.Expected.Schedules {
		got, err := devices[i].ChargeDischargeSchedule()
		if err != nil {
			t.Fatalf("schedule %d: %v", i, err)
		}
		if !sameSchedule(got, want) {
			t.Errorf("scenario %s device %d expected %v, got %v", sc.Name, i, want, got)
		}
	}
}

func sameSchedule(got, want []float64) bool {
	if len(got) != len(want) {
		return false
	}
	for t := range got {
		if math.IsNaN(want[t]) {
			if !math.IsNaN(got[t]) {
				return false
			}
			continue
		}
		if math.Abs(got[t]-want[t]) > costTolerance {
			return false
		}
	}
	return true
}
