package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/homeplan/core/metrics"
	"github.com/kilianp07/homeplan/infra/logger"
)

// InfluxSink writes solve summaries and solved plans to an InfluxDB instance
// using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordSolve writes one schedule_solve point. Costs are omitted when the solve
// was not optimal since line protocol cannot carry NaN.
func (s *InfluxSink) RecordSolve(ev coremetrics.SolveEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("schedule_solve").
		AddTag("run_id", ev.RunID).
		AddTag("problem", ev.Problem).
		AddTag("status", ev.Status).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		AddField("nodes", ev.Nodes).
		AddField("devices", ev.Devices).
		AddField("horizon", ev.Horizon)
	if !math.IsNaN(ev.FinalCost) {
		p = p.AddField("final_cost", round3(ev.FinalCost))
	}
	if !math.IsNaN(ev.BaselineCost) {
		p = p.AddField("baseline_cost", round3(ev.BaselineCost))
	}
	p = p.SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordPlan writes one schedule_slot point per device and timestep. Plans of
// failed solves carry no values and are skipped.
func (s *InfluxSink) RecordPlan(ev coremetrics.PlanEvent) error {
	if ev.Status != "Optimal" {
		s.log.Warnf("skipping plan %s with status %s", ev.RunID, ev.Status)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var points []*write.Point
	for _, d := range ev.Schedules {
		for t, v := range d.Values {
			p := write.NewPointWithMeasurement("schedule_slot").
				AddTag("run_id", ev.RunID).
				AddTag("device", d.Label).
				AddTag("kind", d.Kind).
				AddField("action", v).
				AddField("soc", round3(d.Levels[t+1])).
				AddField("tariff", round3(ev.TariffRates[t])).
				SetTime(ev.SlotTime(t))
			points = append(points, p)
		}
	}
	if len(points) == 0 {
		return nil
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
