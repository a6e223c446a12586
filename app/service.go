package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/homeplan/config"
	coremetrics "github.com/kilianp07/homeplan/core/metrics"
	"github.com/kilianp07/homeplan/core/scheduler"
	"github.com/kilianp07/homeplan/core/storage"
	"github.com/kilianp07/homeplan/infra/logger"
	"github.com/kilianp07/homeplan/infra/metrics"
	"github.com/kilianp07/homeplan/infra/mqtt"
	"github.com/kilianp07/homeplan/pkg/export"
)

// Service turns a configuration into a solved, exported and published plan.
type Service struct {
	cfg       *config.Config
	log       logger.Logger
	sink      coremetrics.MetricsSink
	recorders []coremetrics.PlanRecorder
	closers   []func()
	out       io.Writer
	gatherer  prometheus.Gatherer
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithOutput overrides the destination of the exported plan.
func WithOutput(w io.Writer) Option { return func(s *Service) { s.out = w } }

// WithPlanRecorder adds a recorder that receives every solved plan.
func WithPlanRecorder(r coremetrics.PlanRecorder) Option {
	return func(s *Service) { s.recorders = append(s.recorders, r) }
}

// WithClock sets the clock used to resolve an unset scenario start.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithGatherer sets the registry pushed to the Pushgateway.
func WithGatherer(g prometheus.Gatherer) Option { return func(s *Service) { s.gatherer = g } }

// New creates a Service from the configuration. Metrics sinks and the MQTT
// publisher are connected here.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	logger.Configure(cfg.Logging.Level, cfg.Logging.Console)
	s := &Service{
		cfg:      cfg,
		log:      logger.New("service"),
		gatherer: prometheus.DefaultGatherer,
		now:      time.Now,
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	s.sink = sink
	s.trackCloser(sink)
	if rec, ok := sink.(coremetrics.PlanRecorder); ok {
		s.recorders = append(s.recorders, rec)
	}
	if cfg.MQTT.Enabled() {
		pub, err := mqtt.NewPlanPublisher(cfg.MQTT)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		s.recorders = append(s.recorders, pub)
		s.trackCloser(pub)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) trackCloser(v any) {
	switch c := v.(type) {
	case *coremetrics.MultiSink:
		for _, inner := range c.Sinks {
			s.trackCloser(inner)
		}
	case io.Closer:
		s.closers = append(s.closers, func() {
			if err := c.Close(); err != nil {
				s.log.Errorf("close: %v", err)
			}
		})
	case interface{ Close() }:
		s.closers = append(s.closers, c.Close)
	}
}

// Devices builds the configured storage devices in order.
func (s *Service) Devices() ([]*storage.Device, error) {
	devices := make([]*storage.Device, len(s.cfg.Scenario.Devices))
	for i, dc := range s.cfg.Scenario.Devices {
		d, err := dc.Device()
		if err != nil {
			return nil, fmt.Errorf("device %d: %w", i, err)
		}
		devices[i] = d
	}
	return devices, nil
}

// Plan builds and solves the configured scenario. A failed solve is not an
// error: the plan carries the status and NaN values.
func (s *Service) Plan(ctx context.Context) (coremetrics.PlanEvent, error) {
	sc := s.cfg.Scenario
	devices, err := s.Devices()
	if err != nil {
		return coremetrics.PlanEvent{}, err
	}
	opts := []scheduler.Option{
		scheduler.WithLogger(logger.New("scheduler")),
		scheduler.WithMetrics(s.sink),
	}
	if s.cfg.Solver.AllowSimultaneous {
		opts = append(opts, scheduler.WithSimultaneousModes())
	}
	sched, err := scheduler.New(devices, sc.TariffRates, sc.ElecUsage, sc.NetMeteringDepreciation, opts...)
	if err != nil {
		return coremetrics.PlanEvent{}, err
	}
	sched.Solve(ctx, s.cfg.Solver.Options()...)
	return sched.Plan(sc.StartTime(s.now()), sc.Step())
}

// Run solves the scenario, writes the export and hands the plan to every
// recorder. Recorder and push failures are logged, not returned.
func (s *Service) Run(ctx context.Context) (coremetrics.PlanEvent, error) {
	plan, err := s.Plan(ctx)
	if err != nil {
		return plan, err
	}
	if err := s.write(plan); err != nil {
		return plan, fmt.Errorf("export: %w", err)
	}
	for _, rec := range s.recorders {
		if err := rec.RecordPlan(plan); err != nil {
			s.log.Errorf("record plan: %v", err)
		}
	}
	if url := s.cfg.PushGateway; url != "" {
		if err := metrics.PushMetrics(ctx, url, "homeplan", s.gatherer); err != nil {
			s.log.Errorf("push metrics: %v", err)
		}
	}
	return plan, nil
}

func (s *Service) write(plan coremetrics.PlanEvent) (err error) {
	w := s.out
	if w == nil {
		if s.cfg.Output.Path == "" || s.cfg.Output.Path == "-" {
			w = os.Stdout
		} else {
			var f *os.File
			if f, err = os.Create(s.cfg.Output.Path); err != nil {
				return err
			}
			defer func() { err = errors.Join(err, f.Close()) }()
			w = f
		}
	}
	switch s.cfg.Output.Format {
	case "csv":
		return export.WriteCSV(w, plan)
	default:
		return export.WriteJSON(w, plan)
	}
}

// Close releases sinks and publishers.
func (s *Service) Close() {
	for _, c := range s.closers {
		c()
	}
	s.closers = nil
}
