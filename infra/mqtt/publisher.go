package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	coremetrics "github.com/kilianp07/homeplan/core/metrics"
	"github.com/kilianp07/homeplan/infra/logger"
	"github.com/kilianp07/homeplan/pkg/export"
)

// PlanPublisher publishes solved plans to an MQTT topic so that home
// automation can pick them up. It implements metrics.PlanRecorder.
type PlanPublisher struct {
	cli        pahoClient
	topic      string
	qos        byte
	retain     bool
	maxRetries int
	backoff    time.Duration
	logger     logger.Logger
}

// NewPlanPublisher connects to the broker described by cfg.
func NewPlanPublisher(cfg Config) (*PlanPublisher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_publisher")
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &PlanPublisher{
		cli:        c,
		topic:      cfg.PlanTopic,
		qos:        cfg.QoS,
		retain:     cfg.Retain,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		logger:     log,
	}, nil
}

type planPayload struct {
	export.Document
	PublishedAt int64 `json:"published_at"`
}

// EncodePlan renders ev as the JSON document published on the plan topic.
// NaN values of failed solves are encoded as null.
func EncodePlan(ev coremetrics.PlanEvent, now time.Time) ([]byte, error) {
	return json.Marshal(planPayload{Document: export.NewDocument(ev), PublishedAt: now.UnixMilli()})
}

// RecordPlan publishes the plan, retrying with exponential backoff.
func (p *PlanPublisher) RecordPlan(ev coremetrics.PlanEvent) error {
	if ev.RunID == "" {
		ev.RunID = uuid.NewString()
	}
	payload, err := EncodePlan(ev, time.Now())
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("%s/%s", p.topic, ev.RunID)
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, p.qos, p.retain, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Infof("published plan %s to %s", ev.RunID, topic)
			return nil
		}
		p.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		time.Sleep(p.backoff * time.Duration(1<<attempt))
	}
	return publishErr
}

// Close gracefully closes the MQTT connection.
func (p *PlanPublisher) Close() error {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
	return nil
}
