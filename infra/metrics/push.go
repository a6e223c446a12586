package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushMetrics sends everything collected by g to a Prometheus Pushgateway.
// Solves are short-lived batch runs, so metrics are pushed rather than scraped.
func PushMetrics(ctx context.Context, url, job string, g prometheus.Gatherer) error {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return push.New(url, job).Gatherer(g).PushContext(ctx)
}
