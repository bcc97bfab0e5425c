// Package metrics exposes Prometheus instrumentation for the users loader.
package metrics

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/samvad-hq/userloader/pkg/httpclient"
	"github.com/samvad-hq/userloader/pkg/loader"
)

// Collector is a loader.Observer recording trigger and outcome metrics. It is safe for
// concurrent use.
type Collector struct {
	triggersTotal   *prometheus.CounterVec
	outcomesTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge

	mu      sync.Mutex
	started map[uint64]time.Time
	now     func() time.Time
}

// NewCollector registers the loader metrics on registry.
func NewCollector(registry prometheus.Registerer) *Collector {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	return &Collector{
		triggersTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "userloader_triggers_total",
				Help: "Total number of loader triggers",
			},
			[]string{"method"},
		),
		outcomesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "userloader_outcomes_total",
				Help: "Total number of settled loader calls by outcome",
			},
			[]string{"method", "outcome", "status_code"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "userloader_request_duration_seconds",
				Help:    "Duration of loader calls from trigger to settle",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "outcome"},
		),
		inFlight: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "userloader_in_flight",
				Help: "Number of loader calls currently in flight",
			},
		),
		started: make(map[uint64]time.Time),
		now:     time.Now,
	}
}

func (c *Collector) OnStart(_ context.Context, call loader.Call) {
	c.triggersTotal.WithLabelValues(call.Request.Method.String()).Inc()
	c.inFlight.Inc()

	c.mu.Lock()
	c.started[call.Seq] = c.now()
	c.mu.Unlock()
}

func (c *Collector) OnSuccess(_ context.Context, call loader.Call, resp httpclient.Response) {
	c.settle(call, "success", resp.StatusCode())
}

func (c *Collector) OnFailure(_ context.Context, call loader.Call, err error) {
	if errors.Is(err, loader.ErrSuperseded) {
		c.settle(call, "superseded", 0)
		return
	}
	c.settle(call, "failure", loader.StatusCodeOf(err))
}

func (c *Collector) settle(call loader.Call, outcome string, status int) {
	method := call.Request.Method.String()
	code := "none"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	c.outcomesTotal.WithLabelValues(method, outcome, code).Inc()
	c.inFlight.Dec()

	c.mu.Lock()
	start, ok := c.started[call.Seq]
	delete(c.started, call.Seq)
	c.mu.Unlock()
	if ok {
		c.requestDuration.WithLabelValues(method, outcome).Observe(c.now().Sub(start).Seconds())
	}
}
