// Package metrics exports cache, replication and failover events as
// Prometheus metrics.
//
// One Collector implements tiercache.Hooks, replica.Hooks and
// failover.Hooks, so a single value can be passed to all three. Keys are
// never used as label values.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/failover"
	"github.com/unkn0wn-root/tiercache/replica"
)

const namespace = "tiercache"

// cache event label values
const (
	EventHit           = "hit"
	EventMiss          = "miss"
	EventExtendStarted = "extend_started"
	EventExtendFailed  = "extend_failed"
	EventDecodeFailed  = "decode_failed"
)

type Collector struct {
	cacheEvents      *prometheus.CounterVec
	failoverAttempts *prometheus.CounterVec
	failoverDuration prometheus.Histogram
	writeFailures    *prometheus.CounterVec
}

var (
	_ tiercache.Hooks = (*Collector)(nil)
	_ replica.Hooks   = (*Collector)(nil)
	_ failover.Hooks  = (*Collector)(nil)
)

// New registers the collectors on reg. A nil reg uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Collector{
		cacheEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_events_total",
				Help:      "Cache events by tier and kind.",
			},
			[]string{"tier", "event"},
		),
		failoverAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failover_attempts_total",
				Help:      "Failover attempts by outcome.",
			},
			[]string{"outcome"},
		),
		failoverDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "failover_duration_seconds",
				Help:      "Duration of failover attempts that got past the guard.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		writeFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_write_failures_total",
				Help:      "Failed writes to the remote writer by attempt number.",
			},
			[]string{"attempt"},
		),
	}
}

func (c *Collector) event(tier tiercache.TierName, ev string) {
	c.cacheEvents.WithLabelValues(string(tier), ev).Inc()
}

func (c *Collector) Hit(tier tiercache.TierName, _ string)  { c.event(tier, EventHit) }
func (c *Collector) Miss(tier tiercache.TierName, _ string) { c.event(tier, EventMiss) }
func (c *Collector) ExtendStarted(tier tiercache.TierName, _ string) {
	c.event(tier, EventExtendStarted)
}
func (c *Collector) ExtendFailed(tier tiercache.TierName, _ string, _ error) {
	c.event(tier, EventExtendFailed)
}
func (c *Collector) DecodeFailed(tier tiercache.TierName, _ string, _ error) {
	c.event(tier, EventDecodeFailed)
}

func (c *Collector) RemoteWriteFailed(attempt int, _ error) {
	c.writeFailures.WithLabelValues(strconv.Itoa(attempt)).Inc()
}

func (c *Collector) Attempt(outcome failover.Outcome, took time.Duration) {
	c.failoverAttempts.WithLabelValues(outcome.String()).Inc()
	if outcome != failover.OutcomeBusy {
		c.failoverDuration.Observe(took.Seconds())
	}
}
