// Package metrics exposes dispatch counters and latencies to Prometheus.
//
// Every method is safe on a nil *Collector, so components can be built without metrics in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dispatch"

// Collector owns a private registry so several collectors can coexist in one process.
type Collector struct {
	registry *prometheus.Registry

	jobsSubmitted        prometheus.Counter
	jobOutcomes          *prometheus.CounterVec
	distributionsOpened  prometheus.Counter
	distributionsSettled *prometheus.CounterVec
	transitions          *prometheus.CounterVec
	agentCallDuration    *prometheus.HistogramVec
	agentCallRetries     prometheus.Counter
	sweepRuns            prometheus.Counter
	sweepExpired         prometheus.Counter
	queueDepth           prometheus.Gauge
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Total number of jobs accepted by intake",
		}),
		jobOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_outcomes_total",
			Help:      "Jobs reaching a terminal status, by status",
		}, []string{"status"}),
		distributionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "distributions_opened_total",
			Help:      "Total number of distributions opened",
		}),
		distributionsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "distributions_resolved_total",
			Help:      "Distributions resolved with a winner, by strategy",
		}, []string{"strategy"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignment_transitions_total",
			Help:      "Assignment state transitions, by target status",
		}, []string{"status"}),
		agentCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_call_duration_seconds",
			Help:      "Latency of remote agent calls, by operation and outcome",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"operation", "outcome"}),
		agentCallRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_call_retries_total",
			Help:      "Total number of retried agent call attempts",
		}),
		sweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeout_sweeps_total",
			Help:      "Total number of timeout sweep passes",
		}),
		sweepExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeout_sweep_distributions_total",
			Help:      "Distributions handled by the timeout sweep",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "intake_queue_depth",
			Help:      "Job ids waiting for distribution",
		}),
	}

	c.registry.MustRegister(
		c.jobsSubmitted,
		c.jobOutcomes,
		c.distributionsOpened,
		c.distributionsSettled,
		c.transitions,
		c.agentCallDuration,
		c.agentCallRetries,
		c.sweepRuns,
		c.sweepExpired,
		c.queueDepth,
		prometheus.NewGoCollector(),
	)
	return c
}

func (c *Collector) JobSubmitted() {
	if c == nil {
		return
	}
	c.jobsSubmitted.Inc()
}

// JobOutcome counts a job entering a terminal status (completed, cancelled, expired).
func (c *Collector) JobOutcome(status string) {
	if c == nil {
		return
	}
	c.jobOutcomes.WithLabelValues(status).Inc()
}

func (c *Collector) DistributionOpened() {
	if c == nil {
		return
	}
	c.distributionsOpened.Inc()
}

func (c *Collector) DistributionResolved(strategy string) {
	if c == nil {
		return
	}
	c.distributionsSettled.WithLabelValues(strategy).Inc()
}

func (c *Collector) Transition(status string) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(status).Inc()
}

// AgentCall observes one attempt against an agent endpoint.
func (c *Collector) AgentCall(operation string, ok bool, elapsed time.Duration) {
	if c == nil {
		return
	}
	outcome := "error"
	if ok {
		outcome = "ok"
	}
	c.agentCallDuration.WithLabelValues(operation, outcome).Observe(elapsed.Seconds())
}

func (c *Collector) AgentCallRetry() {
	if c == nil {
		return
	}
	c.agentCallRetries.Inc()
}

func (c *Collector) SweepRun(handled int) {
	if c == nil {
		return
	}
	c.sweepRuns.Inc()
	c.sweepExpired.Add(float64(handled))
}

func (c *Collector) QueueDepth(n int) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(n))
}

// Registry exposes the private registry for tests and custom exporters.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
