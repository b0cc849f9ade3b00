package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency across the Public API and
// the Registry Auth Service's /token endpoint.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "agentarena",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// MatchesCompletedTotal is the counter for matches completed by the
// Coordinator, by outcome. No code in this module increments it.
var MatchesCompletedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "agentarena",
		Subsystem: "coordinator",
		Name:      "matches_completed_total",
		Help:      "Total number of matches completed by the coordinator, by outcome.",
	},
	[]string{"outcome"}, // finished, failed, timed_out
)

// MachineSpawnDuration is the histogram for Provider.Spawn duration, by
// result. No code in this module observes into it.
var MachineSpawnDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "agentarena",
		Subsystem: "machine",
		Name:      "spawn_duration_seconds",
		Help:      "Machine Spawn call duration in seconds.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
	},
	[]string{"result"}, // ok, error
)

// MachineSpawnFailuresTotal is the counter for Spawn failures, by the stage
// they failed at. No code in this module increments it.
var MachineSpawnFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "agentarena",
		Subsystem: "machine",
		Name:      "spawn_failures_total",
		Help:      "Total number of machine spawn failures, by stage.",
	},
	[]string{"stage"},
)

// ReaperSweepsTotal counts orphan reaper sweep cycles, by result.
var ReaperSweepsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "agentarena",
		Subsystem: "reaper",
		Name:      "sweeps_total",
		Help:      "Total number of orphan reaper sweep cycles run.",
	},
	[]string{"result"},
)

// ReaperDestroyedTotal counts orphaned resources the reaper destroyed.
var ReaperDestroyedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "agentarena",
		Subsystem: "reaper",
		Name:      "destroyed_total",
		Help:      "Total number of orphaned resources destroyed, by result.",
	},
	[]string{"result"}, // ok, error
)

// RegistryTokensIssuedTotal counts tokens the Registry Auth Service signed.
var RegistryTokensIssuedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "agentarena",
		Subsystem: "registryauth",
		Name:      "tokens_issued_total",
		Help:      "Total number of registry tokens issued, by subject kind.",
	},
	[]string{"subject_kind"}, // user, system
)

// RegistryAuthFailuresTotal counts failed /token requests, by reason.
var RegistryAuthFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "agentarena",
		Subsystem: "registryauth",
		Name:      "auth_failures_total",
		Help:      "Total number of failed registry token requests, by reason.",
	},
	[]string{"reason"}, // bad_credentials, rate_limited
)

// All returns the service-specific metrics for registration, on top of the
// Go/process collectors and HTTPRequestDuration registered by
// NewMetricsRegistry.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		MatchesCompletedTotal,
		MachineSpawnDuration,
		MachineSpawnFailuresTotal,
		ReaperSweepsTotal,
		ReaperDestroyedTotal,
		RegistryTokensIssuedTotal,
		RegistryAuthFailuresTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process
// collectors, the shared HTTPRequestDuration metric, and any additional
// service-specific collectors passed as arguments.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
