/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ScheduleTransitionsTotal counts schedule state transitions by target state.
	ScheduleTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerdown_schedule_transitions_total",
			Help: "Total number of schedule state transitions",
		},
		[]string{"from", "to"},
	)

	// ScheduleRejectedOpsTotal counts operations refused by the state machine.
	ScheduleRejectedOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerdown_schedule_rejected_operations_total",
			Help: "Operations refused because of the current state or input",
		},
		[]string{"operation", "reason"},
	)

	// ScheduleState is 1 for the current schedule state and 0 for the others.
	ScheduleState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "powerdown_schedule_state",
			Help: "Current schedule state (1 = active state)",
		},
		[]string{"state"},
	)

	// ScheduleFireTimestamp is the unix time of the armed fire instant, 0 when none.
	ScheduleFireTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "powerdown_schedule_fire_timestamp_seconds",
			Help: "Unix timestamp of the pending shutdown, 0 when none is armed",
		},
	)

	// ExecutorDuration tracks shutdown executor run time by result.
	ExecutorDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "powerdown_executor_duration_seconds",
			Help:    "Shutdown executor duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	// APIRequestDuration tracks HTTP request duration in seconds.
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "powerdown_api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	// APIRequestsTotal counts HTTP requests.
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerdown_api_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// APIActiveConnections is the number of in-flight HTTP requests.
	APIActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "powerdown_api_active_connections",
			Help: "Number of in-flight HTTP requests",
		},
	)

	// StreamClients is the number of connected status stream clients.
	StreamClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "powerdown_stream_clients",
			Help: "Number of connected status stream clients",
		},
	)
)

var registerOnce sync.Once

func init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ScheduleTransitionsTotal,
			ScheduleRejectedOpsTotal,
			ScheduleState,
			ScheduleFireTimestamp,
			ExecutorDuration,
			APIRequestDuration,
			APIRequestsTotal,
			APIActiveConnections,
			StreamClients,
		)
	})
}

// Handler exposes metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
