/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// API metrics
var (
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grimnir_api_request_duration_seconds",
			Help:    "HTTP request latency by method, route and status.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimnir_api_requests_total",
			Help: "HTTP requests by method, route and status.",
		},
		[]string{"method", "endpoint", "status"},
	)
	APIActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grimnir_api_active_connections",
			Help: "In-flight HTTP requests.",
		},
	)
	WebsocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grimnir_websocket_connections",
			Help: "Connected event stream clients.",
		},
	)
)

// Playout metrics
var (
	PlayoutDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimnir_playout_decisions_total",
			Help: "Committed playout decisions by reason.",
		},
		[]string{"station", "reason"},
	)
	PlayoutDecisionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grimnir_playout_decision_duration_seconds",
			Help:    "Time spent resolving a decision cycle.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"station"},
	)
	PlayoutState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "grimnir_playout_state",
			Help: "Current engine state (1 for the active state, 0 otherwise).",
		},
		[]string{"station", "state"},
	)
	PlayoutPreemptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimnir_playout_preemptions_total",
			Help: "Live entries that preempted recorded playback.",
		},
		[]string{"station"},
	)
	PlayoutStarvation = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimnir_playout_starvation_total",
			Help: "Times the engine had nothing eligible to play.",
		},
		[]string{"station"},
	)
	PlayoutLiveFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimnir_playout_live_failures_total",
			Help: "Live sources that could not be reached.",
		},
		[]string{"station"},
	)
	PlayoutRecordedFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimnir_playout_recorded_failures_total",
			Help: "Recorded items that failed to start.",
		},
		[]string{"station"},
	)
	PlayoutSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimnir_playout_skips_total",
			Help: "Operator skip requests by result.",
		},
		[]string{"station", "result"},
	)
	PlayoutTicksCoalesced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimnir_playout_ticks_coalesced_total",
			Help: "Ticks dropped because a decision was already in flight.",
		},
		[]string{"station"},
	)
)

// Catalog and schedule metrics
var (
	CatalogTracks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "grimnir_catalog_tracks",
			Help: "Tracks in the active catalog.",
		},
		[]string{"station"},
	)
	CatalogReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimnir_catalog_reloads_total",
			Help: "Catalog reload attempts by result.",
		},
		[]string{"station", "result"},
	)
	ScheduleEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "grimnir_schedule_entries",
			Help: "Live entries in the active schedule.",
		},
		[]string{"station"},
	)
	ScheduleReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimnir_schedule_reloads_total",
			Help: "Schedule reload attempts by result.",
		},
		[]string{"station", "result"},
	)
)

// Infrastructure metrics
var (
	LeaderElectionStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "grimnir_leader_election_status",
			Help: "1 when this instance holds the playout lease.",
		},
		[]string{"instance_id"},
	)
	LeaderElectionChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimnir_leader_election_changes_total",
			Help: "Leadership transitions observed by this instance.",
		},
		[]string{"instance_id", "change"},
	)
	EventBusPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimnir_eventbus_published_total",
			Help: "Events forwarded to the external bus by result.",
		},
		[]string{"backend", "result"},
	)
	PlayHistoryWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimnir_play_history_writes_total",
			Help: "Play history rows written by result.",
		},
		[]string{"result"},
	)
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimnir_webhook_deliveries_total",
			Help: "Webhook deliveries by target and result.",
		},
		[]string{"target", "result"},
	)
	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grimnir_database_query_duration_seconds",
			Help:    "Database operation latency by operation and table.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)
	DatabaseErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimnir_database_errors_total",
			Help: "Database operation errors by operation.",
		},
		[]string{"operation", "error_type"},
	)
	DatabaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grimnir_database_connections_active",
			Help: "Open database connections in the pool.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		APIRequestDuration, APIRequestsTotal, APIActiveConnections, WebsocketConnections,
		PlayoutDecisions, PlayoutDecisionDuration, PlayoutState, PlayoutPreemptions,
		PlayoutStarvation, PlayoutLiveFailures, PlayoutRecordedFailures, PlayoutSkips, PlayoutTicksCoalesced,
		CatalogTracks, CatalogReloads, ScheduleEntries, ScheduleReloads,
		LeaderElectionStatus, LeaderElectionChanges, EventBusPublished, PlayHistoryWrites, WebhookDeliveries,
		DatabaseQueryDuration, DatabaseErrorsTotal, DatabaseConnectionsActive,
	)
}

// Handler exposes metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
