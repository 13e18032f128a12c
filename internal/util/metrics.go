package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StockMovementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_movements_total",
		Help: "Total number of committed stock movements",
	}, []string{"type"})

	StockMovementUnits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_movement_units_total",
		Help: "Total absolute units moved, by movement type",
	}, []string{"type"})

	StockOperationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_operations_failed_total",
		Help: "Total number of rejected or failed stock operations",
	}, []string{"operation", "reason"})

	StockOperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stock_operation_latency_seconds",
		Help:    "Latency of stock operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	StockAlertsRaisedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_alerts_raised_total",
		Help: "Total number of stock alerts raised",
	}, []string{"type", "priority"})

	StockAlertsResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_alerts_resolved_total",
		Help: "Total number of stock alerts resolved",
	}, []string{"type"})

	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_transfers_total",
		Help: "Total number of transfers by final state",
	}, []string{"state"})

	LedgerIntegrityFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_integrity_failures_total",
		Help: "Transfers whose compensating movement could not be recorded",
	})

	ReportGenerationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_report_latency_seconds",
		Help:    "Latency of reorder and inventory report generation",
		Buckets: prometheus.DefBuckets,
	}, []string{"report"})

	OrderEventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_events_processed_total",
		Help: "Total number of consumed order events by outcome",
	}, []string{"event_type", "outcome"})

	EventsPublishFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_events_publish_failed_total",
		Help: "Total number of stock events that could not be published",
	}, []string{"event_type"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
