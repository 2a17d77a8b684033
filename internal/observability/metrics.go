// Package observability — metrics.go
//
// Prometheus metrics for fermentctl.
//
// Endpoint: GET /metrics on 127.0.0.1:9091 (configurable).
// Format: Prometheus text exposition format (OpenMetrics compatible).
// Bind: the configured address, loopback by default.
//
// Metric naming convention: fermentctl_<subsystem>_<name>_<unit>
//
// All metrics are registered on a dedicated prometheus.Registry (not the
// default global registry) to avoid collisions with other instrumented
// libraries in the same process.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric descriptors for fermentctl.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Ingress ──────────────────────────────────────────────────────────────

	// MessagesReceivedTotal counts inbound messages that decoded
	// successfully; decode failures are counted by MessagesDecodeErrorsTotal.
	// Labels: kind (schedule, tracking)
	MessagesReceivedTotal *prometheus.CounterVec

	// MessagesDecodeErrorsTotal counts envelope decode failures.
	MessagesDecodeErrorsTotal prometheus.Counter

	// ─── Scheduler ────────────────────────────────────────────────────────────

	// SchedulesAcceptedTotal counts schedule messages that expanded and
	// persisted successfully.
	SchedulesAcceptedTotal prometheus.Counter

	// SchedulesRejectedTotal counts schedule messages rejected by
	// validation or expansion. Labels: reason.
	SchedulesRejectedTotal *prometheus.CounterVec

	// CommandsExpandedTotal counts atomic set-point commands produced by
	// the ramp-expansion algorithm.
	CommandsExpandedTotal prometheus.Counter

	// ─── Executor ─────────────────────────────────────────────────────────────

	// TrackingProcessedTotal counts tracking messages processed.
	TrackingProcessedTotal prometheus.Counter

	// CommandsActivatedTotal counts commands transitioned Planned→Running.
	// Labels: hardware (Heating, Cooling)
	CommandsActivatedTotal *prometheus.CounterVec

	// CommandsExecutedTotal counts commands transitioned Running→Executed.
	CommandsExecutedTotal prometheus.Counter

	// ExecutorErrorsTotal counts Process errors, by class (not_found,
	// status_error, technical_error).
	ExecutorErrorsTotal *prometheus.CounterVec

	// ─── Transport ────────────────────────────────────────────────────────────

	// PublishLatency records hardware-actuation publish latency.
	PublishLatency prometheus.Histogram

	// PublishErrorsTotal counts publisher failures.
	PublishErrorsTotal prometheus.Counter

	// ─── Store ────────────────────────────────────────────────────────────────

	// StoreQueryLatency records command-store round-trip latency.
	// Labels: operation
	StoreQueryLatency *prometheus.HistogramVec

	// ─── Process ──────────────────────────────────────────────────────────────

	// UptimeSeconds is the number of seconds since process start.
	UptimeSeconds prometheus.Gauge

	startTime time.Time
}

// NewMetrics creates and registers all fermentctl Prometheus metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		MessagesReceivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fermentctl",
			Subsystem: "ingress",
			Name:      "messages_received_total",
			Help:      "Total inbound messages decoded successfully, by kind.",
		}, []string{"kind"}),

		MessagesDecodeErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fermentctl",
			Subsystem: "ingress",
			Name:      "decode_errors_total",
			Help:      "Total inbound messages that failed envelope decoding.",
		}),

		SchedulesAcceptedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fermentctl",
			Subsystem: "scheduler",
			Name:      "schedules_accepted_total",
			Help:      "Total schedule messages expanded and persisted successfully.",
		}),

		SchedulesRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fermentctl",
			Subsystem: "scheduler",
			Name:      "schedules_rejected_total",
			Help:      "Total schedule messages rejected, by reason.",
		}, []string{"reason"}),

		CommandsExpandedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fermentctl",
			Subsystem: "scheduler",
			Name:      "commands_expanded_total",
			Help:      "Total atomic set-point commands produced by ramp expansion.",
		}),

		TrackingProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fermentctl",
			Subsystem: "executor",
			Name:      "tracking_processed_total",
			Help:      "Total tracking messages processed.",
		}),

		CommandsActivatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fermentctl",
			Subsystem: "executor",
			Name:      "commands_activated_total",
			Help:      "Total commands transitioned Planned to Running, by hardware.",
		}, []string{"hardware"}),

		CommandsExecutedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fermentctl",
			Subsystem: "executor",
			Name:      "commands_executed_total",
			Help:      "Total commands transitioned Running to Executed.",
		}),

		ExecutorErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fermentctl",
			Subsystem: "executor",
			Name:      "errors_total",
			Help:      "Total Process errors, by class.",
		}, []string{"class"}),

		PublishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fermentctl",
			Subsystem: "transport",
			Name:      "publish_latency_seconds",
			Help:      "Hardware actuation publish latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		PublishErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fermentctl",
			Subsystem: "transport",
			Name:      "publish_errors_total",
			Help:      "Total hardware actuation publish failures.",
		}),

		StoreQueryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fermentctl",
			Subsystem: "store",
			Name:      "query_latency_seconds",
			Help:      "Command store round-trip latency in seconds, by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		UptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fermentctl",
			Subsystem: "process",
			Name:      "uptime_seconds",
			Help:      "Number of seconds since the process started.",
		}),
	}

	reg.MustRegister(
		m.MessagesReceivedTotal,
		m.MessagesDecodeErrorsTotal,
		m.SchedulesAcceptedTotal,
		m.SchedulesRejectedTotal,
		m.CommandsExpandedTotal,
		m.TrackingProcessedTotal,
		m.CommandsActivatedTotal,
		m.CommandsExecutedTotal,
		m.ExecutorErrorsTotal,
		m.PublishLatency,
		m.PublishErrorsTotal,
		m.StoreQueryLatency,
		m.UptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// ServeMetrics starts the Prometheus HTTP metrics server on the given address.
// Blocks until ctx is cancelled or the server fails.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

// updateUptime periodically updates the UptimeSeconds gauge.
func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.UptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
