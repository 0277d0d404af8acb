// Package metrics implements ports.Metrics with Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/virusscan/internal/domain"
	"github.com/bft-labs/virusscan/internal/ports"
)

const namespace = "virusscan"

// Prometheus holds the service collectors.
type Prometheus struct {
	scans        *prometheus.CounterVec
	scanDuration *prometheus.HistogramVec
	sessions     prometheus.Counter
	bytes        prometheus.Counter
	invocations  *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var _ ports.Metrics = (*Prometheus)(nil)

// New creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &Prometheus{
		scans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scans_total",
				Help:      "Total scans by result.",
			},
			[]string{"result"},
		),
		scanDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scan_duration_seconds",
				Help:      "Scan duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_sessions_total",
			Help:      "Total INSTREAM sessions completed.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_bytes_total",
			Help:      "Total input bytes streamed to the daemon.",
		}),
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Workflow invocations by resumed status.",
			},
			[]string{"status"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}

	for _, c := range []prometheus.Collector{
		p.scans, p.scanDuration, p.sessions, p.bytes,
		p.invocations, p.httpRequests, p.httpDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ObserveScan records a completed scan.
func (p *Prometheus) ObserveScan(report domain.ScanReport, status domain.VerdictStatus, duration time.Duration) {
	result := status.String()
	p.scans.WithLabelValues(result).Inc()
	p.scanDuration.WithLabelValues(result).Observe(duration.Seconds())
	p.sessions.Add(float64(report.Sessions))
	p.bytes.Add(float64(report.Bytes))
}

// ObserveScanError records a scan that failed before producing a verdict.
func (p *Prometheus) ObserveScanError(duration time.Duration) {
	p.scans.WithLabelValues("error").Inc()
	p.scanDuration.WithLabelValues("error").Observe(duration.Seconds())
}

// ObserveInvocation records the status a workflow was resumed with.
func (p *Prometheus) ObserveInvocation(status domain.WorkflowStatus) {
	p.invocations.WithLabelValues(string(status)).Inc()
}

// RecordHTTPRequest records one served HTTP request.
func (p *Prometheus) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusLabel := strconv.Itoa(status)
	p.httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	p.httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
