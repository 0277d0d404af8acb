package ports

import (
	"time"

	"github.com/bft-labs/virusscan/internal/domain"
)

// Metrics records scan and invocation outcomes.
type Metrics interface {
	ObserveScan(report domain.ScanReport, status domain.VerdictStatus, duration time.Duration)
	ObserveScanError(duration time.Duration)
	ObserveInvocation(status domain.WorkflowStatus)
}

// NoopMetrics discards all observations.
type NoopMetrics struct{}

func (NoopMetrics) ObserveScan(domain.ScanReport, domain.VerdictStatus, time.Duration) {}
func (NoopMetrics) ObserveScanError(time.Duration)                                      {}
func (NoopMetrics) ObserveInvocation(domain.WorkflowStatus)                             {}
