package app

import (
	"context"
	"io"
	"time"

	"github.com/bft-labs/virusscan/internal/domain"
	"github.com/bft-labs/virusscan/internal/ports"
)

// ScanService runs a scan, interprets the daemon responses and records metrics.
type ScanService struct {
	scanner ports.Scanner
	metrics ports.Metrics
	logger  ports.Logger
}

// NewScanService creates a scan service. A nil metrics discards observations.
func NewScanService(scanner ports.Scanner, metrics ports.Metrics, logger ports.Logger) *ScanService {
	if metrics == nil {
		metrics = ports.NoopMetrics{}
	}
	return &ScanService{
		scanner: scanner,
		metrics: metrics,
		logger:  logger,
	}
}

// Scan streams r to the daemon. The returned verdict is the first infected or
// error response across all sessions, or the last response when all are clean.
func (s *ScanService) Scan(ctx context.Context, r io.Reader) (domain.ScanReport, domain.Verdict, error) {
	start := time.Now()
	report, err := s.scanner.Scan(ctx, r)
	duration := time.Since(start)

	if err != nil {
		s.metrics.ObserveScanError(duration)
		s.logger.Error("scan failed",
			ports.Err(err),
			ports.Int("sessions", report.Sessions),
			ports.Int64("bytes", report.Bytes),
		)
		return report, domain.Verdict{Status: domain.VerdictError}, err
	}

	verdict := report.Interpret()
	s.metrics.ObserveScan(report, verdict.Status, duration)
	s.logger.Info("scan finished",
		ports.String("verdict", verdict.Status.String()),
		ports.Int("sessions", report.Sessions),
		ports.Int64("bytes", report.Bytes),
		ports.Duration("duration", duration),
	)
	return report, verdict, nil
}
