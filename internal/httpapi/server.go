// Package httpapi exposes the workflow step, direct scan, health and metrics
// endpoints over HTTP.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/bft-labs/virusscan/internal/domain"
	"github.com/bft-labs/virusscan/internal/health"
)

// DefaultAddress is the listen address used when none is configured.
const DefaultAddress = ":20305"

// Submitter queues workflow invocations.
type Submitter interface {
	Submit(inv domain.Invocation) error
}

// Scanner scans a stream and returns its interpreted verdict.
type Scanner interface {
	Scan(ctx context.Context, r io.Reader) (domain.ScanReport, domain.Verdict, error)
}

// HealthRunner runs the liveness checks.
type HealthRunner interface {
	RunAll(ctx context.Context) (map[string]health.Result, bool)
}

// Options wires the server dependencies. Nil Recorder disables request
// metrics; nil MetricsHandler serves the default Prometheus registry.
type Options struct {
	Address        string
	Invoker        Submitter
	Scanner        Scanner
	Health         HealthRunner
	Recorder       RequestRecorder
	MetricsHandler http.Handler
	Logger         zerolog.Logger
	// MaxScanBytes limits POST /scan bodies when positive.
	MaxScanBytes int64
}

// Server is the HTTP front end of the service.
type Server struct {
	opts   Options
	router *gin.Engine
	srv    *http.Server
}

// ScanResponse is the body of a successful POST /scan.
type ScanResponse struct {
	Verdict   string `json:"verdict"`
	Infected  bool   `json:"infected"`
	Signature string `json:"signature,omitempty"`
	Sessions  int    `json:"sessions"`
	Bytes     int64  `json:"bytes"`
}

// New creates the server and registers its routes.
func New(opts Options) *Server {
	if opts.Address == "" {
		opts.Address = DefaultAddress
	}
	if opts.MetricsHandler == nil {
		opts.MetricsHandler = promhttp.Handler()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(opts.Logger))
	if opts.Recorder != nil {
		r.Use(RequestMetrics(opts.Recorder))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		opts:   opts,
		router: r,
		srv: &http.Server{
			Addr:              opts.Address,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.POST("/invoke", s.handleInvoke)
	s.router.POST("/scan", s.handleScan)
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(s.opts.MetricsHandler))
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) ListenAndServe() error {
	s.opts.Logger.Info().Str("address", s.opts.Address).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleInvoke(c *gin.Context) {
	var inv domain.Invocation
	if err := c.ShouldBindJSON(&inv); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invocation body: " + err.Error()})
		return
	}

	err := s.opts.Invoker.Submit(inv)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "queued", "invocationId": inv.InvocationID})
	case errors.Is(err, domain.ErrInvalidInvocation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrQueueFull), errors.Is(err, domain.ErrStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) handleScan(c *gin.Context) {
	body := io.Reader(c.Request.Body)
	if s.opts.MaxScanBytes > 0 {
		body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxScanBytes)
	}

	report, verdict, err := s.opts.Scanner.Scan(c.Request.Context(), body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ScanResponse{
		Verdict:   verdict.Raw,
		Infected:  verdict.Status == domain.VerdictInfected,
		Signature: verdict.Signature,
		Sessions:  report.Sessions,
		Bytes:     report.Bytes,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	results, healthy := s.opts.Health.RunAll(c.Request.Context())
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, results)
}
