package clamd

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/bft-labs/virusscan/internal/domain"
	"github.com/bft-labs/virusscan/internal/testutil"
)

func newServerClient(t *testing.T, srv *testutil.ClamdServer, cfg domain.SessionConfig, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithDialTimeout(2 * time.Second)}, opts...)
	c, err := New("tcp", srv.Addr(), cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// straddlingInput places the EICAR string across the first session boundary.
func straddlingInput(chunk int) []byte {
	input := bytes.Repeat([]byte("a"), 2*chunk)
	copy(input[chunk-40:], testutil.EICAR)
	return input
}

func TestScanAgainstServer_OverlapDetectsStraddlingSignature(t *testing.T) {
	srv := testutil.NewClamdServer(testutil.EICARVerdict)
	defer srv.Close()

	cfg := domain.SessionConfig{ChunkSize: 200, BufferSize: 16, OverlapSize: 80}
	c := newServerClient(t, srv, cfg)

	report, err := c.Scan(context.Background(), bytes.NewReader(straddlingInput(cfg.ChunkSize)))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report.Sessions != 2 {
		t.Fatalf("Sessions = %d, want 2", report.Sessions)
	}

	v := report.Interpret()
	if v.Status != domain.VerdictInfected {
		t.Fatalf("verdict = %v (%q), want infected", v.Status, report.Responses)
	}
	if v.Signature != "Eicar-Test-Signature" {
		t.Errorf("Signature = %q", v.Signature)
	}
	if report.Responses[0] != "stream: OK" {
		t.Errorf("first session = %q, want clean (signature is split)", report.Responses[0])
	}
}

func TestScanAgainstServer_NoOverlapMissesStraddlingSignature(t *testing.T) {
	srv := testutil.NewClamdServer(testutil.EICARVerdict)
	defer srv.Close()

	cfg := domain.SessionConfig{ChunkSize: 200, BufferSize: 16, OverlapSize: 0}
	c := newServerClient(t, srv, cfg)

	report, err := c.Scan(context.Background(), bytes.NewReader(straddlingInput(cfg.ChunkSize)))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if v := report.Interpret(); v.Status != domain.VerdictClean {
		t.Errorf("verdict = %v, want clean without overlap", v.Status)
	}
}

func TestScanAgainstServer_SessionsStayWithinStreamLimit(t *testing.T) {
	srv := testutil.NewClamdServer(nil)
	cfg := domain.SessionConfig{ChunkSize: 100, BufferSize: 30, OverlapSize: 25}
	srv.StreamMaxLength = cfg.MaxSessionBytes()
	defer srv.Close()

	c := newServerClient(t, srv, cfg)
	report, err := c.Scan(context.Background(), bytes.NewReader(patternInput(1234)))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report.Sessions != 13 {
		t.Errorf("Sessions = %d, want 13", report.Sessions)
	}
	for i, s := range srv.Sessions() {
		if len(s) > cfg.MaxSessionBytes() {
			t.Errorf("session %d carried %d bytes, limit %d", i+1, len(s), cfg.MaxSessionBytes())
		}
	}
}

func TestScanAgainstServer_StreamLimitExceeded(t *testing.T) {
	srv := testutil.NewClamdServer(nil)
	srv.StreamMaxLength = 50
	defer srv.Close()

	c := newServerClient(t, srv, domain.SessionConfig{ChunkSize: 100, BufferSize: 20, OverlapSize: 10})
	_, err := c.Scan(context.Background(), strings.NewReader(strings.Repeat("b", 80)))
	if !IsProtocolError(err) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestScanAgainstServer_ConnectionPerSession(t *testing.T) {
	srv := testutil.NewClamdServer(nil)
	srv.CloseAfterReply = true
	defer srv.Close()

	cfg := domain.SessionConfig{ChunkSize: 64, BufferSize: 16, OverlapSize: 8}

	c := newServerClient(t, srv, cfg, WithConnectionPerSession(true))
	report, err := c.Scan(context.Background(), bytes.NewReader(patternInput(300)))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report.Sessions != 5 {
		t.Errorf("Sessions = %d, want 5", report.Sessions)
	}
	if srv.Connections() != 5 {
		t.Errorf("Connections = %d, want 5", srv.Connections())
	}

	shared := newServerClient(t, srv, cfg)
	if _, err := shared.Scan(context.Background(), bytes.NewReader(patternInput(300))); !IsTransportError(err) {
		t.Errorf("expected transport error when the daemon closes between sessions, got %v", err)
	}
}

func TestPingAgainstServer(t *testing.T) {
	srv := testutil.NewClamdServer(nil)
	defer srv.Close()

	c := newServerClient(t, srv, domain.SessionConfig{ChunkSize: 100, BufferSize: 20, OverlapSize: 20})
	got, err := c.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if got != "PONG\n" {
		t.Errorf("Ping = %q, want %q", got, "PONG\n")
	}
}

func TestPingAgainstServer_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c, err := New("tcp", addr, domain.SessionConfig{ChunkSize: 100, BufferSize: 20, OverlapSize: 20})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Ping(context.Background()); !IsTransportError(err) {
		t.Errorf("expected transport error, got %v", err)
	}
}
