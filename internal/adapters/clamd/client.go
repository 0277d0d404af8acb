package clamd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	logadapter "github.com/bft-labs/virusscan/internal/adapters/log"
	"github.com/bft-labs/virusscan/internal/domain"
	"github.com/bft-labs/virusscan/internal/ports"
)

const (
	DefaultNetwork = "tcp"
	DefaultAddress = "localhost:3310"
)

// Client talks to the scanning daemon. Every call opens its own connection
// and closes it before returning, so a Client is safe for concurrent use.
type Client struct {
	network        string
	address        string
	dialer         ports.Dialer
	dialTimeout    time.Duration
	connPerSession bool
	logger         ports.Logger

	mu      sync.RWMutex
	session domain.SessionConfig
}

// Option configures the client.
type Option func(*Client)

// WithDialer replaces the connection factory. Tests use it to substitute
// in-memory connections for a real socket.
func WithDialer(d ports.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithDialTimeout bounds connection establishment. Non-positive durations are ignored.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l ports.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithConnectionPerSession makes Scan open a fresh connection for every
// session after the first. Daemons that close the connection after each
// INSTREAM reply need this for inputs larger than one chunk.
func WithConnectionPerSession(enabled bool) Option {
	return func(c *Client) {
		c.connPerSession = enabled
	}
}

// New creates a client for the daemon at network/address.
func New(network, address string, session domain.SessionConfig, opts ...Option) (*Client, error) {
	if err := session.Validate(); err != nil {
		return nil, err
	}
	if address == "" {
		return nil, fmt.Errorf("%w: clamd address is required", domain.ErrInvalidConfig)
	}
	if network == "" {
		network = DefaultNetwork
	}

	c := &Client{
		network: network,
		address: address,
		dialer:  &net.Dialer{},
		logger:  logadapter.NewNoopLogger(),
		session: session,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SessionConfig returns the sizes new scans will use.
func (c *Client) SessionConfig() domain.SessionConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// SetSessionConfig replaces the sizes for scans started after the call.
// Scans in flight keep the sizes they started with.
func (c *Client) SetSessionConfig(cfg domain.SessionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.session = cfg
	c.mu.Unlock()
	return nil
}

// Ping sends the liveness probe and returns the raw reply, normally "PONG\n".
func (c *Client) Ping(ctx context.Context) (string, error) {
	return c.command(ctx, cmdPing, "ping")
}

// Version returns the daemon's version line without its delimiter.
func (c *Client) Version(ctx context.Context) (string, error) {
	line, err := c.command(ctx, cmdVersion, "version")
	if err != nil {
		return "", err
	}
	return trimResponse(line), nil
}

// Scan streams r to the daemon, splitting it into sessions of at most
// ChunkSize new bytes with OverlapSize bytes of continuity between them.
// A failed session fails the whole scan and no partial report is returned.
func (c *Client) Scan(ctx context.Context, r io.Reader) (domain.ScanReport, error) {
	cfg := c.SessionConfig()
	start := time.Now()

	conn, err := c.open(ctx)
	if err != nil {
		c.logger.Error("clamd connection failed", ports.String("address", c.address), ports.Err(err))
		return domain.ScanReport{}, err
	}

	s := newStreamer(cfg, conn, c.logger)
	if c.connPerSession {
		s.redial = func() (io.ReadWriteCloser, error) {
			next, err := c.open(ctx)
			if err != nil {
				return nil, err
			}
			return next, nil
		}
	}
	defer s.close()

	if err := s.run(ctx, r); err != nil {
		err = withContext(ctx, err)
		c.logger.Error("scan failed",
			ports.Int("sessions", s.report.Sessions),
			ports.Int64("bytes", s.report.Bytes),
			ports.Err(err),
		)
		return domain.ScanReport{}, err
	}

	c.logger.Debug("scan complete",
		ports.Int("sessions", s.report.Sessions),
		ports.Int64("bytes", s.report.Bytes),
		ports.String("verdict", s.report.Verdict),
		ports.Duration("duration", time.Since(start)),
	)
	return s.report, nil
}

func (c *Client) command(ctx context.Context, cmd, op string) (string, error) {
	conn, err := c.open(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if _, err := io.WriteString(conn, cmd); err != nil {
		return "", withContext(ctx, transportError("write "+op, 0, err))
	}
	line, err := readResponse(bufio.NewReader(conn))
	if err != nil {
		return "", withContext(ctx, transportError("read "+op+" response", 0, err))
	}
	return line, nil
}

// conn ties a daemon connection to the caller's context: cancellation
// closes it so blocked reads and writes fail instead of hanging.
type conn struct {
	net.Conn
	stop func() bool
}

func (c *conn) Close() error {
	c.stop()
	return c.Conn.Close()
}

func (c *Client) open(ctx context.Context) (*conn, error) {
	dialCtx := ctx
	if c.dialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.dialTimeout)
		defer cancel()
	}

	nc, err := c.dialer.DialContext(dialCtx, c.network, c.address)
	if err != nil {
		return nil, withContext(ctx, transportError("dial", 0, err))
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := nc.SetDeadline(deadline); err != nil {
			nc.Close()
			return nil, transportError("set deadline", 0, err)
		}
	}

	return &conn{
		Conn: nc,
		stop: context.AfterFunc(ctx, func() { nc.Close() }),
	}, nil
}

// withContext attaches the context's error to transport failures caused by cancellation.
func withContext(ctx context.Context, err error) error {
	ctxErr := ctx.Err()
	if ctxErr == nil {
		return err
	}
	var e *Error
	if errors.As(err, &e) && e.Kind == KindTransport && !errors.Is(e.Cause, ctxErr) {
		e.Cause = errors.Join(ctxErr, e.Cause)
	}
	return err
}
