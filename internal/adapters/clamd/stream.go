package clamd

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/bft-labs/virusscan/internal/domain"
	"github.com/bft-labs/virusscan/internal/ports"
)

// streamer holds the state of one Scan call: the current connection, the
// bytes sent in the open session, and the overlap window that seeds the next one.
type streamer struct {
	cfg    domain.SessionConfig
	logger ports.Logger

	conn   io.ReadWriteCloser
	w      *bufio.Writer
	r      *bufio.Reader
	redial func() (io.ReadWriteCloser, error)

	buf    []byte // input read buffer
	frame  []byte // carry + first read of a session
	window []byte // trailing OverlapSize bytes written in the open session
	carry  []byte // window captured when the previous session closed

	open         bool
	sessionBytes int
	report       domain.ScanReport
}

func newStreamer(cfg domain.SessionConfig, conn io.ReadWriteCloser, logger ports.Logger) *streamer {
	s := &streamer{
		cfg:    cfg,
		logger: logger,
		buf:    make([]byte, cfg.BufferSize),
		frame:  make([]byte, 0, cfg.OverlapSize+cfg.BufferSize),
		window: make([]byte, 0, cfg.OverlapSize),
		carry:  make([]byte, 0, cfg.OverlapSize),
	}
	s.attach(conn)
	return s
}

func (s *streamer) attach(conn io.ReadWriteCloser) {
	s.conn = conn
	s.w = bufio.NewWriter(conn)
	s.r = bufio.NewReader(conn)
}

func (s *streamer) close() {
	if s.conn != nil {
		s.conn.Close()
	}
}

// run reads src until EOF. Reads are capped at the remaining chunk budget so
// a session closes exactly when ChunkSize new bytes have been sent.
func (s *streamer) run(ctx context.Context, src io.Reader) error {
	for {
		if err := ctx.Err(); err != nil {
			return transportError("read input", s.session(), err)
		}

		want := s.cfg.BufferSize
		if remaining := s.cfg.ChunkSize - s.sessionBytes; remaining < want {
			want = remaining
		}

		n, err := io.ReadFull(src, s.buf[:want])
		if n > 0 {
			if err := s.send(s.buf[:n]); err != nil {
				return err
			}
			if s.sessionBytes >= s.cfg.ChunkSize {
				if err := s.closeSession(); err != nil {
					return err
				}
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return transportError("read input", s.session(), err)
		}
	}

	// Empty input still yields one verdict.
	if !s.open && s.report.Sessions == 0 {
		if err := s.openSession(); err != nil {
			return err
		}
	}
	if s.open {
		return s.closeSession()
	}
	return nil
}

// session is the 1-based number of the open or next session.
func (s *streamer) session() int {
	return s.report.Sessions + 1
}

func (s *streamer) openSession() error {
	if s.report.Sessions > 0 && s.redial != nil {
		next, err := s.redial()
		if err != nil {
			return err
		}
		s.conn.Close()
		s.attach(next)
	}

	if _, err := s.w.WriteString(cmdInstream); err != nil {
		return transportError("write command", s.session(), err)
	}
	s.open = true
	s.sessionBytes = 0
	s.window = s.window[:0]
	return nil
}

// send writes p as one frame, prefixed with the carried overlap when it
// is the first frame of a session.
func (s *streamer) send(p []byte) error {
	payload := p
	if !s.open {
		if err := s.openSession(); err != nil {
			return err
		}
		if len(s.carry) > 0 {
			payload = append(append(s.frame[:0], s.carry...), p...)
		}
	}

	if err := writeFrame(s.w, payload); err != nil {
		return transportError("write frame", s.session(), err)
	}
	s.sessionBytes += len(p)
	s.report.Bytes += int64(len(p))
	s.remember(payload)
	return nil
}

// remember slides the overlap window over bytes written in the open session.
func (s *streamer) remember(p []byte) {
	k := s.cfg.OverlapSize
	if k == 0 {
		return
	}
	if len(p) >= k {
		s.window = append(s.window[:0], p[len(p)-k:]...)
		return
	}
	s.window = append(s.window, p...)
	if over := len(s.window) - k; over > 0 {
		copy(s.window, s.window[over:])
		s.window = s.window[:k]
	}
}

func (s *streamer) closeSession() error {
	session := s.session()

	if err := writeFrame(s.w, nil); err != nil {
		return transportError("write terminator", session, err)
	}
	if err := s.w.Flush(); err != nil {
		return transportError("write frame", session, err)
	}

	line, err := readResponse(s.r)
	if err != nil {
		return transportError("read response", session, err)
	}
	resp := trimResponse(line)
	if !isStreamSuccess(resp) {
		return protocolError("instream", session, resp)
	}

	s.logger.Debug("clamd session closed",
		ports.Int("session", session),
		ports.Int("bytes", s.sessionBytes),
		ports.Int("overlap", len(s.carry)),
		ports.String("response", resp),
	)

	s.report.Sessions++
	s.report.Responses = append(s.report.Responses, resp)
	s.report.Verdict = resp
	s.carry, s.window = s.window, s.carry[:0]
	s.open = false
	return nil
}
