// Package testutil provides test helpers for the virusscan packages.
package testutil

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
)

// EICAR is the standard anti-malware test string.
const EICAR = `X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`

// VerdictFunc decides the reply body for one INSTREAM session payload,
// e.g. "OK" or "Eicar-Test-Signature FOUND".
type VerdictFunc func(payload []byte) string

// EICARVerdict reports the EICAR signature when the payload contains it whole.
func EICARVerdict(payload []byte) string {
	if bytes.Contains(payload, []byte(EICAR)) {
		return "Eicar-Test-Signature FOUND"
	}
	return "OK"
}

// ClamdServer is an in-process stand-in for the scanning daemon. It speaks
// PING, VERSION and INSTREAM over TCP and records every INSTREAM payload.
type ClamdServer struct {
	// StreamMaxLength rejects sessions larger than this many bytes when positive.
	StreamMaxLength int
	// CloseAfterReply closes the connection after each reply, like a daemon
	// outside of IDSESSION mode.
	CloseAfterReply bool

	ln      net.Listener
	verdict VerdictFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	sessions [][]byte
	conns    int
}

// NewClamdServer starts a server on a loopback port. It panics if it cannot listen.
func NewClamdServer(verdict VerdictFunc) *ClamdServer {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(fmt.Sprintf("testutil: listen: %v", err))
	}
	if verdict == nil {
		verdict = EICARVerdict
	}
	s := &ClamdServer{ln: ln, verdict: verdict}
	s.wg.Add(1)
	go s.serve()
	return s
}

// Addr returns the host:port the server listens on.
func (s *ClamdServer) Addr() string {
	return s.ln.Addr().String()
}

// Sessions returns a copy of the INSTREAM payloads received so far.
func (s *ClamdServer) Sessions() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sessions))
	copy(out, s.sessions)
	return out
}

// Connections returns the number of accepted connections.
func (s *ClamdServer) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

// Close stops the listener and waits for open connections to finish.
func (s *ClamdServer) Close() {
	s.ln.Close()
	s.wg.Wait()
}

func (s *ClamdServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns++
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handle(conn)
		}()
	}
}

func (s *ClamdServer) handle(conn net.Conn) {
	r := bufio.NewReader(conn)
	for {
		cmd, delim, err := readCommand(r)
		if err != nil {
			return
		}

		var reply string
		switch cmd {
		case "PING":
			reply = "PONG"
		case "VERSION":
			reply = "ClamAV 1.0.0/27000/Mon Jan  1 00:00:00 2024"
		case "INSTREAM":
			payload, err := readStream(r, s.StreamMaxLength)
			if errors.Is(err, errStreamTooLong) {
				io.WriteString(conn, "INSTREAM size limit exceeded. ERROR"+string(delim))
				return
			}
			if err != nil {
				return
			}
			s.mu.Lock()
			s.sessions = append(s.sessions, payload)
			s.mu.Unlock()
			reply = "stream: " + s.verdict(payload)
		default:
			reply = "UNKNOWN COMMAND"
		}

		if _, err := io.WriteString(conn, reply+string(delim)); err != nil {
			return
		}
		if s.CloseAfterReply {
			return
		}
	}
}

// readCommand reads a 'z' (NUL-terminated) or 'n' (newline-terminated) command.
// The reply uses the same delimiter.
func readCommand(r *bufio.Reader) (string, byte, error) {
	prefix, err := r.ReadByte()
	if err != nil {
		return "", 0, err
	}
	delim := byte('\n')
	if prefix == 'z' {
		delim = 0
	}
	line, err := r.ReadString(delim)
	if err != nil {
		return "", 0, err
	}
	cmd := strings.TrimSuffix(line, string(delim))
	if prefix != 'z' && prefix != 'n' {
		cmd = string(prefix) + cmd
	}
	return cmd, delim, nil
}

var errStreamTooLong = errors.New("stream exceeds limit")

func readStream(r *bufio.Reader, limit int) ([]byte, error) {
	var payload []byte
	var hdr [4]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, err
		}
		n := binary.BigEndian.Uint32(hdr[:])
		if n == 0 {
			if limit > 0 && len(payload) > limit {
				return nil, errStreamTooLong
			}
			return payload, nil
		}
		chunk := make([]byte, n)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, err
		}
		payload = append(payload, chunk...)
	}
}
