package clamd

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"strings"
)

const (
	cmdInstream = "zINSTREAM\x00"
	cmdPing     = "nPING\n"
	cmdVersion  = "nVERSION\n"

	streamPrefix = "stream: "
	errorSuffix  = " ERROR"

	// maxResponseLen bounds a single reply line.
	maxResponseLen = 4096
)

var errResponseTooLong = errors.New("response exceeds maximum length")

// writeFrame writes a 4-byte big-endian length followed by the payload.
// An empty payload is the session terminator.
func writeFrame(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// readResponse reads one reply terminated by '\n' or NUL. The delimiter is
// kept. A reply cut short by EOF is returned as is; EOF before any byte is an error.
func readResponse(r *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && sb.Len() > 0 {
				return sb.String(), nil
			}
			if errors.Is(err, io.EOF) {
				return "", io.ErrUnexpectedEOF
			}
			return sb.String(), err
		}
		sb.WriteByte(b)
		if b == '\n' || b == 0 {
			return sb.String(), nil
		}
		if sb.Len() >= maxResponseLen {
			return sb.String(), errResponseTooLong
		}
	}
}

// trimResponse drops the reply delimiter.
func trimResponse(line string) string {
	return strings.TrimRight(line, "\x00\r\n")
}

// isStreamSuccess reports whether a reply is a verdict rather than an error.
func isStreamSuccess(line string) bool {
	return strings.HasPrefix(line, streamPrefix) &&
		len(line) > len(streamPrefix) &&
		!strings.HasSuffix(line, errorSuffix)
}
