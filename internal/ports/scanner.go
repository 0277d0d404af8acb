package ports

import (
	"context"
	"io"

	"github.com/bft-labs/virusscan/internal/domain"
)

// Scanner streams an input through the scanning daemon.
type Scanner interface {
	// Scan reads r until EOF and returns the daemon's responses.
	// Any transport or protocol failure fails the whole call.
	Scan(ctx context.Context, r io.Reader) (domain.ScanReport, error)
}

// Pinger sends the daemon's liveness probe and returns the raw reply.
type Pinger interface {
	Ping(ctx context.Context) (string, error)
}
