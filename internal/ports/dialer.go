package ports

import (
	"context"
	"net"
)

// Dialer supplies transport connections to the scanning daemon.
// *net.Dialer satisfies this interface; tests substitute in-memory connections.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}
