// Package ports defines the interfaces that connect the application layer
// to infrastructure adapters.
//
// # Port Interfaces
//
//   - [Dialer]: Opens transport connections to the scanning daemon
//   - [Scanner]: Streams an input through the scanning daemon
//   - [Pinger]: Sends the daemon's liveness probe
//   - [Repository]: Lists, downloads and resumes workflows in the repository API
//   - [Metrics]: Records scan and invocation outcomes
//   - [Logger]: Structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// The application layer (internal/app) and the HTTP surface (internal/httpapi)
// depend only on these interfaces. Adapters under internal/adapters provide the
// concrete implementations.
package ports
