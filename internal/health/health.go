// Package health implements the liveness checks for the scanning daemon and
// the repository API.
package health

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bft-labs/virusscan/internal/ports"
)

const pong = "PONG\n"

// Result is the outcome of one check.
type Result struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// Check is a named liveness check.
type Check interface {
	Name() string
	Check(ctx context.Context) Result
}

// ClamdCheck pings the daemon and is healthy only on a PONG reply.
type ClamdCheck struct {
	pinger ports.Pinger
	logger ports.Logger
}

// NewClamdCheck creates a daemon liveness check.
func NewClamdCheck(pinger ports.Pinger, logger ports.Logger) *ClamdCheck {
	return &ClamdCheck{pinger: pinger, logger: logger}
}

func (c *ClamdCheck) Name() string { return "clamd" }

func (c *ClamdCheck) Check(ctx context.Context) Result {
	reply, err := c.pinger.Ping(ctx)
	if err != nil {
		c.logger.Error("clamd ping failed", ports.Err(err))
		return Result{Message: err.Error()}
	}
	c.logger.Debug("clamd ping reply", ports.String("reply", reply))

	if !strings.EqualFold(reply, pong) {
		msg := fmt.Sprintf("unexpected output from clamd: %q", reply)
		c.logger.Error("clamd ping failed", ports.String("reply", reply))
		return Result{Message: msg}
	}
	return Result{Healthy: true}
}

// DataverseCheck is healthy when the repository API answers.
type DataverseCheck struct {
	checker ports.ConnectionChecker
	logger  ports.Logger
}

// NewDataverseCheck creates a repository API liveness check.
func NewDataverseCheck(checker ports.ConnectionChecker, logger ports.Logger) *DataverseCheck {
	return &DataverseCheck{checker: checker, logger: logger}
}

func (c *DataverseCheck) Name() string { return "dataverse" }

func (c *DataverseCheck) Check(ctx context.Context) Result {
	if err := c.checker.CheckConnection(ctx); err != nil {
		c.logger.Error("dataverse connection check failed", ports.Err(err))
		return Result{Message: err.Error()}
	}
	return Result{Healthy: true}
}

// Registry runs a set of checks.
type Registry struct {
	mu     sync.RWMutex
	checks map[string]Check
}

// NewRegistry creates a registry holding checks.
func NewRegistry(checks ...Check) *Registry {
	r := &Registry{checks: make(map[string]Check)}
	for _, c := range checks {
		r.Register(c)
	}
	return r
}

// Register adds or replaces a check by name.
func (r *Registry) Register(c Check) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[c.Name()] = c
}

// Names returns the registered check names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.checks))
	for name := range r.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunAll runs every check concurrently and reports whether all passed.
func (r *Registry) RunAll(ctx context.Context) (map[string]Result, bool) {
	r.mu.RLock()
	checks := make([]Check, 0, len(r.checks))
	for _, c := range r.checks {
		checks = append(checks, c)
	}
	r.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]Result, len(checks))
	)
	for _, c := range checks {
		wg.Add(1)
		go func(c Check) {
			defer wg.Done()
			res := c.Check(ctx)
			mu.Lock()
			results[c.Name()] = res
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	healthy := true
	for _, res := range results {
		healthy = healthy && res.Healthy
	}
	return results, healthy
}
