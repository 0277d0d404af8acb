package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bft-labs/virusscan/internal/domain"
	"github.com/bft-labs/virusscan/internal/ports"
)

// DraftVersion is the dataset version a pre-publication workflow reviews.
const DraftVersion = ":draft"

// Workflow failure reasons.
const (
	ReasonVirusFound = "Virus found"
	ReasonScanFailed = "Scan failed"
	ReasonListFailed = "Could not list dataset files"
)

const (
	DefaultWorkers   = 2
	DefaultQueueSize = 64

	defaultResumeTry  = 3
	maxMessageEntries = 10

	// resumeTimeout bounds the resume call, which runs even after the
	// invocation context is canceled so the workflow is not left paused.
	resumeTimeout = 30 * time.Second
)

// InvokerConfig configures the invocation worker pool.
type InvokerConfig struct {
	Workers   int
	QueueSize int
	// MaxFileSize fails files larger than this many bytes without scanning them. Zero disables the limit.
	MaxFileSize int64
	// ResumeAttempts bounds the retries of the workflow resume call.
	ResumeAttempts int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

func (c InvokerConfig) withDefaults() InvokerConfig {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.ResumeAttempts <= 0 {
		c.ResumeAttempts = defaultResumeTry
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = DefaultBackoffInitial
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	return c
}

// Invoker runs workflow step invocations on a bounded worker pool: it scans
// every file of the dataset draft and resumes the workflow with the outcome.
type Invoker struct {
	cfg       InvokerConfig
	scans     *ScanService
	repo      ports.Repository
	metrics   ports.Metrics
	logger    ports.Logger
	lifecycle *Lifecycle

	mu     sync.RWMutex // guards queue against close during Submit
	queue  chan domain.Invocation
	cancel context.CancelFunc
}

// NewInvoker creates an invoker. Call Start before Submit.
func NewInvoker(cfg InvokerConfig, scans *ScanService, repo ports.Repository, metrics ports.Metrics, logger ports.Logger) *Invoker {
	if metrics == nil {
		metrics = ports.NoopMetrics{}
	}
	return &Invoker{
		cfg:       cfg.withDefaults(),
		scans:     scans,
		repo:      repo,
		metrics:   metrics,
		logger:    logger,
		lifecycle: NewLifecycle(logger),
	}
}

// State returns the worker pool state.
func (i *Invoker) State() State {
	return i.lifecycle.State()
}

// Start launches the workers. Canceling ctx aborts in-flight invocations.
func (i *Invoker) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.lifecycle.TransitionTo(StateRunning, "start requested"); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	i.cancel = cancel
	i.queue = make(chan domain.Invocation, i.cfg.QueueSize)

	for n := 0; n < i.cfg.Workers; n++ {
		i.lifecycle.AddWorker()
		go i.worker(ctx, i.queue)
	}

	i.logger.Info("invoker started",
		ports.Int("workers", i.cfg.Workers),
		ports.Int("queue_size", i.cfg.QueueSize),
	)
	return nil
}

// Submit queues an invocation. It never blocks: a full queue returns ErrQueueFull.
func (i *Invoker) Submit(inv domain.Invocation) error {
	if err := inv.Validate(); err != nil {
		return err
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.lifecycle.State() != StateRunning {
		return domain.ErrStopped
	}

	select {
	case i.queue <- inv:
		i.logger.Debug("invocation queued", ports.String("invocation_id", inv.InvocationID))
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// Stop refuses new invocations and waits up to timeout for queued ones to
// finish. On timeout the remaining work is canceled.
func (i *Invoker) Stop(timeout time.Duration) error {
	i.mu.Lock()
	if err := i.lifecycle.TransitionTo(StateStopping, "stop requested"); err != nil {
		i.mu.Unlock()
		if errors.Is(err, domain.ErrNotRunning) {
			return nil
		}
		return err
	}
	close(i.queue)
	cancel := i.cancel
	i.mu.Unlock()

	err := i.lifecycle.WaitWithTimeout(timeout)
	cancel()
	if err != nil {
		// Workers observe the canceled context and exit promptly.
		i.lifecycle.wg.Wait()
	}

	if terr := i.lifecycle.TransitionTo(StateStopped, "workers drained"); terr != nil {
		return terr
	}
	return err
}

func (i *Invoker) worker(ctx context.Context, queue <-chan domain.Invocation) {
	defer i.lifecycle.WorkerDone()
	for inv := range queue {
		if ctx.Err() != nil {
			i.logger.Warn("dropping invocation after cancel", ports.String("invocation_id", inv.InvocationID))
			continue
		}
		i.Process(ctx, inv)
	}
}

// Process scans the draft files of inv and resumes the workflow with the
// outcome. It returns the result that was sent.
func (i *Invoker) Process(ctx context.Context, inv domain.Invocation) (domain.WorkflowResult, error) {
	fields := []ports.Field{
		ports.String("invocation_id", inv.InvocationID),
		ports.String("dataset_id", inv.DatasetID),
	}
	i.logger.Info("processing invocation", fields...)

	var result domain.WorkflowResult
	files, err := i.repo.ListFiles(ctx, inv.DatasetID, DraftVersion)
	if err != nil {
		i.logger.Error("list files failed", append(fields, ports.Err(err))...)
		result = domain.WorkflowResult{
			Status:  domain.WorkflowFailure,
			Reason:  ReasonListFailed,
			Message: err.Error(),
		}
	} else {
		outcomes := make([]domain.FileOutcome, 0, len(files))
		for _, f := range files {
			if ctx.Err() != nil {
				outcomes = append(outcomes, domain.FileOutcome{File: f, Err: ctx.Err()})
				break
			}
			outcomes = append(outcomes, i.scanFile(ctx, f))
		}
		result = Summarize(outcomes)
	}

	if err := i.resume(ctx, inv.InvocationID, result); err != nil {
		i.logger.Error("resume workflow failed", append(fields, ports.Err(err))...)
		return result, err
	}

	i.metrics.ObserveInvocation(result.Status)
	i.logger.Info("invocation finished", append(fields,
		ports.String("status", string(result.Status)),
		ports.String("reason", result.Reason),
	)...)
	return result, nil
}

func (i *Invoker) scanFile(ctx context.Context, f domain.DatasetFile) domain.FileOutcome {
	if i.cfg.MaxFileSize > 0 && f.Size > i.cfg.MaxFileSize {
		return domain.FileOutcome{
			File: f,
			Err:  fmt.Errorf("%w: %d bytes exceeds %d", domain.ErrFileTooLarge, f.Size, i.cfg.MaxFileSize),
		}
	}

	rc, err := i.repo.OpenFile(ctx, f.ID)
	if err != nil {
		return domain.FileOutcome{File: f, Err: fmt.Errorf("open file: %w", err)}
	}
	defer rc.Close()

	_, verdict, err := i.scans.Scan(ctx, rc)
	if err != nil {
		return domain.FileOutcome{File: f, Err: err}
	}
	return domain.FileOutcome{File: f, Verdict: verdict}
}

func (i *Invoker) resume(ctx context.Context, invocationID string, result domain.WorkflowResult) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resumeTimeout)
	defer cancel()

	b := newBackoff(i.cfg.BackoffInitial, i.cfg.BackoffMax)

	var err error
	for attempt := 1; attempt <= i.cfg.ResumeAttempts; attempt++ {
		if err = i.repo.ResumeWorkflow(ctx, invocationID, result); err == nil {
			return nil
		}
		if attempt == i.cfg.ResumeAttempts {
			break
		}
		i.logger.Warn("resume workflow attempt failed",
			ports.String("invocation_id", invocationID),
			ports.Int("attempt", attempt),
			ports.Duration("retry_in", b.Current()),
			ports.Err(err),
		)
		if werr := b.Wait(ctx); werr != nil {
			return errors.Join(err, werr)
		}
	}
	return fmt.Errorf("resume workflow after %d attempts: %w", i.cfg.ResumeAttempts, err)
}

// Summarize turns per-file outcomes into the workflow result: Success only
// when every file scanned clean. Detections take precedence over scan errors.
func Summarize(outcomes []domain.FileOutcome) domain.WorkflowResult {
	var infected, failed []string
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			failed = append(failed, fmt.Sprintf("%s: %v", o.File.Label, o.Err))
		case o.Verdict.Status == domain.VerdictInfected:
			infected = append(infected, fmt.Sprintf("%s (%s)", o.File.Label, o.Verdict.Signature))
		case o.Verdict.Status != domain.VerdictClean:
			failed = append(failed, fmt.Sprintf("%s: unexpected response %q", o.File.Label, o.Verdict.Raw))
		}
	}

	switch {
	case len(infected) > 0:
		return domain.WorkflowResult{
			Status:  domain.WorkflowFailure,
			Reason:  ReasonVirusFound,
			Message: "infected files: " + joinLimited(infected),
		}
	case len(failed) > 0:
		return domain.WorkflowResult{
			Status:  domain.WorkflowFailure,
			Reason:  ReasonScanFailed,
			Message: joinLimited(failed),
		}
	default:
		return domain.WorkflowResult{Status: domain.WorkflowSuccess}
	}
}

func joinLimited(items []string) string {
	if len(items) <= maxMessageEntries {
		return strings.Join(items, "; ")
	}
	return fmt.Sprintf("%s; and %d more", strings.Join(items[:maxMessageEntries], "; "), len(items)-maxMessageEntries)
}
