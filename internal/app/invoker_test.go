package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/virusscan/internal/domain"
)

// fakeScanner reports infected when the content contains "virus".
type fakeScanner struct {
	mu      sync.Mutex
	scanned []string
	err     error
	started chan struct{}
	release chan struct{}
}

func (s *fakeScanner) Scan(ctx context.Context, r io.Reader) (domain.ScanReport, error) {
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return domain.ScanReport{}, ctx.Err()
		}
	}

	data, _ := io.ReadAll(r)
	s.mu.Lock()
	s.scanned = append(s.scanned, string(data))
	s.mu.Unlock()

	if s.err != nil {
		return domain.ScanReport{}, s.err
	}
	resp := "stream: OK"
	if strings.Contains(string(data), "virus") {
		resp = "stream: Test-Signature FOUND"
	}
	return domain.ScanReport{
		Verdict:   resp,
		Responses: []string{resp},
		Sessions:  1,
		Bytes:     int64(len(data)),
	}, nil
}

type fakeRepo struct {
	mu        sync.Mutex
	files     []domain.DatasetFile
	content   map[int64]string
	listErr   error
	resumeErr []error // consumed per call
	resumed   map[string]domain.WorkflowResult
	resumes   int
}

func newFakeRepo(files ...domain.DatasetFile) *fakeRepo {
	return &fakeRepo{
		files:   files,
		content: make(map[int64]string),
		resumed: make(map[string]domain.WorkflowResult),
	}
}

func (r *fakeRepo) CheckConnection(context.Context) error { return nil }

func (r *fakeRepo) ListFiles(_ context.Context, datasetID, version string) ([]domain.DatasetFile, error) {
	if version != DraftVersion {
		return nil, errors.New("unexpected version " + version)
	}
	return r.files, r.listErr
}

func (r *fakeRepo) OpenFile(_ context.Context, id int64) (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.content[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(strings.NewReader(c)), nil
}

func (r *fakeRepo) ResumeWorkflow(_ context.Context, id string, result domain.WorkflowResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resumes++
	if len(r.resumeErr) > 0 {
		err := r.resumeErr[0]
		r.resumeErr = r.resumeErr[1:]
		if err != nil {
			return err
		}
	}
	r.resumed[id] = result
	return nil
}

func (r *fakeRepo) result(id string) (domain.WorkflowResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.resumed[id]
	return res, ok
}

type countingMetrics struct {
	mu          sync.Mutex
	invocations map[domain.WorkflowStatus]int
	scans       int
	scanErrors  int
}

func (m *countingMetrics) ObserveScan(domain.ScanReport, domain.VerdictStatus, time.Duration) {
	m.mu.Lock()
	m.scans++
	m.mu.Unlock()
}

func (m *countingMetrics) ObserveScanError(time.Duration) {
	m.mu.Lock()
	m.scanErrors++
	m.mu.Unlock()
}

func (m *countingMetrics) ObserveInvocation(s domain.WorkflowStatus) {
	m.mu.Lock()
	if m.invocations == nil {
		m.invocations = make(map[domain.WorkflowStatus]int)
	}
	m.invocations[s]++
	m.mu.Unlock()
}

func newTestInvoker(cfg InvokerConfig, scanner *fakeScanner, repo *fakeRepo, metrics *countingMetrics) *Invoker {
	cfg.BackoffInitial = time.Millisecond
	cfg.BackoffMax = time.Millisecond
	return NewInvoker(cfg, NewScanService(scanner, metrics, mockLogger{}), repo, metrics, mockLogger{})
}

func invocation(id string) domain.Invocation {
	return domain.Invocation{InvocationID: id, DatasetID: "42"}
}

func TestInvoker_Process(t *testing.T) {
	files := []domain.DatasetFile{
		{ID: 1, Label: "a.txt", Size: 5},
		{ID: 2, Label: "b.txt", Size: 9},
	}

	tests := []struct {
		name       string
		content    map[int64]string
		scanErr    error
		maxSize    int64
		listErr    error
		wantStatus domain.WorkflowStatus
		wantReason string
		wantMsg    string
	}{
		{
			name:       "all clean",
			content:    map[int64]string{1: "hello", 2: "greetings"},
			wantStatus: domain.WorkflowSuccess,
		},
		{
			name:       "one infected",
			content:    map[int64]string{1: "hello", 2: "virus!!!!"},
			wantStatus: domain.WorkflowFailure,
			wantReason: ReasonVirusFound,
			wantMsg:    "infected files: b.txt (Test-Signature)",
		},
		{
			name:       "scan error",
			content:    map[int64]string{1: "hello", 2: "greetings"},
			scanErr:    domain.ErrTransport,
			wantStatus: domain.WorkflowFailure,
			wantReason: ReasonScanFailed,
			wantMsg:    "a.txt: " + domain.ErrTransport.Error(),
		},
		{
			name:       "missing file",
			content:    map[int64]string{1: "hello"},
			wantStatus: domain.WorkflowFailure,
			wantReason: ReasonScanFailed,
			wantMsg:    "b.txt: open file: not found",
		},
		{
			name:       "file too large",
			content:    map[int64]string{1: "hello", 2: "greetings"},
			maxSize:    8,
			wantStatus: domain.WorkflowFailure,
			wantReason: ReasonScanFailed,
			wantMsg:    "b.txt: " + domain.ErrFileTooLarge.Error() + ": 9 bytes exceeds 8",
		},
		{
			name:       "list error",
			listErr:    errors.New("dataverse returned 404"),
			wantStatus: domain.WorkflowFailure,
			wantReason: ReasonListFailed,
			wantMsg:    "dataverse returned 404",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo(files...)
			repo.content = tt.content
			repo.listErr = tt.listErr
			metrics := &countingMetrics{}
			inv := newTestInvoker(InvokerConfig{MaxFileSize: tt.maxSize}, &fakeScanner{err: tt.scanErr}, repo, metrics)

			result, err := inv.Process(context.Background(), invocation("inv-1"))
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if result.Status != tt.wantStatus || result.Reason != tt.wantReason {
				t.Errorf("result = %+v, want status %s reason %q", result, tt.wantStatus, tt.wantReason)
			}
			if tt.wantMsg != "" && !strings.Contains(result.Message, tt.wantMsg) {
				t.Errorf("message = %q, want it to contain %q", result.Message, tt.wantMsg)
			}

			sent, ok := repo.result("inv-1")
			if !ok || sent != result {
				t.Errorf("resumed with %+v (ok=%v), want %+v", sent, ok, result)
			}
			if metrics.invocations[tt.wantStatus] != 1 {
				t.Errorf("invocation metrics = %v", metrics.invocations)
			}
		})
	}
}

func TestInvoker_Process_RetriesResume(t *testing.T) {
	repo := newFakeRepo()
	repo.resumeErr = []error{errors.New("502"), errors.New("502")}
	inv := newTestInvoker(InvokerConfig{ResumeAttempts: 3}, &fakeScanner{}, repo, &countingMetrics{})

	if _, err := inv.Process(context.Background(), invocation("inv-1")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if repo.resumes != 3 {
		t.Errorf("resume calls = %d, want 3", repo.resumes)
	}
}

func TestInvoker_Process_ResumeGivesUp(t *testing.T) {
	repo := newFakeRepo()
	repo.resumeErr = []error{errors.New("502"), errors.New("502")}
	metrics := &countingMetrics{}
	inv := newTestInvoker(InvokerConfig{ResumeAttempts: 2}, &fakeScanner{}, repo, metrics)

	if _, err := inv.Process(context.Background(), invocation("inv-1")); err == nil {
		t.Fatal("expected error after exhausting resume attempts")
	}
	if repo.resumes != 2 {
		t.Errorf("resume calls = %d, want 2", repo.resumes)
	}
	if len(metrics.invocations) != 0 {
		t.Errorf("unexpected invocation metrics %v", metrics.invocations)
	}
}

func TestInvoker_SubmitAndStopDrains(t *testing.T) {
	repo := newFakeRepo(domain.DatasetFile{ID: 1, Label: "a.txt", Size: 5})
	repo.content[1] = "hello"
	inv := newTestInvoker(InvokerConfig{Workers: 1, QueueSize: 8}, &fakeScanner{}, repo, &countingMetrics{})

	if err := inv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := inv.Start(context.Background()); !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Errorf("second Start() = %v, want ErrAlreadyRunning", err)
	}

	ids := []string{"a", "b", "c"}
	for _, id := range ids {
		if err := inv.Submit(invocation(id)); err != nil {
			t.Fatalf("Submit(%s): %v", id, err)
		}
	}

	if err := inv.Stop(time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	for _, id := range ids {
		if res, ok := repo.result(id); !ok || res.Status != domain.WorkflowSuccess {
			t.Errorf("invocation %s resumed = %+v, %v", id, res, ok)
		}
	}

	if err := inv.Submit(invocation("late")); !errors.Is(err, domain.ErrStopped) {
		t.Errorf("Submit after Stop = %v, want ErrStopped", err)
	}
	if inv.State() != StateStopped {
		t.Errorf("state = %v, want Stopped", inv.State())
	}
}

func TestInvoker_SubmitQueueFull(t *testing.T) {
	repo := newFakeRepo(domain.DatasetFile{ID: 1, Label: "a.txt", Size: 5})
	repo.content[1] = "hello"
	scanner := &fakeScanner{started: make(chan struct{}, 4), release: make(chan struct{})}
	inv := newTestInvoker(InvokerConfig{Workers: 1, QueueSize: 1}, scanner, repo, &countingMetrics{})

	if err := inv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := inv.Submit(invocation("first")); err != nil {
		t.Fatalf("Submit first: %v", err)
	}
	<-scanner.started

	if err := inv.Submit(invocation("second")); err != nil {
		t.Fatalf("Submit second: %v", err)
	}
	if err := inv.Submit(invocation("third")); !errors.Is(err, domain.ErrQueueFull) {
		t.Errorf("Submit third = %v, want ErrQueueFull", err)
	}

	close(scanner.release)
	if err := inv.Stop(time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, ok := repo.result("second"); !ok {
		t.Error("queued invocation was not processed before stop returned")
	}
}

func TestInvoker_StopTimeoutCancelsWork(t *testing.T) {
	repo := newFakeRepo(domain.DatasetFile{ID: 1, Label: "a.txt", Size: 5})
	repo.content[1] = "hello"
	scanner := &fakeScanner{started: make(chan struct{}, 1), release: make(chan struct{})}
	inv := newTestInvoker(InvokerConfig{Workers: 1, QueueSize: 1}, scanner, repo, &countingMetrics{})

	if err := inv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := inv.Submit(invocation("stuck")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-scanner.started

	if err := inv.Stop(20 * time.Millisecond); !errors.Is(err, domain.ErrShutdownTimeout) {
		t.Errorf("Stop() = %v, want ErrShutdownTimeout", err)
	}
	if inv.State() != StateStopped {
		t.Errorf("state = %v, want Stopped", inv.State())
	}
}

func TestInvoker_SubmitValidates(t *testing.T) {
	inv := newTestInvoker(InvokerConfig{}, &fakeScanner{}, newFakeRepo(), &countingMetrics{})
	if err := inv.Submit(domain.Invocation{DatasetID: "1"}); !errors.Is(err, domain.ErrInvalidInvocation) {
		t.Errorf("Submit() = %v, want ErrInvalidInvocation", err)
	}
}

func TestSummarize(t *testing.T) {
	clean := domain.Verdict{Status: domain.VerdictClean}
	infected := domain.Verdict{Status: domain.VerdictInfected, Signature: "Sig"}

	t.Run("empty dataset", func(t *testing.T) {
		if got := Summarize(nil); got.Status != domain.WorkflowSuccess {
			t.Errorf("Summarize(nil) = %+v", got)
		}
	})

	t.Run("infection wins over error", func(t *testing.T) {
		got := Summarize([]domain.FileOutcome{
			{File: domain.DatasetFile{Label: "a"}, Err: errors.New("boom")},
			{File: domain.DatasetFile{Label: "b"}, Verdict: infected},
			{File: domain.DatasetFile{Label: "c"}, Verdict: clean},
		})
		if got.Reason != ReasonVirusFound || got.Message != "infected files: b (Sig)" {
			t.Errorf("Summarize = %+v", got)
		}
	})

	t.Run("unknown response fails", func(t *testing.T) {
		got := Summarize([]domain.FileOutcome{
			{File: domain.DatasetFile{Label: "a"}, Verdict: domain.Verdict{Raw: "stream: ???"}},
		})
		if got.Status != domain.WorkflowFailure || got.Reason != ReasonScanFailed {
			t.Errorf("Summarize = %+v", got)
		}
	})

	t.Run("long lists are truncated", func(t *testing.T) {
		var outcomes []domain.FileOutcome
		for i := 0; i < maxMessageEntries+3; i++ {
			outcomes = append(outcomes, domain.FileOutcome{File: domain.DatasetFile{Label: "f"}, Verdict: infected})
		}
		got := Summarize(outcomes)
		if !strings.HasSuffix(got.Message, "and 3 more") {
			t.Errorf("message = %q", got.Message)
		}
	})
}
