package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ebalkanli/verify-engine/internal/domain"
	"github.com/ebalkanli/verify-engine/internal/verify"
)

type fakeEmailVerifier struct {
	mu      sync.Mutex
	results map[string]domain.VerificationResult
	calls   []string
	retries []int
	block   bool
}

func (f *fakeEmailVerifier) Verify(ctx context.Context, email string, retries int) domain.VerificationResult {
	f.mu.Lock()
	f.calls = append(f.calls, email)
	f.retries = append(f.retries, retries)
	result, ok := f.results[email]
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return domain.Rejected(email, domain.CategoryTimeout, "SMTP Verification Failed: Connection timeout")
	}

	if !ok {
		return domain.VerificationResult{
			Identifier:   email,
			Valid:        true,
			HasMXRecords: true,
			SMTPVerified: true,
		}
	}
	return result
}

func (f *fakeEmailVerifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeEmailVerifier) retryCounts() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.retries))
	copy(out, f.retries)
	return out
}

type fakePhoneVerifier struct {
	mu             sync.Mutex
	notFoundSuffix string
	retries        []int
}

func (f *fakePhoneVerifier) Verify(ctx context.Context, session verify.Session, number string, retries int) domain.VerificationResult {
	f.mu.Lock()
	f.retries = append(f.retries, retries)
	f.mu.Unlock()

	if f.notFoundSuffix != "" && strings.HasSuffix(number, f.notFoundSuffix) {
		return domain.Rejected(number, domain.CategoryNotFound, "Account not found")
	}
	return domain.VerificationResult{
		Identifier: number,
		Valid:      true,
		AccountID:  "acct-" + number,
	}
}

type fakeEngineSession struct{}

func (fakeEngineSession) CheckNumber(ctx context.Context, number string) (verify.Lookup, error) {
	return verify.Lookup{Found: true}, nil
}
func (fakeEngineSession) Close() error { return nil }

type fakeSessionFactory struct {
	mu        sync.Mutex
	names     []string
	failMatch string
}

func (f *fakeSessionFactory) NewSession(ctx context.Context, name string) (verify.Session, error) {
	f.mu.Lock()
	f.names = append(f.names, name)
	f.mu.Unlock()

	if f.failMatch != "" && strings.Contains(name, f.failMatch) {
		return nil, errors.New("session refused")
	}
	return fakeEngineSession{}, nil
}

func (f *fakeSessionFactory) sessionNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

func newTestEngine(t *testing.T, email *fakeEmailVerifier, phone *fakePhoneVerifier, sessions verify.SessionFactory) *Engine {
	t.Helper()

	registry := NewRegistry(time.Hour, nil)
	eng, err := NewEngine(registry, email, phone, sessions, nil, domain.JobConfig{}, nil)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return eng
}

func waitForTerminal(t *testing.T, eng *Engine, jobID string) domain.StatusSnapshot {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		snapshot, err := eng.Status(jobID)
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if !snapshot.Running {
			return snapshot
		}
		select {
		case <-deadline:
			t.Fatalf("job %s never reached a terminal state: %+v", jobID, snapshot)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestEmailJobEndToEnd(t *testing.T) {
	t.Parallel()

	emails := []string{
		"alice@example.com",
		"bob@example.com",
		"bad syntax@example.com",
		"temp@mailinator.com",
		"noreply@example.com",
		"ghost@example.com",
	}

	emailVerifier := &fakeEmailVerifier{results: map[string]domain.VerificationResult{
		"ghost@example.com": {
			Identifier:   "ghost@example.com",
			Category:     domain.CategorySMTPRejected,
			Reason:       "SMTP Verification Failed: Recipient does not exist",
			HasMXRecords: true,
		},
	}}

	eng := newTestEngine(t, emailVerifier, nil, nil)

	jobID, err := eng.SubmitEmailJob(context.Background(), emails, domain.JobConfig{MaxConcurrent: 3})
	if err != nil {
		t.Fatalf("SubmitEmailJob() error = %v", err)
	}

	snapshot := waitForTerminal(t, eng, jobID)

	if snapshot.Status != domain.JobStatusCompleted {
		t.Fatalf("Status = %q, want COMPLETED", snapshot.Status)
	}
	if snapshot.Processed != len(emails) || snapshot.Total != len(emails) {
		t.Fatalf("Processed/Total = %d/%d, want %d/%d", snapshot.Processed, snapshot.Total, len(emails), len(emails))
	}
	if snapshot.Stats.Accepted+snapshot.Stats.Rejected != snapshot.Processed {
		t.Fatalf("accepted %d + rejected %d != processed %d",
			snapshot.Stats.Accepted, snapshot.Stats.Rejected, snapshot.Processed)
	}
	if snapshot.Stats.Accepted != 2 {
		t.Fatalf("Accepted = %d, want 2", snapshot.Stats.Accepted)
	}
	if snapshot.PercentComplete != 100 {
		t.Fatalf("PercentComplete = %d, want 100", snapshot.PercentComplete)
	}

	wantReasons := map[domain.Category]int{
		domain.CategorySyntax:       1,
		domain.CategoryDisposable:   1,
		domain.CategoryInactive:     1,
		domain.CategorySMTPRejected: 1,
	}
	for category, want := range wantReasons {
		if got := snapshot.Stats.Reasons[category]; got != want {
			t.Errorf("Reasons[%s] = %d, want %d", category, got, want)
		}
	}

	// Statically disqualified addresses never reach the network.
	if got := emailVerifier.callCount(); got != 3 {
		t.Fatalf("verifier calls = %d, want 3 (alice, bob, ghost)", got)
	}
}

func terminalSummary(t *testing.T, eng *Engine, jobID string) *domain.Summary {
	t.Helper()

	ch, unsubscribe, err := eng.Subscribe(jobID)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer unsubscribe()

	var summary *domain.Summary
	for event := range ch {
		if event.Type == domain.EventComplete {
			summary = event.Summary
		}
	}
	if summary == nil {
		t.Fatal("expected a complete event on the replayed stream")
	}
	return summary
}

func TestJobRetryCountReachesVerifier(t *testing.T) {
	t.Parallel()

	emailVerifier := &fakeEmailVerifier{}
	eng := newTestEngine(t, emailVerifier, nil, nil)

	jobID, err := eng.SubmitEmailJob(context.Background(), []string{
		"alice@example.com",
		"bob@example.com",
	}, domain.JobConfig{RetryCount: 4})
	if err != nil {
		t.Fatalf("SubmitEmailJob() error = %v", err)
	}
	waitForTerminal(t, eng, jobID)

	for i, got := range emailVerifier.retryCounts() {
		if got != 4 {
			t.Fatalf("retries[%d] = %d, want the job's configured 4", i, got)
		}
	}

	// An unset retry count falls back to the engine default.
	jobID, err = eng.SubmitEmailJob(context.Background(), []string{"carol@example.com"}, domain.JobConfig{RetryCount: -1})
	if err != nil {
		t.Fatalf("SubmitEmailJob() error = %v", err)
	}
	waitForTerminal(t, eng, jobID)

	counts := emailVerifier.retryCounts()
	if got := counts[len(counts)-1]; got != 0 {
		t.Fatalf("retries = %d, want the default 0", got)
	}
}

func TestPhoneJobRetryCountReachesVerifier(t *testing.T) {
	t.Parallel()

	phoneVerifier := &fakePhoneVerifier{}
	eng := newTestEngine(t, nil, phoneVerifier, &fakeSessionFactory{})

	jobID, err := eng.SubmitPhoneJob(context.Background(), []string{
		"15551234567",
		"15557654321",
	}, domain.JobConfig{RetryCount: 2})
	if err != nil {
		t.Fatalf("SubmitPhoneJob() error = %v", err)
	}
	waitForTerminal(t, eng, jobID)

	phoneVerifier.mu.Lock()
	defer phoneVerifier.mu.Unlock()
	if len(phoneVerifier.retries) != 2 {
		t.Fatalf("verifier calls = %d, want 2", len(phoneVerifier.retries))
	}
	for i, got := range phoneVerifier.retries {
		if got != 2 {
			t.Fatalf("retries[%d] = %d, want the job's configured 2", i, got)
		}
	}
}

func TestSummaryHonorsRejectedCap(t *testing.T) {
	t.Parallel()

	emails := make([]string, 8)
	for i := range emails {
		emails[i] = fmt.Sprintf("bad syntax %d@example.com", i)
	}

	eng := newTestEngine(t, &fakeEmailVerifier{}, nil, nil)

	jobID, err := eng.SubmitEmailJob(context.Background(), emails, domain.JobConfig{RejectedCap: 3})
	if err != nil {
		t.Fatalf("SubmitEmailJob() error = %v", err)
	}

	snapshot := waitForTerminal(t, eng, jobID)
	if snapshot.Stats.Rejected != len(emails) {
		t.Fatalf("Stats.Rejected = %d, want %d", snapshot.Stats.Rejected, len(emails))
	}

	summary := terminalSummary(t, eng, jobID)
	if summary.RejectedCount != len(emails) {
		t.Fatalf("RejectedCount = %d, want %d", summary.RejectedCount, len(emails))
	}
	if len(summary.RejectedSample) > 3 {
		t.Fatalf("RejectedSample = %d entries, want at most the cap of 3", len(summary.RejectedSample))
	}
}

func TestSummaryHonorsAcceptedCap(t *testing.T) {
	t.Parallel()

	emails := make([]string, 5)
	for i := range emails {
		emails[i] = fmt.Sprintf("user%d@example.com", i)
	}

	eng := newTestEngine(t, &fakeEmailVerifier{}, nil, nil)

	jobID, err := eng.SubmitEmailJob(context.Background(), emails, domain.JobConfig{AcceptedCap: 2})
	if err != nil {
		t.Fatalf("SubmitEmailJob() error = %v", err)
	}

	snapshot := waitForTerminal(t, eng, jobID)
	if snapshot.Stats.Accepted != len(emails) {
		t.Fatalf("Stats.Accepted = %d, want %d", snapshot.Stats.Accepted, len(emails))
	}

	summary := terminalSummary(t, eng, jobID)
	if len(summary.Accepted) != 2 {
		t.Fatalf("Accepted = %d entries, want the cap of 2", len(summary.Accepted))
	}
}

func TestEmailJobTerminalEventCarriesSummary(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, &fakeEmailVerifier{}, nil, nil)

	jobID, err := eng.SubmitEmailJob(context.Background(), []string{
		"alice@example.com",
		"bad syntax@example.com",
	}, domain.JobConfig{})
	if err != nil {
		t.Fatalf("SubmitEmailJob() error = %v", err)
	}

	waitForTerminal(t, eng, jobID)

	ch, unsubscribe, err := eng.Subscribe(jobID)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer unsubscribe()

	var summary *domain.Summary
	for event := range ch {
		if event.Type == domain.EventComplete {
			summary = event.Summary
		}
	}

	if summary == nil {
		t.Fatal("expected a complete event on the replayed stream")
	}
	if summary.JobID != jobID {
		t.Errorf("Summary.JobID = %q, want %q", summary.JobID, jobID)
	}
	if len(summary.Accepted) != 1 || summary.Accepted[0].Identifier != "alice@example.com" {
		t.Errorf("Accepted = %+v, want alice", summary.Accepted)
	}
	if summary.RejectedCount != 1 || len(summary.RejectedSample) != 1 {
		t.Errorf("Rejected = %d/%d, want 1/1", summary.RejectedCount, len(summary.RejectedSample))
	}
	if summary.ProcessingTime == "" {
		t.Error("ProcessingTime should be set on the terminal summary")
	}
}

func TestSubmitEmailJobValidation(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, &fakeEmailVerifier{}, nil, nil)

	if _, err := eng.SubmitEmailJob(context.Background(), nil, domain.JobConfig{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("SubmitEmailJob(nil) error = %v, want ErrValidation", err)
	}
}

func TestSubmitPhoneJobRequiresSessions(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, nil, &fakePhoneVerifier{}, nil)

	_, err := eng.SubmitPhoneJob(context.Background(), []string{"15551234567"}, domain.JobConfig{})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("SubmitPhoneJob() error = %v, want ErrConflict", err)
	}
}

func TestPhoneJobChunking(t *testing.T) {
	t.Parallel()

	numbers := make([]string, 1200)
	for i := range numbers {
		numbers[i] = fmt.Sprintf("1555%07d", i)
	}

	sessions := &fakeSessionFactory{}
	eng := newTestEngine(t, nil, &fakePhoneVerifier{notFoundSuffix: "7"}, sessions)

	jobID, err := eng.SubmitPhoneJob(context.Background(), numbers, domain.JobConfig{
		ChunkSize:   500,
		MaxSessions: 2,
	})
	if err != nil {
		t.Fatalf("SubmitPhoneJob() error = %v", err)
	}

	snapshot := waitForTerminal(t, eng, jobID)

	if snapshot.Status != domain.JobStatusCompleted {
		t.Fatalf("Status = %q, want COMPLETED", snapshot.Status)
	}
	if snapshot.Processed != 1200 {
		t.Fatalf("Processed = %d, want 1200", snapshot.Processed)
	}
	if snapshot.Stats.Accepted+snapshot.Stats.Rejected != 1200 {
		t.Fatalf("accepted %d + rejected %d != 1200", snapshot.Stats.Accepted, snapshot.Stats.Rejected)
	}

	chunks, err := eng.Chunks(jobID)
	if err != nil {
		t.Fatalf("Chunks() error = %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	wantSizes := []int{500, 500, 200}
	for i, chunk := range chunks {
		if chunk.Size != wantSizes[i] {
			t.Errorf("chunk %d size = %d, want %d", i+1, chunk.Size, wantSizes[i])
		}
		if chunk.Processed != wantSizes[i] {
			t.Errorf("chunk %d processed = %d, want %d", i+1, chunk.Processed, wantSizes[i])
		}
		if chunk.Status != domain.ChunkStatusCompleted {
			t.Errorf("chunk %d status = %q, want COMPLETED", i+1, chunk.Status)
		}
		if chunk.CompletedAt == nil {
			t.Errorf("chunk %d has no completion timestamp", i+1)
		}
	}

	names := sessions.sessionNames()
	if len(names) != 3 {
		t.Fatalf("sessions = %d, want one per chunk", len(names))
	}
	for i, name := range names {
		wantFragment := fmt.Sprintf("check_%s_chunk_", jobID)
		if !strings.HasPrefix(name, wantFragment) {
			t.Errorf("session %d name = %q, want prefix %q", i, name, wantFragment)
		}
	}
}

func TestPhoneJobChunkErrorIsolation(t *testing.T) {
	t.Parallel()

	numbers := make([]string, 1000)
	for i := range numbers {
		numbers[i] = fmt.Sprintf("1555%07d", i)
	}

	sessions := &fakeSessionFactory{failMatch: "_chunk_2_"}
	eng := newTestEngine(t, nil, &fakePhoneVerifier{}, sessions)

	jobID, err := eng.SubmitPhoneJob(context.Background(), numbers, domain.JobConfig{
		ChunkSize:   500,
		MaxSessions: 2,
	})
	if err != nil {
		t.Fatalf("SubmitPhoneJob() error = %v", err)
	}

	snapshot := waitForTerminal(t, eng, jobID)

	// The failed chunk's items stay unprocessed; the job still completes.
	if snapshot.Status != domain.JobStatusCompleted {
		t.Fatalf("Status = %q, want COMPLETED", snapshot.Status)
	}
	if snapshot.Processed != 500 {
		t.Fatalf("Processed = %d, want 500", snapshot.Processed)
	}

	chunks, err := eng.Chunks(jobID)
	if err != nil {
		t.Fatalf("Chunks() error = %v", err)
	}
	if chunks[0].Status != domain.ChunkStatusCompleted {
		t.Errorf("chunk 1 status = %q, want COMPLETED", chunks[0].Status)
	}
	if chunks[1].Status != domain.ChunkStatusError {
		t.Errorf("chunk 2 status = %q, want ERROR", chunks[1].Status)
	}
}

func TestCancelStopsEmailJob(t *testing.T) {
	t.Parallel()

	emails := make([]string, 200)
	for i := range emails {
		emails[i] = fmt.Sprintf("user%d@example.com", i)
	}

	emailVerifier := &fakeEmailVerifier{block: true}
	eng := newTestEngine(t, emailVerifier, nil, nil)

	jobID, err := eng.SubmitEmailJob(context.Background(), emails, domain.JobConfig{MaxConcurrent: 2})
	if err != nil {
		t.Fatalf("SubmitEmailJob() error = %v", err)
	}

	// Wait until at least one item is in flight.
	deadline := time.After(2 * time.Second)
	for emailVerifier.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("no verification started")
		case <-time.After(time.Millisecond):
		}
	}

	cancelled, err := eng.Cancel(jobID)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if !cancelled {
		t.Fatal("Cancel() = false, want true for a running job")
	}

	snapshot, err := eng.Status(jobID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if snapshot.Status != domain.JobStatusCancelled {
		t.Fatalf("Status = %q, want CANCELLED", snapshot.Status)
	}
	if snapshot.Processed >= len(emails) {
		t.Fatalf("Processed = %d, want partial progress", snapshot.Processed)
	}

	// A second cancel is a no-op on the already terminal job.
	cancelled, err = eng.Cancel(jobID)
	if err != nil {
		t.Fatalf("second Cancel() error = %v", err)
	}
	if cancelled {
		t.Fatal("second Cancel() = true, want false")
	}
}

func TestCancelUnknownJob(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, &fakeEmailVerifier{}, nil, nil)

	if _, err := eng.Cancel("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Cancel() error = %v, want ErrNotFound", err)
	}
}

func TestListReportsSubmittedJobs(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, &fakeEmailVerifier{}, nil, nil)

	first, err := eng.SubmitEmailJob(context.Background(), []string{"a@example.com"}, domain.JobConfig{})
	if err != nil {
		t.Fatalf("SubmitEmailJob() error = %v", err)
	}
	second, err := eng.SubmitEmailJob(context.Background(), []string{"b@example.com"}, domain.JobConfig{})
	if err != nil {
		t.Fatalf("SubmitEmailJob() error = %v", err)
	}

	waitForTerminal(t, eng, first)
	waitForTerminal(t, eng, second)

	snapshots := eng.List()
	if len(snapshots) != 2 {
		t.Fatalf("List() = %d jobs, want 2", len(snapshots))
	}
}
