package relay

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"paydiag-backend/internal/history"
	"paydiag-backend/internal/upstream/dify"
)

type stubUpstream struct {
	calls    int
	envelope map[string]any
	err      error
}

func (s *stubUpstream) Run(ctx context.Context, in dify.RunInput) (map[string]any, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.envelope, nil
}

// countingLedger tracks ledger access so tests can assert fail-fast paths.
type countingLedger struct {
	history.Repo
	countCalls  int
	appendCalls int
	countErr    error
	appendErr   error
}

func (l *countingLedger) CountSince(ctx context.Context, identity string, since time.Time) (int, error) {
	l.countCalls++
	if l.countErr != nil {
		return 0, l.countErr
	}
	return l.Repo.CountSince(ctx, identity, since)
}

func (l *countingLedger) Append(ctx context.Context, event history.Event) (history.Event, error) {
	l.appendCalls++
	if l.appendErr != nil {
		return history.Event{}, l.appendErr
	}
	return l.Repo.Append(ctx, event)
}

func newTestService(upstream *stubUpstream) (*Service, *countingLedger) {
	ledger := &countingLedger{Repo: history.NewMemoryRepo()}
	svc := &Service{
		Ledger:       ledger,
		Upstream:     upstream,
		Platforms:    []string{"淘宝/天猫", "京东", "抖音电商", "拼多多"},
		MaxPerWindow: 3,
		Window:       24 * time.Hour,
	}
	return svc, ledger
}

func seedEvents(t *testing.T, ledger history.Repo, identity string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := ledger.Append(context.Background(), history.Event{
			Identity: identity,
			InputDoc: fmt.Sprintf("doc-%d", i),
			Result:   "r",
		}); err != nil {
			t.Fatalf("seed event: %v", err)
		}
	}
}

func TestAnalyzeSuccessRecordsOneEvent(t *testing.T) {
	upstream := &stubUpstream{envelope: map[string]any{
		"data": map[string]any{"outputs": map[string]any{"text": "A"}},
	}}
	svc, ledger := newTestService(upstream)
	ctx := context.Background()

	result, err := svc.Analyze(ctx, "user-1", Request{Document: "底薪6000，提成2%", Platform: "京东"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Text != "A" {
		t.Fatalf("expected result A, got %q", result.Text)
	}
	if !result.Persisted {
		t.Fatalf("expected recorded result")
	}
	if upstream.calls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", upstream.calls)
	}

	count, err := ledger.CountSince(ctx, "user-1", time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("CountSince: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count 1 after analysis, got %d", count)
	}

	events, err := svc.History(ctx, "user-1", 0, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(events))
	}
	if events[0].InputDoc != "底薪6000，提成2%" || events[0].Result != "A" {
		t.Fatalf("history entry mutated: %+v", events[0])
	}
}

func TestAnalyzeQuotaDeniedNeverCallsUpstream(t *testing.T) {
	upstream := &stubUpstream{envelope: map[string]any{
		"data": map[string]any{"outputs": map[string]any{"text": "A"}},
	}}
	svc, ledger := newTestService(upstream)
	ctx := context.Background()
	seedEvents(t, ledger.Repo, "user-1", svc.MaxPerWindow)

	_, err := svc.Analyze(ctx, "user-1", Request{Document: "doc", Platform: "京东"})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if upstream.calls != 0 {
		t.Fatalf("expected 0 upstream calls, got %d", upstream.calls)
	}

	count, err := ledger.CountSince(ctx, "user-1", time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("CountSince: %v", err)
	}
	if count != svc.MaxPerWindow {
		t.Fatalf("expected count unchanged at %d, got %d", svc.MaxPerWindow, count)
	}
}

func TestAnalyzeEventsOutsideWindowDoNotCount(t *testing.T) {
	upstream := &stubUpstream{envelope: map[string]any{
		"data": map[string]any{"outputs": map[string]any{"text": "A"}},
	}}
	svc, ledger := newTestService(upstream)
	memory := ledger.Repo.(*history.MemoryRepo)

	stale := time.Now().UTC().Add(-25 * time.Hour)
	memory.Now = func() time.Time { return stale }
	seedEvents(t, memory, "user-1", svc.MaxPerWindow)
	memory.Now = nil

	if _, err := svc.Analyze(context.Background(), "user-1", Request{Document: "doc", Platform: "京东"}); err != nil {
		t.Fatalf("expected stale events to be ignored, got %v", err)
	}
	if upstream.calls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", upstream.calls)
	}
}

func TestAnalyzeUpstreamErrorEnvelopeNotRecorded(t *testing.T) {
	upstream := &stubUpstream{envelope: map[string]any{"status": float64(404)}}
	svc, ledger := newTestService(upstream)

	_, err := svc.Analyze(context.Background(), "user-1", Request{Document: "doc", Platform: "京东"})
	var uErr *UpstreamError
	if !errors.As(err, &uErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if uErr.Message != dify.MsgUpstreamFailed {
		t.Fatalf("unexpected message %q", uErr.Message)
	}
	if ledger.appendCalls != 0 {
		t.Fatalf("expected no ledger append, got %d", ledger.appendCalls)
	}
}

func TestAnalyzeUnavailableUpstreamNotRecorded(t *testing.T) {
	upstream := &stubUpstream{err: fmt.Errorf("%w: connect refused", dify.ErrUnavailable)}
	svc, ledger := newTestService(upstream)

	_, err := svc.Analyze(context.Background(), "user-1", Request{Document: "doc", Platform: "京东"})
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if ledger.appendCalls != 0 {
		t.Fatalf("expected no ledger append, got %d", ledger.appendCalls)
	}
}

func TestAnalyzeEmptyDocumentFailsBeforeAnyAccess(t *testing.T) {
	upstream := &stubUpstream{}
	svc, ledger := newTestService(upstream)

	_, err := svc.Analyze(context.Background(), "user-1", Request{Document: "   ", Platform: "京东"})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if vErr.Field != "doc" {
		t.Fatalf("expected doc field, got %q", vErr.Field)
	}
	if upstream.calls != 0 || ledger.countCalls != 0 || ledger.appendCalls != 0 {
		t.Fatalf("expected no collaborator access, got upstream=%d count=%d append=%d",
			upstream.calls, ledger.countCalls, ledger.appendCalls)
	}
}

func TestAnalyzeUnknownPlatformRejected(t *testing.T) {
	upstream := &stubUpstream{}
	svc, _ := newTestService(upstream)

	_, err := svc.Analyze(context.Background(), "user-1", Request{Document: "doc", Platform: "ebay"})
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "type" {
		t.Fatalf("expected type ValidationError, got %v", err)
	}
	if upstream.calls != 0 {
		t.Fatalf("expected 0 upstream calls, got %d", upstream.calls)
	}
}

func TestAnalyzeLedgerReadFailureBlocksUpstream(t *testing.T) {
	upstream := &stubUpstream{}
	svc, ledger := newTestService(upstream)
	ledger.countErr = errors.New("connection reset")

	_, err := svc.Analyze(context.Background(), "user-1", Request{Document: "doc", Platform: "京东"})
	var pErr *PersistenceError
	if !errors.As(err, &pErr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if upstream.calls != 0 {
		t.Fatalf("expected no upstream call on ledger failure, got %d", upstream.calls)
	}
}

func TestAnalyzePersistFailureStillReturnsResult(t *testing.T) {
	upstream := &stubUpstream{envelope: map[string]any{
		"data": map[string]any{"outputs": map[string]any{"result": "诊断建议"}},
	}}
	svc, ledger := newTestService(upstream)
	ledger.appendErr = errors.New("connection reset")

	result, err := svc.Analyze(context.Background(), "user-1", Request{Document: "doc", Platform: "京东"})
	if err != nil {
		t.Fatalf("expected result despite persist failure, got %v", err)
	}
	if result.Text != "诊断建议" {
		t.Fatalf("unexpected result %q", result.Text)
	}
	if result.Persisted {
		t.Fatalf("expected Persisted=false")
	}
}

func TestUsageReflectsWindowConsumption(t *testing.T) {
	upstream := &stubUpstream{}
	svc, ledger := newTestService(upstream)
	ctx := context.Background()
	seedEvents(t, ledger.Repo, "user-1", 2)

	usage, err := svc.Usage(ctx, "user-1")
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if usage.Used != 2 || usage.Limit != 3 || usage.Remaining != 1 {
		t.Fatalf("unexpected usage %+v", usage)
	}
	if usage.WindowSeconds != int64(24*time.Hour/time.Second) {
		t.Fatalf("unexpected window %d", usage.WindowSeconds)
	}
}
