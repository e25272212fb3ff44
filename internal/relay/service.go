package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"paydiag-backend/internal/history"
	"paydiag-backend/internal/shared/metrics"
	"paydiag-backend/internal/shared/telemetry"
	"paydiag-backend/internal/upstream/dify"
)

// Upstream invokes the workflow provider. Implemented by the Dify client;
// stubbed in tests.
type Upstream interface {
	Run(ctx context.Context, in dify.RunInput) (map[string]any, error)
}

// Request is the caller-supplied analyze input.
type Request struct {
	Document string
	Platform string
}

// Result is a completed analysis. Persisted is false when the analysis
// succeeded but the ledger write failed; the text is still returned.
type Result struct {
	Text      string
	Event     history.Event
	Persisted bool
}

// Usage is an identity's consumption inside the current trailing window.
type Usage struct {
	Used          int   `json:"used"`
	Limit         int   `json:"limit"`
	Remaining     int   `json:"remaining"`
	WindowSeconds int64 `json:"windowSeconds"`
}

// Service orchestrates one analysis: quota check, upstream call,
// normalization, ledger append. Quota is always recomputed from the ledger;
// the service holds no counters, so replicas stay consistent without
// coordination.
type Service struct {
	Ledger       history.Repo
	Upstream     Upstream
	Platforms    []string
	MaxPerWindow int
	Window       time.Duration
	// Now overrides the window clock, for tests.
	Now func() time.Time
}

func (s *Service) clock() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Analyze validates the request, admits it against the rolling-window quota,
// relays it upstream, and records the completed analysis. The quota gate runs
// before the upstream call: a denied request must never cost an upstream
// invocation.
func (s *Service) Analyze(ctx context.Context, identity string, req Request) (Result, error) {
	if identity == "" {
		return Result{}, &ValidationError{Field: "identity", Reason: "identity is required"}
	}
	if strings.TrimSpace(req.Document) == "" {
		return Result{}, &ValidationError{Field: "doc", Reason: "document is required"}
	}
	if !s.platformAllowed(req.Platform) {
		return Result{}, &ValidationError{Field: "type", Reason: "unknown platform type"}
	}

	metrics.IncRelayStarted()

	cutoff := s.clock().Add(-s.Window)
	count, err := s.Ledger.CountSince(ctx, identity, cutoff)
	if err != nil {
		return Result{}, &PersistenceError{Err: fmt.Errorf("count recent analyses: %w", err)}
	}
	if count >= s.MaxPerWindow {
		metrics.IncRelayDenied()
		return Result{}, ErrQuotaExceeded
	}

	// A caller disconnect must not abandon the exchange half-way: the
	// upstream call and the ledger write run to completion either way,
	// bounded by the client timeout.
	callCtx := context.WithoutCancel(ctx)

	start := time.Now()
	envelope, err := s.Upstream.Run(callCtx, dify.RunInput{
		Document: req.Document,
		Platform: req.Platform,
		User:     identity,
	})
	metrics.ObserveUpstreamDurationMs(float64(time.Since(start).Microseconds()) / 1000.0)
	if err != nil {
		metrics.IncRelayFailed()
		return Result{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	verdict := dify.Normalize(envelope)
	if verdict.Kind != dify.VerdictResult {
		metrics.IncRelayFailed()
		return Result{}, &UpstreamError{Message: verdict.Message}
	}

	event, err := s.Ledger.Append(callCtx, history.Event{
		Identity:    identity,
		CompanyType: req.Platform,
		InputDoc:    req.Document,
		Result:      verdict.Result,
	})
	if err != nil {
		// The analysis already happened upstream; a bookkeeping failure
		// must not take the result away from the caller. The quota unit
		// goes unrecorded, which is why this is logged loudly.
		metrics.IncRelayPersistFailure()
		telemetry.Error("relay.persist_failed", map[string]any{
			"identity": identity,
			"platform": req.Platform,
			"error":    err.Error(),
		})
		return Result{Text: verdict.Result, Persisted: false}, nil
	}

	metrics.IncRelayCompleted()
	return Result{Text: verdict.Result, Event: event, Persisted: true}, nil
}

// History returns the identity's recorded analyses, newest first.
func (s *Service) History(ctx context.Context, identity string, limit, offset int) ([]history.Event, error) {
	if identity == "" {
		return nil, &ValidationError{Field: "identity", Reason: "identity is required"}
	}
	return s.Ledger.ListByIdentity(ctx, identity, limit, offset)
}

// Usage reports consumption within the current trailing window.
func (s *Service) Usage(ctx context.Context, identity string) (Usage, error) {
	if identity == "" {
		return Usage{}, &ValidationError{Field: "identity", Reason: "identity is required"}
	}
	count, err := s.Ledger.CountSince(ctx, identity, s.clock().Add(-s.Window))
	if err != nil {
		return Usage{}, &PersistenceError{Err: fmt.Errorf("count recent analyses: %w", err)}
	}
	remaining := s.MaxPerWindow - count
	if remaining < 0 {
		remaining = 0
	}
	return Usage{
		Used:          count,
		Limit:         s.MaxPerWindow,
		Remaining:     remaining,
		WindowSeconds: int64(s.Window / time.Second),
	}, nil
}

func (s *Service) platformAllowed(platform string) bool {
	for _, p := range s.Platforms {
		if p == platform {
			return true
		}
	}
	return false
}
