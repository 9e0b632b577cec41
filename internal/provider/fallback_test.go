package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"planloom/internal/logging"
)

type fakeCall struct {
	calls   []string
	results map[string]struct {
		out string
		err error
	}
}

func (f *fakeCall) generate(_ context.Context, model, _ string, _ *Schema) (string, error) {
	f.calls = append(f.calls, model)
	r := f.results[model]
	return r.out, r.err
}

func newFakeCall() *fakeCall {
	return &fakeCall{results: map[string]struct {
		out string
		err error
	}{}}
}

func (f *fakeCall) set(model, out string, err error) {
	f.results[model] = struct {
		out string
		err error
	}{out, err}
}

func TestCallWithFallback_PrimarySuccessSkipsFallback(t *testing.T) {
	fake := newFakeCall()
	fake.set("primary", `{"subtasks":[]}`, nil)

	out, err := callWithFallback(context.Background(), logging.Discard(), "primary", "fallback", "p", nil, fake.generate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"subtasks":[]}` {
		t.Fatalf("unexpected output: %q", out)
	}
	if len(fake.calls) != 1 || fake.calls[0] != "primary" {
		t.Fatalf("unexpected calls: %v", fake.calls)
	}
}

func TestCallWithFallback_RateLimitRetriesExactlyOnce(t *testing.T) {
	fake := newFakeCall()
	fake.set("primary", "", fmt.Errorf("status 429: %w", ErrRateLimited))
	fake.set("fallback", "recovered output", nil)

	out, err := callWithFallback(context.Background(), logging.Discard(), "primary", "fallback", "p", nil, fake.generate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "recovered output" {
		t.Fatalf("unexpected output: %q", out)
	}
	if len(fake.calls) != 2 || fake.calls[1] != "fallback" {
		t.Fatalf("expected exactly one fallback retry, got calls %v", fake.calls)
	}
}

func TestCallWithFallback_SecondRateLimitIsTerminal(t *testing.T) {
	fake := newFakeCall()
	fake.set("primary", "", ErrRateLimited)
	fake.set("fallback", "", fmt.Errorf("again: %w", ErrRateLimited))

	_, err := callWithFallback(context.Background(), logging.Discard(), "primary", "fallback", "p", nil, fake.generate)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected terminal rate limit error, got %v", err)
	}
	if len(fake.calls) != 2 {
		t.Fatalf("expected no third attempt, got calls %v", fake.calls)
	}
}

func TestCallWithFallback_FallbackFailureIsTerminal(t *testing.T) {
	fake := newFakeCall()
	fake.set("primary", "", ErrRateLimited)
	fake.set("fallback", "", errors.New("boom"))

	_, err := callWithFallback(context.Background(), logging.Discard(), "primary", "fallback", "p", nil, fake.generate)
	if err == nil || errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected fallback's own failure to surface, got %v", err)
	}
	if len(fake.calls) != 2 {
		t.Fatalf("unexpected calls: %v", fake.calls)
	}
}

func TestCallWithFallback_NonRateLimitErrorDoesNotRetry(t *testing.T) {
	fake := newFakeCall()
	fake.set("primary", "", ErrSafetyBlocked)

	_, err := callWithFallback(context.Background(), logging.Discard(), "primary", "fallback", "p", nil, fake.generate)
	if !errors.Is(err, ErrSafetyBlocked) {
		t.Fatalf("expected safety block to surface, got %v", err)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("safety block must not trigger fallback, calls %v", fake.calls)
	}
}

func TestCallWithFallback_EmbeddedBodyMarkerTriggersFallback(t *testing.T) {
	fake := newFakeCall()
	fake.set("primary", "Error: rate limit exceeded for this key", nil)
	fake.set("fallback", `{"subtasks":[{"description":"A","effort":"low"}]}`, nil)

	out, err := callWithFallback(context.Background(), logging.Discard(), "primary", "fallback", "p", nil, fake.generate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.calls) != 2 {
		t.Fatalf("expected embedded marker to trigger fallback, calls %v", fake.calls)
	}
	if out == "" {
		t.Fatal("expected fallback output")
	}
}

func TestBodyReportsRateLimit_IgnoresLegitimatePlans(t *testing.T) {
	plan := `{"subtasks":[{"description":"Add rate limit middleware","effort":"medium"}]}`
	if bodyReportsRateLimit(plan) {
		t.Fatal("plan mentioning rate limiting must not be treated as a quota error")
	}
	if !bodyReportsRateLimit("RESOURCE_EXHAUSTED: quota exceeded") {
		t.Fatal("quota error body should be detected")
	}
}

func TestExtractOutputText_RefusalIsSafetyBlocked(t *testing.T) {
	raw := []byte(`{"id":"r1","output":[{"type":"message","content":[{"type":"refusal","refusal":"cannot help"}]}]}`)
	_, err := extractOutputText(raw, "m")
	if !errors.Is(err, ErrSafetyBlocked) {
		t.Fatalf("expected safety block, got %v", err)
	}
}

func TestExtractOutputText_ConcatenatesTextParts(t *testing.T) {
	raw := []byte(`{"id":"r1","output":[{"type":"message","content":[{"type":"output_text","text":"{\"subtasks\""},{"type":"output_text","text":":[]}"}]}]}`)
	out, err := extractOutputText(raw, "m")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"subtasks":[]}` {
		t.Fatalf("unexpected text: %q", out)
	}
}
