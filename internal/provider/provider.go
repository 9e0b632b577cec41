// Package provider drives the interchangeable LLM completion backends. Both
// backends expose the same two operations; which one runs is a static wiring
// choice made at process start, never a runtime probe.
package provider

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Failure kinds surfaced to the pipeline. Callers dispatch with errors.Is.
var (
	ErrRateLimited        = errors.New("provider rate limited")
	ErrSafetyBlocked      = errors.New("content blocked by safety filtering")
	ErrMissingCredentials = errors.New("provider credentials missing")
	ErrEmptyResponse      = errors.New("provider returned empty response")
)

// Schema describes the JSON shape a structured generation must return.
// JSON holds a standard JSON-schema fragment; backends translate it to their
// native representation.
type Schema struct {
	Name string
	JSON map[string]any
}

type CompletionProvider interface {
	// GenerateStructured returns raw JSON text constrained by schema. The
	// text still goes through the recovery parser; constraint is best effort.
	GenerateStructured(ctx context.Context, prompt string, schema Schema) (string, error)
	// GenerateFreeText returns plain completion text, empty when the model
	// produced nothing usable.
	GenerateFreeText(ctx context.Context, prompt string) (string, error)
}

// generateFunc is one raw call against a specific model, implemented by each
// backend. schema is nil for free-text generation.
type generateFunc func(ctx context.Context, model, prompt string, schema *Schema) (string, error)

// callWithFallback applies the rate-limit policy: a rate-limit signal on the
// primary model — a rate-limited error or a marker embedded in an
// otherwise-successful body — triggers exactly one retry against the fallback
// model. A second rate limit, or any failure of the fallback itself, is
// terminal.
func callWithFallback(ctx context.Context, logger *slog.Logger, model, fallbackModel, prompt string, schema *Schema, generate generateFunc) (string, error) {
	out, err := generate(ctx, model, prompt, schema)
	if err == nil && !bodyReportsRateLimit(out) {
		return out, nil
	}
	if err != nil && !errors.Is(err, ErrRateLimited) {
		return "", err
	}
	if fallbackModel == "" || fallbackModel == model {
		if err != nil {
			return "", err
		}
		return "", ErrRateLimited
	}

	logger.Warn("primary model rate limited, retrying on fallback",
		"model", model, "fallback_model", fallbackModel)
	out, err = generate(ctx, fallbackModel, prompt, schema)
	if err != nil {
		return "", err
	}
	if bodyReportsRateLimit(out) {
		return "", ErrRateLimited
	}
	return out, nil
}

// bodyReportsRateLimit catches providers that answer 200 with a quota error
// embedded in the body instead of failing the request.
func bodyReportsRateLimit(body string) bool {
	if len(body) > 2000 {
		return false
	}
	lower := strings.ToLower(body)
	if !strings.Contains(lower, "rate limit") && !strings.Contains(lower, "resource_exhausted") && !strings.Contains(lower, "quota exceeded") {
		return false
	}
	// A legitimate plan that merely mentions rate limiting still carries the
	// subtasks shape; a quota error body does not.
	return !strings.Contains(lower, `"subtasks"`)
}
