package planner

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"planloom/internal/db"
	"planloom/internal/provider"

	"github.com/tidwall/gjson"
)

var effortTagPattern = regexp.MustCompile(`(?i)^\s*\[(low|medium|high)\]\s*`)

// StripEffortTag removes a leading [low|medium|high] tag from a task line.
// The second return is the normalized tag, or "" when the line is untagged.
func StripEffortTag(line string) (string, string) {
	m := effortTagPattern.FindStringSubmatch(line)
	if m == nil {
		return strings.TrimSpace(line), ""
	}
	return strings.TrimSpace(line[len(m[0]):]), strings.ToLower(m[1])
}

func normalizeEffort(effort string) string {
	e := strings.ToLower(strings.TrimSpace(effort))
	if db.ValidEffort(e) {
		return e
	}
	return ""
}

// ClassifyEffort resolves a task line to exactly one of low, medium, high.
// An inline tag wins without a provider round trip; otherwise the provider is
// asked with the effort schema. Classification never blocks planning: any
// failure quietly lands on medium.
func ClassifyEffort(ctx context.Context, p provider.CompletionProvider, logger *slog.Logger, line string) (string, string) {
	clean, tag := StripEffortTag(line)
	if tag != "" {
		return tag, clean
	}

	raw, err := p.GenerateStructured(ctx, buildEffortPrompt(clean), effortSchema())
	if err != nil {
		logger.Warn("effort classification failed, defaulting to medium", "error", err)
		return db.EffortMedium, clean
	}
	effort := normalizeEffort(gjson.Get(raw, "effort").String())
	if effort == "" {
		logger.Warn("effort classification returned unusable output, defaulting to medium")
		return db.EffortMedium, clean
	}
	return effort, clean
}
