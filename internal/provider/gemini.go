package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"planloom/internal/logging"
)

type GeminiConfig struct {
	Model         string
	FallbackModel string
	APIKey        string
}

type GeminiProvider struct {
	cfg    GeminiConfig
	client *genai.Client
	logger *slog.Logger
}

func NewGeminiProvider(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*GeminiProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingCredentials)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{cfg: cfg, client: client, logger: logger}, nil
}

func (p *GeminiProvider) GenerateStructured(ctx context.Context, prompt string, schema Schema) (string, error) {
	return callWithFallback(ctx, p.logger, p.cfg.Model, p.cfg.FallbackModel, prompt, &schema, p.generate)
}

func (p *GeminiProvider) GenerateFreeText(ctx context.Context, prompt string) (string, error) {
	return callWithFallback(ctx, p.logger, p.cfg.Model, p.cfg.FallbackModel, prompt, nil, p.generate)
}

func (p *GeminiProvider) generate(ctx context.Context, model, prompt string, schema *Schema) (string, error) {
	var config *genai.GenerateContentConfig
	if schema != nil {
		config = &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   toGenaiSchema(schema.JSON),
		}
	}
	resp, err := p.client.Models.GenerateContent(ctx, model, genai.Text(prompt), config)
	if err != nil {
		return "", classifyGeminiError(model, err)
	}
	if resp == nil {
		return "", fmt.Errorf("gemini model %s: %w", model, ErrEmptyResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini model %s blocked prompt (%s): %w", model, resp.PromptFeedback.BlockReason, ErrSafetyBlocked)
	}
	for _, cand := range resp.Candidates {
		if cand != nil && cand.FinishReason == genai.FinishReasonSafety {
			return "", fmt.Errorf("gemini model %s blocked output: %w", model, ErrSafetyBlocked)
		}
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini model %s: %w", model, ErrEmptyResponse)
	}
	return text, nil
}

func classifyGeminiError(model string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || strings.EqualFold(apiErr.Status, "RESOURCE_EXHAUSTED") {
			return fmt.Errorf("gemini model %s status %d: %w", model, apiErr.Code, ErrRateLimited)
		}
		if apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden {
			return fmt.Errorf("gemini model %s status %d: %w", model, apiErr.Code, ErrMissingCredentials)
		}
		return fmt.Errorf("gemini model %s status %d: %s", model, apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("gemini model %s request failed: %w", model, err)
}

// toGenaiSchema translates the fragment of JSON schema this pipeline uses
// (object/array/string/integer types, properties, items, enum, required) into
// the genai native schema type.
func toGenaiSchema(fragment map[string]any) *genai.Schema {
	if fragment == nil {
		return nil
	}
	out := &genai.Schema{}
	switch typeOf(fragment) {
	case "object":
		out.Type = genai.TypeObject
		if props, ok := fragment["properties"].(map[string]any); ok {
			out.Properties = make(map[string]*genai.Schema, len(props))
			for name, raw := range props {
				if sub, ok := raw.(map[string]any); ok {
					out.Properties[name] = toGenaiSchema(sub)
				}
			}
		}
		if required, ok := fragment["required"].([]any); ok {
			for _, r := range required {
				if name, ok := r.(string); ok {
					out.Required = append(out.Required, name)
				}
			}
		}
	case "array":
		out.Type = genai.TypeArray
		if items, ok := fragment["items"].(map[string]any); ok {
			out.Items = toGenaiSchema(items)
		}
	case "integer":
		out.Type = genai.TypeInteger
	case "number":
		out.Type = genai.TypeNumber
	case "boolean":
		out.Type = genai.TypeBoolean
	default:
		out.Type = genai.TypeString
		if enum, ok := fragment["enum"].([]any); ok {
			for _, e := range enum {
				if v, ok := e.(string); ok {
					out.Enum = append(out.Enum, v)
				}
			}
		}
	}
	if desc, ok := fragment["description"].(string); ok {
		out.Description = desc
	}
	return out
}

func typeOf(fragment map[string]any) string {
	t, _ := fragment["type"].(string)
	return strings.ToLower(t)
}
