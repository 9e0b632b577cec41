package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"

	"planloom/internal/logging"
)

type OpenAIConfig struct {
	BaseURL       string
	Model         string
	FallbackModel string
	APIKey        string
}

type OpenAIProvider struct {
	cfg     OpenAIConfig
	service responses.ResponseService
	logger  *slog.Logger
}

func NewOpenAIProvider(cfg OpenAIConfig, httpClient *http.Client, logger *slog.Logger) (*OpenAIProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingCredentials)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = logging.Discard()
	}
	opts := []option.RequestOption{
		option.WithHTTPClient(httpClient),
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	return &OpenAIProvider{
		cfg:     cfg,
		service: responses.NewResponseService(opts...),
		logger:  logger,
	}, nil
}

func (p *OpenAIProvider) GenerateStructured(ctx context.Context, prompt string, schema Schema) (string, error) {
	return callWithFallback(ctx, p.logger, p.cfg.Model, p.cfg.FallbackModel, prompt, &schema, p.generate)
}

func (p *OpenAIProvider) GenerateFreeText(ctx context.Context, prompt string) (string, error) {
	return callWithFallback(ctx, p.logger, p.cfg.Model, p.cfg.FallbackModel, prompt, nil, p.generate)
}

func (p *OpenAIProvider) generate(ctx context.Context, model, prompt string, schema *Schema) (string, error) {
	params := responses.ResponseNewParams{Model: model}
	params.Input.OfString = param.NewOpt(prompt)
	if schema != nil {
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:   schema.Name,
					Schema: schema.JSON,
					Strict: param.NewOpt(true),
				},
			},
		}
	}

	var rawResp *http.Response
	var rawBody []byte
	_, err := p.service.New(
		ctx,
		params,
		option.WithResponseInto(&rawResp),
		option.WithResponseBodyInto(&rawBody),
	)
	if err != nil {
		return "", p.classifyRequestError(err)
	}
	if len(rawBody) == 0 {
		return "", fmt.Errorf("openai model %s: %w", model, ErrEmptyResponse)
	}
	return extractOutputText(rawBody, model)
}

func (p *OpenAIProvider) classifyRequestError(err error) error {
	var apiErr *responses.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return fmt.Errorf("openai status 429: %w", ErrRateLimited)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("openai status %d: %w", apiErr.StatusCode, ErrMissingCredentials)
		}
		return fmt.Errorf("openai status %d: %s", apiErr.StatusCode, strings.TrimSpace(apiErr.Error()))
	}
	return fmt.Errorf("openai request failed: %w", err)
}

type responseContentPart struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Refusal string `json:"refusal"`
}

type responseItem struct {
	Type    string                `json:"type"`
	Content []responseContentPart `json:"content"`
}

type responsePayload struct {
	ID         string         `json:"id"`
	Output     []responseItem `json:"output"`
	Error      *struct{ Message, Code string } `json:"error"`
	Incomplete *struct{ Reason string }        `json:"incomplete_details"`
}

func extractOutputText(raw []byte, model string) (string, error) {
	var decoded responsePayload
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("openai model %s returned undecodable body: %w", model, err)
	}
	if decoded.Error != nil {
		msg := strings.ToLower(decoded.Error.Message + " " + decoded.Error.Code)
		if strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit") {
			return "", fmt.Errorf("openai model %s: %w", model, ErrRateLimited)
		}
		return "", fmt.Errorf("openai model %s error: %s", model, decoded.Error.Message)
	}
	if decoded.Incomplete != nil && strings.Contains(strings.ToLower(decoded.Incomplete.Reason), "content_filter") {
		return "", fmt.Errorf("openai model %s: %w", model, ErrSafetyBlocked)
	}

	var b strings.Builder
	for _, item := range decoded.Output {
		for _, part := range item.Content {
			if part.Type == "refusal" || part.Refusal != "" {
				return "", fmt.Errorf("openai model %s refused: %w", model, ErrSafetyBlocked)
			}
			if part.Text != "" {
				b.WriteString(part.Text)
			}
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("openai model %s: %w", model, ErrEmptyResponse)
	}
	return text, nil
}
