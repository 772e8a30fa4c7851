package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/auditdesk/internal/domain"
)

// ErrDisabled is returned when no analysis backend is configured.
var ErrDisabled = errors.New("analysis: generator not configured")

// Analyzer produces a compliance analysis for a submitted form.
type Analyzer interface {
	Analyze(ctx context.Context, form *domain.AuditForm, items []domain.CombinedItem) (*Result, error)
}

// ChatCompleter is the subset of the OpenAI chat completions service used here.
type ChatCompleter interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

type OpenAIAnalyzer struct {
	chat    ChatCompleter
	model   string
	timeout time.Duration
}

func NewOpenAI(cfg OpenAIConfig) *OpenAIAnalyzer {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	return NewOpenAIWithCompleter(&client.Chat.Completions, cfg.Model, cfg.Timeout)
}

// NewOpenAIWithCompleter builds an analyzer on an existing completions
// service.
func NewOpenAIWithCompleter(chat ChatCompleter, model string, timeout time.Duration) *OpenAIAnalyzer {
	return &OpenAIAnalyzer{chat: chat, model: model, timeout: timeout}
}

const systemPrompt = `You are a food-service compliance auditor. Review the submitted audit form and reply with a single JSON object with these keys:
compliance_score (integer 0-100), risk_level ("Low", "Medium" or "High"),
key_findings, recommendations, areas_of_concern, positive_aspects (arrays of short strings).
Base every statement on the answers given. Unanswered questions count against compliance.`

func (a *OpenAIAnalyzer) Analyze(ctx context.Context, form *domain.AuditForm, items []domain.CombinedItem) (*Result, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	prompt, err := buildPrompt(form, items)
	if err != nil {
		return nil, fmt.Errorf("analysis.Analyze: %w", err)
	}

	start := time.Now()
	resp, err := a.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		return nil, fmt.Errorf("analysis.Analyze: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("analysis.Analyze: %w: empty completion", ErrFormat)
	}

	result, err := Parse(json.RawMessage(resp.Choices[0].Message.Content))
	if err != nil {
		return nil, fmt.Errorf("analysis.Analyze: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("analysis.Analyze: %w: empty result", ErrFormat)
	}
	result.Normalize()

	log.Debug().
		Int64("form_id", form.ID).
		Str("model", a.model).
		Dur("elapsed", time.Since(start)).
		Int("score", result.ComplianceScore).
		Msg("analysis generated")

	return result, nil
}

func buildPrompt(form *domain.AuditForm, items []domain.CombinedItem) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Form: %s\n", form.Name)
	if form.OutletName != "" {
		fmt.Fprintf(&b, "Outlet: %s\n", form.OutletName)
	}
	b.WriteString("Answers:\n")

	for _, item := range items {
		value := "(no answer)"
		if item.Value != nil {
			encoded, err := json.Marshal(item.Value)
			if err != nil {
				return "", fmt.Errorf("encode answer %s: %w", item.ID, err)
			}
			value = string(encoded)
		}
		fmt.Fprintf(&b, "- %s [%s]: %s\n", item.Label, item.Type, value)
	}

	return b.String(), nil
}

// Disabled is the Analyzer used when no API key is configured.
type Disabled struct{}

func (Disabled) Analyze(context.Context, *domain.AuditForm, []domain.CombinedItem) (*Result, error) {
	return nil, ErrDisabled
}
