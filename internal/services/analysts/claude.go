package analysts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/consilium/internal/common"
	"github.com/ternarybob/consilium/internal/models"
)

// ClaudeAnalyst performs one analysis kind using the Anthropic Claude API.
// Transient failures surface as errors; retry policy belongs to the invoker.
type ClaudeAnalyst struct {
	kind      models.AnalysisKind
	config    *common.ClaudeConfig
	logger    arbor.ILogger
	client    anthropic.Client
	limiter   *rate.Limiter
	timeout   time.Duration
	maxTokens int
}

// NewClaudeAnalyst creates a Claude-backed analyst for the given kind.
//
// Initialization resolves the Anthropic API key (environment first, config
// fallback), applies model and token defaults, and builds a shared-nothing
// client with its own rate limiter.
func NewClaudeAnalyst(kind models.AnalysisKind, claudeConfig *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeAnalyst, error) {
	apiKey, err := common.ResolveAPIKey("anthropic_api_key", claudeConfig.APIKey)
	if err != nil {
		return nil, fmt.Errorf("Anthropic API key is required for Claude analysts (set via ANTHROPIC_API_KEY, CONSILIUM_CLAUDE_API_KEY, or claude.api_key in config): %w", err)
	}

	if claudeConfig.Model == "" {
		claudeConfig.Model = "claude-3-5-haiku-20241022"
	}

	timeout, err := time.ParseDuration(claudeConfig.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", claudeConfig.Timeout, err)
	}

	maxTokens := claudeConfig.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	interval, err := time.ParseDuration(claudeConfig.RateLimit)
	if err != nil || interval <= 0 {
		interval = time.Second
	}

	analyst := &ClaudeAnalyst{
		kind:      kind,
		config:    claudeConfig,
		logger:    logger,
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		limiter:   rate.NewLimiter(rate.Every(interval), 1),
		timeout:   timeout,
		maxTokens: maxTokens,
	}

	logger.Debug().
		Str("kind", string(kind)).
		Str("model", claudeConfig.Model).
		Dur("timeout", timeout).
		Int("max_tokens", maxTokens).
		Msg("Claude analyst initialized")

	return analyst, nil
}

func (a *ClaudeAnalyst) Kind() models.AnalysisKind {
	return a.kind
}

func (a *ClaudeAnalyst) Name() string {
	return "claude-" + string(a.kind)
}

// Analyze runs one analysis pass: build the kind's prompt, call the API,
// and decode the JSON payload from the response text.
func (a *ClaudeAnalyst) Analyze(ctx context.Context, req models.AnalysisRequest) (map[string]interface{}, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait cancelled: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	startTime := time.Now()
	prompt := buildPrompt(req)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.config.Model),
		MaxTokens: int64(a.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if a.config.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(a.config.Temperature))
	}

	resp, err := a.client.Messages.New(timeoutCtx, params)
	if err != nil {
		a.logger.Warn().
			Err(err).
			Str("analyst", a.Name()).
			Str("ticker", req.Ticker).
			Msg("Claude API call failed")
		return nil, fmt.Errorf("Claude API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("no response generated from Claude API")
	}

	payload, err := decodeAnalystResponse(text.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse Claude response: %w", err)
	}

	if tokens := resp.Usage.InputTokens + resp.Usage.OutputTokens; tokens > 0 {
		payload["tokens_used"] = float64(tokens)
	}

	a.logger.Debug().
		Str("analyst", a.Name()).
		Str("ticker", req.Ticker).
		Int("response_length", text.Len()).
		Dur("duration", time.Since(startTime)).
		Msg("Claude analysis completed")

	return payload, nil
}

// HealthCheck sends a minimal probe to verify the API is reachable.
func (a *ClaudeAnalyst) HealthCheck(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := a.client.Messages.New(probeCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.config.Model),
		MaxTokens: 16,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return fmt.Errorf("Claude probe failed: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			return nil
		}
	}
	return fmt.Errorf("Claude probe returned empty response")
}
