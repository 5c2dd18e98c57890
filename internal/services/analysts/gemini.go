package analysts

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/ternarybob/consilium/internal/common"
	"github.com/ternarybob/consilium/internal/models"
)

// GeminiAnalyst performs one analysis kind using the Google Gemini API.
type GeminiAnalyst struct {
	kind    models.AnalysisKind
	config  *common.GeminiConfig
	logger  arbor.ILogger
	client  *genai.Client
	limiter *rate.Limiter
	timeout time.Duration
}

// NewGeminiAnalyst creates a Gemini-backed analyst for the given kind.
func NewGeminiAnalyst(kind models.AnalysisKind, geminiConfig *common.GeminiConfig, logger arbor.ILogger) (*GeminiAnalyst, error) {
	apiKey, err := common.ResolveAPIKey("gemini_api_key", geminiConfig.APIKey)
	if err != nil {
		return nil, fmt.Errorf("Gemini API key is required for Gemini analysts (set via GEMINI_API_KEY, CONSILIUM_GEMINI_API_KEY, or gemini.api_key in config): %w", err)
	}

	if geminiConfig.Model == "" {
		geminiConfig.Model = "gemini-3-flash-preview"
	}

	timeout, err := time.ParseDuration(geminiConfig.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", geminiConfig.Timeout, err)
	}

	// Free tier allows 15 RPM; default to one request per 4s
	interval, err := time.ParseDuration(geminiConfig.RateLimit)
	if err != nil || interval <= 0 {
		interval = 4 * time.Second
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	analyst := &GeminiAnalyst{
		kind:    kind,
		config:  geminiConfig,
		logger:  logger,
		client:  client,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		timeout: timeout,
	}

	logger.Debug().
		Str("kind", string(kind)).
		Str("model", geminiConfig.Model).
		Dur("timeout", timeout).
		Msg("Gemini analyst initialized")

	return analyst, nil
}

func (a *GeminiAnalyst) Kind() models.AnalysisKind {
	return a.kind
}

func (a *GeminiAnalyst) Name() string {
	return "gemini-" + string(a.kind)
}

// Analyze runs one analysis pass against the Gemini API.
func (a *GeminiAnalyst) Analyze(ctx context.Context, req models.AnalysisRequest) (map[string]interface{}, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait cancelled: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	startTime := time.Now()
	prompt := buildPrompt(req)

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(a.config.Temperature),
	}

	resp, err := a.client.Models.GenerateContent(timeoutCtx, a.config.Model, []*genai.Content{
		{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{genai.NewPartFromText(prompt)},
		},
	}, config)
	if err != nil {
		a.logger.Warn().
			Err(err).
			Str("analyst", a.Name()).
			Str("ticker", req.Ticker).
			Msg("Gemini API call failed")
		return nil, fmt.Errorf("Gemini API call failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("no response generated from Gemini API")
	}

	payload, err := decodeAnalystResponse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Gemini response: %w", err)
	}

	if resp.UsageMetadata != nil && resp.UsageMetadata.TotalTokenCount > 0 {
		payload["tokens_used"] = float64(resp.UsageMetadata.TotalTokenCount)
	}

	a.logger.Debug().
		Str("analyst", a.Name()).
		Str("ticker", req.Ticker).
		Int("response_length", len(text)).
		Dur("duration", time.Since(startTime)).
		Msg("Gemini analysis completed")

	return payload, nil
}

// HealthCheck sends a minimal probe to verify the API is reachable.
func (a *GeminiAnalyst) HealthCheck(ctx context.Context) error {
	if a.client == nil {
		return fmt.Errorf("genai client is not initialized")
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := a.client.Models.GenerateContent(probeCtx, a.config.Model, []*genai.Content{
		genai.NewContentFromText("ping", genai.RoleUser),
	}, nil)
	if err != nil {
		return fmt.Errorf("Gemini probe failed: %w", err)
	}
	if resp.Text() == "" {
		return fmt.Errorf("Gemini probe returned empty response")
	}
	return nil
}
