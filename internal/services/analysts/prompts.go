// -----------------------------------------------------------------------
// Prompts - Per-kind prompt construction for LLM-backed analysts
// Prompts request JSON matching the kind's schema and fold in refinement
// parameters carried on the request
// -----------------------------------------------------------------------

package analysts

import (
	"fmt"
	"strings"

	"github.com/ternarybob/consilium/internal/models"
)

// buildPrompt constructs the analysis prompt for a request's kind.
func buildPrompt(req models.AnalysisRequest) string {
	switch req.Kind {
	case models.KindTechnical:
		return buildTechnicalPrompt(req)
	case models.KindValuation:
		return buildValuationPrompt(req)
	default:
		return buildFundamentalPrompt(req)
	}
}

func buildFundamentalPrompt(req models.AnalysisRequest) string {
	var sb strings.Builder

	lookback := paramInt(req.Parameters, "lookback_years", 3)

	sb.WriteString("You are an expert equity research analyst specializing in company fundamentals.\n\n")
	fmt.Fprintf(&sb, "Task: Assess the financial health of %s using the last %d fiscal years of reported financials.\n\n", req.Ticker, lookback)

	sb.WriteString(`CRITICAL RULES:
1. health_score is in [0,1]: 1.0 means exceptional balance sheet and earnings quality, 0.0 means distressed.
2. Back every strength and concern with a specific metric in key_metrics.
3. NEVER use generic phrases: "solid fundamentals", "well-positioned", "strong outlook".
4. confidence is in [0,1] and reflects data completeness, not conviction.
`)

	if paramBool(req.Parameters, "require_detail", false) {
		sb.WriteString("5. Include per-year revenue, margin and debt figures in key_metrics, not just latest values.\n")
	}

	sb.WriteString(`
Output Format (JSON only, no markdown fences):
{
  "health_score": 0.72,
  "key_metrics": {"revenue_growth": 0.08, "net_margin": 0.14, "debt_to_equity": 0.45, "roe": 0.18},
  "strengths": ["Net margin expanded from 11% to 14% over the period"],
  "concerns": ["Debt-to-equity rose to 0.45 after the 2024 acquisition"],
  "risks": ["Refinancing wall in 2026 if rates stay elevated"],
  "confidence": 0.8
}
`)

	appendRefinementContext(&sb, req.Parameters)
	return sb.String()
}

func buildTechnicalPrompt(req models.AnalysisRequest) string {
	var sb strings.Builder

	lookback := paramInt(req.Parameters, "lookback_days", 180)

	sb.WriteString("You are an expert market technician analyzing price and volume action.\n\n")
	fmt.Fprintf(&sb, "Task: Assess the technical posture of %s over the last %d trading days.\n\n", req.Ticker, lookback)

	sb.WriteString(`CRITICAL RULES:
1. technical_score is in [0,1]: 1.0 means strong confirmed uptrend, 0.5 means rangebound, 0.0 means confirmed downtrend.
2. Every signal must be backed by an indicator value in indicators.
3. Name concrete setups ("golden cross", "RSI divergence"), never vague sentiment.
4. confidence is in [0,1] and reflects signal agreement and data coverage.

Output Format (JSON only, no markdown fences):
{
  "technical_score": 0.64,
  "signals": ["50-day EMA crossed above 200-day EMA", "RSI recovering from oversold"],
  "indicators": {"rsi_14": 47.2, "macd": 0.31, "ema_50": 42.10, "ema_200": 41.85},
  "risks": ["Breakdown below the 200-day EMA would negate the setup"],
  "confidence": 0.7
}
`)

	appendRefinementContext(&sb, req.Parameters)
	return sb.String()
}

func buildValuationPrompt(req models.AnalysisRequest) string {
	var sb strings.Builder

	scenarios := paramInt(req.Parameters, "scenario_count", 1)

	sb.WriteString("You are an expert valuation analyst building discounted cash flow models.\n\n")
	fmt.Fprintf(&sb, "Task: Estimate the intrinsic value of %s with a DCF model", req.Ticker)
	if scenarios > 1 {
		fmt.Fprintf(&sb, " across %d scenarios (bear, base, bull) and report the probability-weighted result", scenarios)
	}
	sb.WriteString(".\n\n")

	sb.WriteString(`CRITICAL RULES:
1. upside_potential = (dcf_fair_value - current_price) / current_price.
2. score maps upside to [0,1]: >=0.30 upside scores 0.9, >=0.15 scores 0.75, >=0.0 scores 0.6, >=-0.15 scores 0.4, below that 0.2.
3. State every assumption (growth rate, discount rate, terminal growth) in assumptions.
4. confidence is in [0,1] and reflects how defensible the assumptions are.
`)

	if paramBool(req.Parameters, "include_comparables", false) {
		sb.WriteString("5. Cross-check the DCF result against peer multiples and note material divergence in dcf_model.\n")
	}

	sb.WriteString(`
Output Format (JSON only, no markdown fences):
{
  "valuation": {"dcf_fair_value": 52.40, "current_price": 45.10, "upside_potential": 0.162, "score": 0.75},
  "dcf_model": {"projected_fcf": [1200, 1310, 1420], "terminal_value": 18400, "pv_of_fcf": 16900},
  "assumptions": {"growth_rate": 0.06, "discount_rate": 0.09, "terminal_growth": 0.025},
  "risks": ["Fair value drops 20% if terminal growth falls to 1.5%"],
  "confidence": 0.7
}
`)

	appendRefinementContext(&sb, req.Parameters)
	return sb.String()
}

// appendRefinementContext attaches prior-pass feedback and peer results when
// the feedback controller refined this request.
func appendRefinementContext(sb *strings.Builder, params map[string]interface{}) {
	if notes := paramString(params, "prior_notes", ""); notes != "" {
		sb.WriteString("\nPrevious pass feedback:\n")
		sb.WriteString(notes)
		sb.WriteString("\n")
	}
	if peers := paramString(params, "peer_context", ""); peers != "" {
		sb.WriteString("\nResults from other analysts this pass:\n")
		sb.WriteString(peers)
		sb.WriteString("\n")
	}
}

// Parameter extraction helpers. Parameters cross JSON boundaries, so numbers
// may arrive as float64 even when set as int.
func paramInt(params map[string]interface{}, key string, fallback int) int {
	if params == nil {
		return fallback
	}
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}

func paramBool(params map[string]interface{}, key string, fallback bool) bool {
	if params == nil {
		return fallback
	}
	if v, ok := params[key].(bool); ok {
		return v
	}
	return fallback
}

func paramString(params map[string]interface{}, key, fallback string) string {
	if params == nil {
		return fallback
	}
	if v, ok := params[key].(string); ok {
		return v
	}
	return fallback
}
