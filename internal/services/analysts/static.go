// -----------------------------------------------------------------------
// StaticAnalyst - Deterministic rule-based analysts used when no LLM
// provider is configured. Output is a pure function of the ticker so
// repeated runs agree, and always passes schema validation.
// -----------------------------------------------------------------------

package analysts

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/consilium/internal/models"
)

// StaticAnalyst produces schema-complete payloads derived from a hash of
// the ticker. It exists so the advisory loop is fully exercisable offline.
type StaticAnalyst struct {
	kind   models.AnalysisKind
	logger arbor.ILogger
}

// NewStaticAnalyst creates a deterministic analyst for the given kind
func NewStaticAnalyst(kind models.AnalysisKind, logger arbor.ILogger) *StaticAnalyst {
	return &StaticAnalyst{kind: kind, logger: logger}
}

func (a *StaticAnalyst) Kind() models.AnalysisKind {
	return a.kind
}

func (a *StaticAnalyst) Name() string {
	return "static-" + string(a.kind)
}

// HealthCheck always passes; there is no upstream dependency.
func (a *StaticAnalyst) HealthCheck(ctx context.Context) error {
	return nil
}

// Analyze derives a payload from the ticker hash. Refinement parameters
// change the output shape (extra detail, scenarios) the same way they
// change LLM prompts.
func (a *StaticAnalyst) Analyze(ctx context.Context, req models.AnalysisRequest) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seed := tickerSeed(req.Ticker)

	var payload map[string]interface{}
	switch a.kind {
	case models.KindTechnical:
		payload = a.technicalPayload(seed)
	case models.KindValuation:
		payload = a.valuationPayload(seed, req.Parameters)
	default:
		payload = a.fundamentalPayload(seed, req.Parameters)
	}

	a.logger.Debug().
		Str("analyst", a.Name()).
		Str("ticker", req.Ticker).
		Msg("Static analysis generated")

	return payload, nil
}

func (a *StaticAnalyst) fundamentalPayload(seed uint64, params map[string]interface{}) map[string]interface{} {
	revenueGrowth := round2(-0.05 + 0.20*derive(seed, 1))
	netMargin := round2(0.02 + 0.20*derive(seed, 2))
	debtToEquity := round2(0.10 + 1.00*derive(seed, 3))
	roe := round2(0.05 + 0.20*derive(seed, 4))

	// Health score follows the metrics so strengths/concerns stay consistent
	health := 0.5
	health += (revenueGrowth - 0.05) * 1.5
	health += (netMargin - 0.12) * 1.0
	health -= (debtToEquity - 0.6) * 0.3
	health += (roe - 0.15) * 0.8
	health = models.Clamp01(health)

	strengths := []string{}
	concerns := []string{}
	if revenueGrowth >= 0.05 {
		strengths = append(strengths, fmt.Sprintf("Revenue growing %.0f%% annually", revenueGrowth*100))
	} else {
		concerns = append(concerns, fmt.Sprintf("Revenue growth of %.0f%% lags inflation", revenueGrowth*100))
	}
	if netMargin >= 0.12 {
		strengths = append(strengths, fmt.Sprintf("Net margin of %.0f%% above sector median", netMargin*100))
	} else {
		concerns = append(concerns, fmt.Sprintf("Net margin of %.0f%% below sector median", netMargin*100))
	}
	if debtToEquity <= 0.6 {
		strengths = append(strengths, fmt.Sprintf("Conservative leverage at %.2f debt-to-equity", debtToEquity))
	} else {
		concerns = append(concerns, fmt.Sprintf("Elevated leverage at %.2f debt-to-equity", debtToEquity))
	}

	keyMetrics := map[string]interface{}{
		"revenue_growth": revenueGrowth,
		"net_margin":     netMargin,
		"debt_to_equity": debtToEquity,
		"roe":            roe,
	}

	if paramBool(params, "require_detail", false) {
		years := paramInt(params, "lookback_years", 3)
		revenue := make([]float64, 0, years)
		base := 800 + 3200*derive(seed, 5)
		for i := 0; i < years; i++ {
			revenue = append(revenue, math.Round(base))
			base *= 1 + revenueGrowth
		}
		keyMetrics["revenue_by_year"] = revenue
	}

	risks := []string{}
	if debtToEquity > 0.8 {
		risks = append(risks, "Refinancing risk if rates stay elevated")
	}
	if revenueGrowth < 0.0 {
		risks = append(risks, "Shrinking top line")
	}

	return map[string]interface{}{
		"health_score": round2(health),
		"key_metrics":  keyMetrics,
		"strengths":    strengths,
		"concerns":     concerns,
		"risks":        risks,
		"confidence":   round2(0.70 + 0.10*derive(seed, 6)),
	}
}

func (a *StaticAnalyst) technicalPayload(seed uint64) map[string]interface{} {
	rsi := round2(30 + 40*derive(seed, 10))
	macd := round2(-1 + 2*derive(seed, 11))
	price := 5 + 145*derive(seed, 12)
	ema50 := round2(price * (0.97 + 0.06*derive(seed, 13)))
	ema200 := round2(price * (0.97 + 0.06*derive(seed, 14)))

	signals := []string{}
	score := 0.5
	if ema50 > ema200 {
		signals = append(signals, "50-day EMA holding above 200-day EMA")
		score += 0.15
	} else {
		signals = append(signals, "50-day EMA below 200-day EMA")
		score -= 0.15
	}
	if rsi <= 40 {
		signals = append(signals, fmt.Sprintf("RSI at %.0f approaching oversold", rsi))
	} else if rsi >= 60 {
		signals = append(signals, fmt.Sprintf("RSI elevated at %.0f", rsi))
	}
	if macd > 0 {
		signals = append(signals, "MACD positive")
	}
	score += (rsi - 50) / 200
	score += macd * 0.1
	score = models.Clamp01(score)

	risks := []string{}
	if rsi >= 60 {
		risks = append(risks, "Overbought conditions invite a pullback")
	}
	if ema50 < ema200 {
		risks = append(risks, "Trend remains below long-term average")
	}

	return map[string]interface{}{
		"technical_score": round2(score),
		"signals":         signals,
		"risks":           risks,
		"indicators": map[string]interface{}{
			"rsi_14":  rsi,
			"macd":    macd,
			"ema_50":  ema50,
			"ema_200": ema200,
		},
		"confidence": round2(0.65 + 0.15*derive(seed, 15)),
	}
}

func (a *StaticAnalyst) valuationPayload(seed uint64, params map[string]interface{}) map[string]interface{} {
	currentPrice := round2(5 + 145*derive(seed, 20))
	upside := round2(-0.25 + 0.65*derive(seed, 21))
	fairValue := round2(currentPrice * (1 + upside))
	growthRate := round2(0.02 + 0.06*derive(seed, 22))

	fcf := 900 + 2600*derive(seed, 23)
	projected := make([]float64, 0, 3)
	for i := 0; i < 3; i++ {
		fcf *= 1 + growthRate
		projected = append(projected, math.Round(fcf))
	}

	dcfModel := map[string]interface{}{
		"projected_fcf":  projected,
		"terminal_value": math.Round(fcf * 12),
		"pv_of_fcf":      math.Round(fcf * 10.5),
	}

	if n := paramInt(params, "scenario_count", 1); n > 1 {
		dcfModel["scenarios"] = map[string]interface{}{
			"bear": round2(fairValue * 0.8),
			"base": fairValue,
			"bull": round2(fairValue * 1.25),
		}
	}

	return map[string]interface{}{
		"valuation": map[string]interface{}{
			"dcf_fair_value":   fairValue,
			"current_price":    currentPrice,
			"upside_potential": upside,
			"score":            scoreFromUpside(upside),
		},
		"dcf_model": dcfModel,
		"assumptions": map[string]interface{}{
			"growth_rate":     growthRate,
			"discount_rate":   0.09,
			"terminal_growth": 0.025,
		},
		"risks":      valuationRisks(upside),
		"confidence": round2(0.65 + 0.15*derive(seed, 24)),
	}
}

func valuationRisks(upside float64) []string {
	risks := []string{}
	if upside < 0 {
		risks = append(risks, "Trading above estimated fair value")
	}
	risks = append(risks, "DCF sensitive to terminal growth assumption")
	return risks
}

// tickerSeed hashes the normalized ticker so all kinds of static analysis
// for one ticker derive from the same base.
func tickerSeed(ticker string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(strings.ToUpper(strings.TrimSpace(ticker))))
	return h.Sum64()
}

// derive produces a stable value in [0,1) from the seed and a salt
func derive(seed, salt uint64) float64 {
	x := seed ^ (salt * 0x9E3779B97F4A7C15)
	x ^= x >> 33
	x *= 0xFF51AFD7ED558CCD
	x ^= x >> 33
	return float64(x%10000) / 10000.0
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
