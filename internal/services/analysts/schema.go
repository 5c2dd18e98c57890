// -----------------------------------------------------------------------
// AnalystSchema - Schema definitions for analyst output payloads
// Each analysis kind has required fields; payloads missing them are
// rejected as schema-invalid rather than scored
// -----------------------------------------------------------------------

package analysts

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ternarybob/consilium/internal/models"
)

// DefaultConfidence is applied when an analyst omits its self-reported
// confidence. Deliberately below MinKindConfidence so an analyst that
// never states certainty is treated as low-quality, not trusted.
const DefaultConfidence = 0.6

// FundamentalPayload is the accepted shape of fundamental analysis output.
// Only the headline score is required; everything else enriches the result.
type FundamentalPayload struct {
	// Overall financial health in [0,1]
	HealthScore *float64 `json:"health_score" validate:"required,gte=0,lte=1"`

	// Named metrics backing the score (margins, debt ratios, growth rates)
	KeyMetrics map[string]interface{} `json:"key_metrics,omitempty"`

	// Qualitative takeaways
	Strengths []string `json:"strengths,omitempty"`
	Concerns  []string `json:"concerns,omitempty"`

	// Self-reported certainty in [0,1]; defaulted when absent
	Confidence *float64 `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// TechnicalPayload is the accepted shape of technical analysis output.
type TechnicalPayload struct {
	// Price/volume trend strength in [0,1]
	TechnicalScore *float64 `json:"technical_score" validate:"required,gte=0,lte=1"`

	// Detected chart signals (e.g. "golden cross", "RSI oversold")
	Signals []string `json:"signals,omitempty"`

	// Indicator values backing the signals (RSI, MACD, moving averages)
	Indicators map[string]interface{} `json:"indicators,omitempty"`

	Confidence *float64 `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// ValuationPayload is the accepted shape of valuation analysis output.
type ValuationPayload struct {
	Valuation *ValuationSummary `json:"valuation" validate:"required"`

	// DCF projection detail (projected cash flows, terminal value)
	DCFModel map[string]interface{} `json:"dcf_model,omitempty"`

	// Model inputs (growth rate, discount rate, terminal growth)
	Assumptions map[string]interface{} `json:"assumptions,omitempty"`

	Confidence *float64 `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// ValuationSummary is the headline valuation verdict. Score is required at
// validation time; adapters that receive only upside_potential fill it via
// NormalizeValuation before evaluating.
type ValuationSummary struct {
	DCFFairValue    *float64 `json:"dcf_fair_value,omitempty"`
	CurrentPrice    *float64 `json:"current_price,omitempty" validate:"omitempty,gt=0"`
	UpsidePotential *float64 `json:"upside_potential,omitempty"`
	Score           *float64 `json:"score" validate:"required,gte=0,lte=1"`
}

// validate reports field paths by json tag name so schema errors read the
// way the payload was written, not the way the Go struct is named.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Evaluate checks a raw analyst payload against the schema for its kind and
// extracts the normalized score and confidence. A schema failure names the
// offending field so the judgment rationale can report it.
func Evaluate(kind models.AnalysisKind, payload map[string]interface{}) (float64, float64, error) {
	if payload == nil {
		return 0, 0, fmt.Errorf("empty payload")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed payload: %w", err)
	}

	switch kind {
	case models.KindFundamental:
		var p FundamentalPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return 0, 0, fmt.Errorf("malformed payload: %w", err)
		}
		if err := validate.Struct(&p); err != nil {
			return 0, 0, schemaError(err)
		}
		return models.Clamp01(*p.HealthScore), confidenceOrDefault(p.Confidence), nil

	case models.KindTechnical:
		var p TechnicalPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return 0, 0, fmt.Errorf("malformed payload: %w", err)
		}
		if err := validate.Struct(&p); err != nil {
			return 0, 0, schemaError(err)
		}
		return models.Clamp01(*p.TechnicalScore), confidenceOrDefault(p.Confidence), nil

	case models.KindValuation:
		var p ValuationPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return 0, 0, fmt.Errorf("malformed payload: %w", err)
		}
		if err := validate.Struct(&p); err != nil {
			return 0, 0, schemaError(err)
		}
		return models.Clamp01(*p.Valuation.Score), confidenceOrDefault(p.Confidence), nil
	}

	return 0, 0, fmt.Errorf("unknown analysis kind: %q", kind)
}

// schemaError converts validator output into a message naming the failing
// payload field
func schemaError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Tag() == "required" {
			return fmt.Errorf("missing required field: %s", fieldPath(fe))
		}
		return fmt.Errorf("field %s failed %s validation", fieldPath(fe), fe.Tag())
	}
	return err
}

// fieldPath strips the root struct name from the validator namespace,
// leaving the json path ("valuation.score", "health_score").
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func confidenceOrDefault(v *float64) float64 {
	if v == nil {
		return DefaultConfidence
	}
	return models.Clamp01(*v)
}

// scoreFromUpside maps DCF upside potential to a valuation score band.
// Used by the deterministic analyst and documented in the valuation prompt
// so LLM analysts apply the same mapping.
func scoreFromUpside(upside float64) float64 {
	switch {
	case upside >= 0.30:
		return 0.9
	case upside >= 0.15:
		return 0.75
	case upside >= 0.0:
		return 0.6
	case upside >= -0.15:
		return 0.4
	default:
		return 0.2
	}
}

// NormalizeValuation fills valuation.score from upside_potential when an
// analyst reported the upside but not the banded score. The payload is
// mutated so the persisted result shows the score that was judged. Returns
// a data-quality note describing the derivation, or "" when nothing changed.
func NormalizeValuation(payload map[string]interface{}) string {
	summary, ok := payload["valuation"].(map[string]interface{})
	if !ok {
		return ""
	}
	if _, has := summary["score"]; has {
		return ""
	}
	upside, ok := numericValue(summary["upside_potential"])
	if !ok {
		return ""
	}
	score := scoreFromUpside(upside)
	summary["score"] = score
	return fmt.Sprintf("valuation.score %.2f derived from upside_potential %.2f", score, upside)
}

// enrichmentFields are the optional sections that distinguish a full
// analysis from a bare-minimum one, per kind. A schema-valid payload that
// reports none of them is usable but degraded.
var enrichmentFields = map[models.AnalysisKind][]string{
	models.KindFundamental: {"key_metrics", "trend_analysis", "strengths", "concerns", "risks"},
	models.KindTechnical:   {"signals", "indicators", "patterns", "strengths", "concerns", "risks"},
	models.KindValuation:   {"dcf_model", "comparable_analysis", "assumptions", "strengths", "concerns", "risks"},
}

// AssessQuality inspects a schema-valid payload for reduced data quality.
// Reports whether the result should be marked degraded and the notes
// explaining the downgrade.
func AssessQuality(kind models.AnalysisKind, payload map[string]interface{}) (bool, []string) {
	var notes []string
	degraded := false

	if quality, ok := payload["data_quality"].(string); ok {
		switch strings.ToLower(quality) {
		case "low", "partial":
			degraded = true
			notes = append(notes, fmt.Sprintf("analyst flagged data quality %q", quality))
		}
	}

	reported := false
	for _, field := range enrichmentFields[kind] {
		if _, ok := payload[field]; ok {
			reported = true
			break
		}
	}
	if !reported {
		degraded = true
		notes = append(notes, "bare-minimum payload: no enrichment sections reported")
	}

	return degraded, notes
}

func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
