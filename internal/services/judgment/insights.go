package judgment

import (
	"strings"

	"github.com/ternarybob/consilium/internal/models"
)

const (
	maxStrengths   = 5
	maxConcerns    = 5
	maxRiskFactors = 3
)

// BuildInsights collects the qualitative highlights from the usable results
// of a batch: strengths, concerns and risk factors, which every analysis
// kind may report. Entries keep their first-seen order, duplicates are
// dropped case-insensitively, and each list is capped.
func BuildInsights(results []models.AnalysisResult) models.InsightSet {
	insights := models.InsightSet{
		KeyStrengths: []string{},
		KeyConcerns:  []string{},
		RiskFactors:  []string{},
	}

	for _, r := range results {
		if !r.Usable() || r.Payload == nil {
			continue
		}
		insights.KeyStrengths = appendCapped(insights.KeyStrengths, stringList(r.Payload["strengths"]), maxStrengths)
		insights.KeyConcerns = appendCapped(insights.KeyConcerns, stringList(r.Payload["concerns"]), maxConcerns)
		insights.RiskFactors = appendCapped(insights.RiskFactors, stringList(r.Payload["risks"]), maxRiskFactors)
	}

	return insights
}

func appendCapped(dst []string, src []string, limit int) []string {
	seen := make(map[string]bool, len(dst))
	for _, s := range dst {
		seen[strings.ToLower(s)] = true
	}
	for _, s := range src {
		if len(dst) >= limit {
			break
		}
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		dst = append(dst, s)
	}
	return dst
}

// stringList coerces a payload value into a string slice. Analyst payloads
// arrive as decoded JSON, so list values are []interface{}.
func stringList(v interface{}) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
