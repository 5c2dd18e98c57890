package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/consilium/internal/models"
)

// formatAdvisoryRecord formats a freshly completed advisory as markdown
func formatAdvisoryRecord(record *models.AdvisoryRecord) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Advisory for %s\n\n", record.Ticker))
	sb.WriteString(fmt.Sprintf("**ID:** %s\n", record.ID))
	sb.WriteString(fmt.Sprintf("**Status:** %s\n", record.Status))

	if record.Status == models.AdvisoryStatusFailed {
		sb.WriteString(fmt.Sprintf("**Error (%s):** %s\n", record.ErrorKind, record.Error))
		return sb.String()
	}

	rec := record.Recommendation
	if rec == nil {
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("\n### %s\n\n", rec.Band))
	sb.WriteString(fmt.Sprintf("**Composite score:** %.3f\n", rec.CompositeScore))
	sb.WriteString(fmt.Sprintf("**Confidence:** %.3f", rec.Confidence))
	if rec.BestEffort {
		sb.WriteString(" *(best-effort: iteration budget exhausted below threshold)*")
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("**Consistency:** %.3f\n", rec.Consistency))
	sb.WriteString(fmt.Sprintf("**Iterations:** %d | **Mode:** %s | **Duration:** %dms\n\n",
		rec.Iterations, rec.Execution.Mode, rec.Execution.DurationMs))

	if len(rec.Contributions) > 0 {
		sb.WriteString("#### Contributions\n\n")
		sb.WriteString("| Kind | Score | Weight | Confidence |\n")
		sb.WriteString("|------|-------|--------|------------|\n")
		for _, c := range rec.Contributions {
			sb.WriteString(fmt.Sprintf("| %s | %.3f | %.3f | %.3f |\n", c.Kind, c.Score, c.Weight, c.Confidence))
		}
		sb.WriteString("\n")
	}

	for _, excluded := range rec.ExcludedKinds {
		sb.WriteString(fmt.Sprintf("- Excluded **%s**: %s\n", excluded.Kind, excluded.Reason))
	}

	if len(rec.Insights.KeyStrengths) > 0 {
		sb.WriteString("\n#### Key strengths\n")
		for _, s := range rec.Insights.KeyStrengths {
			sb.WriteString(fmt.Sprintf("- %s\n", s))
		}
	}
	if len(rec.Insights.KeyConcerns) > 0 {
		sb.WriteString("\n#### Key concerns\n")
		for _, c := range rec.Insights.KeyConcerns {
			sb.WriteString(fmt.Sprintf("- %s\n", c))
		}
	}
	if len(rec.Insights.RiskFactors) > 0 {
		sb.WriteString("\n#### Risk factors\n")
		for _, r := range rec.Insights.RiskFactors {
			sb.WriteString(fmt.Sprintf("- %s\n", r))
		}
	}

	sb.WriteString("\n#### Rationale\n\n")
	sb.WriteString(rec.Rationale)
	sb.WriteString("\n")

	return sb.String()
}

// formatAdvisoryDetail formats a stored record including its audit trail
func formatAdvisoryDetail(record *models.AdvisoryRecord) string {
	var sb strings.Builder
	sb.WriteString(formatAdvisoryRecord(record))

	if record.Recommendation == nil || len(record.Recommendation.Analyses) == 0 {
		return sb.String()
	}

	sb.WriteString("\n#### Audit trail\n\n")
	sb.WriteString("| # | Kind | Analyst | Pass | Status | Score | Confidence | Notes |\n")
	sb.WriteString("|---|------|---------|------|--------|-------|------------|-------|\n")
	for i, a := range record.Recommendation.Analyses {
		detail := a.Notes
		if a.Status == models.AnalysisFailed {
			detail = a.Error
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %d | %s | %.3f | %.3f | %s |\n",
			i+1, a.Kind, a.Analyst, a.Iteration, a.Status, a.Score, a.Confidence, detail))
	}

	return sb.String()
}

// formatAdvisoryList formats an advisory listing as markdown
func formatAdvisoryList(records []*models.AdvisoryRecord, limit int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Recent Advisories (%d of %d)\n\n", len(records), limit))

	if len(records) == 0 {
		sb.WriteString("No advisories found.\n")
		return sb.String()
	}

	for i, record := range records {
		line := fmt.Sprintf("%d. **%s** - %s", i+1, record.Ticker, record.Status)
		if record.Recommendation != nil {
			line += fmt.Sprintf(" - %s (score %.3f, confidence %.3f)",
				record.Recommendation.Band,
				record.Recommendation.CompositeScore,
				record.Recommendation.Confidence)
		}
		sb.WriteString(line + "\n")
		sb.WriteString(fmt.Sprintf("   ID: %s | Created: %s\n\n",
			record.ID, record.CreatedAt.Format(time.RFC3339)))
	}

	return sb.String()
}
