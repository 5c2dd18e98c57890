package models

import (
	"testing"
)

func TestBandFromScore(t *testing.T) {
	tests := []struct {
		score float64
		want  RecommendationBand
	}{
		// Band boundaries - lower bound inclusive, upper bound exclusive
		{0.0, BandStrongSell},
		{0.199999, BandStrongSell},
		{0.2, BandSell},
		{0.399999, BandSell},
		{0.4, BandHold},
		{0.599999, BandHold},
		{0.6, BandBuy},
		{0.799999, BandBuy},
		{0.8, BandStrongBuy},
		{1.0, BandStrongBuy},

		// Out-of-range scores are clamped before classification
		{-0.5, BandStrongSell},
		{1.5, BandStrongBuy},
	}

	for _, tt := range tests {
		got := BandFromScore(tt.score)
		if got != tt.want {
			t.Errorf("BandFromScore(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestBandFromScore_TotalPartition(t *testing.T) {
	// Every score in [0,1] must map to exactly one band
	for i := 0; i <= 1000; i++ {
		score := float64(i) / 1000.0
		band := BandFromScore(score)
		switch band {
		case BandStrongSell, BandSell, BandHold, BandBuy, BandStrongBuy:
			// ok
		default:
			t.Fatalf("BandFromScore(%v) returned unknown band %q", score, band)
		}
	}
}

func TestLatestAnalyses(t *testing.T) {
	rec := &InvestmentRecommendation{
		Analyses: []AnalysisResult{
			{Kind: KindFundamental, Iteration: 1, Score: 0.5},
			{Kind: KindTechnical, Iteration: 1, Score: 0.4},
			{Kind: KindFundamental, Iteration: 2, Score: 0.8}, // supersedes the first
		},
	}

	latest := rec.LatestAnalyses()
	if len(latest) != 2 {
		t.Fatalf("LatestAnalyses returned %d results, want 2", len(latest))
	}

	// Order of first appearance is preserved
	if latest[0].Kind != KindFundamental || latest[0].Iteration != 2 {
		t.Errorf("latest[0] = %s iteration %d, want fundamental iteration 2", latest[0].Kind, latest[0].Iteration)
	}
	if latest[0].Score != 0.8 {
		t.Errorf("latest fundamental score = %v, want 0.8", latest[0].Score)
	}
	if latest[1].Kind != KindTechnical {
		t.Errorf("latest[1].Kind = %s, want technical", latest[1].Kind)
	}
}

func TestAttemptCount(t *testing.T) {
	rec := &InvestmentRecommendation{
		Analyses: []AnalysisResult{
			{Kind: KindFundamental, Iteration: 1},
			{Kind: KindTechnical, Iteration: 1},
			{Kind: KindFundamental, Iteration: 2},
		},
	}

	if got := rec.AttemptCount(KindFundamental); got != 2 {
		t.Errorf("AttemptCount(fundamental) = %d, want 2", got)
	}
	if got := rec.AttemptCount(KindTechnical); got != 1 {
		t.Errorf("AttemptCount(technical) = %d, want 1", got)
	}
	if got := rec.AttemptCount(KindValuation); got != 0 {
		t.Errorf("AttemptCount(valuation) = %d, want 0", got)
	}
}
