package models

import (
	"testing"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestAdvisoryRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		request AdvisoryRequest
		wantErr bool
	}{
		{
			name:    "minimal valid request",
			request: AdvisoryRequest{Ticker: "ASX:CBA"},
			wantErr: false,
		},
		{
			name: "full valid request",
			request: AdvisoryRequest{
				Ticker:              "NYSE:AAPL",
				Kinds:               []AnalysisKind{KindFundamental, KindTechnical},
				RequiredKinds:       []AnalysisKind{KindFundamental},
				Execution:           "sequential",
				Weights:             map[AnalysisKind]float64{KindFundamental: 0.5, KindTechnical: 0.5},
				ConfidenceThreshold: floatPtr(0.75),
				MaxIterations:       intPtr(0),
			},
			wantErr: false,
		},
		{
			name:    "missing ticker",
			request: AdvisoryRequest{},
			wantErr: true,
		},
		{
			name: "unknown kind",
			request: AdvisoryRequest{
				Ticker: "ASX:CBA",
				Kinds:  []AnalysisKind{"sentiment"},
			},
			wantErr: true,
		},
		{
			name: "required kind not requested",
			request: AdvisoryRequest{
				Ticker:        "ASX:CBA",
				Kinds:         []AnalysisKind{KindFundamental},
				RequiredKinds: []AnalysisKind{KindValuation},
			},
			wantErr: true,
		},
		{
			name: "required kind defaults to all kinds",
			request: AdvisoryRequest{
				Ticker:        "ASX:CBA",
				RequiredKinds: []AnalysisKind{KindValuation},
			},
			wantErr: false,
		},
		{
			name: "negative weight",
			request: AdvisoryRequest{
				Ticker:  "ASX:CBA",
				Weights: map[AnalysisKind]float64{KindFundamental: -0.1},
			},
			wantErr: true,
		},
		{
			name: "threshold out of range",
			request: AdvisoryRequest{
				Ticker:              "ASX:CBA",
				ConfidenceThreshold: floatPtr(1.2),
			},
			wantErr: true,
		},
		{
			name: "invalid execution mode",
			request: AdvisoryRequest{
				Ticker:    "ASX:CBA",
				Execution: "batched",
			},
			wantErr: true,
		},
		{
			name: "negative max iterations",
			request: AdvisoryRequest{
				Ticker:        "ASX:CBA",
				MaxIterations: intPtr(-1),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.request.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate() returned nil, want error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() returned %v, want nil", err)
			}
		})
	}
}

func TestRequestedKinds(t *testing.T) {
	// Empty kinds default to all three in canonical order
	req := AdvisoryRequest{Ticker: "ASX:CBA"}
	kinds := req.RequestedKinds()
	if len(kinds) != 3 {
		t.Fatalf("RequestedKinds returned %d kinds, want 3", len(kinds))
	}
	if kinds[0] != KindFundamental || kinds[1] != KindTechnical || kinds[2] != KindValuation {
		t.Errorf("RequestedKinds = %v, want canonical order", kinds)
	}

	// Duplicates removed, order preserved
	req = AdvisoryRequest{
		Ticker: "ASX:CBA",
		Kinds:  []AnalysisKind{KindTechnical, KindFundamental, KindTechnical},
	}
	kinds = req.RequestedKinds()
	if len(kinds) != 2 {
		t.Fatalf("RequestedKinds returned %d kinds, want 2", len(kinds))
	}
	if kinds[0] != KindTechnical || kinds[1] != KindFundamental {
		t.Errorf("RequestedKinds = %v, want [technical fundamental]", kinds)
	}
}

func TestAdvisoryRecordLifecycle(t *testing.T) {
	req := AdvisoryRequest{Ticker: "ASX:CBA"}
	record := NewAdvisoryRecord("adv_test-1", req)

	if record.Status != AdvisoryStatusPending {
		t.Errorf("new record status = %s, want pending", record.Status)
	}
	if record.Trigger != TriggerAPI {
		t.Errorf("default trigger = %s, want api", record.Trigger)
	}
	if record.IsTerminal() {
		t.Error("pending record should not be terminal")
	}

	record.MarkRunning()
	if record.Status != AdvisoryStatusRunning {
		t.Errorf("status = %s, want running", record.Status)
	}

	rec := &InvestmentRecommendation{Ticker: "ASX:CBA", Band: BandBuy}
	record.MarkCompleted(rec)
	if record.Status != AdvisoryStatusCompleted {
		t.Errorf("status = %s, want completed", record.Status)
	}
	if record.Recommendation == nil || record.Recommendation.Band != BandBuy {
		t.Error("completed record missing recommendation")
	}
	if record.CompletedAt == nil {
		t.Error("completed record missing CompletedAt")
	}
	if !record.IsTerminal() {
		t.Error("completed record should be terminal")
	}
}

func TestAdvisoryRecordMarkFailed(t *testing.T) {
	record := NewAdvisoryRecord("adv_test-2", AdvisoryRequest{Ticker: "ASX:CBA", Trigger: TriggerWatchlist})

	if record.Trigger != TriggerWatchlist {
		t.Errorf("trigger = %s, want watchlist", record.Trigger)
	}

	record.MarkFailed(ErrInsufficientData, "no usable analysis results")
	if record.Status != AdvisoryStatusFailed {
		t.Errorf("status = %s, want failed", record.Status)
	}
	if record.ErrorKind != ErrInsufficientData {
		t.Errorf("error kind = %s, want insufficient-data", record.ErrorKind)
	}
	if !record.IsTerminal() {
		t.Error("failed record should be terminal")
	}
}

func TestAnalysisRequestClone(t *testing.T) {
	original := AnalysisRequest{
		Ticker:     "ASX:CBA",
		Kind:       KindFundamental,
		Parameters: map[string]interface{}{"lookback_years": 3},
		Required:   true,
	}

	clone := original.Clone()
	clone.Parameters["lookback_years"] = 5
	clone.Parameters["require_detail"] = true

	if original.Parameters["lookback_years"] != 3 {
		t.Error("mutating clone parameters changed the original")
	}
	if _, ok := original.Parameters["require_detail"]; ok {
		t.Error("new clone parameter leaked into the original")
	}
}

func TestAnalysisResultUsable(t *testing.T) {
	tests := []struct {
		status AnalysisStatus
		want   bool
	}{
		{AnalysisSucceeded, true},
		{AnalysisDegraded, true},
		{AnalysisFailed, false},
	}

	for _, tt := range tests {
		result := AnalysisResult{Status: tt.status}
		if got := result.Usable(); got != tt.want {
			t.Errorf("Usable() with status %s = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestParseAnalysisKind(t *testing.T) {
	for _, kind := range AllAnalysisKinds() {
		parsed, err := ParseAnalysisKind(string(kind))
		if err != nil {
			t.Errorf("ParseAnalysisKind(%q) returned error: %v", kind, err)
		}
		if parsed != kind {
			t.Errorf("ParseAnalysisKind(%q) = %q", kind, parsed)
		}
	}

	if _, err := ParseAnalysisKind("sentiment"); err == nil {
		t.Error("ParseAnalysisKind(sentiment) should fail")
	}
}
