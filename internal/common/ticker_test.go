package common

import (
	"testing"
)

func TestParseTicker(t *testing.T) {
	// Ensure default exchange is ASX for these tests
	originalDefault := DefaultExchange
	DefaultExchange = "ASX"
	defer func() { DefaultExchange = originalDefault }()

	tests := []struct {
		input        string
		wantExchange string
		wantCode     string
		wantString   string
	}{
		// Exchange-qualified format with colon separator
		{"ASX:CBA", "ASX", "CBA", "ASX:CBA"},
		{"ASX:BHP", "ASX", "BHP", "ASX:BHP"},
		{"NYSE:AAPL", "NYSE", "AAPL", "NYSE:AAPL"},
		{"NASDAQ:MSFT", "NASDAQ", "MSFT", "NASDAQ:MSFT"},

		// Exchange-qualified format with dot separator (EXCHANGE.CODE)
		{"ASX.CBA", "ASX", "CBA", "ASX:CBA"},
		{"NYSE.AAPL", "NYSE", "AAPL", "NYSE:AAPL"},

		// No exchange - defaults to ASX
		{"CBA", "ASX", "CBA", "ASX:CBA"},
		{"BHP", "ASX", "BHP", "ASX:BHP"},

		// Unknown dot prefix is kept as part of the code
		{"BRK.B", "ASX", "BRK.B", "ASX:BRK.B"},

		// Case normalization
		{"asx:cba", "ASX", "CBA", "ASX:CBA"},
		{"asx.cba", "ASX", "CBA", "ASX:CBA"},
		{"cba", "ASX", "CBA", "ASX:CBA"},

		// Whitespace handling
		{"  ASX:CBA  ", "ASX", "CBA", "ASX:CBA"},
		{"  CBA  ", "ASX", "CBA", "ASX:CBA"},

		// Empty input
		{"", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseTicker(tt.input)

			if result.Exchange != tt.wantExchange {
				t.Errorf("Exchange = %q, want %q", result.Exchange, tt.wantExchange)
			}
			if result.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", result.Code, tt.wantCode)
			}
			if result.String() != tt.wantString {
				t.Errorf("String() = %q, want %q", result.String(), tt.wantString)
			}
		})
	}
}

func TestSetDefaultExchange(t *testing.T) {
	originalDefault := DefaultExchange
	defer func() { DefaultExchange = originalDefault }()

	SetDefaultExchange("nyse")
	if DefaultExchange != "NYSE" {
		t.Errorf("DefaultExchange = %q, want %q", DefaultExchange, "NYSE")
	}

	parsed := ParseTicker("AAPL")
	if parsed.Exchange != "NYSE" {
		t.Errorf("Exchange = %q, want %q", parsed.Exchange, "NYSE")
	}

	// Empty value must not clear the default
	SetDefaultExchange("")
	if DefaultExchange != "NYSE" {
		t.Errorf("DefaultExchange = %q after empty set, want %q", DefaultExchange, "NYSE")
	}
}

func TestParseTickers(t *testing.T) {
	input := []string{"ASX:CBA", "ASX:BHP", "WES", "  ", ""}
	result := ParseTickers(input)

	if len(result) != 3 {
		t.Errorf("ParseTickers returned %d tickers, want 3", len(result))
	}

	expected := []string{"CBA", "BHP", "WES"}
	for i, ticker := range result {
		if ticker.Code != expected[i] {
			t.Errorf("result[%d].Code = %q, want %q", i, ticker.Code, expected[i])
		}
	}
}

func TestParseTickersFromInterface(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  []string // expected codes
	}{
		{
			name:  "single string",
			input: "ASX:CBA",
			want:  []string{"CBA"},
		},
		{
			name:  "string slice",
			input: []string{"ASX:CBA", "ASX:BHP"},
			want:  []string{"CBA", "BHP"},
		},
		{
			name:  "interface slice (from TOML)",
			input: []interface{}{"ASX:CBA", "ASX:BHP", "WES"},
			want:  []string{"CBA", "BHP", "WES"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseTickersFromInterface(tt.input)

			if len(result) != len(tt.want) {
				t.Errorf("got %d tickers, want %d", len(result), len(tt.want))
				return
			}

			for i, ticker := range result {
				if ticker.Code != tt.want[i] {
					t.Errorf("result[%d].Code = %q, want %q", i, ticker.Code, tt.want[i])
				}
			}
		})
	}
}
