// Package common provides shared utilities across the application.
package common

import (
	"strings"
)

// Ticker represents a parsed exchange-qualified ticker.
// Format: EXCHANGE:CODE (e.g., "ASX:CBA", "NYSE:AAPL")
type Ticker struct {
	// Exchange is the exchange code (e.g., "ASX", "NYSE", "NASDAQ")
	Exchange string
	// Code is the stock/security code (e.g., "CBA", "AAPL")
	Code string
	// Raw is the original ticker string
	Raw string
}

// knownExchanges lists exchange codes recognized when parsing the
// EXCHANGE.CODE dot format. Codes outside this set are treated as part
// of the security code.
var knownExchanges = map[string]bool{
	"ASX":    true,
	"NYSE":   true,
	"NASDAQ": true,
	"LSE":    true,
	"TSX":    true,
	"XETRA":  true,
}

// DefaultExchange is the default exchange used when parsing tickers without an exchange prefix.
// Can be overridden via [markets] default_exchange config in TOML.
var DefaultExchange = "ASX"

// SetDefaultExchange sets the default exchange for parsing tickers.
// Called during app initialization from config.
func SetDefaultExchange(exchange string) {
	if exchange != "" {
		DefaultExchange = strings.ToUpper(exchange)
	}
}

// ParseTicker parses an exchange-qualified ticker string.
// Supports formats:
//   - "ASX:CBA" -> Exchange="ASX", Code="CBA" (colon separator)
//   - "ASX.CBA" -> Exchange="ASX", Code="CBA" (dot separator)
//   - "CBA" -> Exchange=DefaultExchange (default), Code="CBA"
//   - "cba" -> Exchange=DefaultExchange, Code="CBA" (normalized to uppercase)
func ParseTicker(ticker string) Ticker {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return Ticker{}
	}

	// Check for exchange prefix with colon separator (EXCHANGE:CODE)
	if idx := strings.Index(ticker, ":"); idx > 0 {
		exchange := strings.ToUpper(ticker[:idx])
		code := strings.ToUpper(ticker[idx+1:])
		return Ticker{
			Exchange: exchange,
			Code:     code,
			Raw:      ticker,
		}
	}

	// Check for exchange prefix with dot separator (EXCHANGE.CODE)
	// Only match if the prefix is a known exchange to avoid conflicts with codes containing dots
	if idx := strings.Index(ticker, "."); idx > 0 {
		possibleExchange := strings.ToUpper(ticker[:idx])
		if knownExchanges[possibleExchange] {
			code := strings.ToUpper(ticker[idx+1:])
			return Ticker{
				Exchange: possibleExchange,
				Code:     code,
				Raw:      ticker,
			}
		}
	}

	// No exchange prefix - use default exchange
	return Ticker{
		Exchange: DefaultExchange,
		Code:     strings.ToUpper(ticker),
		Raw:      ticker,
	}
}

// String returns the full exchange-qualified ticker string.
func (t Ticker) String() string {
	if t.Exchange == "" || t.Code == "" {
		return t.Code
	}
	return t.Exchange + ":" + t.Code
}

// IsZero reports whether the ticker is empty.
func (t Ticker) IsZero() bool {
	return t.Code == ""
}

// ParseTickers parses a list of ticker strings, skipping blanks.
func ParseTickers(tickers []string) []Ticker {
	result := make([]Ticker, 0, len(tickers))
	for _, t := range tickers {
		if parsed := ParseTicker(t); parsed.Code != "" {
			result = append(result, parsed)
		}
	}
	return result
}

// ParseTickersFromInterface parses tickers from interface{} (for TOML config).
func ParseTickersFromInterface(value interface{}) []Ticker {
	var result []Ticker

	switch v := value.(type) {
	case string:
		// Single ticker as string
		if parsed := ParseTicker(v); parsed.Code != "" {
			result = append(result, parsed)
		}
	case []string:
		// List of strings
		for _, s := range v {
			if parsed := ParseTicker(s); parsed.Code != "" {
				result = append(result, parsed)
			}
		}
	case []interface{}:
		// List from TOML/JSON
		for _, item := range v {
			if s, ok := item.(string); ok {
				if parsed := ParseTicker(s); parsed.Code != "" {
					result = append(result, parsed)
				}
			}
		}
	}

	return result
}
