package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Advisor     AdvisorConfig   `toml:"advisor"`
	Markets     MarketsConfig   `toml:"markets"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Watchlist   WatchlistConfig `toml:"watchlist"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	LLM         LLMConfig       `toml:"llm"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level         string   `toml:"level"`           // "debug", "info", "warn", "error"
	Format        string   `toml:"format"`          // "json" or "text"
	Output        []string `toml:"output"`          // "stdout", "file"
	TimeFormat    string   `toml:"time_format"`     // Time format for logs (default: "15:04:05")
	MinEventLevel string   `toml:"min_event_level"` // Minimum log level to publish as events to UI ("debug", "info", "warn", "error")
}

// AdvisorConfig contains defaults for the advisory loop. Every field can be
// overridden per request; these values apply when a request omits them.
type AdvisorConfig struct {
	Weights             map[string]float64 `toml:"weights"`              // Analysis kind -> non-negative weight (renormalized over usable kinds at synthesis)
	ConfidenceThreshold float64            `toml:"confidence_threshold"` // Composite confidence below this triggers refinement (default: 0.5)
	MinKindConfidence   float64            `toml:"min_kind_confidence"`  // A usable result below this is flagged low-quality and re-run (default: 0.7)
	MaxIterations       int                `toml:"max_iterations"`       // Refinement passes beyond the first dispatch (default: 2)
	Execution           string             `toml:"execution"`            // "parallel" or "sequential" (default: "parallel")
	AnalystTimeout      string             `toml:"analyst_timeout"`      // Per-invocation timeout as duration string (default: "2m")
	MaxRetries          int                `toml:"max_retries"`          // Transient-failure retries per invocation, invisible to the iteration budget (default: 2)
	RetryBackoff        string             `toml:"retry_backoff"`        // Base delay between transient retries (default: "500ms")
}

// MarketsConfig contains market/exchange configuration
type MarketsConfig struct {
	DefaultExchange string `toml:"default_exchange"` // Exchange assumed for unqualified tickers (default: "ASX")
}

// WebSocketConfig contains configuration for WebSocket log streaming
type WebSocketConfig struct {
	MinLevel        string   `toml:"min_level"`        // Minimum log level to broadcast ("debug", "info", "warn", "error")
	ExcludePatterns []string `toml:"exclude_patterns"` // Log message patterns to exclude from broadcasting
	// Whitelist of event types to broadcast via WebSocket. Empty list allows all events.
	// Example: ["advisory_started", "advisory_completed", "iteration_completed"]
	AllowedEvents []string `toml:"allowed_events"`
	// Throttle intervals for high-frequency events. Map of event type to duration string.
	// Example: {"analysis_completed": "500ms"}
	ThrottleIntervals map[string]string `toml:"throttle_intervals"`
}

// WatchlistConfig contains configuration for scheduled watchlist advisories
type WatchlistConfig struct {
	Enabled  bool     `toml:"enabled"`  // Run watchlist advisories on a cron schedule
	Schedule string   `toml:"schedule"` // Cron schedule (default: "0 7 * * 1-5" - weekdays at 07:00)
	Tickers  []string `toml:"tickers"`  // Tickers to analyze each run (e.g., ["ASX:CBA", "NYSE:AAPL"])
	Kinds    []string `toml:"kinds"`    // Analysis kinds per run (default: all three)
}

// GeminiConfig contains Google Gemini API configuration for analyst agents
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`     // Google Gemini API key
	Model       string  `toml:"model"`       // Model for analyst operations (default: "gemini-3-flash-preview")
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "5m")
	RateLimit   string  `toml:"rate_limit"`  // Rate limit duration string (default: "4s" for 15 RPM)
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.3)
}

// ClaudeConfig contains Anthropic Claude API configuration for analyst agents
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key (ANTHROPIC_API_KEY or config)
	Model       string  `toml:"model"`       // Model for analyst operations (default: "claude-3-5-haiku-20241022")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 4096)
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "5m")
	RateLimit   string  `toml:"rate_limit"`  // Rate limit duration string (default: "1s")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.3)
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains unified configuration for all AI providers
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // Default provider: "claude" or "gemini" (default: "claude")
	FallbackStatic  bool        `toml:"fallback_static"`  // Register deterministic analysts when no API key is configured (default: true)
}

// NewDefaultConfig creates a configuration with default values
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in consilium.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:         "info",                     // Info level for production (debug|info|warn|error)
			Format:        "text",                     // Human-readable text format (text|json)
			Output:        []string{"stdout", "file"}, // Log to both console and file
			MinEventLevel: "info",                     // Publish info and above as events to UI
		},
		Advisor: AdvisorConfig{
			Weights: map[string]float64{
				"fundamental": 0.50,
				"technical":   0.30,
				"valuation":   0.20,
			},
			ConfidenceThreshold: 0.5,
			MinKindConfidence:   0.7,
			MaxIterations:       2,
			Execution:           "parallel",
			AnalystTimeout:      "2m",
			MaxRetries:          2,
			RetryBackoff:        "500ms",
		},
		Markets: MarketsConfig{
			DefaultExchange: "ASX",
		},
		WebSocket: WebSocketConfig{
			MinLevel: "info", // Default: info level and above
			ExcludePatterns: []string{
				"WebSocket client connected",
				"WebSocket client disconnected",
				"HTTP request",
				"HTTP response",
				"Publishing event",
			},
			// Empty AllowedEvents allows all events
			AllowedEvents: []string{},
			// Throttle high-frequency events to prevent WebSocket flooding during batch runs
			ThrottleIntervals: map[string]string{
				"analysis_completed": "500ms",
			},
		},
		Watchlist: WatchlistConfig{
			Enabled:  false,         // Disabled by default - user must explicitly opt-in
			Schedule: "0 7 * * 1-5", // Weekdays at 07:00
			Tickers:  []string{},
			Kinds:    []string{"fundamental", "technical", "valuation"},
		},
		Gemini: GeminiConfig{
			APIKey:      "",                       // User must provide API key (no fallback)
			Model:       "gemini-3-flash-preview", // Model for analyst operations
			Timeout:     "5m",                     // 5 minutes for operations
			RateLimit:   "4s",                     // Default to 4s (15 RPM) for free tier
			Temperature: 0.3,                      // Low temperature for deterministic analysis output
		},
		Claude: ClaudeConfig{
			APIKey:      "",                          // User must provide API key (ANTHROPIC_API_KEY or config)
			Model:       "claude-3-5-haiku-20241022", // Model for analyst operations
			MaxTokens:   4096,                        // Default max tokens
			Timeout:     "5m",                        // 5 minutes for operations
			RateLimit:   "1s",                        // Default rate limit
			Temperature: 0.3,                         // Low temperature for deterministic analysis output
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderClaude,
			FallbackStatic:  true,
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
// Priority system: CLI flags > Environment variables > Config file > Defaults
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env -> CLI
// Later files override earlier files. Priority system: CLI flags > Environment variables > Last config file > ... > First config file > Defaults
// Example: LoadFromFiles("base.toml", "override.toml") - override.toml settings take precedence over base.toml
func LoadFromFiles(paths ...string) (*Config, error) {
	// Start with defaults
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier files)
	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// Apply environment variables (overrides all file configs)
	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: CONSILIUM_ENV, fallback: GO_ENV)
	if env := os.Getenv("CONSILIUM_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("CONSILIUM_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("CONSILIUM_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("CONSILIUM_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("CONSILIUM_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("CONSILIUM_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("CONSILIUM_LOG_OUTPUT"); output != "" {
		// Split comma-separated output types
		outputs := []string{}
		for _, o := range splitString(output, ",") {
			trimmed := trimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
	if minEventLevel := os.Getenv("CONSILIUM_LOG_MIN_EVENT_LEVEL"); minEventLevel != "" {
		config.Logging.MinEventLevel = minEventLevel
	}

	// Advisor configuration
	if threshold := os.Getenv("CONSILIUM_ADVISOR_CONFIDENCE_THRESHOLD"); threshold != "" {
		if t, err := strconv.ParseFloat(threshold, 64); err == nil && t >= 0 && t <= 1 {
			config.Advisor.ConfidenceThreshold = t
		}
	}
	if minConf := os.Getenv("CONSILIUM_ADVISOR_MIN_KIND_CONFIDENCE"); minConf != "" {
		if m, err := strconv.ParseFloat(minConf, 64); err == nil && m >= 0 && m <= 1 {
			config.Advisor.MinKindConfidence = m
		}
	}
	if maxIterations := os.Getenv("CONSILIUM_ADVISOR_MAX_ITERATIONS"); maxIterations != "" {
		if mi, err := strconv.Atoi(maxIterations); err == nil && mi >= 0 {
			config.Advisor.MaxIterations = mi
		}
	}
	if execution := os.Getenv("CONSILIUM_ADVISOR_EXECUTION"); execution != "" {
		config.Advisor.Execution = execution
	}
	if timeout := os.Getenv("CONSILIUM_ADVISOR_ANALYST_TIMEOUT"); timeout != "" {
		if _, err := time.ParseDuration(timeout); err == nil {
			config.Advisor.AnalystTimeout = timeout
		}
	}
	if maxRetries := os.Getenv("CONSILIUM_ADVISOR_MAX_RETRIES"); maxRetries != "" {
		if mr, err := strconv.Atoi(maxRetries); err == nil && mr >= 0 {
			config.Advisor.MaxRetries = mr
		}
	}
	if backoff := os.Getenv("CONSILIUM_ADVISOR_RETRY_BACKOFF"); backoff != "" {
		if _, err := time.ParseDuration(backoff); err == nil {
			config.Advisor.RetryBackoff = backoff
		}
	}

	// Markets configuration
	if exchange := os.Getenv("CONSILIUM_MARKETS_DEFAULT_EXCHANGE"); exchange != "" {
		config.Markets.DefaultExchange = exchange
	}

	// WebSocket configuration
	if minLevel := os.Getenv("CONSILIUM_WEBSOCKET_MIN_LEVEL"); minLevel != "" {
		config.WebSocket.MinLevel = minLevel
	}
	if allowedEvents := os.Getenv("CONSILIUM_WEBSOCKET_ALLOWED_EVENTS"); allowedEvents != "" {
		// Split comma-separated event types
		events := []string{}
		for _, e := range splitString(allowedEvents, ",") {
			trimmed := trimSpace(e)
			if trimmed != "" {
				events = append(events, trimmed)
			}
		}
		if len(events) > 0 {
			config.WebSocket.AllowedEvents = events
		}
	}

	// Watchlist configuration
	if enabled := os.Getenv("CONSILIUM_WATCHLIST_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Watchlist.Enabled = e
		}
	}
	if schedule := os.Getenv("CONSILIUM_WATCHLIST_SCHEDULE"); schedule != "" {
		config.Watchlist.Schedule = schedule
	}
	if tickers := os.Getenv("CONSILIUM_WATCHLIST_TICKERS"); tickers != "" {
		// Split comma-separated tickers
		list := []string{}
		for _, t := range splitString(tickers, ",") {
			trimmed := trimSpace(t)
			if trimmed != "" {
				list = append(list, trimmed)
			}
		}
		if len(list) > 0 {
			config.Watchlist.Tickers = list
		}
	}

	// Gemini configuration
	if apiKey := os.Getenv("CONSILIUM_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	} else if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("CONSILIUM_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if timeout := os.Getenv("CONSILIUM_GEMINI_TIMEOUT"); timeout != "" {
		config.Gemini.Timeout = timeout
	}
	if rateLimit := os.Getenv("CONSILIUM_GEMINI_RATE_LIMIT"); rateLimit != "" {
		config.Gemini.RateLimit = rateLimit
	}
	if temperature := os.Getenv("CONSILIUM_GEMINI_TEMPERATURE"); temperature != "" {
		if t, err := strconv.ParseFloat(temperature, 32); err == nil {
			config.Gemini.Temperature = float32(t)
		}
	}

	// Claude configuration
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("CONSILIUM_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey // CONSILIUM_ prefix takes priority
	}
	if model := os.Getenv("CONSILIUM_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if maxTokens := os.Getenv("CONSILIUM_CLAUDE_MAX_TOKENS"); maxTokens != "" {
		if mt, err := strconv.Atoi(maxTokens); err == nil {
			config.Claude.MaxTokens = mt
		}
	}
	if timeout := os.Getenv("CONSILIUM_CLAUDE_TIMEOUT"); timeout != "" {
		config.Claude.Timeout = timeout
	}
	if rateLimit := os.Getenv("CONSILIUM_CLAUDE_RATE_LIMIT"); rateLimit != "" {
		config.Claude.RateLimit = rateLimit
	}
	if temperature := os.Getenv("CONSILIUM_CLAUDE_TEMPERATURE"); temperature != "" {
		if t, err := strconv.ParseFloat(temperature, 32); err == nil {
			config.Claude.Temperature = float32(t)
		}
	}

	// LLM provider configuration
	if provider := os.Getenv("CONSILIUM_LLM_DEFAULT_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}
	if fallback := os.Getenv("CONSILIUM_LLM_FALLBACK_STATIC"); fallback != "" {
		if f, err := strconv.ParseBool(fallback); err == nil {
			config.LLM.FallbackStatic = f
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ResolveAPIKey resolves an API key by name with environment variable priority
// Resolution order: environment variables → config fallback → error
// This ensures CONSILIUM_* environment variables always take precedence
func ResolveAPIKey(name string, configFallback string) (string, error) {
	// Map of key names to environment variable names, checked in order
	keyToEnvMapping := map[string][]string{
		"gemini_api_key":    {"CONSILIUM_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"anthropic_api_key": {"CONSILIUM_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"claude_api_key":    {"CONSILIUM_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
	}

	// Check environment variables (highest priority)
	if envVarNames, hasMappedEnv := keyToEnvMapping[name]; hasMappedEnv {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	// Fallback to config value (lowest priority)
	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment or config", name)
}

// ParallelExecution reports whether analyses should be dispatched concurrently.
// Any value other than "sequential" selects parallel dispatch.
func (c *AdvisorConfig) ParallelExecution() bool {
	return strings.ToLower(trimSpace(c.Execution)) != "sequential"
}

// AnalystTimeoutDuration parses the per-invocation timeout, falling back to 2m.
func (c *AdvisorConfig) AnalystTimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(c.AnalystTimeout); err == nil && d > 0 {
		return d
	}
	return 2 * time.Minute
}

// RetryBackoffDuration parses the transient-retry backoff, falling back to 500ms.
func (c *AdvisorConfig) RetryBackoffDuration() time.Duration {
	if d, err := time.ParseDuration(c.RetryBackoff); err == nil && d > 0 {
		return d
	}
	return 500 * time.Millisecond
}

// Helper functions for string manipulation
func splitString(s, sep string) []string {
	result := []string{}
	start := 0
	for i := 0; i < len(s); i++ {
		if i+len(sep) <= len(s) && s[i:i+len(sep)] == sep {
			result = append(result, s[start:i])
			start = i + len(sep)
			i = start - 1
		}
	}
	result = append(result, s[start:])
	return result
}

func trimSpace(s string) string {
	start := 0
	end := len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t' || s[start] == '\n' || s[start] == '\r') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\n' || s[end-1] == '\r') {
		end--
	}
	return s[start:end]
}

// ValidateWatchlistSchedule validates a cron schedule expression and ensures minimum 5-minute interval
func ValidateWatchlistSchedule(schedule string) error {
	// Parse the cron expression
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	// Check for minimum 5-minute interval
	// Validate minute field (first field in standard cron)
	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]

	// Check for patterns that violate 5-minute minimum
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}

	// Check for */n patterns where n < 5
	if strings.HasPrefix(minuteField, "*/") {
		intervalStr := strings.TrimPrefix(minuteField, "*/")
		interval, err := strconv.Atoi(intervalStr)
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
