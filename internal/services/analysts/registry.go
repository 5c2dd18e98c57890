// -----------------------------------------------------------------------
// Registry - Analyst registration keyed by analysis kind
// Built once at startup from config; read-only afterwards
// -----------------------------------------------------------------------

package analysts

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/consilium/internal/common"
	"github.com/ternarybob/consilium/internal/interfaces"
	"github.com/ternarybob/consilium/internal/models"
)

// Registry maps analysis kinds to their analyst implementation.
type Registry struct {
	analysts map[models.AnalysisKind]interfaces.Analyst
	logger   arbor.ILogger
}

// NewRegistry creates an empty registry
func NewRegistry(logger arbor.ILogger) *Registry {
	return &Registry{
		analysts: make(map[models.AnalysisKind]interfaces.Analyst),
		logger:   logger,
	}
}

// NewRegistryFromConfig builds the registry for all analysis kinds using the
// configured provider. When the provider cannot be initialized (typically a
// missing API key) and fallback_static is enabled, the deterministic analyst
// fills in so the advisory loop stays usable offline.
func NewRegistryFromConfig(config *common.Config, logger arbor.ILogger) (*Registry, error) {
	registry := NewRegistry(logger)

	for _, kind := range models.AllAnalysisKinds() {
		analyst, err := buildProviderAnalyst(kind, config, logger)
		if err != nil {
			if !config.LLM.FallbackStatic {
				return nil, fmt.Errorf("failed to initialize %s analyst for %s: %w", config.LLM.DefaultProvider, kind, err)
			}
			logger.Warn().
				Str("kind", string(kind)).
				Str("provider", string(config.LLM.DefaultProvider)).
				Err(err).
				Msg("Provider analyst unavailable, falling back to static analyst")
			analyst = NewStaticAnalyst(kind, logger)
		}
		registry.Register(analyst)
	}

	return registry, nil
}

// NewStaticRegistry builds a registry of deterministic analysts for all
// kinds. Used for offline operation and tests.
func NewStaticRegistry(logger arbor.ILogger) *Registry {
	registry := NewRegistry(logger)
	for _, kind := range models.AllAnalysisKinds() {
		registry.Register(NewStaticAnalyst(kind, logger))
	}
	return registry
}

func buildProviderAnalyst(kind models.AnalysisKind, config *common.Config, logger arbor.ILogger) (interfaces.Analyst, error) {
	switch config.LLM.DefaultProvider {
	case common.LLMProviderGemini:
		return NewGeminiAnalyst(kind, &config.Gemini, logger)
	case common.LLMProviderClaude, "":
		return NewClaudeAnalyst(kind, &config.Claude, logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", config.LLM.DefaultProvider)
	}
}

// Register adds or replaces the analyst for its kind
func (r *Registry) Register(a interfaces.Analyst) {
	r.analysts[a.Kind()] = a
	r.logger.Info().
		Str("kind", string(a.Kind())).
		Str("analyst", a.Name()).
		Msg("Analyst registered")
}

// Get returns the analyst for a kind
func (r *Registry) Get(kind models.AnalysisKind) (interfaces.Analyst, bool) {
	a, ok := r.analysts[kind]
	return a, ok
}

// Kinds returns the registered kinds in canonical order
func (r *Registry) Kinds() []models.AnalysisKind {
	kinds := make([]models.AnalysisKind, 0, len(r.analysts))
	for _, kind := range models.AllAnalysisKinds() {
		if _, ok := r.analysts[kind]; ok {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}
