package regen

import (
	"fmt"
	"time"

	"github.com/maslennikov-ig/MC-2-sub003/preprocess"
	"github.com/maslennikov-ig/MC-2-sub003/semantic"
)

const (
	defaultMaxOutputTokens = 4096
	defaultCallTimeout     = 60 * time.Second

	// minOutputTokens is the smallest output cap worth sending. A call whose
	// remaining budget allows less is not made.
	minOutputTokens = 16
)

// Config controls one Regenerate call. It is read-only for the duration of
// the call; callers serving different consumers pass different configs to
// the same Regenerator.
type Config struct {
	// MaxAttemptsPerLayer bounds CritiqueRevise and PartialRegeneration per
	// round. Values below 1 are treated as 1.
	MaxAttemptsPerLayer int `yaml:"max_attempts_per_layer" json:"max_attempts_per_layer"`

	// MaxTotalTokenCost is the ceiling on input+output tokens summed over every
	// LLM call of the run. Zero allows no LLM calls at all.
	MaxTotalTokenCost int `yaml:"max_total_token_cost" json:"max_total_token_cost"`

	// AllowWarningFallback lets an exhausted run return its best parsed value
	// with Validated=false instead of failing.
	AllowWarningFallback bool `yaml:"allow_warning_fallback" json:"allow_warning_fallback"`

	// EnumSynonyms maps field -> folded alias -> canonical value.
	EnumSynonyms preprocess.Synonyms `yaml:"enum_synonyms" json:"enum_synonyms"`

	// SemanticMatchThreshold in (0, 1]; zero selects semantic.DefaultThreshold.
	SemanticMatchThreshold float64 `yaml:"semantic_match_threshold" json:"semantic_match_threshold"`

	// EscalationModel is the stronger model used once after the default tier
	// fails. Empty disables escalation.
	EscalationModel string `yaml:"escalation_model" json:"escalation_model"`

	// Model is the default generation model. Empty lets the generator pick.
	Model string `yaml:"model" json:"model"`

	// MaxOutputTokens caps the output of each LLM call before budget clamping.
	MaxOutputTokens int `yaml:"max_output_tokens" json:"max_output_tokens"`

	// CallTimeout bounds every LLM and embedding call.
	CallTimeout time.Duration `yaml:"call_timeout" json:"call_timeout"`

	// Tag labels the run in logs and the audit store, e.g. the contract name.
	Tag string `yaml:"tag" json:"tag"`
}

// StrictConfig is for database-bound callers: a returned result is always
// validated.
func StrictConfig() Config {
	return Config{
		MaxAttemptsPerLayer:    2,
		MaxTotalTokenCost:      20000,
		AllowWarningFallback:   false,
		SemanticMatchThreshold: semantic.DefaultThreshold,
		MaxOutputTokens:        defaultMaxOutputTokens,
		CallTimeout:            defaultCallTimeout,
	}
}

// AdvisoryConfig is for LLM-to-LLM callers that can consume best-effort
// output flagged Validated=false.
func AdvisoryConfig() Config {
	c := StrictConfig()
	c.MaxAttemptsPerLayer = 1
	c.MaxTotalTokenCost = 8000
	c.AllowWarningFallback = true
	return c
}

// Validate reports configuration values that can never work.
func (c Config) Validate() error {
	if c.MaxTotalTokenCost < 0 {
		return fmt.Errorf("max_total_token_cost must be >= 0, got %d", c.MaxTotalTokenCost)
	}
	if c.SemanticMatchThreshold < 0 || c.SemanticMatchThreshold > 1 {
		return fmt.Errorf("semantic_match_threshold must be within [0, 1], got %v", c.SemanticMatchThreshold)
	}
	if c.MaxOutputTokens < 0 {
		return fmt.Errorf("max_output_tokens must be >= 0, got %d", c.MaxOutputTokens)
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("call_timeout must be >= 0, got %s", c.CallTimeout)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.MaxAttemptsPerLayer < 1 {
		c.MaxAttemptsPerLayer = 1
	}
	if c.SemanticMatchThreshold <= 0 {
		c.SemanticMatchThreshold = semantic.DefaultThreshold
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = defaultMaxOutputTokens
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = defaultCallTimeout
	}
	return c
}
