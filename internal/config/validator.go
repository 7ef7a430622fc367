package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks the configuration for fatal problems. A missing or
// malformed model credential is fatal: the engine cannot create a
// session without a working provider.
func (v *Validator) Validate(cfg *Config) error {
	if err := v.ValidateProvider(cfg.Model.Provider); err != nil {
		return err
	}
	if err := v.ValidateAPIKey(cfg.Model.APIKey, cfg.Model.Provider); err != nil {
		return err
	}
	if cfg.Model.Name == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if cfg.Engine.StepBudget <= 0 {
		return fmt.Errorf("engine step budget must be positive")
	}
	if cfg.Sessions.Backend != "memory" && cfg.Sessions.Backend != "jsonl" {
		return fmt.Errorf("unknown sessions backend: %s", cfg.Sessions.Backend)
	}
	return nil
}

// ValidateProvider validates the provider name
func (v *Validator) ValidateProvider(provider string) error {
	switch provider {
	case "openai", "anthropic":
		return nil
	default:
		return fmt.Errorf("unsupported provider: %s", provider)
	}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}
