package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	t.Run("should have sensible defaults", func(t *testing.T) {
		cfg := DefaultConfig()

		assert.Equal(t, "openai", cfg.Model.Provider)
		assert.Equal(t, 10, cfg.Engine.StepBudget)
		assert.Equal(t, "memory", cfg.Sessions.Backend)
		assert.Equal(t, 8000, cfg.Server.Port)
	})
}

func TestConfigString(t *testing.T) {
	t.Run("should mask the API key", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Model.APIKey = "sk-super-secret"

		s := cfg.String()
		assert.NotContains(t, s, "sk-super-secret")
		assert.Contains(t, s, "***")
	})
}

func TestValidator(t *testing.T) {
	v := NewValidator()

	t.Run("should reject missing API key", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Model.APIKey = ""

		err := v.Validate(cfg)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "API key")
	})

	t.Run("should reject unknown provider", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Model.Provider = "parrot"

		err := v.Validate(cfg)
		assert.Error(t, err)
	})

	t.Run("should reject bad anthropic key format", func(t *testing.T) {
		err := v.ValidateAPIKey("sk-wrong", "anthropic")
		assert.Error(t, err)
	})

	t.Run("should accept valid config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Model.APIKey = "sk-test-key"

		assert.NoError(t, v.Validate(cfg))
	})

	t.Run("should reject non-positive step budget", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Model.APIKey = "sk-test-key"
		cfg.Engine.StepBudget = 0

		assert.Error(t, v.Validate(cfg))
	})
}
