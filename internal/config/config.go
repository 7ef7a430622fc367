package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main Tunedesk configuration
type Config struct {
	// Model provider settings
	Model ModelConfig `json:"model" mapstructure:"model"`

	// Engine settings (routing + agent loop)
	Engine EngineConfig `json:"engine" mapstructure:"engine"`

	// Chinook store settings
	Store StoreConfig `json:"store" mapstructure:"store"`

	// Session persistence settings
	Sessions SessionsConfig `json:"sessions" mapstructure:"sessions"`

	// HTTP server settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ModelConfig holds LLM provider configuration
type ModelConfig struct {
	Provider    string  `json:"provider" mapstructure:"provider"` // openai, anthropic
	Name        string  `json:"name" mapstructure:"name"`
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries  int     `json:"max_retries" mapstructure:"max_retries"`

	// CallTimeout bounds a single model invocation, in seconds.
	CallTimeout int `json:"call_timeout" mapstructure:"call_timeout"`
}

// EngineConfig holds orchestration settings
type EngineConfig struct {
	// StepBudget is the number of ask-model iterations one agent loop
	// run may consume before it is forcibly terminated.
	StepBudget int `json:"step_budget" mapstructure:"step_budget"`

	// ToolTimeout bounds a single tool invocation, in seconds.
	ToolTimeout int `json:"tool_timeout" mapstructure:"tool_timeout"`
}

// StoreConfig holds Chinook database configuration
type StoreConfig struct {
	// Path to the SQLite database file. Empty means in-memory.
	Path string `json:"path" mapstructure:"path"`

	// SchemaFile is an optional SQL script executed when the database
	// has no Customer table yet (fresh file or in-memory store).
	SchemaFile string `json:"schema_file" mapstructure:"schema_file"`
}

// SessionsConfig holds session persistence configuration
type SessionsConfig struct {
	Backend string `json:"backend" mapstructure:"backend"` // memory, jsonl
	Dir     string `json:"dir" mapstructure:"dir"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `json:"level" mapstructure:"level"`
	File  string `json:"file" mapstructure:"file"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:    "openai",
			Name:        "gpt-4o-mini",
			Temperature: 0.0,
			MaxTokens:   4096,
			MaxRetries:  3,
			CallTimeout: 60,
		},
		Engine: EngineConfig{
			StepBudget:  10,
			ToolTimeout: 30,
		},
		Sessions: SessionsConfig{
			Backend: "memory",
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// String returns a JSON representation with the API key masked
func (c *Config) String() string {
	masked := *c
	if masked.Model.APIKey != "" {
		masked.Model.APIKey = "***"
	}
	data, err := json.MarshalIndent(masked, "", "  ")
	if err != nil {
		return fmt.Sprintf("config marshal error: %v", err)
	}
	return string(data)
}
