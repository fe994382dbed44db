// Package config loads and validates the council process's configuration:
// which models participate, which is chairman, timeouts, and the ambient
// server/database/logging sections.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure for a council process.
type Config struct {
	Version int `yaml:"version"`

	Council  CouncilConfig  `yaml:"council"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// CouncilConfig configures the deliberation itself (§6 of the
// configuration surface).
type CouncilConfig struct {
	// ChairmanModelID is the synthesis model, required.
	ChairmanModelID string `yaml:"chairman_model_id"`

	// DefaultModels are the councilors used when a request omits
	// selected_models.
	DefaultModels []string `yaml:"default_models"`

	// Models enumerates every model known to the process; the registry is
	// built from this list at startup.
	Models []ModelConfig `yaml:"models"`

	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	PerCallTimeoutMS int `yaml:"per_call_timeout_ms"`
	Stage1DeadlineMS int `yaml:"stage1_deadline_ms"`
	Stage2DeadlineMS int `yaml:"stage2_deadline_ms"`
	Stage3DeadlineMS int `yaml:"stage3_deadline_ms"`
	TurnDeadlineMS   int `yaml:"turn_deadline_ms"`

	OutputBufferSize int `yaml:"output_buffer_size"`
}

// ModelConfig describes one model available to the registry.
type ModelConfig struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	ProviderTag string `yaml:"provider_tag"`
	APIKeyEnv   string `yaml:"api_key_env"`
	BaseURL     string `yaml:"base_url"`
}

// ServerConfig configures the demo HTTP surface (§6a).
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig configures the optional SQL-backed ConversationStore.
// When URL is empty, the process falls back to an in-memory store.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // "postgres" or "sqlite"
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	DistributedLock bool          `yaml:"distributed_lock"`
}

// LoggingConfig holds the logging section of the configuration file. The
// values are defaulted and validated with the rest of the file, but the
// process logger is set up in cmd/council's main as a JSON handler at info
// level and does not read them.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaultCouncilConfig() CouncilConfig {
	return CouncilConfig{
		Temperature:      0.7,
		MaxTokens:        4000,
		PerCallTimeoutMS: 120_000,
		Stage1DeadlineMS: 180_000,
		Stage2DeadlineMS: 120_000,
		Stage3DeadlineMS: 180_000,
		TurnDeadlineMS:   600_000,
		OutputBufferSize: 128,
	}
}

// applyDefaults fills zero-valued fields with the defaults named in §6.
func (c *Config) applyDefaults() {
	def := defaultCouncilConfig()
	if c.Council.Temperature == 0 {
		c.Council.Temperature = def.Temperature
	}
	if c.Council.MaxTokens == 0 {
		c.Council.MaxTokens = def.MaxTokens
	}
	if c.Council.PerCallTimeoutMS == 0 {
		c.Council.PerCallTimeoutMS = def.PerCallTimeoutMS
	}
	if c.Council.Stage1DeadlineMS == 0 {
		c.Council.Stage1DeadlineMS = def.Stage1DeadlineMS
	}
	if c.Council.Stage2DeadlineMS == 0 {
		c.Council.Stage2DeadlineMS = def.Stage2DeadlineMS
	}
	if c.Council.Stage3DeadlineMS == 0 {
		c.Council.Stage3DeadlineMS = def.Stage3DeadlineMS
	}
	if c.Council.TurnDeadlineMS == 0 {
		c.Council.TurnDeadlineMS = def.TurnDeadlineMS
	}
	if c.Council.OutputBufferSize == 0 {
		c.Council.OutputBufferSize = def.OutputBufferSize
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate checks the loaded configuration for the invariants the
// orchestrator assumes: a chairman is named and present among Models, and
// every default model is also present among Models.
func (c *Config) Validate() error {
	if err := ValidateVersion(c.Version); err != nil {
		return err
	}
	if c.Council.ChairmanModelID == "" {
		return fmt.Errorf("config: council.chairman_model_id is required")
	}

	ids := make(map[string]bool, len(c.Council.Models))
	chairmanFound := false
	for _, m := range c.Council.Models {
		if m.ID == "" {
			return fmt.Errorf("config: council.models entry has empty id")
		}
		if ids[m.ID] {
			return fmt.Errorf("config: duplicate model id %q in council.models", m.ID)
		}
		ids[m.ID] = true
		if m.ID == c.Council.ChairmanModelID {
			chairmanFound = true
		}
	}
	if !chairmanFound {
		return fmt.Errorf("config: chairman_model_id %q is not listed in council.models", c.Council.ChairmanModelID)
	}
	for _, id := range c.Council.DefaultModels {
		if !ids[id] {
			return fmt.Errorf("config: default_models entry %q is not listed in council.models", id)
		}
	}
	return nil
}

// Load reads path (resolving $include directives and env var expansion)
// and returns a validated, defaulted Config.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// StageDeadlines converts the millisecond fields of CouncilConfig into the
// council.Deadlines the orchestrator consumes.
func (c CouncilConfig) StageDeadlines() (perCall, stage1, stage2, stage3, turn time.Duration, outputBuffer int) {
	return time.Duration(c.PerCallTimeoutMS) * time.Millisecond,
		time.Duration(c.Stage1DeadlineMS) * time.Millisecond,
		time.Duration(c.Stage2DeadlineMS) * time.Millisecond,
		time.Duration(c.Stage3DeadlineMS) * time.Millisecond,
		time.Duration(c.TurnDeadlineMS) * time.Millisecond,
		c.OutputBufferSize
}
