package identity

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "IDENTITY_"

// Config is the file and environment configuration of the identity engine.
type Config struct {
	ListenerEnabled bool           `yaml:"listener_enabled" env:"LISTENER_ENABLED"`
	HashCost        int            `yaml:"hash_cost" env:"HASH_COST"`
	Password        PasswordPolicy `yaml:"password" envPrefix:"PASSWORD_"`
	Recovery        RecoveryConfig `yaml:"recovery" envPrefix:"RECOVERY_"`
	Workflow        WorkflowConfig `yaml:"workflow" envPrefix:"WORKFLOW_"`
}

// RecoveryConfig throttles issuance of confirmation codes and temporary passwords.
type RecoveryConfig struct {
	IssueRPS   float64       `yaml:"issue_rps" env:"ISSUE_RPS"`
	IssueBurst int           `yaml:"issue_burst" env:"ISSUE_BURST"`
	IdleTTL    time.Duration `yaml:"idle_ttl" env:"IDLE_TTL"`
}

// WorkflowConfig carries the parameters handed to the remote workflow executor.
type WorkflowConfig struct {
	RemoteExecutor map[string]string `yaml:"remote_executor" env:"REMOTE_EXECUTOR"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() Config {
	return Config{
		ListenerEnabled: true,
		Password:        DefaultPasswordPolicy(),
		Recovery: RecoveryConfig{
			IssueRPS:   0.2,
			IssueBurst: 3,
			IdleTTL:    10 * time.Minute,
		},
	}
}

// LoadConfig reads path when it exists, applies IDENTITY_ prefixed
// environment overrides and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.HashCost, validation.Min(0), validation.Max(31)),
		validation.Field(&c.Password),
		validation.Field(&c.Recovery),
	)
}

// Validate checks the recovery throttling settings.
func (r RecoveryConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IssueRPS, validation.Min(0.0)),
		validation.Field(&r.IssueBurst, validation.Min(0)),
	)
}

// FeatureGate returns the gate derived from the configuration.
func (c Config) FeatureGate() StaticFeatureGate {
	return StaticFeatureGate{FeatureIdentityListener: c.ListenerEnabled}
}

// RemoteExecutorParams returns the remote executor parameters as an
// executor configuration map.
func (c Config) RemoteExecutorParams() map[string]any {
	out := make(map[string]any, len(c.Workflow.RemoteExecutor))
	for k, v := range c.Workflow.RemoteExecutor {
		out[k] = v
	}
	return out
}

// ConfigOptions translates cfg into engine options.
func ConfigOptions(cfg Config) ([]Option, error) {
	generator, err := NewRandomPasswordGenerator(cfg.Password)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithFeatureGate(cfg.FeatureGate()),
		WithPasswordGenerator(generator),
		WithHashCost(cfg.HashCost),
	}

	if limiter := NewKeyedLimiter(cfg.Recovery.IssueRPS, cfg.Recovery.IssueBurst, cfg.Recovery.IdleTTL); limiter != nil {
		opts = append(opts, WithIssueLimiter(limiter))
	}

	return opts, nil
}
