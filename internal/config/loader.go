package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/firewatch/firewatch/internal/rules"
)

// MinCheckInterval is the lowest poll interval accepted at load or
// reconfiguration time.
const MinCheckInterval = 5 * time.Second

// LoadConfig loads configuration from a single file (legacy entry point).
func LoadConfig(path string, logger zerolog.Logger) (*Config, error) {
	return LoadConfigDir(filepath.Dir(path), logger)
}

// LoadConfigDir loads all configuration files from a directory.
// monitor.yaml is required; rules.yaml and channels.yaml are optional.
func LoadConfigDir(dir string, logger zerolog.Logger) (*Config, error) {
	cfg := &Config{}

	if err := loadYAML(filepath.Join(dir, "monitor.yaml"), &cfg.Monitor); err != nil {
		return nil, fmt.Errorf("loading monitor.yaml: %w", err)
	}

	rulesPath := filepath.Join(dir, "rules.yaml")
	if _, err := os.Stat(rulesPath); err == nil {
		var rulesFile struct {
			Rules []RuleConfig `yaml:"rules"`
		}
		if err := loadYAML(rulesPath, &rulesFile); err != nil {
			return nil, fmt.Errorf("loading rules.yaml: %w", err)
		}
		cfg.Rules = rulesFile.Rules
	}

	channelsPath := filepath.Join(dir, "channels.yaml")
	if _, err := os.Stat(channelsPath); err == nil {
		var channelsFile struct {
			Channels ChannelsConfig `yaml:"channels"`
		}
		if err := loadYAML(channelsPath, &channelsFile); err != nil {
			return nil, fmt.Errorf("loading channels.yaml: %w", err)
		}
		cfg.Channels = channelsFile.Channels
	}

	applyDefaults(cfg)

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	warnThresholdDivergence(cfg, logger)

	return cfg, nil
}

// loadYAML loads a YAML file into a struct.
func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

func applyDefaults(cfg *Config) {
	if cfg.Monitor.CheckInterval == 0 {
		cfg.Monitor.CheckInterval = 10 * time.Second
	}
	if cfg.Monitor.PreFilter.RiskThreshold == 0 {
		cfg.Monitor.PreFilter.RiskThreshold = 75
	}
	if cfg.Monitor.PreFilter.SmokeThreshold == 0 {
		cfg.Monitor.PreFilter.SmokeThreshold = 2500
	}
	if cfg.Monitor.Thresholds.CriticalRisk == 0 {
		cfg.Monitor.Thresholds.CriticalRisk = 75
	}
	if cfg.Monitor.Thresholds.Smoke == 0 {
		cfg.Monitor.Thresholds.Smoke = 2500
	}
	if cfg.Monitor.APIPort == "" {
		cfg.Monitor.APIPort = "8088"
	}
	if cfg.Channels.SendTimeout == 0 {
		cfg.Channels.SendTimeout = 10 * time.Second
	}
	if cfg.Channels.StormGuard.MaxSends == 0 {
		cfg.Channels.StormGuard.MaxSends = 10
	}
	if cfg.Channels.StormGuard.Window == 0 {
		cfg.Channels.StormGuard.Window = 5 * time.Minute
	}
	if cfg.Channels.Email.SMTPHost == "" {
		cfg.Channels.Email.SMTPHost = "smtp.gmail.com"
	}
	if cfg.Channels.Email.SMTPPort == 0 {
		cfg.Channels.Email.SMTPPort = 587
	}
	if cfg.Channels.Email.From == "" {
		cfg.Channels.Email.From = "forest-fire-alert@system.com"
	}
}

// ValidateConfig validates the configuration.
func ValidateConfig(cfg *Config) error {
	if cfg.Monitor.CheckInterval < MinCheckInterval {
		return fmt.Errorf("monitor.check_interval must be at least %s, got %s",
			MinCheckInterval, cfg.Monitor.CheckInterval)
	}
	if cfg.Monitor.PreFilter.RiskThreshold < 0 || cfg.Monitor.PreFilter.RiskThreshold > 100 {
		return fmt.Errorf("monitor.pre_filter.risk_threshold must be between 0 and 100, got %g",
			cfg.Monitor.PreFilter.RiskThreshold)
	}

	seen := make(map[string]struct{}, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		if rule.ID == "" {
			return fmt.Errorf("rule %d: id is required", i)
		}
		if _, dup := seen[rule.ID]; dup {
			return fmt.Errorf("rule %s: duplicate rule id", rule.ID)
		}
		seen[rule.ID] = struct{}{}

		if rule.Condition == "" {
			return fmt.Errorf("rule %s: condition is required", rule.ID)
		}
		if _, err := rules.Parse(rule.Condition); err != nil {
			return fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		domain := rule.ToRule()
		if !domain.Priority.Valid() {
			return fmt.Errorf("rule %s: priority must be low, medium, high, or critical, got %q",
				rule.ID, rule.Priority)
		}
		if len(domain.Channels) == 0 {
			return fmt.Errorf("rule %s: at least one channel is required", rule.ID)
		}
		for _, ch := range domain.Channels {
			if !ch.Valid() {
				return fmt.Errorf("rule %s: references unknown channel %q", rule.ID, ch)
			}
		}
		if rule.Cooldown < 0 {
			return fmt.Errorf("rule %s: cooldown must not be negative", rule.ID)
		}
	}

	if cfg.Channels.Escalation.Delay < 0 {
		return fmt.Errorf("channels.escalation.delay must not be negative")
	}
	if cfg.Channels.StormGuard.MaxSends < 0 {
		return fmt.Errorf("channels.storm_guard.max_sends must not be negative")
	}

	return nil
}

// warnThresholdDivergence flags the case where the poller's coarse smoke
// pre-filter and the smoke rule threshold disagree. Both are legitimate
// configurations, but a divergence is usually unintended and should be
// reviewed by an operator.
func warnThresholdDivergence(cfg *Config, logger zerolog.Logger) {
	if cfg.Monitor.PreFilter.SmokeThreshold != cfg.Monitor.Thresholds.Smoke {
		logger.Warn().
			Float64("pre_filter_smoke", cfg.Monitor.PreFilter.SmokeThreshold).
			Float64("rule_smoke", cfg.Monitor.Thresholds.Smoke).
			Msg("Pre-filter smoke threshold differs from smoke rule threshold; review configuration")
	}
	if cfg.Monitor.PreFilter.RiskThreshold != cfg.Monitor.Thresholds.CriticalRisk {
		logger.Warn().
			Float64("pre_filter_risk", cfg.Monitor.PreFilter.RiskThreshold).
			Float64("rule_critical_risk", cfg.Monitor.Thresholds.CriticalRisk).
			Msg("Pre-filter risk threshold differs from critical risk rule threshold; review configuration")
	}
}
