package config

import (
	"time"

	"github.com/firewatch/firewatch/internal/types"
)

// Config represents the complete firewatch configuration.
type Config struct {
	Monitor  MonitorConfig  `yaml:"monitor"`
	Rules    []RuleConfig   `yaml:"rules"`
	Channels ChannelsConfig `yaml:"channels"`
}

// MonitorConfig contains poller and storage settings.
type MonitorConfig struct {
	CheckInterval time.Duration   `yaml:"check_interval"`
	PreFilter     PreFilterConfig `yaml:"pre_filter"`
	Thresholds    Thresholds      `yaml:"thresholds"`
	RedisAddr     string          `yaml:"redis_addr,omitempty"`
	APIPort       string          `yaml:"api_port"`
}

// PreFilterConfig is the coarse threshold gate the poller applies before
// full rule evaluation. These are deliberately independent of the rule
// thresholds below; the loader warns when they diverge but never
// reconciles them.
type PreFilterConfig struct {
	RiskThreshold  float64 `yaml:"risk_threshold"`
	SmokeThreshold float64 `yaml:"smoke_threshold"`
}

// Thresholds parameterize the built-in default rules.
type Thresholds struct {
	CriticalRisk float64 `yaml:"critical_risk"`
	Smoke        float64 `yaml:"smoke"`
}

// RuleConfig defines one alert rule in rules.yaml. An empty rules file
// selects the built-in default rule set.
type RuleConfig struct {
	ID        string        `yaml:"id"`
	Name      string        `yaml:"name"`
	Condition string        `yaml:"condition"`
	Priority  string        `yaml:"priority"`
	Channels  []string      `yaml:"channels"`
	Cooldown  time.Duration `yaml:"cooldown"`
	Enabled   *bool         `yaml:"enabled,omitempty"` // nil means enabled
}

// ChannelsConfig holds per-channel delivery settings.
type ChannelsConfig struct {
	Email      EmailConfig      `yaml:"email"`
	SMS        SMSConfig        `yaml:"sms"`
	Push       PushConfig       `yaml:"push"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Siren      SirenConfig      `yaml:"siren"`
	Escalation EscalationConfig `yaml:"escalation"`
	StormGuard StormGuardConfig `yaml:"storm_guard"`

	// SendTimeout bounds each external delivery call.
	SendTimeout time.Duration `yaml:"send_timeout"`
}

// EmailConfig configures the SMTP sender.
type EmailConfig struct {
	SMTPHost   string   `yaml:"smtp_host"`
	SMTPPort   int      `yaml:"smtp_port"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	From       string   `yaml:"from"`
	Recipients []string `yaml:"recipients"`
}

// SMSConfig configures the SMS provider REST sender.
type SMSConfig struct {
	AccountSID string   `yaml:"account_sid"`
	AuthToken  string   `yaml:"auth_token"`
	FromNumber string   `yaml:"from_number"`
	Recipients []string `yaml:"recipients"`
	APIBaseURL string   `yaml:"api_base_url,omitempty"`
}

// PushConfig configures the push gateway sender.
type PushConfig struct {
	GatewayURL string `yaml:"gateway_url"`
}

// WebhookConfig configures outbound webhook delivery.
type WebhookConfig struct {
	URLs []string `yaml:"urls"`
}

// SirenConfig configures the siren hardware endpoint.
type SirenConfig struct {
	ActivationURL string `yaml:"activation_url"`
}

// EscalationConfig re-notifies unacknowledged high/critical alerts.
// A zero delay disables escalation.
type EscalationConfig struct {
	Delay time.Duration `yaml:"delay"`
}

// StormGuardConfig suppresses a channel that sends too often.
type StormGuardConfig struct {
	MaxSends int           `yaml:"max_sends"`
	Window   time.Duration `yaml:"window"`
}

// ToRule converts a RuleConfig to a domain AlertRule.
func (r RuleConfig) ToRule() types.AlertRule {
	channels := make([]types.Channel, 0, len(r.Channels))
	for _, c := range r.Channels {
		channels = append(channels, types.Channel(c))
	}
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return types.AlertRule{
		ID:        r.ID,
		Name:      r.Name,
		Condition: r.Condition,
		Priority:  types.Priority(r.Priority),
		Channels:  channels,
		Cooldown:  r.Cooldown,
		Enabled:   enabled,
	}
}
