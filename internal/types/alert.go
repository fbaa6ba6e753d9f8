package types

import "time"

// Priority is the severity level of a rule or alert.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Rank orders priorities for comparison; higher is more severe.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Channel is a notification delivery mechanism.
type Channel string

const (
	ChannelEmail     Channel = "email"
	ChannelSMS       Channel = "sms"
	ChannelPush      Channel = "push"
	ChannelWebhook   Channel = "webhook"
	ChannelSiren     Channel = "siren"
	ChannelDashboard Channel = "dashboard"
)

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelWebhook, ChannelSiren, ChannelDashboard:
		return true
	}
	return false
}

// AlertRule is a configured predicate plus routing. Rules are loaded once at
// startup and evaluated in registration order.
type AlertRule struct {
	ID        string
	Name      string
	Condition string
	Priority  Priority
	Channels  []Channel
	Cooldown  time.Duration
	Enabled   bool
}

// Alert is a lifecycle-tracked notification event produced by one rule
// firing once. Lifecycle: active -> acknowledged (optional) -> resolved.
// A resolved alert never returns to active and its ID is never reused.
type Alert struct {
	ID       string            `json:"alert_id"`
	RuleID   string            `json:"rule_id"`
	Title    string            `json:"title"`
	Message  string            `json:"message"`
	Priority Priority          `json:"priority"`
	Context  map[string]string `json:"context_data,omitempty"`
	Channels []Channel         `json:"channels"`

	CreatedAt      time.Time  `json:"created_at"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	Resolved       bool       `json:"resolved"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// DispatchOutcome records the result of sending one alert over one channel.
// One channel's failure never affects another's outcome.
type DispatchOutcome struct {
	Channel   Channel `json:"channel"`
	Delivered bool    `json:"delivered"`
	Skipped   bool    `json:"skipped,omitempty"`
	Error     string  `json:"error,omitempty"`
	Detail    string  `json:"detail,omitempty"`
}
