package rules

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/firewatch/firewatch/internal/types"
)

// DefaultRules returns the built-in rule set. criticalRisk and smoke
// parameterize the two configurable thresholds; the remaining conditions
// are fixed.
func DefaultRules(criticalRisk, smoke float64) []types.AlertRule {
	return []types.AlertRule{
		{
			ID:        "critical_risk",
			Name:      "Critical Fire Risk",
			Condition: fmt.Sprintf("risk_score >= %g", criticalRisk),
			Priority:  types.PriorityCritical,
			Channels: []types.Channel{
				types.ChannelEmail, types.ChannelSMS, types.ChannelPush,
				types.ChannelSiren, types.ChannelDashboard,
			},
			Cooldown: 5 * time.Minute,
			Enabled:  true,
		},
		{
			ID:        "high_risk",
			Name:      "High Fire Risk",
			Condition: "risk_score >= 60",
			Priority:  types.PriorityHigh,
			Channels: []types.Channel{
				types.ChannelEmail, types.ChannelPush, types.ChannelDashboard,
			},
			Cooldown: 15 * time.Minute,
			Enabled:  true,
		},
		{
			ID:        "smoke_detected",
			Name:      "Smoke Detection",
			Condition: fmt.Sprintf("smoke_level >= %g", smoke),
			Priority:  types.PriorityHigh,
			Channels: []types.Channel{
				types.ChannelEmail, types.ChannelSMS, types.ChannelDashboard,
			},
			Cooldown: 10 * time.Minute,
			Enabled:  true,
		},
		{
			ID:        "rapid_temp_rise",
			Name:      "Rapid Temperature Increase",
			Condition: "temp_change_rate > 5",
			Priority:  types.PriorityMedium,
			Channels: []types.Channel{
				types.ChannelEmail, types.ChannelDashboard,
			},
			Cooldown: 20 * time.Minute,
			Enabled:  true,
		},
		{
			ID:        "sensor_offline",
			Name:      "Sensor Node Offline",
			Condition: "node_offline == true",
			Priority:  types.PriorityMedium,
			Channels: []types.Channel{
				types.ChannelEmail, types.ChannelDashboard,
			},
			Cooldown: 30 * time.Minute,
			Enabled:  true,
		},
		{
			ID:        "sprinkler_activated",
			Name:      "Sprinkler System Activated",
			Condition: "sprinkler_status == 'on'",
			Priority:  types.PriorityHigh,
			Channels: []types.Channel{
				types.ChannelEmail, types.ChannelSMS, types.ChannelDashboard,
			},
			Cooldown: 0, // always alert
			Enabled:  true,
		},
		{
			ID:        "nearby_fire_hotspot",
			Name:      "Nearby Fire Hotspot Detected",
			Condition: "hotspot_distance < 10",
			Priority:  types.PriorityCritical,
			Channels: []types.Channel{
				types.ChannelEmail, types.ChannelSMS, types.ChannelPush,
				types.ChannelDashboard,
			},
			Cooldown: 60 * time.Minute,
			Enabled:  true,
		},
	}
}

// messageData is the template context for per-rule alert messages.
type messageData struct {
	RiskScore       float64
	Temperature     float64
	Humidity        float64
	SmokeLevel      float64
	RainLevel       float64
	TempChangeRate  float64
	HotspotDistance float64

	Zone              string
	Node              string
	LastHeartbeat     string
	ActivationReason  string
	HotspotConfidence string
}

var messageTemplates = map[string]*template.Template{
	"critical_risk": mustTemplate("critical_risk",
		`CRITICAL FIRE RISK DETECTED! Risk Score: {{printf "%.1f" .RiskScore}}%. ` +
			`Temperature: {{printf "%.1f" .Temperature}}°C, ` +
			`Humidity: {{printf "%.1f" .Humidity}}%, ` +
			`Smoke: {{printf "%.0f" .SmokeLevel}}. IMMEDIATE ACTION REQUIRED!`),
	"high_risk": mustTemplate("high_risk",
		`High fire risk detected. Risk Score: {{printf "%.1f" .RiskScore}}%. ` +
			`Conditions: Temp {{printf "%.1f" .Temperature}}°C, ` +
			`Humidity {{printf "%.1f" .Humidity}}%. Monitor closely.`),
	"smoke_detected": mustTemplate("smoke_detected",
		`SMOKE DETECTED! Level: {{printf "%.0f" .SmokeLevel}}. ` +
			`Location: Zone {{.Zone}}. Investigate immediately!`),
	"rapid_temp_rise": mustTemplate("rapid_temp_rise",
		`Rapid temperature increase detected: +{{printf "%.1f" .TempChangeRate}}°C in recent period. ` +
			`Current: {{printf "%.1f" .Temperature}}°C`),
	"sensor_offline": mustTemplate("sensor_offline",
		`Sensor node '{{.Node}}' is offline. Last seen: {{.LastHeartbeat}}`),
	"sprinkler_activated": mustTemplate("sprinkler_activated",
		`Sprinkler system ACTIVATED in zone {{.Zone}}. Reason: {{.ActivationReason}}`),
	"nearby_fire_hotspot": mustTemplate("nearby_fire_hotspot",
		`SATELLITE FIRE HOTSPOT DETECTED {{printf "%.1f" .HotspotDistance}}km away! ` +
			`Confidence: {{.HotspotConfidence}}%. Increase monitoring immediately!`),
}

func mustTemplate(name, body string) *template.Template {
	return template.Must(template.New(name).Parse(body))
}

// renderMessage generates the human-readable alert message for a rule.
// Unknown rules get a generic message; a render failure falls back the
// same way rather than blocking the alert.
func renderMessage(rule types.AlertRule, reading types.Reading) string {
	tpl, ok := messageTemplates[rule.ID]
	if !ok {
		return fmt.Sprintf("Alert triggered: %s", rule.Name)
	}

	data := messageData{
		RiskScore:         reading.RiskScore,
		Temperature:       reading.Temperature,
		Humidity:          reading.Humidity,
		SmokeLevel:        reading.SmokeLevel,
		RainLevel:         reading.RainLevel,
		TempChangeRate:    reading.TempChangeRate,
		HotspotDistance:   reading.HotspotDistance,
		Zone:              extraOr(reading, "zone_id", "Unknown"),
		Node:              extraOr(reading, "node_id", "Unknown"),
		LastHeartbeat:     extraOr(reading, "last_heartbeat", "Unknown"),
		ActivationReason:  extraOr(reading, "activation_reason", "Automatic fire suppression"),
		HotspotConfidence: extraOr(reading, "hotspot_confidence", "0"),
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return fmt.Sprintf("Alert triggered: %s", rule.Name)
	}
	return buf.String()
}

func extraOr(reading types.Reading, key, fallback string) string {
	if v, ok := reading.Extra[key]; ok && v != "" {
		return v
	}
	return fallback
}
