package types

import "time"

// Reading is one timestamped sensor sample plus its precomputed risk score.
// Readings are produced by the external ingestion layer, are immutable once
// written, and are ordered by timestamp.
type Reading struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	SmokeLevel  float64   `json:"smoke_level"`
	RainLevel   float64   `json:"rain_level"`
	RiskScore   float64   `json:"risk_score"`
	RiskLevel   string    `json:"risk_level"`

	// Optional context attached by the ingestion layer when available.
	// Rule evaluation substitutes defaults for missing values.
	TempChangeRate  float64 `json:"temp_change_rate,omitempty"`
	NodeOffline     bool    `json:"node_offline,omitempty"`
	SprinklerStatus string  `json:"sprinkler_status,omitempty"`
	HotspotDistance float64 `json:"hotspot_distance,omitempty"`

	// Extra carries contextual fields used by message templates
	// (zone id, node id, activation reason).
	Extra map[string]string `json:"extra,omitempty"`
}
