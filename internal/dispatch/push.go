package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/firewatch/firewatch/internal/config"
	"github.com/firewatch/firewatch/internal/types"
)

// PushSender posts alerts to a push notification gateway. Delivery is
// fire-and-forget: a gateway failure is logged and reported in the
// outcome, never retried.
type PushSender struct {
	cfg    config.PushConfig
	client *http.Client
	logger zerolog.Logger
}

// NewPushSender creates the push channel sender.
func NewPushSender(cfg config.PushConfig, logger zerolog.Logger) *PushSender {
	return &PushSender{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With().Str("component", "push-sender").Logger(),
	}
}

// Channel implements Sender.
func (p *PushSender) Channel() types.Channel { return types.ChannelPush }

type pushPayload struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Priority string `json:"priority"`
	AlertID  string `json:"alert_id"`
}

// Send implements Sender.
func (p *PushSender) Send(ctx context.Context, alert types.Alert) types.DispatchOutcome {
	if p.cfg.GatewayURL == "" {
		p.logger.Warn().
			Str("alert_id", alert.ID).
			Msg("Push gateway not configured")
		return types.DispatchOutcome{Skipped: true, Detail: "push not configured"}
	}

	payload := pushPayload{
		Title:    alert.Title,
		Body:     alert.Message,
		Priority: string(alert.Priority),
		AlertID:  alert.ID,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return types.DispatchOutcome{Error: fmt.Sprintf("encoding push payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.GatewayURL, bytes.NewReader(data))
	if err != nil {
		return types.DispatchOutcome{Error: fmt.Sprintf("building push request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Error().
			Err(err).
			Str("alert_id", alert.ID).
			Msg("Failed to reach push gateway")
		return types.DispatchOutcome{Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		p.logger.Error().
			Int("status", resp.StatusCode).
			Str("alert_id", alert.ID).
			Msg("Push gateway rejected notification")
		return types.DispatchOutcome{Error: fmt.Sprintf("push gateway returned %d", resp.StatusCode)}
	}

	p.logger.Info().
		Str("alert_id", alert.ID).
		Msg("Push notification sent")
	return types.DispatchOutcome{Delivered: true}
}
