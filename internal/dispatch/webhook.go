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

// WebhookSender delivers alerts to every configured URL. Each URL is
// attempted independently; the channel counts as delivered only when
// every endpoint accepted the payload.
type WebhookSender struct {
	cfg    config.WebhookConfig
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookSender creates the webhook channel sender.
func NewWebhookSender(cfg config.WebhookConfig, logger zerolog.Logger) *WebhookSender {
	return &WebhookSender{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With().Str("component", "webhook-sender").Logger(),
	}
}

// Channel implements Sender.
func (w *WebhookSender) Channel() types.Channel { return types.ChannelWebhook }

type webhookPayload struct {
	AlertID     string            `json:"alert_id"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	Priority    string            `json:"priority"`
	Timestamp   string            `json:"timestamp"`
	ContextData map[string]string `json:"context_data"`
}

// Send implements Sender.
func (w *WebhookSender) Send(ctx context.Context, alert types.Alert) types.DispatchOutcome {
	if len(w.cfg.URLs) == 0 {
		w.logger.Warn().
			Str("alert_id", alert.ID).
			Msg("No webhook URLs configured")
		return types.DispatchOutcome{Skipped: true, Detail: "no webhook urls"}
	}

	data, err := json.Marshal(webhookPayload{
		AlertID:     alert.ID,
		Title:       alert.Title,
		Message:     alert.Message,
		Priority:    string(alert.Priority),
		Timestamp:   alert.CreatedAt.UTC().Format(time.RFC3339),
		ContextData: alert.Context,
	})
	if err != nil {
		return types.DispatchOutcome{Error: fmt.Sprintf("encoding webhook payload: %v", err)}
	}

	delivered, failed := 0, 0
	var firstErr string
	for _, endpoint := range w.cfg.URLs {
		if err := w.post(ctx, endpoint, data); err != nil {
			failed++
			if firstErr == "" {
				firstErr = err.Error()
			}
			w.logger.Error().
				Err(err).
				Str("url", endpoint).
				Str("alert_id", alert.ID).
				Msg("Webhook delivery failed")
			continue
		}
		delivered++
		w.logger.Info().
			Str("url", endpoint).
			Str("alert_id", alert.ID).
			Msg("Webhook delivered")
	}

	outcome := types.DispatchOutcome{
		Delivered: failed == 0,
		Detail:    fmt.Sprintf("%d delivered, %d failed", delivered, failed),
	}
	if failed > 0 {
		outcome.Error = firstErr
	}
	return outcome
}

func (w *WebhookSender) post(ctx context.Context, endpoint string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	return nil
}
