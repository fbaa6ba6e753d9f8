package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/firewatch/firewatch/internal/config"
	"github.com/firewatch/firewatch/internal/types"
)

// SirenClient activates a physical siren. Implementations talk to
// whatever controls the hardware; tests substitute a stub.
type SirenClient interface {
	Activate(ctx context.Context, alert types.Alert) error
}

// HTTPSirenClient triggers a siren controller over HTTP.
type HTTPSirenClient struct {
	url    string
	client *http.Client
}

// NewHTTPSirenClient creates a client for the given activation URL.
func NewHTTPSirenClient(cfg config.SirenConfig) *HTTPSirenClient {
	return &HTTPSirenClient{
		url:    cfg.ActivationURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Activate implements SirenClient.
func (c *HTTPSirenClient) Activate(ctx context.Context, alert types.Alert) error {
	if c.url == "" {
		return fmt.Errorf("siren activation url not configured")
	}
	body := strings.NewReader(fmt.Sprintf(`{"alert_id":%q,"priority":%q}`, alert.ID, alert.Priority))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return fmt.Errorf("building siren request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("activating siren: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("siren controller returned %d", resp.StatusCode)
	}
	return nil
}

// SirenSender sounds the physical siren for high and critical alerts.
// Lower priorities pass through as delivered no-ops so routing a rule to
// the siren channel never fails; the hardware just stays quiet.
type SirenSender struct {
	client SirenClient
	logger zerolog.Logger
}

// NewSirenSender creates the siren channel sender.
func NewSirenSender(client SirenClient, logger zerolog.Logger) *SirenSender {
	return &SirenSender{
		client: client,
		logger: logger.With().Str("component", "siren-sender").Logger(),
	}
}

// Channel implements Sender.
func (s *SirenSender) Channel() types.Channel { return types.ChannelSiren }

// Send implements Sender.
func (s *SirenSender) Send(ctx context.Context, alert types.Alert) types.DispatchOutcome {
	if alert.Priority.Rank() < types.PriorityHigh.Rank() {
		s.logger.Debug().
			Str("alert_id", alert.ID).
			Str("priority", string(alert.Priority)).
			Msg("Siren reserved for high and critical alerts")
		return types.DispatchOutcome{Delivered: true, Detail: "priority below siren threshold"}
	}

	if err := s.client.Activate(ctx, alert); err != nil {
		s.logger.Error().
			Err(err).
			Str("alert_id", alert.ID).
			Msg("Failed to activate siren")
		return types.DispatchOutcome{Error: err.Error()}
	}

	s.logger.Warn().
		Str("alert_id", alert.ID).
		Str("priority", string(alert.Priority)).
		Msg("Siren activated")
	return types.DispatchOutcome{Delivered: true}
}
