package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/firewatch/firewatch/internal/config"
	"github.com/firewatch/firewatch/internal/source"
	"github.com/firewatch/firewatch/internal/types"
)

// smsMaxLength is a conservative body budget; carriers split longer
// messages unpredictably.
const smsMaxLength = 320

// smsTrendDepth is how many historical readings a message may include to
// convey a trend.
const smsTrendDepth = 3

// SMSSender delivers alerts through a Twilio-compatible REST API. Each
// recipient is attempted independently; one recipient's failure does not
// stop delivery to the others.
type SMSSender struct {
	cfg      config.SMSConfig
	readings source.ReadingSource
	client   *http.Client
	logger   zerolog.Logger
	baseURL  string
}

// NewSMSSender creates the SMS channel sender. readings may be nil; the
// trend line is simply omitted.
func NewSMSSender(cfg config.SMSConfig, readings source.ReadingSource, logger zerolog.Logger) *SMSSender {
	baseURL := cfg.APIBaseURL
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	return &SMSSender{
		cfg:      cfg,
		readings: readings,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger.With().Str("component", "sms-sender").Logger(),
		baseURL:  strings.TrimSuffix(baseURL, "/"),
	}
}

// Channel implements Sender.
func (s *SMSSender) Channel() types.Channel { return types.ChannelSMS }

// Send implements Sender.
func (s *SMSSender) Send(ctx context.Context, alert types.Alert) types.DispatchOutcome {
	if s.cfg.AccountSID == "" || s.cfg.AuthToken == "" || s.cfg.FromNumber == "" {
		s.logger.Warn().
			Str("alert_id", alert.ID).
			Msg("SMS not configured: missing provider credentials")
		return types.DispatchOutcome{Skipped: true, Detail: "sms not configured"}
	}
	if len(s.cfg.Recipients) == 0 {
		s.logger.Warn().
			Str("alert_id", alert.ID).
			Msg("No SMS recipients configured")
		return types.DispatchOutcome{Skipped: true, Detail: "no sms recipients"}
	}

	body := s.buildBody(ctx, alert)

	sent, failed := 0, 0
	var firstErr string
	for _, recipient := range s.cfg.Recipients {
		if err := s.sendTo(ctx, recipient, body); err != nil {
			failed++
			if firstErr == "" {
				firstErr = err.Error()
			}
			s.logger.Error().
				Err(err).
				Str("recipient", recipient).
				Str("alert_id", alert.ID).
				Msg("Failed to send SMS")
			continue
		}
		sent++
		s.logger.Info().
			Str("recipient", recipient).
			Str("alert_id", alert.ID).
			Msg("SMS sent")
	}

	outcome := types.DispatchOutcome{
		Delivered: sent > 0,
		Detail:    fmt.Sprintf("%d sent, %d failed", sent, failed),
	}
	if sent == 0 {
		outcome.Error = firstErr
	}
	return outcome
}

// buildBody constructs a concise message: current snapshot, an optional
// trend from the most recent historical readings, and the alert id.
func (s *SMSSender) buildBody(ctx context.Context, alert types.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "FIRE ALERT: %s\n", alert.Title)
	fmt.Fprintf(&b, "Risk: %s%% | Temp: %s°C | Smoke: %s\n",
		contextOr(alert, "risk_score", "?"),
		contextOr(alert, "temperature", "?"),
		contextOr(alert, "smoke_level", "?"))

	if trend := s.trendLine(ctx, alert); trend != "" {
		b.WriteString(trend)
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "Time: %s\n", alert.CreatedAt.UTC().Format("15:04:05"))
	fmt.Fprintf(&b, "ID: %s", alert.ID)

	return truncateRunes(b.String(), smsMaxLength)
}

// truncateRunes caps s at max bytes without splitting a multibyte rune.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func (s *SMSSender) trendLine(ctx context.Context, alert types.Alert) string {
	if s.readings == nil {
		return ""
	}
	history, err := s.readings.Since(ctx, alert.CreatedAt.Add(-time.Hour), smsTrendDepth)
	if err != nil || len(history) < 2 {
		return ""
	}
	// history is newest-first; present oldest-to-newest.
	scores := make([]string, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		scores = append(scores, fmt.Sprintf("%.0f", history[i].RiskScore))
	}
	return "Risk trend: " + strings.Join(scores, " > ") + "%"
}

func (s *SMSSender) sendTo(ctx context.Context, recipient, body string) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.cfg.AccountSID)

	form := url.Values{}
	form.Set("To", recipient)
	form.Set("From", s.cfg.FromNumber)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building sms request: %w", err)
	}
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms provider returned %d", resp.StatusCode)
	}
	return nil
}

func contextOr(alert types.Alert, key, fallback string) string {
	if v, ok := alert.Context[key]; ok && v != "" {
		return v
	}
	return fallback
}
