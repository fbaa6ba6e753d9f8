package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"text/template"
	"time"

	"github.com/rs/zerolog"

	"github.com/firewatch/firewatch/internal/config"
	"github.com/firewatch/firewatch/internal/types"
)

var emailBodyTemplate = template.Must(template.New("email").Parse(`{{.Title}}

Priority: {{.Priority}}
Time: {{.Time}}
Alert ID: {{.AlertID}}

Details:
{{.Message}}

Sensor Data:
{{- range .Data}}
  - {{.}}
{{- end}}

This is an automated alert from the forest fire monitoring system.
`))

type emailBodyData struct {
	Title    string
	Priority string
	Time     string
	AlertID  string
	Message  string
	Data     []string
}

// EmailSender delivers alerts over SMTP. Missing credentials or an empty
// recipient list make it a logged no-op, not an error.
type EmailSender struct {
	cfg    config.EmailConfig
	logger zerolog.Logger

	// sendMail is swappable for tests; defaults to smtp.SendMail.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailSender creates the SMTP channel sender.
func NewEmailSender(cfg config.EmailConfig, logger zerolog.Logger) *EmailSender {
	return &EmailSender{
		cfg:      cfg,
		logger:   logger.With().Str("component", "email-sender").Logger(),
		sendMail: smtp.SendMail,
	}
}

// Channel implements Sender.
func (e *EmailSender) Channel() types.Channel { return types.ChannelEmail }

// Send implements Sender.
func (e *EmailSender) Send(ctx context.Context, alert types.Alert) types.DispatchOutcome {
	if e.cfg.Username == "" || e.cfg.Password == "" || len(e.cfg.Recipients) == 0 {
		e.logger.Warn().
			Str("alert_id", alert.ID).
			Msg("Email not configured, skipping")
		return types.DispatchOutcome{Skipped: true, Detail: "email not configured"}
	}

	body, err := e.buildMessage(alert)
	if err != nil {
		return types.DispatchOutcome{Error: fmt.Sprintf("building email: %v", err)}
	}

	addr := fmt.Sprintf("%s:%d", e.cfg.SMTPHost, e.cfg.SMTPPort)
	auth := smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.SMTPHost)

	done := make(chan error, 1)
	go func() {
		done <- e.sendMail(addr, auth, e.cfg.From, e.cfg.Recipients, body)
	}()

	select {
	case <-ctx.Done():
		return types.DispatchOutcome{Error: fmt.Sprintf("email send timed out: %v", ctx.Err())}
	case err := <-done:
		if err != nil {
			return types.DispatchOutcome{Error: fmt.Sprintf("sending email: %v", err)}
		}
	}

	return types.DispatchOutcome{
		Delivered: true,
		Detail:    fmt.Sprintf("%d recipients", len(e.cfg.Recipients)),
	}
}

func (e *EmailSender) buildMessage(alert types.Alert) ([]byte, error) {
	data := emailBodyData{
		Title:    alert.Title,
		Priority: strings.ToUpper(string(alert.Priority)),
		Time:     alert.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"),
		AlertID:  alert.ID,
		Message:  alert.Message,
		Data:     snapshotLines(alert.Context),
	}

	var body bytes.Buffer
	if err := emailBodyTemplate.Execute(&body, data); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(e.cfg.Recipients, ", "))
	fmt.Fprintf(&msg, "Subject: [%s] %s\r\n", data.Priority, alert.Title)
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.Write(body.Bytes())

	return msg.Bytes(), nil
}

// snapshotLines formats the reading snapshot fields the email body lists.
func snapshotLines(contextData map[string]string) []string {
	ordered := []struct{ key, label, unit string }{
		{"temperature", "Temperature", "°C"},
		{"humidity", "Humidity", "%"},
		{"smoke_level", "Smoke Level", ""},
		{"risk_score", "Fire Risk Score", "%"},
	}
	lines := make([]string, 0, len(ordered))
	for _, field := range ordered {
		value, ok := contextData[field.key]
		if !ok {
			value = "N/A"
		}
		lines = append(lines, fmt.Sprintf("%s: %s%s", field.label, value, field.unit))
	}
	return lines
}
