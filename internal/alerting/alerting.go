package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bher20/movein/internal/checkout"
	"github.com/bher20/movein/internal/faults"
	"github.com/bher20/movein/internal/logging"
)

// AlertConfig holds alerting configuration.
type AlertConfig struct {
	// WebhookURL is a Slack, Discord or custom endpoint. Empty disables alerts.
	WebhookURL string
	// WebhookType is "slack", "discord" or "generic". Detected from the
	// URL when empty.
	WebhookType string
	Timeout     time.Duration
}

// DetectType guesses the payload format from a webhook URL.
func DetectType(url string) string {
	switch {
	case strings.Contains(url, "slack.com"):
		return "slack"
	case strings.Contains(url, "discord.com"):
		return "discord"
	default:
		return "generic"
	}
}

// Alerter posts submission failures to a webhook.
type Alerter struct {
	cfg    AlertConfig
	client *http.Client
	log    *zap.Logger
}

// NewAlerter creates a new alerter instance.
func NewAlerter(cfg AlertConfig, log *zap.Logger) *Alerter {
	if cfg.WebhookType == "" {
		cfg.WebhookType = DetectType(cfg.WebhookURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    logging.OrNop(log),
	}
}

// Enabled reports whether a webhook is configured.
func (a *Alerter) Enabled() bool { return a.cfg.WebhookURL != "" }

// SubmissionAlert describes one failed order submission.
type SubmissionAlert struct {
	Session      string    `json:"session"`
	Address      string    `json:"address"`
	Services     []string  `json:"services"`
	Error        string    `json:"error"`
	Retryable    bool      `json:"retryable"`
	DocumentRefs []string  `json:"document_refs,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewSubmissionAlert summarizes err for the session in s. The session token
// is masked.
func NewSubmissionAlert(token string, err error, s checkout.State, now time.Time) SubmissionAlert {
	alert := SubmissionAlert{
		Session:   logging.MaskLast4(token),
		Address:   s.Address.Format(),
		Error:     err.Error(),
		Retryable: faults.Retryable(err),
		Timestamp: now,
	}
	for _, svc := range s.IncludedServices() {
		alert.Services = append(alert.Services, string(svc))
	}
	var pf *faults.PartialFailure
	if errors.As(err, &pf) {
		alert.DocumentRefs = append([]string(nil), pf.DocumentRefs...)
	}
	return alert
}

// SendSubmissionAlert posts alert to the webhook.
func (a *Alerter) SendSubmissionAlert(ctx context.Context, alert SubmissionAlert) error {
	if !a.Enabled() {
		a.log.Debug("alerting disabled, skipping")
		return nil
	}

	var (
		payload []byte
		err     error
	)
	switch a.cfg.WebhookType {
	case "slack":
		payload, err = buildSlackPayload(alert)
	case "discord":
		payload, err = buildDiscordPayload(alert)
	default:
		payload, err = json.Marshal(struct {
			AlertType string `json:"alert_type"`
			SubmissionAlert
		}{"submission_failure", alert})
	}
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	a.log.Info("submission failure alert sent", zap.String("session", alert.Session))
	return nil
}

// Hook posts an alert for every failed submission. Delivery runs in the
// background so the customer does not wait for the webhook; done, when
// non-nil, is called with the delivery result.
func (a *Alerter) Hook(token func() string, done func(error)) checkout.FailureHook {
	return func(ctx context.Context, err error, s checkout.State) {
		if !a.Enabled() {
			return
		}
		alert := NewSubmissionAlert(token(), err, s, time.Now())
		ctx = context.WithoutCancel(ctx)
		go func() {
			serr := a.SendSubmissionAlert(ctx, alert)
			if serr != nil {
				a.log.Warn("submission failure alert failed", zap.Error(serr))
			}
			if done != nil {
				done(serr)
			}
		}()
	}
}

func buildSlackPayload(alert SubmissionAlert) ([]byte, error) {
	emoji := ":x:"
	if alert.Retryable {
		emoji = ":warning:"
	}
	payload := map[string]interface{}{
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]string{
					"type": "plain_text",
					"text": fmt.Sprintf("%s Order submission failed", emoji),
				},
			},
			{
				"type": "section",
				"fields": []map[string]string{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Session:*\n%s", alert.Session)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Address:*\n%s", alert.Address)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Services:*\n%s", strings.Join(alert.Services, ", "))},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Timestamp:*\n%s", alert.Timestamp.Format(time.RFC3339))},
				},
			},
			{
				"type": "section",
				"text": map[string]string{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Error:*\n%s\n*Documents retained:* %d", alert.Error, len(alert.DocumentRefs)),
				},
			},
		},
	}
	return json.Marshal(payload)
}

func buildDiscordPayload(alert SubmissionAlert) ([]byte, error) {
	color := 16711680 // red
	if alert.Retryable {
		color = 16776960 // yellow
	}
	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       "Order submission failed",
				"description": alert.Error,
				"color":       color,
				"fields": []map[string]interface{}{
					{"name": "Session", "value": alert.Session, "inline": true},
					{"name": "Address", "value": alert.Address, "inline": true},
					{"name": "Services", "value": strings.Join(alert.Services, ", "), "inline": false},
					{"name": "Documents retained", "value": fmt.Sprintf("%d", len(alert.DocumentRefs)), "inline": true},
				},
				"timestamp": alert.Timestamp.Format(time.RFC3339),
			},
		},
	}
	return json.Marshal(payload)
}
