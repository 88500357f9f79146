package notification

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/bher20/movein/internal/checkout"
	"github.com/bher20/movein/internal/logging"
)

// RecipientAnswer is the provider question id whose answer receives the
// confirmation email.
const RecipientAnswer = "email"

// Config holds the sendgrid credentials and sender identity.
type Config struct {
	APIKey      string
	FromAddress string
	FromName    string
}

// sendFunc delivers a message and reports the provider status code.
type sendFunc func(ctx context.Context, m *mail.SGMailV3) (status int, body string, err error)

// Service sends order confirmation emails. Without an API key it does
// nothing.
type Service struct {
	cfg  Config
	send sendFunc
	log  *zap.Logger
}

func NewService(cfg Config, log *zap.Logger) *Service {
	s := &Service{cfg: cfg, log: logging.OrNop(log)}
	if cfg.FromName == "" {
		s.cfg.FromName = "Move-in"
	}
	if cfg.APIKey != "" {
		client := sendgrid.NewSendClient(cfg.APIKey)
		s.send = func(ctx context.Context, m *mail.SGMailV3) (int, string, error) {
			resp, err := client.SendWithContext(ctx, m)
			if err != nil {
				return 0, "", err
			}
			return resp.StatusCode, resp.Body, nil
		}
	}
	return s
}

// Enabled reports whether mail is configured.
func (s *Service) Enabled() bool { return s.send != nil && s.cfg.FromAddress != "" }

// ConfirmationEmail builds the message for conf.
func (s *Service) ConfirmationEmail(conf checkout.OrderConfirmation, to string) *mail.SGMailV3 {
	subject := fmt.Sprintf("Your move-in order %s", conf.OrderID)
	from := mail.NewEmail(s.cfg.FromName, s.cfg.FromAddress)
	return mail.NewSingleEmail(from, subject, mail.NewEmail("", to), plainBody(conf), htmlBody(conf))
}

// SendConfirmation emails conf to the given address.
func (s *Service) SendConfirmation(ctx context.Context, conf checkout.OrderConfirmation, to string) error {
	if !s.Enabled() {
		s.log.Debug("confirmation email skipped, mail not configured")
		return nil
	}
	status, body, err := s.send(ctx, s.ConfirmationEmail(conf, to))
	if err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}
	if status >= 400 {
		return fmt.Errorf("sendgrid error: %d %s", status, body)
	}
	s.log.Info("confirmation email sent",
		zap.String("order_id", conf.OrderID),
		zap.String("to", logging.MaskLast4(to)),
	)
	return nil
}

// Hook emails the confirmation to the address given in the checkout
// answers. Sessions without one are skipped.
func (s *Service) Hook() checkout.ConfirmationHook {
	return func(ctx context.Context, conf checkout.OrderConfirmation, st checkout.State) {
		to := strings.TrimSpace(st.Answers[RecipientAnswer])
		if to == "" {
			return
		}
		if err := s.SendConfirmation(ctx, conf, to); err != nil {
			s.log.Warn("confirmation email failed", zap.String("order_id", conf.OrderID), zap.Error(err))
		}
	}
}

func plainBody(conf checkout.OrderConfirmation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %s for %s\n", conf.OrderID, conf.Address.Format())
	if conf.Reference != "" {
		fmt.Fprintf(&b, "Reference: %s\n", conf.Reference)
	}
	fmt.Fprintf(&b, "Move-in date: %s\n\n", conf.MoveInDate.Format(checkout.DateLayout))
	for _, svc := range conf.Services {
		fmt.Fprintf(&b, "- %s: %s (%s), %s, earliest activation %s\n",
			svc.Service, svc.PlanName, svc.Provider, svc.Status, svc.EarliestActivation.Format(checkout.DateLayout))
	}
	return b.String()
}

func htmlBody(conf checkout.OrderConfirmation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>Order %s</h2>", html.EscapeString(conf.OrderID))
	fmt.Fprintf(&b, "<p>%s<br>Move-in date: %s</p><ul>",
		html.EscapeString(conf.Address.Format()), conf.MoveInDate.Format(checkout.DateLayout))
	for _, svc := range conf.Services {
		fmt.Fprintf(&b, "<li><b>%s</b>: %s (%s), earliest activation %s</li>",
			html.EscapeString(string(svc.Service)),
			html.EscapeString(svc.PlanName),
			html.EscapeString(svc.Provider),
			svc.EarliestActivation.Format(checkout.DateLayout))
	}
	b.WriteString("</ul>")
	return b.String()
}
