package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/services/messaging"
)

// Email is the payload of an email job.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

type Mailer interface {
	Send(ctx context.Context, email Email) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPMailer struct {
	cfg    SMTPConfig
	logger *zap.Logger
}

func NewSMTPMailer(cfg SMTPConfig, logger *zap.Logger) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, logger: logger}
}

func (m *SMTPMailer) Send(ctx context.Context, email Email) error {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(email.To); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(email.Subject)
	msg.SetBodyString(mail.TypeTextPlain, email.Text)
	if email.HTML != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, email.HTML)
	}

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}

	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.Info("Email sent", zap.String("subject", email.Subject))
	return nil
}

// LogMailer stands in when no SMTP host is configured.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, email Email) error {
	m.logger.Info("SMTP not configured, email dropped", zap.String("subject", email.Subject))
	return nil
}

// EmailJobHandler delivers email jobs through mailer.
func EmailJobHandler(mailer Mailer) messaging.JobHandler {
	return messaging.HandlerFunc(func(ctx context.Context, job messaging.Job) error {
		var email Email
		if err := json.Unmarshal(job.Payload, &email); err != nil {
			return fmt.Errorf("invalid email payload: %w", err)
		}
		if email.To == "" {
			return fmt.Errorf("email job %s has no recipient", job.ID)
		}
		return mailer.Send(ctx, email)
	})
}
