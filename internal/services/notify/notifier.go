package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/models"
	"github.com/galihcitta/confras/internal/services/messaging"
)

// Notifier builds the organizer emails and queues them. Delivery happens
// later on the job workers.
type Notifier struct {
	publisher messaging.Publisher
	appName   string
	logger    *zap.Logger
}

func NewNotifier(publisher messaging.Publisher, appName string, logger *zap.Logger) *Notifier {
	return &Notifier{
		publisher: publisher,
		appName:   appName,
		logger:    logger,
	}
}

func (n *Notifier) Welcome(ctx context.Context, tenant *models.Tenant, pageURL, adminURL string) error {
	return n.queue(ctx, Email{
		To:      tenant.Email,
		Subject: fmt.Sprintf("Sua página no %s está no ar!", n.appName),
		Text: fmt.Sprintf("Olá, %s!\n\nSua página foi criada: %s\nPainel do organizador: %s\n\nBoa festa!\n",
			tenant.Name, pageURL, adminURL),
	})
}

func (n *Notifier) PasswordReset(ctx context.Context, email, link string) error {
	return n.queue(ctx, Email{
		To:      email,
		Subject: "Redefinição de senha",
		Text: fmt.Sprintf("Recebemos um pedido para redefinir sua senha.\n\nUse o link abaixo (válido por tempo limitado):\n%s\n\nSe não foi você, ignore este email.\n",
			link),
	})
}

func (n *Notifier) GuestSubmitted(ctx context.Context, tenant *models.Tenant, guest *models.Guest, adminURL string) error {
	return n.queue(ctx, Email{
		To:      tenant.Email,
		Subject: fmt.Sprintf("Novo comprovante de %s", guest.Name),
		Text: fmt.Sprintf("%s enviou um comprovante para %s.\n\nAprove no painel: %s\n",
			guest.Name, tenant.Name, adminURL),
	})
}

func (n *Notifier) queue(ctx context.Context, email Email) error {
	if email.To == "" {
		return nil
	}

	job, err := messaging.NewJob(messaging.JobEmail, email)
	if err != nil {
		return err
	}
	if err := n.publisher.Publish(ctx, job); err != nil {
		n.logger.Error("Failed to queue email", zap.Error(err), zap.String("subject", email.Subject))
		return fmt.Errorf("failed to queue email: %w", err)
	}
	return nil
}
