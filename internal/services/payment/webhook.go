package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/metrics"
	"github.com/galihcitta/confras/internal/models"
	"github.com/galihcitta/confras/internal/repository"
)

type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeIgnored Outcome = "ignored"
)

// ErrVerificationFailed means the provider could not confirm the payment
// either way. The caller answers with an error so the provider retries.
var ErrVerificationFailed = errors.New("payment verification failed")

// ErrPlanNotUpgraded is returned by a PlanApplier when the tenant already
// has an equal or larger guest cap than the paid tier.
var ErrPlanNotUpgraded = errors.New("tenant already has an equal or larger plan")

type PlanApplier interface {
	ApplyPlan(ctx context.Context, tenantID models.ID, plan models.Plan, guestLimit int) error
}

// WebhookProcessor upgrades tenants from payment notifications. The
// notification body is never trusted: the payment is always re-read from the
// provider.
type WebhookProcessor struct {
	gateway Gateway
	tiers   *Tiers
	plans   PlanApplier
	logger  *zap.Logger
}

func NewWebhookProcessor(gateway Gateway, tiers *Tiers, plans PlanApplier, logger *zap.Logger) *WebhookProcessor {
	return &WebhookProcessor{
		gateway: gateway,
		tiers:   tiers,
		plans:   plans,
		logger:  logger,
	}
}

func (w *WebhookProcessor) Process(ctx context.Context, paymentID string) (Outcome, error) {
	outcome, err := w.process(ctx, paymentID)
	switch {
	case err != nil:
		metrics.IncrementWebhooks(w.gateway.Name(), "failed")
	default:
		metrics.IncrementWebhooks(w.gateway.Name(), string(outcome))
	}
	return outcome, err
}

func (w *WebhookProcessor) process(ctx context.Context, paymentID string) (Outcome, error) {
	logger := w.logger.With(zap.String("payment_id", paymentID), zap.String("provider", w.gateway.Name()))

	info, err := w.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, ErrInvalidPaymentID) {
			logger.Warn("Ignoring webhook with unusable payment id")
			return OutcomeIgnored, nil
		}
		logger.Error("Could not verify payment with provider", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	if !info.IsApproved() {
		logger.Info("Payment not approved, ignoring", zap.String("status", info.Status))
		return OutcomeIgnored, nil
	}

	ref := strings.TrimSpace(info.ExternalReference)
	if ref == "" {
		logger.Warn("Approved payment carries no tenant reference")
		return OutcomeIgnored, nil
	}

	tier, ok := w.tiers.ForAmount(info.Amount)
	if !ok {
		logger.Warn("Approved amount matches no plan", zap.String("amount", info.Amount.String()))
		return OutcomeIgnored, nil
	}

	if err := w.plans.ApplyPlan(ctx, models.ID(ref), tier.Plan, tier.GuestLimit); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Warn("Payment references an unknown tenant", zap.String("tenant_id", ref))
			return OutcomeIgnored, nil
		}
		if errors.Is(err, ErrPlanNotUpgraded) {
			logger.Info("Payment tier does not raise the tenant's cap, ignoring",
				zap.String("tenant_id", ref), zap.String("plan", string(tier.Plan)))
			return OutcomeIgnored, nil
		}
		return "", fmt.Errorf("failed to apply plan: %w", err)
	}

	logger.Info("Tenant plan upgraded",
		zap.String("tenant_id", ref),
		zap.String("plan", string(tier.Plan)),
		zap.Int("guest_limit", tier.GuestLimit))
	return OutcomeApplied, nil
}
