package tenant

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/auth"
	"github.com/galihcitta/confras/internal/cache"
	"github.com/galihcitta/confras/internal/metrics"
	"github.com/galihcitta/confras/internal/models"
	"github.com/galihcitta/confras/internal/repository"
	"github.com/galihcitta/confras/internal/services/hosting"
	"github.com/galihcitta/confras/internal/services/messaging"
	"github.com/galihcitta/confras/internal/services/payment"
)

const minPasswordLength = 6

var (
	ErrInvalidSlug        = errors.New("slug is empty after sanitization")
	ErrSlugTaken          = errors.New("slug already in use")
	ErrUnknownPlan        = errors.New("unknown plan")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
	ErrWeakPassword       = errors.New("password is too short")
)

// Notifier queues organizer emails.
type Notifier interface {
	Welcome(ctx context.Context, tenant *models.Tenant, pageURL, adminURL string) error
	PasswordReset(ctx context.Context, email, link string) error
}

type Config struct {
	AppName         string
	BaseURL         string
	Currency        string
	NotificationURL string
	// ProvisionDomains enqueues a hosting-panel domain for every new tenant.
	ProvisionDomains bool
}

// Manager owns the tenant lifecycle: signup, organizer login, password
// reset and plan changes.
type Manager struct {
	store     repository.Store
	tokens    *auth.Tokens
	keys      cache.Store
	notifier  Notifier
	publisher messaging.Publisher
	gateway   payment.Gateway
	tiers     *payment.Tiers
	config    Config
	logger    *zap.Logger

	// dummyHash keeps unknown-email logins as slow as wrong-password ones.
	dummyHash string
}

func NewManager(
	store repository.Store,
	tokens *auth.Tokens,
	keys cache.Store,
	notifier Notifier,
	publisher messaging.Publisher,
	gateway payment.Gateway,
	tiers *payment.Tiers,
	config Config,
	logger *zap.Logger,
) *Manager {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.NotificationURL == "" {
		config.NotificationURL = config.BaseURL + "/api/webhook/payment_success"
	}
	dummyHash, _ := auth.HashPassword("confras-dummy-password")

	return &Manager{
		store:     store,
		tokens:    tokens,
		keys:      keys,
		notifier:  notifier,
		publisher: publisher,
		gateway:   gateway,
		tiers:     tiers,
		config:    config,
		logger:    logger,
		dummyHash: dummyHash,
	}
}

func (m *Manager) PageURL(slug string) string {
	return m.config.BaseURL + "/festa/" + slug
}

func (m *Manager) AdminURL(email string) string {
	return m.config.BaseURL + "/admin?email=" + url.QueryEscape(email)
}

// CreateTenant signs up a new organizer. A paid plan starts as free and is
// upgraded by the payment webhook; the response then carries a checkout URL.
func (m *Manager) CreateTenant(ctx context.Context, req *models.CreateTenantRequest) (*models.CreateTenantResponse, error) {
	slug := models.SanitizeSlug(req.Subdomain)
	if slug == "" {
		return nil, ErrInvalidSlug
	}

	plan := req.Plan
	if plan == "" {
		plan = models.PlanFree
	}
	if plan != models.PlanFree && !m.tiers.IsPaid(plan) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, plan)
	}
	if err := checkPassword(req.Password); err != nil {
		return nil, err
	}

	// Best effort only: a concurrent signup can still win, in which case the
	// insert below reports the conflict.
	exists, err := m.store.SlugExists(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to check slug: %w", err)
	}
	if exists {
		return nil, ErrSlugTaken
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	tenant := &models.Tenant{
		Slug:         slug,
		Name:         strings.TrimSpace(req.CompanyName),
		Email:        models.NormalizeEmail(req.Email),
		PixKey:       strings.TrimSpace(req.PixKey),
		Plan:         models.PlanFree,
		GuestLimit:   m.tiers.FreeGuestLimit(),
		Status:       models.TenantStatusActive,
		PasswordHash: hash,
	}
	if err := m.store.CreateTenant(ctx, tenant); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrSlugTaken
		}
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}
	metrics.IncrementTenantsCreated(string(plan))

	m.logger.Info("Tenant created",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("slug", slug),
		zap.String("plan", string(plan)))

	resp := &models.CreateTenantResponse{
		Status:   "success",
		TenantID: tenant.ID,
		Slug:     slug,
		URL:      m.PageURL(slug),
		AdminURL: m.AdminURL(tenant.Email),
	}

	m.afterCreate(ctx, tenant, resp)

	if plan != models.PlanFree {
		checkout, err := m.checkout(ctx, tenant, plan)
		if err != nil {
			m.logger.Error("Checkout creation failed, tenant stays on free plan",
				zap.String("tenant_id", tenant.ID.String()),
				zap.Error(err))
			resp.CheckoutError = "não foi possível iniciar o pagamento; tente novamente pelo painel"
		} else {
			resp.CheckoutURL = checkout.URL
		}
	}

	return resp, nil
}

// afterCreate queues the follow-up work of a signup. Failures are logged and
// never undo the signup.
func (m *Manager) afterCreate(ctx context.Context, tenant *models.Tenant, resp *models.CreateTenantResponse) {
	if m.config.ProvisionDomains {
		job, err := messaging.NewJob(messaging.JobProvisionDomain, hosting.ProvisionPayload{Slug: tenant.Slug})
		if err == nil {
			err = m.publisher.Publish(ctx, job)
		}
		if err != nil {
			m.logger.Error("Failed to queue domain provisioning",
				zap.String("slug", tenant.Slug),
				zap.Error(err))
		}
	}

	if err := m.notifier.Welcome(ctx, tenant, resp.URL, resp.AdminURL); err != nil {
		m.logger.Warn("Welcome email not queued", zap.String("tenant_id", tenant.ID.String()), zap.Error(err))
	}
}

// Checkout starts a payment for upgrading tenantID to plan.
func (m *Manager) Checkout(ctx context.Context, tenantID models.ID, plan models.Plan) (*payment.Checkout, error) {
	tenant, err := m.store.TenantByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return m.checkout(ctx, tenant, plan)
}

func (m *Manager) checkout(ctx context.Context, tenant *models.Tenant, plan models.Plan) (*payment.Checkout, error) {
	tier, ok := m.tiers.ByPlan(plan)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, plan)
	}
	if m.gateway == nil {
		return nil, errors.New("no payment provider configured")
	}

	return m.gateway.CreateCheckout(ctx, payment.CheckoutRequest{
		Title:             fmt.Sprintf("%s - plano %s", m.config.AppName, tier.Plan),
		Amount:            tier.Price,
		Currency:          m.config.Currency,
		ExternalReference: tenant.ID.String(),
		PayerEmail:        tenant.Email,
		SuccessURL:        m.AdminURL(tenant.Email),
		CancelURL:         m.PageURL(tenant.Slug),
		NotificationURL:   m.config.NotificationURL,
	})
}

func (m *Manager) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	tenant, err := m.store.TenantByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			auth.CheckPassword(m.dummyHash, password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}

	if !auth.CheckPassword(tenant.PasswordHash, password) {
		m.logger.Info("Rejected login", zap.String("tenant_id", tenant.ID.String()))
		return nil, ErrInvalidCredentials
	}

	token, err := m.tokens.IssueSession(tenant.ID.String(), tenant.Email)
	if err != nil {
		return nil, err
	}

	return &models.LoginResponse{
		Status:    "success",
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int(m.tokens.SessionExpiry().Seconds()),
		AdminURL:  m.AdminURL(tenant.Email),
	}, nil
}

// RequestPasswordReset emails a reset link. An unknown email is not an
// error so the endpoint does not reveal which addresses have accounts.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) error {
	tenant, err := m.store.TenantByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			m.logger.Debug("Password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("failed to load tenant: %w", err)
	}

	token, err := m.tokens.IssueReset(tenant.ID.String(), tenant.Email)
	if err != nil {
		return err
	}

	link := m.config.BaseURL + "/reset?token=" + url.QueryEscape(token)
	return m.notifier.PasswordReset(ctx, tenant.Email, link)
}

// ConfirmPasswordReset sets a new password. Each reset token works once; a
// failed update releases the token so the link can be retried.
func (m *Manager) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if err := checkPassword(newPassword); err != nil {
		return err
	}

	claims, err := m.tokens.Validate(token, auth.PurposePasswordReset)
	if err != nil {
		return ErrInvalidResetToken
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}

	ttl := time.Minute
	if claims.ExpiresAt != nil {
		if remaining := time.Until(claims.ExpiresAt.Time); remaining > ttl {
			ttl = remaining
		}
	}
	marker := "reset:" + claims.ID
	fresh, err := m.keys.SetNX(ctx, marker, ttl)
	if err != nil {
		return fmt.Errorf("failed to record reset token use: %w", err)
	}
	if !fresh {
		return ErrInvalidResetToken
	}

	if err := m.store.UpdateTenantPassword(ctx, models.ID(claims.TenantID), hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidResetToken
		}
		if delErr := m.keys.Del(context.WithoutCancel(ctx), marker); delErr != nil {
			m.logger.Error("Failed to release reset token",
				zap.String("tenant_id", claims.TenantID),
				zap.Error(delErr))
		}
		return fmt.Errorf("failed to update password: %w", err)
	}

	m.logger.Info("Password reset", zap.String("tenant_id", claims.TenantID))
	return nil
}

// ApplyPlan moves a tenant to plan with the given guest cap. It never lowers
// the cap: a late payment for a smaller tier returns
// payment.ErrPlanNotUpgraded.
func (m *Manager) ApplyPlan(ctx context.Context, tenantID models.ID, plan models.Plan, guestLimit int) error {
	tenant, err := m.store.TenantByID(ctx, tenantID)
	if err != nil {
		return err
	}
	if tenant.GuestLimit >= guestLimit {
		m.logger.Info("Plan change skipped, tenant already has an equal or larger cap",
			zap.String("tenant_id", tenantID.String()),
			zap.String("plan", string(plan)),
			zap.Int("current_limit", tenant.GuestLimit),
			zap.Int("guest_limit", guestLimit))
		return payment.ErrPlanNotUpgraded
	}

	if err := m.store.UpdateTenantPlan(ctx, tenantID, plan, guestLimit); err != nil {
		return err
	}
	m.logger.Info("Tenant plan applied",
		zap.String("tenant_id", tenantID.String()),
		zap.String("plan", string(plan)),
		zap.Int("guest_limit", guestLimit))
	return nil
}

func checkPassword(password string) error {
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	if len(password) > auth.MaxPasswordBytes {
		return auth.ErrPasswordTooLong
	}
	return nil
}
