package guest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/metrics"
	"github.com/galihcitta/confras/internal/models"
	"github.com/galihcitta/confras/internal/repository"
	"github.com/galihcitta/confras/internal/services/page"
)

var (
	ErrNameRequired  = errors.New("guest name is required")
	ErrGuestNotFound = errors.New("guest not found")
	ErrUploadFailed  = errors.New("receipt upload failed")
	ErrLimitReached  = errors.New("guest limit reached")
	ErrInvalidStatus = errors.New("invalid guest status")
	ErrForbidden     = errors.New("guest belongs to another tenant")
)

type Notifier interface {
	GuestSubmitted(ctx context.Context, tenant *models.Tenant, guest *models.Guest, adminURL string) error
}

type AdminLinker interface {
	AdminURL(email string) string
}

type SubmitRequest struct {
	Slug    string
	Name    string
	Contact string
	// Receipt is optional.
	Receipt *repository.Upload
}

// Service handles guest receipts on the public page and their approval by
// the organizer.
type Service struct {
	store    repository.Store
	pages    *page.Service
	notifier Notifier
	links    AdminLinker
	logger   *zap.Logger
}

func NewService(store repository.Store, pages *page.Service, notifier Notifier, links AdminLinker, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		pages:    pages,
		notifier: notifier,
		links:    links,
		logger:   logger,
	}
}

// Submit records a PENDING guest for the tenant at slug. The receipt is
// uploaded first; if that fails no guest record is written.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*models.Guest, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrNameRequired
	}

	tenant, err := s.pages.Resolve(ctx, req.Slug)
	if err != nil {
		return nil, err
	}

	// The limit is advisory: a count failure lets the submission through and
	// concurrent submissions may overshoot.
	if confirmed, err := s.pages.ConfirmedCount(ctx, tenant.ID); err != nil {
		s.logger.Warn("Could not count confirmed guests, skipping limit check",
			zap.String("tenant_id", tenant.ID.String()), zap.Error(err))
	} else if confirmed >= tenant.GuestLimit {
		metrics.IncrementGuestSubmissions("limit_reached")
		return nil, ErrLimitReached
	}

	guest := &models.Guest{
		TenantID: tenant.ID,
		Name:     name,
		Contact:  strings.TrimSpace(req.Contact),
		Status:   models.GuestPending,
	}

	if req.Receipt != nil {
		fileID, err := s.store.UploadFile(ctx, *req.Receipt)
		if err != nil {
			metrics.IncrementGuestSubmissions("upload_failed")
			s.logger.Error("Receipt upload failed",
				zap.String("tenant_id", tenant.ID.String()), zap.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
		}
		guest.Proof = fileID
	}

	if err := s.store.CreateGuest(ctx, guest); err != nil {
		metrics.IncrementGuestSubmissions("failed")
		return nil, fmt.Errorf("failed to create guest: %w", err)
	}
	metrics.IncrementGuestSubmissions("accepted")

	s.logger.Info("Guest submitted",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("guest_id", guest.ID.String()),
		zap.Bool("has_receipt", guest.Proof != ""))

	if err := s.notifier.GuestSubmitted(ctx, tenant, guest, s.links.AdminURL(tenant.Email)); err != nil {
		s.logger.Warn("Organizer notification not queued", zap.Error(err))
	}

	return guest, nil
}

// Approve confirms a guest. Approving an already confirmed guest is a no-op.
// A non-empty scopeTenantID restricts approval to that tenant's guests.
func (s *Service) Approve(ctx context.Context, guestID models.ID, status models.GuestStatus, scopeTenantID models.ID) (*models.Guest, error) {
	if status == "" {
		status = models.GuestConfirmed
	}
	if status != models.GuestConfirmed {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	guest, err := s.store.GuestByID(ctx, guestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrGuestNotFound
		}
		return nil, fmt.Errorf("failed to load guest: %w", err)
	}

	if !scopeTenantID.IsZero() && guest.TenantID != scopeTenantID {
		return nil, ErrForbidden
	}

	if guest.IsConfirmed() {
		return guest, nil
	}

	if err := s.store.UpdateGuestStatus(ctx, guestID, status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrGuestNotFound
		}
		return nil, fmt.Errorf("failed to update guest: %w", err)
	}
	metrics.IncrementGuestApprovals()

	guest.Status = status
	s.logger.Info("Guest approved",
		zap.String("guest_id", guestID.String()),
		zap.String("tenant_id", guest.TenantID.String()))
	return guest, nil
}
