package page

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/models"
	"github.com/galihcitta/confras/internal/repository"
)

var ErrTenantNotFound = errors.New("tenant not found")

// Service builds event pages from the system of record.
type Service struct {
	store  repository.Store
	logger *zap.Logger
}

func NewService(store repository.Store, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Resolve looks up the tenant owning slug. The match is exact; callers pass
// the slug as it appears in the URL. Backend failures are returned as-is so
// they stay distinguishable from ErrTenantNotFound.
func (s *Service) Resolve(ctx context.Context, slug string) (*models.Tenant, error) {
	if slug == "" {
		return nil, ErrTenantNotFound
	}

	tenant, err := s.store.TenantBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to resolve tenant %q: %w", slug, err)
	}
	return tenant, nil
}

func (s *Service) ResolveByEmail(ctx context.Context, email string) (*models.Tenant, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, ErrTenantNotFound
	}

	tenant, err := s.store.TenantByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to resolve tenant by email: %w", err)
	}
	return tenant, nil
}

func (s *Service) ResolveByID(ctx context.Context, id models.ID) (*models.Tenant, error) {
	tenant, err := s.store.TenantByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to resolve tenant %s: %w", id, err)
	}
	return tenant, nil
}

// HostLabel returns the tenant label of host under rootDomain, or "" when
// host is the root domain itself, its www alias, or an unrelated name.
func HostLabel(host, rootDomain string) string {
	if rootDomain == "" {
		return ""
	}
	host = strings.ToLower(host)
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	suffix := "." + strings.ToLower(strings.TrimPrefix(rootDomain, "."))
	if !strings.HasSuffix(host, suffix) {
		return ""
	}
	label := strings.TrimSuffix(host, suffix)
	if label == "" || label == "www" || strings.Contains(label, ".") {
		return ""
	}
	return label
}
