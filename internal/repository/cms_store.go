package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/cms"
	"github.com/galihcitta/confras/internal/models"
)

// CMSStore keeps every record in the headless content backend.
type CMSStore struct {
	client *cms.Client
	logger *zap.Logger
}

func NewCMSStore(client *cms.Client, logger *zap.Logger) *CMSStore {
	return &CMSStore{
		client: client,
		logger: logger,
	}
}

func (s *CMSStore) TenantBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	return s.tenantBy(ctx, "slug", slug)
}

func (s *CMSStore) TenantByEmail(ctx context.Context, email string) (*models.Tenant, error) {
	return s.tenantBy(ctx, "email", email)
}

func (s *CMSStore) TenantByID(ctx context.Context, id models.ID) (*models.Tenant, error) {
	return s.tenantBy(ctx, "id", id.String())
}

func (s *CMSStore) tenantBy(ctx context.Context, field, value string) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := s.first(ctx, models.CollectionTenants, field, value, &tenant); err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (s *CMSStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	_, err := s.TenantBySlug(ctx, slug)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *CMSStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	data, err := s.client.CreateItem(ctx, string(models.CollectionTenants), tenant)
	if err != nil {
		return mapCMSError(err)
	}
	if err := decodeCreated(data, tenant); err != nil {
		return err
	}

	s.logger.Info("Tenant created", zap.String("id", tenant.ID.String()), zap.String("slug", tenant.Slug))
	return nil
}

func (s *CMSStore) UpdateTenantPlan(ctx context.Context, id models.ID, plan models.Plan, guestLimit int) error {
	patch := map[string]interface{}{"plan": plan, "guest_limit": guestLimit}
	if _, err := s.client.UpdateItem(ctx, string(models.CollectionTenants), id.String(), patch); err != nil {
		return mapCMSError(err)
	}
	return nil
}

func (s *CMSStore) UpdateTenantPassword(ctx context.Context, id models.ID, passwordHash string) error {
	patch := map[string]string{"password_hash": passwordHash}
	if _, err := s.client.UpdateItem(ctx, string(models.CollectionTenants), id.String(), patch); err != nil {
		return mapCMSError(err)
	}
	return nil
}

func (s *CMSStore) Collection(ctx context.Context, collection models.Collection, tenantID models.ID, q Query) ([]json.RawMessage, error) {
	if tenantID.IsZero() {
		return nil, fmt.Errorf("collection %s: tenant id is required", collection)
	}

	params := url.Values{}
	cms.Eq(params, tenantField, tenantID.String())
	for _, f := range scopedFilters(q) {
		cms.Eq(params, f.Field, f.Value)
	}
	if len(q.Sort) > 0 {
		params.Set("sort", strings.Join(q.Sort, ","))
	}
	// Directus pages at 100 rows when no limit is given; -1 lifts it.
	limit := -1
	if q.Limit > 0 {
		limit = q.Limit
	}
	params.Set("limit", strconv.Itoa(limit))

	items, err := s.client.ListItems(ctx, string(collection), params)
	if err != nil {
		return nil, mapCMSError(err)
	}
	return items, nil
}

func (s *CMSStore) GuestByID(ctx context.Context, id models.ID) (*models.Guest, error) {
	var guest models.Guest
	if err := s.first(ctx, models.CollectionGuests, "id", id.String(), &guest); err != nil {
		return nil, err
	}
	return &guest, nil
}

func (s *CMSStore) CreateGuest(ctx context.Context, guest *models.Guest) error {
	data, err := s.client.CreateItem(ctx, string(models.CollectionGuests), guest)
	if err != nil {
		return mapCMSError(err)
	}
	return decodeCreated(data, guest)
}

func (s *CMSStore) UpdateGuestStatus(ctx context.Context, id models.ID, status models.GuestStatus) error {
	patch := map[string]models.GuestStatus{"status": status}
	if _, err := s.client.UpdateItem(ctx, string(models.CollectionGuests), id.String(), patch); err != nil {
		return mapCMSError(err)
	}
	return nil
}

func (s *CMSStore) UploadFile(ctx context.Context, upload Upload) (string, error) {
	id, err := s.client.UploadFile(ctx, upload.Filename, upload.ContentType, upload.Content)
	if err != nil {
		return "", mapCMSError(err)
	}
	return id, nil
}

func (s *CMSStore) ReadFile(ctx context.Context, id string) (*StoredFile, error) {
	f, err := s.client.DownloadFile(ctx, id)
	if err != nil {
		return nil, mapCMSError(err)
	}
	return &StoredFile{ContentType: f.ContentType, Data: f.Data}, nil
}

func (s *CMSStore) HealthCheck(ctx context.Context) error {
	return mapCMSError(s.client.Ping(ctx))
}

func (s *CMSStore) Close() {}

// first decodes the single record of collection whose field equals value.
func (s *CMSStore) first(ctx context.Context, collection models.Collection, field, value string, dst interface{}) error {
	params := url.Values{}
	cms.Eq(params, field, value)
	params.Set("limit", "1")

	items, err := s.client.ListItems(ctx, string(collection), params)
	if err != nil {
		return mapCMSError(err)
	}
	if len(items) == 0 {
		return ErrNotFound
	}
	if err := json.Unmarshal(items[0], dst); err != nil {
		return fmt.Errorf("failed to decode %s record: %w", collection, err)
	}
	return nil
}

func decodeCreated(data json.RawMessage, dst interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode created record: %w", err)
	}
	return nil
}

func mapCMSError(err error) error {
	if err == nil {
		return nil
	}

	var backendErr *cms.Error
	switch {
	case errors.As(err, &backendErr):
		if backendErr.StatusCode == 404 {
			return ErrNotFound
		}
		// unique constraint violations come back as a 400 mentioning the field
		if backendErr.StatusCode == 400 && strings.Contains(strings.ToLower(backendErr.Message), "unique") {
			return ErrConflict
		}
		return &BackendError{StatusCode: backendErr.StatusCode, Message: backendErr.Message}
	case errors.Is(err, cms.ErrUnreachable):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
