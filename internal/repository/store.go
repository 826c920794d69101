package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/galihcitta/confras/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
	// ErrUnavailable means no backend endpoint could be reached at all.
	ErrUnavailable = errors.New("backend unavailable")
)

// BackendError is a definitive rejection from a reachable backend.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend rejected request (%d): %s", e.StatusCode, e.Message)
}

type Filter struct {
	Field string
	Value string
}

// Query narrows a collection fetch. The tenant restriction is not part of it;
// every Store applies that itself.
type Query struct {
	Filters []Filter
	Sort    []string
	Limit   int
}

// Upload is a file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

// StoredFile is a previously uploaded file.
type StoredFile struct {
	ContentType string
	Data        []byte
}

// Store is the system of record for tenants, guests and page content.
type Store interface {
	TenantBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	TenantByEmail(ctx context.Context, email string) (*models.Tenant, error)
	TenantByID(ctx context.Context, id models.ID) (*models.Tenant, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	UpdateTenantPlan(ctx context.Context, id models.ID, plan models.Plan, guestLimit int) error
	UpdateTenantPassword(ctx context.Context, id models.ID, passwordHash string) error

	// Collection returns the raw records of a tenant-scoped collection.
	Collection(ctx context.Context, collection models.Collection, tenantID models.ID, q Query) ([]json.RawMessage, error)

	GuestByID(ctx context.Context, id models.ID) (*models.Guest, error)
	CreateGuest(ctx context.Context, guest *models.Guest) error
	UpdateGuestStatus(ctx context.Context, id models.ID, status models.GuestStatus) error

	UploadFile(ctx context.Context, upload Upload) (string, error)
	ReadFile(ctx context.Context, id string) (*StoredFile, error)

	HealthCheck(ctx context.Context) error
	Close()
}

// scopedFilters drops any caller-supplied tenant restriction so the one
// injected by the store is the only one.
func scopedFilters(q Query) []Filter {
	out := make([]Filter, 0, len(q.Filters))
	for _, f := range q.Filters {
		if f.Field == tenantField {
			continue
		}
		out = append(out, f)
	}
	return out
}

const tenantField = "tenant_id"
