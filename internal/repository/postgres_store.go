package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/models"
)

const (
	pgUniqueViolation = "23505"
	pgInvalidTextRepr = "22P02"
	tenantColumns     = `id::text, slug, company_name, email, pix_key, plan, guest_limit, status, template, password_hash, date_created`
	guestColumns      = `id::text, tenant_id::text, name, contact, proof, status, date_created`
)

// collectionColumns lists, per tenant-scoped collection, the columns that can
// be returned, filtered on and sorted by.
var collectionColumns = map[models.Collection][]string{
	models.CollectionProducts: {"id", "tenant_id", "name", "description", "price", "image_url", "date_created"},
	models.CollectionSections: {"id", "tenant_id", "type", "title", "content", "sort", "date_created"},
	models.CollectionGuests:   {"id", "tenant_id", "name", "contact", "proof", "status", "date_created"},
	models.CollectionSettings: {"id", "tenant_id", "title", "description", "goal_amount", "pix_key"},
}

// PostgresStore is the self-hosted system of record.
type PostgresStore struct {
	db     *Database
	logger *zap.Logger
}

func NewPostgresStore(db *Database, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

func (s *PostgresStore) TenantBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	return s.tenantWhere(ctx, "slug = $1", slug)
}

func (s *PostgresStore) TenantByEmail(ctx context.Context, email string) (*models.Tenant, error) {
	return s.tenantWhere(ctx, "lower(email) = lower($1)", email)
}

func (s *PostgresStore) TenantByID(ctx context.Context, id models.ID) (*models.Tenant, error) {
	if _, err := uuid.Parse(id.String()); err != nil {
		return nil, ErrNotFound
	}
	return s.tenantWhere(ctx, "id = $1::text::uuid", id.String())
}

func (s *PostgresStore) tenantWhere(ctx context.Context, where string, arg interface{}) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE ` + where + ` ORDER BY date_created LIMIT 1`

	var t models.Tenant
	var id, plan string
	err := s.db.Pool().QueryRow(ctx, query, arg).Scan(
		&id, &t.Slug, &t.Name, &t.Email, &t.PixKey, &plan,
		&t.GuestLimit, &t.Status, &t.Template, &t.PasswordHash, &t.CreatedAt,
	)
	if err != nil {
		return nil, mapPgError(err)
	}
	t.ID = models.ID(id)
	t.Plan = models.Plan(plan)
	return &t, nil
}

func (s *PostgresStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := s.db.Pool().QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tenants WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, mapPgError(err)
	}
	return exists, nil
}

func (s *PostgresStore) CreateTenant(ctx context.Context, t *models.Tenant) error {
	id := uuid.New()
	query := `
		INSERT INTO tenants (id, slug, company_name, email, pix_key, plan, guest_limit, status, template, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING date_created`

	err := s.db.Pool().QueryRow(ctx, query,
		id, t.Slug, t.Name, t.Email, t.PixKey, string(t.Plan), t.GuestLimit, t.Status, t.Template, t.PasswordHash,
	).Scan(&t.CreatedAt)
	if err != nil {
		s.logger.Error("Failed to create tenant", zap.Error(err), zap.String("slug", t.Slug))
		return mapPgError(err)
	}

	t.ID = models.ID(id.String())
	s.logger.Info("Tenant created", zap.String("id", t.ID.String()), zap.String("slug", t.Slug))
	return nil
}

func (s *PostgresStore) UpdateTenantPlan(ctx context.Context, id models.ID, plan models.Plan, guestLimit int) error {
	return s.update(ctx, id, `UPDATE tenants SET plan = $2, guest_limit = $3 WHERE id = $1::text::uuid`, string(plan), guestLimit)
}

func (s *PostgresStore) UpdateTenantPassword(ctx context.Context, id models.ID, passwordHash string) error {
	return s.update(ctx, id, `UPDATE tenants SET password_hash = $2 WHERE id = $1::text::uuid`, passwordHash)
}

func (s *PostgresStore) Collection(ctx context.Context, collection models.Collection, tenantID models.ID, q Query) ([]json.RawMessage, error) {
	query, args, err := buildCollectionQuery(collection, tenantID, q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var items []json.RawMessage
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", collection, err)
		}
		items = append(items, json.RawMessage(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return items, nil
}

// buildCollectionQuery renders a tenant-scoped select over an allowlisted
// table. Every identifier comes from collectionColumns, never from input.
func buildCollectionQuery(collection models.Collection, tenantID models.ID, q Query) (string, []interface{}, error) {
	columns, ok := collectionColumns[collection]
	if !ok {
		return "", nil, fmt.Errorf("unknown collection %q", collection)
	}
	if tenantID.IsZero() {
		return "", nil, fmt.Errorf("collection %s: tenant id is required", collection)
	}
	allowed := make(map[string]bool, len(columns))
	for _, c := range columns {
		allowed[c] = true
	}

	args := []interface{}{tenantID.String()}
	where := []string{"tenant_id::text = $1"}
	for _, f := range scopedFilters(q) {
		if !allowed[f.Field] {
			return "", nil, fmt.Errorf("collection %s: cannot filter on %q", collection, f.Field)
		}
		args = append(args, f.Value)
		where = append(where, fmt.Sprintf("%s::text = $%d", f.Field, len(args)))
	}

	var order []string
	for _, field := range q.Sort {
		dir := "ASC"
		if strings.HasPrefix(field, "-") {
			dir = "DESC"
			field = field[1:]
		}
		if !allowed[field] {
			return "", nil, fmt.Errorf("collection %s: cannot sort on %q", collection, field)
		}
		order = append(order, fmt.Sprintf("%s %s NULLS LAST", field, dir))
	}
	if len(order) == 0 {
		order = append(order, "id")
	}

	inner := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
		strings.Join(columns, ", "), collection, strings.Join(where, " AND "), strings.Join(order, ", "))
	if q.Limit > 0 {
		inner += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	return "SELECT row_to_json(t)::text FROM (" + inner + ") t", args, nil
}

func (s *PostgresStore) GuestByID(ctx context.Context, id models.ID) (*models.Guest, error) {
	if _, err := uuid.Parse(id.String()); err != nil {
		return nil, ErrNotFound
	}

	var g models.Guest
	var guestID, tenantID, status string
	err := s.db.Pool().QueryRow(ctx, `SELECT `+guestColumns+` FROM vaquinha_guests WHERE id = $1::text::uuid`, id.String()).Scan(
		&guestID, &tenantID, &g.Name, &g.Contact, &g.Proof, &status, &g.CreatedAt,
	)
	if err != nil {
		return nil, mapPgError(err)
	}
	g.ID = models.ID(guestID)
	g.TenantID = models.ID(tenantID)
	g.Status = models.GuestStatus(status)
	return &g, nil
}

func (s *PostgresStore) CreateGuest(ctx context.Context, g *models.Guest) error {
	id := uuid.New()
	query := `
		INSERT INTO vaquinha_guests (id, tenant_id, name, contact, proof, status)
		VALUES ($1, $2::text::uuid, $3, $4, $5, $6)
		RETURNING date_created`

	err := s.db.Pool().QueryRow(ctx, query, id, g.TenantID.String(), g.Name, g.Contact, g.Proof, string(g.Status)).Scan(&g.CreatedAt)
	if err != nil {
		s.logger.Error("Failed to create guest", zap.Error(err), zap.String("tenant_id", g.TenantID.String()))
		return mapPgError(err)
	}
	g.ID = models.ID(id.String())
	return nil
}

func (s *PostgresStore) UpdateGuestStatus(ctx context.Context, id models.ID, status models.GuestStatus) error {
	return s.update(ctx, id, `UPDATE vaquinha_guests SET status = $2 WHERE id = $1::text::uuid`, string(status))
}

func (s *PostgresStore) UploadFile(ctx context.Context, upload Upload) (string, error) {
	data, err := io.ReadAll(upload.Content)
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	id := uuid.New()
	_, err = s.db.Pool().Exec(ctx,
		`INSERT INTO files (id, filename, content_type, data) VALUES ($1, $2, $3, $4)`,
		id, upload.Filename, contentType, data)
	if err != nil {
		return "", mapPgError(err)
	}
	return id.String(), nil
}

func (s *PostgresStore) ReadFile(ctx context.Context, id string) (*StoredFile, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	var f StoredFile
	err := s.db.Pool().QueryRow(ctx, `SELECT content_type, data FROM files WHERE id = $1::text::uuid`, id).Scan(&f.ContentType, &f.Data)
	if err != nil {
		return nil, mapPgError(err)
	}
	return &f, nil
}

func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// update runs a single-row update keyed by id, bound as $1.
func (s *PostgresStore) update(ctx context.Context, id models.ID, query string, args ...interface{}) error {
	if _, err := uuid.Parse(id.String()); err != nil {
		return ErrNotFound
	}

	tag, err := s.db.Pool().Exec(ctx, query, append([]interface{}{id.String()}, args...)...)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func mapPgError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		case pgInvalidTextRepr:
			return ErrNotFound
		}
		return fmt.Errorf("database error: %w", err)
	}

	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return fmt.Errorf("database error: %w", err)
}
