// Package repotest provides an in-memory repository.Store for tests.
package repotest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/galihcitta/confras/internal/models"
	"github.com/galihcitta/confras/internal/repository"
)

// Store keeps every record in memory. Errors can be injected per method name
// and calls are counted so tests can assert that no write happened.
type Store struct {
	mutex     sync.RWMutex
	nextID    int
	tenants   map[models.ID]*models.Tenant
	guests    map[models.ID]*models.Guest
	guestIDs  []models.ID
	records   map[models.Collection][]json.RawMessage
	files     map[string]*repository.StoredFile
	calls     map[string]int
	errors    map[string]error
	lastQuery map[models.Collection]repository.Query
}

func NewStore() *Store {
	return &Store{
		tenants:   make(map[models.ID]*models.Tenant),
		guests:    make(map[models.ID]*models.Guest),
		records:   make(map[models.Collection][]json.RawMessage),
		files:     make(map[string]*repository.StoredFile),
		calls:     make(map[string]int),
		errors:    make(map[string]error),
		lastQuery: make(map[models.Collection]repository.Query),
	}
}

func (s *Store) SetError(method string, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.errors[method] = err
}

// SetCollectionError makes Collection fail for one collection only.
func (s *Store) SetCollectionError(collection models.Collection, err error) {
	s.SetError("Collection:"+string(collection), err)
}

func (s *Store) CallCount(method string) int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.calls[method]
}

func (s *Store) LastQuery(collection models.Collection) repository.Query {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastQuery[collection]
}

// AddTenant stores tenant as-is, assigning an id when it has none.
func (s *Store) AddTenant(tenant models.Tenant) *models.Tenant {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if tenant.ID.IsZero() {
		tenant.ID = s.newID()
	}
	s.tenants[tenant.ID] = &tenant
	return &tenant
}

func (s *Store) AddGuest(guest models.Guest) *models.Guest {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.putGuest(&guest)
	return &guest
}

// Seed appends v to a content collection. Raw JSON strings are stored
// unchanged so tests can seed malformed records.
func (s *Store) Seed(collection models.Collection, v interface{}) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var raw json.RawMessage
	switch r := v.(type) {
	case string:
		raw = json.RawMessage(r)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			panic(err)
		}
		raw = data
	}
	s.records[collection] = append(s.records[collection], raw)
}

func (s *Store) Tenant(id models.ID) *models.Tenant {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if t, ok := s.tenants[id]; ok {
		copied := *t
		return &copied
	}
	return nil
}

func (s *Store) Guest(id models.ID) *models.Guest {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if g, ok := s.guests[id]; ok {
		copied := *g
		return &copied
	}
	return nil
}

func (s *Store) GuestCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.guests)
}

func (s *Store) FileCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.files)
}

func (s *Store) TenantBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	return s.findTenant("TenantBySlug", func(t *models.Tenant) bool { return t.Slug == slug })
}

func (s *Store) TenantByEmail(ctx context.Context, email string) (*models.Tenant, error) {
	return s.findTenant("TenantByEmail", func(t *models.Tenant) bool { return t.Email == email })
}

func (s *Store) TenantByID(ctx context.Context, id models.ID) (*models.Tenant, error) {
	return s.findTenant("TenantByID", func(t *models.Tenant) bool { return t.ID == id })
}

func (s *Store) SlugExists(ctx context.Context, slug string) (bool, error) {
	_, err := s.findTenant("SlugExists", func(t *models.Tenant) bool { return t.Slug == slug })
	switch err {
	case nil:
		return true, nil
	case repository.ErrNotFound:
		return false, nil
	default:
		return false, err
	}
}

func (s *Store) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.record("CreateTenant"); err != nil {
		return err
	}
	for _, t := range s.tenants {
		if t.Slug == tenant.Slug {
			return repository.ErrConflict
		}
	}
	tenant.ID = s.newID()
	copied := *tenant
	s.tenants[tenant.ID] = &copied
	return nil
}

func (s *Store) UpdateTenantPlan(ctx context.Context, id models.ID, plan models.Plan, guestLimit int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.record("UpdateTenantPlan"); err != nil {
		return err
	}
	t, ok := s.tenants[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.Plan = plan
	t.GuestLimit = guestLimit
	return nil
}

func (s *Store) UpdateTenantPassword(ctx context.Context, id models.ID, passwordHash string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.record("UpdateTenantPassword"); err != nil {
		return err
	}
	t, ok := s.tenants[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.PasswordHash = passwordHash
	return nil
}

func (s *Store) Collection(ctx context.Context, collection models.Collection, tenantID models.ID, q repository.Query) ([]json.RawMessage, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.record("Collection"); err != nil {
		return nil, err
	}
	if err := s.errors["Collection:"+string(collection)]; err != nil {
		return nil, err
	}
	if tenantID.IsZero() {
		return nil, fmt.Errorf("collection %s: tenant id is required", collection)
	}
	s.lastQuery[collection] = q

	source := s.records[collection]
	if collection == models.CollectionGuests {
		source = nil
		for _, id := range s.guestIDs {
			data, _ := json.Marshal(s.guests[id])
			source = append(source, data)
		}
	}

	var out []json.RawMessage
	for _, raw := range source {
		var fields map[string]interface{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			// Malformed seeds are returned to exercise decode failures.
			out = append(out, raw)
			continue
		}
		if fmt.Sprint(fields["tenant_id"]) != tenantID.String() || !matches(fields, q.Filters) {
			continue
		}
		out = append(out, raw)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) GuestByID(ctx context.Context, id models.ID) (*models.Guest, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.record("GuestByID"); err != nil {
		return nil, err
	}
	g, ok := s.guests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *g
	return &copied, nil
}

func (s *Store) CreateGuest(ctx context.Context, guest *models.Guest) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.record("CreateGuest"); err != nil {
		return err
	}
	guest.ID = ""
	s.putGuest(guest)
	return nil
}

func (s *Store) UpdateGuestStatus(ctx context.Context, id models.ID, status models.GuestStatus) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.record("UpdateGuestStatus"); err != nil {
		return err
	}
	g, ok := s.guests[id]
	if !ok {
		return repository.ErrNotFound
	}
	g.Status = status
	return nil
}

func (s *Store) UploadFile(ctx context.Context, upload repository.Upload) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.record("UploadFile"); err != nil {
		return "", err
	}
	data, err := io.ReadAll(upload.Content)
	if err != nil {
		return "", err
	}
	id := "file-" + s.newID().String()
	s.files[id] = &repository.StoredFile{ContentType: upload.ContentType, Data: data}
	return id, nil
}

func (s *Store) ReadFile(ctx context.Context, id string) (*repository.StoredFile, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.record("ReadFile"); err != nil {
		return nil, err
	}
	f, ok := s.files[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return f, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.record("HealthCheck")
}

func (s *Store) Close() {}

func (s *Store) findTenant(method string, match func(*models.Tenant) bool) (*models.Tenant, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.record(method); err != nil {
		return nil, err
	}
	for _, t := range s.tenants {
		if match(t) {
			copied := *t
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

// record counts a call and returns the injected error for method, if any.
// Callers hold the lock.
func (s *Store) record(method string) error {
	s.calls[method]++
	return s.errors[method]
}

func (s *Store) putGuest(guest *models.Guest) {
	if guest.ID.IsZero() {
		guest.ID = s.newID()
	}
	if _, exists := s.guests[guest.ID]; !exists {
		s.guestIDs = append(s.guestIDs, guest.ID)
	}
	copied := *guest
	s.guests[guest.ID] = &copied
}

func (s *Store) newID() models.ID {
	s.nextID++
	return models.ID(strconv.Itoa(s.nextID))
}

func matches(fields map[string]interface{}, filters []repository.Filter) bool {
	for _, f := range filters {
		if fmt.Sprint(fields[f.Field]) != f.Value {
			return false
		}
	}
	return true
}

var _ repository.Store = (*Store)(nil)
