package repository

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/cms"
	"github.com/galihcitta/confras/internal/models"
)

type CMSStoreTestSuite struct {
	suite.Suite
	logger   *zap.Logger
	server   *httptest.Server
	lastURL  *url.URL
	lastBody string
	status   int
	response string
	store    *CMSStore
}

func (s *CMSStoreTestSuite) SetupTest() {
	var err error
	s.logger, err = zap.NewDevelopment()
	s.Require().NoError(err)

	s.status = http.StatusOK
	s.response = `{"data":[]}`
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.lastURL = r.URL
		body, _ := io.ReadAll(r.Body)
		s.lastBody = string(body)
		w.WriteHeader(s.status)
		_, _ = io.WriteString(w, s.response)
	}))

	client, err := cms.NewClient(cms.Config{BaseURLs: []string{s.server.URL}, Timeout: time.Second}, s.logger)
	s.Require().NoError(err)
	s.store = NewCMSStore(client, s.logger)
}

func (s *CMSStoreTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *CMSStoreTestSuite) TestTenantBySlug() {
	s.response = `{"data":[{"id":42,"slug":"padariaboa","company_name":"Padaria Boa","plan":"free","guest_limit":20,"status":"active"}]}`

	tenant, err := s.store.TenantBySlug(context.Background(), "padariaboa")
	s.Require().NoError(err)
	s.Equal(models.ID("42"), tenant.ID)
	s.Equal("Padaria Boa", tenant.Name)
	s.Equal("/items/tenants", s.lastURL.Path)
	s.Equal("padariaboa", s.lastURL.Query().Get("filter[slug][_eq]"))
	s.Equal("1", s.lastURL.Query().Get("limit"))
}

func (s *CMSStoreTestSuite) TestTenantBySlug_NotFound() {
	_, err := s.store.TenantBySlug(context.Background(), "ghost")
	s.ErrorIs(err, ErrNotFound)
}

func (s *CMSStoreTestSuite) TestSlugExists() {
	exists, err := s.store.SlugExists(context.Background(), "ghost")
	s.Require().NoError(err)
	s.False(exists)

	s.response = `{"data":[{"id":1,"slug":"taken"}]}`
	exists, err = s.store.SlugExists(context.Background(), "taken")
	s.Require().NoError(err)
	s.True(exists)
}

func (s *CMSStoreTestSuite) TestCollection_AlwaysScopesToTenant() {
	q := Query{
		Filters: []Filter{{Field: "status", Value: "CONFIRMED"}, {Field: "tenant_id", Value: "99"}},
		Sort:    []string{"sort", "-date_created"},
		Limit:   10,
	}

	_, err := s.store.Collection(context.Background(), models.CollectionGuests, "42", q)
	s.Require().NoError(err)

	values := s.lastURL.Query()
	s.Equal("/items/vaquinha_guests", s.lastURL.Path)
	s.Equal([]string{"42"}, values["filter[tenant_id][_eq]"])
	s.Equal("CONFIRMED", values.Get("filter[status][_eq]"))
	s.Equal("sort,-date_created", values.Get("sort"))
	s.Equal("10", values.Get("limit"))
}

func (s *CMSStoreTestSuite) TestCollection_UnboundedWithoutLimit() {
	_, err := s.store.Collection(context.Background(), models.CollectionGuests, "42", Query{
		Filters: []Filter{{Field: "status", Value: "CONFIRMED"}},
	})
	s.Require().NoError(err)
	s.Equal("-1", s.lastURL.Query().Get("limit"))
}

func (s *CMSStoreTestSuite) TestCollection_RequiresTenant() {
	_, err := s.store.Collection(context.Background(), models.CollectionProducts, "", Query{})
	s.Error(err)
	s.Nil(s.lastURL)
}

func (s *CMSStoreTestSuite) TestCreateTenant_DecodesAssignedID() {
	s.response = `{"data":{"id":7,"slug":"festa","company_name":"Festa"}}`
	tenant := &models.Tenant{Slug: "festa", Name: "Festa", PasswordHash: "hash"}

	s.Require().NoError(s.store.CreateTenant(context.Background(), tenant))
	s.Equal(models.ID("7"), tenant.ID)
	s.NotContains(s.lastBody, `"id"`)
	s.Contains(s.lastBody, `"password_hash":"hash"`)
}

func (s *CMSStoreTestSuite) TestCreateTenant_UniqueViolation() {
	s.status = http.StatusBadRequest
	s.response = `{"errors":[{"message":"Value for field \"slug\" in collection \"tenants\" has to be unique."}]}`

	err := s.store.CreateTenant(context.Background(), &models.Tenant{Slug: "festa"})
	s.ErrorIs(err, ErrConflict)
}

func (s *CMSStoreTestSuite) TestBackendRejectionPassesThrough() {
	s.status = http.StatusForbidden
	s.response = `{"errors":[{"message":"You don't have permission to access this."}]}`

	_, err := s.store.TenantBySlug(context.Background(), "x")
	var backendErr *BackendError
	s.Require().True(errors.As(err, &backendErr))
	s.Equal(http.StatusForbidden, backendErr.StatusCode)
	s.Contains(backendErr.Message, "permission")
}

func (s *CMSStoreTestSuite) TestUnreachableBackend() {
	s.server.Close()

	_, err := s.store.TenantBySlug(context.Background(), "x")
	s.ErrorIs(err, ErrUnavailable)
}

func (s *CMSStoreTestSuite) TestUpdateGuestStatus() {
	s.response = `{"data":{"id":3,"status":"CONFIRMED"}}`

	s.Require().NoError(s.store.UpdateGuestStatus(context.Background(), "3", models.GuestConfirmed))
	s.Equal("/items/vaquinha_guests/3", s.lastURL.Path)
	s.JSONEq(`{"status":"CONFIRMED"}`, s.lastBody)
}

func (s *CMSStoreTestSuite) TestUploadFile() {
	s.response = `{"data":{"id":"file-1"}}`

	id, err := s.store.UploadFile(context.Background(), Upload{Filename: "r.png", ContentType: "image/png", Content: strings.NewReader("x")})
	s.Require().NoError(err)
	s.Equal("file-1", id)
}

func TestCMSStoreTestSuite(t *testing.T) {
	suite.Run(t, new(CMSStoreTestSuite))
}
