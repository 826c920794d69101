package guest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/models"
	"github.com/galihcitta/confras/internal/repository"
	"github.com/galihcitta/confras/internal/repository/repotest"
	"github.com/galihcitta/confras/internal/services/page"
)

type MockNotifier struct {
	mutex  sync.Mutex
	guests []string
	links  []string
}

func (m *MockNotifier) GuestSubmitted(ctx context.Context, tenant *models.Tenant, guest *models.Guest, adminURL string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.guests = append(m.guests, guest.Name)
	m.links = append(m.links, adminURL)
	return nil
}

type staticLinks struct{}

func (staticLinks) AdminURL(email string) string {
	return "https://confras.example/admin?email=" + email
}

type GuestServiceTestSuite struct {
	suite.Suite
	store    *repotest.Store
	notifier *MockNotifier
	service  *Service
	tenant   *models.Tenant
	other    *models.Tenant
}

func (suite *GuestServiceTestSuite) SetupTest() {
	suite.store = repotest.NewStore()
	suite.notifier = &MockNotifier{}
	suite.service = NewService(suite.store, page.NewService(suite.store, zap.NewNop()), suite.notifier, staticLinks{}, zap.NewNop())

	suite.tenant = suite.store.AddTenant(models.Tenant{
		Slug: "padariaboa", Email: "dono@padaria.com", GuestLimit: 2, Status: models.TenantStatusActive,
	})
	suite.other = suite.store.AddTenant(models.Tenant{
		Slug: "outra", Email: "outra@festa.com", GuestLimit: 20, Status: models.TenantStatusActive,
	})
}

func (suite *GuestServiceTestSuite) receipt() *repository.Upload {
	return &repository.Upload{
		Filename:    "pix.png",
		ContentType: "image/png",
		Content:     strings.NewReader("fake-png"),
	}
}

func (suite *GuestServiceTestSuite) TestSubmitWithReceipt() {
	guest, err := suite.service.Submit(context.Background(), SubmitRequest{
		Slug: "padariaboa", Name: " Ana ", Contact: "11 99999-0000", Receipt: suite.receipt(),
	})
	suite.Require().NoError(err)

	suite.Equal("Ana", guest.Name)
	suite.Equal(models.GuestPending, guest.Status)
	suite.Equal(suite.tenant.ID, guest.TenantID)
	suite.NotEmpty(guest.Proof)

	stored := suite.store.Guest(guest.ID)
	suite.Require().NotNil(stored)
	suite.Equal(guest.Proof, stored.Proof)
	suite.Equal(1, suite.store.FileCount())
	suite.Equal([]string{"Ana"}, suite.notifier.guests)
	suite.Equal("https://confras.example/admin?email=dono@padaria.com", suite.notifier.links[0])
}

func (suite *GuestServiceTestSuite) TestSubmitWithoutReceipt() {
	guest, err := suite.service.Submit(context.Background(), SubmitRequest{Slug: "padariaboa", Name: "Bia"})
	suite.Require().NoError(err)

	suite.Empty(guest.Proof)
	suite.Zero(suite.store.CallCount("UploadFile"))
	suite.Equal(1, suite.store.GuestCount())
}

func (suite *GuestServiceTestSuite) TestSubmitUploadFailureCreatesNoGuest() {
	suite.store.SetError("UploadFile", repository.ErrUnavailable)

	_, err := suite.service.Submit(context.Background(), SubmitRequest{
		Slug: "padariaboa", Name: "Ana", Receipt: suite.receipt(),
	})

	suite.ErrorIs(err, ErrUploadFailed)
	suite.ErrorIs(err, repository.ErrUnavailable)
	suite.Zero(suite.store.GuestCount())
	suite.Zero(suite.store.CallCount("CreateGuest"))
	suite.Empty(suite.notifier.guests)
}

func (suite *GuestServiceTestSuite) TestSubmitUnknownTenant() {
	_, err := suite.service.Submit(context.Background(), SubmitRequest{Slug: "ghost", Name: "Ana"})

	suite.ErrorIs(err, page.ErrTenantNotFound)
	suite.Zero(suite.store.GuestCount())
}

func (suite *GuestServiceTestSuite) TestSubmitRequiresName() {
	_, err := suite.service.Submit(context.Background(), SubmitRequest{Slug: "padariaboa", Name: "  "})

	suite.ErrorIs(err, ErrNameRequired)
	suite.Zero(suite.store.CallCount("TenantBySlug"))
}

func (suite *GuestServiceTestSuite) TestSubmitRejectedAtLimit() {
	suite.store.AddGuest(models.Guest{TenantID: suite.tenant.ID, Name: "A", Status: models.GuestConfirmed})
	suite.store.AddGuest(models.Guest{TenantID: suite.tenant.ID, Name: "B", Status: models.GuestPending})

	_, err := suite.service.Submit(context.Background(), SubmitRequest{Slug: "padariaboa", Name: "C"})
	suite.NoError(err, "pending guests do not count toward the limit")

	suite.store.AddGuest(models.Guest{TenantID: suite.tenant.ID, Name: "D", Status: models.GuestConfirmed})
	_, err = suite.service.Submit(context.Background(), SubmitRequest{Slug: "padariaboa", Name: "E", Receipt: suite.receipt()})

	suite.ErrorIs(err, ErrLimitReached)
	suite.Zero(suite.store.CallCount("UploadFile"))
}

func (suite *GuestServiceTestSuite) TestSubmitLimitCheckIsAdvisory() {
	suite.store.SetCollectionError(models.CollectionGuests, repository.ErrUnavailable)

	_, err := suite.service.Submit(context.Background(), SubmitRequest{Slug: "padariaboa", Name: "Ana"})

	suite.NoError(err)
}

func (suite *GuestServiceTestSuite) TestApproveIsIdempotent() {
	pending := suite.store.AddGuest(models.Guest{TenantID: suite.tenant.ID, Name: "Ana", Status: models.GuestPending})

	guest, err := suite.service.Approve(context.Background(), pending.ID, models.GuestConfirmed, "")
	suite.Require().NoError(err)
	suite.Equal(models.GuestConfirmed, guest.Status)
	suite.Equal(models.GuestConfirmed, suite.store.Guest(pending.ID).Status)

	guest, err = suite.service.Approve(context.Background(), pending.ID, "", "")
	suite.Require().NoError(err)
	suite.Equal(models.GuestConfirmed, guest.Status)
	suite.Equal(1, suite.store.CallCount("UpdateGuestStatus"))
}

func (suite *GuestServiceTestSuite) TestApproveIgnoresLimit() {
	suite.store.AddGuest(models.Guest{TenantID: suite.tenant.ID, Name: "A", Status: models.GuestConfirmed})
	suite.store.AddGuest(models.Guest{TenantID: suite.tenant.ID, Name: "B", Status: models.GuestConfirmed})
	pending := suite.store.AddGuest(models.Guest{TenantID: suite.tenant.ID, Name: "C", Status: models.GuestPending})

	_, err := suite.service.Approve(context.Background(), pending.ID, models.GuestConfirmed, "")

	suite.NoError(err)
}

func (suite *GuestServiceTestSuite) TestApproveRejectsOtherStatuses() {
	pending := suite.store.AddGuest(models.Guest{TenantID: suite.tenant.ID, Name: "Ana", Status: models.GuestPending})

	_, err := suite.service.Approve(context.Background(), pending.ID, "REJECTED", "")

	suite.ErrorIs(err, ErrInvalidStatus)
	suite.Equal(models.GuestPending, suite.store.Guest(pending.ID).Status)
}

func (suite *GuestServiceTestSuite) TestApproveUnknownGuest() {
	_, err := suite.service.Approve(context.Background(), "404", models.GuestConfirmed, "")

	suite.ErrorIs(err, ErrGuestNotFound)
}

func (suite *GuestServiceTestSuite) TestApproveScopedToTenant() {
	guest := suite.store.AddGuest(models.Guest{TenantID: suite.other.ID, Name: "Ana", Status: models.GuestPending})

	_, err := suite.service.Approve(context.Background(), guest.ID, models.GuestConfirmed, suite.tenant.ID)
	suite.ErrorIs(err, ErrForbidden)
	suite.Equal(models.GuestPending, suite.store.Guest(guest.ID).Status)

	_, err = suite.service.Approve(context.Background(), guest.ID, models.GuestConfirmed, suite.other.ID)
	suite.NoError(err)
}

func (suite *GuestServiceTestSuite) TestApproveBackendFailure() {
	guest := suite.store.AddGuest(models.Guest{TenantID: suite.tenant.ID, Name: "Ana", Status: models.GuestPending})
	suite.store.SetError("UpdateGuestStatus", &repository.BackendError{StatusCode: 403, Message: "forbidden"})

	_, err := suite.service.Approve(context.Background(), guest.ID, models.GuestConfirmed, "")

	var backendErr *repository.BackendError
	suite.True(errors.As(err, &backendErr))
	suite.Equal(403, backendErr.StatusCode)
}

func TestGuestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(GuestServiceTestSuite))
}
