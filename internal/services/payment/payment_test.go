package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/models"
	"github.com/galihcitta/confras/internal/repository"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	args := m.Called(ctx, req)
	if c := args.Get(0); c != nil {
		return c.(*Checkout), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) GetPayment(ctx context.Context, paymentID string) (*PaymentInfo, error) {
	args := m.Called(ctx, paymentID)
	if p := args.Get(0); p != nil {
		return p.(*PaymentInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) Name() string {
	return "mock"
}

type MockPlanApplier struct {
	mock.Mock
}

func (m *MockPlanApplier) ApplyPlan(ctx context.Context, tenantID models.ID, plan models.Plan, guestLimit int) error {
	args := m.Called(ctx, tenantID, plan, guestLimit)
	return args.Error(0)
}

func defaultTiers(t *testing.T) *Tiers {
	tiers, err := NewTiers([]TierSpec{
		{Plan: "pro", Price: "29.99", GuestLimit: 500},
		{Plan: "plus", Price: "9.99", GuestLimit: 50},
	}, 20)
	require.NoError(t, err)
	return tiers
}

type WebhookTestSuite struct {
	suite.Suite
	gateway   *MockGateway
	plans     *MockPlanApplier
	processor *WebhookProcessor
}

func (suite *WebhookTestSuite) SetupTest() {
	suite.gateway = new(MockGateway)
	suite.plans = new(MockPlanApplier)
	suite.processor = NewWebhookProcessor(suite.gateway, defaultTiers(suite.T()), suite.plans, zap.NewNop())
}

func (suite *WebhookTestSuite) TestApprovedPaymentUpgradesTenant() {
	ctx := context.Background()
	suite.gateway.On("GetPayment", ctx, "123").Return(&PaymentInfo{
		ID:                "123",
		Status:            StatusApproved,
		Amount:            decimal.RequireFromString("9.99"),
		ExternalReference: "42",
	}, nil)
	suite.plans.On("ApplyPlan", ctx, models.ID("42"), models.Plan("plus"), 50).Return(nil)

	outcome, err := suite.processor.Process(ctx, "123")

	suite.NoError(err)
	suite.Equal(OutcomeApplied, outcome)
	suite.plans.AssertExpectations(suite.T())
}

func (suite *WebhookTestSuite) TestLargerAmountPicksHighestTier() {
	ctx := context.Background()
	suite.gateway.On("GetPayment", ctx, "7").Return(&PaymentInfo{
		Status:            StatusApproved,
		Amount:            decimal.RequireFromString("35"),
		ExternalReference: "9",
	}, nil)
	suite.plans.On("ApplyPlan", ctx, models.ID("9"), models.Plan("pro"), 500).Return(nil)

	outcome, err := suite.processor.Process(ctx, "7")

	suite.NoError(err)
	suite.Equal(OutcomeApplied, outcome)
}

func (suite *WebhookTestSuite) TestPendingPaymentIsIgnored() {
	ctx := context.Background()
	suite.gateway.On("GetPayment", ctx, "123").Return(&PaymentInfo{
		Status:            "pending",
		Amount:            decimal.RequireFromString("9.99"),
		ExternalReference: "42",
	}, nil)

	outcome, err := suite.processor.Process(ctx, "123")

	suite.NoError(err)
	suite.Equal(OutcomeIgnored, outcome)
	suite.plans.AssertNotCalled(suite.T(), "ApplyPlan", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *WebhookTestSuite) TestAmountBelowEveryTierIsIgnored() {
	ctx := context.Background()
	suite.gateway.On("GetPayment", ctx, "1").Return(&PaymentInfo{
		Status:            StatusApproved,
		Amount:            decimal.RequireFromString("5"),
		ExternalReference: "42",
	}, nil)

	outcome, err := suite.processor.Process(ctx, "1")

	suite.NoError(err)
	suite.Equal(OutcomeIgnored, outcome)
	suite.plans.AssertNotCalled(suite.T(), "ApplyPlan", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *WebhookTestSuite) TestMissingReferenceIsIgnored() {
	ctx := context.Background()
	suite.gateway.On("GetPayment", ctx, "1").Return(&PaymentInfo{
		Status: StatusApproved,
		Amount: decimal.RequireFromString("9.99"),
	}, nil)

	outcome, err := suite.processor.Process(ctx, "1")

	suite.NoError(err)
	suite.Equal(OutcomeIgnored, outcome)
}

func (suite *WebhookTestSuite) TestUnknownTenantIsIgnored() {
	ctx := context.Background()
	suite.gateway.On("GetPayment", ctx, "1").Return(&PaymentInfo{
		Status:            StatusApproved,
		Amount:            decimal.RequireFromString("9.99"),
		ExternalReference: "404",
	}, nil)
	suite.plans.On("ApplyPlan", ctx, models.ID("404"), models.Plan("plus"), 50).Return(repository.ErrNotFound)

	outcome, err := suite.processor.Process(ctx, "1")

	suite.NoError(err)
	suite.Equal(OutcomeIgnored, outcome)
}

func (suite *WebhookTestSuite) TestLatePaymentForSmallerTierIsIgnored() {
	ctx := context.Background()
	suite.gateway.On("GetPayment", ctx, "1").Return(&PaymentInfo{
		Status:            StatusApproved,
		Amount:            decimal.RequireFromString("9.99"),
		ExternalReference: "42",
	}, nil)
	suite.plans.On("ApplyPlan", ctx, models.ID("42"), models.Plan("plus"), 50).Return(ErrPlanNotUpgraded)

	outcome, err := suite.processor.Process(ctx, "1")

	suite.NoError(err)
	suite.Equal(OutcomeIgnored, outcome)
}

func (suite *WebhookTestSuite) TestProviderFailureIsReported() {
	ctx := context.Background()
	suite.gateway.On("GetPayment", ctx, "1").Return(nil, errors.New("connection refused"))

	_, err := suite.processor.Process(ctx, "1")

	suite.ErrorIs(err, ErrVerificationFailed)
}

func (suite *WebhookTestSuite) TestInvalidPaymentIDIsIgnored() {
	ctx := context.Background()
	suite.gateway.On("GetPayment", ctx, "abc").Return(nil, ErrInvalidPaymentID)

	outcome, err := suite.processor.Process(ctx, "abc")

	suite.NoError(err)
	suite.Equal(OutcomeIgnored, outcome)
}

func (suite *WebhookTestSuite) TestStoreFailureIsReturned() {
	ctx := context.Background()
	suite.gateway.On("GetPayment", ctx, "1").Return(&PaymentInfo{
		Status:            StatusApproved,
		Amount:            decimal.RequireFromString("9.99"),
		ExternalReference: "42",
	}, nil)
	suite.plans.On("ApplyPlan", ctx, models.ID("42"), models.Plan("plus"), 50).Return(repository.ErrUnavailable)

	_, err := suite.processor.Process(ctx, "1")

	suite.ErrorIs(err, repository.ErrUnavailable)
}

func TestWebhookTestSuite(t *testing.T) {
	suite.Run(t, new(WebhookTestSuite))
}

func TestTiers(t *testing.T) {
	tiers := defaultTiers(t)

	tier, ok := tiers.ForAmount(decimal.RequireFromString("29.99"))
	require.True(t, ok)
	assert.Equal(t, models.Plan("pro"), tier.Plan)

	tier, ok = tiers.ForAmount(decimal.RequireFromString("10"))
	require.True(t, ok)
	assert.Equal(t, models.Plan("plus"), tier.Plan)

	_, ok = tiers.ForAmount(decimal.RequireFromString("9.98"))
	assert.False(t, ok)

	tier, ok = tiers.ByPlan("pro")
	require.True(t, ok)
	assert.Equal(t, 500, tier.GuestLimit)
	assert.True(t, tier.Price.Equal(decimal.RequireFromString("29.99")))

	assert.False(t, tiers.IsPaid("free"))
	assert.Equal(t, 20, tiers.FreeGuestLimit())
}

func TestNewTiers_RejectsBadAmounts(t *testing.T) {
	_, err := NewTiers([]TierSpec{{Plan: "plus", Price: "nine", GuestLimit: 50}}, 20)
	assert.Error(t, err)

	_, err = NewTiers([]TierSpec{{Plan: "plus", Price: "9.99"}}, 20)
	assert.Error(t, err)
}

type fakePreferences struct {
	request preference.Request
}

func (f *fakePreferences) Create(_ context.Context, request preference.Request) (*preference.Response, error) {
	f.request = request
	return &preference.Response{ID: "pref-1", InitPoint: "https://mp.example/checkout/pref-1"}, nil
}

type fakePayments struct {
	resource *payment.Response
	gotID    int
}

func (f *fakePayments) Get(_ context.Context, id int) (*payment.Response, error) {
	f.gotID = id
	return f.resource, nil
}

func TestMercadoPagoGateway(t *testing.T) {
	prefs := &fakePreferences{}
	pays := &fakePayments{resource: &payment.Response{
		ID:                123,
		Status:            "approved",
		TransactionAmount: 9.99,
		CurrencyID:        "BRL",
		ExternalReference: "42",
	}}
	gw := &MercadoPagoGateway{preferences: prefs, payments: pays, logger: zap.NewNop()}

	checkout, err := gw.CreateCheckout(context.Background(), CheckoutRequest{
		Title:             "Plano plus",
		Amount:            decimal.RequireFromString("9.99"),
		ExternalReference: "42",
		NotificationURL:   "https://confras.example/api/webhook",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://mp.example/checkout/pref-1", checkout.URL)
	require.Len(t, prefs.request.Items, 1)
	assert.Equal(t, "BRL", prefs.request.Items[0].CurrencyID)
	assert.InDelta(t, 9.99, prefs.request.Items[0].UnitPrice, 0.0001)
	assert.Equal(t, "42", prefs.request.ExternalReference)

	info, err := gw.GetPayment(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, 123, pays.gotID)
	assert.True(t, info.IsApproved())
	assert.True(t, info.Amount.Equal(decimal.RequireFromString("9.99")))
	assert.Equal(t, "42", info.ExternalReference)

	_, err = gw.GetPayment(context.Background(), "not-a-number")
	assert.ErrorIs(t, err, ErrInvalidPaymentID)
}

type fakeSessions struct {
	created *stripe.CheckoutSessionParams
	session *stripe.CheckoutSession
}

func (f *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.created = params
	return &stripe.CheckoutSession{ID: "cs_1", URL: "https://stripe.example/cs_1"}, nil
}

func (f *fakeSessions) Get(id string, _ *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return f.session, nil
}

func TestStripeGateway(t *testing.T) {
	sessions := &fakeSessions{session: &stripe.CheckoutSession{
		ID:                "cs_1",
		PaymentStatus:     stripe.CheckoutSessionPaymentStatusPaid,
		AmountTotal:       2999,
		Currency:          stripe.CurrencyBRL,
		ClientReferenceID: "42",
	}}
	gw := &StripeGateway{sessions: sessions, logger: zap.NewNop()}

	checkout, err := gw.CreateCheckout(context.Background(), CheckoutRequest{
		Title:             "Plano pro",
		Amount:            decimal.RequireFromString("29.99"),
		ExternalReference: "42",
		SuccessURL:        "https://confras.example/admin",
		CancelURL:         "https://confras.example/",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", checkout.ID)
	assert.Equal(t, int64(2999), *sessions.created.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, "brl", *sessions.created.LineItems[0].PriceData.Currency)

	info, err := gw.GetPayment(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.True(t, info.IsApproved())
	assert.True(t, info.Amount.Equal(decimal.RequireFromString("29.99")))
	assert.Equal(t, "42", info.ExternalReference)
}
