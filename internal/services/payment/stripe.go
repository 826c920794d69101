package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"go.uber.org/zap"
)

type checkoutSessions interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeGateway uses Checkout Sessions. The session id plays the role of the
// payment id in webhooks.
type StripeGateway struct {
	sessions checkoutSessions
	logger   *zap.Logger
}

func NewStripeGateway(secretKey string, logger *zap.Logger) *StripeGateway {
	return &StripeGateway{
		sessions: &session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey},
		logger:   logger,
	}
}

func (g *StripeGateway) Name() string {
	return "stripe"
}

func (g *StripeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = "brl"
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.ExternalReference),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(req.Amount.Shift(2).Round(0).IntPart()),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Title),
				},
			},
		}},
	}
	if req.PayerEmail != "" {
		params.CustomerEmail = stripe.String(req.PayerEmail)
	}
	params.Context = ctx

	s, err := g.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	g.logger.Info("Checkout session created",
		zap.String("session_id", s.ID),
		zap.String("external_reference", req.ExternalReference))

	return &Checkout{ID: s.ID, URL: s.URL}, nil
}

func (g *StripeGateway) GetPayment(ctx context.Context, paymentID string) (*PaymentInfo, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, ErrInvalidPaymentID
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := g.sessions.Get(paymentID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch checkout session %s: %w", paymentID, err)
	}

	status := string(s.PaymentStatus)
	if s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		status = StatusApproved
	}

	return &PaymentInfo{
		ID:                s.ID,
		Status:            status,
		Amount:            decimal.New(s.AmountTotal, -2),
		Currency:          strings.ToUpper(string(s.Currency)),
		ExternalReference: s.ClientReferenceID,
	}, nil
}
