package payment

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type preferenceCreator interface {
	Create(ctx context.Context, request preference.Request) (*preference.Response, error)
}

type paymentGetter interface {
	Get(ctx context.Context, id int) (*payment.Response, error)
}

type MercadoPagoGateway struct {
	preferences preferenceCreator
	payments    paymentGetter
	logger      *zap.Logger
}

func NewMercadoPagoGateway(accessToken string, logger *zap.Logger) (*MercadoPagoGateway, error) {
	cfg, err := config.New(accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to configure mercado pago: %w", err)
	}
	return &MercadoPagoGateway{
		preferences: preference.NewClient(cfg),
		payments:    payment.NewClient(cfg),
		logger:      logger,
	}, nil
}

func (g *MercadoPagoGateway) Name() string {
	return "mercadopago"
}

func (g *MercadoPagoGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "BRL"
	}

	request := preference.Request{
		Items: []preference.ItemRequest{{
			Title:      req.Title,
			Quantity:   1,
			UnitPrice:  req.Amount.InexactFloat64(),
			CurrencyID: currency,
		}},
		ExternalReference: req.ExternalReference,
		NotificationURL:   req.NotificationURL,
	}
	if req.PayerEmail != "" {
		request.Payer = &preference.PayerRequest{Email: req.PayerEmail}
	}

	resource, err := g.preferences.Create(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("failed to create preference: %w", err)
	}

	g.logger.Info("Checkout preference created",
		zap.String("preference_id", resource.ID),
		zap.String("external_reference", req.ExternalReference))

	return &Checkout{ID: resource.ID, URL: resource.InitPoint}, nil
}

func (g *MercadoPagoGateway) GetPayment(ctx context.Context, paymentID string) (*PaymentInfo, error) {
	id, err := strconv.Atoi(strings.TrimSpace(paymentID))
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPaymentID, paymentID)
	}

	resource, err := g.payments.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment %d: %w", id, err)
	}

	return &PaymentInfo{
		ID:                strconv.Itoa(resource.ID),
		Status:            resource.Status,
		Amount:            decimal.NewFromFloat(resource.TransactionAmount),
		Currency:          resource.CurrencyID,
		ExternalReference: resource.ExternalReference,
	}, nil
}
