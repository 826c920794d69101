package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

const StatusApproved = "approved"

var ErrInvalidPaymentID = errors.New("invalid payment id")

// Gateway is the payment provider: it creates hosted checkouts and reports
// the authoritative state of a payment.
type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	GetPayment(ctx context.Context, paymentID string) (*PaymentInfo, error)
	Name() string
}

type CheckoutRequest struct {
	Title             string
	Amount            decimal.Decimal
	Currency          string
	ExternalReference string
	PayerEmail        string
	SuccessURL        string
	CancelURL         string
	NotificationURL   string
}

type Checkout struct {
	ID  string
	URL string
}

// PaymentInfo is the provider's view of a payment. Status is normalized so
// a settled payment always reads StatusApproved.
type PaymentInfo struct {
	ID                string
	Status            string
	Amount            decimal.Decimal
	Currency          string
	ExternalReference string
}

func (p *PaymentInfo) IsApproved() bool {
	return p.Status == StatusApproved
}
