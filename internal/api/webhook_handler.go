package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/services/payment"
)

const maxWebhookBody = 64 << 10

type WebhookProcessorInterface interface {
	Process(ctx context.Context, paymentID string) (payment.Outcome, error)
}

type WebhookHandler struct {
	processor WebhookProcessorInterface
	logger    *zap.Logger
}

func NewWebhookHandler(processor WebhookProcessorInterface, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		logger:    logger,
	}
}

// webhookBody covers the notification shapes of the supported providers:
// {"type":"payment","data":{"id":"123"}} and
// {"type":"checkout.session.completed","data":{"object":{"id":"cs_..."}}}.
type webhookBody struct {
	Type string `json:"type"`
	Data struct {
		ID     json.RawMessage `json:"id"`
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

// PaymentSuccess godoc
// @Summary Payment provider notification
// @Description The payment is always re-read from the provider before any change. Unconfirmed or unrelated payments are acknowledged and ignored.
// @Tags payments
// @Accept json
// @Produce json
// @Param data.id query string false "Payment id"
// @Param id query string false "Payment id"
// @Success 200 {object} StatusResponse
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/webhook/payment_success [post]
func (h *WebhookHandler) PaymentSuccess(c *gin.Context) {
	paymentID, kind := h.paymentID(c)
	if kind != "" && !isPaymentEvent(kind) {
		c.JSON(http.StatusOK, StatusResponse{Status: string(payment.OutcomeIgnored), Message: "event type not handled"})
		return
	}
	if paymentID == "" {
		respondError(c, http.StatusBadRequest, CodeBadRequest, "payment id is required")
		return
	}

	outcome, err := h.processor.Process(c.Request.Context(), paymentID)
	if err != nil {
		if !errors.Is(err, payment.ErrVerificationFailed) {
			h.logger.Error("Webhook processing failed", zap.String("payment_id", paymentID), zap.Error(err))
		}
		respondServiceError(c, err)
		return
	}

	status := "success"
	if outcome == payment.OutcomeIgnored {
		status = string(payment.OutcomeIgnored)
	}
	c.JSON(http.StatusOK, StatusResponse{Status: status})
}

// paymentID reads the id from the JSON body, then the data.id and id query
// parameters. It also returns the notification type when one is given.
func (h *WebhookHandler) paymentID(c *gin.Context) (string, string) {
	kind := c.Query("type")
	if kind == "" {
		kind = c.Query("topic")
	}

	var id string
	if c.Request.Body != nil {
		raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err == nil && len(bytes.TrimSpace(raw)) > 0 {
			var body webhookBody
			if err := json.Unmarshal(raw, &body); err != nil {
				h.logger.Debug("Webhook body is not JSON", zap.Error(err))
			} else {
				if body.Type != "" {
					kind = body.Type
				}
				id = rawID(body.Data.ID)
				if id == "" {
					id = body.Data.Object.ID
				}
			}
		}
	}

	if id == "" {
		id = c.Query("data.id")
	}
	if id == "" {
		id = c.Query("id")
	}
	return strings.TrimSpace(id), kind
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func isPaymentEvent(kind string) bool {
	switch kind {
	case "payment", "checkout.session.completed", "checkout.session.async_payment_succeeded":
		return true
	}
	return strings.HasPrefix(kind, "payment.")
}
