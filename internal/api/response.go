package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/galihcitta/confras/internal/auth"
	"github.com/galihcitta/confras/internal/repository"
	"github.com/galihcitta/confras/internal/services/guest"
	"github.com/galihcitta/confras/internal/services/page"
	"github.com/galihcitta/confras/internal/services/payment"
	"github.com/galihcitta/confras/internal/services/tenant"
)

const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeMaxLimitReached    = "MAX_LIMIT_REACHED"
	CodeUploadFailed       = "UPLOAD_FAILED"
	CodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	CodeBackendRejected    = "BACKEND_REJECTED"
	CodeInternalError      = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every failed JSON API call.
type ErrorResponse struct {
	Status  string `json:"status" example:"error"`
	Code    string `json:"code" example:"NOT_FOUND"`
	Message string `json:"message"`
}

type StatusResponse struct {
	Status  string `json:"status" example:"success"`
	Message string `json:"message,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{Status: "error", Code: code, Message: message})
}

// errorStatus maps service and store errors onto an HTTP status, an error
// code and a message safe to show to the caller.
func errorStatus(err error) (int, string, string) {
	var backendErr *repository.BackendError
	switch {
	case errors.Is(err, tenant.ErrInvalidSlug),
		errors.Is(err, tenant.ErrUnknownPlan),
		errors.Is(err, tenant.ErrWeakPassword),
		errors.Is(err, auth.ErrPasswordTooLong),
		errors.Is(err, guest.ErrNameRequired),
		errors.Is(err, guest.ErrInvalidStatus):
		return http.StatusBadRequest, CodeValidationFailed, err.Error()
	case errors.Is(err, page.ErrTenantNotFound):
		return http.StatusNotFound, CodeNotFound, "Tenant not found"
	case errors.Is(err, guest.ErrGuestNotFound):
		return http.StatusNotFound, CodeNotFound, "Guest not found"
	case errors.Is(err, tenant.ErrSlugTaken):
		return http.StatusConflict, CodeConflict, "This address is already in use"
	case errors.Is(err, tenant.ErrInvalidCredentials):
		return http.StatusUnauthorized, CodeUnauthorized, "Invalid email or password"
	case errors.Is(err, tenant.ErrInvalidResetToken):
		return http.StatusBadRequest, CodeBadRequest, "Invalid or expired reset link"
	case errors.Is(err, guest.ErrForbidden):
		return http.StatusForbidden, CodeForbidden, "Guest belongs to another event"
	case errors.Is(err, guest.ErrLimitReached):
		return http.StatusForbidden, CodeMaxLimitReached, "This event reached its guest limit"
	case errors.Is(err, guest.ErrUploadFailed):
		return http.StatusBadGateway, CodeUploadFailed, "Could not store the receipt, please try again"
	case errors.Is(err, payment.ErrVerificationFailed):
		return http.StatusBadGateway, CodeBackendUnavailable, "Payment provider could not confirm the payment"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, CodeNotFound, "Not found"
	case errors.Is(err, repository.ErrUnavailable):
		return http.StatusInternalServerError, CodeBackendUnavailable, "Content backend unreachable: " + err.Error()
	case errors.As(err, &backendErr):
		status := backendErr.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		return status, CodeBackendRejected, backendErr.Message
	default:
		return http.StatusInternalServerError, CodeInternalError, "Internal server error"
	}
}

func respondServiceError(c *gin.Context, err error) {
	status, code, message := errorStatus(err)
	respondError(c, status, code, message)
}
