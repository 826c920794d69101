package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/models"
)

// TenantManagerInterface defines the methods required by the handler
type TenantManagerInterface interface {
	CreateTenant(ctx context.Context, req *models.CreateTenantRequest) (*models.CreateTenantResponse, error)
	Login(ctx context.Context, email, password string) (*models.LoginResponse, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
}

type TenantHandler struct {
	tenantManager TenantManagerInterface
	logger        *zap.Logger
}

func NewTenantHandler(tenantManager TenantManagerInterface, logger *zap.Logger) *TenantHandler {
	return &TenantHandler{
		tenantManager: tenantManager,
		logger:        logger,
	}
}

// CreateTenant godoc
// @Summary Create an event page
// @Description Sign up an organizer. Paid plans also return a checkout URL; the plan is upgraded once the payment is confirmed.
// @Tags tenants
// @Accept json
// @Produce json
// @Param tenant body models.CreateTenantRequest true "Signup request"
// @Success 201 {object} models.CreateTenantResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/create_tenant_free [post]
func (h *TenantHandler) CreateTenant(c *gin.Context) {
	var req models.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	resp, err := h.tenantManager.CreateTenant(c.Request.Context(), &req)
	if err != nil {
		h.logger.Warn("Failed to create tenant", zap.Error(err), zap.String("subdomain", req.Subdomain))
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Login godoc
// @Summary Organizer login
// @Description Exchange email and password for an admin session token
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body models.LoginRequest true "Login credentials"
// @Success 200 {object} models.LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/login [post]
func (h *TenantHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	resp, err := h.tenantManager.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RequestReset godoc
// @Summary Request a password reset
// @Description Emails a time-limited reset link. The response is the same whether or not the email is registered.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.PasswordResetRequest true "Account email"
// @Success 200 {object} StatusResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/request_reset [post]
func (h *TenantHandler) RequestReset(c *gin.Context) {
	var req models.PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	if err := h.tenantManager.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		h.logger.Error("Password reset request failed", zap.Error(err))
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, StatusResponse{
		Status:  "success",
		Message: "Se o email estiver cadastrado, enviaremos um link de redefinição.",
	})
}

// ConfirmReset godoc
// @Summary Set a new password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.PasswordResetConfirmRequest true "Reset token and new password"
// @Success 200 {object} StatusResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/reset_password_confirm [post]
func (h *TenantHandler) ConfirmReset(c *gin.Context) {
	var req models.PasswordResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	if err := h.tenantManager.ConfirmPasswordReset(c.Request.Context(), req.Token, req.Password); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, StatusResponse{Status: "success", Message: "Senha atualizada."})
}
