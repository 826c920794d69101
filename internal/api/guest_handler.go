package api

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/middleware"
	"github.com/galihcitta/confras/internal/models"
	"github.com/galihcitta/confras/internal/repository"
	"github.com/galihcitta/confras/internal/services/guest"
)

const multipartMemory = 8 << 20

type GuestServiceInterface interface {
	Submit(ctx context.Context, req guest.SubmitRequest) (*models.Guest, error)
	Approve(ctx context.Context, guestID models.ID, status models.GuestStatus, scopeTenantID models.ID) (*models.Guest, error)
}

type GuestHandler struct {
	guests         GuestServiceInterface
	maxUploadBytes int64
	requireAuth    bool
	logger         *zap.Logger
}

func NewGuestHandler(guests GuestServiceInterface, maxUploadBytes int64, requireAuth bool, logger *zap.Logger) *GuestHandler {
	return &GuestHandler{
		guests:         guests,
		maxUploadBytes: maxUploadBytes,
		requireAuth:    requireAuth,
		logger:         logger,
	}
}

// ConfirmVaquinha godoc
// @Summary Submit a payment receipt
// @Description A guest of the event at origin_slug sends their name and an optional receipt file. The guest stays PENDING until the organizer approves.
// @Tags guests
// @Accept multipart/form-data
// @Produce json
// @Param name formData string true "Guest name"
// @Param origin_slug formData string true "Event slug"
// @Param contact formData string false "Guest contact"
// @Param proof formData file false "Receipt"
// @Success 200 {object} StatusResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/confirm_vaquinha [post]
func (h *GuestHandler) ConfirmVaquinha(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(c, http.StatusRequestEntityTooLarge, CodeValidationFailed, "Receipt is too large")
			return
		}
		respondError(c, http.StatusBadRequest, CodeBadRequest, "Invalid form data")
		return
	}

	req := guest.SubmitRequest{
		Slug:    c.PostForm("origin_slug"),
		Name:    c.PostForm("name"),
		Contact: c.PostForm("contact"),
	}
	if req.Slug == "" {
		respondError(c, http.StatusBadRequest, CodeValidationFailed, "origin_slug is required")
		return
	}

	fileHeader, err := c.FormFile("proof")
	switch {
	case err == nil:
		file, err := fileHeader.Open()
		if err != nil {
			respondError(c, http.StatusBadRequest, CodeBadRequest, "Could not read the receipt")
			return
		}
		defer file.Close()
		req.Receipt = &repository.Upload{
			Filename:    fileHeader.Filename,
			ContentType: contentType(fileHeader),
			Content:     file,
		}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		respondError(c, http.StatusBadRequest, CodeBadRequest, "Invalid form data")
		return
	}

	g, err := h.guests.Submit(c.Request.Context(), req)
	if err != nil {
		h.logger.Warn("Guest submission failed", zap.String("slug", req.Slug), zap.Error(err))
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"message":  "Comprovante enviado! Aguarde a confirmação do organizador.",
		"guest_id": g.ID,
	})
}

// UpdateGuest godoc
// @Summary Approve a guest
// @Description Sets a guest's status to CONFIRMED. Approving twice is harmless.
// @Tags guests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.UpdateGuestRequest true "Guest and target status"
// @Success 200 {object} StatusResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/admin/update_guest [post]
func (h *GuestHandler) UpdateGuest(c *gin.Context) {
	var req models.UpdateGuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	var scope models.ID
	if tenantID, ok := middleware.TenantID(c); ok {
		scope = models.ID(tenantID)
	} else if h.requireAuth {
		respondError(c, http.StatusUnauthorized, CodeUnauthorized, "Authorization token required")
		return
	}

	g, err := h.guests.Approve(c.Request.Context(), req.GuestID, req.Status, scope)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "guest_status": g.Status})
}

func contentType(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
