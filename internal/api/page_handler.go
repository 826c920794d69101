package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/middleware"
	"github.com/galihcitta/confras/internal/models"
	"github.com/galihcitta/confras/internal/repository"
	"github.com/galihcitta/confras/internal/services/page"
	"github.com/galihcitta/confras/internal/services/payment"
)

type Renderer interface {
	Render(w io.Writer, name string, data interface{}) error
}

type FileReader interface {
	ReadFile(ctx context.Context, id string) (*repository.StoredFile, error)
}

// eventView is what the event and admin templates receive.
type eventView struct {
	*models.EventPage
	AppName string
	Token   string
}

type messageView struct {
	AppName string
	Title   string
	Message string
}

type landingView struct {
	AppName        string
	Tiers          []payment.Tier
	FreeGuestLimit int
}

type resetView struct {
	AppName string
	Token   string
}

// PageHandler serves the human-facing HTML pages.
type PageHandler struct {
	pages       *page.Service
	renderer    Renderer
	files       FileReader
	tiers       *payment.Tiers
	appName     string
	rootDomain  string
	requireAuth bool
	logger      *zap.Logger
}

func NewPageHandler(
	pages *page.Service,
	renderer Renderer,
	files FileReader,
	tiers *payment.Tiers,
	appName, rootDomain string,
	requireAuth bool,
	logger *zap.Logger,
) *PageHandler {
	return &PageHandler{
		pages:       pages,
		renderer:    renderer,
		files:       files,
		tiers:       tiers,
		appName:     appName,
		rootDomain:  rootDomain,
		requireAuth: requireAuth,
		logger:      logger,
	}
}

// Landing renders the marketing page, or the tenant's event page when the
// request arrives on a tenant subdomain.
func (h *PageHandler) Landing(c *gin.Context) {
	if label := page.HostLabel(c.Request.Host, h.rootDomain); label != "" {
		h.showEvent(c, label)
		return
	}

	h.render(c, http.StatusOK, "index.html", landingView{
		AppName:        h.appName,
		Tiers:          h.tiers.All(),
		FreeGuestLimit: h.tiers.FreeGuestLimit(),
	})
}

func (h *PageHandler) Event(c *gin.Context) {
	h.showEvent(c, c.Param("slug"))
}

// NoRoute serves GET /<slug> and the 404 responses of everything else.
func (h *PageHandler) NoRoute(c *gin.Context) {
	path := c.Request.URL.Path
	if strings.HasPrefix(path, "/api/") {
		respondError(c, http.StatusNotFound, CodeNotFound, "Route not found")
		return
	}

	slug := strings.TrimPrefix(path, "/")
	if c.Request.Method == http.MethodGet && slug != "" && !strings.ContainsAny(slug, "/.") {
		h.showEvent(c, slug)
		return
	}
	h.notFound(c)
}

func (h *PageHandler) showEvent(c *gin.Context, slug string) {
	ctx := c.Request.Context()

	tenant, err := h.pages.Resolve(ctx, slug)
	if err == nil && !tenant.IsActive() {
		err = page.ErrTenantNotFound
	}
	if err != nil {
		h.pageError(c, err)
		return
	}

	ev, err := h.pages.Compose(ctx, tenant, false)
	if err != nil {
		h.pageError(c, err)
		return
	}

	h.render(c, http.StatusOK, ev.Template, eventView{EventPage: ev, AppName: h.appName})
}

// Admin renders the organizer dashboard. With a session the tenant comes
// from the token; otherwise, unless auth is required, from ?email=.
func (h *PageHandler) Admin(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		tenant *models.Tenant
		err    error
	)
	if tenantID, ok := middleware.TenantID(c); ok {
		tenant, err = h.pages.ResolveByID(ctx, models.ID(tenantID))
	} else if h.requireAuth {
		h.render(c, http.StatusUnauthorized, "login.html", messageView{AppName: h.appName, Title: "Entrar"})
		return
	} else {
		tenant, err = h.pages.ResolveByEmail(ctx, c.Query("email"))
	}
	if err != nil {
		h.pageError(c, err)
		return
	}

	ev, err := h.pages.Compose(ctx, tenant, true)
	if err != nil {
		h.pageError(c, err)
		return
	}

	h.render(c, http.StatusOK, "admin.html", eventView{EventPage: ev, AppName: h.appName, Token: c.Query("token")})
}

func (h *PageHandler) Login(c *gin.Context) {
	h.render(c, http.StatusOK, "login.html", messageView{AppName: h.appName, Title: "Entrar"})
}

func (h *PageHandler) ResetForm(c *gin.Context) {
	h.render(c, http.StatusOK, "reset.html", resetView{AppName: h.appName, Token: c.Query("token")})
}

// File streams an uploaded receipt from the store.
func (h *PageHandler) File(c *gin.Context) {
	if h.requireAuth {
		if _, ok := middleware.TenantID(c); !ok {
			respondError(c, http.StatusUnauthorized, CodeUnauthorized, "Authorization token required")
			return
		}
	}

	file, err := h.files.ReadFile(c.Request.Context(), c.Param("id"))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			h.logger.Error("Failed to read file", zap.String("file_id", c.Param("id")), zap.Error(err))
		}
		respondServiceError(c, err)
		return
	}

	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

func (h *PageHandler) pageError(c *gin.Context, err error) {
	if errors.Is(err, page.ErrTenantNotFound) {
		h.notFound(c)
		return
	}

	h.logger.Error("Page request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	status, _, _ := errorStatus(err)
	if status < 500 {
		status = http.StatusInternalServerError
	}
	message := "Não foi possível carregar esta página agora. Tente novamente em instantes."
	if errors.Is(err, repository.ErrUnavailable) {
		message = "Nosso servidor de conteúdo está fora do ar. Tente novamente em instantes."
	}
	h.render(c, status, "error.html", messageView{AppName: h.appName, Title: "Erro", Message: message})
}

func (h *PageHandler) notFound(c *gin.Context) {
	h.render(c, http.StatusNotFound, "not_found.html", messageView{
		AppName: h.appName,
		Title:   "Página não encontrada",
		Message: "Não encontramos nenhuma festa neste endereço.",
	})
}

// render writes a template. A missing template is reported as a server
// error, never as an empty page.
func (h *PageHandler) render(c *gin.Context, status int, name string, data interface{}) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(status)

	err := h.renderer.Render(c.Writer, name, data)
	if err == nil {
		return
	}

	if errors.Is(err, page.ErrTemplateNotFound) {
		h.logger.Error("Template not found", zap.String("template", name))
	} else {
		h.logger.Error("Template rendering failed", zap.String("template", name), zap.Error(err))
	}
	if name == "error.html" {
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}
	h.render(c, http.StatusInternalServerError, "error.html", messageView{
		AppName: h.appName,
		Title:   "Erro",
		Message: "Não foi possível exibir esta página.",
	})
}
