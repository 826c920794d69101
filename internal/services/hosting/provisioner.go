// Package hosting asks the hosting panel to route and certify the subdomain
// of every new tenant.
package hosting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/services/messaging"
)

const requestTimeout = 20 * time.Second

type Config struct {
	URL           string
	Token         string
	ApplicationID string
	Port          int
	RootDomain    string
}

// DomainRequest is the body of the panel's domain.create call.
type DomainRequest struct {
	ApplicationID   string `json:"applicationId"`
	Host            string `json:"host"`
	Path            string `json:"path"`
	Port            int    `json:"port"`
	HTTPS           bool   `json:"https"`
	CertificateType string `json:"certificateType"`
}

// ProvisionPayload is the payload of a provision_domain job.
type ProvisionPayload struct {
	Slug string `json:"slug"`
}

type Provisioner struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

func NewProvisioner(cfg Config, logger *zap.Logger) *Provisioner {
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &Provisioner{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   requestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Host is the public hostname of a tenant.
func (p *Provisioner) Host(slug string) string {
	return slug + "." + p.cfg.RootDomain
}

// CreateDomain registers <slug>.<root domain> with a Let's Encrypt
// certificate.
func (p *Provisioner) CreateDomain(ctx context.Context, slug string) error {
	if slug == "" {
		return fmt.Errorf("slug is required")
	}

	body, err := json.Marshal(DomainRequest{
		ApplicationID:   p.cfg.ApplicationID,
		Host:            p.Host(slug),
		Path:            "/",
		Port:            p.cfg.Port,
		HTTPS:           true,
		CertificateType: "letsencrypt",
	})
	if err != nil {
		return fmt.Errorf("failed to encode domain request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL+"/api/domain.create", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.Token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach hosting panel: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("hosting panel returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	p.logger.Info("Domain provisioned", zap.String("host", p.Host(slug)))
	return nil
}

// HandleJob processes provision_domain jobs.
func (p *Provisioner) HandleJob(ctx context.Context, job messaging.Job) error {
	var payload ProvisionPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("invalid provision payload: %w", err)
	}
	if err := p.CreateDomain(ctx, payload.Slug); err != nil {
		p.logger.Error("Domain provisioning failed", zap.Error(err), zap.String("slug", payload.Slug))
		return err
	}
	return nil
}
