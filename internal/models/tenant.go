package models

import (
	"regexp"
	"strings"
	"time"
)

type Plan string

const (
	PlanFree Plan = "free"
	PlanPlus Plan = "plus"
	PlanPro  Plan = "pro"
)

const TenantStatusActive = "active"

// Tenant is one organizer and the event page it owns.
type Tenant struct {
	ID           ID         `json:"id,omitempty"`
	Slug         string     `json:"slug"`
	Name         string     `json:"company_name"`
	Email        string     `json:"email"`
	PixKey       string     `json:"pix_key"`
	Plan         Plan       `json:"plan"`
	GuestLimit   int        `json:"guest_limit"`
	Status       string     `json:"status"`
	Template     string     `json:"template,omitempty"`
	PasswordHash string     `json:"password_hash,omitempty"`
	CreatedAt    *time.Time `json:"date_created,omitempty"`
}

func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

type CreateTenantRequest struct {
	CompanyName string `json:"company_name" binding:"required"`
	Subdomain   string `json:"subdomain" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	PixKey      string `json:"pix_key"`
	Password    string `json:"password" binding:"required,min=6,max=72"`
	Plan        Plan   `json:"plan,omitempty"`
}

type CreateTenantResponse struct {
	Status        string `json:"status"`
	TenantID      ID     `json:"tenant_id"`
	Slug          string `json:"slug"`
	URL           string `json:"url"`
	AdminURL      string `json:"admin_url"`
	CheckoutURL   string `json:"checkout_url,omitempty"`
	CheckoutError string `json:"checkout_error,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Status    string `json:"status"`
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
	AdminURL  string `json:"admin_url"`
}

type PasswordResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type PasswordResetConfirmRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

var slugDisallowed = regexp.MustCompile(`[^a-z0-9-]`)

// NormalizeEmail is the form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SanitizeSlug lowercases raw and strips every character outside [a-z0-9-].
// An empty result means the input carried no usable slug.
func SanitizeSlug(raw string) string {
	return slugDisallowed.ReplaceAllString(strings.ToLower(raw), "")
}
