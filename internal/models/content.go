package models

import "github.com/shopspring/decimal"

type Collection string

const (
	CollectionTenants  Collection = "tenants"
	CollectionProducts Collection = "products"
	CollectionSections Collection = "sections"
	CollectionGuests   Collection = "vaquinha_guests"
	CollectionSettings Collection = "vaquinha_settings"
	CollectionFiles    Collection = "files"
)

type Product struct {
	ID          ID              `json:"id"`
	TenantID    ID              `json:"tenant_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url,omitempty"`
}

// Section is one layout block of the event page. Sort is nil when the
// organizer never set an explicit position.
type Section struct {
	ID       ID     `json:"id"`
	TenantID ID     `json:"tenant_id"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	Content  string `json:"content,omitempty"`
	Sort     *int   `json:"sort,omitempty"`
}

type VaquinhaSettings struct {
	ID          ID              `json:"id,omitempty"`
	TenantID    ID              `json:"tenant_id,omitempty"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	GoalAmount  decimal.Decimal `json:"goal_amount"`
	PixKey      string          `json:"pix_key,omitempty"`
}

// EventPage is the view-model handed to the template layer.
type EventPage struct {
	Tenant          *Tenant
	Products        []Product
	Sections        []Section
	ConfirmedGuests []Guest
	Settings        VaquinhaSettings
	ConfirmedCount  int
	IsLimitReached  bool
	Template        string

	// Admin views only.
	Guests        []Guest
	PendingGuests []Guest
	Admin         bool
}
