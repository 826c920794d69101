package models

import "time"

type GuestStatus string

const (
	GuestPending   GuestStatus = "PENDING"
	GuestConfirmed GuestStatus = "CONFIRMED"
)

// Guest is a payment confirmation submitted from the public event page.
type Guest struct {
	ID        ID          `json:"id,omitempty"`
	TenantID  ID          `json:"tenant_id"`
	Name      string      `json:"name"`
	Contact   string      `json:"contact,omitempty"`
	Proof     string      `json:"proof,omitempty"`
	Status    GuestStatus `json:"status"`
	CreatedAt *time.Time  `json:"date_created,omitempty"`
}

func (g *Guest) IsConfirmed() bool {
	return g.Status == GuestConfirmed
}

type UpdateGuestRequest struct {
	GuestID ID          `json:"guest_id" binding:"required"`
	Status  GuestStatus `json:"status"`
}
