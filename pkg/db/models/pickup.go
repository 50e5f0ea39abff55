package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/scrapco/scrapco-backend/pkg/enums"
)

// Pickup is the authoritative record of a customer pickup request. The
// dispatcher treats this row as the source of truth; every transition is a
// conditional update against the fields the caller believes are current.
type Pickup struct {
	ID                  uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CustomerID          uuid.UUID          `gorm:"column:customer_id;type:uuid;not null" json:"customer_id"`
	Address             string             `gorm:"column:address;not null" json:"address"`
	Latitude            *float64           `gorm:"column:latitude" json:"latitude"`
	Longitude           *float64           `gorm:"column:longitude" json:"longitude"`
	TimeSlot            string             `gorm:"column:time_slot;not null" json:"time_slot"`
	Status              enums.PickupStatus `gorm:"column:status;type:text;not null;default:'REQUESTED'" json:"status"`
	AssignedVendorRef   *string            `gorm:"column:assigned_vendor_ref" json:"assigned_vendor_ref"`
	AssignmentExpiresAt *time.Time         `gorm:"column:assignment_expires_at" json:"assignment_expires_at"`
	Items               []PickupItem       `gorm:"foreignKey:PickupID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	CancelledAt         *time.Time         `gorm:"column:cancelled_at" json:"cancelled_at"`
	CompletedAt         *time.Time         `gorm:"column:completed_at" json:"completed_at"`
	CreatedAt           time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// HasActiveOffer reports whether an unexpired offer is outstanding at now.
func (p Pickup) HasActiveOffer(now time.Time) bool {
	return p.Status == enums.PickupStatusFindingVendor &&
		p.AssignedVendorRef != nil &&
		p.AssignmentExpiresAt != nil &&
		p.AssignmentExpiresAt.After(now)
}
