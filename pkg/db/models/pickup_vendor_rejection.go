package models

import (
	"time"

	"github.com/google/uuid"
)

// PickupVendorRejection is an append-only memory of vendors that declined a
// pickup, used to exclude them from later dispatch attempts across restarts.
type PickupVendorRejection struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	PickupID   uuid.UUID `gorm:"column:pickup_id;type:uuid;not null;uniqueIndex:idx_pickup_vendor_rejection" json:"pickup_id"`
	VendorRef  string    `gorm:"column:vendor_ref;not null;uniqueIndex:idx_pickup_vendor_rejection" json:"vendor_ref"`
	RejectedAt time.Time `gorm:"column:rejected_at;autoCreateTime" json:"rejected_at"`
}
