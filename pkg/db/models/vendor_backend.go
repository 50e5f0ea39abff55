package models

import (
	"time"

	"github.com/google/uuid"
)

// VendorBackend is a vendor-registered collection service: a stable ref,
// the callback URL offers are posted to, and the vendor's last reported
// location. Rows are upserted by the vendor location endpoint.
type VendorBackend struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	VendorRef string    `gorm:"column:vendor_ref;not null;uniqueIndex" json:"vendor_ref"`
	OfferURL  string    `gorm:"column:offer_url;not null" json:"offer_url"`
	Latitude  *float64  `gorm:"column:latitude" json:"latitude"`
	Longitude *float64  `gorm:"column:longitude" json:"longitude"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// HasLocation reports whether both coordinates are present.
func (v VendorBackend) HasLocation() bool {
	return v.Latitude != nil && v.Longitude != nil
}
