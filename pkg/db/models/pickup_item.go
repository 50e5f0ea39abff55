package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PickupItem is one scrap line on a pickup request. Items are owned by the
// parent pickup and cascade-deleted with it.
type PickupItem struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	PickupID          uuid.UUID       `gorm:"column:pickup_id;type:uuid;not null" json:"pickup_id"`
	ScrapTypeID       uuid.UUID       `gorm:"column:scrap_type_id;type:uuid;not null" json:"scrap_type_id"`
	EstimatedQuantity decimal.Decimal `gorm:"column:estimated_quantity;type:numeric;not null" json:"estimated_quantity"`
	ScrapType         *ScrapType      `gorm:"foreignKey:ScrapTypeID" json:"scrap_type,omitempty"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
