package models

import (
	"time"

	"github.com/google/uuid"
)

// ScrapType is a catalog entry for collectable material (metal, paper, ...).
type ScrapType struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name      string    `gorm:"column:name;not null;uniqueIndex" json:"name"`
	Unit      string    `gorm:"column:unit;not null;default:'kg'" json:"unit"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
