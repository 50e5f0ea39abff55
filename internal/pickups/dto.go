package pickups

import (
	"time"

	"github.com/google/uuid"
	"github.com/scrapco/scrapco-backend/pkg/db/models"
	"github.com/scrapco/scrapco-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// CreatePickupItemInput is one scrap line on a new pickup request.
type CreatePickupItemInput struct {
	ScrapTypeID       uuid.UUID       `json:"scrap_type_id"`
	EstimatedQuantity decimal.Decimal `json:"estimated_quantity"`
}

// CreatePickupInput captures the fields a customer submits for a new pickup.
type CreatePickupInput struct {
	Address   string                  `json:"address"`
	Latitude  *float64                `json:"latitude"`
	Longitude *float64                `json:"longitude"`
	TimeSlot  string                  `json:"time_slot"`
	Items     []CreatePickupItemInput `json:"items"`
}

// PickupItemDTO is the API shape of a pickup line item.
type PickupItemDTO struct {
	ID                uuid.UUID       `json:"id"`
	ScrapTypeID       uuid.UUID       `json:"scrap_type_id"`
	EstimatedQuantity decimal.Decimal `json:"estimated_quantity"`
}

// AssignedVendorDTO carries vendor directory info for an assigned pickup.
type AssignedVendorDTO struct {
	VendorRef string   `json:"vendor_ref"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// PickupDTO is the API shape of a pickup.
type PickupDTO struct {
	ID                  uuid.UUID          `json:"id"`
	Status              enums.PickupStatus `json:"status"`
	Address             string             `json:"address"`
	Latitude            *float64           `json:"latitude,omitempty"`
	Longitude           *float64           `json:"longitude,omitempty"`
	TimeSlot            string             `json:"time_slot"`
	AssignedVendorRef   *string            `json:"assigned_vendor_ref,omitempty"`
	AssignmentExpiresAt *time.Time         `json:"assignment_expires_at,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
}

// PickupDetail is a pickup with its items, assigned vendor, and ETA.
type PickupDetail struct {
	Pickup     PickupDTO          `json:"pickup"`
	Items      []PickupItemDTO    `json:"items"`
	Vendor     *AssignedVendorDTO `json:"vendor,omitempty"`
	ETAMinutes *int               `json:"eta_minutes,omitempty"`
}

func toPickupDTO(pickup *models.Pickup) PickupDTO {
	return PickupDTO{
		ID:                  pickup.ID,
		Status:              pickup.Status,
		Address:             pickup.Address,
		Latitude:            pickup.Latitude,
		Longitude:           pickup.Longitude,
		TimeSlot:            pickup.TimeSlot,
		AssignedVendorRef:   pickup.AssignedVendorRef,
		AssignmentExpiresAt: pickup.AssignmentExpiresAt,
		CreatedAt:           pickup.CreatedAt,
	}
}

func toItemDTOs(items []models.PickupItem) []PickupItemDTO {
	out := make([]PickupItemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, PickupItemDTO{
			ID:                item.ID,
			ScrapTypeID:       item.ScrapTypeID,
			EstimatedQuantity: item.EstimatedQuantity,
		})
	}
	return out
}
