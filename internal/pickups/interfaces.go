package pickups

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/scrapco/scrapco-backend/pkg/db/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ItemSummary is a pickup line joined with its scrap type name, used to
// build the human-readable summary sent with offers.
type ItemSummary struct {
	Name              string          `gorm:"column:name"`
	EstimatedQuantity decimal.Decimal `gorm:"column:estimated_quantity"`
}

// Repository defines persistence operations for pickups. Every mutation is a
// conditional update: the WHERE clause encodes the allowed prior state and the
// returned bool reports whether the row was actually modified. Callers treat
// an unmodified row as a lost race, never as an error.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, pickup *models.Pickup) (*models.Pickup, error)
	CreateItems(ctx context.Context, items []models.PickupItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Pickup, error)
	FindByIDForCustomer(ctx context.Context, id, customerID uuid.UUID) (*models.Pickup, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.Pickup, error)
	ListItems(ctx context.Context, pickupID uuid.UUID) ([]models.PickupItem, error)
	ListItemSummaries(ctx context.Context, pickupID uuid.UUID) ([]ItemSummary, error)

	BeginFinding(ctx context.Context, id uuid.UUID) (*models.Pickup, bool, error)
	ReserveOffer(ctx context.Context, id uuid.UUID, vendorRef string, expiresAt time.Time) (bool, error)
	ClearExpiredOffer(ctx context.Context, id uuid.UUID, vendorRef string, now time.Time) (bool, error)
	ClearAnyExpiredOffer(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	ConfirmAssignment(ctx context.Context, id uuid.UUID, vendorRef string, now time.Time) (*models.Pickup, bool, error)
	ReleaseOffer(ctx context.Context, id uuid.UUID, vendorRef string) (bool, error)
	GiveUp(ctx context.Context, id uuid.UUID) (bool, error)
	Cancel(ctx context.Context, id, customerID uuid.UUID, now time.Time) (*models.Pickup, bool, error)
	Retry(ctx context.Context, id, customerID uuid.UUID) (*models.Pickup, bool, error)
	SetOnTheWay(ctx context.Context, id uuid.UUID, vendorRef string) (*models.Pickup, bool, error)
	Complete(ctx context.Context, id uuid.UUID, vendorRef string, now time.Time) (*models.Pickup, bool, error)

	RecordRejection(ctx context.Context, pickupID uuid.UUID, vendorRef string) error
	ListRejections(ctx context.Context, pickupID uuid.UUID) ([]string, error)

	SweepExpired(ctx context.Context, now time.Time, limit int) ([]models.Pickup, error)
}
