package pickups

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/scrapco/scrapco-backend/pkg/db/models"
	"github.com/scrapco/scrapco-backend/pkg/enums"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a pickups repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, pickup *models.Pickup) (*models.Pickup, error) {
	if err := r.db.WithContext(ctx).Create(pickup).Error; err != nil {
		return nil, err
	}
	return pickup, nil
}

func (r *repository) CreateItems(ctx context.Context, items []models.PickupItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Pickup, error) {
	var pickup models.Pickup
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&pickup).Error
	if err != nil {
		return nil, err
	}
	return &pickup, nil
}

func (r *repository) FindByIDForCustomer(ctx context.Context, id, customerID uuid.UUID) (*models.Pickup, error) {
	var pickup models.Pickup
	err := r.db.WithContext(ctx).
		Where("id = ? AND customer_id = ?", id, customerID).
		First(&pickup).Error
	if err != nil {
		return nil, err
	}
	return &pickup, nil
}

func (r *repository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.Pickup, error) {
	var pickups []models.Pickup
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Find(&pickups).Error
	if err != nil {
		return nil, err
	}
	return pickups, nil
}

func (r *repository) ListItems(ctx context.Context, pickupID uuid.UUID) ([]models.PickupItem, error) {
	var items []models.PickupItem
	err := r.db.WithContext(ctx).
		Where("pickup_id = ?", pickupID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ListItemSummaries(ctx context.Context, pickupID uuid.UUID) ([]ItemSummary, error) {
	var summaries []ItemSummary
	err := r.db.WithContext(ctx).
		Table("pickup_items").
		Select("scrap_types.name AS name, pickup_items.estimated_quantity AS estimated_quantity").
		Joins("JOIN scrap_types ON scrap_types.id = pickup_items.scrap_type_id").
		Where("pickup_items.pickup_id = ?", pickupID).
		Order("pickup_items.created_at ASC").
		Scan(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// BeginFinding moves a pickup into FINDING_VENDOR. Accepting FINDING_VENDOR as
// a prior state makes the transition idempotent for double-submits.
func (r *repository) BeginFinding(ctx context.Context, id uuid.UUID) (*models.Pickup, bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Pickup{}).
		Where("id = ? AND status IN ?", id, []enums.PickupStatus{
			enums.PickupStatusRequested,
			enums.PickupStatusFindingVendor,
			enums.PickupStatusNoVendorAvailable,
		}).
		Update("status", enums.PickupStatusFindingVendor)
	if result.Error != nil {
		return nil, false, result.Error
	}
	pickup, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return pickup, result.RowsAffected > 0, nil
}

// ReserveOffer stamps the pending offer onto the row. The guard requires the
// pickup to still be searching with no live offer, so two engines racing for
// the same pickup cannot both reserve it.
func (r *repository) ReserveOffer(ctx context.Context, id uuid.UUID, vendorRef string, expiresAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Pickup{}).
		Where("id = ? AND status = ? AND assigned_vendor_ref IS NULL", id, enums.PickupStatusFindingVendor).
		Updates(map[string]any{
			"assigned_vendor_ref":   vendorRef,
			"assignment_expires_at": expiresAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ClearExpiredOffer wipes a specific vendor's offer, but only once its
// deadline has passed. A live offer never matches the guard.
func (r *repository) ClearExpiredOffer(ctx context.Context, id uuid.UUID, vendorRef string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Pickup{}).
		Where("id = ? AND status = ? AND assigned_vendor_ref = ? AND assignment_expires_at < ?",
			id, enums.PickupStatusFindingVendor, vendorRef, now).
		Updates(map[string]any{
			"assigned_vendor_ref":   nil,
			"assignment_expires_at": nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ClearAnyExpiredOffer is the vendor-agnostic variant used before re-entering
// the dispatch loop.
func (r *repository) ClearAnyExpiredOffer(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Pickup{}).
		Where("id = ? AND status = ? AND assigned_vendor_ref IS NOT NULL AND assignment_expires_at < ?",
			id, enums.PickupStatusFindingVendor, now).
		Updates(map[string]any{
			"assigned_vendor_ref":   nil,
			"assignment_expires_at": nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ConfirmAssignment promotes a live offer to ASSIGNED. The deadline check
// keeps a late accept from reviving an offer the sweeper is about to clear.
func (r *repository) ConfirmAssignment(ctx context.Context, id uuid.UUID, vendorRef string, now time.Time) (*models.Pickup, bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Pickup{}).
		Where("id = ? AND status = ? AND assigned_vendor_ref = ? AND assignment_expires_at >= ?",
			id, enums.PickupStatusFindingVendor, vendorRef, now).
		Updates(map[string]any{
			"status":                enums.PickupStatusAssigned,
			"assignment_expires_at": nil,
		})
	if result.Error != nil {
		return nil, false, result.Error
	}
	pickup, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return pickup, result.RowsAffected > 0, nil
}

// ReleaseOffer clears a vendor's offer regardless of its deadline. Used when
// the vendor explicitly declines.
func (r *repository) ReleaseOffer(ctx context.Context, id uuid.UUID, vendorRef string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Pickup{}).
		Where("id = ? AND status = ? AND assigned_vendor_ref = ?", id, enums.PickupStatusFindingVendor, vendorRef).
		Updates(map[string]any{
			"assigned_vendor_ref":   nil,
			"assignment_expires_at": nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) GiveUp(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Pickup{}).
		Where("id = ? AND status = ?", id, enums.PickupStatusFindingVendor).
		Updates(map[string]any{
			"status":                enums.PickupStatusNoVendorAvailable,
			"assigned_vendor_ref":   nil,
			"assignment_expires_at": nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Cancel is customer-scoped. COMPLETED and CANCELLED rows never match, which
// keeps cancel idempotent without restamping cancelled_at.
func (r *repository) Cancel(ctx context.Context, id, customerID uuid.UUID, now time.Time) (*models.Pickup, bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Pickup{}).
		Where("id = ? AND customer_id = ? AND status NOT IN ?", id, customerID, []enums.PickupStatus{
			enums.PickupStatusCompleted,
			enums.PickupStatusCancelled,
		}).
		Updates(map[string]any{
			"status":                enums.PickupStatusCancelled,
			"cancelled_at":          now,
			"assigned_vendor_ref":   nil,
			"assignment_expires_at": nil,
		})
	if result.Error != nil {
		return nil, false, result.Error
	}
	pickup, err := r.FindByIDForCustomer(ctx, id, customerID)
	if err != nil {
		return nil, false, err
	}
	return pickup, result.RowsAffected > 0, nil
}

// Retry re-enters the search from any non-terminal state.
func (r *repository) Retry(ctx context.Context, id, customerID uuid.UUID) (*models.Pickup, bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Pickup{}).
		Where("id = ? AND customer_id = ? AND status IN ?", id, customerID, []enums.PickupStatus{
			enums.PickupStatusRequested,
			enums.PickupStatusFindingVendor,
			enums.PickupStatusNoVendorAvailable,
		}).
		Updates(map[string]any{
			"status":                enums.PickupStatusFindingVendor,
			"assigned_vendor_ref":   nil,
			"assignment_expires_at": nil,
		})
	if result.Error != nil {
		return nil, false, result.Error
	}
	pickup, err := r.FindByIDForCustomer(ctx, id, customerID)
	if err != nil {
		return nil, false, err
	}
	return pickup, result.RowsAffected > 0, nil
}

func (r *repository) SetOnTheWay(ctx context.Context, id uuid.UUID, vendorRef string) (*models.Pickup, bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Pickup{}).
		Where("id = ? AND assigned_vendor_ref = ? AND status IN ?", id, vendorRef, []enums.PickupStatus{
			enums.PickupStatusAssigned,
			enums.PickupStatusOnTheWay,
		}).
		Update("status", enums.PickupStatusOnTheWay)
	if result.Error != nil {
		return nil, false, result.Error
	}
	pickup, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return pickup, result.RowsAffected > 0, nil
}

func (r *repository) Complete(ctx context.Context, id uuid.UUID, vendorRef string, now time.Time) (*models.Pickup, bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Pickup{}).
		Where("id = ? AND assigned_vendor_ref = ? AND status IN ?", id, vendorRef, []enums.PickupStatus{
			enums.PickupStatusAssigned,
			enums.PickupStatusOnTheWay,
		}).
		Updates(map[string]any{
			"status":       enums.PickupStatusCompleted,
			"completed_at": now,
		})
	if result.Error != nil {
		return nil, false, result.Error
	}
	pickup, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return pickup, result.RowsAffected > 0, nil
}

// RecordRejection stores the (pickup, vendor) pair durably. Duplicates are
// swallowed via ON CONFLICT and a missing table degrades to a no-op so the
// dispatch path keeps working on partially migrated databases.
func (r *repository) RecordRejection(ctx context.Context, pickupID uuid.UUID, vendorRef string) error {
	rejection := models.PickupVendorRejection{
		PickupID:  pickupID,
		VendorRef: vendorRef,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rejection).Error
	if err != nil && isMissingTable(err) {
		return nil
	}
	return err
}

func (r *repository) ListRejections(ctx context.Context, pickupID uuid.UUID) ([]string, error) {
	var refs []string
	err := r.db.WithContext(ctx).
		Model(&models.PickupVendorRejection{}).
		Where("pickup_id = ?", pickupID).
		Order("rejected_at ASC").
		Pluck("vendor_ref", &refs).Error
	if err != nil {
		if isMissingTable(err) {
			return nil, nil
		}
		return nil, err
	}
	return refs, nil
}

func (r *repository) SweepExpired(ctx context.Context, now time.Time, limit int) ([]models.Pickup, error) {
	var pickups []models.Pickup
	err := r.db.WithContext(ctx).
		Where("status = ? AND assignment_expires_at IS NOT NULL AND assignment_expires_at < ?",
			enums.PickupStatusFindingVendor, now).
		Order("assignment_expires_at ASC").
		Limit(limit).
		Find(&pickups).Error
	if err != nil {
		return nil, err
	}
	return pickups, nil
}

// isMissingTable reports whether the error is an undefined-table failure from
// postgres (42P01) or sqlite.
func isMissingTable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P01"
	}
	return strings.Contains(err.Error(), "no such table")
}
