package vendors

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/scrapco/scrapco-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Column layouts seen in the wild. Older deployments carry
// vendor_id/last_latitude/last_longitude instead of the canonical
// vendor_ref/latitude/longitude; the repository probes on first read and
// caches the answer for the process lifetime.
const (
	layoutUnknown int32 = iota
	layoutCanonical
	layoutLegacy
)

const legacySelect = `
SELECT id, vendor_id AS vendor_ref, offer_url,
       last_latitude AS latitude, last_longitude AS longitude,
       created_at, updated_at
FROM vendor_backends`

// Repository defines persistence operations for the vendor directory.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	List(ctx context.Context) ([]models.VendorBackend, error)
	FindByRef(ctx context.Context, vendorRef string) (*models.VendorBackend, error)
	Upsert(ctx context.Context, input UpsertVendor) (*models.VendorBackend, error)
}

// UpsertVendor carries the writable vendor directory fields. An empty
// OfferURL keeps whatever URL is already stored.
type UpsertVendor struct {
	VendorRef string
	OfferURL  string
	Latitude  *float64
	Longitude *float64
}

type repository struct {
	db     *gorm.DB
	layout *atomic.Int32
}

// NewRepository builds a vendor directory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db, layout: &atomic.Int32{}}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx, layout: r.layout}
}

func (r *repository) List(ctx context.Context) ([]models.VendorBackend, error) {
	var vendors []models.VendorBackend

	if r.layout.Load() == layoutLegacy {
		err := r.db.WithContext(ctx).Raw(legacySelect).Scan(&vendors).Error
		return vendors, err
	}

	err := r.db.WithContext(ctx).Order("vendor_ref ASC").Find(&vendors).Error
	if err != nil {
		if isMissingColumn(err) {
			r.layout.Store(layoutLegacy)
			var legacy []models.VendorBackend
			err = r.db.WithContext(ctx).Raw(legacySelect + " ORDER BY vendor_ref ASC").Scan(&legacy).Error
			return legacy, err
		}
		return nil, err
	}
	r.layout.CompareAndSwap(layoutUnknown, layoutCanonical)
	return vendors, nil
}

func (r *repository) FindByRef(ctx context.Context, vendorRef string) (*models.VendorBackend, error) {
	var vendor models.VendorBackend

	if r.layout.Load() == layoutLegacy {
		err := r.db.WithContext(ctx).
			Raw(legacySelect+" WHERE vendor_id = ?", vendorRef).
			Scan(&vendor).Error
		if err != nil {
			return nil, err
		}
		if vendor.VendorRef == "" {
			return nil, gorm.ErrRecordNotFound
		}
		return &vendor, nil
	}

	err := r.db.WithContext(ctx).
		Where("vendor_ref = ?", vendorRef).
		First(&vendor).Error
	if err != nil {
		if isMissingColumn(err) {
			r.layout.Store(layoutLegacy)
			return r.FindByRef(ctx, vendorRef)
		}
		return nil, err
	}
	r.layout.CompareAndSwap(layoutUnknown, layoutCanonical)
	return &vendor, nil
}

func (r *repository) Upsert(ctx context.Context, input UpsertVendor) (*models.VendorBackend, error) {
	if r.layout.Load() == layoutLegacy {
		return r.upsertLegacy(ctx, input)
	}

	existing, err := r.FindByRef(ctx, input.VendorRef)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if r.layout.Load() == layoutLegacy {
		return r.upsertLegacy(ctx, input)
	}

	if existing == nil {
		vendor := models.VendorBackend{
			ID:        uuid.New(),
			VendorRef: input.VendorRef,
			OfferURL:  input.OfferURL,
			Latitude:  input.Latitude,
			Longitude: input.Longitude,
		}
		if err := r.db.WithContext(ctx).Create(&vendor).Error; err != nil {
			return nil, err
		}
		return &vendor, nil
	}

	updates := map[string]any{
		"latitude":  input.Latitude,
		"longitude": input.Longitude,
	}
	if input.OfferURL != "" {
		updates["offer_url"] = input.OfferURL
	}
	err = r.db.WithContext(ctx).
		Model(&models.VendorBackend{}).
		Where("vendor_ref = ?", input.VendorRef).
		Updates(updates).Error
	if err != nil {
		return nil, err
	}
	return r.FindByRef(ctx, input.VendorRef)
}

func (r *repository) upsertLegacy(ctx context.Context, input UpsertVendor) (*models.VendorBackend, error) {
	existing, err := r.FindByRef(ctx, input.VendorRef)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if existing == nil {
		err := r.db.WithContext(ctx).Exec(
			`INSERT INTO vendor_backends (id, vendor_id, offer_url, last_latitude, last_longitude)
			 VALUES (?, ?, ?, ?, ?)`,
			uuid.New(), input.VendorRef, input.OfferURL, input.Latitude, input.Longitude,
		).Error
		if err != nil {
			return nil, err
		}
		return r.FindByRef(ctx, input.VendorRef)
	}

	if input.OfferURL != "" {
		err = r.db.WithContext(ctx).Exec(
			`UPDATE vendor_backends SET offer_url = ?, last_latitude = ?, last_longitude = ? WHERE vendor_id = ?`,
			input.OfferURL, input.Latitude, input.Longitude, input.VendorRef,
		).Error
	} else {
		err = r.db.WithContext(ctx).Exec(
			`UPDATE vendor_backends SET last_latitude = ?, last_longitude = ? WHERE vendor_id = ?`,
			input.Latitude, input.Longitude, input.VendorRef,
		).Error
	}
	if err != nil {
		return nil, err
	}
	return r.FindByRef(ctx, input.VendorRef)
}

// isMissingColumn reports whether the error is an undefined-column failure
// from postgres (42703) or sqlite.
func isMissingColumn(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42703"
	}
	return strings.Contains(err.Error(), "no such column")
}
