package pickups

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/scrapco/scrapco-backend/pkg/db/models"
	"github.com/scrapco/scrapco-backend/pkg/enums"
	pkgerrors "github.com/scrapco/scrapco-backend/pkg/errors"
	"github.com/scrapco/scrapco-backend/pkg/geo"
	"github.com/scrapco/scrapco-backend/pkg/logger"
	"gorm.io/gorm"
)

// pickupSpeedKmh is the assumed vendor travel speed for ETA estimates.
const pickupSpeedKmh = 20.0

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type vendorDirectory interface {
	FindByRef(ctx context.Context, vendorRef string) (*models.VendorBackend, error)
}

// Dispatcher is the engine surface the pickup service drives. Dispatch runs
// the candidate loop for a pickup; DiscardSession tears down any in-memory
// session and armed timer.
type Dispatcher interface {
	Dispatch(ctx context.Context, pickupID uuid.UUID, skipRefs ...string)
	DiscardSession(pickupID uuid.UUID)
}

// Service exposes the customer-facing pickup operations.
type Service interface {
	Create(ctx context.Context, customerID uuid.UUID, input CreatePickupInput) (*PickupDetail, error)
	Get(ctx context.Context, customerID, pickupID uuid.UUID) (*PickupDetail, error)
	List(ctx context.Context, customerID uuid.UUID) ([]PickupDTO, error)
	Cancel(ctx context.Context, customerID, pickupID uuid.UUID) (*PickupDTO, error)
	FindVendor(ctx context.Context, customerID, pickupID uuid.UUID) (*PickupDTO, error)
}

type service struct {
	repo       Repository
	vendors    vendorDirectory
	tx         txRunner
	dispatcher Dispatcher
	logg       *logger.Logger
	now        func() time.Time
}

// ServiceParams wires the pickup service dependencies.
type ServiceParams struct {
	Repo       Repository
	Vendors    vendorDirectory
	Tx         txRunner
	Dispatcher Dispatcher
	Logger     *logger.Logger
	Now        func() time.Time
}

// NewService builds the pickup service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("pickups repository required")
	}
	if params.Vendors == nil {
		return nil, fmt.Errorf("vendor directory required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:       params.Repo,
		vendors:    params.Vendors,
		tx:         params.Tx,
		dispatcher: params.Dispatcher,
		logg:       params.Logger,
		now:        now,
	}, nil
}

func (s *service) Create(ctx context.Context, customerID uuid.UUID, input CreatePickupInput) (*PickupDetail, error) {
	if input.Address == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address is required")
	}
	if input.TimeSlot == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "time_slot is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	for _, item := range input.Items {
		if item.ScrapTypeID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item scrap_type_id is required")
		}
		if item.EstimatedQuantity.Sign() <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item estimated_quantity must be positive")
		}
	}

	var created *models.Pickup
	var createdItems []models.PickupItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		pickup, err := repo.Create(ctx, &models.Pickup{
			CustomerID: customerID,
			Address:    input.Address,
			Latitude:   input.Latitude,
			Longitude:  input.Longitude,
			TimeSlot:   input.TimeSlot,
		})
		if err != nil {
			return err
		}

		items := make([]models.PickupItem, 0, len(input.Items))
		for _, item := range input.Items {
			items = append(items, models.PickupItem{
				PickupID:          pickup.ID,
				ScrapTypeID:       item.ScrapTypeID,
				EstimatedQuantity: item.EstimatedQuantity,
			})
		}
		if err := repo.CreateItems(ctx, items); err != nil {
			return err
		}

		created = pickup
		createdItems = items
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create pickup")
	}

	ctx = s.logg.WithPickupID(ctx, created.ID.String())
	s.logg.Info(ctx, "pickup created, starting dispatch")
	go s.dispatcher.Dispatch(context.WithoutCancel(ctx), created.ID)

	return &PickupDetail{
		Pickup: toPickupDTO(created),
		Items:  toItemDTOs(createdItems),
	}, nil
}

func (s *service) Get(ctx context.Context, customerID, pickupID uuid.UUID) (*PickupDetail, error) {
	pickup, err := s.repo.FindByIDForCustomer(ctx, pickupID, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "pickup not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pickup")
	}

	items, err := s.repo.ListItems(ctx, pickupID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pickup items")
	}

	detail := &PickupDetail{
		Pickup: toPickupDTO(pickup),
		Items:  toItemDTOs(items),
	}

	if pickup.AssignedVendorRef != nil {
		vendor, err := s.vendors.FindByRef(ctx, *pickup.AssignedVendorRef)
		if err != nil {
			// Status polling should not fail because the directory row is
			// missing or the lookup hiccuped.
			s.logg.Error(ctx, "assigned vendor lookup failed", err)
		} else {
			detail.Vendor = &AssignedVendorDTO{
				VendorRef: vendor.VendorRef,
				Latitude:  vendor.Latitude,
				Longitude: vendor.Longitude,
			}
			detail.ETAMinutes = etaMinutes(pickup, vendor)
		}
	}

	return detail, nil
}

func (s *service) List(ctx context.Context, customerID uuid.UUID) ([]PickupDTO, error) {
	pickups, err := s.repo.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pickups")
	}
	out := make([]PickupDTO, 0, len(pickups))
	for i := range pickups {
		out = append(out, toPickupDTO(&pickups[i]))
	}
	return out, nil
}

func (s *service) Cancel(ctx context.Context, customerID, pickupID uuid.UUID) (*PickupDTO, error) {
	pickup, modified, err := s.repo.Cancel(ctx, pickupID, customerID, s.now().UTC())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "pickup not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel pickup")
	}
	if !modified && pickup.Status != enums.PickupStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "pickup is already completed")
	}

	s.dispatcher.DiscardSession(pickupID)

	ctx = s.logg.WithPickupID(ctx, pickupID.String())
	s.logg.Info(ctx, "pickup cancelled")

	dto := toPickupDTO(pickup)
	return &dto, nil
}

func (s *service) FindVendor(ctx context.Context, customerID, pickupID uuid.UUID) (*PickupDTO, error) {
	pickup, modified, err := s.repo.Retry(ctx, pickupID, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "pickup not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retry pickup")
	}
	if !modified {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("pickup is %s and cannot re-enter vendor search", pickup.Status))
	}

	s.dispatcher.DiscardSession(pickupID)

	ctx = s.logg.WithPickupID(ctx, pickupID.String())
	s.logg.Info(ctx, "pickup re-entering vendor search")
	go s.dispatcher.Dispatch(context.WithoutCancel(ctx), pickupID)

	dto := toPickupDTO(pickup)
	return &dto, nil
}

// etaMinutes estimates vendor arrival in minutes, clamped to [5, 180].
func etaMinutes(pickup *models.Pickup, vendor *models.VendorBackend) *int {
	if pickup.Latitude == nil || pickup.Longitude == nil || !vendor.HasLocation() {
		return nil
	}
	distKm := geo.DistanceKm(*vendor.Latitude, *vendor.Longitude, *pickup.Latitude, *pickup.Longitude)
	minutes := int(math.Round(distKm / pickupSpeedKmh * 60))
	if minutes < 5 {
		minutes = 5
	}
	if minutes > 180 {
		minutes = 180
	}
	return &minutes
}
