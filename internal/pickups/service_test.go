package pickups

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/scrapco/scrapco-backend/pkg/db/models"
	"github.com/scrapco/scrapco-backend/pkg/enums"
	pkgerrors "github.com/scrapco/scrapco-backend/pkg/errors"
	"github.com/scrapco/scrapco-backend/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubPickupsRepo struct {
	Repository

	pickup  *models.Pickup
	items   []models.PickupItem
	cancel  func(ctx context.Context, id, customerID uuid.UUID, now time.Time) (*models.Pickup, bool, error)
	retry   func(ctx context.Context, id, customerID uuid.UUID) (*models.Pickup, bool, error)
	created []*models.Pickup
}

func (s *stubPickupsRepo) WithTx(tx *gorm.DB) Repository {
	return s
}

func (s *stubPickupsRepo) Create(ctx context.Context, pickup *models.Pickup) (*models.Pickup, error) {
	if pickup.ID == uuid.Nil {
		pickup.ID = uuid.New()
	}
	pickup.Status = enums.PickupStatusRequested
	s.created = append(s.created, pickup)
	return pickup, nil
}

func (s *stubPickupsRepo) CreateItems(ctx context.Context, items []models.PickupItem) error {
	s.items = append(s.items, items...)
	return nil
}

func (s *stubPickupsRepo) FindByIDForCustomer(ctx context.Context, id, customerID uuid.UUID) (*models.Pickup, error) {
	if s.pickup == nil || s.pickup.ID != id || s.pickup.CustomerID != customerID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.pickup, nil
}

func (s *stubPickupsRepo) ListItems(ctx context.Context, pickupID uuid.UUID) ([]models.PickupItem, error) {
	return s.items, nil
}

func (s *stubPickupsRepo) Cancel(ctx context.Context, id, customerID uuid.UUID, now time.Time) (*models.Pickup, bool, error) {
	return s.cancel(ctx, id, customerID, now)
}

func (s *stubPickupsRepo) Retry(ctx context.Context, id, customerID uuid.UUID) (*models.Pickup, bool, error) {
	return s.retry(ctx, id, customerID)
}

type stubVendorDirectory struct {
	vendor *models.VendorBackend
	err    error
}

func (s *stubVendorDirectory) FindByRef(ctx context.Context, vendorRef string) (*models.VendorBackend, error) {
	return s.vendor, s.err
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type recordingDispatcher struct {
	mu         sync.Mutex
	dispatched []uuid.UUID
	discarded  []uuid.UUID
	wg         sync.WaitGroup
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, pickupID uuid.UUID, skipRefs ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched = append(d.dispatched, pickupID)
	d.wg.Done()
}

func (d *recordingDispatcher) DiscardSession(pickupID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.discarded = append(d.discarded, pickupID)
}

func newTestService(t *testing.T, repo *stubPickupsRepo, vendors *stubVendorDirectory, dispatcher *recordingDispatcher) Service {
	t.Helper()

	if vendors == nil {
		vendors = &stubVendorDirectory{}
	}
	svc, err := NewService(ServiceParams{
		Repo:       repo,
		Vendors:    vendors,
		Tx:         stubTxRunner{},
		Dispatcher: dispatcher,
		Logger:     logger.New(logger.Options{Level: zerolog.Disabled}),
	})
	require.NoError(t, err)
	return svc
}

func TestServiceCreate(t *testing.T) {
	ctx := context.Background()
	customerID := uuid.New()

	validInput := func() CreatePickupInput {
		return CreatePickupInput{
			Address:  "12 Scrapyard Lane",
			TimeSlot: "morning",
			Items: []CreatePickupItemInput{
				{ScrapTypeID: uuid.New(), EstimatedQuantity: decimal.NewFromInt(5)},
			},
		}
	}

	t.Run("creates and kicks off dispatch", func(t *testing.T) {
		repo := &stubPickupsRepo{}
		dispatcher := &recordingDispatcher{}
		dispatcher.wg.Add(1)
		svc := newTestService(t, repo, nil, dispatcher)

		detail, err := svc.Create(ctx, customerID, validInput())
		require.NoError(t, err)
		assert.Equal(t, enums.PickupStatusRequested, detail.Pickup.Status)
		require.Len(t, detail.Items, 1)
		require.Len(t, repo.created, 1)
		assert.Equal(t, customerID, repo.created[0].CustomerID)

		dispatcher.wg.Wait()
		assert.Equal(t, []uuid.UUID{detail.Pickup.ID}, dispatcher.dispatched)
	})

	t.Run("rejects empty items", func(t *testing.T) {
		repo := &stubPickupsRepo{}
		svc := newTestService(t, repo, nil, &recordingDispatcher{})

		input := validInput()
		input.Items = nil
		_, err := svc.Create(ctx, customerID, input)

		var appErr *pkgerrors.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, pkgerrors.CodeValidation, appErr.Code())
	})

	t.Run("rejects non-positive quantities", func(t *testing.T) {
		repo := &stubPickupsRepo{}
		svc := newTestService(t, repo, nil, &recordingDispatcher{})

		input := validInput()
		input.Items[0].EstimatedQuantity = decimal.Zero
		_, err := svc.Create(ctx, customerID, input)

		var appErr *pkgerrors.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, pkgerrors.CodeValidation, appErr.Code())
	})
}

func TestServiceGet(t *testing.T) {
	ctx := context.Background()
	customerID := uuid.New()
	pickupID := uuid.New()

	t.Run("not found for another customer", func(t *testing.T) {
		repo := &stubPickupsRepo{pickup: &models.Pickup{ID: pickupID, CustomerID: uuid.New()}}
		svc := newTestService(t, repo, nil, &recordingDispatcher{})

		_, err := svc.Get(ctx, customerID, pickupID)

		var appErr *pkgerrors.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, pkgerrors.CodeNotFound, appErr.Code())
	})

	t.Run("enriches assigned pickup with vendor and eta", func(t *testing.T) {
		lat, lon := 12.9716, 77.5946
		vendorLat, vendorLon := 12.9352, 77.6245
		ref := "vendor-a"
		repo := &stubPickupsRepo{pickup: &models.Pickup{
			ID:                pickupID,
			CustomerID:        customerID,
			Status:            enums.PickupStatusAssigned,
			Latitude:          &lat,
			Longitude:         &lon,
			AssignedVendorRef: &ref,
		}}
		vendors := &stubVendorDirectory{vendor: &models.VendorBackend{
			VendorRef: ref,
			Latitude:  &vendorLat,
			Longitude: &vendorLon,
		}}
		svc := newTestService(t, repo, vendors, &recordingDispatcher{})

		detail, err := svc.Get(ctx, customerID, pickupID)
		require.NoError(t, err)
		require.NotNil(t, detail.Vendor)
		assert.Equal(t, ref, detail.Vendor.VendorRef)
		require.NotNil(t, detail.ETAMinutes)
		// ~5 km away at 20 km/h is ~15 minutes, comfortably inside the clamp.
		assert.InDelta(t, 15, *detail.ETAMinutes, 5)
	})

	t.Run("eta floors at five minutes", func(t *testing.T) {
		lat, lon := 12.9716, 77.5946
		ref := "vendor-a"
		repo := &stubPickupsRepo{pickup: &models.Pickup{
			ID:                pickupID,
			CustomerID:        customerID,
			Status:            enums.PickupStatusAssigned,
			Latitude:          &lat,
			Longitude:         &lon,
			AssignedVendorRef: &ref,
		}}
		vendors := &stubVendorDirectory{vendor: &models.VendorBackend{
			VendorRef: ref,
			Latitude:  &lat,
			Longitude: &lon,
		}}
		svc := newTestService(t, repo, vendors, &recordingDispatcher{})

		detail, err := svc.Get(ctx, customerID, pickupID)
		require.NoError(t, err)
		require.NotNil(t, detail.ETAMinutes)
		assert.Equal(t, 5, *detail.ETAMinutes)
	})

	t.Run("vendor lookup failure degrades to bare pickup", func(t *testing.T) {
		ref := "vendor-a"
		repo := &stubPickupsRepo{pickup: &models.Pickup{
			ID:                pickupID,
			CustomerID:        customerID,
			Status:            enums.PickupStatusAssigned,
			AssignedVendorRef: &ref,
		}}
		vendors := &stubVendorDirectory{err: gorm.ErrRecordNotFound}
		svc := newTestService(t, repo, vendors, &recordingDispatcher{})

		detail, err := svc.Get(ctx, customerID, pickupID)
		require.NoError(t, err)
		assert.Nil(t, detail.Vendor)
		assert.Nil(t, detail.ETAMinutes)
	})
}

func TestServiceCancel(t *testing.T) {
	ctx := context.Background()
	customerID := uuid.New()
	pickupID := uuid.New()

	t.Run("cancels and discards the session", func(t *testing.T) {
		repo := &stubPickupsRepo{
			cancel: func(ctx context.Context, id, cID uuid.UUID, now time.Time) (*models.Pickup, bool, error) {
				return &models.Pickup{ID: id, CustomerID: cID, Status: enums.PickupStatusCancelled}, true, nil
			},
		}
		dispatcher := &recordingDispatcher{}
		svc := newTestService(t, repo, nil, dispatcher)

		dto, err := svc.Cancel(ctx, customerID, pickupID)
		require.NoError(t, err)
		assert.Equal(t, enums.PickupStatusCancelled, dto.Status)
		assert.Equal(t, []uuid.UUID{pickupID}, dispatcher.discarded)
	})

	t.Run("completed pickup conflicts", func(t *testing.T) {
		repo := &stubPickupsRepo{
			cancel: func(ctx context.Context, id, cID uuid.UUID, now time.Time) (*models.Pickup, bool, error) {
				return &models.Pickup{ID: id, CustomerID: cID, Status: enums.PickupStatusCompleted}, false, nil
			},
		}
		svc := newTestService(t, repo, nil, &recordingDispatcher{})

		_, err := svc.Cancel(ctx, customerID, pickupID)

		var appErr *pkgerrors.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())
	})

	t.Run("repeat cancel succeeds quietly", func(t *testing.T) {
		repo := &stubPickupsRepo{
			cancel: func(ctx context.Context, id, cID uuid.UUID, now time.Time) (*models.Pickup, bool, error) {
				return &models.Pickup{ID: id, CustomerID: cID, Status: enums.PickupStatusCancelled}, false, nil
			},
		}
		svc := newTestService(t, repo, nil, &recordingDispatcher{})

		dto, err := svc.Cancel(ctx, customerID, pickupID)
		require.NoError(t, err)
		assert.Equal(t, enums.PickupStatusCancelled, dto.Status)
	})
}

func TestServiceFindVendor(t *testing.T) {
	ctx := context.Background()
	customerID := uuid.New()
	pickupID := uuid.New()

	t.Run("restarts dispatch after retry", func(t *testing.T) {
		repo := &stubPickupsRepo{
			retry: func(ctx context.Context, id, cID uuid.UUID) (*models.Pickup, bool, error) {
				return &models.Pickup{ID: id, CustomerID: cID, Status: enums.PickupStatusFindingVendor}, true, nil
			},
		}
		dispatcher := &recordingDispatcher{}
		dispatcher.wg.Add(1)
		svc := newTestService(t, repo, nil, dispatcher)

		dto, err := svc.FindVendor(ctx, customerID, pickupID)
		require.NoError(t, err)
		assert.Equal(t, enums.PickupStatusFindingVendor, dto.Status)

		dispatcher.wg.Wait()
		assert.Equal(t, []uuid.UUID{pickupID}, dispatcher.discarded)
		assert.Equal(t, []uuid.UUID{pickupID}, dispatcher.dispatched)
	})

	t.Run("terminal pickup conflicts", func(t *testing.T) {
		repo := &stubPickupsRepo{
			retry: func(ctx context.Context, id, cID uuid.UUID) (*models.Pickup, bool, error) {
				return &models.Pickup{ID: id, CustomerID: cID, Status: enums.PickupStatusOnTheWay}, false, nil
			},
		}
		svc := newTestService(t, repo, nil, &recordingDispatcher{})

		_, err := svc.FindVendor(ctx, customerID, pickupID)

		var appErr *pkgerrors.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())
	})
}
