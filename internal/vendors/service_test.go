package vendors

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/scrapco/scrapco-backend/pkg/db/models"
	pkgerrors "github.com/scrapco/scrapco-backend/pkg/errors"
	"github.com/scrapco/scrapco-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubVendorsRepo struct {
	vendors []models.VendorBackend
	listErr error
	upsert  func(ctx context.Context, input UpsertVendor) (*models.VendorBackend, error)
}

func (s *stubVendorsRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubVendorsRepo) List(ctx context.Context) ([]models.VendorBackend, error) {
	return s.vendors, s.listErr
}

func (s *stubVendorsRepo) FindByRef(ctx context.Context, vendorRef string) (*models.VendorBackend, error) {
	for i := range s.vendors {
		if s.vendors[i].VendorRef == vendorRef {
			return &s.vendors[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubVendorsRepo) Upsert(ctx context.Context, input UpsertVendor) (*models.VendorBackend, error) {
	if s.upsert != nil {
		return s.upsert(ctx, input)
	}
	return &models.VendorBackend{
		VendorRef: input.VendorRef,
		OfferURL:  input.OfferURL,
		Latitude:  input.Latitude,
		Longitude: input.Longitude,
	}, nil
}

func newTestVendorService(t *testing.T, repo Repository, allowLoopback bool) Service {
	t.Helper()

	svc, err := NewService(ServiceParams{
		Repo:          repo,
		Logger:        logger.New(logger.Options{Level: zerolog.Disabled}),
		AllowLoopback: allowLoopback,
	})
	require.NoError(t, err)
	return svc
}

func TestServiceUpdateLocation(t *testing.T) {
	ctx := context.Background()

	t.Run("requires vendor_ref", func(t *testing.T) {
		svc := newTestVendorService(t, &stubVendorsRepo{}, false)

		_, err := svc.UpdateLocation(ctx, UpdateLocationInput{OfferURL: "https://a.example.com"})

		var appErr *pkgerrors.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, pkgerrors.CodeValidation, appErr.Code())
	})

	t.Run("rejects loopback offer url in production mode", func(t *testing.T) {
		svc := newTestVendorService(t, &stubVendorsRepo{}, false)

		_, err := svc.UpdateLocation(ctx, UpdateLocationInput{
			VendorRef: "vendor-a",
			OfferURL:  "http://localhost:9000",
		})

		var appErr *pkgerrors.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, pkgerrors.CodeValidation, appErr.Code())
	})

	t.Run("allows loopback offer url in dev mode", func(t *testing.T) {
		svc := newTestVendorService(t, &stubVendorsRepo{}, true)

		vendor, err := svc.UpdateLocation(ctx, UpdateLocationInput{
			VendorRef: "vendor-a",
			OfferURL:  "http://localhost:9000",
		})
		require.NoError(t, err)
		assert.Equal(t, "vendor-a", vendor.VendorRef)
	})

	t.Run("rejects non-http schemes", func(t *testing.T) {
		svc := newTestVendorService(t, &stubVendorsRepo{}, true)

		_, err := svc.UpdateLocation(ctx, UpdateLocationInput{
			VendorRef: "vendor-a",
			OfferURL:  "ftp://a.example.com",
		})
		assert.Error(t, err)
	})

	t.Run("empty offer url skips validation and keeps stored value", func(t *testing.T) {
		repo := &stubVendorsRepo{upsert: func(ctx context.Context, input UpsertVendor) (*models.VendorBackend, error) {
			assert.Empty(t, input.OfferURL)
			return &models.VendorBackend{VendorRef: input.VendorRef, OfferURL: "https://stored.example.com"}, nil
		}}
		svc := newTestVendorService(t, repo, false)

		vendor, err := svc.UpdateLocation(ctx, UpdateLocationInput{VendorRef: "vendor-a"})
		require.NoError(t, err)
		assert.Equal(t, "https://stored.example.com", vendor.OfferURL)
	})
}

func TestServiceList(t *testing.T) {
	ctx := context.Background()

	t.Run("returns snapshot", func(t *testing.T) {
		repo := &stubVendorsRepo{vendors: []models.VendorBackend{{VendorRef: "vendor-a"}}}
		svc := newTestVendorService(t, repo, false)

		assert.Len(t, svc.List(ctx), 1)
	})

	t.Run("store failure degrades to empty", func(t *testing.T) {
		repo := &stubVendorsRepo{listErr: errors.New("connection refused")}
		svc := newTestVendorService(t, repo, false)

		assert.Empty(t, svc.List(ctx))
	})
}
