package vendors

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/scrapco/scrapco-backend/pkg/db/models"
	pkgerrors "github.com/scrapco/scrapco-backend/pkg/errors"
	"github.com/scrapco/scrapco-backend/pkg/logger"
	"github.com/scrapco/scrapco-backend/pkg/offerurl"
	"gorm.io/gorm"
)

// UpdateLocationInput is the vendor location ingestion payload.
type UpdateLocationInput struct {
	VendorRef string   `json:"vendor_ref"`
	OfferURL  string   `json:"offer_url"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Service exposes vendor directory operations.
type Service interface {
	List(ctx context.Context) []models.VendorBackend
	FindByRef(ctx context.Context, vendorRef string) (*models.VendorBackend, error)
	UpdateLocation(ctx context.Context, input UpdateLocationInput) (*models.VendorBackend, error)
}

type service struct {
	repo          Repository
	logg          *logger.Logger
	allowLoopback bool
}

// ServiceParams wires the vendor service dependencies.
type ServiceParams struct {
	Repo   Repository
	Logger *logger.Logger
	// AllowLoopback permits loopback offer URLs; enabled outside production.
	AllowLoopback bool
}

// NewService builds the vendor directory service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("vendors repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:          params.Repo,
		logg:          params.Logger,
		allowLoopback: params.AllowLoopback,
	}, nil
}

// List returns a snapshot of the directory. A store failure degrades to an
// empty snapshot so the dispatch loop can yield NO_VENDOR_AVAILABLE instead
// of crashing.
func (s *service) List(ctx context.Context) []models.VendorBackend {
	vendors, err := s.repo.List(ctx)
	if err != nil {
		s.logg.Error(ctx, "vendor directory snapshot failed", err)
		return nil
	}
	return vendors
}

func (s *service) FindByRef(ctx context.Context, vendorRef string) (*models.VendorBackend, error) {
	vendor, err := s.repo.FindByRef(ctx, vendorRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
	}
	return vendor, nil
}

func (s *service) UpdateLocation(ctx context.Context, input UpdateLocationInput) (*models.VendorBackend, error) {
	if input.VendorRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor_ref is required")
	}
	if input.OfferURL != "" {
		if err := offerurl.Validate(input.OfferURL, s.allowLoopback); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid offer_url")
		}
		if s.allowLoopback {
			if parsed, err := url.Parse(input.OfferURL); err == nil && offerurl.IsLoopbackHost(parsed.Hostname()) {
				s.logg.Warn(s.logg.WithVendorRef(ctx, input.VendorRef), "loopback offer_url registered")
			}
		}
	}

	vendor, err := s.repo.Upsert(ctx, UpsertVendor{
		VendorRef: input.VendorRef,
		OfferURL:  input.OfferURL,
		Latitude:  input.Latitude,
		Longitude: input.Longitude,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert vendor")
	}

	ctx = s.logg.WithVendorRef(ctx, vendor.VendorRef)
	s.logg.Info(ctx, "vendor location updated")
	return vendor, nil
}
