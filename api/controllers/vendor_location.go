package controllers

import (
	"net/http"

	"github.com/scrapco/scrapco-backend/api/responses"
	"github.com/scrapco/scrapco-backend/api/validators"
	"github.com/scrapco/scrapco-backend/internal/vendors"
	"github.com/scrapco/scrapco-backend/pkg/logger"
)

type vendorLocationResponse struct {
	VendorRef string   `json:"vendor_ref"`
	OfferURL  string   `json:"offer_url"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// VendorLocation upserts a vendor directory row. Omitting offer_url keeps
// the previously registered one.
func VendorLocation(svc vendors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input vendors.UpdateLocationInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		vendor, err := svc.UpdateLocation(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, vendorLocationResponse{
			VendorRef: vendor.VendorRef,
			OfferURL:  vendor.OfferURL,
			Latitude:  vendor.Latitude,
			Longitude: vendor.Longitude,
		})
	}
}
