package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/scrapco/scrapco-backend/api/responses"
	"github.com/scrapco/scrapco-backend/api/validators"
	"github.com/scrapco/scrapco-backend/internal/pickups"
	"github.com/scrapco/scrapco-backend/pkg/db/models"
	"github.com/scrapco/scrapco-backend/pkg/enums"
	pkgerrors "github.com/scrapco/scrapco-backend/pkg/errors"
	"github.com/scrapco/scrapco-backend/pkg/logger"
)

// callbackEngine is the dispatch surface vendor callbacks drive.
type callbackEngine interface {
	OnAccept(ctx context.Context, pickupID uuid.UUID, vendorRef string) (*models.Pickup, bool, error)
	OnReject(ctx context.Context, pickupID uuid.UUID, vendorRef string) (bool, error)
	DiscardSession(pickupID uuid.UUID)
}

// vendorCallbackPayload tolerates the field spellings used by deployed
// vendor integrations.
type vendorCallbackPayload struct {
	PickupID       string `json:"pickup_id"`
	PickupIDCamel  string `json:"pickupId"`
	RequestID      string `json:"request_id"`
	RequestIDCamel string `json:"requestId"`

	AssignedVendorRef string `json:"assignedVendorRef"`
	VendorID          string `json:"vendor_id"`
	VendorIDCamel     string `json:"vendorId"`
}

func (p vendorCallbackPayload) pickupID() (uuid.UUID, error) {
	raw := firstNonEmpty(p.PickupID, p.PickupIDCamel, p.RequestID, p.RequestIDCamel)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "pickup id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid pickup id")
	}
	return id, nil
}

func (p vendorCallbackPayload) vendorRef() (string, error) {
	ref := firstNonEmpty(p.AssignedVendorRef, p.VendorID, p.VendorIDCamel)
	if ref == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "vendor ref is required")
	}
	return ref, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

type callbackResult struct {
	PickupID uuid.UUID          `json:"pickup_id"`
	Status   enums.PickupStatus `json:"status"`
}

// VendorAccept confirms an outstanding offer for the calling vendor.
func VendorAccept(engine callbackEngine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pickupID, vendorRef, err := parseCallback(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pickup, modified, err := engine.OnAccept(r.Context(), pickupID, vendorRef)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "accept offer"))
			return
		}
		if !modified {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeStateConflict, "offer is no longer available to this vendor"))
			return
		}
		responses.WriteSuccess(w, callbackResult{PickupID: pickup.ID, Status: pickup.Status})
	}
}

// VendorReject releases an outstanding offer and advances the search.
func VendorReject(engine callbackEngine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pickupID, vendorRef, err := parseCallback(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		released, err := engine.OnReject(r.Context(), pickupID, vendorRef)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject offer"))
			return
		}
		if !released {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeStateConflict, "offer is no longer held by this vendor"))
			return
		}
		responses.WriteSuccess(w, callbackResult{PickupID: pickupID, Status: enums.PickupStatusFindingVendor})
	}
}

// VendorOnTheWay marks an assigned pickup as in transit.
func VendorOnTheWay(repo pickups.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pickupID, vendorRef, err := parseCallback(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pickup, modified, err := repo.SetOnTheWay(r.Context(), pickupID, vendorRef)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark on the way"))
			return
		}
		if !modified {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeStateConflict, "pickup is not owned by this vendor"))
			return
		}
		responses.WriteSuccess(w, callbackResult{PickupID: pickup.ID, Status: pickup.Status})
	}
}

// VendorPickupDone completes a pickup and tears down any lingering dispatch
// session.
func VendorPickupDone(repo pickups.Repository, engine callbackEngine, logg *logger.Logger, now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		pickupID, vendorRef, err := parseCallback(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pickup, modified, err := repo.Complete(r.Context(), pickupID, vendorRef, now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete pickup"))
			return
		}
		if !modified {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeStateConflict, "pickup is not owned by this vendor"))
			return
		}

		engine.DiscardSession(pickupID)
		responses.WriteSuccess(w, callbackResult{PickupID: pickup.ID, Status: pickup.Status})
	}
}

func parseCallback(r *http.Request) (uuid.UUID, string, error) {
	var payload vendorCallbackPayload
	if err := validators.DecodeJSONBody(r, &payload); err != nil {
		return uuid.Nil, "", err
	}
	pickupID, err := payload.pickupID()
	if err != nil {
		return uuid.Nil, "", err
	}
	vendorRef, err := payload.vendorRef()
	if err != nil {
		return uuid.Nil, "", err
	}
	return pickupID, vendorRef, nil
}
