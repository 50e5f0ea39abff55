package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/scrapco/scrapco-backend/internal/pickups"
	"github.com/scrapco/scrapco-backend/pkg/db/models"
	"github.com/scrapco/scrapco-backend/pkg/enums"
)

type testCallbackEngine struct {
	acceptFn  func(ctx context.Context, pickupID uuid.UUID, vendorRef string) (*models.Pickup, bool, error)
	rejectFn  func(ctx context.Context, pickupID uuid.UUID, vendorRef string) (bool, error)
	discarded []uuid.UUID
}

func (e *testCallbackEngine) OnAccept(ctx context.Context, pickupID uuid.UUID, vendorRef string) (*models.Pickup, bool, error) {
	if e.acceptFn != nil {
		return e.acceptFn(ctx, pickupID, vendorRef)
	}
	return &models.Pickup{ID: pickupID, Status: enums.PickupStatusAssigned}, true, nil
}

func (e *testCallbackEngine) OnReject(ctx context.Context, pickupID uuid.UUID, vendorRef string) (bool, error) {
	if e.rejectFn != nil {
		return e.rejectFn(ctx, pickupID, vendorRef)
	}
	return true, nil
}

func (e *testCallbackEngine) DiscardSession(pickupID uuid.UUID) {
	e.discarded = append(e.discarded, pickupID)
}

type testCallbackRepo struct {
	pickups.Repository
	setOnTheWayFn func(ctx context.Context, id uuid.UUID, vendorRef string) (*models.Pickup, bool, error)
	completeFn    func(ctx context.Context, id uuid.UUID, vendorRef string, now time.Time) (*models.Pickup, bool, error)
}

func (r *testCallbackRepo) SetOnTheWay(ctx context.Context, id uuid.UUID, vendorRef string) (*models.Pickup, bool, error) {
	if r.setOnTheWayFn != nil {
		return r.setOnTheWayFn(ctx, id, vendorRef)
	}
	return &models.Pickup{ID: id, Status: enums.PickupStatusOnTheWay}, true, nil
}

func (r *testCallbackRepo) Complete(ctx context.Context, id uuid.UUID, vendorRef string, now time.Time) (*models.Pickup, bool, error) {
	if r.completeFn != nil {
		return r.completeFn(ctx, id, vendorRef, now)
	}
	return &models.Pickup{ID: id, Status: enums.PickupStatusCompleted}, true, nil
}

func callbackRequest(t *testing.T, path, body string) *http.Request {
	t.Helper()
	return httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
}

func TestVendorAcceptSuccess(t *testing.T) {
	pickupID := uuid.New()
	engine := &testCallbackEngine{
		acceptFn: func(ctx context.Context, pid uuid.UUID, ref string) (*models.Pickup, bool, error) {
			if pid != pickupID {
				t.Fatalf("unexpected pickup %s", pid)
			}
			if ref != "vendor-7" {
				t.Fatalf("unexpected vendor %q", ref)
			}
			return &models.Pickup{ID: pid, Status: enums.PickupStatusAssigned}, true, nil
		},
	}

	body := `{"pickup_id":"` + pickupID.String() + `","vendor_id":"vendor-7"}`
	resp := httptest.NewRecorder()
	VendorAccept(engine, testLogger())(resp, callbackRequest(t, "/api/vendor/accept", body))

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data callbackResult `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.Status != enums.PickupStatusAssigned {
		t.Fatalf("unexpected status %s", envelope.Data.Status)
	}
}

func TestVendorAcceptFieldAliases(t *testing.T) {
	pickupID := uuid.New()
	var gotRef string
	engine := &testCallbackEngine{
		acceptFn: func(ctx context.Context, pid uuid.UUID, ref string) (*models.Pickup, bool, error) {
			gotRef = ref
			if pid != pickupID {
				t.Fatalf("unexpected pickup %s", pid)
			}
			return &models.Pickup{ID: pid, Status: enums.PickupStatusAssigned}, true, nil
		},
	}

	// Legacy integrations send request_id and assignedVendorRef.
	body := `{"request_id":"` + pickupID.String() + `","assignedVendorRef":"vendor-legacy"}`
	resp := httptest.NewRecorder()
	VendorAccept(engine, testLogger())(resp, callbackRequest(t, "/api/vendor/accept", body))

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if gotRef != "vendor-legacy" {
		t.Fatalf("unexpected vendor ref %q", gotRef)
	}
}

func TestVendorAcceptLostRace(t *testing.T) {
	engine := &testCallbackEngine{
		acceptFn: func(ctx context.Context, pid uuid.UUID, ref string) (*models.Pickup, bool, error) {
			return nil, false, nil
		},
	}
	body := `{"pickupId":"` + uuid.NewString() + `","vendorId":"vendor-7"}`
	resp := httptest.NewRecorder()
	VendorAccept(engine, testLogger())(resp, callbackRequest(t, "/api/vendor/accept", body))
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestVendorAcceptMissingVendor(t *testing.T) {
	body := `{"pickup_id":"` + uuid.NewString() + `"}`
	resp := httptest.NewRecorder()
	VendorAccept(&testCallbackEngine{}, testLogger())(resp, callbackRequest(t, "/api/vendor/accept", body))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestVendorAcceptBadPickupID(t *testing.T) {
	body := `{"pickup_id":"nope","vendor_id":"vendor-7"}`
	resp := httptest.NewRecorder()
	VendorAccept(&testCallbackEngine{}, testLogger())(resp, callbackRequest(t, "/api/vendor/accept", body))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestVendorRejectLate(t *testing.T) {
	engine := &testCallbackEngine{
		rejectFn: func(ctx context.Context, pid uuid.UUID, ref string) (bool, error) {
			return false, nil
		},
	}
	body := `{"pickup_id":"` + uuid.NewString() + `","vendor_id":"vendor-7"}`
	resp := httptest.NewRecorder()
	VendorReject(engine, testLogger())(resp, callbackRequest(t, "/api/vendor/reject", body))
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestVendorRejectSuccess(t *testing.T) {
	engine := &testCallbackEngine{}
	body := `{"pickup_id":"` + uuid.NewString() + `","vendor_id":"vendor-7"}`
	resp := httptest.NewRecorder()
	VendorReject(engine, testLogger())(resp, callbackRequest(t, "/api/vendor/reject", body))
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestVendorOnTheWayWrongVendor(t *testing.T) {
	repo := &testCallbackRepo{
		setOnTheWayFn: func(ctx context.Context, id uuid.UUID, ref string) (*models.Pickup, bool, error) {
			return &models.Pickup{ID: id}, false, nil
		},
	}
	body := `{"pickup_id":"` + uuid.NewString() + `","vendor_id":"vendor-other"}`
	resp := httptest.NewRecorder()
	VendorOnTheWay(repo, testLogger())(resp, callbackRequest(t, "/api/vendor/on-the-way", body))
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestVendorPickupDoneDiscardsSession(t *testing.T) {
	pickupID := uuid.New()
	engine := &testCallbackEngine{}
	repo := &testCallbackRepo{}
	body := `{"pickup_id":"` + pickupID.String() + `","vendor_id":"vendor-7"}`
	resp := httptest.NewRecorder()
	VendorPickupDone(repo, engine, testLogger(), nil)(resp, callbackRequest(t, "/api/vendor/pickup-done", body))

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if len(engine.discarded) != 1 || engine.discarded[0] != pickupID {
		t.Fatalf("expected session discard for %s, got %v", pickupID, engine.discarded)
	}
}

func TestVendorPickupDoneWrongVendorKeepsSession(t *testing.T) {
	engine := &testCallbackEngine{}
	repo := &testCallbackRepo{
		completeFn: func(ctx context.Context, id uuid.UUID, ref string, now time.Time) (*models.Pickup, bool, error) {
			return &models.Pickup{ID: id}, false, nil
		},
	}
	body := `{"pickup_id":"` + uuid.NewString() + `","vendor_id":"vendor-other"}`
	resp := httptest.NewRecorder()
	VendorPickupDone(repo, engine, testLogger(), nil)(resp, callbackRequest(t, "/api/vendor/pickup-done", body))

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	if len(engine.discarded) != 0 {
		t.Fatalf("expected no session discard, got %v", engine.discarded)
	}
}
