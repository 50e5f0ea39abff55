package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/scrapco/scrapco-backend/internal/pickups"
	"github.com/scrapco/scrapco-backend/internal/vendors"
	"github.com/scrapco/scrapco-backend/pkg/db/models"
	"github.com/scrapco/scrapco-backend/pkg/logger"
	"github.com/scrapco/scrapco-backend/pkg/metrics"
	"gorm.io/gorm"
)

// session is the in-memory dispatch state for one pickup. It is advisory:
// the store row is the source of truth and every transition is re-checked
// there. Losing a session (restart) only costs ranking work.
type session struct {
	pickup     *models.Pickup
	summary    string
	candidates []models.VendorBackend
	index      int
	rejected   map[string]struct{}
	currentRef string
	timer      *time.Timer
}

func (s *session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Engine runs the vendor search for pickups: rank, offer, wait, advance.
type Engine struct {
	repo    pickups.Repository
	vendors vendors.Service
	sender  OfferSender
	metrics *metrics.DispatchMetrics
	logg    *logger.Logger

	offerTTL   time.Duration
	timerSlack time.Duration
	now        func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

// EngineParams wires the dispatch engine dependencies.
type EngineParams struct {
	Repo    pickups.Repository
	Vendors vendors.Service
	Sender  OfferSender
	Metrics *metrics.DispatchMetrics
	Logger  *logger.Logger
	// OfferTTL is how long a reserved offer stays valid.
	OfferTTL time.Duration
	// TimerSlack delays the timeout timer past the TTL so the timer never
	// races the store deadline.
	TimerSlack time.Duration
	Now        func() time.Time
}

// NewEngine builds the dispatch engine.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("pickups repository required")
	}
	if params.Vendors == nil {
		return nil, fmt.Errorf("vendor service required")
	}
	if params.Sender == nil {
		return nil, fmt.Errorf("offer sender required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.OfferTTL <= 0 {
		params.OfferTTL = 2 * time.Minute
	}
	if params.TimerSlack <= 0 {
		params.TimerSlack = time.Second
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		repo:       params.Repo,
		vendors:    params.Vendors,
		sender:     params.Sender,
		metrics:    params.Metrics,
		logg:       params.Logger,
		offerTTL:   params.OfferTTL,
		timerSlack: params.TimerSlack,
		now:        now,
		sessions:   make(map[uuid.UUID]*session),
	}, nil
}

// Dispatch starts or restarts the vendor search for a pickup. skipRefs are
// excluded from candidacy on top of persisted rejections.
func (e *Engine) Dispatch(ctx context.Context, pickupID uuid.UUID, skipRefs ...string) {
	ctx = e.logg.WithPickupID(ctx, pickupID.String())

	pickup, err := e.repo.FindByID(ctx, pickupID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			e.logg.Error(ctx, "dispatch: load pickup failed", err)
		}
		return
	}
	if pickup.Status.IsTerminalForDispatch() {
		e.discardStale(pickupID)
		return
	}
	if pickup.HasActiveOffer(e.now().UTC()) {
		// Another actor already holds a live offer for this pickup.
		return
	}

	pickup, modified, err := e.repo.BeginFinding(ctx, pickupID)
	if err != nil {
		e.logg.Error(ctx, "dispatch: begin finding failed", err)
		return
	}
	if !modified {
		// Raced into a terminal state between the load and the update.
		e.discardStale(pickupID)
		return
	}

	snapshot := e.vendors.List(ctx)
	if len(snapshot) == 0 {
		e.logg.Warn(ctx, "dispatch: vendor directory empty, giving up")
		e.giveUp(ctx, pickupID)
		return
	}

	exclude := make(map[string]struct{}, len(skipRefs))
	for _, ref := range skipRefs {
		exclude[ref] = struct{}{}
	}
	rejections, err := e.repo.ListRejections(ctx, pickupID)
	if err != nil {
		e.logg.Error(ctx, "dispatch: load rejections failed", err)
	}
	for _, ref := range rejections {
		exclude[ref] = struct{}{}
	}

	candidates := rankVendors(pickup, snapshot, exclude)
	if len(candidates) == 0 {
		e.logg.Info(ctx, "dispatch: every vendor excluded, giving up")
		e.giveUp(ctx, pickupID)
		return
	}

	summary, err := e.scrapSummary(ctx, pickupID)
	if err != nil {
		e.logg.Error(ctx, "dispatch: item summary failed", err)
	}

	e.mu.Lock()
	if old := e.sessions[pickupID]; old != nil {
		old.stopTimer()
	}
	e.sessions[pickupID] = &session{
		pickup:     pickup,
		summary:    summary,
		candidates: candidates,
		rejected:   make(map[string]struct{}),
	}
	e.mu.Unlock()

	e.advance(ctx, pickupID)
}

// advance walks the candidate list until an offer is delivered, the pickup
// turns terminal, or the candidates run out.
func (e *Engine) advance(ctx context.Context, pickupID uuid.UUID) {
	for {
		e.mu.Lock()
		sess := e.sessions[pickupID]
		if sess == nil {
			e.mu.Unlock()
			return
		}
		if sess.index >= len(sess.candidates) {
			sess.stopTimer()
			delete(e.sessions, pickupID)
			e.mu.Unlock()
			e.giveUp(ctx, pickupID)
			return
		}
		vendor := sess.candidates[sess.index]
		if _, rejected := sess.rejected[vendor.VendorRef]; rejected {
			sess.index++
			e.mu.Unlock()
			continue
		}
		pickup := sess.pickup
		summary := sess.summary
		e.mu.Unlock()

		now := e.now().UTC()

		// Release any stale reservation that lost its timer before trying
		// to take the row for this candidate.
		if _, err := e.repo.ClearAnyExpiredOffer(ctx, pickupID, now); err != nil {
			e.logg.Error(ctx, "dispatch: clear stale offer failed", err)
			return
		}

		reserved, err := e.repo.ReserveOffer(ctx, pickupID, vendor.VendorRef, now.Add(e.offerTTL))
		if err != nil {
			e.logg.Error(ctx, "dispatch: reserve offer failed", err)
			return
		}
		if !reserved {
			fresh, err := e.repo.FindByID(ctx, pickupID)
			if err != nil {
				e.logg.Error(ctx, "dispatch: reload after lost reserve failed", err)
				return
			}
			if fresh.Status.IsTerminalForDispatch() {
				e.discardStale(pickupID)
				return
			}
			if fresh.HasActiveOffer(now) {
				// Another dispatcher owns the pickup now.
				return
			}
			e.bumpIndex(pickupID, vendor.VendorRef)
			continue
		}

		if err := e.sender.SendOffer(ctx, vendor, pickup, summary); err != nil {
			vctx := e.logg.WithVendorRef(ctx, vendor.VendorRef)
			e.logg.Error(vctx, "dispatch: offer send failed, skipping candidate", err)
			e.metrics.IncOfferFailed()

			// The reservation was taken before the send; put it back so the
			// row invariant holds before moving on.
			if _, err := e.repo.ReleaseOffer(ctx, pickupID, vendor.VendorRef); err != nil {
				e.logg.Error(vctx, "dispatch: release failed offer failed", err)
				return
			}
			e.bumpIndex(pickupID, vendor.VendorRef)
			continue
		}

		e.metrics.IncOfferSent()
		e.armTimer(pickupID, vendor.VendorRef)
		return
	}
}

// OnAccept handles a vendor accept callback. A false result means the accept
// lost: wrong vendor, expired offer, or terminal pickup.
func (e *Engine) OnAccept(ctx context.Context, pickupID uuid.UUID, vendorRef string) (*models.Pickup, bool, error) {
	ctx = e.logg.WithFields(ctx, map[string]any{"pickup_id": pickupID.String(), "vendor_ref": vendorRef})

	pickup, modified, err := e.repo.ConfirmAssignment(ctx, pickupID, vendorRef, e.now().UTC())
	if err != nil {
		return nil, false, err
	}
	if !modified {
		return nil, false, nil
	}

	e.DiscardSession(pickupID)
	e.metrics.IncAccept()
	e.logg.Info(ctx, "vendor accepted pickup")
	return pickup, true, nil
}

// OnReject handles a vendor reject callback. A false result means the offer
// was no longer held by this vendor.
func (e *Engine) OnReject(ctx context.Context, pickupID uuid.UUID, vendorRef string) (bool, error) {
	ctx = e.logg.WithFields(ctx, map[string]any{"pickup_id": pickupID.String(), "vendor_ref": vendorRef})

	// Durable memory first, even if the release below loses: a vendor that
	// said no stays excluded across retries and restarts.
	if err := e.repo.RecordRejection(ctx, pickupID, vendorRef); err != nil {
		e.logg.Error(ctx, "record rejection failed", err)
	}

	released, err := e.repo.ReleaseOffer(ctx, pickupID, vendorRef)
	if err != nil {
		return false, err
	}
	if !released {
		return false, nil
	}

	e.metrics.IncReject()
	e.logg.Info(ctx, "vendor rejected pickup")

	e.mu.Lock()
	sess := e.sessions[pickupID]
	if sess != nil {
		sess.rejected[vendorRef] = struct{}{}
		if sess.currentRef == vendorRef {
			sess.index++
			sess.currentRef = ""
			sess.stopTimer()
		}
		e.mu.Unlock()
		go e.advance(context.WithoutCancel(ctx), pickupID)
		return true, nil
	}
	e.mu.Unlock()

	// Server restarted since the offer went out; rebuild from the store.
	go e.Dispatch(context.WithoutCancel(ctx), pickupID, vendorRef)
	return true, nil
}

// OnTimeout fires when a vendor let an offer lapse, from the armed timer or
// from the sweeper.
func (e *Engine) OnTimeout(ctx context.Context, pickupID uuid.UUID, vendorRef string) {
	ctx = e.logg.WithFields(ctx, map[string]any{"pickup_id": pickupID.String(), "vendor_ref": vendorRef})

	pickup, err := e.repo.FindByID(ctx, pickupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			e.DiscardSession(pickupID)
			return
		}
		e.logg.Error(ctx, "timeout: load pickup failed", err)
		return
	}
	if pickup.Status.IsTerminalForDispatch() {
		e.discardStale(pickupID)
		return
	}

	now := e.now().UTC()
	if pickup.AssignmentExpiresAt != nil && pickup.AssignmentExpiresAt.After(now) {
		// Clock skew or the row was re-offered; let the newer deadline win.
		return
	}

	cleared, err := e.repo.ClearExpiredOffer(ctx, pickupID, vendorRef, now)
	if err != nil {
		e.logg.Error(ctx, "timeout: clear offer failed", err)
		return
	}
	if cleared {
		e.metrics.IncTimeout()
		e.logg.Info(ctx, "offer timed out")
	}

	e.mu.Lock()
	sess := e.sessions[pickupID]
	if sess != nil {
		if sess.currentRef == vendorRef {
			sess.index++
			sess.currentRef = ""
		}
		sess.stopTimer()
		e.mu.Unlock()
		e.advance(ctx, pickupID)
		return
	}
	e.mu.Unlock()

	e.Dispatch(ctx, pickupID, vendorRef)
}

// DiscardSession drops any in-memory state and armed timer for a pickup.
// Safe to call for pickups without a session.
func (e *Engine) DiscardSession(pickupID uuid.UUID) {
	e.discard(pickupID)
}

// discardStale is DiscardSession for pickups discovered terminal mid-flight;
// it counts the drop.
func (e *Engine) discardStale(pickupID uuid.UUID) {
	if e.discard(pickupID) {
		e.metrics.IncStaleSession()
	}
}

func (e *Engine) discard(pickupID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if sess := e.sessions[pickupID]; sess != nil {
		sess.stopTimer()
		delete(e.sessions, pickupID)
		return true
	}
	return false
}

func (e *Engine) giveUp(ctx context.Context, pickupID uuid.UUID) {
	modified, err := e.repo.GiveUp(ctx, pickupID)
	if err != nil {
		e.logg.Error(ctx, "dispatch: give up failed", err)
		return
	}
	if modified {
		e.metrics.IncExhausted()
		e.logg.Info(ctx, "no vendor available")
	}
}

func (e *Engine) bumpIndex(pickupID uuid.UUID, vendorRef string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if sess := e.sessions[pickupID]; sess != nil {
		if sess.currentRef == vendorRef {
			sess.currentRef = ""
		}
		sess.index++
	}
}

func (e *Engine) armTimer(pickupID uuid.UUID, vendorRef string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess := e.sessions[pickupID]
	if sess == nil {
		return
	}
	sess.stopTimer()
	sess.currentRef = vendorRef
	sess.timer = time.AfterFunc(e.offerTTL+e.timerSlack, func() {
		e.OnTimeout(context.Background(), pickupID, vendorRef)
	})
}

func (e *Engine) scrapSummary(ctx context.Context, pickupID uuid.UUID) (string, error) {
	items, err := e.repo.ListItemSummaries(ctx, pickupID)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%s: %s", item.Name, item.EstimatedQuantity.String()))
	}
	return strings.Join(parts, ", "), nil
}
