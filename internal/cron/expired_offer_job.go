package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/scrapco/scrapco-backend/pkg/db/models"
	"github.com/scrapco/scrapco-backend/pkg/logger"
	"go.uber.org/multierr"
)

const defaultSweepBatch = 50

type expiredOfferReader interface {
	SweepExpired(ctx context.Context, now time.Time, limit int) ([]models.Pickup, error)
}

type timeoutHandler interface {
	OnTimeout(ctx context.Context, pickupID uuid.UUID, vendorRef string)
}

// ExpiredOfferJobParams configure the expired offer sweeper.
type ExpiredOfferJobParams struct {
	Logger *logger.Logger
	Reader expiredOfferReader
	Engine timeoutHandler
	Batch  int
	Now    func() time.Time
}

// NewExpiredOfferJob builds the job that recovers offers whose arming
// process died. It re-drives each lapsed offer through the engine's timeout
// path, which is idempotent against live timers doing the same work.
func NewExpiredOfferJob(params ExpiredOfferJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("expired offer reader required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("timeout handler required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &expiredOfferJob{
		logg:   params.Logger,
		reader: params.Reader,
		engine: params.Engine,
		batch:  batch,
		now:    now,
	}, nil
}

type expiredOfferJob struct {
	logg   *logger.Logger
	reader expiredOfferReader
	engine timeoutHandler
	batch  int
	now    func() time.Time
}

func (j *expiredOfferJob) Name() string { return "expired-offer-sweep" }

func (j *expiredOfferJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	stale, err := j.reader.SweepExpired(ctx, now, j.batch)
	if err != nil {
		return fmt.Errorf("query expired offers: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	var errs []error
	for _, pickup := range stale {
		if pickup.AssignedVendorRef == nil {
			// A searching row with no offer has nothing to time out; the
			// dispatcher owns it.
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					errs = append(errs, fmt.Errorf("timeout for pickup %s panicked: %v", pickup.ID, r))
				}
			}()
			j.engine.OnTimeout(ctx, pickup.ID, *pickup.AssignedVendorRef)
		}()
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"count": len(stale)})
	j.logg.Info(logCtx, "expired offer sweep complete")
	return multierr.Combine(errs...)
}
