package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/scrapco/scrapco-backend/pkg/db/models"
	"github.com/scrapco/scrapco-backend/pkg/logger"
	"github.com/scrapco/scrapco-backend/pkg/offerurl"
)

// OfferSender delivers a pickup offer to a vendor backend. All failures are
// equivalent to the engine: the candidate is skipped.
type OfferSender interface {
	SendOffer(ctx context.Context, vendor models.VendorBackend, pickup *models.Pickup, scrapSummary string) error
}

// offerPayload is the wire format vendor backends receive. The pickup id is
// carried three times because deployed vendor integrations disagree on the
// field name.
type offerPayload struct {
	VendorID      string    `json:"vendor_id"`
	RequestID     uuid.UUID `json:"request_id"`
	PickupIDCamel uuid.UUID `json:"pickupId"`
	PickupID      uuid.UUID `json:"pickup_id"`
	Latitude      *float64  `json:"latitude"`
	Longitude     *float64  `json:"longitude"`
	ScrapSummary  string    `json:"scrap_summary,omitempty"`
}

type httpOfferSender struct {
	client        *http.Client
	bearer        string
	allowLoopback bool
	logg          *logger.Logger
}

// OfferSenderParams wires the outbound offer HTTP client.
type OfferSenderParams struct {
	// Timeout is the hard cap on the whole HTTP exchange.
	Timeout time.Duration
	// Bearer, when non-empty, is sent as an Authorization header.
	Bearer        string
	AllowLoopback bool
	Logger        *logger.Logger
}

// NewOfferSender builds the HTTP offer transport.
func NewOfferSender(params OfferSenderParams) (OfferSender, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Timeout <= 0 {
		params.Timeout = 10 * time.Second
	}
	return &httpOfferSender{
		client:        &http.Client{Timeout: params.Timeout},
		bearer:        params.Bearer,
		allowLoopback: params.AllowLoopback,
		logg:          params.Logger,
	}, nil
}

func (s *httpOfferSender) SendOffer(ctx context.Context, vendor models.VendorBackend, pickup *models.Pickup, scrapSummary string) error {
	target, err := offerurl.Normalize(vendor.OfferURL)
	if err != nil {
		return err
	}
	if err := offerurl.Validate(target, s.allowLoopback); err != nil {
		return err
	}

	body, err := json.Marshal(offerPayload{
		VendorID:      vendor.VendorRef,
		RequestID:     pickup.ID,
		PickupIDCamel: pickup.ID,
		PickupID:      pickup.ID,
		Latitude:      pickup.Latitude,
		Longitude:     pickup.Longitude,
		ScrapSummary:  scrapSummary,
	})
	if err != nil {
		return fmt.Errorf("marshal offer payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build offer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+s.bearer)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("offer post to %s: %w", vendor.VendorRef, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("offer post to %s: status %d", vendor.VendorRef, resp.StatusCode)
	}

	s.logg.Info(s.logg.WithVendorRef(ctx, vendor.VendorRef), "offer delivered")
	return nil
}
