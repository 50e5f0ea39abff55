package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/scrapco/scrapco-backend/pkg/db/models"
	"github.com/scrapco/scrapco-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSender(t *testing.T, bearer string) OfferSender {
	t.Helper()

	sender, err := NewOfferSender(OfferSenderParams{
		Timeout:       2 * time.Second,
		Bearer:        bearer,
		AllowLoopback: true,
		Logger:        logger.New(logger.Options{Level: zerolog.Disabled}),
	})
	require.NoError(t, err)
	return sender
}

func TestSendOffer(t *testing.T) {
	ctx := context.Background()
	pickupID := uuid.New()
	pickup := &models.Pickup{ID: pickupID, Latitude: coord(12.97), Longitude: coord(77.59)}

	t.Run("posts normalized payload with aliases", func(t *testing.T) {
		var gotPath, gotAuth, gotContentType string
		var gotBody map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotAuth = r.Header.Get("Authorization")
			gotContentType = r.Header.Get("Content-Type")
			raw, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(raw, &gotBody))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		sender := newTestSender(t, "secret-token")
		vendor := models.VendorBackend{VendorRef: "vendor-a", OfferURL: server.URL}

		err := sender.SendOffer(ctx, vendor, pickup, "Metal: 5, Paper: 2")
		require.NoError(t, err)

		assert.Equal(t, "/api/offer", gotPath)
		assert.Equal(t, "Bearer secret-token", gotAuth)
		assert.Equal(t, "application/json", gotContentType)
		assert.Equal(t, "vendor-a", gotBody["vendor_id"])
		assert.Equal(t, pickupID.String(), gotBody["request_id"])
		assert.Equal(t, pickupID.String(), gotBody["pickupId"])
		assert.Equal(t, pickupID.String(), gotBody["pickup_id"])
		assert.Equal(t, "Metal: 5, Paper: 2", gotBody["scrap_summary"])
	})

	t.Run("skips authorization header without a bearer", func(t *testing.T) {
		var sawAuth bool
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sawAuth = r.Header.Get("Authorization") != ""
			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		sender := newTestSender(t, "")
		vendor := models.VendorBackend{VendorRef: "vendor-a", OfferURL: server.URL}

		require.NoError(t, sender.SendOffer(ctx, vendor, pickup, ""))
		assert.False(t, sawAuth)
	})

	t.Run("non-2xx is a failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		sender := newTestSender(t, "")
		vendor := models.VendorBackend{VendorRef: "vendor-a", OfferURL: server.URL}

		assert.Error(t, sender.SendOffer(ctx, vendor, pickup, ""))
	})

	t.Run("rejects loopback when not allowed", func(t *testing.T) {
		sender, err := NewOfferSender(OfferSenderParams{
			Logger: logger.New(logger.Options{Level: zerolog.Disabled}),
		})
		require.NoError(t, err)

		vendor := models.VendorBackend{VendorRef: "vendor-a", OfferURL: "http://127.0.0.1:9999"}
		assert.Error(t, sender.SendOffer(ctx, vendor, pickup, ""))
	})

	t.Run("rejects bad schemes", func(t *testing.T) {
		sender := newTestSender(t, "")
		vendor := models.VendorBackend{VendorRef: "vendor-a", OfferURL: "ftp://vendor.example.com"}
		assert.Error(t, sender.SendOffer(ctx, vendor, pickup, ""))
	})

	t.Run("connection failure is a failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		sender := newTestSender(t, "")
		vendor := models.VendorBackend{VendorRef: "vendor-a", OfferURL: server.URL}
		assert.Error(t, sender.SendOffer(ctx, vendor, pickup, ""))
	})
}
