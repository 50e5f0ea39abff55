package dispatch

import (
	"math"
	"sort"

	"github.com/scrapco/scrapco-backend/pkg/db/models"
	"github.com/scrapco/scrapco-backend/pkg/geo"
)

// rankVendors orders the directory snapshot by great-circle distance from the
// pickup, ascending, and drops every ref in the exclusion set. Vendors
// without coordinates, or when the pickup itself has none, sort to the end.
// The sort is stable so equally distant vendors keep directory order.
func rankVendors(pickup *models.Pickup, vendors []models.VendorBackend, exclude map[string]struct{}) []models.VendorBackend {
	type scored struct {
		vendor models.VendorBackend
		dist   float64
	}

	ranked := make([]scored, 0, len(vendors))
	for _, vendor := range vendors {
		if _, skip := exclude[vendor.VendorRef]; skip {
			continue
		}
		dist := math.Inf(1)
		if pickup.Latitude != nil && pickup.Longitude != nil && vendor.HasLocation() {
			dist = geo.DistanceKm(*pickup.Latitude, *pickup.Longitude, *vendor.Latitude, *vendor.Longitude)
		}
		ranked = append(ranked, scored{vendor: vendor, dist: dist})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].dist < ranked[j].dist
	})

	out := make([]models.VendorBackend, 0, len(ranked))
	for _, s := range ranked {
		out = append(out, s.vendor)
	}
	return out
}
