package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scrapco/scrapco-backend/api/controllers"
	"github.com/scrapco/scrapco-backend/api/middleware"
	"github.com/scrapco/scrapco-backend/internal/dispatch"
	"github.com/scrapco/scrapco-backend/internal/pickups"
	"github.com/scrapco/scrapco-backend/internal/vendors"
	"github.com/scrapco/scrapco-backend/pkg/config"
	"github.com/scrapco/scrapco-backend/pkg/db"
	"github.com/scrapco/scrapco-backend/pkg/logger"
	"github.com/scrapco/scrapco-backend/pkg/redis"
)

// RouterParams carries everything the route table wires together.
type RouterParams struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      db.Pinger
	Redis   *redis.Client
	Pickups pickups.Service
	Repo    pickups.Repository
	Vendors vendors.Service
	Engine  *dispatch.Engine
	Metrics prometheus.Gatherer
	Now     func() time.Time
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	readyDeps := map[string]controllers.Pinger{}
	if params.DB != nil {
		readyDeps["database"] = params.DB
	}
	if params.Redis != nil {
		readyDeps["redis"] = params.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readyDeps))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/pickups", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Post("/", controllers.CreatePickup(params.Pickups, logg))
		r.Get("/", controllers.ListPickups(params.Pickups, logg))
		r.Get("/{pickupId}", controllers.GetPickup(params.Pickups, logg))
		r.Post("/{pickupId}/cancel", controllers.CancelPickup(params.Pickups, logg))
		r.Post("/{pickupId}/find-vendor", controllers.FindVendor(params.Pickups, logg))
	})

	r.Route("/api/vendor", func(r chi.Router) {
		r.Use(middleware.VendorSignature(cfg.Vendor.WebhookSecret, logg))
		r.Post("/accept", controllers.VendorAccept(params.Engine, logg))
		r.Post("/reject", controllers.VendorReject(params.Engine, logg))
		r.Post("/on-the-way", controllers.VendorOnTheWay(params.Repo, logg))
		r.Post("/pickup-done", controllers.VendorPickupDone(params.Repo, params.Engine, logg, params.Now))
		r.Post("/location", controllers.VendorLocation(params.Vendors, logg))
	})

	return r
}
