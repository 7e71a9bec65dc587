package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/canopyhq/canopy-backend/api/controllers"
	"github.com/canopyhq/canopy-backend/api/middleware"
	"github.com/canopyhq/canopy-backend/api/responses"
	"github.com/canopyhq/canopy-backend/internal/pricing"
	"github.com/canopyhq/canopy-backend/internal/purchaseorders"
	"github.com/canopyhq/canopy-backend/internal/sales"
	"github.com/canopyhq/canopy-backend/pkg/config"
	"github.com/canopyhq/canopy-backend/pkg/enums"
	pkgerrors "github.com/canopyhq/canopy-backend/pkg/errors"
	"github.com/canopyhq/canopy-backend/pkg/logger"
	"github.com/canopyhq/canopy-backend/pkg/metrics"
	pkgredis "github.com/canopyhq/canopy-backend/pkg/redis"
)

// Deps bundles everything the HTTP surface is built from.
type Deps struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             controllers.Pinger
	Redis          controllers.Pinger
	Idempotency    pkgredis.IdempotencyStore
	HTTPMetrics    *metrics.HTTPMetrics
	MetricsHandler http.Handler
	Sales          sales.Service
	PurchaseOrders purchaseorders.Service
	Pricing        pricing.Service
	Loyalty        controllers.LoyaltyPrograms
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
		middleware.Metrics(d.HTTPMetrics),
	)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		responses.WriteJSON(w, http.StatusMethodNotAllowed, map[string]any{
			"success": false,
			"error":   "method not allowed",
			"code":    "METHOD_NOT_ALLOWED",
		})
	})

	metricsHandler := d.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.DB, d.Redis))
	})

	idempotent := middleware.Idempotency(d.Idempotency, logg, middleware.ReplayWindow)
	saleIdempotent := middleware.Idempotency(d.Idempotency, logg, middleware.SaleReplayWindow)

	r.With(saleIdempotent).Post("/api/pos/sales/create", controllers.SaleCreate(d.Sales, logg))
	r.With(middleware.VendorContext(logg)).Get("/api/pos/sales/{orderNumber}", controllers.SaleGet(d.Sales, logg))

	r.Route("/api/vendor", func(r chi.Router) {
		r.Use(middleware.VendorContext(logg))

		r.With(idempotent).Post("/purchase-orders", controllers.PurchaseOrderAction(d.PurchaseOrders, logg))
		r.Get("/purchase-orders", controllers.PurchaseOrderList(d.PurchaseOrders, logg))
		r.Get("/purchase-orders/{poID}", controllers.PurchaseOrderGet(d.PurchaseOrders, logg))

		mountBlueprints(r, d.Pricing, controllers.VendorScopeResolver(), logg)

		r.With(idempotent).Post("/products/{productID}/pricing-blueprint", controllers.ProductApplyBlueprint(d.Pricing, logg))
		r.Get("/products/{productID}/price", controllers.ProductPrice(d.Pricing, logg))

		r.Get("/loyalty-program", controllers.LoyaltyProgramGet(d.Loyalty, logg))
		r.Put("/loyalty-program", controllers.LoyaltyProgramPut(d.Loyalty, logg))
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.ActorRoleAdmin, logg))

		mountBlueprints(r, d.Pricing, controllers.AdminScopeResolver(), logg)
	})

	return r
}

func mountBlueprints(r chi.Router, svc pricing.Service, scope controllers.ScopeResolver, logg *logger.Logger) {
	r.Get("/pricing-blueprints", controllers.BlueprintList(svc, scope, logg))
	r.Post("/pricing-blueprints", controllers.BlueprintCreate(svc, scope, logg))
	r.Put("/pricing-blueprints", controllers.BlueprintUpdate(svc, scope, logg))
	r.Delete("/pricing-blueprints", controllers.BlueprintDelete(svc, scope, logg))
	r.Get("/pricing-blueprints/{blueprintID}", controllers.BlueprintGet(svc, scope, logg))
}
