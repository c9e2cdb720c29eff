package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/urbanfoods/backend/api/controllers"
	webhookcontrollers "github.com/urbanfoods/backend/api/controllers/webhooks"
	"github.com/urbanfoods/backend/api/middleware"
	"github.com/urbanfoods/backend/internal/orders"
	"github.com/urbanfoods/backend/internal/payments"
	mpesawebhook "github.com/urbanfoods/backend/internal/webhooks/mpesa"
	"github.com/urbanfoods/backend/pkg/config"
	"github.com/urbanfoods/backend/pkg/db"
	"github.com/urbanfoods/backend/pkg/logger"
	"github.com/urbanfoods/backend/pkg/metrics"
	"github.com/urbanfoods/backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	ledger orders.Service,
	paymentsSvc payments.Service,
	webhookSvc mpesawebhook.Service,
	settlementMetrics *metrics.SettlementMetrics,
	promRegistry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	if promRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.ProviderAllowlist(cfg.Mpesa.AllowedIPs, settlementMetrics, logg))
		r.Post("/mpesa", webhookcontrollers.MpesaCallback(webhookSvc, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.PlaceOrder(paymentsSvc, logg))
			r.Get("/{orderNumber}/payment-status", controllers.OrderPaymentStatus(ledger, logg))
			r.Post("/{orderNumber}/retry-payment", controllers.RetryPayment(paymentsSvc, logg))
		})
		r.Post("/payments/query", controllers.QueryPaymentStatus(paymentsSvc, logg))
	})

	return r
}
