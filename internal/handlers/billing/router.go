package billing

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/creditgate/billing/internal/config"
	"github.com/creditgate/billing/internal/middleware"
	pkgmw "github.com/creditgate/billing/pkg/middleware"
	"github.com/creditgate/billing/pkg/observability"
)

// RouterDeps carries everything the HTTP surface needs wired in
type RouterDeps struct {
	Handler        *Handler
	Health         *observability.HealthChecker
	RateLimiter    *pkgmw.RateLimiter
	APIKeys        []string
	CORS           config.CORSConfig
	RequestTimeout time.Duration
	Development    bool
	Logger         *zap.Logger
}

// NewRouter builds the service router. Everything under /v1 requires an
// API key except the webhook route, which authenticates by provider
// signature instead. Health stays open for load balancers; metrics are
// served from the separate observability listener.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.NewSecurityHeaders(deps.Development).Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.CORS.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key", "Stripe-Signature"},
		MaxAge:         300,
	}))
	r.Use(observability.RequestMetrics)
	r.Use(requestLogger(deps.Logger))
	r.Use(chimw.Timeout(deps.RequestTimeout))

	r.Get("/health", deps.Health.HealthHandler())

	auth := middleware.NewAPIKeyAuth(deps.APIKeys, deps.Logger)

	r.Route("/v1", func(r chi.Router) {
		// Signature-verified, so outside key auth: providers cannot send
		// our keys
		r.Post("/billing/webhooks/{provider}", deps.Handler.HandleWebhook)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)
			r.Use(deps.RateLimiter.Middleware)

			r.Route("/billing", func(r chi.Router) {
				r.Post("/credits/check", deps.Handler.CheckCredit)
				r.Post("/charges", deps.Handler.CreateCharge)
				r.Post("/credits", deps.Handler.AddCredits)
				r.Post("/accounts", deps.Handler.CreateAccount)
				r.Get("/accounts/{provider}/{external_id}", deps.Handler.GetAccount)
				r.Post("/purchases", deps.Handler.CreatePurchase)
				r.Get("/purchases/{payment_id}", deps.Handler.GetPurchaseStatus)
				r.Get("/purchases/{payment_id}/status", deps.Handler.GetPurchaseStatus)
				r.Get("/transactions", deps.Handler.ListTransactions)
			})

			r.Route("/tools", func(r chi.Router) {
				r.Post("/charge", deps.Handler.ChargeTool)
				r.Get("/balance", deps.Handler.GetAllToolBalances)
				r.Get("/balance/{product_type}", deps.Handler.GetToolBalance)
				r.Get("/check/{product_type}", deps.Handler.CheckTool)
			})
		})
	})

	return r
}

// requestLogger emits one line per completed request
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimw.GetReqID(r.Context())))
		})
	}
}
