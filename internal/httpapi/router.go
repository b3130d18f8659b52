package httpapi

import (
	"net/http"
	"time"

	chiprometheus "github.com/766b/chi-prometheus"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/zenalign/tokencore/internal/consumption"
	"github.com/zenalign/tokencore/internal/ledger"
	"github.com/zenalign/tokencore/internal/orchestrator"
	"github.com/zenalign/tokencore/internal/pricing"
)

// NewRouter builds the chi router exposing spec.md §6's endpoints,
// grounded on the teacher's pkg/server/router.New middleware chain.
func NewRouter(policy *pricing.Policy, led *ledger.Ledger, orch *orchestrator.Orchestrator, guard *consumption.Guard, logger *zap.Logger, timeout time.Duration) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CleanPath)
	r.Use(middleware.Timeout(timeout))
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Use(otelhttp.NewMiddleware("tokencore"))
	r.Use(chiprometheus.NewMiddleware("tokencore"))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		OK(w, r, map[string]string{"status": "up"})
	})

	r.Get("/swagger/*", httpSwagger.WrapHandler)

	h := &Handlers{policy: policy, ledger: led, orchestrator: orch, guard: guard, logger: logger}

	r.Route("/payment", func(r chi.Router) {
		r.Get("/pricing", h.Pricing)
		r.Post("/purchase", h.Purchase)
		r.Post("/verify/{reference}", h.Verify)
		r.Get("/balance/{user_key}", h.Balance)
		r.Get("/balance/{user_key}/history", h.BalanceHistory)
		r.Get("/transaction/{reference}", h.Transaction)
	})

	r.Post("/analyze/{work_item_id}", h.Analyze)

	return r
}
