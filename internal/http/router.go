package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	Rules        *RuleHandler
	Transactions *TransactionHandler
	Generation   *GenerationHandler
	// Middleware wraps every route, outermost first.
	Middleware []func(http.Handler) http.Handler
	// Protected wraps the API routes but not /healthz.
	Protected []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.Use(middleware.Recoverer)

	r.Get("/healthz", health)

	r.Group(func(r chi.Router) {
		for _, mw := range cfg.Protected {
			if mw != nil {
				r.Use(mw)
			}
		}

		if cfg.Rules != nil {
			r.Route("/rules", cfg.Rules.RegisterRoutes)
		}
		if cfg.Transactions != nil {
			r.Route("/transactions", cfg.Transactions.RegisterRoutes)
		}
		if cfg.Generation != nil {
			r.Route("/generation", cfg.Generation.RegisterRoutes)
		}
	})

	return r
}

func health(w http.ResponseWriter, r *http.Request) {
	newResponder(LoggerFromContext(r.Context())).writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}
