package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ledgerline/ledgerline/internal/billing"
	"github.com/ledgerline/ledgerline/internal/company"
	"github.com/ledgerline/ledgerline/internal/customers"
	"github.com/ledgerline/ledgerline/internal/statement"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	BillingHandler   *billing.Handler
	CustomersHandler *customers.Handler
	CompanyHandler   *company.Handler
	StatementHandler *statement.Handler
}

// NewRouter constructs the chi.Router with the API mounted under /api/v1.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(api chi.Router) {
		params.BillingHandler.MountRoutes(api)
		params.CustomersHandler.MountRoutes(api)
		params.CompanyHandler.MountRoutes(api)
		params.StatementHandler.MountRoutes(api)
	})

	return r
}
