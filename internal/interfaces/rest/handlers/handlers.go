// Package handlers exposes the billing API over chi.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/streamvault/billing-gateway/internal/application/services"
	"github.com/streamvault/billing-gateway/internal/interfaces/rest"
	"github.com/streamvault/billing-gateway/internal/interfaces/rest/middleware"
)

type Handlers struct {
	checkoutService *services.CheckoutService
	webhookService  *services.WebhookService
	queryService    *services.QueryService
	renewalService  *services.RenewalScheduler
	logger          *slog.Logger
}

func NewHandlers(
	checkoutService *services.CheckoutService,
	webhookService *services.WebhookService,
	queryService *services.QueryService,
	renewalService *services.RenewalScheduler,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		checkoutService: checkoutService,
		webhookService:  webhookService,
		queryService:    queryService,
		renewalService:  renewalService,
		logger:          logger,
	}
}

// Routes mounts the API on the router. The job routes carry their own
// bearer-secret guard.
func (h *Handlers) Routes(r chi.Router, jobToken string) {
	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/payments/{provider}", h.CreatePayment)
		r.Get("/payments/status/{externalID}", h.PaymentStatus)

		r.Post("/webhooks/{provider}", h.Webhook)
		r.Get("/webhooks/paygate", h.PayGateCallback)

		r.Group(func(r chi.Router) {
			r.Use(middleware.JobAuth(jobToken))
			r.Post("/jobs/renewals", h.RunRenewals)
		})
	})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	rest.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
