package handlers

import (
	"io"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/streamvault/billing-gateway/internal/interfaces/rest"
)

// signatureHeaders maps a provider to the header its signature travels in.
var signatureHeaders = map[string]string{
	"nowpayments": "x-nowpayments-sig",
	"changenow":   "x-changenow-signature",
	"stripe":      "Stripe-Signature",
	"hoodpay":     "X-Signature",
}

const maxWebhookBody = 1 << 20

// Webhook ingests a provider notification. The gateway always gets 200
// back unless the audit insert itself failed, so a transient processing
// problem never triggers a redelivery storm.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("failed to read webhook body",
			"provider", provider,
			"error", err,
		)
		rest.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	signature := r.Header.Get(signatureHeaders[provider])

	if err := h.webhookService.Process(r.Context(), provider, payload, signature, remoteIP(r)); err != nil {
		rest.WriteError(w, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// PayGateCallback handles the provider's query-string GET confirmation.
func (h *Handlers) PayGateCallback(w http.ResponseWriter, r *http.Request) {
	if err := h.webhookService.ProcessPayGate(r.Context(), r.URL.Query(), remoteIP(r)); err != nil {
		rest.WriteError(w, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
