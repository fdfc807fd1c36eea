package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/streamvault/billing-gateway/internal/interfaces/rest"
)

// PaymentStatus serves the polling projection by gateway invoice id.
func (h *Handlers) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "externalID")

	view, err := h.queryService.StatusByExternalID(r.Context(), externalID)
	if err != nil {
		rest.WriteError(w, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, view)
}
