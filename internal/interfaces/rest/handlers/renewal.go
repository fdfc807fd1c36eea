package handlers

import (
	"net/http"

	"github.com/streamvault/billing-gateway/internal/interfaces/rest"
)

// RunRenewals triggers one scheduler pass and returns its summary.
func (h *Handlers) RunRenewals(w http.ResponseWriter, r *http.Request) {
	summary, err := h.renewalService.Run(r.Context())
	if err != nil {
		rest.WriteError(w, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, summary)
}
