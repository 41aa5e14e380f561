package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/dockslots/libs/httpx"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/booking"
)

// writeFailure maps engine and booking errors to status codes. Anything
// not classified is logged and reported as 500.
func writeFailure(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var rejected *booking.RejectedError
	switch {
	case errors.As(err, &rejected):
		httpx.WriteError(w, http.StatusConflict, string(rejected.Reason), "slot is not available")
		return
	case errors.Is(err, booking.ErrNotBookable):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "not_bookable", err.Error())
		return
	case errors.Is(err, booking.ErrAppointmentNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}

	switch kind := availability.KindOf(err); kind {
	case availability.KindInvalidInput:
		httpx.WriteError(w, http.StatusBadRequest, kind.String(), err.Error())
	case availability.KindConfigurationNotFound:
		httpx.WriteError(w, http.StatusNotFound, kind.String(), err.Error())
	default:
		code := "internal"
		if kind != 0 {
			code = kind.String()
		}
		logger.ErrorContext(r.Context(), "request failed",
			"err", err,
			"code", code,
			"path", r.URL.Path,
			"request_id", httpx.RequestIDFromContext(r.Context()),
		)
		httpx.WriteError(w, http.StatusInternalServerError, code, "internal error")
	}
}

func requireTenant(w http.ResponseWriter, r *http.Request) (int64, bool) {
	tenantID, ok := httpx.TenantIDFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "tenant is required")
		return 0, false
	}
	return tenantID, true
}
