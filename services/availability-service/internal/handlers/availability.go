package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/dockslots/libs/httpx"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/model"
)

type Evaluator interface {
	Evaluate(ctx context.Context, req availability.Request) ([]model.Slot, error)
}

type AvailabilityHandler struct {
	eval   Evaluator
	logger *slog.Logger
}

func NewAvailabilityHandler(eval Evaluator, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{eval: eval, logger: logger}
}

// Get serves GET /api/availability?date=YYYY-MM-DD&facilityId=&appointmentTypeId=.
func (h *AvailabilityHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	facilityID, ok := positiveID(w, q.Get("facilityId"), "facilityId")
	if !ok {
		return
	}
	typeID, ok := positiveID(w, q.Get("appointmentTypeId"), "appointmentTypeId")
	if !ok {
		return
	}
	date, ok := dateParam(w, q.Get("date"))
	if !ok {
		return
	}

	slots, err := h.eval.Evaluate(r.Context(), availability.Request{
		TenantID:          tenantID,
		FacilityID:        facilityID,
		AppointmentTypeID: typeID,
		Date:              date,
	})
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	if slots == nil {
		slots = []model.Slot{}
	}
	httpx.WriteJSON(w, http.StatusOK, slots)
}

func positiveID(w http.ResponseWriter, raw, name string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_input", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func dateParam(w http.ResponseWriter, raw string) (model.Date, bool) {
	date, err := model.ParseDate(strings.TrimSpace(raw))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_input", "date must be YYYY-MM-DD")
		return model.Date{}, false
	}
	return date, true
}
