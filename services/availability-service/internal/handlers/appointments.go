package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/dockslots/libs/httpx"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/booking"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/model"
)

// IdempotencyKeyHeader lets clients retry a booking safely.
const IdempotencyKeyHeader = "Idempotency-Key"

type Booker interface {
	Book(ctx context.Context, req booking.BookRequest) (booking.Confirmation, error)
	Cancel(ctx context.Context, tenantID, appointmentID int64, reason string) (model.Appointment, error)
	List(ctx context.Context, tenantID, facilityID int64, date model.Date) ([]model.Appointment, error)
}

type AppointmentHandler struct {
	booker Booker
	logger *slog.Logger
}

func NewAppointmentHandler(booker Booker, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{booker: booker, logger: logger}
}

type createAppointmentRequest struct {
	FacilityID        int64  `json:"facilityId"`
	AppointmentTypeID int64  `json:"appointmentTypeId"`
	Start             string `json:"start"`
	Reference         string `json:"reference"`
}

type cancelAppointmentRequest struct {
	AppointmentID int64  `json:"appointmentId"`
	Reason        string `json:"reason"`
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_input", "invalid json body")
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.Start))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_input", "start must be an RFC 3339 timestamp")
		return
	}

	conf, err := h.booker.Book(r.Context(), booking.BookRequest{
		TenantID:          tenantID,
		FacilityID:        req.FacilityID,
		AppointmentTypeID: req.AppointmentTypeID,
		Start:             start,
		Reference:         req.Reference,
		IdempotencyKey:    r.Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	if conf.Replayed {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	httpx.WriteJSON(w, http.StatusCreated, conf.Appointment)
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var req cancelAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_input", "invalid json body")
		return
	}
	appt, err := h.booker.Cancel(r.Context(), tenantID, req.AppointmentID, req.Reason)
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

// List serves GET /api/appointments?facilityId=&date=.
func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
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
	date, ok := dateParam(w, q.Get("date"))
	if !ok {
		return
	}

	appts, err := h.booker.List(r.Context(), tenantID, facilityID, date)
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	httpx.WriteJSON(w, http.StatusOK, appts)
}
