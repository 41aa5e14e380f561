package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	otelx "github.com/md-rashed-zaman/dockslots/libs/otel"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/outbox"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Service writes appointments. Availability reads elsewhere stay lock-free;
// here the capacity check is repeated under a facility-day lock inside the
// inserting transaction, so concurrent bookings cannot both take the last
// unit of a slot.
type Service struct {
	store     Store
	evaluator *availability.Evaluator
	cache     Invalidator
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

type Option func(*Service)

// WithClock overrides the clock used to reject slots in the past.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the booking guard. cache may be nil.
func NewService(store Store, evaluator *availability.Evaluator, cache Invalidator, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		evaluator: evaluator,
		cache:     cache,
		logger:    logger,
		tracer:    otelx.Tracer("booking"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type BookRequest struct {
	TenantID          int64
	FacilityID        int64
	AppointmentTypeID int64
	Start             time.Time
	Reference         string
	IdempotencyKey    string
}

type Confirmation struct {
	Appointment model.Appointment
	// Replayed is set when the answer came from an earlier request with the
	// same idempotency key.
	Replayed bool
}

func (s *Service) Book(ctx context.Context, req BookRequest) (Confirmation, error) {
	ctx, span := s.tracer.Start(ctx, "booking.book", trace.WithAttributes(
		attribute.Int64("tenant.id", req.TenantID),
		attribute.Int64("facility.id", req.FacilityID),
		attribute.Int64("appointment_type.id", req.AppointmentTypeID),
	))
	defer span.End()

	if req.Start.IsZero() {
		return Confirmation{}, otelx.Fail(span, &availability.Error{Kind: availability.KindInvalidInput, Op: "book", Err: errors.New("start is required")})
	}
	evalReq := availability.Request{
		TenantID:          req.TenantID,
		FacilityID:        req.FacilityID,
		AppointmentTypeID: req.AppointmentTypeID,
		Date:              model.DateOf(req.Start),
	}
	if err := evalReq.Validate(); err != nil {
		return Confirmation{}, otelx.Fail(span, err)
	}
	_, loc, err := s.evaluator.Facility(ctx, req.TenantID, req.FacilityID)
	if err != nil {
		return Confirmation{}, otelx.Fail(span, err)
	}
	rule, err := s.evaluator.Rule(ctx, req.TenantID, req.AppointmentTypeID)
	if err != nil {
		return Confirmation{}, otelx.Fail(span, err)
	}
	date := model.DateOf(req.Start.In(loc))
	evalReq.Date = date
	lockDates := lockDays(req.Start, rule, loc)
	key := strings.TrimSpace(req.IdempotencyKey)

	var conf Confirmation
	var rejection error
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		for _, d := range lockDates {
			if err := tx.LockFacilityDay(ctx, req.FacilityID, d); err != nil {
				return fmt.Errorf("lock facility day %s: %w", d, err)
			}
		}
		if key != "" {
			rec, err := tx.ClaimIdempotencyKey(ctx, req.TenantID, key)
			if err != nil {
				return fmt.Errorf("claim idempotency key: %w", err)
			}
			if rec.Completed() {
				conf, rejection, err = replay(rec)
				return err
			}
		}

		res, err := s.evaluator.WithSchedule(tx.Schedule()).Resolve(ctx, evalReq)
		if err != nil {
			return err
		}
		if rejection = s.check(res, req.Start); rejection != nil {
			if key == "" {
				return nil
			}
			return tx.CompleteIdempotencyKey(ctx, rejectionRecord(req.TenantID, key, rejection))
		}

		appt, err := tx.InsertAppointment(ctx, model.Appointment{
			TenantID:          req.TenantID,
			FacilityID:        req.FacilityID,
			AppointmentTypeID: req.AppointmentTypeID,
			Start:             req.Start.UTC(),
			End:               req.Start.Add(res.Rule.Duration).UTC(),
			Status:            model.StatusScheduled,
			Reference:         strings.TrimSpace(req.Reference),
		})
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		if err := tx.EnqueueEvent(ctx, newEvent(outbox.EventAppointmentBooked, appt, date)); err != nil {
			return fmt.Errorf("enqueue event: %w", err)
		}
		if key != "" {
			body, err := json.Marshal(appt)
			if err != nil {
				return err
			}
			if err := tx.CompleteIdempotencyKey(ctx, model.IdempotencyRecord{
				TenantID:        req.TenantID,
				Key:             key,
				AppointmentID:   appt.ID,
				StatusCode:      http.StatusCreated,
				ResponsePayload: body,
			}); err != nil {
				return fmt.Errorf("complete idempotency key: %w", err)
			}
		}
		conf = Confirmation{Appointment: appt}
		return nil
	})
	if err != nil {
		return Confirmation{}, otelx.Fail(span, err)
	}
	if rejection != nil {
		span.SetAttributes(attribute.String("booking.rejected", rejection.Error()))
		return Confirmation{}, rejection
	}

	span.SetAttributes(attribute.Int64("appointment.id", conf.Appointment.ID), attribute.Bool("booking.replayed", conf.Replayed))
	if !conf.Replayed {
		s.invalidate(ctx, conf.Appointment, loc)
	}
	return conf, nil
}

// lockDays lists, in date order, every local day whose evaluation can count
// an appointment at start. Grace widens the span, so a booking near midnight
// also locks the neighbouring day.
func lockDays(start time.Time, rule availability.Rule, loc *time.Location) []model.Date {
	first := model.DateOf(start.Add(-rule.Grace).In(loc))
	last := model.DateOf(start.Add(rule.Duration + rule.Grace).In(loc))
	days := []model.Date{first}
	for d := first.AddDays(1); !d.UTC().After(last.UTC()); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

func (s *Service) check(res availability.Result, start time.Time) error {
	if res.Window.HolidayClosed {
		return &RejectedError{Reason: model.ReasonHolidayClosed, Start: start}
	}
	if start.Before(s.now()) {
		return ErrNotBookable
	}
	slot, ok := availability.FindSlot(res.Slots, start)
	if !ok {
		return ErrNotBookable
	}
	if !slot.Available {
		return &RejectedError{Reason: slot.Reason, Start: start}
	}
	return nil
}

// Cancel is idempotent: cancelling an already cancelled appointment returns
// it unchanged and emits no event.
func (s *Service) Cancel(ctx context.Context, tenantID, appointmentID int64, reason string) (model.Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "booking.cancel", trace.WithAttributes(
		attribute.Int64("tenant.id", tenantID),
		attribute.Int64("appointment.id", appointmentID),
	))
	defer span.End()

	if tenantID <= 0 || appointmentID <= 0 {
		return model.Appointment{}, otelx.Fail(span, &availability.Error{Kind: availability.KindInvalidInput, Op: "cancel", Err: errors.New("appointment id must be positive")})
	}
	reason = strings.TrimSpace(reason)

	var appt model.Appointment
	changed := false
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.GetAppointmentForUpdate(ctx, tenantID, appointmentID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return ErrAppointmentNotFound
			}
			return err
		}
		if current.Status == model.StatusCancelled {
			appt = current
			return nil
		}

		cancelledAt, err := tx.CancelAppointment(ctx, tenantID, appointmentID, reason)
		if err != nil {
			return fmt.Errorf("cancel appointment: %w", err)
		}
		current.Status = model.StatusCancelled
		current.CancelledAt = &cancelledAt
		current.CancelReason = reason

		_, loc, err := s.evaluator.Facility(ctx, tenantID, current.FacilityID)
		if err != nil {
			return err
		}
		if err := tx.EnqueueEvent(ctx, newEvent(outbox.EventAppointmentCancelled, current, model.DateOf(current.Start.In(loc)))); err != nil {
			return fmt.Errorf("enqueue event: %w", err)
		}
		appt = current
		changed = true
		return nil
	})
	if err != nil {
		return model.Appointment{}, otelx.Fail(span, err)
	}

	if changed {
		if _, loc, err := s.evaluator.Facility(ctx, tenantID, appt.FacilityID); err == nil {
			s.invalidate(ctx, appt, loc)
		}
	}
	return appt, nil
}

// List returns every appointment, cancelled included, starting on the
// facility-local date.
func (s *Service) List(ctx context.Context, tenantID, facilityID int64, date model.Date) ([]model.Appointment, error) {
	if tenantID <= 0 || facilityID <= 0 || date.IsZero() {
		return nil, &availability.Error{Kind: availability.KindInvalidInput, Op: "list", Err: errors.New("facilityId and date are required")}
	}
	_, loc, err := s.evaluator.Facility(ctx, tenantID, facilityID)
	if err != nil {
		return nil, err
	}
	from := time.Date(date.Year, date.Month, date.Day, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 0, 1)
	appts, err := s.store.ListAppointments(ctx, tenantID, facilityID, from, to)
	if err != nil {
		return nil, &availability.Error{Kind: availability.KindStorageUnavailable, Op: "list", Err: err}
	}
	return appts, nil
}

// invalidate drops cached availability for every local date the
// appointment touches. Failures are logged; entries also expire by TTL.
func (s *Service) invalidate(ctx context.Context, appt model.Appointment, loc *time.Location) {
	if s.cache == nil {
		return
	}
	first := model.DateOf(appt.Start.In(loc))
	last := model.DateOf(appt.End.In(loc))
	for d := first; !d.UTC().After(last.UTC()); d = d.AddDays(1) {
		if err := s.cache.InvalidateDay(ctx, appt.TenantID, appt.FacilityID, d); err != nil {
			s.logger.Warn("availability cache invalidation failed",
				"err", err, "facility_id", appt.FacilityID, "date", d.String())
		}
	}
}

type appointmentEvent struct {
	AppointmentID     int64  `json:"appointment_id"`
	TenantID          int64  `json:"tenant_id"`
	FacilityID        int64  `json:"facility_id"`
	AppointmentTypeID int64  `json:"appointment_type_id"`
	Date              string `json:"date"`
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	Reference         string `json:"reference,omitempty"`
	CancelledAt       string `json:"cancelled_at,omitempty"`
	Reason            string `json:"reason,omitempty"`
}

func newEvent(eventType string, appt model.Appointment, date model.Date) outbox.Event {
	payload := appointmentEvent{
		AppointmentID:     appt.ID,
		TenantID:          appt.TenantID,
		FacilityID:        appt.FacilityID,
		AppointmentTypeID: appt.AppointmentTypeID,
		Date:              date.String(),
		StartTime:         appt.Start.UTC().Format(time.RFC3339),
		EndTime:           appt.End.UTC().Format(time.RFC3339),
		Reference:         appt.Reference,
		Reason:            appt.CancelReason,
	}
	if appt.CancelledAt != nil {
		payload.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
	}
	// Marshalling a struct of strings and ints cannot fail.
	body, _ := json.Marshal(payload)
	return outbox.Event{
		AggregateType: "appointment",
		AggregateID:   strconv.FormatInt(appt.ID, 10),
		EventType:     eventType,
		Payload:       body,
	}
}

type storedRejection struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func rejectionRecord(tenantID int64, key string, rejection error) model.IdempotencyRecord {
	rec := model.IdempotencyRecord{TenantID: tenantID, Key: key, StatusCode: http.StatusUnprocessableEntity}
	body := storedRejection{Error: rejection.Error(), Code: "not_bookable"}
	var rej *RejectedError
	if errors.As(rejection, &rej) {
		rec.StatusCode = http.StatusConflict
		body.Code = string(rej.Reason)
	}
	rec.ResponsePayload, _ = json.Marshal(body)
	return rec
}

func replay(rec model.IdempotencyRecord) (Confirmation, error, error) {
	switch rec.StatusCode {
	case http.StatusCreated:
		var appt model.Appointment
		if err := json.Unmarshal(rec.ResponsePayload, &appt); err != nil {
			return Confirmation{}, nil, fmt.Errorf("decode idempotent response: %w", err)
		}
		return Confirmation{Appointment: appt, Replayed: true}, nil, nil
	case http.StatusConflict:
		var body storedRejection
		if err := json.Unmarshal(rec.ResponsePayload, &body); err != nil {
			return Confirmation{}, nil, fmt.Errorf("decode idempotent response: %w", err)
		}
		return Confirmation{}, &RejectedError{Reason: model.ReasonCode(body.Code)}, nil
	default:
		return Confirmation{}, ErrNotBookable, nil
	}
}
