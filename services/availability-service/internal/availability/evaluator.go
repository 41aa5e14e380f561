package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	otelx "github.com/md-rashed-zaman/dockslots/libs/otel"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/tz"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ConfigStore is the read side of facility, hours, holiday and
// appointment-type configuration. Missing rows are reported as
// model.ErrNotFound (for single-row lookups) or found=false.
type ConfigStore interface {
	GetFacility(ctx context.Context, tenantID, facilityID int64) (model.Facility, error)
	GetFacilityHours(ctx context.Context, facilityID int64, day time.Weekday) (model.OperatingWindow, bool, error)
	GetOrgDefaultHours(ctx context.Context, tenantID int64, day time.Weekday) (model.OperatingWindow, bool, error)
	GetHolidayOverride(ctx context.Context, tenantID, facilityID int64, date model.Date) (model.HolidayOverride, bool, error)
	GetAppointmentTypeRule(ctx context.Context, tenantID, appointmentTypeID int64) (model.AppointmentTypeRule, error)
}

// AppointmentQuery selects non-cancelled appointments at a facility that
// overlap [From, To). AppointmentTypeID zero means every type.
type AppointmentQuery struct {
	TenantID          int64
	FacilityID        int64
	AppointmentTypeID int64
	From              time.Time
	To                time.Time
}

type ScheduleStore interface {
	GetAppointmentsForFacilityAndDate(ctx context.Context, q AppointmentQuery) ([]model.Appointment, error)
}

type Request struct {
	TenantID          int64
	FacilityID        int64
	AppointmentTypeID int64
	Date              model.Date
}

func (r Request) Validate() error {
	switch {
	case r.TenantID <= 0:
		return invalidInput("validate", "tenant id must be positive")
	case r.FacilityID <= 0:
		return invalidInput("validate", "facilityId must be positive")
	case r.AppointmentTypeID <= 0:
		return invalidInput("validate", "appointmentTypeId must be positive")
	case r.Date.IsZero():
		return invalidInput("validate", "date is required")
	}
	return nil
}

// Result is the full outcome of one evaluation. Booking uses the window and
// rule to validate a requested start; HTTP only needs Slots.
type Result struct {
	Facility model.Facility
	Window   model.EffectiveWindow
	Rule     Rule
	Slots    []model.Slot
}

// Evaluator orchestrates resolution, generation, break policy and capacity
// accounting. It keeps no state between calls.
type Evaluator struct {
	config   ConfigStore
	schedule ScheduleStore
	zones    *tz.Normalizer
	policy   Policy
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewEvaluator(config ConfigStore, schedule ScheduleStore, zones *tz.Normalizer, policy Policy, logger *slog.Logger) *Evaluator {
	if policy.Scope == "" {
		policy.Scope = ScopeAppointmentType
	}
	return &Evaluator{
		config:   config,
		schedule: schedule,
		zones:    zones,
		policy:   policy,
		logger:   logger,
		tracer:   otelx.Tracer("availability"),
	}
}

// WithSchedule returns a copy that reads appointments from s, typically a
// store bound to an open transaction.
func (e *Evaluator) WithSchedule(s ScheduleStore) *Evaluator {
	cp := *e
	cp.schedule = s
	return &cp
}

func (e *Evaluator) Evaluate(ctx context.Context, req Request) ([]model.Slot, error) {
	res, err := e.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.Slots, nil
}

func (e *Evaluator) Resolve(ctx context.Context, req Request) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "availability.evaluate", trace.WithAttributes(
		attribute.Int64("tenant.id", req.TenantID),
		attribute.Int64("facility.id", req.FacilityID),
		attribute.Int64("appointment_type.id", req.AppointmentTypeID),
		attribute.String("date", req.Date.String()),
	))
	defer span.End()

	if err := req.Validate(); err != nil {
		return Result{}, otelx.Fail(span, err)
	}

	facility, loc, err := e.Facility(ctx, req.TenantID, req.FacilityID)
	if err != nil {
		return Result{}, otelx.Fail(span, err)
	}

	rule, err := e.Rule(ctx, req.TenantID, req.AppointmentTypeID)
	if err != nil {
		return Result{}, otelx.Fail(span, err)
	}

	cfg, err := e.dayConfig(ctx, req, rule)
	if err != nil {
		return Result{}, otelx.Fail(span, err)
	}
	window, adjustments, err := ResolveWindow(req.Date, loc, cfg)
	if err != nil {
		return Result{}, otelx.Fail(span, err)
	}
	for _, adj := range adjustments {
		e.logAmbiguous(ctx, span, facility, req.Date, adj)
	}

	res := Result{Facility: facility, Window: window, Rule: rule, Slots: []model.Slot{}}
	span.SetAttributes(
		attribute.Bool("window.open", window.IsOpen),
		attribute.String("window.source", string(window.Source)),
	)
	if !window.IsOpen {
		return res, nil
	}

	slots := GenerateSlots(window, rule)
	slots = ApplyBreak(slots, window, rule)

	dayStart, _ := tz.StartOfDay(req.Date, loc)
	dayEnd, _ := tz.StartOfDay(req.Date.AddDays(1), loc)
	q := AppointmentQuery{
		TenantID:   req.TenantID,
		FacilityID: req.FacilityID,
		From:       dayStart.Add(-rule.Grace),
		To:         dayEnd.Add(rule.Grace),
	}
	if e.policy.Scope == ScopeAppointmentType {
		q.AppointmentTypeID = req.AppointmentTypeID
	}
	appts, err := e.schedule.GetAppointmentsForFacilityAndDate(ctx, q)
	if err != nil {
		// Never read a failed fetch as an empty day.
		return Result{}, otelx.Fail(span, storageFailure("get appointments", err))
	}

	usage := BuildUsage(appts, e.policy.Scope, req.AppointmentTypeID, dayStart, dayEnd)
	res.Slots = AccountCapacity(slots, rule, usage)
	span.SetAttributes(
		attribute.Int("slots.total", len(res.Slots)),
		attribute.Int("appointments.counted", len(usage.Appointments)),
	)
	return res, nil
}

// Facility loads a tenant's facility and its zone.
func (e *Evaluator) Facility(ctx context.Context, tenantID, facilityID int64) (model.Facility, *time.Location, error) {
	facility, err := e.config.GetFacility(ctx, tenantID, facilityID)
	if err != nil {
		return model.Facility{}, nil, classify("get facility", err)
	}
	loc, err := e.zones.Location(facility.Timezone)
	if err != nil {
		return model.Facility{}, nil, badConfig("get facility", fmt.Errorf("facility %d: %w", facilityID, err))
	}
	return facility, loc, nil
}

// Rule loads an appointment type with policy defaults applied.
func (e *Evaluator) Rule(ctx context.Context, tenantID, appointmentTypeID int64) (Rule, error) {
	raw, err := e.config.GetAppointmentTypeRule(ctx, tenantID, appointmentTypeID)
	if err != nil {
		return Rule{}, classify("get appointment type rule", err)
	}
	return e.policy.Normalize(raw), nil
}

func (e *Evaluator) dayConfig(ctx context.Context, req Request, rule Rule) (DayConfig, error) {
	cfg := DayConfig{Rule: rule}
	day := req.Date.Weekday()

	fh, ok, err := e.config.GetFacilityHours(ctx, req.FacilityID, day)
	if err != nil {
		return cfg, storageFailure("get facility hours", err)
	}
	if ok {
		cfg.FacilityHours = &fh
	}
	if !ok || !fh.Active {
		oh, ok, err := e.config.GetOrgDefaultHours(ctx, req.TenantID, day)
		if err != nil {
			return cfg, storageFailure("get org default hours", err)
		}
		if ok {
			cfg.OrgHours = &oh
		}
	}

	h, ok, err := e.config.GetHolidayOverride(ctx, req.TenantID, req.FacilityID, req.Date)
	if err != nil {
		return cfg, storageFailure("get holiday override", err)
	}
	if ok {
		cfg.Holiday = &h
	}
	return cfg, nil
}

func (e *Evaluator) logAmbiguous(ctx context.Context, span trace.Span, facility model.Facility, date model.Date, adj Adjustment) {
	err := &Error{
		Kind: KindAmbiguousLocalTime,
		Op:   "resolve window",
		Err:  fmt.Errorf("%s %s on %s in %s", adj.Field, adj.Clock, date, facility.Timezone),
	}
	span.AddEvent("ambiguous_local_time", trace.WithAttributes(
		attribute.String("field", adj.Field),
		attribute.String("rule", adj.Resolution.String()),
	))
	e.logger.WarnContext(ctx, "ambiguous local time resolved",
		"err", err,
		"facility_id", facility.ID,
		"rule", adj.Resolution.String(),
		"resolved_to", adj.At.UTC().Format(time.RFC3339),
	)
}

func classify(op string, err error) error {
	if errors.Is(err, model.ErrNotFound) {
		return notFound(op, err)
	}
	return storageFailure(op, err)
}
