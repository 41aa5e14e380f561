package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/dockslots/libs/db"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/model"
)

// ConfigRepository reads facility configuration. TIME columns come back as
// "HH:MM" text so "24:00" survives the round trip.
type ConfigRepository struct {
	q db.Querier
}

func NewConfigRepository(q db.Querier) *ConfigRepository {
	return &ConfigRepository{q: q}
}

func (r *ConfigRepository) GetFacility(ctx context.Context, tenantID, facilityID int64) (model.Facility, error) {
	var f model.Facility
	err := r.q.QueryRow(ctx, `
		SELECT id, tenant_id, name, timezone
		FROM facilities
		WHERE id = $1 AND tenant_id = $2
	`, facilityID, tenantID).Scan(&f.ID, &f.TenantID, &f.Name, &f.Timezone)
	if err != nil {
		return model.Facility{}, notFound(err)
	}
	return f, nil
}

func (r *ConfigRepository) GetFacilityHours(ctx context.Context, facilityID int64, day time.Weekday) (model.OperatingWindow, bool, error) {
	w := model.OperatingWindow{DayOfWeek: day}
	err := r.q.QueryRow(ctx, `
		SELECT is_open, is_active,
			COALESCE(substr(open_time::text, 1, 5), ''),
			COALESCE(substr(close_time::text, 1, 5), ''),
			COALESCE(substr(break_start::text, 1, 5), ''),
			COALESCE(substr(break_end::text, 1, 5), '')
		FROM facility_hours
		WHERE facility_id = $1 AND day_of_week = $2
	`, facilityID, int16(day)).Scan(&w.IsOpen, &w.Active, &w.OpenTime, &w.CloseTime, &w.BreakStart, &w.BreakEnd)
	if IsNotFound(err) {
		return model.OperatingWindow{}, false, nil
	}
	if err != nil {
		return model.OperatingWindow{}, false, err
	}
	return w, true, nil
}

func (r *ConfigRepository) GetOrgDefaultHours(ctx context.Context, tenantID int64, day time.Weekday) (model.OperatingWindow, bool, error) {
	w := model.OperatingWindow{DayOfWeek: day, Active: true}
	err := r.q.QueryRow(ctx, `
		SELECT is_open,
			COALESCE(substr(open_time::text, 1, 5), ''),
			COALESCE(substr(close_time::text, 1, 5), ''),
			COALESCE(substr(break_start::text, 1, 5), ''),
			COALESCE(substr(break_end::text, 1, 5), '')
		FROM org_default_hours
		WHERE tenant_id = $1 AND day_of_week = $2
	`, tenantID, int16(day)).Scan(&w.IsOpen, &w.OpenTime, &w.CloseTime, &w.BreakStart, &w.BreakEnd)
	if IsNotFound(err) {
		return model.OperatingWindow{}, false, nil
	}
	if err != nil {
		return model.OperatingWindow{}, false, err
	}
	return w, true, nil
}

// GetHolidayOverride prefers a facility-specific row over an
// organization-wide one for the same date.
func (r *ConfigRepository) GetHolidayOverride(ctx context.Context, tenantID, facilityID int64, date model.Date) (model.HolidayOverride, bool, error) {
	var h model.HolidayOverride
	var day time.Time
	err := r.q.QueryRow(ctx, `
		SELECT tenant_id, COALESCE(facility_id, 0), holiday_date, name, is_closed
		FROM holidays
		WHERE tenant_id = $1
			AND holiday_date = $2
			AND (facility_id = $3 OR facility_id IS NULL)
		ORDER BY facility_id NULLS LAST
		LIMIT 1
	`, tenantID, date.UTC(), facilityID).Scan(&h.TenantID, &h.FacilityID, &day, &h.Name, &h.Closed)
	if IsNotFound(err) {
		return model.HolidayOverride{}, false, nil
	}
	if err != nil {
		return model.HolidayOverride{}, false, err
	}
	h.Date = model.DateOf(day.UTC())
	return h, true, nil
}

func (r *ConfigRepository) GetAppointmentTypeRule(ctx context.Context, tenantID, appointmentTypeID int64) (model.AppointmentTypeRule, error) {
	var rule model.AppointmentTypeRule
	err := r.q.QueryRow(ctx, `
		SELECT id, tenant_id, name,
			COALESCE(duration_minutes, 0),
			COALESCE(buffer_minutes, 0),
			COALESCE(max_concurrent, 0),
			COALESCE(max_appointments_per_day, 0),
			COALESCE(grace_period_minutes, 0),
			allow_through_breaks,
			override_facility_hours
		FROM appointment_types
		WHERE id = $1 AND tenant_id = $2
	`, appointmentTypeID, tenantID).Scan(
		&rule.ID,
		&rule.TenantID,
		&rule.Name,
		&rule.DurationMinutes,
		&rule.BufferMinutes,
		&rule.MaxConcurrent,
		&rule.MaxAppointmentsPerDay,
		&rule.GracePeriodMinutes,
		&rule.AllowAppointmentsThroughBreaks,
		&rule.OverrideFacilityHours,
	)
	if err != nil {
		return model.AppointmentTypeRule{}, notFound(err)
	}
	return rule, nil
}
