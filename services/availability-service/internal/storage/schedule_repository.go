package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/dockslots/libs/db"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/model"
)

const appointmentColumns = `
	id, tenant_id, facility_id, appointment_type_id, start_time, end_time, status,
	reference, cancelled_at, COALESCE(cancellation_reason, ''), created_at`

type ScheduleRepository struct {
	q db.Querier
}

func NewScheduleRepository(q db.Querier) *ScheduleRepository {
	return &ScheduleRepository{q: q}
}

// GetAppointmentsForFacilityAndDate returns non-cancelled appointments that
// overlap [q.From, q.To).
func (r *ScheduleRepository) GetAppointmentsForFacilityAndDate(ctx context.Context, q availability.AppointmentQuery) ([]model.Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1
			AND facility_id = $2
			AND ($3::bigint = 0 OR appointment_type_id = $3)
			AND status <> 'cancelled'
			AND start_time < $5
			AND end_time > $4
		ORDER BY start_time ASC
	`, q.TenantID, q.FacilityID, q.AppointmentTypeID, q.From, q.To)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanAppointment)
}

// ListAppointments returns every appointment, cancelled included, starting
// in [from, to).
func (r *ScheduleRepository) ListAppointments(ctx context.Context, tenantID, facilityID int64, from, to time.Time) ([]model.Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1
			AND facility_id = $2
			AND start_time >= $3
			AND start_time < $4
		ORDER BY start_time ASC, id ASC
	`, tenantID, facilityID, from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanAppointment)
}

func scanAppointment(row pgx.CollectableRow) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.FacilityID,
		&a.AppointmentTypeID,
		&a.Start,
		&a.End,
		&a.Status,
		&a.Reference,
		&a.CancelledAt,
		&a.CancelReason,
		&a.CreatedAt,
	)
	return a, err
}
