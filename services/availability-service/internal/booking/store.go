package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/outbox"
)

// Store runs booking work inside one database transaction.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	ListAppointments(ctx context.Context, tenantID, facilityID int64, from, to time.Time) ([]model.Appointment, error)
}

// Tx is the transactional surface used by Book and Cancel. Every read made
// through it observes writes already made in the same transaction.
type Tx interface {
	// LockFacilityDay serializes writers for one facility-day until the
	// transaction ends.
	LockFacilityDay(ctx context.Context, facilityID int64, date model.Date) error
	Schedule() availability.ScheduleStore

	ClaimIdempotencyKey(ctx context.Context, tenantID int64, key string) (model.IdempotencyRecord, error)
	CompleteIdempotencyKey(ctx context.Context, rec model.IdempotencyRecord) error

	InsertAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	GetAppointmentForUpdate(ctx context.Context, tenantID, appointmentID int64) (model.Appointment, error)
	CancelAppointment(ctx context.Context, tenantID, appointmentID int64, reason string) (time.Time, error)

	EnqueueEvent(ctx context.Context, evt outbox.Event) error
}

// Invalidator drops cached availability for a facility-day.
type Invalidator interface {
	InvalidateDay(ctx context.Context, tenantID, facilityID int64, date model.Date) error
}
