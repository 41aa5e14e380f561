package storage

import (
	"context"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/dockslots/libs/db"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/booking"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/outbox"
)

// facilityDayLockNamespace is the first key of every facility-day advisory
// lock; the second is a hash of facility and date.
const facilityDayLockNamespace int32 = 0x646f636b

// BookingStore implements booking.Store on Postgres.
type BookingStore struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewBookingStore(pool *db.Pool, outboxRepo *outbox.Repository) *BookingStore {
	return &BookingStore{pool: pool, outbox: outboxRepo}
}

func (s *BookingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	return s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &bookingTx{tx: tx, outbox: s.outbox})
	})
}

func (s *BookingStore) ListAppointments(ctx context.Context, tenantID, facilityID int64, from, to time.Time) ([]model.Appointment, error) {
	return NewScheduleRepository(s.pool).ListAppointments(ctx, tenantID, facilityID, from, to)
}

type bookingTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *bookingTx) LockFacilityDay(ctx context.Context, facilityID int64, date model.Date) error {
	return db.AdvisoryXactLock(ctx, t.tx, facilityDayLockNamespace, facilityDayLockKey(facilityID, date))
}

func (t *bookingTx) Schedule() availability.ScheduleStore {
	return NewScheduleRepository(t.tx)
}

// ClaimIdempotencyKey inserts the key if new and locks its row either way,
// so a concurrent retry waits for the first request to finish.
func (t *bookingTx) ClaimIdempotencyKey(ctx context.Context, tenantID int64, key string) (model.IdempotencyRecord, error) {
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (tenant_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id, idempotency_key) DO NOTHING
	`, tenantID, key); err != nil {
		return model.IdempotencyRecord{}, err
	}

	rec := model.IdempotencyRecord{TenantID: tenantID, Key: key}
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(appointment_id, 0), COALESCE(status_code, 0), response_payload
		FROM booking_idempotency_keys
		WHERE tenant_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, tenantID, key).Scan(&rec.AppointmentID, &rec.StatusCode, &rec.ResponsePayload)
	if err != nil {
		return model.IdempotencyRecord{}, err
	}
	return rec, nil
}

func (t *bookingTx) CompleteIdempotencyKey(ctx context.Context, rec model.IdempotencyRecord) error {
	var appointmentID *int64
	if rec.AppointmentID > 0 {
		appointmentID = &rec.AppointmentID
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = $3,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE tenant_id = $1 AND idempotency_key = $2
	`, rec.TenantID, rec.Key, appointmentID, rec.StatusCode, rec.ResponsePayload)
	return err
}

func (t *bookingTx) InsertAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(tenant_id, facility_id, appointment_type_id, start_time, end_time, status, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, a.TenantID, a.FacilityID, a.AppointmentTypeID, a.Start, a.End, a.Status, a.Reference).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

func (t *bookingTx) GetAppointmentForUpdate(ctx context.Context, tenantID, appointmentID int64) (model.Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE
	`, appointmentID, tenantID)
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
	if err != nil {
		return model.Appointment{}, notFound(err)
	}
	return a, nil
}

func (t *bookingTx) CancelAppointment(ctx context.Context, tenantID, appointmentID int64, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = NULLIF($3, '')
		WHERE id = $1 AND tenant_id = $2
		RETURNING cancelled_at
	`, appointmentID, tenantID, reason).Scan(&cancelledAt)
	if err != nil {
		return time.Time{}, notFound(err)
	}
	return cancelledAt, nil
}

func (t *bookingTx) EnqueueEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}

func facilityDayLockKey(facilityID int64, date model.Date) int32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strconv.FormatInt(facilityID, 10)))
	_, _ = h.Write([]byte{'/'})
	_, _ = h.Write([]byte(date.String()))
	return int32(h.Sum32())
}
