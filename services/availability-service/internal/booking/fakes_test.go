package booking

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/outbox"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/tz"
)

const (
	tenantID   int64 = 1
	facilityID int64 = 10
	dockTypeID int64 = 100
)

// monday is 2026-03-02 in America/Chicago.
var monday = model.Date{Year: 2026, Month: time.March, Day: 2}

type staticConfig struct {
	rule     model.AppointmentTypeRule
	holidays map[model.Date]bool
}

func (c *staticConfig) GetFacility(_ context.Context, tenant, facility int64) (model.Facility, error) {
	if tenant != tenantID || facility != facilityID {
		return model.Facility{}, model.ErrNotFound
	}
	return model.Facility{ID: facilityID, TenantID: tenantID, Name: "North DC", Timezone: "America/Chicago"}, nil
}

func (c *staticConfig) GetFacilityHours(_ context.Context, _ int64, day time.Weekday) (model.OperatingWindow, bool, error) {
	if day == time.Saturday || day == time.Sunday {
		return model.OperatingWindow{DayOfWeek: day, Active: true}, true, nil
	}
	return model.OperatingWindow{
		DayOfWeek: day, IsOpen: true, Active: true,
		OpenTime: "08:00", CloseTime: "17:00", BreakStart: "12:00", BreakEnd: "13:00",
	}, true, nil
}

func (c *staticConfig) GetOrgDefaultHours(context.Context, int64, time.Weekday) (model.OperatingWindow, bool, error) {
	return model.OperatingWindow{}, false, nil
}

func (c *staticConfig) GetHolidayOverride(_ context.Context, tenant, facility int64, date model.Date) (model.HolidayOverride, bool, error) {
	if c.holidays[date] {
		return model.HolidayOverride{TenantID: tenant, Date: date, Name: "Closed", Closed: true}, true, nil
	}
	return model.HolidayOverride{}, false, nil
}

func (c *staticConfig) GetAppointmentTypeRule(_ context.Context, tenant, typeID int64) (model.AppointmentTypeRule, error) {
	if tenant != c.rule.TenantID || typeID != c.rule.ID {
		return model.AppointmentTypeRule{}, model.ErrNotFound
	}
	return c.rule, nil
}

// memStore mimics the Postgres store: named locks held until the
// transaction ends and writes that become visible only on commit.
type memStore struct {
	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	appts  map[int64]model.Appointment
	keys   map[string]model.IdempotencyRecord
	events []outbox.Event
	nextID int64
	// lockLog lists facility-day lock names in acquisition order.
	lockLog []string
}

func newMemStore() *memStore {
	return &memStore{
		locks: map[string]*sync.Mutex{},
		appts: map[int64]model.Appointment{},
		keys:  map[string]model.IdempotencyRecord{},
	}
}

func (m *memStore) lock(name string) *sync.Mutex {
	m.mu.Lock()
	l, ok := m.locks[name]
	if !ok {
		l = &sync.Mutex{}
		m.locks[name] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l
}

func (m *memStore) WithinTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	tx := &memTx{store: m, appts: map[int64]model.Appointment{}, keys: map[string]model.IdempotencyRecord{}}
	defer tx.release()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range tx.appts {
		m.appts[id] = a
	}
	for k, r := range tx.keys {
		m.keys[k] = r
	}
	m.events = append(m.events, tx.events...)
	return nil
}

func (m *memStore) ListAppointments(_ context.Context, tenant, facility int64, from, to time.Time) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Appointment
	for _, a := range m.appts {
		if a.TenantID == tenant && a.FacilityID == facility && !a.Start.Before(from) && a.Start.Before(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) committed() ([]model.Appointment, []outbox.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appts := make([]model.Appointment, 0, len(m.appts))
	for _, a := range m.appts {
		appts = append(appts, a)
	}
	return appts, append([]outbox.Event(nil), m.events...)
}

type memTx struct {
	store  *memStore
	held   []*sync.Mutex
	appts  map[int64]model.Appointment
	keys   map[string]model.IdempotencyRecord
	events []outbox.Event
}

func (t *memTx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i].Unlock()
	}
}

func (t *memTx) LockFacilityDay(_ context.Context, facility int64, date model.Date) error {
	name := fmt.Sprintf("day:%d:%s", facility, date)
	t.held = append(t.held, t.store.lock(name))
	t.store.mu.Lock()
	t.store.lockLog = append(t.store.lockLog, name)
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) Schedule() availability.ScheduleStore { return txSchedule{t} }

func (t *memTx) ClaimIdempotencyKey(_ context.Context, tenant int64, key string) (model.IdempotencyRecord, error) {
	name := fmt.Sprintf("%d:%s", tenant, key)
	t.held = append(t.held, t.store.lock("key:"+name))
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if rec, ok := t.store.keys[name]; ok {
		return rec, nil
	}
	return model.IdempotencyRecord{TenantID: tenant, Key: key}, nil
}

func (t *memTx) CompleteIdempotencyKey(_ context.Context, rec model.IdempotencyRecord) error {
	t.keys[fmt.Sprintf("%d:%s", rec.TenantID, rec.Key)] = rec
	return nil
}

func (t *memTx) InsertAppointment(_ context.Context, a model.Appointment) (model.Appointment, error) {
	t.store.mu.Lock()
	t.store.nextID++
	a.ID = t.store.nextID
	t.store.mu.Unlock()
	a.CreatedAt = time.Now().UTC()
	t.appts[a.ID] = a
	return a, nil
}

func (t *memTx) GetAppointmentForUpdate(_ context.Context, tenant, id int64) (model.Appointment, error) {
	t.held = append(t.held, t.store.lock(fmt.Sprintf("appt:%d", id)))
	if a, ok := t.appts[id]; ok {
		return a, nil
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	a, ok := t.store.appts[id]
	if !ok || a.TenantID != tenant {
		return model.Appointment{}, model.ErrNotFound
	}
	return a, nil
}

// CancelAppointment expects GetAppointmentForUpdate to have locked the row.
func (t *memTx) CancelAppointment(_ context.Context, tenant, id int64, reason string) (time.Time, error) {
	a, ok := t.appts[id]
	if !ok {
		t.store.mu.Lock()
		a, ok = t.store.appts[id]
		t.store.mu.Unlock()
	}
	if !ok || a.TenantID != tenant {
		return time.Time{}, model.ErrNotFound
	}
	now := time.Now().UTC()
	a.Status = model.StatusCancelled
	a.CancelledAt = &now
	a.CancelReason = reason
	t.appts[id] = a
	return now, nil
}

func (t *memTx) EnqueueEvent(_ context.Context, evt outbox.Event) error {
	t.events = append(t.events, evt)
	return nil
}

type txSchedule struct{ tx *memTx }

func (s txSchedule) GetAppointmentsForFacilityAndDate(_ context.Context, q availability.AppointmentQuery) ([]model.Appointment, error) {
	s.tx.store.mu.Lock()
	all := map[int64]model.Appointment{}
	for id, a := range s.tx.store.appts {
		all[id] = a
	}
	s.tx.store.mu.Unlock()
	for id, a := range s.tx.appts {
		all[id] = a
	}
	var out []model.Appointment
	for _, a := range all {
		if a.FacilityID != q.FacilityID || a.Status == model.StatusCancelled {
			continue
		}
		if q.AppointmentTypeID != 0 && a.AppointmentTypeID != q.AppointmentTypeID {
			continue
		}
		if a.Start.Before(q.To) && q.From.Before(a.End) {
			out = append(out, a)
		}
	}
	return out, nil
}

type recordingCache struct {
	mu    sync.Mutex
	dates []model.Date
}

func (c *recordingCache) InvalidateDay(_ context.Context, _, _ int64, date model.Date) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dates = append(c.dates, date)
	return nil
}

func (c *recordingCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.dates)
}

func newTestService(maxConcurrent int) (*Service, *memStore, *staticConfig, *recordingCache) {
	cfg := &staticConfig{
		rule: model.AppointmentTypeRule{
			ID: dockTypeID, TenantID: tenantID, Name: "Live unload",
			DurationMinutes: 30, BufferMinutes: 30, MaxConcurrent: maxConcurrent,
		},
		holidays: map[model.Date]bool{},
	}
	store := newMemStore()
	zones, err := tz.NewNormalizer(4)
	if err != nil {
		panic(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eval := availability.NewEvaluator(cfg, nil, zones, availability.DefaultPolicy(), logger)
	cache := &recordingCache{}
	clock := func() time.Time { return time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC) }
	return NewService(store, eval, cache, logger, WithClock(clock)), store, cfg, cache
}

func chicago(hour, minute int) time.Time {
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		panic(err)
	}
	return time.Date(2026, time.March, 2, hour, minute, 0, 0, loc)
}

func bookAt(start time.Time, key string) BookRequest {
	return BookRequest{
		TenantID:          tenantID,
		FacilityID:        facilityID,
		AppointmentTypeID: dockTypeID,
		Start:             start,
		IdempotencyKey:    key,
	}
}
