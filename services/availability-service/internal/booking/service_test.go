package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/outbox"
)

func TestBookCreatesAppointmentAndEvent(t *testing.T) {
	svc, store, _, cache := newTestService(1)
	req := bookAt(chicago(9, 0), "")
	req.Reference = " PO-4411 "

	conf, err := svc.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	a := conf.Appointment
	if a.ID == 0 || a.Status != model.StatusScheduled || a.Reference != "PO-4411" {
		t.Fatalf("unexpected appointment: %+v", a)
	}
	if !a.End.Equal(chicago(9, 30)) {
		t.Fatalf("expected end 09:30 local, got %s", a.End)
	}

	appts, events := store.committed()
	if len(appts) != 1 || len(events) != 1 {
		t.Fatalf("expected 1 appointment and 1 event, got %d/%d", len(appts), len(events))
	}
	if events[0].EventType != outbox.EventAppointmentBooked {
		t.Fatalf("unexpected event type %q", events[0].EventType)
	}
	if cache.count() != 1 || cache.dates[0] != monday {
		t.Fatalf("expected cache invalidation for %s, got %v", monday, cache.dates)
	}
}

func TestBookRejectsUnavailableSlots(t *testing.T) {
	svc, _, cfg, _ := newTestService(1)
	ctx := context.Background()

	if _, err := svc.Book(ctx, bookAt(chicago(10, 0), "")); err != nil {
		t.Fatalf("first booking: %v", err)
	}

	cases := []struct {
		name   string
		start  time.Time
		reason model.ReasonCode
	}{
		{"full", chicago(10, 0), model.ReasonSlotFull},
		{"break", chicago(12, 0), model.ReasonBreakTime},
	}
	for _, tc := range cases {
		_, err := svc.Book(ctx, bookAt(tc.start, ""))
		var rej *RejectedError
		if !errors.As(err, &rej) || rej.Reason != tc.reason {
			t.Fatalf("%s: expected %s rejection, got %v", tc.name, tc.reason, err)
		}
	}

	cfg.holidays[monday] = true
	_, err := svc.Book(ctx, bookAt(chicago(14, 0), ""))
	var rej *RejectedError
	if !errors.As(err, &rej) || rej.Reason != model.ReasonHolidayClosed {
		t.Fatalf("expected HOLIDAY_CLOSED, got %v", err)
	}
}

func TestBookRejectsStartsThatAreNotSlots(t *testing.T) {
	svc, _, _, _ := newTestService(1)
	ctx := context.Background()

	for _, start := range []time.Time{
		chicago(9, 10),
		chicago(16, 45),
		chicago(7, 30),
		time.Date(2026, time.February, 23, 15, 0, 0, 0, time.UTC),
	} {
		if _, err := svc.Book(ctx, bookAt(start, "")); !errors.Is(err, ErrNotBookable) {
			t.Fatalf("start %s: expected ErrNotBookable, got %v", start, err)
		}
	}
}

func TestBookValidatesInput(t *testing.T) {
	svc, _, _, _ := newTestService(1)
	ctx := context.Background()

	_, err := svc.Book(ctx, BookRequest{TenantID: tenantID, FacilityID: facilityID, AppointmentTypeID: dockTypeID})
	if availability.KindOf(err) != availability.KindInvalidInput {
		t.Fatalf("expected invalid input for zero start, got %v", err)
	}

	for _, req := range []BookRequest{
		{TenantID: tenantID, FacilityID: 0, AppointmentTypeID: dockTypeID, Start: chicago(9, 0)},
		{TenantID: tenantID, FacilityID: facilityID, AppointmentTypeID: 0, Start: chicago(9, 0)},
		{TenantID: 0, FacilityID: facilityID, AppointmentTypeID: dockTypeID, Start: chicago(9, 0)},
	} {
		if _, err := svc.Book(ctx, req); availability.KindOf(err) != availability.KindInvalidInput {
			t.Fatalf("expected invalid input for %+v, got %v", req, err)
		}
	}

	req := bookAt(chicago(9, 0), "")
	req.FacilityID = 999
	if _, err := svc.Book(ctx, req); availability.KindOf(err) != availability.KindConfigurationNotFound {
		t.Fatalf("expected not found for unknown facility, got %v", err)
	}

	req = bookAt(chicago(9, 0), "")
	req.AppointmentTypeID = 999
	if _, err := svc.Book(ctx, req); availability.KindOf(err) != availability.KindConfigurationNotFound {
		t.Fatalf("expected not found for unknown type, got %v", err)
	}
}

func TestBookIdempotencyReplaysOutcome(t *testing.T) {
	svc, store, _, cache := newTestService(1)
	ctx := context.Background()

	first, err := svc.Book(ctx, bookAt(chicago(9, 0), "key-1"))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	second, err := svc.Book(ctx, bookAt(chicago(9, 0), "key-1"))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !second.Replayed || second.Appointment.ID != first.Appointment.ID {
		t.Fatalf("expected replay of %d, got %+v", first.Appointment.ID, second)
	}
	appts, events := store.committed()
	if len(appts) != 1 || len(events) != 1 {
		t.Fatalf("replay must not write: %d appointments, %d events", len(appts), len(events))
	}
	if cache.count() != 1 {
		t.Fatalf("replay must not invalidate, got %d invalidations", cache.count())
	}

	// A rejected outcome is remembered even after capacity frees up.
	if _, err := svc.Book(ctx, bookAt(chicago(9, 0), "key-2")); err == nil {
		t.Fatal("expected SLOT_FULL for key-2")
	}
	if _, err := svc.Cancel(ctx, tenantID, first.Appointment.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err = svc.Book(ctx, bookAt(chicago(9, 0), "key-2"))
	var rej *RejectedError
	if !errors.As(err, &rej) || rej.Reason != model.ReasonSlotFull {
		t.Fatalf("expected stored SLOT_FULL, got %v", err)
	}

	if _, err := svc.Book(ctx, bookAt(chicago(9, 5), "key-3")); !errors.Is(err, ErrNotBookable) {
		t.Fatalf("expected ErrNotBookable, got %v", err)
	}
	if _, err := svc.Book(ctx, bookAt(chicago(9, 5), "key-3")); !errors.Is(err, ErrNotBookable) {
		t.Fatalf("expected stored ErrNotBookable, got %v", err)
	}
}

func TestConcurrentBookingsNeverOverbook(t *testing.T) {
	const capacity = 3
	svc, store, _, _ := newTestService(capacity)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	booked, full := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Book(ctx, bookAt(chicago(10, 0), ""))
			mu.Lock()
			defer mu.Unlock()
			var rej *RejectedError
			switch {
			case err == nil:
				booked++
			case errors.As(err, &rej) && rej.Reason == model.ReasonSlotFull:
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if booked != capacity || full != 20-capacity {
		t.Fatalf("expected %d booked and %d full, got %d/%d", capacity, 20-capacity, booked, full)
	}
	appts, _ := store.committed()
	if len(appts) != capacity {
		t.Fatalf("expected %d stored appointments, got %d", capacity, len(appts))
	}
}

func TestCancelIsIdempotentAndFreesCapacity(t *testing.T) {
	svc, store, _, _ := newTestService(1)
	ctx := context.Background()

	conf, err := svc.Book(ctx, bookAt(chicago(11, 0), ""))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	cancelled, err := svc.Cancel(ctx, tenantID, conf.Appointment.ID, " carrier no-show ")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != model.StatusCancelled || cancelled.CancelledAt == nil || cancelled.CancelReason != "carrier no-show" {
		t.Fatalf("unexpected cancelled appointment: %+v", cancelled)
	}

	again, err := svc.Cancel(ctx, tenantID, conf.Appointment.ID, "other")
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if again.CancelReason != "carrier no-show" {
		t.Fatalf("second cancel must not change reason, got %q", again.CancelReason)
	}
	_, events := store.committed()
	if len(events) != 2 || events[1].EventType != outbox.EventAppointmentCancelled {
		t.Fatalf("expected booked+cancelled events, got %d", len(events))
	}

	if _, err := svc.Book(ctx, bookAt(chicago(11, 0), "")); err != nil {
		t.Fatalf("slot should be free after cancel: %v", err)
	}
}

func TestCancelUnknownAppointment(t *testing.T) {
	svc, _, _, _ := newTestService(1)
	if _, err := svc.Cancel(context.Background(), tenantID, 42, ""); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}
	if _, err := svc.Cancel(context.Background(), tenantID, 0, ""); availability.KindOf(err) != availability.KindInvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestListReturnsDayAppointments(t *testing.T) {
	svc, _, _, _ := newTestService(2)
	ctx := context.Background()

	for _, start := range []time.Time{chicago(8, 0), chicago(16, 30)} {
		if _, err := svc.Book(ctx, bookAt(start, "")); err != nil {
			t.Fatalf("book %s: %v", start, err)
		}
	}
	got, err := svc.List(ctx, tenantID, facilityID, monday)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 appointments, got %d", len(got))
	}
	next, err := svc.List(ctx, tenantID, facilityID, monday.AddDays(1))
	if err != nil || len(next) != 0 {
		t.Fatalf("expected empty next day, got %d (err=%v)", len(next), err)
	}
}

func TestBookLocksEveryDayTheSlotCanAffect(t *testing.T) {
	svc, store, _, _ := newTestService(1)
	if _, err := svc.Book(context.Background(), bookAt(chicago(9, 0), "")); err != nil {
		t.Fatalf("book: %v", err)
	}
	if len(store.lockLog) != 1 || store.lockLog[0] != "day:10:2026-03-02" {
		t.Fatalf("expected only the booking day locked, got %v", store.lockLog)
	}
}

func TestLockDaysAcrossMidnight(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatal(err)
	}
	rule := availability.Rule{Duration: 30 * time.Minute, Grace: 30 * time.Minute}
	tuesday := monday.AddDays(1)

	cases := []struct {
		name  string
		start time.Time
		want  []model.Date
	}{
		{"midday", time.Date(2026, time.March, 2, 9, 0, 0, 0, loc), []model.Date{monday}},
		{"late evening", time.Date(2026, time.March, 2, 23, 30, 0, 0, loc), []model.Date{monday, tuesday}},
		{"just after midnight", time.Date(2026, time.March, 3, 0, 0, 0, 0, loc), []model.Date{monday, tuesday}},
		{"utc input", time.Date(2026, time.March, 3, 6, 0, 0, 0, time.UTC), []model.Date{monday, tuesday}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := lockDays(tc.start, rule, loc)
			if len(got) != len(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("expected %v, got %v", tc.want, got)
				}
			}
		})
	}

	noGrace := availability.Rule{Duration: 30 * time.Minute}
	if got := lockDays(time.Date(2026, time.March, 2, 23, 0, 0, 0, loc), noGrace, loc); len(got) != 1 {
		t.Fatalf("a slot ending before midnight should lock one day, got %v", got)
	}
}
