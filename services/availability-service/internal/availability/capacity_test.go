package availability

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/model"
)

func TestAccountCapacityDoesNotMutateInput(t *testing.T) {
	w := utcWindow(9, 10)
	rule := Rule{TypeID: 1, Duration: 30 * time.Minute, Buffer: 30 * time.Minute, MaxConcurrent: 1}
	in := GenerateSlots(w, rule)
	usage := Usage{Appointments: []model.Appointment{{AppointmentTypeID: 1, Start: w.Open, End: w.Open.Add(30 * time.Minute)}}}

	out := AccountCapacity(in, rule, usage)
	if !in[0].Available || in[0].RemainingCapacity != 1 {
		t.Fatal("input slots must be left untouched")
	}
	if out[0].Available || out[0].Reason != model.ReasonSlotFull {
		t.Fatalf("expected output slot full, got %+v", out[0])
	}
}

func TestAccountCapacityInvariants(t *testing.T) {
	w := utcWindow(8, 12)
	w.BreakStart = w.Open.Add(time.Hour)
	w.BreakEnd = w.Open.Add(90 * time.Minute)
	rule := Rule{TypeID: 1, Duration: 30 * time.Minute, Buffer: 15 * time.Minute, MaxConcurrent: 2, Grace: 5 * time.Minute}

	var appts []model.Appointment
	for i := 0; i < 6; i++ {
		start := w.Open.Add(time.Duration(i*20) * time.Minute)
		appts = append(appts, model.Appointment{AppointmentTypeID: 1, Start: start, End: start.Add(40 * time.Minute)})
	}

	slots := ApplyBreak(GenerateSlots(w, rule), w, rule)
	slots = AccountCapacity(slots, rule, Usage{Appointments: appts})
	for _, s := range slots {
		if s.RemainingCapacity < 0 {
			t.Fatalf("slot %s has negative capacity", s.StartLocal)
		}
		if s.Available != (s.RemainingCapacity > 0) {
			t.Fatalf("slot %s: available=%v with remaining=%d", s.StartLocal, s.Available, s.RemainingCapacity)
		}
		if !s.Available && s.Reason == model.ReasonNone {
			t.Fatalf("slot %s unavailable without a reason", s.StartLocal)
		}
		if overlaps(s.Start, s.End, w.BreakStart, w.BreakEnd) && s.Reason != model.ReasonBreakTime {
			t.Fatalf("slot %s intersects the break but has reason %q", s.StartLocal, s.Reason)
		}
	}
}

func TestBuildUsage(t *testing.T) {
	dayStart := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)
	appts := []model.Appointment{
		{AppointmentTypeID: 1, Start: dayStart.Add(time.Hour), End: dayStart.Add(2 * time.Hour), Status: model.StatusScheduled},
		{AppointmentTypeID: 2, Start: dayStart.Add(time.Hour), End: dayStart.Add(2 * time.Hour), Status: model.StatusScheduled},
		{AppointmentTypeID: 1, Start: dayStart.Add(3 * time.Hour), End: dayStart.Add(4 * time.Hour), Status: model.StatusCancelled},
		// Previous evening, only relevant through grace.
		{AppointmentTypeID: 1, Start: dayStart.Add(-time.Hour), End: dayStart.Add(-time.Minute), Status: model.StatusScheduled},
	}

	u := BuildUsage(appts, ScopeAppointmentType, 1, dayStart, dayEnd)
	if len(u.Appointments) != 2 || u.DayCount != 1 {
		t.Fatalf("per-type: got %d appointments, day count %d", len(u.Appointments), u.DayCount)
	}
	u = BuildUsage(appts, ScopeFacility, 1, dayStart, dayEnd)
	if len(u.Appointments) != 3 || u.DayCount != 1 {
		t.Fatalf("per-facility: got %d appointments, day count %d", len(u.Appointments), u.DayCount)
	}
}
