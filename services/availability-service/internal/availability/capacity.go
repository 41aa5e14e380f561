package availability

import (
	"time"

	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/model"
)

// Usage is the booked load a facility-day already carries.
type Usage struct {
	// Appointments consume slot capacity where they overlap.
	Appointments []model.Appointment
	// DayCount is the number of appointments of the requested type starting
	// on the local date, compared against the rule's day limit.
	DayCount int
}

// AccountCapacity folds existing appointments into the slots and returns a
// new slice. Each overlapping appointment, widened by the grace period,
// takes one unit; a slot with nothing left becomes SLOT_FULL. When the day
// limit is reached every slot not already on a break is closed with
// DAY_LIMIT_REACHED.
func AccountCapacity(slots []model.Slot, rule Rule, usage Usage) []model.Slot {
	dayFull := rule.MaxPerDay > 0 && usage.DayCount >= rule.MaxPerDay

	out := make([]model.Slot, 0, len(slots))
	for _, s := range slots {
		if s.Reason == model.ReasonBreakTime {
			out = append(out, s)
			continue
		}

		used := 0
		for _, a := range usage.Appointments {
			if a.Overlaps(s.Start, s.End, rule.Grace) {
				used++
			}
		}
		s.RemainingCapacity = max(0, s.RemainingCapacity-used)
		s.Available = s.RemainingCapacity > 0
		if !s.Available {
			s.Reason = model.ReasonSlotFull
		}

		if dayFull {
			s.Available = false
			s.RemainingCapacity = 0
			s.Reason = model.ReasonDayLimitReached
		}
		out = append(out, s)
	}
	return out
}

// BuildUsage filters fetched appointments to the ones that count under the
// capacity scope and tallies the day count for the requested type.
func BuildUsage(appts []model.Appointment, scope CapacityScope, typeID int64, dayStart, dayEnd time.Time) Usage {
	var u Usage
	for _, a := range appts {
		if a.Status == model.StatusCancelled {
			continue
		}
		sameType := a.AppointmentTypeID == typeID
		if scope == ScopeFacility || sameType {
			u.Appointments = append(u.Appointments, a)
		}
		if sameType && !a.Start.Before(dayStart) && a.Start.Before(dayEnd) {
			u.DayCount++
		}
	}
	return u
}
