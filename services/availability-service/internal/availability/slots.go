package availability

import (
	"time"

	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/tz"
)

// GenerateSlots returns candidate slots stepping by the rule's buffer from
// the window's opening. A slot is generated only when it fully fits before
// closing. Every slot starts available with full concurrency.
func GenerateSlots(w model.EffectiveWindow, rule Rule) []model.Slot {
	if !w.IsOpen || rule.Duration <= 0 || rule.Buffer <= 0 {
		return nil
	}
	if !w.Close.After(w.Open) || w.Open.Add(rule.Duration).After(w.Close) {
		return nil
	}

	var slots []model.Slot
	for t := w.Open; !t.Add(rule.Duration).After(w.Close); t = t.Add(rule.Buffer) {
		end := t.Add(rule.Duration)
		slots = append(slots, model.Slot{
			StartLocal:        tz.ToLocal(t, w.Location),
			EndLocal:          tz.ToLocal(end, w.Location),
			Start:             t.UTC(),
			End:               end.UTC(),
			Available:         true,
			RemainingCapacity: rule.MaxConcurrent,
		})
	}
	return slots
}

// overlaps is the half-open interval test: [start,end) intersects [bStart,bEnd)
// iff start < bEnd && bStart < end.
func overlaps(start, end, bStart, bEnd time.Time) bool {
	return start.Before(bEnd) && bStart.Before(end)
}

// FindSlot returns the slot starting exactly at start.
func FindSlot(slots []model.Slot, start time.Time) (model.Slot, bool) {
	for _, s := range slots {
		if s.Start.Equal(start) {
			return s, true
		}
	}
	return model.Slot{}, false
}
