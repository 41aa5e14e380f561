package availability

import "github.com/md-rashed-zaman/dockslots/services/availability-service/internal/model"

// ApplyBreak blocks every slot whose full duration touches the break window
// unless the rule lets appointments run through breaks. Blocked slots carry
// BREAK_TIME, which later stages never change.
func ApplyBreak(slots []model.Slot, w model.EffectiveWindow, rule Rule) []model.Slot {
	out := make([]model.Slot, len(slots))
	copy(out, slots)
	if !w.HasBreak() || rule.AllowThroughBreaks {
		return out
	}
	for i := range out {
		if overlaps(out[i].Start, out[i].End, w.BreakStart, w.BreakEnd) {
			out[i].Available = false
			out[i].RemainingCapacity = 0
			out[i].Reason = model.ReasonBreakTime
		}
	}
	return out
}
