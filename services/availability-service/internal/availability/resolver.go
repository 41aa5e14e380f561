package availability

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/tz"
)

// DayConfig is every configuration source that can shape one facility-day.
// Nil pointers mean the source has no entry.
type DayConfig struct {
	FacilityHours *model.OperatingWindow
	OrgHours      *model.OperatingWindow
	Holiday       *model.HolidayOverride
	Rule          Rule
}

// Adjustment records a local time that fell in a DST gap or overlap and how
// it was resolved.
type Adjustment struct {
	Field      string
	Clock      string
	At         time.Time
	Resolution tz.Resolution
}

// ResolveWindow applies the precedence chain for one date: facility weekly
// hours (when present and active), else organization defaults, else closed;
// a closing holiday then closes the day unless the rule overrides facility
// hours, in which case the whole local day is open with no break.
func ResolveWindow(date model.Date, loc *time.Location, cfg DayConfig) (model.EffectiveWindow, []Adjustment, error) {
	weekly, source := pickWeekly(cfg)
	closed := model.EffectiveWindow{Date: date, Location: loc, Source: source}

	if cfg.Holiday != nil && cfg.Holiday.Closed {
		if !cfg.Rule.OverrideHours {
			closed.HolidayClosed = true
			return closed, nil, nil
		}
		return fullDay(date, loc)
	}
	if weekly == nil || !weekly.IsOpen {
		return closed, nil, nil
	}

	r := windowResolver{date: date, loc: loc}
	open := r.instant("open_time", weekly.OpenTime)
	end := r.instant("close_time", weekly.CloseTime)
	var breakStart, breakEnd time.Time
	if weekly.HasBreak() {
		breakStart = r.instant("break_start", weekly.BreakStart)
		breakEnd = r.instant("break_end", weekly.BreakEnd)
	}
	if r.err != nil {
		return closed, nil, r.err
	}
	if !end.After(open) {
		return closed, nil, badConfig("resolve window",
			fmt.Errorf("%s hours for %s close at %s before opening at %s", source, date.Weekday(), weekly.CloseTime, weekly.OpenTime))
	}
	if weekly.HasBreak() && !breakEnd.After(breakStart) {
		return closed, nil, badConfig("resolve window",
			fmt.Errorf("%s break for %s ends at %s before starting at %s", source, date.Weekday(), weekly.BreakEnd, weekly.BreakStart))
	}

	return model.EffectiveWindow{
		Date:       date,
		Location:   loc,
		IsOpen:     true,
		Source:     source,
		Open:       open,
		Close:      end,
		BreakStart: breakStart,
		BreakEnd:   breakEnd,
	}, r.adjustments, nil
}

func pickWeekly(cfg DayConfig) (*model.OperatingWindow, model.WindowSource) {
	if cfg.FacilityHours != nil && cfg.FacilityHours.Active {
		return cfg.FacilityHours, model.SourceFacility
	}
	if cfg.OrgHours != nil {
		return cfg.OrgHours, model.SourceOrganization
	}
	return nil, model.SourceNone
}

func fullDay(date model.Date, loc *time.Location) (model.EffectiveWindow, []Adjustment, error) {
	start, _ := tz.StartOfDay(date, loc)
	end, _ := tz.StartOfDay(date.AddDays(1), loc)
	return model.EffectiveWindow{
		Date:     date,
		Location: loc,
		IsOpen:   true,
		Source:   model.SourceHolidayHours,
		Open:     start,
		Close:    end,
	}, nil, nil
}

// windowResolver converts several clock strings, keeping the first error.
type windowResolver struct {
	date        model.Date
	loc         *time.Location
	adjustments []Adjustment
	err         error
}

func (r *windowResolver) instant(field, clock string) time.Time {
	if r.err != nil {
		return time.Time{}
	}
	t, res, err := tz.ToInstant(r.date, clock, r.loc)
	if err != nil {
		r.err = badConfig("resolve window", fmt.Errorf("%s: %w", field, err))
		return time.Time{}
	}
	if res != tz.Exact {
		r.adjustments = append(r.adjustments, Adjustment{Field: field, Clock: clock, At: t, Resolution: res})
	}
	return t
}
