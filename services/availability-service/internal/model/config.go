package model

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a requested row does not exist or
// belongs to another tenant.
var ErrNotFound = errors.New("not found")

type Facility struct {
	ID       int64
	TenantID int64
	Name     string
	Timezone string
}

// OperatingWindow is one day-of-week entry of weekly hours, either an
// organization default or a facility-specific row. Times are local "HH:MM".
type OperatingWindow struct {
	DayOfWeek  time.Weekday
	IsOpen     bool
	Active     bool
	OpenTime   string
	CloseTime  string
	BreakStart string
	BreakEnd   string
}

func (w OperatingWindow) HasBreak() bool {
	return w.BreakStart != "" && w.BreakEnd != ""
}

// HolidayOverride closes a date for the whole organization, or for one
// facility when FacilityID is set.
type HolidayOverride struct {
	TenantID   int64
	FacilityID int64
	Date       Date
	Name       string
	Closed     bool
}

// AppointmentTypeRule is read per request and never modified by the engine.
// Zero values mean "not configured" for the optional limits.
type AppointmentTypeRule struct {
	ID                             int64
	TenantID                       int64
	Name                           string
	DurationMinutes                int
	BufferMinutes                  int
	MaxConcurrent                  int
	MaxAppointmentsPerDay          int
	GracePeriodMinutes             int
	AllowAppointmentsThroughBreaks bool
	OverrideFacilityHours          bool
}
