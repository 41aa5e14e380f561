package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ReasonCode explains why a slot is unavailable.
type ReasonCode string

const (
	ReasonNone            ReasonCode = ""
	ReasonBreakTime       ReasonCode = "BREAK_TIME"
	ReasonSlotFull        ReasonCode = "SLOT_FULL"
	ReasonDayLimitReached ReasonCode = "DAY_LIMIT_REACHED"
	ReasonHolidayClosed   ReasonCode = "HOLIDAY_CLOSED"
)

func (r ReasonCode) Valid() bool {
	switch r {
	case ReasonNone, ReasonBreakTime, ReasonSlotFull, ReasonDayLimitReached, ReasonHolidayClosed:
		return true
	default:
		return false
	}
}

// MarshalJSON renders the empty reason as null.
func (r ReasonCode) MarshalJSON() ([]byte, error) {
	if r == ReasonNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(r))
}

func (r *ReasonCode) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = ReasonNone
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	code := ReasonCode(s)
	if !code.Valid() {
		return fmt.Errorf("unknown reason code %q", s)
	}
	*r = code
	return nil
}

// Slot is one candidate start time and its verdict. Slots are computed per
// request and never persisted.
type Slot struct {
	StartLocal        string     `json:"startLocal"`
	EndLocal          string     `json:"endLocal"`
	Start             time.Time  `json:"start"`
	End               time.Time  `json:"end"`
	Available         bool       `json:"available"`
	RemainingCapacity int        `json:"remainingCapacity"`
	Reason            ReasonCode `json:"reason"`
}

// EffectiveWindow is the resolved operating window for one facility on one
// date. When IsOpen is false the instants are zero.
type EffectiveWindow struct {
	Date          Date
	Location      *time.Location
	IsOpen        bool
	HolidayClosed bool
	Source        WindowSource
	Open          time.Time
	Close         time.Time
	BreakStart    time.Time
	BreakEnd      time.Time
}

func (w EffectiveWindow) HasBreak() bool {
	return !w.BreakStart.IsZero() && w.BreakEnd.After(w.BreakStart)
}

type WindowSource string

const (
	SourceNone         WindowSource = "none"
	SourceOrganization WindowSource = "organization"
	SourceFacility     WindowSource = "facility"
	SourceHolidayHours WindowSource = "holiday_override"
)
