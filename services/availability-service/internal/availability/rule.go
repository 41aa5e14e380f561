package availability

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/model"
)

// CapacityScope decides which existing appointments consume a slot.
type CapacityScope string

const (
	// ScopeAppointmentType counts only appointments of the requested type.
	ScopeAppointmentType CapacityScope = "appointment_type"
	// ScopeFacility counts every appointment at the facility.
	ScopeFacility CapacityScope = "facility"
)

func ParseCapacityScope(raw string) (CapacityScope, error) {
	switch CapacityScope(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ScopeAppointmentType:
		return ScopeAppointmentType, nil
	case ScopeFacility:
		return ScopeFacility, nil
	default:
		return "", fmt.Errorf("unknown capacity scope %q", raw)
	}
}

// Policy holds deployment-wide defaults applied to appointment-type rules.
type Policy struct {
	Scope                  CapacityScope
	DefaultDurationMinutes int
	DefaultBufferMinutes   int
}

func DefaultPolicy() Policy {
	return Policy{Scope: ScopeAppointmentType, DefaultDurationMinutes: 30}
}

// Rule is an appointment-type rule with defaults filled in.
type Rule struct {
	TypeID             int64
	Duration           time.Duration
	Buffer             time.Duration
	MaxConcurrent      int
	MaxPerDay          int
	Grace              time.Duration
	AllowThroughBreaks bool
	OverrideHours      bool
}

// Normalize fills unset values: duration falls back to the policy default,
// buffer to the policy default or else the duration, and concurrency to 1.
func (p Policy) Normalize(r model.AppointmentTypeRule) Rule {
	duration := r.DurationMinutes
	if duration <= 0 {
		duration = p.DefaultDurationMinutes
	}
	if duration <= 0 {
		duration = 30
	}
	buffer := r.BufferMinutes
	if buffer <= 0 {
		buffer = p.DefaultBufferMinutes
	}
	if buffer <= 0 {
		buffer = duration
	}
	maxConcurrent := r.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	maxPerDay := r.MaxAppointmentsPerDay
	if maxPerDay < 0 {
		maxPerDay = 0
	}
	grace := r.GracePeriodMinutes
	if grace < 0 {
		grace = 0
	}
	return Rule{
		TypeID:             r.ID,
		Duration:           time.Duration(duration) * time.Minute,
		Buffer:             time.Duration(buffer) * time.Minute,
		MaxConcurrent:      maxConcurrent,
		MaxPerDay:          maxPerDay,
		Grace:              time.Duration(grace) * time.Minute,
		AllowThroughBreaks: r.AllowAppointmentsThroughBreaks,
		OverrideHours:      r.OverrideFacilityHours,
	}
}
