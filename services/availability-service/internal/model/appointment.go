package model

import "time"

const (
	StatusScheduled = "scheduled"
	StatusCancelled = "cancelled"
)

type Appointment struct {
	ID                int64      `json:"id"`
	TenantID          int64      `json:"tenantId"`
	FacilityID        int64      `json:"facilityId"`
	AppointmentTypeID int64      `json:"appointmentTypeId"`
	Start             time.Time  `json:"start"`
	End               time.Time  `json:"end"`
	Status            string     `json:"status"`
	Reference         string     `json:"reference,omitempty"`
	CancelledAt       *time.Time `json:"cancelledAt,omitempty"`
	CancelReason      string     `json:"cancelReason,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// Overlaps reports whether the appointment, widened by grace on both ends,
// intersects [start, end). Intervals are half-open.
func (a Appointment) Overlaps(start, end time.Time, grace time.Duration) bool {
	return start.Before(a.End.Add(grace)) && a.Start.Add(-grace).Before(end)
}

// IdempotencyRecord remembers the outcome of a booking request so a retried
// request with the same key gets the same answer.
type IdempotencyRecord struct {
	TenantID        int64
	Key             string
	AppointmentID   int64
	StatusCode      int
	ResponsePayload []byte
}

func (r IdempotencyRecord) Completed() bool {
	return r.StatusCode > 0
}
