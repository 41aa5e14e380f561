package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/model"
)

var (
	ErrNotBookable         = errors.New("requested start is not a bookable slot")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// RejectedError means the slot exists but cannot take another appointment.
type RejectedError struct {
	Reason model.ReasonCode
	Start  time.Time
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("slot %s unavailable: %s", e.Start.UTC().Format(time.RFC3339), e.Reason)
}
