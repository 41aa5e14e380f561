package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/model"
	"github.com/segmentio/kafka-go"
)

// EventFacilityConfigChanged is published by the configuration owner when
// hours, holidays or appointment types change.
const EventFacilityConfigChanged = "dock.facility.config_changed.v1"

type Invalidator interface {
	InvalidateDay(ctx context.Context, tenantID, facilityID int64, date model.Date) error
	InvalidateFacility(ctx context.Context, tenantID, facilityID int64) error
	// InvalidateTenant drops one date across every facility of the tenant,
	// or every date when date is zero.
	InvalidateTenant(ctx context.Context, tenantID int64, date model.Date) error
}

type invalidationEvent struct {
	TenantID   int64  `json:"tenant_id"`
	FacilityID int64  `json:"facility_id"`
	Date       string `json:"date"`
}

// InvalidationHandler drops cached availability named by an event. The
// scope is a facility-day, a whole facility, or, for organization-wide
// changes such as default hours and org holidays that carry no facility,
// every facility of the tenant. A date narrows the scope when present.
func InvalidationHandler(cache Invalidator, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt invalidationEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			// A malformed payload will never parse; retrying is pointless.
			logger.Warn("invalidation event ignored", "err", err, "topic", msg.Topic)
			return nil
		}
		if evt.TenantID <= 0 || evt.FacilityID < 0 {
			logger.Warn("invalidation event missing ids", "topic", msg.Topic)
			return nil
		}

		var date model.Date
		if evt.Date != "" {
			d, err := model.ParseDate(evt.Date)
			if err != nil {
				logger.Warn("invalidation event has bad date", "date", evt.Date, "topic", msg.Topic)
			} else {
				date = d
			}
		}

		var err error
		switch {
		case evt.FacilityID == 0:
			err = cache.InvalidateTenant(ctx, evt.TenantID, date)
		case date.IsZero():
			err = cache.InvalidateFacility(ctx, evt.TenantID, evt.FacilityID)
		default:
			err = cache.InvalidateDay(ctx, evt.TenantID, evt.FacilityID, date)
		}
		if err != nil {
			return fmt.Errorf("invalidate tenant %d facility %d date %q: %w", evt.TenantID, evt.FacilityID, evt.Date, err)
		}
		return nil
	}
}
