package availability

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/tz"
)

type fakeConfig struct {
	facilities    map[int64]model.Facility
	facilityHours map[int64]map[time.Weekday]model.OperatingWindow
	orgHours      map[int64]map[time.Weekday]model.OperatingWindow
	holidays      []model.HolidayOverride
	rules         map[int64]model.AppointmentTypeRule
	err           error
}

func newFakeConfig() *fakeConfig {
	return &fakeConfig{
		facilities:    map[int64]model.Facility{},
		facilityHours: map[int64]map[time.Weekday]model.OperatingWindow{},
		orgHours:      map[int64]map[time.Weekday]model.OperatingWindow{},
		rules:         map[int64]model.AppointmentTypeRule{},
	}
}

func (f *fakeConfig) GetFacility(_ context.Context, tenantID, facilityID int64) (model.Facility, error) {
	if f.err != nil {
		return model.Facility{}, f.err
	}
	fac, ok := f.facilities[facilityID]
	if !ok || fac.TenantID != tenantID {
		return model.Facility{}, model.ErrNotFound
	}
	return fac, nil
}

func (f *fakeConfig) GetFacilityHours(_ context.Context, facilityID int64, day time.Weekday) (model.OperatingWindow, bool, error) {
	w, ok := f.facilityHours[facilityID][day]
	return w, ok, nil
}

func (f *fakeConfig) GetOrgDefaultHours(_ context.Context, tenantID int64, day time.Weekday) (model.OperatingWindow, bool, error) {
	w, ok := f.orgHours[tenantID][day]
	return w, ok, nil
}

func (f *fakeConfig) GetHolidayOverride(_ context.Context, tenantID, facilityID int64, date model.Date) (model.HolidayOverride, bool, error) {
	var orgWide *model.HolidayOverride
	for i, h := range f.holidays {
		if h.TenantID != tenantID || h.Date != date {
			continue
		}
		if h.FacilityID == facilityID {
			return h, true, nil
		}
		if h.FacilityID == 0 {
			orgWide = &f.holidays[i]
		}
	}
	if orgWide != nil {
		return *orgWide, true, nil
	}
	return model.HolidayOverride{}, false, nil
}

func (f *fakeConfig) GetAppointmentTypeRule(_ context.Context, tenantID, appointmentTypeID int64) (model.AppointmentTypeRule, error) {
	r, ok := f.rules[appointmentTypeID]
	if !ok || r.TenantID != tenantID {
		return model.AppointmentTypeRule{}, model.ErrNotFound
	}
	return r, nil
}

type fakeSchedule struct {
	appts   []model.Appointment
	err     error
	queries []AppointmentQuery
}

func (f *fakeSchedule) GetAppointmentsForFacilityAndDate(_ context.Context, q AppointmentQuery) ([]model.Appointment, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Appointment
	for _, a := range f.appts {
		if a.FacilityID != q.FacilityID || a.Status == model.StatusCancelled {
			continue
		}
		if q.AppointmentTypeID != 0 && a.AppointmentTypeID != q.AppointmentTypeID {
			continue
		}
		if a.Start.Before(q.To) && q.From.Before(a.End) {
			out = append(out, a)
		}
	}
	return out, nil
}

const (
	tenantID   int64 = 1
	facilityID int64 = 10
	dockTypeID int64 = 100
	vanTypeID  int64 = 200
)

// monday is 2026-03-02, a plain weekday with no DST transition in Chicago.
var monday = model.Date{Year: 2026, Month: time.March, Day: 2}

func standardHours() model.OperatingWindow {
	return model.OperatingWindow{
		DayOfWeek:  time.Monday,
		IsOpen:     true,
		Active:     true,
		OpenTime:   "08:00",
		CloseTime:  "17:00",
		BreakStart: "12:00",
		BreakEnd:   "13:00",
	}
}

// newFixture builds a Chicago facility open 08:00-17:00 with a 12:00-13:00
// break on Mondays and a 30 minute dock appointment type.
func newFixture() (*fakeConfig, *fakeSchedule) {
	cfg := newFakeConfig()
	cfg.facilities[facilityID] = model.Facility{ID: facilityID, TenantID: tenantID, Name: "North DC", Timezone: "America/Chicago"}
	cfg.facilityHours[facilityID] = map[time.Weekday]model.OperatingWindow{time.Monday: standardHours()}
	cfg.rules[dockTypeID] = model.AppointmentTypeRule{
		ID: dockTypeID, TenantID: tenantID, Name: "Live unload",
		DurationMinutes: 30, BufferMinutes: 30, MaxConcurrent: 1,
	}
	cfg.rules[vanTypeID] = model.AppointmentTypeRule{
		ID: vanTypeID, TenantID: tenantID, Name: "Parcel van",
		DurationMinutes: 30, BufferMinutes: 30, MaxConcurrent: 1,
	}
	return cfg, &fakeSchedule{}
}

func newTestEvaluator(cfg ConfigStore, sched ScheduleStore, policy Policy) *Evaluator {
	zones, err := tz.NewNormalizer(8)
	if err != nil {
		panic(err)
	}
	return NewEvaluator(cfg, sched, zones, policy, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func chicago(hour, minute int) time.Time {
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		panic(err)
	}
	return time.Date(2026, time.March, 2, hour, minute, 0, 0, loc)
}

func appt(typeID int64, start, end time.Time) model.Appointment {
	return model.Appointment{
		TenantID:          tenantID,
		FacilityID:        facilityID,
		AppointmentTypeID: typeID,
		Start:             start,
		End:               end,
		Status:            model.StatusScheduled,
	}
}

func slotAt(slots []model.Slot, local string) (model.Slot, bool) {
	for _, s := range slots {
		if s.StartLocal == local {
			return s, true
		}
	}
	return model.Slot{}, false
}

func request(date model.Date, typeID int64) Request {
	return Request{TenantID: tenantID, FacilityID: facilityID, AppointmentTypeID: typeID, Date: date}
}
