// Package tz converts facility-local wall-clock times to instants and back.
// All comparisons in the engine happen on instants; this package is the only
// place local times are interpreted.
package tz

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/model"
)

// Resolution records how a wall-clock time was mapped to an instant.
type Resolution int

const (
	Exact Resolution = iota
	// Gap: the wall time does not exist (spring forward). It is read with
	// the offset in force before the transition, landing after the gap.
	Gap
	// Overlap: the wall time occurs twice (fall back). The earlier
	// instant is used.
	Overlap
)

func (r Resolution) String() string {
	switch r {
	case Gap:
		return "gap_pre_transition_offset"
	case Overlap:
		return "overlap_earliest"
	default:
		return "exact"
	}
}

const defaultCacheSize = 256

// Normalizer caches loaded zones; zone database reads are comparatively slow
// and facilities share a handful of zones.
type Normalizer struct {
	zones *lru.Cache[string, *time.Location]
}

func NewNormalizer(size int) (*Normalizer, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	zones, err := lru.New[string, *time.Location](size)
	if err != nil {
		return nil, err
	}
	return &Normalizer{zones: zones}, nil
}

// Location loads an IANA zone. An empty name is rejected rather than
// silently meaning UTC or server-local time.
func (n *Normalizer) Location(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("empty time zone")
	}
	if loc, ok := n.zones.Get(name); ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	n.zones.Add(name, loc)
	return loc, nil
}

// ToInstant maps date plus a local "HH:MM" in loc to an absolute instant.
// "24:00" is accepted and means midnight at the end of date.
func ToInstant(date model.Date, clock string, loc *time.Location) (time.Time, Resolution, error) {
	minutes, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, Exact, err
	}
	t, res := resolve(date, minutes, loc)
	return t, res, nil
}

// StartOfDay returns local midnight of date.
func StartOfDay(date model.Date, loc *time.Location) (time.Time, Resolution) {
	return resolve(date, 0, loc)
}

// ToLocal renders an instant as local "HH:MM" in loc.
func ToLocal(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("15:04")
}

func resolve(date model.Date, minutes int, loc *time.Location) (time.Time, Resolution) {
	// The wall time expressed as if it were UTC. Real candidates are this
	// minus one of the offsets in force around the date.
	naive := date.UTC().Add(time.Duration(minutes) * time.Minute)
	_, before := naive.Add(-24 * time.Hour).In(loc).Zone()
	_, after := naive.Add(24 * time.Hour).In(loc).Zone()

	offsets := []int{before}
	if after != before {
		offsets = append(offsets, after)
	}

	var valid []time.Time
	for _, off := range offsets {
		c := naive.Add(-time.Duration(off) * time.Second)
		if sameWallClock(c.In(loc), naive) {
			valid = append(valid, c)
		}
	}

	switch len(valid) {
	case 1:
		return valid[0].In(loc), Exact
	case 2:
		earliest := valid[0]
		if valid[1].Before(earliest) {
			earliest = valid[1]
		}
		return earliest.In(loc), Overlap
	default:
		return naive.Add(-time.Duration(before) * time.Second).In(loc), Gap
	}
}

func sameWallClock(local, naive time.Time) bool {
	ly, lm, ld := local.Date()
	ny, nm, nd := naive.Date()
	return ly == ny && lm == nm && ld == nd &&
		local.Hour() == naive.Hour() && local.Minute() == naive.Minute()
}

// ParseClock parses "HH:MM" (or Postgres "HH:MM:SS") into minutes after
// midnight. 24:00 is the only value past 23:59 that is accepted.
func ParseClock(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid local time %q: want HH:MM", raw)
	}
	h, errH := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	if errH != nil || errM != nil || len(parts[1]) != 2 || h < 0 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid local time %q: want HH:MM", raw)
	}
	if len(parts) == 3 {
		if s, err := strconv.Atoi(parts[2]); err != nil || s != 0 {
			return 0, fmt.Errorf("invalid local time %q: seconds are not supported", raw)
		}
	}
	total := h*60 + m
	if h > 24 || total > 24*60 {
		return 0, fmt.Errorf("invalid local time %q: out of range", raw)
	}
	return total, nil
}
