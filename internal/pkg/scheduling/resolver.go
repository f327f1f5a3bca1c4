// Package scheduling turns closers' local availability windows into bookable UTC slots.
package scheduling

import (
	"sort"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/closerdesk/closerdesk/app/models"
)

// Window is one availability row joined with its closer's timezone.
type Window struct {
	CloserID uint
	Timezone string
	// Date carries the local calendar date; only year, month and day are read.
	Date  time.Time
	Start string
	End   string
}

// Booking is an appointment that still occupies its slot.
type Booking struct {
	CloserID uint
	Start    time.Time
}

// Slot is a bookable UTC instant offered by one closer.
type Slot struct {
	Start    time.Time `json:"start"`
	CloserID uint      `json:"closer_id"`
}

// Query bounds a slot search. From/To form a half-open UTC window; zero values are unbounded.
type Query struct {
	From              time.Time
	To                time.Time
	Now               time.Time
	PreferredCloserID uint
	CloserID          uint
}

// Config controls slot generation.
type Config struct {
	SlotLength      time.Duration
	DefaultLocation *time.Location
}

func (c Config) slotLength() time.Duration {
	if c.SlotLength <= 0 {
		return time.Hour
	}
	return c.SlotLength
}

type bookedKey struct {
	closerID uint
	minute   int64
}

func keyFor(closerID uint, t time.Time) bookedKey {
	return bookedKey{closerID: closerID, minute: t.UTC().Truncate(time.Minute).Unix()}
}

// Expand lists every free slot per closer without deduplication, sorted by start then closer.
func Expand(windows []Window, booked []Booking, q Query, cfg Config) []Slot {
	taken := make(map[bookedKey]struct{}, len(booked))
	for _, b := range booked {
		taken[keyFor(b.CloserID, b.Start)] = struct{}{}
	}

	step := cfg.slotLength()
	var slots []Slot
	for _, w := range windows {
		if q.CloserID != 0 && w.CloserID != q.CloserID {
			continue
		}
		for _, instant := range windowInstants(w, step, cfg.DefaultLocation) {
			if !q.Now.IsZero() && instant.Before(q.Now) {
				continue
			}
			if !q.From.IsZero() && instant.Before(q.From) {
				continue
			}
			if !q.To.IsZero() && !instant.Before(q.To) {
				continue
			}
			if _, ok := taken[keyFor(w.CloserID, instant)]; ok {
				continue
			}
			slots = append(slots, Slot{Start: instant, CloserID: w.CloserID})
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].Start.Equal(slots[j].Start) {
			return slots[i].Start.Before(slots[j].Start)
		}
		return slots[i].CloserID < slots[j].CloserID
	})
	return slots
}

// Resolve returns one slot per UTC instant, sorted ascending. When several closers offer
// the same instant the preferred closer wins, otherwise the lowest closer id.
func Resolve(windows []Window, booked []Booking, q Query, cfg Config) []Slot {
	all := Expand(windows, booked, q, cfg)

	out := make([]Slot, 0, len(all))
	for _, s := range all {
		n := len(out)
		if n > 0 && out[n-1].Start.Equal(s.Start) {
			// Expand orders equal instants by closer id, so the first one kept is the lowest.
			if q.PreferredCloserID != 0 && s.CloserID == q.PreferredCloserID {
				out[n-1] = s
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

// windowInstants converts a local window to UTC slot starts. A window shorter than one
// slot yields its start only; one that does not end after it starts yields nothing.
// Unknown timezones fall back to def.
func windowInstants(w Window, step time.Duration, def *time.Location) []time.Time {
	loc := models.LoadLocationOr(w.Timezone, def)

	sh, sm, err := models.ParseClock(w.Start)
	if err != nil {
		log.Warnf("[Scheduling] Skipping availability of closer %d: %v", w.CloserID, err)
		return nil
	}
	eh, em, err := models.ParseClock(w.End)
	if err != nil {
		log.Warnf("[Scheduling] Skipping availability of closer %d: %v", w.CloserID, err)
		return nil
	}

	y, m, d := w.Date.Date()
	start := time.Date(y, m, d, sh, sm, 0, 0, loc)
	end := time.Date(y, m, d, eh, em, 0, 0, loc)
	if !end.After(start) {
		log.Warnf("[Scheduling] Skipping empty availability of closer %d on %s: %s-%s", w.CloserID, w.Date.Format("2006-01-02"), w.Start, w.End)
		return nil
	}

	instants := []time.Time{start.UTC()}
	for t := start.Add(step); !t.Add(step).After(end); t = t.Add(step) {
		instants = append(instants, t.UTC())
	}
	return instants
}
