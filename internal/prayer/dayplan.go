// Package prayer owns the day-plan data model, the prayer-times API client
// and the cache-backed service that feeds the scheduler.
package prayer

import (
	"fmt"
	"time"

	"github.com/nathan-osman/go-sunrise"
)

// Event names recognised by the playback layer. Derived events are filled in
// by the derivation pass when the API omits them.
const (
	EventFajr     = "fajr"
	EventDhuhr    = "dhuhr"
	EventAsr      = "asr"
	EventMaghrib  = "maghrib"
	EventIsha     = "isha"
	EventSunrise  = "sunrise"
	EventSunset   = "sunset"
	EventMidnight = "midnight"
	EventTahajjud = "tahajjud"
)

// DayPlan is the set of named event times for one calendar date. Values are
// local wall-clock "HH:MM" strings. A DayPlan is never mutated; derivation
// returns a new value.
type DayPlan struct {
	Date   time.Time
	Madhab string
	City   string
	Times  map[string]string
}

// Record is the JSON shape stored in the cache and returned by the API for a
// single day.
type Record struct {
	Date   string            `json:"date"`
	Madhab string            `json:"madhab"`
	City   string            `json:"city"`
	Times  map[string]string `json:"times"`
}

// Coords is an optional observer position for astronomical derivation.
type Coords struct {
	Latitude  float64
	Longitude float64
}

// PlanFromRecord validates a record and builds a DayPlan. Every time value
// must parse as 24-hour HH:MM; a violation rejects the whole day.
func PlanFromRecord(rec Record) (DayPlan, error) {
	date, err := time.ParseInLocation("2006-01-02", rec.Date, time.Local)
	if err != nil {
		return DayPlan{}, fmt.Errorf("invalid date %q: %w", rec.Date, err)
	}
	if rec.Times == nil {
		return DayPlan{}, fmt.Errorf("day %s has no times", rec.Date)
	}
	for name, hhmm := range rec.Times {
		if _, err := time.Parse("15:04", hhmm); err != nil {
			return DayPlan{}, fmt.Errorf("invalid time for %s on %s: %q", name, rec.Date, hhmm)
		}
	}

	times := make(map[string]string, len(rec.Times))
	for name, hhmm := range rec.Times {
		times[name] = hhmm
	}
	return DayPlan{Date: date, Madhab: rec.Madhab, City: rec.City, Times: times}, nil
}

// ToRecord converts the plan to its cache/API shape.
func (p DayPlan) ToRecord() Record {
	times := make(map[string]string, len(p.Times))
	for name, hhmm := range p.Times {
		times[name] = hhmm
	}
	return Record{
		Date:   p.Date.Format("2006-01-02"),
		Madhab: p.Madhab,
		City:   p.City,
		Times:  times,
	}
}

// At combines the plan's date with one of its HH:MM values into a local
// wall-clock instant. ok is false when the event is absent.
func (p DayPlan) At(event string) (time.Time, bool) {
	hhmm, ok := p.Times[event]
	if !ok {
		return time.Time{}, false
	}
	t, err := Combine(p.Date, hhmm)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Combine attaches an HH:MM wall-clock string to a calendar date. No
// timezone offset is applied; the result is a naive local datetime used only
// for interval math and scheduling.
func Combine(date time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid HH:MM value %q: %w", hhmm, err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(),
		t.Hour(), t.Minute(), 0, 0, time.Local), nil
}

// DeriveExtras fills missing sunset, midnight, tahajjud (and, when coords
// are available, sunrise) on each plan, pairing each day with its successor
// in the batch. Fields supplied by the API are never overwritten.
func DeriveExtras(plans []DayPlan, coords *Coords) []DayPlan {
	enriched := make([]DayPlan, 0, len(plans))
	for i, plan := range plans {
		var next *DayPlan
		if i+1 < len(plans) {
			next = &plans[i+1]
		}
		enriched = append(enriched, deriveOne(plan, next, coords))
	}
	return enriched
}

func deriveOne(plan DayPlan, next *DayPlan, coords *Coords) DayPlan {
	times := make(map[string]string, len(plan.Times)+3)
	for name, hhmm := range plan.Times {
		times[name] = hhmm
	}

	if _, ok := times[EventSunset]; !ok {
		if maghrib, ok := plan.At(EventMaghrib); ok {
			times[EventSunset] = maghrib.Add(-20 * time.Minute).Format("15:04")
		}
	}

	if _, ok := times[EventSunrise]; !ok && coords != nil {
		rise, _ := sunrise.SunriseSunset(coords.Latitude, coords.Longitude,
			plan.Date.Year(), plan.Date.Month(), plan.Date.Day())
		times[EventSunrise] = rise.In(time.Local).Format("15:04")
	}

	out := DayPlan{Date: plan.Date, Madhab: plan.Madhab, City: plan.City, Times: times}

	_, hasMidnight := times[EventMidnight]
	_, hasTahajjud := times[EventTahajjud]
	if (hasMidnight && hasTahajjud) || next == nil {
		return out
	}

	maghrib, okMaghrib := plan.At(EventMaghrib)
	nextFajr, okFajr := next.At(EventFajr)
	if !okMaghrib || !okFajr {
		return out
	}

	// Islamic midnight and tahajjud divide the night between this day's
	// maghrib and the next day's fajr. A non-positive interval means the
	// batch is inconsistent; skip the pair.
	night := nextFajr.Sub(maghrib)
	if night <= 0 {
		return out
	}

	if !hasMidnight {
		times[EventMidnight] = maghrib.Add(night / 2).Format("15:04")
	}
	if !hasTahajjud {
		times[EventTahajjud] = nextFajr.Add(-night / 3).Format("15:04")
	}
	return out
}
