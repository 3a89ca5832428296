package ics

import (
	"time"

	"github.com/teambition/rrule-go"

	appLog "coursecal/internal/log"
)

const defaultMaxOccurrencesPerEvent = 1000

// FlattenConfig controls recurrence flattening.
type FlattenConfig struct {
	// RangeStart / RangeEnd bound the expansion window.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps runaway rules. Zero means the default.
	MaxOccurrencesPerEvent int
}

// Flatten expands RRULE events into concrete occurrence events inside the
// window, honoring EXDATE. Non-recurring events pass through untouched.
// Each occurrence is classified independently downstream, which makes
// time-window disambiguation exact for series whose instances differ.
//
// Occurrences get a UID suffixed with the instance start so feeds stay
// stable across runs.
func Flatten(events []ParsedEvent, cfg FlattenConfig) []ParsedEvent {
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	out := make([]ParsedEvent, 0, len(events))
	for _, ev := range events {
		if ev.RawRRule == "" {
			out = append(out, ev)
			continue
		}
		out = append(out, expandEvent(ev, cfg)...)
	}
	return out
}

func expandEvent(ev ParsedEvent, cfg FlattenConfig) []ParsedEvent {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Warn("unparseable RRULE, keeping event as-is", "uid", ev.UID, "reason", err)
		ev.RawRRule = ""
		return []ParsedEvent{ev}
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	rangeStart := cfg.RangeStart.In(ev.Start.Location())
	rangeEnd := cfg.RangeEnd.In(ev.Start.Location())
	occTimes := set.Between(rangeStart, rangeEnd, true)

	if len(occTimes) > cfg.MaxOccurrencesPerEvent {
		appLog.Warn("occurrence cap hit, truncating",
			"uid", ev.UID, "cap", cfg.MaxOccurrencesPerEvent)
		occTimes = occTimes[:cfg.MaxOccurrencesPerEvent]
	}

	dur := ev.End.Sub(ev.Start)
	out := make([]ParsedEvent, 0, len(occTimes))
	for _, start := range occTimes {
		occ := ev
		occ.Start = start
		occ.End = start.Add(dur)
		occ.RawRRule = ""
		occ.ExDates = nil
		occ.Expanded = true
		occ.UID = ev.UID + "-" + start.UTC().Format("20060102T150405Z")
		out = append(out, occ)
	}
	return out
}
