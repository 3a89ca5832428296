package ics

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "coursecal/internal/log"
	"coursecal/internal/model"
)

// MalformedEventError reports a calendar entry whose identity or times
// cannot be determined. Such events are dropped with a warning; they never
// abort the run.
type MalformedEventError struct {
	UID    string
	Reason string
}

func (e *MalformedEventError) Error() string {
	uid := e.UID
	if uid == "" {
		uid = "?"
	}
	return fmt.Sprintf("ics: malformed event %s: %s", uid, e.Reason)
}

// ParsedEvent pairs the normalized event record with the source component
// and the recurrence fields flattening needs. The embedded RawEvent is what
// classification sees.
type ParsedEvent struct {
	model.RawEvent

	AllDay   bool
	RawRRule string
	ExDates  []time.Time

	// Comp is the source VEVENT; the feed writer re-emits it with
	// rewritten text so every other property survives verbatim.
	Comp *ical.VEvent

	// Expanded marks synthetic occurrences produced by recurrence
	// flattening.
	Expanded bool
}

// Feed is one parsed upstream calendar.
type Feed struct {
	Calendar *ical.Calendar
	Events   []ParsedEvent
	Dropped  int // malformed events dropped with a warning
}

// ParseFeed parses an ICS payload. Malformed events are dropped and
// counted; only an unparseable calendar is an error.
func ParseFeed(body []byte) (*Feed, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("ics: empty payload")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parsing calendar: %w", err)
	}

	feed := &Feed{Calendar: cal}
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(comp)
		if perr != nil {
			feed.Dropped++
			appLog.Warn("dropping malformed event", "reason", perr)
			continue
		}
		feed.Events = append(feed.Events, ev)
	}

	appLog.Info("upstream parsed", "events", len(feed.Events), "dropped", feed.Dropped)
	return feed, nil
}

func parseVEvent(ve *ical.VEvent) (ParsedEvent, error) {
	var out ParsedEvent
	out.Comp = ve

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, &MalformedEventError{Reason: "missing UID"}
	}
	out.UID = uidProp.Value

	// TEXT values are decoded so matching and rendering see plain text;
	// the feed writer re-encodes on output.
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyUrl); p != nil {
		out.URL = p.Value
	}

	// The library's helpers handle VTIMEZONE/TZID resolution.
	start, _ := ve.GetStartAt()
	if start.IsZero() {
		return out, &MalformedEventError{UID: out.UID, Reason: "missing or unparseable DTSTART"}
	}
	end, _ := ve.GetEndAt()
	if end.IsZero() {
		// DTEND is optional; zero-duration events are valid.
		end = start
	}
	out.Start = start
	out.End = end

	// All-day when DTSTART carries VALUE=DATE or a date-only value.
	if dtStart := ve.GetProperty(ical.ComponentPropertyDtStart); dtStart != nil {
		if params := dtStart.ICalParameters; params != nil {
			if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
				out.AllDay = true
			}
		}
		if !strings.Contains(dtStart.Value, "T") {
			out.AllDay = true
		}
	}

	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil {
		out.RawRRule = rruleProp.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	return out, nil
}

// unescapeText decodes an iCalendar TEXT value into plain text.
func unescapeText(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n', 'N':
			b.WriteByte('\n')
		case '\\', ';', ',':
			b.WriteByte(s[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// parseICSTime parses a basic ICS date or date-time string. Used for
// EXDATE values where full parameter context is not needed.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, time.Local)
	}
	return time.ParseInLocation("20060102", v, time.Local)
}
