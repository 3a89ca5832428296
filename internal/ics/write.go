package ics

import (
	"os"
	"path/filepath"
	"strings"

	ical "github.com/arran4/golang-ical"
)

// Calendar-level properties carried over from the upstream calendar into
// each per-course feed.
var inheritedCalProps = []string{
	"PRODID", "VERSION", "CALSCALE", "METHOD", "X-WR-CALDESC", "X-PUBLISHED-TTL",
}

// NewCourseCalendar builds an empty per-course calendar, inheriting the
// upstream calendar's base properties and naming the feed after the course.
func NewCourseCalendar(src *ical.Calendar, name string) *ical.Calendar {
	dst := ical.NewCalendar()

	for _, token := range inheritedCalProps {
		for _, p := range src.CalendarProperties {
			if p.IANAToken != token {
				continue
			}
			setCalProperty(dst, p)
			break
		}
	}
	setCalProperty(dst, ical.CalendarProperty{
		BaseProperty: ical.BaseProperty{IANAToken: "X-WR-CALNAME", Value: name},
	})
	return dst
}

// setCalProperty replaces any existing property with the same token, so
// inherited values do not duplicate the NewCalendar defaults.
func setCalProperty(cal *ical.Calendar, prop ical.CalendarProperty) {
	for i := range cal.CalendarProperties {
		if cal.CalendarProperties[i].IANAToken == prop.IANAToken {
			cal.CalendarProperties[i] = prop
			return
		}
	}
	cal.CalendarProperties = append(cal.CalendarProperties, prop)
}

// AppendEvent re-emits one classified event into dst with the rendered
// summary and description. A pass-through event keeps its component
// verbatim apart from the text; a flattened occurrence is rebuilt with
// concrete times and no recurrence properties.
func AppendEvent(dst *ical.Calendar, pe ParsedEvent, summary, description string) {
	if !pe.Expanded {
		pe.Comp.SetProperty(ical.ComponentPropertySummary, escapeText(summary))
		pe.Comp.SetProperty(ical.ComponentPropertyDescription, escapeText(description))
		dst.AddVEvent(pe.Comp)
		return
	}

	occ := dst.AddEvent(pe.UID)
	for _, p := range pe.Comp.Properties {
		if skipOccurrenceProp(p.IANAToken) {
			continue
		}
		occ.SetProperty(ical.ComponentProperty(p.IANAToken), p.Value)
	}
	occ.SetStartAt(pe.Start.UTC())
	occ.SetEndAt(pe.End.UTC())
	occ.SetProperty(ical.ComponentPropertySummary, escapeText(summary))
	occ.SetProperty(ical.ComponentPropertyDescription, escapeText(description))
}

func skipOccurrenceProp(token string) bool {
	switch token {
	case "UID", "DTSTART", "DTEND", "DURATION", "RRULE", "RDATE", "EXDATE",
		"RECURRENCE-ID", "SUMMARY", "DESCRIPTION":
		return true
	}
	return false
}

// escapeText encodes a plain-text value into the iCalendar TEXT syntax:
// backslash, newline, semicolon, and comma. Summary and description are
// decoded at parse time, so encoding here is the round-trip inverse.
func escapeText(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, ";", `\;`)
	return strings.ReplaceAll(s, ",", `\,`)
}

// WriteFeed serializes cal and writes it atomically.
func WriteFeed(path string, cal *ical.Calendar) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".feed-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(cal.Serialize()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
