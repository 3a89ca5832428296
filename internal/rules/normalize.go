package rules

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Default templates, used when a rule document does not set its own.
const (
	DefaultTitleTemplate       = "{kind} {n} - {title} - {course}"
	DefaultDescriptionTemplate = "{module}\nCanvas: {canvas}\n\n{old_desc}"
)

// Synthesized patterns for the legacy shapes, keyed by category. English
// and Swedish forms, matching how the source feeds label events.
var legacyPatterns = map[string][]string{
	"lecture":  {`\bLecture\s*(\d+)\b`, `\bFöreläsning\s*(\d+)\b`},
	"lab":      {`\bLab\s+(\d+)\b`, `\bLaboration\s+(\d+)\b`},
	"exercise": {`\bExercise\s+(\d+)\b`, `\bÖvning\s+(\d+)\b`},
}

var legacyDisplayNames = map[string]string{
	"lecture":  "Lecture",
	"lab":      "Lab",
	"exercise": "Exercise",
}

// Wire shapes. One ruleDoc covers all three accepted document forms; which
// fields are populated decides the shape.
type ruleDoc struct {
	Course     string `json:"course"`
	CourseCode string `json:"course_code"`
	Canvas     string `json:"canvas"`
	CanvasURL  string `json:"canvas_url"`

	Match *matchDoc `json:"match"`

	TitleTemplate       string `json:"title_template"`
	DescriptionTemplate string `json:"description_template"`

	EventTypes []eventTypeDoc `json:"event_types"`

	// Legacy single-list shape: items are implicitly lectures.
	Items []itemDoc `json:"items"`

	// Legacy simple-array shape.
	Lectures  []itemDoc `json:"lectures"`
	Labs      []itemDoc `json:"labs"`
	Exercises []itemDoc `json:"exercises"`
}

type matchDoc struct {
	RequireCourseInSummary bool   `json:"require_course_in_summary"`
	SummaryRegex           string `json:"summary_regex"`
}

type eventTypeDoc struct {
	Type        string    `json:"type"`
	DisplayName string    `json:"display_name"`
	Patterns    []string  `json:"patterns"`
	Unnumbered  bool      `json:"unnumbered"`
	Items       []itemDoc `json:"items"`
}

type itemDoc struct {
	Number  *int   `json:"number"`
	Title   string `json:"title"`
	Module  string `json:"module"`
	Default bool   `json:"default"`

	Match         *criterionDoc  `json:"match"`
	MatchPriority []criterionDoc `json:"match_priority"`
}

type criterionDoc struct {
	Strategy string `json:"strategy"`
	Priority int    `json:"priority"`

	Day   string `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`

	Pattern string `json:"pattern"`

	Criteria []criterionDoc `json:"criteria"`
}

// Parse decodes one rule document (any accepted shape) and normalizes it
// into a canonical CourseRule. Every regex is compiled here; downstream
// code never sees raw pattern strings or schema differences.
func Parse(data []byte) (*CourseRule, error) {
	var doc ruleDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ValidationError{Reason: "invalid JSON", Err: err}
	}

	code := strings.TrimSpace(doc.Course)
	if code == "" {
		code = strings.TrimSpace(doc.CourseCode)
	}
	if code == "" {
		return nil, &ValidationError{Reason: "missing course identifier"}
	}

	rule := &CourseRule{
		Code:                code,
		Canvas:              strings.TrimSpace(firstNonEmpty(doc.Canvas, doc.CanvasURL)),
		TitleTemplate:       firstNonEmpty(doc.TitleTemplate, DefaultTitleTemplate),
		DescriptionTemplate: firstNonEmpty(doc.DescriptionTemplate, DefaultDescriptionTemplate),
		URLPattern:          regexp.MustCompile(`/course/` + regexp.QuoteMeta(code) + `/`),
	}

	if doc.Match != nil {
		rule.Match.RequireCourseInSummary = doc.Match.RequireCourseInSummary
	}

	var err error
	switch {
	case doc.EventTypes != nil:
		rule.EventTypes, err = normalizeEventTypes(code, doc.EventTypes)
	default:
		rule.EventTypes, err = normalizeLegacy(code, &doc)
	}
	if err != nil {
		return nil, err
	}

	return rule, nil
}

// normalizeEventTypes compiles the explicit event_types shape.
func normalizeEventTypes(code string, docs []eventTypeDoc) ([]EventTypeSpec, error) {
	specs := make([]EventTypeSpec, 0, len(docs))
	for _, etd := range docs {
		if etd.Type == "" {
			return nil, &ValidationError{Course: code, Reason: "event type without a type tag"}
		}
		if len(etd.Patterns) == 0 {
			return nil, &ValidationError{Course: code, Reason: fmt.Sprintf("event type %q has no patterns", etd.Type)}
		}

		spec := EventTypeSpec{
			Type:        etd.Type,
			DisplayName: firstNonEmpty(etd.DisplayName, titleCase(etd.Type)),
			Unnumbered:  etd.Unnumbered,
		}
		for _, p := range etd.Patterns {
			re, err := compilePattern(p)
			if err != nil {
				return nil, &ValidationError{
					Course: code,
					Reason: fmt.Sprintf("event type %q pattern %q does not compile", etd.Type, p),
					Err:    err,
				}
			}
			spec.Patterns = append(spec.Patterns, re)
		}

		for i, itd := range etd.Items {
			item, err := normalizeItem(code, etd, i, itd)
			if err != nil {
				return nil, err
			}
			spec.Items = append(spec.Items, item)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// normalizeLegacy rewrites both legacy shapes into event-type specs with
// synthesized patterns. The single-list shape means "lectures only". An
// optional summary_regex replaces the synthesized lecture patterns; its
// first capture group is the lecture number.
func normalizeLegacy(code string, doc *ruleDoc) ([]EventTypeSpec, error) {
	var lectureOverride *regexp.Regexp
	if doc.Match != nil && doc.Match.SummaryRegex != "" {
		re, err := compilePattern(doc.Match.SummaryRegex)
		if err != nil {
			return nil, &ValidationError{Course: code, Reason: "summary_regex does not compile", Err: err}
		}
		lectureOverride = re
	}

	groups := []struct {
		tag   string
		items []itemDoc
	}{
		{"lecture", append(doc.Items, doc.Lectures...)},
		{"lab", doc.Labs},
		{"exercise", doc.Exercises},
	}

	var specs []EventTypeSpec
	for _, g := range groups {
		if len(g.items) == 0 {
			continue
		}
		spec := EventTypeSpec{
			Type:        g.tag,
			DisplayName: legacyDisplayNames[g.tag],
		}
		if g.tag == "lecture" && lectureOverride != nil {
			spec.Patterns = append(spec.Patterns, lectureOverride)
		} else {
			for _, p := range legacyPatterns[g.tag] {
				spec.Patterns = append(spec.Patterns, regexp.MustCompile(`(?i)`+p))
			}
		}
		etd := eventTypeDoc{Type: g.tag}
		for i, itd := range g.items {
			item, err := normalizeItem(code, etd, i, itd)
			if err != nil {
				return nil, err
			}
			spec.Items = append(spec.Items, item)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func normalizeItem(code string, etd eventTypeDoc, idx int, itd itemDoc) (CatalogItem, error) {
	item := CatalogItem{
		Title:   strings.TrimSpace(itd.Title),
		Module:  strings.TrimSpace(itd.Module),
		Default: itd.Default,
	}

	if !etd.Unnumbered {
		if itd.Number == nil {
			return item, &ValidationError{
				Course: code,
				Reason: fmt.Sprintf("event type %q items[%d] has no number", etd.Type, idx),
			}
		}
		if *itd.Number <= 0 {
			return item, &ValidationError{
				Course: code,
				Reason: fmt.Sprintf("event type %q items[%d] has non-positive number %d", etd.Type, idx, *itd.Number),
			}
		}
		item.Number = *itd.Number
	}

	docs := itd.MatchPriority
	if itd.Match != nil {
		docs = append([]criterionDoc{*itd.Match}, docs...)
	}
	for _, cd := range docs {
		c, err := normalizeCriterion(code, cd)
		if err != nil {
			return item, err
		}
		item.Criteria = append(item.Criteria, c)
	}
	// Keep each item's own list priority-ascending; declaration order is
	// preserved on ties.
	sort.SliceStable(item.Criteria, func(i, j int) bool {
		return item.Criteria[i].Priority < item.Criteria[j].Priority
	})

	return item, nil
}

func normalizeCriterion(code string, cd criterionDoc) (Criterion, error) {
	c := Criterion{Priority: cd.Priority}

	switch cd.Strategy {
	case "time":
		c.Strategy = StrategyTime
		day, ok := parseWeekday(cd.Day)
		if !ok {
			return c, &ValidationError{Course: code, Reason: fmt.Sprintf("time criterion has invalid day %q", cd.Day)}
		}
		start, err := parseClock(cd.Start)
		if err != nil {
			return c, &ValidationError{Course: code, Reason: "time criterion has invalid start", Err: err}
		}
		end, err := parseClock(cd.End)
		if err != nil {
			return c, &ValidationError{Course: code, Reason: "time criterion has invalid end", Err: err}
		}
		if end <= start {
			return c, &ValidationError{Course: code, Reason: fmt.Sprintf("time criterion window %q-%q is empty", cd.Start, cd.End)}
		}
		c.Day, c.Start, c.End = day, start, end

	case "description", "location", "url":
		switch cd.Strategy {
		case "description":
			c.Strategy = StrategyDescription
		case "location":
			c.Strategy = StrategyLocation
		default:
			c.Strategy = StrategyURL
		}
		if cd.Pattern == "" {
			return c, &ValidationError{Course: code, Reason: cd.Strategy + " criterion has no pattern"}
		}
		re, err := compilePattern(cd.Pattern)
		if err != nil {
			return c, &ValidationError{Course: code, Reason: fmt.Sprintf("%s criterion pattern %q does not compile", cd.Strategy, cd.Pattern), Err: err}
		}
		c.Pattern = re

	case "all":
		c.Strategy = StrategyAll
		if len(cd.Criteria) == 0 {
			return c, &ValidationError{Course: code, Reason: "all criterion has no nested criteria"}
		}
		for _, sub := range cd.Criteria {
			sc, err := normalizeCriterion(code, sub)
			if err != nil {
				return c, err
			}
			c.Criteria = append(c.Criteria, sc)
		}

	default:
		return c, &ValidationError{Course: code, Reason: fmt.Sprintf("unknown match strategy %q", cd.Strategy)}
	}

	return c, nil
}

// compilePattern compiles a rule pattern case-insensitively while keeping
// any capture groups intact.
func compilePattern(p string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)` + p)
}

func parseWeekday(s string) (time.Weekday, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monday":
		return time.Monday, true
	case "tuesday":
		return time.Tuesday, true
	case "wednesday":
		return time.Wednesday, true
	case "thursday":
		return time.Thursday, true
	case "friday":
		return time.Friday, true
	case "saturday":
		return time.Saturday, true
	case "sunday":
		return time.Sunday, true
	}
	return 0, false
}

// parseClock parses "HH:MM" or "HHMM" into minutes since midnight.
func parseClock(s string) (int, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ":", "")
	if len(s) != 4 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	h, err := strconv.Atoi(s[:2])
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	m, err := strconv.Atoi(s[2:])
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock value %q out of range", s)
	}
	return h*60 + m, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
