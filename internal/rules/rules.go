package rules

import (
	"fmt"
	"regexp"
	"time"
)

// Strategy enumerates the closed set of catalog-item match strategies.
type Strategy int

const (
	StrategyTime Strategy = iota
	StrategyDescription
	StrategyLocation
	StrategyURL
	StrategyAll
)

func (s Strategy) String() string {
	switch s {
	case StrategyTime:
		return "time"
	case StrategyDescription:
		return "description"
	case StrategyLocation:
		return "location"
	case StrategyURL:
		return "url"
	case StrategyAll:
		return "all"
	default:
		return "unknown"
	}
}

// Criterion is one disambiguation rule for a catalog item. Which fields are
// populated depends on Strategy; evaluation is a single exhaustive switch in
// the matcher.
type Criterion struct {
	Strategy Strategy
	Priority int

	// StrategyTime: half-open window [Start, End) in minutes since
	// midnight, on the given weekday, against the event's local start.
	Day   time.Weekday
	Start int
	End   int

	// StrategyDescription / StrategyLocation / StrategyURL: compiled
	// case-insensitive pattern searched in the respective event field.
	Pattern *regexp.Regexp

	// StrategyAll: every nested criterion must match.
	Criteria []Criterion
}

// CatalogItem is one specific numbered (or unnumbered) occurrence within an
// event type, carrying display metadata and optional match criteria sorted
// by ascending priority.
type CatalogItem struct {
	Number   int // 0 when the owning event type is unnumbered
	Title    string
	Module   string
	Default  bool
	Criteria []Criterion
}

// EventTypeSpec defines one category of academic activity. Pattern order is
// significant: the first pattern that matches a summary fixes the kind.
type EventTypeSpec struct {
	Type        string
	DisplayName string
	Patterns    []*regexp.Regexp
	Unnumbered  bool
	Items       []CatalogItem
}

// MatchConfig controls how a course claims events.
type MatchConfig struct {
	// RequireCourseInSummary demands the literal "(CODE)" token in the
	// event summary (case-sensitive).
	RequireCourseInSummary bool
}

// CourseRule is the canonical, fully compiled rule set for one course.
// Both legacy document shapes are rewritten into this form at load time;
// no matching code is schema-aware.
type CourseRule struct {
	Code   string
	Canvas string
	Match  MatchConfig

	TitleTemplate       string
	DescriptionTemplate string

	EventTypes []EventTypeSpec

	// URLPattern recognizes course-system links in event description/URL
	// fields, e.g. "/course/IS1200/". Built from Code at load time.
	URLPattern *regexp.Regexp
}

// Type looks up an EventTypeSpec by its internal tag.
func (r *CourseRule) Type(tag string) (*EventTypeSpec, bool) {
	for i := range r.EventTypes {
		if r.EventTypes[i].Type == tag {
			return &r.EventTypes[i], true
		}
	}
	return nil, false
}

// ValidationError reports a malformed or incomplete rule document. It is
// scoped to one course's rules; loading other rule files continues.
type ValidationError struct {
	Course string // best-effort course code, may be empty
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	course := e.Course
	if course == "" {
		course = "?"
	}
	if e.Err != nil {
		return fmt.Sprintf("rules: course %s: %s: %v", course, e.Reason, e.Err)
	}
	return fmt.Sprintf("rules: course %s: %s", course, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }
