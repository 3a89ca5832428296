package match

import (
	"strconv"

	"coursecal/internal/model"
	"coursecal/internal/rules"
)

// KindMatch is the outcome of kind and number extraction.
type KindMatch struct {
	Spec      *rules.EventTypeSpec
	Number    int
	HasNumber bool
}

// Kind determines the activity kind and ordinal for an event already
// attributed to a course. Event types are tried in declared order, each
// type's patterns in declared order; the first pattern that matches the
// summary fixes the kind. The ordinal is the first captured group that
// parses as a number.
//
// Returns false when no pattern of any event type matches; such events
// pass through to their course bucket without enrichment.
func Kind(ev model.RawEvent, rule *rules.CourseRule) (KindMatch, bool) {
	for i := range rule.EventTypes {
		spec := &rule.EventTypes[i]
		for _, re := range spec.Patterns {
			m := re.FindStringSubmatch(ev.Summary)
			if m == nil {
				continue
			}
			km := KindMatch{Spec: spec}
			if spec.Unnumbered {
				return km, true
			}
			for _, g := range m[1:] {
				if n, err := strconv.Atoi(g); err == nil {
					km.Number = n
					km.HasNumber = true
					break
				}
			}
			return km, true
		}
	}
	return KindMatch{}, false
}
