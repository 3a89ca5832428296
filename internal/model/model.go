package model

import "time"

// RawEvent is the normalized snapshot of one calendar entry, carrying
// exactly the fields classification needs. Missing optional fields are
// empty strings. A RawEvent is never mutated after creation.
type RawEvent struct {
	UID         string
	Summary     string
	Description string
	Location    string
	URL         string

	Start time.Time
	End   time.Time
}

// Outcome describes how far classification got for one event.
type Outcome int

const (
	// OutcomeUnmatched means no course claimed the event, or the course
	// claimed it but no event-type pattern matched its summary. The event
	// passes through with its original text.
	OutcomeUnmatched Outcome = iota
	// OutcomeAmbiguous means kind and number were fixed but no catalog
	// item's criteria matched; the event keeps its original text.
	OutcomeAmbiguous
	// OutcomeResolved means a single catalog item was selected and the
	// title/description were rendered from the course templates.
	OutcomeResolved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeResolved:
		return "resolved"
	case OutcomeAmbiguous:
		return "ambiguous"
	default:
		return "unmatched"
	}
}

// ResolvedEvent is the final, enriched representation of a calendar event
// after classification and template rendering. Summary and Description are
// the strings to emit; for unmatched and ambiguous events they are the
// originals, untouched.
type ResolvedEvent struct {
	Raw RawEvent

	Course  string // owning course code, or the catch-all bucket name for unowned events
	Kind    string // event-type tag ("lecture", ...), "" when unmatched
	Number  int    // extracted ordinal, 0 when absent
	Item    string // chosen catalog item title, "" when none
	Outcome Outcome

	Summary     string
	Description string
}
