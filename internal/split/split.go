// Package split runs classification over a parsed upstream feed and groups
// the results into per-course buckets.
package split

import (
	"coursecal/internal/ics"
	appLog "coursecal/internal/log"
	"coursecal/internal/match"
	"coursecal/internal/model"
	"coursecal/internal/render"
	"coursecal/internal/rules"
)

// Options control assembler policy, not classification logic.
type Options struct {
	// CatchAll, when non-empty, names a bucket that collects events no
	// course claims. Empty means such events are dropped.
	CatchAll string
}

// Classified pairs one classification outcome with its source event, so
// the feed writer can re-emit the component.
type Classified struct {
	Parsed   ics.ParsedEvent
	Resolved model.ResolvedEvent
}

// Bucket is the ordered event sequence for one output feed. Buckets appear
// in first-seen order; events keep input order.
type Bucket struct {
	Course string
	Events []Classified
}

// Summary is the run report: every otherwise-valid course still gets its
// feed, and this records what was skipped, dropped, or degraded.
type Summary struct {
	Total     int
	Kept      int
	Dropped   int // no course claimed and no catch-all configured
	Resolved  int
	Ambiguous int
	Passed    int // in-course pass-through (no kind pattern matched)
	CaughtAll int // unowned events routed to the catch-all bucket
	Warnings  []string
}

// Split classifies every event against the loaded course rules and
// assembles per-course buckets. The pipeline is synchronous and each
// event's outcome is independent of every other's.
func Split(events []ics.ParsedEvent, loaded []*rules.CourseRule, opts Options) ([]Bucket, Summary) {
	var (
		buckets []Bucket
		index   = map[string]int{}
		sum     Summary
	)

	put := func(course string, c Classified) {
		i, ok := index[course]
		if !ok {
			i = len(buckets)
			index[course] = i
			buckets = append(buckets, Bucket{Course: course})
		}
		buckets[i].Events = append(buckets[i].Events, c)
		sum.Kept++
	}

	for _, pe := range events {
		sum.Total++

		rule := match.Course(pe.RawEvent, loaded)
		if rule == nil {
			if opts.CatchAll == "" {
				sum.Dropped++
				continue
			}
			put(opts.CatchAll, passThrough(pe, opts.CatchAll))
			sum.CaughtAll++
			continue
		}

		c, warning := classify(pe, rule)
		if warning != "" {
			sum.Warnings = append(sum.Warnings, warning)
		}
		switch c.Resolved.Outcome {
		case model.OutcomeResolved:
			sum.Resolved++
		case model.OutcomeAmbiguous:
			sum.Ambiguous++
			appLog.Warn("ambiguous match, passing event through",
				"course", rule.Code, "kind", c.Resolved.Kind, "uid", pe.UID)
		default:
			sum.Passed++
		}
		put(rule.Code, c)
	}

	return buckets, sum
}

// classify resolves kind, number, and catalog item for an event already
// attributed to a course, and renders the output text.
func classify(pe ics.ParsedEvent, rule *rules.CourseRule) (Classified, string) {
	km, ok := match.Kind(pe.RawEvent, rule)
	if !ok {
		return passThrough(pe, rule.Code), ""
	}

	// A numbered kind whose pattern captured no ordinal cannot be looked
	// up in the catalog; degrade to pass-through with the kind recorded.
	if !km.Spec.Unnumbered && !km.HasNumber {
		return ambiguous(pe, rule, km), ""
	}

	ir := match.Item(pe.RawEvent, km.Spec, km.Number)
	if ir.Item == nil {
		return ambiguous(pe, rule, km), ir.Warning
	}

	summary, description := render.Render(render.Input{
		Rule:           rule,
		Spec:           km.Spec,
		Item:           ir.Item,
		Number:         km.Number,
		OldSummary:     pe.Summary,
		OldDescription: pe.Description,
	})

	return Classified{
		Parsed: pe,
		Resolved: model.ResolvedEvent{
			Raw:         pe.RawEvent,
			Course:      rule.Code,
			Kind:        km.Spec.Type,
			Number:      km.Number,
			Item:        ir.Item.Title,
			Outcome:     model.OutcomeResolved,
			Summary:     summary,
			Description: description,
		},
	}, ir.Warning
}

func passThrough(pe ics.ParsedEvent, course string) Classified {
	return Classified{
		Parsed: pe,
		Resolved: model.ResolvedEvent{
			Raw:         pe.RawEvent,
			Course:      course,
			Outcome:     model.OutcomeUnmatched,
			Summary:     pe.Summary,
			Description: pe.Description,
		},
	}
}

func ambiguous(pe ics.ParsedEvent, rule *rules.CourseRule, km match.KindMatch) Classified {
	return Classified{
		Parsed: pe,
		Resolved: model.ResolvedEvent{
			Raw:         pe.RawEvent,
			Course:      rule.Code,
			Kind:        km.Spec.Type,
			Number:      km.Number,
			Outcome:     model.OutcomeAmbiguous,
			Summary:     pe.Summary,
			Description: pe.Description,
		},
	}
}
