package match

import (
	"fmt"
	"sort"

	"coursecal/internal/model"
	"coursecal/internal/rules"
)

// ItemResult is the outcome of catalog-item disambiguation. Exactly one of
// Item != nil or Ambiguous holds. Warning carries a configuration smell
// worth surfacing in the run summary.
type ItemResult struct {
	Item      *rules.CatalogItem
	Ambiguous bool
	Warning   string
}

// Item resolves which catalog item among those sharing (kind, number) this
// specific event is. Two physically distinct occurrences can carry the
// identical summary and differ only in schedule, room, or meeting link, so
// the decision runs on the items' match criteria.
//
// All candidates' criteria are evaluated interleaved, in ascending priority
// order across the whole candidate set (declaration order on ties); the
// first criterion that holds selects its item. Candidates without criteria
// serve as fallback: a sole candidate is selected unconditionally, several
// mean the first declared wins and a warning is recorded.
func Item(ev model.RawEvent, spec *rules.EventTypeSpec, number int) ItemResult {
	if spec.Unnumbered {
		return pickUnnumbered(spec)
	}

	var candidates []*rules.CatalogItem
	for i := range spec.Items {
		if spec.Items[i].Number == number {
			candidates = append(candidates, &spec.Items[i])
		}
	}
	if len(candidates) == 0 {
		return ItemResult{Ambiguous: true}
	}
	if len(candidates) == 1 && len(candidates[0].Criteria) == 0 {
		return ItemResult{Item: candidates[0]}
	}

	type entry struct {
		criterion rules.Criterion
		item      *rules.CatalogItem
	}
	var entries []entry
	var unconditional []*rules.CatalogItem
	for _, cand := range candidates {
		if len(cand.Criteria) == 0 {
			unconditional = append(unconditional, cand)
			continue
		}
		for _, c := range cand.Criteria {
			entries = append(entries, entry{criterion: c, item: cand})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].criterion.Priority < entries[j].criterion.Priority
	})

	for _, e := range entries {
		if Evaluate(e.criterion, ev) {
			return ItemResult{Item: e.item}
		}
	}

	if len(unconditional) > 0 {
		res := ItemResult{Item: unconditional[0]}
		if len(unconditional) > 1 {
			res.Warning = fmt.Sprintf("%s %d: %d items without criteria, using first declared",
				spec.Type, number, len(unconditional))
		}
		return res
	}

	return ItemResult{Ambiguous: true}
}

// pickUnnumbered selects the default-flagged item, or the sole item, of an
// unnumbered event type.
func pickUnnumbered(spec *rules.EventTypeSpec) ItemResult {
	if len(spec.Items) == 0 {
		return ItemResult{Ambiguous: true}
	}
	for i := range spec.Items {
		if spec.Items[i].Default {
			return ItemResult{Item: &spec.Items[i]}
		}
	}
	res := ItemResult{Item: &spec.Items[0]}
	if len(spec.Items) > 1 {
		res.Warning = fmt.Sprintf("%s: %d items and none flagged default, using first declared",
			spec.Type, len(spec.Items))
	}
	return res
}

// Evaluate reports whether one criterion holds for an event. The strategy
// set is closed; unknown values never match.
func Evaluate(c rules.Criterion, ev model.RawEvent) bool {
	switch c.Strategy {
	case rules.StrategyTime:
		if ev.Start.IsZero() || ev.Start.Weekday() != c.Day {
			return false
		}
		mins := ev.Start.Hour()*60 + ev.Start.Minute()
		// Half-open window: start inclusive, end exclusive.
		return mins >= c.Start && mins < c.End
	case rules.StrategyDescription:
		return c.Pattern.MatchString(ev.Description)
	case rules.StrategyLocation:
		return c.Pattern.MatchString(ev.Location)
	case rules.StrategyURL:
		return c.Pattern.MatchString(ev.URL)
	case rules.StrategyAll:
		for _, sub := range c.Criteria {
			if !Evaluate(sub, ev) {
				return false
			}
		}
		return true
	}
	return false
}
