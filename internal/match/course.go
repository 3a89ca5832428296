// Package match holds the classification logic: which course owns an
// event, which kind of activity it is, and which catalog item it
// corresponds to.
package match

import (
	"strings"

	"coursecal/internal/model"
	"coursecal/internal/rules"
)

// Course returns the rule of the course that claims ev, or nil when no
// course does. Rules are tried in load order and exactly one may claim an
// event; overlapping claims resolve to the first-loaded rule.
func Course(ev model.RawEvent, loaded []*rules.CourseRule) *rules.CourseRule {
	for _, rule := range loaded {
		if claims(ev, rule) {
			return rule
		}
	}
	return nil
}

func claims(ev model.RawEvent, rule *rules.CourseRule) bool {
	if rule.Match.RequireCourseInSummary {
		// Case-sensitive exact match on the parenthesized code token.
		return strings.Contains(ev.Summary, "("+rule.Code+")")
	}
	// Course-system links in the description or URL field.
	return rule.URLPattern.MatchString(ev.Description) || rule.URLPattern.MatchString(ev.URL)
}
