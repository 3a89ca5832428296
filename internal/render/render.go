// Package render produces the final summary and description strings for a
// resolved event from the owning course's templates.
package render

import (
	"strconv"
	"strings"

	"coursecal/internal/rules"
)

// Input carries everything the templates can reference.
type Input struct {
	Rule   *rules.CourseRule
	Spec   *rules.EventTypeSpec
	Item   *rules.CatalogItem
	Number int // 0 for unnumbered kinds

	OldSummary     string
	OldDescription string
}

// Render substitutes the recognized placeholders into the course templates.
// It is pure string substitution; unknown placeholders stay as written and
// the original description is preserved verbatim via {old_desc}.
func Render(in Input) (summary, description string) {
	n := ""
	if !in.Spec.Unnumbered {
		n = strconv.Itoa(in.Number)
	}
	r := strings.NewReplacer(
		"{kind}", in.Spec.DisplayName,
		"{n}", n,
		"{title}", in.Item.Title,
		"{module}", in.Item.Module,
		"{course}", in.Rule.Code,
		"{canvas}", in.Rule.Canvas,
		"{old_desc}", in.OldDescription,
	)
	return r.Replace(in.Rule.TitleTemplate), r.Replace(in.Rule.DescriptionTemplate)
}
