package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursecal/internal/model"
	"coursecal/internal/rules"
)

func mustRule(t *testing.T, doc string) *rules.CourseRule {
	t.Helper()
	rule, err := rules.Parse([]byte(doc))
	require.NoError(t, err)
	return rule
}

// at builds a start time on the given weekday of a fixed reference week.
func at(t *testing.T, day time.Weekday, hour, min int) time.Time {
	t.Helper()
	// Monday 2025-09-08.
	base := time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC)
	offset := (int(day) - int(time.Monday) + 7) % 7
	return base.AddDate(0, 0, offset).Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

func TestCourseClaiming(t *testing.T) {
	bySummary := mustRule(t, `{ "course": "IS1200",
		"match": { "require_course_in_summary": true },
		"items": [] }`)
	byURL := mustRule(t, `{ "course": "SF1922", "items": [] }`)

	loaded := []*rules.CourseRule{bySummary, byURL}

	tests := []struct {
		name string
		ev   model.RawEvent
		want string
	}{
		{
			name: "parenthesized code in summary",
			ev:   model.RawEvent{Summary: "Lecture 1 - Introduction (IS1200)"},
			want: "IS1200",
		},
		{
			name: "code outside parentheses does not claim",
			ev:   model.RawEvent{Summary: "Lecture 1 - IS1200 intro"},
			want: "",
		},
		{
			name: "case-sensitive code",
			ev:   model.RawEvent{Summary: "Lecture 1 (is1200)"},
			want: "",
		},
		{
			name: "course URL in description",
			ev:   model.RawEvent{Summary: "Lecture 2", Description: "See https://kth.se/course/SF1922/plan"},
			want: "SF1922",
		},
		{
			name: "course URL in URL field",
			ev:   model.RawEvent{Summary: "Lecture 2", URL: "https://kth.se/course/SF1922/"},
			want: "SF1922",
		},
		{
			name: "no claim",
			ev:   model.RawEvent{Summary: "Dentist"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := Course(tt.ev, loaded)
			if tt.want == "" {
				assert.Nil(t, rule)
				return
			}
			require.NotNil(t, rule)
			assert.Equal(t, tt.want, rule.Code)
		})
	}
}

// summary_regex drives lecture-number extraction, never course claiming:
// a course must not claim another course's events just because its lecture
// pattern matches their summaries.
func TestCourseClaimIgnoresSummaryRegex(t *testing.T) {
	rule := mustRule(t, `{ "course": "DD1351",
		"match": { "require_course_in_summary": true, "summary_regex": "Lecture\\s*(\\d+)" },
		"items": [ { "number": 1, "title": "Logic", "module": "M" } ] }`)
	loaded := []*rules.CourseRule{rule}

	assert.Nil(t, Course(model.RawEvent{Summary: "Lecture 1 - Introduction (IS1200)"}, loaded))

	got := Course(model.RawEvent{Summary: "Lecture 1 - Introduction (DD1351)"}, loaded)
	require.NotNil(t, got)
	assert.Equal(t, "DD1351", got.Code)
}

// In the legacy shapes summary_regex replaces the synthesized lecture
// patterns for kind and number extraction.
func TestKindLegacySummaryRegexOverride(t *testing.T) {
	rule := mustRule(t, `{ "course": "DD1351",
		"match": { "require_course_in_summary": true, "summary_regex": "Logikpass\\s*(\\d+)" },
		"items": [ { "number": 2, "title": "Natural Deduction", "module": "Logic" } ] }`)

	km, ok := Kind(model.RawEvent{Summary: "Logikpass 2 (DD1351)"}, rule)
	require.True(t, ok)
	assert.Equal(t, "lecture", km.Spec.Type)
	assert.Equal(t, 2, km.Number)

	// The synthesized default no longer applies.
	_, ok = Kind(model.RawEvent{Summary: "Lecture 2 (DD1351)"}, rule)
	assert.False(t, ok)
}

func TestCourseFirstLoadedWins(t *testing.T) {
	a := mustRule(t, `{ "course": "IS1200", "match": { "require_course_in_summary": true }, "items": [] }`)
	b := mustRule(t, `{ "course": "IS1200", "match": { "require_course_in_summary": true },
		"items": [ { "number": 1, "title": "other", "module": "m" } ] }`)

	ev := model.RawEvent{Summary: "Lecture 1 (IS1200)"}
	got := Course(ev, []*rules.CourseRule{a, b})
	require.NotNil(t, got)
	assert.Same(t, a, got)
}

func TestKindDeclarationOrderWins(t *testing.T) {
	rule := mustRule(t, `{ "course": "X", "event_types": [
		{ "type": "lecture", "patterns": ["Lecture\\s*(\\d+)"], "items": [] },
		{ "type": "lab", "patterns": ["Lab\\s+(\\d+)", "Session\\s+(\\d+)"], "items": [] },
		{ "type": "exam", "patterns": ["Session\\s+(\\d+)"], "items": [] }
	] }`)

	tests := []struct {
		name     string
		summary  string
		wantKind string
		wantN    int
		wantOK   bool
	}{
		{"first type", "Lecture 3 - Pipelining", "lecture", 3, true},
		{"second type first pattern", "Lab 2", "lab", 2, true},
		{"shared pattern goes to earlier type", "Session 4", "lab", 4, true},
		{"no pattern matches", "Guest talk", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			km, ok := Kind(model.RawEvent{Summary: tt.summary}, rule)
			assert.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantKind, km.Spec.Type)
			assert.Equal(t, tt.wantN, km.Number)
			assert.True(t, km.HasNumber)
		})
	}
}

func TestKindUnnumbered(t *testing.T) {
	rule := mustRule(t, `{ "course": "X", "event_types": [
		{ "type": "seminar", "patterns": ["Seminar"], "unnumbered": true,
		  "items": [ { "title": "Weekly", "module": "M" } ] }
	] }`)

	km, ok := Kind(model.RawEvent{Summary: "Seminar on logic"}, rule)
	require.True(t, ok)
	assert.True(t, km.Spec.Unnumbered)
	assert.False(t, km.HasNumber)
}

func TestKindPatternWithoutNumericGroup(t *testing.T) {
	rule := mustRule(t, `{ "course": "X", "event_types": [
		{ "type": "lecture", "patterns": ["Lecture"], "items": [] }
	] }`)

	km, ok := Kind(model.RawEvent{Summary: "Lecture - Pipelining"}, rule)
	require.True(t, ok)
	assert.Equal(t, "lecture", km.Spec.Type)
	assert.False(t, km.HasNumber)
}

// Two items share (lecture, 1); one keyed to Monday 10:00-12:00, the other
// to Wednesday 13:00-15:00. An event starting Wednesday 14:00 must resolve
// to the second item.
func TestItemTimeWindowPriority(t *testing.T) {
	rule := mustRule(t, `{ "course": "X", "event_types": [
		{ "type": "lecture", "patterns": ["Lecture\\s*(\\d+)"], "items": [
			{ "number": 1, "title": "Monday group", "module": "M",
			  "match": { "strategy": "time", "priority": 1, "day": "monday", "start": "10:00", "end": "12:00" } },
			{ "number": 1, "title": "Wednesday group", "module": "M",
			  "match": { "strategy": "time", "priority": 2, "day": "wednesday", "start": "13:00", "end": "15:00" } }
		] }
	] }`)
	spec := &rule.EventTypes[0]

	res := Item(model.RawEvent{Start: at(t, time.Wednesday, 14, 0)}, spec, 1)
	require.NotNil(t, res.Item)
	assert.Equal(t, "Wednesday group", res.Item.Title)

	// Window end is exclusive.
	res = Item(model.RawEvent{Start: at(t, time.Wednesday, 15, 0)}, spec, 1)
	assert.True(t, res.Ambiguous)

	// Window start is inclusive.
	res = Item(model.RawEvent{Start: at(t, time.Monday, 10, 0)}, spec, 1)
	require.NotNil(t, res.Item)
	assert.Equal(t, "Monday group", res.Item.Title)
}

// Criteria are evaluated interleaved by priority across all candidates,
// not candidate by candidate. The seminar keyed to a Wednesday window at
// priority 1 must win over the description-keyed one at priority 2 even
// though the description criterion belongs to the first declared item.
func TestItemCrossCandidatePriority(t *testing.T) {
	rule := mustRule(t, `{ "course": "X", "event_types": [
		{ "type": "seminar", "patterns": ["Seminar\\s*(\\d+)"], "items": [
			{ "number": 1, "title": "Group A", "module": "M",
			  "match": { "strategy": "description", "priority": 2, "pattern": "Group A" } },
			{ "number": 1, "title": "Timed group", "module": "M",
			  "match": { "strategy": "time", "priority": 1, "day": "wednesday", "start": "13:00", "end": "15:00" } }
		] }
	] }`)
	spec := &rule.EventTypes[0]

	ev := model.RawEvent{
		Description: "Group B session",
		Start:       at(t, time.Wednesday, 14, 0),
	}
	res := Item(ev, spec, 1)
	require.NotNil(t, res.Item)
	assert.Equal(t, "Timed group", res.Item.Title)

	// When the time window misses, the description criterion decides.
	ev = model.RawEvent{
		Description: "Group A session",
		Start:       at(t, time.Friday, 14, 0),
	}
	res = Item(ev, spec, 1)
	require.NotNil(t, res.Item)
	assert.Equal(t, "Group A", res.Item.Title)
}

func TestItemCompositeCriterion(t *testing.T) {
	rule := mustRule(t, `{ "course": "X", "event_types": [
		{ "type": "lab", "patterns": ["Lab\\s+(\\d+)"], "items": [
			{ "number": 1, "title": "Group A in Q17", "module": "M",
			  "match": { "strategy": "all", "priority": 1, "criteria": [
				{ "strategy": "description", "priority": 1, "pattern": "Group A" },
				{ "strategy": "location", "priority": 1, "pattern": "Q17" }
			  ] } },
			{ "number": 1, "title": "Everyone else", "module": "M" }
		] }
	] }`)
	spec := &rule.EventTypes[0]

	tests := []struct {
		name     string
		ev       model.RawEvent
		wantItem string
	}{
		{
			name:     "both conditions hold",
			ev:       model.RawEvent{Description: "Group A", Location: "Q17"},
			wantItem: "Group A in Q17",
		},
		{
			name:     "only description holds",
			ev:       model.RawEvent{Description: "Group A", Location: "Q22"},
			wantItem: "Everyone else",
		},
		{
			name:     "only location holds",
			ev:       model.RawEvent{Description: "Group B", Location: "Q17"},
			wantItem: "Everyone else",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Item(tt.ev, spec, 1)
			require.NotNil(t, res.Item)
			assert.Equal(t, tt.wantItem, res.Item.Title)
		})
	}
}

func TestItemURLCriterion(t *testing.T) {
	rule := mustRule(t, `{ "course": "X", "event_types": [
		{ "type": "seminar", "patterns": ["Seminar\\s*(\\d+)"], "items": [
			{ "number": 1, "title": "Zoom group", "module": "M",
			  "match": { "strategy": "url", "priority": 1, "pattern": "zoom\\.us/j/111" } },
			{ "number": 1, "title": "Campus group", "module": "M",
			  "match": { "strategy": "location", "priority": 2, "pattern": "Q\\d+" } }
		] }
	] }`)
	spec := &rule.EventTypes[0]

	res := Item(model.RawEvent{URL: "https://zoom.us/j/111?pwd=x"}, spec, 1)
	require.NotNil(t, res.Item)
	assert.Equal(t, "Zoom group", res.Item.Title)

	res = Item(model.RawEvent{Location: "Q17"}, spec, 1)
	require.NotNil(t, res.Item)
	assert.Equal(t, "Campus group", res.Item.Title)
}

func TestItemFallbacksAndAmbiguity(t *testing.T) {
	t.Run("sole candidate without criteria is unconditional", func(t *testing.T) {
		rule := mustRule(t, `{ "course": "X", "event_types": [
			{ "type": "lecture", "patterns": ["Lecture\\s*(\\d+)"], "items": [
				{ "number": 1, "title": "Only", "module": "M" } ] } ] }`)
		res := Item(model.RawEvent{}, &rule.EventTypes[0], 1)
		require.NotNil(t, res.Item)
		assert.Equal(t, "Only", res.Item.Title)
		assert.Empty(t, res.Warning)
	})

	t.Run("several candidates without criteria pick first and warn", func(t *testing.T) {
		rule := mustRule(t, `{ "course": "X", "event_types": [
			{ "type": "lecture", "patterns": ["Lecture\\s*(\\d+)"], "items": [
				{ "number": 1, "title": "First", "module": "M" },
				{ "number": 1, "title": "Second", "module": "M" } ] } ] }`)
		res := Item(model.RawEvent{}, &rule.EventTypes[0], 1)
		require.NotNil(t, res.Item)
		assert.Equal(t, "First", res.Item.Title)
		assert.NotEmpty(t, res.Warning)
	})

	t.Run("no candidate matches is ambiguous", func(t *testing.T) {
		rule := mustRule(t, `{ "course": "X", "event_types": [
			{ "type": "lecture", "patterns": ["Lecture\\s*(\\d+)"], "items": [
				{ "number": 1, "title": "A", "module": "M",
				  "match": { "strategy": "description", "priority": 1, "pattern": "alpha" } },
				{ "number": 1, "title": "B", "module": "M",
				  "match": { "strategy": "description", "priority": 2, "pattern": "beta" } }
			] } ] }`)
		res := Item(model.RawEvent{Description: "gamma"}, &rule.EventTypes[0], 1)
		assert.Nil(t, res.Item)
		assert.True(t, res.Ambiguous)
	})

	t.Run("unknown number is ambiguous", func(t *testing.T) {
		rule := mustRule(t, `{ "course": "X", "event_types": [
			{ "type": "lecture", "patterns": ["Lecture\\s*(\\d+)"], "items": [
				{ "number": 1, "title": "A", "module": "M" } ] } ] }`)
		res := Item(model.RawEvent{}, &rule.EventTypes[0], 9)
		assert.True(t, res.Ambiguous)
	})

	t.Run("unnumbered default flag wins", func(t *testing.T) {
		rule := mustRule(t, `{ "course": "X", "event_types": [
			{ "type": "seminar", "patterns": ["Seminar"], "unnumbered": true, "items": [
				{ "title": "A", "module": "M" },
				{ "title": "B", "module": "M", "default": true } ] } ] }`)
		res := Item(model.RawEvent{}, &rule.EventTypes[0], 0)
		require.NotNil(t, res.Item)
		assert.Equal(t, "B", res.Item.Title)
	})
}

func TestEvaluateDescriptionIsCaseInsensitive(t *testing.T) {
	rule := mustRule(t, `{ "course": "X", "event_types": [
		{ "type": "lab", "patterns": ["Lab\\s+(\\d+)"], "items": [
			{ "number": 1, "title": "A", "module": "M",
			  "match": { "strategy": "description", "priority": 1, "pattern": "group a" } } ] } ] }`)
	c := rule.EventTypes[0].Items[0].Criteria[0]

	assert.True(t, Evaluate(c, model.RawEvent{Description: "GROUP A meets today"}))
	assert.False(t, Evaluate(c, model.RawEvent{Description: "group b"}))
}
