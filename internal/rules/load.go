package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	appLog "coursecal/internal/log"
)

// SkippedFile records a rule file that failed validation during LoadDir.
type SkippedFile struct {
	File string
	Err  error
}

// LoadResult is the outcome of loading one rules directory.
type LoadResult struct {
	Rules   []*CourseRule // load order = sorted file names; first wins on conflicts
	Skipped []SkippedFile
}

// Rule looks up a loaded rule by course code.
func (lr *LoadResult) Rule(code string) (*CourseRule, bool) {
	for _, r := range lr.Rules {
		if r.Code == code {
			return r, true
		}
	}
	return nil, false
}

// LoadDir loads every *.json rule document in dir. A file that fails to
// parse or validate is skipped and reported; it never aborts loading the
// rest. Only an unreadable directory is a structural failure.
func LoadDir(dir string) (*LoadResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("rules: reading %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	result := &LoadResult{}
	seen := map[string]string{} // course code -> file that claimed it

	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedFile{File: name, Err: err})
			appLog.Warn("rule file unreadable, skipping", "file", name, "reason", err)
			continue
		}

		rule, err := Parse(data)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedFile{File: name, Err: err})
			appLog.Warn("rule file invalid, skipping", "file", name, "reason", err)
			continue
		}

		// Duplicate course codes across files are a configuration error;
		// the first-loaded file wins.
		if prev, ok := seen[rule.Code]; ok {
			appLog.Warn("duplicate course code across rule files, keeping first",
				"course", rule.Code, "kept", prev, "ignored", name)
			result.Skipped = append(result.Skipped, SkippedFile{
				File: name,
				Err:  fmt.Errorf("duplicate course code %s (already loaded from %s)", rule.Code, prev),
			})
			continue
		}
		seen[rule.Code] = name
		result.Rules = append(result.Rules, rule)
	}

	appLog.Info("course rules loaded", "dir", dir, "courses", len(result.Rules), "skipped", len(result.Skipped))
	return result, nil
}
