// Package suppress implements the `// hydra-ignore[-next]:` pragma
// scanner (spec.md §6 "Suppression pragma"): a line comment immediately
// preceding a statement suppresses findings reported at that statement.
//
// Grounded on github.com/mpyw/goroutinectx's internal/directive/ignore
// package: a line-keyed directive map built once per source file,
// queried by (line, rule) with "empty rule list means ignore all", and a
// used-tracking map reused here to report unused-suppression diagnostics.
package suppress

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/hydra-analyzer/hydra/internal/finding"
)

// Entry is one parsed pragma: the line it was written on, the rule IDs
// it restricts to (empty means every rule), and which of those rules
// were actually consulted by a later Check call.
type Entry struct {
	Line   int
	Rules  []string
	Reason string
	used   map[string]bool
}

// Map indexes pragma entries by the line *following* the comment, i.e.
// the line of the statement it suppresses (spec.md's "immediately
// preceding a statement").
type Map map[int]*Entry

const (
	ignorePrefix     = "hydra-ignore:"
	ignoreNextPrefix = "hydra-ignore-next:"
)

// Build scans src line by line for `// hydra-ignore: <reason>` and
// `// hydra-ignore-next: <rule-id>` comments, indexing each under the
// line immediately below it.
func Build(src string) Map {
	m := make(Map)
	scanner := bufio.NewScanner(strings.NewReader(src))
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(text, "//") {
			continue
		}
		body := strings.TrimSpace(strings.TrimPrefix(text, "//"))

		switch {
		case strings.HasPrefix(body, ignoreNextPrefix):
			ruleID := strings.TrimSpace(strings.TrimPrefix(body, ignoreNextPrefix))
			if ruleID == "" {
				continue
			}
			m[line+1] = &Entry{Line: line + 1, Rules: []string{ruleID}, used: map[string]bool{}}
		case strings.HasPrefix(body, ignorePrefix):
			reason := strings.TrimSpace(strings.TrimPrefix(body, ignorePrefix))
			m[line+1] = &Entry{Line: line + 1, Reason: reason, used: map[string]bool{}}
		}
	}
	return m
}

// ShouldSuppress reports whether v's location is covered by a pragma.
// Critical findings are never suppressed (spec.md §8 invariant 5).
func (m Map) ShouldSuppress(v finding.SafetyViolation) bool {
	if v.Severity == finding.Critical {
		return false
	}
	entry, ok := m[v.Location.Line]
	if !ok {
		return false
	}
	if len(entry.Rules) == 0 {
		entry.used[""] = true
		return true
	}
	for _, r := range entry.Rules {
		if r == string(v.Kind) {
			entry.used[r] = true
			return true
		}
	}
	return false
}

// UnusedSuppression is a pragma that never matched any emitted finding.
type UnusedSuppression struct {
	Line string
	Rule string
}

// Unused returns every pragma entry whose restriction list was never
// consulted, the raw material for a future UnusedSuppression info
// finding (not yet wired into internal/report; see DESIGN.md).
func (m Map) Unused() []UnusedSuppression {
	var out []UnusedSuppression
	for _, entry := range m {
		if len(entry.Rules) == 0 {
			if !entry.used[""] {
				out = append(out, UnusedSuppression{Line: strconv.Itoa(entry.Line)})
			}
			continue
		}
		for _, r := range entry.Rules {
			if !entry.used[r] {
				out = append(out, UnusedSuppression{Line: strconv.Itoa(entry.Line), Rule: r})
			}
		}
	}
	return out
}
