// Package report renders scan results as text, JSON or CSV and prints
// per-file diagnostics for files that could not be scanned.
package report

import (
	"fmt"
	"strings"

	"github.com/ahrav/piiguard/internal/domain/detection"
	domain "github.com/ahrav/piiguard/internal/domain/scanning"
)

// Line is one reportable detail line of a file report.
type Line struct {
	IssueType detection.Kind
	Details   string
	// Context is set only for critical findings.
	Context string
}

// String formats the line the way text and JSON reports show it.
func (l Line) String() string { return fmt.Sprintf("[%s] %s", l.IssueType, l.Details) }

// Lines flattens a file report into detail lines: critical findings first,
// then one line per finding or one summary line per consolidated group.
func Lines(rep domain.FileReport) []Line {
	lines := make([]Line, 0, len(rep.Critical)+len(rep.Groups))
	for _, f := range rep.Critical {
		lines = append(lines, Line{IssueType: f.Kind, Details: findingDetails(f), Context: f.Context})
	}

	for _, g := range rep.Groups {
		if !g.Consolidated() {
			for _, f := range g.Findings {
				lines = append(lines, Line{IssueType: f.Kind, Details: findingDetails(f)})
			}
			continue
		}

		details := fmt.Sprintf("%s: %d occurrences", groupLabel(g), g.Count())
		if best, ok := g.BestScore(); ok {
			details += fmt.Sprintf(" (best confidence %.2f)", best)
		}
		lines = append(lines, Line{IssueType: g.Kind, Details: details})
	}
	return lines
}

func findingDetails(f detection.Finding) string {
	matched := oneLine(f.MatchedText)
	if f.HasScore {
		return fmt.Sprintf("%s (confidence %.2f): %s", f.EntityType, f.Score, matched)
	}
	return fmt.Sprintf("%s: %s", f.Label(), matched)
}

func groupLabel(g domain.Group) string {
	if g.Kind == detection.KindPattern {
		return strings.TrimPrefix(g.EntityType, detection.PatternTypePrefix)
	}
	return g.EntityType
}

// oneLine keeps multi-line matches, such as key blocks, on a single report line.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
