// Package scanning models a scan run: its lifecycle, the per-file reports it
// aggregates and the verdict derived from them.
package scanning

import (
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/piiguard/internal/domain/detection"
)

// ConsolidationThreshold is the number of same-type findings a file may list
// individually. Groups larger than this are reported as one summary line.
const ConsolidationThreshold = 3

// Group holds the non-critical findings of one entity type within a file, in
// detection order.
type Group struct {
	Kind       detection.Kind
	EntityType string
	Findings   []detection.Finding
}

// Count returns the number of findings in the group.
func (g Group) Count() int { return len(g.Findings) }

// Consolidated reports whether the group is rendered as a single summary line.
func (g Group) Consolidated() bool { return len(g.Findings) > ConsolidationThreshold }

// BestScore returns the highest score in the group. Pattern groups have none.
func (g Group) BestScore() (float64, bool) {
	var (
		best  float64
		found bool
	)
	for _, f := range g.Findings {
		if !f.HasScore {
			continue
		}
		if !found || f.Score > best {
			best, found = f.Score, true
		}
	}
	return best, found
}

// FileReport is the aggregated view of one file's findings. Critical findings
// are always listed individually and precede the grouped findings.
type FileReport struct {
	Path     string
	Critical []detection.Finding
	Groups   []Group
}

// HasIssues reports whether the file produced any finding.
func (r FileReport) HasIssues() bool { return len(r.Critical) > 0 || len(r.Groups) > 0 }

// FindingCount returns the number of findings in the file, counting every
// member of a consolidated group.
func (r FileReport) FindingCount() int {
	n := len(r.Critical)
	for _, g := range r.Groups {
		n += g.Count()
	}
	return n
}

// Result is the outcome of a scan run. Reports and Failures are in completion
// order, which is not stable between runs.
type Result struct {
	ID       uuid.UUID
	Full     bool
	Status   ScanStatus
	Selected int
	Reports  []FileReport
	// Failures holds files that were skipped or could not be read. They are
	// reported as diagnostics and never count as issues.
	Failures []detection.FileResult
	Started  time.Time
	Duration time.Duration
}

// HasIssues is the scan verdict: true when any file produced a finding.
func (r *Result) HasIssues() bool {
	for _, rep := range r.Reports {
		if rep.HasIssues() {
			return true
		}
	}
	return false
}

// FilesWithIssues counts the files that produced at least one finding.
func (r *Result) FilesWithIssues() int {
	var n int
	for _, rep := range r.Reports {
		if rep.HasIssues() {
			n++
		}
	}
	return n
}

// Skipped counts files skipped for exceeding the size limit.
func (r *Result) Skipped() int {
	var n int
	for _, f := range r.Failures {
		if f.Skipped {
			n++
		}
	}
	return n
}

// Errored counts files that failed to be read or scanned.
func (r *Result) Errored() int { return len(r.Failures) - r.Skipped() }
