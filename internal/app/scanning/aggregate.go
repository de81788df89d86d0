package scanning

import (
	"github.com/ahrav/piiguard/internal/domain/detection"
	domain "github.com/ahrav/piiguard/internal/domain/scanning"
)

// Aggregate arranges one file's findings for reporting. Critical classifier
// findings keep detection order and come first; the remaining classifier
// findings are grouped by type, then pattern findings by label, each in order
// of first appearance.
func Aggregate(res detection.FileResult, isCritical func(entityType string) bool) domain.FileReport {
	report := domain.FileReport{Path: res.Path}

	var (
		piiGroups, patternGroups []domain.Group
		piiIdx                   = make(map[string]int)
		patternIdx               = make(map[string]int)
	)
	add := func(groups []domain.Group, idx map[string]int, f detection.Finding) []domain.Group {
		if i, ok := idx[f.EntityType]; ok {
			groups[i].Findings = append(groups[i].Findings, f)
			return groups
		}
		idx[f.EntityType] = len(groups)
		return append(groups, domain.Group{Kind: f.Kind, EntityType: f.EntityType, Findings: []detection.Finding{f}})
	}

	for _, f := range res.Findings {
		switch {
		case f.Kind == detection.KindPII && isCritical(f.EntityType):
			report.Critical = append(report.Critical, f)
		case f.Kind == detection.KindPII:
			piiGroups = add(piiGroups, piiIdx, f)
		default:
			patternGroups = add(patternGroups, patternIdx, f)
		}
	}

	report.Groups = append(piiGroups, patternGroups...)
	return report
}
