package detection

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	regexp "github.com/wasilibs/go-re2"

	"github.com/ahrav/piiguard/internal/domain/detection"
	"github.com/ahrav/piiguard/pkg/common/logger"
)

// rule is one compiled pattern rule.
type rule struct {
	label string
	re    *regexp.Regexp
}

// RuleSet is an immutable, compiled set of labelled pattern rules.
type RuleSet struct {
	rules []rule
}

// NewRuleSet compiles rules. Rules that fail to compile are skipped and
// reported through the returned error; the RuleSet holds every rule that did
// compile and is always usable.
func NewRuleSet(rules map[string]string) (*RuleSet, error) {
	labels := slices.Sorted(maps.Keys(rules))

	rs := &RuleSet{rules: make([]rule, 0, len(labels))}
	var errs []error
	for _, label := range labels {
		re, err := regexp.Compile(rules[label])
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", label, err))
			continue
		}
		rs.rules = append(rs.rules, rule{label: label, re: re})
	}
	return rs, errors.Join(errs...)
}

// CompileRules compiles rules and logs any rule it had to skip.
func CompileRules(ctx context.Context, rules map[string]string, log *logger.Logger) *RuleSet {
	rs, err := NewRuleSet(rules)
	if err != nil {
		log.Warn(ctx, "Skipping invalid pattern rules", "error", err)
	}
	return rs
}

// Len returns the number of compiled rules.
func (rs *RuleSet) Len() int { return len(rs.rules) }

// Labels returns the rule labels in scan order.
func (rs *RuleSet) Labels() []string {
	labels := make([]string, len(rs.rules))
	for i, r := range rs.rules {
		labels[i] = r.label
	}
	return labels
}

// Scan applies every rule to the whole content. Rules are independent, so
// overlapping matches from different rules are all returned. Findings are
// ordered by rule label, then by position.
func (rs *RuleSet) Scan(content string) []detection.Finding {
	var findings []detection.Finding
	for _, r := range rs.rules {
		for _, loc := range r.re.FindAllStringIndex(content, -1) {
			matched := strings.TrimSpace(content[loc[0]:loc[1]])
			if matched == "" {
				continue
			}
			findings = append(findings, detection.NewPatternFinding(r.label, matched, loc[0]))
		}
	}
	return findings
}
