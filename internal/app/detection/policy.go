package detection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	regexp "github.com/wasilibs/go-re2"

	"github.com/ahrav/piiguard/internal/config"
	"github.com/ahrav/piiguard/internal/domain/detection"
	"github.com/ahrav/piiguard/pkg/common/logger"
)

const (
	// contextRadius is how many characters of surrounding text are captured on
	// each side of a critical match.
	contextRadius = 20
	// maxContextLen caps the context window, in characters, before the ellipsis.
	maxContextLen = 100
	ellipsis      = "..."
)

// artifactChars mark classifier spans that straddle list-like structures.
const artifactChars = ",[]"

// Policy filters and classifies raw classifier entities. It is immutable after
// construction and safe to share between workers.
type Policy struct {
	minConfidence float64
	critical      config.Set
	relevant      config.Set
	validators    map[string]*regexp.Regexp
}

// NewPolicy compiles the validation patterns of cfg. Each pattern is anchored at
// both ends so it must match the whole entity text. A pattern that fails to
// compile is replaced by the built-in pattern for its entity type, or dropped
// when there is none, and reported through the returned error; the Policy is
// always usable.
func NewPolicy(cfg *config.ScanConfig) (*Policy, error) {
	defaults := config.DefaultValidationPatterns()
	validators := make(map[string]*regexp.Regexp, len(cfg.ValidationPatterns))
	var errs []error
	for entityType, pattern := range cfg.ValidationPatterns {
		re, err := compileValidator(pattern)
		if err != nil {
			errs = append(errs, fmt.Errorf("validation pattern for %s: %w", entityType, err))
			fallback, ok := defaults[entityType]
			if !ok || fallback == pattern {
				continue
			}
			if re, err = compileValidator(fallback); err != nil {
				continue
			}
		}
		validators[entityType] = re
	}

	return &Policy{
		minConfidence: cfg.MinConfidence,
		critical:      config.NewSet(cfg.CriticalTypes...),
		relevant:      config.NewSet(cfg.SecurityRelevantTypes...),
		validators:    validators,
	}, errors.Join(errs...)
}

// CompilePolicy builds the Policy for cfg and logs any validation pattern it
// had to replace or drop.
func CompilePolicy(ctx context.Context, cfg *config.ScanConfig, log *logger.Logger) *Policy {
	p, err := NewPolicy(cfg)
	if err != nil {
		log.Warn(ctx, "Skipping invalid validation patterns", "error", err)
	}
	return p
}

func compileValidator(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(`^(?:` + pattern + `)$`)
}

// IsCritical reports whether entityType must fail the scan and be reported in full.
func (p *Policy) IsCritical(entityType string) bool { return p.critical.Has(entityType) }

// Validate turns the raw entities found in chunk into findings. fullText is the
// whole file content the chunk was cut from; it supplies the context window for
// critical findings. Output keeps the classifier's order.
func (p *Policy) Validate(entities []detection.Entity, chunk detection.Chunk, fullText string) []detection.Finding {
	var findings []detection.Finding
	for _, e := range entities {
		if e.Score < p.minConfidence {
			continue
		}

		begin, end := max(e.Begin, 0), min(e.End, len(chunk.Text))
		if begin >= end {
			continue
		}
		matched := chunk.Text[begin:end]
		if strings.ContainsAny(matched, artifactChars) {
			continue
		}

		if re, ok := p.validators[e.Type]; ok && !re.MatchString(matched) {
			continue
		}

		if !p.relevant.Has(e.Type) {
			continue
		}

		absBegin, absEnd := begin+chunk.ByteOffset, end+chunk.ByteOffset
		var ctxText string
		if p.critical.Has(e.Type) {
			ctxText = contextWindow(fullText, absBegin, absEnd)
		}
		findings = append(findings, detection.NewPIIFinding(e.Type, e.Score, matched, ctxText, absBegin))
	}
	return findings
}

// contextWindow returns the trimmed text around [begin, end) extended by
// contextRadius characters on each side, capped at maxContextLen characters.
func contextWindow(text string, begin, end int) string {
	begin, end = max(begin, 0), min(end, len(text))
	if begin > end {
		return ""
	}

	start := begin
	for n := 0; n < contextRadius && start > 0; n++ {
		_, size := utf8.DecodeLastRuneInString(text[:start])
		start -= size
	}
	stop := end
	for n := 0; n < contextRadius && stop < len(text); n++ {
		_, size := utf8.DecodeRuneInString(text[stop:])
		stop += size
	}

	window := strings.TrimSpace(text[start:stop])
	if utf8.RuneCountInString(window) <= maxContextLen {
		return window
	}
	runes := []rune(window)
	return string(runes[:maxContextLen]) + ellipsis
}
