// Package scanner adapts the Gitleaks detection engine into a whole-file
// secrets engine whose hits are reported next to the configured pattern rules.
package scanner

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/viper"
	"github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/piiguard/internal/domain/detection"
	"github.com/ahrav/piiguard/pkg/common/logger"
)

var _ detection.SecretsEngine = (*Gitleaks)(nil)

// LabelPrefix prefixes every Gitleaks rule id in finding labels.
const LabelPrefix = "gitleaks:"

// Gitleaks runs the Gitleaks default rule pack over file contents.
type Gitleaks struct {
	detector *detect.Detector

	logger *logger.Logger
	tracer trace.Tracer
}

// NewGitleaks creates a Gitleaks engine using the embedded default configuration.
func NewGitleaks(log *logger.Logger, tracer trace.Tracer) (*Gitleaks, error) {
	detector, err := setupGitleaksDetector()
	if err != nil {
		return nil, err
	}

	return &Gitleaks{
		detector: detector,
		logger:   log.With("component", "gitleaks_engine"),
		tracer:   tracer,
	}, nil
}

// setupGitleaksDetector initializes the Gitleaks detector using the embedded default configuration.
func setupGitleaksDetector() (*detect.Detector, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(bytes.NewBufferString(config.DefaultConfig)); err != nil {
		return nil, fmt.Errorf("failed to read embedded config: %w", err)
	}

	var vc config.ViperConfig
	if err := v.Unmarshal(&vc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal embedded config: %w", err)
	}

	cfg, err := vc.Translate()
	if err != nil {
		return nil, fmt.Errorf("failed to translate ViperConfig to Config: %w", err)
	}

	return detect.NewDetector(cfg), nil
}

// RuleIDs returns the ids of the loaded Gitleaks rules, sorted.
func (g *Gitleaks) RuleIDs() []string {
	return slices.Sorted(maps.Keys(g.detector.Config.Rules))
}

// Detect returns one pattern finding per Gitleaks hit, labelled
// "gitleaks:<rule-id>". Offsets come from each hit's line and column, so
// repeats of one secret keep their own positions.
func (g *Gitleaks) Detect(ctx context.Context, content string) []detection.Finding {
	_, span := g.tracer.Start(ctx, "gitleaks_engine.detect",
		trace.WithAttributes(attribute.Int("content.bytes", len(content))))
	defer span.End()

	hits := g.detector.DetectString(content)
	findings := make([]detection.Finding, 0, len(hits))
	for _, h := range hits {
		matched := strings.TrimSpace(h.Match)
		if matched == "" {
			matched = strings.TrimSpace(h.Secret)
		}
		if matched == "" {
			continue
		}

		offset := locate(content, matched, h.StartLine, h.StartColumn)
		findings = append(findings, detection.NewPatternFinding(LabelPrefix+h.RuleID, matched, offset))
	}

	span.SetAttributes(attribute.Int("findings.count", len(findings)))
	return findings
}

// locate returns the byte offset of matched at or after the position Gitleaks
// reported. Lines are zero-based. Columns are one-based on the first line and
// counted from the preceding newline on later lines, so line start plus
// column minus two never lies past the match. When the hint misses, the search
// restarts at the line start and then at the top of content.
func locate(content, matched string, line, column int) int {
	lineStart := lineOffset(content, line)
	for _, from := range []int{min(max(lineStart+column-2, lineStart), len(content)), lineStart, 0} {
		if i := strings.Index(content[from:], matched); i >= 0 {
			return from + i
		}
	}
	return 0
}

// lineOffset returns the byte offset at which zero-based line starts, or
// len(content) past the last line.
func lineOffset(content string, line int) int {
	offset := 0
	for ; line > 0; line-- {
		i := strings.IndexByte(content[offset:], '\n')
		if i < 0 {
			return len(content)
		}
		offset += i + 1
	}
	return offset
}
