// Package config defines the scan configuration and the loaders that build it
// from defaults, an optional config file, the environment and command-line flags.
package config

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// OutputFormat selects the report renderer.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
	FormatCSV  OutputFormat = "csv"
)

// ClassifierBackend selects the implementation of the entity classifier.
type ClassifierBackend string

const (
	BackendComprehend ClassifierBackend = "comprehend"
	BackendHTTP       ClassifierBackend = "http"
	BackendNone       ClassifierBackend = "none"
)

// ClassifierConfig configures the remote entity classifier.
type ClassifierConfig struct {
	Backend ClassifierBackend `mapstructure:"backend" yaml:"backend" validate:"oneof=comprehend http none"`

	// Region is the AWS region used by the comprehend backend. Empty means the
	// region from the default AWS configuration chain.
	Region string `mapstructure:"region" yaml:"region"`

	// Endpoint is the URL of the HTTP classification service.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint" validate:"required_if=Backend http"`

	// RateLimit caps classifier calls per second across all workers. Zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit" validate:"gte=0"`
	Burst     int     `mapstructure:"burst" yaml:"burst" validate:"gte=0"`

	// MaxRetryElapsed bounds the total time spent retrying one call.
	MaxRetryElapsed time.Duration `mapstructure:"max_retry_elapsed" yaml:"max_retry_elapsed" validate:"gt=0"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
}

// TelemetryConfig configures optional OTLP export.
type TelemetryConfig struct {
	Endpoint      string  `mapstructure:"endpoint" yaml:"endpoint"`
	SamplingRatio float64 `mapstructure:"sampling_ratio" yaml:"sampling_ratio" validate:"gte=0,lte=1"`
}

// ScanConfig is the fully merged configuration for one scan. It is built once
// and then only read; every worker shares the same value.
type ScanConfig struct {
	Root          string       `mapstructure:"root" yaml:"root"`
	MaxWorkers    int          `mapstructure:"max_workers" yaml:"max_workers" validate:"min=1"`
	MaxChunkBytes int          `mapstructure:"max_chunk_bytes" yaml:"max_chunk_bytes" validate:"min=1"`
	MaxFileBytes  int64        `mapstructure:"max_file_bytes" yaml:"max_file_bytes" validate:"min=1"`
	MinConfidence float64      `mapstructure:"min_confidence" yaml:"min_confidence" validate:"gte=0,lte=1"`
	OutputFormat  OutputFormat `mapstructure:"output_format" yaml:"output_format" validate:"oneof=text json csv"`
	FullScan      bool         `mapstructure:"full_scan" yaml:"full_scan"`
	LanguageCode  string       `mapstructure:"language_code" yaml:"language_code" validate:"required"`

	ExcludedDirs          []string `mapstructure:"excluded_dirs" yaml:"excluded_dirs"`
	ExcludedExts          []string `mapstructure:"excluded_exts" yaml:"excluded_exts"`
	CriticalTypes         []string `mapstructure:"critical_types" yaml:"critical_types"`
	SecurityRelevantTypes []string `mapstructure:"security_relevant_types" yaml:"security_relevant_types" validate:"min=1"`

	// ValidationPatterns maps an entity type to the pattern its matched text
	// must fully match. RegexRules maps a rule label to its pattern.
	ValidationPatterns map[string]string `mapstructure:"-" yaml:"-"`
	RegexRules         map[string]string `mapstructure:"-" yaml:"-"`

	// RulesFile is an optional YAML/JSON file of extra regex rules.
	RulesFile string `mapstructure:"rules_file" yaml:"rules_file"`

	// SecretsEngine enables the gitleaks rule pack next to RegexRules.
	SecretsEngine bool `mapstructure:"secrets_engine" yaml:"secrets_engine"`

	Classifier ClassifierConfig `mapstructure:"classifier" yaml:"classifier"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry" yaml:"telemetry"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *ScanConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Set is a read-only string set.
type Set map[string]struct{}

// NewSet builds a Set from values.
func NewSet(values ...string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Has reports whether v is in the set.
func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// union returns base extended by extra, keeping first-seen order and dropping duplicates.
func union(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, v := range append(append([]string{}, base...), extra...) {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// normalizeExts lowercases extensions and guarantees a leading dot.
func normalizeExts(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

// Overlay returns a new pattern map with top applied over base. A label in top
// that already exists in base replaces it; neither input is modified.
func Overlay(base, top map[string]string) map[string]string {
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]string, len(top))
	}
	maps.Copy(out, top)
	return out
}
