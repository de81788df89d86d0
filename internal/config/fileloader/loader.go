// Package fileloader reads the case-sensitive pattern tables (regex rules and
// validation patterns) from YAML or JSON files on disk.
package fileloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PatternTables holds the pattern maps found in a file. Keys keep their case.
type PatternTables struct {
	RegexRules         map[string]string `yaml:"regex_rules"`
	ValidationPatterns map[string]string `yaml:"validation_patterns"`
}

// FileLoader loads pattern tables from a file on disk.
type FileLoader struct {
	// path is the filesystem path to the file.
	path string
}

// NewFileLoader creates a new FileLoader that will load from the specified path.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// LoadTables reads the regex_rules and validation_patterns sections of a
// scan config file. TOML files carry no tables this loader understands and
// yield an empty result.
func (l *FileLoader) LoadTables(ctx context.Context) (*PatternTables, error) {
	if strings.EqualFold(filepath.Ext(l.path), ".toml") {
		return &PatternTables{}, nil
	}

	data, err := l.read(ctx)
	if err != nil {
		return nil, err
	}

	var tables PatternTables
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("failed to parse pattern tables: %w", err)
	}
	return &tables, nil
}

// LoadRules reads a custom rules file. Two layouts are accepted: a plain
// `label: pattern` mapping, or the same mapping nested under `rules:` or
// `regex_rules:`.
func (l *FileLoader) LoadRules(ctx context.Context) (map[string]string, error) {
	data, err := l.read(ctx)
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	for _, key := range []string{"rules", "regex_rules"} {
		if nested, ok := doc[key]; ok {
			m, ok := nested.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("rules file: %q must be a mapping of label to pattern", key)
			}
			doc = m
			break
		}
	}

	rules := make(map[string]string, len(doc))
	for label, v := range doc {
		pattern, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("rules file: pattern for %q is not a string", label)
		}
		rules[label] = pattern
	}
	if len(rules) == 0 {
		return nil, ErrNoRules
	}
	return rules, nil
}

// ErrNoRules is returned when a rules file parses but defines nothing.
var ErrNoRules = errors.New("rules file defines no rules")

func (l *FileLoader) read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", l.path, err)
	}
	return data, nil
}
