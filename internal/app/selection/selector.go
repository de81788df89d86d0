// Package selection decides which files a scan covers: either the whole tree
// under the scan root or only the files changed relative to a version-control
// baseline.
package selection

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/piiguard/internal/config"
	"github.com/ahrav/piiguard/pkg/common/logger"
)

// DefaultBaselines are tried in order when selecting changed files.
var DefaultBaselines = []string{"origin/main", "main", "HEAD~1"}

// ErrNoBaseline means diff mode found no version-control baseline to compare
// against. Select logs it and returns an empty selection.
var ErrNoBaseline = errors.New("no version-control baseline could be resolved")

// ChangeSource is the version-control collaborator used in diff mode.
type ChangeSource interface {
	// Root is the absolute path of the working tree the returned paths are relative to.
	Root() string
	// ResolveBaseline reports whether rev names a commit.
	ResolveBaseline(ctx context.Context, rev string) error
	// ChangedFiles lists paths changed between the merge base of rev and the
	// current position, and the current position.
	ChangedFiles(ctx context.Context, rev string) ([]string, error)
}

// Selector enumerates the files of a scan. Returned paths are relative to the
// scan root and use forward slashes.
type Selector struct {
	root         string
	excludedDirs config.Set
	excludedExts []string
	selfPaths    map[string]struct{}
	changes      ChangeSource
	baselines    []string

	logger *logger.Logger
	tracer trace.Tracer
}

// Option configures a Selector.
type Option func(*Selector)

// WithChangeSource sets the version-control collaborator for diff mode.
func WithChangeSource(cs ChangeSource) Option {
	return func(s *Selector) { s.changes = cs }
}

// WithBaselines overrides DefaultBaselines.
func WithBaselines(revs ...string) Option {
	return func(s *Selector) { s.baselines = revs }
}

// WithSelfPaths excludes the given files, typically the scanner's own binary,
// from every selection.
func WithSelfPaths(paths ...string) Option {
	return func(s *Selector) {
		for _, p := range paths {
			if p == "" {
				continue
			}
			if abs, err := filepath.Abs(p); err == nil {
				s.selfPaths[abs] = struct{}{}
			}
		}
	}
}

// NewSelector creates a Selector for cfg.Root.
func NewSelector(cfg *config.ScanConfig, log *logger.Logger, tracer trace.Tracer, opts ...Option) (*Selector, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}

	exts := make([]string, 0, len(cfg.ExcludedExts))
	for _, e := range cfg.ExcludedExts {
		exts = append(exts, strings.ToLower(e))
	}

	s := &Selector{
		root:         root,
		excludedDirs: config.NewSet(cfg.ExcludedDirs...),
		excludedExts: exts,
		selfPaths:    make(map[string]struct{}),
		baselines:    DefaultBaselines,
		logger:       log.With("component", "file_selector"),
		tracer:       tracer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Select returns the files to scan. In diff mode an unresolvable baseline is
// not an error: it is logged and yields an empty selection.
func (s *Selector) Select(ctx context.Context, full bool) ([]string, error) {
	mode := "diff"
	if full {
		mode = "full"
	}
	ctx, span := s.tracer.Start(ctx, "file_selector.select",
		trace.WithAttributes(attribute.String("mode", mode), attribute.String("root", s.root)))
	defer span.End()

	var (
		paths []string
		err   error
	)
	if full {
		paths, err = s.walk(ctx)
	} else {
		paths, err = s.changed(ctx)
		if errors.Is(err, ErrNoBaseline) {
			span.AddEvent("no_baseline")
			s.logger.Warn(ctx, "Nothing to scan in diff mode", "root", s.root, "reason", err)
			return nil, nil
		}
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("files.count", len(paths)))
	s.logger.Debug(ctx, "Files selected", "mode", mode, "count", len(paths))
	return paths, nil
}

func (s *Selector) walk(ctx context.Context) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Debug(ctx, "Skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() && path != s.root {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			if path != s.root && s.excludedDirs.Has(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || s.hasExcludedExt(d.Name()) || s.isSelf(path) || !IsText(path) {
			return nil
		}

		if rel, ok := s.relative(path); ok {
			paths = append(paths, rel)
		}
		return nil
	})
	return paths, err
}

func (s *Selector) changed(ctx context.Context) ([]string, error) {
	if s.changes == nil {
		return nil, fmt.Errorf("%w: %s is not inside a git repository", ErrNoBaseline, s.root)
	}

	for _, rev := range s.baselines {
		if err := s.changes.ResolveBaseline(ctx, rev); err != nil {
			s.logger.Debug(ctx, "Baseline not resolvable", "baseline", rev, "error", err)
			continue
		}

		files, err := s.changes.ChangedFiles(ctx, rev)
		if err != nil {
			s.logger.Warn(ctx, "Failed to list changed files", "baseline", rev, "error", err)
			return nil, nil
		}
		s.logger.Info(ctx, "Selecting changed files", "baseline", rev, "changed", len(files))
		return s.keepScannable(files), nil
	}

	return nil, fmt.Errorf("%w (tried %s)", ErrNoBaseline, strings.Join(s.baselines, ", "))
}

// keepScannable maps repository-relative paths onto the scan root and keeps
// the ones that still exist as text files.
func (s *Selector) keepScannable(files []string) []string {
	var paths []string
	for _, f := range files {
		abs := filepath.Join(s.changes.Root(), filepath.FromSlash(f))
		info, err := os.Lstat(abs)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if s.isSelf(abs) || !IsText(abs) {
			continue
		}
		if rel, ok := s.relative(abs); ok {
			paths = append(paths, rel)
		}
	}
	slices.Sort(paths)
	return slices.Compact(paths)
}

func (s *Selector) relative(abs string) (string, bool) {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (s *Selector) hasExcludedExt(name string) bool {
	name = strings.ToLower(name)
	for _, ext := range s.excludedExts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

func (s *Selector) isSelf(path string) bool {
	if len(s.selfPaths) == 0 {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	_, ok := s.selfPaths[abs]
	return ok
}
