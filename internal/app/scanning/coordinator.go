// Package scanning runs a scan end to end: it selects files, fans them out to
// a bounded pool of file workers, collects results as they complete and
// aggregates them into a verdict.
package scanning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/piiguard/internal/domain/detection"
	domain "github.com/ahrav/piiguard/internal/domain/scanning"
	"github.com/ahrav/piiguard/pkg/common/logger"
)

// ErrNoFilesSelected is returned when a full scan selects nothing. An empty
// tree in full mode is treated as misconfiguration.
var ErrNoFilesSelected = errors.New("no files selected for full scan")

// FileSelector enumerates the files of a scan.
type FileSelector interface {
	Select(ctx context.Context, full bool) ([]string, error)
}

// FileProcessor scans a single file. Implementations must be safe for
// concurrent use and must capture every per-file failure on the result.
type FileProcessor interface {
	Process(ctx context.Context, path string) detection.FileResult
}

// Coordinator drives one scan run through Idle, Selecting, Running,
// Aggregating and Done. A Coordinator is single use.
type Coordinator struct {
	full       bool
	maxWorkers int
	selector   FileSelector
	processor  FileProcessor
	isCritical func(entityType string) bool

	mu     sync.RWMutex
	status domain.ScanStatus

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics ScanMetrics
}

// NewCoordinator creates a Coordinator. isCritical decides which classifier
// findings are listed individually with context.
func NewCoordinator(
	full bool,
	maxWorkers int,
	selector FileSelector,
	processor FileProcessor,
	isCritical func(entityType string) bool,
	log *logger.Logger,
	tracer trace.Tracer,
	metrics ScanMetrics,
) *Coordinator {
	return &Coordinator{
		full:       full,
		maxWorkers: max(maxWorkers, 1),
		selector:   selector,
		processor:  processor,
		isCritical: isCritical,
		status:     domain.ScanStatusIdle,
		logger:     log.With("component", "scan_coordinator"),
		tracer:     tracer,
		metrics:    metrics,
	}
}

// Status returns the current lifecycle state.
func (c *Coordinator) Status() domain.ScanStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Coordinator) transition(target domain.ScanStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.status.ValidateTransition(target); err != nil {
		return err
	}
	c.status = target
	return nil
}

// Run executes the scan. Per-file and per-chunk failures never surface as an
// error; the only errors are an empty full-scan selection, a selection
// failure and context cancellation. The returned Result is non-nil whenever
// selection succeeded.
func (c *Coordinator) Run(ctx context.Context) (*domain.Result, error) {
	result := &domain.Result{ID: uuid.New(), Full: c.full, Started: time.Now()}
	log := c.logger.With("scan_id", result.ID.String())

	ctx, span := c.tracer.Start(ctx, "scan_coordinator.run",
		trace.WithAttributes(
			attribute.String("scan_id", result.ID.String()),
			attribute.Bool("full_scan", c.full),
			attribute.Int("max_workers", c.maxWorkers),
		))
	defer span.End()

	fail := func(err error, msg string) (*domain.Result, error) {
		_ = c.transition(domain.ScanStatusFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		result.Status = c.Status()
		result.Duration = time.Since(result.Started)
		return result, err
	}

	if err := c.transition(domain.ScanStatusSelecting); err != nil {
		return nil, err
	}
	paths, err := c.selector.Select(ctx, c.full)
	if err != nil {
		return fail(fmt.Errorf("failed to select files: %w", err), "selection failed")
	}
	result.Selected = len(paths)
	span.AddEvent("files_selected", trace.WithAttributes(attribute.Int("files.count", len(paths))))

	if len(paths) == 0 {
		if c.full {
			log.Error(ctx, "Full scan selected no files")
			return fail(ErrNoFilesSelected, "empty selection")
		}
		log.Info(ctx, "No changed files to scan")
		if err := c.transition(domain.ScanStatusDone); err != nil {
			return nil, err
		}
		result.Status = domain.ScanStatusDone
		result.Duration = time.Since(result.Started)
		return result, nil
	}

	if err := c.transition(domain.ScanStatusRunning); err != nil {
		return nil, err
	}
	log.Info(ctx, "Scanning files", "files", len(paths), "workers", min(c.maxWorkers, len(paths)))
	results, err := c.runWorkers(ctx, paths)
	if err != nil {
		return fail(err, "scan interrupted")
	}

	if err := c.transition(domain.ScanStatusAggregating); err != nil {
		return nil, err
	}
	for _, res := range results {
		if res.Failed() {
			result.Failures = append(result.Failures, res)
			continue
		}
		if rep := Aggregate(res, c.isCritical); rep.HasIssues() {
			result.Reports = append(result.Reports, rep)
		}
	}

	if err := c.transition(domain.ScanStatusDone); err != nil {
		return nil, err
	}
	result.Status = domain.ScanStatusDone
	result.Duration = time.Since(result.Started)

	span.SetAttributes(
		attribute.Int("files.with_issues", result.FilesWithIssues()),
		attribute.Int("files.failed", len(result.Failures)),
		attribute.Bool("issues_found", result.HasIssues()),
	)
	span.SetStatus(codes.Ok, "scan completed")
	log.Info(ctx, "Scan completed",
		"files", result.Selected,
		"files_with_issues", result.FilesWithIssues(),
		"skipped", result.Skipped(),
		"errored", result.Errored(),
		"duration", result.Duration,
	)
	return result, nil
}

// runWorkers fans paths out to at most maxWorkers goroutines and collects the
// results in completion order on the calling goroutine.
func (c *Coordinator) runWorkers(ctx context.Context, paths []string) ([]detection.FileResult, error) {
	workers := min(c.maxWorkers, len(paths))
	pathCh := make(chan string)
	resultCh := make(chan detection.FileResult, workers)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(pathCh)
		for _, p := range paths {
			select {
			case pathCh <- p:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for range workers {
		g.Go(func() error {
			c.metrics.AddActiveWorkers(gctx, 1)
			defer c.metrics.AddActiveWorkers(gctx, -1)

			for p := range pathCh {
				res := c.processFile(gctx, p)
				select {
				case resultCh <- res:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(resultCh)
	}()

	results := make([]detection.FileResult, 0, len(paths))
	for res := range resultCh {
		results = append(results, res)
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scan interrupted after %d of %d files: %w", len(results), len(paths), err)
	}
	return results, nil
}

func (c *Coordinator) processFile(ctx context.Context, path string) detection.FileResult {
	start := time.Now()
	res := c.processor.Process(ctx, path)
	c.metrics.ObserveFileDuration(ctx, time.Since(start))
	c.metrics.IncFilesScanned(ctx)

	switch {
	case res.Skipped:
		c.metrics.IncFileFailures(ctx, "skipped")
		c.logger.Debug(ctx, "File skipped", "path", path, "reason", res.Error)
	case res.Failed():
		c.metrics.IncFileFailures(ctx, "error")
		c.logger.Debug(ctx, "File failed", "path", path, "error", res.Error)
	default:
		var pii, patterns int
		for _, f := range res.Findings {
			if f.Kind == detection.KindPII {
				pii++
			} else {
				patterns++
			}
		}
		c.metrics.ObserveFindings(ctx, string(detection.KindPII), pii)
		c.metrics.ObserveFindings(ctx, string(detection.KindPattern), patterns)
	}
	return res
}
