// Package detection runs the per-file detection pipeline: lenient reading,
// pattern scanning over the whole file, chunking for the entity classifier and
// validation of the entities it returns.
package detection

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/piiguard/internal/config"
	"github.com/ahrav/piiguard/internal/domain/detection"
	"github.com/ahrav/piiguard/pkg/common/logger"
)

// metrics defines the metrics a Worker records.
type metrics interface {
	// IncClassifierCalls counts one classifier request.
	IncClassifierCalls(ctx context.Context)
	// IncClassifierErrors counts one failed classifier request.
	IncClassifierErrors(ctx context.Context)
	// ObserveChunkBytes records the size of a chunk sent to the classifier.
	ObserveChunkBytes(ctx context.Context, size int)
}

// Worker processes one file at a time. A Worker holds no per-file state, so
// one instance may be shared by any number of goroutines.
type Worker struct {
	cfg        *config.ScanConfig
	policy     *Policy
	rules      *RuleSet
	classifier detection.Classifier
	secrets    detection.SecretsEngine

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics metrics
}

// WorkerOption configures optional Worker collaborators.
type WorkerOption func(*Worker)

// WithSecretsEngine adds a whole-file secrets engine whose findings are treated
// like pattern findings.
func WithSecretsEngine(engine detection.SecretsEngine) WorkerOption {
	return func(w *Worker) { w.secrets = engine }
}

// NewWorker creates a Worker. classifier may be nil, in which case only pattern
// findings are produced.
func NewWorker(
	cfg *config.ScanConfig,
	policy *Policy,
	rules *RuleSet,
	classifier detection.Classifier,
	log *logger.Logger,
	tracer trace.Tracer,
	metrics metrics,
	opts ...WorkerOption,
) *Worker {
	w := &Worker{
		cfg:        cfg,
		policy:     policy,
		rules:      rules,
		classifier: classifier,
		logger:     log.With("component", "file_worker"),
		tracer:     tracer,
		metrics:    metrics,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Process scans the file at path, relative to the configured root. It never
// returns an error: read failures and oversized files are captured on the
// FileResult, and classifier failures only cost that chunk's PII findings.
func (w *Worker) Process(ctx context.Context, path string) (res detection.FileResult) {
	ctx, span := w.tracer.Start(ctx, "file_worker.process",
		trace.WithAttributes(attribute.String("file.path", path)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic while scanning: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			res = detection.FileResult{Path: path, Error: err.Error()}
		}
	}()

	content, err := ReadText(filepath.Join(w.cfg.Root, filepath.FromSlash(path)), w.cfg.MaxFileBytes)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrFileTooLarge) {
			span.AddEvent("file_skipped")
			return detection.FileResult{Path: path, Error: "skipped: " + err.Error(), Skipped: true}
		}
		span.SetStatus(codes.Error, "read failed")
		return detection.FileResult{Path: path, Error: err.Error()}
	}

	if strings.TrimSpace(content) == "" {
		span.AddEvent("file_empty")
		return detection.FileResult{Path: path}
	}

	findings := w.rules.Scan(content)
	if w.secrets != nil {
		findings = append(findings, w.secrets.Detect(ctx, content)...)
	}
	span.AddEvent("patterns_scanned", trace.WithAttributes(attribute.Int("findings.count", len(findings))))

	if w.classifier != nil {
		findings = append(findings, w.classify(ctx, path, content)...)
	}

	span.SetAttributes(attribute.Int("findings.count", len(findings)))
	span.SetStatus(codes.Ok, "file scanned")
	return detection.FileResult{Path: path, Findings: findings}
}

func (w *Worker) classify(ctx context.Context, path, content string) []detection.Finding {
	chunks := Split(content, w.cfg.MaxChunkBytes)
	var findings []detection.Finding
	for i, chunk := range chunks {
		ctx, span := w.tracer.Start(ctx, "file_worker.classify_chunk",
			trace.WithAttributes(
				attribute.Int("chunk.index", i),
				attribute.Int("chunk.offset", chunk.ByteOffset),
				attribute.Int("chunk.bytes", len(chunk.Text)),
			))

		w.metrics.IncClassifierCalls(ctx)
		w.metrics.ObserveChunkBytes(ctx, len(chunk.Text))
		entities, err := w.classifier.Classify(ctx, chunk.Text, w.cfg.LanguageCode)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "classification failed")
			span.End()
			w.metrics.IncClassifierErrors(ctx)
			w.logger.Warn(ctx, "Entity classification failed, chunk yields no PII findings",
				"path", path,
				"chunk", i,
				"error", err,
			)
			continue
		}

		found := w.policy.Validate(entities, chunk, content)
		span.SetAttributes(
			attribute.Int("entities.count", len(entities)),
			attribute.Int("findings.count", len(found)),
		)
		span.End()
		findings = append(findings, found...)
	}
	return findings
}
