package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/ahrav/piiguard/internal/app/detection"
	"github.com/ahrav/piiguard/internal/app/report"
	"github.com/ahrav/piiguard/internal/app/scanning"
	"github.com/ahrav/piiguard/internal/app/selection"
	"github.com/ahrav/piiguard/internal/config"
	"github.com/ahrav/piiguard/internal/config/fileloader"
	domain "github.com/ahrav/piiguard/internal/domain/detection"
	"github.com/ahrav/piiguard/internal/infra/classifier/comprehend"
	"github.com/ahrav/piiguard/internal/infra/classifier/httpclassifier"
	"github.com/ahrav/piiguard/internal/infra/scanner"
	"github.com/ahrav/piiguard/internal/infra/vcs"
	"github.com/ahrav/piiguard/pkg/common"
	"github.com/ahrav/piiguard/pkg/common/logger"
	commonotel "github.com/ahrav/piiguard/pkg/common/otel"
)

var build = "develop"

const serviceName = "piiguard"

// Process exit codes.
const (
	exitClean  = 0
	exitIssues = 1
	exitUsage  = 2
)

// exitError carries a specific exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error { return &exitError{code: exitUsage, err: err} }

func main() {
	// Worker defaults follow GOMAXPROCS, so honor container CPU quotas first.
	_, _ = maxprocs.Set()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the CLI and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	code := exitClean
	cmd := newRootCmd(stdout, stderr, &code)
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(ctx); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if ee.code == exitUsage {
				fmt.Fprintf(stderr, "Error: %v\n", ee.err)
			}
			return ee.code
		}
		// Flag parsing and argument errors surface from cobra unwrapped.
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	return code
}

type options struct {
	configFile string
	logFormat  string
	verbose    bool
	quiet      bool
}

func newRootCmd(stdout, stderr io.Writer, code *int) *cobra.Command {
	var opts options
	def := config.Default()

	cmd := &cobra.Command{
		Use:   "piiguard [path]",
		Short: "Scan files for PII and embedded secrets",
		Long: `piiguard scans text files for personally identifiable information and
embedded secrets. By default only files changed relative to origin/main, main
or HEAD~1 are scanned; --full scans the whole tree.

Exit status is 1 when issues are found or a full scan selects no files,
2 on usage or configuration errors, and 0 otherwise.`,
		Version:       build,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			c, err := runScan(cmd, root, opts, stdout, stderr)
			*code = c
			return err
		},
	}

	f := cmd.Flags()
	f.Bool("full", false, "scan the whole tree instead of changed files")
	f.StringP("format", "f", string(def.OutputFormat), "output format: text, json or csv")
	f.Float64("confidence", def.MinConfidence, "minimum classifier confidence in [0,1]")
	f.String("rules", "", "YAML or JSON file of extra label: pattern regex rules")
	f.IntP("workers", "w", def.MaxWorkers, "number of files scanned in parallel")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "log errors only")
	f.StringVar(&opts.logFormat, "log-format", "text", "log format on stderr: text or json")
	f.StringVarP(&opts.configFile, "config", "c", "", "config file (default .piiguard.yaml in the scan root)")
	f.StringSlice(config.FlagExcludeDir, nil, "additional directory names to skip")
	f.StringSlice(config.FlagExcludeExt, nil, "additional file extensions to skip")
	f.String("classifier", string(def.Classifier.Backend), "entity classifier: comprehend, http or none")
	f.String("region", "", "AWS region for the comprehend classifier")
	f.String("endpoint", "", "URL of the http classifier")
	f.Float64("rate-limit", def.Classifier.RateLimit, "classifier requests per second, 0 for unlimited")
	f.String("language", def.LanguageCode, "language code sent to the classifier")
	f.Bool("secrets-engine", false, "also run the gitleaks secret rules")
	f.Int64("max-file-bytes", def.MaxFileBytes, "skip files larger than this")
	f.Int("max-chunk-bytes", def.MaxChunkBytes, "largest chunk sent to the classifier")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd
}

func newLogger(w io.Writer, opts options) (*logger.Logger, error) {
	level := logger.LevelInfo
	switch {
	case opts.verbose:
		level = logger.LevelDebug
	case opts.quiet:
		level = logger.LevelError
	}

	switch opts.logFormat {
	case "json":
		return logger.New(w, level, serviceName, commonotel.TraceID), nil
	case "text", "":
		h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.Level(level)})
		return logger.NewWithTraceID(h.WithAttrs([]slog.Attr{slog.String("service", serviceName)}), commonotel.TraceID), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q", opts.logFormat)
	}
}

// colorEnabled reports whether w is a terminal that should receive colored
// output. NO_COLOR disables color regardless.
func colorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func runScan(cmd *cobra.Command, root string, opts options, stdout, stderr io.Writer) (int, error) {
	ctx := cmd.Context()
	log, err := newLogger(stderr, opts)
	if err != nil {
		return exitUsage, usageError(err)
	}
	diag := report.NewDiagnostics(stderr, colorEnabled(stderr))

	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return exitUsage, usageError(fmt.Errorf("scan path %q is not a directory", root))
	}

	var loader config.Loader = config.NewLayeredLoader(root, opts.configFile, cmd.Flags(), log)
	cfg, err := loader.Load(ctx)
	if err != nil {
		return exitUsage, usageError(err)
	}

	tp, mp := otel.GetTracerProvider(), otel.GetMeterProvider()
	if cfg.Telemetry.Endpoint != "" {
		providers, cleanup, err := commonotel.InitTelemetry(log, commonotel.Config{
			ServiceName:        serviceName,
			ExporterEndpoint:   cfg.Telemetry.Endpoint,
			Probability:        cfg.Telemetry.SamplingRatio,
			ResourceAttributes: map[string]string{"build": build},
		})
		if err != nil {
			log.Warn(ctx, "Telemetry disabled", "error", err)
		} else {
			defer cleanup(context.WithoutCancel(ctx))
			tp, mp = providers.Tracer, providers.Meter
		}
	}
	tracer := tp.Tracer(serviceName)

	coordinator, err := buildCoordinator(ctx, cfg, log, tracer, mp)
	if err != nil {
		return exitUsage, usageError(err)
	}
	renderer, err := report.New(cfg.OutputFormat)
	if err != nil {
		return exitUsage, usageError(err)
	}

	res, err := coordinator.Run(ctx)
	if err != nil {
		diag.Error(err)
		return exitIssues, &exitError{code: exitIssues, err: err}
	}

	if err := renderer.Render(stdout, res); err != nil {
		return exitIssues, &exitError{code: exitIssues, err: fmt.Errorf("failed to write report: %w", err)}
	}
	diag.Failures(res)

	if res.HasIssues() {
		return exitIssues, nil
	}
	return exitClean, nil
}

func buildCoordinator(
	ctx context.Context,
	cfg *config.ScanConfig,
	log *logger.Logger,
	tracer trace.Tracer,
	mp metric.MeterProvider,
) (*scanning.Coordinator, error) {
	rules := cfg.RegexRules
	if cfg.RulesFile != "" {
		custom, err := fileloader.NewFileLoader(cfg.RulesFile).LoadRules(ctx)
		if err != nil {
			log.Warn(ctx, "Ignoring custom rules file", "path", cfg.RulesFile, "error", err)
		} else {
			rules = config.Overlay(rules, custom)
			log.Debug(ctx, "Custom rules loaded", "path", cfg.RulesFile, "count", len(custom))
		}
	}
	ruleSet := detection.CompileRules(ctx, rules, log)

	policy := detection.CompilePolicy(ctx, cfg, log)

	metrics, err := scanning.NewScanMetrics(mp)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	classifier, err := newClassifier(ctx, cfg, tracer)
	if err != nil {
		return nil, err
	}

	var workerOpts []detection.WorkerOption
	if cfg.SecretsEngine {
		engine, err := scanner.NewGitleaks(log, tracer)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize secrets engine: %w", err)
		}
		log.Debug(ctx, "Secrets engine enabled", "rules", len(engine.RuleIDs()))
		workerOpts = append(workerOpts, detection.WithSecretsEngine(engine))
	}
	worker := detection.NewWorker(cfg, policy, ruleSet, classifier, log, tracer, metrics, workerOpts...)

	selOpts := []selection.Option{}
	if exe, err := os.Executable(); err == nil {
		selOpts = append(selOpts, selection.WithSelfPaths(exe))
	}
	if repo, err := vcs.Open(cfg.Root); err == nil {
		selOpts = append(selOpts, selection.WithChangeSource(repo))
	} else {
		log.Debug(ctx, "No git repository", "root", cfg.Root, "error", err)
	}
	selector, err := selection.NewSelector(cfg, log, tracer, selOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create file selector: %w", err)
	}

	return scanning.NewCoordinator(cfg.FullScan, cfg.MaxWorkers, selector, worker, policy.IsCritical, log, tracer, metrics), nil
}

func newClassifier(ctx context.Context, cfg *config.ScanConfig, tracer trace.Tracer) (domain.Classifier, error) {
	limiter := common.NewRateLimiter(cfg.Classifier.RateLimit, cfg.Classifier.Burst)

	switch cfg.Classifier.Backend {
	case config.BackendComprehend:
		c, err := comprehend.NewFromEnvironment(ctx, cfg.Classifier.Region, limiter, tracer)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.BackendHTTP:
		return httpclassifier.New(cfg.Classifier.Endpoint, cfg.Classifier.Timeout, tracer,
			httpclassifier.WithRateLimiter(limiter),
			httpclassifier.WithRetryPolicy(common.RetryPolicy{MaxElapsedTime: cfg.Classifier.MaxRetryElapsed}),
		), nil
	default:
		return nil, nil
	}
}
