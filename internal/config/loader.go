package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ahrav/piiguard/internal/config/fileloader"
	"github.com/ahrav/piiguard/pkg/common/logger"
)

// Loader provides configuration loading capabilities. It abstracts the source
// of configuration to allow for different implementations like files, environment
// variables, or remote configuration services.
type Loader interface {
	// Load retrieves and merges the configuration from the underlying sources.
	Load(ctx context.Context) (*ScanConfig, error)
}

// Flag names whose values extend, rather than replace, the merged exclusion lists.
const (
	FlagExcludeDir = "exclude-dir"
	FlagExcludeExt = "exclude-ext"
)

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"workers":         "max_workers",
	"confidence":      "min_confidence",
	"format":          "output_format",
	"full":            "full_scan",
	"rules":           "rules_file",
	"secrets-engine":  "secrets_engine",
	"language":        "language_code",
	"max-file-bytes":  "max_file_bytes",
	"max-chunk-bytes": "max_chunk_bytes",
	"classifier":      "classifier.backend",
	"region":          "classifier.region",
	"endpoint":        "classifier.endpoint",
	"rate-limit":      "classifier.rate_limit",
}

// configFileNames are tried, in order, in the scan root when no config file is given.
var configFileNames = []string{".piiguard.yaml", ".piiguard.yml", ".piiguard.json", ".piiguard.toml"}

const envPrefix = "PIIGUARD"

var _ Loader = (*LayeredLoader)(nil)

// LayeredLoader merges configuration with the precedence
// defaults < config file < environment < flags. Exclusion lists given on the
// command line are appended to the merged lists instead of replacing them.
// A config file that cannot be read or decoded is logged and ignored.
type LayeredLoader struct {
	root       string
	configFile string
	flags      *pflag.FlagSet
	logger     *logger.Logger
}

// NewLayeredLoader creates a loader for a scan rooted at root. configFile may be
// empty, in which case a .piiguard.{yaml,yml,json,toml} file in root is used when present.
// flags may be nil.
func NewLayeredLoader(root, configFile string, flags *pflag.FlagSet, log *logger.Logger) *LayeredLoader {
	if flags == nil {
		flags = pflag.NewFlagSet("empty", pflag.ContinueOnError)
	}
	return &LayeredLoader{
		root:       root,
		configFile: configFile,
		flags:      flags,
		logger:     log.With("component", "config_loader"),
	}
}

// Load builds the ScanConfig. A config file that cannot be decoded, or whose
// values fail validation, is ignored as a whole and the remaining layers are
// merged again without it. Invalid values from the environment or flags are
// returned as errors.
func (l *LayeredLoader) Load(ctx context.Context) (*ScanConfig, error) {
	configPath := l.resolveConfigFile()

	cfg, err := l.assemble(ctx, configPath)
	if err != nil && configPath != "" {
		l.logger.Warn(ctx, "Ignoring config file, falling back to defaults", "path", configPath, "error", err)
		configPath = ""
		cfg, err = l.assemble(ctx, "")
	}
	if err != nil {
		return nil, err
	}

	l.logger.Debug(ctx, "Configuration loaded",
		"config_file", configPath,
		"full_scan", cfg.FullScan,
		"max_workers", cfg.MaxWorkers,
		"min_confidence", cfg.MinConfidence,
		"classifier", cfg.Classifier.Backend,
	)
	return cfg, nil
}

// assemble merges every layer, using configPath as the file layer when it is
// set, and validates the result.
func (l *LayeredLoader) assemble(ctx context.Context, configPath string) (*ScanConfig, error) {
	cfg, err := l.build(configPath)
	if err != nil {
		return nil, err
	}

	def := Default()
	cfg.ValidationPatterns = def.ValidationPatterns
	cfg.RegexRules = def.RegexRules
	if configPath != "" {
		tables, err := fileloader.NewFileLoader(configPath).LoadTables(ctx)
		if err != nil {
			l.logger.Warn(ctx, "Ignoring pattern tables in config file", "path", configPath, "error", err)
		} else {
			cfg.ValidationPatterns = Overlay(cfg.ValidationPatterns, tables.ValidationPatterns)
			cfg.RegexRules = Overlay(cfg.RegexRules, tables.RegexRules)
		}
	}

	if dirs, err := l.flags.GetStringSlice(FlagExcludeDir); err == nil {
		cfg.ExcludedDirs = union(cfg.ExcludedDirs, dirs)
	}
	cfg.ExcludedExts = normalizeExts(cfg.ExcludedExts)
	if exts, err := l.flags.GetStringSlice(FlagExcludeExt); err == nil {
		cfg.ExcludedExts = union(cfg.ExcludedExts, normalizeExts(exts))
	}

	if l.root != "" {
		cfg.Root = l.root
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *LayeredLoader) build(configPath string) (*ScanConfig, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for name, key := range flagKeys {
		if f := l.flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	var cfg ScanConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return &cfg, nil
}

func (l *LayeredLoader) resolveConfigFile() string {
	if l.configFile != "" {
		if _, err := os.Stat(l.configFile); err != nil {
			l.logger.Warn(context.Background(), "Config file not readable, using defaults",
				"path", l.configFile, "error", err)
			return ""
		}
		return l.configFile
	}

	root := l.root
	if root == "" {
		root = "."
	}
	for _, name := range configFileNames {
		p := filepath.Join(root, name)
		if _, err := os.Stat(p); err == nil {
			return p
		} else if !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn(context.Background(), "Cannot stat config file", "path", p, "error", err)
		}
	}
	return ""
}

func setDefaults(v *viper.Viper, d *ScanConfig) {
	v.SetDefault("root", d.Root)
	v.SetDefault("max_workers", d.MaxWorkers)
	v.SetDefault("max_chunk_bytes", d.MaxChunkBytes)
	v.SetDefault("max_file_bytes", d.MaxFileBytes)
	v.SetDefault("min_confidence", d.MinConfidence)
	v.SetDefault("output_format", string(d.OutputFormat))
	v.SetDefault("full_scan", d.FullScan)
	v.SetDefault("language_code", d.LanguageCode)
	v.SetDefault("excluded_dirs", d.ExcludedDirs)
	v.SetDefault("excluded_exts", d.ExcludedExts)
	v.SetDefault("critical_types", d.CriticalTypes)
	v.SetDefault("security_relevant_types", d.SecurityRelevantTypes)
	v.SetDefault("rules_file", d.RulesFile)
	v.SetDefault("secrets_engine", d.SecretsEngine)
	v.SetDefault("classifier.backend", string(d.Classifier.Backend))
	v.SetDefault("classifier.region", d.Classifier.Region)
	v.SetDefault("classifier.endpoint", d.Classifier.Endpoint)
	v.SetDefault("classifier.rate_limit", d.Classifier.RateLimit)
	v.SetDefault("classifier.burst", d.Classifier.Burst)
	v.SetDefault("classifier.max_retry_elapsed", d.Classifier.MaxRetryElapsed)
	v.SetDefault("classifier.timeout", d.Classifier.Timeout)
	v.SetDefault("telemetry.endpoint", d.Telemetry.Endpoint)
	v.SetDefault("telemetry.sampling_ratio", d.Telemetry.SamplingRatio)
}
