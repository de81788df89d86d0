package config

import (
	"maps"
	"runtime"
	"time"
)

const (
	// DefaultMaxChunkBytes stays under the 100 KB request limit of the AWS
	// DetectPiiEntities API.
	DefaultMaxChunkBytes = 95_000
	DefaultMaxFileBytes  = 10 << 20
	DefaultMinConfidence = 0.85
	DefaultLanguageCode  = "en"
)

var defaultExcludedDirs = []string{
	".git", ".hg", ".svn", "node_modules", "vendor", "dist", "build", "target",
	"__pycache__", ".venv", "venv", ".tox", ".idea", ".vscode", ".terraform",
}

var defaultExcludedExts = []string{
	".png", ".jpg", ".jpeg", ".gif", ".bmp", ".ico", ".webp", ".svg",
	".pdf", ".zip", ".gz", ".tgz", ".tar", ".bz2", ".xz", ".7z", ".jar", ".war",
	".exe", ".dll", ".so", ".dylib", ".a", ".o", ".class", ".pyc", ".bin",
	".woff", ".woff2", ".ttf", ".eot", ".otf", ".mp3", ".mp4", ".mov", ".wav",
	".min.js", ".min.css", ".map", ".lock", ".sum",
}

var defaultCriticalTypes = []string{
	"AWS_ACCESS_KEY", "AWS_SECRET_KEY", "PASSWORD", "SSN", "CREDIT_DEBIT_NUMBER",
	"CREDIT_DEBIT_CVV", "BANK_ACCOUNT_NUMBER", "BANK_ROUTING", "PIN",
	"PASSPORT_NUMBER", "DRIVER_ID",
}

var defaultSecurityRelevantTypes = append([]string{
	"EMAIL", "PHONE", "NAME", "ADDRESS", "IP_ADDRESS", "USERNAME", "URL",
	"MAC_ADDRESS", "CREDIT_DEBIT_EXPIRY", "INTERNATIONAL_BANK_ACCOUNT_NUMBER",
	"SWIFT_CODE", "LICENSE_PLATE", "VEHICLE_IDENTIFICATION_NUMBER",
}, defaultCriticalTypes...)

var defaultValidationPatterns = map[string]string{
	"AWS_ACCESS_KEY":      `(?:AKIA|ASIA|ABIA|ACCA)[A-Z0-9]{16}`,
	"AWS_SECRET_KEY":      `[A-Za-z0-9/+=]{40}`,
	"SSN":                 `\d{3}-?\d{2}-?\d{4}`,
	"CREDIT_DEBIT_NUMBER": `\d(?:[ -]?\d){12,18}`,
	"IP_ADDRESS":          `(?:\d{1,3}\.){3}\d{1,3}|[0-9A-Fa-f:]{2,39}`,
}

var defaultRegexRules = map[string]string{
	"Generic password assignment":   `(?i)\b(?:password|passwd|pwd)\s*[:=]\s*["'][^"'\r\n]{3,}["']`,
	"Generic secret assignment":     `(?i)\b(?:api[_-]?key|secret|token|access[_-]?key)\s*[:=]\s*["'][A-Za-z0-9_\-/+=.]{16,}["']`,
	"AWS access key id":             `\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`,
	"Private key block":             `-----BEGIN (?:RSA |EC |DSA |OPENSSH |PGP |ENCRYPTED )?PRIVATE KEY(?: BLOCK)?-----`,
	"GitHub token":                  `\bgh[pousr]_[A-Za-z0-9]{36,255}\b`,
	"Slack token":                   `\bxox[abposr]-[A-Za-z0-9-]{10,72}\b`,
	"JSON web token":                `\beyJ[A-Za-z0-9_-]{8,}\.eyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\b`,
	"Connection string credentials": `\b[a-z][a-z0-9+.-]*://[^\s:/@"']+:[^\s@"']+@[^\s/"']+`,
}

// DefaultRegexRules returns a copy of the built-in pattern rules.
func DefaultRegexRules() map[string]string { return maps.Clone(defaultRegexRules) }

// DefaultValidationPatterns returns a copy of the built-in validation patterns.
func DefaultValidationPatterns() map[string]string { return maps.Clone(defaultValidationPatterns) }

// Default returns the built-in configuration.
func Default() *ScanConfig {
	return &ScanConfig{
		Root:                  ".",
		MaxWorkers:            max(runtime.GOMAXPROCS(0), 1),
		MaxChunkBytes:         DefaultMaxChunkBytes,
		MaxFileBytes:          DefaultMaxFileBytes,
		MinConfidence:         DefaultMinConfidence,
		OutputFormat:          FormatText,
		FullScan:              false,
		LanguageCode:          DefaultLanguageCode,
		ExcludedDirs:          append([]string{}, defaultExcludedDirs...),
		ExcludedExts:          append([]string{}, defaultExcludedExts...),
		CriticalTypes:         append([]string{}, defaultCriticalTypes...),
		SecurityRelevantTypes: append([]string{}, defaultSecurityRelevantTypes...),
		ValidationPatterns:    DefaultValidationPatterns(),
		RegexRules:            DefaultRegexRules(),
		Classifier: ClassifierConfig{
			Backend:         BackendComprehend,
			RateLimit:       0,
			Burst:           1,
			MaxRetryElapsed: 30 * time.Second,
			Timeout:         30 * time.Second,
		},
		Telemetry: TelemetryConfig{SamplingRatio: 1},
	}
}
