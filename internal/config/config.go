// Package config loads configuration for the journey runner (verify) and for
// the stand-in PillBridge app (pillbridge-fake) from environment variables.
//
// Every value has a default matching the deployed verification setup, so a
// bare invocation drives http://localhost:5173 with 30s step timeouts and
// writes evidence under ./verification. CLI flags override env values.
package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTargetURL         = "http://localhost:5173"
	DefaultOutputDir         = "verification"
	DefaultStepTimeout       = 30 * time.Second
	DefaultAIResponseTimeout = 20 * time.Second
	DefaultEvidencePrefix    = "verification"
	DefaultReportFromEmail   = "verify@pillbridge.local"
	DefaultListenAddr        = ":5173"
	DefaultOpenAIModel       = "gpt-3.5-turbo"

	CopyCurrent = "current"
	CopyLegacy  = "legacy"
)

// Config holds journey runner configuration.
type Config struct {
	TargetURL         string
	OutputDir         string
	StepTimeout       time.Duration
	AIResponseTimeout time.Duration
	Headless          bool
	UniqueEmails      bool
	WriteReport       bool

	Evidence EvidenceConfig
	Notify   NotifyConfig
}

// EvidenceConfig configures the optional S3 mirror of screenshots.
// The mirror is enabled when Bucket is set.
type EvidenceConfig struct {
	Bucket          string // EVIDENCE_BUCKET
	Prefix          string // EVIDENCE_PREFIX
	Endpoint        string // AWS_ENDPOINT_URL_S3
	Region          string // AWS_REGION
	AccessKeyID     string // AWS_ACCESS_KEY_ID
	SecretAccessKey string // AWS_SECRET_ACCESS_KEY
	UsePathStyle    bool   // EVIDENCE_PATH_STYLE
}

// Enabled reports whether screenshots should be mirrored to S3.
func (e EvidenceConfig) Enabled() bool {
	return e.Bucket != ""
}

// NotifyConfig configures the optional Resend email of run reports.
type NotifyConfig struct {
	ResendAPIKey string // RESEND_API_KEY
	From         string // REPORT_FROM_EMAIL
	To           string // REPORT_TO_EMAIL
}

// Enabled reports whether run reports should be emailed.
func (n NotifyConfig) Enabled() bool {
	return n.ResendAPIKey != "" && n.To != ""
}

// AppConfig holds configuration for the stand-in PillBridge app.
type AppConfig struct {
	ListenAddr    string
	DatabasePath  string // empty means a temp file
	DatabaseKey   string // optional 64 hex chars; enables SQLCipher encryption
	OpenAIAPIKey  string // empty selects the canned assistant
	OpenAIBaseURL string
	OpenAIModel   string
	Copy          string // "current" or "legacy"
	ChatRPS       float64
	ChatBurst     int
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Load reads runner configuration from the environment without validating it,
// so flag overrides can be applied before Validate.
func Load() *Config {
	cfg := &Config{}

	cfg.TargetURL = strings.TrimRight(getEnvOrDefault("TARGET_URL", DefaultTargetURL), "/")
	cfg.OutputDir = getEnvOrDefault("OUTPUT_DIR", DefaultOutputDir)
	cfg.StepTimeout = parseDurationOrDefault("STEP_TIMEOUT", DefaultStepTimeout)
	cfg.AIResponseTimeout = parseDurationOrDefault("AI_RESPONSE_TIMEOUT", DefaultAIResponseTimeout)
	cfg.Headless = parseBoolOrDefault("HEADLESS", true)
	cfg.UniqueEmails = parseBoolOrDefault("UNIQUE_EMAILS", false)
	cfg.WriteReport = parseBoolOrDefault("WRITE_REPORT", true)

	cfg.Evidence = EvidenceConfig{
		Bucket:          strings.TrimSpace(os.Getenv("EVIDENCE_BUCKET")),
		Prefix:          getEnvOrDefault("EVIDENCE_PREFIX", DefaultEvidencePrefix),
		Endpoint:        strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL_S3")),
		Region:          getEnvOrDefault("AWS_REGION", "auto"),
		AccessKeyID:     strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID")),
		SecretAccessKey: strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY")),
		UsePathStyle:    parseBoolOrDefault("EVIDENCE_PATH_STYLE", false),
	}

	cfg.Notify = NotifyConfig{
		ResendAPIKey: strings.TrimSpace(os.Getenv("RESEND_API_KEY")),
		From:         getEnvOrDefault("REPORT_FROM_EMAIL", DefaultReportFromEmail),
		To:           strings.TrimSpace(os.Getenv("REPORT_TO_EMAIL")),
	}

	return cfg
}

// LoadConfig loads and validates runner configuration.
func LoadConfig() (*Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the runner configuration is usable.
func (c *Config) Validate() error {
	var errs []string

	if msg := validateHTTPURL(c.TargetURL); msg != "" {
		errs = append(errs, "TARGET_URL "+msg)
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		errs = append(errs, "OUTPUT_DIR must not be empty")
	}
	if c.StepTimeout <= 0 {
		errs = append(errs, "STEP_TIMEOUT must be positive")
	}
	if c.AIResponseTimeout <= 0 {
		errs = append(errs, "AI_RESPONSE_TIMEOUT must be positive")
	}

	if c.Evidence.Enabled() {
		if c.Evidence.Region == "" {
			errs = append(errs, "AWS_REGION is required when EVIDENCE_BUCKET is set")
		}
		if (c.Evidence.AccessKeyID == "") != (c.Evidence.SecretAccessKey == "") {
			errs = append(errs, "AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
		}
	}

	if c.Notify.ResendAPIKey != "" && c.Notify.To == "" {
		errs = append(errs, "REPORT_TO_EMAIL is required when RESEND_API_KEY is set")
	}
	if c.Notify.To != "" && !strings.Contains(c.Notify.To, "@") {
		errs = append(errs, "REPORT_TO_EMAIL must be an email address")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// AuthURL returns the target's auth route.
func (c *Config) AuthURL() string {
	return c.TargetURL + "/auth"
}

// PrintSummary prints a human-readable summary of the configuration to stderr.
func (c *Config) PrintSummary() {
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "verify starting...")
	fmt.Fprintf(os.Stderr, "  Target:   %s\n", c.TargetURL)
	fmt.Fprintf(os.Stderr, "  Output:   %s\n", c.OutputDir)
	fmt.Fprintf(os.Stderr, "  Timeouts: step %s, assistant %s\n", c.StepTimeout, c.AIResponseTimeout)
	if c.Evidence.Enabled() {
		fmt.Fprintf(os.Stderr, "  Mirror:   s3://%s/%s\n", c.Evidence.Bucket, c.Evidence.Prefix)
	}
	if c.Notify.Enabled() {
		fmt.Fprintf(os.Stderr, "  Notify:   %s\n", c.Notify.To)
	}
	fmt.Fprintln(os.Stderr, "")
}

// LoadApp reads stand-in app configuration from the environment without validating it.
func LoadApp() *AppConfig {
	return &AppConfig{
		ListenAddr:    getEnvOrDefault("LISTEN_ADDR", DefaultListenAddr),
		DatabasePath:  strings.TrimSpace(os.Getenv("DATABASE_PATH")),
		DatabaseKey:   strings.TrimSpace(os.Getenv("DATABASE_KEY")),
		OpenAIAPIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		OpenAIModel:   getEnvOrDefault("OPENAI_MODEL", DefaultOpenAIModel),
		Copy:          strings.ToLower(getEnvOrDefault("APP_COPY", CopyCurrent)),
		ChatRPS:       parseFloat64OrDefault("CHAT_RPS", 1),
		ChatBurst:     parseIntOrDefault("CHAT_BURST", 5),
	}
}

// Validate checks that the stand-in app configuration is usable.
func (c *AppConfig) Validate() error {
	var errs []string

	if c.ListenAddr == "" {
		errs = append(errs, "LISTEN_ADDR must not be empty")
	}
	if c.DatabaseKey != "" {
		if len(c.DatabaseKey) != 64 {
			errs = append(errs, "DATABASE_KEY must be 64 hex characters (32 bytes)")
		} else if _, err := hex.DecodeString(c.DatabaseKey); err != nil {
			errs = append(errs, "DATABASE_KEY must be hex encoded")
		}
	}
	if c.OpenAIBaseURL != "" {
		if msg := validateHTTPURL(c.OpenAIBaseURL); msg != "" {
			errs = append(errs, "OPENAI_BASE_URL "+msg)
		}
	}
	if c.Copy != CopyCurrent && c.Copy != CopyLegacy {
		errs = append(errs, fmt.Sprintf("APP_COPY must be %q or %q", CopyCurrent, CopyLegacy))
	}
	if c.ChatRPS <= 0 {
		errs = append(errs, "CHAT_RPS must be positive")
	}
	if c.ChatBurst <= 0 {
		errs = append(errs, "CHAT_BURST must be positive")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func validateHTTPURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "must be a valid URL"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "must use http or https"
	}
	if u.Host == "" {
		return "must include a host"
	}
	return ""
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
