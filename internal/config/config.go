// Package config provides centralized configuration for the scenario runner
// and the static asset server. Values come from, in increasing precedence:
// built-in defaults, an optional TOML file, environment variables, and CLI
// flags (applied by the commands as Options).
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	DriverPlaywright = "playwright"
	DriverChromedp   = "chromedp"

	defaultServerPort = 8081
	defaultRegion     = "auto"
)

// Config holds all harness configuration.
type Config struct {
	// Target under test
	TargetURL   string // file:// or http(s):// base URL
	ArtifactDir string // screenshots and reports land here

	// Browser
	Driver            string // playwright or chromedp
	Headless          bool
	ChromeRemoteURL   string // chromedp only; empty launches a local Chrome
	ActionTimeout     time.Duration
	NavigationTimeout time.Duration
	DialogTimeout     time.Duration
	ActionsPerSecond  float64 // 0 disables pacing
	SharedSession     bool    // reuse one browser context for every scenario
	CaptureFinal      bool    // screenshot at the end of every scenario

	// Static asset server
	ServerRoot string
	ServerPort int

	// Artifact upload (optional; enabled when ArtifactBucket is set)
	ArtifactBucket     string // ARTIFACT_BUCKET
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY

	// Output
	MetricsFile string
	LogLevel    string
}

// fileConfig mirrors the TOML layout accepted by --config.
type fileConfig struct {
	Target struct {
		URL         string `toml:"url"`
		ArtifactDir string `toml:"artifact_dir"`
	} `toml:"target"`
	Browser struct {
		Driver            string  `toml:"driver"`
		Headless          *bool   `toml:"headless"`
		RemoteURL         string  `toml:"remote_url"`
		ActionTimeout     string  `toml:"action_timeout"`
		NavigationTimeout string  `toml:"navigation_timeout"`
		DialogTimeout     string  `toml:"dialog_timeout"`
		ActionsPerSecond  float64 `toml:"actions_per_second"`
		SharedSession     bool    `toml:"shared_session"`
		CaptureFinal      *bool   `toml:"capture_final"`
	} `toml:"browser"`
	Server struct {
		Root string `toml:"root"`
		Port int    `toml:"port"`
	} `toml:"server"`
	Artifacts struct {
		Bucket   string `toml:"bucket"`
		Endpoint string `toml:"endpoint"`
		Region   string `toml:"region"`
	} `toml:"artifacts"`
	MetricsFile string `toml:"metrics_file"`
	LogLevel    string `toml:"log_level"`
}

// Option applies a CLI override after file and environment values.
type Option func(*Config)

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() *Config {
	return &Config{
		TargetURL:         fmt.Sprintf("http://localhost:%d/", defaultServerPort),
		ArtifactDir:       "artifacts",
		Driver:            DriverPlaywright,
		Headless:          true,
		ActionTimeout:     5 * time.Second,
		NavigationTimeout: 10 * time.Second,
		DialogTimeout:     2 * time.Second,
		CaptureFinal:      true,
		ServerRoot:        ".",
		ServerPort:        defaultServerPort,
		AWSRegion:         defaultRegion,
		LogLevel:          "info",
	}
}

// LoadConfig builds the configuration from defaults, the optional TOML file at
// path, environment variables and the given overrides, then validates it.
func LoadConfig(path string, opts ...Option) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	setString(&c.TargetURL, fc.Target.URL)
	setString(&c.ArtifactDir, fc.Target.ArtifactDir)
	setString(&c.Driver, fc.Browser.Driver)
	if fc.Browser.Headless != nil {
		c.Headless = *fc.Browser.Headless
	}
	setString(&c.ChromeRemoteURL, fc.Browser.RemoteURL)
	if err := setDuration(&c.ActionTimeout, fc.Browser.ActionTimeout); err != nil {
		return fmt.Errorf("browser.action_timeout: %w", err)
	}
	if err := setDuration(&c.NavigationTimeout, fc.Browser.NavigationTimeout); err != nil {
		return fmt.Errorf("browser.navigation_timeout: %w", err)
	}
	if err := setDuration(&c.DialogTimeout, fc.Browser.DialogTimeout); err != nil {
		return fmt.Errorf("browser.dialog_timeout: %w", err)
	}
	if fc.Browser.ActionsPerSecond != 0 {
		c.ActionsPerSecond = fc.Browser.ActionsPerSecond
	}
	c.SharedSession = c.SharedSession || fc.Browser.SharedSession
	if fc.Browser.CaptureFinal != nil {
		c.CaptureFinal = *fc.Browser.CaptureFinal
	}
	setString(&c.ServerRoot, fc.Server.Root)
	if fc.Server.Port != 0 {
		c.ServerPort = fc.Server.Port
	}
	setString(&c.ArtifactBucket, fc.Artifacts.Bucket)
	setString(&c.AWSEndpointS3, fc.Artifacts.Endpoint)
	setString(&c.AWSRegion, fc.Artifacts.Region)
	setString(&c.MetricsFile, fc.MetricsFile)
	setString(&c.LogLevel, fc.LogLevel)
	return nil
}

func (c *Config) applyEnv() {
	c.TargetURL = getEnvOrDefault("TARGET_URL", c.TargetURL)
	c.ArtifactDir = getEnvOrDefault("ARTIFACT_DIR", c.ArtifactDir)

	c.Driver = strings.ToLower(getEnvOrDefault("BROWSER_DRIVER", c.Driver))
	c.Headless = parseBoolOrDefault("HEADLESS", c.Headless)
	c.ChromeRemoteURL = getEnvOrDefault("CHROME_REMOTE_URL", c.ChromeRemoteURL)
	c.ActionTimeout = parseDurationOrDefault("ACTION_TIMEOUT", c.ActionTimeout)
	c.NavigationTimeout = parseDurationOrDefault("NAVIGATION_TIMEOUT", c.NavigationTimeout)
	c.DialogTimeout = parseDurationOrDefault("DIALOG_TIMEOUT", c.DialogTimeout)
	c.ActionsPerSecond = parseFloat64OrDefault("ACTIONS_PER_SECOND", c.ActionsPerSecond)

	c.ServerRoot = getEnvOrDefault("SERVER_ROOT", c.ServerRoot)
	c.ServerPort = parseIntOrDefault("SERVER_PORT", c.ServerPort)

	c.ArtifactBucket = strings.TrimSpace(getEnvOrDefault("ARTIFACT_BUCKET", c.ArtifactBucket))
	c.AWSEndpointS3 = strings.TrimSpace(getEnvOrDefault("AWS_ENDPOINT_URL_S3", c.AWSEndpointS3))
	c.AWSRegion = getEnvOrDefault("AWS_REGION", c.AWSRegion)
	c.AWSAccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	c.AWSSecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))

	c.MetricsFile = getEnvOrDefault("METRICS_FILE", c.MetricsFile)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
}

// Validate checks that all configuration is present and consistent.
func (c *Config) Validate() error {
	var errs []string

	if c.Driver != DriverPlaywright && c.Driver != DriverChromedp {
		errs = append(errs, fmt.Sprintf("BROWSER_DRIVER must be %q or %q, got %q", DriverPlaywright, DriverChromedp, c.Driver))
	}

	if u, err := url.Parse(c.TargetURL); err != nil || u.Scheme == "" {
		errs = append(errs, fmt.Sprintf("TARGET_URL must be an absolute URL, got %q", c.TargetURL))
	} else if u.Scheme != "file" && u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Sprintf("TARGET_URL scheme must be file, http or https, got %q", u.Scheme))
	}

	if strings.TrimSpace(c.ArtifactDir) == "" {
		errs = append(errs, "ARTIFACT_DIR is required")
	}

	if c.ActionTimeout <= 0 {
		errs = append(errs, "ACTION_TIMEOUT must be positive")
	}
	if c.NavigationTimeout <= 0 {
		errs = append(errs, "NAVIGATION_TIMEOUT must be positive")
	}
	if c.DialogTimeout <= 0 {
		errs = append(errs, "DIALOG_TIMEOUT must be positive")
	}
	if c.ActionsPerSecond < 0 {
		errs = append(errs, "ACTIONS_PER_SECOND must not be negative")
	}

	if c.ServerPort < 0 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be in [0, 65535], got %d", c.ServerPort))
	}

	if c.ChromeRemoteURL != "" && c.Driver != DriverChromedp {
		errs = append(errs, "CHROME_REMOTE_URL is only supported with BROWSER_DRIVER=chromedp")
	}

	// S3 upload: credentials must come as a pair when given explicitly.
	if c.ArtifactBucket != "" {
		if (c.AWSAccessKeyID == "") != (c.AWSSecretAccessKey == "") {
			errs = append(errs, "AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
		}
		if c.AWSRegion == "" {
			errs = append(errs, "AWS_REGION is required when ARTIFACT_BUCKET is set")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// UploadsEnabled reports whether screenshots are mirrored to object storage.
func (c *Config) UploadsEnabled() bool {
	return c.ArtifactBucket != ""
}

// ServerURL returns the http base URL of the local static server.
func (c *Config) ServerURL() string {
	return fmt.Sprintf("http://localhost:%d/", c.ServerPort)
}

// PrintStartupSummary prints a human-readable summary of the configuration to stderr.
func (c *Config) PrintStartupSummary() {
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "modulista scenario runner starting...")
	fmt.Fprintf(os.Stderr, "  Target:    %s\n", c.TargetURL)
	if c.Driver == DriverChromedp && c.ChromeRemoteURL != "" {
		fmt.Fprintf(os.Stderr, "  Driver:    chromedp (remote: %s)\n", c.ChromeRemoteURL)
	} else {
		fmt.Fprintf(os.Stderr, "  Driver:    %s (headless=%t)\n", c.Driver, c.Headless)
	}
	fmt.Fprintf(os.Stderr, "  Timeouts:  action=%s navigation=%s dialog=%s\n", c.ActionTimeout, c.NavigationTimeout, c.DialogTimeout)
	fmt.Fprintf(os.Stderr, "  Artifacts: %s\n", c.ArtifactDir)
	if c.UploadsEnabled() {
		fmt.Fprintf(os.Stderr, "  Upload:    s3://%s\n", c.ArtifactBucket)
	}
	fmt.Fprintln(os.Stderr, "")
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
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

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) error {
	if v = strings.TrimSpace(v); v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
