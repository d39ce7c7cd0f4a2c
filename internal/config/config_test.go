package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestValidate_DefaultsPass(t *testing.T) {
	t.Parallel()
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got: %v", err)
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	t.Parallel()
	cfg := Defaults()
	cfg.Driver = "selenium"
	cfg.TargetURL = "localhost:8081"
	cfg.ArtifactDir = " "
	cfg.ActionTimeout = 0
	cfg.ServerPort = 70000
	cfg.ChromeRemoteURL = "ws://127.0.0.1:9222"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, expected := range []string{
		"BROWSER_DRIVER",
		"TARGET_URL",
		"ARTIFACT_DIR",
		"ACTION_TIMEOUT",
		"SERVER_PORT",
		"CHROME_REMOTE_URL",
	} {
		if !strings.Contains(msg, expected) {
			t.Fatalf("expected validation error to mention %q, got: %v", expected, err)
		}
	}
}

func TestValidate_UploadCredentialsComeInPairs(t *testing.T) {
	t.Parallel()
	cfg := Defaults()
	cfg.ArtifactBucket = "screens"
	cfg.AWSAccessKeyID = "key-only"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "AWS_SECRET_ACCESS_KEY") {
		t.Fatalf("expected paired-credential error, got %v", err)
	}
	cfg.AWSSecretAccessKey = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid upload config, got %v", err)
	}
	if !cfg.UploadsEnabled() {
		t.Fatal("UploadsEnabled should be true with a bucket")
	}
}

func testValidate_TargetSchemes(t *rapid.T) {
	scheme := rapid.SampledFrom([]string{"file", "http", "https", "ftp", "ws", "chrome"}).Draw(t, "scheme")
	cfg := Defaults()
	cfg.TargetURL = scheme + "://localhost/app/index.html"

	err := cfg.Validate()
	allowed := scheme == "file" || scheme == "http" || scheme == "https"
	if allowed && err != nil {
		t.Fatalf("scheme %q should be accepted: %v", scheme, err)
	}
	if !allowed && err == nil {
		t.Fatalf("scheme %q should be rejected", scheme)
	}
}

func TestValidate_TargetSchemes(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testValidate_TargetSchemes)
}

func TestLoadConfig_PrecedenceFileEnvOption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runner.toml")
	content := `
metrics_file = "/tmp/metrics.prom"

[target]
url = "file:///srv/app/index.html"
artifact_dir = "from-file"

[browser]
driver = "chromedp"
headless = false
action_timeout = "7s"
dialog_timeout = "3s"

[server]
port = 9000
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ARTIFACT_DIR", "from-env")
	t.Setenv("DIALOG_TIMEOUT", "4s")

	cfg, err := LoadConfig(path, func(c *Config) { c.DialogTimeout = 6 * time.Second })
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.TargetURL != "file:///srv/app/index.html" {
		t.Fatalf("TargetURL = %q", cfg.TargetURL)
	}
	if cfg.ArtifactDir != "from-env" {
		t.Fatalf("env should override file: ArtifactDir = %q", cfg.ArtifactDir)
	}
	if cfg.Driver != DriverChromedp || cfg.Headless {
		t.Fatalf("browser settings not read from file: driver=%q headless=%t", cfg.Driver, cfg.Headless)
	}
	if cfg.ActionTimeout != 7*time.Second {
		t.Fatalf("ActionTimeout = %s", cfg.ActionTimeout)
	}
	if cfg.DialogTimeout != 6*time.Second {
		t.Fatalf("option should override env: DialogTimeout = %s", cfg.DialogTimeout)
	}
	if cfg.ServerPort != 9000 || cfg.ServerURL() != "http://localhost:9000/" {
		t.Fatalf("ServerPort = %d, ServerURL = %q", cfg.ServerPort, cfg.ServerURL())
	}
	if cfg.MetricsFile != "/tmp/metrics.prom" {
		t.Fatalf("MetricsFile = %q", cfg.MetricsFile)
	}
}

func TestLoadConfig_BadDurationInFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(path, []byte("[browser]\naction_timeout = \"soon\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "browser.action_timeout") {
		t.Fatalf("expected action_timeout parse error, got %v", err)
	}
}

func TestLoadConfig_InvalidEnvDurationFallsBackToDefault(t *testing.T) {
	t.Setenv("ACTION_TIMEOUT", "not-a-duration")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ActionTimeout != Defaults().ActionTimeout {
		t.Fatalf("ActionTimeout = %s, want default", cfg.ActionTimeout)
	}
}
