package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file %s: %v", path, err)
	}
	return path
}

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	if config.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", config.Server.Port)
	}
	if config.Server.Host != "localhost" {
		t.Errorf("expected default host localhost, got %s", config.Server.Host)
	}
	if config.Storage.Type != "badger" {
		t.Errorf("expected storage type badger, got %s", config.Storage.Type)
	}
	if config.Engine.ClaimRetryAttempts != 8 {
		t.Errorf("expected 8 claim retry attempts, got %d", config.Engine.ClaimRetryAttempts)
	}
	if config.Reaper.Enabled {
		t.Error("reaper should be disabled by default")
	}
	if !config.Metrics.Enabled {
		t.Error("metrics should be enabled by default")
	}
	if config.IsProduction() {
		t.Error("default environment should not be production")
	}
}

func TestLoadFromFilesMergesInOrder(t *testing.T) {
	dir := t.TempDir()

	base := writeConfigFile(t, dir, "base.toml", `
environment = "production"

[server]
port = 9000
host = "0.0.0.0"

[storage.badger]
path = "/tmp/base-data"
`)
	override := writeConfigFile(t, dir, "override.toml", `
[server]
port = 9100

[reaper]
enabled = true
stale_after = "2m"
`)

	config, err := LoadFromFiles(base, override)
	if err != nil {
		t.Fatalf("LoadFromFiles failed: %v", err)
	}

	// Later file wins where both set a value.
	if config.Server.Port != 9100 {
		t.Errorf("expected port 9100 from override, got %d", config.Server.Port)
	}
	// Values only in the earlier file survive.
	if config.Server.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0 from base, got %s", config.Server.Host)
	}
	if config.Storage.Badger.Path != "/tmp/base-data" {
		t.Errorf("expected badger path from base, got %s", config.Storage.Badger.Path)
	}
	// Values in neither file keep their defaults.
	if config.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", config.Logging.Level)
	}
	if !config.Reaper.Enabled {
		t.Error("expected reaper enabled from override")
	}
	if got := config.Reaper.StaleAfterDuration(); got != 2*time.Minute {
		t.Errorf("expected stale_after 2m, got %v", got)
	}
	if !config.IsProduction() {
		t.Error("expected production environment from base file")
	}
}

func TestLoadFromFilesMissingFile(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadFromFilesSkipsEmptyPaths(t *testing.T) {
	config, err := LoadFromFiles("", "")
	if err != nil {
		t.Fatalf("LoadFromFiles with empty paths failed: %v", err)
	}
	if config.Server.Port != 8080 {
		t.Errorf("expected defaults when no files given, got port %d", config.Server.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PACTUM_SERVER_PORT", "7777")
	t.Setenv("PACTUM_BADGER_PATH", "/tmp/env-data")
	t.Setenv("PACTUM_REAPER_ENABLED", "true")
	t.Setenv("PACTUM_ENGINE_CLAIM_RETRY_ATTEMPTS", "3")
	t.Setenv("PACTUM_LOG_OUTPUT", "stdout, file")
	t.Setenv("PACTUM_ENV", "production")

	config, err := LoadFromFiles()
	if err != nil {
		t.Fatalf("LoadFromFiles failed: %v", err)
	}

	if config.Server.Port != 7777 {
		t.Errorf("expected port 7777 from env, got %d", config.Server.Port)
	}
	if config.Storage.Badger.Path != "/tmp/env-data" {
		t.Errorf("expected badger path from env, got %s", config.Storage.Badger.Path)
	}
	if !config.Reaper.Enabled {
		t.Error("expected reaper enabled from env")
	}
	if config.Engine.ClaimRetryAttempts != 3 {
		t.Errorf("expected 3 retry attempts from env, got %d", config.Engine.ClaimRetryAttempts)
	}
	if len(config.Logging.Output) != 2 || config.Logging.Output[0] != "stdout" || config.Logging.Output[1] != "file" {
		t.Errorf("expected comma-split log outputs, got %v", config.Logging.Output)
	}
	if !config.IsProduction() {
		t.Error("expected production from PACTUM_ENV")
	}
}

func TestEnvOverridesIgnoreInvalidValues(t *testing.T) {
	t.Setenv("PACTUM_SERVER_PORT", "not-a-number")
	t.Setenv("PACTUM_ENGINE_CLAIM_RETRY_ATTEMPTS", "-2")
	t.Setenv("PACTUM_REAPER_STALE_AFTER", "not-a-duration")

	config, err := LoadFromFiles()
	if err != nil {
		t.Fatalf("LoadFromFiles failed: %v", err)
	}

	if config.Server.Port != 8080 {
		t.Errorf("invalid port env should be ignored, got %d", config.Server.Port)
	}
	if config.Engine.ClaimRetryAttempts != 8 {
		t.Errorf("non-positive retry attempts should be ignored, got %d", config.Engine.ClaimRetryAttempts)
	}
	if config.Reaper.StaleAfter != "5m" {
		t.Errorf("invalid stale_after should be ignored, got %s", config.Reaper.StaleAfter)
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()

	ApplyFlagOverrides(config, 9999, "example.com")
	if config.Server.Port != 9999 {
		t.Errorf("expected flag port 9999, got %d", config.Server.Port)
	}
	if config.Server.Host != "example.com" {
		t.Errorf("expected flag host example.com, got %s", config.Server.Host)
	}

	// Zero values leave the config untouched.
	ApplyFlagOverrides(config, 0, "")
	if config.Server.Port != 9999 || config.Server.Host != "example.com" {
		t.Error("zero flag values must not override existing config")
	}
}

func TestClaimRetryInterval(t *testing.T) {
	tests := []struct {
		name string
		base string
		want time.Duration
	}{
		{"valid duration", "10ms", 10 * time.Millisecond},
		{"seconds", "1s", time.Second},
		{"empty falls back", "", 5 * time.Millisecond},
		{"garbage falls back", "soon", 5 * time.Millisecond},
		{"negative falls back", "-5ms", 5 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := EngineConfig{ClaimRetryBase: tt.base}
			if got := e.ClaimRetryInterval(); got != tt.want {
				t.Errorf("ClaimRetryInterval(%q) = %v, want %v", tt.base, got, tt.want)
			}
		})
	}
}

func TestStaleAfterDuration(t *testing.T) {
	tests := []struct {
		name       string
		staleAfter string
		want       time.Duration
	}{
		{"valid duration", "90s", 90 * time.Second},
		{"empty falls back", "", 5 * time.Minute},
		{"garbage falls back", "later", 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ReaperConfig{StaleAfter: tt.staleAfter}
			if got := r.StaleAfterDuration(); got != tt.want {
				t.Errorf("StaleAfterDuration(%q) = %v, want %v", tt.staleAfter, got, tt.want)
			}
		})
	}
}

func TestIsProduction(t *testing.T) {
	tests := []struct {
		env  string
		want bool
	}{
		{"production", true},
		{"prod", true},
		{" Production ", true},
		{"development", false},
		{"", false},
	}

	for _, tt := range tests {
		config := &Config{Environment: tt.env}
		if got := config.IsProduction(); got != tt.want {
			t.Errorf("IsProduction(%q) = %v, want %v", tt.env, got, tt.want)
		}
	}
}
