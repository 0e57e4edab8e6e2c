package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds every tunable the service reads at startup. Values are
// resolved in priority order: defaults, then TOML files, then PACTUM_*
// environment variables, then command-line flags.
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Engine      EngineConfig    `toml:"engine"`
	Logging     LoggingConfig   `toml:"logging"`
	Reaper      ReaperConfig    `toml:"reaper"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Metrics     MetricsConfig   `toml:"metrics"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Type   string       `toml:"type"` // Only "badger" is supported
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig locates the on-disk store. ResetOnStartup wipes it before
// opening, which integration runs use to start from a clean slate.
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

// EngineConfig tunes the transactional claim path
type EngineConfig struct {
	ClaimRetryAttempts int    `toml:"claim_retry_attempts"` // Bounded retries when a transaction loses a conflict
	ClaimRetryBase     string `toml:"claim_retry_base"`     // Initial backoff interval, e.g. "5ms"
}

// ClaimRetryInterval parses the configured backoff base, falling back to the
// default when the value is missing or malformed.
func (e EngineConfig) ClaimRetryInterval() time.Duration {
	d, err := time.ParseDuration(e.ClaimRetryBase)
	if err != nil || d <= 0 {
		return 5 * time.Millisecond
	}
	return d
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // any of "stdout", "file"
	TimeFormat string   `toml:"time_format"` // timestamp layout, defaults to "15:04:05.000"
}

// ReaperConfig controls the optional stale-commitment sweep. Disabled by
// default: running contracts never expire unless an operator opts in.
type ReaperConfig struct {
	Enabled    bool   `toml:"enabled"`
	Schedule   string `toml:"schedule"`    // cron expression, every minute when unset
	StaleAfter string `toml:"stale_after"` // heartbeat silence before a running contract is errored, e.g. "5m"
}

// StaleAfterDuration parses the stale_after window with a 5 minute fallback.
func (r ReaperConfig) StaleAfterDuration() time.Duration {
	d, err := time.ParseDuration(r.StaleAfter)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// WebSocketConfig shapes the dashboard event stream.
type WebSocketConfig struct {
	// Event types forwarded to connected sockets. Empty means everything.
	AllowedEvents []string `toml:"allowed_events"`
	// Minimum interval between heartbeat broadcasts so chatty workers cannot
	// flood connected dashboards. Example: "1s"
	HeartbeatThrottle string `toml:"heartbeat_throttle"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// NewDefaultConfig returns the baseline every load starts from. Anything an
// operator is expected to touch has a TOML key; purely internal knobs keep
// their defaults here.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Type: "badger",
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Engine: EngineConfig{
			ClaimRetryAttempts: 8, // headroom for bursts of concurrent claimers
			ClaimRetryBase:     "5ms",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Reaper: ReaperConfig{
			Enabled:    false,
			Schedule:   "* * * * *",
			StaleAfter: "5m",
		},
		WebSocket: WebSocketConfig{
			AllowedEvents:     []string{},
			HeartbeatThrottle: "1s",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// LoadFromFile resolves configuration from a single optional file. An empty
// path loads defaults plus environment overrides.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles merges zero or more TOML files over the defaults, later
// files winning, then layers environment overrides on top. Flag overrides
// are applied separately by the caller since only it sees the flags.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshalling into the same struct merges: keys present in the
		// file replace what earlier layers set, absent keys are untouched.
		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides layers PACTUM_* environment variables over whatever the
// files produced. Unparseable values are ignored rather than failing startup.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PACTUM_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("PACTUM_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("PACTUM_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if badgerPath := os.Getenv("PACTUM_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if reset := os.Getenv("PACTUM_BADGER_RESET_ON_STARTUP"); reset != "" {
		if r, err := strconv.ParseBool(reset); err == nil {
			config.Storage.Badger.ResetOnStartup = r
		}
	}

	if attempts := os.Getenv("PACTUM_ENGINE_CLAIM_RETRY_ATTEMPTS"); attempts != "" {
		if a, err := strconv.Atoi(attempts); err == nil && a > 0 {
			config.Engine.ClaimRetryAttempts = a
		}
	}
	if base := os.Getenv("PACTUM_ENGINE_CLAIM_RETRY_BASE"); base != "" {
		if _, err := time.ParseDuration(base); err == nil {
			config.Engine.ClaimRetryBase = base
		}
	}

	if level := os.Getenv("PACTUM_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("PACTUM_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("PACTUM_LOG_OUTPUT"); output != "" {
		if outputs := splitCSV(output); len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if enabled := os.Getenv("PACTUM_REAPER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Reaper.Enabled = e
		}
	}
	if schedule := os.Getenv("PACTUM_REAPER_SCHEDULE"); schedule != "" {
		config.Reaper.Schedule = schedule
	}
	if staleAfter := os.Getenv("PACTUM_REAPER_STALE_AFTER"); staleAfter != "" {
		if _, err := time.ParseDuration(staleAfter); err == nil {
			config.Reaper.StaleAfter = staleAfter
		}
	}

	if allowedEvents := os.Getenv("PACTUM_WEBSOCKET_ALLOWED_EVENTS"); allowedEvents != "" {
		if events := splitCSV(allowedEvents); len(events) > 0 {
			config.WebSocket.AllowedEvents = events
		}
	}
	if throttle := os.Getenv("PACTUM_WEBSOCKET_HEARTBEAT_THROTTLE"); throttle != "" {
		if _, err := time.ParseDuration(throttle); err == nil {
			config.WebSocket.HeartbeatThrottle = throttle
		}
	}

	if enabled := os.Getenv("PACTUM_METRICS_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Metrics.Enabled = e
		}
	}
}

// splitCSV breaks a comma-separated env value into trimmed, non-empty parts.
func splitCSV(value string) []string {
	parts := []string{}
	for _, p := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// ApplyFlagOverrides gives command-line flags the final say on the listen
// address. Zero values mean the flag was not set and leave config alone.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// IsProduction reports whether the resolved environment is production.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
