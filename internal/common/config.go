package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Queue       QueueConfig     `toml:"queue"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Browser     BrowserConfig   `toml:"browser"`
	Login       LoginConfig     `toml:"login"`
	Gemini      GeminiConfig    `toml:"gemini"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Sessions    SessionsConfig  `toml:"sessions"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// QueueConfig controls per-tenant scheduling behavior
type QueueConfig struct {
	TenantConcurrency  int    `toml:"tenant_concurrency" validate:"min=1"` // Max concurrent jobs per tenant
	JobTimeout         string `toml:"job_timeout"`                         // Hard wall-clock timeout per job, e.g. "60s"
	ScreenshotInterval string `toml:"screenshot_interval"`                 // Live screenshot capture interval, e.g. "500ms"
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// BrowserConfig controls the cached chromedp sessions
type BrowserConfig struct {
	UserAgent    string `toml:"user_agent"`
	Headless     bool   `toml:"headless"`
	DisableGPU   bool   `toml:"disable_gpu"`
	NoSandbox    bool   `toml:"no_sandbox"`
	IdleTTL      string `toml:"idle_ttl"`      // Evict cached sessions unused longer than this
	ProbeTimeout string `toml:"probe_timeout"` // Startup probe timeout for new sessions
}

// LoginConfig controls the login state machine
type LoginConfig struct {
	MaxCaptchaAttempts int    `toml:"max_captcha_attempts" validate:"min=1"` // Total captcha rounds before giving up
	CaptchaBackoff     string `toml:"captcha_backoff"`                       // Wait between captcha rounds, e.g. "3s"
	NavigationTimeout  string `toml:"navigation_timeout"`                    // Per-step browser deadline
}

// GeminiConfig contains Google Gemini API configuration for captcha solving
type GeminiConfig struct {
	APIKey  string `toml:"api_key"` // Google Gemini API key
	Model   string `toml:"model"`   // Vision-capable model (default: "gemini-2.0-flash")
	Timeout string `toml:"timeout"` // Solve call timeout as duration string (default: "30s")
}

// WebSocketConfig contains configuration for the status/screenshot broadcaster
type WebSocketConfig struct {
	MinLevel        string   `toml:"min_level"`        // Minimum log level to broadcast ("debug", "info", "warn", "error")
	ExcludePatterns []string `toml:"exclude_patterns"` // Log message patterns to exclude from broadcasting
	// Throttle intervals for high-frequency events. Map of event type to duration string.
	// Example: {"screenshot": "500ms"}
	ThrottleIntervals map[string]string `toml:"throttle_intervals"`
}

// SessionsConfig controls persisted-session maintenance
type SessionsConfig struct {
	SweepSchedule string `toml:"sweep_schedule"` // Cron schedule for expiry sweep (default: every 5 minutes)
}

// DefaultConfig returns configuration defaults applied before file/env loading
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8190,
			Host: "localhost",
		},
		Queue: QueueConfig{
			TenantConcurrency:  3,
			JobTimeout:         "60s",
			ScreenshotInterval: "500ms",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/panelops",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Browser: BrowserConfig{
			UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
			Headless:     true,
			DisableGPU:   true,
			NoSandbox:    true,
			IdleTTL:      "30m",
			ProbeTimeout: "30s",
		},
		Login: LoginConfig{
			MaxCaptchaAttempts: 5,
			CaptchaBackoff:     "3s",
			NavigationTimeout:  "20s",
		},
		Gemini: GeminiConfig{
			Model:   "gemini-2.0-flash",
			Timeout: "30s",
		},
		WebSocket: WebSocketConfig{
			MinLevel: "info",
			ThrottleIntervals: map[string]string{
				"screenshot": "500ms",
			},
		},
		Sessions: SessionsConfig{
			SweepSchedule: "*/5 * * * *",
		},
	}
}

// LoadFromFiles loads configuration from defaults, then the given TOML files in
// order (later files override earlier ones), then environment variables.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// ValidateConfig checks configuration invariants before startup
func ValidateConfig(config *Config) error {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Duration fields are strings in TOML; fail fast on unparseable values
	durations := map[string]string{
		"queue.job_timeout":         config.Queue.JobTimeout,
		"queue.screenshot_interval": config.Queue.ScreenshotInterval,
		"browser.idle_ttl":          config.Browser.IdleTTL,
		"browser.probe_timeout":     config.Browser.ProbeTimeout,
		"login.captcha_backoff":     config.Login.CaptchaBackoff,
		"login.navigation_timeout":  config.Login.NavigationTimeout,
		"gemini.timeout":            config.Gemini.Timeout,
	}
	for key, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %q", key, value)
		}
	}

	return nil
}

// ApplyFlagOverrides applies command-line overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// applyEnvOverrides applies PANELOPS_-prefixed environment variables
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("PANELOPS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("PANELOPS_SERVER_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("PANELOPS_LOG_LEVEL"); v != "" {
		config.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("PANELOPS_STORAGE_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("PANELOPS_GEMINI_API_KEY"); v != "" {
		config.Gemini.APIKey = v
	}
	if v := os.Getenv("PANELOPS_BROWSER_HEADLESS"); v != "" {
		config.Browser.Headless = v != "false" && v != "0"
	}
}

// JobTimeoutDuration returns the parsed per-job timeout
func (c *QueueConfig) JobTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.JobTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// ScreenshotIntervalDuration returns the parsed screenshot capture interval
func (c *QueueConfig) ScreenshotIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.ScreenshotInterval)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}
