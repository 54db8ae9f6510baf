package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Config is the root configuration for webchat.
type Config struct {
	General GeneralConfig `json:"general"`
	Browser BrowserConfig `json:"browser"`
	Site    SiteConfig    `json:"site"`
	Detect  DetectConfig  `json:"detect"`
	Display DisplayConfig `json:"display"`
	Relay   RelayConfig   `json:"relay"`
	Stats   StatsConfig   `json:"stats"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`
	LogFile  string `json:"logFile,omitempty"` // optional log file path
}

type BrowserConfig struct {
	Engine              string `json:"engine"`             // "chromedp" | "rod"
	ExecPath            string `json:"execPath,omitempty"` // empty = auto-detect
	ProfileDir          string `json:"profileDir"`
	Headless            bool   `json:"headless"`
	Stealth             bool   `json:"stealth,omitempty"` // rod only
	ReadyTimeoutSeconds int    `json:"readyTimeoutSeconds"`
}

type SiteConfig struct {
	Profile     string            `json:"profile"`               // built-in or user profile name
	ProfilesDir string            `json:"profilesDir,omitempty"` // directory of *.yaml site profiles
	Selectors   map[string]string `json:"selectors,omitempty"`   // override profile selectors
}

// DetectConfig tunes response completion detection.
type DetectConfig struct {
	PollIntervalMs  int `json:"pollIntervalMs"`
	StableTicks     int `json:"stableTicks"`
	MinLength       int `json:"minLength"`
	TimeoutSeconds  int `json:"timeoutSeconds"`
	FallbackMinLine int `json:"fallbackMinLine"`
}

func (d DetectConfig) PollInterval() time.Duration {
	return time.Duration(d.PollIntervalMs) * time.Millisecond
}

func (d DetectConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

type DisplayConfig struct {
	Markdown bool   `json:"markdown"`        // render answers as markdown when stdout is a terminal
	Label    string `json:"label,omitempty"` // overrides the site label in front of answers
}

// RelayConfig configures the HTTP relay server and its client.
type RelayConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	AccessKey string `json:"accessKey,omitempty"`
	URL       string `json:"url,omitempty"` // base URL used by `webchat ask`
}

// Addr returns the listen address.
func (r RelayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// BaseURL returns the URL clients should call.
func (r RelayConfig) BaseURL() string {
	if r.URL != "" {
		return strings.TrimRight(r.URL, "/")
	}
	host := r.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, r.Port)
}

// StatsConfig configures the detection telemetry store.
type StatsConfig struct {
	Enabled bool   `json:"enabled"`
	DBPath  string `json:"dbPath"`
}

// DefaultConfigDir returns the default config directory (~/.webchat).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".webchat"
	}
	return filepath.Join(home, ".webchat")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Browser.ProfileDir = ExpandPath(cfg.Browser.ProfileDir)
	cfg.Browser.ExecPath = ExpandPath(cfg.Browser.ExecPath)
	cfg.Site.ProfilesDir = ExpandPath(cfg.Site.ProfilesDir)
	cfg.Stats.DBPath = ExpandPath(cfg.Stats.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	// 0600: the file may hold the relay access key.
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	switch cfg.Browser.Engine {
	case "chromedp", "rod":
	default:
		errs = append(errs, "browser.engine must be one of: chromedp, rod")
	}
	if cfg.Browser.Stealth && cfg.Browser.Engine != "rod" {
		errs = append(errs, "browser.stealth requires browser.engine=rod")
	}
	if cfg.Browser.ReadyTimeoutSeconds < 1 {
		errs = append(errs, "browser.readyTimeoutSeconds must be >= 1")
	}

	if cfg.Site.Profile == "" {
		errs = append(errs, "site.profile is required")
	}

	if cfg.Detect.PollIntervalMs < 10 || cfg.Detect.PollIntervalMs > 60000 {
		errs = append(errs, "detect.pollIntervalMs must be between 10 and 60000")
	}
	if cfg.Detect.StableTicks < 1 {
		errs = append(errs, "detect.stableTicks must be >= 1")
	}
	if cfg.Detect.MinLength < 0 {
		errs = append(errs, "detect.minLength must be >= 0")
	}
	if cfg.Detect.TimeoutSeconds < 1 || cfg.Detect.TimeoutSeconds > 3600 {
		errs = append(errs, "detect.timeoutSeconds must be between 1 and 3600")
	}
	if cfg.Detect.FallbackMinLine < 0 {
		errs = append(errs, "detect.fallbackMinLine must be >= 0")
	}

	if cfg.Relay.Port < 0 || cfg.Relay.Port > 65535 {
		errs = append(errs, "relay.port must be between 0 and 65535")
	}

	if cfg.Stats.Enabled && cfg.Stats.DBPath == "" {
		errs = append(errs, "stats.dbPath is required when stats are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
