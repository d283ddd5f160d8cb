package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
// Durations are expressed in milliseconds so config files stay plain numbers.
type Config struct {
	// APIBaseURL is the root URL of the remote platform API (no trailing slash).
	APIBaseURL string `json:"api_base_url" yaml:"api_base_url"`

	// TokenHeader is the request header carrying the access token.
	TokenHeader string `json:"token_header,omitempty" yaml:"token_header,omitempty"`

	// UserAgent is sent on every remote call.
	UserAgent string `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`

	// Locale is sent on every remote call and with chat messages.
	Locale string `json:"locale,omitempty" yaml:"locale,omitempty"`

	// RequestTimeoutMS bounds every single remote call.
	RequestTimeoutMS int `json:"request_timeout_ms,omitempty" yaml:"request_timeout_ms,omitempty"`

	// Inter-action delays per feature.
	RequestDelayMS     int `json:"request_delay_ms,omitempty" yaml:"request_delay_ms,omitempty"`
	ChatroomDelayMS    int `json:"chatroom_delay_ms,omitempty" yaml:"chatroom_delay_ms,omitempty"`
	LoungeDelayMS      int `json:"lounge_delay_ms,omitempty" yaml:"lounge_delay_ms,omitempty"`
	UnsubscribeDelayMS int `json:"unsubscribe_delay_ms,omitempty" yaml:"unsubscribe_delay_ms,omitempty"`
	CountryDelayMS     int `json:"country_delay_ms,omitempty" yaml:"country_delay_ms,omitempty"`

	// MessagePartDelayMS separates the comma-separated parts of one chat message.
	MessagePartDelayMS int `json:"message_part_delay_ms,omitempty" yaml:"message_part_delay_ms,omitempty"`

	// EmptyBackoffBaseMS and EmptyBackoffMaxMS shape the exponential backoff after
	// a page with no new candidates: base * 2^(n-1), capped at max.
	EmptyBackoffBaseMS int `json:"empty_backoff_base_ms,omitempty" yaml:"empty_backoff_base_ms,omitempty"`
	EmptyBackoffMaxMS  int `json:"empty_backoff_max_ms,omitempty" yaml:"empty_backoff_max_ms,omitempty"`

	// MaxEmptyBatches is the number of consecutive empty pages after which a worker gives up.
	MaxEmptyBatches int `json:"max_empty_batches,omitempty" yaml:"max_empty_batches,omitempty"`

	// RetryDelayMS is the fixed sleep after an iteration fails unexpectedly.
	RetryDelayMS int `json:"retry_delay_ms,omitempty" yaml:"retry_delay_ms,omitempty"`

	// MaxConsecutiveErrors ends a worker as failed after this many failed iterations in a row.
	MaxConsecutiveErrors int `json:"max_consecutive_errors,omitempty" yaml:"max_consecutive_errors,omitempty"`

	// MaxPerAccount stops a worker as done after this many successful actions. 0 means unlimited.
	MaxPerAccount int `json:"max_per_account,omitempty" yaml:"max_per_account,omitempty"`

	// AccountsPerBatch bounds how many workers of one campaign run at once. 0 means all.
	AccountsPerBatch int `json:"accounts_per_batch,omitempty" yaml:"accounts_per_batch,omitempty"`

	// ReporterIntervalMS is the progress render tick.
	ReporterIntervalMS int `json:"reporter_interval_ms,omitempty" yaml:"reporter_interval_ms,omitempty"`

	// ForceRenderEvery forces a render every Nth tick even when nothing changed.
	ForceRenderEvery int `json:"force_render_every,omitempty" yaml:"force_render_every,omitempty"`

	// ReporterGraceMS lets the last reporter tick settle before it is cancelled.
	ReporterGraceMS int `json:"reporter_grace_ms,omitempty" yaml:"reporter_grace_ms,omitempty"`

	// Regions is the ordered list of nationality codes cycled by the countries campaign.
	Regions []string `json:"regions,omitempty" yaml:"regions,omitempty"`

	// RegionCap is the number of candidates liked per region before advancing.
	RegionCap int `json:"region_cap,omitempty" yaml:"region_cap,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`

	// DashboardAddr, when set, starts the web dashboard next to the MCP server.
	DashboardAddr string `json:"dashboard_addr,omitempty" yaml:"dashboard_addr,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" yaml:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" yaml:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty" yaml:"disabled_tools,omitempty"`

	// DisabledTypes disables every tool of a type ("campaign", "token", "filter", "ledger", "account").
	DisabledTypes []string `json:"disabled_types,omitempty" yaml:"disabled_types,omitempty"`
}

// DefaultRegions is the rotation used when no regions are configured.
var DefaultRegions = []string{"US", "GB", "CA", "AU", "DE", "FR", "NL", "SE", "JP", "KR", "BR", "MX"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		TokenHeader:          "meeff-access-token",
		UserAgent:            "okhttp/5.0.0-alpha.14",
		Locale:               "en",
		RequestTimeoutMS:     15000,
		RequestDelayMS:       4000,
		ChatroomDelayMS:      500,
		LoungeDelayMS:        1000,
		UnsubscribeDelayMS:   500,
		CountryDelayMS:       4000,
		MessagePartDelayMS:   300,
		EmptyBackoffBaseMS:   2000,
		EmptyBackoffMaxMS:    60000,
		MaxEmptyBatches:      10,
		RetryDelayMS:         5000,
		MaxConsecutiveErrors: 5,
		ReporterIntervalMS:   1500,
		ForceRenderEvery:     5,
		ReporterGraceMS:      1000,
		Regions:              append([]string(nil), DefaultRegions...),
		RegionCap:            2,
		LogLevel:             "info",
	}
}

// Load loads configuration from baseDir/config.json, falling back to
// baseDir/config.yaml. Returns default config if neither exists.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.herd.
func Load(baseDir string) (*Config, error) {
	path := filepath.Join(baseDir, "config.json")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		path = filepath.Join(baseDir, "config.yaml")
	}
	return loadFile(path)
}

// LoadWithEnv loads the file config and then applies environment overrides.
// A .env file in workDir is read first; variables already set in the
// process environment win over it.
func LoadWithEnv(baseDir, workDir string) (*Config, error) {
	cfg, err := Load(baseDir)
	if err != nil {
		return nil, err
	}
	envPath := filepath.Join(workDir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("load %s: %w", envPath, err)
		}
	}
	return ApplyEnv(cfg), nil
}

// ApplyEnv overlays HERD_* environment variables onto cfg.
func ApplyEnv(cfg *Config) *Config {
	if v := strings.TrimSpace(os.Getenv("HERD_API_BASE_URL")); v != "" {
		cfg.APIBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("HERD_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("HERD_DASHBOARD_ADDR")); v != "" {
		cfg.DashboardAddr = v
	}
	return cfg
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated,
// except Regions, where a non-empty overlay replaces the base order.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.APIBaseURL = pickString(overlay.APIBaseURL, base.APIBaseURL)
	result.TokenHeader = pickString(overlay.TokenHeader, base.TokenHeader)
	result.UserAgent = pickString(overlay.UserAgent, base.UserAgent)
	result.Locale = pickString(overlay.Locale, base.Locale)
	result.LogLevel = pickString(overlay.LogLevel, base.LogLevel)
	result.DashboardAddr = pickString(overlay.DashboardAddr, base.DashboardAddr)

	result.RequestTimeoutMS = pickInt(overlay.RequestTimeoutMS, base.RequestTimeoutMS)
	result.RequestDelayMS = pickInt(overlay.RequestDelayMS, base.RequestDelayMS)
	result.ChatroomDelayMS = pickInt(overlay.ChatroomDelayMS, base.ChatroomDelayMS)
	result.LoungeDelayMS = pickInt(overlay.LoungeDelayMS, base.LoungeDelayMS)
	result.UnsubscribeDelayMS = pickInt(overlay.UnsubscribeDelayMS, base.UnsubscribeDelayMS)
	result.CountryDelayMS = pickInt(overlay.CountryDelayMS, base.CountryDelayMS)
	result.MessagePartDelayMS = pickInt(overlay.MessagePartDelayMS, base.MessagePartDelayMS)
	result.EmptyBackoffBaseMS = pickInt(overlay.EmptyBackoffBaseMS, base.EmptyBackoffBaseMS)
	result.EmptyBackoffMaxMS = pickInt(overlay.EmptyBackoffMaxMS, base.EmptyBackoffMaxMS)
	result.MaxEmptyBatches = pickInt(overlay.MaxEmptyBatches, base.MaxEmptyBatches)
	result.RetryDelayMS = pickInt(overlay.RetryDelayMS, base.RetryDelayMS)
	result.MaxConsecutiveErrors = pickInt(overlay.MaxConsecutiveErrors, base.MaxConsecutiveErrors)
	result.MaxPerAccount = pickInt(overlay.MaxPerAccount, base.MaxPerAccount)
	result.AccountsPerBatch = pickInt(overlay.AccountsPerBatch, base.AccountsPerBatch)
	result.ReporterIntervalMS = pickInt(overlay.ReporterIntervalMS, base.ReporterIntervalMS)
	result.ForceRenderEvery = pickInt(overlay.ForceRenderEvery, base.ForceRenderEvery)
	result.ReporterGraceMS = pickInt(overlay.ReporterGraceMS, base.ReporterGraceMS)
	result.RegionCap = pickInt(overlay.RegionCap, base.RegionCap)
	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.Regions = normalizeRegions(overlay.Regions)
	if len(result.Regions) == 0 {
		result.Regions = normalizeRegions(base.Regions)
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

// Duration converts a millisecond config value to a time.Duration.
func Duration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// RequestTimeout returns the per-call remote timeout.
func (c *Config) RequestTimeout() time.Duration { return Duration(c.RequestTimeoutMS) }

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return strings.TrimSpace(overlay)
	}
	return base
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// normalizeRegions upper-cases, trims and dedupes region codes, keeping order.
func normalizeRegions(regions []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(regions))
	for _, r := range regions {
		r = strings.ToUpper(strings.TrimSpace(r))
		if r != "" && !seen[r] {
			seen[r] = true
			result = append(result, r)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
