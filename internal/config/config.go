package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vertextoedge/sonix-downloader/internal/domain/vo"
)

// EnvPrefix prefixes environment overrides, e.g. SONIX_DOWNLOAD_ROOT_DIR
const EnvPrefix = "SONIX"

// Config represents the entire application configuration
type Config struct {
	Download    DownloadConfig    `mapstructure:"download"`
	Remote      RemoteConfig      `mapstructure:"remote"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	History     HistoryConfig     `mapstructure:"history"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// DownloadConfig contains session engine settings
type DownloadConfig struct {
	RootDir             string `mapstructure:"root_dir"`
	Policy              string `mapstructure:"policy"`
	BufferSizeKB        int    `mapstructure:"buffer_size_kb"`
	CancelWait          string `mapstructure:"cancel_wait"`
	ProgressLogInterval string `mapstructure:"progress_log_interval"`
	MinFreeSpaceMB      int    `mapstructure:"min_free_space_mb"`
}

// RemoteConfig contains settings for fetching remote files
type RemoteConfig struct {
	ResponseHeaderTimeout string `mapstructure:"response_header_timeout"`
	IdleConnTimeout       string `mapstructure:"idle_conn_timeout"`
	UserAgent             string `mapstructure:"user_agent"`
}

// HTTPConfig contains HTTP server configuration
type HTTPConfig struct {
	BindAddr     string `mapstructure:"bind_addr"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	IdleTimeout  string `mapstructure:"idle_timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// HistoryConfig contains transfer history database settings
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	CacheSizeMB   int    `mapstructure:"cache_size_mb"`
	BusyTimeoutMs int    `mapstructure:"busy_timeout_ms"`
}

// MaintenanceConfig contains periodic cleanup settings
type MaintenanceConfig struct {
	CleanupInterval  string `mapstructure:"cleanup_interval"`
	StalePartMaxAge  string `mapstructure:"stale_part_max_age"`
	TerminalEntryTTL string `mapstructure:"terminal_entry_ttl"`
	HistoryMaxAge    string `mapstructure:"history_max_age"`
}

// Load loads configuration from the specified file path.
// An empty path loads defaults and environment overrides only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// PORT is honored for container deployments that only set a port
	if port := os.Getenv("PORT"); port != "" && os.Getenv(EnvPrefix+"_HTTP_BIND_ADDR") == "" {
		v.Set("http.bind_addr", "0.0.0.0:"+port)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("download.root_dir", "./downloads")
	v.SetDefault("download.policy", "resume")
	v.SetDefault("download.buffer_size_kb", 64)
	v.SetDefault("download.cancel_wait", "5s")
	v.SetDefault("download.progress_log_interval", "5s")
	v.SetDefault("download.min_free_space_mb", 0)
	v.SetDefault("remote.response_header_timeout", "30s")
	v.SetDefault("remote.idle_conn_timeout", "90s")
	v.SetDefault("remote.user_agent", "sonix-downloader/1.0")
	v.SetDefault("http.bind_addr", "0.0.0.0:3000")
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "60s")
	v.SetDefault("http.idle_timeout", "120s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "")
	v.SetDefault("history.cache_size_mb", 16)
	v.SetDefault("history.busy_timeout_ms", 5000)
	v.SetDefault("maintenance.cleanup_interval", "1h")
	v.SetDefault("maintenance.stale_part_max_age", "168h")
	v.SetDefault("maintenance.terminal_entry_ttl", "24h")
	v.SetDefault("maintenance.history_max_age", "720h")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate download config
	if c.Download.RootDir == "" {
		return errors.New("download.root_dir is required")
	}
	switch strings.ToLower(c.Download.Policy) {
	case "resume", "direct":
		// Valid policies
	default:
		return fmt.Errorf("invalid download.policy: %s (use resume or direct)", c.Download.Policy)
	}
	if c.Download.BufferSizeKB < 1 || c.Download.BufferSizeKB > 16*1024 {
		return fmt.Errorf("download.buffer_size_kb must be between 1 and 16384")
	}
	if c.Download.MinFreeSpaceMB < 0 {
		return fmt.Errorf("download.min_free_space_mb cannot be negative")
	}

	durations := map[string]string{
		"download.cancel_wait":           c.Download.CancelWait,
		"download.progress_log_interval": c.Download.ProgressLogInterval,
		"remote.response_header_timeout": c.Remote.ResponseHeaderTimeout,
		"remote.idle_conn_timeout":       c.Remote.IdleConnTimeout,
		"http.read_timeout":              c.HTTP.ReadTimeout,
		"http.write_timeout":             c.HTTP.WriteTimeout,
		"http.idle_timeout":              c.HTTP.IdleTimeout,
		"maintenance.cleanup_interval":   c.Maintenance.CleanupInterval,
		"maintenance.stale_part_max_age": c.Maintenance.StalePartMaxAge,
		"maintenance.terminal_entry_ttl": c.Maintenance.TerminalEntryTTL,
		"maintenance.history_max_age":    c.Maintenance.HistoryMaxAge,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	if c.HTTP.BindAddr == "" {
		return errors.New("http.bind_addr is required")
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// GetHistoryPath returns the history database path, defaulting into the download root
func (c *Config) GetHistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(c.Download.RootDir, ".sonix", "history.db")
}

// GetBufferSize returns the chunk buffer size in bytes
func (c *DownloadConfig) GetBufferSize() int {
	if c.BufferSizeKB <= 0 {
		return 64 * 1024
	}
	return c.BufferSizeKB * 1024
}

// GetMinFreeBytes returns the reserved free space in bytes
func (c *DownloadConfig) GetMinFreeBytes() uint64 {
	if c.MinFreeSpaceMB <= 0 {
		return 0
	}
	return uint64(vo.FileSizeFromMB(int64(c.MinFreeSpaceMB)).Bytes())
}

// GetCancelWait returns how long cancel waits for a session to stop
func (c *DownloadConfig) GetCancelWait() time.Duration {
	return parseDuration(c.CancelWait, 5*time.Second)
}

// GetProgressLogInterval returns the minimum interval between progress log lines
func (c *DownloadConfig) GetProgressLogInterval() time.Duration {
	return parseDuration(c.ProgressLogInterval, 5*time.Second)
}

// GetResponseHeaderTimeout returns the remote response header timeout
func (c *RemoteConfig) GetResponseHeaderTimeout() time.Duration {
	return parseDuration(c.ResponseHeaderTimeout, 30*time.Second)
}

// GetIdleConnTimeout returns the remote idle connection timeout
func (c *RemoteConfig) GetIdleConnTimeout() time.Duration {
	return parseDuration(c.IdleConnTimeout, 90*time.Second)
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	return parseDuration(c.ReadTimeout, 30*time.Second)
}

// GetWriteTimeout returns the write timeout as time.Duration
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	return parseDuration(c.WriteTimeout, 60*time.Second)
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	return parseDuration(c.IdleTimeout, 120*time.Second)
}

// GetCleanupInterval returns the cleanup interval as time.Duration
func (c *MaintenanceConfig) GetCleanupInterval() time.Duration {
	return parseDuration(c.CleanupInterval, time.Hour)
}

// GetStalePartMaxAge returns the age after which untracked partial files are removed
func (c *MaintenanceConfig) GetStalePartMaxAge() time.Duration {
	return parseDuration(c.StalePartMaxAge, 7*24*time.Hour)
}

// GetTerminalEntryTTL returns how long finished entries stay in the store
func (c *MaintenanceConfig) GetTerminalEntryTTL() time.Duration {
	return parseDuration(c.TerminalEntryTTL, 24*time.Hour)
}

// GetHistoryMaxAge returns the maximum age of history rows
func (c *MaintenanceConfig) GetHistoryMaxAge() time.Duration {
	return parseDuration(c.HistoryMaxAge, 30*24*time.Hour)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, _ := time.ParseDuration(value)
	if d <= 0 {
		return fallback
	}
	return d
}
