// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

const defaultPrivateKey = "88888888888888888888888888888888"

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName               string   `mapstructure:"appname"`
	AppPort               string   `mapstructure:"appport"`
	Environment           string   `mapstructure:"environment"`
	LogLevel              LogLevel `mapstructure:"loglevel"`
	PrivateKey            string   `mapstructure:"privatekey"`
	SessionTimeoutSeconds int      `mapstructure:"sessiontimeoutseconds"`
	SiteDomain            string   `mapstructure:"sitedomain"`
	PublicDirectory       string   `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string   `mapstructure:"publicassetsurlprefix"`
	ExcludedIPs           string   `mapstructure:"excludedips"`

	// File paths
	DatabasePath string `mapstructure:"storagepath"`
	DatabaseName string `mapstructure:"-"` // Derived from other settings
	GeoDBPath    string `mapstructure:"geodbpath"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseMaxOpenConns int `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int `mapstructure:"dbmaxidleconns"`

	// Stats settings
	StatsDefaultLimit int `mapstructure:"statsdefaultlimit"`
	StatsWorkers      int `mapstructure:"statsworkers"`

	// Event archive (ClickHouse), disabled when the address is empty
	ClickHouseAddr           string `mapstructure:"clickhouseaddr"`
	ClickHouseDatabase       string `mapstructure:"clickhousedatabase"`
	ClickHouseUsername       string `mapstructure:"clickhouseusername"`
	ClickHousePassword       string `mapstructure:"clickhousepassword"`
	ArchiveBatchSize         int    `mapstructure:"archivebatchsize"`
	ArchiveBufferSize        int    `mapstructure:"archivebuffersize"`
	ArchiveFlushIntervalSecs int    `mapstructure:"archiveflushintervalseconds"`

	// Job scheduling settings
	JobIntervalSeconds        int `mapstructure:"jobintervalseconds"`
	CheckpointIntervalMinutes int `mapstructure:"checkpointintervalminutes"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "guidestats")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", defaultPrivateKey)
		v.SetDefault("sessiontimeoutseconds", 1800)
		v.SetDefault("sitedomain", "")
		v.SetDefault("excludedips", "")
		v.SetDefault("publicdir", "web/dist")
		v.SetDefault("publicassetsurlprefix", "/")
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "storage/GeoLite2-City.mmdb")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("statsdefaultlimit", 10)
		v.SetDefault("statsworkers", 4)
		v.SetDefault("clickhouseaddr", "")
		v.SetDefault("clickhousedatabase", "guidestats")
		v.SetDefault("clickhouseusername", "default")
		v.SetDefault("clickhousepassword", "")
		v.SetDefault("archivebatchsize", 500)
		v.SetDefault("archivebuffersize", 10000)
		v.SetDefault("archiveflushintervalseconds", 10)
		v.SetDefault("jobintervalseconds", 60)
		v.SetDefault("checkpointintervalminutes", 30)

		v.BindEnv("appname", "GUIDESTATS_APP_NAME")
		v.BindEnv("appport", "GUIDESTATS_APP_PORT")
		v.BindEnv("environment", "GUIDESTATS_ENV")
		v.BindEnv("loglevel", "GUIDESTATS_LOG_LEVEL")
		v.BindEnv("privatekey", "GUIDESTATS_PRIVATE_KEY")
		v.BindEnv("sessiontimeoutseconds", "GUIDESTATS_SESSION_TIMEOUT_SECONDS")
		v.BindEnv("sitedomain", "GUIDESTATS_SITE_DOMAIN")
		v.BindEnv("excludedips", "GUIDESTATS_EXCLUDED_IPS")
		v.BindEnv("publicdir", "GUIDESTATS_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "GUIDESTATS_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("storagepath", "GUIDESTATS_STORAGE_PATH")
		v.BindEnv("geodbpath", "GUIDESTATS_GEO_DB_PATH")
		v.BindEnv("logsdir", "GUIDESTATS_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "GUIDESTATS_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "GUIDESTATS_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "GUIDESTATS_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbmaxopenconns", "GUIDESTATS_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "GUIDESTATS_DB_MAX_IDLE_CONNS")
		v.BindEnv("statsdefaultlimit", "GUIDESTATS_STATS_DEFAULT_LIMIT")
		v.BindEnv("statsworkers", "GUIDESTATS_STATS_WORKERS")
		v.BindEnv("clickhouseaddr", "GUIDESTATS_CLICKHOUSE_ADDR")
		v.BindEnv("clickhousedatabase", "GUIDESTATS_CLICKHOUSE_DATABASE")
		v.BindEnv("clickhouseusername", "GUIDESTATS_CLICKHOUSE_USERNAME")
		v.BindEnv("clickhousepassword", "GUIDESTATS_CLICKHOUSE_PASSWORD")
		v.BindEnv("archivebatchsize", "GUIDESTATS_ARCHIVE_BATCH_SIZE")
		v.BindEnv("archivebuffersize", "GUIDESTATS_ARCHIVE_BUFFER_SIZE")
		v.BindEnv("archiveflushintervalseconds", "GUIDESTATS_ARCHIVE_FLUSH_INTERVAL_SECONDS")
		v.BindEnv("jobintervalseconds", "GUIDESTATS_JOB_INTERVAL_SECONDS")
		v.BindEnv("checkpointintervalminutes", "GUIDESTATS_CHECKPOINT_INTERVAL_MINUTES")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()

		if cfg.IsProduction() && cfg.PrivateKey == defaultPrivateKey {
			log.Fatal("Production requires a unique GUIDESTATS_PRIVATE_KEY (cannot use default)")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}
	if c.PrivateKey == "" {
		return fmt.Errorf("private key is required")
	}
	if c.SessionTimeoutSeconds <= 0 {
		return fmt.Errorf("session timeout must be positive: %d", c.SessionTimeoutSeconds)
	}
	if c.StatsDefaultLimit <= 0 {
		return fmt.Errorf("stats default limit must be positive: %d", c.StatsDefaultLimit)
	}
	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port.
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// DatabaseDSN returns the SQLite path (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the key used to sign cookies (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// SessionTimeout is the inactivity gap after which the next event opens a new visit.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSeconds) * time.Second
}

// ArchiveFlushInterval returns how often buffered events are shipped to ClickHouse.
func (c *Config) ArchiveFlushInterval() time.Duration {
	return time.Duration(c.ArchiveFlushIntervalSecs) * time.Second
}

// JobInterval returns how often the light background jobs run.
func (c *Config) JobInterval() time.Duration {
	return time.Duration(c.JobIntervalSeconds) * time.Second
}

// CheckpointInterval returns how often the SQLite WAL is checkpointed.
func (c *Config) CheckpointInterval() time.Duration {
	return time.Duration(c.CheckpointIntervalMinutes) * time.Minute
}

// ArchiveEnabled reports whether a ClickHouse address was configured.
func (c *Config) ArchiveEnabled() bool {
	return c.ClickHouseAddr != ""
}

// ExcludedIPList returns the comma separated excluded IPs as a trimmed slice.
func (c *Config) ExcludedIPList() []string {
	if c.ExcludedIPs == "" {
		return nil
	}
	var ips []string
	for _, ip := range strings.Split(c.ExcludedIPs, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1
// - Development/Production: 10 (allows concurrent reads for parallel stats queries)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}
	if c.Environment == Test {
		return 1
	}
	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}
	if c.Environment == Test {
		return 1
	}
	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
