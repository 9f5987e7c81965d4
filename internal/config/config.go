package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	Directory DirectoryConfig `yaml:"directory" mapstructure:"directory"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Push      PushConfig      `yaml:"push" mapstructure:"push"`
	Import    ImportConfig    `yaml:"import" mapstructure:"import"`
	Session   SessionConfig   `yaml:"session" mapstructure:"session"`
	Reaper    ReaperConfig    `yaml:"reaper" mapstructure:"reaper"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	// ShutdownSecs bounds graceful shutdown after a signal.
	ShutdownSecs int `yaml:"shutdown_secs" mapstructure:"shutdown_secs"`
}

// AuthConfig holds tenant token settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	Issuer    string `yaml:"issuer" mapstructure:"issuer"`
}

// DirectoryConfig configures the messaging directory (WAHA) client.
type DirectoryConfig struct {
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey           string  `yaml:"api_key" mapstructure:"api_key"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst            int     `yaml:"burst" mapstructure:"burst"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	BreakerThreshold int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// EnrichConfig configures the profile sync collaborator.
type EnrichConfig struct {
	ProfileSyncURL string `yaml:"profile_sync_url" mapstructure:"profile_sync_url"`
	Token          string `yaml:"token" mapstructure:"token"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PushConfig configures the realtime progress channel.
type PushConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	Token       string `yaml:"token" mapstructure:"token"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ImportConfig configures batching.
type ImportConfig struct {
	BatchSize    int  `yaml:"batch_size" mapstructure:"batch_size"`
	PauseMs      int  `yaml:"pause_ms" mapstructure:"pause_ms"`
	VerboseIndex bool `yaml:"verbose_index" mapstructure:"verbose_index"`
}

// Pause returns the inter-batch pause.
func (c ImportConfig) Pause() time.Duration {
	return time.Duration(c.PauseMs) * time.Millisecond
}

// SessionConfig configures the default session cache.
type SessionConfig struct {
	CacheSize    int `yaml:"cache_size" mapstructure:"cache_size"`
	CacheTTLSecs int `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// ReaperConfig configures the stale-job sweep.
type ReaperConfig struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	Schedule      string `yaml:"schedule" mapstructure:"schedule"`
	StaleAfterMin int    `yaml:"stale_after_min" mapstructure:"stale_after_min"`
}

// StaleAfter returns how long a job may go without progress before it is aborted.
func (c ReaperConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMin) * time.Minute
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from an optional config.yaml in the working
// directory and the environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. A named file must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	// Environment
	v.SetEnvPrefix("CRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_secs", 15)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "crm")
	v.SetDefault("directory.base_url", "http://localhost:3000")
	v.SetDefault("directory.api_key", "")
	v.SetDefault("directory.timeout_secs", 10)
	v.SetDefault("directory.rate_per_sec", 5.0)
	v.SetDefault("directory.burst", 1)
	v.SetDefault("directory.max_attempts", 2)
	v.SetDefault("directory.initial_backoff_ms", 300)
	v.SetDefault("directory.max_backoff_ms", 2000)
	v.SetDefault("directory.breaker_threshold", 5)
	v.SetDefault("directory.breaker_reset_secs", 30)
	v.SetDefault("enrich.profile_sync_url", "")
	v.SetDefault("enrich.token", "")
	v.SetDefault("enrich.timeout_secs", 10)
	v.SetDefault("push.url", "")
	v.SetDefault("push.token", "")
	v.SetDefault("push.timeout_secs", 5)
	v.SetDefault("import.batch_size", 5)
	v.SetDefault("import.pause_ms", 500)
	v.SetDefault("import.verbose_index", false)
	v.SetDefault("session.cache_size", 256)
	v.SetDefault("session.cache_ttl_secs", 60)
	v.SetDefault("reaper.enabled", true)
	v.SetDefault("reaper.schedule", "@every 5m")
	v.SetDefault("reaper.stale_after_min", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// Validate checks the settings a command mode depends on. Every problem is
// reported, not only the first.
func (c *Config) Validate(mode string) error {
	var errs []string
	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Auth.JWTSecret == "" {
			errs = append(errs, "auth.jwt_secret is required")
		}
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateImport()...)
	case "import":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateImport()...)
	case "migrate", "reap":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}
	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
	case "sqlite":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required (sqlite file path)"}
		}
	default:
		return []string{"store.driver must be postgres or sqlite"}
	}
	return nil
}

func (c *Config) validateImport() []string {
	var errs []string
	if c.Import.BatchSize < 1 || c.Import.BatchSize > 500 {
		errs = append(errs, "import.batch_size must be between 1 and 500")
	}
	if c.Import.PauseMs < 0 {
		errs = append(errs, "import.pause_ms must be >= 0")
	}
	return errs
}
