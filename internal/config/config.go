package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"Sitecat/internal/analytics"
	"Sitecat/internal/models"
	"Sitecat/internal/session"
	"Sitecat/internal/store"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Tracker       TrackerConfig       `mapstructure:"tracker"`
	Plugin        PluginConfig        `mapstructure:"plugin"`
	Session       SessionConfig       `mapstructure:"session"`
	Store         StoreConfig         `mapstructure:"store"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	LogLevel      string              `mapstructure:"log_level"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type TrackerConfig struct {
	Account           string   `mapstructure:"account"`
	Enabled           bool     `mapstructure:"enabled"`
	Insertion         string   `mapstructure:"insertion"`
	IncludeJavascript bool     `mapstructure:"include_javascript"`
	SCodePath         string   `mapstructure:"s_code_path"`
	AssetBasePath     string   `mapstructure:"asset_base_path"`
	Scripts           []string `mapstructure:"scripts"`
	PageName          string   `mapstructure:"page_name"`
	EscapeValues      bool     `mapstructure:"escape_values"`
}

type PluginConfig struct {
	Handle404 bool `mapstructure:"handle_404"`
	Logging   bool `mapstructure:"logging"`
}

type SessionConfig struct {
	CookieName string        `mapstructure:"cookie_name"`
	MaxAge     time.Duration `mapstructure:"max_age"`
	Secure     bool          `mapstructure:"secure"`
}

type StoreConfig struct {
	Type          string        `mapstructure:"type"`
	Path          string        `mapstructure:"path"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisDB       int           `mapstructure:"redis_db"`
	MaxIdle       int           `mapstructure:"max_idle"`
	TTL           time.Duration `mapstructure:"ttl"`
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
}

type ObservabilityConfig struct {
	EnableMetrics   bool   `mapstructure:"enable_metrics"`
	MetricsPath     string `mapstructure:"metrics_path"`
	HealthCheckPath string `mapstructure:"health_check_path"`
	ReadinessPath   string `mapstructure:"readiness_path"`
}

var storeTypes = []string{"memory", "file", "redis", "sqlite"}

// Load reads configuration from environment variables and optional config file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// SITECAT_TRACKER_ACCOUNT overrides tracker.account
	v.SetEnvPrefix("SITECAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Tracker defaults; account has no sensible default but must be
	// registered for env overrides to reach Unmarshal
	v.SetDefault("tracker.account", "")
	v.SetDefault("tracker.enabled", true)
	v.SetDefault("tracker.insertion", "bottom")
	v.SetDefault("tracker.include_javascript", false)
	v.SetDefault("tracker.s_code_path", analytics.DefaultSCodePath)
	v.SetDefault("tracker.asset_base_path", "")
	v.SetDefault("tracker.scripts", []string{})
	v.SetDefault("tracker.page_name", "")
	v.SetDefault("tracker.escape_values", false)

	// Plugin defaults
	v.SetDefault("plugin.handle_404", true)
	v.SetDefault("plugin.logging", false)

	// Session defaults
	v.SetDefault("session.cookie_name", session.DefaultCookieName)
	v.SetDefault("session.max_age", 24*time.Hour)
	v.SetDefault("session.secure", false)

	// Store defaults
	v.SetDefault("store.type", "memory")
	v.SetDefault("store.path", "/tmp/sitecat-sessions.json")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.max_idle", 8)
	v.SetDefault("store.ttl", 0)
	v.SetDefault("store.purge_interval", 10*time.Minute)

	// Observability defaults
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.metrics_path", "/metrics")
	v.SetDefault("observability.health_check_path", "/health")
	v.SetDefault("observability.readiness_path", "/ready")

	v.SetDefault("log_level", "info")
}

func (c *Config) Validate() error {
	// Tracker validation
	if c.Tracker.Account == "" {
		return fmt.Errorf("tracker.account is required")
	}
	if _, err := models.ParsePosition(c.Tracker.Insertion); err != nil {
		return fmt.Errorf("tracker.insertion must be either 'top' or 'bottom': %w", err)
	}

	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	// Session validation
	if c.Session.MaxAge < 0 {
		return fmt.Errorf("session.max_age must be >= 0")
	}

	// Store validation
	if !slices.Contains(storeTypes, c.Store.Type) {
		return fmt.Errorf("store.type must be one of %s", strings.Join(storeTypes, ", "))
	}
	if (c.Store.Type == "file" || c.Store.Type == "sqlite") && c.Store.Path == "" {
		return fmt.Errorf("store.path is required when using %s store", c.Store.Type)
	}
	if c.Store.Type == "redis" && c.Store.RedisAddr == "" {
		return fmt.Errorf("store.redis_addr is required when using redis store")
	}
	if c.Store.TTL < 0 {
		return fmt.Errorf("store.ttl must be >= 0")
	}
	if c.Store.PurgeInterval < 0 {
		return fmt.Errorf("store.purge_interval must be >= 0")
	}

	return nil
}

// TrackerConfig returns the settings every request's tracker is created with
func (c *Config) TrackerConfig() analytics.Config {
	return analytics.Config{
		Account:           c.Tracker.Account,
		Enabled:           c.Tracker.Enabled,
		Insertion:         c.Tracker.Insertion,
		IncludeJavascript: c.Tracker.IncludeJavascript,
		SCodePath:         c.Tracker.SCodePath,
		AssetBasePath:     c.Tracker.AssetBasePath,
		Scripts:           c.Tracker.Scripts,
		PageName:          c.Tracker.PageName,
		EscapeValues:      c.Tracker.EscapeValues,
	}
}

func (c *Config) SessionConfig() session.Config {
	return session.Config{
		CookieName: c.Session.CookieName,
		MaxAge:     c.Session.MaxAge,
		Secure:     c.Session.Secure,
		TTL:        c.Store.TTL,
	}
}

func (c *Config) StoreConfig() store.StoreConfig {
	return store.StoreConfig{
		Type:      c.Store.Type,
		Path:      c.Store.Path,
		RedisAddr: c.Store.RedisAddr,
		RedisDB:   c.Store.RedisDB,
		MaxIdle:   c.Store.MaxIdle,
	}
}
