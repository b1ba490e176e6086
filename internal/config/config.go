package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/saturnino-fabrica-de-software/ponto/internal/threshold"
)

// Config is the terminal configuration.
type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`

	// Local storage
	DataDir    string `envconfig:"DATA_DIR" default:"./data"`
	SQLitePath string `envconfig:"SQLITE_PATH"`
	RosterPath string `envconfig:"ROSTER_PATH"`

	// Capability tier. DEVICE_TIER wins; otherwise the tier is derived
	// from the host signals.
	DeviceTier string `envconfig:"DEVICE_TIER"`
	MemoryMB   int    `envconfig:"DEVICE_MEMORY_MB"`
	Cores      int    `envconfig:"DEVICE_CORES"`
	OSVersion  string `envconfig:"DEVICE_OS_VERSION"`

	// Matching
	RequiredMatches int  `envconfig:"REQUIRED_MATCHES" default:"3"`
	AllowTruncation bool `envconfig:"ALLOW_TRUNCATION" default:"false"`

	// Embedder: "deepface", "mock" or "none"
	ProviderType    string        `envconfig:"PROVIDER_TYPE" default:"deepface"`
	DeepFaceURL     string        `envconfig:"DEEPFACE_URL"`
	DeepFaceTimeout time.Duration `envconfig:"DEEPFACE_TIMEOUT" default:"5s"`

	// Authority
	AuthorityURL string `envconfig:"AUTHORITY_URL"`
	SiteID       string `envconfig:"SITE_ID"`
	SyncCode     string `envconfig:"SYNC_CODE"`
	DeviceID     string `envconfig:"DEVICE_ID"`

	// Sync
	SyncInterval  time.Duration `envconfig:"SYNC_INTERVAL" default:"5m"`
	SyncTimeout   time.Duration `envconfig:"SYNC_TIMEOUT" default:"30s"`
	DedupWindow   time.Duration `envconfig:"DEDUP_WINDOW" default:"5m"`
	RetentionDays int           `envconfig:"RETENTION_DAYS" default:"90"`
	RosterMaxAge  time.Duration `envconfig:"ROSTER_MAX_AGE" default:"1h"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.DeviceTier != "" {
		if _, err := threshold.ParseTier(cfg.DeviceTier); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if cfg.RequiredMatches < 1 {
		return nil, fmt.Errorf("load config: REQUIRED_MATCHES must be at least 1, got %d", cfg.RequiredMatches)
	}
	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// EventStorePath is the SQLite file, defaulting under DataDir.
func (c *Config) EventStorePath() string {
	if c.SQLitePath != "" {
		return c.SQLitePath
	}
	return filepath.Join(c.DataDir, "attendance.db")
}

// RosterCachePath is the bbolt file, defaulting under DataDir.
func (c *Config) RosterCachePath() string {
	if c.RosterPath != "" {
		return c.RosterPath
	}
	return filepath.Join(c.DataDir, "roster.db")
}

// Tier resolves the capability tier once at startup.
func (c *Config) Tier() threshold.Tier {
	if tier, err := threshold.ParseTier(c.DeviceTier); err == nil {
		return tier
	}
	return threshold.SelectTier(threshold.Capabilities{
		MemoryMB:  c.MemoryMB,
		Cores:     c.Cores,
		OSVersion: c.OSVersion,
	})
}

// SyncConfigured reports whether the authority credentials are complete.
func (c *Config) SyncConfigured() bool {
	return c.AuthorityURL != "" && c.SiteID != "" && c.SyncCode != ""
}

// AuthorityConfig is the configuration of the reconciliation authority.
type AuthorityConfig struct {
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`

	DatabaseURL  string `envconfig:"DATABASE_URL" required:"true"`
	DatabaseName string `envconfig:"DATABASE_NAME" default:"ponto"`
	AutoMigrate  bool   `envconfig:"AUTO_MIGRATE" default:"false"`

	// MaxBatchSize bounds the records accepted in one upload.
	MaxBatchSize int `envconfig:"MAX_BATCH_SIZE" default:"500"`
}

func LoadAuthority() (*AuthorityConfig, error) {
	var cfg AuthorityConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load authority config: %w", err)
	}
	return &cfg, nil
}

func (c *AuthorityConfig) IsProduction() bool {
	return c.Environment == "production"
}
