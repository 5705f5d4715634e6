package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/geodata/internal/crs"
)

// Config holds the full application configuration.
type Config struct {
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
	CRS    CRSConfig    `yaml:"crs" mapstructure:"crs"`
	Export ExportConfig `yaml:"export" mapstructure:"export"`
	Engine EngineConfig `yaml:"engine" mapstructure:"engine"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Fetch  FetchConfig  `yaml:"fetch" mapstructure:"fetch"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Batch  BatchConfig  `yaml:"batch" mapstructure:"batch"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// CRSConfig configures coordinate reference system handling.
type CRSConfig struct {
	// Default is assumed for sources without a .prj.
	Default string `yaml:"default" mapstructure:"default"`
}

// ExportConfig configures the exporters.
type ExportConfig struct {
	Ogr2ogrPath     string `yaml:"ogr2ogr_path" mapstructure:"ogr2ogr_path"`
	Schema          string `yaml:"schema" mapstructure:"schema"`
	ToolTimeoutSecs int    `yaml:"tool_timeout_secs" mapstructure:"tool_timeout_secs"`
	TempDir         string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// EngineConfig configures the DuckDB spatial engine.
type EngineConfig struct {
	Path         string `yaml:"path" mapstructure:"path"` // empty = in-memory
	ExtensionDir string `yaml:"extension_dir" mapstructure:"extension_dir"`
	SkipInstall  bool   `yaml:"skip_install" mapstructure:"skip_install"` // extension already installed
}

// StoreConfig configures the PostGIS loader and the run journal.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
	BatchSize   int    `yaml:"batch_size" mapstructure:"batch_size"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
	JournalPath string `yaml:"journal_path" mapstructure:"journal_path"`
}

// FetchConfig configures remote source downloads.
type FetchConfig struct {
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
}

// ServerConfig configures the HTTP conversion service.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	RateLimit      float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst      int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxUploadMB    int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// BatchConfig configures batch conversion.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ToolTimeout is the ogr2ogr run limit.
func (c ExportConfig) ToolTimeout() time.Duration {
	return time.Duration(c.ToolTimeoutSecs) * time.Second
}

// Timeout is the HTTP client timeout for one download.
func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// MaxUploadBytes is the request body limit for uploads.
func (c ServerConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// DefaultCRS parses the configured default CRS.
func (c CRSConfig) DefaultCRS() (crs.CRS, error) {
	if strings.TrimSpace(c.Default) == "" {
		return crs.WGS84, nil
	}
	v, err := crs.Parse(c.Default)
	if err != nil {
		return crs.CRS{}, eris.Wrapf(err, "config: crs.default %q", c.Default)
	}
	return v, nil
}

// Validate checks the settings a command mode depends on: "convert" for the
// local commands, "load" and "serve" for the database and HTTP surfaces.
func (c *Config) Validate(mode string) error {
	var errs []string

	if _, err := c.CRS.DefaultCRS(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 64 {
		errs = append(errs, fmt.Sprintf("batch.concurrency must be between 1 and 64, got %d", c.Batch.Concurrency))
	}

	switch mode {
	case "convert":
	case "load":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
		if c.Store.BatchSize < 0 {
			errs = append(errs, "store.batch_size must be >= 0")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server.rate_limit must be >= 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from an optional .env, an optional config.yaml
// and the GEODATA_* environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GEODATA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("crs.default", "EPSG:4326")
	v.SetDefault("export.ogr2ogr_path", "ogr2ogr")
	v.SetDefault("export.schema", "public")
	v.SetDefault("export.tool_timeout_secs", 300)
	v.SetDefault("export.temp_dir", "")
	v.SetDefault("engine.path", "")
	v.SetDefault("engine.extension_dir", "")
	v.SetDefault("engine.skip_install", false)
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.schema", "public")
	v.SetDefault("store.batch_size", 10000)
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("store.journal_path", "geodata.db")
	v.SetDefault("fetch.timeout_secs", 300)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.user_agent", "geodata/1.0")
	v.SetDefault("fetch.rate_per_sec", 5.0)
	v.SetDefault("fetch.burst", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 256)
	v.SetDefault("batch.concurrency", 4)

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
