package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig          `yaml:"log" mapstructure:"log"`
	Engine    EngineConfig       `yaml:"engine" mapstructure:"engine"`
	Cache     CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Reference ReferenceConfig    `yaml:"reference" mapstructure:"reference"`
	Tables    TablesConfig       `yaml:"tables" mapstructure:"tables"`
	Server    ServerConfig       `yaml:"server" mapstructure:"server"`
	Importer  ImporterConfig     `yaml:"importer" mapstructure:"importer"`
	Priors    map[string]float64 `yaml:"priors" mapstructure:"priors"`
}

// EngineConfig tunes strategy dispatch and matching thresholds.
type EngineConfig struct {
	StrategyTimeout    time.Duration `yaml:"strategy_timeout" mapstructure:"strategy_timeout"`
	OverallTimeout     time.Duration `yaml:"overall_timeout" mapstructure:"overall_timeout"`
	FuzzyThreshold     int           `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	CosineThreshold    float64       `yaml:"cosine_threshold" mapstructure:"cosine_threshold"`
	RegexTimeout       time.Duration `yaml:"regex_timeout" mapstructure:"regex_timeout"`
	SearchLimit        int           `yaml:"search_limit" mapstructure:"search_limit"`
	DisabledStrategies []string      `yaml:"disabled_strategies" mapstructure:"disabled_strategies"`
}

// CacheConfig configures the resolution result cache. Size 0 disables it.
type CacheConfig struct {
	Size int           `yaml:"size" mapstructure:"size"`
	TTL  time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// Reference sources.
const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
	SourceSQLite   = "sqlite"
)

// ReferenceConfig selects where canonical entities are loaded from.
type ReferenceConfig struct {
	Source      string `yaml:"source" mapstructure:"source"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	// RetryAttempts bounds database loads that fail on connectivity errors.
	RetryAttempts int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// TablesConfig points at an optional domain tables file merged over the
// built-in defaults.
type TablesConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the search API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateBurst      int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// ImporterConfig holds the acceptance policy for imported records.
type ImporterConfig struct {
	Concurrency     int     `yaml:"concurrency" mapstructure:"concurrency"`
	AcceptThreshold float64 `yaml:"accept_threshold" mapstructure:"accept_threshold"`
	ReviewThreshold float64 `yaml:"review_threshold" mapstructure:"review_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RESOLVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("engine.strategy_timeout", 200*time.Millisecond)
	v.SetDefault("engine.overall_timeout", time.Second)
	v.SetDefault("engine.fuzzy_threshold", 3)
	v.SetDefault("engine.cosine_threshold", 0.3)
	v.SetDefault("engine.regex_timeout", 50*time.Millisecond)
	v.SetDefault("engine.search_limit", 20)
	v.SetDefault("engine.disabled_strategies", []string{})
	v.SetDefault("cache.size", 2048)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("reference.source", SourceFile)
	v.SetDefault("reference.path", "reference.yaml")
	v.SetDefault("reference.retry_attempts", 3)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit_rps", 20.0)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("importer.concurrency", 8)
	v.SetDefault("importer.accept_threshold", 70.0)
	v.SetDefault("importer.review_threshold", 50.0)

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

// Validate checks the settings a command depends on. Every command needs a
// usable reference source; serve and import check their own sections.
func (c *Config) Validate(command string) error {
	var errs []string

	switch c.Reference.Source {
	case SourceFile:
		if c.Reference.Path == "" {
			errs = append(errs, "reference.path is required for the file source")
		}
	case SourcePostgres:
		if c.Reference.DatabaseURL == "" {
			errs = append(errs, "reference.database_url is required for the postgres source")
		}
	case SourceSQLite:
		if c.Reference.SQLitePath == "" {
			errs = append(errs, "reference.sqlite_path is required for the sqlite source")
		}
	default:
		errs = append(errs, fmt.Sprintf("reference.source must be file, postgres, or sqlite, got %q", c.Reference.Source))
	}

	if c.Engine.FuzzyThreshold < 0 {
		errs = append(errs, "engine.fuzzy_threshold must be >= 0")
	}
	if c.Engine.CosineThreshold < 0 || c.Engine.CosineThreshold >= 1 {
		errs = append(errs, "engine.cosine_threshold must be in [0, 1)")
	}
	if c.Cache.Size < 0 {
		errs = append(errs, "cache.size must be >= 0")
	}

	switch command {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitRPS < 0 {
			errs = append(errs, "server.rate_limit_rps must be >= 0")
		}
	case "import":
		if c.Importer.Concurrency <= 0 {
			errs = append(errs, "importer.concurrency must be > 0")
		}
		if c.Importer.AcceptThreshold < c.Importer.ReviewThreshold {
			errs = append(errs, "importer.accept_threshold must be >= importer.review_threshold")
		}
		if c.Importer.AcceptThreshold > 100 || c.Importer.ReviewThreshold < 0 {
			errs = append(errs, "importer thresholds must be between 0 and 100")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
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
