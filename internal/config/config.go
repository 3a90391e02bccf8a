package config

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Jihanvall/rfm-app/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Model  ModelConfig  `yaml:"model" mapstructure:"model"`
	Ingest IngestConfig `yaml:"ingest" mapstructure:"ingest"`
	Report ReportConfig `yaml:"report" mapstructure:"report"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures where model artifacts and run history live.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"` // sqlite path, postgres DSN or redis URL
	KeyPrefix   string           `yaml:"key_prefix" mapstructure:"key_prefix"`     // redis only
	Pool        store.PoolConfig `yaml:",inline" mapstructure:",squash"`           // postgres only
	S3          store.S3Config   `yaml:"s3" mapstructure:"s3"`
}

// ModelConfig holds clustering parameters.
type ModelConfig struct {
	Name      string  `yaml:"name" mapstructure:"name"`
	Clusters  int     `yaml:"clusters" mapstructure:"clusters"`
	Seed      uint64  `yaml:"seed" mapstructure:"seed"`
	Restarts  int     `yaml:"restarts" mapstructure:"restarts"`
	MaxIter   int     `yaml:"max_iter" mapstructure:"max_iter"`
	Tolerance float64 `yaml:"tolerance" mapstructure:"tolerance"`
}

// IngestConfig configures input loading.
type IngestConfig struct {
	FallbackEncoding string `yaml:"fallback_encoding" mapstructure:"fallback_encoding"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries       int    `yaml:"max_retries" mapstructure:"max_retries"`
	SheetIndex       int    `yaml:"sheet_index" mapstructure:"sheet_index"`
	SheetName        string `yaml:"sheet_name" mapstructure:"sheet_name"` // overrides sheet_index
	Delimiter        string `yaml:"delimiter" mapstructure:"delimiter"`   // one character; empty means ","
	Comment          string `yaml:"comment" mapstructure:"comment"`       // one character; empty disables comments
	LazyQuotes       bool   `yaml:"lazy_quotes" mapstructure:"lazy_quotes"`
	TrimSpace        bool   `yaml:"trim_space" mapstructure:"trim_space"`
	Strict           bool   `yaml:"strict" mapstructure:"strict"`
	MySQLDSN         string `yaml:"mysql_dsn" mapstructure:"mysql_dsn"`
}

// DelimiterRune returns the CSV field separator, 0 meaning the default.
func (c IngestConfig) DelimiterRune() rune { return firstRune(c.Delimiter) }

// CommentRune returns the CSV comment character, 0 meaning none.
func (c IngestConfig) CommentRune() rune { return firstRune(c.Comment) }

func firstRune(s string) rune {
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return 0
	}
	return r
}

// ReportConfig configures exports.
type ReportConfig struct {
	WhaleThreshold float64 `yaml:"whale_threshold" mapstructure:"whale_threshold"`
	WhaleTop       int     `yaml:"whale_top" mapstructure:"whale_top"`
	Output         string  `yaml:"output" mapstructure:"output"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	MaxUploadMB int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	RateLimit   float64  `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second
	RateBurst   int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Drivers lists the supported store drivers.
var Drivers = []string{"sqlite", "postgres", "redis", "s3", "memory"}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RFM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key needs one so that env-only overrides unmarshal.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "rfm.db")
	v.SetDefault("store.key_prefix", "rfm:")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("store.s3.bucket", "")
	v.SetDefault("store.s3.prefix", "models")
	v.SetDefault("store.s3.region", "us-east-1")
	v.SetDefault("store.s3.endpoint", "")
	v.SetDefault("model.name", "rfm")
	v.SetDefault("model.clusters", 3)
	v.SetDefault("model.seed", 42)
	v.SetDefault("model.restarts", 10)
	v.SetDefault("model.max_iter", 300)
	v.SetDefault("model.tolerance", 1e-4)
	v.SetDefault("ingest.fallback_encoding", "iso-8859-1")
	v.SetDefault("ingest.timeout_secs", 30)
	v.SetDefault("ingest.max_retries", 3)
	v.SetDefault("ingest.sheet_index", 0)
	v.SetDefault("ingest.sheet_name", "")
	v.SetDefault("ingest.delimiter", ",")
	v.SetDefault("ingest.comment", "")
	v.SetDefault("ingest.lazy_quotes", false)
	v.SetDefault("ingest.trim_space", false)
	v.SetDefault("ingest.strict", false)
	v.SetDefault("ingest.mysql_dsn", "")
	v.SetDefault("report.whale_threshold", 10000.0)
	v.SetDefault("report.whale_top", 5)
	v.SetDefault("report.output", "Production_Results.csv")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_mb", 32)
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 10)
	v.SetDefault("server.cors_origins", []string{"*"})
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

// Validation modes, one per command family.
const (
	ModePipeline = "pipeline" // segment, score
	ModeServe    = "serve"
	ModeReport   = "report" // whales, summary
	ModeRuns     = "runs"
)

// Validate checks the settings the given mode depends on and reports every
// problem at once.
func (c *Config) Validate(mode string) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	checkStore := func() {
		if !slices.Contains(Drivers, c.Store.Driver) {
			add("store.driver %q is not one of %s", c.Store.Driver, strings.Join(Drivers, ", "))
		}
		if c.Store.Driver == "s3" && c.Store.S3.Bucket == "" {
			add("store.s3.bucket is required for the s3 driver")
		}
		if (c.Store.Driver == "postgres" || c.Store.Driver == "redis") && c.Store.DatabaseURL == "" {
			add("store.database_url is required for the %s driver", c.Store.Driver)
		}
	}
	checkModel := func() {
		if c.Model.Name == "" {
			add("model.name is required")
		}
		if c.Model.Clusters < 1 {
			add("model.clusters must be >= 1")
		}
		if c.Model.Restarts < 1 {
			add("model.restarts must be >= 1")
		}
		if c.Model.MaxIter < 1 {
			add("model.max_iter must be >= 1")
		}
		if c.Model.Tolerance < 0 {
			add("model.tolerance must be >= 0")
		}
	}
	checkIngest := func() {
		if utf8.RuneCountInString(c.Ingest.Delimiter) > 1 {
			add("ingest.delimiter %q must be a single character", c.Ingest.Delimiter)
		}
		if utf8.RuneCountInString(c.Ingest.Comment) > 1 {
			add("ingest.comment %q must be a single character", c.Ingest.Comment)
		}
		if c.Ingest.Delimiter != "" && c.Ingest.Delimiter == c.Ingest.Comment {
			add("ingest.comment must differ from ingest.delimiter")
		}
	}
	checkReport := func() {
		if c.Report.WhaleThreshold < 0 {
			add("report.whale_threshold must be >= 0")
		}
	}

	switch mode {
	case ModePipeline:
		checkStore()
		checkModel()
		checkIngest()
		checkReport()
	case ModeServe:
		checkStore()
		checkModel()
		checkIngest()
		checkReport()
		if c.Server.Port <= 0 {
			add("server.port must be > 0")
		}
		if c.Server.MaxUploadMB <= 0 {
			add("server.max_upload_mb must be > 0")
		}
		if c.Server.RateLimit <= 0 || c.Server.RateBurst <= 0 {
			add("server.rate_limit and server.rate_burst must be > 0")
		}
	case ModeReport:
		checkReport()
	case ModeRuns:
		checkStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
