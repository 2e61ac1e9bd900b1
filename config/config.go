package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Resolution ResolutionConfig `mapstructure:"resolution"`
	Image      ImageConfig      `mapstructure:"image"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required,numeric"`
	Environment     string        `mapstructure:"environment" validate:"oneof=development production test"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// GeminiConfig holds Gemini API configuration
type GeminiConfig struct {
	APIKey            string        `mapstructure:"api_key" validate:"required"`
	BaseURL           string        `mapstructure:"base_url" validate:"required,url"`
	Model             string        `mapstructure:"model" validate:"required"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int           `mapstructure:"burst" validate:"gte=0"`
}

// CatalogConfig describes where the reference catalog is loaded from
type CatalogConfig struct {
	Source      string `mapstructure:"source" validate:"oneof=csv sql xlsx"`
	Path        string `mapstructure:"path"`
	Sheet       string `mapstructure:"sheet"` // xlsx only; empty reads the first sheet
	Encoding    string `mapstructure:"encoding" validate:"omitempty,oneof=utf-8 utf8 euc-kr cp949"`
	Driver      string `mapstructure:"driver" validate:"omitempty,oneof=pgx sqlite"`
	DSN         string `mapstructure:"dsn"`
	Table       string `mapstructure:"table"`
	OrderColumn string `mapstructure:"order_column"`
	NameColumn  string `mapstructure:"name_column" validate:"required"`
	ImageColumn string `mapstructure:"image_column" validate:"required"`
}

// ResolutionConfig tunes the per-detection resolution pipeline
type ResolutionConfig struct {
	TopN                    int           `mapstructure:"top_n" validate:"gt=0"`
	RefineCount             int           `mapstructure:"refine_count" validate:"gt=0"`
	ExtractAttempts         int           `mapstructure:"extract_attempts" validate:"gte=1"`
	RefineAttempts          int           `mapstructure:"refine_attempts" validate:"gte=1"`
	SelectAttempts          int           `mapstructure:"select_attempts" validate:"gte=1"`
	SelectDelay             time.Duration `mapstructure:"select_delay" validate:"gte=0"`
	MaxConcurrentDetections int           `mapstructure:"max_concurrent_detections" validate:"gte=1"`
	DetectionTimeout        time.Duration `mapstructure:"detection_timeout" validate:"gte=0"`
}

// ImageConfig controls image preparation and candidate image downloads
type ImageConfig struct {
	MaxDimension  int           `mapstructure:"max_dimension" validate:"gt=0"`
	JPEGQuality   int           `mapstructure:"jpeg_quality" validate:"min=1,max=100"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout" validate:"gt=0"`
	MaxFetchBytes int64         `mapstructure:"max_fetch_bytes" validate:"gt=0"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl" validate:"gt=0"`

	// Upper bound on cached candidate images; the oldest is evicted first
	CacheMaxEntries int `mapstructure:"cache_max_entries" validate:"gte=0"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	Format string `mapstructure:"format" validate:"oneof=text console json"`
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Load loads configuration from environment variables and config files.
// An empty configFile searches the default locations for config.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/allert/")
	}

	// ALLERT_GEMINI_API_KEY overrides gemini.api_key
	v.SetEnvPrefix("ALLERT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
// Every key needs a default so AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_upload_bytes", 50<<20)
	v.SetDefault("server.shutdown_timeout", "15s")

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.timeout", "60s")
	v.SetDefault("gemini.requests_per_second", 5)
	v.SetDefault("gemini.burst", 5)

	// Catalog defaults
	v.SetDefault("catalog.source", "csv")
	v.SetDefault("catalog.path", "DB/all_data.csv")
	v.SetDefault("catalog.encoding", "utf-8")
	v.SetDefault("catalog.sheet", "")
	v.SetDefault("catalog.driver", "")
	v.SetDefault("catalog.dsn", "")
	v.SetDefault("catalog.table", "")
	v.SetDefault("catalog.order_column", "")
	v.SetDefault("catalog.name_column", "prdlstNm")
	v.SetDefault("catalog.image_column", "imgurl1")

	// Resolution defaults
	v.SetDefault("resolution.top_n", 30)
	v.SetDefault("resolution.refine_count", 5)
	v.SetDefault("resolution.extract_attempts", 3)
	v.SetDefault("resolution.refine_attempts", 3)
	v.SetDefault("resolution.select_attempts", 3)
	v.SetDefault("resolution.select_delay", "1s")
	v.SetDefault("resolution.max_concurrent_detections", 4)
	v.SetDefault("resolution.detection_timeout", "0s")

	// Image defaults
	v.SetDefault("image.max_dimension", 1024)
	v.SetDefault("image.jpeg_quality", 85)
	v.SetDefault("image.fetch_timeout", "15s")
	v.SetDefault("image.max_fetch_bytes", 10<<20)
	v.SetDefault("image.cache_ttl", "24h")
	v.SetDefault("image.cache_max_entries", 512)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// validate validates the configuration
func validate(config *Config) error {
	if err := structValidator.Struct(config); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			if fe.Namespace() == "Config.Gemini.APIKey" {
				return fmt.Errorf("Gemini API key is required (set ALLERT_GEMINI_API_KEY)")
			}
			return fmt.Errorf("%s: failed %q check (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}

	switch config.Catalog.Source {
	case "csv", "xlsx":
		if config.Catalog.Path == "" {
			return fmt.Errorf("catalog path is required when catalog source is '%s'", config.Catalog.Source)
		}
	case "sql":
		if config.Catalog.Driver == "" || config.Catalog.DSN == "" {
			return fmt.Errorf("catalog driver and dsn are required when catalog source is 'sql'")
		}
		if config.Catalog.Table == "" {
			return fmt.Errorf("catalog table is required when catalog source is 'sql'")
		}
	}

	return nil
}
