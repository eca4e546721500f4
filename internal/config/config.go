package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Fields   FieldsConfig   `mapstructure:"fields"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds the HTTP API settings
type ServerConfig struct {
	Port       string        `mapstructure:"port"`
	JWTSecret  string        `mapstructure:"jwt_secret"` // empty disables auth
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
}

// DatabaseConfig holds the sqlite run store settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// PipelineConfig holds the defaults applied to every LOI run
type PipelineConfig struct {
	BufferDistance    float64 `mapstructure:"buffer_distance"`
	SourceCRS         int     `mapstructure:"source_crs"`
	TargetCRS         int     `mapstructure:"target_crs"`
	QuadSegments      int     `mapstructure:"quad_segments"`
	DegeneratePolicy  string  `mapstructure:"degenerate_policy"` // zero | fail
	FailOnInvalidRows bool    `mapstructure:"fail_on_invalid_rows"`
	InputDir          string  `mapstructure:"input_dir"` // root of API-submitted inputs
	WorkDir           string  `mapstructure:"work_dir"`
	OutputDir         string  `mapstructure:"output_dir"`
	ReportFormat      string  `mapstructure:"report_format"` // xlsx | csv
}

// FieldsConfig names the input columns and layer attributes the pipeline reads
type FieldsConfig struct {
	Latitude      string `mapstructure:"latitude"`
	Longitude     string `mapstructure:"longitude"`
	AccountID     string `mapstructure:"account_id"`
	AccountName   string `mapstructure:"account_name"`
	SourceAddress string `mapstructure:"source_address"`
	PoliceStation string `mapstructure:"police_station"`
	Address       string `mapstructure:"address"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load 加载配置
// path may be empty, in which case only defaults, .env and LOI_* variables apply.
func Load(path string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LOI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.rate_limit", 60)
	v.SetDefault("server.rate_window", "1m")

	v.SetDefault("database.path", "./data/loi/loi.db")

	v.SetDefault("pipeline.buffer_distance", 50.0)
	v.SetDefault("pipeline.source_crs", 4326)
	v.SetDefault("pipeline.target_crs", 32755) // WGS 84 / UTM zone 55S
	v.SetDefault("pipeline.quad_segments", 5)
	v.SetDefault("pipeline.degenerate_policy", "zero")
	v.SetDefault("pipeline.fail_on_invalid_rows", false)
	v.SetDefault("pipeline.input_dir", "./data/loi/input")
	v.SetDefault("pipeline.work_dir", "./data/loi/analysis")
	v.SetDefault("pipeline.output_dir", "./data/loi")
	v.SetDefault("pipeline.report_format", "xlsx")

	v.SetDefault("fields.latitude", "IP LAT")
	v.SetDefault("fields.longitude", "IP LON")
	v.SetDefault("fields.account_id", "CUSTOMER I")
	v.SetDefault("fields.account_name", "CUSTOMER N")
	v.SetDefault("fields.source_address", "IP ADDRESS")
	v.SetDefault("fields.police_station", "VicPolSTN")
	v.SetDefault("fields.address", "EZI_ADD")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.RateLimit < 1 {
		return fmt.Errorf("server.rate_limit must be at least 1")
	}
	if c.Server.RateWindow < time.Second {
		return fmt.Errorf("server.rate_window must be at least 1s")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Pipeline.BufferDistance <= 0 {
		return fmt.Errorf("pipeline.buffer_distance must be greater than 0")
	}
	if c.Pipeline.SourceCRS <= 0 || c.Pipeline.TargetCRS <= 0 {
		return fmt.Errorf("pipeline.source_crs and pipeline.target_crs must be EPSG codes")
	}
	if c.Pipeline.QuadSegments < 1 {
		return fmt.Errorf("pipeline.quad_segments must be at least 1")
	}
	switch c.Pipeline.DegeneratePolicy {
	case "zero", "fail":
	default:
		return fmt.Errorf("pipeline.degenerate_policy must be one of: zero, fail")
	}
	switch c.Pipeline.ReportFormat {
	case "xlsx", "csv":
	default:
		return fmt.Errorf("pipeline.report_format must be one of: xlsx, csv")
	}
	if c.Pipeline.InputDir == "" || c.Pipeline.WorkDir == "" || c.Pipeline.OutputDir == "" {
		return fmt.Errorf("pipeline.input_dir, pipeline.work_dir and pipeline.output_dir are required")
	}

	required := map[string]string{
		"fields.latitude":       c.Fields.Latitude,
		"fields.longitude":      c.Fields.Longitude,
		"fields.account_id":     c.Fields.AccountID,
		"fields.account_name":   c.Fields.AccountName,
		"fields.source_address": c.Fields.SourceAddress,
		"fields.police_station": c.Fields.PoliceStation,
		"fields.address":        c.Fields.Address,
	}
	for key, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s is required", key)
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
