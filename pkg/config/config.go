package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Storage       StorageConfig       `yaml:"storage"`
	Ingest        IngestConfig        `yaml:"ingest"`
	Sources       SourcesConfig       `yaml:"sources"`
	Schedule      ScheduleConfig      `yaml:"schedule"`
	Observability ObservabilityConfig `yaml:"observability"`
	Log           LogConfig           `yaml:"log"`
}

type DatabaseConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	Database    string `yaml:"database"`
	Schema      string `yaml:"schema"`
	SSLMode     string `yaml:"sslmode"`
	MaxConns    int    `yaml:"max_conns"`
	UpsertChunk int    `yaml:"upsert_chunk"`
}

type StorageConfig struct {
	Dir string `yaml:"dir"`
}

type IngestConfig struct {
	Workers            int    `yaml:"workers"`
	LocaleStrategy     string `yaml:"locale_strategy"`
	Timezone           string `yaml:"timezone"`
	ProgressCheckpoint int    `yaml:"progress_checkpoint"`
	ExportXLSX         bool   `yaml:"export_xlsx"`
}

type SourcesConfig struct {
	BaseURL           string        `yaml:"base_url"`
	UserAgent         string        `yaml:"user_agent"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	CalendarCacheTTL  time.Duration `yaml:"calendar_cache_ttl"`
	MarketTimezone    string        `yaml:"market_timezone"`
}

type ScheduleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	SyncCron string `yaml:"sync_cron"`
}

type ObservabilityConfig struct {
	MetricsEnabled bool `yaml:"metrics_enabled"`
	MetricsPort    int  `yaml:"metrics_port"`
	TracingEnabled bool `yaml:"tracing_enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:        "localhost",
			Port:        5432,
			User:        "postgres",
			Password:    "postgres",
			Database:    "lsx",
			Schema:      "lsx",
			SSLMode:     "disable",
			MaxConns:    10,
			UpsertChunk: 5000,
		},
		Storage: StorageConfig{
			Dir: "/data",
		},
		Ingest: IngestConfig{
			Workers:            8,
			Timezone:           "UTC",
			ProgressCheckpoint: 10,
		},
		Sources: SourcesConfig{
			BaseURL:           "https://www.ls-x.de",
			UserAgent:         "lsx-collector/1.0",
			Timeout:           60 * time.Second,
			RequestsPerSecond: 2,
			CalendarCacheTTL:  12 * time.Hour,
			MarketTimezone:    "Europe/Berlin",
		},
		Schedule: ScheduleConfig{
			Enabled:  true,
			SyncCron: "30 6 * * *",
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: true,
			MetricsPort:    9090,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the built-in defaults, the optional YAML file named by
// COLLECTOR_CONFIG and environment variables, in that order of precedence (last wins).
// A .env file in the working directory is loaded into the environment first.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("COLLECTOR_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Database = DatabaseConfig{
		Host:        getEnv("DB_HOST", c.Database.Host),
		Port:        getEnvAsInt("DB_PORT", c.Database.Port),
		User:        getEnv("DB_USR", c.Database.User),
		Password:    getEnv("DB_PASS", c.Database.Password),
		Database:    getEnv("DB_NAME", c.Database.Database),
		Schema:      getEnv("DB_SCHEMA", c.Database.Schema),
		SSLMode:     getEnv("DB_SSLMODE", c.Database.SSLMode),
		MaxConns:    getEnvAsInt("DB_MAX_CONNS", c.Database.MaxConns),
		UpsertChunk: getEnvAsInt("DB_UPSERT_CHUNK", c.Database.UpsertChunk),
	}
	c.Storage.Dir = getEnv("DATA_DIR", c.Storage.Dir)
	c.Ingest = IngestConfig{
		Workers:            getEnvAsInt("INGEST_WORKERS", c.Ingest.Workers),
		LocaleStrategy:     getEnv("INGEST_LOCALE_STRATEGY", c.Ingest.LocaleStrategy),
		Timezone:           getEnv("INGEST_TIMEZONE", c.Ingest.Timezone),
		ProgressCheckpoint: getEnvAsInt("INGEST_PROGRESS_PAGE", c.Ingest.ProgressCheckpoint),
		ExportXLSX:         getEnvAsBool("INGEST_EXPORT_XLSX", c.Ingest.ExportXLSX),
	}
	c.Sources = SourcesConfig{
		BaseURL:           getEnv("LSX_BASE_URL", c.Sources.BaseURL),
		UserAgent:         getEnv("LSX_USER_AGENT", c.Sources.UserAgent),
		Timeout:           getEnvAsDuration("LSX_TIMEOUT", c.Sources.Timeout),
		RequestsPerSecond: getEnvAsFloat("LSX_REQUESTS_PER_SECOND", c.Sources.RequestsPerSecond),
		CalendarCacheTTL:  getEnvAsDuration("LSX_CALENDAR_CACHE_TTL", c.Sources.CalendarCacheTTL),
		MarketTimezone:    getEnv("LSX_TIMEZONE", c.Sources.MarketTimezone),
	}
	c.Schedule = ScheduleConfig{
		Enabled:  getEnvAsBool("CRON_ENABLED", c.Schedule.Enabled),
		SyncCron: getEnv("CRON_SYNC_SCHEDULE", c.Schedule.SyncCron),
	}
	c.Observability = ObservabilityConfig{
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", c.Observability.MetricsEnabled),
		MetricsPort:    getEnvAsInt("METRICS_PORT", c.Observability.MetricsPort),
		TracingEnabled: getEnvAsBool("TRACING_ENABLED", c.Observability.TracingEnabled),
	}
	c.Log = LogConfig{
		Level:  getEnv("LOG_LEVEL", c.Log.Level),
		Format: getEnv("LOG_FORMAT", c.Log.Format),
	}
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Ingest.Workers < 1 {
		return errors.New("INGEST_WORKERS must be at least 1")
	}
	if c.Database.UpsertChunk < 1 {
		return errors.New("DB_UPSERT_CHUNK must be at least 1")
	}
	if c.Storage.Dir == "" {
		return errors.New("DATA_DIR is required")
	}
	if _, err := time.LoadLocation(c.Ingest.Timezone); err != nil {
		return fmt.Errorf("invalid INGEST_TIMEZONE: %w", err)
	}
	if _, err := time.LoadLocation(c.Sources.MarketTimezone); err != nil {
		return fmt.Errorf("invalid LSX_TIMEZONE: %w", err)
	}
	if _, err := url.Parse(c.Sources.BaseURL); err != nil {
		return fmt.Errorf("invalid LSX_BASE_URL: %w", err)
	}
	return nil
}

// Location returns the time zone trade timestamps are built in.
func (c *IngestConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Location returns the time zone of the exchange's trading hours.
func (c *SourcesConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.MarketTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
	if c.Schema != "" {
		dsn += " search_path=" + c.Schema
	}
	return dsn
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
