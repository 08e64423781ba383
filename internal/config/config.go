package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Shopify   ShopifyConfig   `yaml:"shopify"`
	Mapping   MappingConfig   `yaml:"mapping"`
	Reporting ReportingConfig `yaml:"reporting"`
	Cache     CacheConfig     `yaml:"cache"`
	Storage   StorageConfig   `yaml:"storage"`
	Polling   PollingConfig   `yaml:"polling"`
	Notify    NotifyConfig    `yaml:"notify"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port               int      `yaml:"port"`
	Host               string   `yaml:"host"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port for the listener.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// AnalyticsConfig holds Google Analytics Data API settings
type AnalyticsConfig struct {
	PropertyID      string `yaml:"property_id"`
	CredentialsJSON string `yaml:"credentials_json"`
	CredentialsFile string `yaml:"credentials_file"`
	PageSize        int64  `yaml:"page_size"`
}

// ShopifyConfig holds Shopify Admin API settings
type ShopifyConfig struct {
	StoreURL       string `yaml:"store_url"`
	APIVersion     string `yaml:"api_version"`
	AccessToken    string `yaml:"access_token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	PageSize       int    `yaml:"page_size"`
}

// Timeout returns the configured timeout as a duration
func (c ShopifyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// shopifyCredentials is the JSON shape of SHOPIFY_CREDENTIALS_JSON.
type shopifyCredentials struct {
	StoreURL    string `json:"store_url"`
	APIVersion  string `json:"api_version"`
	AccessToken string `json:"access_token"`
}

// MappingConfig points at the marketer mapping file
type MappingConfig struct {
	Path string `yaml:"path"`
}

// ReportingConfig holds report settings
type ReportingConfig struct {
	Timezone string `yaml:"timezone"`
	// Realtime source: "live" calls the APIs, "snapshot" reads the worker's
	// latest snapshot.
	RealtimeMode          string `yaml:"realtime_mode"`
	WindowMinutes         int    `yaml:"window_minutes"`
	SnapshotMaxAgeSeconds int    `yaml:"snapshot_max_age_seconds"`
}

// Window returns the realtime purchase window as a duration
func (c ReportingConfig) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

// SnapshotMaxAge returns how old a snapshot may be before it is rejected
func (c ReportingConfig) SnapshotMaxAge() time.Duration {
	return time.Duration(c.SnapshotMaxAgeSeconds) * time.Second
}

// CacheConfig holds report cache settings
type CacheConfig struct {
	RedisURL             string `yaml:"redis_url"`
	RealtimeTTLSeconds   int    `yaml:"realtime_ttl_seconds"`
	HistoricalTTLSeconds int    `yaml:"historical_ttl_seconds"`
}

// RealtimeTTL returns the realtime report TTL
func (c CacheConfig) RealtimeTTL() time.Duration {
	return time.Duration(c.RealtimeTTLSeconds) * time.Second
}

// HistoricalTTL returns the historical report TTL
func (c CacheConfig) HistoricalTTL() time.Duration {
	return time.Duration(c.HistoricalTTLSeconds) * time.Second
}

// StorageConfig holds snapshot storage configuration
type StorageConfig struct {
	DatabaseURL string `yaml:"database_url"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3Prefix    string `yaml:"s3_prefix"`
	AWSRegion   string `yaml:"aws_region"`
	AWSProfile  string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
	AccessKey   string `yaml:"access_key"`
	SecretKey   string `yaml:"secret_key"`
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// PollingConfig holds snapshot worker configuration
type PollingConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	WindowMinutes   int `yaml:"window_minutes"`
	LockTTLSeconds  int `yaml:"lock_ttl_seconds"`
}

// Interval returns the polling interval as a duration
func (c PollingConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Window returns how far back the worker fetches orders
func (c PollingConfig) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

// LockTTL returns the snapshot lock TTL
func (c PollingConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// NotifyConfig holds new-sale notification settings
type NotifyConfig struct {
	Template       string `yaml:"template"`
	SeenTTLMinutes int    `yaml:"seen_ttl_minutes"`
}

// SeenTTL returns how long a viewer's seen orders are remembered
func (c NotifyConfig) SeenTTL() time.Duration {
	return time.Duration(c.SeenTTLMinutes) * time.Minute
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Analytics.PageSize == 0 {
		cfg.Analytics.PageSize = 10000
	}
	if cfg.Shopify.APIVersion == "" {
		cfg.Shopify.APIVersion = "2024-01"
	}
	if cfg.Shopify.TimeoutSeconds == 0 {
		cfg.Shopify.TimeoutSeconds = 30
	}
	if cfg.Shopify.PageSize == 0 {
		cfg.Shopify.PageSize = 250
	}
	if cfg.Mapping.Path == "" {
		cfg.Mapping.Path = "config/marketer_mapping.json"
	}
	if cfg.Reporting.Timezone == "" {
		cfg.Reporting.Timezone = "Asia/Ho_Chi_Minh"
	}
	if cfg.Reporting.RealtimeMode == "" {
		cfg.Reporting.RealtimeMode = "live"
	}
	if cfg.Reporting.WindowMinutes == 0 {
		cfg.Reporting.WindowMinutes = 30
	}
	if cfg.Reporting.SnapshotMaxAgeSeconds == 0 {
		cfg.Reporting.SnapshotMaxAgeSeconds = 300
	}
	if cfg.Cache.RealtimeTTLSeconds == 0 {
		cfg.Cache.RealtimeTTLSeconds = 60
	}
	if cfg.Cache.HistoricalTTLSeconds == 0 {
		cfg.Cache.HistoricalTTLSeconds = 3600
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-west-2"
	}
	if cfg.Storage.S3Prefix == "" {
		cfg.Storage.S3Prefix = "attribution/"
	}
	if cfg.Polling.IntervalSeconds == 0 {
		cfg.Polling.IntervalSeconds = 60
	}
	if cfg.Polling.WindowMinutes == 0 {
		cfg.Polling.WindowMinutes = 30
	}
	if cfg.Polling.LockTTLSeconds == 0 {
		cfg.Polling.LockTTLSeconds = 120
	}
	if cfg.Notify.SeenTTLMinutes == 0 {
		cfg.Notify.SeenTTLMinutes = 24 * 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("GA_PROPERTY_ID"); v != "" {
		cfg.Analytics.PropertyID = v
	}
	if v := os.Getenv("GOOGLE_CREDENTIALS_JSON"); v != "" {
		cfg.Analytics.CredentialsJSON = v
	}

	// The combined credentials blob first, then the single token override.
	if v := os.Getenv("SHOPIFY_CREDENTIALS_JSON"); v != "" {
		var creds shopifyCredentials
		if err := json.Unmarshal([]byte(v), &creds); err != nil {
			return nil, fmt.Errorf("parse SHOPIFY_CREDENTIALS_JSON: %w", err)
		}
		if creds.StoreURL != "" {
			cfg.Shopify.StoreURL = creds.StoreURL
		}
		if creds.APIVersion != "" {
			cfg.Shopify.APIVersion = creds.APIVersion
		}
		if creds.AccessToken != "" {
			cfg.Shopify.AccessToken = creds.AccessToken
		}
	}
	if v := os.Getenv("SHOPIFY_ACCESS_TOKEN"); v != "" {
		cfg.Shopify.AccessToken = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.RedisURL = v
	}
	if v := os.Getenv("MAPPING_PATH"); v != "" {
		cfg.Mapping.Path = v
	}
	if v := os.Getenv("REPORTING_TIMEZONE"); v != "" {
		cfg.Reporting.Timezone = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		cfg.Storage.S3Bucket = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	return cfg, nil
}

// Validate reports every missing or inconsistent required value.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.Analytics.PropertyID == "" {
		errs = append(errs, errors.New("analytics.property_id is required"))
	}
	if cfg.Analytics.CredentialsJSON == "" && cfg.Analytics.CredentialsFile == "" {
		errs = append(errs, errors.New("analytics credentials are required"))
	}
	if cfg.Shopify.StoreURL == "" {
		errs = append(errs, errors.New("shopify.store_url is required"))
	}
	if cfg.Shopify.AccessToken == "" {
		errs = append(errs, errors.New("shopify.access_token is required"))
	}
	if _, err := time.LoadLocation(cfg.Reporting.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("reporting.timezone %q: %w", cfg.Reporting.Timezone, err))
	}
	switch strings.ToLower(cfg.Reporting.RealtimeMode) {
	case "live":
	case "snapshot":
		if cfg.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("reporting.realtime_mode snapshot requires storage.database_url"))
		}
	default:
		errs = append(errs, fmt.Errorf("reporting.realtime_mode %q must be live or snapshot", cfg.Reporting.RealtimeMode))
	}
	return errors.Join(errs...)
}

// SnapshotMode reports whether realtime reports are served from snapshots.
func (c ReportingConfig) SnapshotMode() bool {
	return strings.EqualFold(c.RealtimeMode, "snapshot")
}
