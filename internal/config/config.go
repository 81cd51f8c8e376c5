// Package config loads pipeline configuration from an optional YAML file,
// a .env file and environment variables. Environment variable names match
// the ones used by existing deployments (AIRTABLE_*, R2_*, DEFAULT_*).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/fpang/order-image-pipeline/internal/assets"
)

type Config struct {
	Records RecordsConfig `mapstructure:"records"`
	Gemini  GeminiConfig  `mapstructure:"gemini"`
	Blob    BlobConfig    `mapstructure:"blob"`
	Batch   BatchConfig   `mapstructure:"batch"`
	History HistoryConfig `mapstructure:"history"`
	Events  EventsConfig  `mapstructure:"events"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Server  ServerConfig  `mapstructure:"server"`
	Secrets SecretsConfig `mapstructure:"secrets"`
}

type RecordsConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	BaseID  string        `mapstructure:"base_id"`
	Table   string        `mapstructure:"table"`
	Window  time.Duration `mapstructure:"window"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type GeminiConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	Model        string        `mapstructure:"model"`
	ImageSize    string        `mapstructure:"image_size"`
	AspectRatio  string        `mapstructure:"aspect_ratio"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
}

type BlobConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	PublicURL string `mapstructure:"public_url"`
	Tagging   string `mapstructure:"tagging"`
}

// BatchConfig holds the run-level switches. The boolean fields are parsed by
// Load with ParseFlag rather than by viper so that only an explicit false
// turns a feature off.
type BatchConfig struct {
	Enabled          bool          `mapstructure:"-"`
	DefaultPrompt    string        `mapstructure:"default_prompt"`
	UseDefaultPrompt bool          `mapstructure:"-"`
	VariantCount     int           `mapstructure:"variant_count"`
	ImageConcurrency int           `mapstructure:"image_concurrency"`
	RunTimeout       time.Duration `mapstructure:"run_timeout"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
}

type HistoryConfig struct {
	Table string        `mapstructure:"table"`
	TTL   time.Duration `mapstructure:"ttl"`
}

type EventsConfig struct {
	Bus    string `mapstructure:"bus"`
	Source string `mapstructure:"source"`
}

type NotifyConfig struct {
	Enabled bool   `mapstructure:"-"`
	From    string `mapstructure:"from"`
}

type ServerConfig struct {
	Addr     string        `mapstructure:"addr"`
	Schedule time.Duration `mapstructure:"schedule"`
}

// SecretsConfig names the SSM parameters consulted when an API key is not
// provided directly.
type SecretsConfig struct {
	RecordsKeyParam string `mapstructure:"records_key_param"`
	GeminiKeyParam  string `mapstructure:"gemini_key_param"`
}

// Load reads configuration. configPath may be empty, in which case
// config.yaml is looked up in ./configs and the working directory and is
// optional.
func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Batch.Enabled = ParseFlag(v.GetString("batch.enabled"))
	cfg.Batch.UseDefaultPrompt = ParseFlag(v.GetString("batch.use_default_prompt"))
	cfg.Notify.Enabled = v.GetString("notify.enabled") != "" && ParseFlag(v.GetString("notify.enabled"))
	if cfg.Batch.DefaultPrompt == "" {
		cfg.Batch.DefaultPrompt = assets.DefaultFoodPrompt()
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("records.base_url", "https://api.airtable.com/v0")
	v.SetDefault("records.window", 24*time.Hour)
	v.SetDefault("records.timeout", 30*time.Second)
	v.SetDefault("gemini.model", "gemini-3-pro-image-preview")
	v.SetDefault("gemini.image_size", "2K")
	v.SetDefault("gemini.aspect_ratio", "16:9")
	v.SetDefault("gemini.rate_interval", time.Duration(0))
	v.SetDefault("blob.region", "auto")
	v.SetDefault("blob.tagging", "Project=order-image-pipeline")
	v.SetDefault("batch.enabled", "true")
	v.SetDefault("batch.default_prompt", "")
	v.SetDefault("batch.use_default_prompt", "true")
	v.SetDefault("batch.variant_count", 2)
	v.SetDefault("batch.image_concurrency", 1)
	v.SetDefault("batch.run_timeout", time.Duration(0))
	v.SetDefault("batch.fetch_timeout", 60*time.Second)
	v.SetDefault("history.ttl", 30*24*time.Hour)
	v.SetDefault("events.source", "order-image-pipeline")
	v.SetDefault("notify.enabled", "false")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.schedule", time.Duration(0))
	v.SetDefault("secrets.records_key_param", "/order-image-pipeline/prod/airtable-api-key")
	v.SetDefault("secrets.gemini_key_param", "/order-image-pipeline/prod/gemini-api-key")
}

// bindEnv maps config keys to the environment variable names used by the
// deployed functions.
func bindEnv(v *viper.Viper) {
	v.BindEnv("records.base_url", "AIRTABLE_API_URL")
	v.BindEnv("records.api_key", "AIRTABLE_API_KEY")
	v.BindEnv("records.base_id", "AIRTABLE_BASE_ID1")
	v.BindEnv("records.table", "AIRTABLE_TABLE_NAME1")
	v.BindEnv("records.window", "ELIGIBILITY_WINDOW")
	v.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	v.BindEnv("gemini.model", "GEMINI_IMAGE_MODEL")
	v.BindEnv("gemini.image_size", "GEMINI_IMAGE_SIZE")
	v.BindEnv("gemini.aspect_ratio", "GEMINI_ASPECT_RATIO")
	v.BindEnv("gemini.rate_interval", "GEMINI_RATE_INTERVAL")
	v.BindEnv("blob.endpoint", "R2_ENDPOINT")
	v.BindEnv("blob.bucket", "IMAGE_BUCKET")
	v.BindEnv("blob.region", "R2_REGION")
	v.BindEnv("blob.access_key", "R2_ACCESS_KEY_ID")
	v.BindEnv("blob.secret_key", "R2_SECRET_ACCESS_KEY")
	v.BindEnv("blob.public_url", "R2_PUBLIC_URL")
	v.BindEnv("batch.enabled", "AUTO_PROCESS_ENABLED")
	v.BindEnv("batch.default_prompt", "DEFAULT_FOOD_PROMPT")
	v.BindEnv("batch.use_default_prompt", "USE_DEFAULT_PROMPT")
	v.BindEnv("batch.variant_count", "DEFAULT_VARIATION_COUNT")
	v.BindEnv("batch.image_concurrency", "IMAGE_CONCURRENCY")
	v.BindEnv("batch.run_timeout", "RUN_TIMEOUT")
	v.BindEnv("history.table", "RUN_HISTORY_TABLE")
	v.BindEnv("events.bus", "EVENT_BUS_NAME")
	v.BindEnv("notify.enabled", "NOTIFY_ENABLED")
	v.BindEnv("notify.from", "SES_FROM_EMAIL")
	v.BindEnv("server.addr", "HTTP_ADDR")
	v.BindEnv("server.schedule", "SCHEDULE_INTERVAL")
	v.BindEnv("secrets.records_key_param", "SSM_AIRTABLE_KEY_PARAM")
	v.BindEnv("secrets.gemini_key_param", "SSM_API_KEY_PARAM")
}

// ParseFlag interprets a boolean-like setting where anything other than an
// explicit false value ("false", "0", "no", "off") means enabled.
func ParseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "false", "0", "no", "off":
		return false
	default:
		return true
	}
}

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	var missing []string
	check := func(val, name string) {
		if val == "" {
			missing = append(missing, name)
		}
	}
	check(c.Records.APIKey, "AIRTABLE_API_KEY")
	check(c.Records.BaseID, "AIRTABLE_BASE_ID1")
	check(c.Records.Table, "AIRTABLE_TABLE_NAME1")
	check(c.Gemini.APIKey, "GEMINI_API_KEY")
	check(c.Blob.Bucket, "IMAGE_BUCKET")
	check(c.Blob.PublicURL, "R2_PUBLIC_URL")
	if c.Notify.Enabled {
		check(c.Notify.From, "SES_FROM_EMAIL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
