// This file defines the configuration structure for the application.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	Port     int `mapstructure:"port"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`

	// Intervals are in minutes. Zero disables the job.
	Scheduler struct {
		CheckInterval      int `mapstructure:"check_interval"`
		ReconcileInterval  int `mapstructure:"reconcile_interval"`
		CleanupInterval    int `mapstructure:"cleanup_interval"`
		StaleCheckInterval int `mapstructure:"stale_check_interval"`
	} `mapstructure:"scheduler"`

	Queue struct {
		Workers         int `mapstructure:"workers"`
		PollInterval    int `mapstructure:"poll_interval"` // seconds
		MaxAttempts     int `mapstructure:"max_attempts"`
		RetryBackoff    int `mapstructure:"retry_backoff"` // seconds, multiplied by attempts
		StaleAfter      int `mapstructure:"stale_after"`   // minutes
		PageConcurrency int `mapstructure:"page_concurrency"`
		PageRetries     int `mapstructure:"page_retries"`
		PageRetryDelay  int `mapstructure:"page_retry_delay"` // seconds
	} `mapstructure:"queue"`

	Fetcher struct {
		Timeout           int     `mapstructure:"timeout"` // seconds
		UserAgent         string  `mapstructure:"user_agent"`
		RequestsPerSecond float64 `mapstructure:"requests_per_second"`
		Burst             int     `mapstructure:"burst"`
		MaxImageBytes     int64   `mapstructure:"max_image_bytes"`
	} `mapstructure:"fetcher"`

	Discovery struct {
		Timeout int `mapstructure:"timeout"` // seconds
	} `mapstructure:"discovery"`

	Storage struct {
		UploadRetries int    `mapstructure:"upload_retries"`
		UploadTimeout int    `mapstructure:"upload_timeout"` // seconds
		RetryDelay    int    `mapstructure:"retry_delay"`    // seconds
		APIBaseURL    string `mapstructure:"api_base_url"`
		Folder        string `mapstructure:"folder"`
		LocalPath     string `mapstructure:"local_path"`
		LocalBaseURL  string `mapstructure:"local_base_url"`
	} `mapstructure:"storage"`

	Imaging struct {
		MaxWidth  int `mapstructure:"max_width"`
		MaxHeight int `mapstructure:"max_height"`
		Quality   int `mapstructure:"quality"`
		MinWidth  int `mapstructure:"min_width"`
		MinHeight int `mapstructure:"min_height"`
	} `mapstructure:"imaging"`

	Retention struct {
		LogDays            int `mapstructure:"log_days"`
		CompletedQueueDays int `mapstructure:"completed_queue_days"`
	} `mapstructure:"retention"`

	Adapters struct {
		ScriptsPath string `mapstructure:"scripts_path"`
	} `mapstructure:"adapters"`

	Ingest struct {
		InboxPath string `mapstructure:"inbox_path"`
	} `mapstructure:"ingest"`

	Redis struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"redis"`

	Auth struct {
		JWTSecret string `mapstructure:"jwt_secret"`
		TokenTTL  int    `mapstructure:"token_ttl"` // hours
	} `mapstructure:"auth"`
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(".")

	// MANGO_DATABASE_PATH overrides `database.path`, and so on.
	v.SetEnvPrefix("MANGO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Default returns a Config populated with the same defaults Load uses,
// without reading any file or environment variable.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("database.path", "./mango-scraper.db")

	v.SetDefault("scheduler.check_interval", 10)
	v.SetDefault("scheduler.reconcile_interval", 360)
	v.SetDefault("scheduler.cleanup_interval", 60)
	v.SetDefault("scheduler.stale_check_interval", 15)

	v.SetDefault("queue.workers", 2)
	v.SetDefault("queue.poll_interval", 5)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.retry_backoff", 300)
	v.SetDefault("queue.stale_after", 30)
	v.SetDefault("queue.page_concurrency", 4)
	v.SetDefault("queue.page_retries", 3)
	v.SetDefault("queue.page_retry_delay", 2)

	v.SetDefault("fetcher.timeout", 30)
	v.SetDefault("fetcher.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("fetcher.requests_per_second", 2.0)
	v.SetDefault("fetcher.burst", 4)
	v.SetDefault("fetcher.max_image_bytes", 25<<20)

	v.SetDefault("discovery.timeout", 60)

	v.SetDefault("storage.upload_retries", 3)
	v.SetDefault("storage.upload_timeout", 60)
	v.SetDefault("storage.retry_delay", 1)
	v.SetDefault("storage.api_base_url", "https://api.cloudinary.com")
	v.SetDefault("storage.folder", "manga_chapters")
	v.SetDefault("storage.local_path", "./media")
	v.SetDefault("storage.local_base_url", "/media")

	v.SetDefault("imaging.max_width", 1200)
	v.SetDefault("imaging.max_height", 1800)
	v.SetDefault("imaging.quality", 85)
	v.SetDefault("imaging.min_width", 100)
	v.SetDefault("imaging.min_height", 100)

	v.SetDefault("retention.log_days", 30)
	v.SetDefault("retention.completed_queue_days", 7)

	v.SetDefault("adapters.scripts_path", "")
	v.SetDefault("ingest.inbox_path", "")
	v.SetDefault("redis.url", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24)
}

// Seconds converts an integer config value in seconds to a time.Duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Minutes converts an integer config value in minutes to a time.Duration.
func Minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
