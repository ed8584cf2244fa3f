package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
		// token bucket for the HTTP layer, not the vision call limiter
		RateLimitCapacity int `yaml:"rateLimitCapacity"`
		RateLimitRefill   int `yaml:"rateLimitRefill"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // postgres | mysql
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"database"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Queue struct {
		Broker            string `yaml:"broker"` // memory | redis
		Prefix            string `yaml:"prefix"`
		Concurrency       int    `yaml:"concurrency"`
		JobTimeoutSeconds int    `yaml:"jobTimeoutSeconds"`
	} `yaml:"queue"`

	Vision struct {
		APIKey             string  `yaml:"apiKey"`
		BaseURL            string  `yaml:"baseURL"`
		Model              string  `yaml:"model"`
		Temperature        float32 `yaml:"temperature"`
		MaxTokens          int     `yaml:"maxTokens"`
		RateLimitPerMinute int     `yaml:"rateLimitPerMinute"`
		MaxRetries         int     `yaml:"maxRetries"`
		RetryBaseDelayMS   int     `yaml:"retryBaseDelayMs"`
	} `yaml:"vision"`

	Storage struct {
		Driver   string `yaml:"driver"` // local | minio
		LocalDir string `yaml:"localDir"`
		Minio    struct {
			Endpoint   string `yaml:"endpoint"`
			AccessKey  string `yaml:"accessKey"`
			SecretKey  string `yaml:"secretKey"`
			BucketName string `yaml:"bucketName"`
			Region     string `yaml:"region"`
			UseSSL     bool   `yaml:"useSSL"`
		} `yaml:"minio"`
	} `yaml:"storage"`

	Reconciler struct {
		SweepSchedule           string `yaml:"sweepSchedule"`
		PruneSchedule           string `yaml:"pruneSchedule"`
		SweepLimit              int    `yaml:"sweepLimit"`
		CompletedRetentionHours int    `yaml:"completedRetentionHours"`
		FailedRetentionHours    int    `yaml:"failedRetentionHours"`
	} `yaml:"reconciler"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Load baca file config.yaml
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	// secrets may come from the environment instead of the file
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		cfg.Vision.APIKey = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimitCapacity == 0 {
		c.Server.RateLimitCapacity = 100
	}
	if c.Server.RateLimitRefill == 0 {
		c.Server.RateLimitRefill = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Queue.Broker == "" {
		c.Queue.Broker = "memory"
	}
	if c.Queue.Prefix == "" {
		c.Queue.Prefix = "screenwatch"
	}
	if c.Queue.Concurrency == 0 {
		c.Queue.Concurrency = 2
	}
	if c.Queue.JobTimeoutSeconds == 0 {
		c.Queue.JobTimeoutSeconds = 60
	}
	if c.Vision.BaseURL == "" {
		c.Vision.BaseURL = "https://api.groq.com/openai/v1"
	}
	if c.Vision.Model == "" {
		c.Vision.Model = "meta-llama/llama-4-scout-17b-16e-instruct"
	}
	if c.Vision.Temperature == 0 {
		c.Vision.Temperature = 0.3
	}
	if c.Vision.MaxTokens == 0 {
		c.Vision.MaxTokens = 2048
	}
	if c.Vision.RateLimitPerMinute == 0 {
		c.Vision.RateLimitPerMinute = 30
	}
	if c.Vision.MaxRetries == 0 {
		c.Vision.MaxRetries = 3
	}
	if c.Vision.RetryBaseDelayMS == 0 {
		c.Vision.RetryBaseDelayMS = 2000
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "local"
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = "uploads"
	}
	if c.Reconciler.SweepSchedule == "" {
		c.Reconciler.SweepSchedule = "@every 5m"
	}
	if c.Reconciler.PruneSchedule == "" {
		c.Reconciler.PruneSchedule = "@every 1h"
	}
	if c.Reconciler.SweepLimit == 0 {
		c.Reconciler.SweepLimit = 10
	}
	if c.Reconciler.CompletedRetentionHours == 0 {
		c.Reconciler.CompletedRetentionHours = 24
	}
	if c.Reconciler.FailedRetentionHours == 0 {
		c.Reconciler.FailedRetentionHours = 7 * 24
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Helper untuk build DSN MySQL. clientFoundRows makes RowsAffected count
// matched rows like postgres does, so the repository's zero-row checks do
// not misfire on same-value updates.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC&clientFoundRows=true",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq connection string
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Queue.JobTimeoutSeconds) * time.Second
}

func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Vision.RetryBaseDelayMS) * time.Millisecond
}

func (c *Config) CompletedRetention() time.Duration {
	return time.Duration(c.Reconciler.CompletedRetentionHours) * time.Hour
}

func (c *Config) FailedRetention() time.Duration {
	return time.Duration(c.Reconciler.FailedRetentionHours) * time.Hour
}
