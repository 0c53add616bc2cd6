package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type RateLimitConfig struct {
	DefaultPerMinute int `yaml:"defaultPerMinute"`
}

// WorkersConfig lists the render worker nodes this process dispatches to.
// Endpoints are host:port addresses; the pool is built once at startup.
type WorkersConfig struct {
	Endpoints        []string `yaml:"endpoints"`
	RequestTimeoutMs int      `yaml:"requestTimeoutMs"`
}

// StorageConfig configures the durable object store for finished artifacts.
// Empty credentials fall back to the SDK's default provider chain.
type StorageConfig struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	Endpoint        string `yaml:"endpoint"`
}

// FallbackConfig controls local on-disk persistence used only when the
// durable store is unreachable.
type FallbackConfig struct {
	Dir string `yaml:"dir"`
}

// CallbackConfig provides the default base URL for client result callbacks
// when a dispatch request does not carry its own callback URL.
type CallbackConfig struct {
	BaseURL string `yaml:"baseURL"`
}

// ListenerConfig tunes the per-worker event stream listeners.
type ListenerConfig struct {
	ReconnectDelayMs int `yaml:"reconnectDelayMs"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Workers   WorkersConfig   `yaml:"workers"`
	Storage   StorageConfig   `yaml:"storage"`
	Fallback  FallbackConfig  `yaml:"fallback"`
	Callback  CallbackConfig  `yaml:"callback"`
	Listener  ListenerConfig  `yaml:"listener"`
}

func Load(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Workers.RequestTimeoutMs <= 0 {
		cfg.Workers.RequestTimeoutMs = 30000
	}
	if cfg.Listener.ReconnectDelayMs <= 0 {
		cfg.Listener.ReconnectDelayMs = 5000
	}
	if cfg.Fallback.Dir == "" {
		cfg.Fallback.Dir = "./data/failed_artifacts"
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("AWS_S3_BUCKET"); v != "" && cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = v
	}
}
