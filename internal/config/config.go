// Package config loads controller settings. Environment variables override
// the optional YAML file, which overrides defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Provisioner drivers.
const (
	DriverCloudFormation = "cloudformation"
	DriverKubernetes     = "kubernetes"
	DriverDocker         = "docker"
)

// MemoryDatabaseURL selects the in-process store.
const MemoryDatabaseURL = "memory://"

// Config holds all configuration values for the controller.
type Config struct {
	// Database connection string, or "memory://"
	DatabaseURL string `mapstructure:"database_url"`

	// HTTP server port for the controller
	HTTPPort int `mapstructure:"http_port"`

	// Lifetime of every sandbox
	SandboxTTL time.Duration `mapstructure:"sandbox_ttl"`

	Provisioner ProvisionerConfig `mapstructure:"provisioner"`
	AWS         AWSConfig         `mapstructure:"aws"`
	Kubernetes  KubernetesConfig  `mapstructure:"kubernetes"`
	Docker      DockerConfig      `mapstructure:"docker"`
	Expiry      ExpiryConfig      `mapstructure:"expiry"`
	Auth        AuthConfig        `mapstructure:"auth"`

	// NATS server for lifecycle events. Empty disables publishing.
	NATSURL string `mapstructure:"nats_url"`

	// OTLP gRPC collector address
	OTELEndpoint string `mapstructure:"otel_endpoint"`

	LogLevel string `mapstructure:"log_level"`

	// Bearer secret for /internal endpoints. Empty disables them.
	InternalSecret string `mapstructure:"internal_secret"`
}

// ProvisionerConfig selects the provisioning backend.
type ProvisionerConfig struct {
	Driver  string        `mapstructure:"driver"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type AWSConfig struct {
	Region       string `mapstructure:"region"`
	InstanceType string `mapstructure:"instance_type"`
	ImageID      string `mapstructure:"image_id"`
}

type KubernetesConfig struct {
	Namespace      string `mapstructure:"namespace"`
	Image          string `mapstructure:"image"`
	ServiceAccount string `mapstructure:"service_account"`
	CPULimit       string `mapstructure:"cpu_limit"`
	MemoryLimit    string `mapstructure:"memory_limit"`
}

type DockerConfig struct {
	Image string `mapstructure:"image"`
}

// ExpiryConfig controls retries of failed expiry teardowns.
type ExpiryConfig struct {
	DestroyRetries int           `mapstructure:"destroy_retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
}

// AuthConfig holds the OAuth client and bearer validation settings.
type AuthConfig struct {
	Disabled     bool          `mapstructure:"disabled"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	RedirectURL  string        `mapstructure:"redirect_url"`
	UserInfoURL  string        `mapstructure:"userinfo_url"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	// Requests per second per user. Zero means unlimited.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"database_url":            "DATABASE_URL",
	"http_port":               "PORT",
	"sandbox_ttl":             "SANDBOX_TTL",
	"provisioner.driver":      "PROVISIONER_DRIVER",
	"provisioner.timeout":     "PROVISIONER_TIMEOUT",
	"aws.region":              "AWS_REGION",
	"aws.instance_type":       "AWS_INSTANCE_TYPE",
	"aws.image_id":            "AWS_IMAGE_ID",
	"kubernetes.namespace":    "KUBERNETES_NAMESPACE",
	"kubernetes.image":        "KUBERNETES_IMAGE",
	"kubernetes.cpu_limit":    "KUBERNETES_CPU_LIMIT",
	"kubernetes.memory_limit": "KUBERNETES_MEMORY_LIMIT",
	"docker.image":            "DOCKER_IMAGE",
	"expiry.destroy_retries":  "EXPIRY_DESTROY_RETRIES",
	"expiry.retry_backoff":    "EXPIRY_RETRY_BACKOFF",
	"auth.disabled":           "AUTH_DISABLED",
	"auth.client_id":          "GOOGLE_CLIENT_ID",
	"auth.client_secret":      "GOOGLE_CLIENT_SECRET",
	"auth.redirect_url":       "AUTH_REDIRECT_URL",
	"auth.userinfo_url":       "AUTH_USERINFO_URL",
	"auth.cache_ttl":          "AUTH_CACHE_TTL",
	"auth.rate_limit":         "AUTH_RATE_LIMIT",
	"auth.rate_burst":         "AUTH_RATE_BURST",
	"nats_url":                "NATS_URL",
	"otel_endpoint":           "OTEL_EXPORTER_OTLP_ENDPOINT",
	"log_level":               "LOG_LEVEL",
	"internal_secret":         "INTERNAL_SECRET",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", 6161)
	v.SetDefault("sandbox_ttl", 6*time.Hour)
	v.SetDefault("provisioner.driver", DriverCloudFormation)
	v.SetDefault("provisioner.timeout", 2*time.Minute)
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.instance_type", "t3.micro")
	v.SetDefault("kubernetes.namespace", "sandboxes")
	v.SetDefault("kubernetes.image", "alpine:3.20")
	v.SetDefault("kubernetes.cpu_limit", "500m")
	v.SetDefault("kubernetes.memory_limit", "256Mi")
	v.SetDefault("docker.image", "alpine:3.20")
	v.SetDefault("expiry.destroy_retries", 0)
	v.SetDefault("expiry.retry_backoff", time.Minute)
	v.SetDefault("auth.disabled", false)
	v.SetDefault("auth.redirect_url", "http://localhost:6161/auth/callback")
	v.SetDefault("auth.userinfo_url", "https://www.googleapis.com/oauth2/v3/userinfo")
	v.SetDefault("auth.cache_ttl", 5*time.Minute)
	v.SetDefault("auth.rate_limit", 5.0)
	v.SetDefault("auth.rate_burst", 10)
	v.SetDefault("otel_endpoint", "localhost:4317")
	v.SetDefault("log_level", "info")
}

// Load reads configuration. path may be empty, in which case sandplane.yaml
// in the working directory is used if present.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("sandplane")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func required(key string) error {
	return fmt.Errorf("%s is required (env: %s)", key, envBindings[key])
}

// Validate checks required values and enumerations.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return required("database_url")
	}

	c.Provisioner.Driver = strings.ToLower(c.Provisioner.Driver)
	switch c.Provisioner.Driver {
	case DriverCloudFormation, DriverKubernetes, DriverDocker:
	default:
		return fmt.Errorf("invalid provisioner.driver %q: must be one of %s, %s, %s",
			c.Provisioner.Driver, DriverCloudFormation, DriverKubernetes, DriverDocker)
	}

	if c.Provisioner.Driver == DriverCloudFormation && c.AWS.Region == "" {
		return required("aws.region")
	}
	if c.SandboxTTL <= 0 {
		return fmt.Errorf("sandbox_ttl must be positive, got %s", c.SandboxTTL)
	}
	if c.Expiry.DestroyRetries < 0 {
		return fmt.Errorf("expiry.destroy_retries must not be negative, got %d", c.Expiry.DestroyRetries)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port %d", c.HTTPPort)
	}
	return nil
}

// UsesMemoryStore reports whether records are kept in process memory.
func (c *Config) UsesMemoryStore() bool {
	return c.DatabaseURL == MemoryDatabaseURL
}
