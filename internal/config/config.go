package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/cuongbtq/mediaqueue/internal/domain"
	"github.com/cuongbtq/mediaqueue/internal/settings"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	mib = 1024 * 1024
)

// envRef matches ${NAME}. Bare $ is left alone so bcrypt hashes survive.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(envRef.FindStringSubmatch(ref)[1])
	})
}

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Worker   WorkerConfig   `yaml:"worker"`
	Limits   LimitsConfig   `yaml:"limits"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Admin    AdminConfig    `yaml:"admin"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	// AutoMigrate applies pending migrations at startup.
	AutoMigrate bool `yaml:"auto_migrate"`
}

// RabbitMQConfig holds the connection and exchange used to reach the chat gateway
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	BindingKey string           `yaml:"binding_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig declares an optional queue bound to the exchange. Leave Name
// empty when the gateway declares its own.
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// RedisConfig holds the connection to the channel registry and status mirror
type RedisConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	StatusTTL    time.Duration `yaml:"status_ttl"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level            string `yaml:"level"`
	Format           string `yaml:"format"`
	Output           string `yaml:"output"`
	EnableCaller     bool   `yaml:"enable_caller"`
	EnableStackTrace bool   `yaml:"enable_stack_trace"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	PollInterval       time.Duration             `yaml:"poll_interval"`
	StoreRetryInterval time.Duration             `yaml:"store_retry_interval"`
	ProgressInterval   time.Duration             `yaml:"progress_interval"`
	FinalizeTimeout    time.Duration             `yaml:"finalize_timeout"`
	ShutdownTimeout    time.Duration             `yaml:"shutdown_timeout"`
	ScratchDir         string                    `yaml:"scratch_dir"`
	Categories         map[string]CategoryConfig `yaml:"categories"`
}

// CategoryConfig configures one category's processor
type CategoryConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Timeout          time.Duration `yaml:"timeout"`
	Command          []string      `yaml:"command"`
	MaxInputMB       int64         `yaml:"max_input_mb"`
	Model            string        `yaml:"model"`
	MaxDimension     int           `yaml:"max_dimension"`
	MaxDuration      time.Duration `yaml:"max_duration"`
	AudioBitrateKbps int           `yaml:"audio_bitrate_kbps"`
}

// MaxInputBytes converts MaxInputMB to bytes.
func (c CategoryConfig) MaxInputBytes() int64 {
	return c.MaxInputMB * mib
}

// LimitsConfig holds guild upload limits
type LimitsConfig struct {
	DefaultUploadMB int64 `yaml:"default_upload_mb"`
	MaxUploadMB     int64 `yaml:"max_upload_mb"`
}

// DefaultUploadBytes converts DefaultUploadMB to bytes.
func (l LimitsConfig) DefaultUploadBytes() int64 {
	return l.DefaultUploadMB * mib
}

// MaxUploadBytes converts MaxUploadMB to bytes.
func (l LimitsConfig) MaxUploadBytes() int64 {
	return l.MaxUploadMB * mib
}

// MetricsConfig holds the worker's Prometheus listener
type MetricsConfig struct {
	Port int `yaml:"port"`
}

// AdminConfig guards configuration and operator routes
type AdminConfig struct {
	// TokenHash is the bcrypt hash of the admin bearer token.
	TokenHash string `yaml:"token_hash"`
}

// Load reads and parses the configuration file. ${VAR} references are
// expanded from the environment.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(expandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

func validPort(name string, port int) error {
	if port < MinPort || port > MaxPort {
		return fmt.Errorf("invalid %s port: %d (must be between %d and %d)", name, port, MinPort, MaxPort)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if err := validPort("database", c.Database.Port); err != nil {
		return err
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	return nil
}

func (c *Config) validateRedis() error {
	if c.Redis.Host == "" {
		return fmt.Errorf("redis host is required")
	}
	return validPort("redis", c.Redis.Port)
}

// ValidateAPIConfig checks the settings the API service needs
func (c *Config) ValidateAPIConfig() error {
	if err := validPort("server", c.Server.Port); err != nil {
		return err
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRedis(); err != nil {
		return err
	}

	if c.Limits.DefaultUploadMB < 0 || c.Limits.MaxUploadMB < 0 {
		return fmt.Errorf("upload limits must not be negative")
	}

	if c.Limits.MaxUploadMB > 0 && c.Limits.DefaultUploadMB > c.Limits.MaxUploadMB {
		return fmt.Errorf("limits default_upload_mb (%d) exceeds max_upload_mb (%d)", c.Limits.DefaultUploadMB, c.Limits.MaxUploadMB)
	}

	if c.Worker.ScratchDir == "" {
		return fmt.Errorf("worker scratch_dir is required for uploads")
	}

	return nil
}

// ValidateWorkerConfig checks the settings the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if err := validPort("rabbitmq", c.RabbitMQ.Port); err != nil {
		return err
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if err := c.validateRedis(); err != nil {
		return err
	}

	if c.Metrics.Port != 0 {
		if err := validPort("metrics", c.Metrics.Port); err != nil {
			return err
		}
	}

	if c.Worker.ScratchDir == "" {
		return fmt.Errorf("worker scratch_dir is required")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	enabled := 0
	for name, cat := range c.Worker.Categories {
		if !cat.Enabled {
			continue
		}
		enabled++
		if cat.Timeout <= 0 {
			return fmt.Errorf("worker category %s: timeout must be greater than 0", name)
		}
		if len(cat.Command) == 0 {
			return fmt.Errorf("worker category %s: command is required", name)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("worker needs at least one enabled category")
	}

	return nil
}

// CategoryDefaults returns the static limits of every configured category.
func (c *Config) CategoryDefaults() map[domain.Category]settings.CategoryDefaults {
	out := make(map[domain.Category]settings.CategoryDefaults, len(c.Worker.Categories))
	for name, cat := range c.Worker.Categories {
		out[domain.Category(name)] = settings.CategoryDefaults{
			MaxInputBytes:    cat.MaxInputBytes(),
			MaxDimension:     cat.MaxDimension,
			Model:            cat.Model,
			AudioBitrateKbps: cat.AudioBitrateKbps,
			MaxDuration:      cat.MaxDuration,
		}
	}
	return out
}
