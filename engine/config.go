// Package engine holds the runtime configuration of Witness Runtime: the TOML
// sections, their defaults and validation, and the thread-safe repository the
// composition root publishes them through.
package engine

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/arturoeanton/witness-runtime/security/sanitizer"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig wraps every validation failure returned by LoadConfig
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigWorkspace represents the complete configuration structure for Witness
// Runtime. It is loaded from the config.toml file.
type ConfigWorkspace struct {
	ServerConfig    ServerConfig    `toml:"server"`
	LoggingConfig   LoggingConfig   `toml:"logging"`
	RateLimitConfig RateLimitConfig `toml:"rate_limit"`
	RedisConfig     RedisConfig     `toml:"redis"`
	DatabaseConfig  DatabaseConfig  `toml:"database"`
	SecurityConfig  SecurityConfig  `toml:"security"`
	TwilioConfig    TwilioConfig    `toml:"twilio"`
	MailConfig      MailConfig      `toml:"mail"`
	NotifyConfig    NotifyConfig    `toml:"notify"`
	DebugConfig     DebugConfig     `toml:"debug"`
	MonitorConfig   MonitorConfig   `toml:"monitor"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Address      string `toml:"address" validate:"required"`
	ReadTimeout  int    `toml:"read_timeout" validate:"gte=0"`
	WriteTimeout int    `toml:"write_timeout" validate:"gte=0"`
	BodyLimit    string `toml:"body_limit"`
	TLSCert      string `toml:"tls_cert" validate:"required_with=TLSKey"`
	TLSKey       string `toml:"tls_key" validate:"required_with=TLSCert"`

	// proxy addresses or CIDR ranges whose X-Forwarded-For is honored;
	// empty means the peer address is the client
	TrustedProxies string `toml:"trusted_proxies"`
}

// LoggingConfig configures the secure logger. Verbose prints debug entries
// in development; Development switches from forwarding to console output.
type LoggingConfig struct {
	Verbose        bool             `toml:"verbose"`
	Development    bool             `toml:"development"`
	Prefix         string           `toml:"prefix"`
	BufferCapacity int              `toml:"buffer_capacity" validate:"gte=0,lte=100000"`
	ForwardToRedis bool             `toml:"forward_to_redis"`
	ForwardKey     string           `toml:"forward_key"`
	ForwardMaxLen  int64            `toml:"forward_max_len" validate:"gte=0"`
	Redaction      sanitizer.Config `toml:"redaction"`
}

// RateLimitConfig configures the sliding-window limiter. Supports memory and
// redis backends and exclusion rules for the HTTP middleware.
type RateLimitConfig struct {
	Enabled bool `toml:"enabled"` // Enable rate limiting (default: true when the section is absent)

	MaxRequests int   `toml:"max_requests" validate:"gte=0"` // Requests per identifier per window (default: 10)
	WindowMs    int64 `toml:"window_ms" validate:"gte=0"`    // Window width in milliseconds (default: 60000)

	// Storage backend: "memory" or "redis" (default: "memory")
	Backend         string `toml:"backend" validate:"omitempty,oneof=memory redis"`
	CleanupInterval int    `toml:"cleanup_interval" validate:"gte=0"`
	KeyPrefix       string `toml:"key_prefix"`

	// Response configuration
	RetryAfterHeader bool   `toml:"retry_after_header"` // Include Retry-After header
	ErrorMessage     string `toml:"error_message"`      // Custom error message

	// Exclusions
	ExcludedIPs   string `toml:"excluded_ips"`   // Comma-separated IPs or CIDRs
	ExcludedPaths string `toml:"excluded_paths"` // Comma-separated path prefixes
}

// RedisConfig configures the optional redis client. An empty host disables it.
type RedisConfig struct {
	Host              string `toml:"host"`
	Password          string `toml:"password"`
	DB                int    `toml:"db" validate:"gte=0"`
	MaxConnectionPool int    `toml:"maxconnectionpool" validate:"gte=0"`
}

// DatabaseConfig configures the contact store
type DatabaseConfig struct {
	Driver       string `toml:"driver" validate:"oneof=sqlite3 postgres"`
	DSN          string `toml:"dsn" validate:"required"`
	MaxOpenConns int    `toml:"max_open_conns" validate:"gte=0"`
	AutoMigrate  bool   `toml:"auto_migrate"`
}

// SecurityConfig configures encryption at rest. EncryptionKey is a base64
// 32-byte key or a passphrase; empty stores phones in clear.
type SecurityConfig struct {
	EncryptionKey string `toml:"encryption_key"`
}

// TwilioConfig configures SMS alerts
type TwilioConfig struct {
	Enable     bool   `toml:"enable"`
	AccountSid string `toml:"account_sid" validate:"required_if=Enable true"`
	AuthToken  string `toml:"auth_token" validate:"required_if=Enable true"`
	From       string `toml:"from" validate:"required_if=Enable true"`
}

// MailConfig configures email alerts
type MailConfig struct {
	Enable       bool   `toml:"enable"`
	MailSMTP     string `toml:"smtp" validate:"required_if=Enable true"`
	MailSMTPPort string `toml:"port"`
	MailFrom     string `toml:"from" validate:"omitempty,email"`
	MailPassword string `toml:"password"`
}

// NotifyConfig configures alert dispatch. Alerts repeated for the same
// contact within DedupeSeconds are not sent again.
type NotifyConfig struct {
	DedupeSeconds int    `toml:"dedupe_seconds" validate:"gte=0"`
	SMSTemplate   string `toml:"sms_template"`
	EmailSubject  string `toml:"email_subject"`
	EmailTemplate string `toml:"email_template"`
}

// DebugConfig configures debug endpoints availability and security.
type DebugConfig struct {
	Enabled    bool   `toml:"enabled"`     // Enable debug endpoints (default: false)
	AuthToken  string `toml:"auth_token"`  // Optional bearer token for debug endpoints
	AllowedIPs string `toml:"allowed_ips"` // Comma-separated list of allowed IPs (empty = all)
}

// MonitorConfig configures monitoring and health check endpoints.
type MonitorConfig struct {
	Enabled         bool   `toml:"enabled"`           // Enable monitoring endpoints
	HealthCheckPath string `toml:"health_check_path"` // default: /health
	MetricsPath     string `toml:"metrics_path"`      // default: /metrics
}

// Default templates used when [notify] leaves them empty. Triple braces keep
// the text unescaped since SMS and these emails are plain text.
const (
	DefaultSMSTemplate   = "{{{name}}}, {{{sender}}} needs help: {{{message}}} {{{maps_url}}}"
	DefaultEmailSubject  = "Emergency alert from {{{sender}}}"
	DefaultEmailTemplate = "Hello {{{name}}},\n\n{{{sender}}} triggered an emergency alert:\n\n{{{message}}}\n\nLocation: {{{maps_url}}}\n{{#address}}Address: {{{address}}}\n{{/address}}{{#recording_url}}Recording: {{{recording_url}}}\n{{/recording_url}}"
)

// DefaultConfig returns a configuration with every default applied
func DefaultConfig() ConfigWorkspace {
	config := ConfigWorkspace{
		RateLimitConfig: RateLimitConfig{Enabled: true, RetryAfterHeader: true},
		MonitorConfig:   MonitorConfig{Enabled: true},
		DatabaseConfig:  DatabaseConfig{AutoMigrate: true},
	}
	config.ApplyDefaults()
	return config
}

// ApplyDefaults fills zero values with their defaults
func (c *ConfigWorkspace) ApplyDefaults() {
	if c.ServerConfig.Address == "" {
		c.ServerConfig.Address = ":8080"
	}
	if c.ServerConfig.ReadTimeout == 0 {
		c.ServerConfig.ReadTimeout = 15
	}
	if c.ServerConfig.WriteTimeout == 0 {
		c.ServerConfig.WriteTimeout = 15
	}
	if c.ServerConfig.BodyLimit == "" {
		c.ServerConfig.BodyLimit = "64K"
	}

	if c.LoggingConfig.Prefix == "" {
		c.LoggingConfig.Prefix = "witness"
	}
	if c.LoggingConfig.BufferCapacity == 0 {
		c.LoggingConfig.BufferCapacity = 100
	}
	if c.LoggingConfig.ForwardKey == "" {
		c.LoggingConfig.ForwardKey = "witness:logs"
	}
	if c.LoggingConfig.ForwardMaxLen == 0 {
		c.LoggingConfig.ForwardMaxLen = 1000
	}

	rl := &c.RateLimitConfig
	if rl.MaxRequests == 0 {
		rl.MaxRequests = 10
	}
	if rl.WindowMs == 0 {
		rl.WindowMs = 60000
	}
	if rl.Backend == "" {
		rl.Backend = "memory"
	}
	if rl.CleanupInterval == 0 {
		rl.CleanupInterval = 10
	}
	if rl.KeyPrefix == "" {
		rl.KeyPrefix = "ratelimit:"
	}
	if rl.ErrorMessage == "" {
		rl.ErrorMessage = "Too many attempts. Please try again later."
	}

	if c.DatabaseConfig.Driver == "" {
		c.DatabaseConfig.Driver = "sqlite3"
	}
	if c.DatabaseConfig.DSN == "" {
		c.DatabaseConfig.DSN = "file:witness.db?cache=shared"
	}

	if c.MailConfig.MailSMTPPort == "" {
		c.MailConfig.MailSMTPPort = "587"
	}

	if c.NotifyConfig.DedupeSeconds == 0 {
		c.NotifyConfig.DedupeSeconds = 300
	}
	if c.NotifyConfig.SMSTemplate == "" {
		c.NotifyConfig.SMSTemplate = DefaultSMSTemplate
	}
	if c.NotifyConfig.EmailSubject == "" {
		c.NotifyConfig.EmailSubject = DefaultEmailSubject
	}
	if c.NotifyConfig.EmailTemplate == "" {
		c.NotifyConfig.EmailTemplate = DefaultEmailTemplate
	}

	if c.MonitorConfig.HealthCheckPath == "" {
		c.MonitorConfig.HealthCheckPath = "/health"
	}
	if c.MonitorConfig.MetricsPath == "" {
		c.MonitorConfig.MetricsPath = "/metrics"
	}
}

// Validate checks the validator tags of every section
func (c *ConfigWorkspace) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// LoadConfig reads a TOML file, applies defaults and validates the result.
// Sections absent from the file keep the values of DefaultConfig.
func LoadConfig(path string) (ConfigWorkspace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ConfigWorkspace{}, err
	}
	return ParseConfig(string(data))
}

// ParseConfig decodes TOML text the same way LoadConfig does
func ParseConfig(data string) (ConfigWorkspace, error) {
	config := DefaultConfig()
	if _, err := toml.Decode(data, &config); err != nil {
		return ConfigWorkspace{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return ConfigWorkspace{}, err
	}
	return config, nil
}
