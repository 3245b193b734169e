// Package config loads and validates the application configuration. A single
// Config value is built at process start (config file + AUDITFORGE_ env vars +
// flag overrides via viper) and passed explicitly into constructors; the audit
// core itself holds no ambient global state.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Analyzer AnalyzerConfig `mapstructure:"analyzer" yaml:"analyzer"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Audit    AuditConfig    `mapstructure:"audit" yaml:"audit"`
	Publish  PublishConfig  `mapstructure:"publish" yaml:"publish"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
}

// LoggerConfig configures the zap logger and optional rotating file sink.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// DatabaseConfig configures the PostgreSQL audit store.
type DatabaseConfig struct {
	DSN            string        `mapstructure:"dsn" yaml:"dsn"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// AnalyzerConfig configures the Slither subprocess.
type AnalyzerConfig struct {
	Binary    string        `mapstructure:"binary" yaml:"binary"`
	Detectors []string      `mapstructure:"detectors" yaml:"detectors"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Supported LLM providers.
const (
	ProviderGroq   = "groq"
	ProviderGemini = "gemini"
)

// LLMConfig configures the text-generation collaborator.
type LLMConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
	APIKey   string `mapstructure:"api_key" yaml:"api_key"`
	Model    string `mapstructure:"model" yaml:"model"`
	// Endpoint overrides the provider's default API endpoint. Used in tests.
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	MaxTokens  int           `mapstructure:"max_tokens" yaml:"max_tokens"`

	// The generator is a shared, rate-limited external service: calls are
	// throttled and bounded rather than issued in unbounded parallel.
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	MaxInFlight       int `mapstructure:"max_in_flight" yaml:"max_in_flight"`
}

// AuditConfig bounds a single orchestration run.
type AuditConfig struct {
	PassThreshold  int `mapstructure:"pass_threshold" yaml:"pass_threshold"`
	MaxSourceBytes int `mapstructure:"max_source_bytes" yaml:"max_source_bytes"`
}

// PublishConfig configures report publishing.
type PublishConfig struct {
	// LedgerEndpoint is the file-storage bridge API. Empty disables ledger
	// storage; reports are then rendered without an external reference.
	LedgerEndpoint string        `mapstructure:"ledger_endpoint" yaml:"ledger_endpoint"`
	LedgerTimeout  time.Duration `mapstructure:"ledger_timeout" yaml:"ledger_timeout"`
	Network        string        `mapstructure:"network" yaml:"network"`
	ReportFormat   string        `mapstructure:"report_format" yaml:"report_format"`

	// CertificateKey signs audit certificates. Certificates are skipped when
	// unset.
	CertificateKey    string `mapstructure:"certificate_key" yaml:"certificate_key"`
	CertificateIssuer string `mapstructure:"certificate_issuer" yaml:"certificate_issuer"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// SetDefaults registers every default value on the given viper instance.
// Called before reading the config file so file/env/flag values override.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "auditforge")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)

	v.SetDefault("database.connect_timeout", 10*time.Second)

	v.SetDefault("analyzer.binary", "slither")
	v.SetDefault("analyzer.timeout", 5*time.Minute)

	v.SetDefault("llm.provider", ProviderGroq)
	v.SetDefault("llm.model", "llama3-70b-8192")
	v.SetDefault("llm.api_timeout", 60*time.Second)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.requests_per_minute", 30)
	v.SetDefault("llm.max_in_flight", 4)

	v.SetDefault("audit.pass_threshold", 80)
	v.SetDefault("audit.max_source_bytes", 1<<20)

	v.SetDefault("publish.network", "testnet")
	v.SetDefault("publish.report_format", "json")
	v.SetDefault("publish.ledger_timeout", 30*time.Second)
	v.SetDefault("publish.certificate_issuer", "auditforge")

	v.SetDefault("server.addr", ":8420")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Minute)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
}

// Load reads configuration from the optional config file, the environment
// (AUDITFORGE_ prefix, dots replaced by underscores) and defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.GetViper()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("AUDITFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env vars carry the day.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that can never work at runtime.
func (c *Config) Validate() error {
	if c.Audit.PassThreshold < 0 || c.Audit.PassThreshold > 100 {
		return fmt.Errorf("audit.pass_threshold must be within 0-100, got %d", c.Audit.PassThreshold)
	}
	if c.Audit.MaxSourceBytes <= 0 {
		return fmt.Errorf("audit.max_source_bytes must be positive, got %d", c.Audit.MaxSourceBytes)
	}
	if c.Analyzer.Timeout <= 0 {
		return fmt.Errorf("analyzer.timeout must be positive, got %s", c.Analyzer.Timeout)
	}
	switch c.LLM.Provider {
	case ProviderGroq, ProviderGemini:
	default:
		return fmt.Errorf("unknown llm.provider %q, supported: [%s, %s]", c.LLM.Provider, ProviderGroq, ProviderGemini)
	}
	if c.LLM.MaxInFlight <= 0 {
		return fmt.Errorf("llm.max_in_flight must be positive, got %d", c.LLM.MaxInFlight)
	}
	return nil
}
