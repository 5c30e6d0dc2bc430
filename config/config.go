package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the landlord service
type Config struct {
	General      GeneralConfig      `mapstructure:"general"`
	Server       ServerConfig       `mapstructure:"server"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline"`
	Sources      SourcesConfig      `mapstructure:"sources"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Notification NotificationConfig `mapstructure:"notification"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address     string   `mapstructure:"address"`
	JWTSecret   string   `mapstructure:"jwt_secret"`
	RefreshCron string   `mapstructure:"refresh_cron"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LLMConfig selects and configures the completion service.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // mistral, openai or gemini
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Normalize fills per-provider model defaults.
func (c LLMConfig) Normalize() LLMConfig {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = "mistral"
	}
	if strings.TrimSpace(c.Model) == "" {
		switch c.Provider {
		case "openai":
			c.Model = "gpt-4o-mini"
		case "gemini":
			c.Model = "gemini-2.5-flash"
		default:
			c.Model = "mistral-large-latest"
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

func (c LLMConfig) Validate() error {
	switch c.Provider {
	case "mistral", "openai", "gemini":
	default:
		return fmt.Errorf("llm.provider %q not supported (mistral, openai, gemini)", c.Provider)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2]")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("llm.max_tokens cannot be negative")
	}
	return nil
}

// PipelineConfig tunes the message pipeline and the batch refresher.
type PipelineConfig struct {
	ToolTimeout        time.Duration `mapstructure:"tool_timeout"`
	DefaultLocation    string        `mapstructure:"default_location"`
	RefreshBatchSize   int           `mapstructure:"refresh_batch_size"`
	RefreshConcurrency int           `mapstructure:"refresh_concurrency"`
}

func (c PipelineConfig) Normalize() PipelineConfig {
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = 15 * time.Second
	}
	if c.RefreshBatchSize <= 0 {
		c.RefreshBatchSize = 50
	}
	if c.RefreshConcurrency <= 0 {
		c.RefreshConcurrency = 4
	}
	c.DefaultLocation = strings.TrimSpace(c.DefaultLocation)
	return c
}

// SourcesConfig contains external search settings
type SourcesConfig struct {
	WebSearch WebSearchConfig `mapstructure:"web_search"`
}

// WebSearchConfig contains web search settings
type WebSearchConfig struct {
	Provider     string        `mapstructure:"provider"` // serper or brave
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	MaxResults   int           `mapstructure:"max_results"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

func (w WebSearchConfig) Validate() error {
	switch strings.ToLower(w.Provider) {
	case "", "serper", "brave":
		return nil
	}
	return fmt.Errorf("sources.web_search.provider %q not supported (serper, brave)", w.Provider)
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a Redis host is configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

func (r RedisConfig) Validate() error {
	if !r.Enabled() {
		return nil
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required when host is set")
	}
	return nil
}

// Addr returns host:port.
func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a database is configured.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.URL) != "" || strings.TrimSpace(p.Host) != ""
}

func (p PostgresConfig) Validate() error {
	if !p.Enabled() || strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN returns a lib/pq connection URL.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   p.Host + ":" + p.Port,
		Path:   "/" + p.DBName,
	}
	if p.User != "" {
		u.User = url.UserPassword(p.User, p.Password)
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	u.RawQuery = "sslmode=" + url.QueryEscape(ssl)
	return u.String()
}

// NotificationConfig configures the outbound email sender.
type NotificationConfig struct {
	SMTPHost  string `mapstructure:"smtp_host"`
	SMTPPort  int    `mapstructure:"smtp_port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	From      string `mapstructure:"from"`
	Recipient string `mapstructure:"recipient"`
}

// Enabled reports whether email delivery is possible.
func (n NotificationConfig) Enabled() bool {
	return strings.TrimSpace(n.SMTPHost) != "" && strings.TrimSpace(n.Recipient) != ""
}

func (n NotificationConfig) Validate() error {
	if !n.Enabled() {
		return nil
	}
	if n.SMTPPort <= 0 {
		return fmt.Errorf("notification.smtp_port must be > 0")
	}
	if strings.TrimSpace(n.From) == "" && strings.TrimSpace(n.Username) == "" {
		return fmt.Errorf("notification.from required when smtp_host is set")
	}
	return nil
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.debug", false)
	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.refresh_cron", "")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("llm.provider", "mistral")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("pipeline.tool_timeout", "15s")
	v.SetDefault("pipeline.default_location", "")
	v.SetDefault("pipeline.refresh_batch_size", 50)
	v.SetDefault("pipeline.refresh_concurrency", 4)
	v.SetDefault("sources.web_search.provider", "serper")
	v.SetDefault("sources.web_search.serper_api_key", "")
	v.SetDefault("sources.web_search.brave_api_key", "")
	v.SetDefault("sources.web_search.max_results", 5)
	v.SetDefault("sources.web_search.timeout", "10s")
	v.SetDefault("storage.postgres.url", "")
	v.SetDefault("storage.postgres.host", "")
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.user", "")
	v.SetDefault("storage.postgres.password", "")
	v.SetDefault("storage.postgres.dbname", "")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.postgres.timeout", "5s")
	v.SetDefault("storage.redis.host", "")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.timeout", "3s")
	v.SetDefault("notification.smtp_host", "")
	v.SetDefault("notification.smtp_port", 587)
	v.SetDefault("notification.username", "")
	v.SetDefault("notification.password", "")
	v.SetDefault("notification.from", "")
	v.SetDefault("notification.recipient", "")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "landlord")
}

// Load reads configuration from path (or the default search paths when path
// is empty) and the LANDLORD_* environment. A missing config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("LANDLORD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path != "" && os.IsNotExist(err)) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.LLM = cfg.LLM.Normalize()
	cfg.Pipeline = cfg.Pipeline.Normalize()

	for _, validate := range []func() error{
		cfg.LLM.Validate,
		cfg.Sources.WebSearch.Validate,
		cfg.Storage.Redis.Validate,
		cfg.Storage.Postgres.Validate,
		cfg.Notification.Validate,
	} {
		if err := validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// LoadConfig is Load for command entry points: any error is fatal.
func LoadConfig(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	return cfg
}
