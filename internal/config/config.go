package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Session SessionConfig `mapstructure:"session"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Log     LogConfig     `mapstructure:"log"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	EnableCORS bool   `mapstructure:"enable_cors"`
	BasePath   string `mapstructure:"base_path"`
}

// RedisConfig configures the durable conversation backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SessionConfig selects and tunes the conversation store.
type SessionConfig struct {
	Backend      string `mapstructure:"backend"`       // memory, redis
	HumanCap     int    `mapstructure:"human_cap"`     // windowed-history human message budget
	CacheSize    int    `mapstructure:"cache_size"`    // live session LRU bound
	UserSessions int    `mapstructure:"user_sessions"` // per-user session list cap
}

// LLMConfig configures the model endpoint.
type LLMConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	APIKey            string  `mapstructure:"api_key"`
	Model             string  `mapstructure:"model"`
	QuickModel        string  `mapstructure:"quick_model"` // title generation
	Temperature       float64 `mapstructure:"temperature"`
	ParallelToolCalls bool    `mapstructure:"parallel_tool_calls"`
}

// AgentConfig tunes the execution loop.
type AgentConfig struct {
	MaxSteps        int `mapstructure:"max_steps"`
	ToolCallRetries int `mapstructure:"tool_call_retries"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	ServiceName  string  `mapstructure:"service_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8911)
	v.SetDefault("server.enable_cors", true)
	v.SetDefault("server.base_path", "/fable")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("session.backend", "redis")
	v.SetDefault("session.human_cap", 30)
	v.SetDefault("session.cache_size", 512)
	v.SetDefault("session.user_sessions", 20)

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-5-nano")
	v.SetDefault("llm.quick_model", "gpt-5-nano")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.parallel_tool_calls", false)

	v.SetDefault("agent.max_steps", 20)
	v.SetDefault("agent.tool_call_retries", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.otlp_endpoint", "localhost:4318")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.service_name", "fable")
}

// Load reads configuration from the given file (optional), fable-config.*
// in the home directory or CWD, and FABLE_* environment variables.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FABLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("fable-config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing default config file is fine; defaults and env cover
		// everything. An explicitly named file must exist.
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the rest of the system cannot run with.
func (c *Config) Validate() error {
	switch c.Session.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	if c.Session.HumanCap <= 0 {
		return fmt.Errorf("session.human_cap must be positive, got %d", c.Session.HumanCap)
	}
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be positive, got %d", c.Agent.MaxSteps)
	}
	if c.Agent.ToolCallRetries <= 0 {
		return fmt.Errorf("agent.tool_call_retries must be positive, got %d", c.Agent.ToolCallRetries)
	}
	return nil
}
