package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// APIKeyEnv is the environment variable holding the OpenRouter credential.
const APIKeyEnv = "OPEN_ROUTER_API_KEY"

// DefaultSystemPrompt is the writer persona prepended to every completion request.
const DefaultSystemPrompt = "You are a writer agent specializing in creating high-quality essays, stories, poems, emails, and letters. Provide creative, well-structured, and engaging responses tailored to the user's prompt."

// DefaultFooter is the credit line shown under the sidebar.
const DefaultFooter = "Made with ❤️ by Abdul Uzair"

// Config holds the application configuration
type Config struct {
	LLM     LLMConfig     `mapstructure:"llm"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	History HistoryConfig `mapstructure:"history"`
	UI      UIConfig      `mapstructure:"ui"`
}

// LLMConfig holds the completion endpoint configuration
type LLMConfig struct {
	BaseURL      string  `mapstructure:"base_url"`
	APIKey       string  `mapstructure:"api_key"`
	Model        string  `mapstructure:"model"`
	Temperature  float32 `mapstructure:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	SystemPrompt string  `mapstructure:"system_prompt"`
	AppTitle     string  `mapstructure:"app_title"`
	Referer      string  `mapstructure:"referer"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// LogConfig holds the logger configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// HistoryConfig selects the conversation store backend: "memory" or "sqlite".
// Both live only as long as the process.
type HistoryConfig struct {
	Backend string `mapstructure:"backend"`
}

// UIConfig holds page text that is not tied to the model.
type UIConfig struct {
	Footer string `mapstructure:"footer"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

// ConfigError reports a configuration value the program cannot start without.
type ConfigError struct {
	Key string
	Msg string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s environment variable is not set. Please configure it in your deployment platform's settings or in a .env file for local testing", e.Msg, e.Key)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "deepseek/deepseek-chat")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.system_prompt", DefaultSystemPrompt)
	v.SetDefault("llm.app_title", "Writer AI Chatbot")
	v.SetDefault("llm.referer", "")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("history.backend", "memory")
	v.SetDefault("ui.footer", DefaultFooter)
}

// Load resolves the configuration from, in increasing precedence: defaults, an
// optional config.yaml (or the file named by CONFIG_PATH), a .env file in the
// working directory, and the process environment. A missing credential is
// reported as a *ConfigError.
func Load() (*Config, error) {
	// .env never overrides variables already present in the environment.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("llm.api_key", APIKeyEnv); err != nil {
		return nil, fmt.Errorf("binding %s: %w", APIKeyEnv, err)
	}

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.LLM.APIKey = strings.TrimSpace(cfg.LLM.APIKey)
	if cfg.LLM.APIKey == "" {
		return nil, &ConfigError{Key: APIKeyEnv, Msg: "missing credential"}
	}

	return &cfg, nil
}
