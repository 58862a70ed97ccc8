// Package config loads the server's listen address, per-model registry
// bootstrap list, CORS origins and log level from a file plus environment
// overrides, via viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/llamaedge/chat-core/backend"
)

// ModelConfig describes one graph to pre-register at startup.
type ModelConfig struct {
	Name           string  `mapstructure:"name"`
	PromptTemplate string  `mapstructure:"prompt_template"`
	CtxSize        uint64  `mapstructure:"ctx_size"`
	NPredict       uint64  `mapstructure:"n_predict"`
	Temperature    float32 `mapstructure:"temperature"`
	TopP           float32 `mapstructure:"top_p"`
}

// Metadata converts a ModelConfig into the backend.Metadata a Graph is
// built from.
func (m ModelConfig) Metadata() backend.Metadata {
	return backend.Metadata{
		CtxSize:        m.CtxSize,
		NPredict:       m.NPredict,
		Temperature:    m.Temperature,
		TopP:           m.TopP,
		PromptTemplate: m.PromptTemplate,
	}
}

// Config is the fully resolved server configuration.
type Config struct {
	ListenAddr   string        `mapstructure:"listen_addr"`
	LogLevel     string        `mapstructure:"log_level"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	RegistryMode string        `mapstructure:"registry_mode"`
	LRUCapacity  int           `mapstructure:"lru_capacity"`
	Models       []ModelConfig `mapstructure:"models"`
}

// Load reads configuration from these defaults, path (if non-empty), and
// environment variables prefixed CHATCORE_, in ascending priority.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("registry_mode", "chat")
	v.SetDefault("lru_capacity", 0)

	v.SetEnvPrefix("CHATCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &cfg, nil
}

// Mode normalizes the configured registry_mode string (environment
// overrides may supply any case) to lower case; the caller maps it to a
// registry Mode.
func (c *Config) Mode() string {
	return strings.ToLower(cast.ToString(c.RegistryMode))
}
