package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvConfigPath names the environment variable that points at the config file.
const EnvConfigPath = "LOOM_CONFIG"

// ModelConfig describes one entry in the models table. Entries are keyed by
// index ("1", "2", ...) so calling code can reference models positionally.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Type        string  `mapstructure:"type"` // "chat" (default) or "completion"
	ModelName   string  `mapstructure:"model_name"`
	APIBase     string  `mapstructure:"api_base"`
	APIVersion  string  `mapstructure:"api_version"`
	Engine      string  `mapstructure:"engine"`
	Temperature float64 `mapstructure:"temperature"`
	APIKeyEnv   string  `mapstructure:"api_key_env"`
}

// KeyEnv returns the environment variable holding this model's API key.
// Defaults to {PROVIDER}_API_KEY when api_key_env is not set.
func (m ModelConfig) KeyEnv() string {
	if m.APIKeyEnv != "" {
		return m.APIKeyEnv
	}
	return strings.ToUpper(m.Provider) + "_API_KEY"
}

// ServerConfig describes one MCP server under mcp.servers.
type ServerConfig struct {
	Command   string            `mapstructure:"command"`
	Args      []string          `mapstructure:"args"`
	Transport string            `mapstructure:"transport"` // stdio (default), sse, http
	URL       string            `mapstructure:"url"`       // for sse/http transports
	Env       map[string]string `mapstructure:"env"`
	Disabled  bool              `mapstructure:"disabled"`
}

type MCPConfig struct {
	Servers map[string]ServerConfig `mapstructure:"servers"`
}

type AgentConfig struct {
	MaxIterations    int    `mapstructure:"max_iterations"`
	ContextMaxTokens int    `mapstructure:"context_max_tokens"`
	ProfilesDir      string `mapstructure:"profiles_dir"`
}

type ServeConfig struct {
	Port int `mapstructure:"port"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type Config struct {
	Models               map[string]ModelConfig `mapstructure:"models"`
	DefaultModel         string                 `mapstructure:"default_model"`
	TokenRefreshInterval int                    `mapstructure:"token_refresh_interval"` // seconds
	MCP                  MCPConfig              `mapstructure:"mcp"`
	Agent                AgentConfig            `mapstructure:"agent"`
	Server               ServeConfig            `mapstructure:"server"`
	Storage              StorageConfig          `mapstructure:"storage"`
}

// Load reads the YAML config. LOOM_CONFIG takes precedence when set;
// otherwise viper searches the working directory and ~/.loom for loom.yaml.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path := os.Getenv(EnvConfigPath); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("loom")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.loom")
	}

	v.SetDefault("default_model", "1")
	v.SetDefault("token_refresh_interval", 3600)
	v.SetDefault("agent.max_iterations", 10)
	v.SetDefault("agent.context_max_tokens", 6000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("storage.db_path", filepath.Join(os.Getenv("HOME"), ".loom", "loom.db"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Expand ${VAR} references in fields that commonly carry secrets or
	// machine-specific values.
	for id, m := range cfg.Models {
		m.APIBase = ExpandEnv(m.APIBase)
		cfg.Models[id] = m
	}
	for name, s := range cfg.MCP.Servers {
		s.URL = ExpandEnv(s.URL)
		for k, val := range s.Env {
			s.Env[k] = ExpandEnv(val)
		}
		cfg.MCP.Servers[name] = s
	}
	cfg.Storage.DBPath = ExpandEnv(cfg.Storage.DBPath)
	cfg.Agent.ProfilesDir = ExpandEnv(cfg.Agent.ProfilesDir)

	return &cfg, nil
}

// ExpandEnv replaces a whole-string ${VAR} reference with the environment value.
// Other strings pass through untouched.
func ExpandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	return s
}

// Model returns the config for a model index, falling back to default_model
// when id is empty.
func (c *Config) Model(id string) (ModelConfig, error) {
	if len(c.Models) == 0 {
		return ModelConfig{}, fmt.Errorf("no models defined in config")
	}
	if id == "" {
		id = c.DefaultModel
	}
	m, ok := c.Models[id]
	if !ok {
		return ModelConfig{}, fmt.Errorf("model %q not defined in config", id)
	}
	return m, nil
}

// MCPServers returns the configured MCP server map. A missing mcp section
// yields an empty map, not an error.
func (c *Config) MCPServers() map[string]ServerConfig {
	if c.MCP.Servers == nil {
		return map[string]ServerConfig{}
	}
	return c.MCP.Servers
}
