// ABOUTME: Configuration loading and parsing for research-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted by Resolve and Load.
const (
	EnvConfigPath = "RESEARCH_GATEWAY_CONFIG"
	EnvSecret     = "RESEARCH_GATEWAY_SECRET"
	EnvPort       = "PORT"
)

// Result store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config represents the complete research-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Agent     AgentConfig     `yaml:"agent" toml:"agent"`
	Results   ResultsConfig   `yaml:"results" toml:"results"`
	Jobs      JobsConfig      `yaml:"jobs" toml:"jobs"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the HTTP listen address
type ServerConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`

	// WebSocketOrigins lists the origin host patterns accepted on the
	// WebSocket stream endpoint. Empty accepts any origin, matching the
	// permissive CORS policy of the HTTP endpoints.
	WebSocketOrigins []string `yaml:"websocket_origins" toml:"websocket_origins"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	// Secret is the shared bearer secret for /v1/chat/completions.
	Secret string `yaml:"secret" toml:"secret"`

	// JWTSecret enables HS256 bearer tokens on /api/v1 when set.
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// AgentConfig holds the remote agent connection
type AgentConfig struct {
	Endpoint string `yaml:"endpoint" toml:"endpoint"`

	// DedupBypassAttempts is the max-bad-attempt override used when a chat
	// request is retried after a 402.
	DedupBypassAttempts int `yaml:"dedup_bypass_attempts" toml:"dedup_bypass_attempts"`
}

// ResultsConfig selects the result store
type ResultsConfig struct {
	Backend string `yaml:"backend" toml:"backend"`
	Dir     string `yaml:"dir" toml:"dir"`
	Path    string `yaml:"path" toml:"path"`
}

// JobsConfig holds background job settings
type JobsConfig struct {
	Retention        time.Duration `yaml:"-" toml:"-"`
	ProgressInterval time.Duration `yaml:"-" toml:"-"`
	MaxJobs          int           `yaml:"max_jobs" toml:"max_jobs"`
	DefaultBudget    int           `yaml:"default_budget" toml:"default_budget"`

	// Raw string values for unmarshaling
	RetentionRaw        string `yaml:"retention" toml:"retention"`
	ProgressIntervalRaw string `yaml:"progress_interval" toml:"progress_interval"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 3000},
		Agent: AgentConfig{
			Endpoint:            "http://127.0.0.1:3001/v1/research",
			DedupBypassAttempts: 3,
		},
		Results: ResultsConfig{
			Backend: BackendFile,
			Dir:     "./tasks",
			Path:    "./tasks.db",
		},
		Jobs: JobsConfig{
			Retention:     time.Hour,
			RetentionRaw:  "1h",
			MaxJobs:       10000,
			DefaultBudget: 1_000_000,
		},
		Tailscale: TailscaleConfig{Hostname: "research-gateway"},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}

// DefaultPath returns the XDG config location:
// $XDG_CONFIG_HOME/research-gateway/gateway.yaml, falling back to ~/.config.
func DefaultPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "research-gateway", "gateway.yaml")
}

// Resolve loads configuration from path, then $RESEARCH_GATEWAY_CONFIG, then
// DefaultPath. A missing file at the default location yields the defaults;
// a missing file that was named explicitly is an error.
func Resolve(path string) (*Config, string, error) {
	explicit := true
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = DefaultPath()
		explicit = false
	}

	if !explicit {
		if _, err := os.Stat(path); path == "" || errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			if err := cfg.finish(); err != nil {
				return nil, "", err
			}
			return cfg, "", nil
		}
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish applies environment overrides, parses durations and validates.
func (c *Config) finish() error {
	if err := c.applyEnv(); err != nil {
		return fmt.Errorf("applying environment: %w", err)
	}
	if err := parseDurations(c); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

// applyEnv overrides file values with $PORT and $RESEARCH_GATEWAY_SECRET.
func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s %q is not a number", EnvPort, v)
		}
		c.Server.Port = port
	}
	if v := os.Getenv(EnvSecret); v != "" {
		c.Auth.Secret = v
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Agent.Endpoint == "" {
		return fmt.Errorf("agent.endpoint is required")
	}
	u, err := url.Parse(c.Agent.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("agent.endpoint %q must be an http(s) URL", c.Agent.Endpoint)
	}
	if c.Agent.DedupBypassAttempts < 1 {
		return fmt.Errorf("agent.dedup_bypass_attempts must be at least 1")
	}

	switch c.Results.Backend {
	case BackendFile:
		if c.Results.Dir == "" {
			return fmt.Errorf("results.dir is required for the file backend")
		}
	case BackendSQLite:
		if c.Results.Path == "" {
			return fmt.Errorf("results.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("results.backend %q must be %q or %q", c.Results.Backend, BackendFile, BackendSQLite)
	}

	if c.Jobs.MaxJobs < 1 {
		return fmt.Errorf("jobs.max_jobs must be at least 1")
	}
	if c.Jobs.DefaultBudget < 1 {
		return fmt.Errorf("jobs.default_budget must be at least 1")
	}
	if c.Jobs.Retention <= 0 {
		return fmt.Errorf("jobs.retention must be positive")
	}
	if c.Jobs.ProgressInterval < 0 {
		return fmt.Errorf("jobs.progress_interval must not be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Jobs.RetentionRaw != "" {
		cfg.Jobs.Retention, err = time.ParseDuration(cfg.Jobs.RetentionRaw)
		if err != nil {
			return fmt.Errorf("parsing retention %q: %w", cfg.Jobs.RetentionRaw, err)
		}
	}

	if cfg.Jobs.ProgressIntervalRaw != "" {
		cfg.Jobs.ProgressInterval, err = time.ParseDuration(cfg.Jobs.ProgressIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing progress_interval %q: %w", cfg.Jobs.ProgressIntervalRaw, err)
		}
	}

	return nil
}
