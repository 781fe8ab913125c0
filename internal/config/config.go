// Package config loads clawd-mcp settings from an optional YAML file and the
// OPENCLAW_* environment. Environment variables win over the file, and the
// file wins over built-in defaults.
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config is read once at process start and treated as read-only afterwards.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Moltbook  MoltbookConfig  `yaml:"moltbook"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Doctor    DoctorConfig    `yaml:"doctor"`
	MCP       MCPConfig       `yaml:"mcp"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`

	WorkspacePath string `yaml:"workspace_path" env:"OPENCLAW_WORKSPACE_PATH"`
}

type GatewayConfig struct {
	URL     string        `yaml:"url"     env:"OPENCLAW_GATEWAY_URL"     envDefault:"http://127.0.0.1:18789"`
	Token   string        `yaml:"token"   env:"OPENCLAW_GATEWAY_TOKEN"`
	Timeout time.Duration `yaml:"timeout" env:"OPENCLAW_GATEWAY_TIMEOUT" envDefault:"30s"`
}

type MoltbookConfig struct {
	URL    string `yaml:"url"     env:"OPENCLAW_MOLTBOOK_URL"     envDefault:"https://www.moltbook.com/api/v1"`
	APIKey string `yaml:"api_key" env:"OPENCLAW_MOLTBOOK_API_KEY"`
}

type OllamaConfig struct {
	URL string `yaml:"url" env:"OPENCLAW_OLLAMA_URL" envDefault:"http://localhost:11434"`
}

// DoctorConfig points at the openclaw CLI used for diagnostics.
type DoctorConfig struct {
	Path    string        `yaml:"path"    env:"OPENCLAW_PATH"           envDefault:"openclaw"`
	Timeout time.Duration `yaml:"timeout" env:"OPENCLAW_DOCTOR_TIMEOUT" envDefault:"2m"`
}

type MCPConfig struct {
	Transport     string `yaml:"transport"      env:"OPENCLAW_MCP_TRANSPORT"   envDefault:"stdio"`
	HTTPListen    string `yaml:"http_listen"    env:"OPENCLAW_MCP_HTTP_LISTEN" envDefault:"127.0.0.1:8090"`
	ToolAllowlist string `yaml:"tool_allowlist" env:"OPENCLAW_TOOL_ALLOWLIST"`
}

type DashboardConfig struct {
	Listen    string `yaml:"listen"     env:"OPENCLAW_DASHBOARD_LISTEN"`
	JWTSecret string `yaml:"jwt_secret" env:"OPENCLAW_DASHBOARD_JWT_SECRET"`
}

type LoggingConfig struct {
	Level string `yaml:"level" env:"OPENCLAW_LOG_LEVEL" envDefault:"info"`
}

type TracingConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OPENCLAW_OTLP_ENDPOINT"`
}

// Load builds the effective configuration. The YAML file is read from
// OPENCLAW_CONFIG_FILE when set.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("OPENCLAW_CONFIG_FILE"))
}

// LoadFile is Load with an explicit config file path; an empty path skips the file.
func LoadFile(path string) (*Config, error) {
	var cfg Config

	// Defaults only: parse against an empty environment.
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// Real environment on top, without re-applying defaults over file values.
	if err := env.ParseWithOptions(&cfg, env.Options{DefaultValueTagName: "envNoDefault"}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Moltbook.APIKey == "" {
		cfg.Moltbook.APIKey = os.Getenv("MOLTBOOK_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or "" when unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks the fields every surface depends on.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Gateway.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("gateway.url %q is not an absolute URL", c.Gateway.URL)
	}
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("gateway.timeout must be positive")
	}
	if c.Doctor.Timeout <= 0 {
		return fmt.Errorf("doctor.timeout must be positive")
	}
	if strings.TrimSpace(c.Doctor.Path) == "" {
		return fmt.Errorf("doctor.path is required")
	}
	switch c.MCP.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("mcp.transport %q is not supported (stdio, http)", c.MCP.Transport)
	}
	if c.MCP.Transport == TransportHTTP && c.MCP.HTTPListen == "" {
		return fmt.Errorf("mcp.http_listen is required for the http transport")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported (debug, info, warn, error)", c.Logging.Level)
	}
	return nil
}
