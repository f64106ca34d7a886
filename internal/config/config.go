// Package config loads the splgraph YAML configuration file.
//
// Every section is optional; Default fills in the values the serve command
// uses without a file. ${VAR} and ${VAR:-default} references are replaced
// with environment variables before parsing, and $$ escapes a dollar sign.
//
//	schema: [schema.graphql]
//	data: fixture.yaml
//	server:
//	  addr: ":8080"
//	  timeout: 10s
//	  cors: ["*"]
//	log:
//	  level: ${LOG_LEVEL:-info}
//	otel:
//	  endpoint: localhost:4317
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of the configuration file.
type Config struct {
	Schema  []string      `yaml:"schema"`
	Data    string        `yaml:"data"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Otel    OtelConfig    `yaml:"otel"`
	Metrics MetricsConfig `yaml:"metrics"`
	Filter  FilterConfig  `yaml:"filter"`
	Fixture FixtureConfig `yaml:"fixture"`
}

type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	Path         string   `yaml:"path"`
	Pretty       bool     `yaml:"pretty"`
	Timeout      Duration `yaml:"timeout"`
	CORS         []string `yaml:"cors"`
	MaxBodyBytes int64    `yaml:"maxBodyBytes"`
	WebSocket    bool     `yaml:"websocket"`
	InitTimeout  Duration `yaml:"initTimeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// OtelConfig enables span export when Endpoint is set.
type OtelConfig struct {
	Endpoint string `yaml:"endpoint"`
	Service  string `yaml:"service"`
}

// MetricsConfig exposes Prometheus metrics on Path. An empty path disables
// the endpoint.
type MetricsConfig struct {
	Path string `yaml:"path"`
}

type FilterConfig struct {
	CostLimit uint64 `yaml:"costLimit"`
	CacheSize int    `yaml:"cacheSize"`
}

type FixtureConfig struct {
	EventInterval Duration `yaml:"eventInterval"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8080",
			Path:        "/graphql",
			Timeout:     Duration(10 * time.Second),
			WebSocket:   true,
			InitTimeout: Duration(10 * time.Second),
		},
		Log:     LogConfig{Level: "info", Format: "json"},
		Otel:    OtelConfig{Service: "splgraph"},
		Metrics: MetricsConfig{Path: "/metrics"},
		Filter:  FilterConfig{CacheSize: 256},
	}
}

// Load reads path on top of Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML data on top of Default. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(substituteEnvVars(string(data)))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format: must be json or console, got %q", c.Log.Format)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	if c.Server.Path == "" || c.Server.Path[0] != '/' {
		return fmt.Errorf("server.path: must start with /, got %q", c.Server.Path)
	}
	if c.Metrics.Path != "" && c.Metrics.Path == c.Server.Path {
		return fmt.Errorf("metrics.path: collides with server.path %q", c.Server.Path)
	}
	if c.Server.Timeout < 0 || c.Server.InitTimeout < 0 || c.Fixture.EventInterval < 0 {
		return errors.New("durations must not be negative")
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server.maxBodyBytes: must not be negative, got %d", c.Server.MaxBodyBytes)
	}
	if c.Filter.CacheSize < 0 {
		return fmt.Errorf("filter.cacheSize: must not be negative, got %d", c.Filter.CacheSize)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func substituteEnvVars(content string) string {
	const escaped = "\x00ESCAPED_DOLLAR\x00"
	content = strings.ReplaceAll(content, "$$", escaped)
	content = envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		if value, ok := os.LookupEnv(sub[1]); ok {
			return value
		}
		return sub[2]
	})
	return strings.ReplaceAll(content, escaped, "$")
}

// Duration is a time.Duration written as a Go duration string ("30s", "1m").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

func (d Duration) Duration() time.Duration { return time.Duration(d) }
