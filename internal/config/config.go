package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Config is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Paths    PathsConfig    `json:"paths"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

// PathsConfig holds the filesystem areas used by the pipeline.
type PathsConfig struct {
	Templates  string `json:"templates"`
	Sandbox    string `json:"sandbox"`
	Agents     string `json:"agents"`
	Migrations string `json:"migrations"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable
// references. Missing path entries fall back to conventional defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Paths.Templates == "" {
		c.Paths.Templates = "data/templates"
	}
	if c.Paths.Sandbox == "" {
		c.Paths.Sandbox = "data/sandbox"
	}
	if c.Paths.Agents == "" {
		c.Paths.Agents = "data/agents"
	}
	if c.Paths.Migrations == "" {
		c.Paths.Migrations = "migrations"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
}
