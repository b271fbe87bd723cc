/*
 * Copyright (c) 2025, Flowplane Project.
 *
 * The Flowplane Project licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment variables used to configure flowplane
const EnvPrefix = "FLOWPLANE_"

// Config holds all configuration for the control plane
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	XDS       XDSConfig       `koanf:"xds"`
	Database  DatabaseConfig  `koanf:"database"`
	Logging   LoggingConfig   `koanf:"logging"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Bootstrap BootstrapConfig `koanf:"bootstrap"`
}

// ServerConfig holds the admin API server configuration
type ServerConfig struct {
	APIPort         int           `koanf:"api_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// XDSConfig holds the xDS gRPC server configuration
type XDSConfig struct {
	Port   int    `koanf:"port"`
	NodeID string `koanf:"node_id"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string         `koanf:"driver"` // "sqlite" or "postgres"
	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Postgres PostgresConfig `koanf:"postgres"`
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path string `koanf:"path"` // Path to SQLite database file
}

// PostgresConfig holds PostgreSQL-specific configuration
type PostgresConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	SSLMode  string `koanf:"sslmode"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `koanf:"level"`  // "debug", "info", "warn", "error"
	Format string `koanf:"format"` // "json" (default) or "text"
}

// MetricsConfig holds Prometheus metrics server configuration
type MetricsConfig struct {
	// Enabled indicates whether the metrics server should be started
	Enabled bool `koanf:"enabled"`

	// Port is the port for the metrics HTTP server
	Port int `koanf:"port"`
}

// BootstrapConfig controls the startup seeding pass
type BootstrapConfig struct {
	// SeedDefaultGateway creates the default gateway cluster, route
	// configuration, and listener when they are absent
	SeedDefaultGateway bool `koanf:"seed_default_gateway"`

	// SeedAdminToken creates a bootstrap admin token when no active
	// token exists. The secret is logged exactly once.
	SeedAdminToken bool `koanf:"seed_admin_token"`

	// DefaultGatewayPort is the listen port of the seeded default
	// gateway listener resource
	DefaultGatewayPort int `koanf:"default_gateway_port"`
}

// LoadConfig loads configuration from file, environment variables, and defaults
// Priority: Environment variables > Config file > Defaults
func LoadConfig(configPath string) (*Config, error) {
	cfg := defaultConfig()

	k := koanf.New(".")

	// Load config file if a path is provided
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Load environment variables with prefix
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)

		// Double underscore maps to a literal underscore inside a key,
		// single underscore separates config path segments
		s = strings.ReplaceAll(s, "__", "%UNDERSCORE%")
		s = strings.ReplaceAll(s, "_", ".")
		s = strings.ReplaceAll(s, "%UNDERSCORE%", "_")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Unmarshal into Config struct with DecodeHook for duration strings
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			Result:           cfg,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config struct with default configuration values
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			APIPort:         8080,
			ShutdownTimeout: 15 * time.Second,
		},
		XDS: XDSConfig{
			Port:   18000,
			NodeID: "flowplane-node",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path: "./data/flowplane.db",
			},
			Postgres: PostgresConfig{
				Port:    5432,
				SSLMode: "disable",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
		Bootstrap: BootstrapConfig{
			SeedDefaultGateway: true,
			SeedAdminToken:     true,
			DefaultGatewayPort: 10000,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validDrivers := []string{"sqlite", "postgres"}
	isValidDriver := false
	for _, d := range validDrivers {
		if c.Database.Driver == d {
			isValidDriver = true
			break
		}
	}
	if !isValidDriver {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, got: %s", c.Database.Driver)
	}

	if c.Database.Driver == "sqlite" && c.Database.SQLite.Path == "" {
		return fmt.Errorf("database.sqlite.path is required when database.driver is 'sqlite'")
	}

	if c.Database.Driver == "postgres" {
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required when database.driver is 'postgres'")
		}
		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required when database.driver is 'postgres'")
		}
	}

	// Validate log level
	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	isValidLevel := false
	for _, level := range validLevels {
		if strings.ToLower(c.Logging.Level) == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error, got: %s", c.Logging.Level)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be either 'json' or 'text', got: %s", c.Logging.Format)
	}

	// Validate ports
	if c.Server.APIPort < 1 || c.Server.APIPort > 65535 {
		return fmt.Errorf("server.api_port must be between 1 and 65535, got: %d", c.Server.APIPort)
	}

	if c.XDS.Port < 1 || c.XDS.Port > 65535 {
		return fmt.Errorf("xds.port must be between 1 and 65535, got: %d", c.XDS.Port)
	}

	if c.XDS.NodeID == "" {
		return fmt.Errorf("xds.node_id must not be empty")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be between 1 and 65535, got: %d", c.Metrics.Port)
		}
		if c.Metrics.Port == c.Server.APIPort {
			return fmt.Errorf("metrics.port cannot be same as server.api_port")
		}
		if c.Metrics.Port == c.XDS.Port {
			return fmt.Errorf("metrics.port cannot be same as xds.port")
		}
	}

	if c.Bootstrap.SeedDefaultGateway {
		if c.Bootstrap.DefaultGatewayPort < 1 || c.Bootstrap.DefaultGatewayPort > 65535 {
			return fmt.Errorf("bootstrap.default_gateway_port must be between 1 and 65535, got: %d", c.Bootstrap.DefaultGatewayPort)
		}
	}

	return nil
}

// PostgresDSN builds the connection string for the postgres driver
func (c *DatabaseConfig) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Postgres.Host, c.Postgres.Port, c.Postgres.Database,
		c.Postgres.User, c.Postgres.Password, c.Postgres.SSLMode)
}
