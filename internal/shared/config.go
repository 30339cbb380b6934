package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/desertthunder/dird/internal/models"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Log             LogConfig             `toml:"log"`
	Database        DatabaseConfig        `toml:"database"`
	Server          ServerConfig          `toml:"server"`
	Engine          EngineConfig          `toml:"engine"`
	Auth            AuthConfig            `toml:"auth"`
	Events          EventsConfig          `toml:"events"`
	EnabledBackends []string              `toml:"enabled_backends"`
	Sources         []models.SourceConfig `toml:"sources"`
	Displays        []models.Display      `toml:"displays"`
	Profiles        []models.Profile      `toml:"profiles"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains the operational HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// EngineConfig contains lookup fan-out settings.
type EngineConfig struct {
	SourceTimeout  time.Duration `toml:"source_timeout"`
	MaxConcurrency int           `toml:"max_concurrency"`
}

// AuthConfig contains token verification settings.
type AuthConfig struct {
	JWTSecret string        `toml:"jwt_secret"`
	CacheSize int           `toml:"cache_size"`
	CacheTTL  time.Duration `toml:"cache_ttl"`
	Tokens    []TokenConfig `toml:"tokens"`
}

// TokenConfig is a statically provisioned token.
type TokenConfig struct {
	Token      string            `toml:"token"`
	UserUUID   string            `toml:"user_uuid"`
	TenantUUID string            `toml:"tenant_uuid"`
	External   map[string]string `toml:"external"`
}

// EventsConfig contains event publisher settings.
type EventsConfig struct {
	BufferSize int64 `toml:"buffer_size"`
	// WaitForAck makes a publish return only once every subscriber has handled the event.
	WaitForAck bool `toml:"wait_for_ack"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	config.Sources, config.Displays, config.Profiles = nil, nil, nil
	config.Auth.Tokens = nil
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks cross references between sources, displays and profiles.
func (c *Config) Validate() error {
	sources := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("%w: source without name", ErrInvalidConfig)
		}
		if s.Backend == "" {
			return fmt.Errorf("%w: source %q has no backend", ErrInvalidConfig, s.Name)
		}
		if sources[s.Name] {
			return fmt.Errorf("%w: duplicated source %q", ErrInvalidConfig, s.Name)
		}
		sources[s.Name] = true
	}

	displays := make(map[string]bool, len(c.Displays))
	for _, d := range c.Displays {
		if d.Name == "" {
			return fmt.Errorf("%w: display without name", ErrInvalidConfig)
		}
		displays[d.Name] = true
	}

	for _, p := range c.Profiles {
		if p.Name == "" {
			return fmt.Errorf("%w: profile without name", ErrInvalidConfig)
		}
		if p.Display != "" && !displays[p.Display] {
			return fmt.Errorf("%w: profile %q references unknown display %q", ErrInvalidConfig, p.Name, p.Display)
		}
	}

	if c.Engine.SourceTimeout < 0 {
		return fmt.Errorf("%w: negative engine.source_timeout", ErrInvalidConfig)
	}
	return nil
}
