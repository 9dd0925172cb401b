package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"syncboard/pkg/types"
)

// EnvPrefix prefixes every environment variable the server reads
const EnvPrefix = "SYNCBOARD_"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Database    *DatabaseConfig    `json:"database"`
	HTTP        *HTTPConfig        `json:"http"`
	WebSocket   *WebSocketConfig   `json:"websocket"`
	Sync        *SyncConfig        `json:"sync"`
	Hub         *HubConfig         `json:"hub"`
	Whiteboard  *WhiteboardConfig  `json:"whiteboard"`
	Permissions *PermissionsConfig `json:"permissions"`
	RateLimit   *RateLimitConfig   `json:"rate_limit"`
}

// FUNCTIONAL DISCOVERY: Database configuration supports SQLite optimizations
type DatabaseConfig struct {
	Path           string        `json:"path"`
	Timeout        time.Duration `json:"timeout"`
	MigrationsPath string        `json:"migrations_path"`
}

type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
}

// SyncConfig tunes synchronized object delivery
type SyncConfig struct {
	// QueueSize is the per-subscriber outbound buffer before a resync is forced
	QueueSize int `json:"queue_size" yaml:"queue_size"`
}

type HubConfig struct {
	Workers   int `json:"workers" yaml:"workers"`
	QueueSize int `json:"queue_size" yaml:"queue_size"`
}

type WhiteboardConfig struct {
	UndoDepth           int `json:"undo_depth"`
	MaxObjectsPerAction int `json:"max_objects_per_action"`
}

// RoleConfig is one role's permission layer
type RoleConfig struct {
	Priority int                    `json:"priority" yaml:"priority"`
	Values   map[string]interface{} `json:"values" yaml:"values"`
}

type PermissionsConfig struct {
	ProviderTimeout time.Duration          `json:"provider_timeout"`
	Defaults        map[string]interface{} `json:"defaults"`
	Roles           map[string]RoleConfig  `json:"roles"`
	DefaultRole     string                 `json:"default_role"`
}

type RateLimitConfig struct {
	CommandsPerSecond float64 `json:"commands_per_second"`
	Burst             int     `json:"burst"`
}

// DefaultConfig returns a configuration that runs a single node out of the box
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./data/syncboard.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
		},
		Sync: &SyncConfig{
			QueueSize: 256,
		},
		Hub: &HubConfig{
			Workers:   8,
			QueueSize: 1000,
		},
		Whiteboard: &WhiteboardConfig{
			UndoDepth:           100,
			MaxObjectsPerAction: 500,
		},
		Permissions: &PermissionsConfig{
			ProviderTimeout: 5 * time.Second,
			Defaults: map[string]interface{}{
				"chat/canSendMessage": true,
			},
			Roles: map[string]RoleConfig{
				"moderator": {
					Priority: 100,
					Values: map[string]interface{}{
						"conference/canOpenAndClose":                   true,
						"whiteboard/canCreate":                         true,
						"whiteboard/canUpdateObjects":                  true,
						"whiteboard/canUndo":                           true,
						"permissions/canGiveTemporaryPermission":       true,
						"permissions/canSeeAnyParticipantsPermissions": true,
						"media/canShareScreen":                         true,
						"whiteboard/maxObjectsPerAction":               float64(500),
					},
				},
				"participant": {
					Priority: 10,
					Values: map[string]interface{}{
						"whiteboard/canUpdateObjects":    true,
						"whiteboard/maxObjectsPerAction": float64(50),
					},
				},
			},
			DefaultRole: "participant",
		},
		RateLimit: &RateLimitConfig{
			CommandsPerSecond: 20,
			Burst:             40,
		},
	}
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}

	if c.Sync == nil || c.Sync.QueueSize <= 0 {
		return fmt.Errorf("sync queue size must be positive")
	}

	if c.Hub == nil {
		return fmt.Errorf("hub configuration is required")
	}
	if c.Hub.Workers <= 0 {
		return fmt.Errorf("hub workers must be positive")
	}
	if c.Hub.QueueSize <= 0 {
		return fmt.Errorf("hub queue size must be positive")
	}

	if c.Whiteboard == nil {
		return fmt.Errorf("whiteboard configuration is required")
	}
	if c.Whiteboard.UndoDepth <= 0 {
		return fmt.Errorf("whiteboard undo depth must be positive")
	}
	if c.Whiteboard.MaxObjectsPerAction < 0 {
		return fmt.Errorf("whiteboard max objects per action cannot be negative")
	}

	if err := c.Permissions.validate(); err != nil {
		return err
	}

	if c.RateLimit == nil {
		return fmt.Errorf("rate limit configuration is required")
	}
	if c.RateLimit.CommandsPerSecond < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}
	if c.RateLimit.CommandsPerSecond > 0 && c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}

	return nil
}

func (p *PermissionsConfig) validate() error {
	if p == nil {
		return fmt.Errorf("permissions configuration is required")
	}
	if p.ProviderTimeout <= 0 {
		return fmt.Errorf("permission provider timeout must be positive")
	}
	for name := range p.Roles {
		if !types.IsValidRole(name) {
			return fmt.Errorf("invalid role name %q", name)
		}
	}
	if p.DefaultRole != "" {
		if _, exists := p.Roles[p.DefaultRole]; !exists {
			return fmt.Errorf("default role %q is not defined", p.DefaultRole)
		}
	}
	return nil
}

// LoadFromEnv applies SYNCBOARD_* environment variables over the defaults
func LoadFromEnv() *Config {
	config := DefaultConfig()
	applyEnv(config)
	return config
}

func applyEnv(config *Config) {
	str := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	num("HTTP_PORT", &config.HTTP.Port)
	str("HTTP_HOST", &config.HTTP.Host)
	dur("HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	dur("HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)

	str("DATABASE_PATH", &config.Database.Path)
	dur("DATABASE_TIMEOUT", &config.Database.Timeout)
	str("DATABASE_MIGRATIONS_PATH", &config.Database.MigrationsPath)

	dur("WEBSOCKET_PING_INTERVAL", &config.WebSocket.PingInterval)
	dur("WEBSOCKET_READ_TIMEOUT", &config.WebSocket.ReadTimeout)

	num("SYNC_QUEUE_SIZE", &config.Sync.QueueSize)
	num("HUB_WORKERS", &config.Hub.Workers)
	num("HUB_QUEUE_SIZE", &config.Hub.QueueSize)
	num("WHITEBOARD_UNDO_DEPTH", &config.Whiteboard.UndoDepth)
	num("WHITEBOARD_MAX_OBJECTS_PER_ACTION", &config.Whiteboard.MaxObjectsPerAction)

	dur("PERMISSIONS_PROVIDER_TIMEOUT", &config.Permissions.ProviderTimeout)
	str("PERMISSIONS_DEFAULT_ROLE", &config.Permissions.DefaultRole)

	if v := os.Getenv(EnvPrefix + "RATE_LIMIT_COMMANDS_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.RateLimit.CommandsPerSecond = f
		}
	}
	num("RATE_LIMIT_BURST", &config.RateLimit.Burst)
}

// ConfigFile is the on-disk shape of the configuration
// FUNCTIONAL DISCOVERY: Separate struct for parsing to handle duration strings
type ConfigFile struct {
	Database    *DatabaseConfigFile    `json:"database" yaml:"database"`
	HTTP        *HTTPConfigFile        `json:"http" yaml:"http"`
	WebSocket   *WebSocketConfigFile   `json:"websocket" yaml:"websocket"`
	Sync        *SyncConfig            `json:"sync" yaml:"sync"`
	Hub         *HubConfig             `json:"hub" yaml:"hub"`
	Whiteboard  *WhiteboardConfigFile  `json:"whiteboard" yaml:"whiteboard"`
	Permissions *PermissionsConfigFile `json:"permissions" yaml:"permissions"`
	RateLimit   *RateLimitConfigFile   `json:"rate_limit" yaml:"rate_limit"`
}

type DatabaseConfigFile struct {
	Path           string `json:"path" yaml:"path"`
	Timeout        string `json:"timeout" yaml:"timeout"`
	MigrationsPath string `json:"migrations_path" yaml:"migrations_path"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port" yaml:"port"`
	ReadTimeout  string `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout string `json:"write_timeout" yaml:"write_timeout"`
	Host         string `json:"host" yaml:"host"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval" yaml:"ping_interval"`
	ReadTimeout  string `json:"read_timeout" yaml:"read_timeout"`
}

type WhiteboardConfigFile struct {
	UndoDepth           int  `json:"undo_depth" yaml:"undo_depth"`
	MaxObjectsPerAction *int `json:"max_objects_per_action" yaml:"max_objects_per_action"`
}

type PermissionsConfigFile struct {
	ProviderTimeout string                 `json:"provider_timeout" yaml:"provider_timeout"`
	Defaults        map[string]interface{} `json:"defaults" yaml:"defaults"`
	Roles           map[string]RoleConfig  `json:"roles" yaml:"roles"`
	DefaultRole     string                 `json:"default_role" yaml:"default_role"`
}

type RateLimitConfigFile struct {
	CommandsPerSecond *float64 `json:"commands_per_second" yaml:"commands_per_second"`
	Burst             int      `json:"burst" yaml:"burst"`
}

// LoadFromFile reads a configuration file over the defaults. Files ending in
// .yaml or .yml are YAML; anything else is JSON.
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, path); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

func applyFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file ConfigFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	default:
		err = json.Unmarshal(data, &file)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return file.apply(config)
}

func parseDuration(field, value string, dst *time.Duration) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}

func (f *ConfigFile) apply(config *Config) error {
	if f.Database != nil {
		if f.Database.Path != "" {
			config.Database.Path = f.Database.Path
		}
		if f.Database.MigrationsPath != "" {
			config.Database.MigrationsPath = f.Database.MigrationsPath
		}
		if err := parseDuration("database.timeout", f.Database.Timeout, &config.Database.Timeout); err != nil {
			return err
		}
	}

	if f.HTTP != nil {
		if f.HTTP.Port > 0 {
			config.HTTP.Port = f.HTTP.Port
		}
		if f.HTTP.Host != "" {
			config.HTTP.Host = f.HTTP.Host
		}
		if err := parseDuration("http.read_timeout", f.HTTP.ReadTimeout, &config.HTTP.ReadTimeout); err != nil {
			return err
		}
		if err := parseDuration("http.write_timeout", f.HTTP.WriteTimeout, &config.HTTP.WriteTimeout); err != nil {
			return err
		}
	}

	if f.WebSocket != nil {
		if err := parseDuration("websocket.ping_interval", f.WebSocket.PingInterval, &config.WebSocket.PingInterval); err != nil {
			return err
		}
		if err := parseDuration("websocket.read_timeout", f.WebSocket.ReadTimeout, &config.WebSocket.ReadTimeout); err != nil {
			return err
		}
	}

	if f.Sync != nil && f.Sync.QueueSize > 0 {
		config.Sync.QueueSize = f.Sync.QueueSize
	}

	if f.Hub != nil {
		if f.Hub.Workers > 0 {
			config.Hub.Workers = f.Hub.Workers
		}
		if f.Hub.QueueSize > 0 {
			config.Hub.QueueSize = f.Hub.QueueSize
		}
	}

	if f.Whiteboard != nil {
		if f.Whiteboard.UndoDepth > 0 {
			config.Whiteboard.UndoDepth = f.Whiteboard.UndoDepth
		}
		// zero is meaningful (no limit), so only an absent key keeps the default
		if f.Whiteboard.MaxObjectsPerAction != nil {
			config.Whiteboard.MaxObjectsPerAction = *f.Whiteboard.MaxObjectsPerAction
		}
	}

	if f.Permissions != nil {
		if err := parseDuration("permissions.provider_timeout", f.Permissions.ProviderTimeout, &config.Permissions.ProviderTimeout); err != nil {
			return err
		}
		// FUNCTIONAL DISCOVERY: Layer definitions replace the defaults wholesale;
		// merging role tables key by key makes removals impossible
		if f.Permissions.Defaults != nil {
			config.Permissions.Defaults = f.Permissions.Defaults
		}
		if f.Permissions.Roles != nil {
			config.Permissions.Roles = f.Permissions.Roles
		}
		if f.Permissions.DefaultRole != "" {
			config.Permissions.DefaultRole = f.Permissions.DefaultRole
		}
	}

	if f.RateLimit != nil {
		if f.RateLimit.CommandsPerSecond != nil {
			config.RateLimit.CommandsPerSecond = *f.RateLimit.CommandsPerSecond
		}
		if f.RateLimit.Burst > 0 {
			config.RateLimit.Burst = f.RateLimit.Burst
		}
	}

	return nil
}

// LoadConfigWithPrecedence builds the runtime configuration.
// Precedence: file > environment > defaults. An empty path skips the file.
func LoadConfigWithPrecedence(path string) (*Config, error) {
	config := LoadFromEnv()

	if path != "" {
		if err := applyFile(config, path); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
