package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if err := config.Validate(); err != nil {
		t.Fatalf("Default config should be valid, got %v", err)
	}
	if config.Database.Path != "./data/syncboard.db" {
		t.Errorf("Expected default database path, got %s", config.Database.Path)
	}
	if config.HTTP.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", config.HTTP.Port)
	}
	if config.Hub.Workers != 8 || config.Hub.QueueSize != 1000 {
		t.Errorf("Unexpected hub defaults: %+v", config.Hub)
	}
	if config.Whiteboard.UndoDepth != 100 {
		t.Errorf("Expected undo depth 100, got %d", config.Whiteboard.UndoDepth)
	}
	if _, exists := config.Permissions.Roles[config.Permissions.DefaultRole]; !exists {
		t.Errorf("Default role %q should be defined", config.Permissions.DefaultRole)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"missing database", func(c *Config) { c.Database = nil }, "database configuration is required"},
		{"empty path", func(c *Config) { c.Database.Path = "" }, "database path cannot be empty"},
		{"zero db timeout", func(c *Config) { c.Database.Timeout = 0 }, "database timeout must be positive"},
		{"port too high", func(c *Config) { c.HTTP.Port = 70000 }, "HTTP port must be between 1 and 65535"},
		{"port zero", func(c *Config) { c.HTTP.Port = 0 }, "HTTP port must be between 1 and 65535"},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }, "HTTP host cannot be empty"},
		{"read timeout below ping", func(c *Config) { c.WebSocket.ReadTimeout = c.WebSocket.PingInterval }, "read timeout must exceed"},
		{"sync queue", func(c *Config) { c.Sync.QueueSize = 0 }, "sync queue size must be positive"},
		{"hub workers", func(c *Config) { c.Hub.Workers = 0 }, "hub workers must be positive"},
		{"hub queue", func(c *Config) { c.Hub.QueueSize = -1 }, "hub queue size must be positive"},
		{"undo depth", func(c *Config) { c.Whiteboard.UndoDepth = 0 }, "undo depth must be positive"},
		{"negative object limit", func(c *Config) { c.Whiteboard.MaxObjectsPerAction = -1 }, "cannot be negative"},
		{"provider timeout", func(c *Config) { c.Permissions.ProviderTimeout = 0 }, "provider timeout must be positive"},
		{"bad role name", func(c *Config) { c.Permissions.Roles["bad role!"] = RoleConfig{} }, "invalid role name"},
		{"undefined default role", func(c *Config) { c.Permissions.DefaultRole = "ghost" }, "is not defined"},
		{"negative rate", func(c *Config) { c.RateLimit.CommandsPerSecond = -1 }, "rate limit cannot be negative"},
		{"zero burst", func(c *Config) { c.RateLimit.Burst = 0 }, "burst must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)

			err := config.Validate()
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.errMsg)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Expected error containing %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestConfig_UnlimitedRateNeedsNoBurst(t *testing.T) {
	config := DefaultConfig()
	config.RateLimit.CommandsPerSecond = 0
	config.RateLimit.Burst = 0

	if err := config.Validate(); err != nil {
		t.Errorf("Expected disabled rate limiting to be valid, got %v", err)
	}
}

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("SYNCBOARD_HTTP_PORT", "9090")
	t.Setenv("SYNCBOARD_HTTP_HOST", "127.0.0.1")
	t.Setenv("SYNCBOARD_DATABASE_PATH", "/tmp/env.db")
	t.Setenv("SYNCBOARD_DATABASE_TIMEOUT", "45s")
	t.Setenv("SYNCBOARD_HUB_WORKERS", "3")
	t.Setenv("SYNCBOARD_WHITEBOARD_UNDO_DEPTH", "7")
	t.Setenv("SYNCBOARD_RATE_LIMIT_COMMANDS_PER_SECOND", "2.5")
	t.Setenv("SYNCBOARD_PERMISSIONS_PROVIDER_TIMEOUT", "250ms")

	config := LoadFromEnv()

	if config.HTTP.Port != 9090 || config.HTTP.Host != "127.0.0.1" {
		t.Errorf("Unexpected HTTP config: %+v", config.HTTP)
	}
	if config.Database.Path != "/tmp/env.db" || config.Database.Timeout != 45*time.Second {
		t.Errorf("Unexpected database config: %+v", config.Database)
	}
	if config.Hub.Workers != 3 {
		t.Errorf("Expected 3 hub workers, got %d", config.Hub.Workers)
	}
	if config.Whiteboard.UndoDepth != 7 {
		t.Errorf("Expected undo depth 7, got %d", config.Whiteboard.UndoDepth)
	}
	if config.RateLimit.CommandsPerSecond != 2.5 {
		t.Errorf("Expected 2.5 commands per second, got %v", config.RateLimit.CommandsPerSecond)
	}
	if config.Permissions.ProviderTimeout != 250*time.Millisecond {
		t.Errorf("Expected 250ms provider timeout, got %v", config.Permissions.ProviderTimeout)
	}
}

func TestConfig_LoadFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("SYNCBOARD_HTTP_PORT", "not-a-number")
	t.Setenv("SYNCBOARD_DATABASE_TIMEOUT", "soon")

	config := LoadFromEnv()
	defaults := DefaultConfig()

	if config.HTTP.Port != defaults.HTTP.Port {
		t.Errorf("Expected default port, got %d", config.HTTP.Port)
	}
	if config.Database.Timeout != defaults.Database.Timeout {
		t.Errorf("Expected default timeout, got %v", config.Database.Timeout)
	}
}

func TestConfig_LoadFromFileJSON(t *testing.T) {
	path := writeConfigFile(t, "syncboard.json", `{
		"database": {"path": "/tmp/file.db", "timeout": "10s"},
		"http": {"port": 7000},
		"whiteboard": {"max_objects_per_action": 0},
		"rate_limit": {"commands_per_second": 5, "burst": 10}
	}`)

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if config.Database.Path != "/tmp/file.db" || config.Database.Timeout != 10*time.Second {
		t.Errorf("Unexpected database config: %+v", config.Database)
	}
	if config.HTTP.Port != 7000 {
		t.Errorf("Expected port 7000, got %d", config.HTTP.Port)
	}
	if config.HTTP.Host != "0.0.0.0" {
		t.Errorf("Expected unset host to keep its default, got %s", config.HTTP.Host)
	}
	if config.Whiteboard.MaxObjectsPerAction != 0 {
		t.Errorf("Expected explicit zero object limit, got %d", config.Whiteboard.MaxObjectsPerAction)
	}
	if config.RateLimit.CommandsPerSecond != 5 || config.RateLimit.Burst != 10 {
		t.Errorf("Unexpected rate limit: %+v", config.RateLimit)
	}
}

func TestConfig_LoadFromFileYAML(t *testing.T) {
	path := writeConfigFile(t, "syncboard.yaml", `
http:
  port: 7100
  read_timeout: 15s
permissions:
  provider_timeout: 2s
  default_role: viewer
  defaults:
    chat/canSendMessage: false
  roles:
    host:
      priority: 50
      values:
        whiteboard/canUpdateObjects: true
        whiteboard/maxObjectsPerAction: 20
    viewer:
      priority: 1
      values:
        whiteboard/canUpdateObjects: false
`)

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if config.HTTP.Port != 7100 || config.HTTP.ReadTimeout != 15*time.Second {
		t.Errorf("Unexpected HTTP config: %+v", config.HTTP)
	}

	perms := config.Permissions
	if perms.ProviderTimeout != 2*time.Second {
		t.Errorf("Expected 2s provider timeout, got %v", perms.ProviderTimeout)
	}
	if perms.DefaultRole != "viewer" {
		t.Errorf("Expected default role viewer, got %s", perms.DefaultRole)
	}
	if len(perms.Roles) != 2 {
		t.Fatalf("Expected file roles to replace defaults, got %d roles", len(perms.Roles))
	}
	if perms.Roles["host"].Priority != 50 {
		t.Errorf("Expected host priority 50, got %d", perms.Roles["host"].Priority)
	}
	if perms.Roles["host"].Values["whiteboard/canUpdateObjects"] != true {
		t.Errorf("Expected host to update objects, got %v", perms.Roles["host"].Values)
	}
	if perms.Defaults["chat/canSendMessage"] != false {
		t.Errorf("Expected defaults from file, got %v", perms.Defaults)
	}
}

func TestConfig_LoadFromFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		errMsg  string
	}{
		{"invalid json", "bad.json", `{"http": {`, "failed to parse"},
		{"invalid yaml", "bad.yml", "http: [unterminated", "failed to parse"},
		{"bad duration", "dur.json", `{"database": {"timeout": "forever"}}`, "database.timeout"},
		{"invalid result", "port.json", `{"websocket": {"ping_interval": "2m"}}`, "invalid configuration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfigFile(t, tt.file, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Expected error containing %q, got %v", tt.errMsg, err)
			}
		})
	}

	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestConfig_LoadConfigWithPrecedence(t *testing.T) {
	t.Setenv("SYNCBOARD_HTTP_PORT", "9100")
	t.Setenv("SYNCBOARD_DATABASE_PATH", "/tmp/env.db")

	path := writeConfigFile(t, "syncboard.json", `{"http": {"port": 9200}}`)

	config, err := LoadConfigWithPrecedence(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// file beats environment, environment beats defaults
	if config.HTTP.Port != 9200 {
		t.Errorf("Expected file port 9200, got %d", config.HTTP.Port)
	}
	if config.Database.Path != "/tmp/env.db" {
		t.Errorf("Expected environment database path, got %s", config.Database.Path)
	}
	if config.HTTP.Host != "0.0.0.0" {
		t.Errorf("Expected default host, got %s", config.HTTP.Host)
	}
}

func TestConfig_LoadConfigWithPrecedenceNoFile(t *testing.T) {
	t.Setenv("SYNCBOARD_HTTP_PORT", "9300")

	config, err := LoadConfigWithPrecedence("")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if config.HTTP.Port != 9300 {
		t.Errorf("Expected environment port, got %d", config.HTTP.Port)
	}

	if _, err := LoadConfigWithPrecedence(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for a named file that does not exist")
	}
}
