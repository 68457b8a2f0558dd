// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for a coderoom server.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Server configures network listeners.
	Server ServerConfig `yaml:"server"`

	// Workspace configures the shared filesystem root.
	Workspace WorkspaceConfig `yaml:"workspace"`

	// Terminal configures shared shell sessions.
	Terminal TerminalConfig `yaml:"terminal"`

	// History configures chat message storage.
	History HistoryConfig `yaml:"history"`

	// EnvironmentOverrides contains per-environment overrides, applied
	// after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Server    *ServerConfig    `yaml:"server,omitempty"`
	Workspace *WorkspaceConfig `yaml:"workspace,omitempty"`
	Terminal  *TerminalConfig  `yaml:"terminal,omitempty"`
	History   *HistoryConfig   `yaml:"history,omitempty"`
}

// ServerConfig configures network listeners.
type ServerConfig struct {
	// Listen is the TCP address for the WebSocket and HTTP API.
	// Default: :9000
	Listen string `yaml:"listen"`

	// ControlSocket is the Unix socket path for operations tooling.
	// Default: /run/coderoom/control.sock
	ControlSocket string `yaml:"control_socket"`
}

// WorkspaceConfig configures the shared filesystem root.
type WorkspaceConfig struct {
	// Root is the directory under which each room gets its own
	// subdirectory. Default: ${HOME}/.cache/coderoom/rooms
	Root string `yaml:"root"`

	// RefreshDebounce is how long to coalesce filesystem change
	// signals before broadcasting a refresh. Default: 200ms
	RefreshDebounce time.Duration `yaml:"refresh_debounce"`
}

// TerminalConfig configures shared shell sessions.
type TerminalConfig struct {
	// Shell is the program launched for each room's terminal session.
	// Default: /bin/bash
	Shell string `yaml:"shell"`

	// ScrollbackBytes is the ring buffer capacity for terminal history
	// replayed to late joiners. Default: 1 MB
	ScrollbackBytes int `yaml:"scrollback_bytes"`

	// Columns and Rows are the initial PTY dimensions.
	// Defaults: 80x30
	Columns int `yaml:"columns"`
	Rows    int `yaml:"rows"`
}

// HistoryConfig configures chat message storage.
type HistoryConfig struct {
	// Database is the SQLite database path. Use ":memory:" for an
	// ephemeral store. Default: ${HOME}/.cache/coderoom/history.db
	Database string `yaml:"database"`

	// ReplayLimit is how many recent messages a joining connection
	// receives. Default: 50
	ReplayLimit int `yaml:"replay_limit"`
}

// Default returns the default configuration. These defaults ensure all
// fields have sensible zero-values before the config file is merged in.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "coderoom")

	return &Config{
		Environment: Development,
		Server: ServerConfig{
			Listen:        ":9000",
			ControlSocket: "/run/coderoom/control.sock",
		},
		Workspace: WorkspaceConfig{
			Root:            filepath.Join(defaultRoot, "rooms"),
			RefreshDebounce: 200 * time.Millisecond,
		},
		Terminal: TerminalConfig{
			Shell:           "/bin/bash",
			ScrollbackBytes: 1024 * 1024,
			Columns:         80,
			Rows:            30,
		},
		History: HistoryConfig{
			Database:    filepath.Join(defaultRoot, "history.db"),
			ReplayLimit: 50,
		},
	}
}

// Load loads configuration from the CODEROOM_CONFIG environment
// variable. There are no fallbacks — if CODEROOM_CONFIG is not set,
// this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("CODEROOM_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("CODEROOM_CONFIG environment variable not set; " +
			"set it to the path of your coderoom.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The config
// file is the single source of truth; environment variables do not
// override config values. The only expansion performed is ${HOME} and
// similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Server != nil {
		if overrides.Server.Listen != "" {
			c.Server.Listen = overrides.Server.Listen
		}
		if overrides.Server.ControlSocket != "" {
			c.Server.ControlSocket = overrides.Server.ControlSocket
		}
	}

	if overrides.Workspace != nil {
		if overrides.Workspace.Root != "" {
			c.Workspace.Root = overrides.Workspace.Root
		}
		if overrides.Workspace.RefreshDebounce != 0 {
			c.Workspace.RefreshDebounce = overrides.Workspace.RefreshDebounce
		}
	}

	if overrides.Terminal != nil {
		if overrides.Terminal.Shell != "" {
			c.Terminal.Shell = overrides.Terminal.Shell
		}
		if overrides.Terminal.ScrollbackBytes != 0 {
			c.Terminal.ScrollbackBytes = overrides.Terminal.ScrollbackBytes
		}
		if overrides.Terminal.Columns != 0 {
			c.Terminal.Columns = overrides.Terminal.Columns
		}
		if overrides.Terminal.Rows != 0 {
			c.Terminal.Rows = overrides.Terminal.Rows
		}
	}

	if overrides.History != nil {
		if overrides.History.Database != "" {
			c.History.Database = overrides.History.Database
		}
		if overrides.History.ReplayLimit != 0 {
			c.History.ReplayLimit = overrides.History.ReplayLimit
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Server.ControlSocket = expandVars(c.Server.ControlSocket, vars)
	c.Workspace.Root = expandVars(c.Workspace.Root, vars)
	c.History.Database = expandVars(c.History.Database, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Server.Listen == "" {
		errs = append(errs, fmt.Errorf("server.listen is required"))
	}
	if c.Server.ControlSocket == "" {
		errs = append(errs, fmt.Errorf("server.control_socket is required"))
	}
	if c.Workspace.Root == "" {
		errs = append(errs, fmt.Errorf("workspace.root is required"))
	}
	if c.Workspace.RefreshDebounce < 0 {
		errs = append(errs, fmt.Errorf("workspace.refresh_debounce must not be negative"))
	}
	if c.Terminal.Shell == "" {
		errs = append(errs, fmt.Errorf("terminal.shell is required"))
	}
	if c.Terminal.ScrollbackBytes <= 0 {
		errs = append(errs, fmt.Errorf("terminal.scrollback_bytes must be positive"))
	}
	if c.Terminal.Columns <= 0 || c.Terminal.Rows <= 0 {
		errs = append(errs, fmt.Errorf("terminal dimensions must be positive"))
	}
	if c.History.Database == "" {
		errs = append(errs, fmt.Errorf("history.database is required"))
	}
	if c.History.ReplayLimit < 0 {
		errs = append(errs, fmt.Errorf("history.replay_limit must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the workspace root, the history database
// directory, and the control socket directory if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{c.Workspace.Root, filepath.Dir(c.Server.ControlSocket)}
	if c.History.Database != ":memory:" {
		paths = append(paths, filepath.Dir(c.History.Database))
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
