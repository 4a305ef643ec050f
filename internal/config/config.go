// Package config loads and persists user preferences: the YAML config
// file, the roles file, and the layout of the per-user data directory
// (sessions, logs).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/milanglacier/aichat/internal/role"
)

// DefaultCompressThreshold is the token budget applied to sessions that do
// not pin their own.
const DefaultCompressThreshold = 4000

// Config holds user preferences. Runtime-only fields are excluded from the
// YAML schema.
type Config struct {
	Model             string   `yaml:"model"`
	APIKey            string   `yaml:"api_key"`
	APIBase           string   `yaml:"api_base,omitempty"`
	Temperature       *float64 `yaml:"temperature,omitempty"`
	Save              bool     `yaml:"save"`
	Highlight         bool     `yaml:"highlight"`
	DryRun            bool     `yaml:"dry_run"`
	Debug             bool     `yaml:"debug"`
	CompressThreshold int      `yaml:"compress_threshold"`

	// Roles loaded from the roles file; not part of the config schema.
	Roles []role.Role `yaml:"-"`
}

// Default returns the configuration used when no config file exists.
func Default() Config {
	return Config{
		Model:             "gpt-4o-mini",
		Highlight:         true,
		CompressThreshold: DefaultCompressThreshold,
	}
}

// Dir returns the aichat config directory, honoring AICHAT_CONFIG_DIR.
func Dir() (string, error) {
	if dir := os.Getenv("AICHAT_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot locate user config directory: %w", err)
	}
	return filepath.Join(base, "aichat"), nil
}

// File returns the path of the main config file.
func File() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// RolesFile returns the path of the roles file.
func RolesFile() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "roles.yaml"), nil
}

// SessionsDir returns the directory holding saved sessions.
func SessionsDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sessions"), nil
}

// SessionFile returns the path a named session is saved at.
func SessionFile(name string) (string, error) {
	dir, err := SessionsDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create sessions directory: %w", err)
	}
	return filepath.Join(dir, name+".yaml"), nil
}

// Load reads the config file and the roles file. A missing config file
// yields defaults; a malformed one is an error the user must fix.
func Load() (Config, error) {
	cfg := Default()
	path, err := File()
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		return cfg, cfg.loadRoles()
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config at %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid config at %s: %w", path, err)
	}
	if cfg.CompressThreshold <= 0 {
		cfg.CompressThreshold = DefaultCompressThreshold
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return cfg, cfg.loadRoles()
}

// Save writes the config file, creating the config directory as needed.
func Save(cfg Config) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	path, err := File()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config to %s: %w", path, err)
	}
	return nil
}

// loadRoles refreshes cfg.Roles from the roles file. A missing roles file
// is not an error; an unreadable or malformed one is.
func (cfg *Config) loadRoles() error {
	path, err := RolesFile()
	if err != nil {
		return err
	}
	roles, err := LoadRoles(path)
	if err != nil {
		return err
	}
	cfg.Roles = roles
	return nil
}

// ReloadRoles re-reads the roles file, e.g. after a watcher event.
func (cfg *Config) ReloadRoles() error {
	return cfg.loadRoles()
}

// LoadRoles parses a roles file.
func LoadRoles(path string) ([]role.Role, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read roles at %s: %w", path, err)
	}
	var roles []role.Role
	if err := yaml.Unmarshal(data, &roles); err != nil {
		return nil, fmt.Errorf("invalid roles file at %s: %w", path, err)
	}
	return roles, nil
}

// FindRole resolves a role by name against the loaded roles, handling
// parameterized templates: a name like "convert:foo" selects the template
// "convert:__ARG1__" and substitutes its arguments.
func (cfg *Config) FindRole(name string) (*role.Role, error) {
	for i := range cfg.Roles {
		if cfg.Roles[i].MatchName(name) {
			found := cfg.Roles[i] // copy; the template stays pristine
			if strings.Contains(found.Name, ":") {
				found.CompletePromptArgs(name)
			}
			return &found, nil
		}
	}
	return nil, fmt.Errorf("role %q not found", name)
}

// ListSessions returns the names of saved sessions, sorted.
func ListSessions() ([]string, error) {
	dir, err := SessionsDir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name, ok := strings.CutSuffix(entry.Name(), ".yaml"); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
