// Package config provides configuration loading for calweave.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Store         StoreConfig        `yaml:"store"`
	Parser        ParserConfig       `yaml:"parser"`
	Timezone      string             `yaml:"timezone"` // IANA zone name; empty means the process-local zone
	Sources       []SourceConfig     `yaml:"sources"`
	Agenda        AgendaConfig       `yaml:"agenda"`
	Export        ExportConfig       `yaml:"export"`
	Notifications NotificationConfig `yaml:"notifications"`
}

// StoreConfig configures the remote event store.
type StoreConfig struct {
	URL  string     `yaml:"url"`
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig configures Entra device-code auth for the store API.
// When disabled, store requests carry no credentials.
type AuthConfig struct {
	Enabled   bool     `yaml:"enabled"`
	ClientID  string   `yaml:"client_id,omitempty"`
	Authority string   `yaml:"authority,omitempty"`
	Scopes    []string `yaml:"scopes,omitempty"`
}

// ParserConfig configures the extraction service.
type ParserConfig struct {
	URL string `yaml:"url"`
}

// SourceConfig configures a read-only calendar source for the agenda preview.
type SourceConfig struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"` // "ics" or "caldav"
	URL         string   `yaml:"url"`
	Username    string   `yaml:"username,omitempty"`
	Password    string   `yaml:"password,omitempty"`
	PasswordCmd string   `yaml:"password_cmd,omitempty"`
	Calendars   []string `yaml:"calendars,omitempty"` // For CalDAV: which calendars to read
}

// AgendaConfig configures the pre-commit agenda preview.
type AgendaConfig struct {
	Radius    time.Duration `yaml:"radius"`     // Busy context shown around each occurrence
	MaxEvents int           `yaml:"max_events"` // Cap per occurrence in output
}

// ExportConfig configures ICS export of committed batches.
type ExportConfig struct {
	Path string `yaml:"path"` // Empty disables export
}

// NotificationConfig configures desktop notifications for suspended batches.
type NotificationConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from the default location
// (~/.config/calweave/config.yaml).
func Load() (*Config, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("get config dir: %w", err)
	}

	path := filepath.Join(configDir, "calweave", "config.yaml")
	return LoadFrom(path)
}

// LoadFrom reads configuration from a specific path.
func LoadFrom(path string) (*Config, error) {
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.Export.Path = expandPath(cfg.Export.Path)

	return &cfg, nil
}

// applyDefaults sets default values for unspecified config options.
func (c *Config) applyDefaults() {
	if c.Agenda.Radius == 0 {
		c.Agenda.Radius = 2 * time.Hour
	}
	if c.Agenda.MaxEvents == 0 {
		c.Agenda.MaxEvents = 5
	}
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// GetPassword returns the password for a source, executing password_cmd if
// needed.
func (s *SourceConfig) GetPassword() (string, error) {
	if s.Password != "" {
		return s.Password, nil
	}
	if s.PasswordCmd == "" {
		return "", nil
	}

	cmd := exec.Command("sh", "-c", s.PasswordCmd)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("execute password_cmd: %w", err)
	}

	return strings.TrimSpace(string(out)), nil
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// UnmarshalYAML implements custom unmarshaling for duration fields.
func (c *AgendaConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Radius    string `yaml:"radius"`
		MaxEvents int    `yaml:"max_events"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if raw.Radius != "" {
		d, err := time.ParseDuration(raw.Radius)
		if err != nil {
			return fmt.Errorf("parse radius: %w", err)
		}
		c.Radius = d
	}
	c.MaxEvents = raw.MaxEvents
	return nil
}
