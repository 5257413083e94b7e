package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	Session   SessionConfig   `json:"session" yaml:"session"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Auth      AuthConfig      `json:"auth" yaml:"auth"`
	Internal  InternalConfig  `json:"internal" yaml:"internal"`
	Notify    NotifyConfig    `json:"notify" yaml:"notify"`
	Retention RetentionConfig `json:"retention" yaml:"retention"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port      string `json:"port" yaml:"port"`
	PublicURL string `json:"public_url" yaml:"public_url"`
	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogJSON   bool   `json:"log_json" yaml:"log_json"`
}

// DatabaseConfig contains database-related configuration
type DatabaseConfig struct {
	Path   string `json:"path" yaml:"path"`
	Driver string `json:"driver" yaml:"driver"`
}

// SessionConfig configures the remember-me cookie.
type SessionConfig struct {
	SecretKey string `json:"secret_key" yaml:"secret_key"`
	Name      string `json:"name" yaml:"name"`
	MaxAge    int    `json:"max_age" yaml:"max_age"`
}

// StorageConfig holds the upload root and the quota constants.
type StorageConfig struct {
	UploadRoot      string `json:"upload_root" yaml:"upload_root"`
	MaxFilesPerUser int    `json:"max_files_per_user" yaml:"max_files_per_user"`
	MaxFileSize     int64  `json:"max_file_size" yaml:"max_file_size"`
	MaxMemoryMB     int64  `json:"max_memory_mb" yaml:"max_memory_mb"`
}

// AuthConfig contains user token settings.
type AuthConfig struct {
	TokenTTLHours int `json:"token_ttl_hours" yaml:"token_ttl_hours"`
}

// InternalConfig guards the worker and admin endpoints.
type InternalConfig struct {
	SharedSecret  string `json:"shared_secret" yaml:"shared_secret"`
	AllowLoopback bool   `json:"allow_loopback" yaml:"allow_loopback"`
	TokenTTLHours int    `json:"token_ttl_hours" yaml:"token_ttl_hours"`
}

// Notification channel names.
const (
	ChannelEmail = "email"
	ChannelSlack = "slack"
)

// NotifyTarget is one admin destination.
type NotifyTarget struct {
	Channel     string `json:"channel" yaml:"channel"`
	Destination string `json:"destination" yaml:"destination"`
	SlackRoom   string `json:"slack_channel,omitempty" yaml:"slack_channel,omitempty"`
}

// NotifyConfig lists admin targets and the SMTP relay used for email.
type NotifyConfig struct {
	SMTPAddr      string         `json:"smtp_addr" yaml:"smtp_addr"`
	From          string         `json:"from" yaml:"from"`
	SlackUsername string         `json:"slack_username" yaml:"slack_username"`
	Admins        []NotifyTarget `json:"admins" yaml:"admins"`
	NotifyUsers   bool           `json:"notify_users" yaml:"notify_users"`
}

// RetentionConfig contains the periodic purge configuration
type RetentionConfig struct {
	Enabled         bool `json:"enabled" yaml:"enabled"`
	IntervalMinutes int  `json:"interval_minutes" yaml:"interval_minutes"`
	Days            int  `json:"days" yaml:"days"`
	Destructive     bool `json:"destructive" yaml:"destructive"`
}

var ErrInvalidConfig = errors.New("invalid configuration")

// LoadConfig loads configuration from a JSON or YAML file. A missing file yields the defaults.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return getDefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	validateAndSetDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the default configuration.
func Default() *Config {
	return getDefaultConfig()
}

// getDefaultConfig returns the default configuration
func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      ":5000",
			PublicURL: "http://localhost:5000/",
			LogLevel:  "info",
		},
		Database: DatabaseConfig{
			Path:   "./db.sqlite",
			Driver: "sqlite3",
		},
		Session: SessionConfig{
			SecretKey: "something-very-secret",
			Name:      "portal-session",
			MaxAge:    86400, // 24 hours in seconds
		},
		Storage: StorageConfig{
			UploadRoot:      "./uploads",
			MaxFilesPerUser: 50,
			MaxFileSize:     1 << 30,
			MaxMemoryMB:     32,
		},
		Auth: AuthConfig{
			TokenTTLHours: 24,
		},
		Internal: InternalConfig{
			TokenTTLHours: 24 * 30,
		},
		Notify: NotifyConfig{
			SMTPAddr:      "localhost:25",
			From:          "portal@localhost",
			SlackUsername: "Image Processing Portal",
		},
		Retention: RetentionConfig{
			IntervalMinutes: 60,
			Days:            30,
		},
	}
}

// validateAndSetDefaults fills zero values with defaults
func validateAndSetDefaults(config *Config) {
	defaults := getDefaultConfig()

	if config.Server.Port == "" {
		config.Server.Port = defaults.Server.Port
	}
	if config.Server.PublicURL == "" {
		config.Server.PublicURL = defaults.Server.PublicURL
	}
	if !strings.HasSuffix(config.Server.PublicURL, "/") {
		config.Server.PublicURL += "/"
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = defaults.Server.LogLevel
	}

	if config.Database.Path == "" {
		config.Database.Path = defaults.Database.Path
	}
	if config.Database.Driver == "" {
		config.Database.Driver = defaults.Database.Driver
	}

	if config.Session.SecretKey == "" {
		config.Session.SecretKey = defaults.Session.SecretKey
	}
	if config.Session.Name == "" {
		config.Session.Name = defaults.Session.Name
	}
	if config.Session.MaxAge == 0 {
		config.Session.MaxAge = defaults.Session.MaxAge
	}

	if config.Storage.UploadRoot == "" {
		config.Storage.UploadRoot = defaults.Storage.UploadRoot
	}
	if config.Storage.MaxFilesPerUser == 0 {
		config.Storage.MaxFilesPerUser = defaults.Storage.MaxFilesPerUser
	}
	if config.Storage.MaxFileSize == 0 {
		config.Storage.MaxFileSize = defaults.Storage.MaxFileSize
	}
	if config.Storage.MaxMemoryMB == 0 {
		config.Storage.MaxMemoryMB = defaults.Storage.MaxMemoryMB
	}

	if config.Auth.TokenTTLHours == 0 {
		config.Auth.TokenTTLHours = defaults.Auth.TokenTTLHours
	}
	if config.Internal.TokenTTLHours == 0 {
		config.Internal.TokenTTLHours = defaults.Internal.TokenTTLHours
	}

	if config.Notify.SMTPAddr == "" {
		config.Notify.SMTPAddr = defaults.Notify.SMTPAddr
	}
	if config.Notify.From == "" {
		config.Notify.From = defaults.Notify.From
	}
	if config.Notify.SlackUsername == "" {
		config.Notify.SlackUsername = defaults.Notify.SlackUsername
	}

	if config.Retention.IntervalMinutes == 0 {
		config.Retention.IntervalMinutes = defaults.Retention.IntervalMinutes
	}
	if config.Retention.Days == 0 {
		config.Retention.Days = defaults.Retention.Days
	}
}

// UsesDefaultSessionKey reports whether the remember-me cookie is signed with the
// built-in key, which anyone with the source can forge.
func (c *Config) UsesDefaultSessionKey() bool {
	return c.Session.SecretKey == getDefaultConfig().Session.SecretKey
}

// Validate rejects values the services cannot run with.
func (c *Config) Validate() error {
	if c.Storage.MaxFilesPerUser < 0 {
		return fmt.Errorf("%w: storage.max_files_per_user must be positive", ErrInvalidConfig)
	}
	if c.Storage.MaxFileSize < 0 {
		return fmt.Errorf("%w: storage.max_file_size must be positive", ErrInvalidConfig)
	}
	if c.Auth.TokenTTLHours < 0 {
		return fmt.Errorf("%w: auth.token_ttl_hours must be positive", ErrInvalidConfig)
	}
	if c.Retention.Days < 0 || c.Retention.IntervalMinutes < 0 {
		return fmt.Errorf("%w: retention values must be positive", ErrInvalidConfig)
	}
	for i, t := range c.Notify.Admins {
		switch t.Channel {
		case ChannelEmail, ChannelSlack:
		default:
			return fmt.Errorf("%w: notify.admins[%d]: unknown channel %q", ErrInvalidConfig, i, t.Channel)
		}
		if t.Destination == "" {
			return fmt.Errorf("%w: notify.admins[%d]: destination is required", ErrInvalidConfig, i)
		}
	}
	return nil
}

// SaveConfig writes the configuration as YAML or indented JSON, chosen by extension like LoadConfig.
func SaveConfig(cfg *Config, configPath string) error {
	if cfg == nil {
		cfg = getDefaultConfig()
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
