package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_FileNotExists(t *testing.T) {
	cfg, err := LoadConfig("nonexistent.json")
	if err != nil {
		t.Errorf("Expected no error when config file doesn't exist, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("config should not be nil after loading defaults")
	}

	if cfg.Storage.MaxFilesPerUser != 50 {
		t.Errorf("Expected default quota of 50 files, got: %d", cfg.Storage.MaxFilesPerUser)
	}
	if cfg.Storage.MaxFileSize != 1073741824 {
		t.Errorf("Expected default file cap of 1 GiB, got: %d", cfg.Storage.MaxFileSize)
	}
	if cfg.Auth.TokenTTLHours != 24 {
		t.Errorf("Expected default token ttl 24h, got: %d", cfg.Auth.TokenTTLHours)
	}
	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("Expected default driver sqlite3, got: %s", cfg.Database.Driver)
	}
}

func TestLoadConfig_ValidJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "portal.json")

	testConfig := &Config{
		Server: ServerConfig{
			Port:      ":9090",
			PublicURL: "https://portal.example.org",
			LogLevel:  "debug",
		},
		Storage: StorageConfig{
			UploadRoot:      "/srv/uploads",
			MaxFilesPerUser: 10,
		},
		Internal: InternalConfig{
			SharedSecret: "s3cret",
		},
		Notify: NotifyConfig{
			Admins: []NotifyTarget{
				{Channel: ChannelEmail, Destination: "admin@example.org"},
			},
		},
	}

	data, err := json.MarshalIndent(testConfig, "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal test config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != ":9090" {
		t.Errorf("Expected port :9090, got: %s", cfg.Server.Port)
	}
	if cfg.Server.PublicURL != "https://portal.example.org/" {
		t.Errorf("Expected public url with trailing slash, got: %s", cfg.Server.PublicURL)
	}
	if cfg.Storage.MaxFilesPerUser != 10 {
		t.Errorf("Expected quota 10, got: %d", cfg.Storage.MaxFilesPerUser)
	}
	// Unset values fall back to defaults.
	if cfg.Storage.MaxFileSize != 1<<30 {
		t.Errorf("Expected default file cap, got: %d", cfg.Storage.MaxFileSize)
	}
	if cfg.Session.Name != "portal-session" {
		t.Errorf("Expected default session name, got: %s", cfg.Session.Name)
	}
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "portal.yaml")
	content := `
server:
  port: ":7000"
storage:
  upload_root: /data/portal
internal:
  shared_secret: worker-secret
  allow_loopback: true
notify:
  admins:
    - channel: slack
      destination: https://hooks.example.org/abc
      slack_channel: "#portal"
retention:
  enabled: true
  days: 7
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write yaml config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load yaml config: %v", err)
	}
	if cfg.Server.Port != ":7000" {
		t.Errorf("Expected port :7000, got: %s", cfg.Server.Port)
	}
	if cfg.Storage.UploadRoot != "/data/portal" {
		t.Errorf("Expected upload root /data/portal, got: %s", cfg.Storage.UploadRoot)
	}
	if !cfg.Internal.AllowLoopback {
		t.Error("Expected allow_loopback to be true")
	}
	if len(cfg.Notify.Admins) != 1 || cfg.Notify.Admins[0].SlackRoom != "#portal" {
		t.Errorf("Unexpected admins: %+v", cfg.Notify.Admins)
	}
	if !cfg.Retention.Enabled || cfg.Retention.Days != 7 {
		t.Errorf("Unexpected retention config: %+v", cfg.Retention)
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.json")
	if err := os.WriteFile(configPath, []byte("invalid json content"), 0644); err != nil {
		t.Fatalf("Failed to write invalid JSON file: %v", err)
	}

	if _, err := LoadConfig(configPath); err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestLoadConfig_ReadError(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config_dir")
	if err := os.Mkdir(configPath, 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}

	if _, err := LoadConfig(configPath); err == nil {
		t.Error("Expected error when loading directory as config file, got nil")
	}
}

func TestLoadConfig_UnknownChannel(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad_channel.json")
	content := `{"notify": {"admins": [{"channel": "carrier_pigeon", "destination": "roof"}]}}`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	_, err := LoadConfig(configPath)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for unknown channel, got: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"negative quota", func(c *Config) { c.Storage.MaxFilesPerUser = -1 }, true},
		{"negative file size", func(c *Config) { c.Storage.MaxFileSize = -5 }, true},
		{"missing destination", func(c *Config) {
			c.Notify.Admins = []NotifyTarget{{Channel: ChannelEmail}}
		}, true},
		{"email and slack", func(c *Config) {
			c.Notify.Admins = []NotifyTarget{
				{Channel: ChannelEmail, Destination: "a@b.c"},
				{Channel: ChannelSlack, Destination: "https://hooks"},
			}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "saved.json")

	cfg := getDefaultConfig()
	cfg.Server.Port = ":6000"
	if err := SaveConfig(cfg, configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to reload saved config: %v", err)
	}
	if loaded.Server.Port != ":6000" {
		t.Errorf("Expected port :6000 after reload, got: %s", loaded.Server.Port)
	}
}

func TestSaveConfig_YAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	cfg := getDefaultConfig()
	cfg.Notify.Admins = []NotifyTarget{{Channel: ChannelSlack, Destination: "https://hooks.example/x", SlackRoom: "#ops"}}
	if err := SaveConfig(cfg, configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if json.Valid(data) {
		t.Errorf("Expected YAML output for a .yaml path, got JSON")
	}

	loaded, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to reload saved config: %v", err)
	}
	if len(loaded.Notify.Admins) != 1 || loaded.Notify.Admins[0].SlackRoom != "#ops" {
		t.Errorf("Expected the slack target to survive a round trip, got: %+v", loaded.Notify.Admins)
	}
}

func TestUsesDefaultSessionKey(t *testing.T) {
	cfg := Default()
	if !cfg.UsesDefaultSessionKey() {
		t.Error("Expected the default config to report the built-in session key")
	}
	cfg.Session.SecretKey = "a-real-deployment-key"
	if cfg.UsesDefaultSessionKey() {
		t.Error("Expected a custom session key not to be reported as default")
	}
}
