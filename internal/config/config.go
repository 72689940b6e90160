// Package config handles application configuration and connection profiles.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrProfileNotFound is returned when a profile id or name does not resolve.
var ErrProfileNotFound = errors.New("profile not found")

// ConnectionProfile stores connection settings for a remote gallery host.
type ConnectionProfile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Protocol string `json:"protocol"` // "sftp", "ftp" or "ftps"
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	// Passwords live in the credentials file, never here.
	PrivateKeyPath string    `json:"private_key_path,omitempty"`
	RemotePath     string    `json:"remote_path"`
	TLSImplicit    bool      `json:"tls_implicit,omitempty"`
	TLSSkipVerify  bool      `json:"tls_skip_verify,omitempty"`
	Timeout        int       `json:"timeout_seconds,omitempty"`
	LastUsed       time.Time `json:"last_used,omitempty"`
}

// SyncConfig builds the per-operation connection value for this profile.
func (p ConnectionProfile) SyncConfig(password string, privateKey []byte) SyncConfig {
	return SyncConfig{
		Protocol:      p.Protocol,
		Host:          p.Host,
		Port:          p.Port,
		Username:      p.Username,
		Password:      password,
		PrivateKey:    privateKey,
		RemotePath:    p.RemotePath,
		Timeout:       time.Duration(p.Timeout) * time.Second,
		TLSImplicit:   p.TLSImplicit,
		TLSSkipVerify: p.TLSSkipVerify,
	}
}

// AppConfig holds the application configuration.
type AppConfig struct {
	Profiles       []ConnectionProfile `json:"profiles"`
	DefaultProfile string              `json:"default_profile,omitempty"`
	LogLevel       string              `json:"log_level"`
	LogPath        string              `json:"log_path"`
	DatabasePath   string              `json:"database_path"`
	MediaDir       string              `json:"media_dir"`
	KnownHostsPath string              `json:"known_hosts_path"`
	// Trust unknown SSH hosts on first connection; changed keys are always rejected.
	TrustOnFirstUse bool `json:"trust_on_first_use"`
	// Bandwidth limits (bytes per second, 0 = unlimited)
	UploadRateLimit   int64 `json:"upload_rate_limit"`
	DownloadRateLimit int64 `json:"download_rate_limit"`
	// Change log entries older than this many days are pruned after each sync.
	ChangeLogRetentionDays int `json:"changelog_retention_days"`
}

// ConfigManager handles loading and saving configuration.
type ConfigManager struct {
	config *AppConfig
	path   string
	mu     sync.RWMutex
}

// ConfigDir returns the directory holding config, credentials and known hosts.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "gallery-sync")
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "gallery-sync")
}

// DefaultConfigPath returns the default location of config.json.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *AppConfig {
	homeDir, _ := os.UserHomeDir()
	configDir := ConfigDir()

	return &AppConfig{
		Profiles:               make([]ConnectionProfile, 0),
		LogLevel:               "info",
		LogPath:                filepath.Join(configDir, "logs", "gallery-sync.log"),
		DatabasePath:           filepath.Join(configDir, "gallery.db"),
		MediaDir:               filepath.Join(homeDir, "Pictures", "gallery-sync"),
		KnownHostsPath:         filepath.Join(configDir, "known_hosts"),
		TrustOnFirstUse:        true,
		ChangeLogRetentionDays: 90,
	}
}

// NewConfigManager creates a new config manager.
func NewConfigManager(configPath string) (*ConfigManager, error) {
	cm := &ConfigManager{
		path: configPath,
	}

	if err := cm.Load(); err != nil {
		// Use default config if file doesn't exist
		if os.IsNotExist(err) {
			cm.config = DefaultConfig()
			return cm, nil
		}
		return nil, err
	}

	return cm, nil
}

// Path returns the file backing this manager.
func (cm *ConfigManager) Path() string {
	return cm.path
}

// Load reads the configuration from disk.
func (cm *ConfigManager) Load() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	data, err := os.ReadFile(cm.path)
	if err != nil {
		return err
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("parse %s: %w", cm.path, err)
	}

	cm.config = config
	return nil
}

// Save writes the configuration to disk.
func (cm *ConfigManager) Save() error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.save()
}

// Get returns a copy of the current configuration.
func (cm *ConfigManager) Get() AppConfig {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	cfg := *cm.config
	cfg.Profiles = append([]ConnectionProfile(nil), cm.config.Profiles...)
	return cfg
}

// Set updates the configuration.
func (cm *ConfigManager) Set(config *AppConfig) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.config = config
	return cm.save()
}

// AddProfile adds a new connection profile and returns it with its ID set.
func (cm *ConfigManager) AddProfile(profile ConnectionProfile) (ConnectionProfile, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	if profile.Name == "" {
		profile.Name = profile.Host
	}
	for _, p := range cm.config.Profiles {
		if p.Name == profile.Name {
			return profile, fmt.Errorf("profile %q already exists", profile.Name)
		}
	}

	cm.config.Profiles = append(cm.config.Profiles, profile)
	if cm.config.DefaultProfile == "" {
		cm.config.DefaultProfile = profile.ID
	}
	return profile, cm.save()
}

// UpdateProfile updates an existing profile.
func (cm *ConfigManager) UpdateProfile(profile ConnectionProfile) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for i, p := range cm.config.Profiles {
		if p.ID == profile.ID {
			cm.config.Profiles[i] = profile
			return cm.save()
		}
	}

	return fmt.Errorf("%w: %s", ErrProfileNotFound, profile.ID)
}

// DeleteProfile removes a profile by ID.
func (cm *ConfigManager) DeleteProfile(id string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for i, p := range cm.config.Profiles {
		if p.ID == id {
			cm.config.Profiles = append(cm.config.Profiles[:i], cm.config.Profiles[i+1:]...)
			if cm.config.DefaultProfile == id {
				cm.config.DefaultProfile = ""
			}
			return cm.save()
		}
	}

	return fmt.Errorf("%w: %s", ErrProfileNotFound, id)
}

// FindProfile resolves a profile by ID or name. An empty key selects the
// default profile.
func (cm *ConfigManager) FindProfile(key string) (*ConnectionProfile, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if key == "" {
		key = cm.config.DefaultProfile
	}
	for _, p := range cm.config.Profiles {
		if p.ID == key || p.Name == key {
			return &p, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrProfileNotFound, key)
}

// GetProfiles returns all profiles.
func (cm *ConfigManager) GetProfiles() []ConnectionProfile {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	result := make([]ConnectionProfile, len(cm.config.Profiles))
	copy(result, cm.config.Profiles)
	return result
}

// UpdateLastUsed updates the last used timestamp for a profile.
func (cm *ConfigManager) UpdateLastUsed(id string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for i, p := range cm.config.Profiles {
		if p.ID == id {
			cm.config.Profiles[i].LastUsed = time.Now()
			return cm.save()
		}
	}

	return nil
}

// save writes config without locking (caller must hold lock).
func (cm *ConfigManager) save() error {
	dir := filepath.Dir(cm.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cm.config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(cm.path, data, 0600)
}
