// Package config handles configuration loading, validation, and persistence
// for the Bluefox lobby server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultTCPPort    = 9933
	DefaultHTTPPort   = 8080
	DefaultAPIPort    = 5000
)

// Config is the root configuration structure for Bluefox.
type Config struct {
	mu   sync.RWMutex
	path string

	ServerData      ServerData      `json:"server_data"`
	ApplicationData ApplicationData `json:"application_data"`
}

// ServerData contains the lobby server identity and listener settings.
type ServerData struct {
	// Identity
	Name   string `json:"svr_name"`
	Region string `json:"svr_region"`

	// Listeners
	BindAddress string `json:"svr_bind_address"`
	TCPPort     int    `json:"svr_tcp_port"`
	HTTPPort    int    `json:"svr_http_port"`
	APIPort     int    `json:"svr_api_port"`

	// Lobby policy
	DefaultGroup string `json:"lobby_default_group"`
	MaxRooms     int    `json:"lobby_max_rooms"`

	// Version gate advertised to clients at handshake.
	VersionKey string `json:"svr_version_key"`
}

// ApplicationData contains everything around the lobby core.
type ApplicationData struct {
	Timers   TimerConfig    `json:"timers"`
	Protocol ProtocolConfig `json:"protocol"`
	Database DatabaseConfig `json:"database"`
	MQTT     MQTTConfig     `json:"mqtt"`
	Security SecurityConfig `json:"security"`
	Logging  LoggingConfig  `json:"logging"`
}

// TimerConfig holds sweep cadence and idle thresholds, all in seconds.
type TimerConfig struct {
	SweepInterval      int `json:"sweep_interval_sec"`
	SessionIdleTimeout int `json:"session_idle_timeout_sec"`
	RoomIdleTimeout    int `json:"room_idle_timeout_sec"`
	TCPReadTimeout     int `json:"tcp_read_timeout_sec"`
	TCPWriteTimeout    int `json:"tcp_write_timeout_sec"`
	HealthInterval     int `json:"health_check_interval_sec"`
	HeartbeatInterval  int `json:"heartbeat_interval_sec"`
}

// ProtocolConfig bounds the wire protocol.
type ProtocolConfig struct {
	MaxFrameSize int `json:"max_frame_size"`
}

// DatabaseConfig holds the moderation store settings.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	BrokerURL   string `json:"broker_url"`
	Port        int    `json:"port"`
	UseTLS      bool   `json:"use_tls"`
	CertFile    string `json:"cert_file"`
	KeyFile     string `json:"key_file"`
	CAFile      string `json:"ca_file"`
	ClientID    string `json:"client_id"`
	TopicPrefix string `json:"topic_prefix"`
}

// SecurityConfig holds admin API security settings.
type SecurityConfig struct {
	TLSEnabled     bool     `json:"tls_enabled"`
	TLSCertFile    string   `json:"tls_cert_file"`
	TLSKeyFile     string   `json:"tls_key_file"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
	APIToken       string   `json:"api_token"`
	AuthDisabled   bool     `json:"auth_disabled"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ServerData: ServerData{
			BindAddress:  "0.0.0.0",
			TCPPort:      DefaultTCPPort,
			HTTPPort:     DefaultHTTPPort,
			APIPort:      DefaultAPIPort,
			DefaultGroup: "default",
			MaxRooms:     500,
		},
		ApplicationData: ApplicationData{
			Timers: TimerConfig{
				SweepInterval:      120,
				SessionIdleTimeout: 1800,
				RoomIdleTimeout:    1800,
				TCPReadTimeout:     300,
				TCPWriteTimeout:    10,
				HealthInterval:     300,
				HeartbeatInterval:  60,
			},
			Protocol: ProtocolConfig{
				MaxFrameSize: 64 * 1024,
			},
			Database: DatabaseConfig{
				Path: "data/moderation.db",
			},
			MQTT: MQTTConfig{
				Enabled:     false,
				Port:        8883,
				UseTLS:      true,
				TopicPrefix: "bluefox",
			},
			Security: SecurityConfig{
				RateLimitRPS: 100,
				AuthDisabled: true,
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxSizeMB:  10,
				MaxBackups: 5,
			},
		},
	}
}

// Load reads configuration from a JSON file.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save config to persist any new default fields added in code updates.
	// This ensures config.json always reflects the complete set of options.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Ensure config directory exists
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetServerData returns a copy of the server data configuration.
func (c *Config) GetServerData() ServerData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ServerData
}

// SetServerData updates the server data configuration.
func (c *Config) SetServerData(data ServerData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ServerData = data
}

// GetApplicationData returns a copy of the application data configuration.
func (c *Config) GetApplicationData() ApplicationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ApplicationData
}

// SetApplicationData updates the application data configuration.
func (c *Config) SetApplicationData(data ApplicationData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ApplicationData = data
}

// UpdateServerField updates a specific field in server data by JSON key.
func (c *Config) UpdateServerField(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, _ := json.Marshal(c.ServerData)
	m := make(map[string]interface{})
	json.Unmarshal(data, &m)

	m[key] = value

	updated, _ := json.Marshal(m)
	if err := json.Unmarshal(updated, &c.ServerData); err != nil {
		return fmt.Errorf("failed to update field %s: %w", key, err)
	}

	return nil
}

// UpdateAppField updates a specific field in application data by JSON key.
func (c *Config) UpdateAppField(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, _ := json.Marshal(c.ApplicationData)
	m := make(map[string]interface{})
	json.Unmarshal(data, &m)

	m[key] = value

	updated, _ := json.Marshal(m)
	if err := json.Unmarshal(updated, &c.ApplicationData); err != nil {
		return fmt.Errorf("failed to update field %s: %w", key, err)
	}

	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// SessionIdleTimeout returns the session idle threshold as a duration.
func (c *Config) SessionIdleTimeout() time.Duration {
	return time.Duration(c.GetApplicationData().Timers.SessionIdleTimeout) * time.Second
}

// RoomIdleTimeout returns the room idle threshold as a duration.
func (c *Config) RoomIdleTimeout() time.Duration {
	return time.Duration(c.GetApplicationData().Timers.RoomIdleTimeout) * time.Second
}

// SweepInterval returns the sweeper cadence as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.GetApplicationData().Timers.SweepInterval) * time.Second
}
