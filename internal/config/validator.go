package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateServerData(&cfg.ServerData, result)
	validateApplicationData(&cfg.ApplicationData, result)

	return result
}

func validateServerData(data *ServerData, result *ValidationResult) {
	if strings.TrimSpace(data.Name) == "" {
		result.AddError("server_data.svr_name", "server name is required")
	}

	if data.BindAddress != "" && net.ParseIP(data.BindAddress) == nil {
		result.AddError("server_data.svr_bind_address",
			fmt.Sprintf("invalid bind address: %s", data.BindAddress))
	}

	validatePort(data.TCPPort, "server_data.svr_tcp_port", result)
	validatePort(data.HTTPPort, "server_data.svr_http_port", result)
	validatePort(data.APIPort, "server_data.svr_api_port", result)

	ports := map[int]string{
		data.TCPPort:  "tcp",
		data.HTTPPort: "http",
		data.APIPort:  "api",
	}
	if len(ports) < 3 {
		result.AddError("server_data.ports", "port conflict detected: all ports must be unique")
	}

	if data.MaxRooms < 1 {
		result.AddError("server_data.lobby_max_rooms", "must allow at least 1 room")
	}
	if strings.TrimSpace(data.DefaultGroup) == "" {
		result.AddWarning("server_data.lobby_default_group", "empty default group, falling back to \"default\"")
	}
}

func validateApplicationData(data *ApplicationData, result *ValidationResult) {
	validateTimers(&data.Timers, result)

	if data.Protocol.MaxFrameSize < 1024 {
		result.AddError("application_data.protocol.max_frame_size",
			"frame ceiling below 1KB cannot carry a settings update")
	}
	if data.Protocol.MaxFrameSize > 16*1024*1024 {
		result.AddWarning("application_data.protocol.max_frame_size",
			"frame ceiling above 16MB defeats per-message memory bounding")
	}

	if strings.TrimSpace(data.Database.Path) == "" {
		result.AddError("application_data.database.path", "moderation store path is required")
	}

	// MQTT
	if data.MQTT.Enabled {
		if strings.TrimSpace(data.MQTT.BrokerURL) == "" {
			result.AddError("application_data.mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		if data.MQTT.Port < 1 || data.MQTT.Port > 65535 {
			result.AddError("application_data.mqtt.port", "invalid MQTT port")
		}
	}

	// Security
	if data.Security.TLSEnabled {
		if strings.TrimSpace(data.Security.TLSCertFile) == "" {
			result.AddError("application_data.security.tls_cert_file",
				"TLS certificate file is required when TLS is enabled")
		}
		if strings.TrimSpace(data.Security.TLSKeyFile) == "" {
			result.AddError("application_data.security.tls_key_file",
				"TLS key file is required when TLS is enabled")
		}
	}

	if data.Security.RateLimitRPS < 1 {
		result.AddWarning("application_data.security.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}
	if !data.Security.AuthDisabled && strings.TrimSpace(data.Security.APIToken) == "" {
		result.AddError("application_data.security.api_token",
			"API token is required when auth is enabled")
	}
}

func validateTimers(timers *TimerConfig, result *ValidationResult) {
	if timers.SweepInterval < 10 {
		result.AddWarning("timers.sweep_interval_sec",
			"sweep interval less than 10s churns the registries for no benefit")
	}
	if timers.SessionIdleTimeout < timers.SweepInterval {
		result.AddWarning("timers.session_idle_timeout_sec",
			"session idle timeout shorter than the sweep interval expires sessions on their first sweep")
	}
	if timers.RoomIdleTimeout < 60 {
		result.AddWarning("timers.room_idle_timeout_sec",
			"room idle timeout under a minute will reap lobbies mid-setup")
	}
	if timers.TCPReadTimeout < 30 {
		result.AddWarning("timers.tcp_read_timeout_sec",
			"read timeout under 30s disconnects quiet but healthy clients")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
