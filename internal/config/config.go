package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the system-wide settings coordinator. Precedence is
// file > environment > defaults.
type Config struct {
	Database    *DatabaseConfig    `json:"database"`
	HTTP        *HTTPConfig        `json:"http"`
	WebSocket   *WebSocketConfig   `json:"websocket"`
	Session     *SessionConfig     `json:"session"`
	Translation *TranslationConfig `json:"translation"`
}

type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
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
	WriteTimeout time.Duration `json:"write_timeout"`
	SendBuffer   int           `json:"send_buffer"`
}

// SessionConfig carries lifecycle timing and replay bounds.
type SessionConfig struct {
	// DrainBudget bounds how long EndSession waits for in-flight
	// translation work.
	DrainBudget time.Duration `json:"drain_budget"`
	// IdleTimeout is how long a session may sit with no activity before
	// the sweeper auto-ends it.
	IdleTimeout time.Duration `json:"idle_timeout"`
	// EndedGrace keeps an ended session's transcript readable before
	// eviction.
	EndedGrace    time.Duration `json:"ended_grace"`
	SweepInterval time.Duration `json:"sweep_interval"`
	// ReplayWindow is how many transcript entries stay in memory per
	// session; ReplayBatch bounds one replay response.
	ReplayWindow int `json:"replay_window"`
	ReplayBatch  int `json:"replay_batch"`
	// IngestRateLimit caps utterances per minute per session.
	IngestRateLimit int `json:"ingest_rate_limit"`
}

type TranslationConfig struct {
	// Endpoint is the external translation service URL.
	Endpoint string `json:"endpoint"`
	// Timeout bounds one call to the translation collaborator.
	Timeout time.Duration `json:"timeout"`
}

// DefaultConfig returns defaults sized for classroom-scale sessions.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./lingocast.db",
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
			WriteTimeout: 10 * time.Second,
			SendBuffer:   64,
		},
		Session: &SessionConfig{
			DrainBudget:     5 * time.Second,
			IdleTimeout:     30 * time.Minute,
			EndedGrace:      10 * time.Minute,
			SweepInterval:   time.Minute,
			ReplayWindow:    500,
			ReplayBatch:     200,
			IngestRateLimit: 120,
		},
		Translation: &TranslationConfig{
			Endpoint: "http://localhost:9090/translate",
			Timeout:  10 * time.Second,
		},
	}
}

// Validate prevents invalid configurations from reaching component
// initialization.
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
	if c.WebSocket.ReadTimeout <= 0 {
		return fmt.Errorf("WebSocket read timeout must be positive")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("WebSocket send buffer must be positive")
	}

	if c.Session == nil {
		return fmt.Errorf("session configuration is required")
	}
	if c.Session.DrainBudget <= 0 {
		return fmt.Errorf("session drain budget must be positive")
	}
	if c.Session.IdleTimeout <= 0 {
		return fmt.Errorf("session idle timeout must be positive")
	}
	if c.Session.EndedGrace <= 0 {
		return fmt.Errorf("session ended grace must be positive")
	}
	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("session sweep interval must be positive")
	}
	if c.Session.ReplayWindow <= 0 {
		return fmt.Errorf("session replay window must be positive")
	}
	if c.Session.ReplayBatch <= 0 {
		return fmt.Errorf("session replay batch must be positive")
	}
	if c.Session.IngestRateLimit <= 0 {
		return fmt.Errorf("session ingest rate limit must be positive")
	}

	if c.Translation == nil {
		return fmt.Errorf("translation configuration is required")
	}
	if c.Translation.Endpoint == "" {
		return fmt.Errorf("translation endpoint cannot be empty")
	}
	if c.Translation.Timeout <= 0 {
		return fmt.Errorf("translation timeout must be positive")
	}

	return nil
}

// LoadFromEnv returns defaults overridden by LINGOCAST_* environment
// variables.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if port := os.Getenv("LINGOCAST_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if host := os.Getenv("LINGOCAST_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if dbPath := os.Getenv("LINGOCAST_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}

	setDuration := func(env string, target *time.Duration) {
		if raw := os.Getenv(env); raw != "" {
			if d, err := time.ParseDuration(raw); err == nil {
				*target = d
			}
		}
	}
	setInt := func(env string, target *int) {
		if raw := os.Getenv(env); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil {
				*target = n
			}
		}
	}

	setDuration("LINGOCAST_HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	setDuration("LINGOCAST_HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)
	setDuration("LINGOCAST_DATABASE_TIMEOUT", &config.Database.Timeout)
	setDuration("LINGOCAST_WEBSOCKET_PING_INTERVAL", &config.WebSocket.PingInterval)
	setDuration("LINGOCAST_WEBSOCKET_READ_TIMEOUT", &config.WebSocket.ReadTimeout)
	setDuration("LINGOCAST_WEBSOCKET_WRITE_TIMEOUT", &config.WebSocket.WriteTimeout)
	setInt("LINGOCAST_WEBSOCKET_SEND_BUFFER", &config.WebSocket.SendBuffer)
	setDuration("LINGOCAST_SESSION_DRAIN_BUDGET", &config.Session.DrainBudget)
	setDuration("LINGOCAST_SESSION_IDLE_TIMEOUT", &config.Session.IdleTimeout)
	setDuration("LINGOCAST_SESSION_ENDED_GRACE", &config.Session.EndedGrace)
	setDuration("LINGOCAST_SESSION_SWEEP_INTERVAL", &config.Session.SweepInterval)
	setInt("LINGOCAST_SESSION_REPLAY_WINDOW", &config.Session.ReplayWindow)
	setInt("LINGOCAST_SESSION_REPLAY_BATCH", &config.Session.ReplayBatch)
	setInt("LINGOCAST_SESSION_INGEST_RATE_LIMIT", &config.Session.IngestRateLimit)
	if endpoint := os.Getenv("LINGOCAST_TRANSLATION_ENDPOINT"); endpoint != "" {
		config.Translation.Endpoint = endpoint
	}
	setDuration("LINGOCAST_TRANSLATION_TIMEOUT", &config.Translation.Timeout)

	return config
}

// ConfigFile mirrors Config with string durations for JSON parsing.
type ConfigFile struct {
	Database    *DatabaseConfigFile    `json:"database"`
	HTTP        *HTTPConfigFile        `json:"http"`
	WebSocket   *WebSocketConfigFile   `json:"websocket"`
	Session     *SessionConfigFile     `json:"session"`
	Translation *TranslationConfigFile `json:"translation"`
}

type DatabaseConfigFile struct {
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	Host         string `json:"host"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	SendBuffer   int    `json:"send_buffer"`
}

type SessionConfigFile struct {
	DrainBudget     string `json:"drain_budget"`
	IdleTimeout     string `json:"idle_timeout"`
	EndedGrace      string `json:"ended_grace"`
	SweepInterval   string `json:"sweep_interval"`
	ReplayWindow    int    `json:"replay_window"`
	ReplayBatch     int    `json:"replay_batch"`
	IngestRateLimit int    `json:"ingest_rate_limit"`
}

type TranslationConfigFile struct {
	Endpoint string `json:"endpoint"`
	Timeout  string `json:"timeout"`
}

// LoadFromFile reads a JSON configuration file over defaults.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	overlayDuration := func(raw string, target *time.Duration) {
		if raw != "" {
			if d, err := time.ParseDuration(raw); err == nil {
				*target = d
			}
		}
	}

	if configFile.Database != nil {
		if configFile.Database.Path != "" {
			config.Database.Path = configFile.Database.Path
		}
		overlayDuration(configFile.Database.Timeout, &config.Database.Timeout)
	}
	if configFile.HTTP != nil {
		if configFile.HTTP.Port > 0 {
			config.HTTP.Port = configFile.HTTP.Port
		}
		if configFile.HTTP.Host != "" {
			config.HTTP.Host = configFile.HTTP.Host
		}
		overlayDuration(configFile.HTTP.ReadTimeout, &config.HTTP.ReadTimeout)
		overlayDuration(configFile.HTTP.WriteTimeout, &config.HTTP.WriteTimeout)
	}
	if configFile.WebSocket != nil {
		if configFile.WebSocket.SendBuffer > 0 {
			config.WebSocket.SendBuffer = configFile.WebSocket.SendBuffer
		}
		overlayDuration(configFile.WebSocket.PingInterval, &config.WebSocket.PingInterval)
		overlayDuration(configFile.WebSocket.ReadTimeout, &config.WebSocket.ReadTimeout)
		overlayDuration(configFile.WebSocket.WriteTimeout, &config.WebSocket.WriteTimeout)
	}
	if configFile.Session != nil {
		if configFile.Session.ReplayWindow > 0 {
			config.Session.ReplayWindow = configFile.Session.ReplayWindow
		}
		if configFile.Session.ReplayBatch > 0 {
			config.Session.ReplayBatch = configFile.Session.ReplayBatch
		}
		if configFile.Session.IngestRateLimit > 0 {
			config.Session.IngestRateLimit = configFile.Session.IngestRateLimit
		}
		overlayDuration(configFile.Session.DrainBudget, &config.Session.DrainBudget)
		overlayDuration(configFile.Session.IdleTimeout, &config.Session.IdleTimeout)
		overlayDuration(configFile.Session.EndedGrace, &config.Session.EndedGrace)
		overlayDuration(configFile.Session.SweepInterval, &config.Session.SweepInterval)
	}
	if configFile.Translation != nil {
		if configFile.Translation.Endpoint != "" {
			config.Translation.Endpoint = configFile.Translation.Endpoint
		}
		overlayDuration(configFile.Translation.Timeout, &config.Translation.Timeout)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

// LoadConfigWithPrecedence loads configuration with file > env > defaults
// precedence. File errors fall back silently to environment/defaults.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
	}
	return config
}
