package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Relay     RelayConfig     `yaml:"relay"`
	Events    EventsConfig    `yaml:"events"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP and WebSocket listener configuration
type ServerConfig struct {
	Address         string   `yaml:"address"`
	Port            int      `yaml:"port"`
	ReadBufferSize  int      `yaml:"read_buffer_size"`
	WriteBufferSize int      `yaml:"write_buffer_size"`
	MaxMessageSize  int      `yaml:"max_message_size"` // bytes
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains per-connection keepalive and queue settings
type WebSocketConfig struct {
	PingInterval  int `yaml:"ping_interval"` // seconds
	PongWait      int `yaml:"pong_wait"`     // seconds
	WriteWait     int `yaml:"write_wait"`    // seconds
	SendQueueSize int `yaml:"send_queue_size"`
}

// RelayConfig contains room limits
type RelayConfig struct {
	BufferCapacity      int `yaml:"buffer_capacity"` // bytes
	MaxFrameSize        int `yaml:"max_frame_size"`  // bytes
	MinPacketIntervalMs int `yaml:"min_packet_interval_ms"`
	InactiveTimeout     int `yaml:"inactive_timeout"` // seconds
	SweepInterval       int `yaml:"sweep_interval"`   // seconds
	InboxSize           int `yaml:"inbox_size"`
}

// EventsConfig contains lifecycle event publishing configuration
type EventsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	RedisAddress   string `yaml:"redis_address"`
	RedisPassword  string `yaml:"redis_password"`
	RedisDB        int    `yaml:"redis_db"`
	Channel        string `yaml:"channel"`
	QueueSize      int    `yaml:"queue_size"`
	PublishTimeout int    `yaml:"publish_timeout"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when a value is not set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         "0.0.0.0",
			Port:            3000,
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			MaxMessageSize:  8192,
			AllowedOrigins:  []string{"*"},
		},
		WebSocket: WebSocketConfig{
			PingInterval:  30,
			PongWait:      60,
			WriteWait:     10,
			SendQueueSize: 256,
		},
		Relay: RelayConfig{
			BufferCapacity:      16384,
			MaxFrameSize:        2048,
			MinPacketIntervalMs: 10,
			InactiveTimeout:     60,
			SweepInterval:       30,
			InboxSize:           256,
		},
		Events: EventsConfig{
			Enabled:        false,
			RedisAddress:   "localhost:6379",
			Channel:        "audio-relay:events",
			QueueSize:      1024,
			PublishTimeout: 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads the configuration file over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides selected values from the environment
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}

	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Logging.Level = strings.ToLower(v)
	}

	if v, ok := lookup("REDIS_ADDRESS"); ok && v != "" {
		c.Events.RedisAddress = v
	}

	if v, ok := lookup("EVENTS_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("EVENTS_ENABLED: %w", err)
		}
		c.Events.Enabled = enabled
	}

	return nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.WebSocket.Validate(); err != nil {
		return fmt.Errorf("websocket config: %w", err)
	}

	if err := c.Relay.Validate(); err != nil {
		return fmt.Errorf("relay config: %w", err)
	}

	if c.Relay.MaxFrameSize > c.Server.MaxMessageSize {
		return fmt.Errorf("relay config: max_frame_size (%d) cannot exceed server max_message_size (%d)",
			c.Relay.MaxFrameSize, c.Server.MaxMessageSize)
	}

	if err := c.Events.Validate(); err != nil {
		return fmt.Errorf("events config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return errors.New("address cannot be empty")
	}

	if s.ReadBufferSize < 1 || s.WriteBufferSize < 1 {
		return fmt.Errorf("read_buffer_size and write_buffer_size must be positive, got %d and %d",
			s.ReadBufferSize, s.WriteBufferSize)
	}

	if s.MaxMessageSize < 1 {
		return fmt.Errorf("max_message_size must be positive, got %d", s.MaxMessageSize)
	}

	return nil
}

// Validate validates websocket configuration
func (w *WebSocketConfig) Validate() error {
	if w.PingInterval < 1 {
		return fmt.Errorf("ping_interval must be at least 1 second, got %d", w.PingInterval)
	}

	if w.PongWait <= w.PingInterval {
		return fmt.Errorf("pong_wait (%d) must be greater than ping_interval (%d)", w.PongWait, w.PingInterval)
	}

	if w.WriteWait < 1 {
		return fmt.Errorf("write_wait must be at least 1 second, got %d", w.WriteWait)
	}

	if w.SendQueueSize < 1 {
		return fmt.Errorf("send_queue_size must be positive, got %d", w.SendQueueSize)
	}

	return nil
}

// Validate validates relay configuration
func (r *RelayConfig) Validate() error {
	if r.BufferCapacity < 1 {
		return fmt.Errorf("buffer_capacity must be positive, got %d", r.BufferCapacity)
	}

	if r.MaxFrameSize < 1 {
		return fmt.Errorf("max_frame_size must be positive, got %d", r.MaxFrameSize)
	}

	if r.MaxFrameSize > r.BufferCapacity {
		return fmt.Errorf("max_frame_size (%d) cannot exceed buffer_capacity (%d)", r.MaxFrameSize, r.BufferCapacity)
	}

	if r.MinPacketIntervalMs < 0 {
		return fmt.Errorf("min_packet_interval_ms cannot be negative, got %d", r.MinPacketIntervalMs)
	}

	if r.InactiveTimeout < 1 {
		return fmt.Errorf("inactive_timeout must be at least 1 second, got %d", r.InactiveTimeout)
	}

	if r.SweepInterval < 1 {
		return fmt.Errorf("sweep_interval must be at least 1 second, got %d", r.SweepInterval)
	}

	if r.InboxSize < 1 {
		return fmt.Errorf("inbox_size must be positive, got %d", r.InboxSize)
	}

	return nil
}

// Validate validates events configuration
func (e *EventsConfig) Validate() error {
	if !e.Enabled {
		return nil
	}

	if e.RedisAddress == "" {
		return errors.New("redis_address cannot be empty when events are enabled")
	}

	if e.Channel == "" {
		return errors.New("channel cannot be empty when events are enabled")
	}

	if e.QueueSize < 1 {
		return fmt.Errorf("queue_size must be positive, got %d", e.QueueSize)
	}

	if e.PublishTimeout < 1 {
		return fmt.Errorf("publish_timeout must be at least 1 second, got %d", e.PublishTimeout)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Anything other than stdout or stderr is treated as a file path
	if l.Output == "" {
		return errors.New("output cannot be empty")
	}

	return nil
}

// GetPingInterval returns the ping interval as a time.Duration
func (w *WebSocketConfig) GetPingInterval() time.Duration {
	return time.Duration(w.PingInterval) * time.Second
}

// GetPongWait returns the pong wait as a time.Duration
func (w *WebSocketConfig) GetPongWait() time.Duration {
	return time.Duration(w.PongWait) * time.Second
}

// GetWriteWait returns the write wait as a time.Duration
func (w *WebSocketConfig) GetWriteWait() time.Duration {
	return time.Duration(w.WriteWait) * time.Second
}

// GetMinPacketInterval returns the minimum packet interval as a time.Duration
func (r *RelayConfig) GetMinPacketInterval() time.Duration {
	return time.Duration(r.MinPacketIntervalMs) * time.Millisecond
}

// GetInactiveTimeoutDuration returns the inactivity timeout as a time.Duration
func (r *RelayConfig) GetInactiveTimeoutDuration() time.Duration {
	return time.Duration(r.InactiveTimeout) * time.Second
}

// GetSweepIntervalDuration returns the sweep interval as a time.Duration
func (r *RelayConfig) GetSweepIntervalDuration() time.Duration {
	return time.Duration(r.SweepInterval) * time.Second
}

// GetPublishTimeoutDuration returns the publish timeout as a time.Duration
func (e *EventsConfig) GetPublishTimeoutDuration() time.Duration {
	return time.Duration(e.PublishTimeout) * time.Second
}
