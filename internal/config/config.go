// Package config loads the copter actor's configuration from an optional YAML
// file, COPTER_* environment variables and built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/flightlink/copter-actor/internal/actor"
	"github.com/flightlink/copter-actor/internal/driver"
	"github.com/flightlink/copter-actor/internal/driver/sim"
	"github.com/flightlink/copter-actor/internal/supervisor"
	"github.com/flightlink/copter-actor/pkg/coordinate"
	"github.com/flightlink/copter-actor/pkg/mqtt"
)

// Config is the complete actor configuration.
type Config struct {
	// MQTT broker connection
	MQTT MQTTConfig `mapstructure:"mqtt" yaml:"mqtt"`

	// Actor module identity on the hub
	Actor ActorConfig `mapstructure:"actor" yaml:"actor"`

	// Vehicle link defaults and mode naming
	Vehicle VehicleConfig `mapstructure:"vehicle" yaml:"vehicle"`

	// Simulator settings for the built-in driver
	Simulator SimulatorConfig `mapstructure:"simulator" yaml:"simulator"`

	// Logging output
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// MQTTConfig holds MQTT broker configuration.
type MQTTConfig struct {
	// BrokerURL is the full broker URL, e.g. "tcp://localhost:1883"
	BrokerURL string `mapstructure:"broker_url" yaml:"broker_url"`

	// ClientID is the MQTT client identifier; generated when empty
	ClientID string `mapstructure:"client_id" yaml:"client_id"`

	// Username for MQTT authentication (optional)
	Username string `mapstructure:"username" yaml:"username"`

	// Password for MQTT authentication (optional, prefer COPTER_MQTT_PASSWORD)
	Password string `mapstructure:"password" yaml:"-"`

	KeepAlive            time.Duration `mapstructure:"keep_alive" yaml:"keep_alive"`
	ConnectTimeout       time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	AutoReconnect        bool          `mapstructure:"auto_reconnect" yaml:"auto_reconnect"`
	MaxReconnectInterval time.Duration `mapstructure:"max_reconnect_interval" yaml:"max_reconnect_interval"`
}

// ActorConfig holds the module's hub identity.
type ActorConfig struct {
	Module         string        `mapstructure:"module" yaml:"module"`
	Key            string        `mapstructure:"key" yaml:"key"`
	TopicPrefix    string        `mapstructure:"topic_prefix" yaml:"topic_prefix"`
	QoS            int           `mapstructure:"qos" yaml:"qos"`
	QueueSize      int           `mapstructure:"queue_size" yaml:"queue_size"`
	HealthInterval time.Duration `mapstructure:"health_interval" yaml:"health_interval"`

	// HTTPAddr enables the local HTTP surface, e.g. ":8081"
	HTTPAddr string `mapstructure:"http_addr" yaml:"http_addr"`
}

// VehicleConfig holds link defaults and the mode prefix table.
type VehicleConfig struct {
	DefaultUDPPort int `mapstructure:"default_udp_port" yaml:"default_udp_port"`
	DefaultUSBBaud int `mapstructure:"default_usb_baud" yaml:"default_usb_baud"`

	// ModePrefixes maps a vehicle family number to its mode name prefix
	ModePrefixes map[string]string `mapstructure:"mode_prefixes" yaml:"mode_prefixes"`
}

// SimulatorConfig describes the simulated vehicle.
type SimulatorConfig struct {
	DroneType       int           `mapstructure:"drone_type" yaml:"drone_type"`
	FirmwareLabel   string        `mapstructure:"firmware_label" yaml:"firmware_label"`
	FirmwareVersion string        `mapstructure:"firmware_version" yaml:"firmware_version"`
	Home            []float64     `mapstructure:"home" yaml:"home"`
	LinkDelay       time.Duration `mapstructure:"link_delay" yaml:"link_delay"`
}

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`

	// Format is "json" or "console"
	Format string `mapstructure:"format" yaml:"format"`

	// File enables a rotated log file in addition to stderr
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	actorDefaults := actor.DefaultConfig()
	prefixes := make(map[string]string)
	for family, prefix := range supervisor.DefaultModePrefixes() {
		prefixes[cast.ToString(family)] = prefix
	}
	simDefaults := sim.DefaultConfig()

	return &Config{
		MQTT: MQTTConfig{
			BrokerURL:            "tcp://localhost:1883",
			KeepAlive:            30 * time.Second,
			ConnectTimeout:       10 * time.Second,
			AutoReconnect:        true,
			MaxReconnectInterval: 5 * time.Minute,
		},
		Actor: ActorConfig{
			Module:         actorDefaults.Module,
			Key:            actorDefaults.ActorKey,
			TopicPrefix:    actorDefaults.TopicPrefix,
			QoS:            int(actorDefaults.QoS),
			QueueSize:      actorDefaults.QueueSize,
			HealthInterval: actorDefaults.HealthInterval,
		},
		Vehicle: VehicleConfig{
			DefaultUDPPort: driver.DefaultUDPPort,
			DefaultUSBBaud: driver.DefaultUSBBaud,
			ModePrefixes:   prefixes,
		},
		Simulator: SimulatorConfig{
			DroneType:       simDefaults.DroneType,
			FirmwareLabel:   simDefaults.FirmwareLabel,
			FirmwareVersion: simDefaults.FirmwareVersion,
			Home:            []float64{0, 0, 0},
			LinkDelay:       simDefaults.LinkDelay,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.MQTT.BrokerURL == "" {
		return fmt.Errorf("MQTT broker URL is required")
	}
	if c.MQTT.ConnectTimeout <= 0 {
		return fmt.Errorf("MQTT connect timeout must be positive")
	}

	if c.Actor.Module == "" {
		return fmt.Errorf("actor module name is required")
	}
	if c.Actor.Key == "" {
		return fmt.Errorf("actor key is required")
	}
	if strings.ContainsAny(c.Actor.Key+c.Actor.Module+c.Actor.TopicPrefix, "/#+") {
		return fmt.Errorf("actor key, module and topic prefix must not contain '/', '#' or '+'")
	}
	if c.Actor.QoS < 0 || c.Actor.QoS > 2 {
		return fmt.Errorf("invalid MQTT QoS: %d", c.Actor.QoS)
	}
	if c.Actor.QueueSize <= 0 {
		return fmt.Errorf("event queue size must be positive")
	}
	if c.Actor.HealthInterval < 0 {
		return fmt.Errorf("health interval cannot be negative")
	}

	if c.Vehicle.DefaultUDPPort <= 0 || c.Vehicle.DefaultUDPPort > 65535 {
		return fmt.Errorf("invalid default UDP port: %d", c.Vehicle.DefaultUDPPort)
	}
	if c.Vehicle.DefaultUSBBaud <= 0 {
		return fmt.Errorf("invalid default USB baud rate: %d", c.Vehicle.DefaultUSBBaud)
	}
	if _, err := c.Vehicle.modePrefixes(); err != nil {
		return err
	}

	if _, err := coordinate.Decode3D(c.Simulator.Home); err != nil {
		return fmt.Errorf("invalid simulator home: %w", err)
	}
	if c.Simulator.LinkDelay < 0 {
		return fmt.Errorf("simulator link delay cannot be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}

	return nil
}

func (v *VehicleConfig) modePrefixes() (map[int]string, error) {
	out := make(map[int]string, len(v.ModePrefixes))
	for key, prefix := range v.ModePrefixes {
		family, err := cast.ToIntE(key)
		if err != nil {
			return nil, fmt.Errorf("invalid vehicle family %q in mode prefixes: %w", key, err)
		}
		if prefix == "" {
			return nil, fmt.Errorf("empty mode prefix for vehicle family %d", family)
		}
		out[family] = strings.ToUpper(prefix)
	}
	return out, nil
}

// MQTTClientConfig returns the hub client configuration with will attached.
func (c *Config) MQTTClientConfig(will *mqtt.Will) *mqtt.Config {
	return &mqtt.Config{
		BrokerURL:            c.MQTT.BrokerURL,
		ClientID:             c.MQTT.ClientID,
		Username:             c.MQTT.Username,
		Password:             c.MQTT.Password,
		KeepAlive:            c.MQTT.KeepAlive,
		ConnectTimeout:       c.MQTT.ConnectTimeout,
		AutoReconnect:        c.MQTT.AutoReconnect,
		MaxReconnectInterval: c.MQTT.MaxReconnectInterval,
		Will:                 will,
	}
}

// ActorConfig returns the module settings.
func (c *Config) ActorConfig() actor.Config {
	return actor.Config{
		Module:         c.Actor.Module,
		ActorKey:       c.Actor.Key,
		TopicPrefix:    c.Actor.TopicPrefix,
		QoS:            byte(c.Actor.QoS),
		QueueSize:      c.Actor.QueueSize,
		HealthInterval: c.Actor.HealthInterval,
		HTTPAddr:       c.Actor.HTTPAddr,
	}
}

// SupervisorConfig returns the link defaults and mode prefix table.
func (c *Config) SupervisorConfig() (supervisor.Config, error) {
	prefixes, err := c.Vehicle.modePrefixes()
	if err != nil {
		return supervisor.Config{}, err
	}
	return supervisor.Config{
		ModePrefixes:   prefixes,
		DefaultUDPPort: c.Vehicle.DefaultUDPPort,
		DefaultUSBBaud: c.Vehicle.DefaultUSBBaud,
	}, nil
}

// SimulatorConfig returns the simulated vehicle settings.
func (c *Config) SimulatorConfig() (sim.Config, error) {
	home, err := coordinate.Decode3D(c.Simulator.Home)
	if err != nil {
		return sim.Config{}, fmt.Errorf("invalid simulator home: %w", err)
	}
	return sim.Config{
		DroneType:       c.Simulator.DroneType,
		FirmwareLabel:   c.Simulator.FirmwareLabel,
		FirmwareVersion: c.Simulator.FirmwareVersion,
		Home:            home,
		LinkDelay:       c.Simulator.LinkDelay,
	}, nil
}
