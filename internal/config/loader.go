package config

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. COPTER_MQTT_BROKER_URL.
const EnvPrefix = "COPTER"

// Load reads configuration from path (optional), COPTER_* environment
// variables and defaults, in increasing order of precedence: defaults, file,
// environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "copter-actor-" + uuid.NewString()[:8]
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so that environment overrides are seen by
// Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("mqtt.broker_url", d.MQTT.BrokerURL)
	v.SetDefault("mqtt.client_id", d.MQTT.ClientID)
	v.SetDefault("mqtt.username", d.MQTT.Username)
	v.SetDefault("mqtt.password", d.MQTT.Password)
	v.SetDefault("mqtt.keep_alive", d.MQTT.KeepAlive)
	v.SetDefault("mqtt.connect_timeout", d.MQTT.ConnectTimeout)
	v.SetDefault("mqtt.auto_reconnect", d.MQTT.AutoReconnect)
	v.SetDefault("mqtt.max_reconnect_interval", d.MQTT.MaxReconnectInterval)

	v.SetDefault("actor.module", d.Actor.Module)
	v.SetDefault("actor.key", d.Actor.Key)
	v.SetDefault("actor.topic_prefix", d.Actor.TopicPrefix)
	v.SetDefault("actor.qos", d.Actor.QoS)
	v.SetDefault("actor.queue_size", d.Actor.QueueSize)
	v.SetDefault("actor.health_interval", d.Actor.HealthInterval)
	v.SetDefault("actor.http_addr", d.Actor.HTTPAddr)

	v.SetDefault("vehicle.default_udp_port", d.Vehicle.DefaultUDPPort)
	v.SetDefault("vehicle.default_usb_baud", d.Vehicle.DefaultUSBBaud)
	prefixes := make(map[string]interface{}, len(d.Vehicle.ModePrefixes))
	for family, prefix := range d.Vehicle.ModePrefixes {
		prefixes[family] = prefix
	}
	// A nested map default merges with file entries key by key.
	v.SetDefault("vehicle.mode_prefixes", prefixes)

	v.SetDefault("simulator.drone_type", d.Simulator.DroneType)
	v.SetDefault("simulator.firmware_label", d.Simulator.FirmwareLabel)
	v.SetDefault("simulator.firmware_version", d.Simulator.FirmwareVersion)
	v.SetDefault("simulator.home", d.Simulator.Home)
	v.SetDefault("simulator.link_delay", d.Simulator.LinkDelay)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", d.Logging.Compress)
}
