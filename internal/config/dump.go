package config

import (
	"fmt"

	"gopkg.in/yaml.v2"
)

// YAML renders the configuration as a file Load accepts. The MQTT password
// is never written.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode configuration: %w", err)
	}
	return data, nil
}
