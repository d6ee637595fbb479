package phoenix

import (
	"fmt"
	"os"

	"github.com/eljojo/phoenix/types"
	"gopkg.in/yaml.v3"
)

// Config holds everything needed to run a phoenix node.
type Config struct {
	FeedID   types.FeedID `yaml:"feed_id"`
	DataDir  string       `yaml:"data_dir"`
	HTTPAddr string       `yaml:"http_addr"`

	MQTTHost  string `yaml:"mqtt_host"`
	MQTTUser  string `yaml:"mqtt_user"`
	MQTTPass  string `yaml:"mqtt_pass"`
	MQTTTopic string `yaml:"mqtt_topic"`

	BugsnagAPIKey string `yaml:"bugsnag_api_key"`
	ServeMetrics  bool   `yaml:"serve_metrics"`
}

// DefaultConfig returns the settings used when nothing else is given.
// MQTT and HTTP stay disabled until an address is set.
func DefaultConfig() Config {
	return Config{
		DataDir:      "phoenix-data",
		MQTTTopic:    "phoenix",
		ServeMetrics: true,
	}
}

// LoadConfigFile overlays the YAML file at path on top of cfg.
func LoadConfigFile(path string, cfg Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the settings a node can not start without.
func (c Config) Validate() error {
	if c.FeedID == "" {
		return fmt.Errorf("feed id is required")
	}
	if c.MQTTHost != "" && c.MQTTTopic == "" {
		return fmt.Errorf("mqtt topic is required when mqtt is enabled")
	}
	return nil
}
