package hooks

import (
	"fmt"
	"time"
)

// Config captures hook-related settings exposed via files and env.
type Config struct {
	Enabled    bool              `json:"enabled"`
	ScriptPath string            `json:"script_path"`
	ScriptArgs []string          `json:"script_args"`
	Env        map[string]string `json:"env"`
	Timeout    time.Duration     `json:"timeout"`

	KafkaBrokers []string `json:"kafka_brokers"`
	KafkaTopic   string   `json:"kafka_topic"`
}

// Validate ensures the configuration is coherent before handlers are wired.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ScriptPath == "" && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("hooks: script_path or kafka_brokers required when enabled")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("hooks: kafka_topic required with kafka_brokers")
	}
	return nil
}

// BuildScriptHandler constructs the script handler declared in Config, or
// nil when none is configured.
func (c Config) BuildScriptHandler() Handler {
	if !c.Enabled || c.ScriptPath == "" {
		return nil
	}
	return NewScriptHandler(ScriptConfig{
		Command: c.ScriptPath,
		Args:    c.ScriptArgs,
		Env:     c.Env,
		Timeout: c.Timeout,
	})
}

// KafkaEnabled reports whether a Kafka sink should be wired.
func (c Config) KafkaEnabled() bool {
	return c.Enabled && len(c.KafkaBrokers) > 0
}
