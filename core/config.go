package core

import (
	"fmt"
	"strings"
	"time"
)

type SettlementConfig struct {
	// Delay is the fixed simulated settlement latency applied before each
	// task touches the store again. It is a design parameter, not caller
	// input.
	Delay         time.Duration `koanf:"delay" mapstructure:"delay"`
	Workers       int           `koanf:"workers" mapstructure:"workers"`
	QueueCapacity int           `koanf:"queue_capacity" mapstructure:"queue_capacity"`
}

type Config struct {
	ServiceName string           `koanf:"service_name" mapstructure:"service_name"`
	Settlement  SettlementConfig `koanf:"settlement" mapstructure:"settlement"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "txprocessor",
		Settlement: SettlementConfig{
			Delay:         30 * time.Second,
			Workers:       4,
			QueueCapacity: 256,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Settlement.Delay < 0 {
		return fmt.Errorf("core: settlement delay must not be negative")
	}
	if c.Settlement.Workers < 0 {
		return fmt.Errorf("core: settlement workers must not be negative")
	}
	if c.Settlement.QueueCapacity < 0 {
		return fmt.Errorf("core: settlement queue capacity must not be negative")
	}
	return nil
}
