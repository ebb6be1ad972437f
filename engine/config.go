// File: engine/config.go
// Package engine wires together the Runtime: configuration loading,
// logging, the Reactor/WorkerPool/TimerWheel trio, and the Transport
// registries.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package engine

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// TransportConfig is one transports[] entry of the config file.
type TransportConfig struct {
	Name     string            `mapstructure:"name"`
	Type     string            `mapstructure:"type"` // "http" | "ws" | "packet" | "status"
	Host     string            `mapstructure:"host"`
	Port     int               `mapstructure:"port"`
	Secure   bool              `mapstructure:"secure"`
	Services []ServiceConfig   `mapstructure:"services"`
}

// ServiceConfig is one transports[].services[] entry.
type ServiceConfig struct {
	Type string `mapstructure:"type"`
	Path string `mapstructure:"path"`
}

// Config is the validated, fully-resolved configuration the Runtime
// consumes. Unknown top-level keys are ignored by viper by default;
// missing required keys are caught in Validate below.
type Config struct {
	Workers     int
	ProcessName string
	TimeZone    *time.Location
	Transports  []TransportConfig
}

type rawConfig struct {
	Core struct {
		Workers     any    `mapstructure:"workers"` // int or "auto"
		ProcessName string `mapstructure:"processName"`
		TimeZone    string `mapstructure:"timeZone"`
	} `mapstructure:"core"`
	Transports []TransportConfig `mapstructure:"transports"`
}

// Load reads and validates configuration from path (any format viper
// supports by extension: yaml, json, toml...).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("engine: read config %s: %w", path, err)
	}

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("engine: parse config: %w", err)
	}

	return validate(raw)
}

func validate(raw rawConfig) (*Config, error) {
	cfg := &Config{ProcessName: raw.Core.ProcessName}

	workers, err := resolveWorkers(raw.Core.Workers)
	if err != nil {
		return nil, err
	}
	cfg.Workers = workers

	tz := raw.Core.TimeZone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("engine: core.timeZone %q: %w", tz, err)
	}
	cfg.TimeZone = loc

	if len(raw.Transports) == 0 {
		return nil, fmt.Errorf("engine: config must declare at least one transport")
	}
	for i, t := range raw.Transports {
		if t.Name == "" {
			return nil, fmt.Errorf("engine: transports[%d].name is required", i)
		}
		if t.Type == "" {
			return nil, fmt.Errorf("engine: transports[%d].type is required", i)
		}
		if t.Port <= 0 {
			return nil, fmt.Errorf("engine: transports[%d].port must be positive", i)
		}
	}
	cfg.Transports = raw.Transports

	return cfg, nil
}

func resolveWorkers(v any) (int, error) {
	switch val := v.(type) {
	case nil:
		return 2, nil
	case string:
		if val == "auto" {
			return 0, nil // engine.New resolves 0 -> runtime.NumCPU()
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("engine: core.workers %q is neither an integer nor \"auto\"", val)
		}
		return clampWorkers(n), nil
	case int:
		return clampWorkers(val), nil
	case float64: // viper decodes bare numbers as float64
		return clampWorkers(int(val)), nil
	default:
		return 0, fmt.Errorf("engine: core.workers has unsupported type %T", v)
	}
}

func clampWorkers(n int) int {
	if n < 2 {
		return 2
	}
	return n
}
