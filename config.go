package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration, loaded from YAML and
// then overridable by environment variables (SPEC_FULL.md 2.2). The shape
// mirrors the teacher's config.go: one struct per concern, yaml-tagged,
// loaded once at startup in main().
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Health    HealthConfig    `yaml:"health"`
}

// ServerConfig contains TCP listener settings for the Remote In protocol.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ServerName   string `yaml:"server_name"`    // echoed to clients on Connect
	CmdRateLimit int    `yaml:"cmd_rate_limit"` // commands/sec per session; 0 or unset = default 50, negative = unlimited
}

// SimulatorConfig contains the parameter file and acquisition time-scale.
type SimulatorConfig struct {
	ParameterFile string  `yaml:"parameter_file"`
	TimeScale     float64 `yaml:"time_scale"` // spec.md 9: default 1.0, higher for accelerated tests
}

// MetricsConfig contains the optional Prometheus scrape listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"` // e.g. ":9090"
}

// MonitorConfig contains the optional read-only websocket status endpoint.
type MonitorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"` // e.g. ":8089"
}

// HealthConfig contains the optional process/engine health-check endpoint.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"` // e.g. ":8088"
}

// LoadConfig loads configuration from a YAML file and applies environment
// overrides and defaults, mirroring the teacher's LoadConfig.
func LoadConfig(filename string) (*Config, error) {
	cfg := &Config{}

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides lets SIMULATOR_* environment variables win over
// whatever the YAML file (or its absence) supplied, per SPEC_FULL.md 2.2.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SIMULATOR_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SIMULATOR_PORT"); v != "" {
		if port, err := parsePort(v); err == nil {
			cfg.Server.Port = port
		} else {
			fmt.Printf("Warning: ignoring invalid SIMULATOR_PORT %q: %v\n", v, err)
		}
	}
	if v := os.Getenv("SIMULATOR_PARAMETER_FILE"); v != "" {
		cfg.Simulator.ParameterFile = v
	}
	if v := os.Getenv("SIMULATOR_TIME_SCALE"); v != "" {
		if scale, err := parseTimeScale(v); err == nil {
			cfg.Simulator.TimeScale = scale
		} else {
			fmt.Printf("Warning: ignoring invalid SIMULATOR_TIME_SCALE %q: %v\n", v, err)
		}
	}
	if v := os.Getenv("SIMULATOR_METRICS_ADDR"); v != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = v
	}
	if v := os.Getenv("SIMULATOR_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
}

func parsePort(s string) (int, error) {
	var port int
	_, err := fmt.Sscanf(s, "%d", &port)
	if err != nil {
		return 0, err
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}

func parseTimeScale(s string) (float64, error) {
	var scale float64
	_, err := fmt.Sscanf(s, "%g", &scale)
	if err != nil {
		return 0, err
	}
	if scale <= 0 {
		return 0, fmt.Errorf("time scale must be positive")
	}
	return scale, nil
}

// applyDefaults fills in zero-value fields the way the teacher's
// LoadConfig does for its own settings blocks.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 7010
	}
	if cfg.Server.ServerName == "" {
		cfg.Server.ServerName = "KREIOS-150-SIM"
	}
	if cfg.Server.CmdRateLimit == 0 {
		cfg.Server.CmdRateLimit = 50
	}
	if cfg.Simulator.TimeScale == 0 {
		cfg.Simulator.TimeScale = 1.0
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9090"
	}
	if cfg.Monitor.Listen == "" {
		cfg.Monitor.Listen = ":8089"
	}
	if cfg.Health.Listen == "" {
		cfg.Health.Listen = ":8088"
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Simulator.TimeScale <= 0 {
		return fmt.Errorf("simulator.time_scale must be positive")
	}
	return nil
}
