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

const (
	HardcodedVersion = "V0.1"

	DefaultInterval        = 30 * time.Second
	DefaultName            = "LoadBalancer"
	DefaultProxyStatusURL  = "http://localhost/nginx_status"
	DefaultCPUSampleWindow = 1 * time.Second
	DefaultErrorBackoff    = 5 * time.Second
	DefaultShutdownTimeout = 20 * time.Second
)

// Config is loaded once at startup and never mutated afterwards.
type Config struct {
	ControllerURL   string
	APIKey          string
	Interval        time.Duration
	Name            string
	ProxyStatusURL  string
	CPUSampleWindow time.Duration
	ErrorBackoff    time.Duration
	ShutdownTimeout time.Duration
	ProbeListenAddr string
	AgentVersion    string
	LogJSON         bool
	LogLevel        string
}

// fileConfig mirrors the environment keys for the optional YAML overlay.
type fileConfig struct {
	ControllerURL   string `yaml:"main_server_url"`
	APIKey          string `yaml:"main_server_api_key"`
	Interval        string `yaml:"heartbeat_interval"`
	Name            string `yaml:"lb_name"`
	ProxyStatusURL  string `yaml:"proxy_status_url"`
	CPUSampleWindow string `yaml:"cpu_sample_window"`
	ErrorBackoff    string `yaml:"error_backoff"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	ProbeListenAddr string `yaml:"probe_addr"`
	LogJSON         *bool  `yaml:"log_json"`
	LogLevel        string `yaml:"log_level"`
}

// Load reads the optional AGENT_CONFIG_FILE and then the environment.
// Environment values win over file values.
func Load() (Config, error) {
	var fc fileConfig
	if path := env("AGENT_CONFIG_FILE", ""); path != "" {
		var err error
		fc, err = readFile(path)
		if err != nil {
			return Config{}, err
		}
	}

	interval, err := seconds(fc.Interval, DefaultInterval)
	if err != nil {
		return Config{}, fmt.Errorf("heartbeat_interval: %w", err)
	}
	interval, err = seconds(os.Getenv("HEARTBEAT_INTERVAL"), interval)
	if err != nil {
		return Config{}, fmt.Errorf("HEARTBEAT_INTERVAL: %w", err)
	}
	window, err := duration(fc.CPUSampleWindow, DefaultCPUSampleWindow)
	if err != nil {
		return Config{}, fmt.Errorf("cpu_sample_window: %w", err)
	}
	backoff, err := duration(fc.ErrorBackoff, DefaultErrorBackoff)
	if err != nil {
		return Config{}, fmt.Errorf("error_backoff: %w", err)
	}
	shutdown, err := duration(fc.ShutdownTimeout, DefaultShutdownTimeout)
	if err != nil {
		return Config{}, fmt.Errorf("shutdown_timeout: %w", err)
	}
	logJSON := false
	if fc.LogJSON != nil {
		logJSON = *fc.LogJSON
	}

	cfg := Config{
		ControllerURL:   NormalizeBaseURL(env("MAIN_SERVER_URL", fc.ControllerURL)),
		APIKey:          env("MAIN_SERVER_API_KEY", fc.APIKey),
		Interval:        interval,
		Name:            env("LB_NAME", or(fc.Name, DefaultName)),
		ProxyStatusURL:  env("PROXY_STATUS_URL", or(fc.ProxyStatusURL, DefaultProxyStatusURL)),
		CPUSampleWindow: envDuration("AGENT_CPU_SAMPLE_WINDOW", window),
		ErrorBackoff:    envDuration("AGENT_ERROR_BACKOFF", backoff),
		ShutdownTimeout: envDuration("AGENT_SHUTDOWN_TIMEOUT", shutdown),
		ProbeListenAddr: env("AGENT_PROBE_ADDR", fc.ProbeListenAddr),
		AgentVersion:    HardcodedVersion,
		LogJSON:         envBool("AGENT_LOG_JSON", logJSON),
		LogLevel:        strings.ToLower(env("AGENT_LOG_LEVEL", or(fc.LogLevel, "info"))),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the loop cannot run with. A missing controller
// URL or API key is not an error here: each cycle reports it instead.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return errors.New("HEARTBEAT_INTERVAL must be > 0")
	}
	if c.CPUSampleWindow < 0 {
		return errors.New("AGENT_CPU_SAMPLE_WINDOW must be >= 0")
	}
	if c.ErrorBackoff < 0 {
		return errors.New("AGENT_ERROR_BACKOFF must be >= 0")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("AGENT_SHUTDOWN_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("LB_NAME must not be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", c.LogLevel)
	}
	return nil
}

// HasController reports whether both the controller URL and API key are set.
func (c Config) HasController() bool {
	return c.ControllerURL != "" && c.APIKey != ""
}

// NormalizeBaseURL trims whitespace and trailing slashes so paths can be
// appended directly.
func NormalizeBaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

func readFile(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fileConfig{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc, nil
}

func or(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(v)
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func seconds(raw string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return fallback, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func duration(raw string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}
