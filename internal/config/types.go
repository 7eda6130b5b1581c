package config

import "time"

// Config holds all configuration for the application.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Server      ServerConfig      `yaml:"server"`
	AI          AIConfig          `yaml:"ai"`
	VPN         VPNConfig         `yaml:"vpn"`
	Engineering EngineeringConfig `yaml:"engineering"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging and styled-output configuration.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	Theme      string `yaml:"theme"`
	LogDir     string `yaml:"log_dir"`
	FileOutput bool   `yaml:"file_output"`
	PrettyLogs bool   `yaml:"pretty_logs"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// EngineeringConfig holds development/debugging configuration.
type EngineeringConfig struct {
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// AIConfig selects and configures the LLM provider pool (C1-C6).
type AIConfig struct {
	// Provider selects which wire client the key pool dispatches against:
	// "gemini" or "openrouter".
	Provider string `yaml:"provider"`

	APIKeys        []string `yaml:"api_keys"`
	ModelText      string   `yaml:"model_text"`
	ModelVision    string   `yaml:"model_vision"`
	TimeoutSeconds int      `yaml:"timeout_s"`

	QPSPerKey       float64 `yaml:"qps_per_key"`
	BurstMultiplier float64 `yaml:"burst_multiplier"`

	// Strategy selects the key-pool selection algorithm: "round_robin" or
	// "least_busy".
	Strategy string `yaml:"strategy"`

	MaxRetries       int `yaml:"max_retries"`
	PerKeyMaxRetries int `yaml:"per_key_max_retries"`

	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`

	OpenRouter OpenRouterConfig `yaml:"openrouter"`
}

// OpenRouterConfig holds OpenRouter-specific settings layered on top of AIConfig.
type OpenRouterConfig struct {
	BaseURL string `yaml:"base_url"`
	AppURL  string `yaml:"app_url"`
	AppName string `yaml:"app_name"`
}

// VPNConfig configures the egress tunnel controller (C7-C9).
type VPNConfig struct {
	Enabled bool `yaml:"enabled"`

	// Type selects the tunnel backend: "wireguard", "awg", "openvpn" or
	// "hysteria2".
	Type string `yaml:"type"`

	WireGuard WireGuardConfig `yaml:"wireguard"`
	OpenVPN   OpenVPNConfig   `yaml:"openvpn"`
	Hysteria2 Hysteria2Config `yaml:"hysteria2"`

	Route RouteConfig `yaml:"route"`

	BootstrapTimeout   time.Duration `yaml:"bootstrap_timeout"`
	HealthProbeTimeout time.Duration `yaml:"health_probe_timeout"`
	ProbeURL           string        `yaml:"probe_url"`
}

type WireGuardConfig struct {
	ConfigPath string `yaml:"config_path"`
	Interface  string `yaml:"interface"`
}

type OpenVPNConfig struct {
	ConfigPath string `yaml:"config_path"`
	Interface  string `yaml:"interface"`
}

type Hysteria2Config struct {
	URI        string `yaml:"uri"`
	SOCKS5Port int    `yaml:"socks5_port"`
	HTTPPort   int    `yaml:"http_port"`
	ConfigPath string `yaml:"config_path"`
}

// RouteConfig drives the route programmer (C8).
type RouteConfig struct {
	// Mode selects the routing discipline: "all", "domains" or "cidr".
	Mode        string   `yaml:"mode"`
	Domains     []string `yaml:"domains"`
	CIDRs       []string `yaml:"cidrs"`
	BypassCIDRs []string `yaml:"bypass_cidrs"`
}
