package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/thushan-yassen/egressgw/internal/core/constants"
)

const (
	DefaultPort = 19841
	DefaultHost = "localhost"

	DefaultFileWriteDelay = 150 * time.Millisecond // Small delay to ensure file write is complete
)

var (
	lastReload  time.Time
	reloadMutex sync.Mutex
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			Theme:      "default",
			LogDir:     "./logs",
			FileOutput: true,
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		AI: AIConfig{
			Provider:         "gemini",
			TimeoutSeconds:   30,
			QPSPerKey:        1.0,
			BurstMultiplier:  2.0,
			Strategy:         "round_robin",
			MaxRetries:       1,
			PerKeyMaxRetries: 3,
			FailureThreshold: 5,
			RecoveryTimeout:  60 * time.Second,
		},
		VPN: VPNConfig{
			Enabled:            false,
			Type:               "wireguard",
			BootstrapTimeout:   constants.DefaultBootstrapTimeout,
			HealthProbeTimeout: constants.DefaultHealthProbeTimeout,
			Route: RouteConfig{
				Mode: "all",
			},
		},
	}
}

// envPrefix is the literal prefix this build binds its own dot-path keys
// under; spec.md's env var names (AI_PROVIDER, GEMINI_API_KEYS, VPN_ENABLED,
// ...) are bound as direct aliases below so both naming schemes resolve.
const envPrefix = "EGW"

// Load loads configuration from file and environment variables.
func Load(onConfigChange func()) (*Config, error) {
	config := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindSpecEnvAliases()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if configFile := os.Getenv(envPrefix + "_CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	useYAMLTags := func(c *mapstructure.DecoderConfig) { c.TagName = "yaml" }
	if err := viper.Unmarshal(config, viper.DecodeHook(decodeHook), useYAMLTags); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	applyProviderPrefixedAliases(config)

	viper.WatchConfig()

	if onConfigChange != nil {
		viper.OnConfigChange(func(e fsnotify.Event) {
			reloadMutex.Lock()
			defer reloadMutex.Unlock()

			// lame debounce to avoid rapid-fire reloads
			now := time.Now()
			if now.Sub(lastReload) < 500*time.Millisecond {
				return // Ignore miultiple rapid changes
			}
			lastReload = now

			// looks like on windows this event is triggered
			// before the file is fully written, not sure why
			time.Sleep(DefaultFileWriteDelay)
			onConfigChange()
		})
	}
	return config, nil
}

// bindSpecEnvAliases wires spec.md §6's literal env var names onto the
// viper dot-path keys the rest of the codebase reads, so EGW_AI_PROVIDER
// and AI_PROVIDER both resolve to ai.provider.
func bindSpecEnvAliases() {
	_ = viper.BindEnv("server.host")
	_ = viper.BindEnv("server.port")

	_ = viper.BindEnv("logging.level", "LOG_LEVEL")
	_ = viper.BindEnv("logging.theme", "LOG_THEME")
	_ = viper.BindEnv("logging.log_dir", "LOG_DIR")
	_ = viper.BindEnv("logging.file_output", "LOG_FILE_OUTPUT")

	_ = viper.BindEnv("ai.provider", "AI_PROVIDER")
	_ = viper.BindEnv("ai.model_text", "AI_MODEL_TEXT")
	_ = viper.BindEnv("ai.model_vision", "AI_MODEL_VISION")
	_ = viper.BindEnv("ai.timeout_s", "AI_TIMEOUT_S")
	_ = viper.BindEnv("ai.qps_per_key", "AI_QPS_PER_KEY")
	_ = viper.BindEnv("ai.burst_multiplier", "AI_BURST_MULTIPLIER")
	_ = viper.BindEnv("ai.strategy", "AI_STRATEGY")
	_ = viper.BindEnv("ai.openrouter.base_url", "OPENROUTER_BASE_URL")
	_ = viper.BindEnv("ai.openrouter.app_url", "OPENROUTER_APP_URL")
	_ = viper.BindEnv("ai.openrouter.app_name", "OPENROUTER_APP_NAME")

	_ = viper.BindEnv("vpn.enabled", "VPN_ENABLED")
	_ = viper.BindEnv("vpn.type", "VPN_TYPE")
	_ = viper.BindEnv("vpn.wireguard.config_path", "WG_CONFIG_PATH")
	_ = viper.BindEnv("vpn.wireguard.interface", "WG_INTERFACE")
	_ = viper.BindEnv("vpn.openvpn.config_path", "OPENVPN_CONFIG_PATH")
	_ = viper.BindEnv("vpn.openvpn.interface", "OPENVPN_INTERFACE")
	_ = viper.BindEnv("vpn.hysteria2.uri", "HYSTERIA2_URI")
	_ = viper.BindEnv("vpn.hysteria2.socks5_port", "HYSTERIA2_SOCKS5_PORT")
	_ = viper.BindEnv("vpn.hysteria2.http_port", "HYSTERIA2_HTTP_PORT")
	_ = viper.BindEnv("vpn.hysteria2.config_path", "HYSTERIA2_CONFIG_PATH")
	_ = viper.BindEnv("vpn.route.mode", "VPN_ROUTE_MODE")
	_ = viper.BindEnv("vpn.route.domains", "VPN_ROUTE_DOMAINS")
	_ = viper.BindEnv("vpn.route.cidrs", "VPN_ROUTE_CIDRS")
	_ = viper.BindEnv("vpn.route.bypass_cidrs", "VPN_BYPASS_CIDRS")
}

// applyProviderPrefixedAliases resolves the `*_API_KEYS` / `*_QPS_PER_KEY`
// family of spec.md env vars, whose prefix depends on the already-decoded
// ai.provider value (GEMINI_ or OPENROUTER_), and fills them in if the
// generic ai.* keys were left at their defaults.
func applyProviderPrefixedAliases(cfg *Config) {
	prefix := strings.ToUpper(cfg.AI.Provider)
	if prefix == "" {
		return
	}

	if len(cfg.AI.APIKeys) == 0 {
		if raw := os.Getenv(prefix + "_API_KEYS"); raw != "" {
			cfg.AI.APIKeys = strings.Split(raw, ",")
		}
	}
	if cfg.AI.ModelText == "" {
		if v := os.Getenv(prefix + "_MODEL_TEXT"); v != "" {
			cfg.AI.ModelText = v
		}
	}
	if cfg.AI.ModelVision == "" {
		if v := os.Getenv(prefix + "_MODEL_VISION"); v != "" {
			cfg.AI.ModelVision = v
		}
	}
}
