package authsync

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g.
// AUTHSYNC_REDIRECT_COOLDOWN=5s.
const EnvPrefix = "AUTHSYNC"

// LoadConfig builds a Config from the defaults, the optional file at path
// (YAML, JSON or TOML, chosen by extension) and AUTHSYNC_* environment
// variables, in increasing precedence. The result is validated.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, defaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("authsync: read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("authsync: decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("session.event_cooldown", d.Session.EventCooldown)
	v.SetDefault("session.debounce", d.Session.Debounce)

	v.SetDefault("roles.staleness", d.Roles.Staleness)
	v.SetDefault("roles.cache_size", d.Roles.CacheSize)
	v.SetDefault("roles.max_attempts", d.Roles.MaxAttempts)
	v.SetDefault("roles.initial_backoff", d.Roles.InitialBackoff)
	v.SetDefault("roles.max_backoff", d.Roles.MaxBackoff)
	v.SetDefault("roles.multiplier", d.Roles.Multiplier)
	v.SetDefault("roles.redis_prefix", d.Roles.RedisPrefix)

	v.SetDefault("redirect.cooldown", d.Redirect.Cooldown)
	v.SetDefault("redirect.max_attempts", d.Redirect.MaxAttempts)
	v.SetDefault("redirect.settle_delay", d.Redirect.SettleDelay)
	v.SetDefault("redirect.entry_route", d.Redirect.EntryRoute)
	v.SetDefault("redirect.root_route", d.Redirect.RootRoute)
	v.SetDefault("redirect.return_param", d.Redirect.ReturnParam)
	v.SetDefault("redirect.priority", d.Redirect.Priority)

	v.SetDefault("gate.navigate_on_redirect", d.Gate.NavigateOnRedirect)

	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.buffer_size", d.Audit.BufferSize)
	v.SetDefault("audit.drop_if_full", d.Audit.DropIfFull)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.enable_latency_histograms", d.Metrics.EnableLatencyHistograms)
}
