package authsync

import (
	"fmt"
	"strings"
	"time"

	"github.com/eventdash/authsync/redirect"
	"github.com/eventdash/authsync/roles"
	"github.com/eventdash/authsync/session"
)

// Config holds every tunable of an Engine. Start from DefaultConfig and
// override fields; zero durations are rejected by Validate.
type Config struct {
	Session  SessionConfig  `mapstructure:"session"`
	Roles    RolesConfig    `mapstructure:"roles"`
	Redirect RedirectConfig `mapstructure:"redirect"`
	Gate     GateConfig     `mapstructure:"gate"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig tunes identity event coalescing.
type SessionConfig struct {
	// EventCooldown drops a repeat of the last applied event kind inside this window.
	EventCooldown time.Duration `mapstructure:"event_cooldown"`
	// Debounce delays application so a burst collapses into its last event.
	Debounce time.Duration `mapstructure:"debounce"`
}

/*
====================================
ROLES CONFIG
====================================
*/

// RolesConfig tunes role resolution.
type RolesConfig struct {
	Staleness      time.Duration `mapstructure:"staleness"`
	CacheSize      int           `mapstructure:"cache_size"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Multiplier     float64       `mapstructure:"multiplier"`
	// RedisPrefix namespaces role keys when roles are read from Redis.
	RedisPrefix string `mapstructure:"redis_prefix"`
}

/*
====================================
REDIRECT CONFIG
====================================
*/

// RedirectConfig tunes the redirect coordinator and route table.
type RedirectConfig struct {
	Cooldown    time.Duration `mapstructure:"cooldown"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	EntryRoute  string        `mapstructure:"entry_route"`
	RootRoute   string        `mapstructure:"root_route"`
	ReturnParam string        `mapstructure:"return_param"`
	// Priority lists roles from most to least privileged.
	Priority []string `mapstructure:"priority"`
}

// GateConfig tunes access gates created by views.
type GateConfig struct {
	// NavigateOnRedirect makes a view perform the replace navigation a gate
	// decides on. When false the host acts on gate decisions itself.
	NavigateOnRedirect bool `mapstructure:"navigate_on_redirect"`
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

// MetricsConfig controls in-process metric collection.
type MetricsConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	EnableLatencyHistograms bool `mapstructure:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			EventCooldown: session.DefaultEventCooldown,
			Debounce:      session.DefaultDebounce,
		},
		Roles: RolesConfig{
			Staleness:      roles.DefaultStaleness,
			CacheSize:      roles.DefaultCacheSize,
			MaxAttempts:    roles.DefaultMaxAttempts,
			InitialBackoff: roles.DefaultInitialBackoff,
			MaxBackoff:     roles.DefaultMaxBackoff,
			Multiplier:     roles.DefaultMultiplier,
			RedisPrefix:    "as",
		},
		Redirect: RedirectConfig{
			Cooldown:    redirect.DefaultCooldown,
			MaxAttempts: redirect.DefaultMaxAttempts,
			SettleDelay: redirect.DefaultSettleDelay,
			EntryRoute:  redirect.DefaultEntryRoute,
			RootRoute:   redirect.DefaultRootRoute,
			ReturnParam: redirect.DefaultReturnParam,
			Priority:    append([]string(nil), roles.DefaultPriority...),
		},
		Gate: GateConfig{
			NavigateOnRedirect: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Redirect.Priority = append([]string(nil), cfg.Redirect.Priority...)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	// Session
	if c.Session.EventCooldown <= 0 {
		return invalid("Session EventCooldown must be > 0")
	}
	if c.Session.Debounce <= 0 {
		return invalid("Session Debounce must be > 0")
	}

	// Roles
	if c.Roles.Staleness <= 0 {
		return invalid("Roles Staleness must be > 0")
	}
	if c.Roles.CacheSize <= 0 {
		return invalid("Roles CacheSize must be > 0")
	}
	if c.Roles.MaxAttempts <= 0 {
		return invalid("Roles MaxAttempts must be > 0")
	}
	if c.Roles.InitialBackoff <= 0 {
		return invalid("Roles InitialBackoff must be > 0")
	}
	if c.Roles.MaxBackoff < c.Roles.InitialBackoff {
		return invalid("Roles MaxBackoff must be >= InitialBackoff")
	}
	if c.Roles.Multiplier < 1 {
		return invalid("Roles Multiplier must be >= 1")
	}
	if strings.ContainsAny(c.Roles.RedisPrefix, " :") {
		return invalid("Roles RedisPrefix must not contain spaces or ':'")
	}

	// Redirect
	if c.Redirect.Cooldown <= 0 {
		return invalid("Redirect Cooldown must be > 0")
	}
	if c.Redirect.MaxAttempts <= 0 {
		return invalid("Redirect MaxAttempts must be > 0")
	}
	if c.Redirect.SettleDelay <= 0 {
		return invalid("Redirect SettleDelay must be > 0")
	}
	if !strings.HasPrefix(c.Redirect.EntryRoute, "/") {
		return invalid("Redirect EntryRoute must start with '/'")
	}
	if !strings.HasPrefix(c.Redirect.RootRoute, "/") {
		return invalid("Redirect RootRoute must start with '/'")
	}
	if redirect.SamePath(c.Redirect.EntryRoute, c.Redirect.RootRoute) {
		return invalid("Redirect EntryRoute and RootRoute must differ")
	}
	if c.Redirect.ReturnParam == "" {
		return invalid("Redirect ReturnParam must be set")
	}
	if len(c.Redirect.Priority) == 0 {
		return invalid("Redirect Priority must list at least one role")
	}
	seen := make(map[string]struct{}, len(c.Redirect.Priority))
	for _, role := range c.Redirect.Priority {
		role = strings.TrimSpace(role)
		if role == "" || strings.Contains(role, "/") {
			return invalid("Redirect Priority contains an invalid role")
		}
		if _, dup := seen[role]; dup {
			return invalid("Redirect Priority lists " + role + " twice")
		}
		seen[role] = struct{}{}
		if redirect.SamePath("/"+role, c.Redirect.EntryRoute) {
			return invalid("Redirect Priority role " + role + " maps onto the entry route")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return invalid("Audit BufferSize must be > 0 when enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return invalid("Metrics EnableLatencyHistograms requires Enabled")
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}

func (c *Config) sessionConfig() session.Config {
	return session.Config{
		EventCooldown: c.Session.EventCooldown,
		Debounce:      c.Session.Debounce,
	}
}

func (c *Config) rolesConfig() roles.Config {
	return roles.Config{
		Staleness:      c.Roles.Staleness,
		CacheSize:      c.Roles.CacheSize,
		MaxAttempts:    c.Roles.MaxAttempts,
		InitialBackoff: c.Roles.InitialBackoff,
		MaxBackoff:     c.Roles.MaxBackoff,
		Multiplier:     c.Roles.Multiplier,
	}
}

// Routes returns the route table described by the redirect section.
func (c Config) Routes() redirect.RouteTable {
	priority := make(roles.Priority, 0, len(c.Redirect.Priority))
	for _, role := range c.Redirect.Priority {
		priority = append(priority, strings.TrimSpace(role))
	}
	return redirect.RouteTable{
		Priority:    priority,
		Entry:       c.Redirect.EntryRoute,
		Root:        c.Redirect.RootRoute,
		ReturnParam: c.Redirect.ReturnParam,
	}
}

func (c *Config) redirectConfig() redirect.Config {
	return redirect.Config{
		Cooldown:    c.Redirect.Cooldown,
		MaxAttempts: c.Redirect.MaxAttempts,
		SettleDelay: c.Redirect.SettleDelay,
		Routes:      c.Routes(),
	}
}
