package authsync

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/eventdash/authsync/identity"
	internalaudit "github.com/eventdash/authsync/internal/audit"
	"github.com/eventdash/authsync/internal/schedule"
	"github.com/eventdash/authsync/redirect"
	"github.com/eventdash/authsync/roles"
	"go.uber.org/zap"
)

// Builder assembles an Engine. Configure it during initialization and call
// Build once.
type Builder struct {
	config Config

	provider  identity.Provider
	source    roles.Source
	refresher roles.Refresher
	logger    *zap.Logger
	auditSink AuditSink
	scheduler schedule.Scheduler

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithProvider sets the identity provider. Required.
func (b *Builder) WithProvider(p identity.Provider) *Builder {
	b.provider = p
	return b
}

// WithRoleSource sets the role store lookup. Required.
func (b *Builder) WithRoleSource(src roles.Source) *Builder {
	b.source = src
	return b
}

// WithRefresher overrides the session refresh used between a failed role
// query and its retry. By default the provider's RefreshSession is used.
func (b *Builder) WithRefresher(r roles.Refresher) *Builder {
	b.refresher = r
	return b
}

func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock drives every debounce, cooldown and settle timer from c.
// Pass clock.NewMock() to control time in integration tests.
func (b *Builder) WithClock(c clock.Clock) *Builder {
	b.scheduler = schedule.FromClock(c)
	return b
}

// WithScheduler drives timers from s. It takes precedence over WithClock
// when called later.
func (b *Builder) WithScheduler(s schedule.Scheduler) *Builder {
	b.scheduler = s
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns an Engine. A Builder can be
// built only once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.provider == nil {
		return nil, ErrProviderRequired
	}
	if b.source == nil {
		return nil, ErrRoleSourceRequired
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sched := b.scheduler
	if sched == nil {
		sched = schedule.NewReal()
	}
	refresher := b.refresher
	if refresher == nil {
		provider := b.provider
		refresher = roles.RefresherFunc(func(ctx context.Context) error {
			_, err := provider.RefreshSession(ctx)
			return err
		})
	}

	engine := &Engine{
		config:    cloneConfig(cfg),
		provider:  b.provider,
		sched:     sched,
		log:       logger,
		decisions: redirect.NewDecisionState(),
		views:     make(map[string]*View),
	}
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Now:        sched.Now,
		Logger:     logger.Named("audit"),
	}, b.auditSink)

	resolver, err := roles.NewResolver(b.source, cfg.rolesConfig(), roles.Options{
		Refresher: refresher,
		Logger:    logger.Named("roles"),
		OnSignal:  engine.onRoleSignal,
		OnLatency: engine.onRoleLatency,
	})
	if err != nil {
		engine.audit.Close()
		return nil, err
	}
	engine.resolver = resolver

	b.built = true
	return engine, nil
}
