package roles

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// Defaults used when the corresponding Config field is zero.
const (
	DefaultStaleness      = 5 * time.Second
	DefaultCacheSize      = 1024
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 250 * time.Millisecond
	DefaultMaxBackoff     = 4 * time.Second
	DefaultMultiplier     = 2.0
)

// Config tunes caching and transport retries.
type Config struct {
	Staleness      time.Duration
	CacheSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

func (c Config) withDefaults() Config {
	if c.Staleness <= 0 {
		c.Staleness = DefaultStaleness
	}
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.Multiplier < 1 {
		c.Multiplier = DefaultMultiplier
	}
	return c
}

// Signal identifies an observable resolver outcome.
type Signal uint8

const (
	SignalCacheHit Signal = iota
	SignalFetchSuccess
	SignalFetchFailure
	SignalTransientRetry
	SignalRefreshRetry
	SignalFailClosed
)

// Options carries optional collaborators.
type Options struct {
	// Refresher enables the refresh-then-retry tier. Without it a failed
	// query resolves to the empty set directly.
	Refresher Refresher
	Logger    *zap.Logger
	OnSignal  func(sig Signal, userID string)
	OnLatency func(time.Duration)
}

// Resolver resolves user ids to role sets. It never returns an error.
type Resolver struct {
	source    Source
	refresher Refresher
	cfg       Config
	cache     *expirable.LRU[string, Set]
	log       *zap.Logger
	onSignal  func(Signal, string)
	onLatency func(time.Duration)
}

// NewResolver returns a Resolver reading from source.
func NewResolver(source Source, cfg Config, opts Options) (*Resolver, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	cfg = cfg.withDefaults()
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Resolver{
		source:    source,
		refresher: opts.Refresher,
		cfg:       cfg,
		cache:     expirable.NewLRU[string, Set](cfg.CacheSize, nil, cfg.Staleness),
		log:       opts.Logger,
		onSignal:  opts.OnSignal,
		onLatency: opts.OnLatency,
	}, nil
}

// Resolve returns the cached role set for userID when it is younger than the
// staleness window, and fetches it otherwise. An empty userID yields the
// empty set without a query.
func (r *Resolver) Resolve(ctx context.Context, userID string) Set {
	if userID == "" {
		return Set{}
	}
	if set, ok := r.cache.Get(userID); ok {
		r.signal(SignalCacheHit, userID)
		return set
	}
	return r.fetch(ctx, userID)
}

// Fresh discards any cached entry for userID and fetches it.
func (r *Resolver) Fresh(ctx context.Context, userID string) Set {
	if userID == "" {
		return Set{}
	}
	r.cache.Remove(userID)
	return r.fetch(ctx, userID)
}

// Invalidate drops the cached entry for userID.
func (r *Resolver) Invalidate(userID string) {
	r.cache.Remove(userID)
}

type step uint8

const (
	stepQuery step = iota
	stepRefresh
	stepRetry
	stepEmpty
)

func (r *Resolver) fetch(ctx context.Context, userID string) Set {
	if r.onLatency != nil {
		start := time.Now()
		defer func() { r.onLatency(time.Since(start)) }()
	}

	log := r.log.With(zap.String("user_id", userID))
	st := stepQuery
	for {
		switch st {
		case stepQuery, stepRetry:
			set, err := r.query(ctx, userID)
			if err == nil {
				r.cache.Add(userID, set)
				r.signal(SignalFetchSuccess, userID)
				log.Debug("roles resolved", zap.Stringer("roles", set), zap.Bool("after_refresh", st == stepRetry))
				return set
			}
			r.signal(SignalFetchFailure, userID)
			if st == stepQuery && r.refresher != nil && ctx.Err() == nil {
				log.Warn("role query failed, refreshing session", zap.Error(err))
				st = stepRefresh
				continue
			}
			log.Warn("role query failed", zap.Error(err))
			st = stepEmpty
		case stepRefresh:
			r.signal(SignalRefreshRetry, userID)
			if err := r.refresher.Refresh(ctx); err != nil {
				log.Warn("session refresh failed", zap.Error(err))
				st = stepEmpty
				continue
			}
			st = stepRetry
		default:
			r.signal(SignalFailClosed, userID)
			log.Warn("role resolution failed closed")
			return Set{}
		}
	}
}

func (r *Resolver) query(ctx context.Context, userID string) (Set, error) {
	op := func() (Set, error) {
		raw, err := r.source.Roles(ctx, userID)
		if err == nil {
			return NewSet(raw...), nil
		}
		if IsTransient(err) && ctx.Err() == nil {
			return Set{}, err
		}
		return Set{}, backoff.Permanent(err)
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(uint(r.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.signal(SignalTransientRetry, userID)
			r.log.Debug("retrying role query",
				zap.String("user_id", userID),
				zap.Duration("backoff", next),
				zap.Error(err),
			)
		}),
	)
}

func (r *Resolver) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialBackoff
	b.MaxInterval = r.cfg.MaxBackoff
	b.Multiplier = r.cfg.Multiplier
	b.Reset()
	return b
}

func (r *Resolver) signal(sig Signal, userID string) {
	if r.onSignal != nil {
		r.onSignal(sig, userID)
	}
}
