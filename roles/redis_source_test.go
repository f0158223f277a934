package roles

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisSourceTest(t *testing.T) (*RedisSource, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisSource(rdb, ""), mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestRedisSourceRoundTrip(t *testing.T) {
	src, mr, done := newRedisSourceTest(t)
	defer done()
	ctx := context.Background()

	if err := src.SetRoles(ctx, "u1", Merchant, Customer); err != nil {
		t.Fatalf("set roles: %v", err)
	}
	if !mr.Exists("as:roles:u1") {
		t.Fatal("expected role key under default prefix")
	}

	got, err := src.Roles(ctx, "u1")
	if err != nil {
		t.Fatalf("roles: %v", err)
	}
	if !NewSet(got...).Equal(NewSet(Merchant, Customer)) {
		t.Fatalf("unexpected roles %v", got)
	}

	if err := src.SetRoles(ctx, "u1", Admin); err != nil {
		t.Fatalf("replace roles: %v", err)
	}
	got, _ = src.Roles(ctx, "u1")
	if !NewSet(got...).Equal(NewSet(Admin)) {
		t.Fatalf("expected replacement, got %v", got)
	}

	if err := src.SetRoles(ctx, "u1"); err != nil {
		t.Fatalf("clear roles: %v", err)
	}
	got, err = src.Roles(ctx, "u1")
	if err != nil || len(got) != 0 {
		t.Fatalf("expected no roles, got %v, %v", got, err)
	}
}

func TestRedisSourceUnknownUserHasNoRoles(t *testing.T) {
	src, _, done := newRedisSourceTest(t)
	defer done()

	got, err := src.Roles(context.Background(), "missing")
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v, %v", got, err)
	}
}

func TestRedisSourceOutageIsTransient(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	src := NewRedisSource(rdb, "")
	mr.Close()

	_, err = src.Roles(context.Background(), "u1")
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestRedisSourceWrongTypeIsTransient(t *testing.T) {
	src, mr, done := newRedisSourceTest(t)
	defer done()
	if err := mr.Set("as:roles:u1", "admin"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := src.Roles(context.Background(), "u1")
	if err == nil || errors.Is(err, redis.Nil) {
		t.Fatalf("expected WRONGTYPE error, got %v", err)
	}
}

func TestResolverOverRedisSource(t *testing.T) {
	src, _, done := newRedisSourceTest(t)
	defer done()
	ctx := context.Background()
	if err := src.SetRoles(ctx, "u1", Host); err != nil {
		t.Fatalf("seed: %v", err)
	}

	r, err := NewResolver(src, Config{Staleness: time.Minute}, Options{})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	if set := r.Resolve(ctx, "u1"); !set.Has(Host) {
		t.Fatalf("expected host, got %v", set)
	}
	if set := r.Resolve(ctx, "u2"); !set.Empty() {
		t.Fatalf("expected empty set for unknown user, got %v", set)
	}
}
