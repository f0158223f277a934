package roles

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisSource reads role sets stored as Redis sets under <prefix>:roles:<userID>.
type RedisSource struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisSource returns a Source backed by client. An empty prefix selects "as".
func NewRedisSource(client redis.UniversalClient, prefix string) *RedisSource {
	if prefix == "" {
		prefix = "as"
	}
	return &RedisSource{redis: client, prefix: prefix}
}

// Roles returns the members of the user's role set. Redis failures other
// than context cancellation are reported as transient.
func (s *RedisSource) Roles(ctx context.Context, userID string) ([]string, error) {
	members, err := s.redis.SMembers(ctx, s.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, Transient(err)
	}
	return members, nil
}

// SetRoles atomically replaces the user's role set.
func (s *RedisSource) SetRoles(ctx context.Context, userID string, roles ...string) error {
	key := s.key(userID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(roles) > 0 {
			members := make([]interface{}, 0, len(roles))
			for _, r := range roles {
				members = append(members, r)
			}
			pipe.SAdd(ctx, key, members...)
		}
		return nil
	})
	return err
}

func (s *RedisSource) key(userID string) string {
	return s.prefix + ":roles:" + userID
}
