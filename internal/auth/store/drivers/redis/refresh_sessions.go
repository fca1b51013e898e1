package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/trustline/internal/auth/store"
	"github.com/aussiebroadwan/trustline/pkg/slogx"
	goredis "github.com/redis/go-redis/v9"
)

// saveScript is Save in one round trip. It touches per-token keys derived
// from ARGV[5], so it assumes a single Redis node rather than a cluster.
//
// KEYS: block, set, token. ARGV: token, max, refresh ttl ms, block ttl ms,
// token key prefix. Returns 0 saved, 1 already blocked, 2 limit reached.
var saveScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 1
end
if redis.call('SCARD', KEYS[2]) >= tonumber(ARGV[2]) then
  for _, t in ipairs(redis.call('SMEMBERS', KEYS[2])) do
    redis.call('DEL', ARGV[5] .. t)
  end
  redis.call('DEL', KEYS[2])
  redis.call('SET', KEYS[1], 'blocked', 'PX', ARGV[4])
  return 2
end
redis.call('SADD', KEYS[2], ARGV[1])
redis.call('PEXPIRE', KEYS[2], ARGV[3])
redis.call('SET', KEYS[3], 'valid', 'PX', ARGV[3])
return 0
`)

type refreshSessions struct{ s *Store }

func (r *refreshSessions) Save(ctx context.Context, token, userID string) error {
	if r.s.opts.Atomic {
		return r.saveAtomic(ctx, token, userID)
	}

	// Check-then-add. Two concurrent saves can both read a count below the
	// cap before either adds.
	if err := r.enforceLimit(ctx, userID); err != nil {
		return err
	}

	ttl := r.s.opts.RefreshTTL
	_, err := r.s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.SAdd(ctx, setKey(userID), token)
		p.Expire(ctx, setKey(userID), ttl)
		p.Set(ctx, tokenKey(userID, token), validValue, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (r *refreshSessions) enforceLimit(ctx context.Context, userID string) error {
	blocked, err := r.s.Revocations().IsBlocked(ctx, userID)
	if err != nil {
		return err
	}
	if blocked {
		return store.ErrUserBlocked
	}

	n, err := r.Count(ctx, userID)
	if err != nil {
		return err
	}
	if n < int64(r.s.opts.MaxSessions) {
		return nil
	}

	slogx.FromContext(ctx).Warn("refresh session limit reached, blocking user",
		"user_id", userID,
		"sessions", n,
	)
	if err := r.DeleteAll(ctx, userID); err != nil {
		return err
	}
	if err := r.s.Revocations().Block(ctx, userID); err != nil {
		return err
	}
	return store.ErrSessionLimit
}

func (r *refreshSessions) saveAtomic(ctx context.Context, token, userID string) error {
	keys := []string{blockKey(userID), setKey(userID), tokenKey(userID, token)}
	res, err := saveScript.Run(ctx, r.s.client, keys,
		token,
		r.s.opts.MaxSessions,
		r.s.opts.RefreshTTL.Milliseconds(),
		r.s.opts.BlockTTL.Milliseconds(),
		setKey(userID)+":",
	).Int()
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}

	switch res {
	case 0:
		return nil
	case 1:
		return store.ErrUserBlocked
	default:
		slogx.FromContext(ctx).Warn("refresh session limit reached, blocking user", "user_id", userID)
		return store.ErrSessionLimit
	}
}

func (r *refreshSessions) IsValid(ctx context.Context, token, userID string) (bool, error) {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(userID) == "" {
		return false, nil
	}
	n, err := r.s.client.Exists(ctx, tokenKey(userID, token)).Result()
	if err != nil {
		return false, fmt.Errorf("refresh session lookup: %w", err)
	}
	return n > 0, nil
}

func (r *refreshSessions) Consume(ctx context.Context, token, userID string) (bool, error) {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(userID) == "" {
		return false, nil
	}

	var del *goredis.IntCmd
	_, err := r.s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.SRem(ctx, setKey(userID), token)
		del = p.Del(ctx, tokenKey(userID, token))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("consume refresh session: %w", err)
	}
	return del.Val() == 1, nil
}

func (r *refreshSessions) Delete(ctx context.Context, token, userID string) error {
	_, err := r.s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.SRem(ctx, setKey(userID), token)
		p.Del(ctx, tokenKey(userID, token))
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete refresh session: %w", err)
	}
	return nil
}

func (r *refreshSessions) DeleteAll(ctx context.Context, userID string) error {
	tokens, err := r.s.client.SMembers(ctx, setKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("list refresh sessions: %w", err)
	}

	keys := make([]string, 0, len(tokens)+1)
	for _, t := range tokens {
		keys = append(keys, tokenKey(userID, t))
	}
	keys = append(keys, setKey(userID))

	if err := r.s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete refresh sessions: %w", err)
	}
	return nil
}

func (r *refreshSessions) Count(ctx context.Context, userID string) (int64, error) {
	n, err := r.s.client.SCard(ctx, setKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("count refresh sessions: %w", err)
	}
	return n, nil
}

func (r *refreshSessions) Prune(ctx context.Context, userID string) (int, error) {
	tokens, err := r.s.client.SMembers(ctx, setKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("list refresh sessions: %w", err)
	}

	var stale []any
	for _, t := range tokens {
		n, err := r.s.client.Exists(ctx, tokenKey(userID, t)).Result()
		if err != nil {
			return 0, fmt.Errorf("refresh session lookup: %w", err)
		}
		if n == 0 {
			stale = append(stale, t)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	if err := r.s.client.SRem(ctx, setKey(userID), stale...).Err(); err != nil {
		return 0, fmt.Errorf("prune refresh sessions: %w", err)
	}
	return len(stale), nil
}

// Users walks the refresh:* keyspace and reports the set keys. Per-token
// keys share the prefix and are skipped by type.
func (r *refreshSessions) Users(ctx context.Context, fn func(userID string) error) error {
	iter := r.s.client.Scan(ctx, 0, refreshPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		typ, err := r.s.client.Type(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("refresh key type: %w", err)
		}
		if typ != "set" {
			continue
		}
		if err := fn(strings.TrimPrefix(key, refreshPrefix)); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan refresh sessions: %w", err)
	}
	return nil
}
