package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/trustline/pkg/cryptox"
	"github.com/aussiebroadwan/trustline/pkg/slogx"
)

type revocations struct{ s *Store }

func (r *revocations) Blacklist(ctx context.Context, accessToken string, ttl time.Duration) error {
	if strings.TrimSpace(accessToken) == "" || ttl <= 0 {
		return nil
	}
	if err := r.s.client.Set(ctx, blacklistKey(accessToken), blacklistedValue, ttl).Err(); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}
	return nil
}

func (r *revocations) IsBlacklisted(ctx context.Context, accessToken string) (bool, error) {
	if strings.TrimSpace(accessToken) == "" {
		return false, nil
	}

	n, err := r.s.client.Exists(ctx, blacklistKey(accessToken)).Result()
	if err != nil {
		if r.s.opts.BlacklistFailure == FailAllow {
			slogx.FromContext(ctx).Warn("blacklist lookup failed, allowing token",
				"err", err,
				"token_fp", cryptox.FingerprintToken(accessToken),
			)
			return false, nil
		}
		return true, fmt.Errorf("blacklist lookup: %w", err)
	}
	return n > 0, nil
}

func (r *revocations) Block(ctx context.Context, userID string) error {
	if err := r.s.client.Set(ctx, blockKey(userID), blockedValue, r.s.opts.BlockTTL).Err(); err != nil {
		return fmt.Errorf("block user: %w", err)
	}
	return nil
}

func (r *revocations) IsBlocked(ctx context.Context, userID string) (bool, error) {
	n, err := r.s.client.Exists(ctx, blockKey(userID)).Result()
	if err != nil {
		return true, fmt.Errorf("block lookup: %w", err)
	}
	return n > 0, nil
}
