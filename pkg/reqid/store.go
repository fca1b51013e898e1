package reqid

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix = "request-id:"
	DefaultTTL    = 30 * time.Second
	DefaultValue  = "1"
)

var ErrBlankID = errors.New("blank_request_id")

// Store reserves request ids in Redis. Zero-valued fields take the defaults.
type Store struct {
	Client redis.UniversalClient
	Prefix string
	Expiry time.Duration
	Value  string
}

// NewStore returns a Store with default prefix, TTL and value.
func NewStore(client redis.UniversalClient) *Store {
	return &Store{Client: client, Prefix: DefaultPrefix, Expiry: DefaultTTL, Value: DefaultValue}
}

func (s *Store) key(id string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + id
}

func (s *Store) ttl() time.Duration {
	if s.Expiry <= 0 {
		return DefaultTTL
	}
	return s.Expiry
}

// Reserve creates the key for id only if it is absent. It reports whether
// this call created it; false means the id was already seen within the TTL.
func (s *Store) Reserve(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, ErrBlankID
	}
	value := s.Value
	if value == "" {
		value = DefaultValue
	}

	ok, err := s.Client.SetNX(ctx, s.key(id), value, s.ttl()).Result()
	if err != nil {
		return false, fmt.Errorf("reserve request id: %w", err)
	}
	return ok, nil
}

// Exists reports whether id is currently reserved.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, ErrBlankID
	}
	n, err := s.Client.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("lookup request id: %w", err)
	}
	return n > 0, nil
}

// TTL returns the time left on the reservation, or zero when there is none.
func (s *Store) TTL(ctx context.Context, id string) (time.Duration, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, ErrBlankID
	}
	d, err := s.Client.PTTL(ctx, s.key(id)).Result()
	if err != nil {
		return 0, fmt.Errorf("request id ttl: %w", err)
	}
	// -2: no key, -1: no expiry
	return max(d, 0), nil
}

// Mint generates a fresh id for an outbound call and reserves it so the
// receiving service's gate accepts it.
func Mint(ctx context.Context, s *Store) (string, error) {
	id := uuid.NewString()
	if _, err := s.Reserve(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}
