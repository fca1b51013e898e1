// Package cache opens the shared Redis instance that holds every piece of
// cross-request state: request-id reservations, refresh sessions and
// revocations.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config is decoded from the environment by the owning binary.
type Config struct {
	Addr         string        `env:"REDIS_ADDR,default=localhost:6379"`
	Username     string        `env:"REDIS_USERNAME"`
	Password     string        `env:"REDIS_PASSWORD"`
	DB           int           `env:"REDIS_DB,default=0"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT,default=2s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT,default=1s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT,default=1s"`
	PoolSize     int           `env:"REDIS_POOL_SIZE,default=0"`
}

var ErrNoAddr = errors.New("redis address is required")

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.Addr == "" {
		return ErrNoAddr
	}
	if c.DB < 0 {
		return fmt.Errorf("REDIS_DB must not be negative, got %d", c.DB)
	}
	return nil
}

// Open connects and pings. The returned client is closed by the caller.
func Open(ctx context.Context, cfg Config) (*redis.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	if err := Ping(ctx, client); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Ping checks the connection, bounded to one second.
func Ping(ctx context.Context, client redis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
