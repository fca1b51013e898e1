package redis_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/trustline/internal/auth/store"
	rstore "github.com/aussiebroadwan/trustline/internal/auth/store/drivers/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// scardBarrier holds the first two SCARD replies until both have arrived,
// forcing two saves to read the session count before either adds.
type scardBarrier struct {
	arrived atomic.Int32
	release chan struct{}
}

func newSCARDBarrier() *scardBarrier {
	return &scardBarrier{release: make(chan struct{})}
}

func (b *scardBarrier) DialHook(next goredis.DialHook) goredis.DialHook { return next }

func (b *scardBarrier) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return next
}

func (b *scardBarrier) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		err := next(ctx, cmd)
		if cmd.Name() != "scard" {
			return err
		}
		switch b.arrived.Add(1) {
		case 1:
			select {
			case <-b.release:
			case <-time.After(2 * time.Second):
			}
		case 2:
			close(b.release)
		}
		return err
	}
}

func concurrentSaves(t *testing.T, sessions store.RefreshSessions) []error {
	t.Helper()
	ctx := context.Background()

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, tok := range []string{"tok-a", "tok-b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = sessions.Save(ctx, tok, "42")
		}()
	}
	wg.Wait()
	return errs
}

// With the plain check-then-add sequence and a cap of one, two saves that
// interleave both pass the count check: the user ends up with two valid
// sessions and is not blocked. The cap only bites on the next save.
func TestConcurrentSaveCheckThenAddRace(t *testing.T) {
	f := newFixture(t, rstore.Options{MaxSessions: 1})
	f.client.AddHook(newSCARDBarrier())
	sessions := f.store.RefreshSessions()
	ctx := context.Background()

	errs := concurrentSaves(t, sessions)
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	n, err := sessions.Count(ctx, "42")
	require.NoError(t, err)
	require.EqualValues(t, 2, n, "both saves got past the cap")

	blocked, err := f.store.Revocations().IsBlocked(ctx, "42")
	require.NoError(t, err)
	require.False(t, blocked)

	require.ErrorIs(t, sessions.Save(ctx, "tok-c", "42"), store.ErrSessionLimit)
}

// The Lua script serialises the check and the add: one save wins, the other
// sees the cap reached, which blocks the account and drops the winner too.
func TestConcurrentSaveAtomic(t *testing.T) {
	f := newFixture(t, rstore.Options{MaxSessions: 1, Atomic: true})
	sessions := f.store.RefreshSessions()
	ctx := context.Background()

	errs := concurrentSaves(t, sessions)

	var saved, limited int
	for _, err := range errs {
		switch {
		case err == nil:
			saved++
		case errors.Is(err, store.ErrSessionLimit):
			limited++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, saved)
	require.Equal(t, 1, limited)

	blocked, err := f.store.Revocations().IsBlocked(ctx, "42")
	require.NoError(t, err)
	require.True(t, blocked)

	n, err := sessions.Count(ctx, "42")
	require.NoError(t, err)
	require.Zero(t, n, "no session survives the lockout")
}
