package cart_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-cart/internal/cart"
	"github.com/noah-isme/storefront-cart/internal/coupon"
	"github.com/noah-isme/storefront-cart/internal/shipping"
	"github.com/noah-isme/storefront-cart/internal/storage"
)

type manualClock struct{ nanos atomic.Int64 }

func newManualClock(t time.Time) *manualClock {
	c := &manualClock{}
	c.nanos.Store(t.UnixNano())
	return c
}

func (c *manualClock) Now() time.Time { return time.Unix(0, c.nanos.Load()).UTC() }

func (c *manualClock) Advance(d time.Duration) { c.nanos.Add(int64(d)) }

func newSessions(t *testing.T, mem storage.Store, now func() time.Time) *cart.Sessions {
	t.Helper()
	sessions := cart.NewSessions(cart.SessionsConfig{
		Template: cart.Config{
			Storage:      mem,
			PersistDelay: time.Hour,
			Coupons:      coupon.DefaultDefinitions(),
			Shipping:     shipping.DefaultOptions(1_000),
			Now:          now,
		},
		KeyPrefix: "test",
		IdleTTL:   time.Minute,
		Now:       now,
	})
	t.Cleanup(func() { _ = sessions.CloseAll(context.Background()) })
	return sessions
}

func TestSessionsKeepOneStorePerSession(t *testing.T) {
	ctx := context.Background()
	sessions := newSessions(t, nil, clock)

	require.NoError(t, sessions.With(ctx, "a", func(s *cart.Store) error {
		_, err := s.AddItem(ctx, product("p", 100, 5), 1)
		return err
	}))
	require.NoError(t, sessions.With(ctx, "a", func(s *cart.Store) error {
		require.Equal(t, "a", s.Session())
		require.True(t, s.IsInCart("p"))
		return nil
	}))
	require.NoError(t, sessions.With(ctx, "b", func(s *cart.Store) error {
		require.False(t, s.IsInCart("p"))
		return nil
	}))
	require.Equal(t, 2, sessions.Len())
}

func TestSessionsSerialiseAccess(t *testing.T) {
	ctx := context.Background()
	sessions := newSessions(t, nil, clock)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sessions.With(ctx, "shared", func(s *cart.Store) error {
				_, err := s.AddItem(ctx, product("p", 100, 100), 1)
				return err
			})
		}()
	}
	wg.Wait()

	require.NoError(t, sessions.With(ctx, "shared", func(s *cart.Store) error {
		item, ok := s.Item("p")
		require.True(t, ok)
		require.Equal(t, 40, item.Quantity)
		return nil
	}))
}

func TestSweepFlushesIdleSessions(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()
	clk := newManualClock(fixedNow)
	sessions := newSessions(t, mem, clk.Now)

	require.NoError(t, sessions.With(ctx, "idle", func(s *cart.Store) error {
		_, err := s.AddItem(ctx, product("p", 100, 5), 2)
		return err
	}))
	require.Zero(t, sessions.Sweep(ctx))

	clk.Advance(2 * time.Minute)
	require.Equal(t, 1, sessions.Sweep(ctx))
	require.Zero(t, sessions.Len())

	data, err := mem.Load(ctx, storage.Key("test", "idle"))
	require.NoError(t, err)
	rec, err := cart.DecodeRecord(data)
	require.NoError(t, err)
	require.Len(t, rec.Items, 1)

	require.NoError(t, sessions.With(ctx, "idle", func(s *cart.Store) error {
		item, ok := s.Item("p")
		require.True(t, ok)
		require.Equal(t, 2, item.Quantity)
		return nil
	}))
}

func TestSessionNotificationsDrain(t *testing.T) {
	ctx := context.Background()
	sessions := newSessions(t, nil, clock)
	require.Nil(t, sessions.Notifications("unknown"))

	_ = sessions.With(ctx, "n", func(s *cart.Store) error {
		_, err := s.AddItem(ctx, product("p", 100, 5), 1)
		require.NoError(t, err)
		return s.RemoveItem(ctx, "missing")
	})
	got := sessions.Notifications("n")
	require.Len(t, got, 2)
	require.Empty(t, sessions.Notifications("n"))
}

func TestCloseAllFlushes(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()
	sessions := cart.NewSessions(cart.SessionsConfig{
		Template: cart.Config{Storage: mem, PersistDelay: time.Hour, Now: clock},
	})
	for _, id := range []string{"x", "y"} {
		require.NoError(t, sessions.With(ctx, id, func(s *cart.Store) error {
			_, err := s.AddItem(ctx, product("p", 100, 5), 1)
			return err
		}))
	}
	require.NoError(t, sessions.CloseAll(ctx))
	require.Zero(t, sessions.Len())
	require.Equal(t, 2, mem.Len())
}
