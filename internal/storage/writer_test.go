package storage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-cart/internal/resilience"
	"github.com/noah-isme/storefront-cart/internal/storage"
)

type recordingStore struct {
	*storage.MemoryStore
	mu    sync.Mutex
	saves [][]byte
	fail  error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: storage.NewMemoryStore()}
}

func (s *recordingStore) Save(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	fail := s.fail
	if fail == nil {
		s.saves = append(s.saves, append([]byte(nil), data...))
	}
	s.mu.Unlock()
	if fail != nil {
		return fail
	}
	return s.MemoryStore.Save(ctx, key, data)
}

func (s *recordingStore) setFail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *recordingStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

func TestWriterCoalescesBurst(t *testing.T) {
	store := newRecordingStore()
	w := storage.NewWriter(storage.WriterConfig{Store: store, Key: "k", Delay: 20 * time.Millisecond})
	t.Cleanup(func() { _ = w.Close(context.Background()) })

	for _, payload := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		w.Schedule([]byte(payload))
	}

	require.Eventually(t, func() bool { return store.saveCount() == 1 }, time.Second, 5*time.Millisecond)
	require.Never(t, func() bool { return store.saveCount() > 1 }, 60*time.Millisecond, 10*time.Millisecond)

	got, err := store.Load(context.Background(), "k")
	require.NoError(t, err)
	require.JSONEq(t, `{"n":3}`, string(got))
	require.False(t, w.Pending())
}

func TestWriterFlushWritesImmediately(t *testing.T) {
	store := newRecordingStore()
	w := storage.NewWriter(storage.WriterConfig{Store: store, Key: "k", Delay: time.Hour})
	t.Cleanup(func() { _ = w.Close(context.Background()) })

	require.NoError(t, w.Flush(context.Background()))
	require.Zero(t, store.saveCount())

	w.Schedule([]byte(`{"n":1}`))
	require.True(t, w.Pending())
	require.NoError(t, w.Flush(context.Background()))
	require.Equal(t, 1, store.saveCount())
	require.False(t, w.Pending())
}

func TestWriterRequeuesFailedPayload(t *testing.T) {
	store := newRecordingStore()
	boom := errors.New("disk full")
	store.setFail(boom)
	w := storage.NewWriter(storage.WriterConfig{Store: store, Key: "k", Delay: time.Hour})
	t.Cleanup(func() { _ = w.Close(context.Background()) })

	w.Schedule([]byte(`{"n":1}`))
	require.ErrorIs(t, w.Flush(context.Background()), boom)
	require.True(t, w.Pending())

	store.setFail(nil)
	require.NoError(t, w.Flush(context.Background()))
	require.Equal(t, 1, store.saveCount())
}

func TestWriterRetriesInBackground(t *testing.T) {
	store := newRecordingStore()
	store.setFail(errors.New("flaky"))
	w := storage.NewWriter(storage.WriterConfig{Store: store, Key: "k", Delay: 10 * time.Millisecond, MaxRetries: 5})
	t.Cleanup(func() { _ = w.Close(context.Background()) })

	w.Schedule([]byte(`{"n":1}`))
	time.Sleep(15 * time.Millisecond)
	store.setFail(nil)

	require.Eventually(t, func() bool { return store.saveCount() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestWriterRespectsOpenBreaker(t *testing.T) {
	store := newRecordingStore()
	store.setFail(errors.New("down"))
	breaker := resilience.NewBreaker(1, 0.5, time.Hour)
	w := storage.NewWriter(storage.WriterConfig{Store: store, Key: "k", Delay: time.Hour, Breaker: breaker})
	t.Cleanup(func() { _ = w.Close(context.Background()) })

	w.Schedule([]byte(`{"n":1}`))
	require.Error(t, w.Flush(context.Background()))

	store.setFail(nil)
	require.ErrorIs(t, w.Flush(context.Background()), resilience.ErrOpenCircuit)
	require.Zero(t, store.saveCount())
	require.True(t, w.Pending())
}

func TestWriterCloseFlushesAndRejectsLaterWork(t *testing.T) {
	store := newRecordingStore()
	w := storage.NewWriter(storage.WriterConfig{Store: store, Key: "k", Delay: time.Hour})

	w.Schedule([]byte(`{"n":1}`))
	require.NoError(t, w.Close(context.Background()))
	require.Equal(t, 1, store.saveCount())
	require.NoError(t, w.Close(context.Background()))

	w.Schedule([]byte(`{"n":2}`))
	require.False(t, w.Pending())
	require.ErrorIs(t, w.Flush(context.Background()), storage.ErrWriterClosed)
}

type countingLocker struct {
	mu   sync.Mutex
	keys []string
}

func (l *countingLocker) WithLock(ctx context.Context, key string, _ time.Duration, fn func(context.Context) error) error {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
	return fn(ctx)
}

func TestWriterUsesLocker(t *testing.T) {
	store := newRecordingStore()
	locker := &countingLocker{}
	w := storage.NewWriter(storage.WriterConfig{Store: store, Key: "cart:abc", Delay: time.Hour, Locker: locker})
	t.Cleanup(func() { _ = w.Close(context.Background()) })

	w.Schedule([]byte(`{}`))
	require.NoError(t, w.Flush(context.Background()))
	require.Equal(t, []string{"lock:cart:abc"}, locker.keys)
}
