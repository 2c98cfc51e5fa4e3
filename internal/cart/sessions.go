package cart

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-cart/internal/events"
	"github.com/noah-isme/storefront-cart/internal/obs"
	"github.com/noah-isme/storefront-cart/internal/storage"
)

// DefaultIdleTTL is how long an untouched session stays in memory.
const DefaultIdleTTL = 30 * time.Minute

// SessionsConfig describes how per-session stores are built.
type SessionsConfig struct {
	// Template is copied for every session; Session, Key and Events are filled in.
	Template          Config
	KeyPrefix         string
	IdleTTL           time.Duration
	NotificationLimit int
	Notifiers         []events.Notifier
	Logger            zerolog.Logger
	Now               func() time.Time
}

type session struct {
	mu       sync.Mutex
	store    *Store
	recorder *events.Recorder
	lastSeen atomic.Int64
	closed   bool
}

// Sessions keeps one Store per shopper session and serialises access to it.
type Sessions struct {
	cfg SessionsConfig

	mu      sync.Mutex
	entries map[string]*session
}

func NewSessions(cfg SessionsConfig) *Sessions {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Sessions{cfg: cfg, entries: make(map[string]*session)}
}

// With runs fn with exclusive access to the session's store, creating and
// rehydrating the store on first use.
func (s *Sessions) With(ctx context.Context, id string, fn func(*Store) error) error {
	for {
		entry, created := s.entry(id)
		if created {
			if err := s.open(ctx, id, entry); err != nil {
				return err
			}
		} else {
			entry.mu.Lock()
		}
		if entry.closed {
			entry.mu.Unlock()
			continue
		}
		entry.lastSeen.Store(s.cfg.Now().UnixNano())
		err := fn(entry.store)
		entry.mu.Unlock()
		return err
	}
}

// entry returns the session slot. A newly created slot is returned locked.
func (s *Sessions) entry(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e, false
	}
	e := &session{recorder: events.NewRecorder(s.cfg.NotificationLimit)}
	e.mu.Lock()
	s.entries[id] = e
	obs.SetActiveSessions(len(s.entries))
	return e, true
}

func (s *Sessions) open(ctx context.Context, id string, e *session) error {
	cfg := s.cfg.Template
	cfg.Session = id
	cfg.Key = storage.Key(s.cfg.KeyPrefix, id)
	cfg.Events = &events.Bus{
		Notifiers: append(slices.Clone(s.cfg.Notifiers), e.recorder),
		Now:       cfg.Now,
	}
	store, err := New(ctx, cfg)
	if err != nil {
		e.closed = true
		e.mu.Unlock()
		s.drop(id, e)
		return err
	}
	e.store = store
	return nil
}

func (s *Sessions) drop(id string, e *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[id] == e {
		delete(s.entries, id)
	}
	obs.SetActiveSessions(len(s.entries))
}

// Notifications drains the toasts queued for a session.
func (s *Sessions) Notifications(id string) []events.Notification {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return e.recorder.Drain()
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep flushes and evicts sessions idle for longer than IdleTTL. Sessions
// in use are skipped until the next sweep.
func (s *Sessions) Sweep(ctx context.Context) int {
	cutoff := s.cfg.Now().Add(-s.cfg.IdleTTL).UnixNano()
	var idle []*session

	s.mu.Lock()
	for id, e := range s.entries {
		if e.lastSeen.Load() > cutoff || !e.mu.TryLock() {
			continue
		}
		delete(s.entries, id)
		idle = append(idle, e)
	}
	obs.SetActiveSessions(len(s.entries))
	s.mu.Unlock()

	for _, e := range idle {
		s.shutdown(ctx, e)
	}
	if len(idle) > 0 {
		s.cfg.Logger.Debug().Int("evicted", len(idle)).Msg("cart_sessions_swept")
	}
	return len(idle)
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sessions) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = s.cfg.IdleTTL / 2
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// CloseAll flushes and closes every session.
func (s *Sessions) CloseAll(ctx context.Context) error {
	s.mu.Lock()
	all := make([]*session, 0, len(s.entries))
	for id, e := range s.entries {
		all = append(all, e)
		delete(s.entries, id)
	}
	obs.SetActiveSessions(0)
	s.mu.Unlock()

	var joined error
	for _, e := range all {
		e.mu.Lock()
		joined = errors.Join(joined, s.shutdown(ctx, e))
	}
	return joined
}

// shutdown closes a locked session and releases it.
func (s *Sessions) shutdown(ctx context.Context, e *session) error {
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.store == nil {
		return nil
	}
	err := e.store.Close(ctx)
	if err != nil {
		s.cfg.Logger.Warn().Err(err).Str("session", e.store.Session()).Msg("cart_session_close_failed")
	}
	return err
}
