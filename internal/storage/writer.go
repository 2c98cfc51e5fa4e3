package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/storefront-cart/internal/obs"
	"github.com/noah-isme/storefront-cart/internal/resilience"
)

const (
	// DefaultDelay is the quiet period before a scheduled record is written.
	DefaultDelay = time.Second
	// DefaultWriteTimeout bounds timer driven writes.
	DefaultWriteTimeout = 5 * time.Second
	// DefaultMaxRetries bounds background retries of a failed write.
	DefaultMaxRetries = 3
)

// ErrWriterClosed is returned by Flush after Close.
var ErrWriterClosed = errors.New("storage: writer closed")

// Locker serialises writers sharing a key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// WriterConfig configures a Writer.
type WriterConfig struct {
	Store        Store
	Key          string
	Delay        time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	Breaker      *resilience.Breaker
	Locker       Locker
	Logger       zerolog.Logger
}

type flushCall struct {
	ctx   context.Context
	reply chan error
}

// Writer coalesces bursts of Schedule calls into a single store write issued
// after Delay of inactivity. Only the latest scheduled payload is written.
type Writer struct {
	cfg WriterConfig

	mu      sync.Mutex
	pending []byte
	closed  bool

	kick    chan struct{}
	flushes chan flushCall
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewWriter starts the background goroutine. Call Close to stop it.
func NewWriter(cfg WriterConfig) *Writer {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	w := &Writer{
		cfg:     cfg,
		kick:    make(chan struct{}, 1),
		flushes: make(chan flushCall),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Schedule replaces the pending payload and restarts the quiet period.
// Calls after Close are dropped.
func (w *Writer) Schedule(data []byte) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.cfg.Logger.Warn().Str("key", w.cfg.Key).Msg("cart_persist_after_close")
		return
	}
	w.pending = append([]byte(nil), data...)
	w.mu.Unlock()

	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Pending reports whether a payload is waiting to be written.
func (w *Writer) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending != nil
}

// Flush writes the pending payload now. It is a no-op when nothing is pending.
func (w *Writer) Flush(ctx context.Context) error {
	call := flushCall{ctx: ctx, reply: make(chan error, 1)}
	select {
	case w.flushes <- call:
	case <-w.done:
		return ErrWriterClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-call.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes any pending payload and stops the writer.
func (w *Writer) Close(ctx context.Context) error {
	var err error
	w.once.Do(func() {
		err = w.Flush(ctx)
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		close(w.stop)
		<-w.done
	})
	return err
}

func (w *Writer) run() {
	defer close(w.done)
	timer := time.NewTimer(w.cfg.Delay)
	timer.Stop()
	attempt := 0

	for {
		select {
		case <-w.kick:
			attempt = 0
			timer.Reset(w.cfg.Delay)
		case <-timer.C:
			ctx, cancel := context.WithTimeout(context.Background(), w.cfg.WriteTimeout)
			err := w.write(ctx)
			cancel()
			if err == nil {
				attempt = 0
				continue
			}
			attempt++
			if attempt > w.cfg.MaxRetries {
				w.cfg.Logger.Error().Err(err).Str("key", w.cfg.Key).Int("attempts", attempt).Msg("cart_persist_gave_up")
				attempt = 0
				continue
			}
			timer.Reset(resilience.Backoff(w.cfg.Delay, attempt, 0.2))
		case call := <-w.flushes:
			timer.Stop()
			call.reply <- w.write(call.ctx)
		case <-w.stop:
			timer.Stop()
			return
		}
	}
}

func (w *Writer) write(ctx context.Context) error {
	w.mu.Lock()
	data := w.pending
	w.pending = nil
	w.mu.Unlock()
	if data == nil {
		return nil
	}

	ctx, span := otel.Tracer("storage").Start(ctx, "cart.persist")
	span.SetAttributes(attribute.String("cart.key", w.cfg.Key), attribute.Int("cart.bytes", len(data)))
	defer span.End()

	start := time.Now()
	save := func(ctx context.Context) error {
		return w.cfg.Breaker.Do(ctx, func(ctx context.Context) error {
			return w.cfg.Store.Save(ctx, w.cfg.Key, data)
		})
	}
	var err error
	if w.cfg.Locker != nil {
		err = w.cfg.Locker.WithLock(ctx, "lock:"+w.cfg.Key, w.cfg.WriteTimeout, save)
	} else {
		err = save(ctx)
	}
	elapsed := obs.DurationMillis(time.Since(start))

	if err != nil {
		w.requeue(data)
		result := "error"
		if errors.Is(err, resilience.ErrOpenCircuit) {
			result = "rejected"
		}
		obs.ObservePersist(result, elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.cfg.Logger.Warn().Err(err).Str("key", w.cfg.Key).Str("result", result).Msg("cart_persist_failed")
		return err
	}
	obs.ObservePersist("ok", elapsed)
	w.cfg.Logger.Debug().Str("key", w.cfg.Key).Int("bytes", len(data)).Msg("cart_persisted")
	return nil
}

// requeue restores a failed payload unless a newer one was scheduled meanwhile.
func (w *Writer) requeue(data []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil {
		w.pending = data
	}
}
