package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// LogNotifier writes every notification to a structured logger.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (l LogNotifier) Notify(_ context.Context, n Notification) error {
	var ev *zerolog.Event
	switch n.Severity {
	case SeverityError:
		ev = l.Logger.Error()
	case SeverityWarning:
		ev = l.Logger.Warn()
	default:
		ev = l.Logger.Debug()
	}
	ev.Str("topic", n.Topic).
		Str("severity", string(n.Severity)).
		Str("notification_id", n.ID.String()).
		Fields(n.Metadata).
		Msg(n.Message)
	return nil
}

// DefaultRecorderCapacity bounds a Recorder created with a non-positive limit.
const DefaultRecorderCapacity = 20

// Recorder queues notifications until a client drains them. When full the
// oldest notification is dropped.
type Recorder struct {
	mu    sync.Mutex
	queue []Notification
	limit int
}

// NewRecorder returns a recorder keeping at most limit notifications.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = DefaultRecorderCapacity
	}
	return &Recorder{limit: limit}
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, n)
	if over := len(r.queue) - r.limit; over > 0 {
		r.queue = append(r.queue[:0:0], r.queue[over:]...)
	}
	return nil
}

// Drain returns and clears the queued notifications.
func (r *Recorder) Drain() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.queue
	r.queue = nil
	return out
}

// Pending returns the number of queued notifications.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}
