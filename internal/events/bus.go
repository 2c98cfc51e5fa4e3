package events

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity tags a notification for display.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is a human readable message produced by a cart operation.
type Notification struct {
	ID         uuid.UUID      `json:"id"`
	Topic      string         `json:"topic"`
	Severity   Severity       `json:"severity"`
	Message    string         `json:"message"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Notifier reacts to emitted notifications (toast queue, logs, metrics).
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// Bus stamps notifications and fans them out to every notifier.
type Bus struct {
	Notifiers []Notifier
	Now       func() time.Time
}

// Emit builds the notification and dispatches it. Notifier failures are
// joined; every notifier is still called.
func (b *Bus) Emit(ctx context.Context, topic string, severity Severity, message string, meta map[string]any) (Notification, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Notification{}, errors.New("events: topic is required")
	}
	if severity == "" {
		severity = SeveritySuccess
	}
	now := time.Now
	if b != nil && b.Now != nil {
		now = b.Now
	}
	n := Notification{
		ID:         uuid.New(),
		Topic:      topic,
		Severity:   severity,
		Message:    message,
		Metadata:   maps.Clone(meta),
		OccurredAt: now().UTC(),
	}
	if b == nil {
		return n, nil
	}
	var joined error
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", err))
		}
	}
	return n, joined
}
