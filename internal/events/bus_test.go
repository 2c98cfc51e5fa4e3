package events_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-cart/internal/events"
)

type captureNotifier struct {
	events []events.Notification
}

func (c *captureNotifier) Notify(_ context.Context, n events.Notification) error {
	c.events = append(c.events, n)
	return nil
}

func TestEmitFansOut(t *testing.T) {
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	first := &captureNotifier{}
	second := &captureNotifier{}
	bus := events.Bus{
		Notifiers: []events.Notifier{first, nil, second},
		Now:       func() time.Time { return fixed },
	}
	meta := map[string]any{"productId": "p1"}
	n, err := bus.Emit(context.Background(), events.TopicItemAdded, events.SeveritySuccess, "added", meta)
	require.NoError(t, err)
	require.Equal(t, fixed, n.OccurredAt)
	require.Len(t, first.events, 1)
	require.Len(t, second.events, 1)
	require.Equal(t, n.ID, second.events[0].ID)

	meta["productId"] = "changed"
	require.Equal(t, "p1", first.events[0].Metadata["productId"])
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	boom := errors.New("boom")
	capture := &captureNotifier{}
	bus := events.Bus{Notifiers: []events.Notifier{
		events.NotifierFunc(func(context.Context, events.Notification) error { return boom }),
		capture,
	}}
	_, err := bus.Emit(context.Background(), events.TopicUndo, events.SeverityWarning, "nothing to undo", nil)
	require.ErrorIs(t, err, boom)
	require.Len(t, capture.events, 1)
}

func TestEmitRequiresTopic(t *testing.T) {
	var bus events.Bus
	_, err := bus.Emit(context.Background(), "  ", events.SeverityError, "x", nil)
	require.Error(t, err)
}

func TestRecorderDropsOldest(t *testing.T) {
	rec := events.NewRecorder(2)
	bus := events.Bus{Notifiers: []events.Notifier{rec}}
	for _, msg := range []string{"a", "b", "c"} {
		_, err := bus.Emit(context.Background(), events.TopicItemAdded, "", msg, nil)
		require.NoError(t, err)
	}
	require.Equal(t, 2, rec.Pending())
	drained := rec.Drain()
	require.Len(t, drained, 2)
	require.Equal(t, "b", drained[0].Message)
	require.Equal(t, events.SeveritySuccess, drained[0].Severity)
	require.Zero(t, rec.Pending())
}

func TestLogNotifierWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	n := events.Notification{Topic: events.TopicCouponApplied, Severity: events.SeverityWarning, Message: "coupon expired"}
	require.NoError(t, events.LogNotifier{Logger: logger}.Notify(context.Background(), n))
	require.Contains(t, buf.String(), `"level":"warn"`)
	require.Contains(t, buf.String(), `"topic":"cart.coupon_applied"`)
	require.Contains(t, buf.String(), `"message":"coupon expired"`)
}
