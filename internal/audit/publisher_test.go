package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadlog/pkg/domain"
)

type recordingSink struct {
	events []Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, event Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func TestPublisher_Emit(t *testing.T) {
	ctx := context.Background()
	user := domain.UserID("u1")

	t.Run("persists and lists per user", func(t *testing.T) {
		publisher := NewPublisher(NewInMemoryStore())

		require.NoError(t, publisher.Emit(ctx, Event{
			UserID: user, Kind: domain.KindTrip, RecordID: "t1", Action: ActionRecordDeleted,
		}))
		require.NoError(t, publisher.Emit(ctx, Event{
			UserID: domain.UserID("u2"), Action: ActionTrashEmptied,
		}))

		events, err := publisher.List(ctx, user)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, ActionRecordDeleted, events[0].Action)
		assert.Equal(t, domain.RecordID("t1"), events[0].RecordID)
	})

	t.Run("defaults a missing timestamp", func(t *testing.T) {
		publisher := NewPublisher(NewInMemoryStore())

		require.NoError(t, publisher.Emit(ctx, Event{UserID: user, Action: ActionRecordPurged}))

		events, err := publisher.List(ctx, user)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.False(t, events[0].Timestamp.IsZero())
	})

	t.Run("keeps a provided timestamp", func(t *testing.T) {
		publisher := NewPublisher(NewInMemoryStore())
		at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

		require.NoError(t, publisher.Emit(ctx, Event{
			UserID: user, Action: ActionRecordRestored, Timestamp: at,
		}))

		events, err := publisher.List(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, at, events[0].Timestamp)
	})

	t.Run("fans out to sinks", func(t *testing.T) {
		sink := &recordingSink{}
		publisher := NewPublisher(NewInMemoryStore(), WithSink(sink))

		require.NoError(t, publisher.Emit(ctx, Event{UserID: user, Action: ActionRecordDeleted}))

		require.Len(t, sink.events, 1)
		assert.Equal(t, ActionRecordDeleted, sink.events[0].Action)
	})

	t.Run("a failing sink does not fail the emit", func(t *testing.T) {
		failing := &recordingSink{err: errors.New("broker down")}
		healthy := &recordingSink{}
		publisher := NewPublisher(NewInMemoryStore(), WithSink(failing), WithSink(healthy))

		require.NoError(t, publisher.Emit(ctx, Event{UserID: user, Action: ActionRecordDeleted}))
		assert.Len(t, healthy.events, 1)
	})
}
