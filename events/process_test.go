package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/socialgate/message"
)

func TestProcessBusPublishSubscribe(t *testing.T) {
	bus := NewProcessBus()
	ctx := context.Background()

	var got []Event
	cancel, err := bus.Subscribe(ctx, func(_ context.Context, ev Event) {
		got = append(got, ev)
	})
	require.NoError(t, err)
	defer cancel()

	m := &message.Message{ID: "m1", Text: "hello", AuthorID: "u1"}
	require.NoError(t, bus.Publish(ctx, Event{Type: TypeMessageCreated, Message: m}))

	require.Len(t, got, 1)
	assert.Equal(t, TypeMessageCreated, got[0].Type)
	assert.Equal(t, "m1", got[0].Message.ID)
}

func TestProcessBusUnsubscribe(t *testing.T) {
	bus := NewProcessBus()
	ctx := context.Background()

	count := 0
	cancel, err := bus.Subscribe(ctx, func(context.Context, Event) { count++ })
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, Event{Type: TypeMessageCreated}))
	cancel()
	require.NoError(t, bus.Publish(ctx, Event{Type: TypeMessageCreated}))

	assert.Equal(t, 1, count)
}

func TestProcessBusMultipleSubscribers(t *testing.T) {
	bus := NewProcessBus()
	ctx := context.Background()

	a, b := 0, 0
	_, err := bus.Subscribe(ctx, func(context.Context, Event) { a++ })
	require.NoError(t, err)
	_, err = bus.Subscribe(ctx, func(context.Context, Event) { b++ })
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, Event{Type: TypeMessageDeleted}))

	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}
