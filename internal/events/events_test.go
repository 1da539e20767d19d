package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_PublishJSON(t *testing.T) {
	bus := NewEventBus()
	var got []Mutation
	bus.Subscribe(func(ev Event) error {
		m, err := ev.Decode()
		require.NoError(t, err)
		assert.False(t, ev.CreatedAt.IsZero())
		got = append(got, m)
		return nil
	}, BlockCreated, BlockDeleted)

	require.NoError(t, bus.PublishJSON(BlockCreated, Mutation{EventIDs: []string{"e1"}, Kind: "block", Hours: []int{9}}))
	require.NoError(t, bus.PublishJSON(AppointmentBooked, Mutation{EventIDs: []string{"e2"}}))

	require.Len(t, got, 1)
	assert.Equal(t, []string{"e1"}, got[0].EventIDs)
	assert.Equal(t, []int{9}, got[0].Hours)
}

func TestEventBus_JoinsHandlerErrors(t *testing.T) {
	bus := NewEventBus()
	boom := errors.New("boom")
	calls := 0
	bus.Subscribe(func(Event) error { calls++; return boom }, BlockDeleted)
	bus.Subscribe(func(Event) error { calls++; return nil }, BlockDeleted)

	err := bus.Publish(Event{Type: BlockDeleted})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls, "a failing handler does not stop the others")
}
