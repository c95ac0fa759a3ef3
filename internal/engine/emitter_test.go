package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventEmitter_DeliversInOrder(t *testing.T) {
	e := NewEventEmitter(4, nil)
	h := e.Handler()

	h(Event{Type: EventNodeStarted})
	h(Event{Type: EventNodeCompleted})
	e.Close()

	var got []EventType
	for ev := range e.Events() {
		got = append(got, ev.Type)
	}
	assert.Equal(t, []EventType{EventNodeStarted, EventNodeCompleted}, got)
}

func TestEventEmitter_DropsWhenFull(t *testing.T) {
	e := NewEventEmitter(1, nil)

	e.Emit(Event{Type: EventNodeStarted})
	e.Emit(Event{Type: EventNodeCompleted})

	assert.Equal(t, uint64(1), e.DroppedCount())
	ev := <-e.Events()
	assert.Equal(t, EventNodeStarted, ev.Type)
}

func TestEventEmitter_EmitAfterCloseIsIgnored(t *testing.T) {
	e := NewEventEmitter(1, nil)
	e.Close()
	e.Close()

	require.NotPanics(t, func() { e.Emit(Event{Type: EventNodeStarted}) })
}

func TestFanout(t *testing.T) {
	assert.Nil(t, Fanout(nil, nil))

	var a, b int
	h := Fanout(func(Event) { a++ }, nil, func(Event) { b++ })
	h(Event{})
	h(Event{})
	assert.Equal(t, 2, a)
	assert.Equal(t, 2, b)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
	assert.Equal(t, strings.Repeat("é", 3)+"...", truncate(strings.Repeat("é", 5), 3))
}
