package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenggwsx/PairChat/internal/protocol"
)

func TestConnHubSend(t *testing.T) {
	hub := NewConnHub()
	ch := make(chan protocol.Envelope, 1)
	hub.Register("c1", ch)
	require.Equal(t, 1, hub.Len())

	assert.True(t, hub.Send("c1", protocol.Envelope{Type: protocol.MessageTypeMatched}))
	// Buffer full.
	assert.False(t, hub.Send("c1", protocol.Envelope{Type: protocol.MessageTypeMatched}))
	assert.False(t, hub.Send("missing", protocol.Envelope{}))

	hub.Unregister("c1")
	assert.Equal(t, 0, hub.Len())
	assert.False(t, hub.Send("c1", protocol.Envelope{}))
}

func TestConnHubBroadcastSkipsSaturated(t *testing.T) {
	hub := NewConnHub()
	open := make(chan protocol.Envelope, 2)
	full := make(chan protocol.Envelope)
	hub.Register("open", open)
	hub.Register("full", full)

	hub.Broadcast(protocol.Envelope{Type: protocol.MessageTypeUserList, Payload: []string{}})

	require.Len(t, open, 1)
	env := <-open
	assert.Equal(t, protocol.MessageTypeUserList, env.Type)
}
