package server

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSendMessageAfterSendChannelClosed(t *testing.T) {
	t.Parallel()
	// Close has shut the send channel but the context has not been seen
	// as cancelled yet.
	c := &Connection{
		send:   make(chan *Message, 1),
		ctx:    context.Background(),
		logger: zerolog.Nop(),
	}
	close(c.send)

	err := c.SendMessage(&Message{Type: "ping"})
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestSendMessageAfterCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &Connection{
		send:   make(chan *Message, 1),
		ctx:    ctx,
		logger: zerolog.Nop(),
	}

	assert.ErrorIs(t, c.SendMessage(&Message{Type: "ping"}), ErrConnectionClosed)
	assert.Empty(t, c.send)
}
