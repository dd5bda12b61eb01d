package realtime

import (
	"errors"

	"dealroom/internal/common"
)

// ChanConnection is the channel-backed Connection handed to the hub by
// the socket transport. Events are buffered; when the buffer is full
// the event is dropped rather than stalling the publisher.
type ChanConnection struct {
	id     string
	events chan common.Event
}

var errBufferFull = errors.New("connection buffer full, event dropped")

func NewChanConnection(id string, buffer int) *ChanConnection {
	return &ChanConnection{
		id:     id,
		events: make(chan common.Event, buffer),
	}
}

func (c *ChanConnection) ID() string { return c.id }

func (c *ChanConnection) Send(event common.Event) error {
	select {
	case c.events <- event:
		return nil
	default:
		return errBufferFull
	}
}

// Events is drained by the transport writing to the client socket.
func (c *ChanConnection) Events() <-chan common.Event {
	return c.events
}
