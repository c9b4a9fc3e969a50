package websocket

import (
	"errors"
	"testing"

	"auction-sync/internal/domain"
	"auction-sync/pkg/logger"

	"github.com/stretchr/testify/assert"
)

type sentFrame struct {
	name      string
	auctionID string
}

type fakeSender struct {
	connected bool
	frames    []sentFrame
}

func (f *fakeSender) Connected() bool { return f.connected }

func (f *fakeSender) Send(name string, payload interface{}) error {
	if !f.connected {
		return ErrNotConnected
	}
	f.frames = append(f.frames, sentFrame{name: name, auctionID: payload.(domain.RoomRequest).AuctionID})
	return nil
}

func TestJoinWhileDisconnectedIsDeferred(t *testing.T) {
	s := &fakeSender{}
	rooms := NewRoomSubscription(s, logger.NewNop())

	rooms.Join("a1")
	assert.Equal(t, "a1", rooms.Room())
	assert.Empty(t, s.frames)

	s.connected = true
	rooms.Rejoin()
	assert.Equal(t, []sentFrame{{domain.MsgJoinAuction, "a1"}}, s.frames)
}

func TestJoinReplacesRoom(t *testing.T) {
	s := &fakeSender{connected: true}
	rooms := NewRoomSubscription(s, logger.NewNop())

	rooms.Join("a1")
	rooms.Leave("a1")
	rooms.Join("a2")

	assert.Equal(t, "a2", rooms.Room())
	assert.Equal(t, []sentFrame{
		{domain.MsgJoinAuction, "a1"},
		{domain.MsgLeaveAuction, "a1"},
		{domain.MsgJoinAuction, "a2"},
	}, s.frames)
}

func TestLeaveOtherRoomKeepsCurrent(t *testing.T) {
	s := &fakeSender{connected: true}
	rooms := NewRoomSubscription(s, logger.NewNop())

	rooms.Join("a1")
	rooms.Leave("zz")
	assert.Equal(t, "a1", rooms.Room())

	rooms.Clear()
	rooms.Rejoin()
	assert.Len(t, s.frames, 2)
}

func TestLeaveWhileDisconnectedDropsFrame(t *testing.T) {
	s := &fakeSender{connected: true}
	rooms := NewRoomSubscription(s, logger.NewNop())
	rooms.Join("a1")

	s.connected = false
	rooms.Leave("a1")

	assert.Empty(t, rooms.Room())
	assert.Len(t, s.frames, 1)
	assert.True(t, errors.Is(s.Send("x", domain.RoomRequest{}), ErrNotConnected))
}
