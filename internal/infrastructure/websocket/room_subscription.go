package websocket

import (
	"sync"

	"auction-sync/internal/domain"
	"auction-sync/pkg/logger"
)

type sender interface {
	Send(name string, payload interface{}) error
	Connected() bool
}

// RoomSubscription remembers the one auction room of interest and issues
// join/leave frames for it.
type RoomSubscription struct {
	sender sender
	log    logger.Logger

	mu   sync.Mutex
	room string
}

func NewRoomSubscription(s sender, log logger.Logger) *RoomSubscription {
	return &RoomSubscription{sender: s, log: log}
}

func (r *RoomSubscription) Room() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.room
}

// Join records the room and sends the join now if connected; otherwise the
// next transition into Connected sends it.
func (r *RoomSubscription) Join(auctionID string) {
	r.mu.Lock()
	r.room = auctionID
	r.mu.Unlock()

	if !r.sender.Connected() {
		r.log.Debug("Deferring room join until connected", "auction_id", auctionID)
		return
	}
	r.send(domain.MsgJoinAuction, auctionID)
}

// Leave is best-effort: the frame is dropped if disconnected.
func (r *RoomSubscription) Leave(auctionID string) {
	r.mu.Lock()
	if r.room == auctionID {
		r.room = ""
	}
	r.mu.Unlock()

	if err := r.sender.Send(domain.MsgLeaveAuction, domain.RoomRequest{AuctionID: auctionID}); err != nil {
		r.log.Debug("Leave not sent", "auction_id", auctionID, "error", err)
	}
}

// Rejoin re-issues the join for the recorded room.
func (r *RoomSubscription) Rejoin() {
	room := r.Room()
	if room == "" {
		return
	}
	r.send(domain.MsgJoinAuction, room)
}

func (r *RoomSubscription) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.room = ""
}

func (r *RoomSubscription) send(name, auctionID string) {
	if err := r.sender.Send(name, domain.RoomRequest{AuctionID: auctionID}); err != nil {
		r.log.Warn("Failed to send room message", "message", name, "auction_id", auctionID, "error", err)
		return
	}
	r.log.Info("Room message sent", "message", name, "auction_id", auctionID)
}
