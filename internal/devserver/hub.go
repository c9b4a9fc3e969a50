package devserver

import (
	"sync"

	"auction-sync/internal/domain"
	"auction-sync/pkg/logger"
)

// Peer is one push connection as seen by the hub.
type Peer interface {
	ID() string
	UserID() string
	Send(message []byte) error
	Close() error
}

// Hub tracks room membership and fans frames out to room members.
type Hub struct {
	rooms     map[string]map[string]Peer // room -> peer id -> peer
	peerRooms map[string]map[string]bool // peer id -> rooms
	mutex     sync.RWMutex
	log       logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		rooms:     make(map[string]map[string]Peer),
		peerRooms: make(map[string]map[string]bool),
		log:       log,
	}
}

func roomName(auctionID string) string {
	return domain.RoomPrefix + auctionID
}

// Join adds peer to the auction's room and returns the new member count.
func (h *Hub) Join(auctionID string, peer Peer) int {
	room := roomName(auctionID)

	h.mutex.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]Peer)
	}
	h.rooms[room][peer.ID()] = peer
	if h.peerRooms[peer.ID()] == nil {
		h.peerRooms[peer.ID()] = make(map[string]bool)
	}
	h.peerRooms[peer.ID()][room] = true
	count := len(h.rooms[room])
	h.mutex.Unlock()

	h.log.Info("Peer joined room", "peer_id", peer.ID(), "user_id", peer.UserID(), "room", room)
	return count
}

// Leave removes peer from the auction's room. ok is false if it was not a member.
func (h *Hub) Leave(auctionID string, peer Peer) (count int, ok bool) {
	room := roomName(auctionID)

	h.mutex.Lock()
	defer h.mutex.Unlock()

	members, exists := h.rooms[room]
	if !exists || members[peer.ID()] == nil {
		return len(members), false
	}
	delete(members, peer.ID())
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	if joined := h.peerRooms[peer.ID()]; joined != nil {
		delete(joined, room)
		if len(joined) == 0 {
			delete(h.peerRooms, peer.ID())
		}
	}

	h.log.Info("Peer left room", "peer_id", peer.ID(), "room", room)
	return len(members), true
}

// Unregister drops peer from every room and returns the auctions it was in.
func (h *Hub) Unregister(peer Peer) []string {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	var auctions []string
	for room := range h.peerRooms[peer.ID()] {
		if members, exists := h.rooms[room]; exists {
			delete(members, peer.ID())
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
		auctions = append(auctions, room[len(domain.RoomPrefix):])
	}
	delete(h.peerRooms, peer.ID())
	return auctions
}

func (h *Hub) ViewerCount(auctionID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.rooms[roomName(auctionID)])
}

func (h *Hub) peersFor(auctionID string) []Peer {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	var peers []Peer
	for _, peer := range h.rooms[roomName(auctionID)] {
		peers = append(peers, peer)
	}
	return peers
}

// Broadcast writes one frame to every member of the auction's room.
func (h *Hub) Broadcast(auctionID string, frame []byte) {
	peers := h.peersFor(auctionID)
	h.log.Debug("Broadcasting to auction", "auction_id", auctionID, "peers", len(peers))

	for _, peer := range peers {
		if err := peer.Send(frame); err != nil {
			h.log.Error("Failed to send message", "peer_id", peer.ID(), "auction_id", auctionID, "error", err)
			// Continue to other peers
		}
	}
}

// CloseAll closes every connected peer.
func (h *Hub) CloseAll() {
	h.mutex.Lock()
	peers := make(map[string]Peer)
	for _, members := range h.rooms {
		for id, peer := range members {
			peers[id] = peer
		}
	}
	h.rooms = make(map[string]map[string]Peer)
	h.peerRooms = make(map[string]map[string]bool)
	h.mutex.Unlock()

	for id, peer := range peers {
		if err := peer.Close(); err != nil {
			h.log.Error("Failed to close connection", "peer_id", id, "error", err)
		}
	}
}
