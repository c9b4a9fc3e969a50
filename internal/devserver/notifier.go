package devserver

import (
	"context"

	"auction-sync/internal/domain"
)

// WebSocketNotifier frames domain events for the push channel and hands them to the hub.
type WebSocketNotifier struct {
	hub *Hub
}

var _ Broadcaster = (*WebSocketNotifier)(nil)

func NewWebSocketNotifier(hub *Hub) *WebSocketNotifier {
	return &WebSocketNotifier{hub: hub}
}

func (n *WebSocketNotifier) BroadcastToAuction(_ context.Context, auctionID string, event domain.Event) error {
	frame, err := domain.EncodeEvent(event)
	if err != nil {
		return err
	}
	n.hub.Broadcast(auctionID, frame)
	return nil
}

// BroadcastViewerCount announces the current room size to the room.
func (n *WebSocketNotifier) BroadcastViewerCount(ctx context.Context, auctionID string, count int) error {
	return n.BroadcastToAuction(ctx, auctionID, domain.ViewerCountEvent{Room: roomName(auctionID), Count: count})
}
