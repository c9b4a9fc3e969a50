package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"auction-sync/internal/domain"
	"auction-sync/internal/infrastructure/auth"
	"auction-sync/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

type WebSocketHandler struct {
	manager  *AuctionManager
	hub      *Hub
	notifier *WebSocketNotifier
	signer   *auth.Signer
	log      logger.Logger
}

func NewWebSocketHandler(manager *AuctionManager, hub *Hub, notifier *WebSocketNotifier,
	signer *auth.Signer, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		manager:  manager,
		hub:      hub,
		notifier: notifier,
		signer:   signer,
		log:      log,
	}
}

// HandleConnection upgrades the push endpoint. Anonymous viewers are allowed;
// a token that fails verification is rejected before the upgrade.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	userID := ""
	if token := bearerToken(r); token != "" {
		claims, err := h.signer.Verify(token)
		if err != nil {
			h.log.Info("Rejected push connection", "error", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		userID = claims.Subject
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	peer := NewWebSocketConnection(conn, userID)
	h.log.Info("Push connection opened", "peer_id", peer.ID(), "user_id", userID)

	go h.handleMessages(peer)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (h *WebSocketHandler) handleMessages(peer *WebSocketConnection) {
	ctx := context.Background()
	defer func() {
		for _, auctionID := range h.hub.Unregister(peer) {
			h.announceViewers(ctx, auctionID)
		}
		_ = peer.Close()
		h.log.Info("Push connection closed", "peer_id", peer.ID())
	}()

	for {
		_, data, err := peer.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Error("Failed to read message", "error", err)
			}
			return
		}

		env, err := domain.ParseEnvelope(data)
		if err != nil {
			h.sendError(peer, "invalid message")
			continue
		}

		var req domain.RoomRequest
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &req); err != nil {
				h.sendError(peer, "invalid payload")
				continue
			}
		}

		switch env.Event {
		case domain.MsgJoinAuction:
			h.handleJoin(ctx, peer, req.AuctionID)
		case domain.MsgLeaveAuction:
			if _, ok := h.hub.Leave(req.AuctionID, peer); ok {
				h.announceViewers(ctx, req.AuctionID)
			}
		default:
			h.log.Debug("Ignoring client message", "event", env.Event)
		}
	}
}

func (h *WebSocketHandler) handleJoin(ctx context.Context, peer *WebSocketConnection, auctionID string) {
	if _, err := h.manager.GetAuction(auctionID); err != nil {
		h.sendError(peer, err.Error())
		return
	}

	h.hub.Join(auctionID, peer)

	ack, err := domain.EncodeMessage(domain.MsgJoinedAuction, domain.RoomRequest{AuctionID: auctionID})
	if err == nil {
		if err := peer.Send(ack); err != nil {
			h.log.Error("Failed to acknowledge join", "peer_id", peer.ID(), "error", err)
		}
	}
	h.announceViewers(ctx, auctionID)
}

func (h *WebSocketHandler) announceViewers(ctx context.Context, auctionID string) {
	if err := h.notifier.BroadcastViewerCount(ctx, auctionID, h.hub.ViewerCount(auctionID)); err != nil {
		h.log.Error("Failed to broadcast viewer count", "auction_id", auctionID, "error", err)
	}
}

func (h *WebSocketHandler) sendError(peer *WebSocketConnection, message string) {
	frame, err := domain.EncodeMessage("error", map[string]string{"message": message})
	if err != nil {
		return
	}
	_ = peer.Send(frame)
}

type WebSocketConnection struct {
	conn    *websocket.Conn
	id      string
	userID  string
	writeMu sync.Mutex
}

var _ Peer = (*WebSocketConnection)(nil)

func NewWebSocketConnection(conn *websocket.Conn, userID string) *WebSocketConnection {
	return &WebSocketConnection{
		conn:   conn,
		id:     uuid.NewString(),
		userID: userID,
	}
}

func (wsc *WebSocketConnection) Send(message []byte) error {
	wsc.writeMu.Lock()
	defer wsc.writeMu.Unlock()
	if err := wsc.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return wsc.conn.WriteMessage(websocket.TextMessage, message)
}

func (wsc *WebSocketConnection) Close() error {
	return wsc.conn.Close()
}

func (wsc *WebSocketConnection) ID() string {
	return wsc.id
}

func (wsc *WebSocketConnection) UserID() string {
	return wsc.userID
}
