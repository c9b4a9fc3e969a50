package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"auction-sync/internal/domain"
	"auction-sync/internal/metrics"
	"auction-sync/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

type StateChange struct {
	From State
	To   State
	Err  error
}

var ErrNotConnected = errors.New("push channel not connected")

// MessageHandler receives every frame read from the push channel.
type MessageHandler interface {
	HandleMessage(raw []byte)
}

type Options struct {
	URL               string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	HandshakeTimeout  time.Duration
	PingInterval      time.Duration
}

// ConnectionManager owns the single push connection of an app session.
type ConnectionManager struct {
	opts    Options
	dialer  Dialer
	tokens  domain.TokenStore
	handler MessageHandler
	clock   clockwork.Clock
	rooms   *RoomSubscription
	metrics *metrics.SyncMetrics
	log     logger.Logger

	mu        sync.Mutex
	state     State
	conn      Conn
	gen       uint64
	stop      chan struct{}
	lastErr   error
	listeners map[uint64]func(StateChange)
	nextID    uint64

	writeMu sync.Mutex
}

func NewConnectionManager(
	opts Options,
	dialer Dialer,
	tokens domain.TokenStore,
	handler MessageHandler,
	clock clockwork.Clock,
	m *metrics.SyncMetrics,
	log logger.Logger,
) *ConnectionManager {
	cm := &ConnectionManager{
		opts:      opts,
		dialer:    dialer,
		tokens:    tokens,
		handler:   handler,
		clock:     clock,
		metrics:   m,
		log:       log,
		listeners: make(map[uint64]func(StateChange)),
	}
	cm.rooms = NewRoomSubscription(cm, log)
	return cm
}

func (cm *ConnectionManager) Rooms() *RoomSubscription {
	return cm.rooms
}

func (cm *ConnectionManager) Join(auctionID string) {
	cm.rooms.Join(auctionID)
}

func (cm *ConnectionManager) Leave(auctionID string) {
	cm.rooms.Leave(auctionID)
}

func (cm *ConnectionManager) State() State {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.state
}

func (cm *ConnectionManager) Connected() bool {
	return cm.State() == StateConnected
}

// LastError is the error that last moved the manager into Disconnected, if any.
func (cm *ConnectionManager) LastError() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.lastErr
}

// OnStateChange registers a listener and returns its unsubscribe func.
func (cm *ConnectionManager) OnStateChange(fn func(StateChange)) func() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.nextID++
	id := cm.nextID
	cm.listeners[id] = fn
	return func() {
		cm.mu.Lock()
		defer cm.mu.Unlock()
		delete(cm.listeners, id)
	}
}

// Connect establishes the channel unless it is already up or being brought up.
// It returns once connected, rejected, out of attempts or ctx is done.
func (cm *ConnectionManager) Connect(ctx context.Context) error {
	cm.mu.Lock()
	if cm.state != StateDisconnected {
		cm.mu.Unlock()
		return nil
	}
	stop := make(chan struct{})
	cm.stop = stop
	cm.lastErr = nil
	change := cm.setStateLocked(StateConnecting, nil)
	cm.mu.Unlock()
	cm.fire(change)

	return cm.establish(ctx, stop, true)
}

// Disconnect closes the channel, stops any reconnect loop and forgets the joined room.
func (cm *ConnectionManager) Disconnect() {
	cm.mu.Lock()
	if cm.stop != nil {
		close(cm.stop)
		cm.stop = nil
	}
	conn := cm.conn
	cm.conn = nil
	cm.gen++
	change := cm.setStateLocked(StateDisconnected, nil)
	cm.mu.Unlock()

	if conn != nil {
		cm.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		cm.writeMu.Unlock()
		_ = conn.Close()
	}
	cm.rooms.Clear()
	cm.fire(change)
	cm.log.Info("Push channel disconnected")
}

// Send frames and writes one client message.
func (cm *ConnectionManager) Send(name string, payload interface{}) error {
	cm.mu.Lock()
	conn, state := cm.conn, cm.state
	cm.mu.Unlock()

	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}

	data, err := domain.EncodeMessage(name, payload)
	if err != nil {
		return err
	}

	cm.writeMu.Lock()
	defer cm.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// establish dials until connected. The initial connect dials once right away;
// both paths then retry up to ReconnectAttempts times with a fixed delay.
func (cm *ConnectionManager) establish(ctx context.Context, stop chan struct{}, initial bool) error {
	var lastErr error

	if initial {
		done, err := cm.attempt(ctx, stop)
		if done {
			return err
		}
		lastErr = err
	}

	for i := 1; i <= cm.opts.ReconnectAttempts; i++ {
		select {
		case <-stop:
			return domain.NewConnectionError("connect", ErrNotConnected)
		case <-ctx.Done():
			err := domain.NewConnectionError("connect", ctx.Err())
			cm.settle(stop, err)
			return err
		case <-cm.clock.After(cm.opts.ReconnectDelay):
		}

		cm.metrics.ReconnectAttempt()
		cm.log.Info("Reconnect attempt", "attempt", i, "max_attempts", cm.opts.ReconnectAttempts)

		done, err := cm.attempt(ctx, stop)
		if done {
			return err
		}
		lastErr = err
	}

	err := domain.NewConnectionError("connect", lastErr)
	cm.settle(stop, err)
	cm.log.Error("Giving up on push channel", "attempts", cm.opts.ReconnectAttempts, "error", lastErr)
	return err
}

// attempt dials once. done reports whether establish should stop looping.
func (cm *ConnectionManager) attempt(ctx context.Context, stop chan struct{}) (bool, error) {
	conn, err := cm.dial(ctx)
	if err == nil {
		if !cm.attach(conn, stop) {
			_ = conn.Close()
			return true, domain.NewConnectionError("connect", ErrNotConnected)
		}
		return true, nil
	}

	if errors.Is(err, domain.ErrAuth) {
		cm.settle(stop, err)
		cm.log.Error("Push channel handshake rejected", "error", err)
		return true, err
	}
	cm.log.Warn("Push channel dial failed", "url", cm.opts.URL, "error", err)
	return false, err
}

func (cm *ConnectionManager) dial(ctx context.Context) (Conn, error) {
	header := http.Header{}
	token, err := cm.tokens.GetItem(ctx, domain.AuthTokenKey)
	if err != nil {
		cm.log.Warn("Token lookup failed, connecting anonymously", "error", err)
	}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	if cm.opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cm.opts.HandshakeTimeout)
		defer cancel()
	}

	conn, resp, err := cm.dialer.Dial(ctx, cm.opts.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, domain.NewAuthError("connect", "push channel rejected credentials", resp.StatusCode)
		}
		return nil, err
	}
	return conn, nil
}

func (cm *ConnectionManager) attach(conn Conn, stop chan struct{}) bool {
	cm.mu.Lock()
	if cm.stop != stop {
		cm.mu.Unlock()
		return false
	}
	cm.conn = conn
	cm.gen++
	gen := cm.gen
	change := cm.setStateLocked(StateConnected, nil)
	cm.mu.Unlock()

	cm.log.Info("Push channel connected", "url", cm.opts.URL)
	cm.fire(change)

	go cm.readLoop(conn, gen)
	cm.rooms.Rejoin()
	return true
}

// settle moves to Disconnected after a failed establish, unless Disconnect already ran.
func (cm *ConnectionManager) settle(stop chan struct{}, err error) {
	cm.mu.Lock()
	if cm.stop != stop {
		cm.mu.Unlock()
		return
	}
	cm.stop = nil
	cm.lastErr = err
	change := cm.setStateLocked(StateDisconnected, err)
	cm.mu.Unlock()
	cm.fire(change)
}

func (cm *ConnectionManager) onTransportLoss(gen uint64, cause error) {
	cm.mu.Lock()
	if gen != cm.gen || cm.state != StateConnected {
		cm.mu.Unlock()
		return
	}
	conn := cm.conn
	cm.conn = nil
	stop := cm.stop
	change := cm.setStateLocked(StateReconnecting, cause)
	cm.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	cm.log.Warn("Push channel lost, reconnecting", "error", cause)
	cm.fire(change)

	go func() {
		_ = cm.establish(context.Background(), stop, false)
	}()
}

func (cm *ConnectionManager) setStateLocked(next State, err error) *StateChange {
	if cm.state == next && err == nil {
		return nil
	}
	change := &StateChange{From: cm.state, To: next, Err: err}
	cm.state = next
	cm.metrics.ConnectionState(int(next))
	return change
}

func (cm *ConnectionManager) fire(change *StateChange) {
	if change == nil {
		return
	}
	cm.mu.Lock()
	listeners := make([]func(StateChange), 0, len(cm.listeners))
	for _, fn := range cm.listeners {
		listeners = append(listeners, fn)
	}
	cm.mu.Unlock()

	for _, fn := range listeners {
		fn(*change)
	}
}
