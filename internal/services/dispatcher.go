package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"auction-sync/internal/domain"
	"auction-sync/internal/metrics"
	"auction-sync/pkg/logger"
)

type EventHandler func(event domain.Event)

// Subscription is the handle returned by Subscribe. Closing it detaches exactly
// the handler it was created for.
type Subscription struct {
	dispatcher *EventDispatcher
	kind       domain.EventKind
	id         uint64
	once       sync.Once
}

func (s *Subscription) Kind() domain.EventKind {
	return s.kind
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.dispatcher.remove(s.kind, s.id)
	})
}

type registration struct {
	id      uint64
	handler EventHandler
}

// EventDispatcher turns raw push frames into typed events and fans them out per kind.
type EventDispatcher struct {
	mu       sync.RWMutex
	handlers map[domain.EventKind][]registration
	nextID   uint64
	metrics  *metrics.SyncMetrics
	log      logger.Logger
}

func NewEventDispatcher(m *metrics.SyncMetrics, log logger.Logger) *EventDispatcher {
	return &EventDispatcher{
		handlers: make(map[domain.EventKind][]registration),
		metrics:  m,
		log:      log,
	}
}

func (d *EventDispatcher) Subscribe(kind domain.EventKind, handler EventHandler) (*Subscription, error) {
	if !knownKind(kind) {
		return nil, fmt.Errorf("dispatcher: %w: %s", domain.ErrUnknownEvent, kind)
	}
	if handler == nil {
		return nil, errors.New("dispatcher: nil handler")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.handlers[kind] = append(d.handlers[kind], registration{id: id, handler: handler})

	return &Subscription{dispatcher: d, kind: kind, id: id}, nil
}

// SubscribeAll registers handler for every known kind.
func (d *EventDispatcher) SubscribeAll(handler EventHandler) ([]*Subscription, error) {
	subs := make([]*Subscription, 0, len(domain.EventKinds))
	for _, kind := range domain.EventKinds {
		sub, err := d.Subscribe(kind, handler)
		if err != nil {
			for _, s := range subs {
				s.Close()
			}
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (d *EventDispatcher) HandlerCount(kind domain.EventKind) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[kind])
}

func (d *EventDispatcher) remove(kind domain.EventKind, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	regs := d.handlers[kind]
	for i, r := range regs {
		if r.id == id {
			next := make([]registration, 0, len(regs)-1)
			next = append(next, regs[:i]...)
			next = append(next, regs[i+1:]...)
			if len(next) == 0 {
				delete(d.handlers, kind)
			} else {
				d.handlers[kind] = next
			}
			return
		}
	}
}

// HandleMessage is fed every frame read from the push channel.
func (d *EventDispatcher) HandleMessage(raw []byte) {
	env, err := domain.ParseEnvelope(raw)
	if err != nil {
		d.log.Debug("Dropping malformed frame", "error", err)
		d.metrics.EventDiscarded("malformed")
		return
	}

	if env.Event == domain.MsgJoinedAuction {
		var ack domain.RoomRequest
		if err := json.Unmarshal(env.Data, &ack); err != nil {
			d.log.Debug("Dropping undecodable join acknowledgement", "error", err)
			return
		}
		d.log.Info("Joined auction room", "auction_id", ack.AuctionID)
		return
	}

	event, err := domain.DecodeEvent(env)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownEvent) {
			d.log.Debug("Ignoring unknown event", "event", env.Event)
			d.metrics.EventDiscarded("unknown")
		} else {
			d.log.Debug("Dropping undecodable event", "event", env.Event, "error", err)
			d.metrics.EventDiscarded("malformed")
		}
		return
	}

	d.Dispatch(event)
}

// Dispatch invokes the handlers registered for the event's kind in registration order.
func (d *EventDispatcher) Dispatch(event domain.Event) {
	d.metrics.EventReceived(string(event.Kind()))

	d.mu.RLock()
	regs := d.handlers[event.Kind()]
	d.mu.RUnlock()

	if len(regs) == 0 {
		d.log.Debug("No handler for event", "kind", event.Kind())
		return
	}
	for _, r := range regs {
		r.handler(event)
	}
}

func knownKind(kind domain.EventKind) bool {
	for _, k := range domain.EventKinds {
		if k == kind {
			return true
		}
	}
	return false
}
