package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type EventKind string

const (
	EventNewBid            EventKind = "NEW_BID"
	EventAuctionSold       EventKind = "AUCTION_SOLD"
	EventAuctionExpired    EventKind = "AUCTION_EXPIRED"
	EventAuctionEndingSoon EventKind = "AUCTION_ENDING_SOON"
	EventAuctionExtended   EventKind = "AUCTION_EXTENDED"
	EventViewerCount       EventKind = "VIEWER_COUNT"
)

// EventKinds lists the closed set of push events the client understands.
var EventKinds = []EventKind{
	EventNewBid,
	EventAuctionSold,
	EventAuctionExpired,
	EventAuctionEndingSoon,
	EventAuctionExtended,
	EventViewerCount,
}

// Client to server messages and acknowledgements.
const (
	MsgJoinAuction   = "join_auction"
	MsgLeaveAuction  = "leave_auction"
	MsgJoinedAuction = "joined_auction"
)

const RoomPrefix = "auction:"

var ErrUnknownEvent = errors.New("unknown event kind")

// Event is implemented only by the payload types below.
type Event interface {
	Kind() EventKind
	// AuctionRef is the auction the event refers to.
	AuctionRef() string
	isEvent()
}

type NewBidEvent struct {
	AuctionID string          `json:"auctionId"`
	Amount    decimal.Decimal `json:"amount"`
	BidderID  string          `json:"bidderId"`
	BidID     string          `json:"bidId"`
}

type AuctionSoldEvent struct {
	AuctionID  string          `json:"auctionId"`
	WinnerID   string          `json:"winnerId"`
	FinalPrice decimal.Decimal `json:"finalPrice"`
}

type AuctionExpiredEvent struct {
	AuctionID string `json:"auctionId"`
}

type AuctionEndingSoonEvent struct {
	AuctionID string    `json:"auctionId"`
	EndsAt    time.Time `json:"endsAt"`
}

type AuctionExtendedEvent struct {
	AuctionID string    `json:"auctionId"`
	EndsAt    time.Time `json:"endsAt"`
}

type ViewerCountEvent struct {
	Room  string `json:"room"`
	Count int    `json:"count"`
}

func (NewBidEvent) Kind() EventKind            { return EventNewBid }
func (AuctionSoldEvent) Kind() EventKind       { return EventAuctionSold }
func (AuctionExpiredEvent) Kind() EventKind    { return EventAuctionExpired }
func (AuctionEndingSoonEvent) Kind() EventKind { return EventAuctionEndingSoon }
func (AuctionExtendedEvent) Kind() EventKind   { return EventAuctionExtended }
func (ViewerCountEvent) Kind() EventKind       { return EventViewerCount }

func (e NewBidEvent) AuctionRef() string            { return e.AuctionID }
func (e AuctionSoldEvent) AuctionRef() string       { return e.AuctionID }
func (e AuctionExpiredEvent) AuctionRef() string    { return e.AuctionID }
func (e AuctionEndingSoonEvent) AuctionRef() string { return e.AuctionID }
func (e AuctionExtendedEvent) AuctionRef() string   { return e.AuctionID }
func (e ViewerCountEvent) AuctionRef() string       { return strings.TrimPrefix(e.Room, RoomPrefix) }

func (NewBidEvent) isEvent()            {}
func (AuctionSoldEvent) isEvent()       {}
func (AuctionExpiredEvent) isEvent()    {}
func (AuctionEndingSoonEvent) isEvent() {}
func (AuctionExtendedEvent) isEvent()   {}
func (ViewerCountEvent) isEvent()       {}

// Envelope is the frame used in both directions on the push channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type RoomRequest struct {
	AuctionID string `json:"auctionId"`
}

func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("invalid envelope: missing event name")
	}
	return &env, nil
}

// DecodeEvent maps an envelope onto one of the known event payloads.
// Unknown kinds yield ErrUnknownEvent.
func DecodeEvent(env *Envelope) (Event, error) {
	var (
		event Event
		err   error
	)
	switch EventKind(env.Event) {
	case EventNewBid:
		var p NewBidEvent
		err = json.Unmarshal(env.Data, &p)
		event = p
	case EventAuctionSold:
		var p AuctionSoldEvent
		err = json.Unmarshal(env.Data, &p)
		event = p
	case EventAuctionExpired:
		var p AuctionExpiredEvent
		err = json.Unmarshal(env.Data, &p)
		event = p
	case EventAuctionEndingSoon:
		var p AuctionEndingSoonEvent
		err = json.Unmarshal(env.Data, &p)
		event = p
	case EventAuctionExtended:
		var p AuctionExtendedEvent
		err = json.Unmarshal(env.Data, &p)
		event = p
	case EventViewerCount:
		var p ViewerCountEvent
		err = json.Unmarshal(env.Data, &p)
		event = p
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, env.Event)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Event, err)
	}
	return event, nil
}

// EncodeMessage frames a named payload for the push channel.
func EncodeMessage(name string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: name, Data: data})
}

func EncodeEvent(e Event) ([]byte, error) {
	return EncodeMessage(string(e.Kind()), e)
}
