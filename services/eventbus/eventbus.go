// Package eventbus is the node's small in-process publish/subscribe broker
// (§6): components downstream of the Block Store Queue and Coinview (the
// Address Indexer chief among them) subscribe to chain-state events instead
// of being wired directly to their producers.
package eventbus

import (
	"sync"

	"github.com/bsv-blockchain/fullnode/model"
	"github.com/bsv-blockchain/fullnode/ulogger"
	"github.com/libsv/go-bt/v2/chainhash"
)

// EventKind discriminates the events the bus carries.
type EventKind int

const (
	BlockConnected EventKind = iota
	BlockDisconnected
	TipChanged
	PeerConnected
	PeerDisconnected
	PeerConnectionAttemptFailed
)

func (k EventKind) String() string {
	switch k {
	case BlockConnected:
		return "BlockConnected"
	case BlockDisconnected:
		return "BlockDisconnected"
	case TipChanged:
		return "TipChanged"
	case PeerConnected:
		return "PeerConnected"
	case PeerDisconnected:
		return "PeerDisconnected"
	case PeerConnectionAttemptFailed:
		return "PeerConnectionAttemptFailed"
	default:
		return "Unknown"
	}
}

// Event is one bus message. Block is non-nil for BlockConnected/Disconnected;
// Hash carries the new tip for TipChanged. Endpoint and Reason are set for
// PeerConnectionAttemptFailed (§4.5 scenario S5); Endpoint is the rejected
// remote address and Reason is a short human-readable cause.
type Event struct {
	Kind     EventKind
	Block    *model.Block
	Hash     chainhash.Hash
	Endpoint string
	Reason   string
}

// subscriberBufferSize bounds how far a subscriber may lag before it is
// dropped rather than allowed to block the publisher.
const subscriberBufferSize = 256

// maxMissedSends is how many full-buffer sends a subscriber tolerates before
// EventBus gives up on it.
const maxMissedSends = 3

type subscriber struct {
	ch      chan Event
	kind    EventKind
	missed  int
	stopped bool
}

// EventBus is the publisher/subscriber registry. Subscribers never block a
// Publish call: a subscriber whose buffer is full has the send skipped, and
// after maxMissedSends consecutive skips it is dropped and a warning logged.
type EventBus struct {
	mu   sync.Mutex
	subs map[EventKind][]*subscriber
	log  ulogger.Logger
}

// New creates an empty bus.
func New(log ulogger.Logger) *EventBus {
	return &EventBus{subs: map[EventKind][]*subscriber{}, log: log}
}

// Subscribe returns a channel receiving every future event of kind. Callers
// must keep draining it; a slow subscriber is dropped (see EventBus).
func (b *EventBus) Subscribe(kind EventKind) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &subscriber{ch: make(chan Event, subscriberBufferSize), kind: kind}
	b.subs[kind] = append(b.subs[kind], s)
	return s.ch
}

// Publish delivers ev to every live subscriber of ev.Kind, non-blocking.
func (b *EventBus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	live := b.subs[ev.Kind][:0]
	for _, s := range b.subs[ev.Kind] {
		if s.stopped {
			continue
		}
		select {
		case s.ch <- ev:
			s.missed = 0
			live = append(live, s)
		default:
			s.missed++
			if s.missed >= maxMissedSends {
				if b.log != nil {
					b.log.Warnf("eventbus: dropping slow subscriber of %s after %d missed sends", ev.Kind, s.missed)
				}
				close(s.ch)
				s.stopped = true
				continue
			}
			live = append(live, s)
		}
	}
	b.subs[ev.Kind] = live
}
