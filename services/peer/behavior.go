package peer

import "github.com/bsv-blockchain/fullnode/pkg/wire"

// Behavior is one independent, attachable unit of per-peer logic (§9: "each
// peer owns a vector of behavior objects... No virtual inheritance;
// behaviors are independent values sharing only the peer handle"). A Peer
// never inspects its own behaviors' internals; it only calls these four
// entry points.
type Behavior interface {
	// OnAttach runs once, when the behavior's peer is registered with the
	// Manager.
	OnAttach(p *Peer)
	// OnDetach runs once, when the peer is removed from the Manager.
	OnDetach(p *Peer)
	// OnMessage runs for every inbound message, in the order behaviors were
	// attached.
	OnMessage(p *Peer, msg wire.Message)
	// OnStateChange runs whenever SetState records a new top-level
	// connection state.
	OnStateChange(p *Peer, state string)
}

// NoopBehavior gives a zero-cost embeddable default for the three entry
// points a behavior doesn't care about, the same "embed the default, override
// what you need" shape generated service stubs use.
type NoopBehavior struct{}

func (NoopBehavior) OnAttach(*Peer)                {}
func (NoopBehavior) OnDetach(*Peer)                {}
func (NoopBehavior) OnMessage(*Peer, wire.Message) {}
func (NoopBehavior) OnStateChange(*Peer, string)   {}
