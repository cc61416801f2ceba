// Package peer implements the per-peer side of the Connection Manager (§2,
// §9 design note): a Peer is an id plus a vector of independent behavior
// objects, never a back-pointer-laden object graph. Grounded on §9's "each
// peer owns a vector of behavior objects, each of which is a small state
// machine... behaviors are independent values sharing only the peer handle"
// and the redesign note under "Cyclic references": "the manager owns peers
// by id (arena + integer id); all cross-references are by id only."
package peer

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/bsv-blockchain/fullnode/services/banmgr"
	"github.com/bsv-blockchain/fullnode/services/puller"
)

// ID is a peer's integer handle, the only thing behaviors and the manager
// are allowed to hold onto across calls (§9 "Cyclic references").
type ID uint64

// PullerID adapts id to the string-typed identifier services/puller already
// defines; the puller owns its own id space (it predates this package and is
// also addressed by tests directly as a PeerID literal), so the two are
// reconciled here rather than by changing either type.
func (id ID) PullerID() puller.PeerID {
	return puller.PeerID(strconv.FormatUint(uint64(id), 10))
}

// Sender delivers an outbound message on a peer's connection. Implemented by
// the wire-protocol connection the Connection Manager owns.
type Sender interface {
	Send(msg wire.Message) error
	Disconnect(reason string)
}

// Peer is one connected remote node: an id, its dialable endpoint, a way to
// send it messages, and the behaviors attached to it.
type Peer struct {
	id       ID
	endpoint banmgr.Endpoint
	sender   Sender

	mu        sync.RWMutex
	behaviors []Behavior
	state     string
}

func newPeer(id ID, endpoint banmgr.Endpoint, sender Sender, behaviors []Behavior) *Peer {
	return &Peer{id: id, endpoint: endpoint, sender: sender, behaviors: behaviors}
}

// ID returns the peer's integer handle.
func (p *Peer) ID() ID { return p.id }

// Endpoint returns the peer's dialable address, the Ban Registry's key.
func (p *Peer) Endpoint() banmgr.Endpoint { return p.endpoint }

// Send delivers msg over the peer's connection.
func (p *Peer) Send(msg wire.Message) error {
	return p.sender.Send(msg)
}

// Disconnect tears down the peer's connection with reason recorded for logs
// and ban bookkeeping.
func (p *Peer) Disconnect(reason string) {
	p.sender.Disconnect(reason)
}

// State returns the last value reported via SetState, empty until the first
// connection-manager behavior transition.
func (p *Peer) State() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// SetState records p's new top-level state and fans OnStateChange out to
// every attached behavior, letting e.g. the puller-bridge behavior react to
// the connection-manager behavior reaching "ready" without referencing it
// directly.
func (p *Peer) SetState(state string) {
	p.mu.Lock()
	p.state = state
	behaviors := append([]Behavior(nil), p.behaviors...)
	p.mu.Unlock()

	for _, b := range behaviors {
		b.OnStateChange(p, state)
	}
}

func (p *Peer) attach() {
	p.mu.RLock()
	behaviors := append([]Behavior(nil), p.behaviors...)
	p.mu.RUnlock()

	for _, b := range behaviors {
		b.OnAttach(p)
	}
}

func (p *Peer) detach() {
	p.mu.RLock()
	behaviors := append([]Behavior(nil), p.behaviors...)
	p.mu.RUnlock()

	for _, b := range behaviors {
		b.OnDetach(p)
	}
}

// HandleMessage fans an inbound message out to every attached behavior, in
// attachment order.
func (p *Peer) HandleMessage(msg wire.Message) {
	p.mu.RLock()
	behaviors := append([]Behavior(nil), p.behaviors...)
	p.mu.RUnlock()

	for _, b := range behaviors {
		b.OnMessage(p, msg)
	}
}

// Manager is the peer arena (§9): it owns every live Peer by integer id and
// is the only thing that ever looks one up by id. Nothing else in the tree
// holds a *Peer across a yield point; callers ask the Manager again instead.
type Manager struct {
	nextID atomic.Uint64

	mu    sync.RWMutex
	peers map[ID]*Peer
}

// NewManager constructs an empty peer arena.
func NewManager() *Manager {
	return &Manager{peers: map[ID]*Peer{}}
}

// Add allocates a fresh id, constructs a Peer around it, attaches every
// behavior (in order), and registers it in the arena.
func (m *Manager) Add(endpoint banmgr.Endpoint, sender Sender, behaviors ...Behavior) *Peer {
	id := ID(m.nextID.Add(1))
	p := newPeer(id, endpoint, sender, behaviors)

	m.mu.Lock()
	m.peers[id] = p
	m.mu.Unlock()

	p.attach()
	return p
}

// Remove detaches every behavior and drops id from the arena. A no-op if id
// is already gone.
func (m *Manager) Remove(id ID) {
	m.mu.Lock()
	p, ok := m.peers[id]
	if ok {
		delete(m.peers, id)
	}
	m.mu.Unlock()

	if ok {
		p.detach()
	}
}

// Get looks up a peer by id.
func (m *Manager) Get(id ID) (*Peer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.peers[id]
	return p, ok
}

// Len reports how many peers are currently attached.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.peers)
}

// Range calls fn for every attached peer, stopping early if fn returns
// false. The snapshot is taken under lock but fn itself runs unlocked.
func (m *Manager) Range(fn func(p *Peer) bool) {
	m.mu.RLock()
	snapshot := make([]*Peer, 0, len(m.peers))
	for _, p := range m.peers {
		snapshot = append(snapshot, p)
	}
	m.mu.RUnlock()

	for _, p := range snapshot {
		if !fn(p) {
			return
		}
	}
}
