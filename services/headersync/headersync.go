// Package headersync turns a peer's unsolicited and requested `headers`
// traffic into header-tree growth and Block Puller work, closing the loop
// between the wire protocol and §4.1's "the puller schedules against
// already-known headers" assumption. Grounded on the teacher's
// services/legacy/netsync headers-first dispatch idiom, reimplemented as a
// services/peer.Behavior per §9's design note rather than netsync's
// single-goroutine-per-peer loop.
package headersync

import (
	"github.com/bsv-blockchain/fullnode/model"
	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/bsv-blockchain/fullnode/services/peer"
	"github.com/bsv-blockchain/fullnode/services/puller"
	"github.com/bsv-blockchain/fullnode/ulogger"
	"github.com/libsv/go-bt/v2/chainhash"
)

// Tree is the subset of *stores/headertree.Tree this behavior grows.
type Tree interface {
	Add(header *wire.BlockHeader) (*model.ChainedHeader, error)
	Get(hash chainhash.Hash) (*model.ChainedHeader, bool)
	Best() *model.ChainedHeader
}

// BlockStore receives every block the puller delivers off the back of this
// behavior's download requests.
type BlockStore interface {
	AddToPending(block *model.Block) error
}

// PullerDriver is the subset of *puller.Puller this behavior drives
// directly (distinct from services/peer.TipTracker, which only feeds
// Consensus Coordination's height-based IBD detection).
type PullerDriver interface {
	PeerTipClaimed(peer puller.PeerID, tip *model.ChainedHeader)
	PeerDisconnected(peer puller.PeerID)
	RequestDownload(headers []*model.ChainedHeader, priority puller.Priority, cb puller.Callback)
}

// locatorCap caps how many locator hashes a getheaders request walks back before doubling its stride, matching the standard
// exponential-backoff block locator shape.
const locatorCap = 32

// Behavior is the peer behavior (§9) driving header sync: it requests
// headers once the peer's handshake reports "ready", grows the tree and feeds the puller on every `headers`
// response, and re-requests immediately when a response was full (more
// headers remain past the 2000-header cap).
type Behavior struct {
	peer.NoopBehavior

	tree   Tree
	puller PullerDriver
	store  BlockStore
	log    ulogger.Logger
}

// New constructs a headers-sync behavior.
func New(tree Tree, pullerDriver PullerDriver, store BlockStore, log ulogger.Logger) *Behavior {
	return &Behavior{tree: tree, puller: pullerDriver, store: store, log: log}
}

// OnStateChange requests headers from the peer's best-known common
// ancestor with our tip as soon as the handshake behavior reports "ready"
// (services/peer.ConnectionManager's public state-change contract — other
// behaviors learn the handshake completed without referencing it
// directly).
func (b *Behavior) OnStateChange(p *peer.Peer, state string) {
	if state != "ready" {
		return
	}
	if err := p.Send(b.buildGetHeaders()); err != nil && b.log != nil {
		b.log.Debugf("headersync: sending getheaders to %s: %v", p.Endpoint(), err)
	}
}

// OnMessage grows the header tree from every `headers` response, feeds the
// puller the peer's new claimed tip and a download job for the headers it
// just learned, and asks for more if the response was a full batch.
func (b *Behavior) OnMessage(p *peer.Peer, msg wire.Message) {
	headersMsg, ok := msg.(*wire.MsgHeaders)
	if !ok {
		return
	}
	if len(headersMsg.Headers) == 0 {
		return
	}

	added := make([]*model.ChainedHeader, 0, len(headersMsg.Headers))
	for _, h := range headersMsg.Headers {
		ch, err := b.tree.Add(h)
		if err != nil {
			if b.log != nil {
				b.log.Debugf("headersync: rejecting header from %s: %v", p.Endpoint(), err)
			}
			continue
		}
		added = append(added, ch)
	}

	if len(added) > 0 && b.puller != nil {
		b.puller.PeerTipClaimed(p.ID().PullerID(), added[len(added)-1])
		b.puller.RequestDownload(added, puller.PriorityNormal, b.deliverBlock)
	}

	if len(headersMsg.Headers) == wire.MaxHeadersPerMsg {
		if err := p.Send(b.buildGetHeaders()); err != nil && b.log != nil {
			b.log.Debugf("headersync: requesting next batch from %s: %v", p.Endpoint(), err)
		}
	}
}

// OnDetach releases this peer's standing download assignments.
func (b *Behavior) OnDetach(p *peer.Peer) {
	if b.puller != nil {
		b.puller.PeerDisconnected(p.ID().PullerID())
	}
}

func (b *Behavior) deliverBlock(hash chainhash.Hash, block *model.Block, _ puller.PeerID) {
	if b.store == nil {
		return
	}
	if err := b.store.AddToPending(block); err != nil && b.log != nil {
		b.log.Errorf("headersync: queuing delivered block %s: %v", hash, err)
	}
}

// buildGetHeaders assembles a standard exponential-backoff block locator
// starting from the tree's current best tip.
func (b *Behavior) buildGetHeaders() *wire.MsgGetHeaders {
	msg := &wire.MsgGetHeaders{}

	h := b.tree.Best()
	step := 1
	for h != nil {
		hash := h.Hash()
		if err := msg.AddBlockLocatorHash(&hash); err != nil {
			break
		}
		if len(msg.BlockLocatorHashes) >= locatorCap {
			step *= 2
		}
		for i := 0; i < step && h != nil; i++ {
			h = h.Parent
		}
	}

	return msg
}
