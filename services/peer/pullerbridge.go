package peer

import (
	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/bsv-blockchain/fullnode/services/puller"
)

// TipTracker is the subset of *consensus.Coordinator the puller-bridge
// behavior drives; kept as an interface so peer doesn't import consensus
// (which would make consensus and peer import each other through puller).
type TipTracker interface {
	PeerTipClaimed(peer puller.PeerID, height uint32)
	PeerDisconnected(peer puller.PeerID)
}

// BlockRequester is the subset of *puller.Puller the puller-bridge behavior
// drives directly; RequestBlocks/dispatch stay owned by the puller itself,
// this behavior only reports peer departure.
type BlockRequester interface {
	PeerDisconnected(peer puller.PeerID)
}

// PullerBridge is the puller behavior (§9 design note): it turns a peer's
// version message into a claimed-tip height for Consensus Coordination, and
// turns the peer's departure into both the puller's and the coordinator's
// disconnect bookkeeping. Actual block delivery (PushBlock) comes from the
// wire-protocol read loop directly, since it needs the decoded block, not
// just the message envelope this behavior sees.
type PullerBridge struct {
	NoopBehavior

	tips     TipTracker
	requests BlockRequester
}

// NewPullerBridge constructs a puller-bridge behavior.
func NewPullerBridge(tips TipTracker, requests BlockRequester) *PullerBridge {
	return &PullerBridge{tips: tips, requests: requests}
}

// OnMessage records the peer's claimed tip height from its version message.
func (pb *PullerBridge) OnMessage(p *Peer, msg wire.Message) {
	v, ok := msg.(*wire.MsgVersion)
	if !ok {
		return
	}
	height := v.LastBlock
	if height < 0 {
		height = 0
	}
	if pb.tips != nil {
		pb.tips.PeerTipClaimed(p.ID().PullerID(), uint32(height))
	}
}

// OnDetach releases the peer's claimed tip and in-flight assignments.
func (pb *PullerBridge) OnDetach(p *Peer) {
	id := p.ID().PullerID()
	if pb.tips != nil {
		pb.tips.PeerDisconnected(id)
	}
	if pb.requests != nil {
		pb.requests.PeerDisconnected(id)
	}
}
