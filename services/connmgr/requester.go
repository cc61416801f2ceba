package connmgr

import (
	"strconv"

	"github.com/bsv-blockchain/fullnode/errors"
	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/bsv-blockchain/fullnode/services/peer"
	"github.com/bsv-blockchain/fullnode/services/puller"
	"github.com/libsv/go-bt/v2/chainhash"
)

// Requester implements puller.Requester over the live peer arena: it turns
// the puller's PeerID back into a peer.ID (the inverse of peer.ID.PullerID)
// and sends a getdata for the requested hashes on that peer's connection.
type Requester struct {
	peers *peer.Manager
}

// NewRequester constructs a Requester dispatching against peers.
func NewRequester(peers *peer.Manager) *Requester {
	return &Requester{peers: peers}
}

// RequestBlocks sends a single getdata listing every hash as a block
// inventory vector (§4.1 "Assignment algorithm" dispatches one request per
// assigned peer per round).
func (r *Requester) RequestBlocks(id puller.PeerID, hashes []chainhash.Hash) error {
	p, ok := r.lookup(id)
	if !ok {
		return errors.NewNotFoundError("connmgr: peer %s is no longer connected", id)
	}

	msg := &wire.MsgGetData{}
	for i := range hashes {
		if err := msg.AddInvVect(&wire.InvVect{Type: wire.InvTypeBlock, Hash: hashes[i]}); err != nil {
			return errors.NewInvalidArgumentError("connmgr: building getdata", err)
		}
	}
	return p.Send(msg)
}

func (r *Requester) lookup(id puller.PeerID) (*peer.Peer, bool) {
	raw, err := strconv.ParseUint(string(id), 10, 64)
	if err != nil {
		return nil, false
	}
	return r.peers.Get(peer.ID(raw))
}
