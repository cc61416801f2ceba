package peer

import (
	"time"

	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/bsv-blockchain/fullnode/services/banmgr"
)

// BanEnforcement is the ban-enforcement behavior (§9 design note): every
// inbound message is checked against the peer's message-rate limit, and a
// limit violation bans and disconnects the endpoint through the shared Ban
// Registry. It holds no per-peer state of its own — banmgr.Registry already
// keys its limiters and bans by Endpoint.
type BanEnforcement struct {
	NoopBehavior

	registry    *banmgr.Registry
	banDuration time.Duration
}

// NewBanEnforcement constructs a ban-enforcement behavior against the given
// registry. banDuration of zero uses the registry's configured default.
func NewBanEnforcement(registry *banmgr.Registry, banDuration time.Duration) *BanEnforcement {
	return &BanEnforcement{registry: registry, banDuration: banDuration}
}

// OnMessage enforces the per-peer rate limit, banning and disconnecting the
// endpoint the moment it's exceeded.
func (b *BanEnforcement) OnMessage(p *Peer, _ wire.Message) {
	if b.registry.Allow(p.Endpoint()) {
		return
	}
	b.registry.BanAndDisconnect(p.Endpoint(), b.banDuration, "message rate limit exceeded")
}

// OnDetach releases the endpoint's rate-limiter state so the registry's
// limiter map doesn't grow unbounded across the process lifetime.
func (b *BanEnforcement) OnDetach(p *Peer) {
	b.registry.ForgetPeer(p.Endpoint())
}
