package peer

import (
	"context"
	"time"

	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/looplab/fsm"
)

const (
	connStateConnecting   = "connecting"
	connStateHandshaking  = "handshaking"
	connStateReady        = "ready"
	connStateDisconnected = "disconnected"

	connEventSentVersion = "sentVersion"
	connEventGotVerAck   = "gotVerAck"
	connEventClosed      = "closed"
)

// HandshakeConfig carries the fields advertised in this node's own version
// message.
type HandshakeConfig struct {
	ProtocolVersion int32
	Services        uint64
	UserAgent       string
	StartHeight     int32
}

// ConnectionManager is the connection-manager behavior (§9 design note): it
// drives the version/verack handshake and reports the resulting top-level
// state through Peer.SetState, so other behaviors (the puller-bridge chief
// among them) learn "ready" without referencing this behavior directly.
type ConnectionManager struct {
	NoopBehavior

	cfg HandshakeConfig
	fsm *fsm.FSM
}

// NewConnectionManager constructs a connection-manager behavior.
func NewConnectionManager(cfg HandshakeConfig) *ConnectionManager {
	c := &ConnectionManager{cfg: cfg}
	c.fsm = fsm.NewFSM(
		connStateConnecting,
		fsm.Events{
			{Name: connEventSentVersion, Src: []string{connStateConnecting}, Dst: connStateHandshaking},
			{Name: connEventGotVerAck, Src: []string{connStateHandshaking}, Dst: connStateReady},
			{Name: connEventClosed, Src: []string{connStateConnecting, connStateHandshaking, connStateReady}, Dst: connStateDisconnected},
		},
		fsm.Callbacks{},
	)
	return c
}

// OnAttach sends this node's version message, starting the handshake.
func (c *ConnectionManager) OnAttach(p *Peer) {
	_ = p.Send(&wire.MsgVersion{
		ProtocolVersion: c.cfg.ProtocolVersion,
		Services:        c.cfg.Services,
		Timestamp:       time.Now(),
		UserAgent:       c.cfg.UserAgent,
		LastBlock:       c.cfg.StartHeight,
		Relay:           true,
	})
	if err := c.fsm.Event(context.Background(), connEventSentVersion); err == nil {
		p.SetState(c.fsm.Current())
	}
}

// OnMessage answers the peer's version with a verack and, once its own
// verack arrives, marks the connection ready.
func (c *ConnectionManager) OnMessage(p *Peer, msg wire.Message) {
	switch msg.(type) {
	case *wire.MsgVersion:
		_ = p.Send(&wire.MsgVerAck{})
	case *wire.MsgVerAck:
		if err := c.fsm.Event(context.Background(), connEventGotVerAck); err == nil {
			p.SetState(c.fsm.Current())
		}
	}
}

// OnDetach marks the connection closed.
func (c *ConnectionManager) OnDetach(p *Peer) {
	if err := c.fsm.Event(context.Background(), connEventClosed); err == nil {
		p.SetState(c.fsm.Current())
	}
}
