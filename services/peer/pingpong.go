package peer

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/bsv-blockchain/fullnode/errors"
	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/bsv-blockchain/fullnode/ulogger"
	"github.com/looplab/fsm"
)

const (
	pingStateIdle         = "idle"
	pingStateAwaitingPong = "awaitingPong"
	pingStateTimedOut     = "timedOut"

	pingEventSent     = "sent"
	pingEventReceived = "received"
	pingEventTimeout  = "timeout"
	pingEventReset    = "reset"
)

// PingPongConfig tunes the liveness behavior's cadence.
type PingPongConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

func (c *PingPongConfig) setDefaults() {
	if c.Interval == 0 {
		c.Interval = 2 * time.Minute
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// PingPongBehavior is the liveness behavior (§9 design note): it sends a
// ping on a schedule, expects the matching pong's nonce back within a
// timeout, and disconnects the peer if one doesn't arrive. One instance per
// peer, its own small FSM, no reference back to any manager.
type PingPongBehavior struct {
	NoopBehavior

	cfg PingPongConfig
	log ulogger.Logger

	mu         sync.Mutex
	fsm        *fsm.FSM
	nonce      uint64
	lastPingAt time.Time
}

// NewPingPongBehavior constructs a ping-pong behavior.
func NewPingPongBehavior(cfg PingPongConfig, log ulogger.Logger) *PingPongBehavior {
	cfg.setDefaults()
	b := &PingPongBehavior{cfg: cfg, log: log}
	b.fsm = fsm.NewFSM(
		pingStateIdle,
		fsm.Events{
			{Name: pingEventSent, Src: []string{pingStateIdle}, Dst: pingStateAwaitingPong},
			{Name: pingEventReceived, Src: []string{pingStateAwaitingPong}, Dst: pingStateIdle},
			{Name: pingEventTimeout, Src: []string{pingStateAwaitingPong}, Dst: pingStateTimedOut},
			{Name: pingEventReset, Src: []string{pingStateTimedOut, pingStateAwaitingPong}, Dst: pingStateIdle},
		},
		fsm.Callbacks{},
	)
	return b
}

// OnMessage answers a ping immediately and clears the outstanding-pong wait
// when its nonce matches the most recently sent ping.
func (b *PingPongBehavior) OnMessage(p *Peer, msg wire.Message) {
	switch m := msg.(type) {
	case *wire.MsgPing:
		_ = p.Send(&wire.MsgPong{Nonce: m.Nonce})
	case *wire.MsgPong:
		b.mu.Lock()
		if b.fsm.Current() == pingStateAwaitingPong && m.Nonce == b.nonce {
			_ = b.fsm.Event(context.Background(), pingEventReceived)
		}
		b.mu.Unlock()
	}
}

// CheckLiveness is the behavior's only timed entry point: it sends a fresh
// ping if the interval has elapsed, or disconnects the peer if the previous
// one never got a matching pong within the timeout. Pings are sent only when
// something calls it; services/connmgr attaches this behavior but does not
// call CheckLiveness, so its peers answer pings without sending any.
func (b *PingPongBehavior) CheckLiveness(p *Peer, now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.fsm.Current() {
	case pingStateAwaitingPong:
		if now.Sub(b.lastPingAt) >= b.cfg.Timeout {
			_ = b.fsm.Event(context.Background(), pingEventTimeout)
			p.Disconnect("ping timeout")
			return errors.NewTimeoutError("peer %d: no pong within %s", p.ID(), b.cfg.Timeout)
		}
		return nil
	case pingStateTimedOut:
		return nil
	default:
		if now.Sub(b.lastPingAt) < b.cfg.Interval {
			return nil
		}
		b.nonce = rand.Uint64()
		b.lastPingAt = now
		if err := p.Send(&wire.MsgPing{Nonce: b.nonce}); err != nil {
			return err
		}
		return b.fsm.Event(context.Background(), pingEventSent)
	}
}
