package connmgr

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bsv-blockchain/fullnode/errors"
	"github.com/bsv-blockchain/fullnode/pkg/chaincfg"
	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/bsv-blockchain/fullnode/services/banmgr"
	"github.com/bsv-blockchain/fullnode/services/eventbus"
	"github.com/bsv-blockchain/fullnode/services/peer"
	"github.com/bsv-blockchain/fullnode/services/puller"
	"github.com/bsv-blockchain/fullnode/ulogger"
	"github.com/bsv-blockchain/fullnode/util/retry"
)

// Config tunes the Connection Manager (§4.5).
type Config struct {
	MaxOutbound     int
	TargetOutbound  int
	MaxInbound      int
	Whitelist       Whitelist
	RetryInterval   time.Duration
	DialRetries     int
	HandshakeConfig peer.HandshakeConfig
	PingPong        peer.PingPongConfig
	BanDuration     time.Duration
	Dialer          DialerConfig
}

func (c *Config) setDefaults() {
	if c.MaxOutbound == 0 {
		c.MaxOutbound = 16
	}
	if c.TargetOutbound == 0 {
		c.TargetOutbound = 8
	}
	if c.MaxInbound == 0 {
		c.MaxInbound = 117
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = 10 * time.Second
	}
	if c.DialRetries == 0 {
		c.DialRetries = 3
	}
	if c.BanDuration == 0 {
		c.BanDuration = 24 * time.Hour
	}
}

// IBDTracker reports whether the node still considers itself in initial
// block download, satisfied by services/consensus.Coordinator.
type IBDTracker interface {
	IsIBD() bool
}

// Manager is the Connection Manager (§2, 15% share; §4.5): it dials outbound
// peers up to a target count, accepts inbound connections, enforces the
// per-group outbound cap and the Ban Registry, and feeds every connected
// peer's wire frames into services/peer's behavior vector.
type Manager struct {
	cfg    Config
	params *chaincfg.Params
	log    ulogger.Logger

	dialer Dialer
	bans   *banmgr.Registry
	peers  *peer.Manager
	book   *peer.AddressBook
	groups *GroupFilter
	bus    *eventbus.EventBus
	tips   peer.TipTracker
	puller peer.BlockRequester
	ibd    IBDTracker

	blockSinkMu sync.RWMutex
	blockSink   func(from puller.PeerID, msg *wire.MsgBlock)

	mu        sync.Mutex
	outbound  int
	inbound   int
	listeners []net.Listener

	extra []peer.Behavior

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Connection Manager. bus/tips/puller may be nil in tests
// that only exercise connection bookkeeping. extraBehaviors is appended to
// every attached peer's behavior vector after the built-in ones (handshake,
// ping/pong, address gossip, ban enforcement, puller bridge) — the process
// wiring's headers-sync behavior is the typical use of this.
func New(cfg Config, params *chaincfg.Params, bans *banmgr.Registry, bus *eventbus.EventBus, tips peer.TipTracker, pullerDriver peer.BlockRequester, log ulogger.Logger, extraBehaviors ...peer.Behavior) *Manager {
	cfg.setDefaults()

	return &Manager{
		cfg:    cfg,
		params: params,
		log:    log,
		dialer: NewDialer(cfg.Dialer),
		bans:   bans,
		peers:  peer.NewManager(),
		book:   peer.NewAddressBook(),
		groups: NewGroupFilter(),
		bus:    bus,
		tips:   tips,
		puller: pullerDriver,
		extra:  extraBehaviors,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Peers returns the peer arena backing this connection manager.
func (m *Manager) Peers() *peer.Manager { return m.peers }

// AddressBook returns the shared, gossip-fed address book.
func (m *Manager) AddressBook() *peer.AddressBook { return m.book }

// SetTipTracker and SetBlockRequester let the process wiring break the
// construction cycle between the Connection Manager (which must exist
// before the Block Puller's Requester can be built, since the requester
// dispatches through this manager's peer arena) and its own collaborators
// (which need a already-constructed Block Puller). Both must be called
// before the first peer attaches; neither is safe to call concurrently with
// Start/Listen/ConnectNode.
func (m *Manager) SetTipTracker(tips peer.TipTracker)           { m.tips = tips }
func (m *Manager) SetBlockRequester(r peer.BlockRequester)      { m.puller = r }
func (m *Manager) AddExtraBehaviors(behaviors ...peer.Behavior) { m.extra = append(m.extra, behaviors...) }

// SetBanRegistry breaks the same construction-order cycle as SetTipTracker:
// the Ban Registry's Disconnector typically closes back over this manager's
// peer arena, so it can only be built once this manager already exists.
func (m *Manager) SetBanRegistry(bans *banmgr.Registry) { m.bans = bans }

// SetIBDTracker breaks the same construction-order cycle as SetTipTracker:
// the Consensus Coordinator is typically built after this manager so it can
// close back over its peer arena. Until called, handleAccepted treats the
// node as not in IBD (no collaborator means no restriction to enforce).
func (m *Manager) SetIBDTracker(ibd IBDTracker) { m.ibd = ibd }

// SetBlockSink registers the callback fed every decoded inbound block (§4.1
// "Actual block delivery comes from the wire-protocol read loop directly").
// Block delivery bypasses services/peer's behavior vector entirely since the
// Block Puller, not a peer behavior, owns matching it to an outstanding
// assignment.
func (m *Manager) SetBlockSink(fn func(from puller.PeerID, msg *wire.MsgBlock)) {
	m.blockSinkMu.Lock()
	m.blockSink = fn
	m.blockSinkMu.Unlock()
}

// Start begins the outbound-connect loop and DNS seeding. Listen must be
// called separately to also accept inbound connections.
func (m *Manager) Start() {
	SeedFromDNS(m.params, LookupIP, m.ingestSeedAddrs)
	go m.connectLoop()
}

// Stop halts the outbound-connect loop and every listener, and disconnects
// every peer.
func (m *Manager) Stop() {
	close(m.stopCh)
	<-m.doneCh

	m.mu.Lock()
	listeners := m.listeners
	m.listeners = nil
	m.mu.Unlock()

	for _, l := range listeners {
		_ = l.Close()
	}

	m.peers.Range(func(p *peer.Peer) bool {
		m.peers.Remove(p.ID())
		return true
	})
}

func (m *Manager) ingestSeedAddrs(addrs []*wire.NetAddress) {
	for _, na := range addrs {
		m.book.Add(*na)
	}
}

// Listen accepts inbound connections on addr until Stop is called, returning
// the bound address (useful when addr's port is "0").
func (m *Manager) Listen(addr string) (net.Addr, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.NewNetworkError("connmgr: listening on %s", addr, err)
	}

	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()

	go m.acceptLoop(l)
	return l.Addr(), nil
}

func (m *Manager) acceptLoop(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			return // listener closed by Stop
		}
		m.handleAccepted(conn)
	}
}

func (m *Manager) handleAccepted(conn net.Conn) {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		_ = conn.Close()
		return
	}
	endpoint := banmgr.Endpoint(conn.RemoteAddr().String())

	if m.bans != nil && m.bans.IsBanned(endpoint) {
		_ = conn.Close()
		return
	}

	// During initial block download, only whitelisted endpoints may connect
	// inbound (§4.5, scenario S5 "Non-Whitelisted endpoint during IBD"): an
	// unauthenticated flood of inbound peers can't yet be scored on chain-relay
	// behavior while the node is still catching up.
	if m.ibd != nil && m.ibd.IsIBD() && !m.cfg.Whitelist.Allows(host) {
		m.rejectAccepted(conn, endpoint, "Non-Whitelisted endpoint during IBD")
		return
	}

	m.mu.Lock()
	atCeiling := m.inbound >= m.cfg.MaxInbound
	m.mu.Unlock()
	if atCeiling {
		m.rejectAccepted(conn, endpoint, "inbound connection ceiling reached")
		return
	}

	// Inbound connections share the same per-group cap as outbound ones
	// (§4.5 "IP-range filtering" applies to both directions): a single
	// address group flooding inbound slots is rejected the same way a
	// flood of outbound dials to it would be.
	ip := net.ParseIP(host)
	if ip != nil && m.groups != nil {
		if !m.groups.Allow(ip) {
			_ = conn.Close()
			return
		}
		m.groups.Reserve(ip)
	}

	m.attachPeer(conn, endpoint, true)
}

// rejectAccepted closes a just-accepted inbound connection without attaching
// it, publishing PeerConnectionAttemptFailed so the process's stats surface
// and the eventbus's other subscribers can observe the rejection (§4.5 S5).
func (m *Manager) rejectAccepted(conn net.Conn, endpoint banmgr.Endpoint, reason string) {
	_ = conn.Close()
	if m.bus != nil {
		m.bus.Publish(eventbus.Event{Kind: eventbus.PeerConnectionAttemptFailed, Endpoint: string(endpoint), Reason: reason})
	}
}

// ConnectNode dials a single peer by address immediately, bypassing the
// target-outbound pacing (§4.5 "connect-node" manual connector).
func (m *Manager) ConnectNode(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return errors.NewInvalidArgumentError("connmgr: invalid address %s", addr, err)
	}

	endpoint := banmgr.Endpoint(addr)
	if m.bans != nil && m.bans.IsBanned(endpoint) {
		return errors.NewPeerMisbehaviorError("connmgr: %s is banned", addr)
	}

	ip := net.ParseIP(host)
	if ip != nil && m.groups != nil && !m.groups.Allow(ip) {
		return errors.NewInvalidStateError("connmgr: address group for %s already at capacity", addr)
	}

	var conn net.Conn
	dialErr := retry.Do(context.Background(), func() error {
		var dialErr error
		conn, dialErr = m.dialer.Dial("tcp", addr)
		return dialErr
	}, retry.WithRetryCount(m.cfg.DialRetries), retry.WithExponentialBackoff(), retry.WithMaxBackoff(m.cfg.RetryInterval), retry.WithMessage(fmt.Sprintf("connmgr: dialing %s, ", addr)), retry.WithLogger(m.log))
	if dialErr != nil {
		return errors.NewNetworkError("connmgr: dialing %s", addr, dialErr)
	}

	if ip != nil && m.groups != nil {
		m.groups.Reserve(ip)
	}
	m.mu.Lock()
	m.outbound++
	m.mu.Unlock()

	m.attachPeer(conn, endpoint, false)
	return nil
}

func (m *Manager) connectLoop() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.fillOutbound()
		}
	}
}

func (m *Manager) fillOutbound() {
	m.mu.Lock()
	need := m.cfg.TargetOutbound - m.outbound
	m.mu.Unlock()

	if need <= 0 {
		return
	}

	for _, na := range m.book.Sample(need * 4) {
		if need <= 0 {
			return
		}
		if na.IP == nil {
			continue
		}
		if m.groups != nil && !m.groups.Allow(na.IP) {
			continue
		}

		addr := FormatEndpoint(na.IP, na.Port)
		if err := m.ConnectNode(addr); err != nil {
			if m.log != nil {
				m.log.Debugf("connmgr: outbound dial to %s failed: %v", addr, err)
			}
			continue
		}
		need--
	}
}

func (m *Manager) attachPeer(conn net.Conn, endpoint banmgr.Endpoint, inbound bool) {
	sender := newWireSender(conn, m.params.Net, uint32(m.cfg.HandshakeConfig.ProtocolVersion))

	if inbound {
		m.mu.Lock()
		m.inbound++
		m.mu.Unlock()
	}

	behaviors := []peer.Behavior{
		peer.NewConnectionManager(m.cfg.HandshakeConfig),
		peer.NewPingPongBehavior(m.cfg.PingPong, m.log),
		peer.NewAddressManager(m.book, 256),
	}
	if m.bans != nil {
		behaviors = append(behaviors, peer.NewBanEnforcement(m.bans, m.cfg.BanDuration))
	}
	if m.tips != nil || m.puller != nil {
		behaviors = append(behaviors, peer.NewPullerBridge(m.tips, m.puller))
	}
	behaviors = append(behaviors, m.extra...)

	p := m.peers.Add(endpoint, sender, behaviors...)

	if m.bus != nil {
		m.bus.Publish(eventbus.Event{Kind: eventbus.PeerConnected})
	}

	go m.readLoop(p, sender, conn, inbound)
}

func (m *Manager) readLoop(p *peer.Peer, sender *wireSender, conn net.Conn, inbound bool) {
	defer func() {
		m.peers.Remove(p.ID())
		_ = conn.Close()

		host, _, err := net.SplitHostPort(string(p.Endpoint()))
		if err == nil {
			if ip := net.ParseIP(host); ip != nil && m.groups != nil {
				m.groups.Release(ip)
			}
		}

		m.mu.Lock()
		if inbound {
			if m.inbound > 0 {
				m.inbound--
			}
		} else if m.outbound > 0 {
			m.outbound--
		}
		m.mu.Unlock()

		if m.bus != nil {
			m.bus.Publish(eventbus.Event{Kind: eventbus.PeerDisconnected})
		}
	}()

	for {
		msg, err := wire.ReadMessage(conn, uint32(m.cfg.HandshakeConfig.ProtocolVersion), m.params.Net, wire.MakeEmptyMessage)
		if err != nil {
			return
		}

		if blockMsg, ok := msg.(*wire.MsgBlock); ok {
			m.blockSinkMu.RLock()
			sink := m.blockSink
			m.blockSinkMu.RUnlock()
			if sink != nil {
				sink(p.ID().PullerID(), blockMsg)
			}
			continue
		}

		p.HandleMessage(msg)
	}
}

// wireSender implements peer.Sender over a raw net.Conn using this tree's
// own pkg/wire framing.
type wireSender struct {
	conn  net.Conn
	magic uint32
	pver  uint32
	mu    sync.Mutex
}

func newWireSender(conn net.Conn, magic, pver uint32) *wireSender {
	return &wireSender{conn: conn, magic: magic, pver: pver}
}

func (s *wireSender) Send(msg wire.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return wire.WriteMessage(s.conn, msg, s.pver, s.magic)
}

func (s *wireSender) Disconnect(_ string) {
	_ = s.conn.Close()
}
