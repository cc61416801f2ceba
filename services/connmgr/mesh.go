// Package connmgr implements the Connection Manager and Peer Discovery
// component (§2, 15%+8% share; §4.5). This file is the supplementary
// gossip mesh (SPEC_FULL.md §4.5.1): a libp2p host running a Kademlia DHT
// for discovery and a gossipsub topic for block/tx announcement fan-out,
// alongside (never instead of) the wire-protocol connections the rest of
// this package manages. Adapted from the teacher's util/p2p.P2PNode, the
// same DHT-bootstrap-then-advertise/discover shape trimmed to one topic and
// without the private-PSK-network and static-peer variants Teranode's
// deployment needs but this tree doesn't.
package connmgr

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/bsv-blockchain/fullnode/errors"
	"github.com/bsv-blockchain/fullnode/ulogger"
	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	dRouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	dUtil "github.com/libp2p/go-libp2p/p2p/discovery/util"
)

// announceTopic is the single gossipsub topic the mesh advertises and
// discovers peers through; block/tx announcements ride it as opaque bytes,
// the actual transfer always happens over the wire-protocol connection.
const announceTopic = "fullnode/announce/1.0.0"

// MeshConfig tunes the supplementary discovery mesh.
type MeshConfig struct {
	ListenIP   string
	ListenPort int
}

func (c *MeshConfig) setDefaults() {
	if c.ListenIP == "" {
		c.ListenIP = "0.0.0.0"
	}
	if c.ListenPort == 0 {
		c.ListenPort = 9333
	}
}

// Mesh is the libp2p DHT+pubsub discovery mesh. It never substitutes for the
// wire-protocol handshake; AnnouncementHandler is the only thing callers
// hang real logic off of.
type Mesh struct {
	cfg  MeshConfig
	log  ulogger.Logger
	host host.Host
	ps   *pubsub.PubSub
	top  *pubsub.Topic

	mu      sync.Mutex
	handler func(from string, data []byte)
}

// NewMesh creates the libp2p host only; Start joins the announcement topic
// and begins discovery.
func NewMesh(cfg MeshConfig, log ulogger.Logger) (*Mesh, error) {
	cfg.setDefaults()

	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, errors.NewServiceError("connmgr: generating libp2p identity", err)
	}

	h, err := libp2p.New(
		libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/%s/tcp/%d", cfg.ListenIP, cfg.ListenPort)),
		libp2p.Identity(priv),
	)
	if err != nil {
		return nil, errors.NewServiceError("connmgr: creating libp2p host", err)
	}

	return &Mesh{cfg: cfg, log: log, host: h}, nil
}

// OnAnnouncement registers the callback invoked for every message received
// on the announcement topic.
func (m *Mesh) OnAnnouncement(fn func(from string, data []byte)) {
	m.mu.Lock()
	m.handler = fn
	m.mu.Unlock()
}

// Publish fans data out to every mesh peer subscribed to the announcement
// topic.
func (m *Mesh) Publish(ctx context.Context, data []byte) error {
	if m.top == nil {
		return errors.NewInvalidStateError("connmgr: mesh not started")
	}
	if err := m.top.Publish(ctx, data); err != nil {
		return errors.NewServiceError("connmgr: publishing to mesh", err)
	}
	return nil
}

// Start joins the gossipsub topic, begins DHT bootstrap/discovery, and runs
// until ctx is canceled.
func (m *Mesh) Start(ctx context.Context) error {
	ps, err := pubsub.NewGossipSub(ctx, m.host)
	if err != nil {
		return errors.NewServiceError("connmgr: creating gossipsub", err)
	}
	topic, err := ps.Join(announceTopic)
	if err != nil {
		return errors.NewServiceError("connmgr: joining announce topic", err)
	}
	m.ps, m.top = ps, topic

	sub, err := topic.Subscribe()
	if err != nil {
		return errors.NewServiceError("connmgr: subscribing to announce topic", err)
	}

	go m.readLoop(ctx, sub)
	go m.discoverLoop(ctx)

	return nil
}

func (m *Mesh) readLoop(ctx context.Context, sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return // ctx canceled or subscription torn down
		}
		m.mu.Lock()
		handler := m.handler
		m.mu.Unlock()
		if handler != nil {
			handler(msg.ReceivedFrom.String(), msg.Data)
		}
	}
}

func (m *Mesh) discoverLoop(ctx context.Context) {
	kademliaDHT, err := m.bootstrapDHT(ctx)
	if err != nil {
		if m.log != nil {
			m.log.Errorf("connmgr: mesh DHT bootstrap failed: %v", err)
		}
		return
	}

	routingDiscovery := dRouting.NewRoutingDiscovery(kademliaDHT)
	dUtil.Advertise(ctx, routingDiscovery, announceTopic)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		addrs, err := routingDiscovery.FindPeers(ctx, announceTopic)
		if err != nil {
			if m.log != nil {
				m.log.Warnf("connmgr: mesh peer discovery: %v", err)
			}
			time.Sleep(5 * time.Second)
			continue
		}

		for addr := range addrs {
			if addr.ID == m.host.ID() {
				continue
			}
			if m.host.Network().Connectedness(addr.ID) == network.Connected {
				continue
			}
			go m.connectDiscovered(ctx, addr)
		}

		time.Sleep(5 * time.Second)
	}
}

func (m *Mesh) connectDiscovered(ctx context.Context, addr peer.AddrInfo) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := m.host.Connect(dialCtx, addr); err != nil && m.log != nil {
		m.log.Debugf("connmgr: mesh connect to %s failed: %v", addr.ID, err)
	}
}

func (m *Mesh) bootstrapDHT(ctx context.Context) (*dht.IpfsDHT, error) {
	kademliaDHT, err := dht.New(ctx, m.host, dht.Mode(dht.ModeAutoServer))
	if err != nil {
		return nil, errors.NewServiceError("connmgr: creating DHT", err)
	}
	if err := kademliaDHT.Bootstrap(ctx); err != nil {
		return nil, errors.NewServiceError("connmgr: bootstrapping DHT", err)
	}

	var wg sync.WaitGroup
	for _, addr := range dht.DefaultBootstrapPeers {
		peerInfo, err := peer.AddrInfoFromP2pAddr(addr)
		if err != nil {
			continue
		}
		wg.Add(1)
		go func(pi peer.AddrInfo) {
			defer wg.Done()
			_ = m.host.Connect(ctx, pi)
		}(*peerInfo)
	}
	wg.Wait()

	return kademliaDHT, nil
}

// Close shuts down the libp2p host.
func (m *Mesh) Close() error {
	return m.host.Close()
}
