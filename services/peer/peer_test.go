package peer_test

import (
	"testing"
	"time"

	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/bsv-blockchain/fullnode/services/banmgr"
	"github.com/bsv-blockchain/fullnode/services/peer"
	"github.com/bsv-blockchain/fullnode/services/puller"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent         []wire.Message
	disconnected bool
	reason       string
}

func (s *fakeSender) Send(msg wire.Message) error {
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) Disconnect(reason string) {
	s.disconnected = true
	s.reason = reason
}

func TestManagerAddAttachesAndAssignsIDs(t *testing.T) {
	m := peer.NewManager()
	s1, s2 := &fakeSender{}, &fakeSender{}

	p1 := m.Add("1.1.1.1:8333", s1)
	p2 := m.Add("2.2.2.2:8333", s2)

	require.NotEqual(t, p1.ID(), p2.ID())
	require.Equal(t, 2, m.Len())

	got, ok := m.Get(p1.ID())
	require.True(t, ok)
	require.Same(t, p1, got)
}

func TestManagerRemoveDetaches(t *testing.T) {
	m := peer.NewManager()
	registry := banmgr.New(nil, banmgr.Config{})
	defer registry.Stop()

	ban := peer.NewBanEnforcement(registry, time.Hour)
	s := &fakeSender{}
	p := m.Add("3.3.3.3:8333", s, ban)

	m.Remove(p.ID())
	require.Equal(t, 0, m.Len())

	_, ok := m.Get(p.ID())
	require.False(t, ok)
}

func TestHandleMessageFansOutInOrder(t *testing.T) {
	m := peer.NewManager()
	addrBook := peer.NewAddressBook()
	am := peer.NewAddressManager(addrBook, 10)

	s := &fakeSender{}
	p := m.Add("4.4.4.4:8333", s, am)

	p.HandleMessage(&wire.MsgAddr{AddrList: []*wire.NetAddress{
		{IP: []byte{9, 9, 9, 9}, Port: 8333, Timestamp: time.Now()},
	}})

	require.Equal(t, 1, addrBook.Len())
}

func TestHandshakeReachesReady(t *testing.T) {
	m := peer.NewManager()
	cm := peer.NewConnectionManager(peer.HandshakeConfig{ProtocolVersion: 70016, UserAgent: "/test:1.0/"})

	s := &fakeSender{}
	p := m.Add("5.5.5.5:8333", s, cm)

	require.Len(t, s.sent, 1)
	_, ok := s.sent[0].(*wire.MsgVersion)
	require.True(t, ok)
	require.Equal(t, "handshaking", p.State())

	p.HandleMessage(&wire.MsgVerAck{})
	require.Equal(t, "ready", p.State())
}

func TestPingPongSendsAndReceivesPong(t *testing.T) {
	pp := peer.NewPingPongBehavior(peer.PingPongConfig{Interval: time.Millisecond, Timeout: time.Second}, nil)
	m := peer.NewManager()
	s := &fakeSender{}
	p := m.Add("6.6.6.6:8333", s, pp)

	now := time.Now()
	require.NoError(t, pp.CheckLiveness(p, now))
	require.Len(t, s.sent, 1)
	ping, ok := s.sent[0].(*wire.MsgPing)
	require.True(t, ok)

	p.HandleMessage(&wire.MsgPong{Nonce: ping.Nonce})
	require.NoError(t, pp.CheckLiveness(p, now.Add(time.Hour)))
	require.False(t, s.disconnected)
}

func TestPingPongDisconnectsOnTimeout(t *testing.T) {
	pp := peer.NewPingPongBehavior(peer.PingPongConfig{Interval: time.Millisecond, Timeout: time.Second}, nil)
	m := peer.NewManager()
	s := &fakeSender{}
	p := m.Add("7.7.7.7:8333", s, pp)

	now := time.Now()
	require.NoError(t, pp.CheckLiveness(p, now))
	err := pp.CheckLiveness(p, now.Add(2*time.Second))
	require.Error(t, err)
	require.True(t, s.disconnected)
}

func TestBanEnforcementBansOnRateLimitViolation(t *testing.T) {
	registry := banmgr.New(nil, banmgr.Config{MessagesPerSecond: 1, MessageBurst: 1})
	defer registry.Stop()

	ban := peer.NewBanEnforcement(registry, time.Hour)
	m := peer.NewManager()
	s := &fakeSender{}
	p := m.Add("8.8.8.8:8333", s, ban)

	p.HandleMessage(&wire.MsgPing{Nonce: 1})
	require.False(t, registry.IsBanned(p.Endpoint()))

	p.HandleMessage(&wire.MsgPing{Nonce: 2})
	require.True(t, registry.IsBanned(p.Endpoint()))
}

type fakeTipTracker struct {
	claimed      map[puller.PeerID]uint32
	disconnected []puller.PeerID
}

func newFakeTipTracker() *fakeTipTracker {
	return &fakeTipTracker{claimed: map[puller.PeerID]uint32{}}
}

func (f *fakeTipTracker) PeerTipClaimed(peer puller.PeerID, height uint32) {
	f.claimed[peer] = height
}

func (f *fakeTipTracker) PeerDisconnected(peer puller.PeerID) {
	f.disconnected = append(f.disconnected, peer)
}

func TestPullerBridgeRecordsClaimedTipAndDisconnect(t *testing.T) {
	tips := newFakeTipTracker()
	bridge := peer.NewPullerBridge(tips, nil)

	m := peer.NewManager()
	s := &fakeSender{}
	p := m.Add("9.9.9.9:8333", s, bridge)

	p.HandleMessage(&wire.MsgVersion{LastBlock: 42})
	require.Equal(t, uint32(42), tips.claimed[p.ID().PullerID()])

	m.Remove(p.ID())
	require.Equal(t, []puller.PeerID{p.ID().PullerID()}, tips.disconnected)
}
