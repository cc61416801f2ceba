package peer

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/bsv-blockchain/fullnode/pkg/wire"
)

// AddressBook collects peer endpoints gossiped over the wire (§4.5
// "discovery connectors"), deduplicated by dialable address. It is shared
// across every peer's address-manager behavior rather than owned per-peer,
// since the point of gossip is to pool what every connection has learned.
type AddressBook struct {
	mu      sync.Mutex
	entries map[string]wire.NetAddress
}

// NewAddressBook constructs an empty book.
func NewAddressBook() *AddressBook {
	return &AddressBook{entries: map[string]wire.NetAddress{}}
}

func key(ip net.IP, port uint16) string {
	return net.JoinHostPort(ip.String(), strconv.Itoa(int(port)))
}

// Add records na, overwriting any existing entry for the same address only
// if na is newer.
func (b *AddressBook) Add(na wire.NetAddress) {
	k := key(na.IP, na.Port)

	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.entries[k]; ok && !na.Timestamp.After(existing.Timestamp) {
		return
	}
	b.entries[k] = na
}

// Sample returns up to n addresses for a GETADDR reply, in map-iteration
// order (map iteration order is itself randomized enough for this purpose —
// §4.5 doesn't require cryptographic selection, only variety across
// replies).
func (b *AddressBook) Sample(n int) []*wire.NetAddress {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*wire.NetAddress, 0, n)
	for _, na := range b.entries {
		if len(out) >= n {
			break
		}
		naCopy := na
		out = append(out, &naCopy)
	}
	return out
}

// Len reports how many distinct addresses are known.
func (b *AddressBook) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// AddressManager is the address-manager behavior (§9 design note): it feeds
// every gossiped address into the shared AddressBook and answers GETADDR
// requests from its sample.
type AddressManager struct {
	NoopBehavior

	book       *AddressBook
	sampleSize int
}

// NewAddressManager constructs an address-manager behavior over book.
func NewAddressManager(book *AddressBook, sampleSize int) *AddressManager {
	if sampleSize <= 0 {
		sampleSize = 256
	}
	return &AddressManager{book: book, sampleSize: sampleSize}
}

// OnMessage records addresses from ADDR messages and answers GETADDR with a
// sample of the book.
func (a *AddressManager) OnMessage(p *Peer, msg wire.Message) {
	switch m := msg.(type) {
	case *wire.MsgAddr:
		for _, na := range m.AddrList {
			a.book.Add(*na)
		}
	case *wire.MsgGetAddr:
		reply := &wire.MsgAddr{}
		for _, na := range a.book.Sample(a.sampleSize) {
			_ = reply.AddAddress(na)
		}
		_ = p.Send(reply)
	}
}

// OnAttach records the peer's own endpoint as a freshly-seen address, so a
// successful inbound connection also grows the book.
func (a *AddressManager) OnAttach(p *Peer) {
	host, portStr, err := net.SplitHostPort(string(p.Endpoint()))
	if err != nil {
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return
	}
	a.book.Add(wire.NetAddress{Timestamp: time.Now(), IP: ip, Port: uint16(port)})
}
