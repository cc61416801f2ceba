package connmgr

import (
	"net"
	"time"

	"github.com/btcsuite/go-socks/socks"
)

// Dialer opens an outbound TCP connection to a peer's endpoint. Implemented
// directly by net.Dialer for plain connections and by socksDialer when a
// SOCKS5 proxy is configured (§4.5.1 "Outbound SOCKS5/proxy dialing").
type Dialer interface {
	Dial(network, addr string) (net.Conn, error)
}

// DialerConfig selects between a direct dialer and a SOCKS5 proxy.
type DialerConfig struct {
	DialTimeout time.Duration
	ProxyAddr   string
	ProxyUser   string
	ProxyPass   string
}

func (c *DialerConfig) setDefaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
}

// NewDialer builds the outbound dialer named by cfg: a plain net.Dialer, or
// a btcsuite/go-socks proxy client when ProxyAddr is set (Tor/SOCKS5
// support).
func NewDialer(cfg DialerConfig) Dialer {
	cfg.setDefaults()

	if cfg.ProxyAddr == "" {
		return &net.Dialer{Timeout: cfg.DialTimeout}
	}

	return &socks.Proxy{
		Addr:     cfg.ProxyAddr,
		Username: cfg.ProxyUser,
		Password: cfg.ProxyPass,
	}
}

// groupKey returns the /16 IPv4 group (or /32 of a v6 address's top 32
// bits) used to enforce "no two outbound connections share a /16" (§4.5
// "IP-range filtering").
func groupKey(ip net.IP) string {
	if v4 := ip.To4(); v4 != nil {
		return net.IPv4(v4[0], v4[1], 0, 0).String()
	}
	v6 := ip.To16()
	if v6 == nil {
		return ip.String()
	}
	return net.IP(v6[:4]).String()
}

// GroupFilter enforces at most one outbound connection per address group
// (§4.5), so a single botnet or hosting provider can't dominate this node's
// outbound slots.
type GroupFilter struct {
	groups map[string]int
}

// NewGroupFilter constructs an empty filter.
func NewGroupFilter() *GroupFilter {
	return &GroupFilter{groups: map[string]int{}}
}

// maxPerGroup bounds how many simultaneous outbound connections one address
// group may hold.
const maxPerGroup = 1

// Allow reports whether ip's group has room for another outbound connection.
func (f *GroupFilter) Allow(ip net.IP) bool {
	return f.groups[groupKey(ip)] < maxPerGroup
}

// Reserve records an outbound connection to ip's group. Callers must only
// call this after Allow returned true.
func (f *GroupFilter) Reserve(ip net.IP) {
	f.groups[groupKey(ip)]++
}

// Release drops one reservation for ip's group, called on disconnect.
func (f *GroupFilter) Release(ip net.IP) {
	k := groupKey(ip)
	if f.groups[k] <= 1 {
		delete(f.groups, k)
		return
	}
	f.groups[k]--
}
