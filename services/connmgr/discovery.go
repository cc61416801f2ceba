package connmgr

import (
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"time"

	"github.com/bsv-blockchain/fullnode/pkg/chaincfg"
	"github.com/bsv-blockchain/fullnode/pkg/wire"
)

// secondsIn3Days/secondsIn4Days pick a DNS-seeded address's synthetic
// last-seen time from the same 3-to-7-days-ago window the teacher's
// SeedFromDNS uses, so freshly-seeded addresses don't all look equally new.
const (
	secondsIn3Days = 24 * 60 * 60 * 3
	secondsIn4Days = 24 * 60 * 60 * 4
)

// LookupFunc resolves a DNS seed hostname to a set of IPs; net.LookupIP
// satisfies this in production, tests substitute a fake.
type LookupFunc func(host string) ([]net.IP, error)

// SeedFromDNS resolves every DNS seed named in params and hands each seed's
// discovered addresses to onSeed, one goroutine per seed host so one slow or
// dead seed never blocks the others (§4.5 "DNS/seed loop"). Adapted from the
// teacher's services/legacy/connmgr.SeedFromDNS onto this tree's own
// pkg/chaincfg.Params/pkg/wire.NetAddress rather than the teacher's external
// sibling-module chaincfg/wire packages.
func SeedFromDNS(params *chaincfg.Params, lookup LookupFunc, onSeed func(addrs []*wire.NetAddress)) {
	for _, seed := range params.DNSSeeds {
		go seedOne(params, seed, lookup, onSeed)
	}
}

func seedOne(params *chaincfg.Params, seed chaincfg.DNSSeed, lookup LookupFunc, onSeed func(addrs []*wire.NetAddress)) {
	ips, err := lookup(seed.Host)
	if err != nil || len(ips) == 0 {
		return
	}

	port, err := strconv.Atoi(params.DefaultPort)
	if err != nil {
		return
	}

	addrs := make([]*wire.NetAddress, 0, len(ips))
	for _, ip := range ips {
		offset := time.Duration(secondsIn3Days+rand.Intn(secondsIn4Days)) * time.Second
		addrs = append(addrs, &wire.NetAddress{
			Timestamp: time.Now().Add(-offset),
			IP:        ip,
			Port:      uint16(port),
		})
	}

	onSeed(addrs)
}

// LookupIP is the production LookupFunc, resolving through the system
// resolver.
func LookupIP(host string) ([]net.IP, error) {
	return net.LookupIP(host)
}

// FormatEndpoint renders an IP/port pair as a dialable "host:port" string.
func FormatEndpoint(ip net.IP, port uint16) string {
	return net.JoinHostPort(ip.String(), fmt.Sprintf("%d", port))
}
