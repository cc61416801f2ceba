package connmgr_test

import (
	"net"
	"testing"
	"time"

	"github.com/bsv-blockchain/fullnode/pkg/chaincfg"
	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/bsv-blockchain/fullnode/services/connmgr"
	"github.com/stretchr/testify/require"
)

func TestSeedFromDNSDeliversAddressesPerSeed(t *testing.T) {
	params := &chaincfg.Params{
		DefaultPort: "8333",
		DNSSeeds: []chaincfg.DNSSeed{
			{Host: "seed-a.example"},
			{Host: "seed-b.example"},
		},
	}

	lookup := func(host string) ([]net.IP, error) {
		switch host {
		case "seed-a.example":
			return []net.IP{net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.2")}, nil
		case "seed-b.example":
			return nil, nil
		default:
			return nil, nil
		}
	}

	results := make(chan []*wire.NetAddress, 2)
	connmgr.SeedFromDNS(params, lookup, func(addrs []*wire.NetAddress) {
		results <- addrs
	})

	select {
	case addrs := <-results:
		require.Len(t, addrs, 2)
		require.Equal(t, uint16(8333), addrs[0].Port)
	case <-time.After(time.Second):
		t.Fatal("expected a seed callback")
	}
}

func TestFormatEndpointJoinsHostAndPort(t *testing.T) {
	require.Equal(t, "1.2.3.4:8333", connmgr.FormatEndpoint(net.ParseIP("1.2.3.4"), 8333))
}
