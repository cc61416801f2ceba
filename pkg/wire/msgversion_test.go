package wire_test

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/stretchr/testify/require"
)

func TestMsgVersionEncodeDecodeRoundTrip(t *testing.T) {
	v := &wire.MsgVersion{
		ProtocolVersion: 70016,
		Services:        1,
		Timestamp:       time.Unix(1700000000, 0),
		AddrRecv:        wire.NetAddress{Services: 1, IP: net.ParseIP("127.0.0.1"), Port: 8333},
		AddrFrom:        wire.NetAddress{Services: 1, IP: net.ParseIP("127.0.0.1"), Port: 8333},
		Nonce:           123456789,
		UserAgent:       "/fullnode:0.1.0/",
		LastBlock:       700000,
		Relay:           true,
	}

	var buf bytes.Buffer
	require.NoError(t, v.BsvEncode(&buf, 0, wire.BaseEncoding))

	got := &wire.MsgVersion{}
	require.NoError(t, got.Bsvdecode(&buf, 0, wire.BaseEncoding))

	require.Equal(t, v.ProtocolVersion, got.ProtocolVersion)
	require.Equal(t, v.UserAgent, got.UserAgent)
	require.Equal(t, v.Nonce, got.Nonce)
	require.Equal(t, v.LastBlock, got.LastBlock)
	require.True(t, got.Relay)
	require.Equal(t, wire.CmdVersion, v.Command())
}

func TestMsgVersionDecodeToleratesMissingRelay(t *testing.T) {
	v := &wire.MsgVersion{
		ProtocolVersion: 70016,
		AddrRecv:        wire.NetAddress{IP: net.ParseIP("127.0.0.1")},
		AddrFrom:        wire.NetAddress{IP: net.ParseIP("127.0.0.1")},
		UserAgent:       "/fullnode:0.1.0/",
	}

	var full bytes.Buffer
	require.NoError(t, v.BsvEncode(&full, 0, wire.BaseEncoding))

	// Drop the trailing Relay byte to simulate an older peer.
	truncated := full.Bytes()[:full.Len()-1]

	got := &wire.MsgVersion{}
	require.NoError(t, got.Bsvdecode(bytes.NewReader(truncated), 0, wire.BaseEncoding))
	require.True(t, got.Relay)
}
