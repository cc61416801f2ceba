package settings_test

import (
	"testing"

	"github.com/bsv-blockchain/fullnode/settings"
	"github.com/stretchr/testify/assert"
)

func TestNewAppliesDefaults(t *testing.T) {
	s := settings.New("regtest")

	assert.Equal(t, "regtest", s.Network)
	assert.Equal(t, "./data", s.DataDir)
	assert.Equal(t, 125, s.P2P.MaxPeers)
	assert.Equal(t, 8, s.ConnMgr.TargetOutbound)
	assert.True(t, s.AddrIndex.Enabled)
	assert.NotNil(t, s.Store.HeadersStoreURL)
	assert.Equal(t, "leveldb", s.Store.HeadersStoreURL.Scheme)
}
