package chaincfg_test

import (
	"testing"

	"github.com/bsv-blockchain/fullnode/pkg/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetChainParamsKnownNetworks(t *testing.T) {
	for _, name := range []string{"mainnet", "testnet", "regtest"} {
		params, err := chaincfg.GetChainParams(name)
		require.NoError(t, err)
		assert.Equal(t, name, params.Name)
		assert.NotNil(t, params.GenesisHash)
		assert.NotNil(t, params.Genesis.MerkleRoot)
	}
}

func TestGetChainParamsUnknownNetwork(t *testing.T) {
	_, err := chaincfg.GetChainParams("nonesuch")
	assert.Error(t, err)
}

func TestMainNetCheckpointsOrderedByHeight(t *testing.T) {
	params := chaincfg.MainNetParams
	for i := 1; i < len(params.Checkpoints); i++ {
		assert.Greater(t, params.Checkpoints[i].Height, params.Checkpoints[i-1].Height)
	}
}
