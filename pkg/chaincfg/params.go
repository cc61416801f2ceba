// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chaincfg defines the network parameters (magic bytes, genesis
// header, checkpoints, address-encoding magics) for each network the node
// can join. Adapted from the teacher's pkg/go-chaincfg/params.go, trimmed to
// the fields the Block Puller, Block Store, Coinview and Address Indexer
// actually consume — BIP0009 deployment voting and BIP32 HD-key magics are
// dropped since no component in this tree derives wallet keys or tallies
// soft-fork votes.
package chaincfg

import (
	"fmt"
	"math/big"
	"time"

	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/ordishs/gocore"
)

// bigOne is 1 represented as a big.Int, defined once to avoid recreating it.
var bigOne = big.NewInt(1)

var (
	mainPowLimit       = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 224), bigOne)
	regressionPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 255), bigOne)
	testNetPowLimit    = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 224), bigOne)
)

// Checkpoint pins a known-good (height, hash) pair that header validation
// never needs to reorg past.
type Checkpoint struct {
	Height int32
	Hash   *chainhash.Hash
}

// DNSSeed identifies a DNS seed used by the Connection Manager's discovery
// path when the address book is empty.
type DNSSeed struct {
	Host         string
	HasFiltering bool
}

// GenesisHeader carries the raw header fields of a network's first block,
// kept separate from the model package's ChainedHeader to avoid chaincfg
// depending upward on model.
type GenesisHeader struct {
	Version    int32
	MerkleRoot *chainhash.Hash
	Timestamp  time.Time
	Bits       uint32
	Nonce      uint32
}

// Params defines the network parameters for one Bitcoin-family network.
type Params struct {
	Name        string
	Net         uint32 // magic bytes identifying the network on the wire
	DefaultPort string
	DNSSeeds    []DNSSeed

	Genesis     GenesisHeader
	GenesisHash *chainhash.Hash

	PowLimit     *big.Int
	PowLimitBits uint32

	// Heights at which historical BSV-specific forks activated.
	UahfForkHeight          uint32
	DaaForkHeight           uint32
	GenesisActivationHeight uint32

	CoinbaseMaturity         uint16
	MaxCoinbaseScriptSigSize uint32
	SubsidyReductionInterval uint32

	TargetTimePerBlock       time.Duration
	RetargetAdjustmentFactor int64
	ReduceMinDifficulty      bool
	NoDifficultyAdjustment   bool
	MinDiffReductionTime     time.Duration

	// Checkpoints ordered from oldest to newest.
	Checkpoints []Checkpoint

	RelayNonStdTxs bool

	// Address encoding magics, consumed by the Address Indexer when
	// rendering a locking script's script-hash as a human-readable address.
	LegacyPubKeyHashAddrID byte
	LegacyScriptHashAddrID byte
	PrivateKeyID           byte
}

// MainNetParams are the parameters for the main BSV network.
var MainNetParams = Params{
	Name:        "mainnet",
	Net:         0xe3e1f3e8,
	DefaultPort: "8333",
	DNSSeeds: []DNSSeed{
		{Host: "seed.bitcoinsv.io", HasFiltering: true},
	},

	Genesis: GenesisHeader{
		Version:    1,
		MerkleRoot: newHashFromStr("03ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa4b1e5e4"),
		Timestamp:  time.Unix(1231006505, 0),
		Bits:       0x1d00ffff,
		Nonce:      2083236893,
	},
	GenesisHash: newHashFromStr("0000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26"),

	PowLimit:     mainPowLimit,
	PowLimitBits: 0x1d00ffff,

	UahfForkHeight:          478558,
	DaaForkHeight:           504031,
	GenesisActivationHeight: 620538,

	MaxCoinbaseScriptSigSize: 100,
	CoinbaseMaturity:         100,
	SubsidyReductionInterval: 210000,
	TargetTimePerBlock:       10 * time.Minute,
	RetargetAdjustmentFactor: 4,

	Checkpoints: []Checkpoint{
		{Height: 11111, Hash: newHashFromStr("0000000069e244f73d78e8fd29ba2fd2ed618bd6fa2ee92559f542fdb26e7c1d")},
		{Height: 105000, Hash: newHashFromStr("00000000000291ce28027faea320c8d2b054b2e0fe44a773f3eefb151d6bdc97")},
		{Height: 210000, Hash: newHashFromStr("000000000000048b95347e83192f69cf0366076336c639f9b7228e9ba171342e")},
		{Height: 400000, Hash: newHashFromStr("000000000000000004ec466ce4732fe6f1ed1cddc2ed4b328fff5224276e3f6f")},
		{Height: 600000, Hash: newHashFromStr("00000000000000000866448ef293f900812d4af8e08cbe7ef62888eee9d29c4c")},
		{Height: 800000, Hash: newHashFromStr("000000000000000000ad9056924410005d91b57f100bce345944e5caf56e8565")},
	},

	RelayNonStdTxs: false,

	LegacyPubKeyHashAddrID: 0x00,
	LegacyScriptHashAddrID: 0x05,
	PrivateKeyID:           0x80,
}

// TestNetParams are the parameters for the public BSV test network.
var TestNetParams = Params{
	Name:        "testnet",
	Net:         0xf4e5f3f4,
	DefaultPort: "18333",
	DNSSeeds: []DNSSeed{
		{Host: "testnet-seed.bitcoinsv.io", HasFiltering: true},
	},

	Genesis: GenesisHeader{
		Version:    1,
		MerkleRoot: newHashFromStr("03ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa4b1e5e4"),
		Timestamp:  time.Unix(1296688602, 0),
		Bits:       0x1d00ffff,
		Nonce:      414098458,
	},
	GenesisHash: newHashFromStr("00000000000933ea01ad0ee984209779baaec3ced90fa3f408719526f8d77f49"),

	PowLimit:     testNetPowLimit,
	PowLimitBits: 0x1d00ffff,

	UahfForkHeight:          1155875,
	DaaForkHeight:           1188697,
	GenesisActivationHeight: 1344302,

	MaxCoinbaseScriptSigSize: 100,
	CoinbaseMaturity:         100,
	SubsidyReductionInterval: 210000,
	TargetTimePerBlock:       10 * time.Minute,
	RetargetAdjustmentFactor: 4,
	ReduceMinDifficulty:      true,
	MinDiffReductionTime:     20 * time.Minute,

	RelayNonStdTxs: true,

	LegacyPubKeyHashAddrID: 0x6f,
	LegacyScriptHashAddrID: 0xc4,
	PrivateKeyID:           0xef,
}

// RegressionNetParams are the parameters for a private regression-test
// network, the network used by this tree's own integration tests.
var RegressionNetParams = Params{
	Name:        "regtest",
	Net:         0xdab5bffa,
	DefaultPort: "18444",

	Genesis: GenesisHeader{
		Version:    1,
		MerkleRoot: newHashFromStr("03ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa4b1e5e4"),
		Timestamp:  time.Unix(1296688602, 0),
		Bits:       0x207fffff,
		Nonce:      2,
	},
	GenesisHash: newHashFromStr("0f9188f13cb7b2c71f2a335e3a4fc328bf5beb436012afca590b1a11466e2206"),

	PowLimit:     regressionPowLimit,
	PowLimitBits: 0x207fffff,

	GenesisActivationHeight: 10000,

	MaxCoinbaseScriptSigSize: 100,
	CoinbaseMaturity:         100,
	SubsidyReductionInterval: 150,
	TargetTimePerBlock:       10 * time.Minute,
	RetargetAdjustmentFactor: 4,
	ReduceMinDifficulty:      true,
	NoDifficultyAdjustment:   true,
	MinDiffReductionTime:     20 * time.Minute,

	RelayNonStdTxs: true,

	LegacyPubKeyHashAddrID: 0x6f,
	LegacyScriptHashAddrID: 0xc4,
	PrivateKeyID:           0xef,
}

// newHashFromStr panics on error since it is only ever called with
// hard-coded, known-good hashes.
func newHashFromStr(hexStr string) *chainhash.Hash {
	hash, err := chainhash.NewHashFromStr(hexStr)
	if err != nil {
		panic(err)
	}
	return hash
}

// GetChainParams resolves a network name to its Params.
func GetChainParams(network string) (*Params, error) {
	switch network {
	case "mainnet":
		return &MainNetParams, nil
	case "testnet":
		return &TestNetParams, nil
	case "regtest":
		return &RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("chaincfg: unknown network %q", network)
	}
}

// GetChainParamsFromConfig resolves the network named by the "network"
// gocore config key, defaulting to mainnet.
func GetChainParamsFromConfig() *Params {
	network, _ := gocore.Config().Get("network", "mainnet")
	params, err := GetChainParams(network)
	if err != nil {
		return &MainNetParams
	}
	return params
}
