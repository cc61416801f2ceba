// Package settings loads the node's typed configuration from gocore's
// key/value config store, grounded on the teacher's pervasive
// gocore.Config().GetInt/GetDuration/Get call sites (see util/sql.go,
// util/p2p/P2PNode.go, services/blockassembly/BlockAssembler.go).
package settings

import (
	"net/url"
	"strconv"
	"time"

	"github.com/ordishs/gocore"
)

// Settings is the root configuration object, threaded explicitly into every
// component constructor rather than read ad-hoc from globals, so a test can
// build one in memory without touching the process's gocore context.
type Settings struct {
	Network     string
	DataDir     string
	LogLevel    string
	ChainParams string

	P2P        P2PSettings
	Puller     PullerSettings
	BlockStore BlockStoreSettings
	Coinview   CoinviewSettings
	AddrIndex  AddrIndexSettings
	ConnMgr    ConnMgrSettings
	Store      StoreSettings
}

type P2PSettings struct {
	ListenAddresses  []string
	UserAgentName    string
	UserAgentVersion string
	MaxPeers         int
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	ProtocolVersion  uint32
}

type PullerSettings struct {
	MaxInFlightPerPeer int
	MaxInFlightTotal   int
	RequestTimeout     time.Duration
	ScoreDecayHalfLife time.Duration
	WindowSize         int
}

type BlockStoreSettings struct {
	BatchMaxBlocks int
	BatchMaxBytes  int64
	FlushInterval  time.Duration
}

type CoinviewSettings struct {
	OutpointCacheSize int
	OutpointCacheTTL  time.Duration
	UndoRetentionDepth uint32
}

type AddrIndexSettings struct {
	Enabled           bool
	CompactionTrigger int
	BloomFalsePositive float64
}

type ConnMgrSettings struct {
	TargetOutbound int
	MaxInbound     int
	Seeds          []string
	DNSSeeds       []string
	BanThreshold   int
	BanDuration    time.Duration
	// Whitelist holds endpoint or CIDR entries (e.g. "203.0.113.7:8333" or
	// "10.0.0.0/8") exempted from the IBD inbound-acceptance check (§4.5).
	Whitelist []string
}

// StoreSettings carries the pluggable-backend URLs, matching the teacher's
// stores/blob.Store factory (URL-scheme-keyed) convention.
type StoreSettings struct {
	HeadersStoreURL   *url.URL
	BlocksStoreURL    *url.URL
	CoinviewStoreURL  *url.URL
	AddrIndexStoreURL *url.URL
}

// New loads Settings from gocore's config context, named after the network
// (e.g. "mainnet", "testnet", "regtest") the way the teacher's gocore
// contexts are keyed by service/environment.
func New(network string) *Settings {
	cfg := gocore.Config()

	s := &Settings{
		Network:     network,
		DataDir:     getString(cfg, "dataDir", "./data"),
		LogLevel:    getString(cfg, "logLevel", "INFO"),
		ChainParams: getString(cfg, "chainParams", network),
	}

	s.P2P = P2PSettings{
		ListenAddresses:  getStringSlice(cfg, "p2p_listenAddresses", []string{"0.0.0.0:8333"}),
		UserAgentName:    getString(cfg, "p2p_userAgentName", "fullnode"),
		UserAgentVersion: getString(cfg, "p2p_userAgentVersion", "0.1.0"),
		MaxPeers:         getInt(cfg, "p2p_maxPeers", 125),
		DialTimeout:      getDuration(cfg, "p2p_dialTimeout", 10*time.Second),
		HandshakeTimeout: getDuration(cfg, "p2p_handshakeTimeout", 30*time.Second),
		PingInterval:     getDuration(cfg, "p2p_pingInterval", 2*time.Minute),
		ProtocolVersion:  uint32(getInt(cfg, "p2p_protocolVersion", 70016)),
	}

	s.Puller = PullerSettings{
		MaxInFlightPerPeer: getInt(cfg, "puller_maxInFlightPerPeer", 16),
		MaxInFlightTotal:   getInt(cfg, "puller_maxInFlightTotal", 128),
		RequestTimeout:     getDuration(cfg, "puller_requestTimeout", 30*time.Second),
		ScoreDecayHalfLife: getDuration(cfg, "puller_scoreDecayHalfLife", 10*time.Minute),
		WindowSize:         getInt(cfg, "puller_windowSize", 1024),
	}

	s.BlockStore = BlockStoreSettings{
		BatchMaxBlocks: getInt(cfg, "blockstore_batchMaxBlocks", 64),
		BatchMaxBytes:  int64(getInt(cfg, "blockstore_batchMaxBytes", 32*1024*1024)),
		FlushInterval:  getDuration(cfg, "blockstore_flushInterval", 1*time.Second),
	}

	s.Coinview = CoinviewSettings{
		OutpointCacheSize:  getInt(cfg, "coinview_outpointCacheSize", 1_000_000),
		OutpointCacheTTL:   getDuration(cfg, "coinview_outpointCacheTTL", 5*time.Minute),
		UndoRetentionDepth: uint32(getInt(cfg, "coinview_undoRetentionDepth", 288)),
	}

	s.AddrIndex = AddrIndexSettings{
		Enabled:            getBool(cfg, "addrindex_enabled", true),
		CompactionTrigger:  getInt(cfg, "addrindex_compactionTrigger", 10000),
		BloomFalsePositive: getFloat(cfg, "addrindex_bloomFalsePositive", 0.01),
	}

	s.ConnMgr = ConnMgrSettings{
		TargetOutbound: getInt(cfg, "connmgr_targetOutbound", 8),
		MaxInbound:     getInt(cfg, "connmgr_maxInbound", 117),
		Seeds:          getStringSlice(cfg, "connmgr_seeds", nil),
		DNSSeeds:       getStringSlice(cfg, "connmgr_dnsSeeds", nil),
		BanThreshold:   getInt(cfg, "connmgr_banThreshold", 100),
		BanDuration:    getDuration(cfg, "connmgr_banDuration", 24*time.Hour),
		Whitelist:      getStringSlice(cfg, "connmgr_whitelist", nil),
	}

	s.Store = StoreSettings{
		HeadersStoreURL:   mustParseURL(getString(cfg, "store_headersURL", "leveldb://./data/headers")),
		BlocksStoreURL:    mustParseURL(getString(cfg, "store_blocksURL", "leveldb://./data/blocks")),
		CoinviewStoreURL:  mustParseURL(getString(cfg, "store_coinviewURL", "leveldb://./data/coinview")),
		AddrIndexStoreURL: mustParseURL(getString(cfg, "store_addrIndexURL", "leveldb://./data/addrindex")),
	}

	return s
}

func getString(cfg *gocore.Context, key, def string) string {
	v, _ := cfg.Get(key, def)
	return v
}

func getInt(cfg *gocore.Context, key string, def int) int {
	v, _ := cfg.GetInt(key, def)
	return v
}

func getBool(cfg *gocore.Context, key string, def bool) bool {
	return cfg.GetBool(key, def)
}

func getDuration(cfg *gocore.Context, key string, def time.Duration) time.Duration {
	v, err, _ := cfg.GetDuration(key, def)
	if err != nil {
		return def
	}
	return v
}

func getFloat(cfg *gocore.Context, key string, def float64) float64 {
	raw, _ := cfg.Get(key, strconv.FormatFloat(def, 'f', -1, 64))
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

func getStringSlice(cfg *gocore.Context, key string, def []string) []string {
	v, _ := cfg.GetMulti(key, "|")
	if len(v) == 0 {
		return def
	}
	return v
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}
