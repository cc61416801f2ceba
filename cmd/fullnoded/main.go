// Command fullnoded wires together the five core components (§2: Block
// Puller, Block Store Queue, Address Indexer, Coinview, Connection
// Manager/Peer Discovery) plus Consensus Coordination and Peer Banning &
// Stats into one running node. Grounded on the teacher's main.go process
// shape: gocore-driven config/logging, a health-check HTTP server, and
// util/servicemanager-owned startup/shutdown order.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/bsv-blockchain/fullnode/addrindex"
	"github.com/bsv-blockchain/fullnode/coinview"
	"github.com/bsv-blockchain/fullnode/pkg/chaincfg"
	"github.com/bsv-blockchain/fullnode/pkg/wire"
	"github.com/bsv-blockchain/fullnode/services/banmgr"
	"github.com/bsv-blockchain/fullnode/services/connmgr"
	"github.com/bsv-blockchain/fullnode/services/consensus"
	"github.com/bsv-blockchain/fullnode/services/eventbus"
	"github.com/bsv-blockchain/fullnode/services/headersync"
	"github.com/bsv-blockchain/fullnode/services/peer"
	"github.com/bsv-blockchain/fullnode/services/puller"
	"github.com/bsv-blockchain/fullnode/settings"
	"github.com/bsv-blockchain/fullnode/stores/blockstore"
	"github.com/bsv-blockchain/fullnode/stores/headertree"
	"github.com/bsv-blockchain/fullnode/stores/kv"
	"github.com/bsv-blockchain/fullnode/ulogger"
	"github.com/bsv-blockchain/fullnode/util/servicemanager"
	"github.com/bsv-blockchain/fullnode/util/tracing"
	"github.com/felixge/fgprof"
	"github.com/olekukonko/tablewriter"
	"github.com/ordishs/gocore"
	sjson "github.com/segmentio/encoding/json"
	"github.com/urfave/cli/v2"
)

const progname = "fullnoded"

var version string
var commit string

func init() {
	gocore.SetInfo(progname, version, commit)
	gocore.Log(progname)
}

func main() {
	app := &cli.App{
		Name:  progname,
		Usage: "a BSV full node: block puller, block store, address indexer, coinview, and peer connection manager",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "network", Value: "mainnet", Usage: "mainnet, testnet, or regtest"},
			&cli.StringFlag{Name: "datadir", Value: "", Usage: "overrides the dataDir config key"},
			&cli.IntFlag{Name: "health-port", Value: 8000, Usage: "health-check HTTP port"},
			&cli.BoolFlag{Name: "connect-node", Usage: "connect to --peer at startup instead of listening for inbound connections; DNS seeding and the outbound dial loop still run"},
			&cli.StringFlag{Name: "peer", Usage: "address to connect to when --connect-node is set"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	network := c.String("network")
	cfg := settings.New(network)
	if dir := c.String("datadir"); dir != "" {
		cfg.DataDir = dir
	}

	log := ulogger.New(progname, cfg.LogLevel)

	tracerCloser, err := tracing.InitGlobalTracer(progname)
	if err != nil {
		log.Warnf("fullnoded: tracer init: %v", err)
	} else {
		defer func() { _ = tracerCloser.Close() }()
	}

	params, err := chaincfg.GetChainParams(cfg.ChainParams)
	if err != nil {
		return fmt.Errorf("fullnoded: resolving chain params for %q: %w", network, err)
	}

	db, err := kv.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("fullnoded: opening data dir %s: %w", cfg.DataDir, err)
	}

	genesisWireHeader := &wire.BlockHeader{
		Version:    params.Genesis.Version,
		MerkleRoot: *params.Genesis.MerkleRoot,
		Timestamp:  params.Genesis.Timestamp,
		Bits:       params.Genesis.Bits,
		Nonce:      params.Genesis.Nonce,
	}

	tree, err := headertree.Open(db, genesisWireHeader)
	if err != nil {
		return fmt.Errorf("fullnoded: opening header tree: %w", err)
	}

	blocks, err := blockstore.NewStore(db, tree, log.New("blockstore"), blockstore.Config{
		FlushThresholdBytes: uint64(cfg.BlockStore.BatchMaxBytes),
		FlushInterval:       cfg.BlockStore.FlushInterval,
	}, false)
	if err != nil {
		return fmt.Errorf("fullnoded: opening block store: %w", err)
	}

	coinviewStore, err := coinview.NewLevelDBStore(db, *params.GenesisHash)
	if err != nil {
		return fmt.Errorf("fullnoded: opening coinview store: %w", err)
	}
	applier := coinview.NewApplier(coinviewStore)

	bus := eventbus.New(log.New("eventbus"))

	mgr := connmgr.New(connmgr.Config{
		TargetOutbound: cfg.ConnMgr.TargetOutbound,
		MaxInbound:     cfg.ConnMgr.MaxInbound,
		Whitelist:      connmgr.Whitelist(cfg.ConnMgr.Whitelist),
		BanDuration:    cfg.ConnMgr.BanDuration,
		HandshakeConfig: peer.HandshakeConfig{
			ProtocolVersion: int32(cfg.P2P.ProtocolVersion),
			UserAgent:       fmt.Sprintf("/%s:%s/", cfg.P2P.UserAgentName, cfg.P2P.UserAgentVersion),
		},
		PingPong: peer.PingPongConfig{Interval: cfg.P2P.PingInterval},
	}, params, nil, bus, nil, nil, log.New("connmgr"))

	bans := banmgr.New(disconnectorFor(mgr), banmgr.Config{
		DefaultBanDuration: cfg.ConnMgr.BanDuration,
	})
	mgr.SetBanRegistry(bans)

	requester := connmgr.NewRequester(mgr.Peers())

	pullerSvc := puller.New(puller.Config{
		MinInFlight: cfg.Puller.MaxInFlightPerPeer,
	}, requester, log.New("puller"))

	coordinator := consensus.New(tree, blocks, bus, pullerSvc, applier, log.New("consensus"), consensus.Config{})

	mgr.SetTipTracker(coordinator)
	mgr.SetBlockRequester(pullerSvc)
	mgr.SetIBDTracker(coordinator)

	hsync := headersync.New(tree, pullerSvc, blocks, log.New("headersync"))
	mgr.AddExtraBehaviors(hsync)

	mgr.SetBlockSink(func(from puller.PeerID, msg *wire.MsgBlock) {
		hash := msg.Header.BlockHash()
		hdr, ok := tree.Get(hash)
		if !ok {
			log.Debugf("fullnoded: dropping block %s from %s, header not yet known", hash, from)
			return
		}
		block, err := blockFromWire(hdr, msg)
		if err != nil {
			log.Errorf("fullnoded: decoding delivered block %s: %v", hash, err)
			return
		}
		pullerSvc.PushBlock(hash, block, from)
	})

	var indexer *addrindex.Indexer
	if cfg.AddrIndex.Enabled {
		repo, err := addrindex.NewRepository(db, cfg.Store.AddrIndexStoreURL)
		if err != nil {
			return fmt.Errorf("fullnoded: opening address index repository: %w", err)
		}
		resolver := addrindex.SDKAddressResolver{Mainnet: network == "mainnet"}
		indexer, err = addrindex.New(tree, blocks, repo, resolver, log.New("addrindex"), addrindex.Config{
			OutPointCacheCapacity:     cfg.AddrIndex.CompactionTrigger,
			CompactionTriggerDistance: uint32(cfg.AddrIndex.CompactionTrigger),
		})
		if err != nil {
			return fmt.Errorf("fullnoded: opening address indexer: %w", err)
		}
	}

	logger, ctx := servicemanager.NewServiceManager(log)

	if err := logger.AddService("BlockStore", blockStoreService{blocks}); err != nil {
		return err
	}
	if err := logger.AddService("Consensus", consensusService{coordinator}); err != nil {
		return err
	}
	if err := logger.AddService("ConnMgr", connMgrService{mgr}); err != nil {
		return err
	}
	if indexer != nil {
		if err := logger.AddService("AddrIndex", addrIndexService{indexer}); err != nil {
			return err
		}
	}

	if c.Bool("connect-node") {
		if addr := c.String("peer"); addr != "" {
			if err := mgr.ConnectNode(addr); err != nil {
				log.Errorf("fullnoded: connecting to %s: %v", addr, err)
			}
		}
	} else {
		if _, err := mgr.Listen(cfg.P2P.ListenAddresses[0]); err != nil {
			log.Warnf("fullnoded: listening on %s: %v", cfg.P2P.ListenAddresses[0], err)
		}
	}

	serveHealth(ctx, logger, bans, c.Int("health-port"))

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Stop(shutdownCtx)
		_ = db.Close()
	}()

	return logger.Wait()
}

func serveHealth(ctx context.Context, sm *servicemanager.ServiceManager, bans *banmgr.Registry, port int) {
	mux := http.NewServeMux()
	handler := func(liveness bool) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			status, details, _ := sm.HealthHandler(ctx, liveness)
			w.WriteHeader(status)
			_, _ = w.Write([]byte(details))
		}
	}
	mux.HandleFunc("/health/liveness", handler(true))
	mux.HandleFunc("/health/readiness", handler(false))
	mux.HandleFunc("/stats", statsHandler(bans))
	mux.HandleFunc("/stats.json", statsJSONHandler(bans))
	mux.Handle("/debug/fgprof", fgprof.Handler())

	server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() { _ = server.ListenAndServe() }()
}

// statsHandler renders the Peer Banning & Stats registry (§2) as a
// human-readable table, the operator-facing counterpart to statsJSONHandler.
func statsHandler(bans *banmgr.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := bans.Snapshot()

		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Endpoint", "Reason", "Until"})
		for _, e := range entries {
			table.Append([]string{string(e.Endpoint), e.Reason, e.Until.Format(time.RFC3339)})
		}
		table.Render()
	}
}

// statsJSONHandler is the machine-readable twin of statsHandler, encoded with
// segmentio/encoding's faster drop-in encoding/json replacement rather than
// the standard library's own json.Marshal.
func statsJSONHandler(bans *banmgr.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := sjson.NewEncoder(w).Encode(bans.Snapshot()); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}
}

// disconnector adapts *peer.Manager into banmgr.Disconnector: ban_and_disconnect
// (§4.5) needs to reach a peer by its dialable endpoint, but the peer arena
// only indexes peers by the arena-local integer id (§9 "Cyclic references"),
// so this walks the arena once per ban.
type disconnector struct {
	mgr *connmgr.Manager
}

func disconnectorFor(mgr *connmgr.Manager) banmgr.Disconnector {
	return disconnector{mgr: mgr}
}

func (d disconnector) Disconnect(endpoint banmgr.Endpoint, reason string) {
	d.mgr.Peers().Range(func(p *peer.Peer) bool {
		if p.Endpoint() == endpoint {
			p.Disconnect(reason)
			return false
		}
		return true
	})
}

// blockStoreService, consensusService, connMgrService, and addrIndexService
// adapt each component's own Start/Stop (no-context, synchronous goroutine
// spawn) shape onto servicemanager.Service's Init/Start/Stop/Health.

type blockStoreService struct{ s *blockstore.Store }

func (blockStoreService) Init(context.Context) error  { return nil }
func (blockStoreService) Start(context.Context) error { return nil }
func (b blockStoreService) Stop(context.Context) error {
	b.s.Close()
	return nil
}
func (blockStoreService) Health(context.Context) (int, string, error) { return http.StatusOK, "OK", nil }

type consensusService struct{ c *consensus.Coordinator }

func (consensusService) Init(context.Context) error { return nil }
func (c consensusService) Start(context.Context) error {
	c.c.Start()
	return nil
}
func (c consensusService) Stop(context.Context) error {
	c.c.Stop()
	return nil
}
func (consensusService) Health(context.Context) (int, string, error) { return http.StatusOK, "OK", nil }

type connMgrService struct{ m *connmgr.Manager }

func (connMgrService) Init(context.Context) error { return nil }
func (c connMgrService) Start(context.Context) error {
	c.m.Start()
	return nil
}
func (c connMgrService) Stop(context.Context) error {
	c.m.Stop()
	return nil
}
func (connMgrService) Health(context.Context) (int, string, error) { return http.StatusOK, "OK", nil }

type addrIndexService struct{ i *addrindex.Indexer }

func (addrIndexService) Init(context.Context) error { return nil }
func (a addrIndexService) Start(context.Context) error {
	a.i.Start()
	return nil
}
func (a addrIndexService) Stop(context.Context) error {
	a.i.Stop()
	return nil
}
func (addrIndexService) Health(context.Context) (int, string, error) { return http.StatusOK, "OK", nil }
