// Package banmgr implements the Ban Registry and the per-peer rate limiting
// and runtime counters that make up the Peer Banning & Stats component
// (§2, 4% share; §4.5 "Ban registry"). Grounded on the teacher's
// stores/txmetacache/metrics.go promauto/Namespace-Name-Help metrics idiom,
// with the TTL-expiring ban map borrowed from the same jellydator/ttlcache/v3
// shape the Address Indexer's out-point cache uses.
package banmgr

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

// Endpoint is a peer's dialable address, the ban registry's key (§4.5).
type Endpoint string

// ban is the value held per banned endpoint.
type ban struct {
	reason string
	until  time.Time
}

// Disconnector is the collaborator ban_and_disconnect hands off to once an
// endpoint is registered as banned.
type Disconnector interface {
	Disconnect(endpoint Endpoint, reason string)
}

var metricsOnce sync.Once

var (
	bansTotal         prometheus.Counter
	currentlyBanned   prometheus.Gauge
	rateLimitRejected prometheus.Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		bansTotal = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "banmgr",
			Name:      "bans_total",
			Help:      "Total number of ban_and_disconnect calls.",
		})
		currentlyBanned = promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "banmgr",
			Name:      "currently_banned",
			Help:      "Number of endpoints currently banned.",
		})
		rateLimitRejected = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "banmgr",
			Name:      "rate_limit_rejected_total",
			Help:      "Total number of messages rejected by per-peer rate limiting.",
		})
	})
}

// Config tunes the default ban duration and per-peer message rate.
type Config struct {
	DefaultBanDuration time.Duration
	MessagesPerSecond  float64
	MessageBurst       int
}

func (c *Config) setDefaults() {
	if c.DefaultBanDuration == 0 {
		c.DefaultBanDuration = 24 * time.Hour
	}
	if c.MessagesPerSecond == 0 {
		c.MessagesPerSecond = 100
	}
	if c.MessageBurst == 0 {
		c.MessageBurst = 200
	}
}

// Registry is the Ban Registry plus per-peer rate limiting (§4.5, §5's "ban
// registry" lock — the ttlcache's own locking serializes access to the
// banned-endpoints map, so Registry adds no lock of its own).
type Registry struct {
	cfg          Config
	disconnector Disconnector

	bans *ttlcache.Cache[Endpoint, ban]

	limitersMu sync.Mutex
	limiters   map[Endpoint]*rate.Limiter
}

// New constructs a Registry. disconnector may be nil in tests that only
// exercise ban bookkeeping.
func New(disconnector Disconnector, cfg Config) *Registry {
	cfg.setDefaults()
	initMetrics()

	r := &Registry{
		cfg:          cfg,
		disconnector: disconnector,
		limiters:     map[Endpoint]*rate.Limiter{},
	}
	r.bans = ttlcache.New[Endpoint, ban]()
	r.bans.OnEviction(func(_ context.Context, _ ttlcache.EvictionReason, _ *ttlcache.Item[Endpoint, ban]) {
		currentlyBanned.Dec()
	})
	go r.bans.Start()

	return r
}

// Stop halts the ban cache's background eviction goroutine.
func (r *Registry) Stop() {
	r.bans.Stop()
}

// BanAndDisconnect registers endpoint as banned for duration (or the
// configured default if zero) and hands it to the disconnector. Re-banning
// an already-banned endpoint extends/replaces its expiry.
func (r *Registry) BanAndDisconnect(endpoint Endpoint, duration time.Duration, reason string) {
	if duration <= 0 {
		duration = r.cfg.DefaultBanDuration
	}

	bansTotal.Inc()
	if !r.IsBanned(endpoint) {
		currentlyBanned.Inc()
	}
	r.bans.Set(endpoint, ban{reason: reason, until: time.Now().Add(duration)}, duration)

	if r.disconnector != nil {
		r.disconnector.Disconnect(endpoint, reason)
	}
}

// IsBanned reports whether endpoint is currently banned (§P6: true iff a
// non-expired ban was registered and not since unbanned — ttlcache's own TTL
// expiry and our explicit Unban/Clear both honor this without a separate
// expiry check here).
func (r *Registry) IsBanned(endpoint Endpoint) bool {
	item := r.bans.Get(endpoint)
	return item != nil
}

// Unban removes any ban on endpoint immediately.
func (r *Registry) Unban(endpoint Endpoint) {
	if r.bans.Has(endpoint) {
		r.bans.Delete(endpoint) // the eviction callback decrements currentlyBanned
	}
}

// Clear removes every ban immediately.
func (r *Registry) Clear() {
	r.bans.DeleteAll()
	currentlyBanned.Set(0)
}

// BanInfo returns the reason and expiry given when endpoint was banned, if
// it still is. Callers publishing the required PeerBanned(endpoint, reason,
// until) event (§6) read both fields from here.
func (r *Registry) BanInfo(endpoint Endpoint) (reason string, until time.Time, ok bool) {
	item := r.bans.Get(endpoint)
	if item == nil {
		return "", time.Time{}, false
	}
	b := item.Value()
	return b.reason, b.until, true
}

// Allow reports whether endpoint may send another message right now,
// enforcing the per-peer message-rate ceiling (§4.5.1). A rejected message
// increments the rate_limit_rejected_total counter.
func (r *Registry) Allow(endpoint Endpoint) bool {
	r.limitersMu.Lock()
	l, ok := r.limiters[endpoint]
	if !ok {
		l = rate.NewLimiter(rate.Limit(r.cfg.MessagesPerSecond), r.cfg.MessageBurst)
		r.limiters[endpoint] = l
	}
	r.limitersMu.Unlock()

	if l.Allow() {
		return true
	}
	rateLimitRejected.Inc()
	return false
}

// ForgetPeer drops endpoint's rate limiter state, called on disconnect so the
// limiters map doesn't grow unbounded across the lifetime of the process.
func (r *Registry) ForgetPeer(endpoint Endpoint) {
	r.limitersMu.Lock()
	delete(r.limiters, endpoint)
	r.limitersMu.Unlock()
}

// BanEntry is one row of a Snapshot, the shape the stats surface (§2's "Peer
// Banning & Stats") renders.
type BanEntry struct {
	Endpoint Endpoint  `json:"endpoint"`
	Reason   string    `json:"reason"`
	Until    time.Time `json:"until"`
}

// Snapshot lists every endpoint currently banned, for the process's stats
// surface. Order is unspecified; callers that need a stable order sort it.
func (r *Registry) Snapshot() []BanEntry {
	items := r.bans.Items()
	entries := make([]BanEntry, 0, len(items))
	for endpoint, item := range items {
		b := item.Value()
		entries = append(entries, BanEntry{Endpoint: endpoint, Reason: b.reason, Until: b.until})
	}
	return entries
}
