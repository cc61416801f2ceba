// Package puller implements the Block Puller (§4.1): the scheduler that
// distributes block-download work across peers, adapts to their measured
// speed, and detects stalled important downloads. Grounded on the teacher's
// services/legacy/netsync's message-channel dispatch idiom, redesigned per
// §4.1's multi-peer weighted-random assignment algorithm (Teranode's
// netsync is a single-peer-at-a-time syncer, not a multi-peer scheduler).
package puller

import (
	"math/rand"
	"sync"
	"time"

	"github.com/bsv-blockchain/fullnode/model"
	"github.com/bsv-blockchain/fullnode/ulogger"
	"github.com/dolthub/swiss"
	"github.com/google/uuid"
	"github.com/libsv/go-bt/v2/chainhash"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// PeerID identifies a peer to the puller; ownership of the peer's lifetime
// belongs to the Connection Manager (§3 "Peer lifetime is owned by the
// Connection Manager").
type PeerID string

// Priority classes the two internal queues (§4.1 "two internal queues").
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityReassigned
)

// Callback is invoked exactly once per requested header.
type Callback func(hash chainhash.Hash, block *model.Block, peer PeerID)

// Requester dispatches a batch of block requests to one peer. Implemented by
// the wire-protocol peer connection; a request failing is treated as that
// peer's disconnection (§4.1 "Assignment algorithm").
type Requester interface {
	RequestBlocks(peer PeerID, hashes []chainhash.Hash) error
}

// Job is a request to fetch a contiguous but possibly gap-permitting run of
// headers (§3 "Download Job").
type Job struct {
	ID       uuid.UUID
	Headers  []*model.ChainedHeader
	Priority Priority
	Callback Callback
}

type assignment struct {
	hash       chainhash.Hash
	header     *model.ChainedHeader
	peer       PeerID
	assignedAt time.Time
	jobID      uuid.UUID
	callback   Callback
}

type peerState struct {
	id         PeerID
	speed      atomic.Float64 // bytes/second EMA
	quality    atomic.Float64 // [0,1]
	claimedTip *model.ChainedHeader
	mu         sync.Mutex
}

// Config tunes the puller's capacity and stall-detection behavior.
type Config struct {
	HeadroomFactor         float64
	MinInFlight            int
	MaxSpeedCeilingNonIBD  float64
	MaxDeliveryDeadline    time.Duration
	ImportantMargin        uint32
	NormalDispatchFraction float64
	StallCheckInterval     time.Duration
}

func (c *Config) setDefaults() {
	if c.HeadroomFactor == 0 {
		c.HeadroomFactor = 1.5
	}
	if c.MinInFlight == 0 {
		c.MinInFlight = 8
	}
	if c.MaxSpeedCeilingNonIBD == 0 {
		c.MaxSpeedCeilingNonIBD = 10 << 20 // 10 MiB/s
	}
	if c.MaxDeliveryDeadline == 0 {
		c.MaxDeliveryDeadline = 60 * time.Second
	}
	if c.NormalDispatchFraction == 0 {
		c.NormalDispatchFraction = 0.25
	}
	if c.StallCheckInterval == 0 {
		c.StallCheckInterval = 500 * time.Millisecond
	}
}

// Puller is the Block Puller contract from §4.1.
type Puller struct {
	mu sync.Mutex

	cfg       Config
	requester Requester
	log       ulogger.Logger

	peers map[PeerID]*peerState

	assignedByHash *swiss.Map[chainhash.Hash, *assignment]
	assignedByPeer *swiss.Map[PeerID, []chainhash.Hash]

	normalQueue   []*Job
	reassignQueue []*Job

	isIBD        atomic.Bool
	consensusTip uint32
	maxInFlight  int
	avgBlockSize float64

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a puller dispatching requests through requester.
func New(cfg Config, requester Requester, log ulogger.Logger) *Puller {
	cfg.setDefaults()

	p := &Puller{
		cfg:            cfg,
		requester:      requester,
		log:            log,
		peers:          map[PeerID]*peerState{},
		assignedByHash: swiss.NewMap[chainhash.Hash, *assignment](64),
		assignedByPeer: swiss.NewMap[PeerID, []chainhash.Hash](16),
		maxInFlight:    cfg.MinInFlight,
		avgBlockSize:   1 << 20,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}

	go p.stallLoop()

	return p
}

// Stop halts the background stall-detection task and waits for it to exit.
// It does not gate PushBlock or RequestDownload: either one called after
// Stop still invokes callbacks, and callbacks already started on their own
// goroutines for unassignable headers may run after Stop returns.
func (p *Puller) Stop() {
	close(p.stopCh)
	<-p.doneCh
}

func (p *Puller) stallLoop() {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.cfg.StallCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.detectStalls()
		case <-p.stopCh:
			return
		}
	}
}

// PeerTipClaimed records a peer's last-claimed chain tip, used to gate which
// peers are eligible for a given header (§4.1 "weighted random selection
// over peers whose claimed tip is an ancestor-or-equal of each header").
func (p *Puller) PeerTipClaimed(peer PeerID, tip *model.ChainedHeader) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ps := p.peerLocked(peer)
	ps.mu.Lock()
	ps.claimedTip = tip
	ps.mu.Unlock()
}

// PeerDisconnected releases every assignment held by peer into the
// reassignment queue and forgets the peer.
func (p *Puller) PeerDisconnected(peer PeerID) {
	p.mu.Lock()
	hashes, _ := p.assignedByPeer.Get(peer)
	released := make([]*assignment, 0, len(hashes))
	for _, hash := range hashes {
		if a, ok := p.assignedByHash.Get(hash); ok {
			released = append(released, a)
		}
	}
	p.releasePeerLocked(peer)
	delete(p.peers, peer)
	p.mu.Unlock()

	for _, a := range released {
		p.RequestDownload([]*model.ChainedHeader{a.header}, PriorityReassigned, a.callback)
	}
}

// IBDStateChanged toggles whether the non-IBD speed ceiling applies.
func (p *Puller) IBDStateChanged(isIBD bool) {
	p.isIBD.Store(isIBD)
}

func (p *Puller) peerLocked(peer PeerID) *peerState {
	ps, ok := p.peers[peer]
	if !ok {
		ps = &peerState{id: peer}
		ps.quality.Store(0.5)
		p.peers[peer] = ps
	}
	return ps
}

// RequestDownload enqueues a job and attempts dispatch.
func (p *Puller) RequestDownload(headers []*model.ChainedHeader, priority Priority, cb Callback) {
	job := &Job{ID: uuid.New(), Headers: headers, Priority: priority, Callback: cb}

	p.mu.Lock()
	if priority == PriorityReassigned {
		p.reassignQueue = append(p.reassignQueue, job)
	} else {
		p.normalQueue = append(p.normalQueue, job)
	}
	p.mu.Unlock()

	p.dispatch()
}

// emptySlotsLocked returns how many more assignments could be outstanding before
// maxInFlight is reached.
func (p *Puller) emptySlotsLocked() int {
	inFlight := p.assignedByHash.Count()
	slots := p.maxInFlight - inFlight
	if slots < 0 {
		return 0
	}
	return slots
}

// dispatch drains the reassignment queue unconditionally, then the normal
// queue if empty slots clear the configured fraction of capacity (§4.1
// "Normal processing starts only when empty slots >= a fraction of
// max_in_flight").
func (p *Puller) dispatch() {
	p.mu.Lock()

	perPeerHashes := map[PeerID][]chainhash.Hash{}
	perPeerCallback := map[PeerID]map[chainhash.Hash]Callback{}

	for len(p.reassignQueue) > 0 {
		job := p.reassignQueue[0]
		p.reassignQueue = p.reassignQueue[1:]
		p.assignJobLocked(job, perPeerHashes, perPeerCallback)
	}

	threshold := int(float64(p.maxInFlight) * p.cfg.NormalDispatchFraction)
	for len(p.normalQueue) > 0 && p.emptySlotsLocked() >= threshold {
		job := p.normalQueue[0]
		p.normalQueue = p.normalQueue[1:]
		p.assignJobLocked(job, perPeerHashes, perPeerCallback)
	}

	p.mu.Unlock()

	p.dispatchToPeers(perPeerHashes, perPeerCallback)
}

// assignJobLocked distributes a job's headers one-by-one to peers by
// weighted random selection, failing the remainder of the job the first
// time no eligible peer exists for a header (§4.1 "Assignment algorithm").
func (p *Puller) assignJobLocked(job *Job, perPeerHashes map[PeerID][]chainhash.Hash, perPeerCallback map[PeerID]map[chainhash.Hash]Callback) {
	for i, header := range job.Headers {
		hash := header.Hash()

		if _, exists := p.assignedByHash.Get(hash); exists {
			continue
		}

		peer, ok := p.selectPeerLocked(header)
		if !ok {
			for _, remaining := range job.Headers[i:] {
				if job.Callback != nil {
					go job.Callback(remaining.Hash(), nil, "")
				}
			}
			return
		}

		a := &assignment{hash: hash, header: header, peer: peer, assignedAt: time.Now(), jobID: job.ID, callback: job.Callback}
		p.assignedByHash.Put(hash, a)
		existing, _ := p.assignedByPeer.Get(peer)
		p.assignedByPeer.Put(peer, append(existing, hash))

		perPeerHashes[peer] = append(perPeerHashes[peer], hash)
		if perPeerCallback[peer] == nil {
			perPeerCallback[peer] = map[chainhash.Hash]Callback{}
		}
		perPeerCallback[peer][hash] = job.Callback
	}
}

// selectPeerLocked picks one peer whose claimed tip is an ancestor-or-equal
// of header, weighted by quality score.
func (p *Puller) selectPeerLocked(header *model.ChainedHeader) (PeerID, bool) {
	type candidate struct {
		id     PeerID
		weight float64
	}

	var candidates []candidate
	var total float64

	for id, ps := range p.peers {
		ps.mu.Lock()
		tip := ps.claimedTip
		ps.mu.Unlock()

		if tip == nil {
			continue
		}
		if !isAncestorOrEqual(tip, header) {
			continue
		}

		w := ps.quality.Load()
		if w <= 0 {
			w = 0.01
		}
		candidates = append(candidates, candidate{id: id, weight: w})
		total += w
	}

	if len(candidates) == 0 {
		return "", false
	}

	r := rand.Float64() * total
	for _, c := range candidates {
		r -= c.weight
		if r <= 0 {
			return c.id, true
		}
	}
	return candidates[len(candidates)-1].id, true
}

func isAncestorOrEqual(ancestor, header *model.ChainedHeader) bool {
	for h := header; h != nil; h = h.Parent {
		if h.Hash() == ancestor.Hash() {
			return true
		}
	}
	return false
}

// dispatchToPeers issues per-peer batched block requests in parallel
// (§4.1's errgroup-dispatched "issued in parallel"); one peer's request
// failing never cancels another's in-flight request, so each peer's error
// is handled independently rather than via errgroup's fail-fast Wait.
func (p *Puller) dispatchToPeers(perPeerHashes map[PeerID][]chainhash.Hash, _ map[PeerID]map[chainhash.Hash]Callback) {
	if len(perPeerHashes) == 0 {
		return
	}

	var g errgroup.Group
	for peer, hashes := range perPeerHashes {
		peer, hashes := peer, hashes
		g.Go(func() error {
			if err := p.requester.RequestBlocks(peer, hashes); err != nil {
				p.log.Warnf("puller: request to peer %s failed, treating as disconnected: %v", peer, err)
				p.PeerDisconnected(peer)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// PushBlock delivers a downloaded block. Dropped silently if unexpected or
// delivered by the wrong peer (§4.1 "Delivery").
func (p *Puller) PushBlock(hash chainhash.Hash, block *model.Block, peer PeerID) {
	p.mu.Lock()

	a, ok := p.assignedByHash.Get(hash)
	if !ok || a.peer != peer {
		p.mu.Unlock()
		return
	}

	p.assignedByHash.Delete(hash)
	p.removeFromPeerIndexLocked(a.peer, hash)

	elapsed := time.Since(a.assignedAt).Seconds()
	if elapsed <= 0 {
		elapsed = 0.001
	}
	sample := float64(block.SerializedSize()) / elapsed

	p.avgBlockSize = p.avgBlockSize*0.9 + float64(block.SerializedSize())*0.1

	ps := p.peerLocked(a.peer)
	p.mu.Unlock()

	p.recordSample(ps, sample)
	p.recomputeCapacity()

	if a.callback != nil {
		a.callback(hash, block, peer)
	}

	p.dispatch()
}

// recordSample folds a new speed sample into the peer's EMA and recomputes
// quality. When the fastest peer changes, every peer's score is recomputed;
// otherwise only the sampled peer's (§4.1 "Quality scoring").
func (p *Puller) recordSample(ps *peerState, sample float64) {
	const alpha = 0.2
	prevSpeed := ps.speed.Load()
	newSpeed := prevSpeed*(1-alpha) + sample*alpha
	ps.speed.Store(newSpeed)

	p.mu.Lock()
	prevFastest := p.fastestPeerLocked()
	p.mu.Unlock()

	p.recomputeQuality(ps)

	p.mu.Lock()
	newFastest := p.fastestPeerLocked()
	p.mu.Unlock()

	if prevFastest != newFastest {
		p.mu.Lock()
		all := make([]*peerState, 0, len(p.peers))
		for _, other := range p.peers {
			all = append(all, other)
		}
		p.mu.Unlock()
		for _, other := range all {
			p.recomputeQuality(other)
		}
	}
}

func (p *Puller) fastestPeerLocked() PeerID {
	var best PeerID
	var bestSpeed float64
	for id, ps := range p.peers {
		speed := ps.speed.Load()
		if speed > bestSpeed {
			bestSpeed = speed
			best = id
		}
	}
	return best
}

func (p *Puller) recomputeQuality(ps *peerState) {
	speed := ps.speed.Load()
	ceiling := p.effectiveCeiling(ps)
	if ceiling <= 0 {
		ceiling = 1
	}
	q := speed / ceiling
	if q > 1 {
		q = 1
	}
	if q < 0 {
		q = 0
	}
	ps.quality.Store(q)
}

func (p *Puller) effectiveCeiling(ps *peerState) float64 {
	p.mu.Lock()
	fastest := p.fastestPeerLocked()
	p.mu.Unlock()

	if p.isIBD.Load() || ps.id != fastest {
		return maxFloat(ps.speed.Load(), 1)
	}
	return maxFloat(p.cfg.MaxSpeedCeilingNonIBD, 1)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// recomputeCapacity updates the rolling max_in_flight target (§4.1
// "Capacity").
func (p *Puller) recomputeCapacity() {
	p.mu.Lock()
	defer p.mu.Unlock()

	var sumSpeed float64
	for _, ps := range p.peers {
		sumSpeed += ps.speed.Load()
	}

	if p.avgBlockSize <= 0 {
		p.avgBlockSize = 1
	}

	target := int((sumSpeed * p.cfg.HeadroomFactor) / p.avgBlockSize)
	if target < p.cfg.MinInFlight {
		target = p.cfg.MinInFlight
	}
	p.maxInFlight = target
}

// detectStalls penalizes peers holding an assignment older than the
// delivery deadline for a header within the important margin of the
// consensus tip, releasing their assignments for reassignment (§4.1 "Stall
// detection").
func (p *Puller) detectStalls() {
	p.mu.Lock()

	now := time.Now()
	consensusTip := p.consensusTip
	margin := p.cfg.ImportantMargin

	stalledPeers := map[PeerID]struct{}{}
	var stalled []*assignment

	p.assignedByHash.Iter(func(hash chainhash.Hash, a *assignment) bool {
		if now.Sub(a.assignedAt) < p.cfg.MaxDeliveryDeadline {
			return false
		}
		if a.header.Height > consensusTip+margin {
			return false
		}
		stalledPeers[a.peer] = struct{}{}
		return false
	})

	for peer := range stalledPeers {
		hashes, _ := p.assignedByPeer.Get(peer)
		for _, hash := range hashes {
			if a, ok := p.assignedByHash.Get(hash); ok {
				stalled = append(stalled, a)
			}
		}
		p.releasePeerLocked(peer)
		ps := p.peerLocked(peer)
		ps.speed.Store(1) // attribute a very slow sample
	}

	p.mu.Unlock()

	for _, ps := range p.peersSnapshot(stalledPeers) {
		p.recomputeQuality(ps)
	}

	// Each released assignment keeps its own originating callback, so every
	// released header is resubmitted as its own single-header job rather
	// than collapsing distinct callers' callbacks together.
	for _, a := range stalled {
		p.RequestDownload([]*model.ChainedHeader{a.header}, PriorityReassigned, a.callback)
	}
}

func (p *Puller) peersSnapshot(ids map[PeerID]struct{}) []*peerState {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*peerState, 0, len(ids))
	for id := range ids {
		if ps, ok := p.peers[id]; ok {
			out = append(out, ps)
		}
	}
	return out
}

// releasePeerLocked moves every assignment held by peer back into the
// reassignment queue's bookkeeping (caller still must enqueue the headers).
func (p *Puller) releasePeerLocked(peer PeerID) {
	hashes, _ := p.assignedByPeer.Get(peer)
	for _, hash := range hashes {
		p.assignedByHash.Delete(hash)
	}
	p.assignedByPeer.Delete(peer)
}

func (p *Puller) removeFromPeerIndexLocked(peer PeerID, hash chainhash.Hash) {
	hashes, ok := p.assignedByPeer.Get(peer)
	if !ok {
		return
	}
	for i, h := range hashes {
		if h == hash {
			hashes = append(hashes[:i], hashes[i+1:]...)
			break
		}
	}
	if len(hashes) == 0 {
		p.assignedByPeer.Delete(peer)
	} else {
		p.assignedByPeer.Put(peer, hashes)
	}
}

// SetConsensusTip updates the height used by stall detection's "important
// margin" check.
func (p *Puller) SetConsensusTip(height uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consensusTip = height
}
