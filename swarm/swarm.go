// Copyright 2019 The Swarm Authors
// This file is part of the Swarm library.
//
// The Swarm library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The Swarm library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the Swarm library. If not, see <http://www.gnu.org/licenses/>.

// Package swarm owns one content id's full membership: the peer registry,
// the missing-chunk set, the chunk-selection scheduler and its policies,
// HAVE broadcast, peer admission, and tracker-event consumption (spec
// §4.7). A hive owns one swarm per active content id.
package swarm

import (
	"errors"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/holisticode/ppspp/config"
	"github.com/holisticode/ppspp/peer"
	"github.com/holisticode/ppspp/storage"
)

// ErrFull is returned by AddPeer when the swarm is already at MaxPeers.
var ErrFull = errors.New("swarm: full")

// AckRange re-exports storage.AckRange under the swarm package, since
// conceptually the widened-ACK-interval computation is a swarm-scheduler
// concern (spec §4.7); its mechanical home is storage because it only
// needs a *storage.HaveSet and must not import peer/swarm back.
func AckRange(have *storage.HaveSet, a, b storage.ChunkID) (min, max storage.ChunkID) {
	return storage.AckRange(have, a, b)
}

// Swarm owns the membership and scheduling state for one content id.
type Swarm struct {
	mu sync.Mutex

	id      []byte
	cfg     *config.Config
	storage storage.ChunkStorage

	peersByUUID map[string]*peer.Peer
	peersByNum  map[int]*peer.Peer

	missing map[storage.ChunkID]struct{}

	// lastConsumed is the play point a VOD consumer has most recently
	// shown, fed via SetLastConsumed. It gates RunScheduler's forward
	// window (spec.md "drop ids > last_consumed + download_forward_window
	// (if VOD and set)"); zero until a consumer reports progress.
	lastConsumed storage.ChunkID

	// peerIntegrity records advertised per-range hashes from INTEGRITY
	// messages, diagnostics only (spec.md Non-goals exclude sub-root-hash
	// verification; this never gates chunk acceptance).
	peerIntegrity map[integrityKey][]byte

	// peerStats snapshots each peer's final Stats at destruction (spec.md
	// "Per-peer statistics ... snapshotted into a swarm-owned map at
	// destruction; this avoids coupling the peer's lifetime to the final
	// report generation"), consumed by package report.
	peerStats map[int]peer.Stats

	policy Policy

	log log.Logger
}

// New constructs a Swarm bound to one content id, config and storage
// backend. The storage backend must already be constructed by the caller
// (file-backed for static content, memory-backed for live/VOD).
func New(id []byte, cfg *config.Config, st storage.ChunkStorage) *Swarm {
	s := &Swarm{
		id:          append([]byte(nil), id...),
		cfg:         cfg,
		storage:     st,
		peersByUUID: make(map[string]*peer.Peer),
		peersByNum:  make(map[int]*peer.Peer),
		missing:       make(map[storage.ChunkID]struct{}),
		peerIntegrity: make(map[integrityKey][]byte),
		peerStats:     make(map[int]peer.Stats),
		policy:        PolicyFromString(cfg.Policy),
		log:         log.New("swarm", string(id)),
	}
	return s
}

// ID returns the swarm's content id.
func (s *Swarm) ID() []byte { return append([]byte(nil), s.id...) }

// Storage returns the backing ChunkStorage.
func (s *Swarm) Storage() storage.ChunkStorage { return s.storage }

// PeerCount returns the number of currently admitted peers.
func (s *Swarm) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peersByNum)
}

// AddPeer admits p, rejecting it with ErrFull once at cfg.MaxPeers (0 means
// unbounded, spec §4.7 "admission"). If an existing peer shares p's uuid,
// the duplicate-resolution tie-break (spec §9, peer.ResolveDuplicate)
// decides which survives. A losing existing peer is destroyed without a
// goodbye, since by definition the far end already believes it has a
// working connection under that uuid; a losing p is refused with an error
// and is not destroyed here. Peers are registered under p.Num().
func (s *Swarm) AddPeer(p *peer.Peer) error {
	key := p.RemoteUUID().String()

	s.mu.Lock()
	if s.cfg.MaxPeers > 0 && len(s.peersByNum) >= s.cfg.MaxPeers {
		s.mu.Unlock()
		return ErrFull
	}
	if existing, ok := s.peersByUUID[key]; ok && key != "" {
		keepA := peer.ResolveDuplicate(p.RemoteUUID(), p.Initiator(), existing.RemoteUUID(), existing.Initiator())
		s.mu.Unlock()
		if keepA {
			existing.Destroy(true)
			s.RemovePeer(existing)
		} else {
			return errors.New("swarm: duplicate peer, existing connection kept")
		}
		s.mu.Lock()
	}
	num := p.Num()
	s.peersByUUID[key] = p
	s.peersByNum[num] = p
	s.mu.Unlock()

	p.StartSendScheduler()
	return nil
}

// RemovePeer deregisters p. It does not call p.Destroy; callers that want
// the goodbye/stats-callback path call that separately.
func (s *Swarm) RemovePeer(p *peer.Peer) {
	s.mu.Lock()
	delete(s.peersByUUID, p.RemoteUUID().String())
	delete(s.peersByNum, p.Num())
	s.mu.Unlock()
}

// Peers returns a stable-ordered snapshot of admitted peers, sorted by
// admission ordinal.
func (s *Swarm) Peers() []*peer.Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	nums := make([]int, 0, len(s.peersByNum))
	for n := range s.peersByNum {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	out := make([]*peer.Peer, 0, len(nums))
	for _, n := range nums {
		out = append(out, s.peersByNum[n])
	}
	return out
}

// Shutdown cancels every admitted peer's scheduled tasks and sends its
// goodbye handshake (unless skipGoodbye), then closes the storage backend
// (spec §9 "Swarm shutdown cancels all handles before issuing goodbye
// handshakes"). Peers are torn down concurrently via errgroup, matching
// the cooperative-task cancellation the rest of the scheduling surface
// uses.
func (s *Swarm) Shutdown(skipGoodbye bool) error {
	var g errgroup.Group
	for _, p := range s.Peers() {
		p := p
		g.Go(func() error {
			p.Destroy(skipGoodbye)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return s.storage.Close()
}

// OnMissing is the callback a peer's Params.OnMissing should be wired to:
// it folds newly-advertised-but-unheld ids into the swarm-wide missing set
// consumed by the chunk-selection scheduler (spec §4.6 "On HAVE").
func (s *Swarm) OnMissing(ids []storage.ChunkID) {
	s.mu.Lock()
	for _, id := range ids {
		s.missing[id] = struct{}{}
	}
	s.mu.Unlock()
}

// MissingCount returns the size of the swarm-wide missing set.
func (s *Swarm) MissingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.missing)
}

// SetLastConsumed records the play point a VOD consumer has most recently
// shown (such as consumer.Consumer.LastShowedChunkID), consulted by
// RunScheduler's download_forward_window ceiling. cmd/ppspp-node does not
// call it.
func (s *Swarm) SetLastConsumed(id storage.ChunkID) {
	s.mu.Lock()
	s.lastConsumed = id
	s.mu.Unlock()
}

// integrityKey is the (start,end) range an INTEGRITY message advertised a
// hash for.
type integrityKey struct {
	start, end uint32
}

// OnIntegrity is the callback a peer's Params.OnIntegrity should be wired
// to (spec.md's supplemented tracker/integrity feature): it records the
// advertised hash for diagnostics only.
func (s *Swarm) OnIntegrity(start, end uint32, hash []byte) {
	s.mu.Lock()
	s.peerIntegrity[integrityKey{start, end}] = append([]byte(nil), hash...)
	s.mu.Unlock()
}

// PeerIntegrityHash returns the last INTEGRITY-advertised hash for
// [start,end], if any. Diagnostics/tests only.
func (s *Swarm) PeerIntegrityHash(start, end uint32) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.peerIntegrity[integrityKey{start, end}]
	return h, ok
}

// OnPeerDestroy is the callback a peer's Params.OnDestroy should be wired
// to: it snapshots the peer's final stats into the swarm-owned map before
// deregistering it.
func (s *Swarm) OnPeerDestroy(p *peer.Peer, stats peer.Stats) {
	s.mu.Lock()
	s.peerStats[p.Num()] = stats
	s.mu.Unlock()
	s.RemovePeer(p)
}

// PeerStats returns a snapshot of every destroyed peer's final stats,
// keyed by admission ordinal, for the shutdown report.
func (s *Swarm) PeerStats() map[int]peer.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]peer.Stats, len(s.peerStats))
	for k, v := range s.peerStats {
		out[k] = v
	}
	return out
}

// OnHaveRanges is the callback a live/memory storage's SetHaveRangesHook
// should be wired to: it broadcasts the given ranges (the storage's full
// current have-ranges) as HAVE messages to every admitted peer (spec §4.7
// "HAVE broadcast").
func (s *Swarm) OnHaveRanges(ranges []storage.Range) {
	for _, p := range s.Peers() {
		if err := p.SendHave(ranges); err != nil {
			s.log.Debug("HAVE broadcast send failed", "peer", p.Num(), "err", err)
		}
	}
}
