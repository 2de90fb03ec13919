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

package swarm

import (
	"math/rand"
	"sort"

	"github.com/holisticode/ppspp/config"
	"github.com/holisticode/ppspp/peer"
	"github.com/holisticode/ppspp/storage"
)

// Policy selects how the swarm-wide missing set is partitioned into
// per-peer REQUEST batches (spec §9 Open Questions: chunk-selection
// policy is not fully pinned down by the base spec).
type Policy int

const (
	// PolicyGreedy requests every missing id a peer has advertised,
	// capped at that peer's REQ_LIMIT, in ascending id order. This is the
	// live-path default: earliest-available-first matches tune-in/replay
	// ordering.
	PolicyGreedy Policy = iota
	// PolicyTightReqMax caps outstanding requests per peer more
	// conservatively, re-evaluating once the peer's backlog falls under
	// its role-specific BacklogThreshold rather than topping it back up to
	// REQ_LIMIT on every tick; this trades peak throughput for steadier
	// queueing delay, useful for static/VOD downloads sharing a link with
	// other traffic.
	PolicyTightReqMax
)

// PolicyFromString parses a config.Config.Policy value, defaulting to
// PolicyGreedy for an empty or unrecognized string.
func PolicyFromString(s string) Policy {
	switch s {
	case "tight-reqmax":
		return PolicyTightReqMax
	default:
		return PolicyGreedy
	}
}

func (p Policy) reqLimit(cfg *config.Config, live, buffering bool) int {
	switch {
	case live && buffering:
		return config.ReqLimitLiveBuffering
	case live:
		return config.ReqLimitLivePlaying
	default:
		return config.ReqLimitStatic
	}
}

// topUpTarget is the backlog level a peer is re-topped up to on each
// scheduler tick. PolicyGreedy tops all the way back up to REQ_LIMIT;
// PolicyTightReqMax only re-tops up to the backlog threshold, trading
// peak throughput for steadier queueing delay (both policies still skip a
// peer entirely once its backlog exceeds the threshold).
func (p Policy) topUpTarget(cfg *config.Config, live, buffering bool) int {
	if p == PolicyTightReqMax {
		return p.backlogThreshold(cfg, live, buffering)
	}
	return p.reqLimit(cfg, live, buffering)
}

func (p Policy) backlogThreshold(cfg *config.Config, live, buffering bool) int {
	switch {
	case live && buffering:
		return config.BacklogThresholdLiveBuffering
	case live:
		return config.BacklogThresholdLivePlaying
	default:
		return config.BacklogThresholdStatic
	}
}

// RunScheduler partitions the swarm's missing set across admitted peers
// and issues REQUEST messages for the ids each peer can satisfy (spec
// §4.7). order, when non-nil, is an ALTO-supplied cost-ordered subset of
// peer endpoints (alto.CostProvider.Ranked); peers not named in order are
// considered after it, in their existing registration order. When live is
// set and order is empty, the peer order is shuffled on every call.
func (s *Swarm) RunScheduler(live, buffering bool, order []string) {
	peers := s.orderedPeers(order)
	if live && len(order) == 0 {
		rand.Shuffle(len(peers), func(i, j int) { peers[i], peers[j] = peers[j], peers[i] })
	}
	if len(peers) == 0 {
		return
	}

	s.mu.Lock()
	ids := make([]storage.ChunkID, 0, len(s.missing))
	for id := range s.missing {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) == 0 {
		return
	}

	topUpTarget := s.policy.topUpTarget(s.cfg, live, buffering)
	threshold := s.policy.backlogThreshold(s.cfg, live, buffering)

	s.mu.Lock()
	lastConsumed := s.lastConsumed
	s.mu.Unlock()
	var forwardCeiling storage.ChunkID
	hasForwardCeiling := s.cfg.IsVOD && s.cfg.DownloadForwardWindow > 0
	if hasForwardCeiling {
		forwardCeiling = lastConsumed + storage.ChunkID(s.cfg.DownloadForwardWindow)
	}

	claimed := make(map[storage.ChunkID]bool, len(ids))
	for _, p := range peers {
		// spec.md: skip peers whose outstanding request backlog already
		// exceeds the role-specific threshold, regardless of policy.
		backlog := p.OutstandingRequestCount()
		if backlog > threshold {
			continue
		}
		budget := topUpTarget - backlog
		if budget <= 0 {
			continue
		}

		var want []storage.ChunkID
		for _, id := range ids {
			if len(want) >= budget {
				break
			}
			if claimed[id] {
				continue
			}
			if hasForwardCeiling && id > forwardCeiling {
				continue
			}
			if !p.RemoteHas(id) {
				continue
			}
			want = append(want, id)
		}
		if len(want) == 0 {
			continue
		}
		for _, id := range want {
			claimed[id] = true
		}
		for _, r := range storage.RangesFromSortedIDs(want) {
			if err := p.RequestRange(r.Min, r.Max); err != nil {
				s.log.Debug("REQUEST send failed", "peer", p.Num(), "err", err)
			}
		}
	}

	if len(claimed) == 0 {
		return
	}
	s.mu.Lock()
	for id := range claimed {
		delete(s.missing, id)
	}
	s.mu.Unlock()
}

// orderedPeers applies an ALTO cost ranking (endpoint strings, matched
// against peer.RemoteAddr semantics via the caller-supplied order) over the
// registered peer list; peers absent from order keep their relative
// registration order and sort after every ranked peer.
func (s *Swarm) orderedPeers(order []string) []*peer.Peer {
	all := s.Peers()
	if len(order) == 0 {
		return all
	}
	rank := make(map[string]int, len(order))
	for i, ep := range order {
		rank[ep] = i
	}
	out := append([]*peer.Peer(nil), all...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, oki := rank[out[i].RemoteAddr()]
		rj, okj := rank[out[j].RemoteAddr()]
		switch {
		case oki && okj:
			return ri < rj
		case oki && !okj:
			return true
		default:
			return false
		}
	})
	return out
}
