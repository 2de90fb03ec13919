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

// Package hive owns every swarm a process is currently participating in
// and demultiplexes inbound connections/packets to the right one by
// destination channel (spec §4.7, modeled on Hive.py in the original
// implementation).
package hive

import (
	"encoding/hex"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/errgroup"

	"github.com/holisticode/ppspp/swarm"
	"github.com/holisticode/ppspp/wire"
)

// ErrUnknownChannel is returned when a packet's destination channel isn't
// registered with any swarm.
var ErrUnknownChannel = errors.New("hive: unknown destination channel")

// ErrUnknownSwarm is returned when no swarm is registered for an id.
var ErrUnknownSwarm = errors.New("hive: unknown swarm id")

const admissionCacheSize = 4096

// Hive is a process-wide registry of active swarms, keyed by hex-encoded
// content id, plus a channel->swarm routing table for inbound packets.
type Hive struct {
	mu sync.RWMutex

	swarms  map[string]*swarm.Swarm
	byChan  map[uint32]string // local channel -> swarm id hex

	admitted *lru.Cache // recently-seen remote endpoints, admission bookkeeping

	log log.Logger
}

// New constructs an empty Hive.
func New() (*Hive, error) {
	cache, err := lru.New(admissionCacheSize)
	if err != nil {
		return nil, err
	}
	return &Hive{
		swarms:   make(map[string]*swarm.Swarm),
		byChan:   make(map[uint32]string),
		admitted: cache,
		log:      log.New("module", "hive"),
	}, nil
}

// AddSwarm registers s under its content id. It is an error to register two
// swarms with the same id.
func (h *Hive) AddSwarm(s *swarm.Swarm) error {
	key := hex.EncodeToString(s.ID())
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.swarms[key]; ok {
		return errors.New("hive: swarm already registered: " + key)
	}
	h.swarms[key] = s
	return nil
}

// RemoveSwarm deregisters the swarm with the given content id and drops
// every channel route pointing at it.
func (h *Hive) RemoveSwarm(id []byte) {
	key := hex.EncodeToString(id)
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.swarms, key)
	for ch, sid := range h.byChan {
		if sid == key {
			delete(h.byChan, ch)
		}
	}
}

// Swarm looks up a registered swarm by content id.
func (h *Hive) Swarm(id []byte) (*swarm.Swarm, error) {
	key := hex.EncodeToString(id)
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.swarms[key]
	if !ok {
		return nil, ErrUnknownSwarm
	}
	return s, nil
}

// Swarms returns every currently-registered swarm.
func (h *Hive) Swarms() []*swarm.Swarm {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*swarm.Swarm, 0, len(h.swarms))
	for _, s := range h.swarms {
		out = append(out, s)
	}
	return out
}

// BindChannel records that localChannel belongs to the swarm with the
// given content id, so RouteChannel can demux an inbound packet addressed
// to it. Peers register their local channel here at admission time.
func (h *Hive) BindChannel(localChannel uint32, swarmID []byte) {
	h.mu.Lock()
	h.byChan[localChannel] = hex.EncodeToString(swarmID)
	h.mu.Unlock()
}

// UnbindChannel removes a channel route, called when a peer is destroyed.
func (h *Hive) UnbindChannel(localChannel uint32) {
	h.mu.Lock()
	delete(h.byChan, localChannel)
	h.mu.Unlock()
}

// RouteChannel resolves the swarm a destination channel belongs to, the
// demultiplexing step every inbound wire.Packet goes through before
// HandlePacket is called on the right peer (spec §4.7).
func (h *Hive) RouteChannel(destChannel uint32) (*swarm.Swarm, error) {
	h.mu.RLock()
	key, ok := h.byChan[destChannel]
	h.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownChannel
	}
	h.mu.RLock()
	s, ok := h.swarms[key]
	h.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownSwarm
	}
	return s, nil
}

// Close shuts down every registered swarm concurrently (spec §9 swarm
// shutdown semantics, fanned out across swarms the same way a single
// swarm fans its shutdown out across peers).
func (h *Hive) Close(skipGoodbye bool) error {
	var g errgroup.Group
	for _, s := range h.Swarms() {
		s := s
		g.Go(func() error {
			return s.Shutdown(skipGoodbye)
		})
	}
	return g.Wait()
}

// AdmitEndpoint records addr as a recently-seen remote endpoint and
// reports whether it had already been seen, the admission-rate bookkeeping
// a listener uses to avoid repeatedly logging/churning on a noisy remote.
func (h *Hive) AdmitEndpoint(addr string) (alreadySeen bool) {
	alreadySeen = h.admitted.Contains(addr)
	h.admitted.Add(addr, struct{}{})
	return alreadySeen
}

// DecodeAndRoute decodes a raw inbound frame in full (destination channel
// and every message) and then resolves the swarm bound to its destination
// channel, returning the decoded packet alongside it.
func (h *Hive) DecodeAndRoute(data []byte, hashType uint8) (*swarm.Swarm, *wire.Packet, error) {
	pkt, err := wire.DecodePacket(data, hashType)
	if err != nil {
		return nil, nil, err
	}
	s, err := h.RouteChannel(pkt.DestChannel)
	if err != nil {
		return nil, pkt, err
	}
	return s, pkt, nil
}
