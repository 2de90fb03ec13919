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

package peer

import (
	"github.com/holisticode/ppspp/storage"
	"github.com/holisticode/ppspp/wire"
)

// RemoteAddr returns the underlying transport's remote address, used by
// the swarm scheduler to match an ALTO cost-ordered endpoint list against
// registered peers.
func (p *Peer) RemoteAddr() string { return p.transport.RemoteAddr() }

// RemoteHas reports whether the peer has advertised possession of id via
// HAVE.
func (p *Peer) RemoteHas(id storage.ChunkID) bool {
	return p.setHave.Has(id)
}

// OutstandingRequestCount returns how many ids we've asked this peer for
// that it hasn't yet delivered DATA for, the backlog figure the scheduler
// compares against the backlog threshold and subtracts from the policy's
// top-up target (spec §4.7).
func (p *Peer) OutstandingRequestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.setIRequested)
}

// RequestRange sends a REQUEST for [min, max] and records every id in it as
// outstanding.
func (p *Peer) RequestRange(min, max storage.ChunkID) error {
	p.mu.Lock()
	for id := min; id <= max; id++ {
		p.setIRequested[id] = struct{}{}
		if id == max {
			break
		}
	}
	p.mu.Unlock()

	return p.sendMessages(&wire.Request{Start: uint32(min), End: uint32(max)})
}
