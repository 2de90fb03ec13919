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
	"time"

	"github.com/holisticode/ppspp/ledbat"
	"github.com/holisticode/ppspp/sched"
	"github.com/holisticode/ppspp/storage"
	"github.com/holisticode/ppspp/wire"
)

const (
	reliableIdleBackoff  = time.Second
	datagramRetryBackoff = 10 * time.Millisecond
	stallResendTicks     = 5
	stallInFlightFloor   = 16
)

// StartSendScheduler launches this peer's per-peer DATA-sending loop (spec
// §4.6 "Send-scheduler"). It is idempotent; calling it twice is a no-op.
func (p *Peer) StartSendScheduler() {
	p.mu.Lock()
	if p.sendTask != nil {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.sendTask = sched.Loop(p.clock, reliableIdleBackoff, p.sendSchedulerStep)
}

// sendSchedulerStep runs one iteration of the candidate-selection and send
// logic, returning the delay before the next iteration.
func (p *Peer) sendSchedulerStep() time.Duration {
	p.mu.Lock()
	datagram := p.transport.Datagram()
	candidates := p.pendingRequestedIDsLocked()
	p.mu.Unlock()

	if len(candidates) == 0 {
		if datagram {
			p.maybeResendStalledInFlight()
		}
		return reliableIdleBackoff
	}

	id := candidates[0]
	data, err := p.storage.GetChunk(id, true)
	if err != nil {
		p.log.Debug("send-scheduler GetChunk error", "id", id, "err", err)
	}
	if data == nil {
		p.mu.Lock()
		delete(p.setRequested, id)
		p.mu.Unlock()
		return 0
	}

	if !datagram {
		p.sendDataChunk(id, data)
		p.mu.Lock()
		p.setSent[id] = struct{}{}
		p.mu.Unlock()
		return 0
	}

	ok, reason := p.ledbatCtrl.TrySend(uint64(len(data) + 32))
	p.updateLedbatMetrics()
	if !ok {
		switch reason {
		case ledbat.ReasonCTO, ledbat.ReasonCWND:
			return datagramRetryBackoff
		}
		return datagramRetryBackoff
	}

	p.sendDataChunk(id, data)
	p.mu.Lock()
	p.setSent[id] = struct{}{}
	p.inFlight = append(p.inFlight, inFlightEntry{id: id, sentAt: p.clock.Now()})
	p.mu.Unlock()
	return 0
}

func (p *Peer) sendDataChunk(id storage.ChunkID, data []byte) {
	tsUs := uint64(p.clock.Now().UnixNano() / 1000)
	if err := p.sendMessages(&wire.Data{Start: uint32(id), End: uint32(id), TimestampUs: tsUs, Payload: data}); err != nil {
		p.log.Debug("send DATA failed", "id", id, "err", err)
	}
}

// maybeResendStalledInFlight implements the stall-recovery clause of spec
// §4.6: if many chunks are in flight and that count hasn't moved across
// several scheduler ticks with no ACK arriving, resend everything still
// outstanding.
func (p *Peer) maybeResendStalledInFlight() {
	p.mu.Lock()
	n := len(p.inFlight)
	if n < stallInFlightFloor {
		p.stallTicks = 0
		p.lastInFlightLen = n
		p.mu.Unlock()
		return
	}
	if n == p.lastInFlightLen {
		p.stallTicks++
	} else {
		p.stallTicks = 0
	}
	p.lastInFlightLen = n

	resend := p.stallTicks >= stallResendTicks
	var toResend []storage.ChunkID
	if resend {
		for i := range p.inFlight {
			p.inFlight[i].resent = true
			toResend = append(toResend, p.inFlight[i].id)
		}
		p.stallTicks = 0
	}
	p.mu.Unlock()

	for _, id := range toResend {
		p.resendLocked(id)
	}
}
