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
	"bytes"
	"sort"
	"time"

	"github.com/pborman/uuid"

	"github.com/holisticode/ppspp/storage"
	"github.com/holisticode/ppspp/wire"
)

const oooLossThreshold = 3

// HandlePacket dispatches one decoded packet's messages in order (spec
// §5 "within one peer, messages are processed in receive order"). nowUs is
// the current time in microseconds, used for ACK delay accounting.
func (p *Peer) HandlePacket(pkt *wire.Packet, nowUs uint64) {
	if pkt.Goodbye {
		p.Destroy(true)
		return
	}
	for _, m := range pkt.Messages {
		switch v := m.(type) {
		case *wire.Handshake:
			p.handleHandshake(v)
		case *wire.Have:
			p.handleHave(v)
		case *wire.Request:
			p.handleRequest(v)
		case *wire.Data:
			p.handleData(v, nowUs)
		case *wire.Ack:
			p.handleAck(v, nowUs)
		case *wire.Integrity:
			if p.onIntegrity != nil {
				p.onIntegrity(v.Start, v.End, v.Hash)
			}
		}
	}
}

// RecordBytesIn lets the transport account inbound bytes before handing
// the decoded packet to HandlePacket.
func (p *Peer) RecordBytesIn(n int) {
	p.metrics.bytesIn.Inc(int64(n))
}

func (p *Peer) handleHandshake(h *wire.Handshake) {
	p.mu.Lock()

	if h.Options.ChunkAddressingMethod == nil || *h.Options.ChunkAddressingMethod != 2 {
		p.mu.Unlock()
		p.log.Debug("rejecting handshake: unsupported chunk addressing method")
		p.Destroy(true)
		return
	}
	if h.Options.ChunkSize == nil || int(*h.Options.ChunkSize) != p.chunkSize {
		p.mu.Unlock()
		p.log.Debug("rejecting handshake: chunk size mismatch")
		p.Destroy(true)
		return
	}

	wasNew := p.state == StateNew
	p.remoteChannel = h.SourceChannel
	if h.Options.MerkleHashFunction != nil {
		p.hashType = *h.Options.MerkleHashFunction
	}
	if h.Options.LiveDiscardWindow != nil {
		p.remoteDiscardWindow = *h.Options.LiveDiscardWindow
	}
	if len(h.Options.PeerUUID) == 16 {
		p.remoteUUID = uuid.UUID(append([]byte(nil), h.Options.PeerUUID...))
	}
	p.mu.Unlock()

	if wasNew {
		p.mu.Lock()
		opts := p.handshakeOptionsLocked()
		msgs := append([]wire.Message{&wire.Handshake{SourceChannel: p.localChannel, Options: opts}}, p.buildPiggybackedHaves()...)
		p.state = StateHandshakeReceived
		p.mu.Unlock()
		if err := p.sendMessages(msgs...); err != nil {
			p.log.Debug("failed to send handshake reply", "err", err)
		}
	}

	p.mu.Lock()
	p.state = StateInitialized
	p.mu.Unlock()
	if p.idleTask != nil {
		p.idleTask.Stop()
	}
}

// ResolveDuplicate implements spec §9's duplicate-peer compare key:
// (uuid, initiator) lexicographic tuple compare. It returns true if a
// should be kept over b. Equal uuids (which should not happen in
// practice) keep the initiator.
func ResolveDuplicate(aUUID uuid.UUID, aInitiator bool, bUUID uuid.UUID, bInitiator bool) bool {
	c := bytes.Compare(aUUID, bUUID)
	if c != 0 {
		return c > 0
	}
	return aInitiator && !bInitiator
}

func (p *Peer) handleHave(h *wire.Have) {
	p.mu.Lock()
	p.setHave.AddRange(storage.ChunkID(h.Start), storage.ChunkID(h.End))

	if p.remoteDiscardWindow > 0 {
		if _, max, ok := p.setHave.Bounds(); ok && h.End >= uint32(max) {
			// spec §4.6: discard ids <= b - discard_window.
			floor := int64(max) - int64(p.remoteDiscardWindow)
			if floor >= 0 {
				for id := storage.ChunkID(0); int64(id) <= floor; id++ {
					p.setHave.Remove(id)
				}
				p.lastDiscardedID = storage.ChunkID(floor)
			}
		}
	}

	var missing []storage.ChunkID
	if p.onMissing != nil {
		have := p.storage.Have()
		for id := storage.ChunkID(h.Start); id <= storage.ChunkID(h.End); id++ {
			if id > p.lastDiscardedID && !have.Has(id) {
				missing = append(missing, id)
			}
			if id == storage.ChunkID(h.End) {
				break
			}
		}
	}
	p.mu.Unlock()

	if len(missing) > 0 && p.onMissing != nil {
		p.onMissing(missing)
	}
}

func (p *Peer) handleRequest(r *wire.Request) {
	p.mu.Lock()
	for id := storage.ChunkID(r.Start); id <= storage.ChunkID(r.End); id++ {
		if id <= p.lastDiscardedID {
			if id == storage.ChunkID(r.End) {
				break
			}
			continue
		}
		p.setRequested[id] = struct{}{}
		delete(p.setSent, id)
		if id == storage.ChunkID(r.End) {
			break
		}
	}
	p.mu.Unlock()
}

func (p *Peer) handleData(d *wire.Data, nowUs uint64) {
	id := storage.ChunkID(d.Start)

	p.mu.Lock()
	delete(p.setIRequested, id)
	datagram := p.transport.Datagram()
	p.mu.Unlock()

	if err := p.storage.SaveChunk(id, d.Payload); err != nil {
		p.log.Debug("SaveChunk failed", "id", id, "err", err)
	}

	p.metrics.dataMessagesRecv.Inc(1)

	if !datagram {
		return
	}

	if p.framer != nil {
		_, body := storage.UnpackMarker(d.Payload)
		p.framer.DataReceived(body, uint32(id))
	}
	p.noteDataForAck(id, d.TimestampUs, nowUs)
}

// noteDataForAck implements the pending-ACK coalescing rule of spec §4.6:
// a contiguous run of 10 ids flushes one ACK; a break in contiguity
// flushes whatever run was pending before starting a new one.
func (p *Peer) noteDataForAck(id storage.ChunkID, tsUs, nowUs uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ackRun.active && id == p.ackRun.end+1 {
		p.ackRun.end = id
		p.ackRun.length++
		if p.ackRun.length >= ackCoalesceRunLength {
			p.flushAckRunLocked(nowUs, tsUs)
		}
		return
	}

	if p.ackRun.active {
		p.flushAckRunLocked(nowUs, tsUs)
	}
	p.ackRun = ackRun{active: true, start: id, end: id, length: 1}
}

func (p *Peer) flushAckRunLocked(nowUs, tsUs uint64) {
	if !p.ackRun.active {
		return
	}
	min, max := storage.AckRange(p.storage.Have(), p.ackRun.start, p.ackRun.end)
	p.ackRun = ackRun{}

	var delay uint64
	if nowUs > tsUs {
		delay = nowUs - tsUs
	}
	data := wire.EncodePacket(p.remoteChannel, &wire.Ack{Start: uint32(min), End: uint32(max), OneWayDelayUs: delay})
	_ = p.transport.SendPacket(data)
}

func (p *Peer) handleAck(a *wire.Ack, nowUs uint64) {
	if !p.transport.Datagram() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	lo, hi := storage.ChunkID(a.Start), storage.ChunkID(a.End)
	if len(p.inFlight) > 0 && hi < p.inFlight[0].id {
		p.metrics.duplicateAcks.Inc(1)
		return
	}

	for id := lo; id <= hi; id++ {
		delete(p.setSent, id)
		delete(p.setRequested, id)
		if id == hi {
			break
		}
	}

	now := p.clock.Now()
	var bytesAcked uint64
	var rtts []time.Duration
	remaining := p.inFlight[:0]
	sawUnackedBefore := false
	for _, e := range p.inFlight {
		if e.id >= lo && e.id <= hi {
			if sawUnackedBefore {
				p.oooCounter++
				p.metrics.oooEvents.Inc(1)
			}
			bytesAcked += uint64(p.chunkSize + 32)
			if !e.resent {
				rtts = append(rtts, now.Sub(e.sentAt))
			}
			continue
		}
		sawUnackedBefore = true
		remaining = append(remaining, e)
	}
	p.inFlight = remaining

	if p.oooCounter >= oooLossThreshold {
		var lossSize uint64
		for i := range p.inFlight {
			if p.inFlight[i].id < hi && !p.inFlight[i].resent {
				p.inFlight[i].resent = true
				lossSize += uint64(p.chunkSize + 32)
				p.resendLocked(p.inFlight[i].id)
			}
		}
		if p.ledbatCtrl != nil {
			p.ledbatCtrl.OnDataLoss(true, lossSize)
			p.updateLedbatMetrics()
		}
		p.oooCounter = 0
	}

	if p.ledbatCtrl != nil {
		var oneWay []time.Duration
		if a.OneWayDelayUs > 0 {
			oneWay = []time.Duration{time.Duration(a.OneWayDelayUs) * time.Microsecond}
		}
		p.ledbatCtrl.OnAck(bytesAcked, oneWay, rtts)
		p.updateLedbatMetrics()
	}
}

func (p *Peer) resendLocked(id storage.ChunkID) {
	data, err := p.storage.GetChunk(id, true)
	if err != nil || data == nil {
		return
	}
	tsUs := uint64(p.clock.Now().UnixNano() / 1000)
	msg := &wire.Data{Start: uint32(id), End: uint32(id), TimestampUs: tsUs, Payload: data}
	_ = p.transport.SendPacket(wire.EncodePacket(p.remoteChannel, msg))
}

// pendingRequestedIDsLocked returns every id the remote has requested from
// us that we possess and haven't sent yet, sorted ascending. Callers must
// hold p.mu.
func (p *Peer) pendingRequestedIDsLocked() []storage.ChunkID {
	have := p.storage.Have()
	ids := make([]storage.ChunkID, 0, len(p.setRequested))
	for id := range p.setRequested {
		if _, sent := p.setSent[id]; sent {
			continue
		}
		if have.Has(id) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
