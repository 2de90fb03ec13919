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

// Package peer implements the per-remote PPSPP state machine (spec §4.6):
// handshake negotiation, HAVE/REQUEST/DATA/ACK handling, ACK coalescing,
// the per-peer send-scheduler strategies, and idle cleanup. One Peer is
// constructed per remote endpoint a swarm admits.
package peer

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pborman/uuid"
	"github.com/tilinna/clock"

	"github.com/holisticode/ppspp/framer"
	"github.com/holisticode/ppspp/ledbat"
	"github.com/holisticode/ppspp/sched"
	"github.com/holisticode/ppspp/storage"
	"github.com/holisticode/ppspp/wire"
)

// State is one node of the handshake state machine (spec §4.6).
type State int

const (
	StateNew State = iota
	StateHandshakeSent
	StateHandshakeReceived
	StateInitialized
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateHandshakeSent:
		return "HandshakeSent"
	case StateHandshakeReceived:
		return "HandshakeReceived"
	case StateInitialized:
		return "Initialized"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Transport is the minimum a stream or datagram connection must offer a
// Peer: framing and retransmission are the transport's problem, a Peer
// only ever hands it whole packets.
type Transport interface {
	SendPacket(data []byte) error
	RemoteAddr() string
	// Datagram reports whether this transport is unreliable (UDP), which
	// selects the LEDBAT/ACK-coalescing path versus the plain reliable
	// path (spec §4.5 Design Notes, §4.6).
	Datagram() bool
}

// Stats is the snapshot recorded into the swarm's per-peer stats map on
// destruction (spec §4.6 "Idle/death").
type Stats struct {
	BytesIn, BytesOut   uint64
	DataMessagesRecv    uint64
	DuplicateAcks       uint64
	OOOEvents           uint64
}

// Params configures a new Peer at admission time; every field mirrors a
// swarm-level attribute the peer needs read access to.
type Params struct {
	Num          int
	LocalChannel uint32
	LocalUUID    uuid.UUID
	Initiator    bool // we dialed; false if the remote connected to us

	SwarmID           []byte
	ChunkSize         int
	HashType          uint8
	LiveDiscardWindow uint32 // 0 = not live / no window advertised

	Storage storage.ChunkStorage
	Clock   clock.Clock

	Transport Transport

	// OnMissing is called with ids a HAVE advertised that are not yet in
	// our own have-set, so the swarm can add them to its MissingSet (spec
	// §4.6 "On HAVE").
	OnMissing func(ids []storage.ChunkID)
	// OnFrame delivers a reassembled live/VOD application frame and the
	// chunk range that produced it (spec §4.2, §4.6 "feed the live framer").
	OnFrame func(frame []byte, r framer.ChunkRange)
	// OnIntegrity records an advertised per-range hash for diagnostics;
	// it is never consulted to accept or reject a chunk (spec.md
	// Non-goals exclude sub-root-hash integrity verification).
	OnIntegrity func(start, end uint32, hash []byte)
	// OnDestroy is invoked exactly once, with this peer's final Stats,
	// when the peer transitions to StateClosed.
	OnDestroy func(p *Peer, stats Stats)
}

// Peer is one remote endpoint's protocol state.
type Peer struct {
	mu sync.Mutex

	num          int
	localChannel uint32
	remoteChannel uint32
	localUUID    uuid.UUID
	remoteUUID   uuid.UUID
	initiator    bool

	state State

	swarmID           []byte
	chunkSize         int
	hashType          uint8
	liveDiscardWindow uint32 // ours, advertised to remote
	remoteDiscardWindow uint32
	lastDiscardedID   storage.ChunkID
	haveDiscarded     bool

	storage   storage.ChunkStorage
	clock     clock.Clock
	transport Transport

	// Remote possession/request bookkeeping (spec §4.6 naming).
	setHave        *storage.HaveSet       // peer's advertised HaveSet
	setRequested   map[storage.ChunkID]struct{} // ids peer asked us for
	setSent        map[storage.ChunkID]struct{} // ids we've sent peer

	setIRequested  map[storage.ChunkID]struct{} // ids we asked peer for

	// Unreliable-transport bookkeeping.
	ledbatCtrl      *ledbat.Controller
	inFlight        []inFlightEntry
	ackRun          ackRun
	oooCounter      int
	stallTicks      int
	lastInFlightLen int

	framer *framer.ContentFramer

	idleTask *sched.Task
	sendTask *sched.Task

	metrics peerMetrics

	onMissing   func(ids []storage.ChunkID)
	onFrame     func(frame []byte, r framer.ChunkRange)
	onIntegrity func(start, end uint32, hash []byte)
	onDestroy   func(p *Peer, stats Stats)

	log log.Logger
}

type inFlightEntry struct {
	id     storage.ChunkID
	resent bool
	sentAt time.Time
}

type ackRun struct {
	active bool
	start  storage.ChunkID
	end    storage.ChunkID
	length int
}

const ackCoalesceRunLength = 10
const idleHandshakeTimeout = 15 * time.Second

// New constructs a Peer in State New and arms its idle handshake timeout.
// Callers call StartHandshake (for an outbound connection) or feed the
// inbound first-contact HANDSHAKE packet to HandlePacket next.
func New(p Params) *Peer {
	pr := &Peer{
		num:               p.Num,
		localChannel:      p.LocalChannel,
		localUUID:         p.LocalUUID,
		initiator:         p.Initiator,
		state:             StateNew,
		swarmID:           p.SwarmID,
		chunkSize:         p.ChunkSize,
		hashType:          p.HashType,
		liveDiscardWindow: p.LiveDiscardWindow,
		storage:           p.Storage,
		clock:             p.Clock,
		transport:         p.Transport,
		setHave:           storage.NewHaveSet(),
		setRequested:      make(map[storage.ChunkID]struct{}),
		setSent:           make(map[storage.ChunkID]struct{}),
		setIRequested:     make(map[storage.ChunkID]struct{}),
		onMissing:         p.OnMissing,
		onFrame:           p.OnFrame,
		onIntegrity:       p.OnIntegrity,
		onDestroy:         p.OnDestroy,
		metrics:           newPeerMetrics(p.Num),
		log:               log.New("peer", p.Num, "remote", p.Transport.RemoteAddr()),
	}
	if pr.clock == nil {
		pr.clock = clock.Realtime()
	}
	if p.Transport.Datagram() {
		pr.ledbatCtrl = ledbat.New(ledbat.DefaultConfig(uint64(p.ChunkSize + 32)))
		pr.framer = &framer.ContentFramer{Callback: func(f []byte, r framer.ChunkRange) {
			if pr.onFrame != nil {
				pr.onFrame(f, r)
			}
		}}
	}
	pr.idleTask = sched.After(pr.clock, idleHandshakeTimeout, pr.onIdleTimeout)
	return pr
}

// Num returns the peer's log-correlation ordinal, taken from Params.Num at
// construction (spec §9 Design Notes item 1); the swarm keys its peer
// registry and stats map by it.
func (p *Peer) Num() int { return p.num }

// State returns the current handshake state.
func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// RemoteUUID returns the peer-advertised uuid, valid once past
// StateHandshakeReceived/StateInitialized.
func (p *Peer) RemoteUUID() uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remoteUUID
}

// Initiator reports whether this side dialed the connection, the
// tie-break attribute for duplicate-peer resolution (spec §9).
func (p *Peer) Initiator() bool { return p.initiator }

// RemoteChannel returns the channel id the remote told us to address it
// on.
func (p *Peer) RemoteChannel() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remoteChannel
}

// Stats returns a copy of the current stats snapshot.
func (p *Peer) Stats() Stats {
	return p.metrics.snapshot()
}

func (p *Peer) onIdleTimeout() {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	if state == StateInitialized || state == StateClosed {
		return
	}
	p.log.Debug("destroying idle unhandshaked peer")
	p.Destroy(true)
}

// buildPiggybackedHaves returns our current possession set as piggybacked HAVE
// messages for a handshake packet.
func (p *Peer) buildPiggybackedHaves() []wire.Message {
	var msgs []wire.Message
	for _, r := range p.storage.Have().Ranges() {
		msgs = append(msgs, &wire.Have{Start: uint32(r.Min), End: uint32(r.Max)})
	}
	return msgs
}

// SendHave announces newly-possessed ranges to this peer (spec §4.7 "HAVE
// broadcast"). It is a no-op once the peer has closed.
func (p *Peer) SendHave(ranges []storage.Range) error {
	if len(ranges) == 0 {
		return nil
	}
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	msgs := make([]wire.Message, 0, len(ranges))
	for _, r := range ranges {
		msgs = append(msgs, &wire.Have{Start: uint32(r.Min), End: uint32(r.Max)})
	}
	return p.sendMessages(msgs...)
}

// StartHandshake sends the initial HANDSHAKE for an outbound connection
// (spec §4.6 "Outbound"); the idle timeout is already armed by New.
func (p *Peer) StartHandshake() error {
	p.mu.Lock()
	opts := p.handshakeOptionsLocked()
	msgs := append([]wire.Message{&wire.Handshake{SourceChannel: p.localChannel, Options: opts}}, p.buildPiggybackedHaves()...)
	p.state = StateHandshakeSent
	p.mu.Unlock()

	return p.sendMessages(msgs...)
}

func (p *Peer) handshakeOptionsLocked() wire.Options {
	addrMethod := uint8(2)
	chunkSize := uint32(p.chunkSize)
	hashType := p.hashType
	opts := wire.Options{
		SwarmID:               p.swarmID,
		MerkleHashFunction:    &hashType,
		ChunkAddressingMethod: &addrMethod,
		ChunkSize:             &chunkSize,
		PeerUUID:              p.localUUID,
	}
	if p.liveDiscardWindow > 0 {
		w := p.liveDiscardWindow
		opts.LiveDiscardWindow = &w
	}
	return opts
}

func (p *Peer) sendMessages(msgs ...wire.Message) error {
	p.mu.Lock()
	dest := p.remoteChannel
	p.mu.Unlock()
	data := wire.EncodePacket(dest, msgs...)
	p.metrics.bytesOut.Inc(int64(len(data)))
	return p.transport.SendPacket(data)
}

// Destroy transitions the peer to StateClosed: cancels its scheduled
// tasks, optionally emits a goodbye handshake, and notifies the swarm
// with the final stats snapshot (spec §4.6 "Idle/death").
func (p *Peer) Destroy(skipGoodbye bool) {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return
	}
	p.state = StateClosed
	remoteChannel := p.remoteChannel
	p.mu.Unlock()
	stats := p.metrics.snapshot()

	if p.idleTask != nil {
		p.idleTask.Stop()
	}
	if p.sendTask != nil {
		p.sendTask.Stop()
	}
	if !skipGoodbye && remoteChannel != 0 {
		_ = p.transport.SendPacket(wire.BuildGoodbye(remoteChannel, 0, 0))
	}
	if p.onDestroy != nil {
		p.onDestroy(p, stats)
	}
}
