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

// Package consumer implements the live content consumer downstream of
// memory storage (spec §4.8): tune-in, skip-mode recovery, and a fixed-rate
// consumption loop. It is the one component in this module that runs on
// its own goroutine rather than the shared event loop (spec §5 "Consumer
// exception"); OnChunk is called from the event loop to feed it, and Run
// drives the dedicated consumption tick.
package consumer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/holisticode/ppspp/framer"
	"github.com/holisticode/ppspp/storage"
)

// Stats is the snapshot a caller can read at any time (spec §4.8 "Consumer
// tracks statistics").
type Stats struct {
	FramesConsumed uint64
	FramesMissed   uint64
	ChunksSkipped  uint64
	ConsumeTicks   uint64
	FirstFrameAt   time.Time
	StartChunkID   storage.ChunkID
}

type queuedFrame struct {
	data  []byte
	rng   framer.ChunkRange
}

// Consumer pulls reassembled frames from live memory storage at a fixed
// rate, with tune-in and skip-mode recovery (spec §4.8). The queue and the
// two fields spec §5 calls out (lastShowedChunkID under mu, playbackStarted
// as an atomic flag) are the only state shared between the producer side
// (OnChunk, called from the event loop as chunks arrive) and the dedicated
// consumption goroutine (Run); the mutex additionally guards the framer/
// tune-in bookkeeping below since splitting that across a second signalling
// channel back to the event loop would add real complexity for no
// behavioral difference at this module's scale.
type Consumer struct {
	store storage.ChunkStorage

	queue chan queuedFrame

	videoBufferSz   int
	rate            time.Duration
	missThreshold   int
	skipModeEnabled bool
	tuneInEnabled   bool

	mu                sync.Mutex
	lastShowedChunkID storage.ChunkID
	tunedIn           bool
	nextFrame         storage.ChunkID
	framer            *framer.ContentFramer
	stats             Stats
	consecutiveMisses int

	playbackStarted int32 // atomic bool

	stop chan struct{}
	log  log.Logger
}

// Config bundles the tunables a Consumer is constructed with.
type Config struct {
	VideoBufferSz   int
	RateHz          int
	MissThreshold   int
	SkipModeEnabled bool
	TuneInEnabled   bool
	StartChunkID    storage.ChunkID
}

// New constructs a Consumer reading chunks from store.
func New(store storage.ChunkStorage, cfg Config) *Consumer {
	if cfg.RateHz <= 0 {
		cfg.RateHz = 10
	}
	c := &Consumer{
		store:           store,
		queue:           make(chan queuedFrame, cfg.VideoBufferSz+1),
		videoBufferSz:   cfg.VideoBufferSz,
		rate:            time.Second / time.Duration(cfg.RateHz),
		missThreshold:   cfg.MissThreshold,
		skipModeEnabled: cfg.SkipModeEnabled,
		tuneInEnabled:   cfg.TuneInEnabled,
		nextFrame:       cfg.StartChunkID,
		tunedIn:         !cfg.TuneInEnabled,
		stop:            make(chan struct{}),
		log:             log.New("module", "consumer"),
	}
	c.framer = &framer.ContentFramer{Callback: c.onFrame}
	return c
}

// OnChunk feeds one received discard-eligible-packed chunk to the
// consumer (spec §4.8 "Tune-in"). Called from the event loop as DATA
// arrives for the live storage backend.
func (c *Consumer) OnChunk(id storage.ChunkID, raw []byte) {
	marker, body := storage.UnpackMarker(raw)

	c.mu.Lock()
	if !c.tunedIn {
		if marker != storage.FrameStartMarker || id < c.nextFrame {
			c.nextFrame = id + 1
			c.mu.Unlock()
			return
		}
		c.tunedIn = true
	}
	fr := c.framer
	c.mu.Unlock()

	fr.DataReceived(body, uint32(id))
}

func (c *Consumer) onFrame(frame []byte, r framer.ChunkRange) {
	select {
	case c.queue <- queuedFrame{data: frame, rng: r}:
	default:
		c.log.Debug("consumer queue full, dropping frame", "chunk_end", r.End)
	}
}

// Run drives the fixed-rate consumption loop until Stop is called. It is
// meant to be launched on its own goroutine (spec §5 "Consumer exception").
func (c *Consumer) Run() {
	ticker := time.NewTicker(c.rate)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// Stop ends the consumption loop.
func (c *Consumer) Stop() {
	close(c.stop)
}

func (c *Consumer) tick() {
	c.mu.Lock()
	c.stats.ConsumeTicks++
	c.mu.Unlock()

	if atomic.LoadInt32(&c.playbackStarted) == 0 {
		if len(c.queue) < c.videoBufferSz {
			return
		}
		atomic.StoreInt32(&c.playbackStarted, 1)
		c.mu.Lock()
		c.stats.StartChunkID = c.lastShowedChunkID
		c.mu.Unlock()
	}

	select {
	case qf := <-c.queue:
		c.mu.Lock()
		c.stats.FramesConsumed++
		if c.stats.FramesConsumed == 1 {
			c.stats.FirstFrameAt = time.Now()
		}
		c.lastShowedChunkID = storage.ChunkID(qf.rng.End)
		c.consecutiveMisses = 0
		c.mu.Unlock()
	default:
		c.mu.Lock()
		c.stats.FramesMissed++
		c.consecutiveMisses++
		hitThreshold := c.skipModeEnabled && c.missThreshold > 0 && c.consecutiveMisses >= c.missThreshold
		c.mu.Unlock()
		if hitThreshold {
			c.skipAhead()
		}
	}
}

// skipAhead implements spec §4.8's skip-mode recovery: scan forward from
// the last shown chunk for the next frame-boundary chunk the storage
// backend already holds, drop everything buffered, and resume tuned-in
// from there.
func (c *Consumer) skipAhead() {
	c.mu.Lock()
	id := c.lastShowedChunkID + 1
	c.mu.Unlock()

	scanned := id
	for {
		data, err := c.store.GetChunk(id, true)
		if err != nil || data == nil {
			return // not yet available; try again on the next threshold hit
		}
		marker, _ := storage.UnpackMarker(data)
		if marker == storage.FrameStartMarker {
			break
		}
		id++
	}

	c.mu.Lock()
	c.stats.ChunksSkipped += uint64(id - scanned)
	c.nextFrame = id
	c.tunedIn = false
	c.framer = &framer.ContentFramer{Callback: c.onFrame}
	c.consecutiveMisses = 0
	c.mu.Unlock()

drain:
	for {
		select {
		case <-c.queue:
		default:
			break drain
		}
	}
}

// Stats returns a copy of the current statistics snapshot.
func (c *Consumer) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// LastShowedChunkID returns the chunk id that produced the most recently
// consumed frame.
func (c *Consumer) LastShowedChunkID() storage.ChunkID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastShowedChunkID
}

// PlaybackStarted reports whether buffering has completed and playback has
// begun.
func (c *Consumer) PlaybackStarted() bool {
	return atomic.LoadInt32(&c.playbackStarted) == 1
}
