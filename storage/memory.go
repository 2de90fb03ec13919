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

package storage

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// haveRangeRebuildPeriod is how often accepted/injected chunks trigger a
// HaveRanges rebuild and rebroadcast (spec §4.5 scenario 6: "every 100
// chunks").
const haveRangeRebuildPeriod = 100

// MemoryStorage backs live and VOD content (spec §4.5): a sparse in-memory
// map of chunk id to payload with a sliding discard window. In source mode
// it is fed by InjectChunks; in relay/leecher mode by SaveChunk arriving
// over the wire.
type MemoryStorage struct {
	mu sync.Mutex

	chunkSize     int
	discardWindow int // 0 = unbounded

	have *HaveSet
	data map[ChunkID][]byte

	// evicted remembers ids recently pushed out of the discard window so
	// GetChunk can report ErrChunkDiscarded instead of ErrChunkNotFound for
	// them, grounded on storage/netstore.go's use of an LRU to bound
	// recently-seen-but-not-retained bookkeeping.
	evicted *lru.Cache

	source          bool
	nextInjectID    ChunkID
	haveInjected    bool
	lastDiscardedID ChunkID
	haveDiscarded   bool

	sinceRebuild int
	onHaveRanges func([]Range)
}

// NewMemoryStorage constructs a MemoryStorage. discardWindow of 0 means no
// eviction ever happens (suitable for small VOD content held entirely in
// memory); isSource marks this instance as the live content origin, which
// never populates a missing-set (spec §3).
func NewMemoryStorage(chunkSize, discardWindow int, isSource bool) (*MemoryStorage, error) {
	cacheSize := discardWindow
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	evicted, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &MemoryStorage{
		chunkSize:     chunkSize,
		discardWindow: discardWindow,
		have:          NewHaveSet(),
		data:          make(map[ChunkID][]byte),
		evicted:       evicted,
		source:        isSource,
	}, nil
}

// SetHaveRangesHook registers the callback invoked with the full current
// Ranges() every time the periodic rebuild fires; the swarm uses it to
// rebroadcast HAVE to members (spec §4.5).
func (m *MemoryStorage) SetHaveRangesHook(fn func([]Range)) {
	m.mu.Lock()
	m.onHaveRanges = fn
	m.mu.Unlock()
}

// InjectChunks is the live-source write path: payloads are assigned
// sequential ids starting from the backend's next injection id, in order.
// It is only meaningful when IsSource() is true.
func (m *MemoryStorage) InjectChunks(payloads [][]byte) []ChunkID {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]ChunkID, len(payloads))
	for i, p := range payloads {
		id := m.nextInjectID
		m.data[id] = p
		m.have.Add(id)
		ids[i] = id
		m.nextInjectID++
		m.haveInjected = true
		m.sinceRebuild++
	}
	m.evictLocked()
	m.maybeRebuildLocked()
	return ids
}

// SaveChunk implements ChunkStorage for the non-source (relay/leecher)
// path: duplicates are rejected and ids at or below the discard boundary
// are rejected as already-discarded (spec §4.5 scenario 6).
func (m *MemoryStorage) SaveChunk(id ChunkID, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[id]; ok {
		return ErrDuplicateChunk
	}
	if m.haveDiscarded && id <= m.lastDiscardedID {
		return ErrChunkDiscarded
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	m.data[id] = buf
	m.have.Add(id)

	m.sinceRebuild++
	m.evictLocked()
	m.maybeRebuildLocked()
	return nil
}

// evictLocked enforces the discard window: once possessed span exceeds
// discardWindow, the oldest ids are dropped until it doesn't (spec §4.5:
// "max(HaveSet) - min(HaveSet) + 1 > discard_window").
func (m *MemoryStorage) evictLocked() {
	if m.discardWindow <= 0 {
		return
	}
	min, max, ok := m.have.Bounds()
	if !ok {
		return
	}
	for max-min+1 > ChunkID(m.discardWindow) {
		delete(m.data, min)
		m.have.Remove(min)
		m.evicted.Add(min, struct{}{})
		m.lastDiscardedID = min
		m.haveDiscarded = true
		min++
	}
}

func (m *MemoryStorage) maybeRebuildLocked() {
	if m.sinceRebuild < haveRangeRebuildPeriod {
		return
	}
	m.sinceRebuild = 0
	if m.onHaveRanges == nil {
		return
	}
	ranges := m.have.Ranges()
	go m.onHaveRanges(ranges)
}

// GetChunk implements ChunkStorage.
func (m *MemoryStorage) GetChunk(id ChunkID, allowMissing bool) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if data, ok := m.data[id]; ok {
		return data, nil
	}
	if allowMissing {
		return nil, nil
	}
	if m.evicted.Contains(id) {
		return nil, ErrChunkDiscarded
	}
	return nil, ErrChunkNotFound
}

// PostComplete implements ChunkStorage. Live/VOD memory storage has no
// terminal "complete" transition; it is a no-op.
func (m *MemoryStorage) PostComplete() error { return nil }

// Close implements ChunkStorage.
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}

// Have implements ChunkStorage.
func (m *MemoryStorage) Have() *HaveSet { return m.have }

// IsSource implements ChunkStorage.
func (m *MemoryStorage) IsSource() bool { return m.source }

// SourceRange returns the live-source optimized single-range form of the
// possession set, (last_discarded_id+1, last_inject_id), instead of the
// general Ranges() maximal-run computation, since a source's possession
// span is contiguous by construction (spec §4.5 "live-source optimized
// single-range form"). ok is false if nothing has been injected yet.
func (m *MemoryStorage) SourceRange() (Range, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.haveInjected {
		return Range{}, false
	}
	start := ChunkID(0)
	if m.haveDiscarded {
		start = m.lastDiscardedID + 1
	}
	return Range{Min: start, Max: m.nextInjectID - 1}, true
}

// LastDiscardedID reports the highest id ever evicted and whether any
// eviction has occurred.
func (m *MemoryStorage) LastDiscardedID() (ChunkID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastDiscardedID, m.haveDiscarded
}
