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

package consumer

import (
	"testing"

	"github.com/holisticode/ppspp/storage"
)

// packedChunks packs frame as discard-eligible chunks of chunkSize and
// returns them keyed by sequential ChunkID starting at startID.
func packedChunks(t *testing.T, frame []byte, chunkSize int, startID storage.ChunkID) map[storage.ChunkID][]byte {
	t.Helper()
	pieces := storage.PackDiscardEligible(frame, chunkSize)
	out := make(map[storage.ChunkID][]byte, len(pieces))
	for i, p := range pieces {
		out[startID+storage.ChunkID(i)] = p
	}
	return out
}

func TestTuneInDiscardsUntilFrameBoundary(t *testing.T) {
	ms, err := storage.NewMemoryStorage(16, 0, false)
	if err != nil {
		t.Fatalf("NewMemoryStorage: %v", err)
	}
	// next_frame starts at 3: frame A (ids 0..2) predates it and must be
	// fully discarded even though its first chunk carries the frame-start
	// marker; frame B (ids 3..5) starts exactly at next_frame and should
	// tune in and assemble.
	frameA := make([]byte, 40)
	frameB := make([]byte, 40)
	chunksA := packedChunks(t, frameA, 16, 0)
	chunksB := packedChunks(t, frameB, 16, 3)

	c := New(ms, Config{VideoBufferSz: 1, RateHz: 10, TuneInEnabled: true, StartChunkID: 3})

	for _, id := range []storage.ChunkID{0, 1, 2} {
		c.OnChunk(id, chunksA[id])
	}
	if len(c.queue) != 0 {
		t.Fatalf("frame predating next_frame should never reach the queue")
	}

	for _, id := range []storage.ChunkID{3, 4, 5} {
		c.OnChunk(id, chunksB[id])
	}
	if len(c.queue) == 0 {
		t.Fatalf("expected tune-in to accept once id reached next_frame and a full frame assembled")
	}
}

func TestSkipAheadScansToNextFrameBoundary(t *testing.T) {
	ms, err := storage.NewMemoryStorage(16, 0, true)
	if err != nil {
		t.Fatalf("NewMemoryStorage: %v", err)
	}
	// Frame 1 at ids 0..1, frame 2 (the one we'll skip to) at ids 2..3.
	f1 := make([]byte, 20)
	f2 := make([]byte, 20)
	c1 := storage.PackDiscardEligible(f1, 16)
	c2 := storage.PackDiscardEligible(f2, 16)
	all := append(append([][]byte{}, c1...), c2...)
	injected := ms.InjectChunks(all)
	if len(injected) != len(all) {
		t.Fatalf("InjectChunks returned %d ids, want %d", len(injected), len(all))
	}

	c := New(ms, Config{VideoBufferSz: 1, RateHz: 10, SkipModeEnabled: true, MissThreshold: 1, StartChunkID: 0})
	c.lastShowedChunkID = 0 // pretend we've shown the frame at id 0

	c.skipAhead()

	stats := c.Stats()
	if stats.ChunksSkipped == 0 {
		t.Fatalf("expected some chunks to be recorded as skipped")
	}
}
