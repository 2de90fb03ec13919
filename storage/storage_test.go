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
	"bytes"
	"testing"

	"github.com/holisticode/ppspp/framer"
)

func TestLiveDiscardWindow(t *testing.T) {
	ms, err := NewMemoryStorage(1024, 1000, true)
	if err != nil {
		t.Fatalf("NewMemoryStorage: %v", err)
	}

	payloads := make([][]byte, 1500)
	for i := range payloads {
		payloads[i] = []byte{byte(i)}
	}
	ms.InjectChunks(payloads)

	min, max, ok := ms.Have().Bounds()
	if !ok {
		t.Fatalf("expected non-empty have-set")
	}
	if min != 500 || max != 1499 {
		t.Fatalf("have bounds = [%d,%d], want [500,1499]", min, max)
	}
	if ms.Have().Len() != 1000 {
		t.Fatalf("have len = %d, want 1000", ms.Have().Len())
	}

	lastDiscarded, haveDiscarded := ms.LastDiscardedID()
	if !haveDiscarded || lastDiscarded != 499 {
		t.Fatalf("lastDiscardedID = (%d,%v), want (499,true)", lastDiscarded, haveDiscarded)
	}

	if _, err := ms.GetChunk(100, false); err != ErrChunkDiscarded {
		t.Fatalf("GetChunk(100) err = %v, want ErrChunkDiscarded", err)
	}
	if data, err := ms.GetChunk(100, true); err != nil || data != nil {
		t.Fatalf("GetChunk(100, allowMissing) = (%v,%v), want (nil,nil)", data, err)
	}
}

func TestMemoryStorageDuplicateRejected(t *testing.T) {
	ms, err := NewMemoryStorage(1024, 0, false)
	if err != nil {
		t.Fatalf("NewMemoryStorage: %v", err)
	}
	if err := ms.SaveChunk(5, []byte("hello")); err != nil {
		t.Fatalf("SaveChunk: %v", err)
	}
	if err := ms.SaveChunk(5, []byte("again")); err != ErrDuplicateChunk {
		t.Fatalf("second SaveChunk err = %v, want ErrDuplicateChunk", err)
	}
}

func TestHaveSetRanges(t *testing.T) {
	h := NewHaveSet()
	for _, id := range []ChunkID{0, 1, 2, 3, 7, 8, 9, 10, 11} {
		h.Add(id)
	}
	ranges := h.Ranges()
	want := []Range{{0, 3}, {7, 11}}
	if len(ranges) != len(want) {
		t.Fatalf("ranges = %v, want %v", ranges, want)
	}
	for i := range want {
		if ranges[i] != want[i] {
			t.Fatalf("ranges[%d] = %v, want %v", i, ranges[i], want[i])
		}
	}
}

func TestPackDiscardEligibleRoundTrip(t *testing.T) {
	frame := []byte("the quick brown fox jumps over the lazy dog, repeatedly, to pad past one chunk body")
	const chunkSize = 16

	chunks := PackDiscardEligible(frame, chunkSize)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for a frame longer than one body, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len(c) != chunkSize {
			t.Fatalf("chunk length = %d, want %d", len(c), chunkSize)
		}
	}

	marker0, _ := UnpackMarker(chunks[0])
	if marker0 != FrameStartMarker {
		t.Fatalf("first chunk marker = %d, want FrameStartMarker", marker0)
	}
	for i := 1; i < len(chunks); i++ {
		marker, _ := UnpackMarker(chunks[i])
		if marker != FrameContinuationMarker {
			t.Fatalf("chunk %d marker = %d, want FrameContinuationMarker", i, marker)
		}
	}

	var got []byte
	var gotRange framer.ChunkRange
	cf := &framer.ContentFramer{
		Callback: func(f []byte, r framer.ChunkRange) {
			got = f
			gotRange = r
		},
	}
	for i, c := range chunks {
		_, body := UnpackMarker(c)
		cf.DataReceived(body, uint32(i))
	}
	if !bytes.Equal(got, frame) {
		t.Fatalf("round-tripped frame = %q, want %q", got, frame)
	}
	if gotRange.Start != 0 || gotRange.End != uint32(len(chunks)-1) {
		t.Fatalf("chunk range = %+v, want [0,%d]", gotRange, len(chunks)-1)
	}
}

func TestSourceRangeOptimizedForm(t *testing.T) {
	ms, err := NewMemoryStorage(1024, 1000, true)
	if err != nil {
		t.Fatalf("NewMemoryStorage: %v", err)
	}
	payloads := make([][]byte, 1500)
	for i := range payloads {
		payloads[i] = []byte{0}
	}
	ms.InjectChunks(payloads)

	r, ok := ms.SourceRange()
	if !ok {
		t.Fatalf("expected SourceRange ok after injection")
	}
	if r.Min != 500 || r.Max != 1499 {
		t.Fatalf("SourceRange = %+v, want [500,1499]", r)
	}
}
