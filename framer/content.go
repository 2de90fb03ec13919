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

package framer

import "encoding/binary"

// ChunkRange is the inclusive [Start, End] span of ChunkIds that
// contributed bytes to one assembled application frame.
type ChunkRange struct {
	Start, End uint32
}

// ContentFramer reassembles length-prefixed application frames from a
// sequence of chunk payloads (spec §4.2, live/VOD content). Each accepted
// chunk's payload is appended; once 4 bytes of length prefix plus the
// indicated frame length are present, the frame is emitted along with the
// range of ChunkIds that contributed it. Any bytes left over in the chunk
// that completed the frame are padding and are discarded, since the source
// pads every application frame out to a whole number of chunks.
type ContentFramer struct {
	Callback func(frame []byte, r ChunkRange)

	buf        []byte
	haveRange  bool
	rangeStart uint32
	rangeEnd   uint32
}

// DataReceived feeds one chunk's payload, tagged with its ChunkId, into the
// framer.
func (f *ContentFramer) DataReceived(payload []byte, chunkID uint32) {
	if !f.haveRange {
		f.rangeStart = chunkID
		f.haveRange = true
	}
	f.rangeEnd = chunkID
	f.buf = append(f.buf, payload...)

	if len(f.buf) < 4 {
		return
	}
	l := binary.BigEndian.Uint32(f.buf[0:4])
	need := int(l)
	if len(f.buf)-4 < need {
		return
	}
	frame := append([]byte(nil), f.buf[4:4+need]...)
	r := ChunkRange{Start: f.rangeStart, End: f.rangeEnd}

	// Discard any trailing padding bytes of this chunk and reset for the
	// next frame.
	f.buf = nil
	f.haveRange = false

	f.Callback(frame, r)
}

// Reset clears any partially-assembled frame state. The live consumer's
// skip-mode recovery (spec §4.8) installs a new ContentFramer instead of
// calling Reset.
func (f *ContentFramer) Reset() {
	f.buf = nil
	f.haveRange = false
}
