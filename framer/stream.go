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

// Package framer implements the two length-prefixed reassembly rules of
// spec §4.2: raw byte framing for stream transports, and application-frame
// framing over a sequence of chunk payloads for live/VOD content.
package framer

import "encoding/binary"

// StreamFramer accumulates bytes from a stream transport and emits
// complete big-endian-u32-length-prefixed frames to Callback. It never
// discards partial data except by design: a frame is only handed off once
// fully buffered.
type StreamFramer struct {
	Callback func(frame []byte)

	buf []byte
}

// Feed appends newly-read bytes and drains as many complete frames as are
// available, in order. Splitting the same input stream at arbitrary byte
// boundaries and calling Feed repeatedly yields the identical callback
// sequence (spec §8 "Framer idempotence").
func (f *StreamFramer) Feed(data []byte) {
	f.buf = append(f.buf, data...)
	for {
		if len(f.buf) < 4 {
			return
		}
		l := binary.BigEndian.Uint32(f.buf[0:4])
		need := int(l)
		if len(f.buf)-4 < need {
			return
		}
		frame := f.buf[4 : 4+need]
		f.buf = f.buf[4+need:]
		f.Callback(frame)
	}
}
