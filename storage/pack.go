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

import "encoding/binary"

// FrameStartMarker and FrameContinuationMarker are the discard-eligible
// marker byte values spec §4.5 assigns: a late joiner scans forward for
// FrameStartMarker to find the next frame boundary it may safely tune in
// on.
const (
	FrameStartMarker        byte = 0
	FrameContinuationMarker byte = 1
)

// PackDiscardEligible splits one application frame into a sequence of
// exactly chunkSize-byte chunks suitable for live distribution (spec
// §4.5): a 4-byte big-endian length prefix is prepended to frame, the
// result is split into (chunkSize-1)-byte bodies (the last zero-padded),
// and each body is prefixed with FrameStartMarker on the first chunk and
// FrameContinuationMarker on every subsequent chunk of this frame.
func PackDiscardEligible(frame []byte, chunkSize int) [][]byte {
	bodySize := chunkSize - 1
	header := make([]byte, 4+len(frame))
	binary.BigEndian.PutUint32(header[0:4], uint32(len(frame)))
	copy(header[4:], frame)

	n := (len(header) + bodySize - 1) / bodySize
	chunks := make([][]byte, n)
	for i := 0; i < n; i++ {
		chunk := make([]byte, chunkSize)
		if i == 0 {
			chunk[0] = FrameStartMarker
		} else {
			chunk[0] = FrameContinuationMarker
		}
		start := i * bodySize
		end := start + bodySize
		if end > len(header) {
			end = len(header)
		}
		copy(chunk[1:], header[start:end])
		chunks[i] = chunk
	}
	return chunks
}

// UnpackMarker splits a discard-eligible chunk into its marker byte and
// its body (the bytes a ContentFramer should be fed).
func UnpackMarker(chunk []byte) (marker byte, body []byte) {
	if len(chunk) == 0 {
		return FrameContinuationMarker, nil
	}
	return chunk[0], chunk[1:]
}
