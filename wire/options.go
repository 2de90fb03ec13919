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

package wire

import "encoding/binary"

// Option TLV codes, spec §4.1.
const (
	OptSwarmVersion       = 0
	OptMinVersion         = 1
	OptSwarmID            = 2
	OptContentIntegrity   = 3
	OptMerkleHashFunction = 4
	OptLiveSignatureAlgo  = 5
	OptChunkAddressing    = 6
	OptLiveDiscardWindow  = 7
	OptSupportedMessages  = 8
	OptChunkSize          = 9
	OptPeerUUID           = 10
	OptEndOfOptions       = 255
)

// Options holds the decoded HANDSHAKE TLV option set. Only "chunk
// addressing by 32-bit chunk index" and chunk size 1024 are required to be
// supported (spec §4.1); other values are parsed but may be rejected by the
// peer state machine.
type Options struct {
	SwarmVersion          *uint8
	MinVersion            *uint8
	SwarmID               []byte
	ContentIntegrityScheme *uint8
	MerkleHashFunction    *uint8
	LiveSignatureAlgo     *uint8
	ChunkAddressingMethod *uint8
	LiveDiscardWindow     *uint32
	SupportedMessages     []byte
	ChunkSize             *uint32
	PeerUUID              []byte
}

// Encode serializes the option set, terminated by OptEndOfOptions.
func (o Options) Encode() []byte {
	var out []byte
	put8 := func(code byte, v *uint8) {
		if v == nil {
			return
		}
		out = append(out, code, *v)
	}
	put8(OptSwarmVersion, o.SwarmVersion)
	put8(OptMinVersion, o.MinVersion)
	if o.SwarmID != nil {
		out = append(out, OptSwarmID)
		var l [2]byte
		binary.BigEndian.PutUint16(l[:], uint16(len(o.SwarmID)))
		out = append(out, l[:]...)
		out = append(out, o.SwarmID...)
	}
	put8(OptContentIntegrity, o.ContentIntegrityScheme)
	put8(OptMerkleHashFunction, o.MerkleHashFunction)
	put8(OptLiveSignatureAlgo, o.LiveSignatureAlgo)
	put8(OptChunkAddressing, o.ChunkAddressingMethod)
	if o.LiveDiscardWindow != nil {
		out = append(out, OptLiveDiscardWindow)
		var v [4]byte
		binary.BigEndian.PutUint32(v[:], *o.LiveDiscardWindow)
		out = append(out, v[:]...)
	}
	if o.SupportedMessages != nil {
		out = append(out, OptSupportedMessages, byte(len(o.SupportedMessages)))
		out = append(out, o.SupportedMessages...)
	}
	if o.ChunkSize != nil {
		out = append(out, OptChunkSize)
		var v [4]byte
		binary.BigEndian.PutUint32(v[:], *o.ChunkSize)
		out = append(out, v[:]...)
	}
	if o.PeerUUID != nil {
		out = append(out, OptPeerUUID)
		out = append(out, o.PeerUUID...)
	}
	out = append(out, OptEndOfOptions)
	return out
}

// DecodeOptions parses a TLV option sequence until OptEndOfOptions,
// returning the number of bytes consumed (including the terminator).
func DecodeOptions(data []byte) (Options, int, error) {
	var o Options
	i := 0
	for {
		if i >= len(data) {
			return o, 0, malformed("handshake options missing end-of-options terminator")
		}
		code := data[i]
		i++
		if code == OptEndOfOptions {
			return o, i, nil
		}
		switch code {
		case OptSwarmVersion:
			v, err := readU8(data, i)
			if err != nil {
				return o, 0, err
			}
			o.SwarmVersion = &v
			i++
		case OptMinVersion:
			v, err := readU8(data, i)
			if err != nil {
				return o, 0, err
			}
			o.MinVersion = &v
			i++
		case OptSwarmID:
			if i+2 > len(data) {
				return o, 0, malformed("swarm-id option truncated length field")
			}
			l := int(binary.BigEndian.Uint16(data[i : i+2]))
			i += 2
			if i+l > len(data) {
				return o, 0, malformed("swarm-id option length %d exceeds remaining bytes", l)
			}
			o.SwarmID = append([]byte(nil), data[i:i+l]...)
			i += l
		case OptContentIntegrity:
			v, err := readU8(data, i)
			if err != nil {
				return o, 0, err
			}
			o.ContentIntegrityScheme = &v
			i++
		case OptMerkleHashFunction:
			v, err := readU8(data, i)
			if err != nil {
				return o, 0, err
			}
			o.MerkleHashFunction = &v
			i++
		case OptLiveSignatureAlgo:
			v, err := readU8(data, i)
			if err != nil {
				return o, 0, err
			}
			o.LiveSignatureAlgo = &v
			i++
		case OptChunkAddressing:
			v, err := readU8(data, i)
			if err != nil {
				return o, 0, err
			}
			o.ChunkAddressingMethod = &v
			i++
		case OptLiveDiscardWindow:
			if i+4 > len(data) {
				return o, 0, malformed("live-discard-window option truncated")
			}
			v := binary.BigEndian.Uint32(data[i : i+4])
			o.LiveDiscardWindow = &v
			i += 4
		case OptSupportedMessages:
			if i+1 > len(data) {
				return o, 0, malformed("supported-messages option missing length byte")
			}
			l := int(data[i])
			i++
			if i+l > len(data) {
				return o, 0, malformed("supported-messages option length %d exceeds remaining bytes", l)
			}
			o.SupportedMessages = append([]byte(nil), data[i:i+l]...)
			i += l
		case OptChunkSize:
			if i+4 > len(data) {
				return o, 0, malformed("chunk-size option truncated")
			}
			v := binary.BigEndian.Uint32(data[i : i+4])
			o.ChunkSize = &v
			i += 4
		case OptPeerUUID:
			if i+16 > len(data) {
				return o, 0, malformed("peer-uuid option truncated")
			}
			o.PeerUUID = append([]byte(nil), data[i:i+16]...)
			i += 16
		default:
			return o, 0, malformed("unknown handshake option code %d", code)
		}
	}
}

func readU8(data []byte, i int) (uint8, error) {
	if i >= len(data) {
		return 0, malformed("truncated 1-byte option value at offset %d", i)
	}
	return data[i], nil
}
