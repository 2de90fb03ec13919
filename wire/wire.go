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

// Package wire implements the PPSPP (RFC 7574) on-wire message codec: the
// destination-channel-prefixed packet, its sequence of type-tagged
// messages, and the HANDSHAKE TLV option set.
package wire

import (
	"encoding/binary"
	"fmt"
)

// MessageType is the 1-byte type code prefixing every message body.
type MessageType uint8

const (
	MsgHandshake MessageType = 0
	MsgData      MessageType = 1
	MsgAck       MessageType = 2
	MsgHave      MessageType = 3
	MsgIntegrity MessageType = 4
	MsgRequest   MessageType = 8
)

func (t MessageType) String() string {
	switch t {
	case MsgHandshake:
		return "HANDSHAKE"
	case MsgData:
		return "DATA"
	case MsgAck:
		return "ACK"
	case MsgHave:
		return "HAVE"
	case MsgIntegrity:
		return "INTEGRITY"
	case MsgRequest:
		return "REQUEST"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// MalformedMessage is returned whenever a length field exceeds the
// remaining bytes, the handshake options lack their end-of-options
// terminator, an unknown option code or an unknown message type code is
// encountered (spec §4.1, §7 ProtocolViolation). The codec does not check
// which handshake options are present.
type MalformedMessage struct {
	Reason string
}

func (e *MalformedMessage) Error() string {
	return "malformed PPSPP message: " + e.Reason
}

func malformed(format string, args ...interface{}) error {
	return &MalformedMessage{Reason: fmt.Sprintf(format, args...)}
}

// Packet is a parsed PPSPP datagram/frame: a destination channel followed
// by zero or more messages.
type Packet struct {
	DestChannel uint32
	Messages    []Message
	// Goodbye is true when this packet is a goodbye handshake: a single
	// HANDSHAKE message whose SourceChannel is 0 (spec §4.1).
	Goodbye bool
}

// Message is the sum type of the six PPSPP message bodies.
type Message interface {
	Type() MessageType
}

// Handshake is message type 0.
type Handshake struct {
	SourceChannel uint32
	Options       Options
}

func (*Handshake) Type() MessageType { return MsgHandshake }

// Data is message type 1.
type Data struct {
	Start, End    uint32
	TimestampUs   uint64
	Payload       []byte
}

func (*Data) Type() MessageType { return MsgData }

// Ack is message type 2.
type Ack struct {
	Start, End      uint32
	OneWayDelayUs   uint64
}

func (*Ack) Type() MessageType { return MsgAck }

// Have is message type 3.
type Have struct {
	Start, End uint32
}

func (*Have) Type() MessageType { return MsgHave }

// Integrity is message type 4.
type Integrity struct {
	Start, End uint32
	Hash       []byte
}

func (*Integrity) Type() MessageType { return MsgIntegrity }

// Request is message type 8.
type Request struct {
	Start, End uint32
}

func (*Request) Type() MessageType { return MsgRequest }

// hashLen returns the digest length in bytes for a configured hash type
// (TLV option 4 / spec §6); used to know how many bytes an INTEGRITY
// message's hash field occupies.
func hashLen(hashType uint8) int {
	switch hashType {
	case 0: // SHA-1
		return 20
	case 1: // SHA-224
		return 28
	case 2: // SHA-256
		return 32
	case 3: // SHA-384
		return 48
	case 4: // SHA-512
		return 64
	default:
		return 20
	}
}

// EncodePacket serializes a packet: channel prefix then each message in
// order.
func EncodePacket(destChannel uint32, msgs ...Message) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, destChannel)
	for _, m := range msgs {
		buf = append(buf, encodeMessage(m)...)
	}
	return buf
}

func encodeMessage(m Message) []byte {
	switch v := m.(type) {
	case *Handshake:
		return encodeHandshake(v)
	case *Data:
		return encodeData(v)
	case *Ack:
		return encodeAck(v)
	case *Have:
		return encodeHave(v)
	case *Integrity:
		return encodeIntegrity(v)
	case *Request:
		return encodeRequest(v)
	default:
		panic(fmt.Sprintf("wire: unknown message implementation %T", m))
	}
}

func encodeHandshake(h *Handshake) []byte {
	out := []byte{byte(MsgHandshake)}
	var sc [4]byte
	binary.BigEndian.PutUint32(sc[:], h.SourceChannel)
	out = append(out, sc[:]...)
	out = append(out, h.Options.Encode()...)
	return out
}

func encodeData(d *Data) []byte {
	out := make([]byte, 1+4+4+8)
	out[0] = byte(MsgData)
	binary.BigEndian.PutUint32(out[1:5], d.Start)
	binary.BigEndian.PutUint32(out[5:9], d.End)
	binary.BigEndian.PutUint64(out[9:17], d.TimestampUs)
	return append(out, d.Payload...)
}

func encodeAck(a *Ack) []byte {
	out := make([]byte, 1+4+4+8)
	out[0] = byte(MsgAck)
	binary.BigEndian.PutUint32(out[1:5], a.Start)
	binary.BigEndian.PutUint32(out[5:9], a.End)
	binary.BigEndian.PutUint64(out[9:17], a.OneWayDelayUs)
	return out
}

func encodeHave(h *Have) []byte {
	out := make([]byte, 1+4+4)
	out[0] = byte(MsgHave)
	binary.BigEndian.PutUint32(out[1:5], h.Start)
	binary.BigEndian.PutUint32(out[5:9], h.End)
	return out
}

func encodeIntegrity(i *Integrity) []byte {
	out := make([]byte, 1+4+4)
	out[0] = byte(MsgIntegrity)
	binary.BigEndian.PutUint32(out[1:5], i.Start)
	binary.BigEndian.PutUint32(out[5:9], i.End)
	return append(out, i.Hash...)
}

func encodeRequest(r *Request) []byte {
	out := make([]byte, 1+4+4)
	out[0] = byte(MsgRequest)
	binary.BigEndian.PutUint32(out[1:5], r.Start)
	binary.BigEndian.PutUint32(out[5:9], r.End)
	return out
}

// DecodePacket parses a full PPSPP packet (spec §4.1). hashType selects the
// digest length expected in INTEGRITY messages; callers with no prior
// handshake (first contact) pass the peer-default of 0 (SHA-1).
func DecodePacket(data []byte, hashType uint8) (*Packet, error) {
	if len(data) < 4 {
		return nil, malformed("packet shorter than channel prefix (%d bytes)", len(data))
	}
	p := &Packet{DestChannel: binary.BigEndian.Uint32(data[0:4])}
	rest := data[4:]
	if len(rest) == 0 {
		// A channel prefix with no following message is a keepalive
		// (original PyPPSPP SwarmMember.GotKeepalive); not an error.
		return p, nil
	}
	for len(rest) > 0 {
		msg, n, err := decodeMessage(rest, hashType)
		if err != nil {
			return nil, err
		}
		p.Messages = append(p.Messages, msg)
		rest = rest[n:]
	}
	if len(p.Messages) == 1 {
		if hs, ok := p.Messages[0].(*Handshake); ok && hs.SourceChannel == 0 {
			p.Goodbye = true
		}
	}
	return p, nil
}

func decodeMessage(data []byte, hashType uint8) (Message, int, error) {
	if len(data) < 1 {
		return nil, 0, malformed("missing message type byte")
	}
	typ := MessageType(data[0])
	body := data[1:]
	switch typ {
	case MsgHandshake:
		return decodeHandshake(body)
	case MsgData:
		return decodeData(body)
	case MsgAck:
		return decodeAck(body)
	case MsgHave:
		return decodeHave(body)
	case MsgIntegrity:
		return decodeIntegrity(body, hashType)
	case MsgRequest:
		return decodeRequest(body)
	default:
		return nil, 0, malformed("unknown message type code %d", uint8(typ))
	}
}

func decodeHandshake(body []byte) (Message, int, error) {
	if len(body) < 4 {
		return nil, 0, malformed("handshake shorter than source channel field")
	}
	h := &Handshake{SourceChannel: binary.BigEndian.Uint32(body[0:4])}
	opts, n, err := DecodeOptions(body[4:])
	if err != nil {
		return nil, 0, err
	}
	h.Options = opts
	return h, 1 + 4 + n, nil
}

func decodeData(body []byte) (Message, int, error) {
	if len(body) < 4+4+8 {
		return nil, 0, malformed("DATA shorter than fixed header")
	}
	d := &Data{
		Start:       binary.BigEndian.Uint32(body[0:4]),
		End:         binary.BigEndian.Uint32(body[4:8]),
		TimestampUs: binary.BigEndian.Uint64(body[8:16]),
	}
	// DATA's payload runs to the end of the packet: PPSPP has no explicit
	// payload-length field, chunk size is negotiated at handshake.
	d.Payload = append([]byte(nil), body[16:]...)
	return d, 1 + len(body), nil
}

func decodeAck(body []byte) (Message, int, error) {
	if len(body) < 4+4+8 {
		return nil, 0, malformed("ACK shorter than fixed header")
	}
	a := &Ack{
		Start:         binary.BigEndian.Uint32(body[0:4]),
		End:           binary.BigEndian.Uint32(body[4:8]),
		OneWayDelayUs: binary.BigEndian.Uint64(body[8:16]),
	}
	return a, 1 + 16, nil
}

func decodeHave(body []byte) (Message, int, error) {
	if len(body) < 4+4 {
		return nil, 0, malformed("HAVE shorter than fixed header")
	}
	h := &Have{
		Start: binary.BigEndian.Uint32(body[0:4]),
		End:   binary.BigEndian.Uint32(body[4:8]),
	}
	return h, 1 + 8, nil
}

func decodeIntegrity(body []byte, hashType uint8) (Message, int, error) {
	hl := hashLen(hashType)
	if len(body) < 4+4+hl {
		return nil, 0, malformed("INTEGRITY shorter than header+hash(%d)", hl)
	}
	i := &Integrity{
		Start: binary.BigEndian.Uint32(body[0:4]),
		End:   binary.BigEndian.Uint32(body[4:8]),
		Hash:  append([]byte(nil), body[8:8+hl]...),
	}
	return i, 1 + 8 + hl, nil
}

func decodeRequest(body []byte) (Message, int, error) {
	if len(body) < 4+4 {
		return nil, 0, malformed("REQUEST shorter than fixed header")
	}
	r := &Request{
		Start: binary.BigEndian.Uint32(body[0:4]),
		End:   binary.BigEndian.Uint32(body[4:8]),
	}
	return r, 1 + 8, nil
}

// BuildGoodbye returns the HANDSHAKE-only packet that signals peer teardown
// (spec §4.1: source_channel = 0, version options only).
func BuildGoodbye(destChannel uint32, swarmVersion, minVersion uint8) []byte {
	opts := Options{SwarmVersion: &swarmVersion, MinVersion: &minVersion}
	return EncodePacket(destChannel, &Handshake{SourceChannel: 0, Options: opts})
}
