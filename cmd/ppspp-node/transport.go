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

package main

import (
	"encoding/binary"
	"net"
	"sync"

	"github.com/holisticode/ppspp/framer"
)

// streamTransport adapts a reliable net.Conn to peer.Transport, delimiting
// PPSPP packets on the wire with the same length-prefix convention
// framer.StreamFramer expects on read.
type streamTransport struct {
	mu   sync.Mutex
	conn net.Conn
}

func newStreamTransport(conn net.Conn) *streamTransport {
	return &streamTransport{conn: conn}
}

func (t *streamTransport) SendPacket(data []byte) error {
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(data)))

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.conn.Write(prefix[:]); err != nil {
		return err
	}
	_, err := t.conn.Write(data)
	return err
}

func (t *streamTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }

func (t *streamTransport) Datagram() bool { return false }

// readLoop reads raw bytes off the connection and feeds them through a
// StreamFramer, invoking onPacket with each delimited PPSPP packet.
func (t *streamTransport) readLoop(onPacket func(data []byte)) error {
	sf := &framer.StreamFramer{Callback: onPacket}
	buf := make([]byte, 64*1024)
	for {
		n, err := t.conn.Read(buf)
		if n > 0 {
			sf.Feed(buf[:n])
		}
		if err != nil {
			return err
		}
	}
}

func (t *streamTransport) Close() error {
	return t.conn.Close()
}
