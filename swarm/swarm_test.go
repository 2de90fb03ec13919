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

package swarm

import (
	"testing"
	"time"

	"github.com/tilinna/clock"

	"github.com/holisticode/ppspp/config"
	"github.com/holisticode/ppspp/peer"
	"github.com/holisticode/ppspp/storage"
)

type nopTransport struct{ addr string }

func (t nopTransport) SendPacket([]byte) error { return nil }
func (t nopTransport) RemoteAddr() string      { return t.addr }
func (t nopTransport) Datagram() bool          { return false }

func TestAckRangeWidensToContiguousPossession(t *testing.T) {
	have := storage.NewHaveSet()
	for _, id := range []storage.ChunkID{0, 1, 2, 3, 7, 8, 9, 10, 11} {
		have.Add(id)
	}

	if min, max := AckRange(have, 2, 3); min != 0 || max != 3 {
		t.Fatalf("AckRange(2,3) = (%d,%d), want (0,3)", min, max)
	}
	if min, max := AckRange(have, 8, 9); min != 7 || max != 11 {
		t.Fatalf("AckRange(8,9) = (%d,%d), want (7,11)", min, max)
	}
}

func TestPolicyFromStringDefaultsToGreedy(t *testing.T) {
	if PolicyFromString("") != PolicyGreedy {
		t.Fatalf("empty policy string should default to PolicyGreedy")
	}
	if PolicyFromString("bogus") != PolicyGreedy {
		t.Fatalf("unrecognized policy string should default to PolicyGreedy")
	}
	if PolicyFromString("tight-reqmax") != PolicyTightReqMax {
		t.Fatalf("\"tight-reqmax\" should select PolicyTightReqMax")
	}
}

func TestAddPeerRejectsOverCapacity(t *testing.T) {
	st, err := storage.NewMemoryStorage(1024, 0, true)
	if err != nil {
		t.Fatalf("NewMemoryStorage: %v", err)
	}
	cfg := config.NewConfig()
	cfg.MaxPeers = 1
	s := New([]byte("swarmid"), cfg, st)
	if s.PeerCount() != 0 {
		t.Fatalf("new swarm should have no peers")
	}

	mk := func(num int, addr string) *peer.Peer {
		return peer.New(peer.Params{Num: num, LocalChannel: uint32(num), ChunkSize: 1024,
			Storage: st, Clock: clock.NewMock(time.Unix(0, 0)), Transport: nopTransport{addr: addr}})
	}
	p1, p2 := mk(1, "a"), mk(2, "b")
	defer p1.Destroy(true)
	defer p2.Destroy(true)
	if err := s.AddPeer(p1); err != nil {
		t.Fatalf("AddPeer(p1) = %v, want nil", err)
	}
	if err := s.AddPeer(p2); err != ErrFull {
		t.Fatalf("AddPeer(p2) over MaxPeers=1 = %v, want ErrFull", err)
	}
	if s.PeerCount() != 1 {
		t.Fatalf("PeerCount() = %d, want 1", s.PeerCount())
	}
}
