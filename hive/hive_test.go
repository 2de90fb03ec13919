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

package hive

import (
	"testing"

	"github.com/holisticode/ppspp/config"
	"github.com/holisticode/ppspp/storage"
	"github.com/holisticode/ppspp/swarm"
)

func TestRouteChannelResolvesBoundSwarm(t *testing.T) {
	h, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	st, err := storage.NewMemoryStorage(1024, 0, true)
	if err != nil {
		t.Fatalf("NewMemoryStorage: %v", err)
	}
	s := swarm.New([]byte("swarmid"), config.NewConfig(), st)
	if err := h.AddSwarm(s); err != nil {
		t.Fatalf("AddSwarm: %v", err)
	}
	h.BindChannel(42, []byte("swarmid"))

	got, err := h.RouteChannel(42)
	if err != nil {
		t.Fatalf("RouteChannel: %v", err)
	}
	if got != s {
		t.Fatalf("RouteChannel returned a different swarm")
	}

	if _, err := h.RouteChannel(99); err != ErrUnknownChannel {
		t.Fatalf("RouteChannel(99) err = %v, want ErrUnknownChannel", err)
	}
}

func TestRemoveSwarmDropsChannelRoutes(t *testing.T) {
	h, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	st, err := storage.NewMemoryStorage(1024, 0, true)
	if err != nil {
		t.Fatalf("NewMemoryStorage: %v", err)
	}
	id := []byte("swarmid")
	s := swarm.New(id, config.NewConfig(), st)
	if err := h.AddSwarm(s); err != nil {
		t.Fatalf("AddSwarm: %v", err)
	}
	h.BindChannel(7, id)

	h.RemoveSwarm(id)

	if _, err := h.Swarm(id); err != ErrUnknownSwarm {
		t.Fatalf("Swarm after RemoveSwarm: err = %v, want ErrUnknownSwarm", err)
	}
	if _, err := h.RouteChannel(7); err != ErrUnknownChannel {
		t.Fatalf("RouteChannel after RemoveSwarm: err = %v, want ErrUnknownChannel", err)
	}
}

func TestAdmitEndpointReportsPriorSighting(t *testing.T) {
	h, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if seen := h.AdmitEndpoint("1.2.3.4:9"); seen {
		t.Fatalf("first sighting should report seen=false")
	}
	if seen := h.AdmitEndpoint("1.2.3.4:9"); !seen {
		t.Fatalf("second sighting should report seen=true")
	}
}
