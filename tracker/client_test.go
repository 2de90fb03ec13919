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

package tracker

import (
	"encoding/hex"
	"encoding/json"
	"net"
	"testing"
)

func TestEndpointJSONRoundTripsAsTuple(t *testing.T) {
	e := Endpoint{IP: "10.0.0.1", Port: 6778}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `["10.0.0.1",6778]` {
		t.Fatalf("Endpoint encoded as %s, want a two-element tuple", data)
	}
	var got Endpoint
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != e {
		t.Fatalf("round trip = %+v, want %+v", got, e)
	}
}

func TestRegisterSendsExpectedFrame(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	c := &Client{conn: client}

	swarmID := []byte{0xde, 0xad, 0xbe, 0xef}
	done := make(chan error, 1)
	go func() { done <- c.Register(swarmID, Endpoint{IP: "1.2.3.4", Port: 9}) }()

	payload, err := readFrame(server)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Register: %v", err)
	}

	var msg wireMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if msg.Type != TypeRegister || msg.SwarmID != hex.EncodeToString(swarmID) {
		t.Fatalf("decoded message = %+v", msg)
	}
	if msg.Endpoint == nil || *msg.Endpoint != (Endpoint{IP: "1.2.3.4", Port: 9}) {
		t.Fatalf("endpoint = %+v", msg.Endpoint)
	}
}

func TestDispatchRoutesBrokerMessages(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	c := &Client{conn: client}

	var gotOther []Endpoint
	var gotNew, gotRemoved Endpoint
	c.SetCallbacks(Callbacks{
		OnOtherPeers: func(_ []byte, peers []Endpoint) { gotOther = peers },
		OnNewNode:    func(_ []byte, p Endpoint) { gotNew = p },
		OnRemoveNode: func(_ []byte, p Endpoint) { gotRemoved = p },
	})

	swarmHex := hex.EncodeToString([]byte("abc"))
	send := func(msg wireMessage) {
		payload, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if err := writeFrame(server, payload); err != nil {
			t.Fatalf("writeFrame: %v", err)
		}
	}

	go func() {
		send(wireMessage{Type: TypeOtherPeers, SwarmID: swarmHex, Details: []Endpoint{{IP: "a", Port: 1}, {IP: "b", Port: 2}}})
		send(wireMessage{Type: TypeNewNode, SwarmID: swarmHex, Endpoint: &Endpoint{IP: "c", Port: 3}})
		send(wireMessage{Type: TypeRemoveNode, SwarmID: swarmHex, Endpoint: &Endpoint{IP: "d", Port: 4}})
		client.Close()
	}()

	_ = c.Listen() // returns once the pipe closes

	if len(gotOther) != 2 || gotOther[1].IP != "b" {
		t.Fatalf("other_peers dispatch = %+v", gotOther)
	}
	if gotNew.IP != "c" {
		t.Fatalf("new_node dispatch = %+v", gotNew)
	}
	if gotRemoved.IP != "d" {
		t.Fatalf("remove_node dispatch = %+v", gotRemoved)
	}
}
