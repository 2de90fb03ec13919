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

// Package tracker implements the client half of the rendezvous protocol
// (spec §6): register/unregister/get_peers requests, and consumption of
// the broker's other_peers/new_node/remove_node fan-out (spec.md
// supplemented feature 4, from PyPPSPP's TrackerServer/TrackedSwarm.py).
// The tracker server itself is out of scope; only this client is built.
package tracker

import (
	"encoding/json"
	"fmt"
)

// Endpoint is an [ip, port] pair, the wire shape every tracker message
// uses for peer addresses.
type Endpoint struct {
	IP   string
	Port int
}

// MarshalJSON encodes an Endpoint as the two-element tuple the protocol
// uses, not a JSON object.
func (e Endpoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{e.IP, e.Port})
}

// UnmarshalJSON decodes the two-element tuple form.
func (e *Endpoint) UnmarshalJSON(data []byte) error {
	var tuple [2]interface{}
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	ip, ok := tuple[0].(string)
	if !ok {
		return fmt.Errorf("tracker: endpoint[0] not a string")
	}
	portF, ok := tuple[1].(float64)
	if !ok {
		return fmt.Errorf("tracker: endpoint[1] not a number")
	}
	e.IP = ip
	e.Port = int(portF)
	return nil
}

// Message types, spec §6.
const (
	TypeRegister   = "register"
	TypeUnregister = "unregister"
	TypeGetPeers   = "get_peers"
	TypeOtherPeers = "other_peers"
	TypeNewNode    = "new_node"
	TypeRemoveNode = "remove_node"
)

// wireMessage is the single JSON shape that covers every client→server and
// server→client message; unused fields are simply absent on the wire.
type wireMessage struct {
	Type     string     `json:"type"`
	SwarmID  string     `json:"swarm_id"`
	Endpoint *Endpoint  `json:"endpoint,omitempty"`
	Details  []Endpoint `json:"details,omitempty"`
}
