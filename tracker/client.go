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
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/singleflight"
)

// Callbacks receives the three broker fan-out message types a tracker
// connection consumes (spec §4.7 "Tracker integration", supplemented
// feature 4).
type Callbacks struct {
	OnOtherPeers func(swarmID []byte, peers []Endpoint)
	OnNewNode    func(swarmID []byte, peer Endpoint)
	OnRemoveNode func(swarmID []byte, peer Endpoint)
}

// Client is one connection to a rendezvous server (spec §6, TCP port
// 6777 by default).
type Client struct {
	mu   sync.Mutex
	conn net.Conn

	cb Callbacks
	sf singleflight.Group

	log log.Logger

	closed bool
}

// maxRetries and retryDelay implement spec §9's startup retry policy:
// "up to 3 retries spaced 1s apart; after that, the process exits".
const (
	maxRetries = 3
	retryDelay = time.Second
)

// Dial connects to addr, retrying up to maxRetries times spaced
// retryDelay apart before giving up.
func Dial(addr string) (*Client, error) {
	var conn net.Conn
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		if attempt < maxRetries {
			time.Sleep(retryDelay)
		}
	}
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, log: log.New("tracker", addr)}, nil
}

// SetCallbacks installs the broker-message handlers, replacing any
// previous set.
func (c *Client) SetCallbacks(cb Callbacks) {
	c.mu.Lock()
	c.cb = cb
	c.mu.Unlock()
}

func (c *Client) send(msg wireMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return writeFrame(c.conn, payload)
}

// Register announces self as a member of swarmID at endpoint (spec §6
// "register").
func (c *Client) Register(swarmID []byte, self Endpoint) error {
	return c.send(wireMessage{Type: TypeRegister, SwarmID: hex.EncodeToString(swarmID), Endpoint: &self})
}

// Unregister withdraws membership (spec §6 "unregister").
func (c *Client) Unregister(swarmID []byte, self Endpoint) error {
	return c.send(wireMessage{Type: TypeUnregister, SwarmID: hex.EncodeToString(swarmID), Endpoint: &self})
}

// GetPeers requests the current member list for swarmID (spec §6
// "get_peers"); the response arrives asynchronously as an other_peers
// message dispatched to Callbacks.OnOtherPeers. Concurrent calls for the
// same swarmID are collapsed into a single request via singleflight,
// matching netstore.go's duplicate-fetch collapsing idiom.
func (c *Client) GetPeers(swarmID []byte) error {
	key := hex.EncodeToString(swarmID)
	_, err, _ := c.sf.Do(key, func() (interface{}, error) {
		return nil, c.send(wireMessage{Type: TypeGetPeers, SwarmID: key})
	})
	return err
}

// Listen reads frames until the connection closes or an unrecoverable
// decode error occurs, dispatching each to the installed Callbacks. It is
// meant to run on its own goroutine; the event loop only ever touches the
// Client through Register/Unregister/GetPeers/Close (spec §5's "tracker
// HTTP/TCP call" suspension point).
func (c *Client) Listen() error {
	for {
		payload, err := readFrame(c.conn)
		if err != nil {
			return err
		}
		var msg wireMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.log.Debug("malformed tracker message", "err", err)
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg wireMessage) {
	swarmID, err := hex.DecodeString(msg.SwarmID)
	if err != nil {
		c.log.Debug("tracker message with invalid swarm_id", "swarm_id", msg.SwarmID)
		return
	}

	c.mu.Lock()
	cb := c.cb
	c.mu.Unlock()

	switch msg.Type {
	case TypeOtherPeers:
		if cb.OnOtherPeers != nil {
			cb.OnOtherPeers(swarmID, msg.Details)
		}
	case TypeNewNode:
		if cb.OnNewNode != nil && msg.Endpoint != nil {
			cb.OnNewNode(swarmID, *msg.Endpoint)
		}
	case TypeRemoveNode:
		if cb.OnRemoveNode != nil && msg.Endpoint != nil {
			cb.OnRemoveNode(swarmID, *msg.Endpoint)
		}
	default:
		c.log.Debug("unexpected tracker message type", "type", msg.Type)
	}
}

// Close shuts down the underlying connection, unblocking any in-progress
// Listen call.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
