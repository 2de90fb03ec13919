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

// Package ledbat implements the low-extra-delay background transport
// congestion controller (RFC 6817) used to gate sends on the datagram
// transport (spec §4.4). One Controller is kept per peer.
package ledbat

import (
	"math"
	"time"

	"github.com/tilinna/clock"
)

// Config parameterizes one Controller. Depths and gains default to the
// values spec §4.4 documents.
type Config struct {
	MSS              uint64
	InitCwnd         uint64 // multiple of MSS
	MinCwnd          uint64 // multiple of MSS
	TargetMs         float64
	Gain             float64
	AllowedIncrease  float64 // multiple of MSS
	BaseHistoryDepth int
	CurrentFilterDepth int

	// Clock is injected for deterministic testing of minute-rollover and
	// CTO expiry, grounded on the teacher's timer-abstraction convention
	// generalized with a real clock-injection library (tilinna/clock).
	Clock clock.Clock
}

// DefaultConfig returns the spec-documented defaults.
func DefaultConfig(mss uint64) Config {
	return Config{
		MSS:                mss,
		InitCwnd:           2,
		MinCwnd:            2,
		TargetMs:           100,
		Gain:               1,
		AllowedIncrease:    1,
		BaseHistoryDepth:   10,
		CurrentFilterDepth: 8,
		Clock:              clock.Realtime(),
	}
}

// Reason explains why TrySend refused a send.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonCWND
	ReasonCTO
)

// Controller is one peer's LEDBAT congestion state.
type Controller struct {
	cfg Config

	currentDelays []time.Duration // ring, oldest first, unset slots are -1
	baseDelays    []time.Duration // one per past minute, oldest first
	lastRollover  time.Time

	flightsize uint64
	cwnd       uint64
	cto        time.Duration

	srtt, rttvar time.Duration
	haveRTT      bool

	lastAckTime  time.Time
	lastSendTime time.Time
	lastLossTime time.Time
	inCTO        bool

	everSent bool
}

const unsetDelay = time.Duration(-1)

// New constructs a Controller with all histories empty and cwnd at
// InitCwnd*MSS.
func New(cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = clock.Realtime()
	}
	c := &Controller{
		cfg:           cfg,
		currentDelays: make([]time.Duration, cfg.CurrentFilterDepth),
		baseDelays:    make([]time.Duration, cfg.BaseHistoryDepth),
		cwnd:          cfg.InitCwnd * cfg.MSS,
		cto:           time.Second,
	}
	for i := range c.currentDelays {
		c.currentDelays[i] = unsetDelay
	}
	for i := range c.baseDelays {
		c.baseDelays[i] = unsetDelay
	}
	return c
}

// CWND returns the current congestion window in bytes.
func (c *Controller) CWND() uint64 { return c.cwnd }

// Flightsize returns bytes currently outstanding.
func (c *Controller) Flightsize() uint64 { return c.flightsize }

// CTO returns the current congestion timeout.
func (c *Controller) CTO() time.Duration { return c.cto }

// QueuingDelay reports the current estimate of queuing delay (spec §4.4
// step 2), exposed for tests and diagnostics.
func (c *Controller) QueuingDelay() time.Duration {
	return c.filterCurrentDelays() - c.minBaseDelay()
}

// TrySend asks whether n_bytes may be sent now (spec §4.4).
func (c *Controller) TrySend(nBytes uint64) (bool, Reason) {
	now := c.cfg.Clock.Now()

	if !c.everSent {
		c.everSent = true
		c.flightsize += nBytes
		c.lastSendTime = now
		return true, ReasonNone
	}

	if !c.lastAckTime.IsZero() && now.Sub(c.lastAckTime) > c.cto {
		c.inCTO = true
		c.cwnd = c.cfg.MSS
		c.cto *= 2
		c.lastSendTime = now
		return false, ReasonCTO
	}

	if c.flightsize+nBytes <= c.cwnd {
		c.flightsize += nBytes
		c.lastSendTime = now
		return true, ReasonNone
	}
	return false, ReasonCWND
}

// OnAck folds in one batch of ACK-carried samples (spec §4.4).
func (c *Controller) OnAck(bytesAcked uint64, oneWayDelays []time.Duration, rtts []time.Duration) {
	now := c.cfg.Clock.Now()
	c.lastAckTime = now
	c.inCTO = false

	for _, d := range oneWayDelays {
		c.updateBaseDelay(d, now)
		c.updateCurrentDelay(d)
	}

	target := c.cfg.TargetMs * float64(time.Millisecond)
	queuingDelay := float64(c.filterCurrentDelays()) - float64(c.minBaseDelay())
	offTarget := (target - queuingDelay) / target

	if c.cwnd == 0 {
		c.cwnd = c.cfg.MinCwnd * c.cfg.MSS
	}
	delta := c.cfg.Gain * offTarget * float64(bytesAcked) * float64(c.cfg.MSS) / float64(c.cwnd)
	newCwnd := float64(c.cwnd) + delta

	minCwnd := float64(c.cfg.MinCwnd * c.cfg.MSS)
	maxCwnd := float64(c.flightsize) + c.cfg.AllowedIncrease*float64(c.cfg.MSS)
	if newCwnd < minCwnd {
		newCwnd = minCwnd
	}
	if newCwnd > maxCwnd {
		newCwnd = maxCwnd
	}
	if newCwnd < minCwnd {
		// flightsize-derived ceiling can undercut the floor when
		// flightsize is small; the floor always wins.
		newCwnd = minCwnd
	}
	c.cwnd = uint64(newCwnd)

	if bytesAcked > c.flightsize {
		c.flightsize = 0
	} else {
		c.flightsize -= bytesAcked
	}

	c.updateCTO(rtts)
}

// OnDataLoss applies at most one CWND halving per RTT (spec §4.4).
func (c *Controller) OnDataLoss(willRetransmit bool, lossSize uint64) {
	now := c.cfg.Clock.Now()
	rtt := c.srtt
	if rtt == 0 {
		rtt = time.Second
	}
	if !c.lastLossTime.IsZero() && now.Sub(c.lastLossTime) < rtt {
		return
	}
	c.lastLossTime = now

	half := c.cwnd / 2
	min := c.cfg.MinCwnd * c.cfg.MSS
	if half < min {
		half = min
	}
	c.cwnd = half

	if !willRetransmit {
		if lossSize > c.flightsize {
			c.flightsize = 0
		} else {
			c.flightsize -= lossSize
		}
	}
}

func (c *Controller) updateCurrentDelay(d time.Duration) {
	copy(c.currentDelays, c.currentDelays[1:])
	c.currentDelays[len(c.currentDelays)-1] = d
}

func (c *Controller) updateBaseDelay(d time.Duration, now time.Time) {
	if c.lastRollover.IsZero() || now.Truncate(time.Minute) != c.lastRollover.Truncate(time.Minute) {
		c.lastRollover = now
		copy(c.baseDelays, c.baseDelays[1:])
		c.baseDelays[len(c.baseDelays)-1] = d
		return
	}
	head := len(c.baseDelays) - 1
	if c.baseDelays[head] == unsetDelay || d < c.baseDelays[head] {
		c.baseDelays[head] = d
	}
}

// filterCurrentDelays returns the min over the last ceil(BASE_HISTORY/4)
// entries of the current-delay ring (spec §4.4 step 2).
func (c *Controller) filterCurrentDelays() time.Duration {
	n := int(math.Ceil(float64(c.cfg.BaseHistoryDepth) / 4))
	if n > len(c.currentDelays) {
		n = len(c.currentDelays)
	}
	tail := c.currentDelays[len(c.currentDelays)-n:]
	return minDuration(tail)
}

func (c *Controller) minBaseDelay() time.Duration {
	return minDuration(c.baseDelays)
}

func minDuration(ds []time.Duration) time.Duration {
	min := time.Duration(math.MaxInt64)
	any := false
	for _, d := range ds {
		if d == unsetDelay {
			continue
		}
		any = true
		if d < min {
			min = d
		}
	}
	if !any {
		return 0
	}
	return min
}

// updateCTO applies RFC 6298's SRTT/RTTVAR/RTO recurrence to the supplied
// RTT samples, which the caller has already filtered to exclude resent
// in-flight entries (Karn's algorithm, spec §4.4 step 6).
func (c *Controller) updateCTO(rtts []time.Duration) {
	const alpha = 0.125
	const beta = 0.25
	const granularity = time.Millisecond
	const k = 4

	for _, r := range rtts {
		if !c.haveRTT {
			c.srtt = r
			c.rttvar = r / 2
			c.haveRTT = true
			continue
		}
		diff := c.srtt - r
		if diff < 0 {
			diff = -diff
		}
		c.rttvar = time.Duration((1-beta)*float64(c.rttvar) + beta*float64(diff))
		c.srtt = time.Duration((1-alpha)*float64(c.srtt) + alpha*float64(r))
	}
	if !c.haveRTT {
		return
	}
	rto := c.srtt + maxDuration(granularity, k*c.rttvar)
	if rto < time.Second {
		rto = time.Second
	}
	c.cto = rto
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
