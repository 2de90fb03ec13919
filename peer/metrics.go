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

package peer

import (
	"fmt"

	"github.com/ethereum/go-ethereum/metrics"
)

// peerMetrics registers this peer's counters against the default metrics
// registry, one named series per peer ordinal, the same
// fmt.Sprintf("<prefix>/%s/...", id) naming netstore.go uses for its
// per-fetcher timers.
type peerMetrics struct {
	bytesIn          metrics.Counter
	bytesOut         metrics.Counter
	dataMessagesRecv metrics.Counter
	duplicateAcks    metrics.Counter
	oooEvents        metrics.Counter

	// ledbatCWND and ledbatCTO mirror this peer's ledbat.Controller state
	// (spec §4.6 congestion control), updated after every OnAck/OnDataLoss/
	// TrySend call.
	ledbatCWND metrics.Gauge
	ledbatCTO  metrics.Gauge
}

func newPeerMetrics(num int) peerMetrics {
	name := func(s string) string { return fmt.Sprintf("peer/%d/%s", num, s) }
	return peerMetrics{
		bytesIn:          metrics.GetOrRegisterCounter(name("bytes_in"), nil),
		bytesOut:         metrics.GetOrRegisterCounter(name("bytes_out"), nil),
		dataMessagesRecv: metrics.GetOrRegisterCounter(name("data_messages_recv"), nil),
		duplicateAcks:    metrics.GetOrRegisterCounter(name("duplicate_acks"), nil),
		oooEvents:        metrics.GetOrRegisterCounter(name("ooo_events"), nil),
		ledbatCWND:       metrics.GetOrRegisterGauge(name("ledbat/cwnd"), nil),
		ledbatCTO:        metrics.GetOrRegisterGauge(name("ledbat/cto_ms"), nil),
	}
}

// updateLedbatMetrics refreshes the ledbat gauges from the controller's
// current CWND/CTO. Call sites are the three points that mutate
// ledbat.Controller state: OnAck, OnDataLoss, TrySend.
func (p *Peer) updateLedbatMetrics() {
	if p.ledbatCtrl == nil {
		return
	}
	p.metrics.ledbatCWND.Update(int64(p.ledbatCtrl.CWND()))
	p.metrics.ledbatCTO.Update(p.ledbatCtrl.CTO().Milliseconds())
}

// snapshot reads the current counter values into a Stats value for the
// swarm's per-peer stats map (spec §4.6 "Idle/death").
func (m peerMetrics) snapshot() Stats {
	return Stats{
		BytesIn:          uint64(m.bytesIn.Count()),
		BytesOut:         uint64(m.bytesOut.Count()),
		DataMessagesRecv: uint64(m.dataMessagesRecv.Count()),
		DuplicateAcks:    uint64(m.duplicateAcks.Count()),
		OOOEvents:        uint64(m.oooEvents.Count()),
	}
}
