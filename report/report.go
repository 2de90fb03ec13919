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

// Package report builds the final JSON shutdown report spec §7 requires
// ("structured log entries and a final JSON report written at shutdown").
package report

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"time"

	"github.com/holisticode/ppspp/consumer"
	"github.com/holisticode/ppspp/peer"
	"github.com/holisticode/ppspp/storage"
	"github.com/holisticode/ppspp/swarm"
)

// PeerReport is one peer's final stats, keyed by admission ordinal in the
// parent Report.
type PeerReport struct {
	Num              int    `json:"num"`
	BytesIn          uint64 `json:"bytes_in"`
	BytesOut         uint64 `json:"bytes_out"`
	DataMessagesRecv uint64 `json:"data_messages_recv"`
	DuplicateAcks    uint64 `json:"duplicate_acks"`
	OOOEvents        uint64 `json:"ooo_events"`
}

// ConsumerReport mirrors consumer.Stats for a live run; omitted for a
// static-content run with no consumer.
type ConsumerReport struct {
	FramesConsumed uint64    `json:"frames_consumed"`
	FramesMissed   uint64    `json:"frames_missed"`
	ChunksSkipped  uint64    `json:"chunks_skipped"`
	ConsumeTicks   uint64    `json:"consume_ticks"`
	FirstFrameAt   time.Time `json:"first_frame_at,omitempty"`
	StartChunkID   uint32    `json:"start_chunk_id"`
}

// Report is the top-level shutdown document.
type Report struct {
	SwarmID      string          `json:"swarm_id"`
	GeneratedAt  time.Time       `json:"generated_at"`
	ChunksHeld   int             `json:"chunks_held"`
	HaveRanges   []storage.Range `json:"have_ranges"`
	Peers        []PeerReport    `json:"peers"`
	Consumer     *ConsumerReport `json:"consumer,omitempty"`
}

// Build assembles a Report from a swarm's final state. generatedAt is
// passed in rather than computed so callers control the stamped time.
func Build(s *swarm.Swarm, generatedAt time.Time) Report {
	have := s.Storage().Have()
	stats := s.PeerStats()

	peers := make([]PeerReport, 0, len(stats))
	for num, st := range stats {
		peers = append(peers, peerReportFrom(num, st))
	}

	return Report{
		SwarmID:     hex.EncodeToString(s.ID()),
		GeneratedAt: generatedAt,
		ChunksHeld:  have.Len(),
		HaveRanges:  have.Ranges(),
		Peers:       peers,
	}
}

// WithConsumer attaches a live consumer's stats to r.
func WithConsumer(r Report, c *consumer.Consumer) Report {
	st := c.Stats()
	r.Consumer = &ConsumerReport{
		FramesConsumed: st.FramesConsumed,
		FramesMissed:   st.FramesMissed,
		ChunksSkipped:  st.ChunksSkipped,
		ConsumeTicks:   st.ConsumeTicks,
		FirstFrameAt:   st.FirstFrameAt,
		StartChunkID:   uint32(st.StartChunkID),
	}
	return r
}

func peerReportFrom(num int, st peer.Stats) PeerReport {
	return PeerReport{
		Num:              num,
		BytesIn:          st.BytesIn,
		BytesOut:         st.BytesOut,
		DataMessagesRecv: st.DataMessagesRecv,
		DuplicateAcks:    st.DuplicateAcks,
		OOOEvents:        st.OOOEvents,
	}
}

// Write JSON-encodes r to w, indented for operator readability.
func Write(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
