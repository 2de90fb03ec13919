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

// Package config assembles the swarm-wide parameter contract: chunk size,
// hash type, timers and transport defaults shared by every package.
package config

import (
	"os"

	"github.com/naoina/toml"
)

// Wire-mandated constants (RFC 7574 / spec §6).
const (
	// ChunkSize is the only chunk size this client negotiates at handshake.
	ChunkSize = 1024

	// ChunkAddressingMethod32BitIndex is the only addressing method required
	// to be supported; others are rejected at handshake.
	ChunkAddressingMethod32BitIndex = 2

	DefaultStreamPort   = 6778
	DefaultDatagramPort = 6778
	DefaultTrackerPort  = 6777
)

// HashType enumerates the content-integrity hash functions a handshake may
// advertise (TLV option 4, Merkle hash function).
type HashType uint8

const (
	HashSHA1 HashType = iota
	HashSHA224
	HashSHA256
	HashSHA384
	HashSHA512
)

// Timing defaults, spec §5.
const (
	IdleHandshakeTimeoutSeconds = 15
	SchedulerTickSeconds        = 1
	StatsIntervalSeconds        = 3
	AltoRefreshSeconds          = 15
	ConsumerFrameRateHz         = 10
	BackpressureDelayMillis     = 500
)

// Request-scheduler backlog thresholds and REQ_LIMIT values, spec §4.7.
const (
	BacklogThresholdLivePlaying   = 150
	BacklogThresholdLiveBuffering = 100
	BacklogThresholdStatic        = 250

	ReqLimitLivePlaying   = 250
	ReqLimitLiveBuffering = 150
	ReqLimitStatic        = 1000
)

// Config is the assembled, serializable parameter set for one node. It
// mirrors api.Config's "default-construct then override" idiom from the
// teacher repo.
type Config struct {
	// Swarm identity and content parameters.
	SwarmIDHex string
	ChunkSize  int
	HashType   HashType

	// Role flags, mutually exclusive in combination (live XOR static,
	// live-source implies live).
	IsLive       bool
	IsLiveSource bool
	IsVOD        bool

	// Resource limits.
	MaxPeers             int // 0 = unbounded
	DiscardWindow        int // 0 = unset/unlimited
	DownloadForwardWindow int // 0 = unset/unlimited
	VideoBufferSize      int

	// Transport selection.
	UseDatagramTransport bool
	StreamPort           int
	DatagramPort         int

	// Tracker.
	TrackerAddr string

	// Scheduler policy selector, spec §9 Open Questions.
	Policy string // "greedy" | "tight-reqmax"
}

// NewConfig returns a Config populated with every documented default.
func NewConfig() *Config {
	return &Config{
		ChunkSize:        ChunkSize,
		HashType:         HashSHA1,
		VideoBufferSize:  500,
		StreamPort:       DefaultStreamPort,
		DatagramPort:     DefaultDatagramPort,
		TrackerAddr:      "",
		Policy:           "greedy",
	}
}

// Load reads a TOML-encoded Config from path, starting from defaults so
// unspecified fields keep their documented values.
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as TOML to path.
func Save(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
