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

// Command ppspp-node is a thin bootstrap wiring config, storage, swarm,
// hive and tracker together over a TCP stream transport. Flag parsing is
// intentionally bare (spec.md §1 names CLI argument parsing itself as out
// of core scope); this is the minimum needed to exercise the core
// end-to-end.
package main

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pborman/uuid"

	"github.com/holisticode/ppspp/config"
	"github.com/holisticode/ppspp/hive"
	"github.com/holisticode/ppspp/merkle"
	"github.com/holisticode/ppspp/peer"
	"github.com/holisticode/ppspp/report"
	"github.com/holisticode/ppspp/storage"
	"github.com/holisticode/ppspp/swarm"
	"github.com/holisticode/ppspp/tracker"
	"github.com/holisticode/ppspp/wire"
)

func main() {
	swarmIDHex := flag.String("swarm-id", "", "hex-encoded swarm content id (required)")
	file := flag.String("file", "", "path to content file (static content)")
	size := flag.Int64("size", 0, "content size in bytes, for static content not yet on disk")
	live := flag.Bool("live", false, "join as a live/VOD leecher using memory storage")
	liveSource := flag.Bool("live-source", false, "run as the live source")
	discardWindow := flag.Int("discard-window", 0, "live discard window in chunks")
	maxPeers := flag.Int("max-peers", 0, "peer cap, 0 = unbounded")
	listen := flag.Int("listen", config.DefaultStreamPort, "TCP listen port")
	trackerAddr := flag.String("tracker", "", "tracker address, host:port")
	policy := flag.String("policy", "greedy", "chunk-selection policy: greedy | tight-reqmax")
	flag.Parse()

	logger := log.New("module", "cmd")

	if *swarmIDHex == "" {
		fmt.Fprintln(os.Stderr, "ppspp-node: -swarm-id is required")
		os.Exit(1)
	}
	swarmID, err := hex.DecodeString(*swarmIDHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ppspp-node: invalid -swarm-id: %v\n", err)
		os.Exit(1)
	}

	cfg := config.NewConfig()
	cfg.SwarmIDHex = *swarmIDHex
	cfg.IsLive = *live || *liveSource
	cfg.IsLiveSource = *liveSource
	cfg.DiscardWindow = *discardWindow
	cfg.MaxPeers = *maxPeers
	cfg.StreamPort = *listen
	cfg.TrackerAddr = *trackerAddr
	cfg.Policy = *policy

	store, err := openStorage(cfg, *file, *size)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ppspp-node: storage: %v\n", err)
		os.Exit(1)
	}

	s := swarm.New(swarmID, cfg, store)
	if ms, ok := store.(*storage.MemoryStorage); ok {
		ms.SetHaveRangesHook(s.OnHaveRanges)
	}

	h, err := hive.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ppspp-node: hive: %v\n", err)
		os.Exit(1)
	}
	if err := h.AddSwarm(s); err != nil {
		fmt.Fprintf(os.Stderr, "ppspp-node: %v\n", err)
		os.Exit(1)
	}

	localUUID := uuid.NewRandom()
	var nextChannel uint32

	var peersMu sync.Mutex
	peersByEndpoint := make(map[string]*peer.Peer)

	admit := func(conn net.Conn, initiator bool) *peer.Peer {
		t := newStreamTransport(conn)
		ch := atomic.AddUint32(&nextChannel, 1)

		p := peer.New(peer.Params{
			Num:               int(ch),
			LocalChannel:      ch,
			LocalUUID:         localUUID,
			Initiator:         initiator,
			SwarmID:           swarmID,
			ChunkSize:         cfg.ChunkSize,
			HashType:          uint8(cfg.HashType),
			LiveDiscardWindow: uint32(cfg.DiscardWindow),
			Storage:           store,
			Transport:         t,
			OnMissing:         s.OnMissing,
			OnIntegrity:       s.OnIntegrity,
			OnDestroy:         s.OnPeerDestroy,
		})
		h.BindChannel(ch, swarmID)
		if err := s.AddPeer(p); err != nil {
			logger.Debug("peer admission refused", "err", err)
			t.Close()
			h.UnbindChannel(ch)
			return nil
		}

		if initiator {
			if err := p.StartHandshake(); err != nil {
				logger.Debug("handshake send failed", "err", err)
			}
		}

		go func() {
			_ = t.readLoop(func(data []byte) {
				pkt, err := wire.DecodePacket(data, uint8(cfg.HashType))
				if err != nil {
					logger.Debug("malformed packet", "remote", t.RemoteAddr(), "err", err)
					return
				}
				p.RecordBytesIn(len(data))
				p.HandlePacket(pkt, uint64(time.Now().UnixNano()/1000))
			})
			p.Destroy(true)
			h.UnbindChannel(ch)
			peersMu.Lock()
			delete(peersByEndpoint, p.RemoteAddr())
			peersMu.Unlock()
		}()
		return p
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.StreamPort))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ppspp-node: listen: %v\n", err)
		os.Exit(1)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			admit(conn, false)
		}
	}()

	var trackerClient *tracker.Client
	if *trackerAddr != "" {
		trackerClient, err = tracker.Dial(*trackerAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ppspp-node: tracker unreachable: %v\n", err)
			os.Exit(1)
		}
		trackerClient.SetCallbacks(tracker.Callbacks{
			OnOtherPeers: func(_ []byte, peers []tracker.Endpoint) {
				for _, ep := range peers {
					dialPeer(ep, admit, &peersMu, peersByEndpoint, logger)
				}
			},
			OnNewNode: func(_ []byte, ep tracker.Endpoint) {
				dialPeer(ep, admit, &peersMu, peersByEndpoint, logger)
			},
			OnRemoveNode: func(_ []byte, ep tracker.Endpoint) {
				key := fmt.Sprintf("%s:%d", ep.IP, ep.Port)
				peersMu.Lock()
				p, ok := peersByEndpoint[key]
				delete(peersByEndpoint, key)
				peersMu.Unlock()
				if ok {
					p.Destroy(true)
				}
			},
		})
		go trackerClient.Listen()
		self := tracker.Endpoint{IP: "0.0.0.0", Port: cfg.StreamPort}
		if !*liveSource {
			if err := trackerClient.GetPeers(swarmID); err != nil {
				logger.Debug("get_peers failed", "err", err)
			}
		}
		if err := trackerClient.Register(swarmID, self); err != nil {
			logger.Debug("register failed", "err", err)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ln.Close()
	if trackerClient != nil {
		trackerClient.Close()
	}
	if err := s.Shutdown(false); err != nil {
		logger.Debug("shutdown error", "err", err)
	}
	r := report.Build(s, time.Now())
	if err := report.Write(os.Stdout, r); err != nil {
		logger.Debug("report write failed", "err", err)
	}
}

func dialPeer(ep tracker.Endpoint, admit func(net.Conn, bool) *peer.Peer, peersMu *sync.Mutex, peersByEndpoint map[string]*peer.Peer, logger log.Logger) {
	addr := fmt.Sprintf("%s:%d", ep.IP, ep.Port)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		logger.Debug("dial failed", "endpoint", ep, "err", err)
		return
	}
	p := admit(conn, true)
	if p == nil {
		return
	}
	peersMu.Lock()
	peersByEndpoint[addr] = p
	peersMu.Unlock()
}

func openStorage(cfg *config.Config, file string, size int64) (storage.ChunkStorage, error) {
	if cfg.IsLive {
		return storage.NewMemoryStorage(cfg.ChunkSize, cfg.DiscardWindow, cfg.IsLiveSource)
	}
	if file == "" {
		return nil, fmt.Errorf("-file is required for static content")
	}
	swarmID, err := hex.DecodeString(cfg.SwarmIDHex)
	if err != nil {
		return nil, err
	}
	fs, _, err := storage.NewFileStorage(file, swarmID, size, cfg.ChunkSize, merkleConfig(cfg))
	return fs, err
}

// merkleConfig maps a config.HashType to the merkle.Config it selects.
func merkleConfig(cfg *config.Config) merkle.Config {
	var hf merkle.HashFunc
	switch cfg.HashType {
	case config.HashSHA224:
		hf = sha256.New224
	case config.HashSHA256:
		hf = sha256.New
	case config.HashSHA384:
		hf = sha512.New384
	case config.HashSHA512:
		hf = sha512.New
	default:
		hf = sha1.New
	}
	return merkle.Config{Hash: hf, ChunkSize: cfg.ChunkSize}
}
