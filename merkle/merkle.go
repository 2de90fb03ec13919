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

// Package merkle computes the PPSPP root hash (spec §4.3): a binary
// reduction over fixed-size chunks of an input, padded to a power-of-two
// leaf count with a null-hash sentinel the way bmt.TreePool precomputes
// zero-subtree hashes for unbalanced BMT trees, generalized here to a
// plain pairwise reduction since PPSPP's root hash (unlike BMT) carries no
// inclusion-proof or concurrency requirement.
package merkle

import (
	"errors"
	"hash"
	"io"
	"os"

	"golang.org/x/sync/singleflight"
)

// ErrEmptyInput is returned when asked to hash zero bytes (spec §4.3, §8
// scenario 1).
var ErrEmptyInput = errors.New("merkle: empty input")

// HashFunc constructs the base hash used for leaves and internal nodes.
type HashFunc func() hash.Hash

// Config selects the base hash function and chunk size for a root-hash
// computation.
type Config struct {
	Hash      HashFunc
	ChunkSize int
}

// GetDataHash computes the root hash of an in-memory byte buffer.
func GetDataHash(cfg Config, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	k := (len(data) + cfg.ChunkSize - 1) / cfg.ChunkSize
	w := nextPowerOfTwo(k)

	leaves := make([][]byte, w)
	h := cfg.Hash()
	for i := 0; i < k; i++ {
		start := i * cfg.ChunkSize
		end := start + cfg.ChunkSize
		if end > len(data) {
			end = len(data)
		}
		leaves[i] = doSum(h, data[start:end])
	}
	// leaves[k:w] stay nil, representing the null-hash sentinel Z.
	return reduce(h, leaves), nil
}

// GetFileHash streams chunk-sized reads from path and computes the same
// root hash as GetDataHash would over the file's full contents.
func GetFileHash(cfg Config, path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		return nil, ErrEmptyInput
	}

	k := int((size + int64(cfg.ChunkSize) - 1) / int64(cfg.ChunkSize))
	w := nextPowerOfTwo(k)

	leaves := make([][]byte, w)
	h := cfg.Hash()
	buf := make([]byte, cfg.ChunkSize)
	for i := 0; i < k; i++ {
		n, err := io.ReadFull(f, buf)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return nil, err
		}
		leaves[i] = doSum(h, buf[:n])
	}
	return reduce(h, leaves), nil
}

// fileHashGroup collapses concurrent GetFileHash calls for the same path
// into a single computation, grounded on storage/netstore.go's
// requestGroup singleflight.Group use for deduplicating concurrent fetches.
var fileHashGroup singleflight.Group

// GetFileHashDeduped is GetFileHash with concurrent-call collapsing; used
// by storage.FileStorage on startup where multiple goroutines could race
// to validate the same persisted file.
func GetFileHashDeduped(cfg Config, path string) ([]byte, error) {
	v, err, _ := fileHashGroup.Do(path, func() (interface{}, error) {
		return GetFileHash(cfg, path)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// reduce pairwise-combines a power-of-two-width leaf layer down to a
// single root hash.
func reduce(h hash.Hash, level [][]byte) []byte {
	for len(level) > 1 {
		next := make([][]byte, len(level)/2)
		for i := range next {
			next[i] = combine(h, level[2*i], level[2*i+1])
		}
		level = next
	}
	if len(level) == 0 {
		return nil
	}
	return level[0]
}

// combine implements spec §4.3's combine(a, b): both populated hashes
// their concatenation; one real and one null-sentinel hashes the real one
// against a zero-filled pad of hash length; both null stays null.
func combine(h hash.Hash, a, b []byte) []byte {
	switch {
	case a != nil && b != nil:
		return doSum(h, a, b)
	case a != nil && b == nil:
		return doSum(h, a, make([]byte, h.Size()))
	case a == nil && b != nil:
		return doSum(h, b, make([]byte, h.Size()))
	default:
		return nil
	}
}

func doSum(h hash.Hash, parts ...[]byte) []byte {
	h.Reset()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	w := 1
	for w < n {
		w <<= 1
	}
	return w
}
