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

// Package storage implements the two chunk-storage backends of spec §4.5
// behind a single ChunkStorage contract: file-backed storage for static
// content, and memory-backed storage for live/VOD content with discard-
// window eviction.
package storage

import "errors"

// ChunkID is the 32-bit chunk-addressing index negotiated at handshake
// (spec §3, §6).
type ChunkID = uint32

// Error taxonomy, mirrored from the teacher's storage/error.go iota style
// and spec §7's taxonomy.
const (
	ErrInit = iota
	ErrNotFound
	ErrDiscarded
	ErrDuplicate
	ErrIntegrity
)

var (
	// ErrChunkNotFound is returned by GetChunk when allowMissing is false
	// and the chunk is absent.
	ErrChunkNotFound = errors.New("storage: chunk not found")
	// ErrChunkDiscarded is returned for ids at or below last_discarded_id
	// (spec §4.5 discard-window eviction).
	ErrChunkDiscarded = errors.New("storage: chunk discarded")
	// ErrDuplicateChunk is returned by MemoryStorage.SaveChunk for ids
	// already held.
	ErrDuplicateChunk = errors.New("storage: duplicate chunk")
	// ErrIntegrityFailure names a persisted file whose root hash does not
	// match the configured swarm id. FileStorage does not return it: on a
	// mismatch NewFileStorage truncates the file and starts over.
	ErrIntegrityFailure = errors.New("storage: root hash mismatch")
)

// ChunkStorage is the common contract the swarm and peer send-scheduler use
// regardless of backend (spec §4.5, §9 "abstract storage with three
// concrete variants").
type ChunkStorage interface {
	// Close releases underlying resources (file handles, etc).
	Close() error

	// GetChunk returns the chunk's bytes. If the chunk is absent and
	// allowMissing is true, it returns (nil, nil); otherwise it returns
	// ErrChunkNotFound (or ErrChunkDiscarded for evicted live ids).
	GetChunk(id ChunkID, allowMissing bool) ([]byte, error)

	// SaveChunk persists a received chunk and updates the have-set.
	SaveChunk(id ChunkID, data []byte) error

	// PostComplete is called once the backend has everything it will ever
	// have (static: file fully downloaded).
	PostComplete() error

	// Have returns the backend's possession set.
	Have() *HaveSet

	// IsSource reports whether this node is the original content source
	// for this backend (spec §3: "For the live source, MissingSet is
	// always empty").
	IsSource() bool
}
