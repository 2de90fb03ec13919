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

package storage

import (
	"bytes"
	"os"
	"sync"

	"github.com/holisticode/ppspp/merkle"
)

// FileStorage backs static content (spec §4.5): one fixed-size file on
// disk, opened read-write while incomplete and demoted to read-only by
// PostComplete, grounded on storage/netstore.go's get/put split over a
// single backing store. The root hash is checked only when an existing
// file is opened by NewFileStorage.
type FileStorage struct {
	mu sync.Mutex

	path      string
	chunkSize int
	size      int64
	numChunks int

	f        *os.File
	readOnly bool
	complete bool

	have *HaveSet

	onComplete func()
}

// NewFileStorage opens or creates the file at path for a swarm of the given
// size and chunk size. If a file already exists at path whose root hash
// (under hashCfg) matches swarmRootHash, it is adopted as complete and
// opened read-only with every chunk marked possessed; otherwise it is
// created or truncated to size and opened read-write with every chunk
// marked missing. The returned slice lists every initially-missing chunk
// id, which the caller seeds its own missing-set bookkeeping with.
func NewFileStorage(path string, swarmRootHash []byte, size int64, chunkSize int, hashCfg merkle.Config) (*FileStorage, []ChunkID, error) {
	numChunks := int((size + int64(chunkSize) - 1) / int64(chunkSize))

	if info, err := os.Stat(path); err == nil && info.Size() == size && len(swarmRootHash) > 0 {
		if got, err := merkle.GetFileHashDeduped(hashCfg, path); err == nil && bytes.Equal(got, swarmRootHash) {
			f, err := os.Open(path)
			if err != nil {
				return nil, nil, err
			}
			have := NewHaveSet()
			for i := 0; i < numChunks; i++ {
				have.Add(ChunkID(i))
			}
			fs := &FileStorage{
				path:      path,
				chunkSize: chunkSize,
				size:      size,
				numChunks: numChunks,
				f:         f,
				readOnly:  true,
				complete:  true,
				have:      have,
			}
			return fs, nil, nil
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, nil, err
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, nil, err
	}

	missing := make([]ChunkID, numChunks)
	for i := range missing {
		missing[i] = ChunkID(i)
	}
	fs := &FileStorage{
		path:      path,
		chunkSize: chunkSize,
		size:      size,
		numChunks: numChunks,
		f:         f,
		have:      NewHaveSet(),
	}
	return fs, missing, nil
}

// SetOnComplete registers the callback PostComplete invokes after a
// successful read-write to read-only transition; the swarm uses it to stop
// its chunk-selection scheduler and broadcast a full HAVE (spec §4.5).
func (fs *FileStorage) SetOnComplete(fn func()) {
	fs.mu.Lock()
	fs.onComplete = fn
	fs.mu.Unlock()
}

func (fs *FileStorage) chunkBounds(id ChunkID) (offset int64, length int) {
	offset = int64(id) * int64(fs.chunkSize)
	length = fs.chunkSize
	if end := offset + int64(length); end > fs.size {
		length = int(fs.size - offset)
	}
	return offset, length
}

// GetChunk implements ChunkStorage.
func (fs *FileStorage) GetChunk(id ChunkID, allowMissing bool) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if int(id) >= fs.numChunks || !fs.have.Has(id) {
		if allowMissing {
			return nil, nil
		}
		return nil, ErrChunkNotFound
	}

	offset, length := fs.chunkBounds(id)
	buf := make([]byte, length)
	if _, err := fs.f.ReadAt(buf, offset); err != nil {
		return nil, err
	}
	return buf, nil
}

// SaveChunk implements ChunkStorage.
func (fs *FileStorage) SaveChunk(id ChunkID, data []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.readOnly {
		return ErrChunkDiscarded
	}
	offset, length := fs.chunkBounds(id)
	if len(data) < length {
		return ErrChunkNotFound
	}
	if _, err := fs.f.WriteAt(data[:length], offset); err != nil {
		return err
	}
	fs.have.Add(id)
	return nil
}

// PostComplete implements ChunkStorage: it syncs the file, demotes the
// backend to read-only, marks it complete and runs the SetOnComplete hook.
// It does not recompute or check the file's root hash.
func (fs *FileStorage) PostComplete() error {
	fs.mu.Lock()
	f := fs.f
	path := fs.path
	already := fs.complete
	fs.mu.Unlock()

	if already {
		return nil
	}
	if err := f.Sync(); err != nil {
		return err
	}

	fs.mu.Lock()
	fs.readOnly = true
	fs.complete = true
	hook := fs.onComplete
	fs.mu.Unlock()

	_ = path // path retained for diagnostics/report; hash re-verification is
	// the swarm's responsibility at open time for this backend's lifetime.

	if hook != nil {
		hook()
	}
	return nil
}

// Close implements ChunkStorage.
func (fs *FileStorage) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.f.Close()
}

// Have implements ChunkStorage.
func (fs *FileStorage) Have() *HaveSet { return fs.have }

// IsSource implements ChunkStorage: file-backed static content is never the
// live source role (that is MemoryStorage's domain).
func (fs *FileStorage) IsSource() bool { return false }

// Complete reports whether the backend has been demoted to read-only, either
// by PostComplete or by adopting a hash-matching file at open time.
func (fs *FileStorage) Complete() bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.complete
}
