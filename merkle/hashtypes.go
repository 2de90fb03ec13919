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

package merkle

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"golang.org/x/crypto/sha3"

	"github.com/holisticode/ppspp/config"
)

// ForHashType resolves a config.HashType (TLV option 4) to its HashFunc,
// covering the five SHA-family types spec §6 enumerates (SHA-1, SHA-224,
// SHA-256, SHA-384, SHA-512); any other value falls back to SHA-1.
// keccak256 is not reachable through ForHashType, only through Keccak256.
func ForHashType(t config.HashType) HashFunc {
	switch t {
	case config.HashSHA1:
		return func() hash.Hash { return sha1.New() }
	case config.HashSHA224:
		return func() hash.Hash { return sha256.New224() }
	case config.HashSHA256:
		return func() hash.Hash { return sha256.New() }
	case config.HashSHA384:
		return func() hash.Hash { return sha512.New384() }
	case config.HashSHA512:
		return func() hash.Hash { return sha512.New() }
	default:
		return func() hash.Hash { return sha1.New() }
	}
}

// Keccak256 is an additional, non-handshake-negotiated hash function,
// following the teacher's pluggable-base-hash convention
// (bmt.BaseHasherFunc). Nothing in this module calls it.
func Keccak256() hash.Hash {
	return sha3.NewLegacyKeccak256()
}
