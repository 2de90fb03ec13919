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

// Command ppspp-pack precomputes a discard-eligible-packed VOD file from a
// raw content file offline, mirroring BuildVODFile.py's workflow: slice the
// input into fixed-size application frames, prefix each frame's chunks
// with a frame-boundary marker byte (storage.PackDiscardEligible), and
// print the packed output's root hash as the swarm id to join it by.
package main

import (
	"crypto/sha1"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/holisticode/ppspp/merkle"
	"github.com/holisticode/ppspp/storage"
)

func main() {
	in := flag.String("in", "", "raw content file to pack (required)")
	out := flag.String("out", "", "packed output file (required)")
	chunkSize := flag.Int("chunk-size", 1024, "chunk size in bytes")
	frameSize := flag.Int("frame-size", 16*1024, "application frame size in bytes")
	flag.Parse()

	if *in == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "ppspp-pack: -in and -out are required")
		os.Exit(1)
	}

	if err := pack(*in, *out, *chunkSize, *frameSize); err != nil {
		fmt.Fprintf(os.Stderr, "ppspp-pack: %v\n", err)
		os.Exit(1)
	}

	hash, err := merkle.GetFileHash(merkle.Config{Hash: sha1.New, ChunkSize: *chunkSize}, *out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ppspp-pack: root hash: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%x\n", hash)
}

// pack reads src in frameSize-sized application frames and writes each
// frame's discard-eligible-packed chunks to dst in order.
func pack(src, dst string, chunkSize, frameSize int) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	buf := make([]byte, frameSize)
	for {
		n, err := io.ReadFull(in, buf)
		if n > 0 {
			for _, chunk := range storage.PackDiscardEligible(buf[:n], chunkSize) {
				if _, err := out.Write(chunk); err != nil {
					return err
				}
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
