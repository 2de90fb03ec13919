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

package tracker

import (
	"io"

	"github.com/ethereum/go-ethereum/rlp"
)

// frame wraps one JSON-encoded message for length-prefixed transport (spec
// §6: "length-prefixed ... JSON messages"). The JSON payload's bytes are
// opaque to the framing; rlp.Encode supplies the length prefix the same
// way the teacher's p2p.Msg wire format does for its payloads.
type frame struct {
	Payload []byte
}

func writeFrame(w io.Writer, payload []byte) error {
	return rlp.Encode(w, &frame{Payload: payload})
}

func readFrame(r io.Reader) ([]byte, error) {
	var f frame
	if err := rlp.Decode(r, &f); err != nil {
		return nil, err
	}
	return f.Payload, nil
}
