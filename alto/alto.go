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

// Package alto defines the peer-cost-ordering collaborator the live/VOD
// chunk-selection scheduler consults (spec §4.7: "replaced by ALTO
// cost-ordered list if ALTO supplies one"). The ALTO HTTP client itself is
// out of scope; this package only defines the seam and two trivial
// implementations the scheduler can fall back to.
package alto

// CostProvider ranks a set of peer endpoints from cheapest to most
// expensive to reach, as an ALTO "cost map" query response would. Ranked
// returns nil when it has no opinion, in which case the caller keeps its
// own (shuffled) order.
type CostProvider interface {
	Ranked(endpoints []string) []string
}

// NoopProvider never has an opinion; the scheduler's shuffled fallback
// order always applies.
type NoopProvider struct{}

// Ranked implements CostProvider.
func (NoopProvider) Ranked([]string) []string { return nil }

// StaticProvider orders endpoints by a fixed cost table, for tests and for
// deployments that pin peer preference without running an ALTO client.
// Endpoints absent from the table sort after every ranked endpoint, in
// their original relative order.
type StaticProvider struct {
	Cost map[string]float64
}

// Ranked implements CostProvider.
func (p StaticProvider) Ranked(endpoints []string) []string {
	if len(p.Cost) == 0 {
		return nil
	}
	ranked := append([]string(nil), endpoints...)
	rank := func(ep string) (float64, bool) {
		c, ok := p.Cost[ep]
		return c, ok
	}
	// Stable insertion sort: small N (peer counts), stable order for ties
	// and for endpoints the cost table doesn't cover.
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0; j-- {
			cj, okj := rank(ranked[j])
			ci, oki := rank(ranked[j-1])
			less := false
			switch {
			case okj && oki:
				less = cj < ci
			case okj && !oki:
				less = true
			default:
				less = false
			}
			if !less {
				break
			}
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}
	return ranked
}
