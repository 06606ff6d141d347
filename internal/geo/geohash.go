// Package geo implements the fixed-precision grid cells used for rider
// proximity bucketing: a 5-character base-32 geohash encoder and the
// 8-neighbor adjacency lookup.
package geo

import "strings"

const (
	base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

	// CellPrecision is the cell length in characters (5 bits each, 25 bits
	// total, roughly a 4.9 x 4.9 km box at the equator).
	CellPrecision = 5
)

// Encode returns the grid cell containing (lat, lng). Deterministic:
// alternating binary subdivision starting on the longitude axis, a value
// strictly greater than the midpoint goes to the upper half.
func Encode(lat, lng float64) string {
	latMin, latMax := -90.0, 90.0
	lngMin, lngMax := -180.0, 180.0

	var sb strings.Builder
	var bits, ch int
	even := true

	for sb.Len() < CellPrecision {
		if even {
			mid := (lngMin + lngMax) / 2
			if lng > mid {
				ch = ch<<1 | 1
				lngMin = mid
			} else {
				ch = ch << 1
				lngMax = mid
			}
		} else {
			mid := (latMin + latMax) / 2
			if lat > mid {
				ch = ch<<1 | 1
				latMin = mid
			} else {
				ch = ch << 1
				latMax = mid
			}
		}
		even = !even
		bits++
		if bits == 5 {
			sb.WriteByte(base32[ch])
			bits, ch = 0, 0
		}
	}
	return sb.String()
}

type direction int

const (
	north direction = iota
	south
	east
	west
)

// Adjacency tables keyed by direction and cell-length parity. The odd-length
// table for a direction equals the even-length table of the rotated axis.
var neighborTable = map[direction][2]string{
	north: {"p0r21436x8zb9dcf5h7kjnmqesgutwvy", "bc01fg45238967deuvhjyznpkmstqrwx"},
	south: {"14365h7k9dcfesgujnmqp0r2twvyx8zb", "238967debc01fg45kmstqrwxuvhjyznp"},
	east:  {"bc01fg45238967deuvhjyznpkmstqrwx", "p0r21436x8zb9dcf5h7kjnmqesgutwvy"},
	west:  {"238967debc01fg45kmstqrwxuvhjyznp", "14365h7k9dcfesgujnmqp0r2twvyx8zb"},
}

var borderTable = map[direction][2]string{
	north: {"prxz", "bcfguvyz"},
	south: {"028b", "0145hjnp"},
	east:  {"bcfguvyz", "prxz"},
	west:  {"0145hjnp", "028b"},
}

// adjacent returns the same-precision cell bordering cell in dir.
func adjacent(cell string, dir direction) string {
	last := cell[len(cell)-1]
	parent := cell[:len(cell)-1]
	parity := len(cell) % 2 // 0 = even length, 1 = odd length

	if strings.IndexByte(borderTable[dir][parity], last) >= 0 && parent != "" {
		parent = adjacent(parent, dir)
	}
	return parent + string(base32[strings.IndexByte(neighborTable[dir][parity], last)])
}

// Neighbors returns the 8 cells surrounding cell, clockwise from north:
// N, NE, E, SE, S, SW, W, NW.
func Neighbors(cell string) [8]string {
	n := adjacent(cell, north)
	s := adjacent(cell, south)
	e := adjacent(cell, east)
	w := adjacent(cell, west)
	return [8]string{
		n,
		adjacent(n, east),
		e,
		adjacent(s, east),
		s,
		adjacent(s, west),
		w,
		adjacent(n, west),
	}
}

// Cluster returns the cell itself plus its 8 neighbors, the search area for
// proximity queries.
func Cluster(cell string) []string {
	nb := Neighbors(cell)
	out := make([]string, 0, 9)
	out = append(out, cell)
	out = append(out, nb[:]...)
	return out
}
