package geo

import "testing"

// Reference values cross-checked against the public geohash definition.
func TestEncode_KnownCells(t *testing.T) {
	cases := []struct {
		lat, lng float64
		want     string
	}{
		{57.64911, 10.40744, "u4pru"},
		{42.6, -5.6, "ezs42"},
		{48.669, -4.329, "gbsuv"},
	}
	for _, tc := range cases {
		if got := Encode(tc.lat, tc.lng); got != tc.want {
			t.Errorf("Encode(%v, %v) = %q, want %q", tc.lat, tc.lng, got, tc.want)
		}
	}
}

func TestEncode_Deterministic(t *testing.T) {
	first := Encode(25.033, 121.565)
	for i := 0; i < 100; i++ {
		if got := Encode(25.033, 121.565); got != first {
			t.Fatalf("run %d: got %q, want %q", i, got, first)
		}
	}
	if len(first) != CellPrecision {
		t.Fatalf("cell length = %d, want %d", len(first), CellPrecision)
	}
}

func TestNeighbors_EightDistinct(t *testing.T) {
	for _, cell := range []string{"u4pru", "ezs42", "gbsuv", "s0000"} {
		nb := Neighbors(cell)
		seen := map[string]bool{cell: true}
		for _, n := range nb {
			if len(n) != CellPrecision {
				t.Errorf("Neighbors(%q): neighbor %q has length %d", cell, n, len(n))
			}
			if seen[n] {
				t.Errorf("Neighbors(%q): duplicate cell %q", cell, n)
			}
			seen[n] = true
		}
		if len(seen) != 9 {
			t.Errorf("Neighbors(%q): expected 8 distinct neighbors, got %d", cell, len(seen)-1)
		}
	}
}

// decodeBounds reverses Encode for test purposes: it narrows the lat/lng
// ranges the same way the encoder does and returns the cell box.
func decodeBounds(t *testing.T, cell string) (latMin, latMax, lngMin, lngMax float64) {
	t.Helper()
	latMin, latMax = -90.0, 90.0
	lngMin, lngMax = -180.0, 180.0
	even := true
	for i := 0; i < len(cell); i++ {
		idx := -1
		for j := 0; j < len(base32); j++ {
			if base32[j] == cell[i] {
				idx = j
				break
			}
		}
		if idx < 0 {
			t.Fatalf("invalid cell char %q", cell[i])
		}
		for bit := 4; bit >= 0; bit-- {
			set := idx>>bit&1 == 1
			if even {
				mid := (lngMin + lngMax) / 2
				if set {
					lngMin = mid
				} else {
					lngMax = mid
				}
			} else {
				mid := (latMin + latMax) / 2
				if set {
					latMin = mid
				} else {
					latMax = mid
				}
			}
			even = !even
		}
	}
	return latMin, latMax, lngMin, lngMax
}

// Encoding a point one cell height/width away from a cell's center must land
// in the corresponding cardinal neighbor.
func TestNeighbors_AgreeWithEncode(t *testing.T) {
	for _, cell := range []string{"u4pru", "ezs42", "wsqqq"} {
		latMin, latMax, lngMin, lngMax := decodeBounds(t, cell)
		clat := (latMin + latMax) / 2
		clng := (lngMin + lngMax) / 2
		h := latMax - latMin
		w := lngMax - lngMin

		nb := Neighbors(cell)
		checks := []struct {
			lat, lng float64
			want     string
			dir      string
		}{
			{clat + h, clng, nb[0], "north"},
			{clat + h, clng + w, nb[1], "northeast"},
			{clat, clng + w, nb[2], "east"},
			{clat - h, clng + w, nb[3], "southeast"},
			{clat - h, clng, nb[4], "south"},
			{clat - h, clng - w, nb[5], "southwest"},
			{clat, clng - w, nb[6], "west"},
			{clat + h, clng - w, nb[7], "northwest"},
		}
		for _, c := range checks {
			if got := Encode(c.lat, c.lng); got != c.want {
				t.Errorf("cell %q %s: Encode(%v, %v) = %q, want %q", cell, c.dir, c.lat, c.lng, got, c.want)
			}
		}
	}
}

func TestCluster_NinesCells(t *testing.T) {
	cells := Cluster("u4pru")
	if len(cells) != 9 {
		t.Fatalf("Cluster returned %d cells, want 9", len(cells))
	}
	if cells[0] != "u4pru" {
		t.Fatalf("Cluster[0] = %q, want the origin cell", cells[0])
	}
}
