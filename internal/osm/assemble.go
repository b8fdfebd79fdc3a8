package osm

import (
	"errors"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/boundary-compare/internal/boundary"
)

// ErrOpenRing marks way members that cannot be joined into closed rings.
var ErrOpenRing = errors.New("open ring")

// Member roles.
const (
	roleOuter = "outer"
	roleInner = "inner"
)

// MergeRings joins way segments, given as flat lon/lat coordinates, into
// closed rings. Segments are chained end to end and may be reversed to fit.
func MergeRings(ways [][]float64) ([][]float64, error) {
	var (
		rings [][]float64
		open  [][]float64
	)
	for _, w := range ways {
		if len(w) < 4 {
			continue
		}
		if closed(w) {
			rings = append(rings, w)
			continue
		}
		open = append(open, w)
	}

	for len(open) > 0 {
		ring := append([]float64(nil), open[0]...)
		open = open[1:]

		for !closed(ring) {
			i, seg := nextSegment(ring, open)
			if i < 0 {
				return nil, eris.Wrapf(ErrOpenRing, "ring ends at %v,%v", ring[len(ring)-2], ring[len(ring)-1])
			}
			ring = append(ring, seg[2:]...)
			open = append(open[:i], open[i+1:]...)
		}
		rings = append(rings, ring)
	}
	return rings, nil
}

// nextSegment finds a segment starting or ending at ring's last position and
// returns it oriented to continue the ring.
func nextSegment(ring []float64, segs [][]float64) (int, []float64) {
	x, y := ring[len(ring)-2], ring[len(ring)-1]
	for i, s := range segs {
		if s[0] == x && s[1] == y {
			return i, s
		}
		if s[len(s)-2] == x && s[len(s)-1] == y {
			return i, reverse(s)
		}
	}
	return -1, nil
}

func closed(flat []float64) bool {
	n := len(flat)
	return n >= 8 && flat[0] == flat[n-2] && flat[1] == flat[n-1]
}

func reverse(flat []float64) []float64 {
	out := make([]float64, len(flat))
	for i, j := 0, len(flat)-2; j >= 0; i, j = i+2, j-2 {
		out[i], out[i+1] = flat[j], flat[j+1]
	}
	return out
}

// AssembleRelation builds a WGS84 multipolygon from a relation's way
// members. Members without a role count as outer.
func AssembleRelation(el Element) (*geom.MultiPolygon, int, error) {
	var outer, inner [][]float64
	for _, m := range el.Members {
		if m.Type != "way" || len(m.Geometry) == 0 {
			continue
		}
		switch m.Role {
		case roleOuter, "":
			outer = append(outer, flat(m.Geometry))
		case roleInner:
			inner = append(inner, flat(m.Geometry))
		}
	}
	if len(outer) == 0 {
		return nil, 0, eris.New("relation has no outer ways")
	}

	shells, err := MergeRings(outer)
	if err != nil {
		return nil, 0, eris.Wrap(err, "outer")
	}
	holes, err := MergeRings(inner)
	if err != nil {
		return nil, 0, eris.Wrap(err, "inner")
	}
	return boundary.AssembleMultiPolygon(shells, holes)
}
