package boundary

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
)

// CloseRing appends the first XY coordinate if the ring is open.
func CloseRing(flat []float64) []float64 {
	n := len(flat)
	if n < 2 {
		return flat
	}
	if flat[0] != flat[n-2] || flat[1] != flat[n-1] {
		flat = append(flat, flat[0], flat[1])
	}
	return flat
}

// AssembleMultiPolygon builds an XY multipolygon from closed shell rings and
// hole rings. Each hole goes to the smallest shell that contains it. Rings with fewer than four positions are skipped. Returns the number
// of holes that fit no shell alongside the geometry.
func AssembleMultiPolygon(shells, holes [][]float64) (*geom.MultiPolygon, int, error) {
	type shell struct {
		flat  []float64
		area  float64
		holes [][]float64
	}

	var ss []*shell
	for _, s := range shells {
		if len(s) < 8 {
			continue
		}
		ss = append(ss, &shell{flat: s, area: math.Abs(xy.SignedArea(geom.XY, s))})
	}
	if len(ss) == 0 {
		return nil, 0, eris.New("boundary: no usable shell ring")
	}
	sort.SliceStable(ss, func(i, j int) bool { return ss[i].area < ss[j].area })

	orphans := 0
	for _, h := range holes {
		if len(h) < 8 {
			continue
		}
		placed := false
		for _, s := range ss {
			if ContainsRing(s.flat, h) {
				s.holes = append(s.holes, h)
				placed = true
				break
			}
		}
		if !placed {
			orphans++
		}
	}

	mp := geom.NewMultiPolygon(geom.XY)
	for _, s := range ss {
		flat := append([]float64(nil), s.flat...)
		ends := []int{len(flat)}
		for _, h := range s.holes {
			flat = append(flat, h...)
			ends = append(ends, len(flat))
		}
		if err := mp.Push(geom.NewPolygonFlat(geom.XY, flat, ends)); err != nil {
			return nil, orphans, eris.Wrap(err, "boundary: push polygon")
		}
	}
	return mp, orphans, nil
}

// ContainsRing reports whether ring lies inside shell. The first ring vertex
// strictly inside or outside the shell decides; vertices on the shell
// boundary are skipped, since an inner ring may touch its outer ring at a
// node. A ring lying entirely on the shell boundary is not contained.
func ContainsRing(shell, ring []float64) bool {
	for i := 0; i+1 < len(ring); i += 2 {
		switch xy.LocatePointInRing(geom.XY, geom.Coord{ring[i], ring[i+1]}, shell) {
		case location.Interior:
			return true
		case location.Exterior:
			return false
		}
	}
	return false
}

// ToMultiPolygon normalises a decoded geometry to an XY multipolygon.
func ToMultiPolygon(g geom.T) (*geom.MultiPolygon, error) {
	var mp *geom.MultiPolygon
	switch t := g.(type) {
	case *geom.MultiPolygon:
		mp = t
	case *geom.Polygon:
		mp = geom.NewMultiPolygon(t.Layout())
		if err := mp.Push(t); err != nil {
			return nil, eris.Wrap(err, "boundary: wrap polygon")
		}
	case nil:
		return nil, eris.New("boundary: empty geometry")
	default:
		return nil, eris.Errorf("boundary: unsupported geometry type %T", g)
	}
	return ForceXY(mp), nil
}

// ForceXY drops any Z or M ordinates.
func ForceXY(mp *geom.MultiPolygon) *geom.MultiPolygon {
	if mp.Layout() == geom.XY {
		return mp
	}
	return Transform(mp, func(x, y float64) (float64, float64) { return x, y })
}

// Transform returns an XY copy of mp with fn applied to every position.
func Transform(mp *geom.MultiPolygon, fn func(x, y float64) (float64, float64)) *geom.MultiPolygon {
	stride := mp.Layout().Stride()
	src := mp.FlatCoords()
	flat := make([]float64, 0, len(src)/stride*2)
	for i := 0; i+1 < len(src); i += stride {
		x, y := fn(src[i], src[i+1])
		flat = append(flat, x, y)
	}

	endss := make([][]int, len(mp.Endss()))
	for i, ends := range mp.Endss() {
		endss[i] = make([]int, len(ends))
		for j, e := range ends {
			endss[i][j] = e / stride * 2
		}
	}
	return geom.NewMultiPolygonFlat(geom.XY, flat, endss)
}
