package metrics

import (
	"errors"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"github.com/twpayne/go-geos"
	"go.uber.org/zap"

	"github.com/sells-group/boundary-compare/internal/match"
)

var (
	// ErrDegenerate marks a pair with a zero-area input or union. Such pairs
	// are reported as unscored.
	ErrDegenerate = errors.New("degenerate geometry")

	// ErrGeometry marks a pair whose geometry GEOS could not process.
	ErrGeometry = errors.New("geometry operation failed")
)

// Result holds the comparison metrics for one matched municipality. Areas and
// distances are in LV95 units (square metres and metres).
type Result struct {
	ID                      int
	Name                    string
	IoU                     float64
	AreaDifferencePct       float64
	HausdorffDistance       float64
	SymmetricDifferenceArea float64
	Category                Category
	AuthoritativeArea       float64
	CrowdArea               float64
}

// Unscored is a matched pair the engine could not score.
type Unscored struct {
	ID     int
	Name   string
	Reason string
}

// Engine computes metrics for matched pairs. It owns a GEOS context and is
// not safe for concurrent use.
type Engine struct {
	gctx       *geos.Context
	thresholds Thresholds
}

// NewEngine creates an Engine that categorises with the given thresholds.
func NewEngine(t Thresholds) *Engine {
	return &Engine{gctx: geos.NewContext(), thresholds: t}
}

// Thresholds returns the engine's category thresholds.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Compare computes IoU, signed area difference, boundary Hausdorff distance
// and symmetric difference area for one pair. Errors wrap ErrDegenerate or
// ErrGeometry and leave the pair unscored.
func (e *Engine) Compare(p match.Pair) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Wrapf(ErrGeometry, "metrics: identifier %d: %v", p.ID, r)
		}
	}()

	a, err := e.toGEOS(p.Authoritative.Geometry)
	if err != nil {
		return Result{}, eris.Wrapf(err, "metrics: identifier %d authoritative", p.ID)
	}
	b, err := e.toGEOS(p.Crowd.Geometry)
	if err != nil {
		return Result{}, eris.Wrapf(err, "metrics: identifier %d crowd-sourced", p.ID)
	}

	areaA, areaB := a.Area(), b.Area()
	if areaA <= 0 || areaB <= 0 {
		return Result{}, eris.Wrapf(ErrDegenerate, "metrics: identifier %d: zero area (authoritative %g, crowd-sourced %g)", p.ID, areaA, areaB)
	}

	res = Result{
		ID:                p.ID,
		Name:              p.Name,
		AuthoritativeArea: areaA,
		CrowdArea:         areaB,
		AreaDifferencePct: (areaB - areaA) / areaA * 100,
	}

	if a.Equals(b) {
		res.IoU = 1
		res.Category = Categorize(1, e.thresholds)
		return res, nil
	}

	inter := a.Intersection(b).Area()
	union := a.Union(b).Area()
	if union <= 0 {
		return Result{}, eris.Wrapf(ErrDegenerate, "metrics: identifier %d: zero union area", p.ID)
	}

	res.IoU = clamp01(inter / union)
	res.SymmetricDifferenceArea = math.Max(0, union-inter)
	res.HausdorffDistance = a.Boundary().HausdorffDistance(b.Boundary())
	res.Category = Categorize(res.IoU, e.thresholds)

	return res, nil
}

// toGEOS converts mp to a GEOS geometry and repairs it if overlay would
// reject it.
func (e *Engine) toGEOS(mp *geom.MultiPolygon) (*geos.Geom, error) {
	if mp == nil {
		return nil, eris.Wrap(ErrDegenerate, "nil geometry")
	}
	data, err := wkb.Marshal(mp, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "encode wkb")
	}
	g, err := e.gctx.NewGeomFromWKB(data)
	if err != nil {
		return nil, eris.Wrap(err, "decode wkb")
	}
	if g.IsEmpty() {
		return nil, eris.Wrap(ErrDegenerate, "empty geometry")
	}
	if g.IsValid() {
		return g, nil
	}

	fixed := g.MakeValid()
	if !isPolygonal(fixed) || !fixed.IsValid() {
		// Buffer(0) always yields polygons; it may drop self-overlapping lobes.
		fixed = g.Buffer(0, 16)
	}
	zap.L().Debug("metrics: repaired invalid geometry",
		zap.Float64("area_before", g.Area()),
		zap.Float64("area_after", fixed.Area()),
	)
	return fixed, nil
}

func isPolygonal(g *geos.Geom) bool {
	switch g.TypeID() {
	case geos.TypeIDPolygon, geos.TypeIDMultiPolygon:
		return true
	default:
		return false
	}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
