package boundary

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Spatial reference identifiers handled by the pipeline.
const (
	SRIDWGS84 = 4326
	SRIDLV95  = 2056
)

// WGS84ToLV95 converts a WGS84 longitude/latitude in degrees to Swiss LV95
// easting/northing in metres using swisstopo's approximate formulas. The
// error stays below one metre inside Switzerland.
func WGS84ToLV95(lon, lat float64) (float64, float64) {
	// Auxiliary values, arc seconds relative to Bern.
	phi := (lat*3600 - 169028.66) / 10000
	lam := (lon*3600 - 26782.5) / 10000

	e := 2600072.37 +
		211455.93*lam -
		10938.51*lam*phi -
		0.36*lam*phi*phi -
		44.54*lam*lam*lam

	n := 1200147.07 +
		308807.95*phi +
		3745.25*lam*lam +
		76.63*phi*phi -
		194.56*lam*lam*phi +
		119.79*phi*phi*phi

	return e, n
}

// ToLV95 reprojects mp from the given SRID into LV95.
func ToLV95(mp *geom.MultiPolygon, srid int) (*geom.MultiPolygon, error) {
	switch srid {
	case SRIDLV95:
		return ForceXY(mp), nil
	case SRIDWGS84:
		return Transform(mp, WGS84ToLV95), nil
	default:
		return nil, eris.Errorf("boundary: unsupported SRID %d", srid)
	}
}
