package swisstopo

import (
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/boundary-compare/internal/boundary"
	"github.com/sells-group/boundary-compare/internal/config"
)

// ReadShapefile reads the municipality layer of a shapefile. Coordinates are
// taken to be in cfg.SRID.
func ReadShapefile(path string, cfg config.SwisstopoConfig) (*boundary.Collection, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", path)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := make(map[string]int)
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}
	idIdx, ok := fieldIdx[strings.ToLower(cfg.IDField)]
	if !ok {
		return nil, eris.Errorf("shapefile: field %q not found", cfg.IDField)
	}
	nameIdx, ok := fieldIdx[strings.ToLower(cfg.NameField)]
	if !ok {
		return nil, eris.Errorf("shapefile: field %q not found", cfg.NameField)
	}
	typeIdx, hasType := fieldIdx[strings.ToLower(cfg.TypeField)]
	filter := hasType && cfg.ObjectType != ""

	dec := attributeDecoder(path)
	attr := func(idx int) string {
		v := strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
		return decodeAttribute(dec, v)
	}

	coll := &boundary.Collection{Source: SourceName}
	for reader.Next() {
		n, shape := reader.Shape()
		ref := "shp:" + strconv.Itoa(n)

		if filter && attr(typeIdx) != cfg.ObjectType {
			continue
		}

		id, err := parseID(attr(idIdx))
		if err != nil {
			drop(coll, ref, err)
			continue
		}

		mp, err := shapeToMultiPolygon(shape)
		if err != nil {
			drop(coll, ref, err)
			continue
		}
		if mp, err = boundary.ToLV95(mp, cfg.SRID); err != nil {
			drop(coll, ref, err)
			continue
		}

		add(coll, boundary.Record{
			ID:        id,
			Name:      attr(nameIdx),
			Geometry:  mp,
			SourceRef: ref,
		})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrap(err, "shapefile: read records")
	}
	return coll, nil
}

// shapeToMultiPolygon groups the rings of a polygon shape. Shapefile outer
// rings run clockwise and holes counter-clockwise; when no ring is clockwise
// every ring is treated as an outer ring.
func shapeToMultiPolygon(shape shp.Shape) (*geom.MultiPolygon, error) {
	var (
		parts  []int32
		points []shp.Point
	)
	switch s := shape.(type) {
	case *shp.Polygon:
		parts, points = s.Parts, s.Points
	case *shp.PolygonZ:
		parts, points = s.Parts, s.Points
	case *shp.PolygonM:
		parts, points = s.Parts, s.Points
	case nil:
		return nil, eris.New("shapefile: null shape")
	default:
		return nil, eris.Errorf("shapefile: unsupported shape %T", shape)
	}
	if len(parts) == 0 || len(points) == 0 {
		return nil, eris.New("shapefile: polygon has no rings")
	}

	var shells, holes [][]float64
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || start >= end {
			return nil, eris.Errorf("shapefile: invalid part %d", i)
		}
		ring := make([]float64, 0, (end-start)*2)
		for _, p := range points[start:end] {
			ring = append(ring, p.X, p.Y)
		}
		ring = boundary.CloseRing(ring)
		if len(ring) < 8 {
			continue
		}
		if !xy.IsRingCounterClockwise(geom.XY, ring) {
			shells = append(shells, ring)
		} else {
			holes = append(holes, ring)
		}
	}
	if len(shells) == 0 {
		shells, holes = holes, nil
	}

	mp, _, err := boundary.AssembleMultiPolygon(shells, holes)
	return mp, err
}

// attributeDecoder picks the DBF text encoding from the sidecar .cpg file.
// A nil decoder means attributes are UTF-8.
func attributeDecoder(shpPath string) *encoding.Decoder {
	cpg, err := os.ReadFile(strings.TrimSuffix(shpPath, ".shp") + ".cpg")
	if err != nil {
		return nil
	}
	switch strings.ToUpper(strings.TrimSpace(string(cpg))) {
	case "UTF-8", "UTF8", "65001":
		return nil
	case "ISO-8859-1", "ISO88591", "8859_1", "LATIN1":
		return charmap.ISO8859_1.NewDecoder()
	default:
		return charmap.Windows1252.NewDecoder()
	}
}

// decodeAttribute converts v with dec. Without a decoder, invalid UTF-8 is
// read as Windows-1252, the usual DBF default.
func decodeAttribute(dec *encoding.Decoder, v string) string {
	if dec == nil {
		if utf8.ValidString(v) {
			return v
		}
		dec = charmap.Windows1252.NewDecoder()
	}
	out, err := dec.String(v)
	if err != nil {
		return v
	}
	return out
}
